package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
)

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "channel closed before event arrived")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubPublishReachesSubscriber(t *testing.T) {
	h := NewHub(0, zap.NewNop())
	defer h.Close()

	sub, err := h.Subscribe("sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)

	h.Publish("sess-1", Event{Type: EventStatus, Status: types.StatusNavigating, Progress: 5})

	ev := recvEvent(t, sub)
	assert.Equal(t, EventStatus, ev.Type)
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.Equal(t, types.StatusNavigating, ev.Status)
	assert.Equal(t, 5.0, ev.Progress)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestHubSessionIsolation(t *testing.T) {
	h := NewHub(0, zap.NewNop())
	defer h.Close()

	subA, _ := h.Subscribe("sess-a")
	subB, _ := h.Subscribe("sess-b")

	h.Publish("sess-a", Event{Type: EventProgress, Progress: 40})

	ev := recvEvent(t, subA)
	assert.Equal(t, "sess-a", ev.SessionID)

	select {
	case ev := <-subB.Events():
		t.Fatalf("subscriber for sess-b received foreign event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubMultipleSubscribersEachReceive(t *testing.T) {
	h := NewHub(0, zap.NewNop())
	defer h.Close()

	subs := make([]*Subscriber, 3)
	for i := range subs {
		s, err := h.Subscribe("sess-1")
		require.NoError(t, err)
		subs[i] = s
	}
	require.Equal(t, 3, h.SubscriberCount("sess-1"))

	h.Publish("sess-1", Event{Type: EventProgress, Progress: 70})
	for _, s := range subs {
		assert.Equal(t, 70.0, recvEvent(t, s).Progress)
	}
}

func TestHubSlowSubscriberDropped(t *testing.T) {
	h := NewHub(1, zap.NewNop())
	defer h.Close()

	slow, _ := h.Subscribe("sess-1")

	// 缓冲为 1 且从不消费：第一条入缓冲，第二条发现打满即摘除
	h.Publish("sess-1", Event{Type: EventProgress, Progress: 10})
	h.Publish("sess-1", Event{Type: EventProgress, Progress: 20})

	assert.Equal(t, 0, h.SubscriberCount("sess-1"))

	// 通道已关闭,缓冲里只剩第一条
	ev, ok := <-slow.Events()
	require.True(t, ok)
	assert.Equal(t, 10.0, ev.Progress)
	_, ok = <-slow.Events()
	assert.False(t, ok)
}

func TestHubSlowSubscriberDoesNotBlockHealthyOne(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	defer h.Close()

	slow, _ := h.Subscribe("sess-1")
	healthy, _ := h.Subscribe("sess-1")
	_ = slow // 从不消费

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			h.Publish("sess-1", Event{Type: EventProgress, Progress: float64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked by slow subscriber")
	}

	// healthy 在被摘除前至少收到缓冲量的事件
	received := 0
	for {
		select {
		case _, ok := <-healthy.Events():
			if !ok {
				assert.GreaterOrEqual(t, received, 4)
				return
			}
			received++
		case <-time.After(100 * time.Millisecond):
			assert.GreaterOrEqual(t, received, 4)
			return
		}
	}
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	h := NewHub(0, zap.NewNop())
	defer h.Close()

	sub, _ := h.Subscribe("sess-1")
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	assert.Equal(t, 0, h.SubscriberCount("sess-1"))
	_, ok := <-sub.Events()
	assert.False(t, ok)

	// 摘除后发布不会 panic
	h.Publish("sess-1", Event{Type: EventProgress})
}

func TestHubDropSessionClosesAllSubscribers(t *testing.T) {
	h := NewHub(0, zap.NewNop())
	defer h.Close()

	a, _ := h.Subscribe("sess-1")
	b, _ := h.Subscribe("sess-1")
	other, _ := h.Subscribe("sess-2")

	h.DropSession("sess-1")

	_, ok := <-a.Events()
	assert.False(t, ok)
	_, ok = <-b.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.SubscriberCount("sess-1"))
	assert.Equal(t, 1, h.SubscriberCount("sess-2"))
	_ = other
}

func TestHubCloseRejectsNewSubscribers(t *testing.T) {
	h := NewHub(0, zap.NewNop())

	sub, _ := h.Subscribe("sess-1")
	h.Close()
	h.Close() // 可重复

	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err := h.Subscribe("sess-1")
	assert.ErrorIs(t, err, ErrHubClosed)

	// 关闭后发布是空操作
	h.Publish("sess-1", Event{Type: EventProgress})
}

// stubSender 收集 Forward 投递的事件，可注入失败。
type stubSender struct {
	events []Event
	failAt int // 第 N 次 Send 失败，0 不启用
	calls  int
}

func (s *stubSender) Send(_ context.Context, ev Event) error {
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return errors.New("write failed")
	}
	s.events = append(s.events, ev)
	return nil
}

func TestForwardDrainsUntilTerminalEvent(t *testing.T) {
	h := NewHub(8, zap.NewNop())
	defer h.Close()

	sub, _ := h.Subscribe("sess-1")
	sender := &stubSender{}

	h.Publish("sess-1", Event{Type: EventStatus, Status: types.StatusCapturing})
	h.Publish("sess-1", Event{Type: EventProgress, Progress: 55})
	h.Publish("sess-1", Event{Type: EventResult, Result: &types.SessionResult{FramesCaptured: 5}})

	err := Forward(context.Background(), sub, sender)
	require.NoError(t, err)
	require.Len(t, sender.events, 3)
	assert.Equal(t, EventResult, sender.events[2].Type)
}

func TestForwardStopsOnCancelledStatus(t *testing.T) {
	h := NewHub(8, zap.NewNop())
	defer h.Close()

	sub, _ := h.Subscribe("sess-1")
	sender := &stubSender{}

	// 取消的会话只发布终态状态事件，没有 result / error 收尾
	h.Publish("sess-1", Event{Type: EventStatus, Status: types.StatusCapturing})
	h.Publish("sess-1", Event{Type: EventStatus, Status: types.StatusCancelled})
	h.Publish("sess-1", Event{Type: EventProgress, Status: types.StatusCancelled, Progress: 40})

	err := Forward(context.Background(), sub, sender)
	require.NoError(t, err)
	require.Len(t, sender.events, 2)
	assert.Equal(t, types.StatusCancelled, sender.events[1].Status)
}

func TestForwardStopsOnSendError(t *testing.T) {
	h := NewHub(8, zap.NewNop())
	defer h.Close()

	sub, _ := h.Subscribe("sess-1")
	sender := &stubSender{failAt: 2}

	h.Publish("sess-1", Event{Type: EventProgress, Progress: 10})
	h.Publish("sess-1", Event{Type: EventProgress, Progress: 20})

	err := Forward(context.Background(), sub, sender)
	require.Error(t, err)
	assert.Len(t, sender.events, 1)
}

func TestForwardReturnsWhenSubscriberClosed(t *testing.T) {
	h := NewHub(8, zap.NewNop())
	defer h.Close()

	sub, _ := h.Subscribe("sess-1")
	h.Publish("sess-1", Event{Type: EventProgress, Progress: 10})
	h.Unsubscribe(sub)

	sender := &stubSender{}
	err := Forward(context.Background(), sub, sender)
	require.NoError(t, err)
	// 关闭前已入队的事件仍然送达
	assert.Len(t, sender.events, 1)
}

func TestForwardHonorsContext(t *testing.T) {
	h := NewHub(8, zap.NewNop())
	defer h.Close()

	sub, _ := h.Subscribe("sess-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Forward(ctx, sub, &stubSender{})
	assert.ErrorIs(t, err, context.Canceled)
}
