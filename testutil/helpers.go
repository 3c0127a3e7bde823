// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	ok := testutil.WaitFor(func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/videoflow/broadcast"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回绑定测试期限的上下文:默认 30 秒,若 go test
// -timeout 的剩余时间更短则收紧到期限前 1 秒,让超时落在具体断言里
// 而不是被测试框架整体杀掉。
func TestContext(t *testing.T) context.Context {
	timeout := 30 * time.Second
	if d, ok := t.Deadline(); ok {
		if remain := time.Until(d) - time.Second; remain > 0 && remain < timeout {
			timeout = remain
		}
	}
	return TestContextWithTimeout(t, timeout)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	// 最后一次睡醒可能恰好跨过 deadline,条件其实已经满足了
	return condition()
}

// =============================================================================
// 📡 事件流辅助
// =============================================================================

// WaitForEventType 消费订阅通道直到出现指定类型的事件或超时。
// 通道在此之前关闭也算失败。
func WaitForEventType(ch <-chan broadcast.Event, eventType broadcast.EventType, timeout time.Duration) (broadcast.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return broadcast.Event{}, false
			}
			if ev.Type == eventType {
				return ev, true
			}
		case <-deadline:
			return broadcast.Event{}, false
		}
	}
}
