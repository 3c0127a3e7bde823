package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
)

// EventType 事件类型
type EventType string

const (
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
	EventError    EventType = "error"
	EventResult   EventType = "result"
)

// Event 会话进度通知。按事件类型填充对应字段，
// Timestamp 由 Publish 在缺省时补齐。
type Event struct {
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	Status    types.SessionStatus  `json:"status,omitempty"`
	Progress  float64              `json:"progress"`
	Message   string               `json:"message,omitempty"`
	Result    *types.SessionResult `json:"result,omitempty"`
	Error     *types.Error         `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// ErrHubClosed 集线器已关闭
var ErrHubClosed = errors.New("broadcast hub closed")

// Subscriber 单个订阅者，持有独立的缓冲事件通道。
type Subscriber struct {
	ID        string
	SessionID string

	ch        chan Event
	closeOnce sync.Once
}

// Events 返回只读事件通道；集线器摘除订阅者时通道被关闭。
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub 按会话 ID 分发事件的集线器。
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscriber // sessionID → subID → sub
	bufferSize  int
	closed      bool
	logger      *zap.Logger
}

// NewHub 创建集线器；bufferSize ≤ 0 时取默认 16。
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]map[string]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logger.With(zap.String("component", "broadcast")),
	}
}

// Subscribe 订阅指定会话的事件流。
func (h *Hub) Subscribe(sessionID string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscriber{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ch:        make(chan Event, h.bufferSize),
	}
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[string]*Subscriber)
	}
	h.subscribers[sessionID][sub.ID] = sub

	h.logger.Debug("subscriber added",
		zap.String("session_id", sessionID),
		zap.String("subscriber_id", sub.ID))
	return sub, nil
}

// Unsubscribe 摘除订阅者并关闭其通道，可重复调用。
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if m, ok := h.subscribers[sub.SessionID]; ok {
		delete(m, sub.ID)
		if len(m) == 0 {
			delete(h.subscribers, sub.SessionID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish 向会话的全部订阅者投递事件。投递永不阻塞：
// 缓冲已满的订阅者被视为死亡，惰性摘除。
func (h *Hub) Publish(sessionID string, ev Event) {
	ev.SessionID = sessionID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	subs := make([]*Subscriber, 0, len(h.subscribers[sessionID]))
	for _, sub := range h.subscribers[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var stale []*Subscriber
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			// 缓冲打满说明消费方已死或太慢，摘除它
			stale = append(stale, sub)
		}
	}

	for _, sub := range stale {
		h.logger.Warn("dropping slow subscriber",
			zap.String("session_id", sessionID),
			zap.String("subscriber_id", sub.ID))
		h.Unsubscribe(sub)
	}
}

// SubscriberCount 返回会话当前的订阅者数量。
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

// DropSession 摘除会话的全部订阅者（会话被逐出时调用）。
func (h *Hub) DropSession(sessionID string) {
	h.mu.Lock()
	subs := h.subscribers[sessionID]
	delete(h.subscribers, sessionID)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Close 关闭集线器并摘除所有订阅者。
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := h.subscribers
	h.subscribers = make(map[string]map[string]*Subscriber)
	h.mu.Unlock()

	for _, m := range all {
		for _, sub := range m {
			sub.close()
		}
	}
	h.logger.Info("broadcast hub closed")
}
