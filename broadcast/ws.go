package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/types"
)

// Sender 把事件投递到某个外部连接。
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// WSForwarder 把 WebSocket 连接适配为 Sender。
// 写操作通过 mutex 保护，因为 WebSocket 不支持并发写。
type WSForwarder struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

var _ Sender = (*WSForwarder)(nil)

// NewWSForwarder 从已建立的 WebSocket 连接创建转发器。
func NewWSForwarder(conn *websocket.Conn, logger *zap.Logger) *WSForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSForwarder{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_forwarder")),
	}
}

// Send 把事件序列化为 JSON 并写入连接。
func (w *WSForwarder) Send(ctx context.Context, ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("forwarder closed")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close 关闭底层连接，可重复调用。
func (w *WSForwarder) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close(websocket.StatusNormalClosure, "stream complete")
}

// Forward 把订阅者的事件流泵入 sender，直到通道关闭、ctx 结束
// 或写入失败。返回首个写入错误；正常耗尽返回 nil。
// 收到终态事件后正常结束：完成会话以 result 收尾，失败会话以 error
// 收尾，取消会话只发布 cancelled 状态事件，因此状态本身也是终止条件。
func Forward(ctx context.Context, sub *Subscriber, sender Sender) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := sender.Send(ctx, ev); err != nil {
				return err
			}
			if ev.Type == EventResult || ev.Type == EventError || ev.Status == types.StatusCancelled {
				return nil
			}
		}
	}
}
