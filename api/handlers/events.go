package handlers

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/broadcast"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 📡 事件流接口 Handler
// =============================================================================

// HandleEvents 把会话事件流升级为 WebSocket 推送
// @Summary 订阅会话事件流
// @Description 升级为 WebSocket，按发生顺序推送 status/progress/result/error 事件；
// @Description 会话终态事件送达后连接以 NormalClosure 关闭
// @Tags 会话
// @Param id path string true "会话 ID"
// @Success 101 {string} string "协议切换"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "会话不存在"
// @Security ApiKeyAuth
// @Router /api/v1/sessions/{id}/events [get]
func (h *SessionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	id, ok := extractSessionID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session ID", h.logger)
		return
	}

	// 先订阅再取快照,两步之间发布的事件不会丢
	sub, err := h.manager.Hub().Subscribe(id)
	if err != nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "event hub is shut down", h.logger)
		return
	}
	defer h.manager.Hub().Unsubscribe(sub)

	sess, err := h.manager.GetStatus(id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept 失败时已写入 HTTP 错误响应
		h.logger.Warn("websocket accept failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
		return
	}

	fw := broadcast.NewWSForwarder(conn, h.logger)
	defer fw.Close()

	// 纯推送流:丢弃客户端消息,客户端断开时取消 ctx
	ctx := conn.CloseRead(r.Context())

	// 迟到订阅:会话已终态时合成单条收尾事件后正常关闭
	if sess.Status.IsTerminal() {
		if err := fw.Send(ctx, terminalEvent(sess)); err != nil {
			h.logger.Debug("terminal event delivery failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
		return
	}

	if err := broadcast.Forward(ctx, sub, fw); err != nil {
		// 客户端断开或写失败,流水线不受影响
		h.logger.Debug("event stream ended",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

// terminalEvent 从终态快照合成收尾事件。completed 带结果,
// failed 带错误。取消是正常终止,快照里的 SESSION_CANCELLED
// 占位错误不当成 error 事件发布,只给状态。
func terminalEvent(sess *types.Session) broadcast.Event {
	ev := broadcast.Event{
		SessionID: sess.ID,
		Status:    sess.Status,
		Progress:  sess.Progress,
		Timestamp: time.Now(),
	}
	switch {
	case sess.Status == types.StatusCancelled:
		ev.Type = broadcast.EventStatus
	case sess.Result != nil:
		ev.Type = broadcast.EventResult
		ev.Result = sess.Result
	case sess.Error != nil:
		ev.Type = broadcast.EventError
		ev.Message = sess.Error.Message
		ev.Error = sess.Error
	default:
		ev.Type = broadcast.EventStatus
	}
	return ev
}
