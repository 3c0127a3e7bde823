package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/api"
	"github.com/BaSui01/videoflow/session"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 🎬 会话接口 Handler
// =============================================================================

// SessionHandler 分析会话的创建、查询、取消与结果获取
type SessionHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(manager *session.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

// extractSessionID 从请求中提取会话 ID（Go 1.22+ PathValue 优先，回退到路径解析）
func extractSessionID(r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		// 回退：从路径手动解析
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 4 {
			return "", false
		}
		id = parts[3]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

// HandleSessions 处理会话集合请求
// @Summary 创建分析会话
// @Description 提交页面 URL 与分析指令，启动一次视频分析会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body api.StartSessionRequest true "会话请求"
// @Success 201 {object} api.StartSessionResponse "会话已创建"
// @Failure 400 {object} Response "无效请求"
// @Failure 429 {object} Response "并发会话数已达上限"
// @Failure 503 {object} Response "服务不可用"
// @Security ApiKeyAuth
// @Router /api/v1/sessions [post]
func (h *SessionHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.StartSessionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := validateStartRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	sess, err := h.manager.Start(r.Context(), types.AnalysisRequest{
		URL:     strings.TrimSpace(req.URL),
		Prompt:  req.Prompt,
		Options: req.Options.ToTypes(),
	})
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("url", sess.URL),
	)

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data: api.StartSessionResponse{
			SessionID: sess.ID,
			Status:    string(sess.Status),
			CreatedAt: sess.CreatedAt,
		},
	})
}

// validateStartRequest 验证会话创建请求
func validateStartRequest(req *api.StartSessionRequest) *types.Error {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt is required")
	}

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return types.NewError(types.ErrInvalidRequest, "url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return types.NewError(types.ErrInvalidRequest, "url must be an absolute http(s) URL")
	}

	if opts := req.Options; opts != nil {
		if opts.Concurrency < 0 {
			return types.NewError(types.ErrInvalidRequest, "concurrency cannot be negative")
		}
		if opts.BatchDelayMs < 0 {
			return types.NewError(types.ErrInvalidRequest, "batch_delay_ms cannot be negative")
		}
		if opts.MaxFrames < 0 {
			return types.NewError(types.ErrInvalidRequest, "max_frames cannot be negative")
		}
	}
	return nil
}

// HandleSession 处理单个会话的查询与取消
// @Summary 查询或取消会话
// @Description GET 返回会话状态与进度，DELETE 取消仍在运行的会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} api.SessionStatusResponse "会话状态"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "会话不存在"
// @Security ApiKeyAuth
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := extractSessionID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session ID", h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleStatus(w, id)
	case http.MethodDelete:
		h.handleCancel(w, id)
	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// handleStatus 返回会话快照
func (h *SessionHandler) handleStatus(w http.ResponseWriter, id string) {
	sess, err := h.manager.GetStatus(id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewSessionStatusResponse(sess))
}

// handleCancel 取消会话。已终态的会话取消是幂等空操作。
func (h *SessionHandler) handleCancel(w http.ResponseWriter, id string) {
	if err := h.manager.Cancel(id); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("session cancel requested", zap.String("session_id", id))
	WriteSuccess(w, map[string]string{"message": "session cancelled"})
}

// HandleResult 返回完成会话的分析结果
// @Summary 获取会话结果
// @Description 会话完成后返回综合结论与逐帧分析；未终态返回 409
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} api.SessionResultResponse "分析结果"
// @Failure 404 {object} Response "会话不存在"
// @Failure 409 {object} Response "结果尚未就绪"
// @Security ApiKeyAuth
// @Router /api/v1/sessions/{id}/result [get]
func (h *SessionHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	id, ok := extractSessionID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session ID", h.logger)
		return
	}

	result, err := h.manager.GetResult(id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewSessionResultResponse(result))
}
