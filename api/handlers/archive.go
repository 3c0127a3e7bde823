package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/api"
	"github.com/BaSui01/videoflow/store"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 🗃️ 归档接口 Handler
// =============================================================================

// ArchiveHandler 查询已归档的历史会话
type ArchiveHandler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewArchiveHandler 创建归档处理器
func NewArchiveHandler(st *store.Store, logger *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{store: st, logger: logger}
}

// intQuery 解析整数查询参数,缺省或非法时返回 0
func intQuery(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// toArchiveSummary 把归档记录转换为列表响应项
func toArchiveSummary(rec store.ArchivedSession) api.ArchivedSessionSummary {
	return api.ArchivedSessionSummary{
		SessionID:      rec.SessionID,
		URL:            rec.URL,
		Prompt:         rec.Prompt,
		Status:         rec.Status,
		Strategy:       rec.Strategy,
		FramesCaptured: rec.FramesCaptured,
		ErrorCode:      rec.ErrorCode,
		StartedAt:      rec.StartedAt,
		EndedAt:        rec.EndedAt,
	}
}

// archivedSessionDetail 单条归档的完整视图,含反序列化的结果
type archivedSessionDetail struct {
	api.ArchivedSessionSummary
	Progress     float64                    `json:"progress"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	Result       *api.SessionResultResponse `json:"result,omitempty"`
}

// HandleArchive 分页列出归档会话
// @Summary 查询归档会话列表
// @Description 按创建时间倒序分页返回历史会话,支持按终态过滤
// @Tags 归档
// @Produce json
// @Param status query string false "终态过滤(completed|failed|cancelled)"
// @Param limit query int false "单页条数,默认 50,上限 200"
// @Param offset query int false "偏移量"
// @Success 200 {object} api.ArchiveListResponse "归档列表"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/archive [get]
func (h *ArchiveHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && !types.SessionStatus(status).Valid() {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid status filter", h.logger)
		return
	}

	recs, total, err := h.store.ListArchivedSessions(r.Context(), store.ArchiveQuery{
		Status: status,
		Limit:  intQuery(r, "limit"),
		Offset: intQuery(r, "offset"),
	})
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "failed to list archived sessions", h.logger)
		return
	}

	resp := api.ArchiveListResponse{
		Sessions: make([]api.ArchivedSessionSummary, 0, len(recs)),
		Total:    total,
	}
	for _, rec := range recs {
		resp.Sessions = append(resp.Sessions, toArchiveSummary(rec))
	}
	WriteSuccess(w, resp)
}

// HandleArchivedSession 返回单条归档会话详情
// @Summary 查询归档会话
// @Description 返回归档会话的完整记录,含反序列化的分析结果
// @Tags 归档
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response "归档详情"
// @Failure 404 {object} Response "归档不存在"
// @Security ApiKeyAuth
// @Router /api/v1/archive/{id} [get]
func (h *ArchiveHandler) HandleArchivedSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	id, ok := extractSessionID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session ID", h.logger)
		return
	}

	rec, err := h.store.GetArchivedSession(r.Context(), id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	detail := archivedSessionDetail{
		ArchivedSessionSummary: toArchiveSummary(*rec),
		Progress:               rec.Progress,
		ErrorMessage:           rec.ErrorMessage,
	}
	if result, err := rec.Result(); err != nil {
		// 结果快照损坏不阻塞元数据查询
		h.logger.Warn("archived result decode failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	} else if result != nil {
		detail.Result = api.NewSessionResultResponse(result)
	}

	WriteSuccess(w, detail)
}
