package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/report"
	"github.com/BaSui01/videoflow/session"
	"github.com/BaSui01/videoflow/store"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 📄 报告接口 Handler
// =============================================================================

// ReportHandler 渲染会话分析报告。活跃会话直接读管理器,
// 已被留存清理的会话回退到归档库。
type ReportHandler struct {
	manager  *session.Manager
	store    *store.Store // 可为 nil(未配置数据库时无归档回退)
	renderer *report.Renderer
	logger   *zap.Logger
}

// NewReportHandler 创建报告处理器
func NewReportHandler(manager *session.Manager, st *store.Store, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		manager:  manager,
		store:    st,
		renderer: report.NewRenderer(logger),
		logger:   logger,
	}
}

// HandleReport 渲染并下载会话报告
// @Summary 导出会话报告
// @Description 把完成会话的分析结果渲染为 HTML、Markdown 或 CSV
// @Tags 会话
// @Produce html
// @Param id path string true "会话 ID"
// @Param format query string false "报告格式(html|md|csv),默认 html"
// @Success 200 {string} string "报告内容"
// @Failure 400 {object} Response "不支持的格式"
// @Failure 404 {object} Response "会话不存在"
// @Failure 409 {object} Response "结果尚未就绪"
// @Security ApiKeyAuth
// @Router /api/v1/sessions/{id}/report [get]
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	id, ok := extractSessionID(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session ID", h.logger)
		return
	}

	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	sess, err := h.lookupSession(r, id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	data, err := h.renderer.Render(sess, format)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	disposition := "attachment"
	if format == report.FormatHTML {
		// HTML 直接在浏览器里看,其余格式作为下载
		disposition = "inline"
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, format.Filename(id)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("report write failed",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
}

// lookupSession 先查活跃会话,SESSION_NOT_FOUND 时回退归档
func (h *ReportHandler) lookupSession(r *http.Request, id string) (*types.Session, error) {
	sess, err := h.manager.GetStatus(id)
	if err == nil {
		return sess, nil
	}
	if !types.IsCode(err, types.ErrSessionNotFound) || h.store == nil {
		return nil, err
	}

	rec, archErr := h.store.GetArchivedSession(r.Context(), id)
	if archErr != nil {
		return nil, archErr
	}
	return sessionFromArchive(rec)
}

// sessionFromArchive 从归档记录重建会话快照,仅报告渲染需要的字段
func sessionFromArchive(rec *store.ArchivedSession) (*types.Session, error) {
	result, err := rec.Result()
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "archived result is corrupt").WithCause(err)
	}

	sess := &types.Session{
		ID:        rec.SessionID,
		URL:       rec.URL,
		Prompt:    rec.Prompt,
		Status:    types.SessionStatus(rec.Status),
		Progress:  rec.Progress,
		Result:    result,
		CreatedAt: rec.StartedAt,
		UpdatedAt: rec.UpdatedAt,
		EndedAt:   rec.EndedAt,
	}
	if rec.ErrorCode != "" {
		sess.Error = types.NewError(types.ErrorCode(rec.ErrorCode), rec.ErrorMessage)
	}
	return sess, nil
}
