package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/videoflow/api"
	"github.com/BaSui01/videoflow/store"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// ⚙️ 分析预设 Handler
// =============================================================================

// SettingsHandler 命名分析预设的 CRUD 操作
type SettingsHandler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewSettingsHandler 创建预设处理器
func NewSettingsHandler(st *store.Store, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{store: st, logger: logger}
}

// extractSettingsName 从请求中提取预设名（Go 1.22+ PathValue 优先，回退到路径解析）
func extractSettingsName(r *http.Request) (string, bool) {
	name := r.PathValue("name")
	if name == "" {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 4 {
			return "", false
		}
		name = parts[3]
	}
	if name == "" {
		return "", false
	}
	return name, true
}

// toSettingsResponse 把预设记录转换为响应
func toSettingsResponse(s store.AnalysisSettings) api.AnalysisSettingsResponse {
	return api.AnalysisSettingsResponse{
		ID:           s.ID,
		Name:         s.Name,
		Concurrency:  s.Concurrency,
		BatchDelayMs: s.BatchDelayMs,
		MaxFrames:    s.MaxFrames,
		VisionModel:  s.VisionModel,
		IsDefault:    s.IsDefault,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// HandleSettings 处理预设集合请求
// @Summary 列出或保存分析预设
// @Description GET 列出全部预设，POST 创建或同名覆盖预设
// @Tags 预设
// @Accept json
// @Produce json
// @Param request body api.AnalysisSettingsRequest true "预设内容"
// @Success 200 {array} api.AnalysisSettingsResponse "预设列表"
// @Success 201 {object} api.AnalysisSettingsResponse "预设已保存"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/settings [get]
func (h *SettingsHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleSave(w, r)
	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// handleList 列出全部预设
func (h *SettingsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListSettings(r.Context())
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "failed to list settings", h.logger)
		return
	}

	resp := make([]api.AnalysisSettingsResponse, 0, len(all))
	for _, s := range all {
		resp = append(resp, toSettingsResponse(s))
	}
	WriteSuccess(w, resp)
}

// handleSave 创建或覆盖预设
func (h *SettingsHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.AnalysisSettingsRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := validateSettingsRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	settings := &store.AnalysisSettings{
		Name:         strings.TrimSpace(req.Name),
		Concurrency:  req.Concurrency,
		BatchDelayMs: req.BatchDelayMs,
		MaxFrames:    req.MaxFrames,
		VisionModel:  req.VisionModel,
		IsDefault:    req.IsDefault,
	}
	if err := h.store.SaveSettings(r.Context(), settings); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.logger.Info("analysis settings saved",
		zap.String("name", settings.Name),
		zap.Bool("default", settings.IsDefault),
	)

	WriteJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    toSettingsResponse(*settings),
	})
}

// validateSettingsRequest 验证预设保存请求
func validateSettingsRequest(req *api.AnalysisSettingsRequest) *types.Error {
	if strings.TrimSpace(req.Name) == "" {
		return types.NewError(types.ErrInvalidRequest, "name is required")
	}
	if req.Concurrency < 0 {
		return types.NewError(types.ErrInvalidRequest, "concurrency cannot be negative")
	}
	if req.BatchDelayMs < 0 {
		return types.NewError(types.ErrInvalidRequest, "batch_delay_ms cannot be negative")
	}
	if req.MaxFrames < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_frames cannot be negative")
	}
	return nil
}

// HandleSettingsByName 处理单个预设的查询与删除
// @Summary 查询或删除分析预设
// @Description GET 按名称返回预设，DELETE 删除预设
// @Tags 预设
// @Produce json
// @Param name path string true "预设名"
// @Success 200 {object} api.AnalysisSettingsResponse "预设内容"
// @Failure 404 {object} Response "预设不存在"
// @Security ApiKeyAuth
// @Router /api/v1/settings/{name} [get]
func (h *SettingsHandler) HandleSettingsByName(w http.ResponseWriter, r *http.Request) {
	name, ok := extractSettingsName(r)
	if !ok {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid settings name", h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, name)
	case http.MethodDelete:
		h.handleDelete(w, r, name)
	default:
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

// handleGet 按名称返回预设
func (h *SettingsHandler) handleGet(w http.ResponseWriter, r *http.Request, name string) {
	settings, err := h.store.GetSettings(r.Context(), name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "settings not found", h.logger)
		return
	}
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "failed to load settings", h.logger)
		return
	}
	WriteSuccess(w, toSettingsResponse(*settings))
}

// handleDelete 按名称删除预设
func (h *SettingsHandler) handleDelete(w http.ResponseWriter, r *http.Request, name string) {
	err := h.store.DeleteSettings(r.Context(), name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "settings not found", h.logger)
		return
	}
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "failed to delete settings", h.logger)
		return
	}

	h.logger.Info("analysis settings deleted", zap.String("name", name))
	WriteSuccess(w, map[string]string{"message": "settings deleted"})
}
