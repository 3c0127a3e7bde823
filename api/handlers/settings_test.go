package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/api"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 🧪 SettingsHandler 测试
// =============================================================================

func newSettingsHandler(t *testing.T) *SettingsHandler {
	t.Helper()
	return NewSettingsHandler(newHandlerStore(t), zap.NewNop())
}

// saveSettings 通过 POST 保存预设并返回响应记录器
func saveSettings(t *testing.T, h *SettingsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/settings", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	h.HandleSettings(w, r)
	return w
}

func decodeSettings(t *testing.T, w *httptest.ResponseRecorder) api.AnalysisSettingsResponse {
	t.Helper()
	var resp struct {
		Success bool                         `json:"success"`
		Data    api.AnalysisSettingsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestHandleSettings_SaveAndGet(t *testing.T) {
	h := newSettingsHandler(t)

	w := saveSettings(t, h, `{"name":"fast-scan","concurrency":4,"batch_delay_ms":500,"max_frames":10,"vision_model":"gpt-4o-mini"}`)
	require.Equal(t, http.StatusCreated, w.Code, "unexpected response: %s", w.Body.String())

	saved := decodeSettings(t, w)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "fast-scan", saved.Name)
	assert.Equal(t, 4, saved.Concurrency)
	assert.Equal(t, 10, saved.MaxFrames)
	assert.False(t, saved.IsDefault)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/settings/fast-scan", nil)
	h.HandleSettingsByName(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeSettings(t, w)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "gpt-4o-mini", got.VisionModel)
}

func TestHandleSettings_UpsertByName(t *testing.T) {
	h := newSettingsHandler(t)

	w := saveSettings(t, h, `{"name":"fast-scan","max_frames":10}`)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decodeSettings(t, w)

	// 同名保存覆盖而不是新建
	w = saveSettings(t, h, `{"name":"fast-scan","max_frames":20}`)
	require.Equal(t, http.StatusCreated, w.Code)
	second := decodeSettings(t, w)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 20, second.MaxFrames)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	h.HandleSettings(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []api.AnalysisSettingsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 1)
}

func TestHandleSettings_DefaultIsExclusive(t *testing.T) {
	h := newSettingsHandler(t)

	w := saveSettings(t, h, `{"name":"preset-a","is_default":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = saveSettings(t, h, `{"name":"preset-b","is_default":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// 新默认位顶掉旧默认位
	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/settings/preset-a", nil)
	h.HandleSettingsByName(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeSettings(t, w).IsDefault)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/v1/settings/preset-b", nil)
	h.HandleSettingsByName(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeSettings(t, w).IsDefault)
}

func TestHandleSettings_Validation(t *testing.T) {
	h := newSettingsHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"max_frames":10}`},
		{"blank name", `{"name":"   "}`},
		{"negative concurrency", `{"name":"x","concurrency":-1}`},
		{"negative batch delay", `{"name":"x","batch_delay_ms":-5}`},
		{"negative max frames", `{"name":"x","max_frames":-2}`},
		{"unknown field", `{"name":"x","frames":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := saveSettings(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", w.Body.String())

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
		})
	}
}

func TestHandleSettings_GetNotFound(t *testing.T) {
	h := newSettingsHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/settings/no-such-preset", nil)
	h.HandleSettingsByName(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSettings_Delete(t *testing.T) {
	h := newSettingsHandler(t)

	w := saveSettings(t, h, `{"name":"stale"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/settings/stale", nil)
	h.HandleSettingsByName(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	// 删除不是幂等的:目标不存在时返回 404
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodDelete, "/api/v1/settings/stale", nil)
	h.HandleSettingsByName(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSettings_MethodNotAllowed(t *testing.T) {
	h := newSettingsHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/settings", nil)
	h.HandleSettings(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPatch, "/api/v1/settings/some-preset", nil)
	h.HandleSettingsByName(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestExtractSettingsName(t *testing.T) {
	tests := []struct {
		path     string
		wantName string
		wantOK   bool
	}{
		{"/api/v1/settings/fast-scan", "fast-scan", true},
		{"/api/v1/settings", "", false},
		{"/api/v1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			name, ok := extractSettingsName(r)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
