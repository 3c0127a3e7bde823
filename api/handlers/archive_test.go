package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/api"
	"github.com/BaSui01/videoflow/store"
	"github.com/BaSui01/videoflow/types"
)

// =============================================================================
// 🧪 ArchiveHandler 测试
// =============================================================================

// archivedFailed 构造失败终态会话并写入归档
func archivedFailed(t *testing.T, st *store.Store, id string) *types.Session {
	t.Helper()
	now := time.Now().UTC()
	ended := now.Add(5 * time.Second)
	sess := &types.Session{
		ID:        id,
		URL:       "https://example.com/broken",
		Prompt:    "summarize this video",
		Status:    types.StatusFailed,
		Progress:  5,
		Error:     types.NewError(types.ErrNavigationFailed, "failed to navigate to target URL"),
		CreatedAt: now,
		EndedAt:   &ended,
	}
	require.NoError(t, st.ArchiveSession(context.Background(), sess))
	return sess
}

func getArchive(t *testing.T, h *ArchiveHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if strings.HasPrefix(path, "/api/v1/archive/") {
		h.HandleArchivedSession(w, r)
	} else {
		h.HandleArchive(w, r)
	}
	return w
}

func decodeArchiveList(t *testing.T, w *httptest.ResponseRecorder) api.ArchiveListResponse {
	t.Helper()
	var resp struct {
		Success bool                    `json:"success"`
		Data    api.ArchiveListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestHandleArchive_List(t *testing.T) {
	st := newHandlerStore(t)
	archivedCompleted(t, st, "44444444-4444-4444-4444-444444444441")
	archivedCompleted(t, st, "44444444-4444-4444-4444-444444444442")
	archivedFailed(t, st, "44444444-4444-4444-4444-444444444443")

	h := NewArchiveHandler(st, zap.NewNop())
	w := getArchive(t, h, "/api/v1/archive")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeArchiveList(t, w)
	assert.Equal(t, int64(3), data.Total)
	require.Len(t, data.Sessions, 3)
	for _, s := range data.Sessions {
		assert.NotEmpty(t, s.SessionID)
		assert.NotEmpty(t, s.URL)
		assert.NotEmpty(t, s.Status)
	}
}

func TestHandleArchive_StatusFilter(t *testing.T) {
	st := newHandlerStore(t)
	archivedCompleted(t, st, "55555555-5555-5555-5555-555555555551")
	archivedFailed(t, st, "55555555-5555-5555-5555-555555555552")

	h := NewArchiveHandler(st, zap.NewNop())
	w := getArchive(t, h, "/api/v1/archive?status=failed")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeArchiveList(t, w)
	assert.Equal(t, int64(1), data.Total)
	require.Len(t, data.Sessions, 1)
	assert.Equal(t, string(types.StatusFailed), data.Sessions[0].Status)
	assert.Equal(t, string(types.ErrNavigationFailed), data.Sessions[0].ErrorCode)
}

func TestHandleArchive_InvalidStatusFilter(t *testing.T) {
	h := NewArchiveHandler(newHandlerStore(t), zap.NewNop())

	w := getArchive(t, h, "/api/v1/archive?status=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
}

func TestHandleArchive_Pagination(t *testing.T) {
	st := newHandlerStore(t)
	for _, id := range []string{
		"66666666-6666-6666-6666-666666666661",
		"66666666-6666-6666-6666-666666666662",
		"66666666-6666-6666-6666-666666666663",
	} {
		archivedCompleted(t, st, id)
	}

	h := NewArchiveHandler(st, zap.NewNop())
	w := getArchive(t, h, "/api/v1/archive?limit=2&offset=2")
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeArchiveList(t, w)
	// 总数不受分页影响,便于前端翻页
	assert.Equal(t, int64(3), data.Total)
	assert.Len(t, data.Sessions, 1)
}

func TestHandleArchivedSession_Detail(t *testing.T) {
	st := newHandlerStore(t)
	sess := archivedCompleted(t, st, "77777777-7777-7777-7777-777777777771")

	h := NewArchiveHandler(st, zap.NewNop())
	w := getArchive(t, h, "/api/v1/archive/"+sess.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data archivedSessionDetail `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, sess.ID, resp.Data.SessionID)
	assert.Equal(t, string(types.StatusCompleted), resp.Data.Status)
	assert.InDelta(t, 100, resp.Data.Progress, 0.01)
	require.NotNil(t, resp.Data.Result)
	require.NotNil(t, resp.Data.Result.Synthesis)
	assert.Contains(t, resp.Data.Result.Synthesis.Response, "dashboard redesign")
}

func TestHandleArchivedSession_FailureRecord(t *testing.T) {
	st := newHandlerStore(t)
	sess := archivedFailed(t, st, "77777777-7777-7777-7777-777777777772")

	h := NewArchiveHandler(st, zap.NewNop())
	w := getArchive(t, h, "/api/v1/archive/"+sess.ID)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data archivedSessionDetail `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrNavigationFailed), resp.Data.ErrorCode)
	assert.Equal(t, "failed to navigate to target URL", resp.Data.ErrorMessage)
	assert.Nil(t, resp.Data.Result)
}

func TestHandleArchivedSession_NotFound(t *testing.T) {
	h := NewArchiveHandler(newHandlerStore(t), zap.NewNop())

	w := getArchive(t, h, "/api/v1/archive/no-such-session")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrSessionNotFound), resp.Error.Code)
}

func TestHandleArchive_MethodNotAllowed(t *testing.T) {
	h := NewArchiveHandler(newHandlerStore(t), zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/archive", nil)
	h.HandleArchive(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodDelete, "/api/v1/archive/some-id", nil)
	h.HandleArchivedSession(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
