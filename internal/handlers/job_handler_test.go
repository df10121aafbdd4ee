package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/dispatcher"
	"github.com/posefactory/renderq/internal/models"
	"github.com/posefactory/renderq/internal/store"
)

func newTestHandler(t *testing.T, st store.Store) *JobHandler {
	t.Helper()

	scriptsDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(scriptsDir, "render"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "render", "r.py"), []byte("print('render')\n"), 0644))

	config := common.NewDefaultConfig()
	config.Dispatcher.DataDir = t.TempDir()
	config.Dispatcher.ScriptsDir = scriptsDir
	config.Dispatcher.PollInterval = "10ms"

	service := dispatcher.NewService(st, config, common.GetLogger())
	return NewJobHandler(service, common.GetLogger())
}

func TestSubmitHandler(t *testing.T) {
	handler := newTestHandler(t, store.NewMemoryStore())

	body := `{"kind":"render","script":"render/r.py","characters":["alice"]}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, common.IsValidSlug(resp.JobID))
	require.Equal(t, models.StatusPending, resp.Status)
}

func TestSubmitHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"sculpt","script":"render/r.py"}`},
		{"missing script", `{"kind":"render"}`},
		{"traversal output dir", `{"kind":"render","script":"render/r.py","output_dir":"../../etc"}`},
		{"malformed json", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, store.NewMemoryStore())

			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.SubmitHandler(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, "validation", resp.Code)
			require.NotEmpty(t, resp.Error)
		})
	}
}

func TestSubmitHandlerMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	st := store.NewMemoryStore()
	handler := newTestHandler(t, st)
	id := "render_20260101_120000_abcd1234"
	require.NoError(t, st.Put(context.Background(), models.ResultsKeyPrefix(id)+"log.txt", []byte("ok")))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req, id)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "completed", resp["status"])
	require.Equal(t, id, resp["job_id"])
}

func TestStatusHandlerRejectsInvalidID(t *testing.T) {
	handler := newTestHandler(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/jobs/..%2F..%2Fetc", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req, "../../etc")

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "validation", resp.Code)
}

func TestStatusHandlerUnknownID(t *testing.T) {
	handler := newTestHandler(t, store.NewMemoryStore())
	id := "nonexistent_20200101_000000_abcdef12"

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req, id)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "unknown", resp["status"])
}

func TestDownloadHandlerNotFound(t *testing.T) {
	handler := newTestHandler(t, store.NewMemoryStore())
	id := "render_20260101_120000_abcd1234"

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/download", nil)
	rec := httptest.NewRecorder()
	handler.DownloadHandler(rec, req, id)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "not_found", resp.Code)
}

func TestDownloadHandlerForce(t *testing.T) {
	st := store.NewMemoryStore()
	handler := newTestHandler(t, st)
	id := "render_20260101_120000_abcd1234"
	require.NoError(t, st.Put(context.Background(), models.ResultsKeyPrefix(id)+"log.txt", []byte("done")))

	dest := t.TempDir()
	body, _ := json.Marshal(map[string]interface{}{"dest_dir": dest, "force": true})
	req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/download", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	handler.DownloadHandler(rec, req, id)

	require.Equal(t, http.StatusOK, rec.Code)

	data, err := os.ReadFile(filepath.Join(dest, id, "log.txt"))
	require.NoError(t, err)
	require.Equal(t, "done", string(data))
}

func TestListHandler(t *testing.T) {
	st := store.NewMemoryStore()
	handler := newTestHandler(t, st)

	// Submit through the handler so a local record exists.
	body := `{"kind":"render","script":"render/r.py"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec = httptest.NewRecorder()
	handler.ListHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, models.StatusPending, jobs[0].Status)
}
