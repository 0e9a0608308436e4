package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlieai/graphengine/pkg/fetcher"
	"github.com/pixlieai/graphengine/pkg/graph"
	"github.com/pixlieai/graphengine/pkg/kv"
	"github.com/pixlieai/graphengine/pkg/registry"
	"github.com/pixlieai/graphengine/pkg/supervisor"
)

func newTestServer(t *testing.T) (*Server, string, *registry.Registry) {
	t.Helper()
	reg := registry.New(kv.NewMemStore())
	sup := supervisor.New(func(projectID string, onTickLater func(), onFetchResult func(graph.NodeID, graph.FetchResult, error)) (*graph.Engine, error) {
		return graph.OpenProject(projectID, kv.NewMemStore(), graph.EngineOptions{OnTickLater: onTickLater, OnFetchResult: onFetchResult})
	}, fetcher.New())
	configPath := filepath.Join(t.TempDir(), "settings.toml")
	return New(sup, reg, configPath), configPath, reg
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSettingsStatusIncompleteByDefault(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s.buildRouter(), http.MethodGet, "/api/settings/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage_dir_not_configured")
}

func TestSettingsPutThenGet(t *testing.T) {
	s, _, reg := newTestServer(t)
	mux := s.buildRouter()

	rec := doJSON(t, mux, http.MethodPut, "/api/settings", map[string]string{"path_to_storage_dir": "/data"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/data")

	rec = doJSON(t, mux, http.MethodGet, "/api/settings/status", nil)
	assert.Contains(t, rec.Body.String(), `"complete":true`)

	// The PUT also mirrors into the registry's workspace record, not just the settings file.
	ws, err := reg.GetWorkspace(registry.DefaultWorkspaceID)
	require.NoError(t, err)
	assert.Contains(t, ws.Settings, "path_to_storage_dir")
}

func TestCreateAndListProjects(t *testing.T) {
	s, _, _ := newTestServer(t)
	mux := s.buildRouter()

	rec := doJSON(t, mux, http.MethodPost, "/api/projects", map[string]string{"name": "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "demo")
}

func TestEngineNodesAddAndListLink(t *testing.T) {
	s, _, _ := newTestServer(t)
	mux := s.buildRouter()

	body := map[string]any{"type": "Link", "data": map[string]string{"url": "https://example.com/page"}}
	rec := doJSON(t, mux, http.MethodPost, "/api/engine/proj-1/nodes", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	eng, err := s.supervisor.Engine("proj-1")
	require.NoError(t, err)
	eng.Tick(context.Background())

	rec = doJSON(t, mux, http.MethodGet, "/api/engine/proj-1/nodes?label=Link", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/page")

	rec = doJSON(t, mux, http.MethodGet, "/api/engine/proj-1/labels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Link")
}

func TestEngineQueryUnknownNodeNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	mux := s.buildRouter()
	rec := doJSON(t, mux, http.MethodGet, "/api/engine/proj-1/query/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
