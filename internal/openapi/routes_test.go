package openapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestServeEmbeddedYAML(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/v1/openapi")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "yaml")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, embeddedSpec, body)
}

func TestServeJSONDocumentsZoneRoutes(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/v1/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "3.0.3", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	for _, path := range []string{"/v1/zones", "/v1/zones/{zone_id}/volume", "/v1/control/remote-volume", "/v1/sync"} {
		require.Contains(t, paths, path)
	}
}

func TestSpecPathOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.1.0\n"), 0o644))
	t.Setenv("OPENAPI_SPEC_PATH", path)

	spec, err := loadSpec()
	require.NoError(t, err)
	require.Equal(t, "openapi: 3.1.0\n", string(spec))

	t.Setenv("OPENAPI_SPEC_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = loadSpec()
	require.Error(t, err)
}
