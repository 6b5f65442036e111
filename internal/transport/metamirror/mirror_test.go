package metamirror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirstore/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func TestServer_MetadataMirrorsCapabilityStatement(t *testing.T) {
	cat := testCatalog(t)
	srv := NewServer(":0", cat, []string{"https://dashboard.example.org"}, slog.Default())
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metadata")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "CapabilityStatement", body["resourceType"])
}

func TestServer_MetaAliasServesSameDocument(t *testing.T) {
	cat := testCatalog(t)
	srv := NewServer(":0", cat, nil, slog.Default())
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/$meta")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RejectsNonGet(t *testing.T) {
	cat := testCatalog(t)
	srv := NewServer(":0", cat, nil, slog.Default())
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/metadata", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_AppliesCORSAllowlist(t *testing.T) {
	cat := testCatalog(t)
	srv := NewServer(":0", cat, []string{"https://dashboard.example.org"}, slog.Default())
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metadata", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.org")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://dashboard.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
}
