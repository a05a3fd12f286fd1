package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Drosera/pkg/modelstore"
)

func setupAPIServer(t *testing.T) *Server {
	t.Helper()
	db, err := initDB(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, modelstore.SetupSchema(db), "failed to set up schema")

	store, err := modelstore.NewStore(db)
	require.NoError(t, err, "NewStore() failed")
	t.Cleanup(store.Close)

	srv, err := NewServer(DefaultConfig(), store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err, "NewServer() failed")
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), "failed to decode response body")
}

func TestAPIHealth(t *testing.T) {
	srv := setupAPIServer(t)

	rr := doRequest(srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var info HealthInfo
	decodeBody(t, rr, &info)
	require.Equal(t, "ok", info.Status)
	require.Equal(t, Version, info.Version)
}

func TestAPITrainAndGenerate(t *testing.T) {
	srv := setupAPIServer(t)

	rr := doRequest(srv, http.MethodPost, "/api/models/alice/train?order=2", "the quick brown fox jumps over the lazy dog")
	require.Equal(t, http.StatusCreated, rr.Code, "train response: %s", rr.Body.String())

	var info modelstore.ModelInfo
	decodeBody(t, rr, &info)
	require.Equal(t, "alice", info.Name)
	require.Equal(t, 2, info.Order)

	rr = doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": 30, "seed": 7}`)
	require.Equal(t, http.StatusOK, rr.Code, "generate response: %s", rr.Body.String())

	var first GenerateResponse
	decodeBody(t, rr, &first)
	require.Equal(t, "alice", first.Model)
	require.Equal(t, 30, utf8.RuneCountInString(first.Text))

	// Same seed, same walk.
	rr = doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": 30, "seed": 7}`)
	var second GenerateResponse
	decodeBody(t, rr, &second)
	require.Equal(t, first.Text, second.Text)
}

func TestAPIGenerateLengthDefaults(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=1", "abababab")

	rr := doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp GenerateResponse
	decodeBody(t, rr, &resp)
	require.Equal(t, srv.config.Generate.Length, utf8.RuneCountInString(resp.Text))

	// An explicit zero is a request for empty output, not the default.
	rr = doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": 0}`)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeBody(t, rr, &resp)
	require.Empty(t, resp.Text)
}

func TestAPIGenerateBadRequests(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=1", "abababab")

	rr := doRequest(srv, http.MethodPost, "/api/models/alice/generate", "not json")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": -5}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(srv, http.MethodPost, "/api/models/ghost/generate", `{"length": 10}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPITrainBadRequests(t *testing.T) {
	srv := setupAPIServer(t)

	rr := doRequest(srv, http.MethodPost, "/api/models/alice/train?order=abc", "some text")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(srv, http.MethodPost, "/api/models/alice/train?order=0", "some text")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// Too little text to fill even one context window.
	rr = doRequest(srv, http.MethodPost, "/api/models/alice/train?order=3", "ab")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPIModelLifecycle(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=2", "the quick brown fox jumps over the lazy dog")

	rr := doRequest(srv, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var models []modelstore.ModelInfo
	decodeBody(t, rr, &models)
	require.Len(t, models, 1)
	require.Equal(t, "alice", models[0].Name)

	rr = doRequest(srv, http.MethodGet, "/api/models/alice", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(srv, http.MethodDelete, "/api/models/alice", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(srv, http.MethodGet, "/api/models/alice", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPIRetrainReplacesCachedModel(t *testing.T) {
	srv := setupAPIServer(t)

	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=1", "ababababab")
	rr := doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": 20}`)
	require.Equal(t, http.StatusOK, rr.Code)

	// Retraining with a disjoint alphabet must evict the cached automaton.
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=1", "xyxyxyxyxy")
	rr = doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": 20}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp GenerateResponse
	decodeBody(t, rr, &resp)
	for _, c := range resp.Text {
		require.Contains(t, "xy", string(c))
	}
}

func TestAPIExportImportRoundTrip(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=2", "the quick brown fox jumps over the lazy dog")

	rr := doRequest(srv, http.MethodGet, "/api/models/alice/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "alice.model.json")

	imported := doRequest(srv, http.MethodPost, "/api/import?name=bob", rr.Body.String())
	require.Equal(t, http.StatusCreated, imported.Code, "import response: %s", imported.Body.String())

	// The copy walks identically to the original under the same seed.
	fromAlice := doRequest(srv, http.MethodPost, "/api/models/alice/generate", `{"length": 40, "seed": 99}`)
	fromBob := doRequest(srv, http.MethodPost, "/api/models/bob/generate", `{"length": 40, "seed": 99}`)
	var a, b GenerateResponse
	decodeBody(t, fromAlice, &a)
	decodeBody(t, fromBob, &b)
	require.Equal(t, a.Text, b.Text)
}

func TestAPIImportBadRequests(t *testing.T) {
	srv := setupAPIServer(t)

	rr := doRequest(srv, http.MethodPost, "/api/import", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(srv, http.MethodPost, "/api/import?name=bob", `{"order": 0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPIStats(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=2", "the quick brown fox jumps over the lazy dog")
	doRequest(srv, http.MethodPost, "/api/models/bob/train?order=1", "abababab")

	rr := doRequest(srv, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var stats modelstore.StoreStats
	decodeBody(t, rr, &stats)
	require.Len(t, stats.Models, 2)
	for _, model := range stats.Models {
		require.NotZero(t, stats.Stats[model.Id].Transitions)
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=1", "abababab")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/health"},
		{http.MethodPost, "/api/models"},
		{http.MethodPatch, "/api/models/alice"},
		{http.MethodGet, "/api/models/alice/train"},
		{http.MethodGet, "/api/models/alice/generate"},
		{http.MethodPost, "/api/models/alice/export"},
		{http.MethodGet, "/api/import"},
		{http.MethodPost, "/api/stats"},
	}
	for _, tc := range cases {
		rr := doRequest(srv, tc.method, tc.path, "")
		require.Equalf(t, http.StatusMethodNotAllowed, rr.Code, "%s %s", tc.method, tc.path)
		require.NotEmptyf(t, rr.Header().Get("Allow"), "%s %s should advertise allowed methods", tc.method, tc.path)
	}
}

func TestAPIUnknownAction(t *testing.T) {
	srv := setupAPIServer(t)
	doRequest(srv, http.MethodPost, "/api/models/alice/train?order=1", "abababab")

	rr := doRequest(srv, http.MethodPost, "/api/models/alice/prune", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(srv, http.MethodGet, "/api/models/", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
