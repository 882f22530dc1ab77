package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"memory-game/api"
	"memory-game/config"
	"memory-game/table"
)

func newTestRouter(t *testing.T) (http.Handler, *table.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.Defaults()
	mgr := table.NewManager(ctx, cfg, nil, nil)
	h := api.NewHandler(cfg, nil, mgr, nil)
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	ui := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ui")) })
	return NewRouter(h, ws, ui), mgr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h, mgr := newTestRouter(t)
	tbl, err := mgr.Create("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/healthz", http.StatusOK},
		{"/ws", http.StatusTeapot},
		{"/api/history", http.StatusOK},
		{"/api/history/me", http.StatusUnauthorized},
		{"/api/standings", http.StatusOK},
		{"/api/tables", http.StatusOK},
		{"/api/tables/" + tbl.ID, http.StatusOK},
		{"/api/tables/missing", http.StatusNotFound},
		{"/api/nope", http.StatusNotFound},
		{"/", http.StatusOK},
		{"/app.js", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, h, tt.path); rec.Code != tt.status {
				t.Errorf("GET %s: expected %d, got %d", tt.path, tt.status, rec.Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, "/healthz")
	var body api.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Tables != 0 || body.History {
		t.Errorf("unexpected health %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/history", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
