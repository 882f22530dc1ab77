// Package httpserver wires the HTTP routes: the WebSocket endpoint, the
// JSON API and the browser UI.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"memory-game/api"
)

// apiTimeout bounds JSON API handlers. The WebSocket route is exempt.
const apiTimeout = 10 * time.Second

// NewRouter installs middleware and registers routes. ui serves the browser
// client at "/" and may be nil.
func NewRouter(h *api.Handler, serveWS http.HandlerFunc, ui http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID) // add X-Request-ID
	r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	r.Use(chimw.Recoverer) // recover from panics

	r.Get("/healthz", h.Health)
	r.Get("/ws", serveWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))
		r.Use(cors)
		r.Get("/history", h.History)
		r.Get("/history/me", h.MyHistory)
		r.Get("/standings", h.Standings)
		r.Get("/tables", h.ListTables)
		r.Get("/tables/{id}", h.Table)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
		})
	})

	if ui != nil {
		r.Handle("/*", ui)
	}
	return r
}

// cors answers preflight requests before routing.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.CORS(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}
