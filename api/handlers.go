package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"memory-game/auth"
	"memory-game/config"
	"memory-game/game"
	"memory-game/storage"
	"memory-game/table"
	"memory-game/tableerrors"
)

// TableLookup is what the API needs from the table manager.
type TableLookup interface {
	Get(id string) (*table.Table, error)
	List() []table.Info
	Count() int
}

// TokenValidator resolves a JWT to a user id.
type TokenValidator interface {
	UserID(token string) (string, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Config  *config.Config
	Results storage.ResultStore // nil when persistence is disabled
	Tables  TableLookup
	Auth    TokenValidator // may be nil
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(cfg *config.Config, results storage.ResultStore, tables TableLookup, v TokenValidator) *Handler {
	return &Handler{
		Config:  cfg,
		Results: results,
		Tables:  tables,
		Auth:    v,
	}
}

// CORS sets CORS headers on the response. Call before writing body.
func CORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// extractUserID validates the Authorization header and returns the user ID, or empty string on failure.
func (h *Handler) extractUserID(r *http.Request) string {
	if h.Auth == nil {
		return ""
	}
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return ""
	}
	userID, err := h.Auth.UserID(token)
	if err != nil {
		slog.Debug("bearer token rejected", "tag", "api", "err", err)
		return ""
	}
	return userID
}

// HealthResponse is the JSON structure for /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Tables  int    `json:"tables"`
	History bool   `json:"history"`
}

// Health reports liveness and a few counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", History: h.Results != nil}
	if h.Tables != nil {
		resp.Tables = h.Tables.Count()
	}
	writeJSON(w, http.StatusOK, resp)
}

// History returns the most recent finished games across all tables.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}

	limit, offset := pageParams(r)
	list := []storage.GameResult{}
	if h.Results != nil {
		var err error
		list, err = h.Results.ListRecent(r.Context(), limit, offset)
		if err != nil {
			slog.Error("ListRecent failed", "tag", "api", "err", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, list)
}

// MyHistory returns the finished games on tables opened by the authenticated user.
func (h *Handler) MyHistory(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}

	userID := h.extractUserID(r)
	if userID == "" {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}

	limit, _ := pageParams(r)
	list := []storage.GameResult{}
	if h.Results != nil {
		var err error
		list, err = h.Results.ListByUserID(r.Context(), userID, limit)
		if err != nil {
			slog.Error("ListByUserID failed", "tag", "api", "err", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, list)
}

// Standings returns win/loss/tie counts per player name.
func (h *Handler) Standings(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}

	limit, _ := pageParams(r)
	entries := []storage.Standing{}
	if h.Results != nil {
		var err error
		entries, err = h.Results.Standings(r.Context(), limit)
		if err != nil {
			slog.Error("Standings failed", "tag", "api", "err", err)
			http.Error(w, "failed to load standings", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListTables lists running tables.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.Tables.List())
}

// Table returns the current game_state of one table.
func (h *Handler) Table(w http.ResponseWriter, r *http.Request) {
	if CORS(w, r) {
		return
	}

	id := chi.URLParam(r, "id")
	t, err := h.Tables.Get(id)
	if errors.Is(err, tableerrors.ErrTableNotFound) {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("table lookup failed", "tag", "api", "table", id, "err", err)
		http.Error(w, "failed to load table", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, game.BuildStateMsg(t.ID, t.Latest()))
}

// pageParams reads limit and offset. The stores clamp the limit.
func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "tag", "api", "err", err)
	}
}
