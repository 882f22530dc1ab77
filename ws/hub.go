package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"memory-game/config"
	"memory-game/table"
	"memory-game/tableerrors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TableProvider defines what the Hub needs from the table manager.
type TableProvider interface {
	Create(ownerUserID string) (*table.Table, error)
	Get(id string) (*table.Table, error)
}

// TokenValidator resolves a JWT to a user id.
type TokenValidator interface {
	UserID(token string) (string, error)
}

// Hub maintains the set of active clients and routes messages.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	Tables     TableProvider
	Auth       TokenValidator // may be nil
	Config     *config.Config
}

// NewHub creates a new Hub.
func NewHub(cfg *config.Config, tables TableProvider, auth TokenValidator) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Tables:     tables,
		Auth:       auth,
		Config:     cfg,
	}
}

// Run starts the hub's main loop. Should be run as a goroutine.
// When ctx is cancelled (e.g. on server shutdown), Run returns and no longer accepts new registrations.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping", "tag", "hub")
			return
		case client := <-h.Register:
			h.Clients[client] = true
			slog.Info("client connected", "tag", "hub", "clients", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				t := client.Table
				client.Table = nil
				go closeSend(t, client.Send)
				slog.Info("client disconnected", "tag", "hub", "clients", len(h.Clients))
			}
		}
	}
}

// closeSend detaches send from t and then closes it. Leave returns only after
// the table loop has dropped send, so no table write can race the close.
func closeSend(t *table.Table, send chan []byte) {
	if t != nil {
		if err := t.Leave(send); err != nil && !errors.Is(err, tableerrors.ErrTableClosed) {
			slog.Warn("leave on disconnect failed", "tag", "hub", "table", t.ID, "err", err)
		}
	}
	close(send)
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade error", "tag", "hub", "err", err)
		return
	}

	client := &Client{
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	h.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
