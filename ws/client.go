package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"memory-game/auth"
	"memory-game/game"
	"memory-game/table"
	"memory-game/tableerrors"
	"memory-game/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub.
// Table and UserID are only touched from the read pump, and by the hub
// after the read pump has exited.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string       // set by a valid auth message
	Table  *table.Table // nil until join_table
}

// ReadPump pumps messages from the websocket connection to the hub.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read error", "tag", "ws", "err", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "auth":
		c.handleAuth(envelope.Raw)
	case "join_table":
		c.handleJoinTable(envelope.Raw)
	case "leave_table":
		c.handleLeaveTable()
	case "new_game":
		c.handleNewGame()
	case "select_card":
		c.handleSelectCard(envelope.Raw)
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleAuth(raw json.RawMessage) {
	var msg AuthMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Token == "" {
		c.sendError("Invalid auth message.")
		return
	}
	if c.Hub.Auth == nil {
		c.sendError("Sign-in is not enabled on this server.")
		return
	}
	userID, err := c.Hub.Auth.UserID(msg.Token)
	if errors.Is(err, auth.ErrNotConfigured) {
		c.sendError("Sign-in is not enabled on this server.")
		return
	}
	if err != nil {
		slog.Debug("token rejected", "tag", "ws", "err", err)
		c.sendError("Invalid or expired token.")
		return
	}
	c.UserID = userID
	c.send(AuthenticatedMsg{Type: "authenticated", UserID: userID})
}

func (c *Client) handleJoinTable(raw json.RawMessage) {
	var msg JoinTableMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid join_table message.")
		return
	}

	if c.Table != nil {
		if c.Table.ID == msg.TableID {
			c.sendError("Already at this table.")
			return
		}
		c.detach()
	}

	var (
		t   *table.Table
		err error
	)
	created := msg.TableID == ""
	if created {
		t, err = c.Hub.Tables.Create(c.UserID)
	} else {
		t, err = c.Hub.Tables.Get(msg.TableID)
	}
	switch {
	case errors.Is(err, tableerrors.ErrTableLimit):
		c.sendError("Too many tables are open. Try again later.")
		return
	case errors.Is(err, tableerrors.ErrTableNotFound):
		c.sendError("Table not found.")
		return
	case err != nil:
		slog.Error("join_table failed", "tag", "ws", "err", err)
		c.sendError("Could not join the table.")
		return
	}

	welcome, err := json.Marshal(TableJoinedMsg{Type: "table_joined", TableID: t.ID, Created: created})
	if err != nil {
		slog.Error("marshaling message", "tag", "ws", "err", err)
		return
	}
	// The table delivers table_joined ahead of its state, and only if the join succeeds.
	if err := t.JoinWith(c.Send, welcome); err != nil {
		c.sendError("Table not found.")
		return
	}
	c.Table = t
}

func (c *Client) handleLeaveTable() {
	t, err := c.currentTable()
	if err != nil {
		c.sendError("You are not at a table.")
		return
	}
	c.detach()
	c.send(TableLeftMsg{Type: "table_left", TableID: t.ID})
}

func (c *Client) handleNewGame() {
	t, err := c.currentTable()
	if err != nil {
		c.sendError("You are not at a table.")
		return
	}
	if err := t.NewGame(c.Send); err != nil {
		c.tableGone()
	}
}

func (c *Client) handleSelectCard(raw json.RawMessage) {
	t, err := c.currentTable()
	if err != nil {
		c.sendError("You are not at a table.")
		return
	}

	var msg SelectCardMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid select_card message.")
		return
	}

	ref := game.CardRef{Deal: msg.Deal, ID: msg.CardID}
	if err := t.Select(c.Send, ref); err != nil {
		c.tableGone()
	}
}

func (c *Client) currentTable() (*table.Table, error) {
	if c.Table == nil {
		return nil, tableerrors.ErrNotAtTable
	}
	return c.Table, nil
}

func (c *Client) detach() {
	if c.Table == nil {
		return
	}
	if err := c.Table.Leave(c.Send); err != nil && !errors.Is(err, tableerrors.ErrTableClosed) {
		slog.Warn("leave failed", "tag", "ws", "table", c.Table.ID, "err", err)
	}
	c.Table = nil
}

func (c *Client) tableGone() {
	c.Table = nil
	c.sendError("The table has closed.")
}

func (c *Client) send(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling message", "tag", "ws", "err", err)
		return
	}
	wsutil.SafeSend(c.Send, data)
}

func (c *Client) sendError(message string) {
	c.send(ErrorMsg{Type: "error", Message: message})
}
