package ws

import "encoding/json"

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	// Unmarshal just the type field
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// AuthMsg optionally identifies the client with a JWT. Tables the client
// creates afterwards are tagged with its user id.
type AuthMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// JoinTableMsg attaches the client to a table. An empty TableID creates one.
type JoinTableMsg struct {
	Type    string `json:"type"`
	TableID string `json:"tableId"`
}

// SelectCardMsg selects a card on the board dealt as Deal.
type SelectCardMsg struct {
	Type   string `json:"type"`
	Deal   uint64 `json:"deal"`
	CardID int    `json:"cardId"`
}

// leave_table and new_game carry no payload beyond the type.

// --- Server-to-Client messages ---

// ErrorMsg is sent when a client action is invalid.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TableJoinedMsg confirms the client is attached to a table. A game_state
// message follows.
type TableJoinedMsg struct {
	Type    string `json:"type"`
	TableID string `json:"tableId"`
	Created bool   `json:"created"`
}

// TableLeftMsg confirms leave_table.
type TableLeftMsg struct {
	Type    string `json:"type"`
	TableID string `json:"tableId"`
}

// AuthenticatedMsg confirms a valid auth message.
type AuthenticatedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}
