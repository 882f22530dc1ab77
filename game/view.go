package game

// CardView is the client-facing representation of a card.
// Value is only included once the card is face up.
type CardView struct {
	ID    int    `json:"id"`
	Value *int   `json:"value,omitempty"`
	State string `json:"state"`
}

// PlayerView is the client-facing representation of a player.
type PlayerView struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Active bool   `json:"active"`
}

// StateMsg is the full game state pushed to every view attached to a table.
type StateMsg struct {
	Type     string        `json:"type"`
	TableID  string        `json:"tableId,omitempty"`
	Deal     uint64        `json:"deal"`
	GridSize int           `json:"gridSize"`
	Cards    []CardView    `json:"cards"`
	Players  [2]PlayerView `json:"players"`
	Active   int           `json:"activePlayer"`
	Pending  []int         `json:"pending"`
	Phase    string        `json:"phase"`
	Result   string        `json:"result"`
	Moves    int           `json:"moves"`
}

// GameOverMsg is sent once when a game ends.
type GameOverMsg struct {
	Type    string        `json:"type"`
	Deal    uint64        `json:"deal"`
	Winner  int           `json:"winner"`
	Result  string        `json:"result"`
	Players [2]PlayerView `json:"players"`
}

// BuildCardViews constructs the client-facing card list in board order.
// Hidden cards do not expose their value.
func BuildCardViews(cards []Card) []CardView {
	views := make([]CardView, len(cards))
	for i, card := range cards {
		cv := CardView{ID: card.ID, State: card.State.String()}
		if card.State != Hidden {
			v := card.Value
			cv.Value = &v
		}
		views[i] = cv
	}
	return views
}

// BuildPlayerViews returns both players, marking the active one.
func BuildPlayerViews(s Snapshot) [2]PlayerView {
	var out [2]PlayerView
	for i, p := range s.Players {
		out[i] = PlayerView{Name: p.Name, Score: p.Score, Active: i == s.Active}
	}
	return out
}

// BuildStateMsg converts a snapshot into the game_state message.
func BuildStateMsg(tableID string, s Snapshot) StateMsg {
	pending := s.Pending
	if pending == nil {
		pending = []int{}
	}
	return StateMsg{
		Type:     "game_state",
		TableID:  tableID,
		Deal:     s.Deal,
		GridSize: GridSize,
		Cards:    BuildCardViews(s.Cards),
		Players:  BuildPlayerViews(s),
		Active:   s.Active,
		Pending:  pending,
		Phase:    s.Phase.String(),
		Result:   s.Result,
		Moves:    s.Moves,
	}
}

// BuildGameOverMsg converts a finished snapshot into the game_over message.
func BuildGameOverMsg(s Snapshot) GameOverMsg {
	return GameOverMsg{
		Type:    "game_over",
		Deal:    s.Deal,
		Winner:  s.Winner(),
		Result:  s.Result,
		Players: BuildPlayerViews(s),
	}
}
