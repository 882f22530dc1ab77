package game

// Snapshot is an immutable copy of the engine state taken after a transition.
// Active is -1 until the first game starts. Pending holds card IDs.
type Snapshot struct {
	Deal    uint64
	Cards   []Card
	Players [2]Player
	Active  int
	Pending []int
	Phase   Phase
	Result  string
	Moves   int
}

// Started reports whether a board has been dealt.
func (s Snapshot) Started() bool {
	return s.Deal > 0
}

// Over reports whether the current game has ended.
func (s Snapshot) Over() bool {
	return s.Phase == GameOver
}

// Winner returns 0 or 1 for the higher scorer, -1 for a tie, or -2 when the
// game is not over.
func (s Snapshot) Winner() int {
	if !s.Over() {
		return -2
	}
	switch {
	case s.Players[0].Score > s.Players[1].Score:
		return 0
	case s.Players[1].Score > s.Players[0].Score:
		return 1
	default:
		return -1
	}
}

// Card returns the card with the given id.
func (s Snapshot) Card(id int) (Card, bool) {
	for _, c := range s.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// Ref returns a reference to card id on this snapshot's deal.
func (s Snapshot) Ref(id int) CardRef {
	return CardRef{Deal: s.Deal, ID: id}
}

// CardChange describes one card whose state differs between two snapshots.
type CardChange struct {
	Position int
	ID       int
	From     CardState
	To       CardState
}

// DiffCards lists the cards whose state changed from prev to next. When the
// snapshots belong to different deals the whole board changed and full is true.
func DiffCards(prev, next Snapshot) (changes []CardChange, full bool) {
	if prev.Deal != next.Deal || len(prev.Cards) != len(next.Cards) {
		return nil, true
	}
	for i := range next.Cards {
		if prev.Cards[i].State != next.Cards[i].State {
			changes = append(changes, CardChange{
				Position: i,
				ID:       next.Cards[i].ID,
				From:     prev.Cards[i].State,
				To:       next.Cards[i].State,
			})
		}
	}
	return changes, false
}

// Outcome summarises a finished game for history and event consumers.
type Outcome struct {
	Deal        uint64
	PlayerNames [2]string
	Scores      [2]int
	WinnerIndex int // 0, 1, or -1 for a tie
	Message     string
	Moves       int
}

// OutcomeOf builds an Outcome from a snapshot. ok is false if the game in s
// has not ended.
func OutcomeOf(s Snapshot) (o Outcome, ok bool) {
	if !s.Over() {
		return Outcome{}, false
	}
	return Outcome{
		Deal:        s.Deal,
		PlayerNames: [2]string{s.Players[0].Name, s.Players[1].Name},
		Scores:      [2]int{s.Players[0].Score, s.Players[1].Score},
		WinnerIndex: s.Winner(),
		Message:     s.Result,
		Moves:       s.Moves,
	}, true
}
