package game

// Player is one of the two seats at the board. Name is fixed at construction;
// Score only grows during a game and is reset by StartNewGame.
type Player struct {
	Name  string
	Score int
}

// NewPlayer creates a Player with the given name and a zero score.
func NewPlayer(name string) *Player {
	return &Player{Name: name}
}
