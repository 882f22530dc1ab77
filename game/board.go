package game

import (
	"math/rand"
)

// GridSize is the board dimension. The board always holds GridSize*GridSize cards.
const GridSize = 4

// CardState represents the current visibility of a card.
type CardState int

const (
	Hidden CardState = iota
	Revealed
	Matched
	Mismatched
)

// String returns the protocol string for a CardState.
func (cs CardState) String() string {
	switch cs {
	case Hidden:
		return "hidden"
	case Revealed:
		return "revealed"
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// Card is a single card on the board. ID is unique within one deal.
type Card struct {
	ID    int
	Value int
	State CardState
}

// CardRef identifies a card on a specific deal. A ref taken from an older
// deal never matches a card on the current board.
type CardRef struct {
	Deal uint64
	ID   int
}

// NewBoard creates size*size hidden cards where card i has value i/2, then
// applies a uniform random permutation using rng.
func NewBoard(size int, rng *rand.Rand) []Card {
	total := size * size
	cards := make([]Card, total)
	for i := 0; i < total; i++ {
		cards[i] = Card{ID: i, Value: i / 2, State: Hidden}
	}

	rng.Shuffle(total, func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	return cards
}

// countUnmatched returns the number of cards that are not in the Matched state.
func countUnmatched(cards []Card) int {
	n := 0
	for _, c := range cards {
		if c.State != Matched {
			n++
		}
	}
	return n
}
