package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Default delays for the two scheduled steps of a turn.
const (
	DefaultRevealDelay = 500 * time.Millisecond
	DefaultHideDelay   = 1000 * time.Millisecond
)

// ErrInvalidArgument is returned when a card reference does not belong to the
// current board.
var ErrInvalidArgument = errors.New("invalid argument")

// Phase is the position of the engine within a turn cycle.
type Phase int

const (
	Idle Phase = iota
	FirstSelected
	SecondSelected
	Mismatch
	GameOver
)

// String returns the protocol string for a Phase.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case FirstSelected:
		return "first_selected"
	case SecondSelected:
		return "second_selected"
	case Mismatch:
		return "mismatch"
	case GameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// Timer is a handle to a scheduled one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Implementations decide which goroutine f
// runs on; the engine locks around every callback either way.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Listener receives a snapshot after every state transition. It is called
// with the engine lock held and must not call back into the engine.
type Listener func(Snapshot)

// Options configures a new Engine. Zero values fall back to defaults.
type Options struct {
	PlayerNames [2]string
	RevealDelay time.Duration
	HideDelay   time.Duration
	Rand        *rand.Rand
	Scheduler   Scheduler
}

type subscription struct {
	id int
	fn Listener
}

// Engine is the two-player turn engine. It owns the board, both players, the
// active player and the two-card selection buffer.
type Engine struct {
	mu sync.Mutex

	rng         *rand.Rand
	sched       Scheduler
	revealDelay time.Duration
	hideDelay   time.Duration

	players [2]*Player
	active  int
	cards   []Card
	deal    uint64

	// first and second are board positions of the pending cards; -1 when empty.
	first  int
	second int

	phase  Phase
	result string
	moves  int
	timer  Timer
	closed bool

	subs   []subscription
	nextID int
}

// NewEngine creates an engine with no game in progress. Call StartNewGame to
// deal the first board.
func NewEngine(opts Options) *Engine {
	names := opts.PlayerNames
	if names[0] == "" {
		names[0] = "Player A"
	}
	if names[1] == "" {
		names[1] = "Player B"
	}
	reveal := opts.RevealDelay
	if reveal <= 0 {
		reveal = DefaultRevealDelay
	}
	hide := opts.HideDelay
	if hide <= 0 {
		hide = DefaultHideDelay
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var sched Scheduler = realScheduler{}
	if opts.Scheduler != nil {
		sched = opts.Scheduler
	}

	return &Engine{
		rng:         rng,
		sched:       sched,
		revealDelay: reveal,
		hideDelay:   hide,
		players:     [2]*Player{NewPlayer(names[0]), NewPlayer(names[1])},
		active:      -1,
		first:       -1,
		second:      -1,
		phase:       Idle,
	}
}

// Subscribe registers fn to receive a snapshot after each transition.
// The returned function removes the registration.
func (e *Engine) Subscribe(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// StartNewGame resets both scores, clears the result and the selection
// buffer, picks the starting player at random and deals a shuffled board.
// Any outstanding resolution or hide step is cancelled.
func (e *Engine) StartNewGame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.stopTimer()
	e.deal++
	for _, p := range e.players {
		p.Score = 0
	}
	e.result = ""
	e.moves = 0
	e.active = e.rng.Intn(2)
	e.cards = NewBoard(GridSize, e.rng)
	e.first, e.second = -1, -1
	e.phase = Idle

	e.notify()
}

// SelectCard reveals the referenced card for the active player. Selecting a
// matched card, a third card, or the pending card again is a silent no-op.
// A ref that is not on the current board returns ErrInvalidArgument.
func (e *Engine) SelectCard(ref CardRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.locate(ref)
	if err != nil {
		return err
	}
	card := &e.cards[pos]
	if card.State == Matched {
		return nil
	}

	switch {
	case e.first < 0:
		e.first = pos
		card.State = Revealed
		e.phase = FirstSelected
	case e.second < 0 && e.cards[e.first].ID != card.ID:
		e.second = pos
		card.State = Revealed
		e.phase = SecondSelected
		deal := e.deal
		e.timer = e.sched.AfterFunc(e.revealDelay, func() { e.resolve(deal) })
	default:
		return nil
	}

	e.notify()
	return nil
}

// Snapshot returns an immutable copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close cancels any scheduled step and drops all listeners. Further calls
// to StartNewGame are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimer()
	e.closed = true
	e.subs = nil
}

func (e *Engine) locate(ref CardRef) (int, error) {
	if e.deal == 0 {
		return -1, fmt.Errorf("%w: no game in progress", ErrInvalidArgument)
	}
	if ref.Deal != e.deal {
		return -1, fmt.Errorf("%w: card %d belongs to deal %d, current deal is %d", ErrInvalidArgument, ref.ID, ref.Deal, e.deal)
	}
	for i := range e.cards {
		if e.cards[i].ID == ref.ID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no card %d on the board", ErrInvalidArgument, ref.ID)
}

// resolve compares the two pending cards. A match scores a point and the
// same player continues; a mismatch schedules the hide step.
func (e *Engine) resolve(deal uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || deal != e.deal || e.phase != SecondSelected {
		return
	}
	e.timer = nil

	a, b := &e.cards[e.first], &e.cards[e.second]
	e.moves++

	if a.Value == b.Value {
		a.State, b.State = Matched, Matched
		e.first, e.second = -1, -1
		e.players[e.active].Score++
		e.phase = Idle

		// "Fewer than two" rather than zero so odd boards still terminate.
		if countUnmatched(e.cards) < 2 {
			e.result = ResultMessage(*e.players[0], *e.players[1])
			e.phase = GameOver
		}
	} else {
		a.State, b.State = Mismatched, Mismatched
		e.phase = Mismatch
		e.timer = e.sched.AfterFunc(e.hideDelay, func() { e.hide(deal) })
	}

	e.notify()
}

// hide turns mismatched cards face down and passes the turn.
func (e *Engine) hide(deal uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || deal != e.deal || e.phase != Mismatch {
		return
	}
	e.timer = nil

	e.cards[e.first].State = Hidden
	e.cards[e.second].State = Hidden
	e.first, e.second = -1, -1
	e.active = 1 - e.active
	e.phase = Idle

	e.notify()
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) notify() {
	if len(e.subs) == 0 {
		return
	}
	s := e.snapshotLocked()
	for _, sub := range e.subs {
		sub.fn(s)
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Deal:   e.deal,
		Active: e.active,
		Phase:  e.phase,
		Result: e.result,
		Moves:  e.moves,
	}
	s.Cards = make([]Card, len(e.cards))
	copy(s.Cards, e.cards)
	s.Players = [2]Player{*e.players[0], *e.players[1]}
	s.Pending = make([]int, 0, 2)
	if e.first >= 0 {
		s.Pending = append(s.Pending, e.cards[e.first].ID)
	}
	if e.second >= 0 {
		s.Pending = append(s.Pending, e.cards[e.second].ID)
	}
	return s
}

// ResultMessage returns the end-of-game message for players a and b.
func ResultMessage(a, b Player) string {
	switch {
	case a.Score > b.Score:
		return a.Name + " wins!"
	case b.Score > a.Score:
		return b.Name + " wins!"
	default:
		return a.Name + " and " + b.Name + " tied!"
	}
}
