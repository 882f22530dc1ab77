package game

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"
)

// manualScheduler is a Scheduler test double. Timers fire only when the test
// advances the clock.
type manualScheduler struct {
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		var next *manualTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			break
		}
		s.now = next.at
		next.fired = true
		next.f()
	}
	s.now = target
}

// FireStopped runs the callbacks of stopped timers, simulating a fire that
// raced with Stop.
func (s *manualScheduler) FireStopped() {
	for _, t := range s.timers {
		if t.stopped && !t.fired {
			t.fired = true
			t.f()
		}
	}
}

func (s *manualScheduler) Outstanding() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func newTestEngine(seed int64) (*Engine, *manualScheduler) {
	sched := &manualScheduler{}
	e := NewEngine(Options{
		Rand:      rand.New(rand.NewSource(seed)),
		Scheduler: sched,
	})
	return e, sched
}

// findPair returns two hidden card ids with the same value.
func findPair(s Snapshot) (int, int) {
	byValue := make(map[int][]int)
	for _, c := range s.Cards {
		if c.State == Hidden {
			byValue[c.Value] = append(byValue[c.Value], c.ID)
		}
	}
	values := make([]int, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	sort.Ints(values)
	for _, v := range values {
		if ids := byValue[v]; len(ids) >= 2 {
			return ids[0], ids[1]
		}
	}
	return -1, -1
}

// findNonPair returns two hidden card ids with different values.
func findNonPair(s Snapshot) (int, int) {
	var hidden []Card
	for _, c := range s.Cards {
		if c.State == Hidden {
			hidden = append(hidden, c)
		}
	}
	for i := 0; i < len(hidden); i++ {
		for j := i + 1; j < len(hidden); j++ {
			if hidden[i].Value != hidden[j].Value {
				return hidden[i].ID, hidden[j].ID
			}
		}
	}
	return -1, -1
}

func mustSelect(t *testing.T, e *Engine, id int) {
	t.Helper()
	s := e.Snapshot()
	if err := e.SelectCard(s.Ref(id)); err != nil {
		t.Fatalf("SelectCard(%d): %v", id, err)
	}
}

func stateOf(t *testing.T, e *Engine, id int) CardState {
	t.Helper()
	c, ok := e.Snapshot().Card(id)
	if !ok {
		t.Fatalf("card %d not on board", id)
	}
	return c.State
}

func TestNewEngine_NoGameYet(t *testing.T) {
	e, _ := newTestEngine(1)
	s := e.Snapshot()

	if s.Started() {
		t.Error("expected no game before StartNewGame")
	}
	if s.Active != -1 {
		t.Errorf("expected no active player, got %d", s.Active)
	}
	if len(s.Cards) != 0 {
		t.Errorf("expected empty board, got %d cards", len(s.Cards))
	}
	if s.Players[0].Name != "Player A" || s.Players[1].Name != "Player B" {
		t.Errorf("unexpected default names %q, %q", s.Players[0].Name, s.Players[1].Name)
	}
}

func TestStartNewGame(t *testing.T) {
	e, _ := newTestEngine(1)
	e.StartNewGame()
	s := e.Snapshot()

	if s.Deal != 1 {
		t.Errorf("expected Deal=1, got %d", s.Deal)
	}
	if s.Active != 0 && s.Active != 1 {
		t.Errorf("expected Active to be 0 or 1, got %d", s.Active)
	}
	if s.Phase != Idle {
		t.Errorf("expected Phase=Idle, got %v", s.Phase)
	}
	if len(s.Pending) != 0 {
		t.Errorf("expected empty selection buffer, got %v", s.Pending)
	}
	if s.Result != "" {
		t.Errorf("expected empty result, got %q", s.Result)
	}
	if len(s.Cards) != GridSize*GridSize {
		t.Errorf("expected %d cards, got %d", GridSize*GridSize, len(s.Cards))
	}
	for _, c := range s.Cards {
		if c.State != Hidden {
			t.Errorf("card %d should start hidden, got %v", c.ID, c.State)
		}
	}
}

func TestStartNewGame_StartingPlayerVaries(t *testing.T) {
	e, _ := newTestEngine(11)
	seen := make(map[int]bool)
	for i := 0; i < 50; i++ {
		e.StartNewGame()
		seen[e.Snapshot().Active] = true
	}
	if !seen[0] || !seen[1] {
		t.Errorf("expected both players to start at least once in 50 games, got %v", seen)
	}
}

func TestStartNewGame_ResetsScores(t *testing.T) {
	e, sched := newTestEngine(2)
	e.StartNewGame()

	a, b := findPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)
	sched.Advance(DefaultRevealDelay)

	s := e.Snapshot()
	if s.Players[s.Active].Score != 1 {
		t.Fatalf("expected active player to have scored, got %+v", s.Players)
	}

	e.StartNewGame()
	s = e.Snapshot()
	if s.Players[0].Score != 0 || s.Players[1].Score != 0 {
		t.Errorf("expected scores reset, got %+v", s.Players)
	}
	if s.Moves != 0 {
		t.Errorf("expected Moves reset, got %d", s.Moves)
	}
	if s.Deal != 2 {
		t.Errorf("expected Deal=2, got %d", s.Deal)
	}
}

func TestSelectCard_FirstCardRevealed(t *testing.T) {
	e, sched := newTestEngine(3)
	e.StartNewGame()
	id := e.Snapshot().Cards[0].ID

	mustSelect(t, e, id)

	s := e.Snapshot()
	if got := stateOf(t, e, id); got != Revealed {
		t.Errorf("expected Revealed, got %v", got)
	}
	if len(s.Pending) != 1 || s.Pending[0] != id {
		t.Errorf("expected pending [%d], got %v", id, s.Pending)
	}
	if s.Phase != FirstSelected {
		t.Errorf("expected Phase=FirstSelected, got %v", s.Phase)
	}
	if sched.Outstanding() != 0 {
		t.Errorf("no resolution should be scheduled after one card, got %d timers", sched.Outstanding())
	}
}

func TestSelectCard_SameCardTwiceIsNoop(t *testing.T) {
	e, sched := newTestEngine(4)
	e.StartNewGame()
	id := e.Snapshot().Cards[5].ID

	mustSelect(t, e, id)
	before := e.Snapshot()
	mustSelect(t, e, id)
	after := e.Snapshot()

	if len(after.Pending) != 1 {
		t.Errorf("expected one pending card, got %v", after.Pending)
	}
	if after.Phase != before.Phase {
		t.Errorf("phase changed from %v to %v", before.Phase, after.Phase)
	}
	if sched.Outstanding() != 0 {
		t.Error("re-selecting the pending card must not schedule a resolution")
	}
}

func TestSelectCard_ThirdCardIsNoop(t *testing.T) {
	e, sched := newTestEngine(5)
	e.StartNewGame()

	a, b := findNonPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)
	before := e.Snapshot()

	var third int
	for _, c := range before.Cards {
		if c.ID != a && c.ID != b {
			third = c.ID
			break
		}
	}
	mustSelect(t, e, third)
	after := e.Snapshot()

	if got := stateOf(t, e, third); got != Hidden {
		t.Errorf("third card should stay hidden, got %v", got)
	}
	if len(after.Pending) != 2 {
		t.Errorf("expected 2 pending cards, got %v", after.Pending)
	}
	if _, full := DiffCards(before, after); full {
		t.Error("deal should not change")
	}
	if changes, _ := DiffCards(before, after); len(changes) != 0 {
		t.Errorf("expected no card changes, got %+v", changes)
	}
	if sched.Outstanding() != 1 {
		t.Errorf("expected exactly one pending resolution, got %d", sched.Outstanding())
	}
}

func TestSelectCard_MatchedCardIsNoop(t *testing.T) {
	e, sched := newTestEngine(6)
	e.StartNewGame()

	a, b := findPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)
	sched.Advance(DefaultRevealDelay)

	mustSelect(t, e, a)
	s := e.Snapshot()
	if len(s.Pending) != 0 {
		t.Errorf("selecting a matched card should not fill the buffer, got %v", s.Pending)
	}
	if got := stateOf(t, e, a); got != Matched {
		t.Errorf("matched card changed state to %v", got)
	}
}

func TestSelectCard_InvalidRef(t *testing.T) {
	e, _ := newTestEngine(7)

	if err := e.SelectCard(CardRef{Deal: 0, ID: 0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("before any game: expected ErrInvalidArgument, got %v", err)
	}

	e.StartNewGame()
	old := e.Snapshot()
	e.StartNewGame()

	tests := []struct {
		name string
		ref  CardRef
	}{
		{"previous deal", old.Ref(old.Cards[0].ID)},
		{"future deal", CardRef{Deal: 99, ID: 0}},
		{"unknown id", CardRef{Deal: 2, ID: GridSize * GridSize}},
		{"negative id", CardRef{Deal: 2, ID: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.SelectCard(tt.ref); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	s := e.Snapshot()
	if len(s.Pending) != 0 {
		t.Errorf("invalid refs must not touch the buffer, got %v", s.Pending)
	}
}

func TestResolve_Match(t *testing.T) {
	e, sched := newTestEngine(8)
	e.StartNewGame()
	active := e.Snapshot().Active

	a, b := findPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)

	sched.Advance(DefaultRevealDelay - time.Millisecond)
	if got := stateOf(t, e, a); got != Revealed {
		t.Fatalf("resolution fired early: card is %v", got)
	}

	sched.Advance(time.Millisecond)
	s := e.Snapshot()

	if got := stateOf(t, e, a); got != Matched {
		t.Errorf("expected card %d Matched, got %v", a, got)
	}
	if got := stateOf(t, e, b); got != Matched {
		t.Errorf("expected card %d Matched, got %v", b, got)
	}
	if s.Players[active].Score != 1 {
		t.Errorf("expected active player score 1, got %d", s.Players[active].Score)
	}
	if s.Players[1-active].Score != 0 {
		t.Errorf("expected other player score 0, got %d", s.Players[1-active].Score)
	}
	if s.Active != active {
		t.Errorf("expected turn to stay with player %d after match, got %d", active, s.Active)
	}
	if len(s.Pending) != 0 {
		t.Errorf("expected empty buffer, got %v", s.Pending)
	}
	if s.Phase != Idle {
		t.Errorf("expected Phase=Idle, got %v", s.Phase)
	}
	if s.Moves != 1 {
		t.Errorf("expected Moves=1, got %d", s.Moves)
	}
}

func TestResolve_Mismatch(t *testing.T) {
	e, sched := newTestEngine(9)
	e.StartNewGame()
	active := e.Snapshot().Active

	a, b := findNonPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)

	sched.Advance(DefaultRevealDelay)
	s := e.Snapshot()
	if got := stateOf(t, e, a); got != Mismatched {
		t.Errorf("expected card %d Mismatched, got %v", a, got)
	}
	if got := stateOf(t, e, b); got != Mismatched {
		t.Errorf("expected card %d Mismatched, got %v", b, got)
	}
	if s.Active != active {
		t.Errorf("turn must not pass before the hide delay, got active=%d", s.Active)
	}
	if s.Phase != Mismatch {
		t.Errorf("expected Phase=Mismatch, got %v", s.Phase)
	}
	if len(s.Pending) != 2 {
		t.Errorf("buffer should stay full until hidden, got %v", s.Pending)
	}

	sched.Advance(DefaultHideDelay - time.Millisecond)
	if got := stateOf(t, e, a); got != Mismatched {
		t.Fatalf("hide fired early: card is %v", got)
	}

	sched.Advance(time.Millisecond)
	s = e.Snapshot()
	if got := stateOf(t, e, a); got != Hidden {
		t.Errorf("expected card %d Hidden, got %v", a, got)
	}
	if got := stateOf(t, e, b); got != Hidden {
		t.Errorf("expected card %d Hidden, got %v", b, got)
	}
	if len(s.Pending) != 0 {
		t.Errorf("expected empty buffer, got %v", s.Pending)
	}
	if s.Active != 1-active {
		t.Errorf("expected turn to pass to player %d, got %d", 1-active, s.Active)
	}
	if s.Players[0].Score != 0 || s.Players[1].Score != 0 {
		t.Errorf("mismatch must not score, got %+v", s.Players)
	}
}

func TestSelectCard_IgnoredWhileMismatchShown(t *testing.T) {
	e, sched := newTestEngine(10)
	e.StartNewGame()

	a, b := findNonPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)
	sched.Advance(DefaultRevealDelay)

	mustSelect(t, e, a)
	var other int
	for _, c := range e.Snapshot().Cards {
		if c.ID != a && c.ID != b {
			other = c.ID
			break
		}
	}
	mustSelect(t, e, other)

	if got := stateOf(t, e, other); got != Hidden {
		t.Errorf("selection during mismatch should be ignored, card is %v", got)
	}
}

// playTo drives a game to completion so that player 0 ends with scoreA and
// player 1 with scoreB. The active player matches until it reaches its
// target, then deliberately mismatches to pass the turn.
func playTo(t *testing.T, e *Engine, sched *manualScheduler, scoreA, scoreB int) Snapshot {
	t.Helper()
	targets := [2]int{scoreA, scoreB}
	for step := 0; step < 100; step++ {
		s := e.Snapshot()
		if s.Over() {
			return s
		}
		var a, b int
		if s.Players[s.Active].Score < targets[s.Active] {
			a, b = findPair(s)
		} else {
			a, b = findNonPair(s)
		}
		if a < 0 {
			t.Fatalf("no suitable cards left at step %d: %+v", step, s.Players)
		}
		mustSelect(t, e, a)
		mustSelect(t, e, b)
		sched.Advance(DefaultRevealDelay + DefaultHideDelay)
	}
	t.Fatal("game did not finish")
	return Snapshot{}
}

func TestFullGame_WinnerMessage(t *testing.T) {
	for seed := int64(0); seed < 6; seed++ {
		e, sched := newTestEngine(seed)
		e.StartNewGame()

		s := playTo(t, e, sched, 5, 3)

		if s.Players[0].Score != 5 || s.Players[1].Score != 3 {
			t.Fatalf("seed %d: expected 5-3, got %d-%d", seed, s.Players[0].Score, s.Players[1].Score)
		}
		if s.Result != "Player A wins!" {
			t.Errorf("seed %d: expected %q, got %q", seed, "Player A wins!", s.Result)
		}
		if s.Winner() != 0 {
			t.Errorf("seed %d: expected winner 0, got %d", seed, s.Winner())
		}
		for _, c := range s.Cards {
			if c.State != Matched {
				t.Errorf("seed %d: card %d not matched at game end", seed, c.ID)
			}
		}
	}
}

func TestFullGame_PlayerBWins(t *testing.T) {
	e, sched := newTestEngine(21)
	e.StartNewGame()
	s := playTo(t, e, sched, 2, 6)
	if s.Result != "Player B wins!" {
		t.Errorf("expected %q, got %q", "Player B wins!", s.Result)
	}
}

func TestFullGame_Tie(t *testing.T) {
	e, sched := newTestEngine(22)
	e.StartNewGame()
	s := playTo(t, e, sched, 4, 4)

	if s.Result != "Player A and Player B tied!" {
		t.Errorf("expected tie message, got %q", s.Result)
	}
	if s.Winner() != -1 {
		t.Errorf("expected Winner=-1, got %d", s.Winner())
	}
	o, ok := OutcomeOf(s)
	if !ok {
		t.Fatal("expected an outcome for a finished game")
	}
	if o.WinnerIndex != -1 || o.Scores != [2]int{4, 4} || o.Message != s.Result {
		t.Errorf("unexpected outcome %+v", o)
	}
}

func TestFullGame_CustomNames(t *testing.T) {
	sched := &manualScheduler{}
	e := NewEngine(Options{
		PlayerNames: [2]string{"Ada", "Grace"},
		Rand:        rand.New(rand.NewSource(5)),
		Scheduler:   sched,
	})
	e.StartNewGame()
	s := playTo(t, e, sched, 3, 5)
	if s.Result != "Grace wins!" {
		t.Errorf("expected %q, got %q", "Grace wins!", s.Result)
	}
}

func TestStaleTimer_HideAfterNewGame(t *testing.T) {
	e, sched := newTestEngine(12)
	e.StartNewGame()

	a, b := findNonPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)
	sched.Advance(DefaultRevealDelay)
	if e.Snapshot().Phase != Mismatch {
		t.Fatal("expected a pending hide step")
	}

	e.StartNewGame()
	fresh := e.Snapshot()

	if sched.Outstanding() != 0 {
		t.Errorf("StartNewGame should cancel the hide timer, %d outstanding", sched.Outstanding())
	}

	sched.FireStopped()
	sched.Advance(10 * DefaultHideDelay)
	after := e.Snapshot()

	if after.Active != fresh.Active {
		t.Errorf("stale hide switched the active player from %d to %d", fresh.Active, after.Active)
	}
	if changes, full := DiffCards(fresh, after); full || len(changes) != 0 {
		t.Errorf("stale hide mutated the new board: full=%v changes=%+v", full, changes)
	}
}

func TestStaleTimer_ResolveAfterNewGame(t *testing.T) {
	e, sched := newTestEngine(13)
	e.StartNewGame()

	a, b := findPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)

	e.StartNewGame()
	fresh := e.Snapshot()

	// Start a selection on the new board, then let the old resolution run.
	id := fresh.Cards[0].ID
	mustSelect(t, e, id)
	sched.FireStopped()

	s := e.Snapshot()
	if s.Players[0].Score != 0 || s.Players[1].Score != 0 {
		t.Errorf("stale resolution scored a point: %+v", s.Players)
	}
	if len(s.Pending) != 1 || s.Pending[0] != id {
		t.Errorf("stale resolution touched the buffer: %v", s.Pending)
	}
	if got := stateOf(t, e, id); got != Revealed {
		t.Errorf("expected new selection to stay Revealed, got %v", got)
	}
}

func TestSubscribe(t *testing.T) {
	e, sched := newTestEngine(14)

	var got []Snapshot
	unsubscribe := e.Subscribe(func(s Snapshot) { got = append(got, s) })

	e.StartNewGame()
	a, b := findNonPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)
	sched.Advance(DefaultRevealDelay + DefaultHideDelay)

	wantPhases := []Phase{Idle, FirstSelected, SecondSelected, Mismatch, Idle}
	if len(got) != len(wantPhases) {
		t.Fatalf("expected %d notifications, got %d", len(wantPhases), len(got))
	}
	for i, p := range wantPhases {
		if got[i].Phase != p {
			t.Errorf("notification %d: expected %v, got %v", i, p, got[i].Phase)
		}
	}

	// Re-selecting the pending card is a no-op and must not notify.
	mustSelect(t, e, a)
	n := len(got)
	mustSelect(t, e, a)
	if len(got) != n {
		t.Errorf("no-op selection produced a notification")
	}

	unsubscribe()
	unsubscribe()
	e.StartNewGame()
	if len(got) != n {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	e, _ := newTestEngine(15)
	e.StartNewGame()

	s := e.Snapshot()
	s.Cards[0].State = Matched
	s.Players[0].Score = 42

	again := e.Snapshot()
	if again.Cards[0].State != Hidden {
		t.Error("mutating a snapshot changed the engine's board")
	}
	if again.Players[0].Score != 0 {
		t.Error("mutating a snapshot changed a player's score")
	}
}

func TestClose_CancelsTimers(t *testing.T) {
	e, sched := newTestEngine(16)
	e.StartNewGame()
	a, b := findPair(e.Snapshot())
	mustSelect(t, e, a)
	mustSelect(t, e, b)

	e.Close()
	sched.FireStopped()

	if got := stateOf(t, e, a); got != Revealed {
		t.Errorf("resolution ran after Close: card is %v", got)
	}
	e.StartNewGame()
	if e.Snapshot().Deal != 1 {
		t.Error("StartNewGame should be ignored after Close")
	}
}

// TestRandomPlay_Invariants clicks randomly and checks the board invariants
// on every published snapshot.
func TestRandomPlay_Invariants(t *testing.T) {
	e, sched := newTestEngine(17)
	clicks := rand.New(rand.NewSource(99))

	matched := make(map[int]bool)
	var deal uint64
	e.Subscribe(func(s Snapshot) {
		if s.Deal != deal {
			deal = s.Deal
			matched = make(map[int]bool)
		}
		if len(s.Pending) > 2 {
			t.Errorf("buffer holds %d cards", len(s.Pending))
		}
		if 2*(s.Players[0].Score+s.Players[1].Score) > len(s.Cards) {
			t.Errorf("scores %+v exceed board size", s.Players)
		}
		if s.Active != 0 && s.Active != 1 {
			t.Errorf("active player %d after start", s.Active)
		}
		for _, c := range s.Cards {
			if matched[c.ID] && c.State != Matched {
				t.Errorf("card %d left the Matched state (%v)", c.ID, c.State)
			}
			if c.State == Matched {
				matched[c.ID] = true
			}
		}
	})

	for game := 0; game < 3; game++ {
		e.StartNewGame()
		for i := 0; i < 2000 && !e.Snapshot().Over(); i++ {
			id := clicks.Intn(GridSize * GridSize)
			mustSelect(t, e, id)
			sched.Advance(time.Duration(clicks.Intn(1600)) * time.Millisecond)
		}
		if !e.Snapshot().Over() {
			t.Errorf("game %d did not finish with random clicks", game)
		}
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{Idle, "idle"},
		{FirstSelected, "first_selected"},
		{SecondSelected, "second_selected"},
		{Mismatch, "mismatch"},
		{GameOver, "game_over"},
		{Phase(42), "unknown"},
	}
	for _, test := range tests {
		if got := test.phase.String(); got != test.expected {
			t.Errorf("Phase(%d).String() = %q, want %q", test.phase, got, test.expected)
		}
	}
}

func TestResultMessage(t *testing.T) {
	a := Player{Name: "Player A", Score: 5}
	b := Player{Name: "Player B", Score: 3}
	if got := ResultMessage(a, b); got != "Player A wins!" {
		t.Errorf("got %q", got)
	}
	a.Score, b.Score = 1, 7
	if got := ResultMessage(a, b); got != "Player B wins!" {
		t.Errorf("got %q", got)
	}
	a.Score, b.Score = 4, 4
	if got := ResultMessage(a, b); got != "Player A and Player B tied!" {
		t.Errorf("got %q", got)
	}
}
