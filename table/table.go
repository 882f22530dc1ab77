package table

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"memory-game/config"
	"memory-game/game"
	"memory-game/tableerrors"
	"memory-game/wsutil"
)

// actionType enumerates the kinds of actions a table processes.
type actionType int

const (
	actionJoin actionType = iota
	actionLeave
	actionNewGame
	actionSelectCard
	actionClose
	actionTimerFired  // internal: a scheduled engine step is due
	actionIdleTimeout // internal: nobody rejoined within the idle window
)

// action is sent into the table's action channel.
type action struct {
	Type actionType
	Send chan []byte // subscriber the action came from
	Ref  game.CardRef
	Fire func()

	Welcome []byte        // join only: delivered before the current state
	Reply   chan struct{} // closed once the loop has handled the action
}

// Table runs one Engine on a single goroutine. Every engine call, including
// the engine's scheduled steps, goes through the action channel, so views
// observe transitions in the order they happened.
type Table struct {
	ID          string
	OwnerUserID string

	engine      *game.Engine
	idleTimeout time.Duration

	actions chan action
	done    chan struct{}
	closed  bool

	subscribers map[chan []byte]struct{}
	count       atomic.Int32
	latest      atomic.Pointer[game.Snapshot]
	lastPhase   game.Phase

	idleCancel chan struct{}

	// OnGameEnd is called on the table goroutine when a game finishes. It must not block.
	OnGameEnd func(t *Table, o game.Outcome)
	// OnClose is called once when the loop exits, before Done is closed.
	OnClose func(t *Table)
}

// loopScheduler delivers engine timers through the table's action channel.
type loopScheduler struct {
	t *Table
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) game.Timer {
	t := s.t
	return time.AfterFunc(d, func() {
		select {
		case t.actions <- action{Type: actionTimerFired, Fire: f}:
		case <-t.done:
		}
	})
}

// New creates a table with an engine configured from cfg. rng may be nil.
func New(id, ownerUserID string, cfg *config.Config, rng *rand.Rand) *Table {
	t := &Table{
		ID:          id,
		OwnerUserID: ownerUserID,
		idleTimeout: cfg.TableIdleTimeout(),
		actions:     make(chan action, 16),
		done:        make(chan struct{}),
		subscribers: make(map[chan []byte]struct{}),
	}
	t.engine = game.NewEngine(game.Options{
		PlayerNames: [2]string{cfg.PlayerAName, cfg.PlayerBName},
		RevealDelay: cfg.RevealDelay(),
		HideDelay:   cfg.HideDelay(),
		Rand:        rng,
		Scheduler:   loopScheduler{t: t},
	})
	initial := t.engine.Snapshot()
	t.latest.Store(&initial)
	t.engine.Subscribe(t.onSnapshot)
	return t
}

// Run is the table loop. It processes actions sequentially until the table
// is closed, sits empty past the idle timeout, or ctx is cancelled.
func (t *Table) Run(ctx context.Context) {
	defer func() {
		// Nothing is accepted once done is closed.
		close(t.done)
		t.cancelIdleTimer()
		t.engine.Close()
		if t.OnClose != nil {
			t.OnClose(t)
		}
	}()

	t.startIdleTimer()

	for {
		select {
		case <-ctx.Done():
			t.broadcast(map[string]string{"type": "table_closed"})
			return
		case a := <-t.actions:
			switch a.Type {
			case actionJoin:
				t.handleJoin(a.Send, a.Welcome)
			case actionLeave:
				t.handleLeave(a.Send)
			case actionNewGame:
				t.engine.StartNewGame()
			case actionSelectCard:
				t.handleSelectCard(a.Send, a.Ref)
			case actionTimerFired:
				a.Fire()
			case actionIdleTimeout:
				t.handleIdleTimeout()
			case actionClose:
				t.broadcast(map[string]string{"type": "table_closed"})
				t.closed = true
			}
			if a.Reply != nil {
				close(a.Reply)
			}
			if t.closed {
				return
			}
		}
	}
}

func (t *Table) post(a action) error {
	select {
	case <-t.done:
		return tableerrors.ErrTableClosed
	default:
	}
	select {
	case t.actions <- a:
		return nil
	case <-t.done:
		return tableerrors.ErrTableClosed
	}
}

// call posts a and waits until the loop has handled it.
func (t *Table) call(a action) error {
	a.Reply = make(chan struct{})
	if err := t.post(a); err != nil {
		return err
	}
	select {
	case <-a.Reply:
		return nil
	case <-t.done:
		return tableerrors.ErrTableClosed
	}
}

// Join subscribes send to state updates. The current state is sent to it
// before Join returns.
func (t *Table) Join(send chan []byte) error {
	return t.JoinWith(send, nil)
}

// JoinWith is Join with a welcome frame delivered ahead of the current
// state. Nothing is delivered when the table has closed.
func (t *Table) JoinWith(send chan []byte, welcome []byte) error {
	return t.call(action{Type: actionJoin, Send: send, Welcome: welcome})
}

// Leave unsubscribes send. Once Leave returns the table no longer writes to
// send, so the caller may close it.
func (t *Table) Leave(send chan []byte) error {
	return t.call(action{Type: actionLeave, Send: send})
}

// NewGame starts a new game on this table.
func (t *Table) NewGame(from chan []byte) error {
	return t.post(action{Type: actionNewGame, Send: from})
}

// Select forwards a card selection to the engine. A ref that is not on the
// current board is reported back to from only.
func (t *Table) Select(from chan []byte, ref game.CardRef) error {
	return t.post(action{Type: actionSelectCard, Send: from, Ref: ref})
}

// Close stops the table. Subscribers receive a table_closed message.
func (t *Table) Close() {
	_ = t.post(action{Type: actionClose})
}

// Done is closed once the table loop has exited.
func (t *Table) Done() <-chan struct{} {
	return t.done
}

// Latest returns the most recently published snapshot. Safe from any goroutine.
func (t *Table) Latest() game.Snapshot {
	return *t.latest.Load()
}

// Subscribers returns the number of attached views.
func (t *Table) Subscribers() int {
	return int(t.count.Load())
}

func (t *Table) handleJoin(send chan []byte, welcome []byte) {
	if send == nil {
		return
	}
	t.subscribers[send] = struct{}{}
	t.count.Store(int32(len(t.subscribers)))
	t.cancelIdleTimer()
	if welcome != nil && !t.deliver(send, welcome) {
		return
	}
	data, err := json.Marshal(game.BuildStateMsg(t.ID, t.Latest()))
	if err != nil {
		slog.Error("marshaling table message", "tag", "table", "err", err)
		return
	}
	t.deliver(send, data)
}

func (t *Table) handleLeave(send chan []byte) {
	if _, ok := t.subscribers[send]; !ok {
		return
	}
	t.unsubscribe(send)
}

func (t *Table) unsubscribe(send chan []byte) {
	delete(t.subscribers, send)
	t.count.Store(int32(len(t.subscribers)))
	if len(t.subscribers) == 0 {
		t.startIdleTimer()
	}
}

// deliver sends data to a subscriber. A subscriber whose buffer is full has
// fallen behind and is dropped; it gets a fresh state when it joins again.
func (t *Table) deliver(send chan []byte, data []byte) bool {
	if wsutil.SafeSend(send, data) {
		return true
	}
	slog.Warn("subscriber fell behind, dropping it", "tag", "table", "table", t.ID)
	t.unsubscribe(send)
	return false
}

func (t *Table) handleSelectCard(from chan []byte, ref game.CardRef) {
	if err := t.engine.SelectCard(ref); err != nil {
		slog.Debug("rejected selection", "tag", "table", "table", t.ID, "err", err)
		t.sendError(from, "That card is not on the current board.")
	}
}

func (t *Table) handleIdleTimeout() {
	if len(t.subscribers) > 0 {
		return
	}
	slog.Info("closing idle table", "tag", "table", "table", t.ID)
	t.closed = true
}

// onSnapshot is the engine listener. It runs on the table goroutine with the
// engine locked, so it only encodes and hands off.
func (t *Table) onSnapshot(s game.Snapshot) {
	t.latest.Store(&s)
	t.broadcast(game.BuildStateMsg(t.ID, s))

	if s.Over() && t.lastPhase != game.GameOver {
		t.broadcast(game.BuildGameOverMsg(s))
		if o, ok := game.OutcomeOf(s); ok && t.OnGameEnd != nil {
			t.OnGameEnd(t, o)
		}
	}
	t.lastPhase = s.Phase
}

// cancelIdleTimer closes the idle timer cancel channel so the timer goroutine exits. Safe if already nil.
func (t *Table) cancelIdleTimer() {
	if t.idleCancel != nil {
		close(t.idleCancel)
		t.idleCancel = nil
	}
}

// startIdleTimer closes the table if nobody joins within the idle timeout.
// No-op if the timeout is not positive. Cancels any existing idle timer first.
func (t *Table) startIdleTimer() {
	if t.idleTimeout <= 0 {
		return
	}
	t.cancelIdleTimer()
	t.idleCancel = make(chan struct{})
	cancel := t.idleCancel
	timeout := t.idleTimeout
	go func() {
		select {
		case <-time.After(timeout):
			select {
			case t.actions <- action{Type: actionIdleTimeout}:
			case <-t.done:
			}
		case <-cancel:
		}
	}()
}

func (t *Table) broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling table message", "tag", "table", "err", err)
		return
	}
	for send := range t.subscribers {
		t.deliver(send, data)
	}
}

func (t *Table) sendTo(send chan []byte, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling table message", "tag", "table", "err", err)
		return
	}
	wsutil.SafeSend(send, data)
}

func (t *Table) sendError(send chan []byte, message string) {
	if send == nil {
		return
	}
	t.sendTo(send, map[string]string{
		"type":    "error",
		"message": message,
	})
}
