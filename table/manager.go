package table

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"memory-game/config"
	"memory-game/events"
	"memory-game/game"
	"memory-game/storage"
	"memory-game/tableerrors"
)

// recordTimeout bounds storing and publishing a single finished game.
const recordTimeout = 5 * time.Second

// Info is a short description of a running table.
type Info struct {
	ID          string `json:"id"`
	Subscribers int    `json:"subscribers"`
	Deal        uint64 `json:"deal"`
	Phase       string `json:"phase"`
}

// Manager owns every running table and records finished games.
type Manager struct {
	ctx     context.Context
	config  *config.Config
	results storage.ResultStore // nil when persistence is disabled
	events  events.Publisher

	mu     sync.RWMutex
	tables map[string]*Table

	recording sync.WaitGroup
}

// NewManager creates a Manager. Tables it creates stop when ctx is cancelled.
// results and pub may be nil.
func NewManager(ctx context.Context, cfg *config.Config, results storage.ResultStore, pub events.Publisher) *Manager {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Manager{
		ctx:     ctx,
		config:  cfg,
		results: results,
		events:  pub,
		tables:  make(map[string]*Table),
	}
}

// Create starts a new table owned by ownerUserID, which may be empty.
func (m *Manager) Create(ownerUserID string) (*Table, error) {
	m.mu.Lock()
	if len(m.tables) >= m.config.MaxTables {
		m.mu.Unlock()
		return nil, tableerrors.ErrTableLimit
	}
	t := New(uuid.NewString(), ownerUserID, m.config, nil)
	t.OnGameEnd = m.recordOutcome
	t.OnClose = m.remove
	m.tables[t.ID] = t
	count := len(m.tables)
	m.mu.Unlock()

	slog.Info("table created", "tag", "table", "table", t.ID, "tables", count)
	go t.Run(m.ctx)
	return t, nil
}

// Get returns the table with the given id.
func (m *Manager) Get(id string) (*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, tableerrors.ErrTableNotFound
	}
	return t, nil
}

// List describes all running tables, ordered by id.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.tables))
	for _, t := range m.tables {
		s := t.Latest()
		infos = append(infos, Info{
			ID:          t.ID,
			Subscribers: t.Subscribers(),
			Deal:        s.Deal,
			Phase:       s.Phase.String(),
		})
	}
	m.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of running tables.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

// Wait blocks until every in-flight result has been stored and published.
func (m *Manager) Wait() {
	m.recording.Wait()
}

func (m *Manager) remove(t *Table) {
	m.mu.Lock()
	delete(m.tables, t.ID)
	count := len(m.tables)
	m.mu.Unlock()
	slog.Info("table closed", "tag", "table", "table", t.ID, "tables", count)
}

// recordOutcome runs on the table goroutine, so the slow part is handed off.
func (m *Manager) recordOutcome(t *Table, o game.Outcome) {
	result := storage.GameResult{
		ID:           uuid.NewString(),
		PlayedAt:     time.Now().UTC(),
		TableID:      t.ID,
		OwnerUserID:  t.OwnerUserID,
		Deal:         o.Deal,
		Player0Name:  o.PlayerNames[0],
		Player1Name:  o.PlayerNames[1],
		Player0Score: o.Scores[0],
		Player1Score: o.Scores[1],
		WinnerIndex:  o.WinnerIndex,
		Message:      o.Message,
		Moves:        o.Moves,
	}
	ev := events.GameFinished{
		ResultID:    result.ID,
		TableID:     t.ID,
		Deal:        o.Deal,
		PlayerNames: o.PlayerNames,
		Scores:      o.Scores,
		WinnerIndex: o.WinnerIndex,
		Message:     o.Message,
		Moves:       o.Moves,
		FinishedAt:  result.PlayedAt,
	}
	slog.Info("game finished", "tag", "table", "table", t.ID, "deal", o.Deal, "result", o.Message)

	m.recording.Add(1)
	go func() {
		defer m.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if m.results != nil {
			if err := m.results.InsertGameResult(ctx, result); err != nil {
				slog.Error("failed to save game result", "tag", "storage", "table", t.ID, "err", err)
			}
		}
		if err := m.events.PublishGameFinished(ctx, ev); err != nil {
			slog.Error("failed to publish game result", "tag", "events", "table", t.ID, "err", err)
		}
	}()
}
