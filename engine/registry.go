package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge/bidtheater/buffer"
	"github.com/ideaforge/bidtheater/domain"
	"github.com/ideaforge/bidtheater/logger"
	"github.com/ideaforge/bidtheater/strategy"
)

// ErrSessionNotFound is returned when looking up an idea with no live session.
var ErrSessionNotFound = errors.New("session not found")

// BroadcastFunc delivers a batch of events to every observer of a session.
type BroadcastFunc func(ideaID string, events []domain.Event) error

// SettlementStore persists settlements and archived message logs. The
// registry treats persistence as best-effort: a storage failure is logged,
// never propagated into session state.
type SettlementStore interface {
	SaveSettlement(ctx context.Context, settlement *domain.Settlement) error
	ArchiveEvents(ctx context.Context, ideaID string, events []domain.Event) error
}

// Registry is the process-scoped map from idea id to live session. Sessions
// are created on first reference and evicted a grace period after they
// terminate. There is no ambient state: constructing a second registry gives
// a fully independent world.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	evicters map[string]*time.Timer
	closed   bool

	cfg       Config
	bufCfg    buffer.Config
	pricing   *strategy.Engine
	broadcast BroadcastFunc
	store     SettlementStore
	seed      func() int64
}

// NewRegistry creates an empty registry. store may be nil when settlement
// persistence is handled elsewhere.
func NewRegistry(cfg Config, bufCfg buffer.Config, pricing *strategy.Engine,
	broadcast BroadcastFunc, store SettlementStore) *Registry {

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if len(cfg.PhaseDurations) == 0 {
		cfg.PhaseDurations = DefaultConfig().PhaseDurations
	}
	if len(cfg.ActionProbability) == 0 {
		cfg.ActionProbability = DefaultConfig().ActionProbability
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultConfig().GracePeriod
	}

	return &Registry{
		sessions:  make(map[string]*Session),
		evicters:  make(map[string]*time.Timer),
		cfg:       cfg,
		bufCfg:    bufCfg,
		pricing:   pricing,
		broadcast: broadcast,
		store:     store,
		seed:      func() int64 { return time.Now().UnixNano() },
	}
}

// SetSeed overrides the per-session random seed source. Tests use this to
// make action selection reproducible; pricing itself is deterministic either
// way.
func (r *Registry) SetSeed(seed func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seed = seed
}

// GetOrCreate resolves the session for ideaID, creating and starting one on
// first reference.
func (r *Registry) GetOrCreate(ideaID, ideaText string, participants []domain.Persona) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[ideaID]; ok {
		return s
	}
	if r.closed {
		return nil
	}

	buf := buffer.New(r.bufCfg,
		func(events []domain.Event) error { return r.broadcast(ideaID, events) },
		func(events []domain.Event, err error) {
			logger.Warn("session %s: dropped batch of %d after delivery failure: %v",
				ideaID, len(events), err)
		})

	s := newSession(ideaID, ideaText, participants, r.cfg, r.pricing, buf,
		rand.New(rand.NewSource(r.seed())), r.completeSession)
	r.sessions[ideaID] = s
	s.start()

	logger.Info("session %s created with %d participants", ideaID, len(participants))
	return s
}

// Get returns the live session for ideaID or ErrSessionNotFound.
func (r *Registry) Get(ideaID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ideaID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// completeSession persists the settlement, archives the log, and schedules
// eviction after the grace period. It runs on the session's completion
// goroutine, never under a session lock.
func (r *Registry) completeSession(settlement domain.Settlement, log []domain.Event) {
	settlement.SettlementID = "stl_" + uuid.New().String()[:8]

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.SaveSettlement(ctx, &settlement); err != nil {
			logger.Error("session %s: failed to persist settlement: %v", settlement.IdeaID, err)
		}
		if err := r.store.ArchiveEvents(ctx, settlement.IdeaID, log); err != nil {
			logger.Error("session %s: failed to archive message log: %v", settlement.IdeaID, err)
		}
	}

	logger.Info("session %s completed: winner=%s highest=%.1f bids=%d",
		settlement.IdeaID, settlement.WinningPersona, settlement.HighestBid, settlement.TotalBidCount)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	ideaID := settlement.IdeaID
	r.evicters[ideaID] = time.AfterFunc(r.cfg.GracePeriod, func() { r.evict(ideaID) })
}

// evict removes a terminated session and stops its buffer.
func (r *Registry) evict(ideaID string) {
	r.mu.Lock()
	s, ok := r.sessions[ideaID]
	delete(r.sessions, ideaID)
	delete(r.evicters, ideaID)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.stop()
	s.buf.Stop()
	logger.Info("session %s evicted", ideaID)
}

// Fail marks a session as terminated after a fatal driver error and removes
// it immediately, without a settlement. Other sessions are unaffected.
func (r *Registry) Fail(ideaID string, cause error) {
	r.mu.Lock()
	s, ok := r.sessions[ideaID]
	delete(r.sessions, ideaID)
	if t, exists := r.evicters[ideaID]; exists {
		t.Stop()
		delete(r.evicters, ideaID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	logger.Error("session %s failed: %v", ideaID, cause)

	s.mu.Lock()
	s.phase = domain.PhaseTerminated
	s.terminated = true
	s.mu.Unlock()

	s.stop()
	s.buf.AddMessage(domain.NewErrorEvent("session_failed", cause.Error()))
	s.buf.Stop()
}

// Shutdown stops every session clock and buffer and cancels all outstanding
// eviction timers. The registry accepts no new sessions afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	for _, t := range r.evicters {
		t.Stop()
	}
	r.evicters = make(map[string]*time.Timer)
	r.mu.Unlock()

	for _, s := range sessions {
		s.stop()
		s.buf.Stop()
	}
	logger.Info("registry shut down, %d sessions stopped", len(sessions))
}
