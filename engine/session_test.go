package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ideaforge/bidtheater/buffer"
	"github.com/ideaforge/bidtheater/domain"
	"github.com/ideaforge/bidtheater/strategy"
)

// quietConfig keeps the real clock and stochastic actions out of the way so
// tests drive ticks by hand.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Hour
	cfg.GracePeriod = 10 * time.Millisecond
	cfg.ActionProbability = map[domain.Phase]float64{}
	return cfg
}

func testPersonas() []domain.Persona {
	return []domain.Persona{
		{ID: "p1", Name: "Alfa", Specialty: "technical", RiskAppetite: domain.RiskAggressive,
			Lines: []domain.SpeechLine{{Text: "interesting", Emotion: "calm"}}},
		{ID: "p2", Name: "Bravo", Specialty: "business", RiskAppetite: domain.RiskConservative,
			Lines: []domain.SpeechLine{{Text: "show me numbers", Emotion: "skeptical"}}},
	}
}

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *eventSink) {
	t.Helper()
	sink := &eventSink{}
	bufCfg := buffer.DefaultConfig()
	bufCfg.FlushInterval = time.Hour
	r := NewRegistry(cfg, bufCfg, strategy.NewEngine(strategy.DefaultConfig()), sink.broadcast, nil)
	r.SetSeed(func() int64 { return 42 })
	t.Cleanup(r.Shutdown)
	return r, sink
}

func TestSessionStartsInWarmup(t *testing.T) {
	r, _ := newTestRegistry(t, quietConfig())
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	snap := s.Snapshot()
	assert.Equal(t, domain.PhaseWarmup, snap.Phase)
	assert.Equal(t, DefaultConfig().PhaseDurations[domain.PhaseWarmup], snap.TimeRemaining)
	assert.Empty(t, snap.CurrentBids)
	// With no bids the observed highest bid sits at the pricing floor.
	assert.Equal(t, strategy.DefaultConfig().MinBid, snap.HighestBid)
}

func TestWarmupLapsesIntoDiscussion(t *testing.T) {
	cfg := quietConfig()
	cfg.PhaseDurations = map[domain.Phase]int{
		domain.PhaseWarmup:     3,
		domain.PhaseDiscussion: 5,
		domain.PhaseBidding:    5,
		domain.PhasePrediction: 2,
		domain.PhaseResult:     2,
	}
	r, _ := newTestRegistry(t, cfg)
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	for i := 0; i < 3; i++ {
		s.Tick()
	}

	snap := s.Snapshot()
	assert.Equal(t, domain.PhaseDiscussion, snap.Phase)
	assert.Equal(t, 5, snap.TimeRemaining)

	var phaseStarts int
	for _, ev := range s.MessageLog() {
		if ev.Kind() == domain.EventTypePhaseStarted {
			phaseStarts++
		}
	}
	assert.Equal(t, 1, phaseStarts)
}

func TestPhaseSequenceIsForwardOnly(t *testing.T) {
	cfg := quietConfig()
	cfg.PhaseDurations = map[domain.Phase]int{
		domain.PhaseWarmup:     1,
		domain.PhaseDiscussion: 1,
		domain.PhaseBidding:    1,
		domain.PhasePrediction: 1,
		domain.PhaseResult:     1,
	}
	r, _ := newTestRegistry(t, cfg)
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	observed := []domain.Phase{s.Snapshot().Phase}
	for i := 0; i < 10; i++ {
		s.Tick()
		if p := currentPhase(s); p != observed[len(observed)-1] {
			observed = append(observed, p)
		}
	}

	want := []domain.Phase{
		domain.PhaseWarmup, domain.PhaseDiscussion, domain.PhaseBidding,
		domain.PhasePrediction, domain.PhaseResult, domain.PhaseTerminated,
	}
	assert.Equal(t, want, observed)

	// Ticks after termination change nothing.
	s.Tick()
	assert.Equal(t, domain.PhaseTerminated, currentPhase(s))
}

func currentPhase(s *Session) domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func TestTimerUpdateEmittedEveryTick(t *testing.T) {
	r, _ := newTestRegistry(t, quietConfig())
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	for i := 0; i < 5; i++ {
		s.Tick()
	}

	var timers int
	for _, ev := range s.MessageLog() {
		if ev.Kind() == domain.EventTypeTimerUpdate {
			timers++
		}
	}
	assert.Equal(t, 5, timers)
}

func TestBiddingProducesMonotonicBids(t *testing.T) {
	cfg := quietConfig()
	cfg.ActionProbability = map[domain.Phase]float64{domain.PhaseBidding: 1.0}
	cfg.BidShare = 1.0
	cfg.PhaseDurations = map[domain.Phase]int{
		domain.PhaseWarmup:     1,
		domain.PhaseDiscussion: 1,
		domain.PhaseBidding:    40,
		domain.PhasePrediction: 5,
		domain.PhaseResult:     5,
	}
	r, _ := newTestRegistry(t, cfg)
	s := r.GetOrCreate("idea-x", "an AI marketplace idea", testPersonas())

	// Enter the bidding phase.
	s.Tick()
	s.Tick()
	assert.Equal(t, domain.PhaseBidding, currentPhase(s))

	lastPerPersona := map[string]float64{}
	for i := 0; i < 30; i++ {
		s.Tick()
		snap := s.Snapshot()

		// highestBid always equals the max of currentBids, or the floor
		// while the bid table is still empty.
		max := strategy.DefaultConfig().MinBid
		for _, amount := range snap.CurrentBids {
			if amount > max {
				max = amount
			}
		}
		assert.Equal(t, max, snap.HighestBid)

		// Per persona, bids never walk down.
		for id, amount := range snap.CurrentBids {
			if prev, ok := lastPerPersona[id]; ok && amount < prev {
				t.Fatalf("persona %s bid decreased: %.1f -> %.1f", id, prev, amount)
			}
			lastPerPersona[id] = amount
		}
	}

	if len(lastPerPersona) == 0 {
		t.Fatal("expected at least one bid during the bidding phase")
	}
}

func TestBidEventsCarryBidTableCopy(t *testing.T) {
	cfg := quietConfig()
	cfg.ActionProbability = map[domain.Phase]float64{domain.PhaseBidding: 1.0}
	cfg.BidShare = 1.0
	cfg.PhaseDurations = map[domain.Phase]int{
		domain.PhaseWarmup:     1,
		domain.PhaseDiscussion: 1,
		domain.PhaseBidding:    20,
		domain.PhasePrediction: 5,
		domain.PhaseResult:     5,
	}
	r, _ := newTestRegistry(t, cfg)
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	for i := 0; i < 10; i++ {
		s.Tick()
	}

	for _, ev := range s.MessageLog() {
		bid, ok := ev.(*domain.BidPlaced)
		if !ok {
			continue
		}
		// Mutating the event's table must not touch session state.
		before := s.Snapshot().CurrentBids[bid.PersonaID]
		bid.CurrentBids[bid.PersonaID] = -1
		assert.Equal(t, before, s.Snapshot().CurrentBids[bid.PersonaID])
	}
}

func TestSessionSettlesOnResultLapse(t *testing.T) {
	cfg := quietConfig()
	cfg.ActionProbability = map[domain.Phase]float64{domain.PhaseBidding: 1.0}
	cfg.BidShare = 1.0
	cfg.PhaseDurations = map[domain.Phase]int{
		domain.PhaseWarmup:     1,
		domain.PhaseDiscussion: 1,
		domain.PhaseBidding:    10,
		domain.PhasePrediction: 1,
		domain.PhaseResult:     1,
	}

	sink := &eventSink{}
	var settled domain.Settlement
	var archived []domain.Event
	done := make(chan struct{})

	bufCfg := buffer.DefaultConfig()
	bufCfg.FlushInterval = time.Hour
	r := NewRegistry(cfg, bufCfg, strategy.NewEngine(strategy.DefaultConfig()), sink.broadcast,
		&fakeStore{onSave: func(s domain.Settlement, log []domain.Event) {
			settled = s
			archived = log
			close(done)
		}})
	r.SetSeed(func() int64 { return 7 })
	t.Cleanup(r.Shutdown)

	s := r.GetOrCreate("idea-x", "an idea", testPersonas())
	for i := 0; i < 14; i++ {
		s.Tick()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("settlement was not persisted")
	}

	assert.True(t, s.Terminated())
	snap := s.Snapshot()
	assert.Equal(t, domain.PhaseTerminated, snap.Phase)
	assert.Equal(t, snap.HighestBid, settled.HighestBid)
	assert.Equal(t, 2, settled.ParticipantCount)
	assert.NotEmpty(t, settled.WinningPersona)
	assert.Equal(t, snap.CurrentBids[settled.WinningPersona], settled.HighestBid)
	assert.NotEmpty(t, settled.SettlementID)
	assert.NotEmpty(t, archived)

	// Exactly one completion event, delivered immediately as critical.
	var completions int
	for _, ev := range sink.events() {
		if ev.Kind() == domain.EventTypeSessionCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestWinnerTieBreaksByFirstInserted(t *testing.T) {
	r, _ := newTestRegistry(t, quietConfig())
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	s.mu.Lock()
	s.currentBids = map[string]float64{"p2": 100, "p1": 100}
	s.bidOrder = []string{"p2", "p1"}
	s.highestBid = 100
	settlement := s.settleLocked()
	s.mu.Unlock()

	assert.Equal(t, "p2", settlement.WinningPersona)
	assert.Equal(t, 100.0, settlement.HighestBid)
}

func TestActionPanicDoesNotAbortTick(t *testing.T) {
	cfg := quietConfig()
	cfg.ActionProbability = map[domain.Phase]float64{domain.PhaseWarmup: 1.0}
	r, _ := newTestRegistry(t, cfg)

	// A persona with no speech lines and nil pricing path would be the
	// natural panic source; force one via a nil pricing engine instead.
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())
	s.mu.Lock()
	s.pricing = nil
	s.phase = domain.PhaseBidding
	s.cfg.ActionProbability = map[domain.Phase]float64{domain.PhaseBidding: 1.0}
	s.cfg.BidShare = 1.0
	s.mu.Unlock()

	s.Tick() // must not panic

	var sawError, sawTimer bool
	for _, ev := range s.MessageLog() {
		switch ev.Kind() {
		case domain.EventTypeError:
			sawError = true
		case domain.EventTypeTimerUpdate:
			sawTimer = true
		}
	}
	assert.True(t, sawTimer, "tick should still emit its timer update")
	assert.True(t, sawError, "failed action should surface as an error event")
	assert.False(t, s.Terminated())
}

func TestSupplementsReachPricing(t *testing.T) {
	cfg := quietConfig()
	r, _ := newTestRegistry(t, cfg)
	s := r.GetOrCreate("idea-x", "an idea", testPersonas())

	s.AddSupplement("We grew revenue 40% with 2000 users and $15k MRR.")
	s.AddReaction("fire")
	s.AddPrediction("p1", 250)

	s.mu.Lock()
	supplements := supplementTexts(s.sessionCtx.Supplements)
	reactions := len(s.sessionCtx.Reactions)
	predictions := len(s.sessionCtx.Predictions)
	s.mu.Unlock()

	assert.Equal(t, 1, len(supplements))
	assert.Equal(t, 1, reactions)
	assert.Equal(t, 1, predictions)
}
