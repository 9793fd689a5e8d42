// Package engine implements auction sessions, their phase clock, and the
// process-wide session registry.
package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ideaforge/bidtheater/buffer"
	"github.com/ideaforge/bidtheater/domain"
	"github.com/ideaforge/bidtheater/logger"
	"github.com/ideaforge/bidtheater/strategy"
)

// Config holds the session clock tuning knobs. All numbers are tunable
// configuration data, not load-bearing constants.
type Config struct {
	TickInterval      time.Duration
	PhaseDurations    map[domain.Phase]int
	ActionProbability map[domain.Phase]float64
	BidShare          float64
	GracePeriod       time.Duration
	CostPerSpeech     float64
	CostPerBid        float64
}

// DefaultConfig returns the canonical phase clock configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		PhaseDurations: map[domain.Phase]int{
			domain.PhaseWarmup:     30,
			domain.PhaseDiscussion: 120,
			domain.PhaseBidding:    180,
			domain.PhasePrediction: 60,
			domain.PhaseResult:     30,
		},
		ActionProbability: map[domain.Phase]float64{
			domain.PhaseWarmup:     0.15,
			domain.PhaseDiscussion: 0.40,
			domain.PhaseBidding:    0.60,
			domain.PhasePrediction: 0.30,
			domain.PhaseResult:     0.10,
		},
		BidShare:      0.5,
		GracePeriod:   60 * time.Second,
		CostPerSpeech: 0.2,
		CostPerBid:    1.0,
	}
}

// Session owns one idea's phase state, bid table, and message log. All state
// is in-memory and ephemeral; a settlement is the only durable output.
type Session struct {
	IdeaID string

	mu              sync.Mutex
	phase           domain.Phase
	phaseStartedAt  time.Time
	timeRemaining   int
	participants    []domain.Persona
	currentBids     map[string]float64
	bidOrder        []string
	highestBid      float64 // pricing floor until the first bid lands
	messageLog      []domain.Event
	accumulatedCost float64
	totalBidCount   int
	startedAt       time.Time
	sessionCtx      domain.SessionContext
	terminated      bool

	cfg      Config
	pricing  *strategy.Engine
	buf      *buffer.Buffer
	rng      *rand.Rand
	done     chan struct{}
	stopOnce sync.Once

	// onComplete receives the settlement and a copy of the message log once,
	// after the session enters Terminated.
	onComplete func(domain.Settlement, []domain.Event)
}

func newSession(ideaID, ideaText string, participants []domain.Persona, cfg Config,
	pricing *strategy.Engine, buf *buffer.Buffer, rng *rand.Rand,
	onComplete func(domain.Settlement, []domain.Event)) *Session {

	now := time.Now()
	return &Session{
		IdeaID:         ideaID,
		phase:          domain.PhaseWarmup,
		phaseStartedAt: now,
		timeRemaining:  cfg.PhaseDurations[domain.PhaseWarmup],
		participants:   participants,
		currentBids:    make(map[string]float64),
		highestBid:     pricing.Floor(),
		startedAt:      now,
		sessionCtx: domain.SessionContext{
			IdeaID:   ideaID,
			IdeaText: ideaText,
		},
		cfg:        cfg,
		pricing:    pricing,
		buf:        buf,
		rng:        rng,
		done:       make(chan struct{}),
		onComplete: onComplete,
	}
}

// start runs the phase clock. Tick is called synchronously from a single
// goroutine, so a tick can never overlap itself.
func (s *Session) start() {
	go func() {
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// stop cancels tick scheduling. Whatever state exists at that point is final.
func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Tick advances the session by one time unit: decrement the phase clock,
// always emit a timer update, maybe produce one simulated participant action,
// and advance the phase (or settle) when the clock reaches zero.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return
	}

	s.timeRemaining--
	s.emitLocked(domain.NewTimerUpdate(s.phase, s.timeRemaining))

	if p := s.cfg.ActionProbability[s.phase]; len(s.participants) > 0 && s.rng.Float64() < p {
		actor := s.participants[s.rng.Intn(len(s.participants))]
		s.runActionLocked(actor)
	}

	if s.timeRemaining <= 0 {
		s.advanceLocked()
	}
}

// runActionLocked produces one simulated action for a participant. A failure
// here is caught and logged; it never aborts the tick or the session.
func (s *Session) runActionLocked(actor domain.Persona) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session %s: action for %s failed: %v", s.IdeaID, actor.ID, r)
			s.emitLocked(domain.NewErrorEvent("action_failed",
				fmt.Sprintf("persona %s could not act this tick", actor.ID)))
		}
	}()

	if s.phase == domain.PhaseBidding && s.rng.Float64() < s.cfg.BidShare {
		s.placeBidLocked(actor)
		return
	}
	s.speakLocked(actor)
}

// placeBidLocked prices a bid for the actor against a snapshot of the current
// bid table and records it. A persona's bid never decreases: the write point
// clamps to the previous amount so the monotonicity invariant holds even if
// the pricing inputs were to shrink.
func (s *Session) placeBidLocked(actor domain.Persona) {
	snapshot := make(map[string]float64, len(s.currentBids))
	for id, amount := range s.currentBids {
		snapshot[id] = amount
	}

	st := s.pricing.ComputeBid(actor, strategy.Context{
		IdeaText:    s.sessionCtx.IdeaText,
		Supplements: supplementTexts(s.sessionCtx.Supplements),
		CurrentBids: snapshot,
	})

	amount := st.FinalBid
	prev, existing := s.currentBids[actor.ID]
	if existing && amount < prev {
		amount = prev
	}

	if !existing {
		s.bidOrder = append(s.bidOrder, actor.ID)
	}
	s.currentBids[actor.ID] = amount
	if amount > s.highestBid {
		s.highestBid = amount
	}
	s.totalBidCount++
	s.accumulatedCost += s.cfg.CostPerBid

	logger.Debug("session %s: %s bids %.1f (%d reasoning steps)",
		s.IdeaID, actor.ID, amount, len(st.Reasoning))

	s.emitLocked(domain.NewBidPlaced(actor.ID, amount, copyBids(s.currentBids)))
}

// speakLocked emits a dialogue-only utterance from the actor's canned lines.
func (s *Session) speakLocked(actor domain.Persona) {
	if len(actor.Lines) == 0 {
		return
	}
	line := actor.Lines[s.rng.Intn(len(actor.Lines))]
	s.accumulatedCost += s.cfg.CostPerSpeech
	s.emitLocked(domain.NewPersonaSpeech(actor.ID, line.Text, line.Emotion))
}

// advanceLocked moves to the next phase, or settles when the terminal timed
// phase lapses. Transitions only ever move forward.
func (s *Session) advanceLocked() {
	next, ok := s.phase.Next()
	if ok {
		s.phase = next
		s.phaseStartedAt = time.Now()
		s.timeRemaining = s.cfg.PhaseDurations[next]
		s.emitLocked(domain.NewPhaseStarted(next, s.timeRemaining))
		return
	}

	settlement := s.settleLocked()
	s.phase = domain.PhaseTerminated
	s.terminated = true
	s.emitLocked(domain.NewSessionCompleted(settlement))

	logCopy := make([]domain.Event, len(s.messageLog))
	copy(logCopy, s.messageLog)

	s.stop()
	if s.onComplete != nil {
		go s.onComplete(settlement, logCopy)
	}
}

// settleLocked computes the final settlement record. Ties for the winning
// persona break by first-inserted bid.
func (s *Session) settleLocked() domain.Settlement {
	var winner string
	var best float64
	for _, id := range s.bidOrder {
		if amount := s.currentBids[id]; amount > best {
			best = amount
			winner = id
		}
	}

	return domain.Settlement{
		IdeaID:           s.IdeaID,
		HighestBid:       s.highestBid,
		WinningPersona:   winner,
		TotalBidCount:    s.totalBidCount,
		ElapsedSeconds:   int(time.Since(s.startedAt).Seconds()),
		ParticipantCount: len(s.participants),
		CompletedAt:      time.Now(),
	}
}

// emitLocked appends an event to the session log and hands it to the buffer.
func (s *Session) emitLocked(ev domain.Event) {
	s.messageLog = append(s.messageLog, ev)
	s.buf.AddMessage(ev)
}

// AddSupplement records user-supplied supporting material. The next bid
// computation sees it.
func (s *Session) AddSupplement(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCtx.Supplements = append(s.sessionCtx.Supplements, domain.Supplement{
		Content:   content,
		CreatedAt: time.Now(),
	})
}

// AddReaction records an audience reaction.
func (s *Session) AddReaction(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCtx.Reactions = append(s.sessionCtx.Reactions, domain.Reaction{
		Kind:      kind,
		CreatedAt: time.Now(),
	})
}

// AddPrediction records a user's winner/price guess.
func (s *Session) AddPrediction(personaID string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCtx.Predictions = append(s.sessionCtx.Predictions, domain.Prediction{
		PersonaID: personaID,
		Amount:    amount,
		CreatedAt: time.Now(),
	})
}

// Context returns a copy of the user-supplied session context.
func (s *Session) Context() domain.SessionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.SessionContext{IdeaID: s.sessionCtx.IdeaID, IdeaText: s.sessionCtx.IdeaText}
	out.Supplements = append(out.Supplements, s.sessionCtx.Supplements...)
	out.Reactions = append(out.Reactions, s.sessionCtx.Reactions...)
	out.Predictions = append(out.Predictions, s.sessionCtx.Predictions...)
	return out
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.participants))
	for i, p := range s.participants {
		ids[i] = p.ID
	}

	return domain.SessionSnapshot{
		IdeaID:          s.IdeaID,
		Phase:           s.phase,
		TimeRemaining:   s.timeRemaining,
		Participants:    ids,
		CurrentBids:     copyBids(s.currentBids),
		HighestBid:      s.highestBid,
		AccumulatedCost: s.accumulatedCost,
		StartedAt:       s.startedAt,
	}
}

// MessageLog returns a copy of the emitted event sequence.
func (s *Session) MessageLog() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.messageLog))
	copy(out, s.messageLog)
	return out
}

// Terminated reports whether the session has reached its exit state.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// BufferStats exposes the delivery counters of the session's buffer.
func (s *Session) BufferStats() buffer.Stats {
	return s.buf.Stats()
}

func copyBids(bids map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(bids))
	for id, amount := range bids {
		out[id] = amount
	}
	return out
}

func supplementTexts(supplements []domain.Supplement) []string {
	if len(supplements) == 0 {
		return nil
	}
	out := make([]string, len(supplements))
	for i, sup := range supplements {
		out[i] = sup.Content
	}
	return out
}
