// Package strategy implements the deterministic bid pricing engine.
//
// ComputeBid is a pure function: identical persona and context always produce
// an identical strategy. Callers rely on this for auditability, so nothing in
// this package reads clocks, random sources, or ambient state.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/ideaforge/bidtheater/domain"
)

// Config holds the tunable pricing parameters.
type Config struct {
	MinBid float64
	MaxBid float64

	SupplementCap     float64
	CompetitorCap     float64
	ConfidenceCap     float64
	TrendCap          float64
	PersonalityBound  float64
	BaseConfidence    float64
	CompetitorRate    float64
	SupplementCeiling float64
}

// DefaultConfig returns the canonical pricing parameters.
func DefaultConfig() Config {
	return Config{
		MinBid:            50,
		MaxBid:            500,
		SupplementCap:     50,
		CompetitorCap:     30,
		ConfidenceCap:     20,
		TrendCap:          20,
		PersonalityBound:  10,
		BaseConfidence:    0.7,
		CompetitorRate:    0.15,
		SupplementCeiling: 40,
	}
}

// Context is the snapshot of session state a bid is priced against. The
// session hands the engine a pre-batch copy of CurrentBids, so no persona's
// computation within one batch can observe another's result.
type Context struct {
	IdeaText    string
	Supplements []string
	CurrentBids map[string]float64
}

// Factors is the named decomposition of a bid's contributions.
type Factors struct {
	SupplementQuality  float64 `json:"supplement_quality"`
	CompetitorPressure float64 `json:"competitor_pressure"`
	BaseConfidence     float64 `json:"base_confidence"`
	MarketTrend        float64 `json:"market_trend"`
	PersonalityBonus   float64 `json:"personality_bonus"`
}

// BidStrategy is the structured result of pricing one persona's bid. It is
// created fresh on every computation and never mutated afterwards.
type BidStrategy struct {
	PersonaID string   `json:"persona_id"`
	BaseBid   float64  `json:"base_bid"`
	FinalBid  float64  `json:"final_bid"`
	MinBid    float64  `json:"min_bid"`
	MaxBid    float64  `json:"max_bid"`
	Factors   Factors  `json:"adjustment_factors"`
	Reasoning []string `json:"reasoning"`
}

// Engine computes bid strategies.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given pricing parameters. Zero or
// inverted bounds are replaced by defaults rather than rejected.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxBid <= cfg.MinBid {
		cfg.MinBid, cfg.MaxBid = def.MinBid, def.MaxBid
	}
	if cfg.SupplementCeiling <= 0 {
		cfg.SupplementCeiling = def.SupplementCeiling
	}
	if cfg.CompetitorRate <= 0 {
		cfg.CompetitorRate = def.CompetitorRate
	}
	return &Engine{cfg: cfg}
}

// Floor returns the configured global minimum bid.
func (e *Engine) Floor() float64 {
	return e.cfg.MinBid
}

// ComputeBid prices one persona's bid against the supplied context.
func (e *Engine) ComputeBid(p domain.Persona, ctx Context) *BidStrategy {
	cfg := e.cfg
	st := &BidStrategy{
		PersonaID: p.ID,
		BaseBid:   cfg.MinBid,
		MinBid:    cfg.MinBid,
		MaxBid:    cfg.MaxBid,
	}

	st.Factors.SupplementQuality = e.supplementQuality(ctx.Supplements, st)
	st.Factors.CompetitorPressure = e.competitorPressure(p.ID, ctx.CurrentBids, st)
	st.Factors.BaseConfidence = e.baseConfidence(st)
	st.Factors.MarketTrend = e.marketTrend(ctx.IdeaText, st)
	st.Factors.PersonalityBonus = e.personalityBonus(p, ctx, st)

	sum := st.BaseBid +
		st.Factors.SupplementQuality +
		st.Factors.CompetitorPressure +
		st.Factors.BaseConfidence +
		st.Factors.MarketTrend +
		st.Factors.PersonalityBonus

	final := sum
	if final < cfg.MinBid {
		final = cfg.MinBid
	}
	if final > cfg.MaxBid {
		final = cfg.MaxBid
	}
	final = math.Round(final*10) / 10

	if final != math.Round(sum*10)/10 {
		st.Reasoning = append(st.Reasoning,
			fmt.Sprintf("clamped %.1f into [%.1f, %.1f]", sum, cfg.MinBid, cfg.MaxBid))
	}
	st.FinalBid = final
	return st
}

// ComputeBatch prices all personas independently against the same context
// snapshot. Results within a batch never see each other.
func (e *Engine) ComputeBatch(personas []domain.Persona, ctx Context) map[string]*BidStrategy {
	out := make(map[string]*BidStrategy, len(personas))
	for _, p := range personas {
		out[p.ID] = e.ComputeBid(p, ctx)
	}
	return out
}

// supplementQuality scores user supplements by length tier, curated keyword
// hits, and quantifiable evidence, then normalizes against an empirical
// ceiling before scaling to the cap.
func (e *Engine) supplementQuality(supplements []string, st *BidStrategy) float64 {
	if len(supplements) == 0 {
		st.Reasoning = append(st.Reasoning, "supplement quality +0.0: no supplements provided")
		return 0
	}

	var raw float64
	for _, s := range supplements {
		switch n := len(s); {
		case n >= 300:
			raw += 12
		case n >= 150:
			raw += 8
		case n >= 50:
			raw += 5
		default:
			raw += 2
		}
		raw += float64(countDomainKeywords(s)) * 3
		if hasDigits(s) {
			raw += 2
		}
		if hasPercent(s) {
			raw += 2
		}
		if hasCurrencyToken(s) {
			raw += 2
		}
	}

	norm := raw / e.cfg.SupplementCeiling
	if norm > 1 {
		norm = 1
	}
	pts := norm * e.cfg.SupplementCap
	st.Reasoning = append(st.Reasoning,
		fmt.Sprintf("supplement quality +%.1f: %d supplements scored %.1f against ceiling %.0f",
			pts, len(supplements), raw, e.cfg.SupplementCeiling))
	return pts
}

// competitorPressure raises the bid when another persona is already above the
// base, matching the highest competitor by a margin rather than to the limit.
func (e *Engine) competitorPressure(personaID string, bids map[string]float64, st *BidStrategy) float64 {
	var maxCompetitor float64
	for id, amount := range bids {
		if id == personaID {
			continue
		}
		if amount > maxCompetitor {
			maxCompetitor = amount
		}
	}

	if maxCompetitor <= st.BaseBid {
		st.Reasoning = append(st.Reasoning, "competitor pressure +0.0: no competitor above base bid")
		return 0
	}

	pts := e.cfg.CompetitorRate * (maxCompetitor - st.BaseBid)
	if pts > e.cfg.CompetitorCap {
		pts = e.cfg.CompetitorCap
	}
	st.Reasoning = append(st.Reasoning,
		fmt.Sprintf("competitor pressure +%.1f: highest competitor at %.1f", pts, maxCompetitor))
	return pts
}

// baseConfidence is the non-contextual floor representing innate assurance.
func (e *Engine) baseConfidence(st *BidStrategy) float64 {
	pts := e.cfg.BaseConfidence * e.cfg.ConfidenceCap
	st.Reasoning = append(st.Reasoning,
		fmt.Sprintf("base confidence +%.1f: baseline %.2f of cap %.0f",
			pts, e.cfg.BaseConfidence, e.cfg.ConfidenceCap))
	return pts
}

// marketTrend scans the idea text against the trending-domain table.
func (e *Engine) marketTrend(ideaText string, st *BidStrategy) float64 {
	score, hits := trendScore(ideaText)
	pts := score * e.cfg.TrendCap
	sort.Strings(hits)
	if len(hits) == 0 {
		st.Reasoning = append(st.Reasoning, "market trend +0.0: no trending domains detected")
		return 0
	}
	st.Reasoning = append(st.Reasoning,
		fmt.Sprintf("market trend +%.1f: matched %v", pts, hits))
	return pts
}

// personalityBonus applies specialty match, risk appetite, and rivalry
// escalation, bounded to the configured range.
func (e *Engine) personalityBonus(p domain.Persona, ctx Context, st *BidStrategy) float64 {
	var pts float64
	var notes []string

	if matchesSpecialty(p.Specialty, ctx.IdeaText) {
		pts += 5
		notes = append(notes, fmt.Sprintf("specialty %q matches idea", p.Specialty))
	}

	switch p.RiskAppetite {
	case domain.RiskAggressive:
		pts += 3
		notes = append(notes, "aggressive appetite")
	case domain.RiskConservative:
		pts -= 3
		notes = append(notes, "conservative appetite")
	}

	for _, rival := range p.Rivals {
		if ctx.CurrentBids[rival] > 0 {
			pts += 2
			notes = append(notes, fmt.Sprintf("rivalry with %s escalates", rival))
			break
		}
	}

	if pts > e.cfg.PersonalityBound {
		pts = e.cfg.PersonalityBound
	}
	if pts < -e.cfg.PersonalityBound {
		pts = -e.cfg.PersonalityBound
	}

	if len(notes) == 0 {
		st.Reasoning = append(st.Reasoning, "personality +0.0: neutral profile")
	} else {
		st.Reasoning = append(st.Reasoning, fmt.Sprintf("personality %+.1f: %v", pts, notes))
	}
	return pts
}
