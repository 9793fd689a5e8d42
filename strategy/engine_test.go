package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ideaforge/bidtheater/domain"
)

func neutralPersona() domain.Persona {
	return domain.Persona{ID: "p1", Name: "Neutral", Specialty: "none", RiskAppetite: domain.RiskBalanced}
}

func TestComputeBidBaselineOnly(t *testing.T) {
	e := NewEngine(DefaultConfig())
	st := e.ComputeBid(neutralPersona(), Context{IdeaText: "a plain idea"})

	// No supplements, no competitors, neutral personality: only the
	// confidence floor contributes.
	want := DefaultConfig().MinBid + DefaultConfig().ConfidenceCap*DefaultConfig().BaseConfidence
	assert.Equal(t, want, st.FinalBid)
	assert.Equal(t, 0.0, st.Factors.SupplementQuality)
	assert.Equal(t, 0.0, st.Factors.CompetitorPressure)
	assert.Equal(t, 0.0, st.Factors.MarketTrend)
	assert.Equal(t, 0.0, st.Factors.PersonalityBonus)
}

func TestComputeBidDeterministic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ctx := Context{
		IdeaText:    "an AI agent marketplace for health data",
		Supplements: []string{"We have 1200 users and 40% month-over-month growth, $10k MRR."},
		CurrentBids: map[string]float64{"p2": 120, "p3": 90},
	}
	p := domain.Persona{ID: "p1", Specialty: "technical", RiskAppetite: domain.RiskAggressive, Rivals: []string{"p2"}}

	a := e.ComputeBid(p, ctx)
	b := e.ComputeBid(p, ctx)
	assert.Equal(t, a.FinalBid, b.FinalBid)
	assert.Equal(t, a.Reasoning, b.Reasoning)
}

func TestComputeBidCompetitorPressure(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)
	ctx := Context{
		IdeaText:    "a plain idea",
		CurrentBids: map[string]float64{"p1": 100},
	}

	st := e.ComputeBid(domain.Persona{ID: "p2", RiskAppetite: domain.RiskBalanced}, ctx)

	wantPressure := cfg.CompetitorRate * (100 - cfg.MinBid)
	if wantPressure > cfg.CompetitorCap {
		wantPressure = cfg.CompetitorCap
	}
	assert.Equal(t, wantPressure, st.Factors.CompetitorPressure)

	// A persona's own bid is not a competitor.
	own := e.ComputeBid(domain.Persona{ID: "p1", RiskAppetite: domain.RiskBalanced}, ctx)
	assert.Equal(t, 0.0, own.Factors.CompetitorPressure)
}

func TestComputeBidWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(cfg)

	long := ""
	for i := 0; i < 20; i++ {
		long += "market revenue growth user traction benchmark 99% $5M pilot partnership "
	}
	ctx := Context{
		IdeaText:    "AI agent blockchain climate health fintech robotics saas automation",
		Supplements: []string{long, long, long},
		CurrentBids: map[string]float64{"rival": cfg.MaxBid},
	}
	p := domain.Persona{ID: "p1", Specialty: "business", RiskAppetite: domain.RiskAggressive, Rivals: []string{"rival"}}

	st := e.ComputeBid(p, ctx)
	if st.FinalBid < cfg.MinBid || st.FinalBid > cfg.MaxBid {
		t.Fatalf("final bid %.1f outside [%.1f, %.1f]", st.FinalBid, cfg.MinBid, cfg.MaxBid)
	}
	assert.LessOrEqual(t, st.Factors.SupplementQuality, cfg.SupplementCap)
	assert.LessOrEqual(t, st.Factors.CompetitorPressure, cfg.CompetitorCap)
	assert.LessOrEqual(t, st.Factors.MarketTrend, cfg.TrendCap)
	assert.LessOrEqual(t, st.Factors.PersonalityBonus, cfg.PersonalityBound)
}

func TestComputeBidReasoningOrder(t *testing.T) {
	e := NewEngine(DefaultConfig())
	st := e.ComputeBid(neutralPersona(), Context{IdeaText: "a plain idea"})

	if len(st.Reasoning) != 5 {
		t.Fatalf("expected 5 reasoning lines, got %d: %v", len(st.Reasoning), st.Reasoning)
	}
	assert.Contains(t, st.Reasoning[0], "supplement quality")
	assert.Contains(t, st.Reasoning[1], "competitor pressure")
	assert.Contains(t, st.Reasoning[2], "base confidence")
	assert.Contains(t, st.Reasoning[3], "market trend")
	assert.Contains(t, st.Reasoning[4], "personality")
}

func TestComputeBidPersonalityAdjustments(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ctx := Context{IdeaText: "a technical development platform"}

	specialist := e.ComputeBid(domain.Persona{ID: "p1", Specialty: "technical", RiskAppetite: domain.RiskBalanced}, ctx)
	assert.Equal(t, 5.0, specialist.Factors.PersonalityBonus)

	conservative := e.ComputeBid(domain.Persona{ID: "p2", Specialty: "none", RiskAppetite: domain.RiskConservative}, ctx)
	assert.Equal(t, -3.0, conservative.Factors.PersonalityBonus)

	rivalCtx := Context{IdeaText: "a plain idea", CurrentBids: map[string]float64{"p1": 80}}
	rival := e.ComputeBid(domain.Persona{ID: "p3", Specialty: "none", RiskAppetite: domain.RiskBalanced, Rivals: []string{"p1"}}, rivalCtx)
	assert.Equal(t, 2.0, rival.Factors.PersonalityBonus)
}

func TestComputeBatchUsesSharedSnapshot(t *testing.T) {
	e := NewEngine(DefaultConfig())
	personas := []domain.Persona{
		{ID: "p1", RiskAppetite: domain.RiskBalanced},
		{ID: "p2", RiskAppetite: domain.RiskBalanced},
	}
	ctx := Context{IdeaText: "a plain idea", CurrentBids: map[string]float64{"p1": 100}}

	batch := e.ComputeBatch(personas, ctx)
	if len(batch) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(batch))
	}
	// p2 sees p1's pre-batch bid, p1 does not see itself.
	assert.Greater(t, batch["p2"].Factors.CompetitorPressure, 0.0)
	assert.Equal(t, 0.0, batch["p1"].Factors.CompetitorPressure)
	// Batch members match individual computation against the same snapshot.
	assert.Equal(t, e.ComputeBid(personas[1], ctx).FinalBid, batch["p2"].FinalBid)
}

func TestSupplementScoring(t *testing.T) {
	e := NewEngine(DefaultConfig())
	weak := e.ComputeBid(neutralPersona(), Context{
		IdeaText:    "a plain idea",
		Supplements: []string{"short note"},
	})
	strong := e.ComputeBid(neutralPersona(), Context{
		IdeaText: "a plain idea",
		Supplements: []string{
			"Our market analysis shows 45% retention and $120k revenue with strong user growth across three pilot partnerships, and the prototype benchmark beats every competitor we measured in customer conversion.",
		},
	})
	assert.Greater(t, strong.Factors.SupplementQuality, weak.Factors.SupplementQuality)
	assert.LessOrEqual(t, strong.Factors.SupplementQuality, DefaultConfig().SupplementCap)
}
