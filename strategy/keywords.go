package strategy

import (
	"strings"
	"unicode"
)

// The keyword tables below are scoring data, not invariants. They are kept in
// one place so tuning them never touches the pricing pipeline.

// domainKeywords earn a flat per-hit bonus when they appear in a supplement.
var domainKeywords = []string{
	"market", "revenue", "user", "growth", "prototype", "patent",
	"customer", "traction", "benchmark", "pilot", "partnership",
	"retention", "conversion", "margin", "roadmap",
}

// trendKeywords map trending domains detected in the idea text to a weight.
// Weights sum and are capped at 1.0 before scaling.
var trendKeywords = map[string]float64{
	"ai":             0.35,
	"agent":          0.25,
	"ml":             0.25,
	"blockchain":     0.20,
	"climate":        0.20,
	"health":         0.20,
	"fintech":        0.20,
	"robotics":       0.20,
	"saas":           0.15,
	"privacy":        0.15,
	"education":      0.15,
	"marketplace":    0.15,
	"automation":     0.15,
	"sustainability": 0.15,
}

// specialtyFamilies groups the words that mark an idea as belonging to a
// persona's specialty. A persona whose Specialty names a family gets a bonus
// when the idea text hits that family.
var specialtyFamilies = map[string][]string{
	"technical": {"technical", "development", "engineering", "api", "infrastructure", "platform", "software"},
	"business":  {"business", "revenue", "market", "sales", "monetization", "pricing"},
	"creative":  {"creative", "design", "brand", "content", "story", "art"},
	"finance":   {"finance", "investment", "funding", "valuation", "capital", "fintech"},
	"product":   {"product", "user", "feature", "experience", "roadmap", "mvp"},
}

// wordSet tokenizes text into lowercase words. Keyword matching is always
// whole-word: "plain" must not hit "ai".
func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// countDomainKeywords returns how many curated domain keywords appear in s.
func countDomainKeywords(s string) int {
	words := wordSet(s)
	n := 0
	for _, kw := range domainKeywords {
		if _, ok := words[kw]; ok {
			n++
		}
	}
	return n
}

// trendScore sums trend keyword weights found in the idea text, capped at 1.0.
func trendScore(ideaText string) (score float64, hits []string) {
	words := wordSet(ideaText)
	for kw, w := range trendKeywords {
		if _, ok := words[kw]; ok {
			score += w
			hits = append(hits, kw)
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, hits
}

// matchesSpecialty reports whether the idea text hits the persona's declared
// specialty keyword family.
func matchesSpecialty(specialty, ideaText string) bool {
	family, ok := specialtyFamilies[strings.ToLower(specialty)]
	if !ok {
		return false
	}
	words := wordSet(ideaText)
	for _, kw := range family {
		if _, ok := words[kw]; ok {
			return true
		}
	}
	return false
}

// Quantifiable evidence markers: digits, percentage signs, currency tokens.

func hasDigits(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func hasPercent(s string) bool {
	return strings.Contains(s, "%")
}

func hasCurrencyToken(s string) bool {
	if strings.ContainsAny(s, "$€¥£") {
		return true
	}
	words := wordSet(s)
	for _, code := range []string{"usd", "eur", "cny", "rmb", "gbp"} {
		if _, ok := words[code]; ok {
			return true
		}
	}
	return false
}
