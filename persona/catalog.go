// Package persona provides the static catalog of simulated bidding
// participants. Catalog data is loaded once at startup and read-only
// afterwards.
package persona

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ideaforge/bidtheater/domain"
)

// Catalog holds the persona trait records, preserving file order.
type Catalog struct {
	personas []domain.Persona
	byID     map[string]domain.Persona
}

type catalogFile struct {
	Personas []domain.Persona `yaml:"personas"`
}

// Parse decodes and validates a catalog payload.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("persona: catalog payload is empty")
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("persona: decode catalog: %w", err)
	}
	return build(file.Personas)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("persona: %s: %w", path, err)
	}
	return c, nil
}

// Load returns the catalog at path, or the built-in default catalog when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return build(defaultPersonas())
	}
	return LoadFile(path)
}

func build(personas []domain.Persona) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("persona: catalog has no personas")
	}
	byID := make(map[string]domain.Persona, len(personas))
	for _, p := range personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona: entry %q missing id", p.Name)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("persona: duplicate id %q", p.ID)
		}
		if p.RiskAppetite == "" {
			p.RiskAppetite = domain.RiskBalanced
		}
		byID[p.ID] = p
	}
	out := make([]domain.Persona, 0, len(personas))
	for _, p := range personas {
		out = append(out, byID[p.ID])
	}
	return &Catalog{personas: out, byID: byID}, nil
}

// All returns every persona in catalog order.
func (c *Catalog) All() []domain.Persona {
	out := make([]domain.Persona, len(c.personas))
	copy(out, c.personas)
	return out
}

// Get looks a persona up by id.
func (c *Catalog) Get(id string) (domain.Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Len returns the catalog size.
func (c *Catalog) Len() int { return len(c.personas) }

// defaultPersonas is the built-in cast used when no catalog file is
// configured.
func defaultPersonas() []domain.Persona {
	return []domain.Persona{
		{
			ID: "techlead", Name: "Teki", Specialty: "technical",
			RiskAppetite: domain.RiskAggressive, Rivals: []string{"bizwhiz"},
			Lines: []domain.SpeechLine{
				{Text: "The architecture here is actually sound.", Emotion: "confident"},
				{Text: "Show me the API surface before I believe the demo.", Emotion: "skeptical"},
				{Text: "I could ship this in a quarter!", Emotion: "excited"},
			},
		},
		{
			ID: "bizwhiz", Name: "Biz", Specialty: "business",
			RiskAppetite: domain.RiskAggressive, Rivals: []string{"techlead"},
			Lines: []domain.SpeechLine{
				{Text: "What is the acquisition cost story?", Emotion: "calm"},
				{Text: "This market is wide open, I want in.", Emotion: "aggressive"},
			},
		},
		{
			ID: "artisan", Name: "Ars", Specialty: "creative",
			RiskAppetite: domain.RiskBalanced,
			Lines: []domain.SpeechLine{
				{Text: "The brand potential is underrated here.", Emotion: "thoughtful"},
				{Text: "Users will love the feel of this.", Emotion: "excited"},
			},
		},
		{
			ID: "bookkeeper", Name: "Ledger", Specialty: "finance",
			RiskAppetite: domain.RiskConservative,
			Lines: []domain.SpeechLine{
				{Text: "The unit economics need another pass.", Emotion: "skeptical"},
				{Text: "I will pay for proof, not promises.", Emotion: "calm"},
			},
		},
		{
			ID: "shipit", Name: "Pro", Specialty: "product",
			RiskAppetite: domain.RiskBalanced,
			Lines: []domain.SpeechLine{
				{Text: "The onboarding flow decides this one.", Emotion: "thoughtful"},
				{Text: "Retention will tell us everything.", Emotion: "calm"},
			},
		},
	}
}
