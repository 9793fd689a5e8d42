package domain

// RiskAppetite is a persona's declared bidding temperament.
type RiskAppetite string

const (
	RiskAggressive   RiskAppetite = "aggressive"
	RiskBalanced     RiskAppetite = "balanced"
	RiskConservative RiskAppetite = "conservative"
)

// SpeechLine is one canned utterance a persona can produce, tagged with the
// emotion it is delivered in.
type SpeechLine struct {
	Text    string `yaml:"text" json:"text"`
	Emotion string `yaml:"emotion" json:"emotion"`
}

// Persona is a simulated bidding participant with fixed traits. Personas are
// static catalog data; sessions never mutate them.
type Persona struct {
	ID           string       `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Specialty    string       `yaml:"specialty" json:"specialty"`
	RiskAppetite RiskAppetite `yaml:"risk_appetite" json:"risk_appetite"`
	Rivals       []string     `yaml:"rivals,omitempty" json:"rivals,omitempty"`
	Lines        []SpeechLine `yaml:"lines,omitempty" json:"-"`
}
