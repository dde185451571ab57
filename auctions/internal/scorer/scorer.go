// Package scorer implements the default desirability score for auction
// domains: a weighted blend of name length, lexical quality and TLD tier,
// clamped to [0, 1]. Weights and tier tables are operator-tunable via a
// YAML file; the zero Config scores with built-in defaults.
package scorer

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"
)

// Weights blends the component scores. They are normalised at scoring time,
// so only their ratios matter.
type Weights struct {
	Length  float64 `yaml:"length"`
	Lexical float64 `yaml:"lexical"`
	TLD     float64 `yaml:"tld"`
	Metrics float64 `yaml:"metrics"`
}

// Config is the scorer tuning table.
type Config struct {
	Weights Weights `yaml:"weights"`
	// TLDTiers maps a public suffix (without leading dot) to a tier score
	// in [0, 1], e.g. "com": 1.0, "net": 0.8.
	TLDTiers map[string]float64 `yaml:"tld_tiers"`
	// DefaultTier is used for suffixes absent from TLDTiers.
	DefaultTier float64 `yaml:"default_tier"`
}

func (c *Config) defaults() {
	if c.Weights == (Weights{}) {
		c.Weights = Weights{Length: 0.3, Lexical: 0.4, TLD: 0.25, Metrics: 0.05}
	}
	if c.TLDTiers == nil {
		c.TLDTiers = map[string]float64{
			"com": 1.0,
			"net": 0.8,
			"org": 0.8,
			"io":  0.75,
			"co":  0.7,
			"ai":  0.7,
			"dev": 0.6,
			"app": 0.6,
		}
	}
	if c.DefaultTier <= 0 {
		c.DefaultTier = 0.4
	}
}

// Load reads a scorer config from a YAML file and applies defaults for
// missing fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scorer: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("scorer: parse config: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}

// Scorer computes desirability scores. Stateless and safe for concurrent use.
type Scorer struct {
	cfg Config
}

// New creates a Scorer. A nil config scores with built-in defaults.
func New(cfg *Config) *Scorer {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.defaults()
	return &Scorer{cfg: c}
}

// Input carries the record attributes the score is derived from.
type Input struct {
	Domain   string
	HasStats bool
}

// Score returns the desirability score for a normalized domain in [0, 1].
// It fails on input it cannot decompose (empty label, no usable suffix);
// the scoring engine marks such records processed with a null score.
func (s *Scorer) Score(in Input) (float64, error) {
	domain := strings.ToLower(strings.TrimSpace(in.Domain))
	if domain == "" {
		return 0, fmt.Errorf("scorer: empty domain")
	}

	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == domain {
		return 0, fmt.Errorf("scorer: bare public suffix %q", domain)
	}
	label := strings.TrimSuffix(domain, "."+suffix)
	// Multi-label names (sub.example.com) score on the registrable label.
	if i := strings.LastIndexByte(label, '.'); i >= 0 {
		label = label[i+1:]
	}
	if label == "" {
		return 0, fmt.Errorf("scorer: no registrable label in %q", domain)
	}

	w := s.cfg.Weights
	wsum := w.Length + w.Lexical + w.TLD + w.Metrics
	if wsum <= 0 {
		return 0, fmt.Errorf("scorer: zero weight sum")
	}

	metrics := 0.0
	if in.HasStats {
		metrics = 1.0
	}

	score := (w.Length*lengthScore(label) +
		w.Lexical*lexicalScore(label) +
		w.TLD*s.tierScore(suffix) +
		w.Metrics*metrics) / wsum

	return clamp01(score), nil
}

// lengthScore favours short labels: 4 characters or fewer score 1.0,
// decaying linearly to 0 at 20+.
func lengthScore(label string) float64 {
	n := len([]rune(label))
	switch {
	case n <= 4:
		return 1.0
	case n >= 20:
		return 0.0
	default:
		return 1.0 - float64(n-4)/16.0
	}
}

// lexicalScore estimates how word-like a label is: digits and hyphens
// penalise, vowel presence and consonant/vowel alternation reward.
func lexicalScore(label string) float64 {
	runes := []rune(label)
	if len(runes) == 0 {
		return 0
	}

	var digits, hyphens, vowels, transitions int
	prevVowel := false
	for i, r := range runes {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '-':
			hyphens++
		}
		v := isVowel(r)
		if v {
			vowels++
		}
		if i > 0 && v != prevVowel {
			transitions++
		}
		prevVowel = v
	}

	n := float64(len(runes))
	score := 1.0
	score -= 0.5 * float64(digits) / n
	score -= 0.6 * float64(hyphens) / n

	// A pronounceable label has vowels and alternates between vowel and
	// consonant runs; all-consonant or all-vowel strings read as noise.
	vowelRatio := float64(vowels) / n
	if vowelRatio == 0 || vowelRatio == 1 {
		score -= 0.4
	}
	if len(runes) > 1 {
		score -= 0.2 * (1.0 - float64(transitions)/float64(len(runes)-1))
	}

	return clamp01(score)
}

func (s *Scorer) tierScore(suffix string) float64 {
	if tier, ok := s.cfg.TLDTiers[suffix]; ok {
		return tier
	}
	return s.cfg.DefaultTier
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
