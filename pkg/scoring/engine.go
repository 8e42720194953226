// Package scoring computes the trust score of a subject from its identity anchors.
package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
)

// MaxScore is the hard cap of every trust score.
const MaxScore = 100

// ErrInvalidWeights is returned when a weight table does not add up to its cap.
var ErrInvalidWeights = errors.New("invalid scoring weights")

// Weights is the fixed weight table of the trust score.
// Base + every provider weight + EduBonus must equal Max exactly.
type Weights struct {
	// Base is awarded once when at least one anchor is present.
	Base int `json:"base"`

	// Providers maps each scored provider to the points its anchor earns.
	Providers map[anchor.Provider]int `json:"providers"`

	// EduBonus is awarded when the EduProvider anchor is present and edu-verified.
	EduBonus int `json:"edu_bonus"`

	// EduProvider is the email-bearing provider that can carry the edu flag.
	EduProvider anchor.Provider `json:"edu_provider"`

	// Max is the score cap.
	Max int `json:"max"`
}

// DefaultWeights returns the production weight table:
// base 20, gmail 25, linkedin 30, verified institutional email 25.
func DefaultWeights() Weights {
	return Weights{
		Base: 20,
		Providers: map[anchor.Provider]int{
			anchor.ProviderGmail:    25,
			anchor.ProviderLinkedIn: 30,
		},
		EduBonus:    25,
		EduProvider: anchor.ProviderGmail,
		Max:         MaxScore,
	}
}

// Total returns the sum of every weight.
func (w Weights) Total() int {
	total := w.Base + w.EduBonus
	for _, pts := range w.Providers {
		total += pts
	}
	return total
}

// Validate enforces that weights are non-negative and sum to Max exactly.
func (w Weights) Validate() error {
	if w.Max <= 0 || w.Max > MaxScore {
		return fmt.Errorf("%w: max must be in (0, %d], got %d", ErrInvalidWeights, MaxScore, w.Max)
	}
	if w.Base < 0 || w.EduBonus < 0 {
		return fmt.Errorf("%w: negative weight", ErrInvalidWeights)
	}
	for p, pts := range w.Providers {
		if pts < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidWeights, p)
		}
	}
	if w.EduBonus > 0 && w.EduProvider == "" {
		return fmt.Errorf("%w: edu bonus requires an edu provider", ErrInvalidWeights)
	}
	if total := w.Total(); total != w.Max {
		return fmt.Errorf("%w: weights sum to %d, want %d", ErrInvalidWeights, total, w.Max)
	}
	return nil
}

func (w Weights) clone() Weights {
	out := w
	out.Providers = make(map[anchor.Provider]int, len(w.Providers))
	for p, pts := range w.Providers {
		out.Providers[p] = pts
	}
	return out
}

// Engine is the trust score engine. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	weights   Weights
	providers []anchor.Provider
}

// NewEngine validates w and returns an Engine scoring with it.
func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	w = w.clone()
	providers := make([]anchor.Provider, 0, len(w.Providers))
	for p := range w.Providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return &Engine{weights: w, providers: providers}, nil
}

// MustDefaultEngine returns an Engine using DefaultWeights.
func MustDefaultEngine() *Engine {
	e, err := NewEngine(DefaultWeights())
	if err != nil {
		panic(err)
	}
	return e
}

// Weights returns a copy of the engine's weight table.
func (e *Engine) Weights() Weights {
	return e.weights.clone()
}
