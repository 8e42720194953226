package scoring

import (
	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
)

// Breakdown factor names.
const (
	FactorBase        = "base"
	FactorEduVerified = "edu_verified"
	factorProvider    = "provider:"
)

// Contribution is one line of a score breakdown.
type Contribution struct {
	Factor string `json:"factor"`
	Points int    `json:"points"`
}

// Result is the outcome of scoring a set of anchors.
type Result struct {
	Score       int            `json:"score"`
	Breakdown   []Contribution `json:"breakdown"`
	EduVerified bool           `json:"edu_verified"`
	Clearance   Clearance      `json:"clearance"`
}

// ProviderFactor returns the breakdown factor name for a provider.
func ProviderFactor(p anchor.Provider) string {
	return factorProvider + string(p)
}

// Score computes the capped trust score of anchors.
//
// The result depends only on which providers are present and whether the edu
// provider's anchor is verified, so any ordering or duplication of the same
// anchors yields the same Result.
func (e *Engine) Score(anchors []anchor.IdentityAnchor) Result {
	result := Result{Breakdown: []Contribution{}}
	if len(anchors) == 0 {
		result.Clearance = ClearanceFor(0)
		return result
	}

	present := make(map[anchor.Provider]bool, len(anchors))
	for _, a := range anchors {
		present[a.Provider] = true
		if a.Provider == e.weights.EduProvider && a.IsEduVerified {
			result.EduVerified = true
		}
	}

	total := 0
	add := func(factor string, pts int) {
		if pts == 0 {
			return
		}
		total += pts
		result.Breakdown = append(result.Breakdown, Contribution{Factor: factor, Points: pts})
	}

	add(FactorBase, e.weights.Base)
	for _, p := range e.providers {
		if present[p] {
			add(ProviderFactor(p), e.weights.Providers[p])
		}
	}
	if result.EduVerified {
		add(FactorEduVerified, e.weights.EduBonus)
	}

	if total > e.weights.Max {
		total = e.weights.Max
	}
	result.Score = total
	result.Clearance = ClearanceFor(total)
	return result
}
