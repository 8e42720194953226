package scoring

import (
	"fmt"
	"strings"
)

// Clearance is a named band of trust scores.
type Clearance struct {
	Label string `json:"label"`
	Rank  int    `json:"rank"`

	// Min is inclusive, Max is exclusive except for the top tier.
	Min int `json:"min"`
	Max int `json:"max"`
}

// Clearance tiers, ordered by rank. Boundaries are inclusive at the lower edge.
var (
	ClearanceSpectator = Clearance{Label: "Spectator", Rank: 0, Min: 0, Max: 50}
	ClearanceVerified  = Clearance{Label: "Verified", Rank: 1, Min: 50, Max: 75}
	ClearanceTrusted   = Clearance{Label: "Trusted", Rank: 2, Min: 75, Max: 100}
	ClearanceElite     = Clearance{Label: "Elite", Rank: 3, Min: 100, Max: 100}
)

// Tiers returns every clearance tier in ascending rank.
func Tiers() []Clearance {
	return []Clearance{ClearanceSpectator, ClearanceVerified, ClearanceTrusted, ClearanceElite}
}

// ClearanceFor maps a score to its tier. Scores outside [0, MaxScore] are clamped.
func ClearanceFor(score int) Clearance {
	switch {
	case score >= MaxScore:
		return ClearanceElite
	case score >= ClearanceTrusted.Min:
		return ClearanceTrusted
	case score >= ClearanceVerified.Min:
		return ClearanceVerified
	default:
		return ClearanceSpectator
	}
}

// AtLeast reports whether c ranks at or above other.
func (c Clearance) AtLeast(other Clearance) bool {
	return c.Rank >= other.Rank
}

// ParseClearance returns the tier with the given label, ignoring case.
func ParseClearance(label string) (Clearance, error) {
	for _, c := range Tiers() {
		if strings.EqualFold(c.Label, strings.TrimSpace(label)) {
			return c, nil
		}
	}
	return Clearance{}, fmt.Errorf("unknown clearance %q", label)
}
