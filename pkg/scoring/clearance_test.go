package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClearanceFor(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{-1, "Spectator"},
		{0, "Spectator"},
		{49, "Spectator"},
		{50, "Verified"},
		{74, "Verified"},
		{75, "Trusted"},
		{99, "Trusted"},
		{100, "Elite"},
		{150, "Elite"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClearanceFor(tt.score).Label, "score %d", tt.score)
	}
}

func TestClearance_AtLeast(t *testing.T) {
	assert.True(t, ClearanceElite.AtLeast(ClearanceTrusted))
	assert.True(t, ClearanceVerified.AtLeast(ClearanceVerified))
	assert.False(t, ClearanceSpectator.AtLeast(ClearanceVerified))

	tiers := Tiers()
	for i := 1; i < len(tiers); i++ {
		assert.Greater(t, tiers[i].Rank, tiers[i-1].Rank)
	}
}

func TestParseClearance(t *testing.T) {
	c, err := ParseClearance(" trusted ")
	assert.NoError(t, err)
	assert.Equal(t, ClearanceTrusted, c)

	c, err = ParseClearance("ELITE")
	assert.NoError(t, err)
	assert.Equal(t, ClearanceElite, c)

	_, err = ParseClearance("admin")
	assert.ErrorContains(t, err, "unknown clearance")
}
