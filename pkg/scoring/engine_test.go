package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
)

func TestDefaultWeights_Valid(t *testing.T) {
	w := DefaultWeights()
	require.NoError(t, w.Validate())
	assert.Equal(t, MaxScore, w.Total())
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *Weights)
	}{
		{"sum below max", func(w *Weights) { w.Base = 10 }},
		{"sum above max", func(w *Weights) { w.Providers[anchor.ProviderLinkedIn] = 40 }},
		{"negative base", func(w *Weights) { w.Base = -5; w.EduBonus = 50 }},
		{"negative provider", func(w *Weights) {
			w.Providers[anchor.ProviderGmail] = -5
			w.Base = 50
		}},
		{"zero max", func(w *Weights) { w.Max = 0 }},
		{"max above cap", func(w *Weights) { w.Max = 120; w.Base = 40 }},
		{"edu bonus without provider", func(w *Weights) { w.EduProvider = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(&w)
			err := w.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidWeights)

			_, err = NewEngine(w)
			assert.ErrorIs(t, err, ErrInvalidWeights)
		})
	}
}

func TestNewEngine_CopiesWeights(t *testing.T) {
	w := DefaultWeights()
	e, err := NewEngine(w)
	require.NoError(t, err)

	w.Providers[anchor.ProviderGmail] = 0
	assert.Equal(t, 25, e.Weights().Providers[anchor.ProviderGmail])

	got := e.Weights()
	got.Providers[anchor.ProviderLinkedIn] = 0
	assert.Equal(t, 30, e.Weights().Providers[anchor.ProviderLinkedIn])
}

func TestNewEngine_CustomWeights(t *testing.T) {
	e, err := NewEngine(Weights{
		Base:      50,
		Providers: map[anchor.Provider]int{anchor.ProviderLinkedIn: 50},
		Max:       100,
	})
	require.NoError(t, err)

	res := e.Score([]anchor.IdentityAnchor{{Provider: anchor.ProviderLinkedIn}})
	assert.Equal(t, 100, res.Score)

	// Gmail is not scored by this table; it only earns the base.
	res = e.Score([]anchor.IdentityAnchor{{Provider: anchor.ProviderGmail, IsEduVerified: true}})
	assert.Equal(t, 50, res.Score)
	assert.False(t, res.EduVerified)
}
