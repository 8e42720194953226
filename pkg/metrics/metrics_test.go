package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncIssued("Trusted", 75)
	m.IncIssued("Trusted", 75)
	m.IncVerification("valid")
	m.IncVerification("expired")
	m.IncVerification("expired")
	m.IncRevocation(true)
	m.IncRevocation(false)
	m.ObserveStore("get", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BadgesIssued.WithLabelValues("Trusted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verifications.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Revocations.WithLabelValues("revoked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Revocations.WithLabelValues("noop")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StoreDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncIssued("Elite", 100)
		m.IncVerification("valid")
		m.IncRevocation(true)
		m.ObserveStore("put", time.Now())
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
