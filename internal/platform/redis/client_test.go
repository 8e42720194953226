package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConnectsAndRecordsStats(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := prometheus.NewRegistry()

	c, err := New(context.Background(), "redis://"+mr.Addr(), reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Health(context.Background()))
	c.RecordPoolStats()
	assert.GreaterOrEqual(t, testutil.ToFloat64(c.totalConns), 1.0)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), "", nil)
	assert.Error(t, err)

	_, err = New(context.Background(), "not-a-url://", nil)
	assert.ErrorContains(t, err, "parse redis URL")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), "redis://"+addr, nil)
	assert.ErrorContains(t, err, "ping")
}

func TestRecordPoolStats_NoRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.NotPanics(t, c.RecordPoolStats)
}
