package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGathersSetValues(t *testing.T) {
	m := New()
	m.ChainHeight.Set(42)
	m.PeerCount.Set(7)
	m.BlocksMined.Inc()
	m.BlocksRejected.WithLabelValues("invalid").Inc()

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.InDelta(t, 42, testutil.ToFloat64(m.ChainHeight), 0.0001)
	assert.InDelta(t, 7, testutil.ToFloat64(m.PeerCount), 0.0001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BlocksMined), 0.0001)
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.ChainHeight.Set(1)
	b.ChainHeight.Set(2)

	assert.InDelta(t, 1, testutil.ToFloat64(a.ChainHeight), 0.0001)
	assert.InDelta(t, 2, testutil.ToFloat64(b.ChainHeight), 0.0001)
}
