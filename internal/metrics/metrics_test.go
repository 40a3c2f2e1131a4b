package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveIngest(StatusSucceeded, 10)
	m.ObserveIngest(StatusSucceeded, 5)
	m.ObserveIngest(StatusFailed, 99)
	m.AddStorageBytes("s3", 1024)
	m.AddStorageBytes("s3", 0)
	m.IncStorageParts("s3")
	m.IncStorageParts("s3")
	m.SetCatalogueTables(3)

	assert.InDelta(t, 2, promtestutil.ToFloat64(m.IngestJobs.WithLabelValues(StatusSucceeded)), 0)
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.IngestJobs.WithLabelValues(StatusFailed)), 0)
	assert.InDelta(t, 15, promtestutil.ToFloat64(m.IngestRows), 0)
	assert.InDelta(t, 1024, promtestutil.ToFloat64(m.StorageBytes.WithLabelValues("s3")), 0)
	assert.InDelta(t, 2, promtestutil.ToFloat64(m.StorageParts.WithLabelValues("s3")), 0)
	assert.InDelta(t, 3, promtestutil.ToFloat64(m.CatalogueTables), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIngest(StatusSucceeded, 1)
		m.AddStorageBytes("local", 1)
		m.IncStorageParts("local")
		m.SetCatalogueTables(1)
	})
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
