package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObservePlan(OpDecompose, "fallback", "configuration_absent", 10*time.Millisecond)
	rec.ObservePlan(OpDecompose, "fallback", "configuration_absent", 5*time.Millisecond)
	rec.ObservePlan(OpSplit, "ai", "", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.resultsTotal.WithLabelValues(OpDecompose, "fallback", "configuration_absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.resultsTotal.WithLabelValues(OpSplit, "ai", "")))
	assert.Equal(t, 2, testutil.CollectAndCount(rec.requestDuration))
}
