package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestNew_RegistersEveryMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
}

func TestObserveMetric_SetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	score := 12.5
	r.ObserveMetric(0.97, &score, true)

	require.Equal(t, 0.97, gaugeValue(t, r.DataQualityScore))
	require.Equal(t, 12.5, gaugeValue(t, r.AccumulationScorePct))
	require.Equal(t, 1.0, gaugeValue(t, r.AccumulationIsAnomaly))
}

func TestObserveMetric_NilScoreLeavesGaugeUntouched(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveMetric(0.5, nil, false)

	require.Equal(t, 0.0, gaugeValue(t, r.AccumulationScorePct))
	require.Equal(t, 0.0, gaugeValue(t, r.AccumulationIsAnomaly))
}
