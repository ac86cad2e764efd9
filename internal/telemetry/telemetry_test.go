package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio    float64
		expected string
	}{
		{ratio: 1, expected: "root:AlwaysOnSampler"},
		{ratio: 2, expected: "root:AlwaysOnSampler"},
		{ratio: 0, expected: "root:AlwaysOffSampler"},
		{ratio: -1, expected: "root:AlwaysOffSampler"},
		{ratio: 0.25, expected: "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		require.Contains(t, sampler(tt.ratio).Description(), tt.expected)
	}
}

func TestConfig_metricInterval(t *testing.T) {
	require.Equal(t, 10*time.Second, Config{}.metricInterval())
	require.Equal(t, 10*time.Second, Config{MetricInterval: -time.Second}.metricInterval())
	require.Equal(t, time.Minute, Config{MetricInterval: time.Minute}.metricInterval())
}

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.Same(t, m, GetMetrics())
	require.NotNil(t, m.ClaimsTotal)
	require.NotNil(t, m.ActiveStreams)
}
