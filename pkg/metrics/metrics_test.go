package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSearch(true, 0, false, 0.001)
	m.ObserveSearch(false, 0, false, 0.001)
	m.ObserveSearch(false, 3, true, 0.002)
	m.ObserveSearch(false, 5, false, 0.002)

	tests := []struct {
		label string
		want  float64
	}{
		{ResultEmptyQuery, 1},
		{ResultZero, 1},
		{ResultMatch, 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(tt.label)); got != tt.want {
			t.Errorf("search_queries_total{%s} = %v, want %v", tt.label, got, tt.want)
		}
	}
	if got := testutil.CollectAndCount(m.SearchLatency); got != 2 {
		t.Errorf("search_latency_seconds series = %d, want 2 (hit and miss)", got)
	}
}

func TestNewOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
