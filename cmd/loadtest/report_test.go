package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBuildQueries(t *testing.T) {
	vocab := []string{"cat", "dog"}
	got := buildQueries(vocab, 6, 7)
	if len(got) != 6 {
		t.Fatalf("got %d queries, want 6", len(got))
	}
	for i, q := range got {
		switch i % 3 {
		case 0:
			if strings.Contains(q, " ") {
				t.Errorf("query %d = %q, want a single term", i, q)
			}
		case 1:
			if !strings.Contains(q, " and ") {
				t.Errorf("query %d = %q, want an and query", i, q)
			}
		case 2:
			if !strings.Contains(q, " or ") {
				t.Errorf("query %d = %q, want an or query", i, q)
			}
		}
	}
	if diff := cmp.Diff(got, buildQueries(vocab, 6, 7)); diff != "" {
		t.Errorf("same seed gave different queries (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff([]string{""}, buildQueries(nil, 5, 1)); diff != "" {
		t.Errorf("empty vocabulary mismatch (-want +got):\n%s", diff)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 1},
		{50, 5},
		{95, 10},
		{100, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %v", got)
	}
}

func TestStatsReport(t *testing.T) {
	st := newStats()
	st.record(result{latency: time.Millisecond, status: 200, cacheHit: true})
	st.record(result{latency: 2 * time.Millisecond, status: 400})
	st.record(result{err: errors.New("refused")})

	var buf bytes.Buffer
	st.report(&buf, time.Second)
	for _, want := range []string{"Total Requests:  3", "Successful:      1", "Errors:          2", "Cache Hits:      1", "  200: 1", "  400: 1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report missing %q:\n%s", want, buf.String())
		}
	}
}
