package main

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type result struct {
	latency  time.Duration
	status   int
	cacheHit bool
	err      error
}

type stats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *stats) record(r result) {
	s.total.Add(1)
	if r.err != nil {
		s.errors.Add(1)
		return
	}
	if r.status >= 200 && r.status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if r.cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, r.latency)
	s.codes[r.status]++
	s.mu.Unlock()
}

func (s *stats) report(w io.Writer, d time.Duration) {
	total := s.total.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", s.errors.Load())
	fmt.Fprintf(w, "Cache Hits:      %d\n", s.cacheHits.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/d.Seconds())
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(s.codes))
	for code, n := range s.codes {
		counts[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	slices.Sort(codes)
	fmt.Fprintln(w, "\n=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}
}

// percentile uses the nearest-rank method on sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

// buildQueries returns n queries drawn from vocab: a third single terms,
// a third "a and b" and a third "a or b".
func buildQueries(vocab []string, n int, seed uint64) []string {
	if len(vocab) == 0 || n <= 0 {
		return []string{""}
	}
	r := rand.New(rand.NewPCG(seed, seed))
	pick := func() string { return vocab[r.IntN(len(vocab))] }
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		switch i % 3 {
		case 0:
			out = append(out, pick())
		case 1:
			out = append(out, pick()+" and "+pick())
		default:
			out = append(out, pick()+" or "+pick())
		}
	}
	return out
}
