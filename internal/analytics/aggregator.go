package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pinnedref/pinnedref/pkg/logger"
)

const (
	latencyWindow     = 10000
	maxTrackedQueries = 10000
	topLimit          = 10
)

// Stats is the aggregated view served by the analytics endpoint.
type Stats struct {
	TotalSearches     int64          `json:"total_searches"`
	EmptyQueries      int64          `json:"empty_queries"`
	ZeroResultCount   int64          `json:"zero_result_count"`
	CacheHits         int64          `json:"cache_hits"`
	CacheMisses       int64          `json:"cache_misses"`
	ArticleViews      int64          `json:"article_views"`
	MissingViews      int64          `json:"missing_article_views"`
	AvgLatencyMicros  float64        `json:"avg_latency_us"`
	P50LatencyMicros  int64          `json:"p50_latency_us"`
	P95LatencyMicros  int64          `json:"p95_latency_us"`
	P99LatencyMicros  int64          `json:"p99_latency_us"`
	TopQueries        []QueryCount   `json:"top_queries"`
	ZeroResultQueries []QueryCount   `json:"zero_result_queries"`
	TopArticles       []ArticleCount `json:"top_articles"`
	QueriesPerMinute  float64        `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type ArticleCount struct {
	ArticleID int64 `json:"article_id"`
	Count     int64 `json:"count"`
}

// Consumer feeds messages to a handler until its context ends.
// *kafka.Consumer satisfies it.
type Consumer interface {
	Start(ctx context.Context) error
}

// Aggregator folds search and view events into running statistics. Latency
// percentiles cover the most recent events only.
type Aggregator struct {
	mu          sync.Mutex
	stats       Stats
	latencies   []int64
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	views       map[int64]int64
	startTime   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:   make([]int64, 0, latencyWindow),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		views:       make(map[int64]int64),
		startTime:   time.Now(),
		now:         time.Now,
		logger:      logger.WithComponent("analytics-aggregator"),
	}
}

// Run consumes events until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, consumer Consumer) error {
	a.logger.Info("analytics aggregator starting")
	return consumer.Start(ctx)
}

// HandleMessage decodes one published event. Undecodable or unknown events
// are logged and skipped so they are committed rather than redelivered.
func (a *Aggregator) HandleMessage(ctx context.Context, key, value []byte) error {
	var header struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &header); err != nil {
		a.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
		return nil
	}
	switch header.Type {
	case EventSearch:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			a.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		a.RecordSearch(e)
	case EventArticleView:
		var e ViewEvent
		if err := json.Unmarshal(value, &e); err != nil {
			a.logger.Error("failed to decode view event", "error", err)
			return nil
		}
		a.RecordView(e)
	default:
		a.logger.Warn("skipping unknown analytics event", "type", header.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalSearches++
	switch {
	case !e.CacheUsed:
	case e.CacheHit:
		a.stats.CacheHits++
	default:
		a.stats.CacheMisses++
	}
	a.recordLatency(e.LatencyMicros)

	if e.Empty {
		a.stats.EmptyQueries++
		return
	}
	q := strings.ToLower(strings.TrimSpace(e.Query))
	bump(a.queries, q)
	if e.Matches == 0 {
		a.stats.ZeroResultCount++
		bump(a.zeroQueries, q)
	}
}

func (a *Aggregator) RecordView(e ViewEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !e.Found {
		a.stats.MissingViews++
		return
	}
	a.stats.ArticleViews++
	if _, ok := a.views[e.ArticleID]; ok || len(a.views) < maxTrackedQueries {
		a.views[e.ArticleID]++
	}
}

// recordLatency keeps the last latencyWindow samples in a ring.
func (a *Aggregator) recordLatency(us int64) {
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, us)
		return
	}
	a.latencies[a.next] = us
	a.next = (a.next + 1) % latencyWindow
}

func bump(counts map[string]int64, key string) {
	if _, ok := counts[key]; ok || len(counts) < maxTrackedQueries {
		counts[key]++
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMicros = float64(sum) / float64(len(sorted))
		stats.P50LatencyMicros = percentile(sorted, 50)
		stats.P95LatencyMicros = percentile(sorted, 95)
		stats.P99LatencyMicros = percentile(sorted, 99)
	}
	stats.TopQueries = topQueries(a.queries, topLimit)
	stats.ZeroResultQueries = topQueries(a.zeroQueries, topLimit)
	stats.TopArticles = topArticles(a.views, topLimit)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topQueries(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func topArticles(counts map[int64]int64, n int) []ArticleCount {
	result := make([]ArticleCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, ArticleCount{ArticleID: id, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ArticleID < result[j].ArticleID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
