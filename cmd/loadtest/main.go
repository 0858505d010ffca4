// Command loadtest drives concurrent keyword searches against a running
// server. Queries are built from the search index vocabulary, so every run
// mixes single terms with AND and OR combinations that actually match.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pinnedref/pinnedref/internal/dataset"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	queries     []string
	countEvery  int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	numQueries := flag.Int("queries", 200, "number of distinct queries to cycle through")
	countEvery := flag.Int("count-every", 3, "send every nth request to /search/count instead of /search; 0 disables")
	seed := flag.Uint64("seed", 1, "query generation seed")
	flag.Parse()

	logger.SetupWriter(os.Stderr, "info", "text")

	snap, err := dataset.Embedded().Load(context.Background())
	if err != nil {
		slog.Error("failed to load vocabulary", "error", err)
		os.Exit(1)
	}
	vocab := make([]string, 0, len(snap.Index))
	for _, e := range snap.Index {
		vocab = append(vocab, e.Term)
	}

	opts := options{
		baseURL:     *baseURL,
		concurrency: *concurrency,
		duration:    *duration,
		queries:     buildQueries(vocab, *numQueries, *seed),
		countEvery:  *countEvery,
	}
	slog.Info("load test starting",
		"target", opts.baseURL,
		"concurrency", opts.concurrency,
		"duration", opts.duration,
		"queries", len(opts.queries),
	)

	stats, err := run(opts)
	if err != nil {
		slog.Error("load test failed", "error", err)
		os.Exit(1)
	}
	stats.report(os.Stdout, opts.duration)
	if stats.total.Load() == 0 {
		fmt.Println("\nWARNING: no requests completed. Is the server running?")
		os.Exit(1)
	}
}

func run(opts options) (*stats, error) {
	st := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for n := w; ctx.Err() == nil; n++ {
				query := opts.queries[n%len(opts.queries)]
				path := "/api/v1/search"
				if opts.countEvery > 0 && n%opts.countEvery == 0 {
					path = "/api/v1/search/count"
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.baseURL+path+"?q="+url.QueryEscape(query), nil)
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}
				st.record(do(client, req))
			}
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				slog.Info("progress", "requests", st.total.Load(), "errors", st.errors.Load())
			}
		}
	})
	return st, g.Wait()
}

func do(client *http.Client, req *http.Request) result {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	data, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err == nil {
		json.Unmarshal(data, &body)
	}
	return result{latency: latency, status: resp.StatusCode, cacheHit: body.CacheHit, err: err}
}
