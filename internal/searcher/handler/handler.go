// Package handler exposes the library over HTTP: article listing and
// lookup, keyword search, the article list view, and cache administration.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pinnedref/pinnedref/internal/analytics"
	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/library"
	"github.com/pinnedref/pinnedref/internal/searcher/cache"
	"github.com/pinnedref/pinnedref/internal/searcher/parser"
	"github.com/pinnedref/pinnedref/pkg/errors"
	"github.com/pinnedref/pinnedref/pkg/logger"
	"github.com/pinnedref/pinnedref/pkg/metrics"
	"github.com/pinnedref/pinnedref/pkg/middleware"
)

// SearchResponse is the body of GET /api/v1/search. For the empty query
// Articles holds the whole collection and IDs is empty.
type SearchResponse struct {
	Query    string            `json:"query"`
	Empty    bool              `json:"empty"`
	Count    int               `json:"count"`
	IDs      []int64           `json:"ids"`
	Articles []article.Article `json:"articles"`
	CacheHit bool              `json:"cache_hit"`
}

type CountResponse struct {
	Query string `json:"query"`
	Empty bool   `json:"empty"`
	Count int    `json:"count"`
}

type SummariesResponse struct {
	Query     string            `json:"query"`
	Count     int               `json:"count"`
	Summaries []article.Summary `json:"summaries"`
}

type ArticlesResponse struct {
	Count    int               `json:"count"`
	Articles []article.Article `json:"articles"`
}

type Handler struct {
	library       *library.Library
	cache         *cache.QueryCache
	collector     *analytics.Collector
	metrics       *metrics.Metrics
	maxQueryBytes int
	logger        *slog.Logger
}

// New builds a Handler. queryCache, collector and m may be nil to disable
// caching, analytics and metrics.
func New(lib *library.Library, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, maxQueryBytes int) *Handler {
	return &Handler{
		library:       lib,
		cache:         queryCache,
		collector:     collector,
		metrics:       m,
		maxQueryBytes: maxQueryBytes,
		logger:        logger.WithComponent("search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/articles", h.Articles)
	mux.HandleFunc("GET /api/v1/articles/{id}", h.Article)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/count", h.Count)
	mux.HandleFunc("GET /api/v1/search/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/summaries", h.Summaries)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Articles(w http.ResponseWriter, r *http.Request) {
	all := h.library.All()
	h.writeJSON(w, http.StatusOK, ArticlesResponse{Count: len(all), Articles: all})
}

func (h *Handler) Article(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest, "article id %q is not an integer", r.PathValue("id")))
		return
	}
	a, err := h.library.Article(id)
	h.collector.TrackView(analytics.ViewEvent{
		ArticleID: id,
		Found:     err == nil,
		Source:    analytics.SourceHTTP,
		RequestID: middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query, ok := h.query(w, r)
	if !ok {
		return
	}
	res, hit := h.search(r.Context(), query)
	resp := SearchResponse{
		Query:    res.Query,
		Empty:    res.Empty,
		Count:    res.Count,
		IDs:      res.IDs,
		CacheHit: hit,
	}
	if res.Empty {
		resp.Articles = h.library.All()
	} else {
		resp.Articles = h.library.Select(res.IDs)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Count answers the as-you-type match count without article bodies.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	query, ok := h.query(w, r)
	if !ok {
		return
	}
	res, _ := h.search(r.Context(), query)
	h.writeJSON(w, http.StatusOK, CountResponse{Query: res.Query, Empty: res.Empty, Count: res.Count})
}

func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	query, ok := h.query(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.library.Explain(query))
}

func (h *Handler) Summaries(w http.ResponseWriter, r *http.Request) {
	query, ok := h.query(w, r)
	if !ok {
		return
	}
	var summaries []article.Summary
	if query == "" {
		summaries = h.library.AllSummaries()
	} else {
		res, _ := h.search(r.Context(), query)
		summaries = h.library.Summaries(res.IDs)
	}
	h.writeJSON(w, http.StatusOK, SummariesResponse{Query: query, Count: len(summaries), Summaries: summaries})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.library.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"errors":   stats.Errors,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"circuit":  stats.Circuit,
		"version":  stats.Version,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// query reads the q parameter. Missing q is the empty query.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := r.URL.Query().Get("q")
	if h.maxQueryBytes > 0 && len(q) > h.maxQueryBytes {
		h.writeError(w, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest, "query longer than %d bytes", h.maxQueryBytes))
		return "", false
	}
	return q, true
}

// search evaluates query through the cache when one is configured and
// records metrics and analytics for it.
func (h *Handler) search(ctx context.Context, query string) (library.Result, bool) {
	start := time.Now()
	var (
		res  library.Result
		hit  bool
		used bool
	)
	if h.cache != nil && !parser.Parse(query).IsEmpty() {
		ids, cacheHit, err := h.cache.GetOrCompute(ctx, query, func() ([]int64, error) {
			return h.library.SearchContext(ctx, query).IDs, nil
		})
		if err != nil {
			logger.FromContext(ctx).Warn("cached search failed, evaluating directly", "error", err)
			res = h.library.SearchContext(ctx, query)
		} else {
			res = library.Result{Query: query, IDs: ids, Count: len(ids)}
			hit = cacheHit
			used = true
		}
	} else {
		res = h.library.SearchContext(ctx, query)
	}
	elapsed := time.Since(start)

	if h.metrics != nil {
		h.metrics.ObserveSearch(res.Empty, res.Count, hit, elapsed.Seconds())
	}
	logger.FromContext(ctx).Info("search completed",
		"query", query,
		"matches", res.Count,
		"empty", res.Empty,
		"cache_hit", hit,
		"latency_us", elapsed.Microseconds(),
	)
	h.collector.TrackSearch(analytics.SearchEvent{
		Query:         query,
		Normalized:    parser.Parse(query).Normalized,
		Empty:         res.Empty,
		Matches:       res.Count,
		LatencyMicros: elapsed.Microseconds(),
		CacheUsed:     used,
		CacheHit:      hit,
		Source:        analytics.SourceHTTP,
		Version:       h.library.Version(),
		RequestID:     middleware.GetRequestID(ctx),
	})
	return res, hit
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, errors.HTTPStatusCode(err), map[string]string{"error": errors.Message(err)})
}
