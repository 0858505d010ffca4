// Package library is the read-only context that owns the article catalog,
// the inverted index and the query evaluator built from one dataset
// snapshot. Every view of the collection goes through it.
package library

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/dataset"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/internal/searcher/executor"
	"github.com/pinnedref/pinnedref/internal/searcher/parser"
	"github.com/pinnedref/pinnedref/pkg/errors"
	"github.com/pinnedref/pinnedref/pkg/logger"
	"github.com/pinnedref/pinnedref/pkg/metrics"
	"github.com/pinnedref/pinnedref/pkg/tracing"
)

// Result is the outcome of a keyword search. Empty marks the empty query,
// for which callers show the unfiltered collection instead of IDs.
type Result struct {
	Query string  `json:"query"`
	Empty bool    `json:"empty"`
	IDs   []int64 `json:"ids"`
	Count int     `json:"count"`
}

// Stats describes the loaded dataset.
type Stats struct {
	Articles int    `json:"articles"`
	Terms    int    `json:"terms"`
	Postings int    `json:"postings"`
	Version  string `json:"version"`
}

type Option func(*Library)

// WithMetrics publishes dataset gauges and counts invalid query patterns.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Library) {
		l.metrics = m
	}
}

// WithTracer records parse and evaluate spans for each search.
func WithTracer(t *tracing.Tracer) Option {
	return func(l *Library) {
		l.tracer = t
	}
}

// Library is immutable after New and safe for concurrent use.
type Library struct {
	catalog   *article.Catalog
	index     *index.Index
	evaluator *executor.Evaluator
	version   string
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	logger    *slog.Logger
}

// New builds the catalog and index from snap. Every id in the index must name
// an article; run dataset.Reconcile first to prune a lenient snapshot.
func New(snap *dataset.Snapshot, opts ...Option) (*Library, error) {
	l := &Library{
		version: snap.Version,
		logger:  logger.WithComponent("library"),
	}
	for _, opt := range opts {
		opt(l)
	}

	catalog, err := article.NewCatalog(snap.Articles)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	idx, err := index.Build(snap.Index)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	if dangling := idx.Verify(catalog.Has); len(dangling) > 0 {
		return nil, fmt.Errorf("%w: %d ids, first %d", errors.ErrSnapshotMismatch, len(dangling), dangling[0])
	}
	l.catalog = catalog
	l.index = idx
	l.evaluator = executor.New(idx, executor.WithInvalidPatternHook(l.invalidPattern))

	if l.metrics != nil {
		l.metrics.DatasetArticles.Set(float64(catalog.Len()))
		l.metrics.DatasetTerms.Set(float64(idx.Len()))
	}
	l.logger.Info("library ready",
		"articles", catalog.Len(),
		"terms", idx.Len(),
		"postings", idx.PostingCount(),
		"version", snap.Version,
	)
	return l, nil
}

func (l *Library) invalidPattern(group string, err error) {
	if l.metrics != nil {
		l.metrics.InvalidPatternsTotal.Inc()
	}
}

// Version identifies the snapshot the library was built from.
func (l *Library) Version() string {
	return l.version
}

// All returns every article, most cards first.
func (l *Library) All() []article.Article {
	return l.catalog.All()
}

// Article returns the article with id or an ErrArticleNotFound error.
func (l *Library) Article(id int64) (article.Article, error) {
	return l.catalog.Get(id)
}

// Search evaluates text against the index.
func (l *Library) Search(text string) Result {
	return l.SearchContext(context.Background(), text)
}

// SearchContext is Search with the request context, used for tracing.
func (l *Library) SearchContext(ctx context.Context, text string) Result {
	ctx, span := l.tracer.Start(ctx, "search", logger.RequestID(ctx))
	defer span.End()

	_, parseSpan := l.tracer.Start(ctx, "search.parse", "")
	plan := parser.Parse(text)
	parseSpan.SetAttr("groups", len(plan.NonEmptyGroups()))
	parseSpan.End()

	if plan.IsEmpty() {
		span.SetAttr("empty", true)
		return Result{Query: text, Empty: true, IDs: []int64{}}
	}

	_, evalSpan := l.tracer.Start(ctx, "search.evaluate", "")
	ids := l.evaluator.EvaluatePlan(plan).Sorted()
	evalSpan.SetAttr("matches", len(ids))
	evalSpan.End()

	return Result{Query: text, IDs: ids, Count: len(ids)}
}

// Filter returns the articles matching text, most cards first. The empty
// query returns every article.
func (l *Library) Filter(text string) []article.Article {
	res := l.Search(text)
	if res.Empty {
		return l.All()
	}
	return l.catalog.Select(res.IDs)
}

// Select returns the articles for ids, most cards first. Unknown ids are
// skipped.
func (l *Library) Select(ids []int64) []article.Article {
	return l.catalog.Select(ids)
}

// Summaries returns the list view of ids, most highlights first.
func (l *Library) Summaries(ids []int64) []article.Summary {
	return l.catalog.Summaries(ids)
}

// AllSummaries returns the list view of every article.
func (l *Library) AllSummaries() []article.Summary {
	return l.catalog.Summaries(l.catalog.IDs())
}

// Explain reports how each OR-group of text was resolved.
func (l *Library) Explain(text string) executor.Explanation {
	return l.evaluator.Explain(text)
}

func (l *Library) Stats() Stats {
	return Stats{
		Articles: l.catalog.Len(),
		Terms:    l.index.Len(),
		Postings: l.index.PostingCount(),
		Version:  l.version,
	}
}
