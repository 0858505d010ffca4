package dataset

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/errors"
	"github.com/pinnedref/pinnedref/pkg/resilience"
)

const (
	articlesQuery = `SELECT id, title, domain, url, cards, ranking FROM articles ORDER BY id`
	termsQuery    = `SELECT term, article_ids FROM search_terms ORDER BY position`
)

var errScan = stderrors.New("scanning")

// ReadOnlyDB runs a function inside a read-only transaction.
// *postgres.Client satisfies it.
type ReadOnlyDB interface {
	ReadOnly(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// rows is the subset of *sql.Rows the scanners use.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// PostgresSource reads the articles and search_terms tables in one
// read-only transaction, retrying transient failures with backoff.
type PostgresSource struct {
	db    ReadOnlyDB
	retry resilience.RetryConfig
}

func NewPostgresSource(db ReadOnlyDB) *PostgresSource {
	return &PostgresSource{
		db:    db,
		retry: resilience.RetryConfig{MaxAttempts: 5},
	}
}

func (s *PostgresSource) Name() string {
	return "postgres"
}

func (s *PostgresSource) Load(ctx context.Context) (*Snapshot, error) {
	var (
		articles []article.Article
		raw      index.RawIndex
	)
	err := resilience.Retry(ctx, "dataset-postgres-load", s.retry, func() error {
		return permanentIfSchema(s.db.ReadOnly(ctx, func(tx *sql.Tx) error {
			ar, err := tx.QueryContext(ctx, articlesQuery)
			if err != nil {
				return fmt.Errorf("querying articles: %w", err)
			}
			articles, err = scanArticles(ar)
			ar.Close()
			if err != nil {
				return err
			}
			tr, err := tx.QueryContext(ctx, termsQuery)
			if err != nil {
				return fmt.Errorf("querying search terms: %w", err)
			}
			raw, err = scanTerms(tr)
			tr.Close()
			return err
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatasetUnavailable, err)
	}
	return NewSnapshot(articles, raw)
}

func scanArticles(r rows) ([]article.Article, error) {
	out := make([]article.Article, 0, 64)
	for r.Next() {
		var (
			a     article.Article
			cards []string
		)
		if err := r.Scan(&a.ID, &a.Title, &a.Domain, &a.URL, pq.Array(&cards), &a.Ranking); err != nil {
			return nil, fmt.Errorf("%w article: %w", errScan, err)
		}
		a.Cards = cards
		out = append(out, a)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}
	return out, nil
}

func scanTerms(r rows) (index.RawIndex, error) {
	out := make(index.RawIndex, 0, 256)
	for r.Next() {
		var (
			term string
			ids  []int64
		)
		if err := r.Scan(&term, pq.Array(&ids)); err != nil {
			return nil, fmt.Errorf("%w search term: %w", errScan, err)
		}
		out = append(out, index.RawEntry{Term: term, IDs: ids})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("iterating search terms: %w", err)
	}
	return out, nil
}

// permanentIfSchema stops retries for errors a retry cannot fix: a missing
// table or column (SQLSTATE class 42) or a row that does not scan.
func permanentIfSchema(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code.Class() == "42" {
		return resilience.Permanent(err)
	}
	if stderrors.Is(err, errScan) {
		return resilience.Permanent(err)
	}
	return err
}
