// Package dataset loads the article collection and its search index from a
// configured source and reconciles the two into a Snapshot.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/errors"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

// Snapshot is one consistent version of the articles and their raw index.
// Version is a SHA-256 digest of both and changes whenever either does.
type Snapshot struct {
	Articles []article.Article
	Index    index.RawIndex
	Version  string
}

// NewSnapshot pairs articles with raw and computes the version digest.
func NewSnapshot(articles []article.Article, raw index.RawIndex) (*Snapshot, error) {
	h := sha256.New()
	if err := json.NewEncoder(h).Encode(articles); err != nil {
		return nil, fmt.Errorf("hashing articles: %w", err)
	}
	if err := EncodeIndex(h, raw); err != nil {
		return nil, fmt.Errorf("hashing index: %w", err)
	}
	return &Snapshot{
		Articles: articles,
		Index:    raw,
		Version:  hex.EncodeToString(h.Sum(nil))[:16],
	}, nil
}

// Source produces snapshots.
type Source interface {
	Name() string
	Load(ctx context.Context) (*Snapshot, error)
}

// NewSource returns the Source selected by cfg. db is only used by the
// postgres source and may be nil otherwise.
func NewSource(cfg config.DatasetConfig, db ReadOnlyDB) (Source, error) {
	switch cfg.Source {
	case config.SourceEmbedded:
		return Embedded(), nil
	case config.SourceFile:
		return NewFileSource(cfg.ArticlesPath, cfg.IndexPath), nil
	case config.SourcePostgres:
		if db == nil {
			return nil, fmt.Errorf("%w: postgres source needs a database connection", errors.ErrDatasetUnavailable)
		}
		return NewPostgresSource(db), nil
	default:
		return nil, fmt.Errorf("%w: unknown dataset source %q", errors.ErrInvalidInput, cfg.Source)
	}
}

// Load reads a snapshot from src and checks that every id in the index names
// a loaded article. In strict mode a dangling id fails the load with
// ErrSnapshotMismatch; otherwise dangling ids are pruned and logged.
func Load(ctx context.Context, src Source, strict bool) (*Snapshot, error) {
	log := logger.WithComponent("dataset", "source", src.Name())
	start := time.Now()

	snap, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s dataset: %w", src.Name(), err)
	}
	snap, dangling, err := Reconcile(snap, strict)
	if err != nil {
		return nil, err
	}
	if len(dangling) > 0 {
		log.Warn("pruned index ids with no article", "count", len(dangling), "ids", dangling)
	}
	log.Info("dataset loaded",
		"articles", len(snap.Articles),
		"terms", len(snap.Index),
		"version", snap.Version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

// Reconcile returns snap with its index restricted to known articles, plus
// the dangling ids that were removed.
func Reconcile(snap *Snapshot, strict bool) (*Snapshot, []int64, error) {
	known := make(map[int64]struct{}, len(snap.Articles))
	for _, a := range snap.Articles {
		known[a.ID] = struct{}{}
	}
	isKnown := func(id int64) bool {
		_, ok := known[id]
		return ok
	}
	idx, err := index.Build(snap.Index)
	if err != nil {
		return nil, nil, err
	}
	dangling := idx.Verify(isKnown)
	if len(dangling) == 0 {
		return snap, nil, nil
	}
	if strict {
		return nil, dangling, fmt.Errorf("%w: %d ids, first %d", errors.ErrSnapshotMismatch, len(dangling), dangling[0])
	}
	pruned, err := NewSnapshot(snap.Articles, idx.Prune(isKnown).Entries())
	if err != nil {
		return nil, nil, err
	}
	return pruned, dangling, nil
}
