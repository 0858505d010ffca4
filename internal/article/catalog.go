package article

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pinnedref/pinnedref/pkg/errors"
)

// Catalog is the read-only set of articles keyed by id.
type Catalog struct {
	byID    map[int64]Article
	ordered []int64
}

// NewCatalog validates articles and indexes them by id. Ids must be positive
// and unique, and every article needs a title. The input slice is copied.
func NewCatalog(articles []Article) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[int64]Article, len(articles)),
		ordered: make([]int64, 0, len(articles)),
	}
	for i, a := range articles {
		if a.ID <= 0 {
			return nil, fmt.Errorf("%w: article %d has non-positive id %d", errors.ErrInvalidInput, i, a.ID)
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate article id %d", errors.ErrInvalidInput, a.ID)
		}
		if strings.TrimSpace(a.Title) == "" {
			return nil, fmt.Errorf("%w: article %d has no title", errors.ErrInvalidInput, a.ID)
		}
		a.Cards = append([]string(nil), a.Cards...)
		c.byID[a.ID] = a
		c.ordered = append(c.ordered, a.ID)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.less(c.ordered[i], c.ordered[j])
	})
	return c, nil
}

// less orders by card count descending, then id ascending.
func (c *Catalog) less(a, b int64) bool {
	ca, cb := len(c.byID[a].Cards), len(c.byID[b].Cards)
	if ca != cb {
		return ca > cb
	}
	return a < b
}

// Get returns the article with the given id, or an ErrArticleNotFound error.
func (c *Catalog) Get(id int64) (Article, error) {
	a, ok := c.byID[id]
	if !ok {
		return Article{}, errors.NotFound(id)
	}
	return a, nil
}

// Has reports whether id names an article.
func (c *Catalog) Has(id int64) bool {
	_, ok := c.byID[id]
	return ok
}

func (c *Catalog) Len() int {
	return len(c.byID)
}

// IDs returns every id, most cards first.
func (c *Catalog) IDs() []int64 {
	return append([]int64(nil), c.ordered...)
}

// All returns every article, most cards first.
func (c *Catalog) All() []Article {
	out := make([]Article, 0, len(c.ordered))
	for _, id := range c.ordered {
		out = append(out, c.byID[id])
	}
	return out
}

// Select returns the articles for ids in catalog order. Unknown ids are
// skipped.
func (c *Catalog) Select(ids []int64) []Article {
	sorted := make([]int64, 0, len(ids))
	for _, id := range ids {
		if c.Has(id) {
			sorted = append(sorted, id)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return c.less(sorted[i], sorted[j])
	})
	out := make([]Article, 0, len(sorted))
	for _, id := range sorted {
		out = append(out, c.byID[id])
	}
	return out
}

// Summaries reduces the articles for ids, highlights descending.
func (c *Catalog) Summaries(ids []int64) []Summary {
	articles := c.Select(ids)
	out := make([]Summary, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.Summarize())
	}
	return out
}
