package article

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/pinnedref/pinnedref/pkg/errors"
)

func sampleArticles() []Article {
	return []Article{
		{ID: 10, Title: "Two cards", Domain: "a.com", Cards: []string{"a", "b"}},
		{ID: 3, Title: "Three cards", Domain: "b.com", Cards: []string{"a", "b", "c"}},
		{ID: 7, Title: "Also two", Domain: "c.com", Cards: []string{"a", "b"}},
		{ID: 1, Title: "One card", Domain: "d.com", Cards: []string{"a"}},
	}
}

func ids(articles []Article) []int64 {
	out := make([]int64, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.ID)
	}
	return out
}

func TestCatalogOrdering(t *testing.T) {
	c, err := NewCatalog(sampleArticles())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if diff := cmp.Diff([]int64{3, 7, 10, 1}, ids(c.All())); diff != "" {
		t.Errorf("All() order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{3, 7, 10, 1}, c.IDs()); diff != "" {
		t.Errorf("IDs() order mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogGet(t *testing.T) {
	c, err := NewCatalog(sampleArticles())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	a, err := c.Get(7)
	if err != nil || a.Title != "Also two" {
		t.Errorf("Get(7) = %+v, %v", a, err)
	}
	_, err = c.Get(999)
	if !errors.Is(err, apperrors.ErrArticleNotFound) {
		t.Errorf("Get(999) error = %v, want ErrArticleNotFound", err)
	}
}

func TestCatalogSelectAndSummaries(t *testing.T) {
	c, err := NewCatalog(sampleArticles())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if diff := cmp.Diff([]int64{3, 10, 1}, ids(c.Select([]int64{1, 10, 3, 42}))); diff != "" {
		t.Errorf("Select() mismatch (-want +got):\n%s", diff)
	}
	want := []Summary{
		{ID: 3, Title: "Three cards", Domain: "b.com", Highlights: 3},
		{ID: 1, Title: "One card", Domain: "d.com", Highlights: 1},
	}
	if diff := cmp.Diff(want, c.Summaries([]int64{1, 3})); diff != "" {
		t.Errorf("Summaries() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewCatalogRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name     string
		articles []Article
	}{
		{"zero id", []Article{{ID: 0, Title: "x"}}},
		{"duplicate id", []Article{{ID: 1, Title: "x"}, {ID: 1, Title: "y"}}},
		{"missing title", []Article{{ID: 1, Title: "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.articles)
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("NewCatalog() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCatalogCopiesCards(t *testing.T) {
	in := []Article{{ID: 1, Title: "x", Cards: []string{"original"}}}
	c, err := NewCatalog(in)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	in[0].Cards[0] = "mutated"
	a, _ := c.Get(1)
	if a.Cards[0] != "original" {
		t.Errorf("catalog shares card storage with caller: %q", a.Cards[0])
	}
}
