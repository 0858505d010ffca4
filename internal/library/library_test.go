package library

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/dataset"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/errors"
	"github.com/pinnedref/pinnedref/pkg/metrics"
	"github.com/pinnedref/pinnedref/pkg/tracing"
)

func testSnapshot(t *testing.T) *dataset.Snapshot {
	t.Helper()
	snap, err := dataset.NewSnapshot(
		[]article.Article{
			{ID: 1, Title: "Cats", Domain: "cats.example", Cards: []string{"a"}},
			{ID: 2, Title: "Cats and dogs", Domain: "pets.example", Cards: []string{"a", "b", "c"}},
			{ID: 3, Title: "Dogs", Domain: "dogs.example", Cards: []string{"a", "b"}},
			{ID: 4, Title: "Birds", Domain: "birds.example", Cards: nil},
		},
		index.RawIndex{
			{Term: "cat", IDs: []int64{1, 2}},
			{Term: "dog", IDs: []int64{2, 3}},
		},
	)
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	return snap
}

func newLibrary(t *testing.T, opts ...Option) *Library {
	t.Helper()
	l, err := New(testSnapshot(t), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func articleIDs(articles []article.Article) []int64 {
	out := make([]int64, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.ID)
	}
	return out
}

func TestNewRejectsDanglingIDs(t *testing.T) {
	snap := testSnapshot(t)
	snap.Index = append(snap.Index, index.RawEntry{Term: "ghost", IDs: []int64{99}})
	if _, err := New(snap); !stderrors.Is(err, errors.ErrSnapshotMismatch) {
		t.Errorf("New() error = %v, want ErrSnapshotMismatch", err)
	}
}

func TestNewRejectsInvalidArticles(t *testing.T) {
	snap := testSnapshot(t)
	snap.Articles = append(snap.Articles, article.Article{ID: 1, Title: "dup"})
	if _, err := New(snap); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("New() error = %v, want ErrInvalidInput", err)
	}
}

func TestAllOrderedByCards(t *testing.T) {
	l := newLibrary(t)
	if diff := cmp.Diff([]int64{2, 3, 1, 4}, articleIDs(l.All())); diff != "" {
		t.Errorf("All() order mismatch (-want +got):\n%s", diff)
	}
}

func TestArticle(t *testing.T) {
	l := newLibrary(t)
	a, err := l.Article(3)
	if err != nil {
		t.Fatalf("Article(3) error = %v", err)
	}
	if a.Title != "Dogs" {
		t.Errorf("Article(3).Title = %q, want Dogs", a.Title)
	}
	_, err = l.Article(42)
	if !stderrors.Is(err, errors.ErrArticleNotFound) {
		t.Errorf("Article(42) error = %v, want ErrArticleNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	l := newLibrary(t)
	tests := []struct {
		query string
		want  Result
	}{
		{"cat", Result{Query: "cat", IDs: []int64{1, 2}, Count: 2}},
		{"cat or dog", Result{Query: "cat or dog", IDs: []int64{1, 2, 3}, Count: 3}},
		{"cat and dog", Result{Query: "cat and dog", IDs: []int64{2}, Count: 1}},
		{"bird", Result{Query: "bird", IDs: []int64{}, Count: 0}},
		{"", Result{Query: "", Empty: true, IDs: []int64{}}},
		{"  ", Result{Query: "  ", IDs: []int64{}, Count: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, l.Search(tt.query)); diff != "" {
				t.Errorf("Search(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	l := newLibrary(t)
	if diff := cmp.Diff([]int64{2, 3, 1, 4}, articleIDs(l.Filter(""))); diff != "" {
		t.Errorf("Filter(\"\") mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 3}, articleIDs(l.Filter("dog"))); diff != "" {
		t.Errorf("Filter(dog) mismatch (-want +got):\n%s", diff)
	}
	if got := l.Filter("bird"); len(got) != 0 {
		t.Errorf("Filter(bird) = %v, want none", articleIDs(got))
	}
}

func TestSummaries(t *testing.T) {
	l := newLibrary(t)
	want := []article.Summary{
		{ID: 2, Title: "Cats and dogs", Domain: "pets.example", Highlights: 3},
		{ID: 1, Title: "Cats", Domain: "cats.example", Highlights: 1},
	}
	if diff := cmp.Diff(want, l.Summaries([]int64{1, 2, 77})); diff != "" {
		t.Errorf("Summaries mismatch (-want +got):\n%s", diff)
	}
	if got := len(l.AllSummaries()); got != 4 {
		t.Errorf("AllSummaries() returned %d, want 4", got)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := newLibrary(t, WithMetrics(m))

	want := Stats{Articles: 4, Terms: 2, Postings: 4, Version: l.Version()}
	if diff := cmp.Diff(want, l.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.DatasetArticles); got != 4 {
		t.Errorf("dataset_articles = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.DatasetTerms); got != 2 {
		t.Errorf("dataset_vocabulary_terms = %v, want 2", got)
	}

	l.invalidPattern("(", stderrors.New("bad"))
	if got := testutil.ToFloat64(m.InvalidPatternsTotal); got != 1 {
		t.Errorf("search_invalid_patterns_total = %v, want 1", got)
	}
}

func TestSearchContextWithTracing(t *testing.T) {
	l := newLibrary(t, WithTracer(tracing.NewTracer(true)))
	res := l.SearchContext(context.Background(), "cat and dog")
	if diff := cmp.Diff([]int64{2}, res.IDs); diff != "" {
		t.Errorf("traced search mismatch (-want +got):\n%s", diff)
	}
}

func TestExplain(t *testing.T) {
	l := newLibrary(t)
	exp := l.Explain("cat or dog")
	if exp.Matches != 3 || len(exp.Groups) != 1 {
		t.Errorf("Explain = %+v, want one group with 3 matches", exp)
	}
}
