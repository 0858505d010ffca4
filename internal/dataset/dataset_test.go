package dataset

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/errors"
	"github.com/pinnedref/pinnedref/pkg/resilience"
)

const articlesJSON = `[
  {"bookmark_id": 1, "title": "Go", "url": "https://go.dev", "domain": "go.dev", "cards": ["a", "b"], "ranking": 1},
  {"bookmark_id": 2, "title": "Rust", "url": "https://rust-lang.org", "domain": "rust-lang.org", "cards": ["c"], "ranking": 2}
]`

func TestDecodeIndexKeepsOrder(t *testing.T) {
	raw, err := DecodeIndex(strings.NewReader(`{"zebra": [2], "apple": [1, 1], "empty": [], "nil": null}`))
	if err != nil {
		t.Fatalf("DecodeIndex() error = %v", err)
	}
	want := index.RawIndex{
		{Term: "zebra", IDs: []int64{2}},
		{Term: "apple", IDs: []int64{1, 1}},
		{Term: "empty", IDs: []int64{}},
		{Term: "nil", IDs: nil},
	}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("DecodeIndex mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeIndexRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"array", `[1, 2]`},
		{"string ids", `{"cat": ["1"]}`},
		{"truncated", `{"cat": [1]`},
		{"empty input", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIndex(strings.NewReader(tt.input))
			if !stderrors.Is(err, errors.ErrInvalidIndex) {
				t.Errorf("DecodeIndex() error = %v, want ErrInvalidIndex", err)
			}
		})
	}
}

func TestEncodeIndexRoundTrip(t *testing.T) {
	raw := index.RawIndex{
		{Term: "b", IDs: []int64{3, 1}},
		{Term: "a \"quoted\"", IDs: nil},
	}
	var buf bytes.Buffer
	if err := EncodeIndex(&buf, raw); err != nil {
		t.Fatalf("EncodeIndex() error = %v", err)
	}
	got, err := DecodeIndex(&buf)
	if err != nil {
		t.Fatalf("DecodeIndex() error = %v", err)
	}
	want := index.RawIndex{
		{Term: "b", IDs: []int64{3, 1}},
		{Term: "a \"quoted\"", IDs: []int64{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeArticles(t *testing.T) {
	articles, err := DecodeArticles(strings.NewReader(articlesJSON))
	if err != nil {
		t.Fatalf("DecodeArticles() error = %v", err)
	}
	want := []article.Article{
		{ID: 1, Title: "Go", URL: "https://go.dev", Domain: "go.dev", Cards: []string{"a", "b"}, Ranking: 1},
		{ID: 2, Title: "Rust", URL: "https://rust-lang.org", Domain: "rust-lang.org", Cards: []string{"c"}, Ranking: 2},
	}
	if diff := cmp.Diff(want, articles); diff != "" {
		t.Errorf("DecodeArticles mismatch (-want +got):\n%s", diff)
	}
	if _, err := DecodeArticles(strings.NewReader(`{"bookmark_id": 1}`)); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("DecodeArticles(object) error = %v, want ErrInvalidInput", err)
	}
}

func TestFSSourceLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"data/article_data.json": {Data: []byte(articlesJSON)},
		"data/search_index.json": {Data: []byte(`{"go": [1], "rust": [2], "lang": [2, 1]}`)},
	}
	src := NewFSSource("test", fsys, "data/article_data.json", "data/search_index.json")
	snap, err := Load(context.Background(), src, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Articles) != 2 || len(snap.Index) != 3 {
		t.Fatalf("snapshot has %d articles and %d terms, want 2 and 3", len(snap.Articles), len(snap.Index))
	}
	if snap.Index[2].Term != "lang" {
		t.Errorf("index order lost: last term = %q", snap.Index[2].Term)
	}
	if snap.Version == "" {
		t.Error("snapshot has no version")
	}
}

func TestFSSourceMissingFile(t *testing.T) {
	src := NewFSSource("test", fstest.MapFS{}, "a.json", "b.json")
	_, err := Load(context.Background(), src, true)
	if !stderrors.Is(err, errors.ErrDatasetUnavailable) {
		t.Errorf("Load() error = %v, want ErrDatasetUnavailable", err)
	}
}

func TestEmbeddedSampleIsConsistent(t *testing.T) {
	snap, err := Load(context.Background(), Embedded(), true)
	if err != nil {
		t.Fatalf("Load(embedded) error = %v", err)
	}
	if len(snap.Articles) == 0 || len(snap.Index) == 0 {
		t.Fatal("embedded sample is empty")
	}
	if _, err := article.NewCatalog(snap.Articles); err != nil {
		t.Errorf("embedded articles invalid: %v", err)
	}
}

func TestVersionTracksContent(t *testing.T) {
	articles := []article.Article{{ID: 1, Title: "Go"}}
	raw := index.RawIndex{{Term: "go", IDs: []int64{1}}}
	a, err := NewSnapshot(articles, raw)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewSnapshot(articles, raw)
	c, _ := NewSnapshot(articles, index.RawIndex{{Term: "golang", IDs: []int64{1}}})
	if a.Version != b.Version {
		t.Errorf("same content gave versions %q and %q", a.Version, b.Version)
	}
	if a.Version == c.Version {
		t.Error("different index content gave the same version")
	}
}

func TestReconcile(t *testing.T) {
	snap, err := NewSnapshot(
		[]article.Article{{ID: 1, Title: "Go"}, {ID: 2, Title: "Rust"}},
		index.RawIndex{
			{Term: "go", IDs: []int64{1, 7}},
			{Term: "ghost", IDs: []int64{9}},
			{Term: "rust", IDs: []int64{2}},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("strict", func(t *testing.T) {
		_, dangling, err := Reconcile(snap, true)
		if !stderrors.Is(err, errors.ErrSnapshotMismatch) {
			t.Fatalf("Reconcile() error = %v, want ErrSnapshotMismatch", err)
		}
		if diff := cmp.Diff([]int64{7, 9}, dangling); diff != "" {
			t.Errorf("dangling mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("lenient", func(t *testing.T) {
		pruned, dangling, err := Reconcile(snap, false)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if diff := cmp.Diff([]int64{7, 9}, dangling); diff != "" {
			t.Errorf("dangling mismatch (-want +got):\n%s", diff)
		}
		want := index.RawIndex{
			{Term: "go", IDs: []int64{1}},
			{Term: "ghost", IDs: []int64{}},
			{Term: "rust", IDs: []int64{2}},
		}
		if diff := cmp.Diff(want, pruned.Index); diff != "" {
			t.Errorf("pruned index mismatch (-want +got):\n%s", diff)
		}
		if pruned.Version == snap.Version {
			t.Error("pruning did not change the version")
		}
	})

	t.Run("clean", func(t *testing.T) {
		clean, _ := NewSnapshot(snap.Articles, index.RawIndex{{Term: "go", IDs: []int64{1}}})
		got, dangling, err := Reconcile(clean, true)
		if err != nil || len(dangling) != 0 || got != clean {
			t.Errorf("Reconcile(clean) = %v, %v, %v", got, dangling, err)
		}
	})
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatasetConfig
		db      ReadOnlyDB
		want    string
		wantErr error
	}{
		{"embedded", config.DatasetConfig{Source: config.SourceEmbedded}, nil, "embedded", nil},
		{"file", config.DatasetConfig{Source: config.SourceFile, ArticlesPath: "a", IndexPath: "b"}, nil, "file", nil},
		{"postgres", config.DatasetConfig{Source: config.SourcePostgres}, failingDB{}, "postgres", nil},
		{"postgres without db", config.DatasetConfig{Source: config.SourcePostgres}, nil, "", errors.ErrDatasetUnavailable},
		{"unknown", config.DatasetConfig{Source: "s3"}, nil, "", errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg, tt.db)
			if tt.wantErr != nil {
				if !stderrors.Is(err, tt.wantErr) {
					t.Errorf("NewSource() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSource() error = %v", err)
			}
			if src.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.want)
			}
		})
	}
}

type failingDB struct{}

func (failingDB) ReadOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return stderrors.New("connection refused")
}

func TestPostgresSourceUnavailable(t *testing.T) {
	src := NewPostgresSource(failingDB{})
	src.retry = resilience.RetryConfig{MaxAttempts: 1}
	_, err := src.Load(context.Background())
	if !stderrors.Is(err, errors.ErrDatasetUnavailable) {
		t.Errorf("Load() error = %v, want ErrDatasetUnavailable", err)
	}
}

type countingDB struct {
	calls int
	err   error
}

func (d *countingDB) ReadOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.calls++
	return d.err
}

func TestPostgresSourceRetries(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"transient", stderrors.New("connection reset"), 2},
		{"undefined table", &pq.Error{Code: "42P01", Message: `relation "articles" does not exist`}, 1},
		{"bad row", fmt.Errorf("%w article: bad cards", errScan), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &countingDB{err: tt.err}
			src := NewPostgresSource(db)
			src.retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}
			_, err := src.Load(context.Background())
			if !stderrors.Is(err, errors.ErrDatasetUnavailable) {
				t.Errorf("Load() error = %v, want ErrDatasetUnavailable", err)
			}
			if db.calls != tt.wantCalls {
				t.Errorf("ReadOnly called %d times, want %d", db.calls, tt.wantCalls)
			}
		})
	}
}

// fakeRows replays fixed rows through Scan.
type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		switch d := d.(type) {
		case *int64:
			*d = row[i].(int64)
		case *string:
			*d = row[i].(string)
		case *pq.StringArray:
			*d = row[i].([]string)
		case *pq.Int64Array:
			*d = row[i].([]int64)
		default:
			return stderrors.New("unsupported scan destination")
		}
	}
	return nil
}

func TestScanArticles(t *testing.T) {
	r := &fakeRows{data: [][]any{
		{int64(3), "Arrays", "www.postgresql.org", "https://www.postgresql.org/docs", []string{"one", "two"}, int64(5)},
	}}
	got, err := scanArticles(r)
	if err != nil {
		t.Fatalf("scanArticles() error = %v", err)
	}
	want := []article.Article{{
		ID: 3, Title: "Arrays", Domain: "www.postgresql.org", URL: "https://www.postgresql.org/docs",
		Cards: []string{"one", "two"}, Ranking: 5,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scanArticles mismatch (-want +got):\n%s", diff)
	}
}

func TestScanTerms(t *testing.T) {
	r := &fakeRows{data: [][]any{
		{"zeta", []int64{2, 1}},
		{"alpha", []int64{3}},
	}}
	got, err := scanTerms(r)
	if err != nil {
		t.Fatalf("scanTerms() error = %v", err)
	}
	want := index.RawIndex{
		{Term: "zeta", IDs: []int64{2, 1}},
		{Term: "alpha", IDs: []int64{3}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scanTerms mismatch (-want +got):\n%s", diff)
	}

	broken := &fakeRows{err: stderrors.New("reset by peer")}
	if _, err := scanTerms(broken); err == nil {
		t.Error("scanTerms() expected iteration error")
	}
}
