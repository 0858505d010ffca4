package dataset

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/errors"
)

//go:embed sample/article_data.json sample/search_index.json
var sample embed.FS

// FileSource reads article_data.json and search_index.json from a file
// system. Both files are read concurrently.
type FileSource struct {
	name         string
	fsys         fs.FS
	articlesPath string
	indexPath    string
}

// NewFileSource reads the two files from the host file system.
func NewFileSource(articlesPath, indexPath string) *FileSource {
	return &FileSource{
		name:         "file",
		articlesPath: articlesPath,
		indexPath:    indexPath,
	}
}

// Embedded returns the sample dataset compiled into the binary.
func Embedded() *FileSource {
	return NewFSSource("embedded", sample, "sample/article_data.json", "sample/search_index.json")
}

// NewFSSource reads the two files from fsys.
func NewFSSource(name string, fsys fs.FS, articlesPath, indexPath string) *FileSource {
	return &FileSource{
		name:         name,
		fsys:         fsys,
		articlesPath: articlesPath,
		indexPath:    indexPath,
	}
}

func (s *FileSource) Name() string {
	return s.name
}

func (s *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	var (
		articles []article.Article
		raw      index.RawIndex
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		articles, err = readWith(ctx, s.open, s.articlesPath, DecodeArticles)
		return err
	})
	g.Go(func() error {
		var err error
		raw, err = readWith(ctx, s.open, s.indexPath, DecodeIndex)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewSnapshot(articles, raw)
}

func (s *FileSource) open(path string) (io.ReadCloser, error) {
	if s.fsys != nil {
		return s.fsys.Open(path)
	}
	return os.Open(path)
}

func readWith[T any](ctx context.Context, open func(string) (io.ReadCloser, error), path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	f, err := open(path)
	if err != nil {
		return zero, fmt.Errorf("%w: opening %s: %v", errors.ErrDatasetUnavailable, path, err)
	}
	defer f.Close()
	v, err := decode(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
