package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/dataset"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	articlesPath := flag.String("articles", "", "article_data.json to index (default: dataset.articlesPath, then the embedded sample)")
	outPath := flag.String("out", "", "where to write search_index.json (default: stdout)")
	threshold := flag.Int("common", 0, "drop terms found in more than this many articles (default: indexgen.commonWordThreshold)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if *articlesPath == "" {
		*articlesPath = cfg.Dataset.ArticlesPath
	}
	if *threshold <= 0 {
		*threshold = cfg.Indexgen.CommonWordThreshold
	}

	articles, err := readArticles(*articlesPath)
	if err != nil {
		slog.Error("failed to read articles", "path", *articlesPath, "error", err)
		os.Exit(1)
	}

	gen := index.Generate(articles, *threshold)
	slog.Info("index generated",
		"articles", len(articles),
		"terms", len(gen.Entries),
		"common_words_dropped", len(gen.Common),
		"threshold", *threshold,
	)
	if len(gen.Common) > 0 {
		slog.Debug("common words", "words", gen.Common)
	}

	if err := writeIndex(*outPath, gen.Entries); err != nil {
		slog.Error("failed to write index", "path", *outPath, "error", err)
		os.Exit(1)
	}
}

func readArticles(path string) ([]article.Article, error) {
	if path == "" {
		snap, err := dataset.Embedded().Load(context.Background())
		if err != nil {
			return nil, err
		}
		return snap.Articles, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.DecodeArticles(bufio.NewReader(f))
}

func writeIndex(path string, raw index.RawIndex) error {
	if path == "" {
		w := bufio.NewWriter(os.Stdout)
		if err := dataset.EncodeIndex(w, raw); err != nil {
			return err
		}
		return w.Flush()
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := dataset.EncodeIndex(w, raw); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
