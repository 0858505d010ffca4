// Package browse is the terminal browsing state machine. A Session moves
// between the multi-article scroll view, the article list view and the
// single-article reading view, and reports as-you-type match counts through
// a debounced callback.
package browse

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pinnedref/pinnedref/internal/analytics"
	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/library"
	"github.com/pinnedref/pinnedref/internal/searcher/parser"
	"github.com/pinnedref/pinnedref/pkg/debounce"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

type View int

const (
	ViewMultiArticle View = iota
	ViewArticleList
	ViewSingleArticle
)

func (v View) String() string {
	switch v {
	case ViewMultiArticle:
		return "articles"
	case ViewArticleList:
		return "list"
	case ViewSingleArticle:
		return "article"
	default:
		return "unknown"
	}
}

// State is a copy of what the session currently shows.
type State struct {
	View      View
	Query     string
	Articles  []article.Article
	Summaries []article.Summary
	Current   article.Article
}

// CountFunc receives the result of a debounced Type call.
type CountFunc func(res library.Result)

type Option func(*Session)

func WithDebounceDelay(d time.Duration) Option {
	return func(s *Session) {
		s.debouncer = debounce.New(d)
	}
}

// WithCollector reports searches and article opens to analytics.
func WithCollector(c *analytics.Collector) Option {
	return func(s *Session) {
		s.collector = c
	}
}

func OnCount(fn CountFunc) Option {
	return func(s *Session) {
		s.onCount = fn
	}
}

type Session struct {
	lib       *library.Library
	debouncer *debounce.Debouncer
	collector *analytics.Collector
	onCount   CountFunc
	logger    *slog.Logger

	mu       sync.Mutex
	view     View
	query    string
	ids      []int64
	filtered bool
	current  article.Article
}

// NewSession starts in the multi-article view showing every article.
func NewSession(lib *library.Library, opts ...Option) *Session {
	s := &Session{
		lib:    lib,
		logger: logger.WithComponent("browse"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.debouncer == nil {
		s.debouncer = debounce.New(debounce.DefaultDelay)
	}
	return s
}

// Type records a partially typed query. Once typing has been quiet for the
// debounce delay the match count is evaluated and passed to the OnCount
// callback. The visible list does not change.
func (s *Session) Type(text string) {
	s.debouncer.Trigger(func() {
		res := s.search(text)
		if s.onCount != nil {
			s.onCount(res)
		}
	})
}

// Submit evaluates text immediately, cancelling any pending count, and
// replaces the visible articles with the matches. The empty query restores
// the full collection.
func (s *Session) Submit(text string) library.Result {
	s.debouncer.Stop()
	res := s.search(text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewMultiArticle
	s.query = text
	s.filtered = !res.Empty
	s.ids = res.IDs
	return res
}

// ShowList switches to the article list view of what is currently visible.
func (s *Session) ShowList() []article.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewArticleList
	return s.summariesLocked()
}

// Open switches to the reading view of id. An unknown id returns
// ErrArticleNotFound and leaves the view unchanged.
func (s *Session) Open(id int64) (article.Article, error) {
	a, err := s.lib.Article(id)
	s.collector.TrackView(analytics.ViewEvent{
		ArticleID: id,
		Found:     err == nil,
		Source:    analytics.SourceTerminal,
	})
	if err != nil {
		s.logger.Debug("open failed", "id", id, "error", err)
		return article.Article{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewSingleArticle
	s.current = a
	return a, nil
}

// Back returns to the multi-article view, keeping the current filter.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewMultiArticle
	s.current = article.Article{}
}

// State returns what the current view shows.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{View: s.view, Query: s.query}
	switch s.view {
	case ViewMultiArticle:
		st.Articles = s.articlesLocked()
	case ViewArticleList:
		st.Summaries = s.summariesLocked()
	case ViewSingleArticle:
		st.Current = s.current
	}
	return st
}

// Close cancels a pending count.
func (s *Session) Close() {
	s.debouncer.Stop()
}

func (s *Session) articlesLocked() []article.Article {
	if !s.filtered {
		return s.lib.All()
	}
	return s.lib.Select(s.ids)
}

func (s *Session) summariesLocked() []article.Summary {
	if !s.filtered {
		return s.lib.AllSummaries()
	}
	return s.lib.Summaries(s.ids)
}

func (s *Session) search(text string) library.Result {
	start := time.Now()
	res := s.lib.Search(text)
	s.collector.TrackSearch(analytics.SearchEvent{
		Query:         text,
		Normalized:    parser.Parse(text).Normalized,
		Empty:         res.Empty,
		Matches:       res.Count,
		LatencyMicros: time.Since(start).Microseconds(),
		Source:        analytics.SourceTerminal,
		Version:       s.lib.Version(),
	})
	return res
}
