// Package analytics records what users search for and open. Events go
// through a Publisher, normally Kafka, and an Aggregator folds them into
// running statistics.
package analytics

import (
	"strconv"
	"time"
)

type EventType string

const (
	EventSearch      EventType = "search"
	EventArticleView EventType = "article_view"
)

// Surfaces that emit events.
const (
	SourceHTTP     = "http"
	SourceTerminal = "terminal"
)

// SearchEvent is published once per evaluated query.
type SearchEvent struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query"`
	Normalized    string    `json:"normalized"`
	Empty         bool      `json:"empty"`
	Matches       int       `json:"matches"`
	LatencyMicros int64     `json:"latency_us"`
	CacheUsed     bool      `json:"cache_used"`
	CacheHit      bool      `json:"cache_hit"`
	Source        string    `json:"source"`
	Version       string    `json:"dataset_version"`
	RequestID     string    `json:"request_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ViewEvent is published when a single article is opened.
type ViewEvent struct {
	Type      EventType `json:"type"`
	ArticleID int64     `json:"article_id"`
	Found     bool      `json:"found"`
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSearchEvent stamps a search event with its type and the current time.
func NewSearchEvent(e SearchEvent) SearchEvent {
	e.Type = EventSearch
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// NewViewEvent stamps a view event with its type and the current time.
func NewViewEvent(e ViewEvent) ViewEvent {
	e.Type = EventArticleView
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// eventKey picks the partition key: searches by normalized query, views by
// article.
func eventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return "search:" + e.Normalized
	case ViewEvent:
		return "view:" + strconv.FormatInt(e.ArticleID, 10)
	default:
		return "analytics"
	}
}
