// Package article defines saved article records and the immutable catalog
// that owns them for the lifetime of the process.
package article

// Article is a saved bookmark with the paragraph cards extracted from it.
type Article struct {
	ID      int64    `json:"bookmark_id"`
	Title   string   `json:"title"`
	Domain  string   `json:"domain"`
	URL     string   `json:"url"`
	Cards   []string `json:"cards"`
	Ranking int64    `json:"ranking"`
}

// Summary is the reduced form shown in the article list view.
type Summary struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Domain     string `json:"domain"`
	Highlights int    `json:"highlights"`
}

// Summarize reduces a to its list-view form.
func (a Article) Summarize() Summary {
	return Summary{
		ID:         a.ID,
		Title:      a.Title,
		Domain:     a.Domain,
		Highlights: len(a.Cards),
	}
}
