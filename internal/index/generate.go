package index

import (
	"sort"
	"strings"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/index/tokenizer"
)

// Generated is the output of Generate.
type Generated struct {
	Entries RawIndex
	// Common lists the dropped terms that appeared in too many articles,
	// sorted.
	Common []string
}

// Generate builds raw index entries from article cards, titles and domains.
// A term that reaches more than commonThreshold articles carries no
// filtering power and is dropped. Entries come back sorted by term so the
// output is reproducible.
func Generate(articles []article.Article, commonThreshold int) Generated {
	terms := make(map[string]IDSet)
	for _, a := range articles {
		text := strings.Join(a.Cards, " ") + " " + a.Title + " " + a.Domain
		for _, word := range tokenizer.Tokenize(text) {
			set, ok := terms[word]
			if !ok {
				set = NewIDSet()
				terms[word] = set
			}
			set.Add(a.ID)
		}
	}

	out := Generated{
		Entries: make(RawIndex, 0, len(terms)),
		Common:  make([]string, 0),
	}
	for term, set := range terms {
		if set.Len() > commonThreshold {
			out.Common = append(out.Common, term)
			continue
		}
		out.Entries = append(out.Entries, RawEntry{Term: term, IDs: set.Sorted()})
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		return out.Entries[i].Term < out.Entries[j].Term
	})
	sort.Strings(out.Common)
	return out
}
