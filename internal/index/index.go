// Package index holds the read-only inverted index over article ids and the
// vocabulary derived from it.
package index

import (
	"fmt"
	"strings"

	"github.com/pinnedref/pinnedref/pkg/errors"
)

// Index maps vocabulary terms to posting sets. It is built once and never
// mutated, so it is safe for concurrent readers.
type Index struct {
	vocabulary []string
	postings   map[string]IDSet
}

// Build turns raw term to ids input into an Index. Vocabulary order follows
// the first appearance of each term. Repeated terms accumulate into one set
// and terms with no ids are kept with an empty set. An empty term or a
// non-positive id rejects the whole input.
func Build(raw RawIndex) (*Index, error) {
	idx := &Index{
		vocabulary: make([]string, 0, len(raw)),
		postings:   make(map[string]IDSet, len(raw)),
	}
	for i, entry := range raw {
		if strings.TrimSpace(entry.Term) == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty term", errors.ErrInvalidIndex, i)
		}
		set, seen := idx.postings[entry.Term]
		if !seen {
			set = make(IDSet, len(entry.IDs))
			idx.postings[entry.Term] = set
			idx.vocabulary = append(idx.vocabulary, entry.Term)
		}
		for _, id := range entry.IDs {
			if id <= 0 {
				return nil, fmt.Errorf("%w: term %q has non-positive id %d", errors.ErrInvalidIndex, entry.Term, id)
			}
			set.Add(id)
		}
	}
	return idx, nil
}

// Vocabulary returns the indexed terms in insertion order. The slice is
// shared; callers must not modify it.
func (x *Index) Vocabulary() []string {
	return x.vocabulary
}

// Postings returns the posting set of term, or nil if the term is unknown.
// The set is shared; callers must not modify it.
func (x *Index) Postings(term string) IDSet {
	return x.postings[term]
}

// Len returns the vocabulary size.
func (x *Index) Len() int {
	return len(x.vocabulary)
}

// PostingCount returns the total number of term/id pairs.
func (x *Index) PostingCount() int {
	n := 0
	for _, set := range x.postings {
		n += len(set)
	}
	return n
}

// Verify returns, in ascending order, the ids referenced by the index for
// which known reports false.
func (x *Index) Verify(known func(id int64) bool) []int64 {
	dangling := NewIDSet()
	for _, set := range x.postings {
		for id := range set {
			if !known(id) {
				dangling.Add(id)
			}
		}
	}
	return dangling.Sorted()
}

// Prune returns a copy of the index without ids rejected by known. Terms left
// with no postings stay in the vocabulary.
func (x *Index) Prune(known func(id int64) bool) *Index {
	out := &Index{
		vocabulary: append([]string(nil), x.vocabulary...),
		postings:   make(map[string]IDSet, len(x.postings)),
	}
	for term, set := range x.postings {
		kept := make(IDSet, len(set))
		for id := range set {
			if known(id) {
				kept.Add(id)
			}
		}
		out.postings[term] = kept
	}
	return out
}

// Entries returns the index as raw entries in vocabulary order with sorted
// ids.
func (x *Index) Entries() RawIndex {
	out := make(RawIndex, 0, len(x.vocabulary))
	for _, term := range x.vocabulary {
		out = append(out, RawEntry{Term: term, IDs: x.postings[term].Sorted()})
	}
	return out
}
