package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pinnedref/pinnedref/internal/article"
	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/pkg/errors"
)

// DecodeArticles reads an article_data.json array.
func DecodeArticles(r io.Reader) ([]article.Article, error) {
	var articles []article.Article
	if err := json.NewDecoder(r).Decode(&articles); err != nil {
		return nil, fmt.Errorf("%w: decoding articles: %v", errors.ErrInvalidInput, err)
	}
	return articles, nil
}

// DecodeIndex reads a search_index.json object of term to id arrays. The
// object is walked token by token so entries keep their order in the file.
// A null id array decodes to an empty posting list.
func DecodeIndex(r io.Reader) (index.RawIndex, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: reading index: %v", errors.ErrInvalidIndex, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: index must be a JSON object, got %v", errors.ErrInvalidIndex, tok)
	}

	raw := make(index.RawIndex, 0, 256)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: reading term: %v", errors.ErrInvalidIndex, err)
		}
		term, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", errors.ErrInvalidIndex, tok)
		}
		var ids []int64
		if err := dec.Decode(&ids); err != nil {
			return nil, fmt.Errorf("%w: ids of term %q: %v", errors.ErrInvalidIndex, term, err)
		}
		raw = append(raw, index.RawEntry{Term: term, IDs: ids})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: closing index object: %v", errors.ErrInvalidIndex, err)
	}
	return raw, nil
}

// EncodeIndex writes raw as a search_index.json object, one term per line,
// in entry order.
func EncodeIndex(w io.Writer, raw index.RawIndex) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("{")
	for i, entry := range raw {
		if i > 0 {
			bw.WriteString(",")
		}
		term, err := json.Marshal(entry.Term)
		if err != nil {
			return fmt.Errorf("encoding term %q: %w", entry.Term, err)
		}
		ids := entry.IDs
		if ids == nil {
			ids = []int64{}
		}
		list, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("encoding ids of %q: %w", entry.Term, err)
		}
		bw.WriteString("\n  ")
		bw.Write(term)
		bw.WriteString(": ")
		bw.Write(list)
	}
	if len(raw) > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("}\n")
	return bw.Flush()
}
