// Package tokenizer splits article text into search index terms. It strips
// inline markup left over from card extraction, lower-cases the text and
// splits on punctuation and spaces.
package tokenizer

import (
	"regexp"
	"strings"
)

// markup matches the inline tags card extraction leaves behind, plus double
// spaces and question marks, all of which are removed before splitting.
var markup = regexp.MustCompile(`<[/]?(em|strong|span|figure|figcaption|font|picture|li|h1|h2|h3|h4|p|mark|i|b)(.*?)>|<[/]?span>|  |\?`)

var separators = map[rune]struct{}{
	':': {}, '-': {}, ' ': {}, ')': {}, '(': {}, '–': {}, '.': {}, '\\': {},
	',': {}, '”': {}, '“': {}, '’': {}, '"': {}, '—': {}, ';': {}, '/': {},
}

// StripMarkup removes inline tags from text.
func StripMarkup(text string) string {
	return markup.ReplaceAllString(text, "")
}

// Tokenize returns the lower-cased words of text in order, duplicates
// included. Characters outside the separator set, such as apostrophes and
// digits, stay inside words.
func Tokenize(text string) []string {
	text = strings.ToLower(StripMarkup(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		_, sep := separators[r]
		return sep
	})
}
