// Package parser turns free search text into an AND of OR-groups.
//
// Operators are recognised as literal case-insensitive substrings after all
// non-alphanumeric characters are stripped, so "or" inside "order" and "and"
// inside "android" act as operators too. Callers rely on this exact
// behavior; do not make it word-boundary aware without changing them.
package parser

import (
	"regexp"
	"strings"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
	orOperator      = regexp.MustCompile(`(?i)or`)
	andOperator     = regexp.MustCompile(`(?i)and`)
)

// Alternation is the regex alternation that "or" is rewritten to.
const Alternation = "|"

// QueryPlan is a parsed query. Groups are intersected and each group is a
// pattern whose "|"-separated alternatives are unioned. Groups may be empty
// strings; evaluators skip them.
type QueryPlan struct {
	Raw        string
	Normalized string
	Groups     []string
}

// IsEmpty reports whether the raw text was empty. An empty query differs from
// one that matches nothing: callers show the unfiltered list for it.
func (p *QueryPlan) IsEmpty() bool {
	return p.Raw == ""
}

// Parse builds a QueryPlan from text.
func Parse(text string) *QueryPlan {
	plan := &QueryPlan{
		Raw:    text,
		Groups: make([]string, 0),
	}
	if text == "" {
		return plan
	}
	normalized := strings.TrimSpace(text)
	normalized = nonAlphanumeric.ReplaceAllString(normalized, "")
	normalized = orOperator.ReplaceAllString(normalized, Alternation)
	normalized = strings.TrimSuffix(normalized, Alternation)
	plan.Normalized = normalized
	plan.Groups = andOperator.Split(normalized, -1)
	return plan
}

// NonEmptyGroups returns the groups an evaluator will actually run.
func (p *QueryPlan) NonEmptyGroups() []string {
	out := make([]string, 0, len(p.Groups))
	for _, g := range p.Groups {
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}
