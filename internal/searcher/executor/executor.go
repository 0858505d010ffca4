// Package executor evaluates parsed keyword queries against the inverted
// index.
package executor

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/pinnedref/pinnedref/internal/index"
	"github.com/pinnedref/pinnedref/internal/searcher/parser"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

// GroupResult describes how one OR-group was resolved.
type GroupResult struct {
	Group   string   `json:"group"`
	Pattern string   `json:"pattern"`
	Terms   []string `json:"terms"`
	Matches int      `json:"matches"`
	Error   string   `json:"error,omitempty"`
}

// Explanation is the per-group breakdown of a query.
type Explanation struct {
	Query      string        `json:"query"`
	Normalized string        `json:"normalized"`
	Groups     []GroupResult `json:"groups"`
	Matches    int           `json:"matches"`
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithInvalidPatternHook registers fn to be called for each OR-group whose
// pattern fails to compile.
func WithInvalidPatternHook(fn func(group string, err error)) Option {
	return func(e *Evaluator) {
		e.onInvalid = fn
	}
}

// Evaluator resolves query text to article ids. It only reads the index and
// holds no per-query state, so one Evaluator serves concurrent callers.
type Evaluator struct {
	index     *index.Index
	logger    *slog.Logger
	onInvalid func(group string, err error)
}

func New(idx *index.Index, opts ...Option) *Evaluator {
	e := &Evaluator{
		index:  idx,
		logger: logger.WithComponent("query-evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CompileGroup compiles an OR-group into a case-insensitive pattern that is
// matched anywhere inside a vocabulary term.
func CompileGroup(group string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + group)
	if err != nil {
		return nil, fmt.Errorf("compiling group %q: %w", group, err)
	}
	return re, nil
}

// Evaluate parses text and returns the ids of matching articles. Empty text
// yields the empty set.
func (e *Evaluator) Evaluate(text string) index.IDSet {
	return e.EvaluatePlan(parser.Parse(text))
}

// EvaluatePlan intersects the unions of every non-empty group of plan. The
// first non-empty group seeds the result; empty groups are skipped.
func (e *Evaluator) EvaluatePlan(plan *parser.QueryPlan) index.IDSet {
	var result index.IDSet
	for _, group := range plan.NonEmptyGroups() {
		found, _, _ := e.evaluateGroup(group, false)
		if result == nil {
			result = found
			continue
		}
		result = result.Intersect(found)
	}
	if result == nil {
		return index.NewIDSet()
	}
	return result
}

// Explain evaluates text and reports what each group matched.
func (e *Evaluator) Explain(text string) Explanation {
	plan := parser.Parse(text)
	exp := Explanation{
		Query:      plan.Raw,
		Normalized: plan.Normalized,
		Groups:     make([]GroupResult, 0, len(plan.Groups)),
	}
	var result index.IDSet
	for _, group := range plan.NonEmptyGroups() {
		found, terms, err := e.evaluateGroup(group, true)
		gr := GroupResult{
			Group:   group,
			Pattern: "(?i)" + group,
			Terms:   terms,
			Matches: found.Len(),
		}
		if err != nil {
			gr.Error = err.Error()
		}
		exp.Groups = append(exp.Groups, gr)
		if result == nil {
			result = found
			continue
		}
		result = result.Intersect(found)
	}
	exp.Matches = result.Len()
	return exp
}

// evaluateGroup unions the postings of every vocabulary term the group's
// pattern is found in. A group that fails to compile matches nothing.
func (e *Evaluator) evaluateGroup(group string, collectTerms bool) (index.IDSet, []string, error) {
	found := index.NewIDSet()
	terms := make([]string, 0)
	re, err := CompileGroup(group)
	if err != nil {
		e.logger.Warn("invalid search pattern, group matches nothing", "group", group, "error", err)
		if e.onInvalid != nil {
			e.onInvalid(group, err)
		}
		return found, terms, err
	}
	for _, term := range e.index.Vocabulary() {
		if !re.MatchString(term) {
			continue
		}
		if collectTerms {
			terms = append(terms, term)
		}
		for id := range e.index.Postings(term) {
			found.Add(id)
		}
	}
	return found, terms, nil
}
