package dispatch

import (
	"fmt"
	"strings"
)

// Rule pairs a predicate with the action run when it is the only match.
type Rule[In, Out any] struct {
	Name   string
	Match  func(In) bool
	Action func(In) Out
}

// Table is an ordered set of rules. Build it once, then call Dispatch freely;
// Register is not safe to call concurrently with Dispatch.
type Table[In, Out any] struct {
	rules    []Rule[In, Out]
	names    map[string]struct{}
	describe func(In) string
}

// NewTable creates an empty table. describe renders inputs in error messages
// and may be nil.
func NewTable[In, Out any](describe func(In) string) *Table[In, Out] {
	return &Table[In, Out]{
		names:    make(map[string]struct{}),
		describe: describe,
	}
}

// Register appends a rule.
func (t *Table[In, Out]) Register(rule Rule[In, Out]) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}

	if rule.Match == nil || rule.Action == nil {
		return fmt.Errorf("%w: %q needs both a predicate and an action", ErrInvalidRule, rule.Name)
	}

	if _, exists := t.names[rule.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateRule, rule.Name)
	}

	t.names[rule.Name] = struct{}{}
	t.rules = append(t.rules, rule)

	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (t *Table[In, Out]) MustRegister(rules ...Rule[In, Out]) *Table[In, Out] {
	for _, rule := range rules {
		if err := t.Register(rule); err != nil {
			panic(err)
		}
	}

	return t
}

// Len returns the number of registered rules.
func (t *Table[In, Out]) Len() int { return len(t.rules) }

// Match returns the names of every rule whose predicate accepts in.
func (t *Table[In, Out]) Match(in In) []string {
	var matched []string

	for _, rule := range t.rules {
		if rule.Match(in) {
			matched = append(matched, rule.Name)
		}
	}

	return matched
}

// Dispatch runs the action of the single rule accepting in.
func (t *Table[In, Out]) Dispatch(in In) (Out, error) {
	var (
		zero  Out
		found *Rule[In, Out]
		names []string
	)

	for i := range t.rules {
		if !t.rules[i].Match(in) {
			continue
		}

		if found == nil {
			found = &t.rules[i]
		}

		names = append(names, t.rules[i].Name)
	}

	switch len(names) {
	case 0:
		return zero, &NoMatchingRuleError{Input: t.describeInput(in)}
	case 1:
		return found.Action(in), nil
	default:
		return zero, &AmbiguousRulesError{Input: t.describeInput(in), Rules: names}
	}
}

func (t *Table[In, Out]) describeInput(in In) string {
	if t.describe == nil {
		return ""
	}

	return t.describe(in)
}
