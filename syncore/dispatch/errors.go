package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMatchingRule is returned when no rule accepts the input.
	ErrNoMatchingRule = errors.New("dispatch: no matching rule")
	// ErrAmbiguousRules is returned when more than one rule accepts the input.
	ErrAmbiguousRules = errors.New("dispatch: ambiguous rules")
	// ErrDuplicateRule is returned when a rule name is registered twice.
	ErrDuplicateRule = errors.New("dispatch: duplicate rule name")
	// ErrInvalidRule is returned for rules without a name, predicate or action.
	ErrInvalidRule = errors.New("dispatch: invalid rule")
)

// NoMatchingRuleError carries a description of the input no rule accepted.
type NoMatchingRuleError struct {
	Input string
}

func (e *NoMatchingRuleError) Error() string {
	if e.Input == "" {
		return ErrNoMatchingRule.Error()
	}

	return fmt.Sprintf("%s for %s", ErrNoMatchingRule.Error(), e.Input)
}

func (e *NoMatchingRuleError) Unwrap() error { return ErrNoMatchingRule }

// AmbiguousRulesError names every rule that accepted the input.
type AmbiguousRulesError struct {
	Input string
	Rules []string
}

func (e *AmbiguousRulesError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrAmbiguousRules.Error(), strings.Join(e.Rules, ", "))
	if e.Input != "" {
		msg += " for " + e.Input
	}

	return msg
}

func (e *AmbiguousRulesError) Unwrap() error { return ErrAmbiguousRules }
