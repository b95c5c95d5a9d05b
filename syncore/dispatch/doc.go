// Package dispatch implements an exclusive dispatch table: a list of named
// rules where exactly one predicate must accept each input.
//
// Zero matches and multiple matches are both errors, so a table doubles as a
// check that its predicates partition the input space.
package dispatch
