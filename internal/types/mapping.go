// internal/types/mapping.go
package types

import (
	"fmt"
	"strings"
)

/*
 * Domain types for mapping sets.
 *
 * Provides MappingRule, Condition and MappingSet structures used by
 * internal/rules for compilation, rendering and parsing. These types are
 * wire-format agnostic: the textual rule grammar lives in internal/rules and
 * storage encodings live in internal/core/db.
 *
 * Key types:
 *   - MappingRule: One source path -> target property binding
 *   - Condition: Single predicate plus its join to the next predicate
 *   - MappingSet: Ordered rules; order only affects compiled property order
 *
 * Enum values are strings so mapping files (YAML/JSON) and the embedded rule
 * grammar share one spelling.
 */

// Kind distinguishes plain substitutions from condition-gated mappings.
type Kind string

const (
	KindPlainText   Kind = "plain_text"
	KindConditional Kind = "conditional"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPlainText || k == KindConditional
}

// Join links a condition to the next condition in its chain.
type Join string

const (
	JoinAnd      Join = "AND"
	JoinOr       Join = "OR"
	JoinTerminal Join = "TERMINAL"
)

// ParseJoin converts a join keyword (case-insensitive) to a Join.
func ParseJoin(s string) (Join, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return JoinAnd, true
	case "OR":
		return JoinOr, true
	case "TERMINAL":
		return JoinTerminal, true
	default:
		return "", false
	}
}

// Operator is a comparison operator of the rule grammar.
type Operator string

const (
	OpGt       Operator = ">"
	OpLt       Operator = "<"
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpContains Operator = "contains"
	OpIsEmpty  Operator = "is-empty"
)

// Operators lists the grammar's fixed operator set in canonical order.
var Operators = []Operator{OpGt, OpLt, OpEq, OpNeq, OpContains, OpIsEmpty}

// ParseOperator converts a grammar token to an Operator.
// Word operators match case-insensitively; symbols must match exactly.
func ParseOperator(s string) (Operator, bool) {
	switch strings.ToLower(s) {
	case ">":
		return OpGt, true
	case "<":
		return OpLt, true
	case "==":
		return OpEq, true
	case "!=":
		return OpNeq, true
	case "contains":
		return OpContains, true
	case "is-empty":
		return OpIsEmpty, true
	default:
		return "", false
	}
}

// Condition is one atomic predicate plus its join to the next condition.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
	Join     Join     `json:"join" yaml:"join"`
}

// MappingRule binds a record path to a property of the output document.
type MappingRule struct {
	ID         int         `json:"id" yaml:"id"`
	Source     string      `json:"source" yaml:"source"`
	Target     string      `json:"target" yaml:"target"`
	Kind       Kind        `json:"kind" yaml:"kind"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// MappingSet is an ordered sequence of mapping rules.
type MappingSet []MappingRule

// ValidateChain checks the terminal-marker invariant of a condition chain:
// every element but the last joins with AND or OR, the last is TERMINAL.
// A last element carrying AND/OR is tolerated (callers normalize it); a
// TERMINAL anywhere else is not.
func ValidateChain(conds []Condition) error {
	if len(conds) == 0 {
		return ErrEmptyChain
	}
	if len(conds) > MaxConditions {
		return ErrChainTooLong
	}
	last := len(conds) - 1
	for i, c := range conds {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("condition %d: %w", i, ErrMissingField)
		}
		if _, ok := ParseOperator(string(c.Operator)); !ok {
			return fmt.Errorf("condition %d: %w: %q", i, ErrInvalidOperator, c.Operator)
		}
		switch c.Join {
		case JoinAnd, JoinOr:
		case JoinTerminal:
			if i != last {
				return fmt.Errorf("condition %d: %w", i, ErrMisplacedTerminal)
			}
		default:
			if i != last {
				return fmt.Errorf("condition %d: %w: %q", i, ErrInvalidJoin, c.Join)
			}
		}
	}
	return nil
}

// NormalizeChain returns a copy of conds with the final join forced to TERMINAL.
func NormalizeChain(conds []Condition) []Condition {
	if len(conds) == 0 {
		return nil
	}
	out := make([]Condition, len(conds))
	copy(out, conds)
	out[len(out)-1].Join = JoinTerminal
	return out
}
