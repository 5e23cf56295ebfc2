// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/schemamap/internal/types"
)

/*
 * Condition and chain evaluation.
 *
 * Evaluation flow per condition:
 *   1. Resolve the field path in the record
 *   2. Missing field -> false regardless of operator (fail-closed, so absent
 *      data never satisfies a gating condition)
 *   3. Coerce and compare via Compare()
 *
 * Chain semantics: strictly left to right with no precedence grouping, since
 * the grammar has no parentheses inside the condition block:
 *
 *   c0 AND c1 OR c2 AND c3  ==  ((c0 AND c1) OR c2) AND c3
 *
 * The join stored on condition i links it to condition i+1; the final
 * condition's join is ignored. AND short-circuits while the accumulator is
 * false, OR short-circuits while it is true. Evaluation is pure, so skipping
 * a condition changes cost, never the result.
 */

// Evaluate reports whether cond holds for record.
// Never panics and never returns an error: degenerate predicates are false.
func Evaluate(cond types.Condition, record types.DataRecord) bool {
	resolved, err := Resolve(cond.Field, record)
	if err != nil || !resolved.Found {
		return false
	}
	return Compare(cond.Operator, resolved.Value, cond.Value)
}

// EvaluateChain folds conds left to right using each condition's join.
// An empty chain is false.
func EvaluateChain(conds []types.Condition, record types.DataRecord) bool {
	if len(conds) == 0 {
		return false
	}

	acc := Evaluate(conds[0], record)
	for i := 1; i < len(conds); i++ {
		switch conds[i-1].Join {
		case types.JoinOr:
			if acc {
				continue
			}
			acc = Evaluate(conds[i], record)
		case types.JoinAnd:
			if !acc {
				continue
			}
			acc = Evaluate(conds[i], record)
		default:
			// TERMINAL or unknown join before the end: the chain is malformed
			return false
		}
	}
	return acc
}
