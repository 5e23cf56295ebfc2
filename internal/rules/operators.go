// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/schemamap/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the grammar's 6 operators. The left side is a record value, the
 * right side is always the literal text from the condition.
 *
 * Operators:
 *   - > / <: Both sides coerced NUMERIC; any coercion failure -> false
 *   - == / !=: Canonical string comparison (no numeric tolerance: "10" == 10
 *     holds, "10.0" == 10 does not, matching how authors write literals)
 *   - contains: Substring test on the canonical string
 *   - is-empty: Canonical string has zero length; the literal is ignored
 *
 * Unknown operators compare false. Nothing here returns an error: every
 * degenerate comparison collapses to false (fail-closed).
 */

// operatorFieldType maps an operator to the coercion its left side needs.
func operatorFieldType(op types.Operator) FieldType {
	switch op {
	case types.OpGt, types.OpLt:
		return FieldTypeNumeric
	default:
		return FieldTypeText
	}
}

// Compare applies op to a record value and a literal.
func Compare(op types.Operator, value any, literal string) bool {
	coerced, err := Coerce(value, operatorFieldType(op))
	if err != nil || coerced.IsNull {
		return false
	}

	switch op {
	case types.OpGt:
		cmp, ok := compareNumeric(coerced.Value.(float64), literal)
		return ok && cmp > 0
	case types.OpLt:
		cmp, ok := compareNumeric(coerced.Value.(float64), literal)
		return ok && cmp < 0
	case types.OpEq:
		return coerced.Value.(string) == literal
	case types.OpNeq:
		return coerced.Value.(string) != literal
	case types.OpContains:
		return strings.Contains(coerced.Value.(string), literal)
	case types.OpIsEmpty:
		return len(coerced.Value.(string)) == 0
	default:
		return false
	}
}

// compareNumeric performs three-way comparison of n against a numeric literal.
// Reports ok=false when the literal is not a number.
func compareNumeric(n float64, literal string) (int, bool) {
	m, err := toNumber(literal)
	if err != nil {
		return 0, false
	}
	switch {
	case n < m:
		return -1, true
	case n > m:
		return 1, true
	default:
		return 0, true
	}
}
