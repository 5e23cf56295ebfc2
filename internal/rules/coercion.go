// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/solatis/schemamap/internal/types"
)

/*
 * Type coercion for condition evaluation.
 *
 * The rule grammar carries every literal as text, while record values arrive
 * as JSON scalars. Two coercions bridge them:
 *
 *   - NUMERIC: Strict - float64/int/json.Number pass, numeric strings are
 *     parsed after trimming, booleans and everything else fail
 *   - TEXT: Lenient - every value has a canonical string form
 *
 * Canonical string form: strings as-is, numbers via FormatFloat('f', -1)
 * so 10 and 10.0 both read "10", booleans "true"/"false", null "".
 * Objects and arrays encode as compact JSON.
 *
 * Null handling: NUMERIC coercion of nil reports IsNull (and operators
 * treat it as a failed comparison); TEXT coercion of nil is the empty string,
 * which is what makes is-empty true for an explicit null.
 */

// FieldType selects the coercion applied to a record value.
type FieldType int

const (
	FieldTypeText FieldType = iota
	FieldTypeNumeric
)

// CoercionResult holds the coerced value or indicates null.
type CoercionResult struct {
	Value  any  // float64 for NUMERIC, string for TEXT (valid only if !IsNull)
	IsNull bool // true if input was nil and the type has no null form
}

// Coerce converts value to the expected field type.
// Returns ErrCoercionFailed for impossible coercions.
func Coerce(value any, fieldType FieldType) (CoercionResult, error) {
	switch fieldType {
	case FieldTypeNumeric:
		if value == nil {
			return CoercionResult{IsNull: true}, nil
		}
		f, err := toNumber(value)
		if err != nil {
			return CoercionResult{}, err
		}
		return CoercionResult{Value: f}, nil
	case FieldTypeText:
		return CoercionResult{Value: CanonicalString(value)}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// toNumber converts value to float64 for numeric comparison.
// Whitespace-only strings and booleans return ErrCoercionFailed.
func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, types.ErrCoercionFailed
		}
		return f, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, types.ErrCoercionFailed
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return 0, types.ErrCoercionFailed
		}
		return f, nil
	default:
		return 0, types.ErrCoercionFailed
	}
}

// CanonicalString returns the string form used by ==, !=, contains and is-empty.
func CanonicalString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case json.Number:
		if f, err := v.Float64(); err == nil && !math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]any, []any, types.DataRecord:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
