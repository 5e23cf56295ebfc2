package rules

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/solatis/schemamap/internal/types"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		fieldType FieldType
		wantValue any
		wantNull  bool
		wantErr   error
	}{
		// NUMERIC type tests
		{
			name:      "numeric: string to float64",
			value:     "25",
			fieldType: FieldTypeNumeric,
			wantValue: 25.0,
		},
		{
			name:      "numeric: float64 passthrough",
			value:     42.5,
			fieldType: FieldTypeNumeric,
			wantValue: 42.5,
		},
		{
			name:      "numeric: int to float64",
			value:     100,
			fieldType: FieldTypeNumeric,
			wantValue: 100.0,
		},
		{
			name:      "numeric: int64 to float64",
			value:     int64(999),
			fieldType: FieldTypeNumeric,
			wantValue: 999.0,
		},
		{
			name:      "numeric: json.Number",
			value:     json.Number("49.99"),
			fieldType: FieldTypeNumeric,
			wantValue: 49.99,
		},
		{
			name:      "numeric: string with whitespace",
			value:     "  42  ",
			fieldType: FieldTypeNumeric,
			wantValue: 42.0,
		},
		{
			name:      "numeric: nil is null",
			value:     nil,
			fieldType: FieldTypeNumeric,
			wantNull:  true,
		},
		{
			name:      "numeric: bool fails",
			value:     true,
			fieldType: FieldTypeNumeric,
			wantErr:   types.ErrCoercionFailed,
		},
		{
			name:      "numeric: empty string fails",
			value:     "   ",
			fieldType: FieldTypeNumeric,
			wantErr:   types.ErrCoercionFailed,
		},
		{
			name:      "numeric: object fails",
			value:     map[string]any{"a": 1},
			fieldType: FieldTypeNumeric,
			wantErr:   types.ErrCoercionFailed,
		},

		// TEXT type tests
		{
			name:      "text: string passthrough",
			value:     "hello",
			fieldType: FieldTypeText,
			wantValue: "hello",
		},
		{
			name:      "text: integral float",
			value:     10.0,
			fieldType: FieldTypeText,
			wantValue: "10",
		},
		{
			name:      "text: fractional float",
			value:     4.8,
			fieldType: FieldTypeText,
			wantValue: "4.8",
		},
		{
			name:      "text: json.Number canonicalized",
			value:     json.Number("10.0"),
			fieldType: FieldTypeText,
			wantValue: "10",
		},
		{
			name:      "text: bool",
			value:     false,
			fieldType: FieldTypeText,
			wantValue: "false",
		},
		{
			name:      "text: nil is empty",
			value:     nil,
			fieldType: FieldTypeText,
			wantValue: "",
		},
		{
			name:      "text: array as JSON",
			value:     []any{"a", 1.0},
			fieldType: FieldTypeText,
			wantValue: `["a",1]`,
		},

		{
			name:      "unknown field type",
			value:     "x",
			fieldType: FieldType(99),
			wantErr:   types.ErrCoercionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Coerce(tt.value, tt.fieldType)

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() unexpected error = %v", err)
			}
			if result.IsNull != tt.wantNull {
				t.Errorf("Coerce() IsNull = %v, want %v", result.IsNull, tt.wantNull)
			}
			if !tt.wantNull && result.Value != tt.wantValue {
				t.Errorf("Coerce() Value = %v, want %v", result.Value, tt.wantValue)
			}
		})
	}
}

func TestCoerceNumericEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		wantValue float64
		wantErr   error
	}{
		{
			name:    "NaN string",
			value:   "NaN",
			wantErr: types.ErrCoercionFailed,
		},
		{
			name:      "positive infinity",
			value:     "Inf",
			wantValue: math.Inf(1),
		},
		{
			name:      "negative infinity",
			value:     "-Inf",
			wantValue: math.Inf(-1),
		},
		{
			name:      "exponent",
			value:     "1e3",
			wantValue: 1000,
		},
		{
			name:    "invalid mixed string",
			value:   "123abc",
			wantErr: types.ErrCoercionFailed,
		},
		{
			name:    "multiple decimals",
			value:   "1.2.3",
			wantErr: types.ErrCoercionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Coerce(tt.value, FieldTypeNumeric)

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() unexpected error = %v", err)
			}
			if result.Value.(float64) != tt.wantValue {
				t.Errorf("Coerce() Value = %v, want %v", result.Value, tt.wantValue)
			}
		})
	}
}
