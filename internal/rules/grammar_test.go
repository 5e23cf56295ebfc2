package rules

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/schemamap/internal/types"
)

func TestFormatExpression(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{
			name: "single condition",
			expr: Expression{
				Conditions: []types.Condition{cond("review_count", types.OpGt, "5", types.JoinTerminal)},
				Source:     "product.rating",
			},
			want: "IF (review_count > 5) THEN [product.rating] ELSE [NULL]",
		},
		{
			name: "mixed joins",
			expr: Expression{
				Conditions: []types.Condition{
					cond("a", types.OpEq, "1", types.JoinAnd),
					cond("b", types.OpContains, "blue", types.JoinOr),
					cond("c", types.OpNeq, "x", types.JoinTerminal),
				},
				Source: "r",
			},
			want: "IF (a == 1 AND b contains blue OR c != x) THEN [r] ELSE [NULL]",
		},
		{
			name: "is-empty omits value",
			expr: Expression{
				Conditions: []types.Condition{cond("subtitle", types.OpIsEmpty, "", types.JoinTerminal)},
				Source:     "title",
			},
			want: "IF (subtitle is-empty) THEN [title] ELSE [NULL]",
		},
		{
			name: "multi-word value stays bare",
			expr: Expression{
				Conditions: []types.Condition{cond("title", types.OpContains, "science fiction", types.JoinTerminal)},
				Source:     "title",
			},
			want: "IF (title contains science fiction) THEN [title] ELSE [NULL]",
		},
		{
			name: "ambiguous values are quoted",
			expr: Expression{
				Conditions: []types.Condition{
					cond("a", types.OpEq, "", types.JoinAnd),
					cond("b", types.OpContains, "rock and roll", types.JoinAnd),
					cond("c", types.OpEq, "f(x)", types.JoinAnd),
					cond("d", types.OpEq, " padded", types.JoinTerminal),
				},
				Source: "r",
			},
			want: `IF (a == "" AND b contains "rock and roll" AND c == "f(x)" AND d == " padded") THEN [r] ELSE [NULL]`,
		},
		{
			name: "fields with whitespace are quoted",
			expr: Expression{
				Conditions: []types.Condition{
					cond("review count", types.OpGt, "5", types.JoinAnd),
					cond("in\tstock", types.OpEq, "yes", types.JoinTerminal),
				},
				Source: "r",
			},
			want: `IF ("review count" > 5 AND "in\tstock" == yes) THEN [r] ELSE [NULL]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatExpression(tt.expr); got != tt.want {
				t.Errorf("FormatExpression() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseExpression(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Expression
	}{
		{
			name:  "canonical",
			input: "IF (review_count > 5) THEN [product.rating] ELSE [NULL]",
			want: Expression{
				Conditions: []types.Condition{cond("review_count", types.OpGt, "5", types.JoinTerminal)},
				Source:     "product.rating",
			},
		},
		{
			name:  "lowercase keywords and extra whitespace",
			input: "  if(  a   ==  1   and b CONTAINS x ) then [ r ]  else [null]  ",
			want: Expression{
				Conditions: []types.Condition{
					cond("a", types.OpEq, "1", types.JoinAnd),
					cond("b", types.OpContains, "x", types.JoinTerminal),
				},
				Source: "r",
			},
		},
		{
			name:  "multi-word bare value collapses whitespace",
			input: "IF (title contains science    fiction OR x == 1) THEN [t] ELSE [NULL]",
			want: Expression{
				Conditions: []types.Condition{
					cond("title", types.OpContains, "science fiction", types.JoinOr),
					cond("x", types.OpEq, "1", types.JoinTerminal),
				},
				Source: "t",
			},
		},
		{
			name:  "unknown words belong to the bare value",
			input: "IF (a == 1 XOR b) THEN [r] ELSE [NULL]",
			want: Expression{
				Conditions: []types.Condition{cond("a", types.OpEq, "1 XOR b", types.JoinTerminal)},
				Source:     "r",
			},
		},
		{
			name:  "dangling join",
			input: "IF (a == 1 AND) THEN [r] ELSE [NULL]",
			want: Expression{
				Conditions: []types.Condition{cond("a", types.OpEq, "1", types.JoinTerminal)},
				Source:     "r",
			},
		},
		{
			name:  "is-empty before join",
			input: "IF (a is-empty OR b is-empty) THEN [r] ELSE [NULL]",
			want: Expression{
				Conditions: []types.Condition{
					cond("a", types.OpIsEmpty, "", types.JoinOr),
					cond("b", types.OpIsEmpty, "", types.JoinTerminal),
				},
				Source: "r",
			},
		},
		{
			name:  "quoted field and value",
			input: `IF ("odd key" == "a \"quoted\" word") THEN [r] ELSE [NULL]`,
			want: Expression{
				Conditions: []types.Condition{cond("odd key", types.OpEq, `a "quoted" word`, types.JoinTerminal)},
				Source:     "r",
			},
		},
		{
			name:  "no space before bracket",
			input: "IF(a > 1)THEN[r]ELSE[NULL]",
			want: Expression{
				Conditions: []types.Condition{cond("a", types.OpGt, "1", types.JoinTerminal)},
				Source:     "r",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpression(tt.input)
			if err != nil {
				t.Fatalf("ParseExpression() error = %v, want nil", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseExpression() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseExpression_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "IF (garbage"},
		{"missing IF", "(a == 1) THEN [r] ELSE [NULL]"},
		{"missing paren", "IF a == 1 THEN [r] ELSE [NULL]"},
		{"empty chain", "IF () THEN [r] ELSE [NULL]"},
		{"unknown operator", "IF (a ~= 1) THEN [r] ELSE [NULL]"},
		{"missing operator", "IF (a) THEN [r] ELSE [NULL]"},
		{"missing value", "IF (a ==) THEN [r] ELSE [NULL]"},
		{"missing value before join", "IF (a == AND b == 1) THEN [r] ELSE [NULL]"},
		{"missing field", "IF (== 1) THEN [r] ELSE [NULL]"},
		{"join before first condition", "IF (AND a == 1) THEN [r] ELSE [NULL]"},
		{"bad join after quoted value", `IF (a == "1" XOR b == 2) THEN [r] ELSE [NULL]`},
		{"terminal keyword as join", `IF (a == "1" TERMINAL b == 2) THEN [r] ELSE [NULL]`},
		{"unterminated quote", `IF (a == "x) THEN [r] ELSE [NULL]`},
		{"missing THEN", "IF (a == 1) [r] ELSE [NULL]"},
		{"then null", "IF (a == 1) THEN [NULL] ELSE [NULL]"},
		{"empty then", "IF (a == 1) THEN [ ] ELSE [NULL]"},
		{"else not null", "IF (a == 1) THEN [r] ELSE [r]"},
		{"unterminated bracket", "IF (a == 1) THEN [r ELSE [NULL]"},
		{"missing ELSE", "IF (a == 1) THEN [r]"},
		{"trailing input", "IF (a == 1) THEN [r] ELSE [NULL] extra"},
		{"paren in bare value", "IF (a == f(x)) THEN [r] ELSE [NULL]"},
		{"too many conditions", "IF (" + strings.Repeat("a == 1 AND ", types.MaxConditions) + "a == 1) THEN [r] ELSE [NULL]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpression(tt.input)
			if !errors.Is(err, types.ErrMalformedExpression) {
				t.Errorf("ParseExpression(%q) error = %v, want ErrMalformedExpression", tt.input, err)
			}
		})
	}
}

func TestGrammarVersion(t *testing.T) {
	if GrammarVersion != 1 {
		t.Errorf("GrammarVersion = %d, want 1", GrammarVersion)
	}
}

func genCondition() gopter.Gen {
	return gopter.CombineGens(
		gen.OneGenOf(gen.Identifier(), gen.OneConstOf("review count", "a  b", " x", "x ", "f(x)", "[x]", "and", "contains", `say "hi"`)),
		gen.OneConstOf(types.OpGt, types.OpLt, types.OpEq, types.OpNeq, types.OpContains, types.OpIsEmpty),
		gen.OneGenOf(gen.AnyString(), gen.AlphaString(), gen.OneConstOf("", "and", "OR", " x ", "a  b", "[x]", "(", `"`)),
		gen.OneConstOf(types.JoinAnd, types.JoinOr),
	).Map(func(v []any) types.Condition {
		return types.Condition{
			Field:    v[0].(string),
			Operator: v[1].(types.Operator),
			Value:    v[2].(string),
			Join:     v[3].(types.Join),
		}
	})
}

// Property-based test: every valid chain survives a format/parse cycle
func TestExpression_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("ParseExpression(FormatExpression(e)) == e", prop.ForAll(
		func(conds []types.Condition, source string) bool {
			e := Expression{Conditions: types.NormalizeChain(conds), Source: source}
			got, err := ParseExpression(FormatExpression(e))
			if err != nil {
				t.Logf("format %q: %v", FormatExpression(e), err)
				return false
			}
			return reflect.DeepEqual(got, e)
		},
		gen.SliceOfN(5, genCondition()).SuchThat(func(v []types.Condition) bool { return len(v) > 0 }),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// Property-based test: parsing arbitrary input never panics
func TestParseExpression_PropertyNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("ParseExpression never panics", prop.ForAll(
		func(prefix, body string) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("ParseExpression() panicked: %v", r)
				}
			}()
			_, _ = ParseExpression(prefix + body)
			return true
		},
		gen.OneConstOf("", "IF (", "IF (a == ", "IF (a == 1) THEN [", "IF (a == 1) THEN [r] ELSE ["),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
