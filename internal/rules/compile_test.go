// internal/rules/compile_test.go
package rules

import (
	"errors"
	"testing"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

func mustDoc(t *testing.T, data string) *document.Object {
	t.Helper()
	doc, err := document.Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", data, err)
	}
	return doc
}

func compactJSON(t *testing.T, doc *document.Object) string {
	t.Helper()
	b, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	return string(b)
}

func plain(id int, source, target string) types.MappingRule {
	return types.MappingRule{ID: id, Source: source, Target: target, Kind: types.KindPlainText}
}

func conditional(id int, source, target string, conds ...types.Condition) types.MappingRule {
	return types.MappingRule{ID: id, Source: source, Target: target, Kind: types.KindConditional, Conditions: conds}
}

func TestCompile_PlainText(t *testing.T) {
	set := types.MappingSet{
		plain(1, "product.title", "name"),
		plain(2, "product.price", "offers.price"),
	}

	compiled, err := Compile(set, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if len(compiled.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", compiled.Skipped)
	}

	want := `{"name":"[product.title]","_comment_name":"rule 1: product.title",` +
		`"offers":{"price":"[product.price]","_comment_price":"rule 2: product.price"}}`
	if got := compactJSON(t, compiled.Document); got != want {
		t.Errorf("Document = %s, want %s", got, want)
	}
}

func TestCompile_Conditional(t *testing.T) {
	set := types.MappingSet{
		conditional(3, "product.rating", "review",
			cond("review_count", types.OpGt, "5", types.JoinAnd),
			cond("product.rating", types.OpIsEmpty, "", types.JoinAnd), // last join normalized
		),
	}

	compiled, err := Compile(set, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	want := `{"review":{"ratingValue_Rule":"IF (review_count > 5 AND product.rating is-empty) THEN [product.rating] ELSE [NULL]",` +
		`"_comment":"rule 3: 2 conditions"}}`
	if got := compactJSON(t, compiled.Document); got != want {
		t.Errorf("Document = %s, want %s", got, want)
	}
}

func TestCompile_SkeletonPreservedAndNotMutated(t *testing.T) {
	skeleton := mustDoc(t, `{"@context":"https://schema.org","@type":"Product","review":{"@type":"Review"},"sku":"static"}`)
	before := compactJSON(t, skeleton)

	set := types.MappingSet{
		plain(1, "product.title", "name"),
		conditional(2, "product.rating", "review", cond("review_count", types.OpGt, "5", types.JoinTerminal)),
		plain(3, "product.sku", "sku.value"),
	}

	compiled, err := Compile(set, skeleton)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	if got := compactJSON(t, skeleton); got != before {
		t.Errorf("skeleton mutated: %s, want %s", got, before)
	}

	want := `{"@context":"https://schema.org","@type":"Product",` +
		`"review":{"@type":"Review","ratingValue_Rule":"IF (review_count > 5) THEN [product.rating] ELSE [NULL]","_comment":"rule 2: 1 condition"},` +
		`"sku":{"value":"[product.sku]","_comment_value":"rule 3: product.sku"},` +
		`"name":"[product.title]","_comment_name":"rule 1: product.title"}`
	if got := compactJSON(t, compiled.Document); got != want {
		t.Errorf("Document = %s, want %s", got, want)
	}
}

func TestCompile_LaterRuleWins(t *testing.T) {
	set := types.MappingSet{
		plain(1, "a", "name"),
		plain(2, "b", "name"),
	}

	compiled, err := Compile(set, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	v, _ := compiled.Document.Get("name")
	if v != "[b]" {
		t.Errorf("name = %v, want [b]", v)
	}
}

func TestCompile_DuplicateID(t *testing.T) {
	set := types.MappingSet{plain(1, "a", "x"), plain(1, "b", "y")}

	compiled, err := Compile(set, nil)
	if !errors.Is(err, types.ErrDuplicateRuleID) {
		t.Errorf("Compile() error = %v, want ErrDuplicateRuleID", err)
	}
	if compiled != nil {
		t.Errorf("Compile() returned document alongside error")
	}
}

func TestCompile_Skips(t *testing.T) {
	tests := []struct {
		name   string
		rule   types.MappingRule
		reason string
	}{
		{"empty source", plain(1, "", "name"), SkipEmptySource},
		{"blank source", plain(1, "  ", "name"), SkipEmptySource},
		{"empty target", plain(1, "a", ""), SkipEmptyTarget},
		{"bracket in source", plain(1, "a[0]", "name"), SkipInvalidSource},
		{"padded source", plain(1, " a", "name"), SkipInvalidSource},
		{"empty target segment", plain(1, "a", "offers..price"), SkipInvalidTarget},
		{"comment target", plain(1, "a", "_comment_x"), SkipInvalidTarget},
		{"carrier target", plain(1, "a", "ratingValue_Rule"), SkipInvalidTarget},
		{"unknown kind", types.MappingRule{ID: 1, Source: "a", Target: "b", Kind: "lookup"}, SkipUnknownKind},
		{
			"conditional NULL source",
			conditional(1, "null", "review", cond("x", types.OpEq, "1", types.JoinTerminal)),
			SkipInvalidSource,
		},
		{"empty chain", conditional(1, "a", "review"), SkipInvalidChain},
		{
			"mid-chain terminal",
			conditional(1, "a", "review",
				cond("x", types.OpEq, "1", types.JoinTerminal),
				cond("y", types.OpEq, "1", types.JoinTerminal)),
			SkipInvalidChain,
		},
		{
			"invalid operator",
			conditional(1, "a", "review", cond("x", types.Operator("~="), "1", types.JoinTerminal)),
			SkipInvalidChain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := Compile(types.MappingSet{tt.rule, plain(2, "ok", "ok")}, nil)
			if err != nil {
				t.Fatalf("Compile() error = %v, want nil", err)
			}
			if len(compiled.Skipped) != 1 {
				t.Fatalf("len(Skipped) = %d, want 1", len(compiled.Skipped))
			}
			if got := compiled.Skipped[0]; got.RuleID != 1 || got.Reason != tt.reason {
				t.Errorf("Skipped[0] = %v, want rule 1: %s", got, tt.reason)
			}
			if !compiled.Document.Has("ok") {
				t.Errorf("valid sibling rule missing from document")
			}
		})
	}
}

func TestCompile_ReplacesNonObjectTarget(t *testing.T) {
	skeleton := mustDoc(t, `{"review":"static text"}`)
	set := types.MappingSet{
		conditional(1, "r", "review", cond("x", types.OpEq, "1", types.JoinTerminal)),
	}

	compiled, err := Compile(set, skeleton)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	v, _ := compiled.Document.Get("review")
	if _, ok := v.(*document.Object); !ok {
		t.Errorf("review = %T, want *document.Object", v)
	}
}

func TestCompile_CustomOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.ResultProperty = "price"
	opts.CommentPrefix = "#"
	engine, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	set := types.MappingSet{
		plain(1, "title", "name"),
		conditional(2, "sale", "offers", cond("on_sale", types.OpEq, "true", types.JoinTerminal)),
	}
	compiled, err := engine.Compile(set, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := `{"name":"[title]","#_name":"rule 1: title",` +
		`"offers":{"price_Rule":"IF (on_sale == true) THEN [sale] ELSE [NULL]","#":"rule 2: 1 condition"}}`
	if got := compactJSON(t, compiled.Document); got != want {
		t.Errorf("Document = %s, want %s", got, want)
	}
}
