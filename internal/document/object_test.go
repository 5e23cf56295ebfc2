package document

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDecode_PreservesOrder(t *testing.T) {
	src := `{"@context":"https://schema.org","@type":"Product","name":"[product.title]","offers":{"price":"[current_price]","priceCurrency":"USD"},"aggregateRating":{"ratingValue":4.5}}`

	obj, err := Decode([]byte(src))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	wantKeys := []string{"@context", "@type", "name", "offers", "aggregateRating"}
	if got := obj.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Errorf("Keys() = %v, want %v", got, wantKeys)
	}

	out, err := obj.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(out) != src {
		t.Errorf("MarshalJSON() = %s\nwant %s", out, src)
	}
}

func TestDecode_Numbers(t *testing.T) {
	obj, err := Decode([]byte(`{"a": 1.50, "b": 10}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	a, _ := obj.Get("a")
	if a != json.Number("1.50") {
		t.Errorf("a = %#v, want json.Number(1.50)", a)
	}
	m := obj.ToMap()
	if m["b"] != float64(10) {
		t.Errorf("ToMap()[b] = %#v, want float64(10)", m["b"])
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "array", src: `[1, 2]`},
		{name: "string", src: `"x"`},
		{name: "invalid", src: `{"a": }`},
		{name: "trailing", src: `{"a": 1} {"b": 2}`},
		{name: "empty", src: ``},
		{name: "unterminated", src: `{"a": [1, 2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.src)); err == nil {
				t.Errorf("Decode(%q) error = nil, want error", tt.src)
			}
		})
	}
}

func TestDecode_DuplicateKeys(t *testing.T) {
	obj, err := Decode([]byte(`{"a": 1, "b": 2, "a": 3}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v, want [a b]", got)
	}
	if v, _ := obj.Get("a"); v != json.Number("3") {
		t.Errorf("a = %v, want 3", v)
	}
}

func TestObject_SetDeleteReplace(t *testing.T) {
	obj := NewObject()
	obj.Set("a", 1)
	obj.Set("b", 2)
	obj.Set("c", 3)
	obj.Set("a", 10)

	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Keys() = %v, want [a b c]", got)
	}

	if !obj.Delete("b") {
		t.Errorf("Delete(b) = false, want true")
	}
	if obj.Delete("missing") {
		t.Errorf("Delete(missing) = true, want false")
	}

	obj.Replace("a", "z", "new")
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"z", "c"}) {
		t.Errorf("Keys() after Replace = %v, want [z c]", got)
	}
	if v, _ := obj.Get("z"); v != "new" {
		t.Errorf("z = %v, want new", v)
	}

	obj.Set("y", 1)
	obj.Replace("c", "y", 2)
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"z", "y"}) {
		t.Errorf("Keys() after Replace onto existing = %v, want [z y]", got)
	}

	obj.Replace("absent", "w", 5)
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"z", "y", "w"}) {
		t.Errorf("Keys() after Replace of absent key = %v, want [z y w]", got)
	}
}

func TestObject_CloneIsDeep(t *testing.T) {
	orig, err := Decode([]byte(`{"offers": {"price": "[p]"}, "images": ["[a]", {"url": "[b]"}]}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	clone := orig.Clone()

	offers, _ := clone.Get("offers")
	offers.(*Object).Set("price", "changed")
	images, _ := clone.Get("images")
	images.([]any)[1].(*Object).Delete("url")

	origOffers, _ := orig.Get("offers")
	if v, _ := origOffers.(*Object).Get("price"); v != "[p]" {
		t.Errorf("original mutated through clone: price = %v", v)
	}
	origImages, _ := orig.Get("images")
	if !origImages.([]any)[1].(*Object).Has("url") {
		t.Errorf("original array element mutated through clone")
	}
}

func TestEncode_NoHTMLEscaping(t *testing.T) {
	obj := NewObject()
	obj.Set("ratingValue_Rule", "IF (review_count > 5 AND a < 2) THEN [x] ELSE [NULL]")
	out, err := Encode(obj)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(out), "review_count > 5 AND a < 2") {
		t.Errorf("Encode() escaped operators: %s", out)
	}
	if !strings.HasSuffix(string(out), "\n") {
		t.Errorf("Encode() should end with newline")
	}
}

func TestFromMap_SortedKeys(t *testing.T) {
	obj := FromMap(map[string]any{
		"b": 1.0,
		"a": map[string]any{"y": "1", "x": "2"},
		"c": []any{map[string]any{"k": true}},
	})
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Keys() = %v, want [a b c]", got)
	}
	nested, _ := obj.Get("a")
	if got := nested.(*Object).Keys(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("nested Keys() = %v, want [x y]", got)
	}
	arr, _ := obj.Get("c")
	if _, ok := arr.([]any)[0].(*Object); !ok {
		t.Errorf("array element not converted to *Object: %T", arr.([]any)[0])
	}
}

// Property-based test: plain maps survive FromMap -> MarshalJSON -> Decode -> ToMap
func TestObject_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("map round trip is lossless", prop.ForAll(
		func(strs map[string]string, nums map[string]int) bool {
			m := make(map[string]any)
			for k, v := range strs {
				m["s_"+k] = v
			}
			nested := make(map[string]any)
			for k, v := range nums {
				nested[k] = float64(v)
			}
			m["nested"] = nested

			data, err := FromMap(m).MarshalJSON()
			if err != nil {
				return false
			}
			back, err := Decode(data)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(back.ToMap(), m)
		},
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
		gen.MapOf(gen.Identifier(), gen.IntRange(-1000000, 1000000)),
	))

	properties.TestingRun(t)
}
