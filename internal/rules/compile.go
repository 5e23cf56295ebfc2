// internal/rules/compile.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

/*
 * Rule compilation into a template skeleton.
 *
 * Compile transforms a MappingSet into a CompiledDocument:
 *   1. Reject duplicate rule ids (the only fatal error)
 *   2. Deep-clone the skeleton (never mutated; nil means empty object)
 *   3. Write each rule in mapping-set order:
 *      - plain_text:  target = "[source]" plus sibling comment
 *                     "<prefix>_<leaf>" = "rule <id>: <source>"
 *      - conditional: target object gains "<ResultProperty>_Rule" =
 *                     FormatExpression(chain, source) plus "<prefix>" =
 *                     "rule <id>: <n> conditions"
 *
 * Dotted targets address nested objects, created on demand. A non-object
 * value in the way is replaced. When two rules write the same property the
 * later rule wins.
 *
 * Rules that cannot be written are skipped and reported in Compiled.Skipped,
 * never fatal: an editor can save a half-finished mapping set and still get a
 * document for the rules that are complete.
 */

// Skip reasons reported in CompileSkip.Reason.
const (
	SkipEmptySource   = "empty_source"
	SkipEmptyTarget   = "empty_target"
	SkipInvalidSource = "invalid_source"
	SkipInvalidTarget = "invalid_target"
	SkipUnknownKind   = "unknown_kind"
	SkipInvalidChain  = "invalid_chain"
)

// CompileSkip records a rule left out of the compiled document.
type CompileSkip struct {
	RuleID int
	Reason string
	Err    error // detail for invalid_chain and invalid_target, nil otherwise
}

func (s CompileSkip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("rule %d: %s: %v", s.RuleID, s.Reason, s.Err)
	}
	return fmt.Sprintf("rule %d: %s", s.RuleID, s.Reason)
}

// Compiled is the result of compiling a mapping set.
type Compiled struct {
	Document *document.Object
	Skipped  []CompileSkip
}

// Compile writes set into a copy of skeleton.
// Returns ErrDuplicateRuleID if two rules share an id.
func (e *Engine) Compile(set types.MappingSet, skeleton *document.Object) (*Compiled, error) {
	seen := make(map[int]struct{}, len(set))
	for _, r := range set {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rule %d: %w", r.ID, types.ErrDuplicateRuleID)
		}
		seen[r.ID] = struct{}{}
	}

	doc := document.NewObject()
	if skeleton != nil {
		doc = skeleton.Clone()
	}

	out := &Compiled{Document: doc}
	for _, r := range set {
		if skip := e.compileRule(doc, r); skip != nil {
			out.Skipped = append(out.Skipped, *skip)
		}
	}
	return out, nil
}

func (e *Engine) compileRule(doc *document.Object, r types.MappingRule) *CompileSkip {
	skip := func(reason string, err error) *CompileSkip {
		return &CompileSkip{RuleID: r.ID, Reason: reason, Err: err}
	}

	if !r.Kind.Valid() {
		return skip(SkipUnknownKind, fmt.Errorf("kind %q", r.Kind))
	}
	if strings.TrimSpace(r.Source) == "" {
		return skip(SkipEmptySource, nil)
	}
	if strings.TrimSpace(r.Target) == "" {
		return skip(SkipEmptyTarget, nil)
	}
	if r.Source != strings.TrimSpace(r.Source) || strings.ContainsAny(r.Source, "[]") {
		return skip(SkipInvalidSource, fmt.Errorf("source %q", r.Source))
	}
	segs, err := e.targetSegments(r.Target)
	if err != nil {
		return skip(SkipInvalidTarget, err)
	}

	switch r.Kind {
	case types.KindPlainText:
		parent := ensurePath(doc, segs[:len(segs)-1])
		leaf := segs[len(segs)-1]
		parent.Set(leaf, placeholder(r.Source))
		parent.Set(e.opts.CommentPrefix+"_"+leaf, fmt.Sprintf("rule %d: %s", r.ID, r.Source))

	case types.KindConditional:
		if strings.EqualFold(r.Source, "NULL") {
			return skip(SkipInvalidSource, fmt.Errorf("source %q is reserved for the ELSE branch", r.Source))
		}
		if err := types.ValidateChain(r.Conditions); err != nil {
			return skip(SkipInvalidChain, err)
		}
		target := ensurePath(doc, segs)
		expr := Expression{Conditions: types.NormalizeChain(r.Conditions), Source: r.Source}
		target.Set(e.CarrierKey(), FormatExpression(expr))
		target.Set(e.opts.CommentPrefix, conditionComment(r.ID, len(r.Conditions)))
	}
	return nil
}

// targetSegments splits a dotted target and rejects segments the renderer
// would strip or misread.
func (e *Engine) targetSegments(target string) ([]string, error) {
	segs := strings.Split(target, ".")
	if len(segs) > types.MaxDocumentDepth {
		return nil, fmt.Errorf("target %q deeper than %d levels", target, types.MaxDocumentDepth)
	}
	for _, s := range segs {
		switch {
		case strings.TrimSpace(s) == "":
			return nil, fmt.Errorf("target %q has an empty segment", target)
		case e.isComment(s):
			return nil, fmt.Errorf("target segment %q uses the comment prefix", s)
		case IsCarrierKey(s):
			return nil, fmt.Errorf("target segment %q uses the rule suffix", s)
		}
	}
	return segs, nil
}

// ensurePath walks segs from root, creating objects (or replacing
// non-object values) as needed, and returns the innermost object.
func ensurePath(root *document.Object, segs []string) *document.Object {
	cur := root
	for _, s := range segs {
		v, _ := cur.Get(s)
		child, ok := v.(*document.Object)
		if !ok {
			child = document.NewObject()
			cur.Set(s, child)
		}
		cur = child
	}
	return cur
}

func conditionComment(id, n int) string {
	if n == 1 {
		return fmt.Sprintf("rule %d: 1 condition", id)
	}
	return fmt.Sprintf("rule %d: %d conditions", id, n)
}
