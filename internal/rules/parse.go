// internal/rules/parse.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

/*
 * Parsing a compiled (possibly hand-edited) document back into a MappingSet.
 *
 * The walk visits objects in document order and recovers:
 *   - Placeholder leaf "[path]" -> plain_text {Source: path, Target: dotted
 *     property path}
 *   - Carrier key -> conditional {Target: dotted path of the carrying object,
 *     Source: THEN path, Conditions: parsed chain}
 *
 * Comment keys are ignored. The other keys of a carrier object are still
 * walked, so an object can yield a conditional rule and plain-text rules.
 * Arrays are not descended: targets address object properties only.
 * Rules get fresh sequential ids from 1 in discovery order.
 *
 * Failure policy (no partial set is returned):
 *   - ReasonAllCarriersMalformed: at least one carrier and none parsed
 *   - ReasonDegenerate: nothing recovered from a document with more than
 *     TrivialPropertyThreshold content properties (comment and @ keys
 *     excluded), which points at an edit the parser cannot follow
 *
 * Individually malformed carriers among valid ones are skipped and listed in
 * the ParseReport returned by ParseDetailed.
 */

// Parse failure reasons.
const (
	ReasonDegenerate           = "degenerate"
	ReasonAllCarriersMalformed = "all_carriers_malformed"
)

// MalformedCarrier identifies a carrier whose expression did not parse.
type MalformedCarrier struct {
	Path string // dotted path of the carrier key
	Err  error
}

// ParseReport lists carriers skipped by a successful parse.
type ParseReport struct {
	Malformed []MalformedCarrier
}

// ParseError is returned when a document cannot be mapped back with any
// confidence. It matches types.ErrParseFailure via errors.Is.
type ParseError struct {
	Reason     string
	Properties int // content properties in the document
	Carriers   int // carrier keys found
	Malformed  []MalformedCarrier
}

func (e *ParseError) Error() string {
	switch e.Reason {
	case ReasonAllCarriersMalformed:
		msg := fmt.Sprintf("%s: all %d rule carriers malformed", types.ErrParseFailure, e.Carriers)
		if len(e.Malformed) > 0 {
			msg += fmt.Sprintf(" (first: %s: %v)", e.Malformed[0].Path, e.Malformed[0].Err)
		}
		return msg
	default:
		return fmt.Sprintf("%s: no mapping rules found in document with %d content properties", types.ErrParseFailure, e.Properties)
	}
}

func (e *ParseError) Unwrap() error {
	return types.ErrParseFailure
}

// Parse recovers a mapping set from doc.
// Returns *ParseError when the document is degenerate.
func (e *Engine) Parse(doc *document.Object) (types.MappingSet, error) {
	set, _, err := e.ParseDetailed(doc)
	return set, err
}

// ParseDetailed is Parse plus the list of carriers that were skipped.
func (e *Engine) ParseDetailed(doc *document.Object) (types.MappingSet, ParseReport, error) {
	var report ParseReport
	if doc == nil {
		return types.MappingSet{}, report, nil
	}

	p := parser{engine: e, set: types.MappingSet{}}
	p.object(doc, nil, 0)
	report.Malformed = p.malformed

	if p.carriers > 0 && p.carriers == len(p.malformed) {
		return nil, report, &ParseError{
			Reason:     ReasonAllCarriersMalformed,
			Properties: p.properties,
			Carriers:   p.carriers,
			Malformed:  p.malformed,
		}
	}
	if len(p.set) == 0 && p.properties > e.opts.TrivialPropertyThreshold {
		return nil, report, &ParseError{
			Reason:     ReasonDegenerate,
			Properties: p.properties,
			Carriers:   p.carriers,
		}
	}
	return p.set, report, nil
}

type parser struct {
	engine     *Engine
	set        types.MappingSet
	malformed  []MalformedCarrier
	carriers   int
	properties int
}

func (p *parser) add(r types.MappingRule) {
	r.ID = len(p.set) + 1
	p.set = append(p.set, r)
}

func (p *parser) object(obj *document.Object, prefix []string, depth int) {
	if depth > types.MaxDocumentDepth {
		return
	}

	for _, k := range obj.Keys() {
		if p.engine.isComment(k) {
			continue
		}
		if !strings.HasPrefix(k, "@") {
			p.properties++
		}

		v, _ := obj.Get(k)
		path := append(prefix[:len(prefix):len(prefix)], k)

		if IsCarrierKey(k) {
			p.carrier(v, prefix, strings.Join(path, "."))
			continue
		}

		switch child := v.(type) {
		case *document.Object:
			p.object(child, path, depth+1)
		case []any:
			p.countArray(child, depth+1)
		default:
			if src, ok := PlaceholderPath(v); ok {
				p.add(types.MappingRule{
					Source: src,
					Target: strings.Join(path, "."),
					Kind:   types.KindPlainText,
				})
			}
		}
	}
}

func (p *parser) carrier(v any, prefix []string, path string) {
	p.carriers++

	s, ok := v.(string)
	if !ok {
		p.malformed = append(p.malformed, MalformedCarrier{
			Path: path,
			Err:  fmt.Errorf("%w: carrier value is not a string", types.ErrMalformedExpression),
		})
		return
	}
	if len(prefix) == 0 {
		p.malformed = append(p.malformed, MalformedCarrier{
			Path: path,
			Err:  fmt.Errorf("%w: carrier on document root has no target", types.ErrMalformedExpression),
		})
		return
	}
	expr, err := ParseExpression(s)
	if err != nil {
		p.malformed = append(p.malformed, MalformedCarrier{Path: path, Err: err})
		return
	}

	p.add(types.MappingRule{
		Source:     expr.Source,
		Target:     strings.Join(prefix, "."),
		Kind:       types.KindConditional,
		Conditions: expr.Conditions,
	})
}

// countArray counts content properties of objects inside arrays without
// recovering rules from them.
func (p *parser) countArray(arr []any, depth int) {
	if depth > types.MaxDocumentDepth {
		return
	}
	for _, v := range arr {
		switch elem := v.(type) {
		case *document.Object:
			for _, k := range elem.Keys() {
				if p.engine.isComment(k) || strings.HasPrefix(k, "@") {
					continue
				}
				p.properties++
				if child, _ := elem.Get(k); child != nil {
					switch c := child.(type) {
					case *document.Object:
						p.countArray([]any{c}, depth+1)
					case []any:
						p.countArray(c, depth+1)
					}
				}
			}
		case []any:
			p.countArray(elem, depth+1)
		}
	}
}
