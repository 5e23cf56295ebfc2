// internal/rules/render.go
package rules

import (
	"fmt"
	"strconv"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

/*
 * Rendering a compiled document against a data record.
 *
 * Render walks a deep copy of the document depth-first. Per object:
 *   1. Carrier keys are parsed and their chains evaluated. Any carrier that
 *      is malformed or false removes the whole object from its parent (an
 *      array element is dropped); the subtree is not walked further.
 *   2. Comment keys are deleted.
 *   3. Children are rendered: nested objects recurse, placeholders "[path]"
 *      are replaced by the record value (type preserved) or, when the path
 *      is missing, the property is deleted.
 *   4. Each carrier key is replaced in place by its result property, holding
 *      the record value at the THEN path or Options.DefaultResult.
 *
 * Record values inserted in steps 3 and 4 are never walked, so a record
 * string that happens to look like "[path]" stays literal. A false carrier on
 * the root object yields an empty document.
 *
 * Render never fails: every removal lands in RenderReport with a JSONPath
 * style location ("$.offers[0].price"). Subtrees nested deeper than
 * MaxDocumentDepth are removed and reported.
 */

// Removal reasons reported in Removal.Reason.
const (
	RemovedConditionFalse = "condition_false"
	RemovedMalformedRule  = "malformed_rule"
	RemovedUnresolved     = "unresolved_placeholder"
	RemovedDepthExceeded  = "depth_exceeded"
)

// Removal records one property or object dropped from the rendered output.
type Removal struct {
	Path   string
	Reason string
	Err    error // parse error for malformed_rule, nil otherwise
}

// RenderReport lists everything Render left out.
type RenderReport struct {
	Removed []Removal
}

// Partial reports whether any content was removed.
func (r RenderReport) Partial() bool {
	return len(r.Removed) > 0
}

// Count returns the number of removals per reason.
func (r RenderReport) Count() map[string]int {
	out := make(map[string]int)
	for _, rm := range r.Removed {
		out[rm.Reason]++
	}
	return out
}

// Render substitutes record values into doc. The input is not modified.
func (e *Engine) Render(doc *document.Object, record types.DataRecord) (*document.Object, RenderReport) {
	var report RenderReport
	if doc == nil {
		return document.NewObject(), report
	}

	rn := renderer{engine: e, record: record, report: &report}
	out := doc.Clone()
	if !rn.object(out, "$", 0) {
		return document.NewObject(), report
	}
	return out, report
}

type renderer struct {
	engine *Engine
	record types.DataRecord
	report *RenderReport
}

func (rn *renderer) remove(path, reason string, err error) {
	rn.report.Removed = append(rn.report.Removed, Removal{Path: path, Reason: reason, Err: err})
}

// object renders obj in place and reports whether it survives.
func (rn *renderer) object(obj *document.Object, path string, depth int) bool {
	if depth > types.MaxDocumentDepth {
		rn.remove(path, RemovedDepthExceeded, nil)
		return false
	}

	type carrier struct {
		key  string
		expr Expression
	}
	var carriers []carrier

	for _, k := range obj.Keys() {
		if !IsCarrierKey(k) || rn.engine.isComment(k) {
			continue
		}
		v, _ := obj.Get(k)
		s, ok := v.(string)
		if !ok {
			rn.remove(path, RemovedMalformedRule, fmt.Errorf("%s: %w: not a string", k, types.ErrMalformedExpression))
			return false
		}
		expr, err := ParseExpression(s)
		if err != nil {
			rn.remove(path, RemovedMalformedRule, fmt.Errorf("%s: %w", k, err))
			return false
		}
		if !EvaluateChain(expr.Conditions, rn.record) {
			rn.remove(path, RemovedConditionFalse, nil)
			return false
		}
		carriers = append(carriers, carrier{key: k, expr: expr})
	}

	for _, k := range obj.Keys() {
		if rn.engine.isComment(k) {
			obj.Delete(k)
			continue
		}
		if IsCarrierKey(k) {
			continue
		}

		v, _ := obj.Get(k)
		childPath := path + "." + k
		switch child := v.(type) {
		case *document.Object:
			if !rn.object(child, childPath, depth+1) {
				obj.Delete(k)
			}
		case []any:
			obj.Set(k, rn.array(child, childPath, depth+1))
		default:
			if p, ok := PlaceholderPath(v); ok {
				if val, found := rn.lookup(p); found {
					obj.Set(k, val)
				} else {
					obj.Delete(k)
					rn.remove(childPath, RemovedUnresolved, nil)
				}
			}
		}
	}

	for _, c := range carriers {
		val, found := rn.lookup(c.expr.Source)
		if !found {
			val = rn.engine.opts.DefaultResult
		}
		obj.Replace(c.key, resultProperty(c.key), val)
	}
	return true
}

// array renders elements in place and returns the surviving ones.
func (rn *renderer) array(arr []any, path string, depth int) []any {
	if depth > types.MaxDocumentDepth {
		rn.remove(path, RemovedDepthExceeded, nil)
		return []any{}
	}

	out := make([]any, 0, len(arr))
	for i, v := range arr {
		elemPath := path + "[" + strconv.Itoa(i) + "]"
		switch elem := v.(type) {
		case *document.Object:
			if rn.object(elem, elemPath, depth+1) {
				out = append(out, elem)
			}
		case []any:
			out = append(out, rn.array(elem, elemPath, depth+1))
		default:
			if p, ok := PlaceholderPath(v); ok {
				if val, found := rn.lookup(p); found {
					out = append(out, val)
				} else {
					rn.remove(elemPath, RemovedUnresolved, nil)
				}
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

func (rn *renderer) lookup(path string) (any, bool) {
	res, err := Resolve(path, rn.record)
	if err != nil || !res.Found {
		return nil, false
	}
	return document.CloneValue(res.Value), true
}
