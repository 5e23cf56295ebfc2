// Package document provides an ordered JSON object model for compiled documents.
//
// encoding/json decodes objects into Go maps and loses property order. A
// compiled document is hand-edited between compile and parse, so the order an
// author wrote must survive a decode/encode cycle. Values inside a document are
// *Object, []any, string, json.Number, float64 (inserted from data records),
// bool or nil.
package document

import (
	"encoding/json"
	"math"
	"sort"
)

// Object is a JSON object that remembers key insertion order.
// The zero value is not usable; construct with NewObject.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Len returns the number of properties.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the property names in order. The slice is a copy.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores v under key. Existing keys keep their position; new keys are appended.
func (o *Object) Set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Replace swaps oldKey for newKey at oldKey's position and stores v under it.
// Any other property already named newKey is removed. If oldKey is absent,
// Replace behaves like Set(newKey, v).
func (o *Object) Replace(oldKey, newKey string, v any) {
	if _, ok := o.values[oldKey]; !ok {
		o.Set(newKey, v)
		return
	}
	if oldKey != newKey {
		o.Delete(newKey)
		for i, k := range o.keys {
			if k == oldKey {
				o.keys[i] = newKey
				break
			}
		}
		delete(o.values, oldKey)
	}
	o.values[newKey] = v
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	out := &Object{
		keys:   make([]string, len(o.keys)),
		values: make(map[string]any, len(o.values)),
	}
	copy(out.keys, o.keys)
	for k, v := range o.values {
		out.values[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies objects and arrays; scalars are returned as-is.
// Maps and slices inserted from data records are copied as well.
func CloneValue(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = CloneValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = CloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// ToMap converts o into plain Go maps and slices. json.Number values become
// float64 (or stay strings if they do not fit), which is the shape
// structpb and yaml encoders expect.
func (o *Object) ToMap() map[string]any {
	if o == nil {
		return nil
	}
	out := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		out[k] = plainValue(o.values[k])
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.ToMap()
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = plainValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = plainValue(elem)
		}
		return out
	case json.Number:
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) {
			return t.String()
		}
		return f
	default:
		return v
	}
}

// FromMap builds an Object from plain Go maps. Map iteration order is random,
// so keys are sorted for deterministic output.
func FromMap(m map[string]any) *Object {
	obj := NewObject()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		obj.Set(k, fromPlain(m[k]))
	}
	return obj
}

func fromPlain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return FromMap(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = fromPlain(elem)
		}
		return out
	default:
		return v
	}
}
