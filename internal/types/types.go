// Package types provides domain models shared across schemamap components.
//
// Zero-dependency design: types.go, mapping.go and errors.go use only the
// standard library so the rule engine can be embedded without pulling in
// storage or transport deps. ID utilities in ids.go import uuid but are
// isolated for selective inclusion.
package types

import "encoding/json"

// DataRecord is the source of truth a compiled document is rendered against.
// Keys are either flat dotted paths ("product.title") or nested objects; values
// are JSON scalars, maps or arrays as produced by encoding/json.
type DataRecord map[string]any

// DecodeDataRecord unmarshals a JSON object into a DataRecord.
// Numbers decode as float64 so rendered values keep their JSON number type.
func DecodeDataRecord(data []byte) (DataRecord, error) {
	var rec DataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = DataRecord{}
	}
	return rec, nil
}

// Resource limits enforced by the rule engine to bound recursion and input size.
const (
	// MaxPathDepth prevents unbounded traversal during record path resolution.
	// 16 levels handles product.metafields.custom.* style paths with room to spare.
	MaxPathDepth = 16

	// MaxConditions limits a single condition chain.
	// Chains are evaluated left to right, so the limit bounds evaluation cost linearly.
	MaxConditions = 64

	// MaxDocumentDepth bounds the render and parse walks over a compiled document.
	// Deeper subtrees are removed and reported instead of recursed into.
	MaxDocumentDepth = 64

	// MaxDocumentSize caps the encoded size of a compiled document accepted by services.
	MaxDocumentSize = 1024 * 1024

	// MaxRecordSize caps the encoded size of a data record accepted by services.
	MaxRecordSize = 1024 * 1024
)

// PathSegment represents one component of a dotted record path.
// Numeric segments address array elements as well as object keys named by digits.
type PathSegment struct {
	Key     string // object key, always set
	Index   int    // array index, valid only if IsIndex
	IsIndex bool   // segment is a non-negative integer
}
