// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/schemamap/internal/types"
)

/*
 * Field path resolution for data records.
 *
 * Resolves dotted paths ("product.metafields.custom.isbn") against a record
 * that may be flat (the whole path is one key), nested (one key per segment),
 * or any mix of the two. Enforces MaxPathDepth at resolution time.
 *
 * Key functions:
 *   - SplitPath: Dotted string -> PathSegment chain
 *   - Resolve: Traverses a record following the chain
 *   - resolveRecursive: Internal recursive traversal
 *
 * Mixed layouts: at each object level the longest run of remaining segments
 * that exists as a key wins, so {"product.title": x} and
 * {"product": {"title": x}} both satisfy "product.title". Longest-first keeps
 * resolution deterministic when both layouts are present.
 *
 * Missing vs null: a key present with JSON null is Found with a nil Value.
 * Only an absent key yields ErrFieldNotFound; the evaluator's fail-closed
 * policy keys off that distinction.
 */

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // resolved value (nil for JSON null)
	Found bool // true if path resolved to a value
}

// SplitPath converts a dotted path into segments.
// Empty segments (leading, trailing or doubled dots) are preserved as empty
// keys so "a..b" never silently resolves as "a.b".
func SplitPath(path string) []types.PathSegment {
	parts := strings.Split(path, ".")
	segs := make([]types.PathSegment, len(parts))
	for i, p := range parts {
		segs[i] = types.PathSegment{Key: p}
		if n, err := strconv.Atoi(p); err == nil && n >= 0 && p == strconv.Itoa(n) {
			segs[i].Index = n
			segs[i].IsIndex = true
		}
	}
	return segs
}

// Resolve looks up path in record.
// Returns ErrFieldNotFound if the path is empty or does not exist.
// Returns ErrPathTooDeep if path exceeds MaxPathDepth segments.
func Resolve(path string, record types.DataRecord) (ResolveResult, error) {
	path = strings.TrimSpace(path)
	if path == "" || record == nil {
		return ResolveResult{}, types.ErrFieldNotFound
	}

	// Fast path: flat records keyed by the full dotted path
	if v, ok := record[path]; ok {
		return ResolveResult{Value: v, Found: true}, nil
	}

	segs := SplitPath(path)
	if len(segs) > types.MaxPathDepth {
		return ResolveResult{}, types.ErrPathTooDeep
	}

	return resolveRecursive(segs, map[string]any(record))
}

// resolveRecursive traverses nested maps and arrays following path segments.
// Objects try the longest joined key first; arrays require an index segment.
func resolveRecursive(segs []types.PathSegment, current any) (ResolveResult, error) {
	if len(segs) == 0 {
		return ResolveResult{Value: current, Found: true}, nil
	}

	switch v := current.(type) {
	case types.DataRecord:
		return resolveRecursive(segs, map[string]any(v))

	case map[string]any:
		for n := len(segs); n >= 1; n-- {
			val, ok := v[joinSegments(segs[:n])]
			if !ok {
				continue
			}
			result, err := resolveRecursive(segs[n:], val)
			if err == nil && result.Found {
				return result, nil
			}
		}
		return ResolveResult{}, types.ErrFieldNotFound

	case []any:
		seg := segs[0]
		if !seg.IsIndex || seg.Index >= len(v) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(segs[1:], v[seg.Index])

	default:
		// Scalar or null value but path continues
		return ResolveResult{}, types.ErrFieldNotFound
	}
}

func joinSegments(segs []types.PathSegment) string {
	if len(segs) == 1 {
		return segs[0].Key
	}
	keys := make([]string, len(segs))
	for i, s := range segs {
		keys[i] = s.Key
	}
	return strings.Join(keys, ".")
}
