// internal/rules/engine.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

/*
 * Engine configuration and package-level entry points.
 *
 * Engine is a value bundling the document conventions shared by compile,
 * render and parse. It holds no mutable state: one Engine serves any number
 * of goroutines, and the package-level Compile/Render/Parse delegate to an
 * engine built from DefaultOptions().
 *
 * Document conventions:
 *   - Carrier keys end in CarrierSuffix; the prefix names the result property
 *     ("ratingValue_Rule" -> "ratingValue")
 *   - Comment keys start with Options.CommentPrefix and never reach output
 *   - Placeholders are string leaves of the form "[path]"
 */

// CarrierSuffix marks a property whose value is an embedded rule expression.
const CarrierSuffix = "_Rule"

// Options configures document conventions.
type Options struct {
	// ResultProperty is the property a satisfied carrier is replaced by.
	// The compiler writes carriers as ResultProperty + CarrierSuffix.
	ResultProperty string

	// DefaultResult is rendered when a satisfied carrier's THEN path is
	// missing from the record.
	DefaultResult any

	// CommentPrefix marks provenance keys stripped at render time.
	CommentPrefix string

	// TrivialPropertyThreshold is the number of content properties a
	// document may have while still parsing to an empty mapping set.
	TrivialPropertyThreshold int
}

// DefaultOptions returns the standard conventions.
func DefaultOptions() Options {
	return Options{
		ResultProperty:           "ratingValue",
		DefaultResult:            0,
		CommentPrefix:            "_comment",
		TrivialPropertyThreshold: 2,
	}
}

// Validate checks that options describe a usable document convention.
func (o Options) Validate() error {
	if strings.TrimSpace(o.ResultProperty) == "" {
		return fmt.Errorf("result property must not be empty")
	}
	if strings.ContainsAny(o.ResultProperty, ".[]") {
		return fmt.Errorf("result property %q must be a single property name", o.ResultProperty)
	}
	if strings.TrimSpace(o.CommentPrefix) == "" {
		return fmt.Errorf("comment prefix must not be empty")
	}
	if o.TrivialPropertyThreshold < 0 {
		return fmt.Errorf("trivial property threshold must be >= 0, got %d", o.TrivialPropertyThreshold)
	}
	return nil
}

// Engine compiles, renders and parses documents under one set of Options.
type Engine struct {
	opts Options
}

// NewEngine creates an engine after validating opts.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine's configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// CarrierKey returns the property name the compiler writes rules under.
func (e *Engine) CarrierKey() string {
	return e.opts.ResultProperty + CarrierSuffix
}

func (e *Engine) isComment(key string) bool {
	return strings.HasPrefix(key, e.opts.CommentPrefix)
}

// IsCarrierKey reports whether key holds an embedded rule expression.
func IsCarrierKey(key string) bool {
	return len(key) > len(CarrierSuffix) && strings.HasSuffix(key, CarrierSuffix)
}

// resultProperty strips CarrierSuffix from a carrier key.
func resultProperty(carrierKey string) string {
	return strings.TrimSuffix(carrierKey, CarrierSuffix)
}

// PlaceholderPath extracts the record path from a "[path]" leaf.
func PlaceholderPath(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return "", false
	}
	path := strings.TrimSpace(s[1 : len(s)-1])
	if path == "" || strings.ContainsAny(path, "[]") {
		return "", false
	}
	return path, true
}

func placeholder(path string) string {
	return "[" + path + "]"
}

var defaultEngine = &Engine{opts: DefaultOptions()}

// Compile compiles set into skeleton using DefaultOptions.
func Compile(set types.MappingSet, skeleton *document.Object) (*Compiled, error) {
	return defaultEngine.Compile(set, skeleton)
}

// Render renders doc against record using DefaultOptions.
func Render(doc *document.Object, record types.DataRecord) (*document.Object, RenderReport) {
	return defaultEngine.Render(doc, record)
}

// Parse recovers a mapping set from doc using DefaultOptions.
func Parse(doc *document.Object) (types.MappingSet, error) {
	return defaultEngine.Parse(doc)
}
