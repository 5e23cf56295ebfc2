package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/solatis/schemamap/internal/core/db"
	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/rules"
	"github.com/solatis/schemamap/internal/types"
)

// Wire views of engine and store results, shared by the gRPC and HTTP surfaces.

type skipView struct {
	RuleID int    `json:"rule_id"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

type removalView struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

type malformedView struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type mappingSetView struct {
	ID         types.MappingSetID `json:"id"`
	Name       string             `json:"name"`
	ETag       string             `json:"etag"`
	MappingSet types.MappingSet   `json:"mapping_set,omitempty"`
	Document   *document.Object   `json:"document,omitempty"`
	CreatedAt  string             `json:"created_at"`
	UpdatedAt  string             `json:"updated_at"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func skipViews(skipped []rules.CompileSkip) []skipView {
	out := make([]skipView, len(skipped))
	for i, s := range skipped {
		out[i] = skipView{RuleID: s.RuleID, Reason: s.Reason, Error: errString(s.Err)}
	}
	return out
}

func removalViews(report rules.RenderReport) []removalView {
	out := make([]removalView, len(report.Removed))
	for i, r := range report.Removed {
		out[i] = removalView{Path: r.Path, Reason: r.Reason, Error: errString(r.Err)}
	}
	return out
}

func malformedViews(report rules.ParseReport) []malformedView {
	out := make([]malformedView, len(report.Malformed))
	for i, m := range report.Malformed {
		out[i] = malformedView{Path: m.Path, Error: errString(m.Err)}
	}
	return out
}

// recordView omits the document and rules for listings.
func recordView(rec *db.MappingSetRecord, full bool) mappingSetView {
	v := mappingSetView{
		ID:        rec.ID,
		Name:      rec.Name,
		ETag:      rec.ETag,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339Nano),
	}
	if full {
		v.MappingSet = rec.Rules
		v.Document = rec.Document
	}
	return v
}

// plain converts v into the generic JSON value tree (maps, slices, float64).
func plain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeGeneric converts a generic JSON value tree into a typed value.
func decodeGeneric(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
