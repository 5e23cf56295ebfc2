// Package api provides the gRPC and HTTP surfaces of schemamap.
//
// Service holds the transport-independent operations; grpc.go and http.go
// decode requests, call into Service and encode results. Engine reports
// (compile skips, render removals, parse failures) are logged and counted
// here, the engine itself stays silent.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/solatis/schemamap/internal/core/db"
	"github.com/solatis/schemamap/internal/core/telemetry"
	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/rules"
	"github.com/solatis/schemamap/internal/types"
)

// MappingSetStore is the storage Service needs. Implemented by *db.Store.
type MappingSetStore interface {
	SaveMappingSet(ctx context.Context, rec db.MappingSetRecord) (*db.MappingSetRecord, error)
	GetMappingSet(ctx context.Context, id types.MappingSetID) (*db.MappingSetRecord, error)
	ListMappingSets(ctx context.Context) ([]db.MappingSetRecord, error)
	DeleteMappingSet(ctx context.Context, id types.MappingSetID) error
}

// SkeletonSource supplies the default template skeleton.
// Implemented by *skeleton.Loader.
type SkeletonSource interface {
	Current() *document.Object
}

// Service implements mapping operations shared by both transports.
type Service struct {
	engine   *rules.Engine
	store    MappingSetStore
	skeleton SkeletonSource
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewService creates a service. store and skeleton may be nil: stored-set
// operations then fail with ErrStorageDisabled and compiles without an
// explicit skeleton start from an empty document.
func NewService(engine *rules.Engine, store MappingSetStore, skeleton SkeletonSource, metrics *telemetry.Metrics, logger *slog.Logger) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   engine,
		store:    store,
		skeleton: skeleton,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Metrics returns the service's collectors.
func (s *Service) Metrics() *telemetry.Metrics {
	return s.metrics
}

// Compile compiles set onto skeleton, or onto the configured skeleton when nil.
func (s *Service) Compile(ctx context.Context, set types.MappingSet, skeleton *document.Object) (*rules.Compiled, error) {
	if skeleton == nil && s.skeleton != nil {
		skeleton = s.skeleton.Current()
	}

	compiled, err := s.engine.Compile(set, skeleton)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	s.metrics.ObserveCompile(compiled.Skipped)
	for _, skip := range compiled.Skipped {
		s.logger.WarnContext(ctx, "mapping rule skipped",
			"rule_id", skip.RuleID,
			"reason", skip.Reason,
			"error", skip.Err,
		)
	}
	return compiled, nil
}

// Render renders doc against record. It never fails; removals are reported.
func (s *Service) Render(ctx context.Context, doc *document.Object, record types.DataRecord) (*document.Object, rules.RenderReport) {
	out, report := s.engine.Render(doc, record)

	s.metrics.ObserveRender(report)
	if report.Partial() {
		s.logger.DebugContext(ctx, "render removed content",
			"removed", len(report.Removed),
			"reasons", report.Count(),
		)
	}
	return out, report
}

// Parse recovers a mapping set from a compiled or hand-edited document.
func (s *Service) Parse(ctx context.Context, doc *document.Object) (types.MappingSet, rules.ParseReport, error) {
	set, report, err := s.engine.ParseDetailed(doc)
	if err != nil {
		s.metrics.ObserveParse(err)
		s.logger.InfoContext(ctx, "document not parseable", "error", err)
		return nil, report, err
	}
	for _, m := range report.Malformed {
		s.logger.DebugContext(ctx, "malformed rule carrier", "path", m.Path, "error", m.Err)
	}
	return set, report, nil
}

// Evaluate evaluates a condition chain; a single condition is a chain of one.
func (s *Service) Evaluate(conds []types.Condition, record types.DataRecord) bool {
	if len(conds) == 1 {
		return rules.Evaluate(conds[0], record)
	}
	return rules.EvaluateChain(conds, record)
}

// SaveMappingSet compiles set and stores it together with its document.
func (s *Service) SaveMappingSet(ctx context.Context, id types.MappingSetID, name string, set types.MappingSet, skeleton *document.Object) (*db.MappingSetRecord, *rules.Compiled, error) {
	if s.store == nil {
		return nil, nil, ErrStorageDisabled
	}
	if id != "" {
		parsed, err := types.ParseMappingSetID(string(id))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: mapping set id: %v", ErrInvalidRequest, err)
		}
		id = parsed
	}

	compiled, err := s.Compile(ctx, set, skeleton)
	if err != nil {
		return nil, nil, err
	}

	rec, err := s.store.SaveMappingSet(ctx, db.MappingSetRecord{
		ID:       id,
		Name:     name,
		Rules:    set,
		Document: compiled.Document,
	})
	if err != nil {
		return nil, nil, s.storeError(err)
	}

	s.logger.InfoContext(ctx, "mapping set saved",
		"mapping_set_id", rec.ID,
		"rules", len(set),
		"skipped", len(compiled.Skipped),
	)
	return rec, compiled, nil
}

// GetMappingSet returns a stored mapping set.
func (s *Service) GetMappingSet(ctx context.Context, id types.MappingSetID) (*db.MappingSetRecord, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	parsed, err := types.ParseMappingSetID(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrMappingSetNotFound, id)
	}
	rec, err := s.store.GetMappingSet(ctx, parsed)
	if err != nil {
		return nil, s.storeError(err)
	}
	return rec, nil
}

// ListMappingSets returns stored mapping sets, newest first.
func (s *Service) ListMappingSets(ctx context.Context) ([]db.MappingSetRecord, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	recs, err := s.store.ListMappingSets(ctx)
	if err != nil {
		return nil, s.storeError(err)
	}
	return recs, nil
}

// DeleteMappingSet removes a stored mapping set.
func (s *Service) DeleteMappingSet(ctx context.Context, id types.MappingSetID) error {
	if s.store == nil {
		return ErrStorageDisabled
	}
	parsed, err := types.ParseMappingSetID(string(id))
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrMappingSetNotFound, id)
	}
	if err := s.store.DeleteMappingSet(ctx, parsed); err != nil {
		return s.storeError(err)
	}
	s.logger.Info("mapping set deleted", "mapping_set_id", parsed)
	return nil
}

// RenderStored renders the stored document of mapping set id.
func (s *Service) RenderStored(ctx context.Context, id types.MappingSetID, record types.DataRecord) (*document.Object, rules.RenderReport, error) {
	rec, err := s.GetMappingSet(ctx, id)
	if err != nil {
		return nil, rules.RenderReport{}, err
	}
	out, report := s.Render(ctx, rec.Document, record)
	return out, report, nil
}

// storeError keeps not-found and request errors, and marks the rest as store failures.
func (s *Service) storeError(err error) error {
	switch {
	case errors.Is(err, types.ErrMappingSetNotFound),
		errors.Is(err, types.ErrDocumentTooLarge),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return err
	default:
		s.logger.Error("mapping set store failure", "error", err)
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
}
