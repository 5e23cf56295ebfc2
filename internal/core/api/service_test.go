package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/solatis/schemamap/internal/core/db"
	"github.com/solatis/schemamap/internal/core/logging"
	"github.com/solatis/schemamap/internal/core/telemetry"
	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/rules"
	"github.com/solatis/schemamap/internal/types"
)

// productSet is a price substitution plus a review gated on review_count.
var productSet = types.MappingSet{
	{ID: 1, Source: "product.price", Target: "offers.price", Kind: types.KindPlainText},
	{ID: 2, Source: "product.rating", Target: "review", Kind: types.KindConditional, Conditions: []types.Condition{
		{Field: "review_count", Operator: types.OpGt, Value: "5", Join: types.JoinTerminal},
	}},
}

type staticSkeleton struct{ doc *document.Object }

func (s staticSkeleton) Current() *document.Object { return s.doc.Clone() }

func mustDocument(t *testing.T, s string) *document.Object {
	t.Helper()
	doc, err := document.Decode([]byte(s))
	require.NoError(t, err)
	return doc
}

// newTestService returns a service over a migrated SQLite store.
func newTestService(t *testing.T, withStore bool) *Service {
	t.Helper()
	var store MappingSetStore
	if withStore {
		conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		require.NoError(t, db.MigrateUp(conn))
		s, err := db.NewStore(conn)
		require.NoError(t, err)
		store = s
	}

	engine, err := rules.NewEngine(rules.DefaultOptions())
	require.NoError(t, err)
	skeleton := staticSkeleton{doc: mustDocument(t, `{"@context":"https://schema.org","@type":"Product"}`)}

	svc, err := NewService(engine, store, skeleton, telemetry.New(), logging.Discard())
	require.NoError(t, err)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, nil, nil, telemetry.New(), nil)
	assert.Error(t, err)

	engine, err := rules.NewEngine(rules.DefaultOptions())
	require.NoError(t, err)
	_, err = NewService(engine, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestService_CompileUsesSkeleton(t *testing.T) {
	svc := newTestService(t, false)

	compiled, err := svc.Compile(context.Background(), productSet, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"@context", "@type", "offers", "review"}, compiled.Document.Keys())

	compiled, err = svc.Compile(context.Background(), productSet, mustDocument(t, `{"@type":"Book"}`))
	require.NoError(t, err)
	v, _ := compiled.Document.Get("@type")
	assert.Equal(t, "Book", v)
}

func TestService_CompileDuplicateIDs(t *testing.T) {
	svc := newTestService(t, false)
	set := types.MappingSet{productSet[0], productSet[0]}

	_, err := svc.Compile(context.Background(), set, nil)
	assert.ErrorIs(t, err, types.ErrDuplicateRuleID)
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestService_StorageDisabled(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	_, _, err := svc.SaveMappingSet(ctx, "", "x", productSet, nil)
	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.Equal(t, codes.Unavailable, code(err))

	_, err = svc.GetMappingSet(ctx, types.NewMappingSetID())
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestService_SaveAndRenderStored(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	rec, compiled, err := svc.SaveMappingSet(ctx, "", "products", productSet, nil)
	require.NoError(t, err)
	assert.Empty(t, compiled.Skipped)
	assert.NotEmpty(t, rec.ETag)

	out, report, err := svc.RenderStored(ctx, rec.ID, types.DataRecord{
		"product.price": "49.99", "product.rating": 4.8, "review_count": 10.0,
	})
	require.NoError(t, err)
	assert.False(t, report.Partial())
	assert.True(t, out.Has("review"))

	_, _, err = svc.RenderStored(ctx, types.NewMappingSetID(), types.DataRecord{})
	assert.ErrorIs(t, err, types.ErrMappingSetNotFound)

	_, err = svc.GetMappingSet(ctx, "not-a-uuid")
	assert.Equal(t, codes.NotFound, code(err))

	_, _, err = svc.SaveMappingSet(ctx, "not-a-uuid", "x", productSet, nil)
	assert.Equal(t, codes.InvalidArgument, code(err))
}

func TestService_Evaluate(t *testing.T) {
	svc := newTestService(t, false)
	rec := types.DataRecord{"review_count": 10.0, "featured": "no"}

	assert.True(t, svc.Evaluate(productSet[1].Conditions, rec))
	assert.False(t, svc.Evaluate(nil, rec))
	assert.True(t, svc.Evaluate([]types.Condition{
		{Field: "featured", Operator: types.OpEq, Value: "yes", Join: types.JoinOr},
		{Field: "review_count", Operator: types.OpGt, Value: "5", Join: types.JoinTerminal},
	}, rec))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		code   codes.Code
		status int
	}{
		{nil, codes.OK, http.StatusOK},
		{&rules.ParseError{Reason: rules.ReasonDegenerate}, codes.FailedPrecondition, http.StatusUnprocessableEntity},
		{types.ErrMappingSetNotFound, codes.NotFound, http.StatusNotFound},
		{ErrStore, codes.Unavailable, http.StatusServiceUnavailable},
		{ErrInvalidRequest, codes.InvalidArgument, http.StatusBadRequest},
		{document.ErrNotObject, codes.InvalidArgument, http.StatusBadRequest},
		{context.DeadlineExceeded, codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{assert.AnError, codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, code(tt.err), "code(%v)", tt.err)
		assert.Equal(t, tt.status, httpStatus(tt.err), "httpStatus(%v)", tt.err)
	}
}
