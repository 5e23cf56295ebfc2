package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/schemamap/internal/rules"
	"github.com/solatis/schemamap/internal/types"
)

func TestObserveCompile(t *testing.T) {
	m := New()
	m.ObserveCompile([]rules.CompileSkip{
		{RuleID: 1, Reason: rules.SkipEmptySource},
		{RuleID: 2, Reason: rules.SkipEmptySource},
		{RuleID: 3, Reason: rules.SkipInvalidChain},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CompileSkipped.WithLabelValues(rules.SkipEmptySource)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompileSkipped.WithLabelValues(rules.SkipInvalidChain)))
}

func TestObserveRender(t *testing.T) {
	m := New()
	m.ObserveRender(rules.RenderReport{})
	m.ObserveRender(rules.RenderReport{Removed: []rules.Removal{
		{Path: "$.review", Reason: rules.RemovedConditionFalse},
		{Path: "$.name", Reason: rules.RemovedUnresolved},
		{Path: "$.sku", Reason: rules.RemovedUnresolved},
	}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Renders.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Renders.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RenderRemoved.WithLabelValues(rules.RemovedUnresolved)))
}

func TestObserveParse(t *testing.T) {
	m := New()
	m.ObserveParse(&rules.ParseError{Reason: rules.ReasonDegenerate})
	m.ObserveParse(types.ErrMalformedExpression)
	m.ObserveParse(nil)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ParseFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseFailures.WithLabelValues(rules.ReasonDegenerate)))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/mapping-sets/{id}/document", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodGet, "/v1/mapping-sets/abc/document", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequests.WithLabelValues("/v1/mapping-sets/{id}/document", http.MethodGet, "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "schemamap_http_requests_total"))
}

func TestUnaryServerInterceptor(t *testing.T) {
	m := New()
	interceptor := m.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/schemamap.v1.MappingService/Parse"}

	_, _ = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.FailedPrecondition, "degenerate")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.GRPCRequests.WithLabelValues(info.FullMethod, codes.FailedPrecondition.String())))
}
