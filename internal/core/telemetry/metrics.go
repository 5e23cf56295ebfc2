// Package telemetry exposes Prometheus metrics for schemamap services.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/schemamap/internal/rules"
)

// Metrics holds the collectors of one service instance on a private registry,
// so tests can build as many as they like without global registration.
type Metrics struct {
	Registry *prometheus.Registry

	CompileSkipped  *prometheus.CounterVec
	Renders         *prometheus.CounterVec
	RenderRemoved   *prometheus.CounterVec
	ParseFailures   *prometheus.CounterVec
	SkeletonReloads *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	GRPCRequests    *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CompileSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_compile_skipped_total",
			Help: "Mapping rules left out of compiled documents",
		}, []string{"reason"}),
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_renders_total",
			Help: "Documents rendered, by outcome (complete or partial)",
		}, []string{"outcome"}),
		RenderRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_render_removed_total",
			Help: "Properties and objects removed while rendering",
		}, []string{"reason"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_parse_failures_total",
			Help: "Documents that could not be parsed into mapping sets",
		}, []string{"reason"}),
		SkeletonReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_skeleton_reloads_total",
			Help: "Template skeleton reloads, by result",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemamap_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		GRPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemamap_grpc_requests_total",
			Help: "Total gRPC requests",
		}, []string{"method", "code"}),
	}

	m.Registry.MustRegister(
		m.CompileSkipped, m.Renders, m.RenderRemoved, m.ParseFailures,
		m.SkeletonReloads, m.HTTPRequests, m.HTTPDuration, m.GRPCRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCompile counts skipped rules by reason.
func (m *Metrics) ObserveCompile(skipped []rules.CompileSkip) {
	for _, s := range skipped {
		m.CompileSkipped.WithLabelValues(s.Reason).Inc()
	}
}

// ObserveRender counts a render and its removals.
func (m *Metrics) ObserveRender(report rules.RenderReport) {
	if report.Partial() {
		m.Renders.WithLabelValues("partial").Inc()
	} else {
		m.Renders.WithLabelValues("complete").Inc()
	}
	for reason, n := range report.Count() {
		m.RenderRemoved.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveParse counts parse failures by reason. Non-parse errors are ignored.
func (m *Metrics) ObserveParse(err error) {
	var perr *rules.ParseError
	if errors.As(err, &perr) {
		m.ParseFailures.WithLabelValues(perr.Reason).Inc()
	}
}

// ObserveSkeletonReload counts a skeleton reload attempt.
func (m *Metrics) ObserveSkeletonReload(err error) {
	if err != nil {
		m.SkeletonReloads.WithLabelValues("error").Inc()
		return
	}
	m.SkeletonReloads.WithLabelValues("ok").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry:      m.Registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		// Route pattern is only complete after routing ran
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		m.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// UnaryServerInterceptor counts gRPC calls by method and status code.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		m.GRPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
