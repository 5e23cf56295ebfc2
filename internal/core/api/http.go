package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

// maxBodySize bounds request bodies carrying a document plus a record.
const maxBodySize = types.MaxDocumentSize + types.MaxRecordSize

// HTTPHandler serves the REST surface over Service.
type HTTPHandler struct {
	service *Service
	auth    func(http.Handler) http.Handler
	timeout time.Duration
}

// NewHTTPHandler creates the handler. A nil authMiddleware leaves /v1 open.
func NewHTTPHandler(service *Service, authMiddleware func(http.Handler) http.Handler, timeout time.Duration) (*HTTPHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPHandler{service: service, auth: authMiddleware, timeout: timeout}, nil
}

// Router builds the chi router.
func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(h.service.Metrics().Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", h.service.Metrics().Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		if h.auth != nil {
			r.Use(h.auth)
		}

		r.Post("/compile", h.handleCompile)
		r.Post("/render", h.handleRender)
		r.Post("/parse", h.handleParse)
		r.Post("/evaluate", h.handleEvaluate)

		r.Get("/mapping-sets", h.handleListMappingSets)
		r.Post("/mapping-sets", h.handleSaveMappingSet)
		r.Put("/mapping-sets/{id}", h.handleSaveMappingSet)
		r.Get("/mapping-sets/{id}", h.handleGetMappingSet)
		r.Delete("/mapping-sets/{id}", h.handleDeleteMappingSet)
		r.Get("/mapping-sets/{id}/document", h.handleGetDocument)
		r.Post("/mapping-sets/{id}/render", h.handleRenderStored)
	})

	return r
}

// ---- request/response shapes ----

type compileRequest struct {
	ID         types.MappingSetID `json:"id,omitempty"`
	Name       string             `json:"name,omitempty"`
	MappingSet types.MappingSet   `json:"mapping_set"`
	Skeleton   json.RawMessage    `json:"skeleton,omitempty"`
}

type compileResponse struct {
	Document *document.Object `json:"document"`
	Skipped  []skipView       `json:"skipped"`
}

type renderRequest struct {
	Document json.RawMessage `json:"document"`
	Record   json.RawMessage `json:"record"`
}

type renderResponse struct {
	Document *document.Object `json:"document"`
	Removed  []removalView    `json:"removed"`
	Partial  bool             `json:"partial"`
}

type parseResponse struct {
	MappingSet types.MappingSet `json:"mapping_set"`
	Malformed  []malformedView  `json:"malformed"`
}

type evaluateRequest struct {
	Condition  *types.Condition  `json:"condition,omitempty"`
	Conditions []types.Condition `json:"conditions,omitempty"`
	Record     types.DataRecord  `json:"record"`
}

type saveResponse struct {
	mappingSetView
	Skipped []skipView `json:"skipped"`
}

// ---- handlers ----

func (h *HTTPHandler) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	skeleton, err := optionalDocument(req.Skeleton)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	compiled, err := h.service.Compile(r.Context(), req.MappingSet, skeleton)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{Document: compiled.Document, Skipped: skipViews(compiled.Skipped)})
}

func (h *HTTPHandler) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, err := optionalDocument(req.Document)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}
	record, err := optionalRecord(req.Record)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out, report := h.service.Render(r.Context(), doc, record)
	writeJSON(w, http.StatusOK, renderResponse{Document: out, Removed: removalViews(report), Partial: report.Partial()})
}

func (h *HTTPHandler) handleParse(w http.ResponseWriter, r *http.Request) {
	var doc document.Object
	if !decodeBody(w, r, &doc) {
		return
	}

	set, report, err := h.service.Parse(r.Context(), &doc)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{MappingSet: set, Malformed: malformedViews(report)})
}

func (h *HTTPHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	conds := req.Conditions
	if req.Condition != nil {
		conds = append([]types.Condition{*req.Condition}, conds...)
	}
	if len(conds) == 0 {
		writeError(w, http.StatusBadRequest, "condition or conditions is required")
		return
	}
	if req.Record == nil {
		req.Record = types.DataRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"result": h.service.Evaluate(conds, req.Record)})
}

func (h *HTTPHandler) handleListMappingSets(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListMappingSets(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]mappingSetView, len(recs))
	for i := range recs {
		views[i] = recordView(&recs[i], false)
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping_sets": views})
}

func (h *HTTPHandler) handleSaveMappingSet(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = types.MappingSetID(id)
	}
	skeleton, err := optionalDocument(req.Skeleton)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rec, compiled, err := h.service.SaveMappingSet(r.Context(), req.ID, req.Name, req.MappingSet, skeleton)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	code := http.StatusOK
	if r.Method == http.MethodPost {
		code = http.StatusCreated
	}
	w.Header().Set("ETag", rec.ETag)
	writeJSON(w, code, saveResponse{mappingSetView: recordView(rec, true), Skipped: skipViews(compiled.Skipped)})
}

func (h *HTTPHandler) handleGetMappingSet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetMappingSet(r.Context(), types.MappingSetID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("ETag", rec.ETag)
	writeJSON(w, http.StatusOK, recordView(rec, true))
}

func (h *HTTPHandler) handleDeleteMappingSet(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMappingSet(r.Context(), types.MappingSetID(chi.URLParam(r, "id"))); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDocument serves the compiled document with ETag revalidation.
func (h *HTTPHandler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetMappingSet(r.Context(), types.MappingSetID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == rec.ETag {
		w.Header().Set("ETag", rec.ETag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", rec.ETag)
	writeJSON(w, http.StatusOK, rec.Document)
}

func (h *HTTPHandler) handleRenderStored(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decodeBody(w, r, &raw) {
		return
	}
	record, err := optionalRecord(raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out, report, err := h.service.RenderStored(r.Context(), types.MappingSetID(chi.URLParam(r, "id")), record)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{Document: out, Removed: removalViews(report), Partial: report.Partial()})
}

// ---- helpers ----

// writeJSON writes a JSON response with the given status code.
// HTML escaping is off so rule expressions keep their > and < operators.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, httpStatus(err), err.Error())
}

// decodeBody decodes the size-limited request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func optionalDocument(raw json.RawMessage) (*document.Object, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	doc, err := document.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: document: %w", ErrInvalidRequest, err)
	}
	return doc, nil
}

func optionalRecord(raw json.RawMessage) (types.DataRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return types.DataRecord{}, nil
	}
	rec, err := types.DecodeDataRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: record: %v", ErrInvalidRequest, err)
	}
	return rec, nil
}
