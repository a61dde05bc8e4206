package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/surisearch/suri-search/internal/accuracy"
	"github.com/surisearch/suri-search/internal/ask"
	"github.com/surisearch/suri-search/internal/bus"
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
)

// maxBodyBytes caps request bodies; uploads are tabular text, not blobs.
const maxBodyBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz probes the vector store through the engine's stats path.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Engine.Stats(r.Context()); err != nil {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("vector store"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req ask.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		apperrors.WriteError(w, apperrors.ValidationError("query is required"))
		return
	}

	outcome, err := s.deps.Ask.Ask(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleAskStream streams the answer as server-sent events. The outcome
// metadata arrives first, then text chunks, then a done marker.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	var req ask.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		apperrors.WriteError(w, apperrors.ValidationError("query is required"))
		return
	}

	outcome, stream, err := s.deps.Ask.AskStream(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		apperrors.WriteError(w, apperrors.InternalError("streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	meta, _ := json.Marshal(outcome)
	fmt.Fprintf(w, "event: meta\ndata: %s\n\n", meta)
	flusher.Flush()

	for chunk := range stream {
		if chunk.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", chunk.Err.Error())
			flusher.Flush()
			return
		}
		data, _ := json.Marshal(map[string]string{"text": chunk.Text})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// analyzeRequest is a document payload for analysis or schema discovery.
type analyzeRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	Content  string `json:"content"`
	SlugHint string `json:"slug_hint,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		apperrors.WriteError(w, apperrors.ValidationError("content is required"))
		return
	}

	analysis := s.deps.Analyzer.Analyze(req.Name, []byte(req.Content), req.Kind)

	match, err := s.deps.Registry.FindMatchingSchema(r.Context(), analysis)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis": analysis,
		"match":    match,
	})
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.deps.Registry.List(r.Context())
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	def, err := s.deps.Registry.Get(r.Context(), slug)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if def == nil {
		apperrors.WriteError(w, apperrors.NotFoundError("schema "+slug))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDiscoverSchema(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		apperrors.WriteError(w, apperrors.ValidationError("content is required"))
		return
	}

	analysis := s.deps.Analyzer.Analyze(req.Name, []byte(req.Content), req.Kind)
	if len(analysis.Sheets) == 0 {
		apperrors.WriteError(w, apperrors.ValidationError("content is not parseable tabular data"))
		return
	}

	result, err := s.deps.Registry.DiscoverSchema(r.Context(), analysis, req.SlugHint)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.IsUpdate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type aliasRequest struct {
	Field string `json:"field"`
	Alias string `json:"alias"`
}

func (s *Server) handleAddAlias(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var req aliasRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Field == "" || req.Alias == "" {
		apperrors.WriteError(w, apperrors.ValidationError("field and alias are required"))
		return
	}

	ok, err := s.deps.Registry.AddFieldAlias(r.Context(), slug, req.Field, req.Alias)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if !ok {
		apperrors.WriteError(w, apperrors.NotFoundError("schema or field"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// uploadRequest enqueues a document for asynchronous ingestion.
type uploadRequest struct {
	Name       string `json:"name"`
	SchemaSlug string `json:"schema_slug,omitempty"`
	Partition  string `json:"partition,omitempty"`
	Content    string `json:"content"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Content == "" {
		apperrors.WriteError(w, apperrors.ValidationError("name and content are required"))
		return
	}

	job := bus.NewJob("document", "api", req.Name, []byte(req.Content))
	job.SchemaSlug = req.SchemaSlug
	job.Partition = req.Partition

	if err := s.deps.Dispatcher.Publish(r.Context(), bus.TopicDocumentProcess, job); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.deps.Accuracy.ListTests(r.Context(), r.URL.Query().Get("schema"))
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var test accuracy.Test
	if !decodeJSON(w, r, &test) {
		return
	}
	if test.SchemaSlug == "" || test.Query == "" || len(test.ExpectedValues) == 0 {
		apperrors.WriteError(w, apperrors.ValidationError("schema_slug, query and expected_values are required"))
		return
	}

	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	if test.Priority == "" {
		test.Priority = accuracy.PriorityMedium
	}
	test.IsActive = true
	test.CreatedAt = time.Now().UTC()

	if err := s.deps.Accuracy.PutTest(r.Context(), test); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, test)
}

type runSuiteRequest struct {
	SchemaSlug string `json:"schema_slug"`
	Category   string `json:"category,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

func (s *Server) handleRunSuite(w http.ResponseWriter, r *http.Request) {
	var req runSuiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SchemaSlug == "" {
		apperrors.WriteError(w, apperrors.ValidationError("schema_slug is required"))
		return
	}

	report, err := s.deps.Runner.RunSuite(r.Context(), req.SchemaSlug, accuracy.RunOptions{
		Category: req.Category,
		Priority: accuracy.Priority(req.Priority),
	})
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHistory lists the append-only result history of one test, newest
// first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	testID := r.URL.Query().Get("test")
	if testID == "" {
		apperrors.WriteError(w, apperrors.ValidationError("test query parameter is required"))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.deps.Accuracy.ListResults(r.Context(), testID, limit)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	actions, err := s.deps.Accuracy.ListActions(r.Context(), limit)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

type optimizeRequest struct {
	SchemaSlug string `json:"schema_slug"`
	Category   string `json:"category,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// handleOptimize runs the suite, diagnoses the failures and applies (or,
// in a dry run, previews) the resulting suggestions.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SchemaSlug == "" {
		apperrors.WriteError(w, apperrors.ValidationError("schema_slug is required"))
		return
	}

	report, err := s.deps.Runner.RunSuite(r.Context(), req.SchemaSlug, accuracy.RunOptions{Category: req.Category})
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	tests, err := s.deps.Accuracy.ListTests(r.Context(), req.SchemaSlug)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	testsByID := make(map[string]accuracy.Test, len(tests))
	for _, t := range tests {
		testsByID[t.ID] = t
	}

	diagnosis := accuracy.Analyze(report, testsByID)

	actions, err := s.deps.Optimizer.Apply(r.Context(), diagnosis.Suggestions, req.DryRun)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accuracy":  report.Accuracy,
		"tests_run": report.TestsRun,
		"diagnosis": diagnosis,
		"actions":   actions,
	})
}
