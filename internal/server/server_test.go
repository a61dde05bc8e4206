package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/surisearch/suri-search/internal/accuracy"
	"github.com/surisearch/suri-search/internal/analyzer"
	"github.com/surisearch/suri-search/internal/ask"
	"github.com/surisearch/suri-search/internal/bus"
	"github.com/surisearch/suri-search/internal/docstore"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/provider"
	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/router"
	"github.com/surisearch/suri-search/internal/schema"
	"github.com/surisearch/suri-search/internal/vector"
)

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeGenerator struct{}

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ provider.GenerateOptions) (string, error) {
	return "수수료: 1,250,000원", nil
}

func (f *fakeGenerator) GenerateStream(_ context.Context, _ string, _ provider.GenerateOptions) (<-chan provider.StreamChunk, error) {
	out := make(chan provider.StreamChunk, 1)
	out <- provider.StreamChunk{Text: "수수료: 1,250,000원"}
	close(out)
	return out, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	log := logger.Default()
	store := vector.NewMemoryStore()
	docs := docstore.NewMemoryStore()
	engine := retrieval.NewEngine(store, &fakeEmbedder{}, docs, nil, nil,
		retrieval.EngineConfig{OrgPartition: "org_main"}, log)
	t.Cleanup(engine.Close)

	askSvc := ask.NewService(router.New(), engine, &fakeGenerator{}, log)
	registry := schema.NewRegistry(schema.NewMemoryStorage(),
		schema.EmbeddingConfig{Model: "text-embedding-3-small", Dimension: 3}, log)

	accuracyStore := accuracy.NewMemoryStorage()
	executor := func(ctx context.Context, query string, target map[string]string) (*ask.Outcome, error) {
		return askSvc.Ask(ctx, ask.Request{Query: query, TargetContext: target, MinScore: 0.01})
	}
	runner := accuracy.NewRunner(accuracyStore, executor, log)
	optimizer := accuracy.NewOptimizer(registry, accuracyStore, log)

	dispatcher := bus.NewMemoryDispatcher(log)
	t.Cleanup(func() { dispatcher.Close() })

	return New(cfg, Deps{
		Ask:        askSvc,
		Engine:     engine,
		Analyzer:   analyzer.New(log),
		Registry:   registry,
		Runner:     runner,
		Optimizer:  optimizer,
		Accuracy:   accuracyStore,
		Dispatcher: dispatcher,
		Log:        log,
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080, Version: "1.2.3"})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/version", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "1.2.3") {
		t.Errorf("version = %d %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}
}

func TestAskEndpointInstantRoute(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/ask", `{"query":"안녕"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ask = %d: %s", rec.Code, rec.Body.String())
	}

	var outcome ask.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.RouteType != "instant" {
		t.Errorf("RouteType = %q, want instant", outcome.RouteType)
	}
	if outcome.Response == "" {
		t.Error("empty response")
	}
}

func TestAskEndpointValidation(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/ask", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/ask", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

const testCSV = "사번,성명,마감월,수수료\\nA11111,홍길동,202403,1250000\\nB22222,김철수,202403,800000\\n"

func TestAnalyzeAndDiscoverFlow(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080})
	handler := srv.Handler()

	body := `{"name":"인별명세.csv","kind":"csv","content":"` + testCSV + `"}`

	// No schemas yet: analysis suggests discovery.
	rec := doJSON(t, handler, http.MethodPost, "/v1/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"suggest_discovery":true`) {
		t.Errorf("analyze body = %s, want suggest_discovery", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/schemas/discover",
		`{"name":"인별명세.csv","kind":"csv","content":"`+testCSV+`","slug_hint":"인별명세"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("discover = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/schemas/인별명세", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get schema = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/schemas/없는것", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing schema = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/schemas/인별명세/aliases",
		`{"field":"수수료","alias":"커미션"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("add alias = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/documents",
		`{"name":"인별명세.csv","content":"`+testCSV+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "job_id") {
		t.Errorf("upload body = %s, want job_id", rec.Body.String())
	}
}

func TestAccuracyEndpoints(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/accuracy/tests",
		`{"schema_slug":"인별명세","query":"안녕","expected_values":{"commission":{"type":"exact","value":"1250000"}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create test = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/accuracy/tests?schema=인별명세", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "인별명세") {
		t.Fatalf("list tests = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/accuracy/run", `{"schema_slug":"인별명세"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("run suite = %d: %s", rec.Code, rec.Body.String())
	}

	var report accuracy.SuiteReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.TestsRun != 1 {
		t.Errorf("TestsRun = %d, want 1", report.TestsRun)
	}

	rec = doJSON(t, handler, http.MethodPost, "/v1/accuracy/run", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("run without schema = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/accuracy/actions", "")
	if rec.Code != http.StatusOK {
		t.Errorf("list actions = %d", rec.Code)
	}

	// History requires the test id.
	rec = doJSON(t, handler, http.MethodGet, "/v1/accuracy/history", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("history without test = %d, want 400", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/v1/accuracy/history?test="+report.Results[0].TestID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), report.Results[0].TestID) {
		t.Errorf("history = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080, APIKey: "secret"})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/ask", `{"query":"안녕"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"query":"안녕"}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key = %d, want 200", rec.Code)
	}

	// Probes stay open.
	rec = doJSON(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz with key required = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080, CORSOrigins: "*"})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/v1/ask", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %q, want *", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
