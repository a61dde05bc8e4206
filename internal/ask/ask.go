// Package ask composes the query pipeline: route the question, retrieve
// scoped context, generate an answer and extract the values it asserts.
// The accuracy runner executes labeled tests through this same service.
package ask

import (
	"context"
	"fmt"
	"strings"

	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/provider"
	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/router"
	"github.com/surisearch/suri-search/internal/vector"
)

// Target context keys callers may set.
const (
	TargetEmployeeID = "employee_id"
	TargetPeriod     = "period"
	TargetCategory   = "category"
)

// Request is one question.
type Request struct {
	Query      string `json:"query"`
	UserID     string `json:"user_id,omitempty"`
	Clearance  string `json:"clearance,omitempty"`
	SchemaSlug string `json:"schema_slug,omitempty"`

	// TargetContext carries keyed scoping (employee_id, period, category).
	TargetContext map[string]string `json:"target_context,omitempty"`

	// Conversation is the router's view of the dialogue state.
	Conversation router.Context `json:"-"`

	TopK     int     `json:"top_k,omitempty"`
	MinScore float32 `json:"min_score,omitempty"`
}

// Outcome is the full pipeline result, diagnostics included. The accuracy
// runner compares ExtractedValues against expected values.
type Outcome struct {
	Response         string              `json:"response"`
	ExtractedValues  map[string]string   `json:"extracted_values,omitempty"`
	SearchResults    []retrieval.Context `json:"search_results,omitempty"`
	Filter           *vector.Filter      `json:"filter,omitempty"`
	Partitions       []string            `json:"partitions,omitempty"`
	RouteType        string              `json:"route_type"`
	IntentType       string              `json:"intent_type,omitempty"`
	IntentConfidence float64             `json:"intent_confidence"`
	Timings          retrieval.Timings   `json:"timings"`
}

// Service wires the pipeline pieces.
type Service struct {
	router    *router.Router
	engine    *retrieval.Engine
	generator provider.Generator
	log       *logger.Logger
}

// NewService creates an ask service.
func NewService(r *router.Router, engine *retrieval.Engine, generator provider.Generator, log *logger.Logger) *Service {
	return &Service{router: r, engine: engine, generator: generator, log: log}
}

// Ask answers one question end to end.
func (s *Service) Ask(ctx context.Context, req Request) (*Outcome, error) {
	decision := s.router.Route(req.Query, req.Conversation)

	// Terminal routes answer without touching retrieval or generation.
	if decision.Route != router.RouteRetrieval {
		return &Outcome{
			Response:         decision.Response,
			RouteType:        string(decision.Route),
			IntentConfidence: decision.Confidence,
		}, nil
	}

	result, intent, err := s.retrieve(ctx, req, decision)
	if err != nil {
		return nil, err
	}

	// Re-route with the true intent confidence; middling scores downgrade
	// to clarify instead of generating from thin context.
	refined := s.router.RouteWithIntent(intent)
	if refined.Route != router.RouteRetrieval {
		return &Outcome{
			Response:         refined.Response,
			RouteType:        string(refined.Route),
			IntentType:       intent.Type,
			IntentConfidence: intent.Confidence,
			SearchResults:    result.Contexts,
			Filter:           result.Filter,
			Partitions:       result.Partitions,
			Timings:          result.Timings,
		}, nil
	}

	answer, err := s.generator.Generate(ctx, buildPrompt(req.Query, result.Contexts), provider.GenerateOptions{
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Response:         answer,
		ExtractedValues:  ExtractValues(answer),
		SearchResults:    result.Contexts,
		Filter:           result.Filter,
		Partitions:       result.Partitions,
		RouteType:        string(router.RouteRetrieval),
		IntentType:       intent.Type,
		IntentConfidence: intent.Confidence,
		Timings:          result.Timings,
	}, nil
}

// AskStream answers one question with a streaming response. Terminal
// routes still return their full text as a single chunk.
func (s *Service) AskStream(ctx context.Context, req Request) (*Outcome, <-chan provider.StreamChunk, error) {
	decision := s.router.Route(req.Query, req.Conversation)

	if decision.Route != router.RouteRetrieval {
		out := make(chan provider.StreamChunk, 1)
		out <- provider.StreamChunk{Text: decision.Response}
		close(out)
		return &Outcome{
			Response:         decision.Response,
			RouteType:        string(decision.Route),
			IntentConfidence: decision.Confidence,
		}, out, nil
	}

	result, intent, err := s.retrieve(ctx, req, decision)
	if err != nil {
		return nil, nil, err
	}

	refined := s.router.RouteWithIntent(intent)
	if refined.Route != router.RouteRetrieval {
		out := make(chan provider.StreamChunk, 1)
		out <- provider.StreamChunk{Text: refined.Response}
		close(out)
		return &Outcome{
			Response:         refined.Response,
			RouteType:        string(refined.Route),
			IntentType:       intent.Type,
			IntentConfidence: intent.Confidence,
			SearchResults:    result.Contexts,
			Partitions:       result.Partitions,
			Timings:          result.Timings,
		}, out, nil
	}

	stream, err := s.generator.GenerateStream(ctx, buildPrompt(req.Query, result.Contexts), provider.GenerateOptions{
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return nil, nil, err
	}

	outcome := &Outcome{
		RouteType:        string(router.RouteRetrieval),
		IntentType:       intent.Type,
		IntentConfidence: intent.Confidence,
		SearchResults:    result.Contexts,
		Filter:           result.Filter,
		Partitions:       result.Partitions,
		Timings:          result.Timings,
	}
	return outcome, stream, nil
}

// retrieve maps the request scope to retrieval options, searches, and
// scores the resulting intent.
func (s *Service) retrieve(ctx context.Context, req Request, decision router.Decision) (*retrieval.Result, router.Intent, error) {
	opts := retrieval.Options{
		UserID:              req.UserID,
		Clearance:           req.Clearance,
		SchemaSlug:          req.SchemaSlug,
		IncludeOrganization: true,
		IncludePersonal:     req.UserID != "",
		TopK:                req.TopK,
		MinScore:            req.MinScore,
	}
	if emp := req.TargetContext[TargetEmployeeID]; emp != "" {
		opts.Persons = append(opts.Persons, emp)
	}
	if cat := req.TargetContext[TargetCategory]; cat != "" {
		opts.Categories = append(opts.Categories, cat)
	}
	opts.Period = req.TargetContext[TargetPeriod]

	result, err := s.engine.Search(ctx, req.Query, opts)
	if err != nil {
		return nil, router.Intent{}, err
	}

	intent := router.Intent{
		Type:       classifyIntent(req.Query),
		Confidence: intentConfidence(decision.Confidence, result),
		Period:     opts.Period,
		Topic:      topicOf(req.Query),
	}
	return result, intent, nil
}

// intentConfidence blends the route prior with retrieval relevance.
func intentConfidence(routeConfidence float64, result *retrieval.Result) float64 {
	if len(result.Contexts) == 0 {
		return routeConfidence * 0.5
	}
	return 0.5*routeConfidence + 0.5*float64(result.TopScore)
}

// classifyIntent picks a question intent from surface keywords.
func classifyIntent(query string) string {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, "평균", "합계", "총합", "모두 합", "average", "total"):
		return "aggregation"
	case containsAny(lower, "비교", "차이", "대비", "보다", "compare", "versus"):
		return "comparison"
	case containsAny(lower, "얼마", "총액", "금액", "계산", "how much", "calculate"):
		return "calculation"
	case containsAny(lower, "왜", "어떻게", "무엇", "뭐야", "why", "how", "what"):
		return "general_qa"
	default:
		return "direct_lookup"
	}
}

// topicOf extracts the domain topic the query is about, empty when none.
func topicOf(query string) string {
	for _, topic := range []string{"수수료", "환수", "소득", "시책", "지급", "계약", "오버라이드"} {
		if strings.Contains(query, topic) {
			return topic
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

const systemPrompt = `당신은 보험 수수료 명세 상담 도우미입니다. 제공된 컨텍스트에 있는 정보만으로 답변하세요.
- 금액은 원 단위로, 비율은 % 단위로 명시합니다.
- 항목별 값은 "항목: 값" 형식으로 답합니다.
- 컨텍스트에 없는 정보는 "확인되지 않습니다"라고 답합니다.`

// buildPrompt assembles the generation prompt from the retrieved chunks.
func buildPrompt(query string, contexts []retrieval.Context) string {
	var b strings.Builder
	b.WriteString("컨텍스트:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Content)
	}
	b.WriteString("\n질문: ")
	b.WriteString(query)
	return b.String()
}
