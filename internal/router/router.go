// Package router classifies incoming questions into a processing route:
// answer instantly from a canned table, ask for clarification, redirect
// off-topic queries, or hand over to retrieval-augmented generation. The
// classifier is pure and synchronous; no stage performs I/O.
package router

import (
	"strings"
	"unicode"
)

// Route is the processing route chosen for a query.
type Route string

// Routes, from cheapest to most expensive.
const (
	RouteInstant   Route = "instant"
	RouteClarify   Route = "clarify"
	RouteFallback  Route = "fallback"
	RouteRetrieval Route = "retrieval_augmented"
)

// Context carries conversation state the router consults. The router never
// mutates it.
type Context struct {
	// HasPendingClarification flags that the previous turn asked a
	// clarifying question this query presumably answers.
	HasPendingClarification bool

	// PriorIntent is the intent of the turn that triggered the pending
	// clarification, merged downstream rather than re-derived.
	PriorIntent string
}

// Decision is the routing outcome for one query.
type Decision struct {
	Route      Route   `json:"route"`
	Confidence float64 `json:"confidence"`

	// Response is the canned reply, redirect or clarifying question for
	// terminal routes; empty for retrieval.
	Response string `json:"response,omitempty"`

	// Category names the off-topic bucket for fallback decisions.
	Category string `json:"category,omitempty"`

	// MergePriorIntent tells the caller to fold this query into the
	// prior turn's intent instead of deriving a fresh one.
	MergePriorIntent bool `json:"merge_prior_intent,omitempty"`
}

// Router classifies queries. Stateless and safe for concurrent use.
type Router struct{}

// New creates a router.
func New() *Router {
	return &Router{}
}

// Route evaluates the stages in strict priority order, each one
// short-circuiting.
func (r *Router) Route(query string, convCtx Context) Decision {
	trimmed := strings.TrimSpace(query)

	// 1. Canned responses answer instantly.
	if reply, ok := matchCanned(trimmed); ok {
		return Decision{Route: RouteInstant, Confidence: 1.0, Response: reply}
	}

	// 2. Off-topic queries get a category-specific redirect.
	if category, redirect, ok := matchOffTopic(trimmed); ok {
		return Decision{Route: RouteFallback, Confidence: 0.9, Response: redirect, Category: category}
	}

	// 3. An outstanding clarification forces retrieval: the query is the
	// answer to our own question.
	if convCtx.HasPendingClarification {
		return Decision{Route: RouteRetrieval, Confidence: 0.8, MergePriorIntent: true}
	}

	// 4. A bare domain noun needs narrowing before retrieval is useful.
	if question, ok := matchBareKeyword(trimmed); ok {
		return Decision{Route: RouteClarify, Confidence: 0.4, Response: question}
	}

	// 5. Too short, pure punctuation/digits, or filler.
	if looksIncomplete(trimmed) {
		return Decision{
			Route:      RouteClarify,
			Confidence: 0.3,
			Response:   "질문을 조금 더 구체적으로 말씀해 주시겠어요?",
		}
	}

	// 6. Everything else goes to retrieval; downstream intent scoring may
	// still downgrade via RouteWithIntent.
	return Decision{Route: RouteRetrieval, Confidence: 0.6}
}

// looksIncomplete flags queries too thin to route: length <= 2 runes,
// nothing but punctuation/digits, or a known filler word.
func looksIncomplete(trimmed string) bool {
	if trimmed == "" {
		return true
	}

	runes := []rune(trimmed)
	if len(runes) <= 2 {
		return true
	}

	hasSubstance := false
	for _, r := range runes {
		if unicode.IsLetter(r) {
			hasSubstance = true
			break
		}
	}
	if !hasSubstance {
		return true
	}

	return isFiller(trimmed)
}
