package router

// Intent is the refined understanding of a query computed downstream by
// the retrieval and generation pipeline, fed back for a final routing
// decision.
type Intent struct {
	// Type is the resolved question intent (direct_lookup, calculation,
	// comparison, aggregation, general_qa).
	Type string

	// Confidence is the pipeline's intent-confidence score.
	Confidence float64

	// Period is the resolved time-period slot, empty when missing.
	Period string

	// Topic is the resolved topic slot, empty when missing.
	Topic string
}

// Intent-confidence thresholds for the final routing decision.
const (
	retrievalThreshold = 0.6
	clarifyThreshold   = 0.3
)

// RouteWithIntent refines an initial retrieval decision once a true
// intent-confidence score exists. High confidence stays on retrieval;
// middling confidence downgrades to clarify with a question targeting the
// missing slot; anything lower falls back.
func (r *Router) RouteWithIntent(intent Intent) Decision {
	switch {
	case intent.Confidence >= retrievalThreshold:
		return Decision{Route: RouteRetrieval, Confidence: intent.Confidence}

	case intent.Confidence >= clarifyThreshold:
		return Decision{
			Route:      RouteClarify,
			Confidence: intent.Confidence,
			Response:   clarifyForMissingSlot(intent),
		}

	default:
		return Decision{
			Route:      RouteFallback,
			Confidence: intent.Confidence,
			Response:   "질문의 의도를 파악하지 못했습니다. 수수료, 소득, 환수 등 구체적인 항목으로 다시 질문해 주세요.",
		}
	}
}

// clarifyForMissingSlot builds a clarification question naming the slot
// the intent is missing.
func clarifyForMissingSlot(intent Intent) string {
	switch {
	case intent.Period == "" && intent.Topic == "":
		return "어느 시점의 어떤 항목이 궁금하신가요? 예: \"3월 수수료\", \"지난달 환수 내역\""
	case intent.Period == "":
		return "어느 기간에 대한 내용인가요? 예: 이번 달, 2025년 3월"
	case intent.Topic == "":
		return "어떤 항목이 궁금하신가요? 예: 수수료 총액, 환수 내역, 시책 지급액"
	default:
		return "질문을 조금 더 구체적으로 말씀해 주시겠어요?"
	}
}
