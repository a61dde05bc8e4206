package router

import "testing"

func TestRouteInstant(t *testing.T) {
	r := New()

	d := r.Route("안녕", Context{})
	if d.Route != RouteInstant {
		t.Errorf("Route = %v, want instant", d.Route)
	}
	if d.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", d.Confidence)
	}
	if d.Response == "" {
		t.Error("instant route must carry a canned response")
	}
}

func TestRouteInstantVariants(t *testing.T) {
	r := New()
	for _, q := range []string{"안녕하세요", "hello", "감사합니다", "도움말", "안녕하세요!"} {
		d := r.Route(q, Context{})
		if d.Route != RouteInstant {
			t.Errorf("Route(%q) = %v, want instant", q, d.Route)
		}
	}
}

func TestRouteFallbackOffTopic(t *testing.T) {
	r := New()

	d := r.Route("비트코인 추천해줘", Context{})
	if d.Route != RouteFallback {
		t.Errorf("Route = %v, want fallback", d.Route)
	}
	if d.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", d.Confidence)
	}
	if d.Category != "investment" {
		t.Errorf("Category = %q, want investment", d.Category)
	}
	if d.Response == "" {
		t.Error("fallback must carry a redirect message")
	}
}

func TestRoutePendingClarification(t *testing.T) {
	r := New()

	d := r.Route("3월이요", Context{HasPendingClarification: true})
	if d.Route != RouteRetrieval {
		t.Errorf("Route = %v, want retrieval", d.Route)
	}
	if d.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", d.Confidence)
	}
	if !d.MergePriorIntent {
		t.Error("MergePriorIntent = false, want true")
	}
}

func TestRouteBareKeyword(t *testing.T) {
	r := New()

	d := r.Route("수수료", Context{})
	if d.Route != RouteClarify {
		t.Errorf("Route = %v, want clarify", d.Route)
	}
	if d.Confidence != 0.4 {
		t.Errorf("Confidence = %v, want 0.4", d.Confidence)
	}
	if d.Response == "" {
		t.Error("bare-keyword clarify must offer concrete sub-options")
	}
}

func TestRouteIncomplete(t *testing.T) {
	r := New()

	tests := []string{"ㅁ", "??", "123", "음", "hmm", ""}
	for _, q := range tests {
		d := r.Route(q, Context{})
		if d.Route != RouteClarify {
			t.Errorf("Route(%q) = %v, want clarify", q, d.Route)
			continue
		}
		if d.Confidence != 0.3 {
			t.Errorf("Route(%q) confidence = %v, want 0.3", q, d.Confidence)
		}
	}
}

func TestRouteDefault(t *testing.T) {
	r := New()

	d := r.Route("3월 수수료 총액이 얼마야?", Context{})
	if d.Route != RouteRetrieval {
		t.Errorf("Route = %v, want retrieval", d.Route)
	}
	if d.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", d.Confidence)
	}
}

func TestRoutePriorityOrder(t *testing.T) {
	r := New()

	// An instant greeting wins even with a pending clarification.
	d := r.Route("안녕", Context{HasPendingClarification: true})
	if d.Route != RouteInstant {
		t.Errorf("Route = %v, want instant over pending clarification", d.Route)
	}

	// A two-rune bare keyword hits the bare-keyword stage, not the
	// length check.
	d = r.Route("환수", Context{})
	if d.Route != RouteClarify || d.Confidence != 0.4 {
		t.Errorf("Route(환수) = %v@%v, want clarify@0.4", d.Route, d.Confidence)
	}
}

func TestRouteWithIntent(t *testing.T) {
	r := New()

	tests := []struct {
		name   string
		intent Intent
		want   Route
	}{
		{"high confidence stays retrieval", Intent{Type: "calculation", Confidence: 0.85}, RouteRetrieval},
		{"middling downgrades to clarify", Intent{Type: "direct_lookup", Confidence: 0.45}, RouteClarify},
		{"low falls back", Intent{Type: "general_qa", Confidence: 0.1}, RouteFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.RouteWithIntent(tt.intent)
			if d.Route != tt.want {
				t.Errorf("RouteWithIntent = %v, want %v", d.Route, tt.want)
			}
			if d.Confidence != tt.intent.Confidence {
				t.Errorf("Confidence = %v, want %v", d.Confidence, tt.intent.Confidence)
			}
		})
	}
}

func TestClarifyForMissingSlot(t *testing.T) {
	r := New()

	d := r.RouteWithIntent(Intent{Confidence: 0.4, Topic: "수수료"})
	if d.Route != RouteClarify {
		t.Fatalf("Route = %v, want clarify", d.Route)
	}
	// Missing period slot: the question must ask about time.
	if d.Response == "" {
		t.Error("clarify decision carries no question")
	}

	dBoth := r.RouteWithIntent(Intent{Confidence: 0.4})
	if dBoth.Response == d.Response {
		t.Error("missing-both question should differ from missing-period question")
	}
}
