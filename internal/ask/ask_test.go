package ask

import (
	"context"
	"testing"

	"github.com/surisearch/suri-search/internal/access"
	"github.com/surisearch/suri-search/internal/docstore"
	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/provider"
	"github.com/surisearch/suri-search/internal/retrieval"
	"github.com/surisearch/suri-search/internal/router"
	"github.com/surisearch/suri-search/internal/vector"
)

type fakeEmbedder struct{ vec []float32 }

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return f.vec, nil }
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

type fakeGenerator struct{ answer string }

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ provider.GenerateOptions) (string, error) {
	return f.answer, nil
}

func (f *fakeGenerator) GenerateStream(_ context.Context, _ string, _ provider.GenerateOptions) (<-chan provider.StreamChunk, error) {
	out := make(chan provider.StreamChunk, 1)
	out <- provider.StreamChunk{Text: f.answer}
	close(out)
	return out, nil
}

func newTestService(t *testing.T, answer string) (*Service, *vector.MemoryStore, *docstore.MemoryStore) {
	t.Helper()

	store := vector.NewMemoryStore()
	docs := docstore.NewMemoryStore()
	engine := retrieval.NewEngine(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, docs, nil, nil,
		retrieval.EngineConfig{OrgPartition: "org_main"}, logger.Default())
	t.Cleanup(engine.Close)

	svc := NewService(router.New(), engine, &fakeGenerator{answer: answer}, logger.Default())
	return svc, store, docs
}

func seed(t *testing.T, store *vector.MemoryStore, docs *docstore.MemoryStore, partition, id, content string) {
	t.Helper()
	ctx := context.Background()
	md := vector.Metadata{Partition: partition, AccessLevel: access.LevelBasic}
	if err := store.Upsert(ctx, partition, []vector.Point{{ID: id, Vector: []float32{1, 0, 0}, Metadata: md}}); err != nil {
		t.Fatal(err)
	}
	if err := docs.Put(ctx, []docstore.Document{{ID: id, Content: content, Metadata: md}}); err != nil {
		t.Fatal(err)
	}
}

func TestAskInstantRoute(t *testing.T) {
	svc, _, _ := newTestService(t, "unused")

	outcome, err := svc.Ask(context.Background(), Request{Query: "안녕"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if outcome.RouteType != string(router.RouteInstant) {
		t.Errorf("RouteType = %q, want instant", outcome.RouteType)
	}
	if outcome.Response == "" {
		t.Error("instant route returned empty response")
	}
	if len(outcome.SearchResults) != 0 {
		t.Error("instant route performed retrieval")
	}
}

func TestAskRetrievalRoute(t *testing.T) {
	svc, store, docs := newTestService(t, "수수료: 1,250,000원 입니다.")
	seed(t, store, docs, "emp_A11111", "c1", "3월 수수료 1,250,000원")

	outcome, err := svc.Ask(context.Background(), Request{
		Query:     "3월 수수료 얼마야?",
		UserID:    "A11111",
		Clearance: access.LevelBasic,
		TargetContext: map[string]string{
			TargetEmployeeID: "A11111",
		},
		MinScore: 0.1,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if outcome.RouteType != string(router.RouteRetrieval) {
		t.Fatalf("RouteType = %q, want retrieval_augmented", outcome.RouteType)
	}
	if outcome.IntentType != "calculation" {
		t.Errorf("IntentType = %q, want calculation", outcome.IntentType)
	}
	if len(outcome.SearchResults) == 0 {
		t.Fatal("no search results")
	}
	if outcome.ExtractedValues["commission"] != "1250000" {
		t.Errorf("ExtractedValues = %v, want commission=1250000", outcome.ExtractedValues)
	}
}

func TestAskStreamTerminalRoute(t *testing.T) {
	svc, _, _ := newTestService(t, "unused")

	outcome, stream, err := svc.AskStream(context.Background(), Request{Query: "고마워"})
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	if outcome.RouteType != string(router.RouteInstant) {
		t.Errorf("RouteType = %q, want instant", outcome.RouteType)
	}

	var text string
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		text += chunk.Text
	}
	if text != outcome.Response {
		t.Errorf("streamed %q, want %q", text, outcome.Response)
	}
}

func TestExtractValues(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   map[string]string
	}{
		{
			name:   "colon form with unit",
			answer: "수수료: 1,250,000원, 환수금액: -30,000원",
			want:   map[string]string{"commission": "1250000", "clawback": "-30000"},
		},
		{
			name:   "topic particle form",
			answer: "지급율은 85.5% 입니다.",
			want:   map[string]string{"rate": "85.5%"},
		},
		{
			name:   "no recognizable values",
			answer: "확인되지 않습니다.",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractValues(tt.answer)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"3월 수수료 얼마야?", "calculation"},
		{"2월과 3월 수수료 비교해줘", "comparison"},
		{"올해 수수료 평균은?", "aggregation"},
		{"환수가 왜 발생했어?", "general_qa"},
		{"홍길동 수수료 내역", "direct_lookup"},
	}

	for _, tt := range tests {
		if got := classifyIntent(tt.query); got != tt.want {
			t.Errorf("classifyIntent(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
