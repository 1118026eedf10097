package search

import (
	"context"
	"errors"
	"testing"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/vector"
)

type fakeSource struct {
	indexes map[int64]*vector.Index
	fail    map[int64]error
}

func (f *fakeSource) BuildOrLoad(ctx context.Context, kbID int64) (*vector.Index, error) {
	if err, ok := f.fail[kbID]; ok {
		return nil, err
	}
	ix, ok := f.indexes[kbID]
	if !ok {
		return nil, errors.New("unknown knowledge base")
	}
	return ix, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func indexWith(kbID int64, name string, passages []kb.Passage, vectors [][]float32) *vector.Index {
	return &vector.Index{
		KBID:     kbID,
		KBName:   name,
		Passages: passages,
		Vectors:  vectors,
	}
}

func TestKeywordRanking(t *testing.T) {
	ix := indexWith(1, "billing", []kb.Passage{
		{DocID: 1, KBID: 1, Seq: 0, Text: "1. Scope\nThis defines limits."},
		{DocID: 1, KBID: 1, Seq: 1, Text: "2. Limits\nSession limits are 340 bytes."},
	}, [][]float32{{1, 0}, {0, 1}})

	engine := NewEngine(
		&fakeSource{indexes: map[int64]*vector.Index{1: ix}},
		&fakeEmbedder{err: errors.New("embedding down")},
		DefaultConfig(),
	)

	hits, err := engine.Search(context.Background(), "limits", []int64{1}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 keyword hits, got %d", len(hits))
	}
	if hits[0].Passage.Seq != 1 {
		t.Fatalf("passage with more matches must rank first, got seq %d", hits[0].Passage.Seq)
	}
	for _, h := range hits {
		if h.MatchType != kb.MatchKeyword {
			t.Fatalf("embedding failure must degrade to keyword-only, got %q", h.MatchType)
		}
	}
}

func TestVectorHitPrecedesAndDeduplicates(t *testing.T) {
	ix := indexWith(1, "billing", []kb.Passage{
		{DocID: 1, KBID: 1, Seq: 0, Text: "Детализированный отчет по трафику доступен в личном кабинете."},
	}, [][]float32{{0, 1}})

	engine := NewEngine(
		&fakeSource{indexes: map[int64]*vector.Index{1: ix}},
		&fakeEmbedder{vec: []float32{0, 1}},
		DefaultConfig(),
	)

	hits, err := engine.Search(context.Background(), "детализированный отчет", []int64{1}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("same passage from both paths must dedup to one hit, got %d", len(hits))
	}
	if hits[0].MatchType != kb.MatchVector {
		t.Fatalf("vector path must win on dedup, got %q", hits[0].MatchType)
	}
}

func TestDuplicateAcrossKnowledgeBases(t *testing.T) {
	shared := "Формат детализированного отчета описан в регламенте."
	a := indexWith(1, "a", []kb.Passage{{DocID: 1, KBID: 1, Text: shared}}, [][]float32{{1, 0}})
	b := indexWith(2, "b", []kb.Passage{{DocID: 2, KBID: 2, Text: shared}}, [][]float32{{1, 0}})

	engine := NewEngine(
		&fakeSource{indexes: map[int64]*vector.Index{1: a, 2: b}},
		&fakeEmbedder{vec: []float32{1, 0}},
		DefaultConfig(),
	)

	hits, err := engine.Search(context.Background(), "формат отчета", []int64{1, 2}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("identical passages across kbs must dedup, got %d", len(hits))
	}
	if hits[0].KBName != "a" {
		t.Fatalf("first knowledge base must win, got %q", hits[0].KBName)
	}
}

func TestResultCap(t *testing.T) {
	passages := make([]kb.Passage, 6)
	vectors := make([][]float32, 6)
	for i := range passages {
		passages[i] = kb.Passage{DocID: int64(i), KBID: 1, Seq: i,
			Text: "Отчет номер " + string(rune('а'+i)) + " содержит трафик."}
		vectors[i] = []float32{1, 0}
	}
	ix := indexWith(1, "billing", passages, vectors)

	engine := NewEngine(
		&fakeSource{indexes: map[int64]*vector.Index{1: ix}},
		&fakeEmbedder{vec: []float32{1, 0}},
		DefaultConfig(),
	)

	hits, err := engine.Search(context.Background(), "отчет трафик", []int64{1}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) > 2 {
		t.Fatalf("expected at most k*kbs = 2 hits, got %d", len(hits))
	}
}

func TestEmptyKnowledgeBaseList(t *testing.T) {
	engine := NewEngine(&fakeSource{}, &fakeEmbedder{vec: []float32{1}}, DefaultConfig())
	hits, err := engine.Search(context.Background(), "anything", nil, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != nil {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestUnavailableKnowledgeBaseSkipped(t *testing.T) {
	ix := indexWith(2, "ok", []kb.Passage{
		{DocID: 1, KBID: 2, Text: "Трафик тарифицируется по сессиям."},
	}, [][]float32{{1, 0}})

	engine := NewEngine(
		&fakeSource{
			indexes: map[int64]*vector.Index{2: ix},
			fail:    map[int64]error{1: errors.New("rebuild failed")},
		},
		&fakeEmbedder{vec: []float32{1, 0}},
		DefaultConfig(),
	)

	hits, err := engine.Search(context.Background(), "трафик", []int64{1, 2}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("healthy knowledge base must still return hits")
	}
	for _, h := range hits {
		if h.KBID != 2 {
			t.Fatalf("unexpected hit from failed kb: %+v", h)
		}
	}
}

func TestPhraseBoost(t *testing.T) {
	ix := indexWith(1, "billing", []kb.Passage{
		{DocID: 1, KBID: 1, Seq: 0, Text: "Общие условия обслуживания и форматы отчета о платежах."},
		{DocID: 1, KBID: 1, Seq: 1, Text: "Заказ детализированного отчета выполняется в личном кабинете."},
	}, [][]float32{{1, 0}, {0, 1}})

	engine := NewEngine(
		&fakeSource{indexes: map[int64]*vector.Index{1: ix}},
		&fakeEmbedder{err: errors.New("embedding down")},
		DefaultConfig(),
	)

	hits, err := engine.Search(context.Background(), "формат детализированного отчета", []int64{1}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected keyword hits")
	}
	if hits[0].Passage.Seq != 1 {
		t.Fatalf("phrase match must rank first, got seq %d", hits[0].Passage.Seq)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("phrase bonus missing: %f vs %f", hits[0].Score, hits[1].Score)
	}
}

func TestPhraseBoostIndependentOfQuery(t *testing.T) {
	ix := indexWith(1, "billing", []kb.Passage{
		{DocID: 1, KBID: 1, Seq: 0, Text: "Общие условия обслуживания и форматы отчета о платежах."},
		{DocID: 1, KBID: 1, Seq: 1, Text: "Заказ детализированного отчета выполняется в личном кабинете."},
	}, [][]float32{{1, 0}, {0, 1}})

	engine := NewEngine(
		&fakeSource{indexes: map[int64]*vector.Index{1: ix}},
		&fakeEmbedder{err: errors.New("embedding down")},
		DefaultConfig(),
	)

	// The query carries no boosted phrase and no term that matches the
	// phrase-bearing passage.
	hits, err := engine.Search(context.Background(), "формат", []int64{1}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 keyword hits, got %d", len(hits))
	}
	if hits[0].Passage.Seq != 1 {
		t.Fatalf("phrase-bearing passage must rank first, got seq %d", hits[0].Passage.Seq)
	}
	if hits[0].Score != 20 {
		t.Fatalf("expected pure phrase bonus score 20, got %f", hits[0].Score)
	}
	if hits[1].Score != 3 {
		t.Fatalf("expected term-boost score 3, got %f", hits[1].Score)
	}
}
