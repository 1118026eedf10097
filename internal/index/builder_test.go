package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/llm"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/vector"
)

type fakeCatalog struct {
	kbs  map[int64]kb.KnowledgeBase
	docs map[int64][]kb.Document
}

func (f *fakeCatalog) ListActiveKBs(ctx context.Context) ([]kb.KnowledgeBase, error) {
	var out []kb.KnowledgeBase
	for _, base := range f.kbs {
		if base.Active {
			out = append(out, base)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetKB(ctx context.Context, id int64) (kb.KnowledgeBase, error) {
	base, ok := f.kbs[id]
	if !ok {
		return kb.KnowledgeBase{}, fmt.Errorf("knowledge base %d missing", id)
	}
	return base, nil
}

func (f *fakeCatalog) ListProcessedDocuments(ctx context.Context, kbID int64) ([]kb.Document, error) {
	return f.docs[kbID], nil
}

func (f *fakeCatalog) RecordUsage(ctx context.Context, rec kb.UsageRecord) error { return nil }
func (f *fakeCatalog) Close() error                                             { return nil }

type fakeExtractor struct {
	texts map[string]string
}

func (f *fakeExtractor) ExtractText(ctx context.Context, ref string) (string, error) {
	text, ok := f.texts[ref]
	if !ok {
		return "", fmt.Errorf("no content for %s", ref)
	}
	return text, nil
}

type fakeProvider struct {
	embedCalls int
	failEmbed  bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message) (llm.Completion, error) {
	return llm.Completion{Content: "ok"}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	if f.failEmbed {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func newTestBuilder(t *testing.T, cat *fakeCatalog, ex *fakeExtractor, p *fakeProvider) *Builder {
	t.Helper()
	store := vector.NewFileStore(t.TempDir())
	return NewBuilder(cat, ex, p, store)
}

func singleKBFixture() (*fakeCatalog, *fakeExtractor) {
	cat := &fakeCatalog{
		kbs: map[int64]kb.KnowledgeBase{
			1: {ID: 1, Name: "billing", Category: "regulations", Active: true},
		},
		docs: map[int64][]kb.Document{
			1: {
				{ID: 10, KBID: 1, Title: "Tariffs", ContentRef: "tariffs", Abstract: "Обзор тарифов", Processed: true},
			},
		},
	}
	ex := &fakeExtractor{texts: map[string]string{
		"tariffs": "1. Scope\nBase tariff terms apply.\n\n2. Limits\nTraffic limits are listed here.",
	}}
	return cat, ex
}

func TestBuildIncludesAbstract(t *testing.T) {
	cat, ex := singleKBFixture()
	b := newTestBuilder(t, cat, ex, &fakeProvider{})

	ix, err := b.BuildOrLoad(context.Background(), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ix.Len() == 0 {
		t.Fatal("expected passages")
	}
	if !strings.Contains(ix.Passages[0].Text, "ABSTRACT (из метаданных): Обзор тарифов") {
		t.Fatalf("first passage must carry the abstract, got %q", ix.Passages[0].Text)
	}
	if len(ix.Vectors) != len(ix.Passages) {
		t.Fatalf("vectors and passages out of sync: %d vs %d", len(ix.Vectors), len(ix.Passages))
	}
	if ix.DocCount != 1 {
		t.Fatalf("expected 1 document, got %d", ix.DocCount)
	}
}

func TestBuildEmptyKB(t *testing.T) {
	cat := &fakeCatalog{
		kbs:  map[int64]kb.KnowledgeBase{2: {ID: 2, Name: "empty", Active: true}},
		docs: map[int64][]kb.Document{},
	}
	b := newTestBuilder(t, cat, &fakeExtractor{}, &fakeProvider{})

	ix, err := b.BuildOrLoad(context.Background(), 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ix.Len() != 0 {
		t.Fatalf("expected empty index, got %d passages", ix.Len())
	}
	if hits := ix.Search([]float32{1, 0, 0}, 5); len(hits) != 0 {
		t.Fatalf("empty index must return no hits, got %d", len(hits))
	}
}

func TestBuildPlaceholderOnExtractionFailure(t *testing.T) {
	cat, _ := singleKBFixture()
	b := newTestBuilder(t, cat, &fakeExtractor{texts: map[string]string{}}, &fakeProvider{})

	ix, err := b.BuildOrLoad(context.Background(), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("expected single placeholder passage, got %d", ix.Len())
	}
	if !strings.Contains(ix.Passages[0].Text, "недоступно") {
		t.Fatalf("expected placeholder text, got %q", ix.Passages[0].Text)
	}
}

func TestBuildPlaceholderOnEmptyText(t *testing.T) {
	cat, _ := singleKBFixture()
	b := newTestBuilder(t, cat, &fakeExtractor{texts: map[string]string{"tariffs": "   \n  "}}, &fakeProvider{})

	ix, err := b.BuildOrLoad(context.Background(), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("empty document must still yield one placeholder passage, got %d", ix.Len())
	}
	if !strings.Contains(ix.Passages[0].Text, "Tariffs") || !strings.Contains(ix.Passages[0].Text, "недоступно") {
		t.Fatalf("expected placeholder naming the document, got %q", ix.Passages[0].Text)
	}
}

func TestSnapshotFastPath(t *testing.T) {
	cat, ex := singleKBFixture()
	store := vector.NewFileStore(t.TempDir())

	first := &fakeProvider{}
	b1 := NewBuilder(cat, ex, first, store)
	if _, err := b1.BuildOrLoad(context.Background(), 1); err != nil {
		t.Fatalf("initial build: %v", err)
	}
	if first.embedCalls == 0 {
		t.Fatal("initial build must embed")
	}

	second := &fakeProvider{}
	b2 := NewBuilder(cat, ex, second, store)
	ix, err := b2.BuildOrLoad(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if second.embedCalls != 0 {
		t.Fatal("snapshot load must not call the embedding provider")
	}
	if ix.KBName != "billing" {
		t.Fatalf("snapshot lost kb name: %q", ix.KBName)
	}
}

func TestLoadAllContinuesPastFailures(t *testing.T) {
	cat := &fakeCatalog{
		kbs: map[int64]kb.KnowledgeBase{
			1: {ID: 1, Name: "a", Active: true},
			2: {ID: 2, Name: "b", Active: true},
		},
		docs: map[int64][]kb.Document{
			1: {{ID: 1, KBID: 1, Title: "Doc", ContentRef: "doc", Processed: true}},
			2: {{ID: 2, KBID: 2, Title: "Doc", ContentRef: "doc", Processed: true}},
		},
	}
	ex := &fakeExtractor{texts: map[string]string{"doc": "Some document body."}}

	// One builder per kb so only one of them fails to embed.
	store := vector.NewFileStore(t.TempDir())
	good := NewBuilder(cat, ex, &fakeProvider{}, store)
	if _, err := good.BuildOrLoad(context.Background(), 1); err != nil {
		t.Fatalf("prepare kb 1: %v", err)
	}
	if err := good.store.Remove(2); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	failing := NewBuilder(cat, ex, &fakeProvider{failEmbed: true}, store)
	ready, err := failing.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	// kb 1 loads from its snapshot, kb 2 fails to rebuild.
	if ready != 1 {
		t.Fatalf("expected 1 ready kb, got %d", ready)
	}
}

func TestReloadRebuildsFromScratch(t *testing.T) {
	cat, ex := singleKBFixture()
	p := &fakeProvider{}
	b := newTestBuilder(t, cat, ex, p)

	if _, err := b.BuildOrLoad(context.Background(), 1); err != nil {
		t.Fatalf("build: %v", err)
	}
	callsAfterBuild := p.embedCalls

	ex.texts["tariffs"] = "Completely new content about traffic reports."
	ix, err := b.Reload(context.Background(), 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if p.embedCalls <= callsAfterBuild {
		t.Fatal("reload must re-embed")
	}
	found := false
	for _, pass := range ix.Passages {
		if strings.Contains(pass.Text, "Completely new content") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("reload did not pick up new document content")
	}
}

func TestStats(t *testing.T) {
	cat, ex := singleKBFixture()
	b := newTestBuilder(t, cat, ex, &fakeProvider{})

	if stats := b.Stats(); len(stats) != 0 {
		t.Fatalf("expected no stats before load, got %d", len(stats))
	}
	if _, err := b.BuildOrLoad(context.Background(), 1); err != nil {
		t.Fatalf("build: %v", err)
	}
	stats := b.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected stats for one kb, got %d", len(stats))
	}
	if stats[0].Name != "billing" || stats[0].Passages == 0 {
		t.Fatalf("unexpected stats: %+v", stats[0])
	}
}
