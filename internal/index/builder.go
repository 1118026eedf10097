package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/catalog"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common/telemetry"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/extract"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/llm"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/vector"
)

const (
	defaultEmbedBatch = 64

	// abstractPrefix marks admin-supplied abstracts inside the indexed text
	// so retrieved passages show their provenance.
	abstractPrefix = "ABSTRACT (из метаданных): "
)

// Builder owns the per-knowledge-base index registry: building, persisting,
// reloading, and handing out immutable indexes for search.
type Builder struct {
	catalog   catalog.Store
	extractor extract.Extractor
	provider  llm.Provider
	store     *vector.FileStore

	embedBatch int

	mu      sync.Mutex
	entries map[int64]*entry
}

// entry is the registry slot for one knowledge base. The index pointer is
// swapped atomically; the build mutex serializes rebuilds without blocking
// readers.
type entry struct {
	idx   atomic.Pointer[vector.Index]
	build sync.Mutex
}

// Option configures a Builder.
type Option func(*Builder)

// WithEmbedBatchSize sets how many passages are embedded per provider call.
func WithEmbedBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.embedBatch = n
		}
	}
}

func NewBuilder(cat catalog.Store, ex extract.Extractor, provider llm.Provider, store *vector.FileStore, opts ...Option) *Builder {
	b := &Builder{
		catalog:    cat,
		extractor:  ex,
		provider:   provider,
		store:      store,
		embedBatch: defaultEmbedBatch,
		entries:    make(map[int64]*entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) entryFor(kbID int64) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[kbID]
	if !ok {
		e = &entry{}
		b.entries[kbID] = e
	}
	return e
}

// Index returns the in-memory index for a knowledge base, if one is loaded.
func (b *Builder) Index(kbID int64) (*vector.Index, bool) {
	b.mu.Lock()
	e, ok := b.entries[kbID]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	ix := e.idx.Load()
	return ix, ix != nil
}

// BuildOrLoad makes a knowledge base searchable: memory first, then the
// persisted snapshot, then a full rebuild. Corrupt snapshots are discarded
// and rebuilt.
func (b *Builder) BuildOrLoad(ctx context.Context, kbID int64) (*vector.Index, error) {
	e := b.entryFor(kbID)
	if ix := e.idx.Load(); ix != nil {
		return ix, nil
	}

	e.build.Lock()
	defer e.build.Unlock()
	if ix := e.idx.Load(); ix != nil {
		return ix, nil
	}

	base, err := b.catalog.GetKB(ctx, kbID)
	if err != nil {
		return nil, err
	}

	if ix, err := b.store.Load(kbID); err == nil {
		e.idx.Store(ix)
		telemetry.RecordIndexReady(true, ix.Len())
		common.Logger().Info("index: loaded snapshot", "kb", kbID, "passages", ix.Len())
		return ix, nil
	} else if errors.Is(err, vector.ErrCorrupt) {
		common.Logger().Warn("index: discarding corrupt snapshot", "kb", kbID, "error", err)
		if rmErr := b.store.Remove(kbID); rmErr != nil {
			common.Logger().Warn("index: snapshot cleanup failed", "kb", kbID, "error", rmErr)
		}
	} else if !errors.Is(err, vector.ErrNotFound) {
		return nil, err
	}

	ix, err := b.rebuild(ctx, base)
	if err != nil {
		return nil, err
	}
	e.idx.Store(ix)
	telemetry.RecordIndexReady(false, ix.Len())
	return ix, nil
}

// rebuild chunks and embeds every processed document of the knowledge base
// and persists the result. Embedding happens before the index is published,
// never under the registry lock.
func (b *Builder) rebuild(ctx context.Context, base kb.KnowledgeBase) (*vector.Index, error) {
	ctx, done := telemetry.StartSpan(ctx, "index.rebuild")
	defer done("kb", base.ID)

	if err := telemetry.CheckMemoryBudget("index"); err != nil {
		return nil, err
	}

	docs, err := b.catalog.ListProcessedDocuments(ctx, base.ID)
	if err != nil {
		return nil, err
	}

	var passages []kb.Passage
	for _, doc := range docs {
		passages = append(passages, b.chunkDocument(ctx, base, doc)...)
	}

	vectors, err := b.embedAll(ctx, passages)
	if err != nil {
		return nil, fmt.Errorf("embed kb %d: %w", base.ID, err)
	}

	ix := &vector.Index{
		KBID:       base.ID,
		KBName:     base.Name,
		KBCategory: base.Category,
		DocCount:   len(docs),
		Passages:   passages,
		Vectors:    vectors,
		BuiltAt:    time.Now().UTC(),
	}
	if err := b.store.Save(ix); err != nil {
		common.Logger().Warn("index: snapshot save failed", "kb", base.ID, "error", err)
	}
	common.Logger().Info("index: rebuilt", "kb", base.ID, "documents", len(docs), "passages", len(passages))
	return ix, nil
}

// chunkDocument extracts and splits one document. Extraction failures and
// empty extracted text yield a single placeholder passage so the document
// stays visible in results.
func (b *Builder) chunkDocument(ctx context.Context, base kb.KnowledgeBase, doc kb.Document) []kb.Passage {
	text, err := b.extractor.ExtractText(ctx, doc.ContentRef)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			common.Logger().Warn("index: extraction failed", "kb", base.ID, "doc", doc.ID, "error", err)
		} else {
			common.Logger().Warn("index: document has no text", "kb", base.ID, "doc", doc.ID)
		}
		return []kb.Passage{{
			DocID: doc.ID,
			KBID:  base.ID,
			Seq:   0,
			Title: doc.Title,
			Text:  fmt.Sprintf("Содержимое документа «%s» недоступно.", doc.Title),
		}}
	}
	if doc.Abstract != "" {
		text = abstractPrefix + doc.Abstract + "\n\n" + text
	}

	profile := b.profileFor(base, text)
	chunks, err := profile.Split(text)
	if err != nil {
		common.Logger().Warn("index: split failed", "kb", base.ID, "doc", doc.ID, "error", err)
		return nil
	}

	passages := make([]kb.Passage, 0, len(chunks))
	for seq, chunk := range chunks {
		passages = append(passages, kb.Passage{
			DocID: doc.ID,
			KBID:  base.ID,
			Seq:   seq,
			Title: doc.Title,
			Text:  chunk,
		})
	}
	return passages
}

// profileFor picks the chunking profile: question-answer and code documents
// override the knowledge base category profile.
func (b *Builder) profileFor(base kb.KnowledgeBase, text string) kb.ChunkingProfile {
	if class := kb.ClassifyContent(text); class != kb.ContentDefault {
		return kb.ProfileForContent(class)
	}
	return kb.SelectProfile(kb.AnalyzeStructure(text), base.Category)
}

func (b *Builder) embedAll(ctx context.Context, passages []kb.Passage) ([][]float32, error) {
	vectors := make([][]float32, 0, len(passages))
	for start := 0; start < len(passages); start += b.embedBatch {
		end := start + b.embedBatch
		if end > len(passages) {
			end = len(passages)
		}
		batch := make([]string, 0, end-start)
		for _, p := range passages[start:end] {
			batch = append(batch, p.Text)
		}
		embedded, err := b.provider.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(embedded) != len(batch) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(embedded), len(batch))
		}
		vectors = append(vectors, embedded...)
	}
	return vectors, nil
}

// LoadAll prepares every active knowledge base and returns how many became
// searchable. Individual failures are logged and skipped.
func (b *Builder) LoadAll(ctx context.Context) (int, error) {
	kbs, err := b.catalog.ListActiveKBs(ctx)
	if err != nil {
		return 0, err
	}
	ready := 0
	for _, base := range kbs {
		if _, err := b.BuildOrLoad(ctx, base.ID); err != nil {
			common.Logger().Warn("index: load failed", "kb", base.ID, "name", base.Name, "error", err)
			continue
		}
		ready++
	}
	common.Logger().Info("index: load complete", "ready", ready, "total", len(kbs))
	return ready, nil
}

// Invalidate drops the in-memory index and the persisted snapshot.
func (b *Builder) Invalidate(kbID int64) error {
	b.mu.Lock()
	if e, ok := b.entries[kbID]; ok {
		e.idx.Store(nil)
	}
	b.mu.Unlock()
	return b.store.Remove(kbID)
}

// Reload rebuilds a knowledge base from scratch.
func (b *Builder) Reload(ctx context.Context, kbID int64) (*vector.Index, error) {
	if err := b.Invalidate(kbID); err != nil {
		return nil, err
	}
	return b.BuildOrLoad(ctx, kbID)
}

// KBStats describes one loaded index.
type KBStats struct {
	KBID     int64     `json:"kb_id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	DocCount int       `json:"documents"`
	Passages int       `json:"passages"`
	BuiltAt  time.Time `json:"built_at"`
}

// Stats reports all in-memory indexes sorted by knowledge base id.
func (b *Builder) Stats() []KBStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]KBStats, 0, len(b.entries))
	for id, e := range b.entries {
		ix := e.idx.Load()
		if ix == nil {
			continue
		}
		out = append(out, KBStats{
			KBID:     id,
			Name:     ix.KBName,
			Category: ix.KBCategory,
			DocCount: ix.DocCount,
			Passages: ix.Len(),
			BuiltAt:  ix.BuiltAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KBID < out[j].KBID })
	return out
}
