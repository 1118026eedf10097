package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common/telemetry"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/vector"
)

const (
	defaultTopK = 5
	// dedupPrefixRunes is how much passage text identifies a duplicate.
	dedupPrefixRunes = 100
)

// IndexSource hands out searchable indexes by knowledge base id.
type IndexSource interface {
	BuildOrLoad(ctx context.Context, kbID int64) (*vector.Index, error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine runs hybrid retrieval: vector similarity plus boosted keyword
// matching over every requested knowledge base.
type Engine struct {
	source   IndexSource
	embedder Embedder
	cfg      Config
}

func NewEngine(source IndexSource, embedder Embedder, cfg Config) *Engine {
	return &Engine{source: source, embedder: embedder, cfg: cfg}
}

// Search queries the given knowledge bases in caller order and returns up to
// k hits per knowledge base per path, deduplicated, capped at k times the
// number of knowledge bases. Vector hits of a knowledge base precede its
// keyword hits. An embedding failure degrades to keyword-only matching.
func (e *Engine) Search(ctx context.Context, query string, kbIDs []int64, k int) ([]kb.SearchHit, error) {
	if k <= 0 {
		k = defaultTopK
	}
	if len(kbIDs) == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	queryVec := e.embedQuery(ctx, query)

	var hits []kb.SearchHit
	for _, kbID := range kbIDs {
		ix, err := e.source.BuildOrLoad(ctx, kbID)
		if err != nil {
			common.Logger().Warn("search: knowledge base unavailable", "kb", kbID, "error", err)
			continue
		}
		if queryVec != nil {
			start := time.Now()
			hits = append(hits, ix.Search(queryVec, k)...)
			telemetry.RecordVectorSearch(time.Since(start))
		}
		hits = append(hits, e.keywordSearch(ix, query, k)...)
		telemetry.RecordKeywordSearch()
	}

	hits = dedupHits(hits)
	if limit := k * len(kbIDs); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) []float32 {
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		common.Logger().Warn("search: query embedding failed, keyword-only", "error", err)
		return nil
	}
	return vecs[0]
}

// keywordSearch scores passages by boosted term frequency. Only passages
// with a positive score are returned, best first, at most k.
func (e *Engine) keywordSearch(ix *vector.Index, query string, k int) []kb.SearchHit {
	terms := e.queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	var candidates []scored
	for i, p := range ix.Passages {
		textLower := strings.ToLower(p.Text)
		var score float64
		for _, term := range terms {
			if n := strings.Count(textLower, term); n > 0 {
				score += float64(n) * e.cfg.boostFor(term)
			}
		}
		// Phrase bonuses reward the passage alone; a phrase-bearing passage
		// scores even when no query term matched it.
		for phrase, bonus := range e.cfg.PhraseBoosts {
			if strings.Contains(textLower, phrase) {
				score += bonus
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{pos: i, score: score})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]kb.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, kb.SearchHit{
			Passage:    ix.Passages[c.pos],
			Score:      c.score,
			MatchType:  kb.MatchKeyword,
			KBID:       ix.KBID,
			KBName:     ix.KBName,
			KBCategory: ix.KBCategory,
		})
	}
	return hits
}

func (e *Engine) queryTerms(query string) []string {
	minLen := e.cfg.MinTermLength
	if minLen <= 0 {
		minLen = 3
	}
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		term := strings.Trim(field, ".,!?:;()\"'«»")
		if utf8.RuneCountInString(term) >= minLen {
			terms = append(terms, term)
		}
	}
	return terms
}

// dedupHits drops passages whose leading text matches an earlier hit, so the
// same chunk surfacing from both retrieval paths appears once.
func dedupHits(hits []kb.SearchHit) []kb.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, h := range hits {
		key := textPrefix(h.Passage.Text, dedupPrefixRunes)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

func textPrefix(text string, runes int) string {
	if utf8.RuneCountInString(text) <= runes {
		return text
	}
	r := []rune(text)
	return string(r[:runes])
}
