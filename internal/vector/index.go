package vector

import (
	"math"
	"sort"
	"time"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
)

// Index is an immutable in-memory vector index for one knowledge base.
// Vectors[i] embeds Passages[i]. Once published an index is never mutated;
// rebuilds replace the whole value.
type Index struct {
	KBID       int64
	KBName     string
	KBCategory string
	DocCount   int
	Passages   []kb.Passage
	Vectors    [][]float32
	BuiltAt    time.Time
}

// Len returns the number of indexed passages.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.Passages)
}

// Search scores every passage against the query vector by cosine similarity
// and returns the top k hits. Ordering is stable: ties keep passage order.
func (ix *Index) Search(query []float32, k int) []kb.SearchHit {
	if ix.Len() == 0 || len(query) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(ix.Vectors))
	for i, vec := range ix.Vectors {
		if score := cosine(query, vec); score > 0 {
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
			MatchType:  kb.MatchVector,
			KBID:       ix.KBID,
			KBName:     ix.KBName,
			KBCategory: ix.KBCategory,
		})
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
