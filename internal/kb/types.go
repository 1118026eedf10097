package kb

import "time"

// KnowledgeBase is an independently managed collection of documents with its
// own vector index. Created and administered outside the engine; the engine
// only reads active rows.
type KnowledgeBase struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Category string `json:"category" db:"category"`
	Active   bool   `json:"active" db:"is_active"`
}

// Document is a single source text inside a knowledge base. ContentRef is an
// opaque pointer (file path or inline text) resolved by the extraction
// collaborator. Only processed documents participate in indexing.
type Document struct {
	ID         int64  `json:"id" db:"id"`
	KBID       int64  `json:"kb_id" db:"kb_id"`
	Title      string `json:"title" db:"title"`
	ContentRef string `json:"content_ref" db:"file_path"`
	Abstract   string `json:"abstract,omitempty" db:"-"`
	Processed  bool   `json:"processed" db:"processed"`
}

// Passage is a bounded span of document text, the unit of embedding and
// retrieval. Passages are owned by the index that produced them and are
// recomputed whenever the document or chunking profile changes.
type Passage struct {
	DocID int64  `json:"doc_id"`
	KBID  int64  `json:"kb_id"`
	Seq   int    `json:"seq"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Match types reported on search hits.
const (
	MatchVector  = "vector"
	MatchKeyword = "keyword"
)

// SearchHit is a transient, per-query scored passage tagged with its origin.
type SearchHit struct {
	Passage    Passage `json:"passage"`
	Score      float64 `json:"score"`
	MatchType  string  `json:"match_type"`
	KBID       int64   `json:"kb_id"`
	KBName     string  `json:"kb_name"`
	KBCategory string  `json:"kb_category"`
}

// UsageRecord is an append-only accounting row written after every
// generation call.
type UsageRecord struct {
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens" db:"total_tokens"`
	Question         string    `json:"question" db:"question"`
	ResponseLength   int       `json:"response_length" db:"response_length"`
}
