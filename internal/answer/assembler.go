package answer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common/telemetry"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/llm"
)

const (
	defaultContextLimit = 5
	defaultPromptBudget = 4000
	// blockRunes caps how much of a passage enters the prompt.
	blockRunes = 800

	noDataRU = "В подключенных базах знаний нет информации для ответа на этот вопрос."
	noDataEN = "The connected knowledge bases contain no information to answer this question."
)

// Searcher is the retrieval half of the pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, kbIDs []int64, k int) ([]kb.SearchHit, error)
}

// UsageRecorder persists generation accounting rows.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec kb.UsageRecord) error
}

// Source attributes one context block of the answer.
type Source struct {
	KBName    string  `json:"kb_name"`
	Title     string  `json:"title"`
	MatchType string  `json:"match_type"`
	Score     float64 `json:"score"`
}

// Result is a generated answer with its supporting sources.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Assembler retrieves context for a question, generates an answer, and
// accounts for token usage.
type Assembler struct {
	searcher Searcher
	provider llm.Provider
	usage    UsageRecorder
	model    string
	budget   int
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithPromptBudget caps the total context size in runes.
func WithPromptBudget(runes int) Option {
	return func(a *Assembler) {
		if runes > 0 {
			a.budget = runes
		}
	}
}

func NewAssembler(searcher Searcher, provider llm.Provider, usage UsageRecorder, model string, opts ...Option) *Assembler {
	a := &Assembler{
		searcher: searcher,
		provider: provider,
		usage:    usage,
		model:    model,
		budget:   defaultPromptBudget,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer runs retrieval over the given knowledge bases and generates an
// answer from the assembled context. contextLimit is how many hits to
// retrieve per knowledge base. With no hits a fixed notice is returned and
// no generation or accounting happens. A generation failure becomes the
// answer text so callers always get something to show.
func (a *Assembler) Answer(ctx context.Context, question string, kbIDs []int64, contextLimit int) (Result, error) {
	if contextLimit <= 0 {
		contextLimit = defaultContextLimit
	}
	ctx, done := telemetry.StartSpan(ctx, "answer")
	defer done("kbs", len(kbIDs))

	hits, err := a.searcher.Search(ctx, question, kbIDs, contextLimit)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve context: %w", err)
	}
	russian := isRussian(question)
	if len(hits) == 0 {
		if russian {
			return Result{Answer: noDataRU}, nil
		}
		return Result{Answer: noDataEN}, nil
	}

	blocks, sources := buildBlocks(hits, a.budget)
	prompt := buildPrompt(question, blocks, russian)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(russian)},
		{Role: llm.RoleUser, Content: prompt},
	}

	comp, err := a.provider.Chat(ctx, messages)
	if err != nil {
		common.Logger().Error("answer: generation failed", "error", err)
		text := "Ошибка генерации ответа: " + err.Error()
		if !russian {
			text = "Answer generation failed: " + err.Error()
		}
		return Result{Answer: text, Sources: sources}, nil
	}

	a.recordUsage(ctx, question, prompt, comp)
	return Result{Answer: comp.Content, Sources: sources}, nil
}

// buildBlocks renders hits into prompt blocks, dropping the lowest-ranked
// ones once the rune budget is exhausted.
func buildBlocks(hits []kb.SearchHit, limit int) ([]string, []Source) {
	var blocks []string
	var sources []Source
	used := 0
	for _, h := range hits {
		text := truncateRunes(h.Passage.Text, blockRunes)
		block := fmt.Sprintf("[%s] %s (%s)\n%s", h.KBName, h.Passage.Title, h.MatchType, text)
		size := len([]rune(block))
		if used+size > limit && len(blocks) > 0 {
			break
		}
		blocks = append(blocks, block)
		sources = append(sources, Source{
			KBName:    h.KBName,
			Title:     h.Passage.Title,
			MatchType: h.MatchType,
			Score:     h.Score,
		})
		used += size
	}
	return blocks, sources
}

func buildPrompt(question string, blocks []string, russian bool) string {
	contextText := strings.Join(blocks, "\n\n---\n\n")
	if russian {
		return fmt.Sprintf("Контекст из баз знаний:\n\n%s\n\nВопрос: %s", contextText, question)
	}
	return fmt.Sprintf("Knowledge base context:\n\n%s\n\nQuestion: %s", contextText, question)
}

func systemPrompt(russian bool) string {
	if russian {
		return "Ты помощник службы поддержки спутникового оператора. " +
			"Отвечай только на основе переданного контекста. " +
			"Если контекста недостаточно, скажи об этом прямо."
	}
	return "You are a support assistant for a satellite operator. " +
		"Answer only from the provided context. " +
		"If the context is insufficient, say so directly."
}

// recordUsage writes the accounting row. Providers that do not report token
// usage get a rough length-based estimate. Lengths are counted in runes so
// Cyrillic text is not double-counted.
func (a *Assembler) recordUsage(ctx context.Context, question, prompt string, comp llm.Completion) {
	rec := kb.UsageRecord{
		Timestamp:        time.Now().UTC(),
		Provider:         a.provider.Name(),
		Model:            a.model,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
		TotalTokens:      comp.TotalTokens,
		Question:         question,
		ResponseLength:   utf8.RuneCountInString(comp.Content),
	}
	if rec.PromptTokens == 0 && rec.CompletionTokens == 0 {
		rec.PromptTokens = utf8.RuneCountInString(prompt) / 4
		rec.CompletionTokens = utf8.RuneCountInString(comp.Content) / 4
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	telemetry.RecordGeneration(rec.PromptTokens, rec.CompletionTokens)
	if err := a.usage.RecordUsage(ctx, rec); err != nil {
		common.Logger().Warn("answer: usage accounting failed", "error", err)
	}
}

func truncateRunes(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}

func isRussian(text string) bool {
	cyr, lat := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr++
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			lat++
		}
	}
	return cyr >= lat && cyr > 0
}
