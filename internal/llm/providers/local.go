package providers

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/llm"
)

const localEmbeddingDim = 256

// LocalProvider is an offline fallback. Embeddings are deterministic hashed
// bags of words, good enough for development and tests. Chat returns a fixed
// notice instead of generated text.
type LocalProvider struct{}

func NewLocal() *LocalProvider { return &LocalProvider{} }

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Chat(ctx context.Context, messages []llm.Message) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}
	content := "Генерация ответов недоступна: провайдер LLM не настроен. " +
		"Задайте OPENAI_API_KEY, чтобы получать ответы по базам знаний."
	return llm.Completion{Content: content}, nil
}

func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashEmbedding(text)
	}
	return out, nil
}

// hashEmbedding folds lowercased tokens into a fixed-size vector and
// L2-normalizes it so cosine scores stay comparable.
func hashEmbedding(text string) []float32 {
	vec := make([]float32, localEmbeddingDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%localEmbeddingDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// New selects a provider for the configuration: OpenAI when an API key is
// present, the local fallback otherwise.
func New(cfg llm.Config) llm.Provider {
	if cfg.APIKey != "" {
		return NewOpenAI(cfg)
	}
	common.Logger().Warn("llm: no API key configured, using local fallback provider")
	return NewLocal()
}
