package llm

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Chat roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of a chat prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a chat answer together with the provider-reported token
// usage. Token counts of zero mean the provider did not report usage.
type Completion struct {
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// ErrEmptyCompletion reports a provider response with no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Provider abstracts a chat and embedding backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (Completion, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// Config holds provider settings shared by all backends.
type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LoadConfig reads provider settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:    strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")),
		ChatModel:  strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL")),
		EmbedModel: strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")),
	}
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Temperature = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("OPENAI_MAX_TOKENS")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.MaxTokens = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			cfg.Timeout = v
		}
	}
	cfg.applyDefaults()
	return cfg
}

// Merge overlays non-zero fields from other onto the receiver.
func (c Config) Merge(other Config) Config {
	if other.APIKey != "" {
		c.APIKey = other.APIKey
	}
	if other.BaseURL != "" {
		c.BaseURL = other.BaseURL
	}
	if other.ChatModel != "" {
		c.ChatModel = other.ChatModel
	}
	if other.EmbedModel != "" {
		c.EmbedModel = other.EmbedModel
	}
	if other.Temperature > 0 {
		c.Temperature = other.Temperature
	}
	if other.MaxTokens > 0 {
		c.MaxTokens = other.MaxTokens
	}
	if other.Timeout > 0 {
		c.Timeout = other.Timeout
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "text-embedding-3-small"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}
