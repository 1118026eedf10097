package search

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
)

// Config tunes the keyword half of hybrid search. Term boosts are matched by
// prefix so inflected forms of a boosted word still count.
type Config struct {
	TermBoosts   map[string]float64 `json:"term_boosts"`
	PhraseBoosts map[string]float64 `json:"phrase_boosts"`
	// MinTermLength filters out short query tokens.
	MinTermLength int `json:"min_term_length"`
}

// DefaultConfig carries boosts tuned for billing-support questions about
// detailed traffic reports.
func DefaultConfig() Config {
	return Config{
		TermBoosts: map[string]float64{
			"детализирован": 5,
			"отчет":         3,
			"формат":        3,
			"трафик":        2,
		},
		PhraseBoosts: map[string]float64{
			"детализированного отчета": 20,
		},
		MinTermLength: 3,
	}
}

// LoadConfig starts from the defaults and optionally overlays a JSON file
// named by KBRAG_SEARCH_BOOSTS. A broken file keeps the defaults.
func LoadConfig() Config {
	cfg := DefaultConfig()
	path := strings.TrimSpace(os.Getenv("KBRAG_SEARCH_BOOSTS"))
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		common.Logger().Warn("search: boost file unreadable, using defaults", "path", path, "error", err)
		return cfg
	}
	var overlay Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		common.Logger().Warn("search: boost file invalid, using defaults", "path", path, "error", err)
		return cfg
	}
	return cfg.Merge(overlay)
}

// Merge overlays non-empty fields from other onto the receiver.
func (c Config) Merge(other Config) Config {
	if len(other.TermBoosts) > 0 {
		c.TermBoosts = other.TermBoosts
	}
	if len(other.PhraseBoosts) > 0 {
		c.PhraseBoosts = other.PhraseBoosts
	}
	if other.MinTermLength > 0 {
		c.MinTermLength = other.MinTermLength
	}
	return c
}

// boostFor returns the weight of a query term. Terms without a configured
// prefix weigh 1.
func (c Config) boostFor(term string) float64 {
	for prefix, boost := range c.TermBoosts {
		if strings.HasPrefix(term, prefix) {
			return boost
		}
	}
	return 1
}
