package kb

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
)

// ChunkingProfile names a splitting configuration: chunk size, overlap, and
// the ordered separator ladder passed to the recursive splitter.
type ChunkingProfile struct {
	Name       string   `json:"name"`
	ChunkSize  int      `json:"chunk_size"`
	Overlap    int      `json:"overlap"`
	Separators []string `json:"separators"`
}

// Named category presets. A knowledge base category selects one of these;
// unknown categories fall through to structural analysis.
const (
	ProfileRegulations = "regulations"
	ProfileManuals     = "manuals"
	ProfileFAQ         = "faq"
	ProfileAPIDocs     = "api_docs"
	ProfileLegal       = "legal"
)

var presets = map[string]ChunkingProfile{
	ProfileRegulations: {
		Name:       ProfileRegulations,
		ChunkSize:  600,
		Overlap:    100,
		Separators: []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " ", ""},
	},
	ProfileManuals: {
		Name:       ProfileManuals,
		ChunkSize:  800,
		Overlap:    150,
		Separators: []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""},
	},
	ProfileFAQ: {
		Name:       ProfileFAQ,
		ChunkSize:  400,
		Overlap:    80,
		Separators: []string{"\n\n", "\n", "? ", ". ", " ", ""},
	},
	ProfileAPIDocs: {
		Name:       ProfileAPIDocs,
		ChunkSize:  700,
		Overlap:    120,
		Separators: []string{"\n\n", "\n", "```", "## ", "# ", ". ", " ", ""},
	},
	ProfileLegal: {
		Name:       ProfileLegal,
		ChunkSize:  1000,
		Overlap:    200,
		Separators: []string{"\n\n", "\n", "Статья ", "Пункт ", ". ", " ", ""},
	},
}

// Preset returns the named category preset.
func Preset(name string) (ChunkingProfile, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// SelectProfile picks a chunking profile for a document. A recognized
// category hint wins outright; otherwise the profile is derived from the
// analyzed structure, with the structure's recommended size and overlap
// replacing the preset numbers.
func SelectProfile(structure TextStructure, categoryHint string) ChunkingProfile {
	if p, ok := Preset(categoryHint); ok {
		return p
	}

	name := profileNameForStructure(structure)
	p := presets[name]
	if structure.RecommendedSize > 0 {
		p.ChunkSize = structure.RecommendedSize
	}
	if structure.RecommendedOverlap > 0 {
		p.Overlap = structure.RecommendedOverlap
	}
	common.Logger().Debug("chunker: auto profile",
		"profile", name, "size", p.ChunkSize, "overlap", p.Overlap, "lang", structure.Language)
	return p
}

func profileNameForStructure(s TextStructure) string {
	switch {
	case s.HasNumberedSections && s.ComplexityScore > 0.6:
		return ProfileRegulations
	case s.AvgParagraphLength > 0 && s.AvgParagraphLength < 300 && s.ParagraphCount > 10:
		return ProfileFAQ
	case s.TotalLength > 20000 && s.ComplexityScore > 0.5:
		return ProfileLegal
	default:
		return ProfileManuals
	}
}

// ContentClass is a coarse per-document shape used to override the knowledge
// base profile at index build time.
type ContentClass string

const (
	ContentQA      ContentClass = "qa"
	ContentCode    ContentClass = "code"
	ContentDefault ContentClass = "default"
)

// ClassifyContent detects question-answer and code-heavy documents so they
// get separators that respect their structure.
func ClassifyContent(text string) ContentClass {
	lower := strings.ToLower(text)

	questionMarks := strings.Count(text, "?")
	hasBullets := strings.Contains(text, "•") || strings.Contains(text, "- ")
	qaRussian := strings.Contains(lower, "вопрос") && strings.Contains(lower, "ответ")
	qaEnglish := strings.Contains(lower, "question") && strings.Contains(lower, "answer")
	if (questionMarks >= 3 && hasBullets) || qaRussian || qaEnglish {
		return ContentQA
	}

	braces := strings.Count(text, "{") + strings.Count(text, "}")
	if strings.Contains(text, "```") || braces > 10 || strings.Count(text, ";") > 20 {
		return ContentCode
	}

	return ContentDefault
}

// ProfileForContent returns the per-document profile for a content class.
// It takes precedence over the knowledge base profile when building an index.
func ProfileForContent(class ContentClass) ChunkingProfile {
	switch class {
	case ContentQA:
		return ChunkingProfile{
			Name:       "qa_like",
			ChunkSize:  800,
			Overlap:    120,
			Separators: []string{"\n\n", "\n", "? ", "?\n", "• ", "- ", ". ", " ", ""},
		}
	case ContentCode:
		return ChunkingProfile{
			Name:       "code_like",
			ChunkSize:  600,
			Overlap:    80,
			Separators: []string{"\n\n", "\n", "; ", ";\n", ") ", ": ", ". ", " ", ""},
		}
	default:
		return ChunkingProfile{
			Name:       "default",
			ChunkSize:  1000,
			Overlap:    200,
			Separators: []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""},
		}
	}
}

// Split chunks text with the profile's recursive character splitter. Output
// is deterministic for identical input and profile.
func (p ChunkingProfile) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.ChunkSize),
		textsplitter.WithChunkOverlap(p.Overlap),
		textsplitter.WithSeparators(p.Separators),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text with profile %s: %w", p.Name, err)
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}
