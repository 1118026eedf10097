package kb

import (
	"regexp"
	"strings"
)

// TextStructure summarizes the shape of a raw document: how it is divided,
// which language dominates, and how complex the content is. The recommended
// chunk settings feed the auto-derived chunking profile.
type TextStructure struct {
	TotalLength         int     `json:"total_length"`
	ParagraphCount      int     `json:"paragraph_count"`
	SectionCount        int     `json:"section_count"`
	AvgParagraphLength  float64 `json:"average_paragraph_length"`
	HasNumberedSections bool    `json:"has_numbered_sections"`
	HasBulletPoints     bool    `json:"has_bullet_points"`
	Language            string  `json:"language"`
	ComplexityScore     float64 `json:"complexity_score"`
	RecommendedSize     int     `json:"recommended_chunk_size"`
	RecommendedOverlap  int     `json:"recommended_overlap"`
}

// Languages reported by AnalyzeStructure.
const (
	LangRussian = "ru"
	LangEnglish = "en"
	LangMixed   = "mixed"
	LangUnknown = "unknown"
)

var (
	sectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d+\.\s+`),            // 1. Heading
		regexp.MustCompile(`^\d+\.\d+\s+`),         // 1.1 Subheading
		regexp.MustCompile(`^[IVX]+\.\s+`),         // I. Roman numeral
		regexp.MustCompile(`^[А-Я][а-я]+\s+\d+\.`), // Раздел 1.
		regexp.MustCompile(`^Глава\s+\d+`),
		regexp.MustCompile(`^Часть\s+\d+`),
		regexp.MustCompile(`^Chapter\s+\d+`),
		regexp.MustCompile(`^Part\s+\d+`),
	}

	bulletPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[-•*]\s+`),
		regexp.MustCompile(`^\d+\)\s+`),
		regexp.MustCompile(`^[a-zа-я]\)\s+`),
	}

	cyrillicLetters = regexp.MustCompile(`[а-яё]`)
	latinLetters    = regexp.MustCompile(`[a-z]`)
	technicalTerms  = regexp.MustCompile(`(?i)\b(?:API|SQL|HTTP|TCP|IP|JSON|XML|PDF|DOC|XLS)\b`)
)

// AnalyzeStructure inspects raw document text and derives structural metrics
// plus a recommended chunk size and overlap. Empty input yields the canonical
// default structure rather than an error.
func AnalyzeStructure(text string) TextStructure {
	if strings.TrimSpace(text) == "" {
		return defaultStructure()
	}

	totalLength := len(text)
	paragraphs := splitParagraphs(text)
	paragraphCount := len(paragraphs)

	sectionCount := countSections(text)
	hasBullets := hasBulletPoints(text)

	var avgParagraph float64
	if paragraphCount > 0 {
		var sum int
		for _, p := range paragraphs {
			sum += len(p)
		}
		avgParagraph = float64(sum) / float64(paragraphCount)
	}

	language := detectLanguage(text)
	complexity := calculateComplexity(text, paragraphCount, sectionCount)
	size, overlap := recommendChunkSettings(totalLength, sectionCount, avgParagraph, complexity)

	return TextStructure{
		TotalLength:         totalLength,
		ParagraphCount:      paragraphCount,
		SectionCount:        sectionCount,
		AvgParagraphLength:  avgParagraph,
		HasNumberedSections: sectionCount > 0,
		HasBulletPoints:     hasBullets,
		Language:            language,
		ComplexityScore:     complexity,
		RecommendedSize:     size,
		RecommendedOverlap:  overlap,
	}
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func countSections(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, pattern := range sectionPatterns {
			if pattern.MatchString(line) {
				count++
				break
			}
		}
	}
	return count
}

// hasBulletPoints reports whether the text contains a list: more than two
// lines matching a bullet or enumerated-item pattern.
func hasBulletPoints(text string) bool {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, pattern := range bulletPatterns {
			if pattern.MatchString(line) {
				count++
				break
			}
		}
	}
	return count > 2
}

func detectLanguage(text string) string {
	lower := strings.ToLower(text)
	cyrillic := len(cyrillicLetters.FindAllString(lower, -1))
	latin := len(latinLetters.FindAllString(lower, -1))
	switch {
	case cyrillic > latin:
		return LangRussian
	case latin > cyrillic:
		return LangEnglish
	default:
		return LangMixed
	}
}

func calculateComplexity(text string, paragraphCount, sectionCount int) float64 {
	complexity := 0.0

	switch {
	case len(text) > 10000:
		complexity += 0.3
	case len(text) > 5000:
		complexity += 0.2
	case len(text) > 1000:
		complexity += 0.1
	}

	switch {
	case paragraphCount > 20:
		complexity += 0.2
	case paragraphCount > 10:
		complexity += 0.1
	}

	switch {
	case sectionCount > 5:
		complexity += 0.2
	case sectionCount > 2:
		complexity += 0.1
	}

	terms := len(technicalTerms.FindAllString(text, -1))
	switch {
	case terms > 10:
		complexity += 0.2
	case terms > 5:
		complexity += 0.1
	}

	if complexity > 1.0 {
		complexity = 1.0
	}
	return complexity
}

func recommendChunkSettings(totalLength, sectionCount int, avgParagraph, complexity float64) (int, int) {
	size := 600
	overlap := 100

	switch {
	case sectionCount > 0:
		// Sectioned text keeps chunks small so a section survives intact.
		size = 500
		overlap = 120
	case avgParagraph > 1000:
		size = 800
		overlap = 150
	case avgParagraph > 0 && avgParagraph < 200:
		size = 400
		overlap = 80
	}

	if complexity > 0.7 {
		overlap = int(float64(overlap) * 1.5)
	} else if complexity < 0.3 {
		overlap = int(float64(overlap) * 0.7)
	}

	if totalLength > 50000 {
		size = int(float64(size) * 1.2)
	} else if totalLength < 5000 {
		size = int(float64(size) * 0.8)
	}

	return size, overlap
}

func defaultStructure() TextStructure {
	return TextStructure{
		Language:           LangUnknown,
		RecommendedSize:    600,
		RecommendedOverlap: 100,
	}
}
