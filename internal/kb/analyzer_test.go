package kb

import "testing"

func TestAnalyzeStructureEmptyInput(t *testing.T) {
	s := AnalyzeStructure("   \n\n  ")
	if s.RecommendedSize != 600 || s.RecommendedOverlap != 100 {
		t.Fatalf("expected default recommendation 600/100, got %d/%d", s.RecommendedSize, s.RecommendedOverlap)
	}
	if s.Language != LangUnknown {
		t.Fatalf("expected unknown language, got %q", s.Language)
	}
	if s.ParagraphCount != 0 || s.SectionCount != 0 {
		t.Fatalf("expected zeroed counts, got paragraphs=%d sections=%d", s.ParagraphCount, s.SectionCount)
	}
}

func TestAnalyzeStructureNumberedSections(t *testing.T) {
	text := "1. Scope\nThis defines limits.\n\n2. Limits\n340 bytes max.\n\n3. Notes\nSee appendix."
	s := AnalyzeStructure(text)

	if !s.HasNumberedSections {
		t.Fatal("expected numbered sections to be detected")
	}
	if s.SectionCount != 3 {
		t.Fatalf("expected 3 sections, got %d", s.SectionCount)
	}
	if s.ParagraphCount != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", s.ParagraphCount)
	}
	if s.Language != LangEnglish {
		t.Fatalf("expected english, got %q", s.Language)
	}
	// Sectioned short text: base 500/120, low complexity shrinks overlap,
	// short length shrinks size.
	if s.RecommendedSize != 400 {
		t.Fatalf("expected recommended size 400, got %d", s.RecommendedSize)
	}
	if s.RecommendedOverlap != 84 {
		t.Fatalf("expected recommended overlap 84, got %d", s.RecommendedOverlap)
	}
}

func TestAnalyzeStructureLanguageDetection(t *testing.T) {
	if got := AnalyzeStructure("Тарифы на спутниковую связь и условия обслуживания абонентов.").Language; got != LangRussian {
		t.Fatalf("expected ru, got %q", got)
	}
	if got := AnalyzeStructure("Billing rules for satellite traffic reports.").Language; got != LangEnglish {
		t.Fatalf("expected en, got %q", got)
	}
}

func TestAnalyzeStructureBulletPoints(t *testing.T) {
	text := "Options:\n- first\n- second\n- third\n- fourth"
	s := AnalyzeStructure(text)
	if !s.HasBulletPoints {
		t.Fatal("expected bullet points to be detected")
	}

	noList := AnalyzeStructure("Just a paragraph.\n- one lonely dash line")
	if noList.HasBulletPoints {
		t.Fatal("a single bullet line should not count as a list")
	}
}

func TestAnalyzeStructureComplexityGrowsWithTechnicalTerms(t *testing.T) {
	plain := AnalyzeStructure("Simple note about service terms and conditions for users.")
	technical := AnalyzeStructure("API calls return JSON over HTTP. SQL storage exports XML and PDF. " +
		"The API validates JSON before the HTTP layer. SQL and XML and PDF again: API JSON HTTP.")
	if technical.ComplexityScore <= plain.ComplexityScore {
		t.Fatalf("expected technical text to score higher: %f vs %f",
			technical.ComplexityScore, plain.ComplexityScore)
	}
}
