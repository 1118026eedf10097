package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InlinePrefix marks a content reference whose payload is the text itself
// rather than a file path. Used by admin tooling for small pasted documents.
const InlinePrefix = "inline:"

// Extractor resolves a document content reference into plain text.
type Extractor interface {
	ExtractText(ctx context.Context, ref string) (string, error)
}

// FileExtractor reads documents from the local filesystem. An optional root
// confines relative references to one directory.
type FileExtractor struct {
	Root string
}

func NewFileExtractor(root string) *FileExtractor {
	return &FileExtractor{Root: root}
}

// ExtractText resolves ref into text. Inline references return their payload
// directly. JSON documents are flattened into a title/content rendering; any
// other file is read as plain UTF-8 text.
func (e *FileExtractor) ExtractText(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty content reference")
	}
	if strings.HasPrefix(ref, InlinePrefix) {
		return strings.TrimSpace(strings.TrimPrefix(ref, InlinePrefix)), nil
	}

	path := ref
	if e.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(e.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document %s: %w", ref, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if text, ok := renderJSONDocument(data); ok {
			return text, nil
		}
	}
	return string(data), nil
}

// renderJSONDocument assembles readable text from the structured export
// format: title plus either a content string or a list of sections.
func renderJSONDocument(data []byte) (string, bool) {
	var doc struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		Sections []struct {
			Heading string `json:"heading"`
			Text    string `json:"text"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}

	var b strings.Builder
	if doc.Title != "" {
		b.WriteString(doc.Title)
		b.WriteString("\n\n")
	}
	if doc.Content != "" {
		b.WriteString(doc.Content)
	}
	for _, s := range doc.Sections {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n\n") {
			b.WriteString("\n\n")
		}
		if s.Heading != "" {
			b.WriteString(s.Heading)
			b.WriteString("\n")
		}
		b.WriteString(s.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", false
	}
	return text, true
}
