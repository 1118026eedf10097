package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_bases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS knowledge_documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kb_id INTEGER NOT NULL REFERENCES knowledge_bases(id),
    title TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '',
    processed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_kb ON knowledge_documents(kb_id, processed);

CREATE TABLE IF NOT EXISTS llm_usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    question TEXT NOT NULL DEFAULT '',
    response_length INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore backs the catalog with a local SQLite file shared with the
// admin tooling.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the catalog database and applies the schema.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	cfg.applyDefaults()
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", cfg.Path, cfg.BusyTimeoutMS)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	common.Logger().Info("catalog: database ready", "path", cfg.Path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListActiveKBs(ctx context.Context) ([]kb.KnowledgeBase, error) {
	var out []kb.KnowledgeBase
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, name, category, is_active FROM knowledge_bases WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active knowledge bases: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetKB(ctx context.Context, id int64) (kb.KnowledgeBase, error) {
	var out kb.KnowledgeBase
	err := s.db.GetContext(ctx, &out,
		`SELECT id, name, category, is_active FROM knowledge_bases WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return kb.KnowledgeBase{}, fmt.Errorf("knowledge base %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return kb.KnowledgeBase{}, fmt.Errorf("get knowledge base %d: %w", id, err)
	}
	return out, nil
}

type documentRow struct {
	ID       int64  `db:"id"`
	KBID     int64  `db:"kb_id"`
	Title    string `db:"title"`
	FilePath string `db:"file_path"`
	Metadata string `db:"metadata"`
}

func (s *SQLiteStore) ListProcessedDocuments(ctx context.Context, kbID int64) ([]kb.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, kb_id, title, file_path, metadata
		   FROM knowledge_documents WHERE kb_id = ? AND processed = 1 ORDER BY id`, kbID)
	if err != nil {
		return nil, fmt.Errorf("list documents for kb %d: %w", kbID, err)
	}
	out := make([]kb.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, kb.Document{
			ID:         r.ID,
			KBID:       r.KBID,
			Title:      r.Title,
			ContentRef: r.FilePath,
			Abstract:   abstractFromMetadata(r.Metadata),
			Processed:  true,
		})
	}
	return out, nil
}

// abstractFromMetadata lifts the abstract (or summary) out of the metadata
// JSON written by the admin pipeline. Malformed metadata is ignored.
func abstractFromMetadata(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var meta struct {
		Abstract string `json:"abstract"`
		Summary  string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return ""
	}
	if meta.Abstract != "" {
		return meta.Abstract
	}
	return meta.Summary
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, rec kb.UsageRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_usage (timestamp, provider, model, prompt_tokens, completion_tokens, total_tokens, question, response_length)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Format(time.RFC3339), rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.Question, rec.ResponseLength)
	if err != nil {
		return fmt.Errorf("record llm usage: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
