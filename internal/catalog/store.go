package catalog

import (
	"context"
	"errors"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
)

// ErrNotFound reports that a requested row does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Store is the read model over the administration database plus the
// append-only usage ledger. The engine never creates or edits knowledge
// bases; that happens in the admin tooling.
type Store interface {
	// ListActiveKBs returns active knowledge bases in id order.
	ListActiveKBs(ctx context.Context) ([]kb.KnowledgeBase, error)
	// GetKB returns one knowledge base by id, active or not.
	GetKB(ctx context.Context, id int64) (kb.KnowledgeBase, error)
	// ListProcessedDocuments returns the processed documents of a knowledge
	// base in id order, with abstracts lifted out of metadata.
	ListProcessedDocuments(ctx context.Context, kbID int64) ([]kb.Document, error)
	// RecordUsage appends one generation accounting row.
	RecordUsage(ctx context.Context, rec kb.UsageRecord) error
	Close() error
}
