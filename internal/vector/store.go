package vector

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/kb"
)

// FormatVersion changes whenever the snapshot layout changes. A mismatch
// invalidates the snapshot and forces a rebuild.
const FormatVersion = 1

var (
	// ErrNotFound reports that no snapshot exists for the knowledge base.
	ErrNotFound = errors.New("vector: snapshot not found")
	// ErrCorrupt reports an unreadable or incompatible snapshot.
	ErrCorrupt = errors.New("vector: snapshot corrupt")
)

type snapshot struct {
	Version     int
	KBID        int64
	KBName      string
	KBCategory  string
	DocCount    int
	Passages    []kb.Passage
	Vectors     [][]float32
	BuiltAtUnix int64
}

// FileStore persists index snapshots as gob files, one per knowledge base.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(kbID int64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("kb_%d.idx", kbID))
}

// Save writes the snapshot to a temporary file and renames it into place so
// readers never observe a partial write.
func (s *FileStore) Save(ix *Index) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, fmt.Sprintf("kb_%d_*.tmp", ix.KBID))
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	snap := snapshot{
		Version:     FormatVersion,
		KBID:        ix.KBID,
		KBName:      ix.KBName,
		KBCategory:  ix.KBCategory,
		DocCount:    ix.DocCount,
		Passages:    ix.Passages,
		Vectors:     ix.Vectors,
		BuiltAtUnix: ix.BuiltAt.Unix(),
	}
	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot for kb %d: %w", ix.KBID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush snapshot for kb %d: %w", ix.KBID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(ix.KBID)); err != nil {
		return fmt.Errorf("publish snapshot for kb %d: %w", ix.KBID, err)
	}
	common.Logger().Debug("vector: snapshot saved", "kb", ix.KBID, "passages", len(ix.Passages))
	return nil
}

// Load reads a persisted snapshot. Returns ErrNotFound when absent and
// ErrCorrupt when undecodable or written by another format version.
func (s *FileStore) Load(kbID int64) (*Index, error) {
	f, err := os.Open(s.path(kbID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot for kb %d: %w", kbID, err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: kb %d: %v", ErrCorrupt, kbID, err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("%w: kb %d: format version %d", ErrCorrupt, kbID, snap.Version)
	}
	if len(snap.Passages) != len(snap.Vectors) {
		return nil, fmt.Errorf("%w: kb %d: %d passages vs %d vectors",
			ErrCorrupt, kbID, len(snap.Passages), len(snap.Vectors))
	}
	return &Index{
		KBID:       snap.KBID,
		KBName:     snap.KBName,
		KBCategory: snap.KBCategory,
		DocCount:   snap.DocCount,
		Passages:   snap.Passages,
		Vectors:    snap.Vectors,
		BuiltAt:    timeFromUnix(snap.BuiltAtUnix),
	}, nil
}

func timeFromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Remove deletes a persisted snapshot. Missing snapshots are not an error.
func (s *FileStore) Remove(kbID int64) error {
	err := os.Remove(s.path(kbID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot for kb %d: %w", kbID, err)
	}
	return nil
}
