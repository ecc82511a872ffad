package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ragreader/internal/domain"
)

// Store persists one embedding record per document identity.
type Store interface {
	// Load returns the record for docID. found is false when no record exists.
	Load(ctx context.Context, docID string) (vectors []domain.Vector, found bool, err error)
	// Save publishes the full record for docID atomically.
	Save(ctx context.Context, docID string, vectors []domain.Vector) error
}

// Deleter is implemented by stores that can drop a record.
type Deleter interface {
	Delete(ctx context.Context, docID string) error
}

// DirName is the namespace directory for records under the cache root.
const DirName = "embeddings"

const maxKeyLen = 200

var (
	safeKeyRe   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	unsafeRunRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// FileStore keeps each record as a JSON array of arrays of floats in
// <root>/embeddings/<key>.json.
type FileStore struct {
	dir string
}

func NewFileStore(cacheRoot string) *FileStore {
	return &FileStore{dir: filepath.Join(cacheRoot, DirName)}
}

// Dir returns the directory records are written to.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the record path for docID.
func (s *FileStore) Path(docID string) string {
	return filepath.Join(s.dir, RecordKey(docID)+".json")
}

// RecordKey maps a document identity to a file name stem. Identities made of
// portable file name characters are used as-is; anything else is sanitized
// and suffixed with a short hash of the identity so distinct identities never
// share a record.
func RecordKey(docID string) string {
	if safeKeyRe.MatchString(docID) && docID != "." && docID != ".." && len(docID) <= maxKeyLen {
		return docID
	}
	sum := sha1.Sum([]byte(docID))
	clean := strings.Trim(unsafeRunRe.ReplaceAllString(docID, "_"), "._")
	if len(clean) > maxKeyLen {
		clean = clean[:maxKeyLen]
	}
	if clean == "" {
		clean = "doc"
	}
	return clean + "-" + hex.EncodeToString(sum[:4])
}

func (s *FileStore) Load(ctx context.Context, docID string) ([]domain.Vector, bool, error) {
	path := s.Path(docID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &domain.CachePersistenceError{Op: "read", Path: path, Err: err}
	}
	var vectors []domain.Vector
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, false, &domain.CachePersistenceError{Op: "decode", Path: path, Err: err}
	}
	if vectors == nil {
		// A "null" record is not a valid empty document.
		return nil, false, &domain.CachePersistenceError{Op: "decode", Path: path, Err: errors.New("record is not an array")}
	}
	return vectors, true, nil
}

// Save writes to a temporary file in the record directory and renames it into
// place, so a reader never observes a partial record.
func (s *FileStore) Save(ctx context.Context, docID string, vectors []domain.Vector) error {
	path := s.Path(docID)
	if vectors == nil {
		vectors = []domain.Vector{}
	}
	data, err := json.Marshal(vectors)
	if err != nil {
		return &domain.CachePersistenceError{Op: "encode", Path: path, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &domain.CachePersistenceError{Op: "mkdir", Path: s.dir, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &domain.CachePersistenceError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &domain.CachePersistenceError{Op: op, Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &domain.CachePersistenceError{Op: "write", Path: path, Err: err}
	}
	// Abandoned callers must not publish.
	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &domain.CachePersistenceError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, docID string) error {
	path := s.Path(docID)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &domain.CachePersistenceError{Op: "delete", Path: path, Err: err}
	}
	return nil
}
