package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/l0n3m4n/exposerver/internal/models"
	"github.com/l0n3m4n/exposerver/pkg/pathguard"
)

// TimestampLayout prefixes stored upload names (YYYYMMDDHHMMSS).
const TimestampLayout = "20060102150405"

// Store persists uploaded files into a single directory.
//
// Stored names are "{timestamp}_{original name}" at second granularity, so two
// uploads with the same name in the same second overwrite each other.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates the upload directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// WithClock replaces the time source used for name prefixes.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Dir returns the upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// maxOriginalLen leaves room for the timestamp prefix within NAME_MAX.
const maxOriginalLen = pathguard.MaxNameLen - len(TimestampLayout) - 1

// StorageName returns the name an upload of original would be stored under.
func (s *Store) StorageName(original string) string {
	return s.now().Format(TimestampLayout) + "_" + pathguard.SanitizeFilename(original, maxOriginalLen)
}

// Save writes f into the upload directory and returns the generated name.
func (s *Store) Save(f models.UploadedFile) (string, error) {
	name := s.StorageName(f.Filename)
	dst := filepath.Join(s.dir, name)
	if !pathguard.IsSafe(s.dir, dst) {
		return "", pathguard.ErrForbidden
	}
	if err := os.WriteFile(dst, f.Content, 0644); err != nil {
		return "", fmt.Errorf("failed to write upload %s: %w", name, err)
	}
	return name, nil
}
