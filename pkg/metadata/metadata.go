// Package metadata extracts tag/value metadata from files, preferring the
// exiftool binary and falling back to an embedded EXIF decoder.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/l0n3m4n/exposerver/internal/models"
)

// ExifToolBinary is the external tool looked up on PATH at startup.
const ExifToolBinary = "exiftool"

// ErrNotFound is returned when the target path does not exist.
var ErrNotFound = errors.New("file not found")

// Extractor produces a metadata record for a file
type Extractor interface {
	Name() string
	Extract(ctx context.Context, path string) (models.MetadataRecord, error)
}

// ExtractionError wraps a failure of the underlying tool or decoder.
type ExtractionError struct {
	Tool   string
	Path   string
	Stderr string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed for %s: %v: %s", e.Tool, e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Tool, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// New selects the extractor once: exiftool when it is on PATH, else the
// embedded decoder.
func New(logger *logrus.Logger) Extractor {
	if bin, err := exec.LookPath(ExifToolBinary); err == nil {
		logger.Infof("Using %s for metadata extraction", bin)
		return NewExifTool(bin, logger)
	}
	logger.Warnf("%s not found, falling back to embedded EXIF decoder", ExifToolBinary)
	return NewEmbedded(logger)
}

// checkExists maps a missing path to ErrNotFound.
func checkExists(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
