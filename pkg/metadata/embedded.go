package metadata

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	// decoders for DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/l0n3m4n/exposerver/internal/models"
	"github.com/l0n3m4n/exposerver/pkg/telemetry"
)

// Embedded decodes EXIF directly from the file without external tools.
type Embedded struct {
	logger *logrus.Logger
	tracer trace.Tracer
}

// NewEmbedded creates the in-process EXIF extractor.
func NewEmbedded(logger *logrus.Logger) *Embedded {
	return &Embedded{
		logger: logger,
		tracer: otel.Tracer(telemetry.ServiceName),
	}
}

// Name returns the extractor name
func (e *Embedded) Name() string {
	return "embedded"
}

// Extract walks the EXIF tag dictionary of path into a flat record. Files
// without EXIF data yield an empty record.
func (e *Embedded) Extract(ctx context.Context, path string) (models.MetadataRecord, error) {
	_, span := e.tracer.Start(ctx, "embedded_extract")
	defer span.End()

	span.SetAttributes(attribute.String("path", path))

	if err := checkExists(path); err != nil {
		span.RecordError(err)
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		return nil, &ExtractionError{Tool: e.Name(), Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			e.logger.Warnf("Failed to close file %s: %v", path, closeErr)
		}
	}()

	record := models.MetadataRecord{}

	x, err := exif.Decode(f)
	switch {
	case err != nil && (x == nil || exif.IsCriticalError(err)):
		e.logger.Debugf("No EXIF data found for %s: %v", path, err)
	default:
		if err != nil {
			e.logger.Debugf("Partial EXIF data for %s: %v", path, err)
		}
		if walkErr := x.Walk(recordWalker(record)); walkErr != nil {
			span.RecordError(walkErr)
			return nil, &ExtractionError{Tool: e.Name(), Path: path, Err: walkErr}
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err == nil {
		addImageConfig(f, record)
	}

	if len(record) == 0 {
		e.logger.Infof("No metadata found for %s", path)
	}
	span.SetAttributes(attribute.Int("tags", len(record)))
	return record, nil
}

// recordWalker stores every visited tag in the record under its field name.
type recordWalker models.MetadataRecord

func (w recordWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w[string(name)] = tagValue(tag)
	return nil
}

func tagValue(tag *tiff.Tag) string {
	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			return s
		}
	case tiff.UndefVal:
		return decodeBytes(tag.Val)
	}
	return tag.String()
}

// decodeBytes decodes byte-valued tags as UTF-8, dropping invalid sequences.
// When nothing printable survives the raw bytes are quoted instead.
func decodeBytes(b []byte) string {
	s := strings.TrimRight(strings.ToValidUTF8(string(b), ""), "\x00")
	if s == "" && len(b) > 0 {
		return strconv.Quote(string(b))
	}
	return s
}

// addImageConfig adds dimensions and format for decodable images when EXIF
// did not already provide them.
func addImageConfig(r io.Reader, record models.MetadataRecord) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return
	}
	if _, ok := record["ImageWidth"]; !ok {
		record["ImageWidth"] = fmt.Sprintf("%d", cfg.Width)
	}
	if _, ok := record["ImageHeight"]; !ok {
		record["ImageHeight"] = fmt.Sprintf("%d", cfg.Height)
	}
	record["FileType"] = strings.ToUpper(format)
}
