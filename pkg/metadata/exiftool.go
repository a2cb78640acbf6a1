package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/l0n3m4n/exposerver/internal/models"
	"github.com/l0n3m4n/exposerver/pkg/telemetry"
)

// ExifTool runs the exiftool binary and decodes its JSON output.
type ExifTool struct {
	bin    string
	logger *logrus.Logger
	tracer trace.Tracer
}

// NewExifTool creates an extractor backed by the binary at bin.
func NewExifTool(bin string, logger *logrus.Logger) *ExifTool {
	return &ExifTool{
		bin:    bin,
		logger: logger,
		tracer: otel.Tracer(telemetry.ServiceName),
	}
}

// Name returns the extractor name
func (x *ExifTool) Name() string {
	return "exiftool"
}

// Extract runs `exiftool -json path` and returns the first record.
func (x *ExifTool) Extract(ctx context.Context, path string) (models.MetadataRecord, error) {
	ctx, span := x.tracer.Start(ctx, "exiftool_extract")
	defer span.End()

	span.SetAttributes(attribute.String("path", path))

	if err := checkExists(path); err != nil {
		span.RecordError(err)
		return nil, err
	}

	x.logger.Infof("Extracting metadata using ExifTool for %s", path)

	cmd := exec.CommandContext(ctx, x.bin, "-json", path)
	cmd.Env = []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
	}

	// Capture stdout and stderr
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		span.RecordError(err)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			x.logger.Debugf("exiftool exited with code %d", exitErr.ExitCode())
		}
		return nil, &ExtractionError{
			Tool:   x.Name(),
			Path:   path,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}

	record, err := decodeExifToolJSON(stdout.Bytes())
	if err != nil {
		span.RecordError(err)
		return nil, &ExtractionError{Tool: x.Name(), Path: path, Err: err}
	}

	if len(record) == 0 {
		x.logger.Infof("No metadata found using ExifTool for %s", path)
	} else {
		x.logger.Debugf("Found %d tags using ExifTool for %s", len(record), path)
	}
	span.SetAttributes(attribute.Int("tags", len(record)))
	return record, nil
}

// decodeExifToolJSON returns the first object of exiftool's JSON array output.
func decodeExifToolJSON(out []byte) (models.MetadataRecord, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return models.MetadataRecord{}, nil
	}
	var records []models.MetadataRecord
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode exiftool output: %w", err)
	}
	if len(records) == 0 || records[0] == nil {
		return models.MetadataRecord{}, nil
	}
	return records[0], nil
}
