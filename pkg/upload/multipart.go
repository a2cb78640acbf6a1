package upload

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/l0n3m4n/exposerver/internal/models"
)

var (
	// ErrMalformedUpload is wrapped by every body parsing failure.
	ErrMalformedUpload = errors.New("malformed upload")
	// ErrNotMultipart is returned when the request is not multipart/form-data.
	ErrNotMultipart = errors.New("expected multipart/form-data")
	// ErrNoBoundary is returned when the Content-Type carries no boundary.
	ErrNoBoundary = errors.New("no boundary found in Content-Type")
	// ErrEmptyBody is returned for uploads without a body.
	ErrEmptyBody = errors.New("content length is 0")
)

var (
	dispositionMarker = []byte("Content-Disposition: form-data;")
	filenameMarker    = []byte("filename=")
	headerSeparator   = []byte("\r\n\r\n")
	crlf              = []byte("\r\n")

	filenamePattern = regexp.MustCompile(`filename="([^"]+)"`)
	boundaryPattern = regexp.MustCompile(`boundary=([^;]+)`)
)

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedUpload, reason)
}

// Parse extracts the first file-bearing part of a multipart/form-data body.
// It is a best-effort extractor for single-file browser uploads, not a
// general multipart decoder: other fields and further files are ignored.
func Parse(body, boundary []byte) (models.UploadedFile, error) {
	if len(boundary) == 0 {
		return models.UploadedFile{}, malformed("empty boundary")
	}

	delimiter := append([]byte("--"), boundary...)
	var part []byte
	for _, p := range bytes.Split(body, delimiter) {
		if bytes.Contains(p, dispositionMarker) && bytes.Contains(p, filenameMarker) {
			part = p
			break
		}
	}
	if part == nil {
		return models.UploadedFile{}, malformed("no file part")
	}

	headersEnd := bytes.Index(part, headerSeparator)
	if headersEnd == -1 {
		return models.UploadedFile{}, malformed("missing separator")
	}
	headers := part[:headersEnd]

	m := filenamePattern.FindSubmatch(headers)
	if m == nil {
		return models.UploadedFile{}, malformed("missing filename")
	}
	filename := strings.ToValidUTF8(string(m[1]), "\uFFFD")

	content := part[headersEnd+len(headerSeparator):]
	content = bytes.TrimSuffix(content, crlf)

	return models.UploadedFile{
		Filename: filename,
		Content:  content,
	}, nil
}

// BoundaryFromContentType returns the boundary token of a multipart/form-data
// Content-Type header value.
func BoundaryFromContentType(contentType string) (string, error) {
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		return "", ErrNotMultipart
	}
	m := boundaryPattern.FindStringSubmatch(contentType)
	if m == nil {
		return "", ErrNoBoundary
	}
	boundary := strings.Trim(strings.TrimSpace(m[1]), `"`)
	if boundary == "" {
		return "", ErrNoBoundary
	}
	return boundary, nil
}
