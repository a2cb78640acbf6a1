package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/l0n3m4n/exposerver/internal/models"
	"github.com/l0n3m4n/exposerver/pkg/listing"
	"github.com/l0n3m4n/exposerver/pkg/metadata"
	"github.com/l0n3m4n/exposerver/pkg/metrics"
	"github.com/l0n3m4n/exposerver/pkg/pathguard"
	"github.com/l0n3m4n/exposerver/pkg/telemetry"
	"github.com/l0n3m4n/exposerver/pkg/upload"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

var assetContentTypes = map[string]string{
	".css":  "text/css",
	".js":   "application/javascript",
	".html": "text/html",
}

// handleLogs returns the raw access log
func (s *Server) handleLogs(c *gin.Context) {
	b, err := s.accessLog.Read()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Error reading logs", err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", b)
}

// handleMetadata extracts metadata for ?file=<path> relative to the served root
func (s *Server) handleMetadata(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "metadata")
	defer span.End()

	file := c.Query("file")
	if file == "" {
		s.fail(c, http.StatusBadRequest, "File parameter is missing", nil)
		return
	}
	span.SetAttributes(attribute.String("file", file))

	path, err := pathguard.Join(s.config.Server.Directory, file)
	if err != nil {
		span.RecordError(err)
		s.fail(c, http.StatusForbidden, "Forbidden", err)
		return
	}

	record, err := s.extractor.Extract(ctx, path)
	if err != nil {
		span.RecordError(err)
		metrics.MetadataExtractionsTotal.WithLabelValues(s.extractor.Name(), "failure").Inc()

		status := statusFor(err)
		msg := "Error processing file"
		var extractionErr *metadata.ExtractionError
		switch {
		case status == http.StatusNotFound:
			msg = "File not found"
		case errors.As(err, &extractionErr) && extractionErr.Stderr != "":
			msg = fmt.Sprintf("%s error: %s", extractionErr.Tool, extractionErr.Stderr)
		}
		s.fail(c, status, msg, err)
		return
	}

	metrics.MetadataExtractionsTotal.WithLabelValues(s.extractor.Name(), "success").Inc()
	c.JSON(http.StatusOK, record)
}

// handleAsset serves UI assets from <assets>/ui
func (s *Server) handleAsset(c *gin.Context) {
	uiDir := filepath.Join(s.config.Server.AssetsDir, "ui")
	path, err := pathguard.Join(uiDir, c.Param("filepath"))
	if err != nil {
		s.fail(c, http.StatusForbidden, "Forbidden", err)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.fail(c, http.StatusNotFound, "File not found", err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.fail(c, statusFor(err), "Error reading asset", err)
		return
	}

	contentType, ok := assetContentTypes[filepath.Ext(path)]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// handleUpload stores the first file of a multipart/form-data body
func (s *Server) handleUpload(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "upload")
	defer span.End()

	name, file, err := s.receiveUpload(c)
	if err != nil {
		span.RecordError(err)
		metrics.UploadsTotal.WithLabelValues("failure").Inc()

		status := statusFor(err)
		msg := "Internal Server Error\n"
		if status == http.StatusBadRequest {
			msg = fmt.Sprintf("Bad Request: %v\n", err)
		}
		s.fail(c, status, msg, err)
		return
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadSizeBytes.Observe(float64(len(file.Content)))
	s.accessLog.Upload(c.ClientIP(), file.Filename, name, len(file.Content))
	telemetry.ReportEvent(ctx, "upload_stored", map[string]string{
		"original": file.Filename,
		"stored":   name,
	})
	span.SetAttributes(attribute.String("stored", name), attribute.Int("size", len(file.Content)))

	s.logger.Infof("[POST] %s uploaded file: %s as %s", c.ClientIP(), file.Filename, name)
	c.String(http.StatusOK, "File '%s' uploaded and saved as '%s'.\n", file.Filename, name)
}

func (s *Server) receiveUpload(c *gin.Context) (string, models.UploadedFile, error) {
	boundary, err := upload.BoundaryFromContentType(c.GetHeader("Content-Type"))
	if err != nil {
		return "", models.UploadedFile{}, err
	}
	if c.Request.ContentLength == 0 {
		return "", models.UploadedFile{}, upload.ErrEmptyBody
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Server.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", models.UploadedFile{}, fmt.Errorf("%w: %d bytes", errUploadTooLarge, tooLarge.Limit)
		}
		return "", models.UploadedFile{}, fmt.Errorf("failed to read upload body: %w", err)
	}
	if len(body) == 0 {
		return "", models.UploadedFile{}, upload.ErrEmptyBody
	}

	file, err := upload.Parse(body, []byte(boundary))
	if err != nil {
		return "", models.UploadedFile{}, err
	}
	name, err := s.store.Save(file)
	if err != nil {
		return "", models.UploadedFile{}, err
	}
	return name, file, nil
}

// handleFallback dispatches requests that matched no explicit route
func (s *Server) handleFallback(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead:
		s.serveTree(c)
	case http.MethodPost:
		c.String(http.StatusNotFound, "404 Not Found.\n")
	default:
		c.Header("Allow", "GET, HEAD, POST")
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// serveTree renders a directory listing or streams a file from the served root
func (s *Server) serveTree(c *gin.Context) {
	urlPath := c.Request.URL.Path
	path, err := pathguard.Join(s.config.Server.Directory, urlPath)
	if err != nil {
		s.fail(c, http.StatusForbidden, "Forbidden", err)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			s.fail(c, status, "File not found", err)
		} else {
			s.fail(c, status, "Error serving file", err)
		}
		return
	}

	if !info.IsDir() {
		s.serveFile(c, path)
		return
	}

	// Relative links in the listing need a trailing slash
	if !strings.HasSuffix(urlPath, "/") {
		target := urlPath + "/"
		if c.Request.URL.RawQuery != "" {
			target += "?" + c.Request.URL.RawQuery
		}
		c.Redirect(http.StatusMovedPermanently, target)
		return
	}

	_, span := s.tracer.Start(c.Request.Context(), "listing")
	defer span.End()
	span.SetAttributes(attribute.String("dir", path))

	page, err := s.renderer.Render(path, urlPath)
	if err != nil {
		span.RecordError(err)
		status := statusFor(err)
		msg := "Error listing directory"
		if status == http.StatusNotFound {
			msg = "No such directory"
		} else if errors.Is(err, listing.ErrTemplateMissing) {
			msg = "Listing template missing"
		}
		s.fail(c, status, msg, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// serveFile streams path with range and conditional request support
func (s *Server) serveFile(c *gin.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		s.fail(c, statusFor(err), "File not found", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warnf("Failed to close file %s: %v", path, closeErr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Error serving file", err)
		return
	}

	c.Header("Content-Type", contentTypeFor(path, f))
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

// contentTypeFor uses the extension table and falls back to sniffing the
// content. The reader is rewound afterwards.
func contentTypeFor(path string, rs io.ReadSeeker) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	mt, err := mimetype.DetectReader(rs)
	if _, seekErr := rs.Seek(0, io.SeekStart); seekErr != nil || err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
