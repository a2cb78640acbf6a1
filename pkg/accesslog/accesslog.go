// Package accesslog records requests, auth outcomes and uploads into the
// log file served back by GET /logs.
package accesslog

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Redacted replaces the value of credential-bearing headers.
const Redacted = "[REDACTED]"

var redactedHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
}

// Log is an append-only request log backed by a file.
type Log struct {
	path   string
	logger *logrus.Logger
}

// New creates a log writing to path. JSON records are written when
// jsonFormat is set or the file name ends in ".json".
func New(path string, jsonFormat bool) *Log {
	logger := logrus.New()
	logger.SetOutput(&fileAppender{path: path})
	logger.SetLevel(logrus.InfoLevel)
	if jsonFormat || strings.EqualFold(filepath.Ext(path), ".json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			QuoteEmptyFields: true,
		})
	}
	return &Log{path: path, logger: logger}
}

// Path returns the log file path
func (l *Log) Path() string {
	return l.path
}

// Request records an incoming request with credential headers redacted.
func (l *Log) Request(clientAddr, method, path string, headers http.Header) {
	l.logger.WithFields(logrus.Fields{
		"event":          "request",
		"client_address": clientAddr,
		"method":         method,
		"path":           path,
		"headers":        RedactHeaders(headers),
	}).Info("Request")
}

// Auth records an authentication outcome. Passwords are never logged.
func (l *Log) Auth(clientAddr, user, outcome string) {
	entry := l.logger.WithFields(logrus.Fields{
		"event":          "auth",
		"client_address": clientAddr,
		"outcome":        outcome,
	})
	if user != "" {
		entry = entry.WithField("user", user)
	}
	if outcome == "authenticated" {
		entry.Info("Successful login")
		return
	}
	entry.Warn("Failed login attempt")
}

// Upload records a stored upload.
func (l *Log) Upload(clientAddr, original, stored string, size int) {
	l.logger.WithFields(logrus.Fields{
		"event":          "upload",
		"client_address": clientAddr,
		"original":       original,
		"stored":         stored,
		"size":           size,
	}).Info("File uploaded")
}

// Read returns the log contents. A log that was never written yields an
// empty result.
func (l *Log) Read() ([]byte, error) {
	b, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read access log: %w", err)
	}
	return b, nil
}

// Clear removes the log file and reports whether it existed.
func Clear(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove log file: %w", err)
	}
	return true, nil
}

// RedactHeaders flattens headers into a name -> value map, joining repeated
// values with ", " and hiding credentials.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		canonical := http.CanonicalHeaderKey(name)
		if redactedHeaders[canonical] {
			out[canonical] = Redacted
			continue
		}
		out[canonical] = strings.Join(values, ", ")
	}
	return out
}

// fileAppender opens the file for every write so a removed log is
// recreated on the next record.
type fileAppender struct {
	mu   sync.Mutex
	path string
}

func (a *fileAppender) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
