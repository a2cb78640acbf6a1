package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/l0n3m4n/exposerver/pkg/accesslog"
	"github.com/l0n3m4n/exposerver/pkg/auth"
	"github.com/l0n3m4n/exposerver/pkg/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	logsPath        = "/logs"
)

// requestID tags every request with a fresh id
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ginLogger creates a gin middleware for logging with logrus
func ginLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"status":     statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency":    latency,
			"user_agent": c.Request.UserAgent(),
			"request_id": c.GetString(requestIDKey),
		})

		if raw != "" {
			entry = entry.WithField("query", raw)
		}

		// Log polling is noisy
		if path == logsPath {
			entry.Debug("Request completed")
			return
		}

		// Log based on status code
		if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request completed")
		}
	}
}

// accessLogger writes every request except log retrieval to the access log
func accessLogger(log *accesslog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path != logsPath {
			log.Request(c.ClientIP(), c.Request.Method, c.Request.URL.RequestURI(), c.Request.Header)
		}
		c.Next()
	}
}

// securityHeaders adds hardening and caching headers
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Referrer-Policy", "no-referrer")

		if strings.HasPrefix(c.Request.URL.Path, "/assets/") {
			c.Header("Cache-Control", "public, max-age=3600")
		} else {
			c.Header("Cache-Control", "no-store")
		}

		c.Next()
	}
}

// authMiddleware enforces HTTP Basic credentials on every request
func authMiddleware(gate *auth.Gate, log *accesslog.Log, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, user := gate.Check(c.GetHeader("Authorization"))
		ip := c.ClientIP()

		if result == auth.Authenticated {
			if c.Request.URL.Path != logsPath {
				log.Auth(ip, user, result.String())
			}
			c.Next()
			return
		}

		log.Auth(ip, user, result.String())
		metrics.AuthFailuresTotal.WithLabelValues(result.String()).Inc()
		logger.WithFields(logrus.Fields{
			"ip":     ip,
			"user":   user,
			"result": result.String(),
		}).Warn("Rejected credentials")

		auth.Challenge(c.Writer)
		c.Abort()
	}
}

// singleFileGuard serves only the configured file for GET and HEAD
// requests, on "/" and "/<name>". Other methods fall through to the routes.
func (s *Server) singleFileGuard() gin.HandlerFunc {
	name := s.config.Server.SingleFile
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodGet && method != http.MethodHead {
			c.Next()
			return
		}
		defer c.Abort()

		path := c.Request.URL.Path
		if path != "/" && path != "/"+name {
			c.String(http.StatusNotFound, "Not Found")
			return
		}

		full := filepath.Join(s.config.Server.Directory, name)
		if info, err := os.Stat(full); err != nil || info.IsDir() {
			s.fail(c, http.StatusNotFound, "File not found", err)
			return
		}
		s.serveFile(c, full)
	}
}
