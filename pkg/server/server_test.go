package server_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l0n3m4n/exposerver/pkg/config"
	"github.com/l0n3m4n/exposerver/pkg/metadata"
	"github.com/l0n3m4n/exposerver/pkg/server"
)

const (
	testUser     = "admin"
	testPassword = "s3cr3t"
	testTemplate = `<html><h1>{directory_path}</h1><table id="file-list"><tbody>{file_list}</tbody></table></html>`
)

var fixedClock = func() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
}

type fixture struct {
	root   string
	assets string
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	assets := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(assets, "ui"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "ui", "index.html"), []byte(testTemplate), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "ui", "style.css"), []byte("body{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "ui", "main.js"), []byte("void 0;"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "ui", "logo.bin"), []byte{0, 1, 2}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "secret.txt"), []byte("outside ui"), 0644))

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("0123456789"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "inner.md"), []byte("# hi"), 0644))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			BindAddress:    "127.0.0.1",
			Directory:      root,
			UploadDir:      filepath.Join(root, "upload"),
			AssetsDir:      assets,
			MaxUploadBytes: 1 << 20,
		},
		Telemetry: config.TelemetryConfig{
			Enabled: false,
		},
		Log: config.LogConfig{
			Level: "info",
			File:  filepath.Join(root, "headers.log"),
		},
	}
	return &fixture{root: root, assets: assets, cfg: cfg}
}

func (f *fixture) withAuth() *fixture {
	f.cfg.Auth = config.AuthConfig{Username: testUser, Password: testPassword}
	return f
}

func setupTestServer(t *testing.T, f *fixture) *server.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := server.New(f.cfg, logger,
		server.WithClock(fixedClock),
		server.WithExtractor(metadata.NewEmbedded(logger)),
	)
	require.NoError(t, err, "Failed to create server")
	return srv
}

func createAuthenticatedRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(testUser, testPassword)
	return req, nil
}

func serve(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, srv *server.Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return serve(srv, req)
}

func multipartBody(boundary, filename, content string) []byte {
	return []byte("--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="file"; filename="` + filename + "\"\r\n" +
		"Content-Type: application/octet-stream\r\n\r\n" +
		content + "\r\n" +
		"--" + boundary + "--\r\n")
}

func uploadRequest(t *testing.T, body []byte, contentType string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestNew_RequiresTemplate(t *testing.T) {
	f := newFixture(t)
	f.cfg.Server.AssetsDir = t.TempDir()

	_, err := server.New(f.cfg, logrus.New())
	assert.Error(t, err)
}

func TestHandleUpload_Success(t *testing.T) {
	f := newFixture(t)
	srv := setupTestServer(t, f)

	rr := serve(srv, uploadRequest(t, multipartBody("B", "x.txt", "hello"), "multipart/form-data; boundary=B"))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "File 'x.txt' uploaded and saved as '20240101000000_x.txt'.\n", rr.Body.String())

	stored, err := os.ReadFile(filepath.Join(f.root, "upload", "20240101000000_x.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), stored)

	logs := get(t, srv, "/logs")
	assert.Contains(t, logs.Body.String(), "20240101000000_x.txt")
}

func TestHandleUpload_SanitizesFilename(t *testing.T) {
	f := newFixture(t)
	srv := setupTestServer(t, f)

	rr := serve(srv, uploadRequest(t, multipartBody("B", "../../evil.sh", "#!/bin/sh"), "multipart/form-data; boundary=B"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.FileExists(t, filepath.Join(f.root, "upload", "20240101000000_evil.sh"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(f.root), "evil.sh"))
}

func TestHandleUpload_LongFilename(t *testing.T) {
	f := newFixture(t)
	srv := setupTestServer(t, f)

	original := strings.Repeat("a", 246) + ".txt"
	rr := serve(srv, uploadRequest(t, multipartBody("B", original, "hello"), "multipart/form-data; boundary=B"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	entries, err := os.ReadDir(filepath.Join(f.root, "upload"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name := entries[0].Name()
	assert.LessOrEqual(t, len(name), 255)
	assert.True(t, strings.HasPrefix(name, "20240101000000_"))
	assert.Equal(t, ".txt", filepath.Ext(name))
	assert.Contains(t, rr.Body.String(), "saved as '"+name+"'")

	stored, err := os.ReadFile(filepath.Join(f.root, "upload", name))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), stored)
}

func TestHandleUpload_BadRequests(t *testing.T) {
	f := newFixture(t)
	srv := setupTestServer(t, f)

	noFilename := []byte("--B\r\nContent-Disposition: form-data; name=\"field\"\r\n\r\nvalue\r\n--B--\r\n")
	tooLarge := multipartBody("B", "big.bin", strings.Repeat("A", 2<<20))

	testCases := []struct {
		name        string
		body        []byte
		contentType string
		contains    string
	}{
		{"not multipart", []byte("x"), "application/json", "multipart/form-data"},
		{"no boundary", []byte("x"), "multipart/form-data", "boundary"},
		{"empty body", nil, "multipart/form-data; boundary=B", "content length is 0"},
		{"no file part", noFilename, "multipart/form-data; boundary=B", "malformed upload"},
		{"too large", tooLarge, "multipart/form-data; boundary=B", "size limit"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(srv, uploadRequest(t, tc.body, tc.contentType))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.True(t, strings.HasPrefix(rr.Body.String(), "Bad Request: "), rr.Body.String())
			assert.Contains(t, rr.Body.String(), tc.contains)
		})
	}
}

func TestFallback_Methods(t *testing.T) {
	srv := setupTestServer(t, newFixture(t))

	req, err := http.NewRequest(http.MethodPost, "/elsewhere", strings.NewReader("x"))
	require.NoError(t, err)
	rr := serve(srv, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "404 Not Found.\n", rr.Body.String())

	req, err = http.NewRequest(http.MethodDelete, "/notes.txt", nil)
	require.NoError(t, err)
	rr = serve(srv, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAuth(t *testing.T) {
	f := newFixture(t).withAuth()
	srv := setupTestServer(t, f)

	wrong := func(r *http.Request) { r.SetBasicAuth(testUser, "nope") }
	bearer := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+testPassword) }
	noColon := func(r *http.Request) {
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(testUser)))
	}
	none := func(r *http.Request) {}

	for name, mutate := range map[string]func(*http.Request){
		"no header":      none,
		"wrong password": wrong,
		"bearer scheme":  bearer,
		"missing colon":  noColon,
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			mutate(req)

			rr := serve(srv, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, `Basic realm="ExpoServer"`, rr.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "Unauthorized", rr.Body.String())
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		req, err := createAuthenticatedRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		rr := serve(srv, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("upload requires credentials", func(t *testing.T) {
		rr := serve(srv, uploadRequest(t, multipartBody("B", "x.txt", "hello"), "multipart/form-data; boundary=B"))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NoFileExists(t, filepath.Join(f.root, "upload", "20240101000000_x.txt"))
	})

	t.Run("rejected requests are not request-logged", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/notes.txt?secret=1", nil)
		require.NoError(t, err)
		rr := serve(srv, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)

		logs, err := os.ReadFile(f.cfg.Log.File)
		require.NoError(t, err)
		assert.Contains(t, string(logs), "Failed login attempt")
		assert.NotContains(t, string(logs), "secret=1")
	})

	t.Run("password never logged", func(t *testing.T) {
		req, err := createAuthenticatedRequest(http.MethodGet, "/logs", nil)
		require.NoError(t, err)
		rr := serve(srv, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Failed login attempt")
		assert.NotContains(t, rr.Body.String(), testPassword)
		assert.NotContains(t, rr.Body.String(), base64.StdEncoding.EncodeToString([]byte(testUser+":"+testPassword)))
	})
}

func TestSingleFileMode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "payload.txt"), []byte("PAYLOAD"), 0644))
	f.cfg.Server.SingleFile = "payload.txt"
	srv := setupTestServer(t, f)

	for _, path := range []string{"/", "/payload.txt"} {
		rr := get(t, srv, path)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "PAYLOAD", rr.Body.String(), path)
	}

	for _, path := range []string{"/notes.txt", "/logs", "/sub/", "/metadata?file=notes.txt"} {
		rr := get(t, srv, path)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.Equal(t, "Not Found", rr.Body.String(), path)
	}

	require.NoError(t, os.Remove(filepath.Join(f.root, "payload.txt")))
	rr := get(t, srv, "/")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "File not found", rr.Body.String())

	// uploads stay available
	rr = serve(srv, uploadRequest(t, multipartBody("B", "x.txt", "hello"), "multipart/form-data; boundary=B"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleLogs(t *testing.T) {
	f := newFixture(t)
	srv := setupTestServer(t, f)

	rr := get(t, srv, "/logs")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())

	head, err := http.NewRequest(http.MethodHead, "/logs", nil)
	require.NoError(t, err)
	rr = serve(srv, head)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))

	req, err := http.NewRequest(http.MethodGet, "/notes.txt", nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "session=abc123")
	req.Header.Set("X-Custom", "custom-value")
	serve(srv, req)

	rr = get(t, srv, "/logs")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "/notes.txt")
	assert.Contains(t, body, "custom-value")
	assert.Contains(t, body, "[REDACTED]")
	assert.NotContains(t, body, "abc123")
	assert.NotContains(t, body, "path=/logs")
}

func TestHandleMetadata(t *testing.T) {
	f := newFixture(t)
	srv := setupTestServer(t, f)

	t.Run("missing parameter", func(t *testing.T) {
		rr := get(t, srv, "/metadata")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "File parameter is missing", rr.Body.String())
	})

	t.Run("traversal", func(t *testing.T) {
		rr := get(t, srv, "/metadata?file=../../../etc/passwd")
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("nonexistent", func(t *testing.T) {
		rr := get(t, srv, "/metadata?file=nope.jpg")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "File not found", rr.Body.String())
	})

	t.Run("no metadata", func(t *testing.T) {
		for _, q := range []string{"notes.txt", "/notes.txt", "sub/inner.md"} {
			rr := get(t, srv, "/metadata?file="+q)
			require.Equal(t, http.StatusOK, rr.Code, q)
			assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

			var record map[string]interface{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &record))
			assert.Empty(t, record)
		}
	})
}

func TestHandleAsset(t *testing.T) {
	srv := setupTestServer(t, newFixture(t))

	testCases := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/assets/ui/style.css", http.StatusOK, "text/css"},
		{"/assets/ui/main.js", http.StatusOK, "application/javascript"},
		{"/assets/ui/index.html", http.StatusOK, "text/html"},
		{"/assets/ui/logo.bin", http.StatusOK, "application/octet-stream"},
		{"/assets/ui/missing.css", http.StatusNotFound, ""},
		{"/assets/ui/../secret.txt", http.StatusForbidden, ""},
		{"/assets/ui/../../../etc/passwd", http.StatusForbidden, ""},
	}

	for _, tc := range testCases {
		rr := get(t, srv, tc.path)
		assert.Equal(t, tc.status, rr.Code, tc.path)
		if tc.contentType != "" {
			assert.Equal(t, tc.contentType, rr.Header().Get("Content-Type"), tc.path)
		}
	}
}

func TestDirectoryListing(t *testing.T) {
	srv := setupTestServer(t, newFixture(t))

	t.Run("root", func(t *testing.T) {
		rr := get(t, srv, "/")
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, "<h1>/</h1>")
		assert.Contains(t, body, `href="notes.txt"`)
		assert.Contains(t, body, `href="sub/"`)
		assert.Contains(t, body, "10.00 B")
		assert.NotContains(t, body, `href=".."`)
	})

	t.Run("subdirectory", func(t *testing.T) {
		rr := get(t, srv, "/sub/")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `href=".."`)
		assert.Contains(t, rr.Body.String(), "icon-markdown")
	})

	t.Run("redirects to trailing slash", func(t *testing.T) {
		rr := get(t, srv, "/sub")
		assert.Equal(t, http.StatusMovedPermanently, rr.Code)
		assert.Equal(t, "/sub/", rr.Header().Get("Location"))
	})

	t.Run("missing", func(t *testing.T) {
		rr := get(t, srv, "/nope/")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("traversal", func(t *testing.T) {
		rr := get(t, srv, "/../../etc/passwd")
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestStaticFile(t *testing.T) {
	srv := setupTestServer(t, newFixture(t))

	rr := get(t, srv, "/notes.txt")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0123456789", rr.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, "/notes.txt", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-4")
	rr = serve(srv, req)
	assert.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "234", rr.Body.String())

	req, err = http.NewRequest(http.MethodHead, "/notes.txt", nil)
	require.NoError(t, err)
	rr = serve(srv, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("Content-Length"))
}
