package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Middleware())
	engine.GET("/logs", func(c *gin.Context) { c.String(http.StatusOK, "") })
	engine.NoRoute(func(c *gin.Context) { c.String(http.StatusNotFound, "nope") })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/logs", "200"))
	beforeOther := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/*", "404"))

	for _, path := range []string{"/logs", "/some/file.txt"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		engine.ServeHTTP(w, req)
	}

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/logs", "200")))
	assert.Equal(t, beforeOther+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/*", "404")))
}

func TestHandler(t *testing.T) {
	UploadsTotal.WithLabelValues("success").Inc()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "exposerver_uploads_total"))
}
