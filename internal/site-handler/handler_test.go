package sitehandler

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"content-pool/internal/logging"
	"content-pool/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h *Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.CreateSiteHandler().ServeHTTP(rec, req)
	return rec
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 2, nil)
	h := NewHandler(f.dispatcher, nil)

	rec := serve(t, h, "http://pool.example.net/", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `href="/article-1"`)

	rec = serve(t, h, "http://pool.example.net/article-2", map[string]string{
		"User-Agent":      googleUA,
		"X-Forwarded-For": "198.51.100.7, 10.0.0.1",
	})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "article 2")

	rec = serve(t, h, "http://pool.example.net/robots.txt", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))

	rec = serve(t, h, "http://pool.example.net/?type=sitemap", map[string]string{"X-Forwarded-Proto": "https"})
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<loc>https://pool.example.net/article-1</loc>")

	entries := f.traffic.all()
	require.Len(t, entries, 4)
	assert.Equal(t, "198.51.100.7", entries[1].ClientIP)
	assert.Equal(t, "Googlebot", entries[1].Bot)
	assert.Equal(t, "https://pool.example.net/?type=sitemap", entries[3].URL)
}

func TestHandler_NotFound(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.dispatcher, nil)

	rec := serve(t, h, "http://pool.example.net/missing", nil)
	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "404 Not Found")

	rec = serve(t, h, "http://elsewhere.example.org/", nil)
	assert.Equal(t, 404, rec.Code)
	assert.Len(t, f.traffic.all(), 2)
}

// failingPages 模拟存储故障
type failingPages struct{}

func (failingPages) Get(context.Context, string, string) (*models.SynthesizedPage, error) {
	return nil, errors.New("dial tcp 10.1.2.3:6379: connection refused")
}

func (failingPages) ListPublished(context.Context, string, int) ([]models.PageSummary, error) {
	return nil, errors.New("dial tcp 10.1.2.3:6379: connection refused")
}

func (failingPages) RecordHit(context.Context, *models.SynthesizedPage, bool, time.Time) error {
	return nil
}

func TestHandler_InternalErrorHidesDetail(t *testing.T) {
	f := newFixture(t)
	logs := &bytes.Buffer{}
	logger := logging.NewLogger(logging.Config{Writer: logs})
	d := NewDispatcher(Options{Domains: f.reg, Pages: failingPages{}, Traffic: f.traffic, Metrics: f.metrics, Logger: logger})
	h := NewHandler(d, logger)

	for _, target := range []string{"http://pool.example.net/", "http://pool.example.net/article-1"} {
		rec := serve(t, h, target, nil)
		assert.Equal(t, 500, rec.Code)
		assert.Equal(t, "Internal Server Error", rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "10.1.2.3")
	}
	assert.Contains(t, logs.String(), "connection refused")

	entries := f.traffic.all()
	require.Len(t, entries, 2)
	assert.Equal(t, 500, entries[0].Status)
	assert.Equal(t, 1, f.metrics.dispatches["index:500"])
}
