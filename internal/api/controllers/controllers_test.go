package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"content-pool/internal/config"
	"content-pool/internal/generator"
	"content-pool/internal/logging"
	"content-pool/internal/models"
	"content-pool/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Writer: &bytes.Buffer{}})
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// ---- regenerate ----

type fakeGenerator struct {
	lastDomain string
	lastCount  int
	lastTheme  string
	err        error
	all        []generator.DomainResult
}

func (f *fakeGenerator) Regenerate(_ context.Context, domain string, pageCount int, theme string) (*generator.Result, error) {
	f.lastDomain, f.lastCount, f.lastTheme = domain, pageCount, theme
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Result{Domain: domain, Generation: "g2", PreviousGeneration: "g1", PagesWritten: pageCount, Theme: theme, Duration: time.Second}, nil
}

func (f *fakeGenerator) RegenerateAll(_ context.Context, pageCount int, theme string) ([]generator.DomainResult, error) {
	f.lastCount, f.lastTheme = pageCount, theme
	return f.all, f.err
}

func regenerateRouter(gen *fakeGenerator) *gin.Engine {
	c := NewRegenerateController(gen, config.GeneratorConfig{DefaultPageCount: 100, DefaultTheme: "general"}, quietLogger())
	r := gin.New()
	r.POST("/regenerate", c.Regenerate)
	return r
}

func TestRegenerate_Defaults(t *testing.T) {
	gen := &fakeGenerator{}
	rec, env := call(t, regenerateRouter(gen), "POST", "/regenerate", `{"domain":"a.example.com"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.example.com", gen.lastDomain)
	assert.Equal(t, 100, gen.lastCount)
	assert.Equal(t, "general", gen.lastTheme)

	var item regenerateItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "g2", item.Generation)
	assert.Equal(t, 100, item.PagesWritten)
	assert.Equal(t, int64(1000), item.DurationMs)
}

func TestRegenerate_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: page count", models.ErrInvalidArgument), http.StatusBadRequest},
		{models.ErrDomainNotFound, http.StatusNotFound},
		{models.ErrRegenerationInProgress, http.StatusConflict},
		{fmt.Errorf("%w: 3 < 20", models.ErrContentInsufficient), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec, env := call(t, regenerateRouter(&fakeGenerator{err: tc.err}), "POST", "/regenerate", `{"domain":"a.example.com","page_count":5}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.status, env.Code)
	}

	_, env := call(t, regenerateRouter(&fakeGenerator{err: errors.New("dial tcp 10.0.0.3:5432")}), "POST", "/regenerate", `{"domain":"a.example.com"}`)
	assert.NotContains(t, env.Message, "10.0.0.3")
}

func TestRegenerate_StorageErrorReportsPagesWritten(t *testing.T) {
	storageErr := &models.StorageError{Domain: "a.example.com", Written: 37, Err: errors.New("connection reset")}
	rec, env := call(t, regenerateRouter(&fakeGenerator{err: storageErr}), "POST", "/regenerate", `{"domain":"a.example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"pages_written":37}`, string(env.Data))
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestRegenerate_All(t *testing.T) {
	gen := &fakeGenerator{all: []generator.DomainResult{
		{Domain: "a.example.com", Result: &generator.Result{Domain: "a.example.com", Generation: "g2", PagesWritten: 10}},
		{Domain: "b.example.com", Err: models.ErrRegenerationInProgress},
	}}
	rec, env := call(t, regenerateRouter(gen), "POST", "/regenerate", `{"domain":"all","page_count":10,"theme":"tech"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tech", gen.lastTheme)

	var data struct {
		Results      []regenerateItem `json:"results"`
		Succeeded    int              `json:"succeeded"`
		Failed       int              `json:"failed"`
		PagesWritten int              `json:"pages_written"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Succeeded)
	assert.Equal(t, 1, data.Failed)
	assert.Equal(t, 10, data.PagesWritten)
	require.Len(t, data.Results, 2)
	assert.NotEmpty(t, data.Results[1].Error)
}

func TestRegenerate_BadBody(t *testing.T) {
	rec, _ := call(t, regenerateRouter(&fakeGenerator{}), "POST", "/regenerate", `{"page_count":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- sources ----

type fakeSources struct {
	items map[string]*models.ContentSource
}

func (f *fakeSources) Upsert(_ context.Context, src *models.ContentSource) (*models.ContentSource, error) {
	if strings.TrimSpace(src.Name) == "" {
		return nil, fmt.Errorf("%w: source name is required", models.ErrInvalidArgument)
	}
	cp := *src
	cp.ID = "id-" + src.Name
	cp.Active = true
	f.items[src.Name] = &cp
	return &cp, nil
}

func (f *fakeSources) Deactivate(_ context.Context, name string) error {
	src, ok := f.items[name]
	if !ok {
		return fmt.Errorf("source %s: %w", name, models.ErrNotFound)
	}
	src.Active = false
	return nil
}

func (f *fakeSources) List(context.Context) ([]models.ContentSource, error) {
	out := make([]models.ContentSource, 0, len(f.items))
	for _, s := range f.items {
		out = append(out, *s)
	}
	return out, nil
}

func TestSources(t *testing.T) {
	store := &fakeSources{items: map[string]*models.ContentSource{}}
	c := NewSourcesController(store, quietLogger())
	r := gin.New()
	r.GET("/sources", c.List)
	r.POST("/sources", c.Upsert)
	r.DELETE("/sources/:name", c.Deactivate)

	rec, env := call(t, r, "POST", "/sources", `{"name":"news","paragraphs":["a","b"],"headings":["h"],"keywords":["k1","k2","k3"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved sourceSummary
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Equal(t, 2, saved.Paragraphs)
	assert.Equal(t, 3, saved.Keywords)

	rec, _ = call(t, r, "POST", "/sources", `{"name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, r, "DELETE", "/sources/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, r, "DELETE", "/sources/news", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	_, env = call(t, r, "GET", "/sources", "")
	var list struct {
		Items  []sourceSummary `json:"items"`
		Total  int             `json:"total"`
		Active int             `json:"active"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 0, list.Active)
	assert.NotContains(t, string(env.Data), `"a"`)
}

// ---- traffic ----

type fakeTraffic struct {
	start, end time.Time
	logs       []models.AccessLogEntry
	bots       map[string]int64
}

func (f *fakeTraffic) Query(_ context.Context, domain string, start, end time.Time, page, pageSize int) ([]models.AccessLogEntry, int64, error) {
	f.start, f.end = start, end
	return f.logs, int64(len(f.logs)), nil
}

func (f *fakeTraffic) Stats(_ context.Context, domain string, start, end time.Time, topN int) (*logging.TrafficStats, error) {
	return &logging.TrafficStats{Domain: domain, Total: int64(len(f.logs))}, nil
}

func (f *fakeTraffic) BotBreakdown(context.Context, string, time.Time, time.Time) (map[string]int64, error) {
	return f.bots, nil
}

type fakeDirectory struct{}

func (fakeDirectory) Lookup(_ context.Context, host string) (*models.DomainRecord, error) {
	if host != "a.example.com" {
		return nil, models.ErrDomainNotFound
	}
	return &models.DomainRecord{Hostname: host, Status: models.DomainStatusActive}, nil
}

func (fakeDirectory) List(context.Context) ([]models.DomainRecord, error) {
	return []models.DomainRecord{{Hostname: "a.example.com"}}, nil
}

type fakePageStats struct{}

func (fakePageStats) DomainStats(_ context.Context, domain string) (*models.DomainStats, error) {
	return &models.DomainStats{Domain: domain, Visits: 12}, nil
}

func (fakePageStats) PageStats(context.Context, string) ([]models.PageStats, error) {
	return []models.PageStats{
		{Slug: "first", Title: "First", Views: 9, CrawlerVisits: 4},
		{Slug: "second", Title: "Second", Views: 3},
	}, nil
}

func (fakePageStats) Count(context.Context, string) (int64, error) { return 2, nil }

func trafficRouter(traffic *fakeTraffic, now time.Time) *gin.Engine {
	c := NewTrafficController(traffic, fakeDirectory{}, fakePageStats{}, utils.NewManualClock(now), quietLogger())
	r := gin.New()
	r.GET("/traffic/logs", c.GetLogs)
	r.GET("/traffic/stats", c.GetStats)
	r.GET("/traffic/export", c.Export)
	r.GET("/domains", c.ListDomains)
	r.GET("/domains/:host/stats", c.GetDomainStats)
	return r
}

func TestTraffic_WindowDefaultsAndValidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	traffic := &fakeTraffic{logs: []models.AccessLogEntry{{Domain: "a.example.com", Status: 200}}}
	r := trafficRouter(traffic, now)

	rec, env := call(t, r, "GET", "/traffic/logs?domain=a.example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, now.Add(-24*time.Hour), traffic.start)
	assert.Equal(t, now, traffic.end)
	assert.Contains(t, string(env.Data), `"total":1`)

	rec, _ = call(t, r, "GET", "/traffic/stats?start=2026-03-01T10:00:00Z&end=2026-03-01T09:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, r, "GET", "/traffic/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTraffic_DomainStats(t *testing.T) {
	r := trafficRouter(&fakeTraffic{}, time.Now())

	rec, env := call(t, r, "GET", "/domains/a.example.com/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"visits":12`)
	assert.Contains(t, string(env.Data), `"slug":"first"`)

	rec, _ = call(t, r, "GET", "/domains/nobody.example.com/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = call(t, r, "GET", "/domains", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestTraffic_Export(t *testing.T) {
	traffic := &fakeTraffic{bots: map[string]int64{"Googlebot": 7, "Bingbot": 2}}
	r := trafficRouter(traffic, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	rec, _ := call(t, r, "GET", "/traffic/export", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, r, "GET", "/traffic/export?domain=a.example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "a.example.com-20260301.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	pages, err := f.GetRows(pagesSheet)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []string{"first", "First", "9", "4"}, pages[1][:4])

	bots, err := f.GetRows(botsSheet)
	require.NoError(t, err)
	require.Len(t, bots, 3)
	assert.Equal(t, []string{"Googlebot", "7"}, bots[1])
	assert.Equal(t, []string{"Bingbot", "2"}, bots[2])
}

// ---- system ----

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	r := gin.New()
	r.GET("/health", NewSystemController(map[string]HealthCheck{"redis": ok, "database": ok}, nil, nil, "test").Health)
	rec, env := call(t, r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"redis":"connected"`)

	r = gin.New()
	r.GET("/health", NewSystemController(map[string]HealthCheck{"redis": down, "database": ok}, nil, nil, "test").Health)
	rec, env = call(t, r, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, string(env.Data), `"redis":"disconnected"`)
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestSystem(t *testing.T) {
	r := gin.New()
	r.GET("/system", NewSystemController(nil, nil, nil, "test").System)
	rec, env := call(t, r, "GET", "/system", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"goroutines"`)
	assert.Contains(t, string(env.Data), `"tasks":[]`)
}
