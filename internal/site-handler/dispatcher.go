package sitehandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"content-pool/internal/config"
	"content-pool/internal/crawler"
	"content-pool/internal/logging"
	"content-pool/internal/models"
	"content-pool/internal/registry"
	"content-pool/internal/utils"
	"content-pool/internal/variant"
)

const (
	// IndexLimit 首页最多列出的页面数
	IndexLimit = 50
	// SitemapLimit 单个sitemap允许的最大URL数
	SitemapLimit = 50000

	pageMaxAge     = time.Hour
	documentMaxAge = 24 * time.Hour
)

// Kind 请求类型
type Kind string

const (
	KindPage    Kind = "page"
	KindIndex   Kind = "index"
	KindSitemap Kind = "sitemap"
	KindRobots  Kind = "robots"
	KindLogo    Kind = "logo"
)

// DomainLookup 域名注册表
type DomainLookup interface {
	LookupActive(ctx context.Context, hostname string) (*models.DomainRecord, error)
}

// PageStore 页面池存储
type PageStore interface {
	Get(ctx context.Context, domain, slug string) (*models.SynthesizedPage, error)
	ListPublished(ctx context.Context, domain string, limit int) ([]models.PageSummary, error)
	RecordHit(ctx context.Context, page *models.SynthesizedPage, bot bool, at time.Time) error
}

// TrafficRecorder 访问日志，Record 不能阻塞
type TrafficRecorder interface {
	Record(entry models.AccessLogEntry)
}

// Metrics 分发指标
type Metrics interface {
	RecordDispatch(kind string, status int, duration time.Duration)
	RecordCrawlerRequest(bot string)
	RecordCounterError()
}

type noopMetrics struct{}

func (noopMetrics) RecordDispatch(string, int, time.Duration) {}
func (noopMetrics) RecordCrawlerRequest(string)               {}
func (noopMetrics) RecordCounterError()                       {}

// Request 一次公开请求
type Request struct {
	Host      string
	Path      string
	Type      string
	RawQuery  string
	Scheme    string
	ClientIP  string
	UserAgent string
	Referer   string
}

// Response 分发结果
type Response struct {
	Kind        Kind
	Status      int
	ContentType string
	MaxAge      time.Duration
	Body        []byte
}

// CacheControl 返回 Cache-Control 头的值
func (r *Response) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d", int(r.MaxAge/time.Second))
}

// Options 分发器依赖
type Options struct {
	Domains    DomainLookup
	Pages      PageStore
	Traffic    TrafficRecorder
	Classifier *crawler.Classifier
	Metrics    Metrics
	Canonical  []config.CanonicalSite
	Scheme     string
	Clock      utils.Clock
	Logger     *logging.Logger
}

// Dispatcher 公开请求分发器
// 每个请求恰好写入一条访问日志，计数失败不影响内容返回
type Dispatcher struct {
	domains    DomainLookup
	pages      PageStore
	traffic    TrafficRecorder
	classifier *crawler.Classifier
	metrics    Metrics
	canonical  []config.CanonicalSite
	scheme     string
	clock      utils.Clock
	logger     *logging.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Classifier == nil {
		opts.Classifier = crawler.NewClassifier()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Scheme == "" {
		opts.Scheme = "https"
	}
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	return &Dispatcher{
		domains:    opts.Domains,
		pages:      opts.Pages,
		traffic:    opts.Traffic,
		classifier: opts.Classifier,
		metrics:    opts.Metrics,
		canonical:  opts.Canonical,
		scheme:     opts.Scheme,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// ResolveKind 根据路径和 ?type= 参数确定请求类型
func ResolveKind(path, typ string) (Kind, string) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "sitemap":
		return KindSitemap, ""
	case "robots":
		return KindRobots, ""
	case "index":
		return KindIndex, ""
	}

	slug := strings.Trim(path, "/")
	switch strings.ToLower(slug) {
	case "", "index", "index.html":
		return KindIndex, ""
	case "sitemap", "sitemap.xml":
		return KindSitemap, ""
	case "robots", "robots.txt":
		return KindRobots, ""
	case "logo.svg":
		return KindLogo, ""
	}
	return KindPage, slug
}

// Dispatch 处理一次请求
// 未知域名、未知或未发布的页面返回 ErrNotFound
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp *Response, err error) {
	start := d.clock.Now()
	kind, slug := ResolveKind(req.Path, req.Type)
	bot := d.classifier.Classify(req.UserAgent)
	host := registry.NormalizeHost(req.Host)

	defer func() {
		status := statusOf(resp, err)
		d.record(req, host, bot, status, start)
		d.metrics.RecordDispatch(string(kind), status, d.clock.Now().Sub(start))
		if bot.IsBot() {
			d.metrics.RecordCrawlerRequest(bot.String())
		}
	}()

	rec, err := d.domains.LookupActive(ctx, req.Host)
	if err != nil {
		return nil, err
	}
	host = rec.Hostname
	base := d.baseURL(req, host)

	switch kind {
	case KindSitemap:
		return d.sitemap(ctx, host, base)
	case KindRobots:
		return &Response{
			Kind:        KindRobots,
			Status:      http.StatusOK,
			ContentType: "text/plain; charset=utf-8",
			MaxAge:      documentMaxAge,
			Body:        renderRobots(variant.Robots(host), host, base),
		}, nil
	case KindLogo:
		return &Response{
			Kind:        KindLogo,
			Status:      http.StatusOK,
			ContentType: "image/svg+xml",
			MaxAge:      documentMaxAge,
			Body:        renderLogo(host),
		}, nil
	case KindIndex:
		return d.index(ctx, rec, base)
	default:
		return d.page(ctx, host, slug, bot, start)
	}
}

func (d *Dispatcher) sitemap(ctx context.Context, host, base string) (*Response, error) {
	pages, err := d.pages.ListPublished(ctx, host, SitemapLimit)
	if err != nil {
		return nil, fmt.Errorf("list pages of %s: %w", host, err)
	}
	body, err := renderSitemap(variant.Sitemap(host), base, pages)
	if err != nil {
		return nil, err
	}
	return &Response{
		Kind:        KindSitemap,
		Status:      http.StatusOK,
		ContentType: "application/xml; charset=utf-8",
		MaxAge:      documentMaxAge,
		Body:        body,
	}, nil
}

func (d *Dispatcher) index(ctx context.Context, rec *models.DomainRecord, base string) (*Response, error) {
	pages, err := d.pages.ListPublished(ctx, rec.Hostname, IndexLimit)
	if err != nil {
		return nil, fmt.Errorf("list pages of %s: %w", rec.Hostname, err)
	}
	body, err := renderIndex(rec, base, pages, d.canonical)
	if err != nil {
		return nil, err
	}
	return &Response{
		Kind:        KindIndex,
		Status:      http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		MaxAge:      pageMaxAge,
		Body:        body,
	}, nil
}

func (d *Dispatcher) page(ctx context.Context, host, slug string, bot crawler.Bot, at time.Time) (*Response, error) {
	page, err := d.pages.Get(ctx, host, slug)
	if err != nil {
		return nil, err
	}
	if !page.Servable() {
		return nil, fmt.Errorf("%s/%s is not published: %w", host, slug, models.ErrNotFound)
	}

	if err := d.pages.RecordHit(ctx, page, bot.IsBot(), at); err != nil {
		d.metrics.RecordCounterError()
		d.logger.Warn("Failed to update counters for %s/%s: %v", host, slug, err)
	}

	return &Response{
		Kind:        KindPage,
		Status:      http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		MaxAge:      pageMaxAge,
		Body:        []byte(page.Body),
	}, nil
}

func (d *Dispatcher) baseURL(req Request, host string) string {
	scheme := req.Scheme
	if scheme == "" {
		scheme = d.scheme
	}
	return scheme + "://" + host
}

// record 写入访问日志，失败由日志管理器自行上报
func (d *Dispatcher) record(req Request, host string, bot crawler.Bot, status int, at time.Time) {
	if d.traffic == nil {
		return
	}
	url := d.baseURL(req, host) + "/" + strings.TrimPrefix(req.Path, "/")
	if req.RawQuery != "" {
		url += "?" + req.RawQuery
	}
	d.traffic.Record(models.AccessLogEntry{
		Time:      at,
		Domain:    host,
		URL:       url,
		ClientIP:  req.ClientIP,
		UserAgent: req.UserAgent,
		Bot:       bot.String(),
		Referer:   req.Referer,
		Status:    status,
	})
}

func statusOf(resp *Response, err error) int {
	switch {
	case err == nil && resp != nil:
		return resp.Status
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
