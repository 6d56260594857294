package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"content-pool/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_requests_total",
			Help: "Total number of dispatched requests",
		},
		[]string{"kind", "status"},
	)

	responseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pool_response_time_seconds",
			Help:    "Dispatch time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	crawlerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_crawler_requests_total",
			Help: "Total number of requests classified as crawlers",
		},
		[]string{"bot"},
	)

	regenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_regenerations_total",
			Help: "Total number of domain regenerations",
		},
		[]string{"result"},
	)

	regenerationTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pool_regeneration_seconds",
			Help:    "Regeneration time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	pagesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pool_pages_written_total",
			Help: "Total number of pages staged by regenerations",
		},
	)

	accessLogDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pool_access_log_dropped_total",
			Help: "Access log entries dropped because the queue was full",
		},
	)

	accessLogErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pool_access_log_errors_total",
			Help: "Access log entries that failed to persist",
		},
	)

	counterErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pool_counter_errors_total",
			Help: "Page or domain counter updates that failed",
		},
	)

	registerOnce sync.Once
)

// Register 将指标注册到默认 registry，多次调用只注册一次
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			requestsTotal,
			responseTime,
			crawlerRequests,
			regenerations,
			regenerationTime,
			pagesWritten,
			accessLogDropped,
			accessLogErrors,
			counterErrors,
		)
	})
}

// Monitor 监控管理器，nil 接收者上的方法都是空操作
type Monitor struct {
	config    Config
	mu        sync.Mutex
	isRunning bool
	server    *http.Server

	requests  int64
	crawlers  int64
	regenOK   int64
	regenFail int64
	dropped   int64
	started   time.Time
}

// Config 监控配置
type Config struct {
	Enabled           bool
	PrometheusAddress string
}

// Snapshot 进程内计数快照
type Snapshot struct {
	Requests          int64   `json:"requests"`
	CrawlerRequests   int64   `json:"crawler_requests"`
	Regenerations     int64   `json:"regenerations"`
	RegenerationFails int64   `json:"regeneration_failures"`
	AccessLogDropped  int64   `json:"access_log_dropped"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMonitor 创建新的监控管理器
func NewMonitor(config Config) *Monitor {
	Register()
	return &Monitor{
		config:  config,
		started: time.Now(),
	}
}

// Handler 返回 /metrics 处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.Handler()
}

// Start 启动独立的Prometheus服务
func (m *Monitor) Start() error {
	if m == nil || !m.config.Enabled || m.config.PrometheusAddress == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              m.config.PrometheusAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.DefaultLogger.Error("Prometheus server stopped: %v", err)
		}
	}(m.server)

	m.isRunning = true
	logging.DefaultLogger.Info("Prometheus metrics listening on %s", m.config.PrometheusAddress)
	return nil
}

// Stop 停止监控服务
func (m *Monitor) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return nil
	}
	m.isRunning = false
	return m.server.Shutdown(ctx)
}

// RecordDispatch 记录一次分发请求
func (m *Monitor) RecordDispatch(kind string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.requests, 1)
	requestsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
	responseTime.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCrawlerRequest 记录爬虫请求
func (m *Monitor) RecordCrawlerRequest(bot string) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.crawlers, 1)
	crawlerRequests.WithLabelValues(bot).Inc()
}

// RecordCounterError 记录计数更新失败
func (m *Monitor) RecordCounterError() {
	if m == nil {
		return
	}
	counterErrors.Inc()
}

// RegenerationFinished 记录一次重建
func (m *Monitor) RegenerationFinished(domain string, pages int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
		atomic.AddInt64(&m.regenFail, 1)
	} else {
		atomic.AddInt64(&m.regenOK, 1)
	}
	regenerations.WithLabelValues(result).Inc()
	regenerationTime.Observe(duration.Seconds())
	pagesWritten.Add(float64(pages))
}

// AccessLogDropped 记录被丢弃的访问日志
func (m *Monitor) AccessLogDropped() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.dropped, 1)
	accessLogDropped.Inc()
}

// AccessLogWriteFailed 记录写入失败的访问日志
func (m *Monitor) AccessLogWriteFailed() {
	if m == nil {
		return
	}
	accessLogErrors.Inc()
}

// GetStats 获取进程内统计数据
func (m *Monitor) GetStats() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Requests:          atomic.LoadInt64(&m.requests),
		CrawlerRequests:   atomic.LoadInt64(&m.crawlers),
		Regenerations:     atomic.LoadInt64(&m.regenOK),
		RegenerationFails: atomic.LoadInt64(&m.regenFail),
		AccessLogDropped:  atomic.LoadInt64(&m.dropped),
		UptimeSeconds:     time.Since(m.started).Seconds(),
	}
}
