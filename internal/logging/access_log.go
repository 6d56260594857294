package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"content-pool/internal/models"
	poolredis "content-pool/internal/redis"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	accessKeyPrefix = "access"
	allDomainsKey   = "all"
	dateLayout      = "2006-01-02"
)

// CountryResolver 根据IP解析国家代码
type CountryResolver interface {
	Country(ip string) string
}

// AccessLogObserver 接收访问日志丢弃与写入失败事件，一般由监控模块实现
type AccessLogObserver interface {
	AccessLogDropped()
	AccessLogWriteFailed()
}

// AccessLogOptions 访问日志管理器参数
type AccessLogOptions struct {
	BufferSize    int
	RetentionDays int
	Geo           CountryResolver
	Observer      AccessLogObserver
	Logger        *Logger
	Now           func() time.Time
}

// AccessLogManager 访问日志管理器
// 每条记录以JSON写入按域名、按天划分的有序集合，分数为毫秒时间戳
type AccessLogManager struct {
	client    *poolredis.Client
	logChan   chan models.AccessLogEntry
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	retention time.Duration
	geo       CountryResolver
	observer  AccessLogObserver
	logger    *Logger
	now       func() time.Time
}

// TrafficStats 时间窗口内的流量统计
type TrafficStats struct {
	Domain   string           `json:"domain"`
	Total    int64            `json:"total"`
	Crawler  int64            `json:"crawler"`
	Human    int64            `json:"human"`
	ByBot    map[string]int64 `json:"by_bot"`
	ByStatus map[int]int64    `json:"by_status"`
	TopURLs  []URLCount       `json:"top_urls"`
	ByHour   [24]int64        `json:"by_hour"`
}

// URLCount URL访问次数
type URLCount struct {
	URL   string `json:"url"`
	Count int64  `json:"count"`
}

// NewAccessLogManager 创建访问日志管理器并启动写入协程
func NewAccessLogManager(client *poolredis.Client, opts AccessLogOptions) *AccessLogManager {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 2000
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 15
	}
	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	manager := &AccessLogManager{
		client:    client,
		logChan:   make(chan models.AccessLogEntry, opts.BufferSize),
		done:      make(chan struct{}),
		retention: time.Duration(opts.RetentionDays) * 24 * time.Hour,
		geo:       opts.Geo,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
	}

	// 启动异步日志处理
	go manager.processLogs()

	return manager
}

// Record 记录一次访问，不阻塞调用方；队列已满时丢弃并上报
func (m *AccessLogManager) Record(entry models.AccessLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Time.IsZero() {
		entry.Time = m.now()
	}
	entry.Time = entry.Time.UTC()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.dropped(entry, "manager closed")
		return
	}

	select {
	case m.logChan <- entry:
	default:
		m.dropped(entry, "queue full")
	}
}

func (m *AccessLogManager) dropped(entry models.AccessLogEntry, reason string) {
	m.logger.Warn("Access log entry dropped (%s): %s %s", reason, entry.Domain, entry.URL)
	if m.observer != nil {
		m.observer.AccessLogDropped()
	}
}

// Close 停止接收新记录并等待队列写完
func (m *AccessLogManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	close(m.logChan)
	m.mu.Unlock()
	<-m.done
}

// processLogs 异步处理日志
func (m *AccessLogManager) processLogs() {
	defer close(m.done)
	for entry := range m.logChan {
		if m.geo != nil && entry.Country == "" && entry.ClientIP != "" {
			entry.Country = m.geo.Country(entry.ClientIP)
		}
		if err := m.save(context.Background(), entry); err != nil {
			m.logger.Error("Failed to save access log for %s: %v", entry.Domain, err)
			if m.observer != nil {
				m.observer.AccessLogWriteFailed()
			}
		}
	}
}

func (m *AccessLogManager) dayKey(domain string, day time.Time) string {
	if domain == "" {
		domain = allDomainsKey
	}
	return m.client.Key(accessKeyPrefix, domain, day.UTC().Format(dateLayout))
}

// save 保存日志到域名集合与全局集合
func (m *AccessLogManager) save(ctx context.Context, entry models.AccessLogEntry) error {
	logJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal access log: %w", err)
	}

	z := &redis.Z{Score: float64(entry.Time.UnixMilli()), Member: logJSON}
	domainKey := m.dayKey(entry.Domain, entry.Time)
	totalKey := m.dayKey("", entry.Time)

	raw := m.client.GetRawClient()
	pipe := raw.TxPipeline()
	pipe.ZAdd(ctx, domainKey, z)
	pipe.Expire(ctx, domainKey, m.retention)
	pipe.ZAdd(ctx, totalKey, z)
	pipe.Expire(ctx, totalKey, m.retention)
	_, err = pipe.Exec(ctx)
	return err
}

// days 返回 start 到 end（含）之间的每个UTC日期
func days(start, end time.Time) []time.Time {
	s := start.UTC()
	e := end.UTC()
	day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for !day.After(last) {
		out = append(out, day)
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func scoreRange(start, end time.Time) *redis.ZRangeBy {
	return &redis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: strconv.FormatInt(end.UnixMilli(), 10),
	}
}

// window 将查询窗口限制在保留期内：早于保留期的日期集合已过期，晚于今天的集合尚不存在
// 返回 false 表示限制后窗口为空
func (m *AccessLogManager) window(start, end time.Time) (time.Time, time.Time, bool, error) {
	if end.Before(start) {
		return start, end, false, fmt.Errorf("%w: end before start", models.ErrInvalidArgument)
	}
	now := m.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	oldest := today.Add(-m.retention)
	latest := today.AddDate(0, 0, 1).Add(-time.Millisecond)

	if start.Before(oldest) {
		start = oldest
	}
	if end.After(latest) {
		end = latest
	}
	return start, end, !end.Before(start), nil
}

// load 读取时间窗口内的所有记录，domain 为空时读取全局集合
func (m *AccessLogManager) load(ctx context.Context, domain string, start, end time.Time) ([]models.AccessLogEntry, error) {
	start, end, ok, err := m.window(start, end)
	if err != nil || !ok {
		return nil, err
	}
	raw := m.client.GetRawClient()
	rng := scoreRange(start, end)

	var entries []models.AccessLogEntry
	for _, day := range days(start, end) {
		members, err := raw.ZRangeByScore(ctx, m.dayKey(domain, day), rng).Result()
		if err != nil {
			return nil, fmt.Errorf("read access log %s: %w", day.Format(dateLayout), err)
		}
		for _, member := range members {
			var entry models.AccessLogEntry
			if err := json.Unmarshal([]byte(member), &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Query 按时间倒序分页查询访问日志，返回当前页和总数
func (m *AccessLogManager) Query(ctx context.Context, domain string, start, end time.Time, page, pageSize int) ([]models.AccessLogEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	entries, err := m.load(ctx, domain, start, end)
	if err != nil {
		return nil, 0, err
	}

	// 按时间倒序排序
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.After(entries[j].Time)
	})

	total := int64(len(entries))
	offset := (page - 1) * pageSize
	if offset >= len(entries) {
		return []models.AccessLogEntry{}, total, nil
	}
	last := offset + pageSize
	if last > len(entries) {
		last = len(entries)
	}
	return entries[offset:last], total, nil
}

// Count 统计时间窗口内的记录数
func (m *AccessLogManager) Count(ctx context.Context, domain string, start, end time.Time) (int64, error) {
	start, end, ok, err := m.window(start, end)
	if err != nil || !ok {
		return 0, err
	}
	raw := m.client.GetRawClient()
	rng := scoreRange(start, end)

	var total int64
	for _, day := range days(start, end) {
		n, err := raw.ZCount(ctx, m.dayKey(domain, day), rng.Min, rng.Max).Result()
		if err != nil {
			return 0, fmt.Errorf("count access log %s: %w", day.Format(dateLayout), err)
		}
		total += n
	}
	return total, nil
}

// Stats 汇总时间窗口内的流量，topN 为返回的热门URL数量
func (m *AccessLogManager) Stats(ctx context.Context, domain string, start, end time.Time, topN int) (*TrafficStats, error) {
	entries, err := m.load(ctx, domain, start, end)
	if err != nil {
		return nil, err
	}

	stats := &TrafficStats{
		Domain:   domain,
		ByBot:    make(map[string]int64),
		ByStatus: make(map[int]int64),
	}
	urls := make(map[string]int64)
	for _, e := range entries {
		stats.Total++
		if e.IsBot() {
			stats.Crawler++
			stats.ByBot[e.Bot]++
		} else {
			stats.Human++
		}
		stats.ByStatus[e.Status]++
		stats.ByHour[e.Time.UTC().Hour()]++
		urls[e.URL]++
	}

	for u, c := range urls {
		stats.TopURLs = append(stats.TopURLs, URLCount{URL: u, Count: c})
	}
	sort.Slice(stats.TopURLs, func(i, j int) bool {
		if stats.TopURLs[i].Count != stats.TopURLs[j].Count {
			return stats.TopURLs[i].Count > stats.TopURLs[j].Count
		}
		return stats.TopURLs[i].URL < stats.TopURLs[j].URL
	})
	if topN > 0 && len(stats.TopURLs) > topN {
		stats.TopURLs = stats.TopURLs[:topN]
	}
	return stats, nil
}

// BotBreakdown 按爬虫身份统计访问次数
func (m *AccessLogManager) BotBreakdown(ctx context.Context, domain string, start, end time.Time) (map[string]int64, error) {
	stats, err := m.Stats(ctx, domain, start, end, 0)
	if err != nil {
		return nil, err
	}
	return stats.ByBot, nil
}

// Cleanup 删除超过保留期的日期集合，返回删除的键数量
func (m *AccessLogManager) Cleanup(ctx context.Context) (int, error) {
	cutoff := m.now().UTC().Add(-m.retention).Format(dateLayout)
	raw := m.client.GetRawClient()

	var stale []string
	iter := raw.Scan(ctx, 0, m.client.Key(accessKeyPrefix, "*"), 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			continue
		}
		date := key[idx+1:]
		if _, err := time.Parse(dateLayout, date); err != nil {
			continue
		}
		if date < cutoff {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan access log keys: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := raw.Del(ctx, stale...).Err(); err != nil {
		return 0, fmt.Errorf("delete stale access logs: %w", err)
	}
	m.logger.Info("Removed %d access log sets older than %s", len(stale), cutoff)
	return len(stale), nil
}

// GetClientIP 获取客户端真实IP
func GetClientIP(r *http.Request) string {
	// 从X-Forwarded-For头获取真实IP
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For格式: client, proxy1, proxy2
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// 从X-Real-IP头获取真实IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip := r.RemoteAddr

	// 处理IPv6地址，格式为 [::1]:51234
	if strings.HasPrefix(ip, "[") {
		if idx := strings.Index(ip, "]"); idx != -1 {
			return ip[1:idx]
		}
	}

	// 处理IPv4地址，格式为 127.0.0.1:51234
	if idx := strings.LastIndex(ip, ":"); idx != -1 && strings.Count(ip, ":") == 1 {
		return ip[:idx]
	}

	return ip
}
