package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/models"
	"content-pool/internal/variant"
)

// Store 域名记录的持久化接口
type Store interface {
	GetByHostname(ctx context.Context, hostname string) (*models.DomainRecord, error)
	Save(ctx context.Context, rec *models.DomainRecord) error
	List(ctx context.Context) ([]models.DomainRecord, error)
	ListActive(ctx context.Context) ([]models.DomainRecord, error)
	ApplyVisitCounter(ctx context.Context, hostname string, visits int64, lastVisit *time.Time) (bool, error)
}

// CounterSource 域名访问计数的来源（页面池）
type CounterSource interface {
	DomainStats(ctx context.Context, domain string) (*models.DomainStats, error)
}

// Registry 域名注册表
type Registry struct {
	store  Store
	logger *logging.Logger
}

// New 创建域名注册表
func New(store Store, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Registry{store: store, logger: logger}
}

// NormalizeHost 规范化主机名：小写，去掉端口和末尾的点
func NormalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(host, ".")
}

// Lookup 按主机名查找域名记录；精确匹配失败时尝试去掉 www. 前缀
// 返回的记录已填充 Palette
func (r *Registry) Lookup(ctx context.Context, hostname string) (*models.DomainRecord, error) {
	host := NormalizeHost(hostname)
	if host == "" {
		return nil, fmt.Errorf("empty host: %w", models.ErrDomainNotFound)
	}

	rec, err := r.store.GetByHostname(ctx, host)
	if errors.Is(err, models.ErrNotFound) && strings.HasPrefix(host, "www.") {
		rec, err = r.store.GetByHostname(ctx, strings.TrimPrefix(host, "www."))
	}
	if err != nil {
		return nil, err
	}
	rec.Palette = variant.PaletteFor(rec.Hostname).Name
	return rec, nil
}

// IsActive 只有 ACTIVE 状态的域名可以被访问和重建
func IsActive(rec *models.DomainRecord) bool {
	return rec != nil && rec.Status == models.DomainStatusActive
}

// LookupActive 查找并确认域名处于激活状态
func (r *Registry) LookupActive(ctx context.Context, hostname string) (*models.DomainRecord, error) {
	rec, err := r.Lookup(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if !IsActive(rec) {
		return nil, fmt.Errorf("%s is %s: %w", rec.Hostname, rec.Status, models.ErrDomainNotFound)
	}
	return rec, nil
}

// Save 保存域名记录
func (r *Registry) Save(ctx context.Context, rec *models.DomainRecord) error {
	return r.store.Save(ctx, rec)
}

// List 返回所有域名
func (r *Registry) List(ctx context.Context) ([]models.DomainRecord, error) {
	return r.store.List(ctx)
}

// ListActive 返回所有激活的域名
func (r *Registry) ListActive(ctx context.Context) ([]models.DomainRecord, error) {
	return r.store.ListActive(ctx)
}

// SyncFromConfig 将配置文件中的域名写入注册表，返回成功写入的数量
// 单条失败只记录日志，其余继续
func (r *Registry) SyncFromConfig(ctx context.Context, domains []config.DomainConfig) (int, error) {
	synced := 0
	var errs []error
	for _, d := range domains {
		rec := &models.DomainRecord{
			Hostname:      NormalizeHost(d.Hostname),
			ParentSite:    d.ParentSite,
			DisplayName:   d.DisplayName,
			Description:   d.Description,
			Status:        models.DomainStatus(strings.ToUpper(d.Status)),
			IsPrimary:     d.IsPrimary,
			PrimaryTags:   d.PrimaryTags,
			SecondaryTags: d.SecondaryTags,
		}
		if err := r.store.Save(ctx, rec); err != nil {
			r.logger.Error("Failed to sync domain %s: %v", d.Hostname, err)
			errs = append(errs, fmt.Errorf("%s: %w", d.Hostname, err))
			continue
		}
		synced++
	}
	if synced > 0 {
		r.logger.Info("Synced %d domains from config", synced)
	}
	return synced, errors.Join(errs...)
}

// SyncVisitCounters 将页面池中的域名访问计数写回注册表
func (r *Registry) SyncVisitCounters(ctx context.Context, counters CounterSource) (int, error) {
	domains, err := r.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, d := range domains {
		stats, err := counters.DomainStats(ctx, d.Hostname)
		if err != nil {
			r.logger.Warn("Failed to read visit counter of %s: %v", d.Hostname, err)
			continue
		}
		if stats.Visits == 0 {
			continue
		}
		changed, err := r.store.ApplyVisitCounter(ctx, d.Hostname, stats.Visits, stats.LastVisitAt)
		if err != nil {
			r.logger.Warn("Failed to store visit counter of %s: %v", d.Hostname, err)
			continue
		}
		if changed {
			updated++
		}
	}
	r.logger.Debug("Visit counters synced for %d of %d domains", updated, len(domains))
	return updated, nil
}
