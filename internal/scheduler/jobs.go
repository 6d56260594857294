package scheduler

import (
	"context"
	"errors"
	"fmt"

	"content-pool/internal/config"
	"content-pool/internal/generator"
	"content-pool/internal/registry"
)

// 任务名称
const (
	JobCounterSync   = "counter-sync"
	JobLogCleanup    = "log-cleanup"
	JobRegenerateAll = "regenerate-all"
)

// CounterSyncer 将页面池计数写回域名注册表
type CounterSyncer interface {
	SyncVisitCounters(ctx context.Context, counters registry.CounterSource) (int, error)
}

// LogCleaner 清理过期访问日志
type LogCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Regenerator 重建所有激活域名
type Regenerator interface {
	RegenerateAll(ctx context.Context, pageCount int, theme string) ([]generator.DomainResult, error)
}

// PoolJobs 页面池定时任务依赖
type PoolJobs struct {
	Registry         CounterSyncer
	Counters         registry.CounterSource
	AccessLog        LogCleaner
	Generator        Regenerator
	DefaultPageCount int
	DefaultTheme     string
}

// RegisterPoolJobs 注册计数同步、日志清理与定时重建任务
func (s *Scheduler) RegisterPoolJobs(cfg config.SchedulerConfig, jobs PoolJobs) error {
	var errs []error

	if jobs.Registry != nil && jobs.Counters != nil {
		errs = append(errs, s.AddJob(JobCounterSync, cfg.CounterSync, func(ctx context.Context) error {
			n, err := jobs.Registry.SyncVisitCounters(ctx, jobs.Counters)
			if err != nil {
				return err
			}
			s.logger.Debug("Counter sync updated %d domains", n)
			return nil
		}))
	}

	if jobs.AccessLog != nil {
		errs = append(errs, s.AddJob(JobLogCleanup, cfg.LogCleanup, func(ctx context.Context) error {
			n, err := jobs.AccessLog.Cleanup(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				s.logger.Info("Removed %d expired access log keys", n)
			}
			return nil
		}))
	}

	if jobs.Generator != nil {
		pageCount := cfg.RegeneratePageCount
		if pageCount <= 0 {
			pageCount = jobs.DefaultPageCount
		}
		theme := cfg.RegenerateTheme
		if theme == "" {
			theme = jobs.DefaultTheme
		}
		errs = append(errs, s.AddJob(JobRegenerateAll, cfg.Regenerate, func(ctx context.Context) error {
			results, err := jobs.Generator.RegenerateAll(ctx, pageCount, theme)
			if err != nil {
				return err
			}
			var failed []error
			for _, r := range results {
				if r.Err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", r.Domain, r.Err))
				}
			}
			return errors.Join(failed...)
		}))
	}

	return errors.Join(errs...)
}
