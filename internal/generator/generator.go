package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/models"
	"content-pool/internal/utils"

	"github.com/bwmarrin/snowflake"
	"github.com/cespare/xxhash/v2"
)

// DomainLookup 域名注册表
type DomainLookup interface {
	LookupActive(ctx context.Context, hostname string) (*models.DomainRecord, error)
	ListActive(ctx context.Context) ([]models.DomainRecord, error)
}

// CorpusSource 内容源仓库
type CorpusSource interface {
	ActiveCorpus(ctx context.Context, minParagraphs int) (*models.Corpus, error)
	TouchLastUsed(ctx context.Context, ids []string, at time.Time) error
}

// PageStore 页面池存储
type PageStore interface {
	AcquireRegenLock(ctx context.Context, domain string, ttl time.Duration) (func(), error)
	Stage(ctx context.Context, domain, gen string, pages []*models.SynthesizedPage, batchSize int) (int, error)
	Swap(ctx context.Context, domain, gen string) (string, error)
	CurrentGeneration(ctx context.Context, domain string) (string, error)
	DiscardGeneration(ctx context.Context, domain, gen string, slugs []string, grace time.Duration) error
}

// Observer 接收重建结果，一般由监控模块实现
type Observer interface {
	RegenerationFinished(domain string, pages int, duration time.Duration, err error)
}

// RandFactory 为每次重建创建随机源
type RandFactory func(domain string) *rand.Rand

// Result 一次重建的结果
type Result struct {
	Domain             string        `json:"domain"`
	Generation         string        `json:"generation"`
	PreviousGeneration string        `json:"previous_generation,omitempty"`
	PagesWritten       int           `json:"pages_written"`
	Theme              string        `json:"theme"`
	Duration           time.Duration `json:"duration"`
}

// DomainResult RegenerateAll 中单个域名的结果
type DomainResult struct {
	Domain string  `json:"domain"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// Options 生成器依赖
type Options struct {
	Config    config.GeneratorConfig
	Canonical []config.CanonicalSite
	Domains   DomainLookup
	Sources   CorpusSource
	Pages     PageStore
	Observer  Observer
	Logger    *logging.Logger
	Clock     utils.Clock
	Rand      RandFactory
}

// Generator 页面池重建服务
type Generator struct {
	cfg       config.GeneratorConfig
	canonical []config.CanonicalSite
	domains   DomainLookup
	sources   CorpusSource
	pages     PageStore
	observer  Observer
	logger    *logging.Logger
	clock     utils.Clock
	rand      RandFactory
	ids       *snowflake.Node
}

// New 创建生成器
func New(opts Options) (*Generator, error) {
	node, err := snowflake.NewNode(opts.Config.NodeID)
	if err != nil {
		return nil, fmt.Errorf("init generation id node: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	if opts.Rand == nil {
		opts.Rand = defaultRand
	}
	if opts.Config.MinParagraphs < 1 {
		opts.Config.MinParagraphs = 1
	}

	return &Generator{
		cfg:       opts.Config,
		canonical: opts.Canonical,
		domains:   opts.Domains,
		sources:   opts.Sources,
		pages:     opts.Pages,
		observer:  opts.Observer,
		logger:    opts.Logger,
		clock:     opts.Clock,
		rand:      opts.Rand,
		ids:       node,
	}, nil
}

func defaultRand(domain string) *rand.Rand {
	seed := time.Now().UnixNano() ^ int64(xxhash.Sum64String(domain))
	return rand.New(rand.NewSource(seed))
}

func (g *Generator) lockTTL() time.Duration {
	if g.cfg.LockTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(g.cfg.LockTTLSeconds) * time.Second
}

func (g *Generator) grace() time.Duration {
	if g.cfg.GCGraceSeconds <= 0 {
		return 0
	}
	return time.Duration(g.cfg.GCGraceSeconds) * time.Second
}

// Regenerate 重建一个域名的页面池
// 语料不足时直接失败且不做任何修改；写入失败时旧generation保持生效
func (g *Generator) Regenerate(ctx context.Context, domain string, pageCount int, theme string) (res *Result, err error) {
	start := g.clock.Now()
	written := 0
	gen := ""
	defer func() {
		duration := g.clock.Now().Sub(start)
		if g.observer != nil {
			g.observer.RegenerationFinished(domain, written, duration, err)
		}
		g.logger.LogRegeneration(domain, gen, written, duration, err)
	}()

	if pageCount < 1 || (g.cfg.MaxPageCount > 0 && pageCount > g.cfg.MaxPageCount) {
		return nil, fmt.Errorf("%w: page count %d out of range", models.ErrInvalidArgument, pageCount)
	}

	rec, err := g.domains.LookupActive(ctx, domain)
	if err != nil {
		return nil, err
	}
	domain = rec.Hostname

	corpus, err := g.sources.ActiveCorpus(ctx, g.cfg.MinParagraphs)
	if err != nil {
		return nil, err
	}

	release, err := g.pages.AcquireRegenLock(ctx, domain, g.lockTTL())
	if err != nil {
		return nil, err
	}
	defer release()

	gen = g.ids.Generate().String()
	theme = NormalizeTheme(theme)
	pages, err := NewSynthesizer(g.rand(domain)).Build(BuildInput{
		Domain:     rec,
		Corpus:     corpus,
		PageCount:  pageCount,
		Theme:      theme,
		Generation: gen,
		Canonical:  g.canonical,
		Now:        start.UTC(),
	})
	if err != nil {
		return nil, err
	}

	written, err = g.pages.Stage(ctx, domain, gen, pages, g.cfg.StageBatchSize)
	if err != nil {
		g.discardStaged(domain, gen, pages)
		return nil, &models.StorageError{Domain: domain, Written: written, Err: err}
	}

	prev, err := g.pages.Swap(ctx, domain, gen)
	if err != nil {
		// 切换结果未知时以实际指针为准
		current, cerr := g.pages.CurrentGeneration(ctx, domain)
		if cerr != nil || current != gen {
			g.discardStaged(domain, gen, pages)
			return nil, &models.StorageError{Domain: domain, Written: written, Err: err}
		}
		prev = ""
		g.logger.Warn("Swap for %s reported %v but generation %s is current", domain, err, gen)
	}

	if prev != "" && prev != gen {
		if err := g.pages.DiscardGeneration(ctx, domain, prev, nil, g.grace()); err != nil {
			g.logger.Warn("Failed to collect generation %s of %s: %v", prev, domain, err)
		}
	}

	if err := g.sources.TouchLastUsed(ctx, corpus.SourceIDs, start); err != nil {
		g.logger.Warn("Failed to update source usage after regenerating %s: %v", domain, err)
	}

	return &Result{
		Domain:             domain,
		Generation:         gen,
		PreviousGeneration: prev,
		PagesWritten:       written,
		Theme:              theme,
		Duration:           g.clock.Now().Sub(start),
	}, nil
}

// discardStaged 清理未生效的generation，使用独立上下文以便调用方取消后也能清理
func (g *Generator) discardStaged(domain, gen string, pages []*models.SynthesizedPage) {
	slugs := make([]string, len(pages))
	for i, p := range pages {
		slugs[i] = p.Slug
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := g.pages.DiscardGeneration(ctx, domain, gen, slugs, 0); err != nil {
		g.logger.Warn("Failed to discard staged generation %s of %s: %v", gen, domain, err)
	}
}

// RegenerateAll 并发重建所有激活的域名，单个域名失败不影响其他域名
func (g *Generator) RegenerateAll(ctx context.Context, pageCount int, theme string) ([]DomainResult, error) {
	domains, err := g.domains.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	concurrency := g.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]DomainResult, len(domains))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, d := range domains {
		results[i].Domain = d.Hostname
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()
			results[i].Result, results[i].Err = g.Regenerate(ctx, host, pageCount, theme)
		}(i, d.Hostname)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	g.logger.Info("Regenerated %d domains, %d failed", len(results)-failed, failed)
	return results, nil
}

// IsClientError 判断重建错误是否由调用方引起
func IsClientError(err error) bool {
	return errors.Is(err, models.ErrInvalidArgument) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrContentInsufficient) ||
		errors.Is(err, models.ErrRegenerationInProgress)
}
