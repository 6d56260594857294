package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"content-pool/internal/models"
	redisPkg "content-pool/internal/redis"

	"github.com/go-redis/redis/v8"
)

// 页面池键布局:
//
//	pool:{domain}:gen                      当前生效的generation
//	pool:{domain}:g:{gen}:page:{slug}      页面hash
//	pool:{domain}:g:{gen}:slugs            generation内的slug索引，分数为seq
//	pool:{domain}:stats                    域名访问计数
//	pool:{domain}:regen:lock               重建锁

// readPageScript 在同一个脚本中读取generation指针和页面，避免读到两个generation的混合状态
var readPageScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1])
if not gen then return false end
local fields = redis.call('HGETALL', ARGV[1] .. ':g:' .. gen .. ':page:' .. ARGV[2])
if #fields == 0 then return false end
return {gen, fields}
`)

// listPagesScript 按seq顺序列出当前generation的页面字段
// ARGV: base, limit, servable_only, field...
var listPagesScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1])
if not gen then return false end
local base = ARGV[1] .. ':g:' .. gen
local limit = tonumber(ARGV[2])
local servableOnly = ARGV[3] == '1'
local fields = {}
for i = 4, #ARGV do fields[#fields + 1] = ARGV[i] end
local out = {gen}
local n = 0
local slugs = redis.call('ZRANGE', base .. ':slugs', 0, -1)
for _, slug in ipairs(slugs) do
	local vals = redis.call('HMGET', base .. ':page:' .. slug, 'published', 'status', unpack(fields))
	if vals[2] and ((not servableOnly) or (vals[1] == '1' and vals[2] == 'ACTIVE')) then
		out[#out + 1] = slug
		for i = 3, #vals do out[#out + 1] = vals[i] end
		n = n + 1
		if limit > 0 and n >= limit then break end
	end
end
return out
`)

// recordHitScript 页面计数与域名计数作为一个原子单元更新
// KEYS: page, domain stats  ARGV: bot flag, now(ms)
var recordHitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
local now = tonumber(ARGV[2])
redis.call('HINCRBY', KEYS[1], 'views', 1)
if ARGV[1] == '1' then
	redis.call('HINCRBY', KEYS[1], 'crawler_visits', 1)
	local last = tonumber(redis.call('HGET', KEYS[1], 'last_crawled') or '0') or 0
	if now > last then redis.call('HSET', KEYS[1], 'last_crawled', ARGV[2]) end
end
redis.call('HINCRBY', KEYS[2], 'visits', 1)
local lv = tonumber(redis.call('HGET', KEYS[2], 'last_visit') or '0') or 0
if now > lv then redis.call('HSET', KEYS[2], 'last_visit', ARGV[2]) end
return 1
`)

var summaryFields = []string{"seq", "title", "description", "created_at"}
var statsFields = []string{"title", "views", "crawler_visits", "last_crawled"}

// PageRepository 页面池存储，按generation整体替换
type PageRepository struct {
	client *redisPkg.Client
}

// NewPageRepository 创建页面池存储
func NewPageRepository(client *redisPkg.Client) *PageRepository {
	return &PageRepository{client: client}
}

func (r *PageRepository) base(domain string) string {
	return r.client.Key("pool", domain)
}

func (r *PageRepository) genKey(domain string) string {
	return r.base(domain) + ":gen"
}

func (r *PageRepository) pageKey(domain, gen, slug string) string {
	return r.base(domain) + ":g:" + gen + ":page:" + slug
}

func (r *PageRepository) indexKey(domain, gen string) string {
	return r.base(domain) + ":g:" + gen + ":slugs"
}

func (r *PageRepository) statsKey(domain string) string {
	return r.base(domain) + ":stats"
}

func (r *PageRepository) lockKey(domain string) string {
	return r.base(domain) + ":regen:lock"
}

// CurrentGeneration 返回域名当前生效的generation，没有时返回空字符串
func (r *PageRepository) CurrentGeneration(ctx context.Context, domain string) (string, error) {
	gen, err := r.client.GetRawClient().Get(ctx, r.genKey(domain)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return gen, nil
}

// Stage 将页面写入尚未生效的generation，返回成功写入的页面数
func (r *PageRepository) Stage(ctx context.Context, domain, gen string, pages []*models.SynthesizedPage, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	raw := r.client.GetRawClient()
	index := r.indexKey(domain, gen)

	written := 0
	for start := 0; start < len(pages); start += batchSize {
		end := start + batchSize
		if end > len(pages) {
			end = len(pages)
		}

		pipe := raw.Pipeline()
		for _, p := range pages[start:end] {
			fields, err := encodePage(p)
			if err != nil {
				return written, err
			}
			pipe.HSet(ctx, r.pageKey(domain, gen, p.Slug), fields)
			pipe.ZAdd(ctx, index, &redis.Z{Score: float64(p.Seq), Member: p.Slug})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return written, fmt.Errorf("stage pages %d-%d: %w", start, end-1, err)
		}
		written = end
	}
	return written, nil
}

// Swap 原子地切换当前generation，返回之前的generation
func (r *PageRepository) Swap(ctx context.Context, domain, gen string) (string, error) {
	prev, err := r.client.GetRawClient().GetSet(ctx, r.genKey(domain), gen).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return prev, nil
}

// DiscardGeneration 删除一个generation的所有页面；grace>0 时改为设置过期，
// 让切换前开始的读请求仍能完成。slugs 补充索引中可能缺失的页面
func (r *PageRepository) DiscardGeneration(ctx context.Context, domain, gen string, slugs []string, grace time.Duration) error {
	if gen == "" {
		return nil
	}
	raw := r.client.GetRawClient()
	index := r.indexKey(domain, gen)

	members, err := raw.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read generation index: %w", err)
	}

	seen := make(map[string]bool, len(members)+len(slugs))
	keys := []string{index}
	for _, list := range [][]string{members, slugs} {
		for _, slug := range list {
			if seen[slug] {
				continue
			}
			seen[slug] = true
			keys = append(keys, r.pageKey(domain, gen, slug))
		}
	}

	const chunk = 500
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		if grace > 0 {
			pipe := raw.Pipeline()
			for _, k := range keys[start:end] {
				pipe.Expire(ctx, k, grace)
			}
			_, err = pipe.Exec(ctx)
		} else {
			err = raw.Del(ctx, keys[start:end]...).Err()
		}
		if err != nil {
			return fmt.Errorf("discard generation %s: %w", gen, err)
		}
	}
	return nil
}

// Get 读取当前generation中的页面，不存在时返回 ErrNotFound
func (r *PageRepository) Get(ctx context.Context, domain, slug string) (*models.SynthesizedPage, error) {
	res, err := readPageScript.Run(ctx, r.client.GetRawClient(), []string{r.genKey(domain)}, r.base(domain), slug).Result()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, fmt.Errorf("unexpected page reply %T", res)
	}
	flat, ok := parts[1].([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected page fields %T", parts[1])
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[toString(flat[i])] = toString(flat[i+1])
	}

	page, err := decodePage(fields)
	if err != nil {
		return nil, err
	}
	page.Domain = domain
	page.Generation = toString(parts[0])
	return page, nil
}

// listCurrent 运行列表脚本，返回generation和每个页面的字段
func (r *PageRepository) listCurrent(ctx context.Context, domain string, limit int, servableOnly bool, fields []string) (string, []map[string]string, error) {
	flag := "0"
	if servableOnly {
		flag = "1"
	}
	args := []interface{}{r.base(domain), limit, flag}
	for _, f := range fields {
		args = append(args, f)
	}

	res, err := listPagesScript.Run(ctx, r.client.GetRawClient(), []string{r.genKey(domain)}, args...).Result()
	if err == redis.Nil {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	flat, ok := res.([]interface{})
	if !ok || len(flat) == 0 {
		return "", nil, fmt.Errorf("unexpected list reply %T", res)
	}
	gen := toString(flat[0])
	width := len(fields) + 1
	rows := make([]map[string]string, 0, (len(flat)-1)/width)
	for i := 1; i+width <= len(flat); i += width {
		row := map[string]string{"slug": toString(flat[i])}
		for j, f := range fields {
			row[f] = toString(flat[i+1+j])
		}
		rows = append(rows, row)
	}
	return gen, rows, nil
}

// ListPublished 按seq顺序列出可访问的页面，limit<=0 表示不限制
func (r *PageRepository) ListPublished(ctx context.Context, domain string, limit int) ([]models.PageSummary, error) {
	_, rows, err := r.listCurrent(ctx, domain, limit, true, summaryFields)
	if err != nil {
		return nil, err
	}

	out := make([]models.PageSummary, 0, len(rows))
	for _, row := range rows {
		seq, _ := strconv.Atoi(row["seq"])
		created, _ := time.Parse(time.RFC3339Nano, row["created_at"])
		out = append(out, models.PageSummary{
			Slug:        row["slug"],
			Seq:         seq,
			Title:       row["title"],
			Description: row["description"],
			CreatedAt:   created,
		})
	}
	return out, nil
}

// Count 返回当前generation的页面数
func (r *PageRepository) Count(ctx context.Context, domain string) (int64, error) {
	gen, err := r.CurrentGeneration(ctx, domain)
	if err != nil || gen == "" {
		return 0, err
	}
	return r.client.GetRawClient().ZCard(ctx, r.indexKey(domain, gen)).Result()
}

// RecordHit 对一次页面访问原子地更新页面与域名计数
// 页面已被回收时返回 ErrNotFound，计数不变
func (r *PageRepository) RecordHit(ctx context.Context, page *models.SynthesizedPage, bot bool, at time.Time) error {
	flag := "0"
	if bot {
		flag = "1"
	}
	keys := []string{r.pageKey(page.Domain, page.Generation, page.Slug), r.statsKey(page.Domain)}
	n, err := recordHitScript.Run(ctx, r.client.GetRawClient(), keys, flag, at.UnixMilli()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DomainStats 返回域名访问计数
func (r *PageRepository) DomainStats(ctx context.Context, domain string) (*models.DomainStats, error) {
	vals, err := r.client.GetRawClient().HGetAll(ctx, r.statsKey(domain)).Result()
	if err != nil {
		return nil, err
	}
	stats := &models.DomainStats{Domain: domain}
	stats.Visits, _ = strconv.ParseInt(vals["visits"], 10, 64)
	stats.LastVisitAt = parseMillis(vals["last_visit"])
	return stats, nil
}

// PageStats 返回当前generation所有页面的计数，按浏览量降序
func (r *PageRepository) PageStats(ctx context.Context, domain string) ([]models.PageStats, error) {
	_, rows, err := r.listCurrent(ctx, domain, 0, false, statsFields)
	if err != nil {
		return nil, err
	}

	out := make([]models.PageStats, 0, len(rows))
	for _, row := range rows {
		views, _ := strconv.ParseInt(row["views"], 10, 64)
		crawler, _ := strconv.ParseInt(row["crawler_visits"], 10, 64)
		out = append(out, models.PageStats{
			Slug:          row["slug"],
			Title:         row["title"],
			Views:         views,
			CrawlerVisits: crawler,
			LastCrawledAt: parseMillis(row["last_crawled"]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Views > out[j].Views
	})
	return out, nil
}

// AcquireRegenLock 获取域名重建锁，返回释放函数
func (r *PageRepository) AcquireRegenLock(ctx context.Context, domain string, ttl time.Duration) (func(), error) {
	key := r.lockKey(domain)
	token, err := r.client.AcquireLock(ctx, key, ttl)
	if errors.Is(err, redisPkg.ErrLockHeld) {
		return nil, fmt.Errorf("%s: %w", domain, models.ErrRegenerationInProgress)
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = r.client.ReleaseLock(context.Background(), key, token)
	}, nil
}

func encodePage(p *models.SynthesizedPage) (map[string]interface{}, error) {
	keywords, err := json.Marshal(p.Keywords)
	if err != nil {
		return nil, err
	}
	sources, err := json.Marshal(p.Sources)
	if err != nil {
		return nil, err
	}
	published := "0"
	if p.Published {
		published = "1"
	}
	lastCrawled := ""
	if p.LastCrawledAt != nil {
		lastCrawled = strconv.FormatInt(p.LastCrawledAt.UnixMilli(), 10)
	}
	return map[string]interface{}{
		"slug":           p.Slug,
		"seq":            p.Seq,
		"title":          p.Title,
		"description":    p.Description,
		"keywords":       string(keywords),
		"body":           p.Body,
		"theme":          p.Theme,
		"palette":        p.Palette,
		"published":      published,
		"status":         string(p.Status),
		"views":          p.Views,
		"crawler_visits": p.CrawlerVisits,
		"last_crawled":   lastCrawled,
		"sources":        string(sources),
		"created_at":     p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func decodePage(f map[string]string) (*models.SynthesizedPage, error) {
	p := &models.SynthesizedPage{
		Slug:        f["slug"],
		Title:       f["title"],
		Description: f["description"],
		Body:        f["body"],
		Theme:       f["theme"],
		Palette:     f["palette"],
		Published:   f["published"] == "1",
		Status:      models.PageStatus(f["status"]),
	}
	p.Seq, _ = strconv.Atoi(f["seq"])
	p.Views, _ = strconv.ParseInt(f["views"], 10, 64)
	p.CrawlerVisits, _ = strconv.ParseInt(f["crawler_visits"], 10, 64)
	p.LastCrawledAt = parseMillis(f["last_crawled"])
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, f["created_at"])

	if v := f["keywords"]; v != "" {
		if err := json.Unmarshal([]byte(v), &p.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords of %s: %w", p.Slug, err)
		}
	}
	if v := f["sources"]; v != "" {
		if err := json.Unmarshal([]byte(v), &p.Sources); err != nil {
			return nil, fmt.Errorf("decode sources of %s: %w", p.Slug, err)
		}
	}
	return p, nil
}

func parseMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
