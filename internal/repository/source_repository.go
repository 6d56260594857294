package repository

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"content-pool/internal/models"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

// SourceRepository 内容源仓库
type SourceRepository struct {
	db     *gorm.DB
	policy *bluemonday.Policy
}

// NewSourceRepository 创建内容源仓库
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{
		db:     db,
		policy: bluemonday.StrictPolicy(),
	}
}

// clean 去除HTML标签并压缩空白，空条目被丢弃
func (r *SourceRepository) clean(items []string) models.StringList {
	out := make(models.StringList, 0, len(items))
	for _, item := range items {
		text := html.UnescapeString(r.policy.Sanitize(item))
		text = strings.Join(strings.Fields(text), " ")
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Upsert 写入或替换一个命名语料，写入后处于激活状态
func (r *SourceRepository) Upsert(ctx context.Context, src *models.ContentSource) (*models.ContentSource, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: source name is required", models.ErrInvalidArgument)
	}

	cleaned := models.ContentSource{
		Name:       name,
		Paragraphs: r.clean(src.Paragraphs),
		Headings:   r.clean(src.Headings),
		Keywords:   r.clean(src.Keywords),
		Active:     true,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ContentSource
		err := tx.Where("name = ?", name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cleaned.ID = uuid.NewString()
			return tx.Create(&cleaned).Error
		}
		if err != nil {
			return err
		}

		cleaned.ID = existing.ID
		cleaned.CreatedAt = existing.CreatedAt
		cleaned.LastUsedAt = existing.LastUsedAt
		return tx.Model(&existing).
			Select("paragraphs", "headings", "keywords", "active", "updated_at").
			Updates(&cleaned).Error
	})
	if err != nil {
		return nil, err
	}
	return &cleaned, nil
}

// Deactivate 停用内容源，内容源不会被物理删除
func (r *SourceRepository) Deactivate(ctx context.Context, name string) error {
	res := r.db.WithContext(ctx).
		Model(&models.ContentSource{}).
		Where("name = ?", name).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("source %s: %w", name, models.ErrNotFound)
	}
	return nil
}

// List 返回所有内容源
func (r *SourceRepository) List(ctx context.Context) ([]models.ContentSource, error) {
	var out []models.ContentSource
	err := r.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

// ActiveCorpus 合并所有激活的内容源
// 段落和标题按首次出现顺序去重，关键词取并集
// 段落数少于 minParagraphs 时返回 ErrContentInsufficient
func (r *SourceRepository) ActiveCorpus(ctx context.Context, minParagraphs int) (*models.Corpus, error) {
	var sources []models.ContentSource
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at, name").
		Find(&sources).Error
	if err != nil {
		return nil, err
	}

	corpus := &models.Corpus{}
	seenP := make(map[string]bool)
	seenH := make(map[string]bool)
	seenK := make(map[string]bool)
	for _, s := range sources {
		corpus.SourceIDs = append(corpus.SourceIDs, s.ID)
		for _, p := range s.Paragraphs {
			if !seenP[p] {
				seenP[p] = true
				corpus.Paragraphs = append(corpus.Paragraphs, p)
				corpus.ParagraphOrigins = append(corpus.ParagraphOrigins, s.Name)
			}
		}
		for _, h := range s.Headings {
			if !seenH[h] {
				seenH[h] = true
				corpus.Headings = append(corpus.Headings, h)
			}
		}
		for _, k := range s.Keywords {
			key := strings.ToLower(k)
			if !seenK[key] {
				seenK[key] = true
				corpus.Keywords = append(corpus.Keywords, k)
			}
		}
	}

	if len(corpus.Paragraphs) < minParagraphs {
		return nil, fmt.Errorf("%d paragraphs from %d active sources, need %d: %w",
			len(corpus.Paragraphs), len(sources), minParagraphs, models.ErrContentInsufficient)
	}
	if len(corpus.Headings) == 0 {
		return nil, fmt.Errorf("no headings in %d active sources: %w", len(sources), models.ErrContentInsufficient)
	}
	return corpus, nil
}

// TouchLastUsed 标记内容源最近一次被用于生成的时间
func (r *SourceRepository) TouchLastUsed(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.ContentSource{}).
		Where("id IN ?", ids).
		Update("last_used_at", at).Error
}
