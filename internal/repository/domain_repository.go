package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"content-pool/internal/models"

	"gorm.io/gorm"
)

// DomainRepository 域名注册表的持久化
type DomainRepository struct {
	db *gorm.DB
}

// NewDomainRepository 创建域名仓库
func NewDomainRepository(db *gorm.DB) *DomainRepository {
	return &DomainRepository{db: db}
}

// GetByHostname 按主机名精确查找，不存在时返回 ErrDomainNotFound
func (r *DomainRepository) GetByHostname(ctx context.Context, hostname string) (*models.DomainRecord, error) {
	var rec models.DomainRecord
	err := r.db.WithContext(ctx).Where("hostname = ?", hostname).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", hostname, models.ErrDomainNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save 按主机名新增或更新域名记录，计数字段不会被覆盖
// 同一个 ParentSite 下只允许一个主域名
func (r *DomainRepository) Save(ctx context.Context, rec *models.DomainRecord) error {
	rec.Hostname = strings.ToLower(strings.TrimSpace(rec.Hostname))
	if rec.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", models.ErrInvalidArgument)
	}
	if rec.Status == "" {
		rec.Status = models.DomainStatusPending
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidArgument, rec.Status)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.IsPrimary && rec.ParentSite != "" {
			var other models.DomainRecord
			err := tx.Where("parent_site = ? AND is_primary = ? AND hostname <> ?", rec.ParentSite, true, rec.Hostname).
				First(&other).Error
			if err == nil {
				return fmt.Errorf("%s already primary for %s: %w", other.Hostname, rec.ParentSite, models.ErrDuplicatePrimary)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var existing models.DomainRecord
		err := tx.Where("hostname = ?", rec.Hostname).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(rec).Error
		}
		if err != nil {
			return err
		}

		rec.ID = existing.ID
		rec.VisitCount = existing.VisitCount
		rec.LastVisitAt = existing.LastVisitAt
		rec.CreatedAt = existing.CreatedAt
		return tx.Model(&existing).Select(
			"parent_site", "display_name", "description", "status",
			"is_primary", "primary_tags", "secondary_tags", "updated_at",
		).Updates(rec).Error
	})
}

// List 返回所有域名
func (r *DomainRepository) List(ctx context.Context) ([]models.DomainRecord, error) {
	var out []models.DomainRecord
	err := r.db.WithContext(ctx).Order("hostname").Find(&out).Error
	return out, err
}

// ListActive 返回所有 ACTIVE 状态的域名
func (r *DomainRepository) ListActive(ctx context.Context) ([]models.DomainRecord, error) {
	var out []models.DomainRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", models.DomainStatusActive).
		Order("hostname").
		Find(&out).Error
	return out, err
}

// ApplyVisitCounter 将Redis中的累计访问数写回数据库，只会增大不会回退
func (r *DomainRepository) ApplyVisitCounter(ctx context.Context, hostname string, visits int64, lastVisit *time.Time) (bool, error) {
	updates := map[string]interface{}{"visit_count": visits}
	if lastVisit != nil {
		updates["last_visit_at"] = *lastVisit
	}
	res := r.db.WithContext(ctx).
		Model(&models.DomainRecord{}).
		Where("hostname = ? AND visit_count < ?", hostname, visits).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
