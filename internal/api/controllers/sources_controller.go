package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"content-pool/internal/auth"
	"content-pool/internal/logging"
	"content-pool/internal/models"
)

// SourceStore 内容源仓库
type SourceStore interface {
	Upsert(ctx context.Context, src *models.ContentSource) (*models.ContentSource, error)
	Deactivate(ctx context.Context, name string) error
	List(ctx context.Context) ([]models.ContentSource, error)
}

// SourcesController 内容源控制器
type SourcesController struct {
	sources SourceStore
	logger  *logging.Logger
}

// NewSourcesController 创建内容源控制器实例
func NewSourcesController(sources SourceStore, logger *logging.Logger) *SourcesController {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &SourcesController{sources: sources, logger: logger}
}

// SourceRequest 写入内容源请求
type SourceRequest struct {
	Name       string   `json:"name" binding:"required"`
	Paragraphs []string `json:"paragraphs"`
	Headings   []string `json:"headings"`
	Keywords   []string `json:"keywords"`
}

type sourceSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	Paragraphs int        `json:"paragraphs"`
	Headings   int        `json:"headings"`
	Keywords   int        `json:"keywords"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func summarize(src *models.ContentSource) sourceSummary {
	return sourceSummary{
		ID:         src.ID,
		Name:       src.Name,
		Active:     src.Active,
		Paragraphs: len(src.Paragraphs),
		Headings:   len(src.Headings),
		Keywords:   len(src.Keywords),
		LastUsedAt: src.LastUsedAt,
		UpdatedAt:  src.UpdatedAt,
	}
}

// List 获取内容源列表，只返回条目数量
func (c *SourcesController) List(ctx *gin.Context) {
	sources, err := c.sources.List(ctx.Request.Context())
	if err != nil {
		c.logger.Error("Failed to list sources: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to list sources")
		return
	}

	items := make([]sourceSummary, 0, len(sources))
	active := 0
	for i := range sources {
		if sources[i].Active {
			active++
		}
		items = append(items, summarize(&sources[i]))
	}

	success(ctx, gin.H{
		"items":  items,
		"total":  len(items),
		"active": active,
	})
}

// Upsert 写入或替换内容源
func (c *SourcesController) Upsert(ctx *gin.Context) {
	var req SourceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, "Invalid request")
		return
	}

	saved, err := c.sources.Upsert(ctx.Request.Context(), &models.ContentSource{
		Name:       req.Name,
		Paragraphs: req.Paragraphs,
		Headings:   req.Headings,
		Keywords:   req.Keywords,
	})
	user, ip := auth.Subject(ctx), logging.GetClientIP(ctx.Request)
	if err != nil {
		c.logger.LogAdminAction(user, ip, "upsert_source", req.Name, nil, "failure", err.Error())
		status, msg := errorStatus(err)
		fail(ctx, status, msg)
		return
	}

	c.logger.LogAdminAction(user, ip, "upsert_source", saved.Name, map[string]interface{}{
		"paragraphs": len(saved.Paragraphs),
		"headings":   len(saved.Headings),
		"keywords":   len(saved.Keywords),
	}, "success", "")
	success(ctx, summarize(saved))
}

// Deactivate 停用内容源
func (c *SourcesController) Deactivate(ctx *gin.Context) {
	name := ctx.Param("name")
	err := c.sources.Deactivate(ctx.Request.Context(), name)
	user, ip := auth.Subject(ctx), logging.GetClientIP(ctx.Request)
	if err != nil {
		c.logger.LogAdminAction(user, ip, "deactivate_source", name, nil, "failure", err.Error())
		status, msg := errorStatus(err)
		fail(ctx, status, msg)
		return
	}

	c.logger.LogAdminAction(user, ip, "deactivate_source", name, nil, "success", "")
	success(ctx, gin.H{"name": name, "active": false})
}
