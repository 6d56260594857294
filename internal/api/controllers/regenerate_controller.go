package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"content-pool/internal/auth"
	"content-pool/internal/config"
	"content-pool/internal/generator"
	"content-pool/internal/logging"
	"content-pool/internal/models"
)

// Regenerator 页面池重建服务
type Regenerator interface {
	Regenerate(ctx context.Context, domain string, pageCount int, theme string) (*generator.Result, error)
	RegenerateAll(ctx context.Context, pageCount int, theme string) ([]generator.DomainResult, error)
}

// RegenerateController 重建控制器
type RegenerateController struct {
	generator Regenerator
	defaults  config.GeneratorConfig
	logger    *logging.Logger
}

// NewRegenerateController 创建重建控制器实例
func NewRegenerateController(gen Regenerator, defaults config.GeneratorConfig, logger *logging.Logger) *RegenerateController {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &RegenerateController{generator: gen, defaults: defaults, logger: logger}
}

// RegenerateRequest 重建请求
type RegenerateRequest struct {
	Domain    string `json:"domain" binding:"required"`
	PageCount int    `json:"page_count"`
	Theme     string `json:"theme"`
}

type regenerateItem struct {
	Domain             string `json:"domain"`
	Generation         string `json:"generation,omitempty"`
	PreviousGeneration string `json:"previous_generation,omitempty"`
	PagesWritten       int    `json:"pages_written"`
	Theme              string `json:"theme,omitempty"`
	DurationMs         int64  `json:"duration_ms"`
	Error              string `json:"error,omitempty"`
}

func toItem(domain string, res *generator.Result, err error) regenerateItem {
	item := regenerateItem{Domain: domain}
	if res != nil {
		item.Generation = res.Generation
		item.PreviousGeneration = res.PreviousGeneration
		item.PagesWritten = res.PagesWritten
		item.Theme = res.Theme
		item.DurationMs = res.Duration.Milliseconds()
	}
	if err != nil {
		_, item.Error = errorStatus(err)
		var se *models.StorageError
		if errors.As(err, &se) {
			item.Error = "storage error"
		}
	}
	return item
}

// Regenerate 重建一个域名或全部域名（domain 为 "all"）
func (c *RegenerateController) Regenerate(ctx *gin.Context) {
	var req RegenerateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.PageCount == 0 {
		req.PageCount = c.defaults.DefaultPageCount
	}
	if req.Theme == "" {
		req.Theme = c.defaults.DefaultTheme
	}

	details := map[string]interface{}{"page_count": req.PageCount, "theme": req.Theme}
	user, ip := auth.Subject(ctx), logging.GetClientIP(ctx.Request)

	if strings.EqualFold(req.Domain, "all") {
		results, err := c.generator.RegenerateAll(ctx.Request.Context(), req.PageCount, req.Theme)
		if err != nil {
			c.logger.Error("Regenerate all failed: %v", err)
			c.logger.LogAdminAction(user, ip, "regenerate", "all", details, "failure", err.Error())
			status, msg := errorStatus(err)
			fail(ctx, status, msg)
			return
		}

		items := make([]regenerateItem, 0, len(results))
		failed, pages := 0, 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
			item := toItem(r.Domain, r.Result, r.Err)
			pages += item.PagesWritten
			items = append(items, item)
		}
		c.logger.LogAdminAction(user, ip, "regenerate", "all", details, "success", "")
		success(ctx, gin.H{
			"results":       items,
			"succeeded":     len(results) - failed,
			"failed":        failed,
			"pages_written": pages,
		})
		return
	}

	res, err := c.generator.Regenerate(ctx.Request.Context(), req.Domain, req.PageCount, req.Theme)
	if err != nil {
		c.logger.LogAdminAction(user, ip, "regenerate", req.Domain, details, "failure", err.Error())
		status, msg := errorStatus(err)
		var se *models.StorageError
		if errors.As(err, &se) {
			ctx.JSON(status, gin.H{
				"code":    status,
				"message": "Storage error, previous pages are still served",
				"data":    gin.H{"pages_written": se.Written},
			})
			return
		}
		fail(ctx, status, msg)
		return
	}

	c.logger.LogAdminAction(user, ip, "regenerate", res.Domain, details, "success", "")
	success(ctx, toItem(res.Domain, res, nil))
}
