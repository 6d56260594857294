package controllers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"content-pool/internal/logging"
	"content-pool/internal/models"
	"content-pool/internal/utils"
)

// TrafficSource 访问日志查询
type TrafficSource interface {
	Query(ctx context.Context, domain string, start, end time.Time, page, pageSize int) ([]models.AccessLogEntry, int64, error)
	Stats(ctx context.Context, domain string, start, end time.Time, topN int) (*logging.TrafficStats, error)
	BotBreakdown(ctx context.Context, domain string, start, end time.Time) (map[string]int64, error)
}

// DomainDirectory 域名注册表查询
type DomainDirectory interface {
	Lookup(ctx context.Context, hostname string) (*models.DomainRecord, error)
	List(ctx context.Context) ([]models.DomainRecord, error)
}

// PageStatsSource 页面池计数查询
type PageStatsSource interface {
	DomainStats(ctx context.Context, domain string) (*models.DomainStats, error)
	PageStats(ctx context.Context, domain string) ([]models.PageStats, error)
	Count(ctx context.Context, domain string) (int64, error)
}

// TrafficController 流量与域名统计控制器
type TrafficController struct {
	traffic TrafficSource
	domains DomainDirectory
	pages   PageStatsSource
	clock   utils.Clock
	logger  *logging.Logger
}

// NewTrafficController 创建流量控制器实例
func NewTrafficController(traffic TrafficSource, domains DomainDirectory, pages PageStatsSource, clock utils.Clock, logger *logging.Logger) *TrafficController {
	if clock == nil {
		clock = utils.RealClock{}
	}
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &TrafficController{traffic: traffic, domains: domains, pages: pages, clock: clock, logger: logger}
}

// window 解析时间窗口，结束时间早于开始时间时返回 false
func (c *TrafficController) window(ctx *gin.Context) (time.Time, time.Time, bool) {
	start, end := parseWindow(ctx, c.clock.Now())
	if end.Before(start) {
		fail(ctx, http.StatusBadRequest, "end must not be before start")
		return start, end, false
	}
	return start, end, true
}

// GetLogs 分页查询访问日志，domain 为空时查询全部域名
func (c *TrafficController) GetLogs(ctx *gin.Context) {
	start, end, ok := c.window(ctx)
	if !ok {
		return
	}
	domain := ctx.Query("domain")
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("pageSize", "20"))

	logs, total, err := c.traffic.Query(ctx.Request.Context(), domain, start, end, page, pageSize)
	if err != nil {
		c.logger.Error("Failed to query access logs: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to get access logs")
		return
	}
	if logs == nil {
		logs = []models.AccessLogEntry{}
	}

	success(ctx, gin.H{
		"items":    logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GetStats 时间窗口内的流量统计
func (c *TrafficController) GetStats(ctx *gin.Context) {
	start, end, ok := c.window(ctx)
	if !ok {
		return
	}
	topN, _ := strconv.Atoi(ctx.DefaultQuery("top", "10"))

	stats, err := c.traffic.Stats(ctx.Request.Context(), ctx.Query("domain"), start, end, topN)
	if err != nil {
		c.logger.Error("Failed to compute traffic stats: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to get traffic stats")
		return
	}
	success(ctx, stats)
}

// ListDomains 获取注册的域名列表
func (c *TrafficController) ListDomains(ctx *gin.Context) {
	records, err := c.domains.List(ctx.Request.Context())
	if err != nil {
		c.logger.Error("Failed to list domains: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to list domains")
		return
	}
	if records == nil {
		records = []models.DomainRecord{}
	}
	success(ctx, gin.H{"items": records, "total": len(records)})
}

// GetDomainStats 单个域名的注册信息、访问计数和页面计数
func (c *TrafficController) GetDomainStats(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	rec, err := c.domains.Lookup(reqCtx, ctx.Param("host"))
	if err != nil {
		status, msg := errorStatus(err)
		fail(ctx, status, msg)
		return
	}

	visits, err := c.pages.DomainStats(reqCtx, rec.Hostname)
	if err != nil {
		c.logger.Error("Failed to load domain stats for %s: %v", rec.Hostname, err)
		fail(ctx, http.StatusInternalServerError, "Failed to get domain stats")
		return
	}
	pages, err := c.pages.PageStats(reqCtx, rec.Hostname)
	if err != nil {
		c.logger.Error("Failed to load page stats for %s: %v", rec.Hostname, err)
		fail(ctx, http.StatusInternalServerError, "Failed to get domain stats")
		return
	}
	if pages == nil {
		pages = []models.PageStats{}
	}

	success(ctx, gin.H{
		"domain": rec,
		"visits": visits,
		"pages":  pages,
	})
}

// Export 导出域名的页面计数和爬虫分布为 xlsx
func (c *TrafficController) Export(ctx *gin.Context) {
	start, end, ok := c.window(ctx)
	if !ok {
		return
	}
	domain := ctx.Query("domain")
	if domain == "" {
		fail(ctx, http.StatusBadRequest, "domain is required")
		return
	}
	reqCtx := ctx.Request.Context()
	rec, err := c.domains.Lookup(reqCtx, domain)
	if err != nil {
		status, msg := errorStatus(err)
		fail(ctx, status, msg)
		return
	}

	pages, err := c.pages.PageStats(reqCtx, rec.Hostname)
	if err != nil {
		c.logger.Error("Failed to load page stats for export: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to export")
		return
	}
	bots, err := c.traffic.BotBreakdown(reqCtx, rec.Hostname, start, end)
	if err != nil {
		c.logger.Error("Failed to load bot breakdown for export: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to export")
		return
	}

	f, err := buildWorkbook(pages, bots)
	if err != nil {
		c.logger.Error("Failed to build workbook: %v", err)
		fail(ctx, http.StatusInternalServerError, "Failed to export")
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("%s-%s.xlsx", rec.Hostname, c.clock.Now().Format("20060102"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Status(http.StatusOK)
	if err := f.Write(ctx.Writer); err != nil {
		c.logger.Error("Failed to write workbook: %v", err)
	}
}

const (
	pagesSheet = "Pages"
	botsSheet  = "Bots"
)

// buildWorkbook 生成包含 Pages 和 Bots 两个工作表的工作簿
func buildWorkbook(pages []models.PageStats, bots map[string]int64) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", pagesSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(botsSheet); err != nil {
		f.Close()
		return nil, err
	}

	rows := [][]interface{}{{"Slug", "Title", "Views", "Crawler Visits", "Last Crawled"}}
	for _, p := range pages {
		last := ""
		if p.LastCrawledAt != nil {
			last = p.LastCrawledAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []interface{}{p.Slug, p.Title, p.Views, p.CrawlerVisits, last})
	}
	if err := writeRows(f, pagesSheet, rows); err != nil {
		f.Close()
		return nil, err
	}

	names := make([]string, 0, len(bots))
	for name := range bots {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if bots[names[i]] != bots[names[j]] {
			return bots[names[i]] > bots[names[j]]
		}
		return names[i] < names[j]
	})
	rows = [][]interface{}{{"Bot", "Requests"}}
	for _, name := range names {
		rows = append(rows, []interface{}{name, bots[name]})
	}
	if err := writeRows(f, botsSheet, rows); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}
