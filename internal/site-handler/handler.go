package sitehandler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"content-pool/internal/logging"
	"content-pool/internal/models"
)

// Handler 公开站点的HTTP处理器
// 所有域名共用一个监听端口，按 Host 头分发
type Handler struct {
	dispatcher *Dispatcher
	logger     *logging.Logger
}

// NewHandler 创建站点处理器实例
//
// 参数:
//
//	dispatcher: 请求分发器
//	logger: 日志记录器，为nil时使用默认日志
func NewHandler(dispatcher *Dispatcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// CreateSiteHandler 创建公开站点的HTTP处理器
//
// 路由:
//
//	GET /             首页
//	GET /:slug        页面
//	GET /?type=...    sitemap / robots
//	GET /sitemap.xml  sitemap
//	GET /robots.txt   robots
//	GET /logo.svg     图标
func (h *Handler) CreateSiteHandler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/*path", h.Serve)
	router.HEAD("/*path", h.Serve)
	return router
}

// Serve 处理单个公开请求
func (h *Handler) Serve(c *gin.Context) {
	req := Request{
		Host:      c.Request.Host,
		Path:      c.Param("path"),
		Type:      c.Query("type"),
		RawQuery:  c.Request.URL.RawQuery,
		Scheme:    requestScheme(c.Request),
		ClientIP:  logging.GetClientIP(c.Request),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	}

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.Header("Cache-Control", "no-store")
			c.Data(http.StatusNotFound, "text/html; charset=utf-8", NotFoundPage)
			return
		}
		h.logger.Error("Dispatch %s%s failed: %v", req.Host, req.Path, err)
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte(http.StatusText(http.StatusInternalServerError)))
		return
	}

	c.Header("Cache-Control", resp.CacheControl())
	c.Data(resp.Status, resp.ContentType, resp.Body)
}

// requestScheme 优先使用反向代理传入的协议
func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return ""
}
