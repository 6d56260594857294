package routes

import (
	"github.com/gin-gonic/gin"

	"content-pool/internal/auth"
	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/monitoring"
)

// NewAdminRouter 创建管理接口路由
func NewAdminRouter(controllers *Controllers, jwtManager *auth.JWTManager, monitor *monitoring.Monitor, cfg config.AdminConfig, logger *logging.Logger) *gin.Engine {
	engine := newEngine(cfg, logger)
	RegisterAllRoutes(engine, controllers, jwtManager, monitor)
	return engine
}

// RegisterAllRoutes 注册所有API路由
func RegisterAllRoutes(ginRouter *gin.Engine, controllers *Controllers, jwtManager *auth.JWTManager, monitor *monitoring.Monitor) {
	// Prometheus 指标
	ginRouter.GET("/metrics", gin.WrapH(monitor.Handler()))

	apiGroup := ginRouter.Group("/api/v1")
	{
		// 系统相关API - 不需要JWT验证
		apiGroup.GET("/health", controllers.SystemController.Health)
		apiGroup.GET("/version", controllers.SystemController.Version)

		// 需要JWT验证的API组
		protectedGroup := apiGroup.Group("")
		protectedGroup.Use(auth.JWTAuthMiddleware(jwtManager))
		{
			protectedGroup.GET("/system", auth.RequireScope(auth.ScopeAdmin), controllers.SystemController.System)

			// 页面池重建
			protectedGroup.POST("/regenerate", auth.RequireScope(auth.ScopeRegenerate), controllers.RegenerateController.Regenerate)

			// 内容源
			sourcesGroup := protectedGroup.Group("/sources")
			sourcesGroup.Use(auth.RequireScope(auth.ScopeSources))
			{
				sourcesGroup.GET("", controllers.SourcesController.List)
				sourcesGroup.POST("", controllers.SourcesController.Upsert)
				sourcesGroup.DELETE("/:name", controllers.SourcesController.Deactivate)
			}

			// 流量与域名统计
			trafficGroup := protectedGroup.Group("")
			trafficGroup.Use(auth.RequireScope(auth.ScopeTraffic))
			{
				trafficGroup.GET("/traffic/logs", controllers.TrafficController.GetLogs)
				trafficGroup.GET("/traffic/stats", controllers.TrafficController.GetStats)
				trafficGroup.GET("/traffic/export", controllers.TrafficController.Export)
				trafficGroup.GET("/domains", controllers.TrafficController.ListDomains)
				trafficGroup.GET("/domains/:host/stats", controllers.TrafficController.GetDomainStats)
			}
		}
	}
}
