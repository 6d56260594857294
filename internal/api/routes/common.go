package routes

import (
	"github.com/gin-gonic/gin"

	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/middleware"
)

// newEngine 创建带通用中间件的管理接口引擎
func newEngine(cfg config.AdminConfig, logger *logging.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.GlobalErrorHandler())
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.CORS(cfg.CORSOrigins))
	if logger != nil {
		engine.Use(middleware.AccessLogger(logger))
	}
	return engine
}
