package routes

import (
	"content-pool/internal/api/controllers"
	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/monitoring"
	"content-pool/internal/utils"
)

// Dependencies 控制器依赖
type Dependencies struct {
	Generator controllers.Regenerator
	Sources   controllers.SourceStore
	Traffic   controllers.TrafficSource
	Domains   controllers.DomainDirectory
	Pages     controllers.PageStatsSource
	Checks    map[string]controllers.HealthCheck
	Tasks     controllers.TaskLister
	Monitor   *monitoring.Monitor
	Clock     utils.Clock
	Logger    *logging.Logger
	Version   string
}

// Controllers 包含所有API控制器实例
type Controllers struct {
	RegenerateController *controllers.RegenerateController
	SourcesController    *controllers.SourcesController
	TrafficController    *controllers.TrafficController
	SystemController     *controllers.SystemController
}

// SetupControllers 创建并配置所有控制器实例
func SetupControllers(deps Dependencies, cfg *config.Config) *Controllers {
	return &Controllers{
		RegenerateController: controllers.NewRegenerateController(deps.Generator, cfg.Generator, deps.Logger),
		SourcesController:    controllers.NewSourcesController(deps.Sources, deps.Logger),
		TrafficController:    controllers.NewTrafficController(deps.Traffic, deps.Domains, deps.Pages, deps.Clock, deps.Logger),
		SystemController:     controllers.NewSystemController(deps.Checks, deps.Monitor, deps.Tasks, deps.Version),
	}
}
