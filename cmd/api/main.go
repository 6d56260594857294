package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"content-pool/internal/api/controllers"
	"content-pool/internal/api/routes"
	"content-pool/internal/auth"
	"content-pool/internal/config"
	"content-pool/internal/crawler"
	"content-pool/internal/db"
	"content-pool/internal/generator"
	"content-pool/internal/logging"
	"content-pool/internal/monitoring"
	"content-pool/internal/redis"
	"content-pool/internal/registry"
	"content-pool/internal/repository"
	"content-pool/internal/scheduler"
	"content-pool/internal/services"
	sitehandler "content-pool/internal/site-handler"
	siteserver "content-pool/internal/site-server"
	"content-pool/internal/utils"
)

const version = "1.0.0"

func main() {
	// 解析命令行参数
	var configPath, regenerate string
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&regenerate, "regenerate", "", "Regenerate one domain (or \"all\") and exit")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Output:       cfg.Logging.Output,
		AuditEnabled: cfg.Logging.AuditEnabled,
		AuditOutput:  cfg.Logging.AuditOutput,
	})
	logger := logging.DefaultLogger

	// 数据库：域名注册表与内容源
	if err := db.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	conn := db.GetDB()

	// Redis：页面池、计数器与访问日志
	redisClient, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	redisClient.SetKeyPrefix(cfg.Redis.KeyPrefix)

	ctx := context.Background()
	domains := registry.New(repository.NewDomainRepository(conn), logger)
	if n, err := domains.SyncFromConfig(ctx, cfg.Domains); err != nil {
		logger.Error("Domain sync finished with errors (%d synced): %v", n, err)
	} else {
		logger.Info("Synced %d domains from config", n)
	}

	sources := repository.NewSourceRepository(conn)
	pages := repository.NewPageRepository(redisClient)

	monitor := monitoring.NewMonitor(monitoring.Config{
		Enabled:           cfg.Monitoring.Enabled,
		PrometheusAddress: cfg.Monitoring.PrometheusAddress,
	})

	gen, err := generator.New(generator.Options{
		Config:    cfg.Generator,
		Canonical: cfg.CanonicalSites,
		Domains:   domains,
		Sources:   sources,
		Pages:     pages,
		Observer:  monitor,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to create generator: %v", err)
	}

	// 单次重建模式
	if regenerate != "" {
		if err := runRegenerate(ctx, gen, regenerate, cfg.Generator); err != nil {
			logger.Error("Regeneration failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := monitor.Start(); err != nil {
		logger.Error("Failed to start monitoring server: %v", err)
	}

	// 访问日志，可选 GeoIP 补全
	accessOpts := logging.AccessLogOptions{
		BufferSize:    cfg.Logging.AccessLogBuffer,
		RetentionDays: cfg.Logging.RetentionDays,
		Observer:      monitor,
		Logger:        logger,
	}
	if cfg.GeoIP.Enabled {
		geo, err := services.NewGeoIPService(cfg.GeoIP.DatabasePath)
		if err != nil {
			logger.Warn("GeoIP disabled: %v", err)
		} else {
			defer geo.Close()
			accessOpts.Geo = geo
		}
	}
	accessLog := logging.NewAccessLogManager(redisClient, accessOpts)

	extra := make([]crawler.Rule, 0, len(cfg.Crawler.ExtraAgents))
	for _, a := range cfg.Crawler.ExtraAgents {
		extra = append(extra, crawler.Rule{Fragment: a.Fragment, Bot: crawler.Bot(a.Name)})
	}

	dispatcher := sitehandler.NewDispatcher(sitehandler.Options{
		Domains:    domains,
		Pages:      pages,
		Traffic:    accessLog,
		Classifier: crawler.NewClassifier(extra...),
		Metrics:    monitor,
		Canonical:  cfg.CanonicalSites,
		Scheme:     cfg.Server.PublicScheme,
		Logger:     logger,
	})
	siteHandler := sitehandler.NewHandler(dispatcher, logger)

	// 定时任务
	sched := scheduler.NewScheduler(logger)
	if err := sched.RegisterPoolJobs(cfg.Scheduler, scheduler.PoolJobs{
		Registry:         domains,
		Counters:         pages,
		AccessLog:        accessLog,
		Generator:        gen,
		DefaultPageCount: cfg.Generator.DefaultPageCount,
		DefaultTheme:     cfg.Generator.DefaultTheme,
	}); err != nil {
		logger.Fatal("Failed to register scheduled jobs: %v", err)
	}
	sched.Start()

	// 管理接口
	jwtManager, err := auth.NewJWTManager(&auth.JWTConfig{
		SecretKey:  cfg.Admin.JWTSecret,
		Issuer:     cfg.Admin.Issuer,
		ExpireTime: 24 * time.Hour,
	})
	if err != nil {
		logger.Fatal("Admin API requires admin.jwt_secret (or ADMIN_JWT_SECRET): %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	ctrls := routes.SetupControllers(routes.Dependencies{
		Generator: gen,
		Sources:   sources,
		Traffic:   accessLog,
		Domains:   domains,
		Pages:     pages,
		Checks: map[string]controllers.HealthCheck{
			"redis": redisClient.Ping,
			"database": func(ctx context.Context) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		Tasks:   sched,
		Monitor: monitor,
		Clock:   utils.RealClock{},
		Logger:  logger,
		Version: version,
	}, cfg)
	adminRouter := routes.NewAdminRouter(ctrls, jwtManager, monitor, cfg.Admin, logger)

	servers := siteserver.NewManager(logger)
	publicAddr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	if err := servers.Start(siteserver.RolePublic, publicAddr, siteHandler.CreateSiteHandler()); err != nil {
		logger.Fatal("Failed to start public server on %s: %v", publicAddr, err)
	}
	adminAddr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.AdminPort)
	if err := servers.Start(siteserver.RoleAdmin, adminAddr, adminRouter); err != nil {
		logger.Fatal("Failed to start admin server on %s: %v", adminAddr, err)
	}
	logger.Info("Content pool serving on %s (admin %s)", publicAddr, adminAddr)

	// 配置热重载：同步域名列表
	configManager := config.GetInstance()
	configManager.AddConfigChangeHandler(func(newConfig *config.Config) {
		n, err := domains.SyncFromConfig(context.Background(), newConfig.Domains)
		result, msg := "success", ""
		if err != nil {
			result, msg = "failure", err.Error()
			logger.Error("Domain sync after config reload failed: %v", err)
		}
		logger.LogAdminAction("system", "localhost", "config_update", "domains", map[string]interface{}{"synced": n}, result, msg)
	})
	if err := configManager.StartWatching(); err != nil {
		logger.Warn("Failed to start config watching: %v", err)
	}

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Received %s, shutting down", sig)
	case err := <-servers.Errors():
		logger.Error("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	configManager.StopWatching()
	if err := servers.StopAll(shutdownCtx); err != nil {
		logger.Error("Failed to stop servers: %v", err)
	}
	sched.Stop()
	accessLog.Close()
	if err := monitor.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop monitoring server: %v", err)
	}
	logger.Info("Shutdown complete")
}

// runRegenerate 命令行触发一次重建
func runRegenerate(ctx context.Context, gen *generator.Generator, target string, cfg config.GeneratorConfig) error {
	if strings.EqualFold(target, "all") {
		results, err := gen.RegenerateAll(ctx, cfg.DefaultPageCount, cfg.DefaultTheme)
		if err != nil {
			return err
		}
		var errs []error
		for _, r := range results {
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Domain, r.Err))
				continue
			}
			fmt.Printf("%s\t%s\t%d pages\n", r.Domain, r.Result.Generation, r.Result.PagesWritten)
		}
		return errors.Join(errs...)
	}

	res, err := gen.Regenerate(ctx, target, cfg.DefaultPageCount, cfg.DefaultTheme)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%d pages in %s\n", res.Domain, res.Generation, res.PagesWritten, res.Duration)
	return nil
}
