package controllers

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"content-pool/internal/monitoring"
	"content-pool/internal/scheduler"
)

// HealthCheck 依赖健康检查
type HealthCheck func(ctx context.Context) error

// TaskLister 定时任务状态
type TaskLister interface {
	ListTasks() []scheduler.TaskStatus
}

// SystemController 系统控制器
type SystemController struct {
	checks  map[string]HealthCheck
	monitor *monitoring.Monitor
	tasks   TaskLister
	version string
}

// NewSystemController 创建系统控制器实例
func NewSystemController(checks map[string]HealthCheck, monitor *monitoring.Monitor, tasks TaskLister, version string) *SystemController {
	return &SystemController{
		checks:  checks,
		monitor: monitor,
		tasks:   tasks,
		version: version,
	}
}

// Health 健康检查接口，任一依赖不可用时返回 503
func (c *SystemController) Health(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "running"
	deps := gin.H{}
	for _, name := range names {
		if err := c.checks[name](reqCtx); err != nil {
			deps[name] = "disconnected"
			status = "degraded"
			continue
		}
		deps[name] = "connected"
	}

	code := http.StatusOK
	if status != "running" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, gin.H{
		"code":    code,
		"message": status,
		"data": gin.H{
			"status":       status,
			"service":      "content-pool",
			"dependencies": deps,
			"timestamp":    time.Now().Unix(),
		},
	})
}

// Version 版本信息接口
func (c *SystemController) Version(ctx *gin.Context) {
	success(ctx, gin.H{
		"version": c.version,
		"name":    "content-pool",
	})
}

// System 主机资源、运行计数与定时任务状态
func (c *SystemController) System(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	data := gin.H{
		"goroutines": runtime.NumGoroutine(),
		"stats":      c.monitor.GetStats(),
	}

	if vm, err := mem.VirtualMemoryWithContext(reqCtx); err == nil {
		data["memory"] = gin.H{
			"total":        vm.Total,
			"used":         vm.Used,
			"used_percent": vm.UsedPercent,
		}
	}
	if pct, err := cpu.PercentWithContext(reqCtx, 0, false); err == nil && len(pct) > 0 {
		data["cpu_percent"] = pct[0]
	}
	if up, err := host.UptimeWithContext(reqCtx); err == nil {
		data["host_uptime_seconds"] = up
	}

	tasks := []scheduler.TaskStatus{}
	if c.tasks != nil {
		tasks = c.tasks.ListTasks()
	}
	data["tasks"] = tasks

	success(ctx, data)
}
