package siteserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"content-pool/internal/logging"
)

// 服务角色
const (
	RolePublic = "public"
	RoleAdmin  = "admin"
)

// Manager 服务器管理器，按角色管理公开站点与管理接口的 http.Server
type Manager struct {
	mu      sync.Mutex
	servers map[string]*http.Server
	errs    chan error
	logger  *logging.Logger
}

// NewManager 创建服务器管理器实例
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Manager{
		servers: make(map[string]*http.Server),
		errs:    make(chan error, 4),
		logger:  logger,
	}
}

// Start 在 addr 上启动一个角色的服务器；同一角色只能启动一次
// 监听失败立即返回错误，运行期间的错误通过 Errors() 上报
func (m *Manager) Start(role, addr string, handler http.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.servers[role]; exists {
		return fmt.Errorf("server %s already running", role)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s on %s: %w", role, addr, err)
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	m.servers[role] = server

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Server %s on %s stopped: %v", role, server.Addr, err)
			select {
			case m.errs <- fmt.Errorf("%s server: %w", role, err):
			default:
			}
		}
	}()

	m.logger.Info("Server %s listening on %s", role, server.Addr)
	return nil
}

// Errors 运行期间的服务器错误
func (m *Manager) Errors() <-chan error {
	return m.errs
}

// Addr 返回角色实际监听的地址
func (m *Manager) Addr(role string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, exists := m.servers[role]
	if !exists {
		return "", false
	}
	return server.Addr, true
}

// Roles 列出正在运行的角色
func (m *Manager) Roles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make([]string, 0, len(m.servers))
	for role := range m.servers {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Stop 优雅停止一个角色的服务器
func (m *Manager) Stop(ctx context.Context, role string) error {
	m.mu.Lock()
	server, exists := m.servers[role]
	delete(m.servers, role)
	m.mu.Unlock()
	if !exists {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		m.logger.Error("Failed to stop server %s: %v", role, err)
		return err
	}
	m.logger.Info("Server %s stopped", role)
	return nil
}

// StopAll 停止所有服务器
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, role := range m.Roles() {
		if err := m.Stop(ctx, role); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
