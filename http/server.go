// Package http 提供仪表盘的HTTP服务器、中间件与接口处理器
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"flightdash/config"
)

// Server HTTP服务器
type Server struct {
	server  *http.Server
	config  ServerConfig
	handler http.Handler
	logger  *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
	StaticDir      string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// ServerConfigFrom 由配置文件的 http 段生成服务器配置
func ServerConfigFrom(cfg config.HTTPConfig) ServerConfig {
	return ServerConfig{
		Port:           cfg.Port,
		Timeout:        cfg.Timeout,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		StaticDir:      cfg.StaticDir,
	}
}

// NewServer 创建HTTP服务器
func NewServer(cfg ServerConfig, handlers *Handlers) *Server {
	mux := http.NewServeMux()
	handlers.Register(mux)
	if cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	// 日志中间件放在最内层，ServeMux 回填的路由模式才对它可见
	chain := Chain(
		RecoveryMiddleware(handlers.logger),
		TimeoutMiddleware(cfg.Timeout),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.AllowedOrigins),
		RequestSizeMiddleware(cfg.MaxBodyBytes),
		LoggerMiddleware(handlers.logger, handlers.metrics),
	)
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.Timeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config:  cfg,
		handler: handler,
		logger:  handlers.logger,
	}
}

// Handler 返回包含中间件链的根处理器
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "/api/ws/dashboard"))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
