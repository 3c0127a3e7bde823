package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/api/handlers"
	"github.com/BaSui01/videoflow/browser"
	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/framecache"
	"github.com/BaSui01/videoflow/internal/cache"
	"github.com/BaSui01/videoflow/internal/database"
	"github.com/BaSui01/videoflow/internal/metrics"
	"github.com/BaSui01/videoflow/internal/server"
	"github.com/BaSui01/videoflow/internal/telemetry"
	"github.com/BaSui01/videoflow/session"
	"github.com/BaSui01/videoflow/store"
	"github.com/BaSui01/videoflow/vision"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 VideoFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 持久层(数据库不可用时为 nil,归档与预设接口不注册)
	poolManager *database.PoolManager
	store       *store.Store

	// 帧分析缓存
	cacheManager *cache.Manager
	frameCache   *framecache.MultiLevel

	// 会话流水线
	visionClient   *vision.Client
	sessionManager *session.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	sessionHandler  *handlers.SessionHandler
	archiveHandler  *handlers.ArchiveHandler
	settingsHandler *handlers.SettingsHandler
	reportHandler   *handlers.ReportHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("videoflow", s.logger)

	// 2. 初始化持久层
	if err := s.initStore(); err != nil {
		s.logger.Warn("Database not available, archive and presets disabled", zap.Error(err))
	}

	// 3. 初始化帧缓存
	s.initFrameCache()

	// 4. 初始化会话流水线
	if err := s.initSessionManager(); err != nil {
		return fmt.Errorf("failed to init session manager: %w", err)
	}

	// 5. 初始化 Handlers
	s.initHandlers()

	// 6. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("archive_enabled", s.store != nil && s.cfg.Session.ArchiveEnabled),
		zap.Bool("redis_cache_enabled", s.cacheManager != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 打开归档数据库并确保表结构最新。
// 数据库不可用不阻止启动:分析流水线照常工作,只是没有归档与预设。
func (s *Server) initStore() error {
	db, err := store.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}

	pm, err := database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns:        s.cfg.Database.MaxIdleConns,
		MaxOpenConns:        s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime:     s.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     s.cfg.Database.ConnMaxLifetime / 2,
		HealthCheckInterval: 30 * time.Second,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init connection pool: %w", err)
	}
	pm.SetMetricsCollector(s.metricsCollector, s.cfg.Database.Name)
	s.poolManager = pm

	st := store.New(pm.DB(), s.logger)
	if err := st.AutoMigrate(); err != nil {
		return err
	}
	s.store = st
	return nil
}

// initFrameCache 组装帧分析缓存。Redis 连不上时降级为仅本地层,
// 本地层也关闭时缓存整体禁用。
func (s *Server) initFrameCache() {
	cacheCfg := &framecache.Config{
		LocalMaxSize: s.cfg.Cache.LocalMaxSize,
		LocalTTL:     s.cfg.Cache.LocalTTL,
		RedisTTL:     s.cfg.Cache.RedisTTL,
		EnableLocal:  s.cfg.Cache.EnableLocal,
		EnableRedis:  s.cfg.Cache.EnableRedis,
	}

	if s.cfg.Cache.EnableRedis {
		mgr, err := cache.NewManager(cache.Config{
			Addr:                s.cfg.Redis.Addr,
			Password:            s.cfg.Redis.Password,
			DB:                  s.cfg.Redis.DB,
			DefaultTTL:          s.cfg.Cache.RedisTTL,
			PoolSize:            s.cfg.Redis.PoolSize,
			MinIdleConns:        s.cfg.Redis.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
		}, s.logger)
		if err != nil {
			s.logger.Warn("Redis not available, frame cache degraded to local only",
				zap.String("addr", s.cfg.Redis.Addr),
				zap.Error(err))
			cacheCfg.EnableRedis = false
		} else {
			s.cacheManager = mgr
		}
	}

	if !cacheCfg.EnableLocal && !cacheCfg.EnableRedis {
		s.logger.Info("Frame cache disabled")
		return
	}
	s.frameCache = framecache.NewMultiLevel(s.cacheManager, cacheCfg, s.logger)
}

// initSessionManager 组装视觉客户端、浏览器工厂与会话管理器
func (s *Server) initSessionManager() error {
	if s.cfg.Vision.APIKey == "" {
		return fmt.Errorf("vision API key not configured")
	}

	s.visionClient = vision.NewClient(vision.Config{
		ProviderName:      s.cfg.Vision.Provider,
		APIKey:            s.cfg.Vision.APIKey,
		BaseURL:           s.cfg.Vision.BaseURL,
		Model:             s.cfg.Vision.Model,
		Timeout:           s.cfg.Vision.Timeout,
		MaxTokens:         s.cfg.Vision.MaxTokens,
		Temperature:       s.cfg.Vision.Temperature,
		RequestsPerSecond: s.cfg.Vision.RequestsPerSecond,
	}, s.logger)

	// 上游调用统一走包装:流水线推理和浏览器侧的事件/幻灯片
	// 判定都计入 inference_* 指标
	provider := metrics.InstrumentProvider(s.visionClient, s.metricsCollector)

	browserCfg := s.browserConfig()
	navigators := func(ctx context.Context) (browser.Navigator, error) {
		return browser.NewChromeAgent(browserCfg, provider, s.logger)
	}

	components := session.Components{
		Navigators: navigators,
		Provider:   provider,
		Metrics:    s.metricsCollector,
	}
	if s.frameCache != nil {
		components.Cache = metrics.InstrumentCache(s.frameCache, s.metricsCollector)
	}
	// typed-nil 陷阱:store 为 nil 时不能直接塞进接口字段
	if s.store != nil && s.cfg.Session.ArchiveEnabled {
		components.Archiver = s.store
	}

	s.sessionManager = session.NewManager(components, s.sessionConfig(), s.logger)
	return nil
}

// browserConfig 把应用配置映射到浏览器自动化配置
func (s *Server) browserConfig() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.Headless = s.cfg.Browser.Headless
	cfg.ExecPath = s.cfg.Browser.ExecPath
	cfg.UserAgent = s.cfg.Browser.UserAgent
	if s.cfg.Browser.WindowWidth > 0 {
		cfg.WindowWidth = s.cfg.Browser.WindowWidth
	}
	if s.cfg.Browser.WindowHeight > 0 {
		cfg.WindowHeight = s.cfg.Browser.WindowHeight
	}
	if s.cfg.Browser.NavigationTimeout > 0 {
		cfg.NavigationTimeout = s.cfg.Browser.NavigationTimeout
	}
	if s.cfg.Browser.StabilizeDelay > 0 {
		cfg.StabilizeTimeout = s.cfg.Browser.StabilizeDelay
	}
	if s.cfg.Browser.ScreenshotQuality > 0 {
		cfg.ScreenshotQuality = s.cfg.Browser.ScreenshotQuality
	}
	if s.cfg.Browser.PlayerDetectTimeout > 0 {
		cfg.PlayerDetectTimeout = s.cfg.Browser.PlayerDetectTimeout
	}
	if s.cfg.Browser.PlayerDetectInterval > 0 {
		cfg.PlayerDetectInterval = s.cfg.Browser.PlayerDetectInterval
	}
	return cfg
}

// sessionConfig 把应用配置映射到会话流水线配置
func (s *Server) sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Timeout = s.cfg.Session.Timeout
	cfg.Retention = s.cfg.Session.Retention
	cfg.MaxConcurrent = s.cfg.Session.MaxConcurrent

	cfg.Capture.StabilizeTimeout = s.cfg.Browser.StabilizeDelay
	cfg.Capture.EventPollAttempts = s.cfg.Analysis.EventPollAttempts
	cfg.Capture.EventPollInterval = s.cfg.Analysis.EventPollInterval
	cfg.Capture.SlideSampleInterval = s.cfg.Analysis.SlideSampleInterval.Seconds()
	cfg.Capture.MaxFrames = s.cfg.Analysis.MaxFrames

	cfg.Analysis.Concurrency = s.cfg.Analysis.Concurrency
	cfg.Analysis.BatchDelay = s.cfg.Analysis.BatchDelay
	cfg.Analysis.MaxTokens = s.cfg.Vision.MaxTokens
	cfg.Analysis.Temperature = s.cfg.Vision.Temperature
	cfg.Analysis.Model = s.cfg.Vision.Model

	cfg.Synthesis.Model = s.cfg.Vision.Model
	return cfg
}

// initHandlers 初始化所有 handlers 并注册健康检查
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.sessionHandler = handlers.NewSessionHandler(s.sessionManager, s.logger)
	s.reportHandler = handlers.NewReportHandler(s.sessionManager, s.store, s.logger)

	if s.store != nil {
		s.archiveHandler = handlers.NewArchiveHandler(s.store, s.logger)
		s.settingsHandler = handlers.NewSettingsHandler(s.store, s.logger)
	}

	// 就绪检查:归档库和缓存层是旁路,失败只降级;推理端点是硬依赖
	if s.poolManager != nil {
		s.healthHandler.RegisterOptionalCheck(handlers.NewPingHealthCheck("database", s.poolManager.Ping))
	}
	if s.cacheManager != nil {
		s.healthHandler.RegisterOptionalCheck(handlers.NewPingHealthCheck("redis", s.cacheManager.Ping))
	}
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("vision", func(ctx context.Context) error {
		status, err := s.visionClient.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return fmt.Errorf("vision endpoint unhealthy")
		}
		return nil
	}))

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 会话 API 路由
	// ========================================
	mux.HandleFunc("/api/v1/sessions", s.sessionHandler.HandleSessions)
	mux.HandleFunc("/api/v1/sessions/{id}", s.sessionHandler.HandleSession)
	mux.HandleFunc("/api/v1/sessions/{id}/result", s.sessionHandler.HandleResult)
	mux.HandleFunc("/api/v1/sessions/{id}/events", s.sessionHandler.HandleEvents)
	mux.HandleFunc("/api/v1/sessions/{id}/report", s.reportHandler.HandleReport)

	// ========================================
	// 归档与预设 API(需要数据库)
	// ========================================
	if s.archiveHandler != nil {
		mux.HandleFunc("/api/v1/archive", s.archiveHandler.HandleArchive)
		mux.HandleFunc("/api/v1/archive/{id}", s.archiveHandler.HandleArchivedSession)
		s.logger.Info("Archive API routes registered")
	}
	if s.settingsHandler != nil {
		mux.HandleFunc("/api/v1/settings", s.settingsHandler.HandleSettings)
		mux.HandleFunc("/api/v1/settings/{name}", s.settingsHandler.HandleSettingsByName)
		s.logger.Info("Settings API routes registered")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	middlewares = append(middlewares,
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)
	if s.cfg.JWT.Enabled {
		middlewares = append(middlewares,
			JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger),
			TenantRateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		)
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）;配置了证书就以 HTTPS 对外
	var err error
	if s.cfg.Server.TLSCertFile != "" {
		err = s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.httpManager.Start()
	}
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server started",
		zap.String("addr", s.httpManager.BoundAddr()),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
	)
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	// 采集器用独立 registry,这里不能挂默认的 promhttp.Handler
	mux.Handle("/metrics", promhttp.HandlerFor(s.metricsCollector.Gatherer(), promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.BoundAddr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。顺序:先停进口(HTTP),
// 再排空会话,最后放掉会话依赖的缓存与数据库连接。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 取消在运行的会话并等待落到终态(含归档)
	if s.sessionManager != nil {
		if err := s.sessionManager.Close(ctx); err != nil {
			s.logger.Error("Session manager shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭缓存与数据库连接
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}
	if s.poolManager != nil {
		if err := s.poolManager.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭遥测导出
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
