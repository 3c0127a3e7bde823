// =============================================================================
// VideoFlow 主入口
// =============================================================================
// 完整服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	videoflow serve                       # 启动服务
//	videoflow serve --config config.yaml  # 指定配置文件
//	videoflow version                     # 显示版本信息
//	videoflow health                      # 就绪检查
//	videoflow migrate up                  # 运行数据库迁移
//	videoflow migrate down                # 回滚最后一次迁移
//	videoflow migrate status              # 查看迁移状态
// =============================================================================

// @title VideoFlow API
// @version 1.0.0
// @description VideoFlow drives a headless browser to a video page, captures frames
// @description on a planned strategy, and answers questions about the video through
// @description a vision model.
// @description
// @description ## Features
// @description - Session pipeline: navigate, detect player, capture, analyze, synthesize
// @description - Frame capture strategies: time distribution, event points, slide transitions
// @description - Live session events over WebSocket
// @description - Session archive and reusable analysis presets
// @description - Health monitoring and metrics

// @contact.name VideoFlow Team
// @contact.url https://github.com/BaSui01/videoflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/videoflow/api/handlers"
	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// resolveBuildInfo 用模块构建信息补齐 ldflags 没注入的字段。
// `go install` 直装的二进制没有 ldflags,但带 VCS 戳。
func resolveBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if GitCommit == "unknown" {
				GitCommit = s.Value
			}
		case "vcs.time":
			if BuildTime == "unknown" {
				BuildTime = s.Value
			}
		}
	}
}

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	resolveBuildInfo()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	// 解析命令行参数
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	// 容器里不方便传参,没有 --config 时认 VIDEOFLOW_CONFIG
	if *configPath == "" {
		*configPath = os.Getenv("VIDEOFLOW_CONFIG")
	}

	// 加载配置,校验挂在加载器上一起跑
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting VideoFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 创建服务器
	server := NewServer(cfg, logger, otelProviders)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	server.WaitForShutdown()

	logger.Info("VideoFlow stopped")
}

// =============================================================================
// 🏥 就绪检查命令
// =============================================================================

// runHealthCheck 探测 /ready 并打印各依赖检查结果。
// /health 只要进程活着就返回 200,对运维没有信息量。
func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	fs.Parse(args)

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*addr + "/ready")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status handlers.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: unexpected response: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(status.Status)
	for name, check := range status.Checks {
		if check.Status != "pass" {
			fmt.Printf("  %s: %s", name, check.Status)
			if check.Message != "" {
				fmt.Printf(" (%s)", check.Message)
			}
			fmt.Println()
		}
	}

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("VideoFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`VideoFlow - Video Analysis Service

Usage:
  videoflow <command> [options]

Commands:
  serve     Start the VideoFlow server
  migrate   Database migration commands
  version   Show version information
  health    Check server readiness
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML),
                    defaults to $VIDEOFLOW_CONFIG

Options for 'health':
  --addr <url>      Server address (default http://localhost:8080)
  --timeout <d>     Request timeout (default 5s)

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate info      Show migration summary
  migrate steps <n> Apply n migrations (negative rolls back)
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Examples:
  videoflow serve
  videoflow serve --config /etc/videoflow/config.yaml
  videoflow migrate up
  videoflow migrate status
  videoflow health --addr http://localhost:8080
  videoflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console"

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if console {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      console,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 多半是输出路径打不开,退回标准生产配置并把原因留在 stderr
		fmt.Fprintf(os.Stderr, "logger config failed (%v), falling back to production defaults\n", err)
		logger, _ = zap.NewProduction()
	}

	return logger
}
