// =============================================================================
// 📦 VideoFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VIDEOFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// YAML 里可以写 ${VAR} 引用环境变量（未设置的展开为空串），
// 未知键会被拒绝，拼写错误在启动时暴露而不是静默吃掉
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 VideoFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Browser 浏览器自动化配置
	Browser BrowserConfig `yaml:"browser" env:"BROWSER"`

	// Vision 视觉推理端点配置
	Vision VisionConfig `yaml:"vision" env:"VISION"`

	// Analysis 帧分析流水线配置
	Analysis AnalysisConfig `yaml:"analysis" env:"ANALYSIS"`

	// Session 会话编排配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Cache 帧分析缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Redis 缓存二级存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 会话归档数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// JWT 鉴权配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 限流速率
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Key 列表（为空则关闭 API Key 鉴权）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// CORS 允许的来源
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	// TLS 证书路径（与 tls_key_file 同时设置则以 HTTPS 对外服务）
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥路径
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// BrowserConfig 浏览器自动化配置
type BrowserConfig struct {
	// 是否无头模式
	Headless bool `yaml:"headless" env:"HEADLESS"`
	// Chrome 可执行文件路径（为空则自动查找）
	ExecPath string `yaml:"exec_path" env:"EXEC_PATH"`
	// User-Agent（为空则使用浏览器默认值）
	UserAgent string `yaml:"user_agent" env:"USER_AGENT"`
	// 视口宽度
	WindowWidth int `yaml:"window_width" env:"WINDOW_WIDTH"`
	// 视口高度
	WindowHeight int `yaml:"window_height" env:"WINDOW_HEIGHT"`
	// 导航超时
	NavigationTimeout time.Duration `yaml:"navigation_timeout" env:"NAVIGATION_TIMEOUT"`
	// 定位点稳定等待时长（seek 之后等待画面稳定）
	StabilizeDelay time.Duration `yaml:"stabilize_delay" env:"STABILIZE_DELAY"`
	// 截图 JPEG 质量 (1-100)
	ScreenshotQuality int `yaml:"screenshot_quality" env:"SCREENSHOT_QUALITY"`
	// 播放器探测总超时
	PlayerDetectTimeout time.Duration `yaml:"player_detect_timeout" env:"PLAYER_DETECT_TIMEOUT"`
	// 播放器探测轮询间隔
	PlayerDetectInterval time.Duration `yaml:"player_detect_interval" env:"PLAYER_DETECT_INTERVAL"`
}

// VisionConfig 视觉推理端点配置
type VisionConfig struct {
	// Provider 名称（日志与错误标记用）
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（OpenAI 兼容端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大输出 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 客户端侧限速（每秒请求数，0 为不限速）
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// AnalysisConfig 帧分析流水线配置
type AnalysisConfig struct {
	// 批内并发数（同时进行的推理调用数）
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 批间延迟
	BatchDelay time.Duration `yaml:"batch_delay" env:"BATCH_DELAY"`
	// 单会话最大捕获帧数
	MaxFrames int `yaml:"max_frames" env:"MAX_FRAMES"`
	// 事件点轮询次数
	EventPollAttempts int `yaml:"event_poll_attempts" env:"EVENT_POLL_ATTEMPTS"`
	// 事件点轮询间隔
	EventPollInterval time.Duration `yaml:"event_poll_interval" env:"EVENT_POLL_INTERVAL"`
	// 幻灯片采样间隔（slide_transitions 策略）
	SlideSampleInterval time.Duration `yaml:"slide_sample_interval" env:"SLIDE_SAMPLE_INTERVAL"`
}

// SessionConfig 会话编排配置
type SessionConfig struct {
	// 会话总超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 终态会话在内存中的保留时长
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
	// 同时运行的会话上限（0 为不限制）
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 是否归档终态会话到数据库
	ArchiveEnabled bool `yaml:"archive_enabled" env:"ARCHIVE_ENABLED"`
}

// CacheConfig 帧分析缓存配置
type CacheConfig struct {
	// 是否启用本地缓存
	EnableLocal bool `yaml:"enable_local" env:"ENABLE_LOCAL"`
	// 本地缓存容量（条目数）
	LocalMaxSize int `yaml:"local_max_size" env:"LOCAL_MAX_SIZE"`
	// 本地缓存 TTL
	LocalTTL time.Duration `yaml:"local_ttl" env:"LOCAL_TTL"`
	// 是否启用 Redis 二级缓存
	EnableRedis bool `yaml:"enable_redis" env:"ENABLE_REDIS"`
	// Redis 缓存 TTL
	RedisTTL time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`
}

// RedisConfig 帧缓存二级存储的 Redis 连接配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 会话归档数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// JWTConfig JWT 鉴权配置
type JWTConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RSA 公钥 PEM 路径（优先于 Secret）
	RSAPublicKeyPath string `yaml:"rsa_public_key_path" env:"RSA_PUBLIC_KEY_PATH"`
	// 签发者校验（为空则跳过）
	Issuer string `yaml:"issuer" env:"ISSUER"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VIDEOFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 按 默认值 → YAML 文件 → 环境变量 的优先级合成配置,
// 然后依次运行注册的验证器。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// envRefPattern 只认花括号形式的 ${VAR},裸 $ 不动,
// 密码之类带 $ 的值不会被误展开。
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs 展开文本里的 ${VAR} 引用,语义与 shell 一致:未设置的变量展开为空串。
func expandEnvRefs(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(ref[2 : len(ref)-1])
		return []byte(os.Getenv(name))
	})
}

// loadFromFile 从 YAML 文件加载配置。
// 显式指定的文件必须存在:拼错路径静默跑在默认值上,比启动失败难查得多。
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(expandEnvRefs(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// 空文件等同没写,默认值生效
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse yaml: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 把环境变量的字符串值解析进字段
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem())
		}
		// 逗号分隔,空段丢弃:API key 列表里混进空串,没带请求头的请求就直接命中了
		parts := make([]string, 0, strings.Count(value, ",")+1)
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}

// =============================================================================
// 🔍 校验与 DSN
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	// 验证分析流水线配置
	if c.Analysis.Concurrency <= 0 {
		errs = append(errs, "analysis concurrency must be positive")
	}
	if c.Analysis.BatchDelay < 0 {
		errs = append(errs, "analysis batch_delay must not be negative")
	}
	if c.Analysis.MaxFrames <= 0 {
		errs = append(errs, "analysis max_frames must be positive")
	}

	// 验证浏览器配置
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		errs = append(errs, "browser window size must be positive")
	}
	if c.Browser.ScreenshotQuality < 1 || c.Browser.ScreenshotQuality > 100 {
		errs = append(errs, "screenshot_quality must be between 1 and 100")
	}

	// 验证视觉端点配置
	if c.Vision.Model == "" {
		errs = append(errs, "vision model must not be empty")
	}
	if c.Vision.Temperature < 0 || c.Vision.Temperature > 2 {
		errs = append(errs, "vision temperature must be between 0 and 2")
	}

	// 验证会话配置
	if c.Session.Timeout <= 0 {
		errs = append(errs, "session timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
