// =============================================================================
// 📦 VideoFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Browser:   DefaultBrowserConfig(),
		Vision:    DefaultVisionConfig(),
		Analysis:  DefaultAnalysisConfig(),
		Session:   DefaultSessionConfig(),
		Cache:     DefaultCacheConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		JWT:       DefaultJWTConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		AllowedOrigins:  []string{},
	}
}

// DefaultBrowserConfig 返回默认浏览器配置
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:             true,
		WindowWidth:          1920,
		WindowHeight:         1080,
		NavigationTimeout:    30 * time.Second,
		StabilizeDelay:       3 * time.Second,
		ScreenshotQuality:    85,
		PlayerDetectTimeout:  15 * time.Second,
		PlayerDetectInterval: 500 * time.Millisecond,
	}
}

// DefaultVisionConfig 返回默认视觉端点配置
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		Provider:          "openai",
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o",
		Timeout:           2 * time.Minute,
		MaxTokens:         1024,
		Temperature:       0.2,
		RequestsPerSecond: 0,
	}
}

// DefaultAnalysisConfig 返回默认分析流水线配置
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Concurrency:         3,
		BatchDelay:          2 * time.Second,
		MaxFrames:           20,
		EventPollAttempts:   3,
		EventPollInterval:   2 * time.Second,
		SlideSampleInterval: 10 * time.Second,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:        10 * time.Minute,
		Retention:      1 * time.Hour,
		MaxConcurrent:  0,
		ArchiveEnabled: false,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		EnableLocal:  true,
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		EnableRedis:  false,
		RedisTTL:     1 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "videoflow",
		Password:        "",
		Name:            "videoflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "videoflow",
		SampleRate:   0.1,
	}
}

// DefaultJWTConfig 返回默认 JWT 配置
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Enabled: false,
	}
}
