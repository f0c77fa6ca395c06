// Package config 费用比价服务配置管理
// 从环境变量和.env文件加载配置，设置默认值并验证
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// defaultProviderTimeout 单个聚合器默认超时时间
const defaultProviderTimeout = 8 * time.Second

// Load 加载比价服务配置
// 从环境变量和.env文件加载配置，设置默认值
// 返回:
//   - *types.Config: 完整的服务配置
//   - error: 配置验证错误
func Load() (*types.Config, error) {
	// 尝试加载.env文件
	if err := godotenv.Load(); err != nil {
		logrus.Info("未找到.env文件，使用环境变量配置")
	}

	config := &types.Config{
		Server: types.ServerConfig{
			Port:        getEnvAsInt("PORT", 5178),
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Debug:       getEnvAsBool("DEBUG", false),
		},
		Providers: loadProviderConfigs(),
		Amount: types.AmountConfig{
			UniformEVMDecimals: getEnvAsBool("AMOUNT_UNIFORM_EVM_DECIMALS", true),
		},
		Redis: types.RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Cache: types.CacheConfig{
			DefaultTTL: getEnvAsDuration("CACHE_DEFAULT_TTL", 15*time.Second),
			PrefixKey:  getEnv("CACHE_PREFIX", "fee_compare:"),
		},
		Monitoring: types.MonitoringConfig{
			MetricsEnabled:  getEnvAsBool("MONITORING_METRICS_ENABLED", true),
			MetricsPath:     getEnv("MONITORING_METRICS_PATH", "/metrics"),
			HealthCheckPath: getEnv("MONITORING_HEALTH_PATH", "/health"),
			LogRequests:     getEnvAsBool("MONITORING_LOG_REQUESTS", true),
			SlowRequestMs:   getEnvAsInt("MONITORING_SLOW_REQUEST_MS", 5000),
		},
		RateLimit: types.RateLimitConfig{
			Enabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Tracing: types.TracingConfig{
			Endpoint:    getEnv("OTEL_ENDPOINT", ""),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "fee-compare"),
		},
	}

	// 验证配置
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return config, nil
}

// loadProviderConfigs 加载聚合器配置
// 降级估算常量固定在这里，地址和密钥可以通过环境变量覆盖
func loadProviderConfigs() []types.ProviderConfig {
	providers := []types.ProviderConfig{
		// Jupiter配置(Solana，失败时不参与比较)
		{
			Name:           types.ProviderJupiter,
			DisplayName:    "Jupiter",
			BaseURL:        getEnv("JUPITER_API_URL", "https://quote-api.jup.ag/v6"),
			APIKey:         getEnv("JUPITER_API_KEY", ""),
			Timeout:        getEnvAsDuration("JUPITER_TIMEOUT", defaultProviderTimeout),
			RetryCount:     getEnvAsInt("JUPITER_RETRY_COUNT", 1),
			IsActive:       getEnvAsBool("JUPITER_ENABLED", true),
			FallbackPolicy: types.FailOpen,
		},

		// 1inch配置
		{
			Name:           types.Provider1inch,
			DisplayName:    "1inch",
			BaseURL:        getEnv("ONEINCH_API_URL", "https://api.1inch.dev/swap/v6.0"),
			APIKey:         getEnv("ONEINCH_API_KEY", ""),
			Timeout:        getEnvAsDuration("ONEINCH_TIMEOUT", defaultProviderTimeout),
			RetryCount:     getEnvAsInt("ONEINCH_RETRY_COUNT", 1),
			IsActive:       getEnvAsBool("ONEINCH_ENABLED", true),
			FallbackPolicy: types.GracefulFallback,
			Estimate: types.FallbackEstimate{
				SwapGasUSD:        0.5,
				SwapRouteUSD:      0.1,
				BridgeGasUSD:      0.5,
				BridgeRouteUSD:    0.1,
				MainnetSwapGasUSD: 5.0,
			},
		},

		// Rango配置(接受任意链名)
		{
			Name:           types.ProviderRango,
			DisplayName:    "Rango",
			BaseURL:        getEnv("RANGO_API_URL", "https://api.rango.exchange"),
			APIKey:         getEnv("RANGO_API_KEY", ""),
			Timeout:        getEnvAsDuration("RANGO_TIMEOUT", defaultProviderTimeout),
			RetryCount:     getEnvAsInt("RANGO_RETRY_COUNT", 1),
			IsActive:       getEnvAsBool("RANGO_ENABLED", true),
			FallbackPolicy: types.GracefulFallback,
			Estimate: types.FallbackEstimate{
				SwapGasUSD:     1.5,
				SwapRouteUSD:   0.3,
				BridgeGasUSD:   8.0,
				BridgeRouteUSD: 4.0,
			},
		},

		// LI.FI配置
		{
			Name:           types.ProviderLiFi,
			DisplayName:    "LI.FI",
			BaseURL:        getEnv("LIFI_API_URL", "https://li.quest/v1"),
			APIKey:         getEnv("LIFI_API_KEY", ""),
			Timeout:        getEnvAsDuration("LIFI_TIMEOUT", defaultProviderTimeout),
			RetryCount:     getEnvAsInt("LIFI_RETRY_COUNT", 1),
			IsActive:       getEnvAsBool("LIFI_ENABLED", true),
			FallbackPolicy: types.GracefulFallback,
			Estimate: types.FallbackEstimate{
				SwapGasUSD:     2.0,
				SwapRouteUSD:   0.5,
				BridgeGasUSD:   10.0,
				BridgeRouteUSD: 5.0,
			},
		},

		// Socket配置(默认使用公开API密钥)
		{
			Name:           types.ProviderSocket,
			DisplayName:    "Socket",
			BaseURL:        getEnv("SOCKET_API_URL", "https://api.socket.tech/v2"),
			APIKey:         getEnv("SOCKET_API_KEY", "72a5b4b0-e727-48be-8aa1-5da9d62fe635"),
			Timeout:        getEnvAsDuration("SOCKET_TIMEOUT", defaultProviderTimeout),
			RetryCount:     getEnvAsInt("SOCKET_RETRY_COUNT", 1),
			IsActive:       getEnvAsBool("SOCKET_ENABLED", true),
			FallbackPolicy: types.GracefulFallback,
			Estimate: types.FallbackEstimate{
				SwapGasUSD:     3.0,
				SwapRouteUSD:   0.4,
				BridgeGasUSD:   12.0,
				BridgeRouteUSD: 6.0,
			},
		},
	}

	for i := range providers {
		providers[i].PlatformURL = reference.PlatformURLs[providers[i].Name]
	}

	return providers
}

// validateConfig 验证配置的有效性
func validateConfig(cfg *types.Config) error {
	// 验证服务器配置
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", cfg.Server.Port)
	}
	if _, err := logrus.ParseLevel(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("无效的日志级别: %s", cfg.Server.LogLevel)
	}

	// 验证聚合器配置
	activeProviders := 0
	for _, provider := range cfg.Providers {
		if !provider.IsActive {
			continue
		}
		activeProviders++

		if provider.BaseURL == "" {
			return fmt.Errorf("%s_API_URL不能为空", envPrefix(provider.Name))
		}
		if provider.Timeout <= 0 {
			return fmt.Errorf("%s_TIMEOUT必须大于0", envPrefix(provider.Name))
		}
		if provider.RetryCount < 0 {
			return fmt.Errorf("%s_RETRY_COUNT不能为负数", envPrefix(provider.Name))
		}
	}
	if activeProviders == 0 {
		return fmt.Errorf("至少需要一个活跃的聚合器")
	}

	// 验证Redis配置
	if cfg.Redis.Enabled {
		if cfg.Redis.Host == "" {
			return fmt.Errorf("启用Redis时REDIS_HOST是必填项")
		}
		if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
			return fmt.Errorf("无效的Redis端口号: %d", cfg.Redis.Port)
		}
	}

	if cfg.Cache.DefaultTTL < 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL不能为负数")
	}

	// 验证限流配置
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Requests <= 0 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS必须大于0")
		}
		if cfg.RateLimit.Window <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW必须大于0")
		}
	}

	if !strings.HasPrefix(cfg.Monitoring.MetricsPath, "/") {
		return fmt.Errorf("无效的指标路径: %s", cfg.Monitoring.MetricsPath)
	}
	if !strings.HasPrefix(cfg.Monitoring.HealthCheckPath, "/") {
		return fmt.Errorf("无效的健康检查路径: %s", cfg.Monitoring.HealthCheckPath)
	}

	return nil
}

// envPrefix 聚合器对应的环境变量前缀
func envPrefix(name string) string {
	if name == types.Provider1inch {
		return "ONEINCH"
	}
	return strings.ToUpper(name)
}

// ========================================
// 环境变量辅助函数
// ========================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		logrus.Warnf("无法解析环境变量 %s 为整数，使用默认值 %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		logrus.Warnf("无法解析环境变量 %s 为布尔值，使用默认值 %t", key, defaultValue)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("无法解析环境变量 %s 为时间间隔，使用默认值 %v", key, defaultValue)
	}
	return defaultValue
}
