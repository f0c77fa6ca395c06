package config

import (
	"testing"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5178, cfg.Server.Port)
	assert.True(t, cfg.Amount.UniformEVMDecimals)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "/metrics", cfg.Monitoring.MetricsPath)
	assert.Empty(t, cfg.Tracing.Endpoint)

	require.Len(t, cfg.Providers, 5)
	byName := make(map[string]types.ProviderConfig)
	for _, p := range cfg.Providers {
		byName[p.Name] = p
		assert.Equal(t, 8*time.Second, p.Timeout, p.Name)
		assert.NotEmpty(t, p.PlatformURL, p.Name)
	}

	assert.Equal(t, types.FailOpen, byName[types.ProviderJupiter].FallbackPolicy)
	assert.Equal(t, types.GracefulFallback, byName[types.ProviderSocket].FallbackPolicy)
	assert.Equal(t, 5.0, byName[types.Provider1inch].Estimate.MainnetSwapGasUSD)
	assert.Equal(t, 10.0, byName[types.ProviderLiFi].Estimate.BridgeGasUSD)
	assert.Equal(t, "https://api.rango.exchange", byName[types.ProviderRango].BaseURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AMOUNT_UNIFORM_EVM_DECIMALS", "false")
	t.Setenv("ONEINCH_TIMEOUT", "2s")
	t.Setenv("ONEINCH_API_KEY", "secret")
	t.Setenv("LIFI_ENABLED", "false")
	t.Setenv("CACHE_DEFAULT_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Amount.UniformEVMDecimals)
	assert.Equal(t, 15*time.Second, cfg.Cache.DefaultTTL)

	for _, p := range cfg.Providers {
		switch p.Name {
		case types.Provider1inch:
			assert.Equal(t, 2*time.Second, p.Timeout)
			assert.Equal(t, "secret", p.APIKey)
		case types.ProviderLiFi:
			assert.False(t, p.IsActive)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"PORT": "70000"}, "无效的端口号"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "无效的日志级别"},
		{"zero timeout", map[string]string{"SOCKET_TIMEOUT": "0s"}, "SOCKET_TIMEOUT"},
		{"redis without port", map[string]string{"REDIS_ENABLED": "true", "REDIS_PORT": "0"}, "Redis端口号"},
		{"rate limit zero", map[string]string{"RATE_LIMIT_REQUESTS": "0"}, "RATE_LIMIT_REQUESTS"},
		{"all disabled", map[string]string{
			"JUPITER_ENABLED": "false",
			"ONEINCH_ENABLED": "false",
			"RANGO_ENABLED":   "false",
			"LIFI_ENABLED":    "false",
			"SOCKET_ENABLED":  "false",
		}, "至少需要一个活跃的聚合器"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
