// Package types 定义费用比价服务中使用的所有数据类型
// 包含比价请求、统一费用模型、聚合器配置、错误类型等
package types

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ========================================
// 核心业务类型定义
// ========================================

// CompareRequest 比价请求
// 由HTTP层解析后交给比价服务，RawAmount字段由服务填充
type CompareRequest struct {
	RequestID string          `json:"request_id"`         // 请求ID
	Chain     string          `json:"chain"`              // 源链名称 (ethereum, solana...)
	FromToken string          `json:"from_token"`         // 源代币符号或地址
	ToToken   string          `json:"to_token"`           // 目标代币符号或地址
	ToChain   string          `json:"to_chain,omitempty"` // 目标链(仅跨链请求)
	Amount    decimal.Decimal `json:"amount"`             // 用户输入数量(人类可读)

	RawAmount    string `json:"-"` // 按源代币精度换算的最小单位数量
	RawAmountEVM string `json:"-"` // EVM聚合器使用的数量视图(默认统一按18位精度)
}

// IsBridge 判断是否为跨链请求
func (r *CompareRequest) IsBridge() bool {
	return r.ToChain != "" && !strings.EqualFold(r.ToChain, r.Chain)
}

// FeeQuote 单个聚合器的费用报价
// 所有聚合器的响应都会被转换为这一统一格式
type FeeQuote struct {
	Platform    string   `json:"platform"`        // 聚合器名称
	TotalFeeUSD float64  `json:"fee_usd"`         // 总费用 = Gas费 + 路由费
	GasFeeUSD   float64  `json:"gas_fee"`         // Gas费用(USD)
	RouteFeeUSD float64  `json:"route_fee"`       // 路由/协议费用(USD)
	Route       []string `json:"route"`           // 路径跳转标签，空表示直接兑换
	PlatformURL string   `json:"platform_url"`    // 聚合器跳转地址
	Viable      bool     `json:"success"`         // 是否可参与最便宜选择
	ErrorDetail string   `json:"error,omitempty"` // 走降级路径时的诊断信息
}

// SetFees 设置费用并计算总费用
// 负数费用按0处理，总费用只在这里计算
func (q *FeeQuote) SetFees(gas, route decimal.Decimal) {
	if gas.IsNegative() {
		gas = decimal.Zero
	}
	if route.IsNegative() {
		route = decimal.Zero
	}
	q.GasFeeUSD = gas.InexactFloat64()
	q.RouteFeeUSD = route.InexactFloat64()
	q.TotalFeeUSD = q.GasFeeUSD + q.RouteFeeUSD
}

// ComparisonResult 比价结果
type ComparisonResult struct {
	CheapestPlatform string            `json:"cheapest"`         // 最便宜的聚合器，无结果时为NoResult
	CheapestFee      float64           `json:"fee_usd"`          // 最便宜报价的总费用
	CheapestGasFee   float64           `json:"gas_fee"`          // 最便宜报价的Gas费
	CheapestRouteFee float64           `json:"route_fee"`        // 最便宜报价的路由费
	CheapestRoute    []string          `json:"route"`            // 最便宜报价的路径
	AllQuotes        []*FeeQuote       `json:"all_platforms"`    // 所有聚合器报价(未过滤，按调用顺序)
	PlatformURLs     map[string]string `json:"platform_urls"`    // 聚合器跳转地址表
	InputAmount      float64           `json:"input_amount"`     // 用户输入数量
	EstimatedOutput  float64           `json:"estimated_output"` // 基于静态价格表的预估输出(仅展示)
	CacheHit         bool              `json:"cache_hit"`        // 是否命中缓存
}

// PriceEstimate 价格预估结果
type PriceEstimate struct {
	FromToken       string  `json:"from_token"`
	ToToken         string  `json:"to_token"`
	InputAmount     float64 `json:"input_amount"`
	EstimatedOutput float64 `json:"estimated_output"`
	Rate            float64 `json:"rate"`
}

// NoResult 没有可用报价时的哨兵值
const NoResult = "N/A"

// ========================================
// 降级策略
// ========================================

// FallbackPolicy 聚合器失败时的降级策略
type FallbackPolicy int

const (
	// GracefulFallback 失败时返回确定性的估算值，报价仍然可用
	GracefulFallback FallbackPolicy = iota
	// FailOpen 失败时报价标记为不可用，费用为0
	FailOpen
)

func (p FallbackPolicy) String() string {
	switch p {
	case GracefulFallback:
		return "graceful"
	case FailOpen:
		return "fail-open"
	default:
		return "unknown"
	}
}

// FallbackEstimate 降级估算常量(USD)
// 跨链估算大于同链，MainnetSwapGasUSD>0时以太坊主网使用该Gas值
type FallbackEstimate struct {
	SwapGasUSD        float64 `json:"swap_gas_usd"`
	SwapRouteUSD      float64 `json:"swap_route_usd"`
	BridgeGasUSD      float64 `json:"bridge_gas_usd"`
	BridgeRouteUSD    float64 `json:"bridge_route_usd"`
	MainnetSwapGasUSD float64 `json:"mainnet_swap_gas_usd"`
}

// ========================================
// 聚合器配置类型
// ========================================

// ProviderConfig 聚合器配置
type ProviderConfig struct {
	Name           string           `json:"name"`            // 聚合器名称
	DisplayName    string           `json:"display_name"`    // 显示名称
	BaseURL        string           `json:"base_url"`        // API基础URL
	PlatformURL    string           `json:"platform_url"`    // 用户跳转地址
	APIKey         string           `json:"-"`               // API密钥
	Timeout        time.Duration    `json:"timeout"`         // 单次比价超时时间
	RetryCount     int              `json:"retry_count"`     // 重试次数
	IsActive       bool             `json:"is_active"`       // 是否启用
	FallbackPolicy FallbackPolicy   `json:"fallback_policy"` // 降级策略
	Estimate       FallbackEstimate `json:"estimate"`        // 降级估算常量
}

// ========================================
// 错误类型定义
// ========================================

// RouterError 比价服务错误
type RouterError struct {
	Code     string `json:"code"`               // 错误代码
	Message  string `json:"message"`            // 错误消息
	Provider string `json:"provider,omitempty"` // 相关聚合器
	Err      error  `json:"-"`                  // 原始错误
}

func (e *RouterError) Error() string {
	if e.Provider != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Message
}

func (e *RouterError) Unwrap() error {
	return e.Err
}

// 错误分类哨兵
var (
	ErrValidation       = errors.New("invalid request")
	ErrRouteUnsupported = errors.New("route unsupported")
	ErrTransport        = errors.New("provider transport error")
)

// 预定义错误代码
const (
	ErrCodeFeeComparisonFailed = "FEE_COMPARISON_FAILED" // 比价失败(对外唯一错误代码)
	ErrCodeRouteUnsupported    = "ROUTE_UNSUPPORTED"     // 聚合器不支持该路径
	ErrCodeProviderError       = "PROVIDER_ERROR"        // 聚合器网络/状态码/解析错误
	ErrCodeProviderTimeout     = "PROVIDER_TIMEOUT"      // 聚合器超时
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"   // 频率限制
	ErrCodeNotFound            = "NOT_FOUND"             // 资源不存在
	ErrCodeInternalError       = "INTERNAL_ERROR"        // 内部错误
)

// NewValidationError 创建请求校验错误
func NewValidationError(message string) *RouterError {
	return &RouterError{Code: ErrCodeFeeComparisonFailed, Message: message, Err: ErrValidation}
}

// NewRouteUnsupportedError 创建路径不支持错误
func NewRouteUnsupportedError(provider, message string) *RouterError {
	return &RouterError{Code: ErrCodeRouteUnsupported, Message: message, Provider: provider, Err: ErrRouteUnsupported}
}

// NewTransportError 创建传输错误
func NewTransportError(provider string, err error) *RouterError {
	return &RouterError{Code: ErrCodeProviderError, Message: err.Error(), Provider: provider, Err: errors.Join(ErrTransport, err)}
}

// NewTimeoutError 创建聚合器超时错误，超时按传输错误处理
func NewTimeoutError(provider string, err error) *RouterError {
	return &RouterError{Code: ErrCodeProviderTimeout, Message: "provider timed out: " + err.Error(), Provider: provider, Err: errors.Join(ErrTransport, err)}
}

// ========================================
// 配置类型
// ========================================

// Config 比价服务配置
type Config struct {
	Server     ServerConfig     `json:"server"`
	Providers  []ProviderConfig `json:"providers"`
	Amount     AmountConfig     `json:"amount"`
	Redis      RedisConfig      `json:"redis"`
	Cache      CacheConfig      `json:"cache"`
	Monitoring MonitoringConfig `json:"monitoring"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Tracing    TracingConfig    `json:"tracing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`
	Debug       bool   `json:"debug"`
}

// AmountConfig 数量换算配置
type AmountConfig struct {
	// UniformEVMDecimals 为true时EVM聚合器统一使用18位精度的数量
	UniformEVMDecimals bool `json:"uniform_evm_decimals"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
	PrefixKey  string        `json:"prefix_key"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	MetricsEnabled  bool   `json:"metrics_enabled"`
	MetricsPath     string `json:"metrics_path"`
	HealthCheckPath string `json:"health_check_path"`
	LogRequests     bool   `json:"log_requests"`
	SlowRequestMs   int    `json:"slow_request_ms"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled"`
	Requests int           `json:"requests"` // 每个窗口允许的请求数
	Window   time.Duration `json:"window"`   // 窗口长度
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
}

// ========================================
// HTTP响应类型
// ========================================

// CompareResponse 比价接口成功响应
type CompareResponse struct {
	Success   bool              `json:"success"`
	Data      *ComparisonResult `json:"data"`
	Request   RequestEcho       `json:"request"`
	Timestamp string            `json:"timestamp"`
}

// RequestEcho 回显的请求参数
type RequestEcho struct {
	Chain     string  `json:"chain"`
	FromToken string  `json:"from_token"`
	ToToken   string  `json:"to_token"`
	ToChain   string  `json:"to_chain,omitempty"`
	Amount    float64 `json:"amount"`
}

// APIResponse 统一API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError API错误信息
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthCheckResponse 健康检查响应
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Providers int       `json:"providers"`
	Cache     string    `json:"cache"`
}

// ========================================
// 常量定义
// ========================================

// 支持的聚合器列表
const (
	ProviderJupiter = "jupiter" // Solana DEX路由
	Provider1inch   = "1inch"   // EVM兑换路由
	ProviderRango   = "rango"   // 跨链路由(支持任意链名)
	ProviderLiFi    = "lifi"    // 跨链桥聚合器
	ProviderSocket  = "socket"  // 跨链路由
)

// 报价结果类型(用于指标)
const (
	OutcomeLive     = "live"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// 健康状态
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HTTP头
const (
	HeaderRequestID = "X-Request-ID"
)
