// Package adapters 第三方聚合器适配器
// 提供统一的聚合器接口，封装不同聚合器的API差异
// 每个适配器把各自的响应转换为统一的FeeQuote，失败时按降级策略给出报价
package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/metrics"
	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/tracing"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxResponseBytes 单次响应体读取上限
const maxResponseBytes = 4 << 20

// zeroAddress 只询价不执行交易时使用的占位钱包地址
const zeroAddress = "0x0000000000000000000000000000000000000000"

// BaseAdapter 基础适配器结构
// 提供所有适配器的通用功能和配置
type BaseAdapter struct {
	config      *types.ProviderConfig // 聚合器配置
	httpClient  *retryablehttp.Client // 带重试的HTTP客户端
	logger      *logrus.Logger        // 日志记录器
	singleChain bool                  // 单链路由器忽略目标链，只报价源链兑换

	mu      sync.Mutex
	metrics AdapterMetrics // 性能指标
}

// AdapterMetrics 适配器性能指标
// 记录适配器的运行时性能数据
type AdapterMetrics struct {
	TotalRequests   int64         `json:"total_requests"`    // 总请求数
	SuccessRequests int64         `json:"success_requests"`  // 成功请求数
	FailedRequests  int64         `json:"failed_requests"`   // 失败请求数
	FallbackQuotes  int64         `json:"fallback_quotes"`   // 降级报价次数
	AvgResponseTime time.Duration `json:"avg_response_time"` // 平均响应时间
	LastRequestTime time.Time     `json:"last_request_time"` // 最后请求时间
	LastError       string        `json:"last_error,omitempty"`
}

// quoteFunc 适配器实际的询价逻辑，返回错误时由基础适配器降级
type quoteFunc func(ctx context.Context, req *types.CompareRequest) (*types.FeeQuote, error)

// NewBaseAdapter 创建基础适配器
// 初始化带重试的HTTP客户端和配置
func NewBaseAdapter(config *types.ProviderConfig, logger *logrus.Logger) *BaseAdapter {
	return &BaseAdapter{
		config:     config,
		httpClient: newRetryClient(config),
		logger:     logger,
	}
}

// newRetryClient 创建聚合器专用的HTTP客户端
// 5xx和429按配置的次数重试，4xx不重试，重试用尽后返回最后一次响应
func newRetryClient(config *types.ProviderConfig) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = config.RetryCount
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.Logger = nil
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.HTTPClient = &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	return c
}

// ========================================
// 报价执行与降级
// ========================================

// execute 执行一次报价
// ROUTE_CHECK -> QUERY -> PARSE 由fetch完成，任一阶段出错都走Fallback
func (b *BaseAdapter) execute(ctx context.Context, req *types.CompareRequest, fetch quoteFunc) *types.FeeQuote {
	req = b.leg(req)

	ctx, span := tracing.Tracer().Start(ctx, "provider.quote", trace.WithAttributes(
		attribute.String("provider", b.config.Name),
		attribute.String("chain", req.Chain),
		attribute.String("from_token", req.FromToken),
		attribute.String("to_token", req.ToToken),
		attribute.Bool("bridge", req.IsBridge()),
	))
	defer span.End()

	startTime := time.Now()
	quote, err := fetch(ctx, req)
	metrics.ProviderLatency.WithLabelValues(b.config.Name).Observe(time.Since(startTime).Seconds())

	if err != nil {
		var rerr *types.RouterError
		if ctx.Err() != nil && !(errors.As(err, &rerr) && rerr.Code == types.ErrCodeProviderTimeout) {
			err = types.NewTimeoutError(b.config.Name, ctx.Err())
		}
		tracing.RecordError(ctx, err)
		return b.Fallback(req, err)
	}

	metrics.ProviderQuotes.WithLabelValues(b.config.Name, types.OutcomeLive).Inc()
	span.SetAttributes(attribute.Float64("fee_usd", quote.TotalFeeUSD))
	b.logger.Debugf("[%s] 报价成功: fee=%.6f gas=%.6f route=%.6f, duration=%v",
		b.config.Name, quote.TotalFeeUSD, quote.GasFeeUSD, quote.RouteFeeUSD, time.Since(startTime))

	return quote
}

// Fallback 按配置的降级策略生成报价，并记录降级指标
// GracefulFallback: 返回确定性估算值，Viable=true
// FailOpen: 费用为0，Viable=false
// 两种策略都会设置ErrorDetail
func (b *BaseAdapter) Fallback(req *types.CompareRequest, cause error) *types.FeeQuote {
	quote := b.EstimateFallback(req, cause)
	b.recordFallback(quote.ErrorDetail)

	if !quote.Viable {
		metrics.ProviderQuotes.WithLabelValues(b.config.Name, types.OutcomeFailed).Inc()
		b.logger.Warnf("[%s] ⚠️ 报价失败，不参与比价: %s", b.config.Name, quote.ErrorDetail)
		return quote
	}

	metrics.ProviderQuotes.WithLabelValues(b.config.Name, types.OutcomeFallback).Inc()
	b.logger.Warnf("[%s] ⚠️ 使用估算费用: fee=%.4f, reason=%s", b.config.Name, quote.TotalFeeUSD, quote.ErrorDetail)
	return quote
}

// EstimateFallback 只生成降级报价，不记录指标
func (b *BaseAdapter) EstimateFallback(req *types.CompareRequest, cause error) *types.FeeQuote {
	req = b.leg(req)

	detail := "using estimated values"
	if cause != nil {
		detail = cause.Error()
	}

	quote := b.newQuote()
	quote.ErrorDetail = detail

	if b.config.FallbackPolicy == types.FailOpen {
		return quote
	}

	gas, route := b.estimate(req)
	quote.SetFees(gas, route)
	quote.Route = fallbackRoute(req)
	quote.Viable = true
	return quote
}

// estimate 根据请求类型选择降级估算常量
func (b *BaseAdapter) estimate(req *types.CompareRequest) (decimal.Decimal, decimal.Decimal) {
	est := b.config.Estimate
	gas, route := est.SwapGasUSD, est.SwapRouteUSD

	switch {
	case req.IsBridge():
		gas, route = est.BridgeGasUSD, est.BridgeRouteUSD
	case est.MainnetSwapGasUSD > 0 && reference.IsEthereumMainnet(req.Chain):
		gas = est.MainnetSwapGasUSD
	}

	return decimal.NewFromFloat(gas), decimal.NewFromFloat(route)
}

// leg 单链路由器只报价源链部分
func (b *BaseAdapter) leg(req *types.CompareRequest) *types.CompareRequest {
	if !b.singleChain || req.ToChain == "" {
		return req
	}
	origin := *req
	origin.ToChain = ""
	return &origin
}

// newQuote 创建空报价
func (b *BaseAdapter) newQuote() *types.FeeQuote {
	return &types.FeeQuote{
		Platform:    b.config.DisplayName,
		Route:       []string{},
		PlatformURL: b.config.PlatformURL,
	}
}

// liveQuote 创建成功报价
func (b *BaseAdapter) liveQuote(gas, route decimal.Decimal, hops []string) *types.FeeQuote {
	quote := b.newQuote()
	quote.SetFees(gas, route)
	if hops != nil {
		quote.Route = hops
	}
	quote.Viable = true
	return quote
}

// ========================================
// 通用HTTP请求方法
// ========================================

// makeHTTPRequest 发送HTTP请求
// 统一的HTTP请求方法，包含重试、超时、错误处理等
// 参数:
//   - ctx: 上下文，用于超时控制
//   - method: HTTP方法
//   - url: 请求URL
//   - headers: 请求头
//
// 返回:
//   - []byte: 响应体
//   - error: *types.RouterError (PROVIDER_ERROR 或 PROVIDER_TIMEOUT)
func (b *BaseAdapter) makeHTTPRequest(ctx context.Context, method, url string, headers map[string]string) ([]byte, error) {
	startTime := time.Now()

	b.logger.Debugf("[%s] 开始请求: %s %s", b.config.Name, method, url)

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, types.NewTransportError(b.config.Name, fmt.Errorf("创建HTTP请求失败: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "MultiRouteX-FeeCompare/1.0")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.updateMetrics(false, time.Since(startTime))
		if ctx.Err() != nil {
			return nil, types.NewTimeoutError(b.config.Name, ctx.Err())
		}
		return nil, types.NewTransportError(b.config.Name, fmt.Errorf("HTTP请求失败: %w", err))
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		b.updateMetrics(false, time.Since(startTime))
		return nil, types.NewTransportError(b.config.Name, fmt.Errorf("读取响应体失败: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.updateMetrics(false, time.Since(startTime))
		return nil, types.NewTransportError(b.config.Name,
			fmt.Errorf("HTTP错误: status=%d, body=%s", resp.StatusCode, truncate(responseBody, 200)))
	}

	duration := time.Since(startTime)
	b.updateMetrics(true, duration)

	b.logger.Debugf("[%s] 请求完成: duration=%v, status=%d", b.config.Name, duration, resp.StatusCode)

	return responseBody, nil
}

// ========================================
// 通用数据处理方法
// ========================================

// parseJSONResponse 解析JSON响应
func (b *BaseAdapter) parseJSONResponse(data []byte, target interface{}) error {
	if err := sonic.Unmarshal(data, target); err != nil {
		b.logger.Debugf("[%s] JSON解析失败: %v, data=%s", b.config.Name, err, truncate(data, 200))
		return types.NewTransportError(b.config.Name, fmt.Errorf("JSON解析失败: %w", err))
	}
	return nil
}

// malformed 响应缺少必需字段
func (b *BaseAdapter) malformed(field string) error {
	return types.NewTransportError(b.config.Name, fmt.Errorf("响应格式错误: 缺少字段 %s", field))
}

// unsupported 路径不支持
func (b *BaseAdapter) unsupported(format string, args ...interface{}) error {
	return types.NewRouteUnsupportedError(b.config.Name, fmt.Sprintf(format, args...))
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

// swapLabel 同链兑换的路径标签
func swapLabel(from, to string) string {
	return fmt.Sprintf("%s -> %s", from, to)
}

// fallbackRoute 降级报价使用的路径
func fallbackRoute(req *types.CompareRequest) []string {
	if req.IsBridge() {
		return []string{fmt.Sprintf("%s (%s) -> %s (%s)", req.FromToken, req.Chain, req.ToToken, req.ToChain)}
	}
	return []string{swapLabel(req.FromToken, req.ToToken)}
}

// ========================================
// 性能指标管理
// ========================================

// updateMetrics 更新适配器性能指标
// 记录每次请求的结果和响应时间
func (b *BaseAdapter) updateMetrics(success bool, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++
	b.metrics.LastRequestTime = time.Now()

	if success {
		b.metrics.SuccessRequests++
	} else {
		b.metrics.FailedRequests++
	}

	// 滑动平均
	if b.metrics.TotalRequests == 1 {
		b.metrics.AvgResponseTime = duration
	} else {
		alpha := 0.1
		b.metrics.AvgResponseTime = time.Duration(
			float64(b.metrics.AvgResponseTime)*(1-alpha) + float64(duration)*alpha,
		)
	}
}

func (b *BaseAdapter) recordFallback(detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.FallbackQuotes++
	b.metrics.LastError = detail
}

// GetMetrics 获取适配器性能指标快照
func (b *BaseAdapter) GetMetrics() AdapterMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// ========================================
// 配置管理
// ========================================

// GetConfig 获取当前配置
func (b *BaseAdapter) GetConfig() *types.ProviderConfig {
	return b.config
}

// GetName 获取聚合器名称
func (b *BaseAdapter) GetName() string {
	return b.config.Name
}

// GetDisplayName 获取显示名称
func (b *BaseAdapter) GetDisplayName() string {
	return b.config.DisplayName
}
