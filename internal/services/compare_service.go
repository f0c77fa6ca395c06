// Package services 费用比价核心服务实现
// 负责选择适用的聚合器、并发询价、汇总结果并选出最便宜的报价
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/adapters"
	"github.com/superbixnggas/MultiRouteX/internal/amount"
	"github.com/superbixnggas/MultiRouteX/internal/metrics"
	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/tracing"
	"github.com/superbixnggas/MultiRouteX/internal/types"
	"github.com/superbixnggas/MultiRouteX/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultProviderTimeout 聚合器未配置超时时间时使用
const defaultProviderTimeout = 8 * time.Second

// 调用顺序，同时决定结果中all_platforms的顺序
var (
	solanaOrder = []string{types.ProviderJupiter, types.ProviderRango}
	evmOrder    = []string{types.Provider1inch, types.ProviderRango, types.ProviderLiFi, types.ProviderSocket}
)

// CompareService 费用比价服务
// 协调多个聚合器适配器，比较费用并选出最便宜的报价
type CompareService struct {
	adapters   map[string]adapters.ProviderAdapter // 聚合器适配器集合
	normalizer *amount.Normalizer                  // 数量换算
	cache      cache.CacheManager                  // 缓存管理器
	config     *types.Config                       // 服务配置
	logger     *logrus.Logger                      // 日志记录器
	metrics    *CompareMetrics                     // 服务指标
}

// CompareMetrics 比价服务指标
type CompareMetrics struct {
	TotalRequests     int64            `json:"total_requests"`
	SuccessRequests   int64            `json:"success_requests"`
	FailedRequests    int64            `json:"failed_requests"`
	NoResultCount     int64            `json:"no_result_count"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	AvgComparisonTime time.Duration    `json:"avg_comparison_time"`
	LastRequestTime   time.Time        `json:"last_request_time"`
	CheapestWins      map[string]int64 `json:"cheapest_wins"`
	mutex             sync.RWMutex
}

// ProviderStatus 聚合器状态
type ProviderStatus struct {
	Name           string                  `json:"name"`
	DisplayName    string                  `json:"display_name"`
	Active         bool                    `json:"active"`
	FallbackPolicy string                  `json:"fallback_policy"`
	Timeout        string                  `json:"timeout"`
	Metrics        adapters.AdapterMetrics `json:"metrics"`
	Healthy        *bool                   `json:"healthy,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// NewCompareService 创建比价服务实例
// 根据配置初始化所有启用的聚合器适配器
func NewCompareService(config *types.Config, cacheManager cache.CacheManager, logger *logrus.Logger) *CompareService {
	service := newCompareService(config, cacheManager, logger)
	service.initializeAdapters()
	return service
}

// NewCompareServiceWithAdapters 使用给定的适配器创建比价服务
func NewCompareServiceWithAdapters(config *types.Config, list []adapters.ProviderAdapter, cacheManager cache.CacheManager, logger *logrus.Logger) *CompareService {
	service := newCompareService(config, cacheManager, logger)
	for _, adp := range list {
		service.adapters[adp.GetName()] = adp
	}
	return service
}

func newCompareService(config *types.Config, cacheManager cache.CacheManager, logger *logrus.Logger) *CompareService {
	if cacheManager == nil {
		cacheManager = cache.NewNoopCache()
	}
	return &CompareService{
		adapters:   make(map[string]adapters.ProviderAdapter),
		normalizer: amount.NewNormalizer(config.Amount),
		cache:      cacheManager,
		config:     config,
		logger:     logger,
		metrics:    &CompareMetrics{CheapestWins: make(map[string]int64)},
	}
}

// ========================================
// 比价入口
// ========================================

// GetComparison 获取比价结果(带缓存)
// 缓存只包在引擎外层，Redis错误按未命中处理
func (s *CompareService) GetComparison(ctx context.Context, req *types.CompareRequest) (*types.ComparisonResult, error) {
	startTime := time.Now()

	if err := s.normalizer.Prepare(req); err != nil {
		s.recordFailure(req)
		return nil, err
	}

	cacheKey := s.generateCacheKey(req)
	if cached := s.checkCache(ctx, cacheKey, req.RequestID); cached != nil {
		s.updateMetrics(time.Since(startTime), true, cached)
		metrics.Comparisons.WithLabelValues(metrics.Kind(req.IsBridge()), "cache_hit").Inc()
		return cached, nil
	}

	result := s.compare(ctx, req)
	s.cacheResult(ctx, cacheKey, result)
	s.updateMetrics(time.Since(startTime), false, result)

	return result, nil
}

// Compare 比较所有适用聚合器的费用(不经过缓存)
// 只有请求校验失败时返回错误，单个聚合器失败只体现在报价的error字段中
func (s *CompareService) Compare(ctx context.Context, req *types.CompareRequest) (*types.ComparisonResult, error) {
	if err := s.normalizer.Prepare(req); err != nil {
		return nil, err
	}
	return s.compare(ctx, req), nil
}

// compare 比价引擎
// 1. 确定适用的聚合器 2. 并发询价 3. 过滤可用报价 4. 稳定排序取最便宜
func (s *CompareService) compare(ctx context.Context, req *types.CompareRequest) *types.ComparisonResult {
	startTime := time.Now()
	sessionID := req.RequestID
	kind := metrics.Kind(req.IsBridge())

	ctx, span := tracing.Tracer().Start(ctx, "fee.compare", trace.WithAttributes(
		attribute.String("request_id", sessionID),
		attribute.String("chain", req.Chain),
		attribute.String("to_chain", req.ToChain),
		attribute.String("from_token", req.FromToken),
		attribute.String("to_token", req.ToToken),
		attribute.String("amount", req.Amount.String()),
	))
	defer span.End()

	s.logger.Infof("[%s] 🚀 比价请求: %s->%s, 数量=%s, 链=%s, 目标链=%s",
		sessionID, req.FromToken, req.ToToken, req.Amount.String(), req.Chain, req.ToChain)

	applicable := s.applicableAdapters(req.Chain)
	s.logger.Infof("[%s] 🔍 适用的聚合器: %d 个", sessionID, len(applicable))

	quotes := s.executeParallelComparison(ctx, req, applicable)
	cheapest := selectCheapest(quotes)
	result := s.buildComparisonResult(req, cheapest, quotes)

	status := "ok"
	if cheapest == nil {
		status = "no_result"
		s.logger.Warnf("[%s] ⚠️ 没有可用报价，返回 %s", sessionID, types.NoResult)
	} else {
		s.logger.Infof("[%s] 🎉 比价完成: 最便宜=%s, fee=%.6f, 总耗时=%v",
			sessionID, result.CheapestPlatform, result.CheapestFee, time.Since(startTime))
	}

	span.SetAttributes(
		attribute.String("cheapest", result.CheapestPlatform),
		attribute.Int("providers", len(quotes)),
	)
	metrics.Comparisons.WithLabelValues(kind, status).Inc()
	metrics.ComparisonDuration.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())

	return result
}

// ========================================
// 并发询价实现
// ========================================

// applicableAdapters 按固定顺序返回适用于源链的已启用适配器
func (s *CompareService) applicableAdapters(chain string) []adapters.ProviderAdapter {
	order := evmOrder
	if reference.IsSolana(chain) {
		order = solanaOrder
	}

	list := make([]adapters.ProviderAdapter, 0, len(order))
	for _, name := range order {
		adp, ok := s.adapters[name]
		if !ok || !adp.GetConfig().IsActive {
			continue
		}
		list = append(list, adp)
	}
	return list
}

// executeParallelComparison 并发调用所有适用的聚合器
// 结果按调用顺序写入，等待所有聚合器返回，不会因单个失败提前结束
func (s *CompareService) executeParallelComparison(ctx context.Context, req *types.CompareRequest, list []adapters.ProviderAdapter) []*types.FeeQuote {
	quotes := make([]*types.FeeQuote, len(list))
	var wg sync.WaitGroup

	s.logger.Infof("[%s] 🚀 并发调用 %d 个聚合器", req.RequestID, len(list))

	for i, adapter := range list {
		wg.Add(1)
		go func(index int, adp adapters.ProviderAdapter) {
			defer wg.Done()

			adapterStartTime := time.Now()
			s.logger.Debugf("[%s] 📞 调用: %s", req.RequestID, adp.GetName())

			quote := s.invokeAdapter(ctx, req, adp)
			quotes[index] = quote

			if quote.ErrorDetail == "" {
				s.logger.Infof("[%s] ✅ %s: fee=%.6f, 耗时=%v",
					req.RequestID, adp.GetName(), quote.TotalFeeUSD, time.Since(adapterStartTime))
			} else {
				s.logger.Warnf("[%s] ❌ %s: viable=%t, fee=%.6f, error=%s, 耗时=%v",
					req.RequestID, adp.GetName(), quote.Viable, quote.TotalFeeUSD, quote.ErrorDetail, time.Since(adapterStartTime))
			}
		}(i, adapter)
	}

	wg.Wait()
	return quotes
}

// invokeAdapter 在独立的超时上下文中调用单个适配器
// 超时或panic时使用该适配器自己的降级报价
// 超时的降级由适配器自身的调用路径计入指标，这里只生成报价
func (s *CompareService) invokeAdapter(ctx context.Context, req *types.CompareRequest, adp adapters.ProviderAdapter) *types.FeeQuote {
	timeout := adp.GetConfig().Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	adapterCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *types.FeeQuote, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorf("[%s] 💥 聚合器 %s panic: %v", req.RequestID, adp.GetName(), r)
				done <- adp.Fallback(req, &types.RouterError{
					Code:     types.ErrCodeInternalError,
					Message:  fmt.Sprintf("adapter panic: %v", r),
					Provider: adp.GetName(),
				})
			}
		}()
		done <- adp.Quote(adapterCtx, req)
	}()

	select {
	case quote := <-done:
		if quote == nil {
			return adp.Fallback(req, &types.RouterError{
				Code:     types.ErrCodeInternalError,
				Message:  "adapter returned no quote",
				Provider: adp.GetName(),
			})
		}
		return quote
	case <-adapterCtx.Done():
		s.logger.Warnf("[%s] ⏰ 聚合器 %s 超时(%v)", req.RequestID, adp.GetName(), timeout)
		return adp.EstimateFallback(req, types.NewTimeoutError(adp.GetName(), adapterCtx.Err()))
	}
}

// ========================================
// 最便宜报价选择
// ========================================

// selectCheapest 选出最便宜的可用报价
// 只考虑 Viable 且总费用大于0 的报价，费用相同时保持调用顺序
func selectCheapest(quotes []*types.FeeQuote) *types.FeeQuote {
	viable := make([]*types.FeeQuote, 0, len(quotes))
	for _, q := range quotes {
		if q != nil && q.Viable && q.TotalFeeUSD > 0 {
			viable = append(viable, q)
		}
	}
	if len(viable) == 0 {
		return nil
	}

	sort.SliceStable(viable, func(i, j int) bool {
		return viable[i].TotalFeeUSD < viable[j].TotalFeeUSD
	})
	return viable[0]
}

// buildComparisonResult 构建比价结果
// 没有可用报价时返回哨兵结果，all_platforms始终是未过滤的全部报价
func (s *CompareService) buildComparisonResult(req *types.CompareRequest, cheapest *types.FeeQuote, quotes []*types.FeeQuote) *types.ComparisonResult {
	estimate := amount.EstimateOutput(req.FromToken, req.ToToken, req.Amount)

	result := &types.ComparisonResult{
		CheapestPlatform: types.NoResult,
		CheapestRoute:    []string{},
		AllQuotes:        quotes,
		PlatformURLs:     reference.PlatformURLTable(),
		InputAmount:      req.Amount.InexactFloat64(),
		EstimatedOutput:  estimate.EstimatedOutput,
	}

	if cheapest != nil {
		result.CheapestPlatform = cheapest.Platform
		result.CheapestFee = cheapest.TotalFeeUSD
		result.CheapestGasFee = cheapest.GasFeeUSD
		result.CheapestRouteFee = cheapest.RouteFeeUSD
		result.CheapestRoute = append([]string{}, cheapest.Route...)
	}

	return result
}

// EstimateOutput 基于静态价格表估算输出数量
func (s *CompareService) EstimateOutput(fromToken, toToken string, amt decimal.Decimal) (*types.PriceEstimate, error) {
	fromToken = strings.TrimSpace(fromToken)
	toToken = strings.TrimSpace(toToken)
	if fromToken == "" || toToken == "" {
		return nil, types.NewValidationError("Missing required parameters: from_token, to_token")
	}
	if amt.IsNegative() {
		return nil, types.NewValidationError(fmt.Sprintf("invalid amount: %s", amt.String()))
	}
	estimate := amount.EstimateOutput(fromToken, toToken, amt)
	return &estimate, nil
}

// ========================================
// 缓存管理
// ========================================

// checkCache 检查缓存
func (s *CompareService) checkCache(ctx context.Context, key, sessionID string) *types.ComparisonResult {
	var cached types.ComparisonResult
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Debugf("[%s] 缓存查询失败: %v", sessionID, err)
		metrics.CacheMisses.Inc()
		return nil
	}
	if !hit {
		metrics.CacheMisses.Inc()
		return nil
	}

	metrics.CacheHits.Inc()
	s.logger.Infof("[%s] 缓存命中，直接返回结果", sessionID)
	cached.CacheHit = true
	return &cached
}

// cacheResult 缓存比价结果
func (s *CompareService) cacheResult(ctx context.Context, key string, result *types.ComparisonResult) {
	ttl := s.config.Cache.DefaultTTL
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, result, ttl); err != nil {
		s.logger.Warnf("缓存结果失败: %v", err)
	} else {
		s.logger.Debugf("缓存结果成功: key=%s, ttl=%v", key, ttl)
	}
}

// generateCacheKey 生成缓存键
func (s *CompareService) generateCacheKey(req *types.CompareRequest) string {
	return fmt.Sprintf("%s%s_%s_%s_%s_%s",
		s.config.Cache.PrefixKey,
		strings.ToLower(req.Chain),
		strings.ToUpper(req.FromToken),
		strings.ToUpper(req.ToToken),
		strings.ToLower(req.ToChain),
		req.Amount.String(),
	)
}

// ========================================
// 辅助方法
// ========================================

// initializeAdapters 初始化聚合器适配器
func (s *CompareService) initializeAdapters() {
	s.logger.Infof("🚀 开始初始化聚合器适配器, 总配置数量: %d", len(s.config.Providers))

	for _, providerConfig := range s.config.Providers {
		if !providerConfig.IsActive {
			s.logger.Infof("⏭️ 跳过未启用的聚合器: %s", providerConfig.DisplayName)
			continue
		}

		// 独立的配置副本
		config := providerConfig

		adapter, err := createAdapter(&config, s.logger)
		if err != nil {
			s.logger.Errorf("❌ 创建适配器失败: %s - %v", config.Name, err)
			continue
		}

		s.adapters[config.Name] = adapter
		s.logger.Infof("✅ 适配器注册成功: %s (%s), url=%s, timeout=%v, policy=%s, apiKey=%s",
			config.Name, config.DisplayName, config.BaseURL, config.Timeout, config.FallbackPolicy,
			func() string {
				if config.APIKey != "" {
					return fmt.Sprintf("已配置(%d字符)", len(config.APIKey))
				}
				return "未配置"
			}())
	}

	s.logger.Infof("🎉 聚合器适配器初始化完成: %d/%d 个适配器活跃", len(s.adapters), len(s.config.Providers))
}

// createAdapter 根据聚合器名称创建对应的适配器
func createAdapter(config *types.ProviderConfig, logger *logrus.Logger) (adapters.ProviderAdapter, error) {
	switch config.Name {
	case types.ProviderJupiter:
		return adapters.NewJupiterAdapter(config, logger), nil
	case types.Provider1inch:
		return adapters.NewOneInchAdapter(config, logger), nil
	case types.ProviderRango:
		return adapters.NewRangoAdapter(config, logger), nil
	case types.ProviderLiFi:
		return adapters.NewLiFiAdapter(config, logger), nil
	case types.ProviderSocket:
		return adapters.NewSocketAdapter(config, logger), nil
	default:
		return nil, fmt.Errorf("未知的聚合器: %s", config.Name)
	}
}

// ProviderCount 已注册的聚合器数量
func (s *CompareService) ProviderCount() int {
	return len(s.adapters)
}

// CacheBackend 缓存后端名称
func (s *CompareService) CacheBackend() string {
	return s.cache.Backend()
}

// CacheHealth 检查缓存后端连接
func (s *CompareService) CacheHealth(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// ProviderStatuses 获取所有聚合器状态
// check为true时并发执行健康检查
func (s *CompareService) ProviderStatuses(ctx context.Context, check bool) []ProviderStatus {
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]ProviderStatus, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		adp := s.adapters[name]
		cfg := adp.GetConfig()
		statuses[i] = ProviderStatus{
			Name:           adp.GetName(),
			DisplayName:    adp.GetDisplayName(),
			Active:         cfg.IsActive,
			FallbackPolicy: cfg.FallbackPolicy.String(),
			Timeout:        cfg.Timeout.String(),
			Metrics:        adp.GetMetrics(),
		}
		if !check {
			continue
		}

		wg.Add(1)
		go func(st *ProviderStatus, adp adapters.ProviderAdapter, timeout time.Duration) {
			defer wg.Done()
			if timeout <= 0 {
				timeout = defaultProviderTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			healthy := true
			if err := adp.HealthCheck(checkCtx); err != nil {
				healthy = false
				st.Error = err.Error()
			}
			st.Healthy = &healthy
		}(&statuses[i], adp, cfg.Timeout)
	}
	wg.Wait()

	return statuses
}

// ========================================
// 指标管理
// ========================================

func (s *CompareService) recordFailure(req *types.CompareRequest) {
	s.metrics.mutex.Lock()
	defer s.metrics.mutex.Unlock()

	s.metrics.TotalRequests++
	s.metrics.FailedRequests++
	s.metrics.LastRequestTime = time.Now()
	metrics.Comparisons.WithLabelValues(metrics.Kind(req.IsBridge()), "invalid").Inc()
}

// updateMetrics 更新服务指标
func (s *CompareService) updateMetrics(duration time.Duration, cacheHit bool, result *types.ComparisonResult) {
	s.metrics.mutex.Lock()
	defer s.metrics.mutex.Unlock()

	s.metrics.TotalRequests++
	s.metrics.SuccessRequests++
	s.metrics.LastRequestTime = time.Now()

	if cacheHit {
		s.metrics.CacheHits++
	} else {
		s.metrics.CacheMisses++
	}

	if result.CheapestPlatform == types.NoResult {
		s.metrics.NoResultCount++
	} else {
		s.metrics.CheapestWins[result.CheapestPlatform]++
	}

	if s.metrics.TotalRequests == 1 {
		s.metrics.AvgComparisonTime = duration
	} else {
		alpha := 0.1
		s.metrics.AvgComparisonTime = time.Duration(
			float64(s.metrics.AvgComparisonTime)*(1-alpha) + float64(duration)*alpha,
		)
	}
}

// GetMetrics 获取服务指标副本
func (s *CompareService) GetMetrics() *CompareMetrics {
	s.metrics.mutex.RLock()
	defer s.metrics.mutex.RUnlock()

	wins := make(map[string]int64, len(s.metrics.CheapestWins))
	for k, v := range s.metrics.CheapestWins {
		wins[k] = v
	}

	return &CompareMetrics{
		TotalRequests:     s.metrics.TotalRequests,
		SuccessRequests:   s.metrics.SuccessRequests,
		FailedRequests:    s.metrics.FailedRequests,
		NoResultCount:     s.metrics.NoResultCount,
		CacheHits:         s.metrics.CacheHits,
		CacheMisses:       s.metrics.CacheMisses,
		AvgComparisonTime: s.metrics.AvgComparisonTime,
		LastRequestTime:   s.metrics.LastRequestTime,
		CheapestWins:      wins,
	}
}
