// Package handlers 费用比价HTTP处理器
// 提供比价接口、参考数据接口和系统监控接口
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/amount"
	"github.com/superbixnggas/MultiRouteX/internal/middleware"
	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/services"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Version 服务版本
const Version = "1.0.0"

// cacheHealthTimeout 健康检查中缓存Ping的超时时间
const cacheHealthTimeout = 2 * time.Second

// CompareHandler 费用比价处理器
type CompareHandler struct {
	compareService *services.CompareService // 比价服务
	logger         *logrus.Logger           // 日志记录器
	startTime      time.Time                // 启动时间，用于计算运行时长
}

// NewCompareHandler 创建比价处理器实例
func NewCompareHandler(compareService *services.CompareService, logger *logrus.Logger) *CompareHandler {
	return &CompareHandler{
		compareService: compareService,
		logger:         logger,
		startTime:      time.Now(),
	}
}

// compareBody POST请求体
// amount可以是数字或字符串
type compareBody struct {
	Chain     string          `json:"chain"`
	FromToken string          `json:"from_token"`
	ToToken   string          `json:"to_token"`
	ToChain   string          `json:"to_chain"`
	Amount    json.RawMessage `json:"amount"`
}

// ========================================
// 核心API接口
// ========================================

// CompareFees 比较各聚合器费用
// GET|POST /api/v1/fee-compare
// 任何错误都返回500和FEE_COMPARISON_FAILED
func (h *CompareHandler) CompareFees(c *gin.Context) {
	requestID := h.getOrGenerateRequestID(c)
	startTime := time.Now()

	req, err := h.bindCompareRequest(c)
	if err != nil {
		h.handleCompareError(c, err, requestID)
		return
	}
	req.RequestID = requestID

	h.logger.Infof("[%s] 收到比价请求: chain=%s, %s->%s, to_chain=%s",
		requestID, req.Chain, req.FromToken, req.ToToken, req.ToChain)

	result, err := h.compareService.GetComparison(c.Request.Context(), req)
	if err != nil {
		h.handleCompareError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, types.CompareResponse{
		Success: true,
		Data:    result,
		Request: types.RequestEcho{
			Chain:     req.Chain,
			FromToken: req.FromToken,
			ToToken:   req.ToToken,
			ToChain:   req.ToChain,
			Amount:    result.InputAmount,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	h.logger.Infof("[%s] 比价请求处理完成: cheapest=%s, cache_hit=%t, duration=%v",
		requestID, result.CheapestPlatform, result.CacheHit, time.Since(startTime))
}

// EstimateOutput 基于静态价格表估算输出数量
// GET /api/v1/estimate?from_token=&to_token=&amount=
func (h *CompareHandler) EstimateOutput(c *gin.Context) {
	requestID := h.getOrGenerateRequestID(c)

	amt, err := amount.ParseAmount(c.Query("amount"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, types.ErrCodeFeeComparisonFailed, err.Error(), requestID)
		return
	}

	estimate, err := h.compareService.EstimateOutput(c.Query("from_token"), c.Query("to_token"), amt)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, types.ErrCodeFeeComparisonFailed, err.Error(), requestID)
		return
	}

	h.respondOK(c, estimate, requestID)
}

// ========================================
// 参考数据接口
// ========================================

// GetChains 支持的链列表
// GET /api/v1/chains
func (h *CompareHandler) GetChains(c *gin.Context) {
	h.respondOK(c, reference.Chains, h.getOrGenerateRequestID(c))
}

// GetTokens 某条链上的代币列表
// GET /api/v1/tokens?chain=
func (h *CompareHandler) GetTokens(c *gin.Context) {
	requestID := h.getOrGenerateRequestID(c)

	chain := strings.ToLower(strings.TrimSpace(c.Query("chain")))
	tokens, ok := reference.Tokens[chain]
	if !ok {
		h.respondError(c, http.StatusNotFound, types.ErrCodeNotFound, "unknown chain: "+chain, requestID)
		return
	}

	h.respondOK(c, tokens, requestID)
}

// ========================================
// 监控和管理接口
// ========================================

// GetMetrics 获取服务指标
// GET /api/v1/metrics
func (h *CompareHandler) GetMetrics(c *gin.Context) {
	requestID := h.getOrGenerateRequestID(c)

	data := map[string]interface{}{
		"compare":   h.compareService.GetMetrics(),
		"providers": h.compareService.ProviderCount(),
		"cache":     h.compareService.CacheBackend(),
		"timestamp": time.Now().Unix(),
	}

	h.respondOK(c, data, requestID)
	h.logger.Debugf("[%s] 指标查询完成", requestID)
}

// HealthCheck 健康检查
// GET /health
// 缓存不可达时返回degraded，比价仍可用
func (h *CompareHandler) HealthCheck(c *gin.Context) {
	requestID := h.getOrGenerateRequestID(c)

	status := types.StatusHealthy
	cacheStatus := h.compareService.CacheBackend()

	ctx, cancel := context.WithTimeout(c.Request.Context(), cacheHealthTimeout)
	defer cancel()
	if err := h.compareService.CacheHealth(ctx); err != nil {
		h.logger.Warnf("[%s] 缓存健康检查失败: %v", requestID, err)
		status = types.StatusDegraded
		cacheStatus += " (unreachable)"
	}

	c.JSON(http.StatusOK, &types.HealthCheckResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Providers: h.compareService.ProviderCount(),
		Cache:     cacheStatus,
	})
	h.logger.Debugf("[%s] 健康检查完成", requestID)
}

// GetProviderStatus 获取聚合器状态
// GET /api/v1/providers/status?check=true
// check=true时对每个聚合器做一次实时健康检查
func (h *CompareHandler) GetProviderStatus(c *gin.Context) {
	requestID := h.getOrGenerateRequestID(c)

	check, _ := strconv.ParseBool(c.DefaultQuery("check", "false"))
	statuses := h.compareService.ProviderStatuses(c.Request.Context(), check)

	h.respondOK(c, statuses, requestID)
	h.logger.Debugf("[%s] 聚合器状态查询完成: %d 个, check=%t", requestID, len(statuses), check)
}

// ========================================
// 辅助方法
// ========================================

// bindCompareRequest 从查询参数(GET)或JSON请求体(POST)解析比价请求
func (h *CompareHandler) bindCompareRequest(c *gin.Context) (*types.CompareRequest, error) {
	var (
		req       types.CompareRequest
		rawAmount string
	)

	if c.Request.Method == http.MethodPost {
		var body compareBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, types.NewValidationError("invalid request body: " + err.Error())
		}
		req.Chain = body.Chain
		req.FromToken = body.FromToken
		req.ToToken = body.ToToken
		req.ToChain = body.ToChain
		rawAmount = rawJSONAmount(body.Amount)
	} else {
		req.Chain = c.Query("chain")
		req.FromToken = c.Query("from_token")
		req.ToToken = c.Query("to_token")
		req.ToChain = c.Query("to_chain")
		rawAmount = c.Query("amount")
	}

	amt, err := amount.ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	req.Amount = amt

	return &req, nil
}

// rawJSONAmount 把JSON中的数字或字符串amount统一为字符串
func rawJSONAmount(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := sonic.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

// handleCompareError 比价接口的统一错误响应
func (h *CompareHandler) handleCompareError(c *gin.Context, err error, requestID string) {
	h.logger.Errorf("[%s] ❌ 比价失败: %v", requestID, err)

	message := err.Error()
	if routerErr, ok := err.(*types.RouterError); ok {
		message = routerErr.Message
	}

	c.JSON(http.StatusInternalServerError, types.APIResponse{
		Success: false,
		Error: &types.APIError{
			Code:    types.ErrCodeFeeComparisonFailed,
			Message: message,
		},
	})
}

func (h *CompareHandler) respondOK(c *gin.Context, data interface{}, requestID string) {
	c.JSON(http.StatusOK, types.APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().Unix(),
		RequestID: requestID,
	})
}

func (h *CompareHandler) respondError(c *gin.Context, status int, code, message, requestID string) {
	c.JSON(status, types.APIResponse{
		Success: false,
		Error: &types.APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().Unix(),
		RequestID: requestID,
	})
}

// getOrGenerateRequestID 获取或生成请求ID
func (h *CompareHandler) getOrGenerateRequestID(c *gin.Context) string {
	if requestID := c.GetString(middleware.ContextKeyRequestID); requestID != "" {
		return requestID
	}
	if requestID := c.GetHeader(types.HeaderRequestID); requestID != "" {
		return requestID
	}

	requestID := uuid.New().String()
	c.Set(middleware.ContextKeyRequestID, requestID)
	return requestID
}

// RegisterRoutes 注册比价相关路由
func (h *CompareHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/fee-compare", h.CompareFees)
	r.POST("/fee-compare", h.CompareFees)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/fee-compare", h.CompareFees)
		v1.POST("/fee-compare", h.CompareFees)
		v1.GET("/estimate", h.EstimateOutput)
		v1.GET("/chains", h.GetChains)
		v1.GET("/tokens", h.GetTokens)
		v1.GET("/metrics", h.GetMetrics)
		v1.GET("/providers/status", h.GetProviderStatus)
	}
}
