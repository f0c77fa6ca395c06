// Package middleware HTTP中间件
// 提供请求ID、日志、CORS、限流、安全头、恢复和HTTP指标中间件
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/metrics"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ContextKeyRequestID gin上下文中保存请求ID的键
const ContextKeyRequestID = "request_id"

// ========================================
// 请求ID中间件
// ========================================

// RequestID 请求ID中间件
// 为每个请求生成或传递唯一ID，便于链路追踪
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(types.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(ContextKeyRequestID, requestID)
		c.Header(types.HeaderRequestID, requestID)

		c.Next()
	}
}

// ========================================
// 请求日志中间件
// ========================================

// RequestLogger 请求日志中间件
func RequestLogger(logger *logrus.Logger, config *types.MonitoringConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		requestID := c.GetString(ContextKeyRequestID)

		if config.LogRequests {
			logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"query":      c.Request.URL.RawQuery,
				"client_ip":  c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			}).Debug("请求开始")
		}

		c.Next()

		duration := time.Since(startTime)
		statusCode := c.Writer.Status()

		logLevel := logrus.InfoLevel
		if statusCode >= 400 {
			logLevel = logrus.WarnLevel
		}
		if statusCode >= 500 {
			logLevel = logrus.ErrorLevel
		}

		if config.LogRequests {
			logger.WithFields(logrus.Fields{
				"request_id":    requestID,
				"method":        c.Request.Method,
				"path":          c.Request.URL.Path,
				"status_code":   statusCode,
				"duration_ms":   duration.Milliseconds(),
				"client_ip":     c.ClientIP(),
				"response_size": c.Writer.Size(),
			}).Log(logLevel, "请求完成")
		}

		if config.SlowRequestMs > 0 && duration.Milliseconds() > int64(config.SlowRequestMs) {
			logger.WithFields(logrus.Fields{
				"request_id":  requestID,
				"path":        c.Request.URL.Path,
				"duration_ms": duration.Milliseconds(),
				"threshold":   config.SlowRequestMs,
			}).Warn("🐢 检测到慢请求")
		}
	}
}

// ========================================
// HTTP指标中间件
// ========================================

// Metrics 记录HTTP请求数和耗时
// 路径标签使用路由模板，未匹配的路由统一记为unmatched
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(startTime).Seconds())
	}
}

// ========================================
// CORS中间件
// ========================================

var (
	corsAllowMethods = []string{"POST", "GET", "OPTIONS", "PUT", "DELETE", "PATCH"}
	corsAllowHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}
)

// corsMaxAge 预检结果缓存时间(秒)
const corsMaxAge = 86400

// CORS 跨域资源共享中间件
// 允许任意来源，任何OPTIONS请求直接返回200
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", strings.Join(corsAllowMethods, ", "))
		c.Header("Access-Control-Allow-Headers", strings.Join(corsAllowHeaders, ", "))
		c.Header("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
		c.Header("Access-Control-Allow-Credentials", "false")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// ========================================
// 限流中间件
// ========================================

// RateLimiter 按客户端IP限流
type RateLimiter struct {
	config   *types.RateLimitConfig
	limiters map[string]*ipLimiter
	mutex    sync.Mutex
	logger   *logrus.Logger

	now       func() time.Time
	lastSweep time.Time
}

// ipLimiter 单个IP的令牌桶和最后访问时间
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterIdleWindows 空闲超过该数量的窗口后回收IP的令牌桶
const limiterIdleWindows = 3

// NewRateLimiter 创建限流中间件
func NewRateLimiter(config *types.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		config:   config,
		limiters: make(map[string]*ipLimiter),
		logger:   logger,
		now:      time.Now,
	}
}

// RateLimit 限流中间件函数
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		requestID := c.GetString(ContextKeyRequestID)
		clientIP := c.ClientIP()

		if !rl.allow(clientIP) {
			rl.logger.Warnf("[%s] IP限流触发: %s", requestID, clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.APIResponse{
				Success: false,
				Error: &types.APIError{
					Code:    types.ErrCodeRateLimitExceeded,
					Message: "Too many requests, please try again later",
				},
				Timestamp: time.Now().Unix(),
				RequestID: requestID,
			})
			return
		}

		c.Next()
	}
}

// allow 检查IP是否还有令牌
func (rl *RateLimiter) allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	rl.sweep(now)

	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &ipLimiter{
			limiter: rate.NewLimiter(
				rate.Every(rl.config.Window/time.Duration(rl.config.Requests)),
				rl.config.Requests,
			),
		}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// sweep 回收长时间空闲的令牌桶，每个空闲周期最多执行一次
// 调用方需持有锁
func (rl *RateLimiter) sweep(now time.Time) {
	idle := rl.idleTTL()
	if now.Sub(rl.lastSweep) < idle {
		return
	}
	rl.lastSweep = now

	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) >= idle {
			delete(rl.limiters, ip)
		}
	}
	rl.logger.Debugf("限流器清理完成: 剩余 %d 个IP", len(rl.limiters))
}

// idleTTL 令牌桶空闲回收时间，至少1分钟
func (rl *RateLimiter) idleTTL() time.Duration {
	idle := limiterIdleWindows * rl.config.Window
	if idle < time.Minute {
		idle = time.Minute
	}
	return idle
}

// ========================================
// 安全中间件
// ========================================

// Security 安全头中间件
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		// 比价结果有时效性，不允许中间代理缓存
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || strings.HasPrefix(c.Request.URL.Path, "/fee-compare") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}

		c.Next()
	}
}

// ========================================
// 恢复中间件
// ========================================

// Recovery 恐慌恢复中间件
// 捕获panic并返回统一的错误响应
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(ContextKeyRequestID)

				logger.WithFields(logrus.Fields{
					"request_id": requestID,
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"panic":      err,
				}).Error("💥 请求处理发生panic")

				c.AbortWithStatusJSON(http.StatusInternalServerError, types.APIResponse{
					Success: false,
					Error: &types.APIError{
						Code:    types.ErrCodeInternalError,
						Message: "Internal server error",
					},
					Timestamp: time.Now().Unix(),
					RequestID: requestID,
				})
			}
		}()

		c.Next()
	}
}
