// Package adapters 聚合器适配器接口定义
// 定义所有聚合器适配器的标准接口
package adapters

import (
	"context"

	"github.com/superbixnggas/MultiRouteX/internal/types"
)

// ProviderAdapter 聚合器适配器接口
// Quote不返回错误：路径不支持、网络错误、状态码异常、响应格式错误和超时都会转为降级报价
type ProviderAdapter interface {
	// 基础信息
	GetName() string        // 获取聚合器名称
	GetDisplayName() string // 获取显示名称

	// 核心功能
	Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote    // 获取费用报价
	Fallback(req *types.CompareRequest, cause error) *types.FeeQuote         // 按降级策略生成报价并记录指标
	EstimateFallback(req *types.CompareRequest, cause error) *types.FeeQuote // 只生成降级报价，不记录指标
	HealthCheck(ctx context.Context) error                                   // 健康检查

	// 配置与指标
	GetConfig() *types.ProviderConfig // 获取当前配置
	GetMetrics() AdapterMetrics       // 获取性能指标快照
}
