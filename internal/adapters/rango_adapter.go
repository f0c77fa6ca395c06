// Package adapters Rango聚合器适配器实现
// 跨链路由，接受任意链名称(含Solana)，使用Rango Basic API /basic/quote接口
package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// rangoGasShare 总费用中按Gas计算的比例，其余为路由费
	rangoGasShare   = decimal.RequireFromString("0.7")
	rangoRouteShare = decimal.RequireFromString("0.3")
)

// RangoAdapter Rango聚合器适配器
type RangoAdapter struct {
	*BaseAdapter
}

// NewRangoAdapter 创建Rango适配器实例
func NewRangoAdapter(config *types.ProviderConfig, logger *logrus.Logger) ProviderAdapter {
	return &RangoAdapter{BaseAdapter: NewBaseAdapter(config, logger)}
}

// ========================================
// Rango API响应结构定义
// ========================================

// RangoQuoteResponse Rango /basic/quote接口响应
type RangoQuoteResponse struct {
	RequestID  string      `json:"requestId"`
	ResultType string      `json:"resultType"`
	Route      *RangoRoute `json:"route"`
}

// RangoRoute 报价路径
type RangoRoute struct {
	OutputAmount string           `json:"outputAmount"`
	Fee          decimal.Decimal  `json:"fee"`
	Swaps        *[]RangoSwapStep `json:"swaps"`
}

// RangoSwapStep 路径中的一步
type RangoSwapStep struct {
	SwapperID string `json:"swapperId"`
	From      struct {
		Blockchain string `json:"blockchain"`
		Symbol     string `json:"symbol"`
	} `json:"from"`
	To struct {
		Blockchain string `json:"blockchain"`
		Symbol     string `json:"symbol"`
	} `json:"to"`
}

// ========================================
// 核心接口实现
// ========================================

// Quote 获取Rango报价
func (a *RangoAdapter) Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
	return a.execute(ctx, req, a.fetchQuote)
}

// HealthCheck 用以太坊ETH->USDC询价检查Rango API可用性
func (a *RangoAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.fetchQuote(ctx, &types.CompareRequest{
		Chain:     reference.ChainEthereum,
		FromToken: "ETH",
		ToToken:   "USDC",
		RawAmount: "1000000000000000000",
	})
	if err != nil {
		return fmt.Errorf("rango健康检查失败: %w", err)
	}
	return nil
}

func (a *RangoAdapter) fetchQuote(ctx context.Context, req *types.CompareRequest) (*types.FeeQuote, error) {
	fromChain := reference.RangoChain(req.Chain)
	toChain := fromChain
	if req.ToChain != "" {
		toChain = reference.RangoChain(req.ToChain)
	}

	apiKey := a.config.APIKey
	if apiKey == "" {
		apiKey = "free"
	}

	params := url.Values{}
	params.Set("apiKey", apiKey)
	params.Set("from", fromChain+"."+strings.ToUpper(req.FromToken))
	params.Set("to", toChain+"."+strings.ToUpper(req.ToToken))
	params.Set("amount", req.RawAmount)

	body, err := a.makeHTTPRequest(ctx, "GET", a.config.BaseURL+"/basic/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp RangoQuoteResponse
	if err := a.parseJSONResponse(body, &resp); err != nil {
		return nil, err
	}

	return a.convertToFeeQuote(&resp, req)
}

// convertToFeeQuote 将Rango响应转换为统一费用模型
// Rango只返回合并费用，按70/30拆分为Gas费和路由费
func (a *RangoAdapter) convertToFeeQuote(resp *RangoQuoteResponse, req *types.CompareRequest) (*types.FeeQuote, error) {
	if resp.Route == nil {
		return nil, a.malformed("route")
	}

	total := resp.Route.Fee
	gas := total.Mul(rangoGasShare)
	route := total.Mul(rangoRouteShare)

	hops := []string{swapLabel(req.FromToken, req.ToToken)}
	if resp.Route.Swaps != nil {
		hops = make([]string, 0, len(*resp.Route.Swaps))
		for _, s := range *resp.Route.Swaps {
			hops = append(hops, swapLabel(s.From.Symbol, s.To.Symbol))
		}
	}

	return a.liveQuote(gas, route, hops), nil
}
