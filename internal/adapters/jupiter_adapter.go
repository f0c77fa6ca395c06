// Package adapters Jupiter聚合器适配器实现
// Solana链DEX路由，使用Jupiter v6 /quote接口
package adapters

import (
	"context"
	"fmt"
	"net/url"

	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// jupiterGasUSD Solana交易费约0.000005 SOL，按固定值估算
	jupiterGasUSD = decimal.RequireFromString("0.001")
	// jupiterImpactFactor 价格冲击折算为路由费的系数
	jupiterImpactFactor = decimal.RequireFromString("0.01")
	// jupiterFeeScale 平台费按6位精度(USDC)换算
	jupiterFeeScale = decimal.New(1, 6)
)

// JupiterAdapter Jupiter聚合器适配器
type JupiterAdapter struct {
	*BaseAdapter
}

// NewJupiterAdapter 创建Jupiter适配器实例
func NewJupiterAdapter(config *types.ProviderConfig, logger *logrus.Logger) ProviderAdapter {
	base := NewBaseAdapter(config, logger)
	base.singleChain = true
	return &JupiterAdapter{BaseAdapter: base}
}

// ========================================
// Jupiter API响应结构定义
// ========================================

// JupiterQuoteResponse Jupiter /quote接口响应
type JupiterQuoteResponse struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	PriceImpactPct decimal.Decimal `json:"priceImpactPct"`
	PlatformFee    *struct {
		Amount decimal.Decimal `json:"amount"`
		FeeBps int             `json:"feeBps"`
	} `json:"platformFee"`
	RoutePlan *[]JupiterRoutePlan `json:"routePlan"`
}

// JupiterRoutePlan 路由计划中的一跳
type JupiterRoutePlan struct {
	SwapInfo struct {
		AmmKey string `json:"ammKey"`
		Label  string `json:"label"`
	} `json:"swapInfo"`
	Percent int `json:"percent"`
}

// ========================================
// 核心接口实现
// ========================================

// Quote 获取Jupiter报价
func (a *JupiterAdapter) Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
	return a.execute(ctx, req, a.fetchQuote)
}

// HealthCheck 用SOL->USDC询价检查Jupiter API可用性
func (a *JupiterAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.fetchQuote(ctx, &types.CompareRequest{
		Chain:     reference.ChainSolana,
		FromToken: "SOL",
		ToToken:   "USDC",
		RawAmount: "1000000000",
	})
	if err != nil {
		return fmt.Errorf("jupiter健康检查失败: %w", err)
	}
	return nil
}

func (a *JupiterAdapter) fetchQuote(ctx context.Context, req *types.CompareRequest) (*types.FeeQuote, error) {
	if !reference.IsSolana(req.Chain) {
		return nil, a.unsupported("jupiter only supports solana, got chain %q", req.Chain)
	}
	inputMint, ok := reference.SolanaMint(req.FromToken)
	if !ok {
		return nil, a.unsupported("unknown solana token %q", req.FromToken)
	}
	outputMint, ok := reference.SolanaMint(req.ToToken)
	if !ok {
		return nil, a.unsupported("unknown solana token %q", req.ToToken)
	}

	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", req.RawAmount)
	params.Set("slippageBps", "50")

	body, err := a.makeHTTPRequest(ctx, "GET", a.config.BaseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp JupiterQuoteResponse
	if err := a.parseJSONResponse(body, &resp); err != nil {
		return nil, err
	}

	return a.convertToFeeQuote(&resp, req)
}

// convertToFeeQuote 将Jupiter响应转换为统一费用模型
// 路由费 = |价格冲击| × 原始数量 / 1e6 × 0.01 + 平台费 / 1e6
func (a *JupiterAdapter) convertToFeeQuote(resp *JupiterQuoteResponse, req *types.CompareRequest) (*types.FeeQuote, error) {
	if resp.OutAmount == "" {
		return nil, a.malformed("outAmount")
	}

	rawAmount, err := decimal.NewFromString(req.RawAmount)
	if err != nil {
		return nil, types.NewTransportError(a.config.Name, fmt.Errorf("无效的原始数量: %w", err))
	}

	routeFee := resp.PriceImpactPct.Abs().
		Mul(rawAmount).
		Div(jupiterFeeScale).
		Mul(jupiterImpactFactor)
	if resp.PlatformFee != nil {
		routeFee = routeFee.Add(resp.PlatformFee.Amount.Div(jupiterFeeScale))
	}

	hops := []string{swapLabel(req.FromToken, req.ToToken)}
	if resp.RoutePlan != nil {
		hops = make([]string, 0, len(*resp.RoutePlan))
		for _, step := range *resp.RoutePlan {
			label := step.SwapInfo.Label
			if label == "" {
				label = "Direct"
			}
			hops = append(hops, label)
		}
	}

	return a.liveQuote(jupiterGasUSD, routeFee, hops), nil
}
