// Package adapters LI.FI聚合器适配器实现
// 跨链桥聚合器，使用LI.FI v1 /quote接口
package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// LiFiAdapter LI.FI聚合器适配器
type LiFiAdapter struct {
	*BaseAdapter
}

// NewLiFiAdapter 创建LI.FI适配器实例
func NewLiFiAdapter(config *types.ProviderConfig, logger *logrus.Logger) ProviderAdapter {
	return &LiFiAdapter{BaseAdapter: NewBaseAdapter(config, logger)}
}

// ========================================
// LI.FI API响应结构定义
// ========================================

// LiFiQuoteResponse LI.FI /quote接口响应
type LiFiQuoteResponse struct {
	ID            string        `json:"id"`
	Tool          string        `json:"tool"`
	Estimate      *LiFiEstimate `json:"estimate"`
	IncludedSteps *[]LiFiStep   `json:"includedSteps"`
}

// LiFiEstimate 费用估算
type LiFiEstimate struct {
	ToAmount string        `json:"toAmount"`
	GasCosts []LiFiCostRow `json:"gasCosts"`
	FeeCosts []LiFiCostRow `json:"feeCosts"`
}

// LiFiCostRow 单项费用
type LiFiCostRow struct {
	Name      string          `json:"name"`
	AmountUSD decimal.Decimal `json:"amountUSD"`
}

// LiFiStep 路径中的一步
type LiFiStep struct {
	Type   string `json:"type"`
	Tool   string `json:"tool"`
	Action struct {
		FromToken struct {
			Symbol string `json:"symbol"`
		} `json:"fromToken"`
		ToToken struct {
			Symbol string `json:"symbol"`
		} `json:"toToken"`
	} `json:"action"`
}

// ========================================
// 核心接口实现
// ========================================

// Quote 获取LI.FI报价
func (a *LiFiAdapter) Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
	return a.execute(ctx, req, a.fetchQuote)
}

// HealthCheck 用以太坊ETH->USDC询价检查LI.FI API可用性
func (a *LiFiAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.fetchQuote(ctx, &types.CompareRequest{
		Chain:        reference.ChainEthereum,
		FromToken:    "ETH",
		ToToken:      "USDC",
		RawAmountEVM: "1000000000000000000",
	})
	if err != nil {
		return fmt.Errorf("lifi健康检查失败: %w", err)
	}
	return nil
}

func (a *LiFiAdapter) fetchQuote(ctx context.Context, req *types.CompareRequest) (*types.FeeQuote, error) {
	route, err := resolveEVMRoute(a.BaseAdapter, req)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fromChain", strconv.FormatUint(uint64(route.fromChainID), 10))
	params.Set("toChain", strconv.FormatUint(uint64(route.toChainID), 10))
	params.Set("fromToken", route.fromToken)
	params.Set("toToken", route.toToken)
	params.Set("fromAmount", req.RawAmountEVM)
	params.Set("fromAddress", zeroAddress)

	body, err := a.makeHTTPRequest(ctx, "GET", a.config.BaseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp LiFiQuoteResponse
	if err := a.parseJSONResponse(body, &resp); err != nil {
		return nil, err
	}

	return a.convertToFeeQuote(&resp, req)
}

// convertToFeeQuote 将LI.FI响应转换为统一费用模型
// Gas费和路由费分别为所有gasCosts和feeCosts的USD合计
func (a *LiFiAdapter) convertToFeeQuote(resp *LiFiQuoteResponse, req *types.CompareRequest) (*types.FeeQuote, error) {
	if resp.Estimate == nil {
		return nil, a.malformed("estimate")
	}

	gas := decimal.Zero
	for _, c := range resp.Estimate.GasCosts {
		gas = gas.Add(c.AmountUSD)
	}
	fee := decimal.Zero
	for _, c := range resp.Estimate.FeeCosts {
		fee = fee.Add(c.AmountUSD)
	}

	hops := []string{swapLabel(req.FromToken, req.ToToken)}
	if resp.IncludedSteps != nil {
		hops = make([]string, 0, len(*resp.IncludedSteps))
		for _, s := range *resp.IncludedSteps {
			hops = append(hops, swapLabel(s.Action.FromToken.Symbol, s.Action.ToToken.Symbol))
		}
	}

	return a.liveQuote(gas, fee, hops), nil
}

// ========================================
// 跨链路径解析(LI.FI与Socket共用)
// ========================================

// evmRoute 解析后的EVM跨链路径
type evmRoute struct {
	fromChainID uint
	toChainID   uint
	fromToken   string
	toToken     string
}

// resolveEVMRoute 解析源链/目标链ID与代币地址
// 任一链不是已知EVM链或代币无法解析时返回路径不支持错误
func resolveEVMRoute(b *BaseAdapter, req *types.CompareRequest) (*evmRoute, error) {
	fromID, ok := reference.ChainID(req.Chain)
	if !ok {
		return nil, b.unsupported("chain %q not supported by %s", req.Chain, b.config.DisplayName)
	}

	toChain := req.Chain
	toID := fromID
	if req.ToChain != "" {
		toChain = req.ToChain
		if toID, ok = reference.ChainID(req.ToChain); !ok {
			return nil, b.unsupported("destination chain %q not supported by %s", req.ToChain, b.config.DisplayName)
		}
	}

	fromToken, ok := reference.EVMTokenAddress(req.Chain, req.FromToken)
	if !ok {
		return nil, b.unsupported("unknown token %q on %s", req.FromToken, req.Chain)
	}
	toToken, ok := reference.EVMTokenAddress(toChain, req.ToToken)
	if !ok {
		return nil, b.unsupported("unknown token %q on %s", req.ToToken, toChain)
	}

	return &evmRoute{
		fromChainID: fromID,
		toChainID:   toID,
		fromToken:   fromToken,
		toToken:     toToken,
	}, nil
}
