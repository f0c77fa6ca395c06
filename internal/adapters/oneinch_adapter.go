// Package adapters 1inch聚合器适配器实现
// EVM链兑换路由，使用1inch Swap API v6.0 /quote接口
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
	// oneInchDefaultGas 响应中没有Gas估算时使用的默认值
	oneInchDefaultGas = decimal.NewFromInt(150000)
	// oneInchGasPrice 按30 gwei估算
	oneInchGasPrice = decimal.New(30, -9)
	// oneInchL2Factor 非以太坊主网的Gas折算系数
	oneInchL2Factor = decimal.RequireFromString("0.1")
)

// OneInchAdapter 1inch聚合器适配器
// 封装1inch API调用，提供标准化的报价接口
type OneInchAdapter struct {
	*BaseAdapter // 嵌入基础适配器
}

// NewOneInchAdapter 创建1inch适配器实例
func NewOneInchAdapter(config *types.ProviderConfig, logger *logrus.Logger) ProviderAdapter {
	base := NewBaseAdapter(config, logger)
	base.singleChain = true
	return &OneInchAdapter{BaseAdapter: base}
}

// ========================================
// 1inch API响应结构定义
// ========================================

// OneInchQuoteResponse 1inch报价API响应
type OneInchQuoteResponse struct {
	DstAmount    string           `json:"dstAmount"`
	Gas          *decimal.Decimal `json:"gas"`
	EstimatedGas *decimal.Decimal `json:"estimatedGas"`
}

// ========================================
// 核心接口实现
// ========================================

// Quote 获取1inch报价
func (a *OneInchAdapter) Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
	return a.execute(ctx, req, a.fetchQuote)
}

// HealthCheck 用以太坊ETH->USDC询价检查1inch API可用性
func (a *OneInchAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.fetchQuote(ctx, &types.CompareRequest{
		Chain:        reference.ChainEthereum,
		FromToken:    "ETH",
		ToToken:      "USDC",
		RawAmountEVM: "1000000000000000000",
	})
	if err != nil {
		return fmt.Errorf("1inch健康检查失败: %w", err)
	}
	return nil
}

func (a *OneInchAdapter) fetchQuote(ctx context.Context, req *types.CompareRequest) (*types.FeeQuote, error) {
	chainID, ok := reference.ChainID(req.Chain)
	if !ok {
		return nil, a.unsupported("chain %q not supported by 1inch", req.Chain)
	}
	src, ok := reference.EVMTokenAddress(req.Chain, req.FromToken)
	if !ok {
		return nil, a.unsupported("unknown token %q on %s", req.FromToken, req.Chain)
	}
	dst, ok := reference.EVMTokenAddress(req.Chain, req.ToToken)
	if !ok {
		return nil, a.unsupported("unknown token %q on %s", req.ToToken, req.Chain)
	}

	params := url.Values{}
	params.Set("src", src)
	params.Set("dst", dst)
	params.Set("amount", req.RawAmountEVM)

	apiURL := fmt.Sprintf("%s/%d/quote?%s", a.config.BaseURL, chainID, params.Encode())
	headers := map[string]string{"Authorization": "Bearer " + a.config.APIKey}

	body, err := a.makeHTTPRequest(ctx, "GET", apiURL, headers)
	if err != nil {
		return nil, err
	}

	var resp OneInchQuoteResponse
	if err := a.parseJSONResponse(body, &resp); err != nil {
		return nil, err
	}

	return a.convertToFeeQuote(&resp, req)
}

// convertToFeeQuote 将1inch响应转换为统一费用模型
// Gas费 = Gas单位 × 30 gwei × ETH价格 × (主网1，其他链0.1)，基础兑换无协议费
func (a *OneInchAdapter) convertToFeeQuote(resp *OneInchQuoteResponse, req *types.CompareRequest) (*types.FeeQuote, error) {
	if resp.DstAmount == "" {
		return nil, a.malformed("dstAmount")
	}

	units := oneInchDefaultGas
	switch {
	case resp.Gas != nil && resp.Gas.IsPositive():
		units = *resp.Gas
	case resp.EstimatedGas != nil && resp.EstimatedGas.IsPositive():
		units = *resp.EstimatedGas
	}

	gasUSD := units.Mul(oneInchGasPrice).Mul(decimal.NewFromFloat(reference.Price("ETH")))
	if !reference.IsEthereumMainnet(req.Chain) {
		gasUSD = gasUSD.Mul(oneInchL2Factor)
	}

	return a.liveQuote(gasUSD, decimal.Zero, []string{swapLabel(req.FromToken, req.ToToken)}), nil
}
