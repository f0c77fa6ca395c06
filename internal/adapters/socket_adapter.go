// Package adapters Socket聚合器适配器实现
// 跨链路由，使用Socket v2 /quote接口
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

// SocketAdapter Socket聚合器适配器
type SocketAdapter struct {
	*BaseAdapter
}

// NewSocketAdapter 创建Socket适配器实例
func NewSocketAdapter(config *types.ProviderConfig, logger *logrus.Logger) ProviderAdapter {
	return &SocketAdapter{BaseAdapter: NewBaseAdapter(config, logger)}
}

// ========================================
// Socket API响应结构定义
// ========================================

// SocketQuoteResponse Socket /quote接口响应
type SocketQuoteResponse struct {
	Success bool `json:"success"`
	Result  *struct {
		Routes []SocketRoute `json:"routes"`
	} `json:"result"`
}

// SocketRoute 单条路径
type SocketRoute struct {
	RouteID           string          `json:"routeId"`
	ToAmount          string          `json:"toAmount"`
	TotalGasFeesInUsd decimal.Decimal `json:"totalGasFeesInUsd"`
	IntegrationFee    *struct {
		FeeTakenInUsd decimal.Decimal `json:"feeTakenInUsd"`
	} `json:"integrationFee"`
	UsedBridgeNames *[]string `json:"usedBridgeNames"`
}

// ========================================
// 核心接口实现
// ========================================

// Quote 获取Socket报价
func (a *SocketAdapter) Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
	return a.execute(ctx, req, a.fetchQuote)
}

// HealthCheck 用以太坊ETH->USDC询价检查Socket API可用性
func (a *SocketAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.fetchQuote(ctx, &types.CompareRequest{
		Chain:        reference.ChainEthereum,
		FromToken:    "ETH",
		ToToken:      "USDC",
		RawAmountEVM: "1000000000000000000",
	})
	if err != nil {
		return fmt.Errorf("socket健康检查失败: %w", err)
	}
	return nil
}

func (a *SocketAdapter) fetchQuote(ctx context.Context, req *types.CompareRequest) (*types.FeeQuote, error) {
	route, err := resolveEVMRoute(a.BaseAdapter, req)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fromChainId", strconv.FormatUint(uint64(route.fromChainID), 10))
	params.Set("toChainId", strconv.FormatUint(uint64(route.toChainID), 10))
	params.Set("fromTokenAddress", route.fromToken)
	params.Set("toTokenAddress", route.toToken)
	params.Set("fromAmount", req.RawAmountEVM)
	params.Set("userAddress", zeroAddress)
	params.Set("uniqueRoutesPerBridge", "true")
	params.Set("sort", "output")

	headers := map[string]string{}
	if a.config.APIKey != "" {
		headers["API-KEY"] = a.config.APIKey
	}

	body, err := a.makeHTTPRequest(ctx, "GET", a.config.BaseURL+"/quote?"+params.Encode(), headers)
	if err != nil {
		return nil, err
	}

	var resp SocketQuoteResponse
	if err := a.parseJSONResponse(body, &resp); err != nil {
		return nil, err
	}

	return a.convertToFeeQuote(&resp, req)
}

// convertToFeeQuote 将Socket响应转换为统一费用模型
// 使用排序后的第一条路径
func (a *SocketAdapter) convertToFeeQuote(resp *SocketQuoteResponse, req *types.CompareRequest) (*types.FeeQuote, error) {
	if resp.Result == nil || len(resp.Result.Routes) == 0 {
		return nil, a.malformed("result.routes")
	}

	best := resp.Result.Routes[0]
	routeFee := decimal.Zero
	if best.IntegrationFee != nil {
		routeFee = best.IntegrationFee.FeeTakenInUsd
	}

	hops := []string{swapLabel(req.FromToken, req.ToToken)}
	if best.UsedBridgeNames != nil {
		hops = append([]string{}, *best.UsedBridgeNames...)
	}

	return a.liveQuote(best.TotalGasFeesInUsd, routeFee, hops), nil
}
