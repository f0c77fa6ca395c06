// Package amount 数量换算
// 将用户输入的人类可读数量转换为聚合器API需要的最小单位整数
package amount

import (
	"fmt"
	"strings"

	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/types"

	"github.com/shopspring/decimal"
)

// DefaultAmount 未指定数量时使用的默认值
var DefaultAmount = decimal.NewFromInt(1)

// Normalizer 数量换算器
type Normalizer struct {
	uniformEVMDecimals bool // EVM聚合器是否统一使用18位精度
}

// NewNormalizer 创建数量换算器
func NewNormalizer(cfg types.AmountConfig) *Normalizer {
	return &Normalizer{uniformEVMDecimals: cfg.UniformEVMDecimals}
}

// RawAmount 计算最小单位数量
// floor(amount × 10^decimals)，未知代币按18位精度
func (n *Normalizer) RawAmount(amount decimal.Decimal, token string) string {
	return scale(amount, reference.Decimals(token))
}

// RawAmountEVM EVM聚合器使用的数量视图
func (n *Normalizer) RawAmountEVM(amount decimal.Decimal, token string) string {
	if n.uniformEVMDecimals {
		return scale(amount, reference.DefaultDecimals)
	}
	return n.RawAmount(amount, token)
}

func scale(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(decimals).Floor().String()
}

// Prepare 校验请求并填充数量视图
// 数量为0时按默认值1处理，负数返回校验错误
func (n *Normalizer) Prepare(req *types.CompareRequest) error {
	req.Chain = strings.TrimSpace(req.Chain)
	req.FromToken = strings.TrimSpace(req.FromToken)
	req.ToToken = strings.TrimSpace(req.ToToken)
	req.ToChain = strings.TrimSpace(req.ToChain)

	if req.Chain == "" || req.FromToken == "" || req.ToToken == "" {
		return types.NewValidationError("Missing required parameters: chain, from_token, to_token")
	}
	if req.Amount.IsNegative() {
		return types.NewValidationError(fmt.Sprintf("invalid amount: %s", req.Amount.String()))
	}
	if req.Amount.IsZero() {
		req.Amount = DefaultAmount
	}

	req.RawAmount = n.RawAmount(req.Amount, req.FromToken)
	req.RawAmountEVM = n.RawAmountEVM(req.Amount, req.FromToken)
	return nil
}

// ParseAmount 解析请求中的数量字符串
// 空字符串或无法解析的值按缺省处理，返回默认值1
// 负数视为非法请求
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAmount, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return DefaultAmount, nil
	}
	if d.IsNegative() {
		return decimal.Zero, types.NewValidationError(fmt.Sprintf("invalid amount: %q", raw))
	}
	return d, nil
}

// EstimateOutput 基于静态价格表估算输出数量，仅用于展示
func EstimateOutput(fromToken, toToken string, amount decimal.Decimal) types.PriceEstimate {
	if amount.IsZero() {
		amount = DefaultAmount
	}
	fromPrice := decimal.NewFromFloat(reference.Price(fromToken))
	toPrice := decimal.NewFromFloat(reference.Price(toToken))

	rate := fromPrice.Div(toPrice)
	out := amount.Mul(rate)

	return types.PriceEstimate{
		FromToken:       strings.ToUpper(fromToken),
		ToToken:         strings.ToUpper(toToken),
		InputAmount:     amount.InexactFloat64(),
		EstimatedOutput: out.InexactFloat64(),
		Rate:            rate.InexactFloat64(),
	}
}
