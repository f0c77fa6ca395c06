// Package reference 静态参考数据
// 链列表、链ID、代币地址、代币精度、近似USD价格和聚合器跳转地址
// 所有表在运行期只读，可并发访问无需加锁
package reference

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// ChainSolana Solana链名称
const ChainSolana = "solana"

// ChainEthereum 以太坊主网名称(Gas费最高的链)
const ChainEthereum = "ethereum"

// NativeTokenAddress EVM链原生代币的占位地址
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// DefaultDecimals 未知代币的默认精度
const DefaultDecimals = 18

// Chain 链信息
type Chain struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Token 代币信息
type Token struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Chains 前端可选的链列表
var Chains = []Chain{
	{ID: "ethereum", Name: "Ethereum", Icon: "ETH"},
	{ID: "arbitrum", Name: "Arbitrum", Icon: "ARB"},
	{ID: "polygon", Name: "Polygon", Icon: "MATIC"},
	{ID: "bsc", Name: "BNB Chain", Icon: "BNB"},
	{ID: "solana", Name: "Solana", Icon: "SOL"},
}

// Tokens 每条链可选的代币
var Tokens = map[string][]Token{
	"ethereum": {
		{Symbol: "ETH", Name: "Ethereum"},
		{Symbol: "USDC", Name: "USD Coin"},
		{Symbol: "USDT", Name: "Tether"},
		{Symbol: "WETH", Name: "Wrapped ETH"},
		{Symbol: "DAI", Name: "Dai"},
	},
	"arbitrum": {
		{Symbol: "ETH", Name: "Ethereum"},
		{Symbol: "USDC", Name: "USD Coin"},
		{Symbol: "USDT", Name: "Tether"},
		{Symbol: "ARB", Name: "Arbitrum"},
	},
	"polygon": {
		{Symbol: "MATIC", Name: "Polygon"},
		{Symbol: "USDC", Name: "USD Coin"},
		{Symbol: "USDT", Name: "Tether"},
	},
	"bsc": {
		{Symbol: "BNB", Name: "BNB"},
		{Symbol: "USDC", Name: "USD Coin"},
		{Symbol: "USDT", Name: "Tether"},
	},
	"solana": {
		{Symbol: "SOL", Name: "Solana"},
		{Symbol: "USDC", Name: "USD Coin"},
		{Symbol: "USDT", Name: "Tether"},
		{Symbol: "BONK", Name: "Bonk"},
		{Symbol: "JUP", Name: "Jupiter"},
	},
}

// chainIDs 聚合器API使用的数字链ID，solana为0表示非EVM
var chainIDs = map[string]uint{
	"ethereum":  1,
	"bsc":       56,
	"polygon":   137,
	"arbitrum":  42161,
	"optimism":  10,
	"avalanche": 43114,
	"solana":    0,
}

var tokenAddresses = map[string]map[string]string{
	"solana": {
		"SOL":  "So11111111111111111111111111111111111111112",
		"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
		"BONK": "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		"JUP":  "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
	},
	"ethereum": {
		"ETH":  NativeTokenAddress,
		"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"USDT": "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		"WETH": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"DAI":  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
	},
	"arbitrum": {
		"ETH":  NativeTokenAddress,
		"USDC": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		"USDT": "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
		"ARB":  "0x912CE59144191C1204E64559FE8253a0e49E6548",
	},
	"polygon": {
		"MATIC": NativeTokenAddress,
		"USDC":  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		"USDT":  "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	},
	"bsc": {
		"BNB":  NativeTokenAddress,
		"USDC": "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		"USDT": "0x55d398326f99059fF775485246999027B3197955",
	},
}

var tokenDecimals = map[string]int32{
	"ETH":   18,
	"WETH":  18,
	"SOL":   9,
	"USDC":  6,
	"USDT":  6,
	"DAI":   18,
	"MATIC": 18,
	"BNB":   18,
	"ARB":   18,
	"BONK":  5,
	"JUP":   6,
}

var tokenPrices = map[string]float64{
	"ETH":   2500,
	"WETH":  2500,
	"SOL":   180,
	"MATIC": 0.85,
	"BNB":   600,
	"ARB":   1.2,
	"USDC":  1,
	"USDT":  1,
	"DAI":   1,
	"BONK":  0.000025,
	"JUP":   1.5,
}

// rangoChains Rango使用的链名称
var rangoChains = map[string]string{
	"ethereum":  "ETH",
	"bsc":       "BSC",
	"polygon":   "POLYGON",
	"arbitrum":  "ARBITRUM",
	"solana":    "SOLANA",
	"avalanche": "AVAX_CCHAIN",
}

// PlatformURLs 聚合器跳转地址，与请求无关
var PlatformURLs = map[string]string{
	"jupiter": "https://jup.ag/swap",
	"1inch":   "https://app.1inch.io",
	"lifi":    "https://li.fi",
	"rango":   "https://app.rango.exchange",
	"socket":  "https://socket.tech",
}

// PlatformURLTable 返回跳转地址表的副本
func PlatformURLTable() map[string]string {
	out := make(map[string]string, len(PlatformURLs))
	for k, v := range PlatformURLs {
		out[k] = v
	}
	return out
}

// IsSolana 判断是否为Solana类链
func IsSolana(chain string) bool {
	return strings.EqualFold(chain, ChainSolana)
}

// IsEthereumMainnet 判断是否为以太坊主网
func IsEthereumMainnet(chain string) bool {
	return strings.EqualFold(chain, ChainEthereum)
}

// ChainID 返回EVM链ID，未知链或非EVM链返回false
func ChainID(chain string) (uint, bool) {
	id, ok := chainIDs[strings.ToLower(chain)]
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// RangoChain 返回Rango链名称，未知链直接转大写
func RangoChain(chain string) string {
	if name, ok := rangoChains[strings.ToLower(chain)]; ok {
		return name
	}
	return strings.ToUpper(chain)
}

// Decimals 返回代币精度，未知代币返回18
func Decimals(token string) int32 {
	if d, ok := tokenDecimals[strings.ToUpper(token)]; ok {
		return d
	}
	return DefaultDecimals
}

// Price 返回代币近似USD价格，未知代币返回1
func Price(token string) float64 {
	if p, ok := tokenPrices[strings.ToUpper(token)]; ok {
		return p
	}
	return 1
}

// TokenAddress 查找代币在链上的地址
// 符号表中不存在时原样返回，found为false
func TokenAddress(chain, token string) (address string, found bool) {
	if chainTokens, ok := tokenAddresses[strings.ToLower(chain)]; ok {
		if addr, ok := chainTokens[strings.ToUpper(token)]; ok {
			return addr, true
		}
	}
	return token, false
}

// EVMTokenAddress 解析EVM代币地址，符号未知且不是合法十六进制地址时返回false
func EVMTokenAddress(chain, token string) (string, bool) {
	addr, found := TokenAddress(chain, token)
	if found {
		return addr, true
	}
	if common.IsHexAddress(token) {
		return common.HexToAddress(token).Hex(), true
	}
	return "", false
}

// SolanaMint 解析Solana代币mint地址，符号未知且不是合法base58公钥时返回false
func SolanaMint(token string) (string, bool) {
	addr, found := TokenAddress(ChainSolana, token)
	if found {
		return addr, true
	}
	pk, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return "", false
	}
	return pk.String(), true
}
