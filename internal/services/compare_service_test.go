package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/adapters"
	"github.com/superbixnggas/MultiRouteX/internal/reference"
	"github.com/superbixnggas/MultiRouteX/internal/types"
	"github.com/superbixnggas/MultiRouteX/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *types.Config {
	return &types.Config{
		Amount: types.AmountConfig{UniformEVMDecimals: true},
		Cache:  types.CacheConfig{DefaultTTL: time.Minute, PrefixKey: "fee:"},
	}
}

// fakeAdapter 可编程的测试适配器
type fakeAdapter struct {
	cfg   *types.ProviderConfig
	quote func(ctx context.Context, req *types.CompareRequest) *types.FeeQuote
	calls atomic.Int32
}

func newFake(name string, policy types.FallbackPolicy, quote func(ctx context.Context, req *types.CompareRequest) *types.FeeQuote) *fakeAdapter {
	return &fakeAdapter{
		cfg: &types.ProviderConfig{
			Name:           name,
			DisplayName:    name,
			Timeout:        time.Second,
			IsActive:       true,
			FallbackPolicy: policy,
			Estimate:       types.FallbackEstimate{SwapGasUSD: 4, SwapRouteUSD: 1},
		},
		quote: quote,
	}
}

// fixedFee 返回固定费用的报价函数
func fixedFee(gas, route float64) func(context.Context, *types.CompareRequest) *types.FeeQuote {
	return func(_ context.Context, _ *types.CompareRequest) *types.FeeQuote {
		q := &types.FeeQuote{Route: []string{"A -> B"}, Viable: true}
		q.SetFees(decimal.NewFromFloat(gas), decimal.NewFromFloat(route))
		return q
	}
}

func failOpenQuote(_ context.Context, _ *types.CompareRequest) *types.FeeQuote {
	return &types.FeeQuote{Route: []string{}, ErrorDetail: "unavailable"}
}

func (f *fakeAdapter) GetName() string        { return f.cfg.Name }
func (f *fakeAdapter) GetDisplayName() string { return f.cfg.DisplayName }
func (f *fakeAdapter) Quote(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
	f.calls.Add(1)
	q := f.quote(ctx, req)
	if q != nil && q.Platform == "" {
		q.Platform = f.cfg.DisplayName
	}
	return q
}
func (f *fakeAdapter) Fallback(req *types.CompareRequest, cause error) *types.FeeQuote {
	q := &types.FeeQuote{Platform: f.cfg.DisplayName, Route: []string{}, ErrorDetail: cause.Error()}
	if f.cfg.FallbackPolicy == types.GracefulFallback {
		q.SetFees(decimal.NewFromFloat(f.cfg.Estimate.SwapGasUSD), decimal.NewFromFloat(f.cfg.Estimate.SwapRouteUSD))
		q.Route = []string{req.FromToken + " -> " + req.ToToken}
		q.Viable = true
	}
	return q
}
func (f *fakeAdapter) EstimateFallback(req *types.CompareRequest, cause error) *types.FeeQuote {
	return f.Fallback(req, cause)
}
func (f *fakeAdapter) HealthCheck(context.Context) error {
	if f.cfg.Name == types.ProviderSocket {
		return errors.New("down")
	}
	return nil
}
func (f *fakeAdapter) GetConfig() *types.ProviderConfig   { return f.cfg }
func (f *fakeAdapter) GetMetrics() adapters.AdapterMetrics { return adapters.AdapterMetrics{} }

func newService(list ...adapters.ProviderAdapter) *CompareService {
	return NewCompareServiceWithAdapters(testConfig(), list, nil, newTestLogger())
}

func allFakes() (jup, oneinch, rango, lifi, socket *fakeAdapter) {
	jup = newFake(types.ProviderJupiter, types.FailOpen, fixedFee(0.001, 0.02))
	oneinch = newFake(types.Provider1inch, types.GracefulFallback, fixedFee(2, 0))
	rango = newFake(types.ProviderRango, types.GracefulFallback, fixedFee(0.7, 0.3))
	lifi = newFake(types.ProviderLiFi, types.GracefulFallback, fixedFee(1, 0.5))
	socket = newFake(types.ProviderSocket, types.GracefulFallback, fixedFee(3, 0.4))
	return
}

func platforms(result *types.ComparisonResult) []string {
	names := make([]string, 0, len(result.AllQuotes))
	for _, q := range result.AllQuotes {
		names = append(names, q.Platform)
	}
	return names
}

// ========================================
// 适用性与调用顺序
// ========================================

func TestCompareSolanaUsesJupiterAndRango(t *testing.T) {
	jup, oneinch, rango, lifi, socket := allFakes()
	svc := newService(socket, lifi, rango, oneinch, jup)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{
		Chain: "Solana", FromToken: "SOL", ToToken: "USDC", Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{types.ProviderJupiter, types.ProviderRango}, platforms(result))
	assert.Equal(t, types.ProviderJupiter, result.CheapestPlatform)
	assert.InDelta(t, 0.021, result.CheapestFee, 1e-9)
	assert.Zero(t, oneinch.calls.Load())
	assert.Zero(t, lifi.calls.Load())
	assert.Zero(t, socket.calls.Load())
}

func TestCompareEVMUsesFourProviders(t *testing.T) {
	jup, oneinch, rango, lifi, socket := allFakes()
	svc := newService(jup, oneinch, rango, lifi, socket)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{
		Chain: "ethereum", FromToken: "ETH", ToToken: "USDC", Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{types.Provider1inch, types.ProviderRango, types.ProviderLiFi, types.ProviderSocket}, platforms(result))
	assert.Zero(t, jup.calls.Load())

	assert.Equal(t, types.ProviderRango, result.CheapestPlatform)
	assert.InDelta(t, 1.0, result.CheapestFee, 1e-9)
	assert.InDelta(t, 0.7, result.CheapestGasFee, 1e-9)
	assert.InDelta(t, 0.3, result.CheapestRouteFee, 1e-9)
	assert.Equal(t, []string{"A -> B"}, result.CheapestRoute)
	assert.Equal(t, reference.PlatformURLs, result.PlatformURLs)
	assert.InDelta(t, 2500.0, result.EstimatedOutput, 1e-9)
}

func TestCompareSkipsDisabledAdapters(t *testing.T) {
	_, oneinch, rango, lifi, socket := allFakes()
	lifi.cfg.IsActive = false
	svc := newService(oneinch, rango, lifi, socket)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "polygon", FromToken: "MATIC", ToToken: "USDC"})
	require.NoError(t, err)

	assert.Equal(t, []string{types.Provider1inch, types.ProviderRango, types.ProviderSocket}, platforms(result))
	assert.Zero(t, lifi.calls.Load())
}

func TestCompareKeepsInvocationOrder(t *testing.T) {
	_, oneinch, rango, lifi, socket := allFakes()
	slow := fixedFee(2, 0)
	oneinch.quote = func(ctx context.Context, req *types.CompareRequest) *types.FeeQuote {
		time.Sleep(100 * time.Millisecond)
		return slow(ctx, req)
	}
	svc := newService(oneinch, rango, lifi, socket)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "bsc", FromToken: "BNB", ToToken: "USDT"})
	require.NoError(t, err)
	assert.Equal(t, []string{types.Provider1inch, types.ProviderRango, types.ProviderLiFi, types.ProviderSocket}, platforms(result))
}

// ========================================
// 最便宜报价选择
// ========================================

func TestSelectCheapest(t *testing.T) {
	mk := func(name string, fee float64, viable bool) *types.FeeQuote {
		return &types.FeeQuote{Platform: name, TotalFeeUSD: fee, Viable: viable}
	}

	tests := []struct {
		name   string
		quotes []*types.FeeQuote
		want   string
	}{
		{"lowest wins", []*types.FeeQuote{mk("a", 3, true), mk("b", 1, true), mk("c", 2, true)}, "b"},
		{"tie keeps invocation order", []*types.FeeQuote{mk("a", 2, true), mk("b", 1, true), mk("c", 1, true)}, "b"},
		{"non-viable ignored", []*types.FeeQuote{mk("a", 0.5, false), mk("b", 1, true)}, "b"},
		{"zero fee ignored", []*types.FeeQuote{mk("a", 0, true), mk("b", 1, true)}, "b"},
		{"nothing viable", []*types.FeeQuote{mk("a", 0, false), mk("b", 0, true)}, ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectCheapest(tt.quotes)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Platform)
		})
	}
}

func TestCompareTieBreakOnEngine(t *testing.T) {
	_, oneinch, rango, lifi, socket := allFakes()
	oneinch.quote = fixedFee(2, 0)
	rango.quote = fixedFee(1, 0)
	lifi.quote = fixedFee(0.5, 0.5)
	socket.quote = fixedFee(3, 0)
	svc := newService(oneinch, rango, lifi, socket)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "arbitrum", FromToken: "ETH", ToToken: "USDC"})
	require.NoError(t, err)
	assert.Equal(t, types.ProviderRango, result.CheapestPlatform)
}

func TestCompareSentinelWhenNothingViable(t *testing.T) {
	jup := newFake(types.ProviderJupiter, types.FailOpen, failOpenQuote)
	rango := newFake(types.ProviderRango, types.FailOpen, failOpenQuote)
	svc := newService(jup, rango)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "solana", FromToken: "SOL", ToToken: "BONK"})
	require.NoError(t, err)

	assert.Equal(t, types.NoResult, result.CheapestPlatform)
	assert.Zero(t, result.CheapestFee)
	assert.Zero(t, result.CheapestGasFee)
	assert.Zero(t, result.CheapestRouteFee)
	assert.Empty(t, result.CheapestRoute)
	require.Len(t, result.AllQuotes, 2)
	for _, q := range result.AllQuotes {
		assert.False(t, q.Viable)
		assert.NotEmpty(t, q.ErrorDetail)
	}
}

func TestCompareTotalIsGasPlusRoute(t *testing.T) {
	_, oneinch, rango, lifi, socket := allFakes()
	svc := newService(oneinch, rango, lifi, socket)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "ethereum", FromToken: "ETH", ToToken: "DAI"})
	require.NoError(t, err)
	for _, q := range result.AllQuotes {
		assert.InDelta(t, q.GasFeeUSD+q.RouteFeeUSD, q.TotalFeeUSD, 1e-12, q.Platform)
	}
}

// ========================================
// 超时与异常
// ========================================

func TestCompareTimeoutSubstitutesFallback(t *testing.T) {
	_, oneinch, rango, lifi, socket := allFakes()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	socket.cfg.Timeout = 50 * time.Millisecond
	socket.quote = func(context.Context, *types.CompareRequest) *types.FeeQuote {
		<-release
		return nil
	}
	svc := newService(oneinch, rango, lifi, socket)

	start := time.Now()
	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "ethereum", FromToken: "ETH", ToToken: "USDC"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, result.AllQuotes, 4)
	stalled := result.AllQuotes[3]
	assert.Equal(t, types.ProviderSocket, stalled.Platform)
	assert.True(t, stalled.Viable)
	assert.InDelta(t, 5.0, stalled.TotalFeeUSD, 1e-9)
	assert.Contains(t, stalled.ErrorDetail, "timed out")
	assert.Equal(t, types.ProviderRango, result.CheapestPlatform)
}

func TestCompareRecoversAdapterPanic(t *testing.T) {
	_, oneinch, rango, lifi, socket := allFakes()
	lifi.quote = func(context.Context, *types.CompareRequest) *types.FeeQuote {
		panic("boom")
	}
	svc := newService(oneinch, rango, lifi, socket)

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "ethereum", FromToken: "ETH", ToToken: "USDC"})
	require.NoError(t, err)

	require.Len(t, result.AllQuotes, 4)
	assert.Contains(t, result.AllQuotes[2].ErrorDetail, "panic")
	assert.True(t, result.AllQuotes[2].Viable)
}

// ========================================
// 请求校验
// ========================================

func TestCompareDefaultsAmountToOne(t *testing.T) {
	jup, _, rango, _, _ := allFakes()
	svc := newService(jup, rango)

	req := &types.CompareRequest{Chain: "solana", FromToken: "SOL", ToToken: "USDC"}
	result, err := svc.Compare(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.InputAmount)
	assert.Equal(t, "1000000000", req.RawAmount)
}

func TestCompareValidation(t *testing.T) {
	svc := newService()

	tests := []struct {
		name string
		req  *types.CompareRequest
	}{
		{"missing chain", &types.CompareRequest{FromToken: "ETH", ToToken: "USDC"}},
		{"missing from token", &types.CompareRequest{Chain: "ethereum", ToToken: "USDC"}},
		{"missing to token", &types.CompareRequest{Chain: "ethereum", FromToken: "ETH"}},
		{"negative amount", &types.CompareRequest{Chain: "ethereum", FromToken: "ETH", ToToken: "USDC", Amount: decimal.NewFromInt(-5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetComparison(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	assert.Equal(t, int64(len(tests)), svc.GetMetrics().FailedRequests)
}

// ========================================
// 使用真实适配器
// ========================================

func countingServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestCompareTimeoutCountsFallbackOnce(t *testing.T) {
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(stalled.Close)

	cfg := testConfig()
	cfg.Providers = realProviderConfigs(map[string]string{
		types.ProviderJupiter: stalled.URL,
		types.Provider1inch:   stalled.URL,
		types.ProviderRango:   stalled.URL,
		types.ProviderLiFi:    stalled.URL,
		types.ProviderSocket:  stalled.URL,
	})
	for i := range cfg.Providers {
		cfg.Providers[i].Timeout = 100 * time.Millisecond
	}
	svc := NewCompareService(cfg, nil, newTestLogger())

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "ethereum", FromToken: "ETH", ToToken: "USDC"})
	require.NoError(t, err)
	require.Len(t, result.AllQuotes, 4)
	for _, q := range result.AllQuotes {
		assert.True(t, q.Viable, q.Platform)
		assert.NotEmpty(t, q.ErrorDetail, q.Platform)
	}

	evm := []string{types.Provider1inch, types.ProviderRango, types.ProviderLiFi, types.ProviderSocket}
	fallbacks := func(name string) int64 { return svc.adapters[name].GetMetrics().FallbackQuotes }

	require.Eventually(t, func() bool {
		for _, name := range evm {
			if fallbacks(name) == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// 给迟到的调用路径留出时间，计数不应再增加
	time.Sleep(200 * time.Millisecond)
	for _, name := range evm {
		assert.Equal(t, int64(1), fallbacks(name), name)
	}
}

func realProviderConfigs(urls map[string]string) []types.ProviderConfig {
	mk := func(name, display string, policy types.FallbackPolicy, est types.FallbackEstimate) types.ProviderConfig {
		return types.ProviderConfig{
			Name: name, DisplayName: display, BaseURL: urls[name], PlatformURL: reference.PlatformURLs[name],
			Timeout: 2 * time.Second, IsActive: true, FallbackPolicy: policy, Estimate: est,
		}
	}
	return []types.ProviderConfig{
		mk(types.ProviderJupiter, "Jupiter", types.FailOpen, types.FallbackEstimate{}),
		mk(types.Provider1inch, "1inch", types.GracefulFallback, types.FallbackEstimate{SwapGasUSD: 0.5, SwapRouteUSD: 0.1, BridgeGasUSD: 0.5, BridgeRouteUSD: 0.1, MainnetSwapGasUSD: 5}),
		mk(types.ProviderRango, "Rango", types.GracefulFallback, types.FallbackEstimate{SwapGasUSD: 1.5, SwapRouteUSD: 0.3, BridgeGasUSD: 8, BridgeRouteUSD: 4}),
		mk(types.ProviderLiFi, "LI.FI", types.GracefulFallback, types.FallbackEstimate{SwapGasUSD: 2, SwapRouteUSD: 0.5, BridgeGasUSD: 10, BridgeRouteUSD: 5}),
		mk(types.ProviderSocket, "Socket", types.GracefulFallback, types.FallbackEstimate{SwapGasUSD: 3, SwapRouteUSD: 0.4, BridgeGasUSD: 12, BridgeRouteUSD: 6}),
	}
}

func TestCompareUnknownChainWithRealAdapters(t *testing.T) {
	oneinchSrv, oneinchCalls := countingServer(t, `{}`)
	rangoSrv, rangoCalls := countingServer(t, `{"route": {"fee": "0.2", "swaps": []}}`)
	lifiSrv, lifiCalls := countingServer(t, `{}`)
	socketSrv, socketCalls := countingServer(t, `{}`)

	cfg := testConfig()
	cfg.Providers = realProviderConfigs(map[string]string{
		types.ProviderJupiter: "http://127.0.0.1:1",
		types.Provider1inch:   oneinchSrv.URL,
		types.ProviderRango:   rangoSrv.URL,
		types.ProviderLiFi:    lifiSrv.URL,
		types.ProviderSocket:  socketSrv.URL,
	})
	svc := NewCompareService(cfg, nil, newTestLogger())
	require.Equal(t, 5, svc.ProviderCount())

	result, err := svc.Compare(context.Background(), &types.CompareRequest{Chain: "fantom", FromToken: "ETH", ToToken: "USDC"})
	require.NoError(t, err)

	require.Len(t, result.AllQuotes, 4)
	assert.Equal(t, []string{"1inch", "Rango", "LI.FI", "Socket"}, platforms(result))

	// EVM专用聚合器走路径不支持的降级
	wantFallback := map[int]float64{0: 0.6, 2: 2.5, 3: 3.4}
	for idx, fee := range wantFallback {
		q := result.AllQuotes[idx]
		assert.True(t, q.Viable, q.Platform)
		assert.NotEmpty(t, q.ErrorDetail, q.Platform)
		assert.InDelta(t, fee, q.TotalFeeUSD, 1e-9, q.Platform)
	}
	assert.Zero(t, oneinchCalls.Load())
	assert.Zero(t, lifiCalls.Load())
	assert.Zero(t, socketCalls.Load())

	// Rango接受任意链名，仍然实时询价
	assert.Equal(t, int32(1), rangoCalls.Load())
	assert.Empty(t, result.AllQuotes[1].ErrorDetail)
	assert.Equal(t, "Rango", result.CheapestPlatform)
	assert.InDelta(t, 0.2, result.CheapestFee, 1e-9)
}

// ========================================
// 缓存
// ========================================

func TestGetComparisonUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	jup, _, rango, _, _ := allFakes()
	svc := NewCompareServiceWithAdapters(testConfig(), []adapters.ProviderAdapter{jup, rango},
		cache.NewRedisCacheFromClient(client, newTestLogger()), newTestLogger())

	req := func() *types.CompareRequest {
		return &types.CompareRequest{Chain: "solana", FromToken: "sol", ToToken: "usdc", Amount: decimal.NewFromInt(2)}
	}

	first, err := svc.GetComparison(context.Background(), req())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := svc.GetComparison(context.Background(), req())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.CheapestPlatform, second.CheapestPlatform)
	assert.Len(t, second.AllQuotes, 2)

	assert.Equal(t, int32(1), jup.calls.Load())
	assert.Equal(t, int32(1), rango.calls.Load())

	m := svc.GetMetrics()
	assert.Equal(t, int64(2), m.TotalRequests)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(2), m.CheapestWins[types.ProviderJupiter])

	assert.True(t, mr.Exists("fee:solana_SOL_USDC__2"))
}

func TestGetComparisonRedisDownIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	jup, _, rango, _, _ := allFakes()
	svc := NewCompareServiceWithAdapters(testConfig(), []adapters.ProviderAdapter{jup, rango},
		cache.NewRedisCacheFromClient(client, newTestLogger()), newTestLogger())

	result, err := svc.GetComparison(context.Background(), &types.CompareRequest{Chain: "solana", FromToken: "SOL", ToToken: "USDC"})
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	assert.Equal(t, types.ProviderJupiter, result.CheapestPlatform)
}

// ========================================
// 状态与预估
// ========================================

func TestProviderStatuses(t *testing.T) {
	_, oneinch, rango, _, socket := allFakes()
	svc := newService(socket, oneinch, rango)

	statuses := svc.ProviderStatuses(context.Background(), true)
	require.Len(t, statuses, 3)
	assert.Equal(t, types.Provider1inch, statuses[0].Name)
	assert.Equal(t, "graceful", statuses[0].FallbackPolicy)

	for _, st := range statuses {
		require.NotNil(t, st.Healthy, st.Name)
		if st.Name == types.ProviderSocket {
			assert.False(t, *st.Healthy)
			assert.Equal(t, "down", st.Error)
		} else {
			assert.True(t, *st.Healthy)
		}
	}

	for _, st := range svc.ProviderStatuses(context.Background(), false) {
		assert.Nil(t, st.Healthy)
	}
}

func TestEstimateOutput(t *testing.T) {
	svc := newService()

	est, err := svc.EstimateOutput("SOL", "USDC", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.InDelta(t, 1800.0, est.EstimatedOutput, 1e-9)

	_, err = svc.EstimateOutput("", "USDC", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, types.ErrValidation)
}
