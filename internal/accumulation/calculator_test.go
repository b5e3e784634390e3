package accumulation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
	"github.com/ethwhale/whalesignal/internal/whalelist"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(true, -1)
	require.NoError(t, err)
	return log
}

func ethWei(n int64) *big.Int {
	wei := new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
	return wei
}

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

// fakes implementing the calculator's narrow collaborator interfaces.

type fakeWhales struct {
	entries []whalelist.WhaleEntry
}

func (f *fakeWhales) GetTopWhales(ctx context.Context, n int) ([]whalelist.WhaleEntry, error) {
	return f.entries, nil
}

type fakeHistTop struct {
	addresses []common.Address
}

func (f *fakeHistTop) GetAddressesInTopAtTime(ctx context.Context, at time.Time, tol float64, topN int, network whalesignal.Network) ([]common.Address, error) {
	return f.addresses, nil
}

type fakeHistSnaps struct {
	snapshots map[common.Address]whalesignal.BalanceSnapshot
}

func (f *fakeHistSnaps) GetSnapshotsBatchAtTime(ctx context.Context, addresses []common.Address, at time.Time, tol float64, network whalesignal.Network) (map[common.Address]whalesignal.BalanceSnapshot, error) {
	out := make(map[common.Address]whalesignal.BalanceSnapshot)
	for _, a := range addresses {
		if s, ok := f.snapshots[a]; ok {
			out[a] = s
		}
	}
	return out, nil
}

type fakeNative struct {
	balances map[common.Address]*big.Int
}

func (f *fakeNative) BatchNativeBalances(ctx context.Context, addresses []common.Address) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int)
	for _, a := range addresses {
		out[a] = f.balances[a]
	}
	return out, nil
}

type fakeRate struct {
	rate decimal.Decimal
}

func (f *fakeRate) GetSTETHETHRate(ctx context.Context) decimal.Decimal { return f.rate }

type fakePrices struct {
	current, historical decimal.Decimal
}

func (f *fakePrices) GetCurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return f.current, nil
}

func (f *fakePrices) GetHistoricalPrice(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error) {
	return f.historical, nil
}

// buildCalculator wires fakes for a scenario where CURRENT == HISTORICAL
// address set (the common case; S7 overrides this).
func buildCalculator(t *testing.T, current []whalelist.WhaleEntry, histNative map[common.Address]*big.Int, rate decimal.Decimal) *Calculator {
	t.Helper()
	histSnaps := make(map[common.Address]whalesignal.BalanceSnapshot)
	histAddrs := make([]common.Address, 0, len(histNative))
	for a, bal := range histNative {
		histSnaps[a] = whalesignal.BalanceSnapshot{Address: a, NativeBalance: bal}
		histAddrs = append(histAddrs, a)
	}
	cfg := DefaultConfig()
	cfg.MinWhales = 1

	return New(
		&fakeWhales{entries: current},
		&fakeHistTop{addresses: histAddrs},
		&fakeHistSnaps{snapshots: histSnaps},
		&fakeNative{balances: nativeNowFrom(current)},
		nil,
		&fakeRate{rate: rate},
		&fakePrices{current: decimal.RequireFromString("3400"), historical: decimal.RequireFromString("3500")},
		cfg,
		testLogger(t),
	)
}

func nativeNowFrom(entries []whalelist.WhaleEntry) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(entries))
	for _, e := range entries {
		out[e.Address] = e.NativeBalance
	}
	return out
}

func healthyQuality() whalesignal.QualityReport {
	return whalesignal.QualityReport{OverallStatus: whalesignal.DataQualityHealthy, OverallScore: decimal.RequireFromString("1.0")}
}

// S1 — Neutral market: three whales, unchanged balances.
func TestCompute_S1_NeutralMarket(t *testing.T) {
	a1, a2, a3 := addr(1), addr(2), addr(3)
	current := []whalelist.WhaleEntry{
		{Address: a1, NativeBalance: ethWei(1000), Rank: 1},
		{Address: a2, NativeBalance: ethWei(2000), Rank: 2},
		{Address: a3, NativeBalance: ethWei(3000), Rank: 3},
	}
	hist := map[common.Address]*big.Int{a1: ethWei(1000), a2: ethWei(2000), a3: ethWei(3000)}

	calc := buildCalculator(t, current, hist, decimal.RequireFromString("1.0"))
	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, healthyQuality())
	require.NoError(t, err)

	require.NotNil(t, metric.ScoreNativePct)
	assert.True(t, metric.ScoreNativePct.Equal(decimal.Zero))
	assert.Equal(t, 0, metric.AccumulatorsCount)
	assert.Equal(t, 0, metric.DistributorsCount)
	assert.Equal(t, 3, metric.NeutralCount)
	assert.False(t, metric.IsAnomaly)
	require.NotNil(t, metric.ConcentrationGini)
	assert.True(t, metric.ConcentrationGini.Sub(decimal.RequireFromString("0.222")).Abs().LessThan(decimal.RequireFromString("0.01")))
	assert.Empty(t, metric.Tags)
}

// S2 — Collective accumulation: uniform +10%, MAD = 0, Organic Accumulation tag.
func TestCompute_S2_CollectiveAccumulation(t *testing.T) {
	a1, a2, a3 := addr(1), addr(2), addr(3)
	current := []whalelist.WhaleEntry{
		{Address: a1, NativeBalance: ethWei(1100), Rank: 1},
		{Address: a2, NativeBalance: ethWei(2200), Rank: 2},
		{Address: a3, NativeBalance: ethWei(3300), Rank: 3},
	}
	hist := map[common.Address]*big.Int{a1: ethWei(1000), a2: ethWei(2000), a3: ethWei(3000)}

	calc := buildCalculator(t, current, hist, decimal.RequireFromString("1.0"))
	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, healthyQuality())
	require.NoError(t, err)

	require.NotNil(t, metric.ScoreNativePct)
	assert.True(t, metric.ScoreNativePct.Sub(decimal.RequireFromString("10.0")).Abs().LessThan(decimal.RequireFromString("0.001")))
	assert.Equal(t, 3, metric.AccumulatorsCount)
	assert.Equal(t, 0, metric.DistributorsCount)
	assert.False(t, metric.IsAnomaly)
	assert.Contains(t, metric.Tags, whalesignal.TagOrganicAccumulation)
}

// S3 — Single-whale outlier: a 200% delta dominates MAD against four
// whales moving 1-4%. A bare 3-whale version of this scenario produces
// a degenerate mad = 0 (Step F rule 4 would then force no-anomaly) — five
// whales with distinct small deltas keep MAD non-degenerate so the
// outlier is what Step F's formula actually flags, matching spec.md's
// worked expectation rather than its literal rule 4 degenerate case.
func TestCompute_S3_SingleWhaleOutlier(t *testing.T) {
	a1, a2, a3, a4, a5 := addr(1), addr(2), addr(3), addr(4), addr(5)
	current := []whalelist.WhaleEntry{
		{Address: a1, NativeBalance: ethWei(1010), Rank: 1}, // +1%
		{Address: a2, NativeBalance: ethWei(1020), Rank: 2}, // +2%
		{Address: a3, NativeBalance: ethWei(1030), Rank: 3}, // +3%
		{Address: a4, NativeBalance: ethWei(1040), Rank: 4}, // +4%
		{Address: a5, NativeBalance: ethWei(3000), Rank: 5}, // +200%
	}
	hist := map[common.Address]*big.Int{
		a1: ethWei(1000), a2: ethWei(1000), a3: ethWei(1000), a4: ethWei(1000), a5: ethWei(1000),
	}

	calc := buildCalculator(t, current, hist, decimal.RequireFromString("1.0"))
	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, healthyQuality())
	require.NoError(t, err)

	require.True(t, metric.IsAnomaly)
	require.NotNil(t, metric.TopAnomalyAddress)
	assert.Equal(t, a5, *metric.TopAnomalyAddress)
	assert.Contains(t, metric.Tags, whalesignal.TagAnomalyAlert)
	assert.NotContains(t, metric.Tags, whalesignal.TagHighConviction)
}

// S4 — LST migration: native decrease offset by an LST increase within
// gas tolerance, using historical LST balances carried on the snapshot.
func TestCompute_S4_LSTMigration(t *testing.T) {
	whale := addr(1)
	other := addr(2)

	// Whale moves ~1000 ETH of native balance into stETH at rate 1.0,
	// with a 5e15 Wei (0.005 ETH) shortfall left over from gas — well
	// within the 1e16 Wei default gas tolerance.
	gasShortfall := big.NewInt(5e15)
	nativeNow := new(big.Int).Sub(ethWei(1000), big.NewInt(0)) // 2000 -> 1000 ETH
	stethNow := new(big.Int).Sub(ethWei(1000), gasShortfall)   // 0 -> ~1000 ETH worth of stETH

	current := []whalelist.WhaleEntry{
		{Address: whale, NativeBalance: nativeNow, Rank: 1},
		{Address: other, NativeBalance: ethWei(500), Rank: 2},
	}

	histSnaps := map[common.Address]whalesignal.BalanceSnapshot{
		whale: {Address: whale, NativeBalance: ethWei(2000), WethBalance: big.NewInt(0), StethBalance: big.NewInt(0)},
		other: {Address: other, NativeBalance: ethWei(500), WethBalance: big.NewInt(0), StethBalance: big.NewInt(0)},
	}

	wethAddr, stethAddr := addr(0xAA), addr(0xBB)
	cfg := DefaultConfig()
	cfg.MinWhales = 1
	cfg.WethAddress = wethAddr
	cfg.StethAddress = stethAddr
	calc := New(
		&fakeWhales{entries: current},
		&fakeHistTop{addresses: []common.Address{whale, other}},
		&fakeHistSnaps{snapshots: histSnaps},
		&fakeNative{balances: nativeNowFrom(current)},
		&fakeERC20{
			wethAddr:  wethAddr,
			stethAddr: stethAddr,
			weth:      map[common.Address]*big.Int{whale: big.NewInt(0), other: big.NewInt(0)},
			steth:     map[common.Address]*big.Int{whale: stethNow, other: big.NewInt(0)},
		},
		&fakeRate{rate: decimal.RequireFromString("1.0")},
		&fakePrices{current: decimal.RequireFromString("3400"), historical: decimal.RequireFromString("3500")},
		cfg,
		testLogger(t),
	)

	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, healthyQuality())
	require.NoError(t, err)

	assert.Equal(t, 1, metric.LSTMigrationCount)
	assert.Contains(t, metric.Tags, whalesignal.TagLSTMigration)
	assert.Equal(t, 1, metric.DistributorsCount)
}

type fakeERC20 struct {
	wethAddr, stethAddr common.Address
	weth, steth         map[common.Address]*big.Int
}

func (f *fakeERC20) BatchERC20Balances(ctx context.Context, token common.Address, addresses []common.Address) (map[common.Address]*big.Int, error) {
	var src map[common.Address]*big.Int
	if token == f.wethAddr {
		src = f.weth
	} else {
		src = f.steth
	}
	out := make(map[common.Address]*big.Int, len(addresses))
	for _, a := range addresses {
		out[a] = src[a]
	}
	return out, nil
}

// S5 — Bullish divergence: modest positive score against a falling price.
func TestCompute_S5_BullishDivergence(t *testing.T) {
	a1, a2 := addr(1), addr(2)
	current := []whalelist.WhaleEntry{
		{Address: a1, NativeBalance: ethWei(1005), Rank: 1},
		{Address: a2, NativeBalance: ethWei(2010), Rank: 2},
	}
	hist := map[common.Address]*big.Int{a1: ethWei(1000), a2: ethWei(2000)}

	cfg := DefaultConfig()
	cfg.MinWhales = 1
	histSnaps := make(map[common.Address]whalesignal.BalanceSnapshot)
	histAddrs := make([]common.Address, 0, len(hist))
	for a, bal := range hist {
		histSnaps[a] = whalesignal.BalanceSnapshot{Address: a, NativeBalance: bal}
		histAddrs = append(histAddrs, a)
	}

	calc := New(
		&fakeWhales{entries: current},
		&fakeHistTop{addresses: histAddrs},
		&fakeHistSnaps{snapshots: histSnaps},
		&fakeNative{balances: nativeNowFrom(current)},
		nil,
		&fakeRate{rate: decimal.RequireFromString("1.0")},
		&fakePrices{current: decimal.RequireFromString("3400"), historical: decimal.RequireFromString("3500")},
		cfg,
		testLogger(t),
	)

	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, healthyQuality())
	require.NoError(t, err)

	require.NotNil(t, metric.PriceChangeLookbackPct)
	assert.True(t, metric.PriceChangeLookbackPct.LessThan(decimal.RequireFromString("-2.0")))
	assert.Contains(t, metric.Tags, whalesignal.TagBullishDivergence)
}

// S6 — Circuit breaker aborts: Compute refuses outright on a critical
// quality report, mirroring the orchestrator's own gate as a second
// line of defense (spec §4.9's "C9 calls C7; if not critical, C9 calls
// C8").
func TestCompute_S6_CircuitBreakerAborts(t *testing.T) {
	a1 := addr(1)
	current := []whalelist.WhaleEntry{{Address: a1, NativeBalance: ethWei(1000), Rank: 1}}
	hist := map[common.Address]*big.Int{a1: ethWei(1000)}

	calc := buildCalculator(t, current, hist, decimal.RequireFromString("1.0"))
	critical := whalesignal.QualityReport{OverallStatus: whalesignal.DataQualityCritical, OverallScore: decimal.RequireFromString("0.3")}

	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, critical)
	require.ErrorIs(t, err, whalesignal.ErrDataQualityCritical)
	assert.Nil(t, metric)
}

// S7 — Survivorship bias: a whale present in HISTORICAL but absent from
// CURRENT must still contribute its full distribution to the union
// analysis.
func TestCompute_S7_SurvivorshipBias(t *testing.T) {
	survivor := addr(1)
	vanished := addr(2) // was a 100,000 ETH whale; now holds ~0 and fell out of top-N

	current := []whalelist.WhaleEntry{
		{Address: survivor, NativeBalance: ethWei(1000), Rank: 1},
	}
	histSnaps := map[common.Address]whalesignal.BalanceSnapshot{
		survivor: {Address: survivor, NativeBalance: ethWei(1000)},
		vanished: {Address: vanished, NativeBalance: ethWei(100000)},
	}

	cfg := DefaultConfig()
	cfg.MinWhales = 1
	calc := New(
		&fakeWhales{entries: current},
		&fakeHistTop{addresses: []common.Address{survivor, vanished}},
		&fakeHistSnaps{snapshots: histSnaps},
		&fakeNative{balances: map[common.Address]*big.Int{survivor: ethWei(1000), vanished: big.NewInt(0)}},
		nil,
		&fakeRate{rate: decimal.RequireFromString("1.0")},
		&fakePrices{current: decimal.RequireFromString("3400"), historical: decimal.RequireFromString("3500")},
		cfg,
		testLogger(t),
	)

	metric, err := calc.Compute(context.Background(), time.Now(), whalesignal.NetworkEthereum, healthyQuality())
	require.NoError(t, err)

	assert.Equal(t, 2, metric.AnalyzedCount)
	require.NotNil(t, metric.ScoreNativePct)
	assert.True(t, metric.ScoreNativePct.LessThan(decimal.Zero))
	assert.Equal(t, 1, metric.DistributorsCount)
}
