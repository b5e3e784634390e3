// Package accumulation implements AccumulationCalculator (spec C8), the
// analysis kernel: union address selection, LST-adjusted scoring,
// MAD anomaly detection, Gini concentration, LST migration detection,
// and tag assignment.
package accumulation

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
	dataquality "github.com/ethwhale/whalesignal/internal/quality"
	"github.com/ethwhale/whalesignal/internal/stats"
	"github.com/ethwhale/whalesignal/internal/whalelist"
)

// CurrentWhaleLister supplies CURRENT in Step A.
type CurrentWhaleLister interface {
	GetTopWhales(ctx context.Context, n int) ([]whalelist.WhaleEntry, error)
}

// HistoricalTopProvider supplies HISTORICAL in Step A.
type HistoricalTopProvider interface {
	GetAddressesInTopAtTime(ctx context.Context, at time.Time, toleranceHours float64, topN int, network whalesignal.Network) ([]common.Address, error)
}

// HistoricalSnapshotProvider supplies historical native/WETH/stETH
// balances for Step B/H nearest-neighbour lookups.
type HistoricalSnapshotProvider interface {
	GetSnapshotsBatchAtTime(ctx context.Context, addresses []common.Address, at time.Time, toleranceHours float64, network whalesignal.Network) (map[common.Address]whalesignal.BalanceSnapshot, error)
}

// NativeBalancer supplies current native balances for Step B.
type NativeBalancer interface {
	BatchNativeBalances(ctx context.Context, addresses []common.Address) (map[common.Address]*big.Int, error)
}

// ERC20Balancer supplies current WETH/stETH balances for Step B.
type ERC20Balancer interface {
	BatchERC20Balances(ctx context.Context, token common.Address, addresses []common.Address) (map[common.Address]*big.Int, error)
}

// RateProvider supplies the current stETH/ETH rate for Step B.
type RateProvider interface {
	GetSTETHETHRate(ctx context.Context) decimal.Decimal
}

// PriceReader supplies current/historical USD prices for Step I.
type PriceReader interface {
	GetCurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	GetHistoricalPrice(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error)
}

// Config is the calculator's tunable surface, spec §6.
type Config struct {
	TopN                int
	LookbackHours        int
	MinWhales            int
	MADMultiplier        int64 // k in Step F's threshold = k * mad
	GiniThreshold        decimal.Decimal
	OrganicFraction      decimal.Decimal
	DivergencePricePct   decimal.Decimal
	DivergenceScorePct   decimal.Decimal
	GasToleranceWei      *big.Int
	HistoricalToleranceH float64 // tolerance_hours for nearest-neighbour lookups, default 1
	PriceAsset           string
	WethAddress          common.Address
	StethAddress         common.Address
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		TopN:                 1000,
		LookbackHours:        24,
		MinWhales:            20,
		MADMultiplier:        3,
		GiniThreshold:        decimal.RequireFromString("0.85"),
		OrganicFraction:      decimal.RequireFromString("0.25"),
		DivergencePricePct:   decimal.RequireFromString("-2.0"),
		DivergenceScorePct:   decimal.RequireFromString("0.2"),
		GasToleranceWei:      new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil),
		HistoricalToleranceH: 1.0,
		PriceAsset:           "ETH",
	}
}

// Calculator implements AccumulationCalculator (spec C8).
type Calculator struct {
	whales    CurrentWhaleLister
	histTop   HistoricalTopProvider
	histSnaps HistoricalSnapshotProvider
	native    NativeBalancer
	erc20     ERC20Balancer
	rate      RateProvider
	prices    PriceReader
	cfg       Config
	log       *logging.Logger
}

func New(
	whales CurrentWhaleLister,
	histTop HistoricalTopProvider,
	histSnaps HistoricalSnapshotProvider,
	native NativeBalancer,
	erc20 ERC20Balancer,
	rate RateProvider,
	prices PriceReader,
	cfg Config,
	log *logging.Logger,
) *Calculator {
	return &Calculator{
		whales: whales, histTop: histTop, histSnaps: histSnaps,
		native: native, erc20: erc20, rate: rate, prices: prices,
		cfg: cfg, log: log.Named("accumulation"),
	}
}

// addressState carries every balance this calculator reads for one
// address in the union set A.
type addressState struct {
	address    common.Address
	nativeNow  *big.Int
	wethNow    *big.Int
	stethNow   *big.Int
	nativeHist *big.Int
	wethHist   *big.Int // nil unless the historical snapshot recorded it
	stethHist  *big.Int
}

// Compute runs Steps A-J for one analysis tick. quality must come from a
// DataQualityValidator run against this same tick's snapshot population;
// the caller (the orchestrator) must not invoke Compute at all when
// quality.OverallStatus is critical — Compute itself only applies the
// degraded forcing rule and refuses to run on critical as a second line
// of defense.
func (c *Calculator) Compute(ctx context.Context, now time.Time, network whalesignal.Network, quality whalesignal.QualityReport) (*whalesignal.AccumulationMetric, error) {
	qualityStatus := quality.OverallStatus
	mayRun, forceAnomaly, _ := dataquality.Gate(quality)
	if !mayRun {
		return nil, whalesignal.ErrDataQualityCritical
	}
	warnings := 0
	for _, check := range quality.Checks {
		if len(check.Issues) > 0 {
			warnings++
		}
	}

	// Step A: union address selection.
	current, err := c.whales.GetTopWhales(ctx, c.cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("accumulation: get top whales: %w", err)
	}
	historicalInstant := now.Add(-time.Duration(c.cfg.LookbackHours) * time.Hour)
	historical, err := c.histTop.GetAddressesInTopAtTime(ctx, historicalInstant, c.cfg.HistoricalToleranceH, c.cfg.TopN, network)
	if err != nil {
		return nil, fmt.Errorf("accumulation: get historical top: %w", err)
	}

	union := unionAddresses(current, historical)
	if len(union) == 0 {
		return nil, whalesignal.ErrInsufficientData
	}

	// Step B: balance retrieval.
	nativeNow, err := c.native.BatchNativeBalances(ctx, union)
	if err != nil {
		return nil, fmt.Errorf("accumulation: batch native balances: %w", err)
	}
	var wethNow, stethNow map[common.Address]*big.Int
	if c.erc20 != nil {
		wethNow, err = c.erc20.BatchERC20Balances(ctx, c.cfg.WethAddress, union)
		if err != nil {
			c.log.Warn("weth balance batch failed, lst-adjusted score will be null")
		}
		stethNow, err = c.erc20.BatchERC20Balances(ctx, c.cfg.StethAddress, union)
		if err != nil {
			c.log.Warn("steth balance batch failed, lst-adjusted score will be null")
		}
	}
	histSnapshots, err := c.histSnaps.GetSnapshotsBatchAtTime(ctx, union, historicalInstant, c.cfg.HistoricalToleranceH, network)
	if err != nil {
		return nil, fmt.Errorf("accumulation: get historical snapshots: %w", err)
	}
	rate := c.rate.GetSTETHETHRate(ctx)

	var priceChangeLookbackPct *decimal.Decimal
	priceNow, errNow := c.prices.GetCurrentPrice(ctx, c.cfg.PriceAsset)
	priceHist, errHist := c.prices.GetHistoricalPrice(ctx, c.cfg.PriceAsset, now.Add(-48*time.Hour))
	if errNow == nil && errHist == nil && !priceHist.IsZero() {
		pct := priceNow.Sub(priceHist).Div(priceHist).Mul(decimalFromInt(100))
		priceChangeLookbackPct = &pct
	}

	states := buildAddressStates(union, nativeNow, wethNow, stethNow, histSnapshots)

	haveAnyHistorical := false
	for _, s := range states {
		if s.nativeHist != nil {
			haveAnyHistorical = true
			break
		}
	}
	if !haveAnyHistorical {
		return nil, whalesignal.ErrInsufficientData
	}

	scoreNativePct, scoreLSTAdjustedPct, totalWeth, totalSteth := computeScores(states, rate)

	deltas, accCount, distCount, neutralCount := computeDeltasAndDirections(states)

	madMedian, _, isAnomaly, topAnomaly, madThreshold := detectAnomaly(deltas, c.cfg.MADMultiplier)
	_ = madMedian

	gini := computeGini(states)

	migrationCount := countMigrations(states, rate, c.cfg.GasToleranceWei)

	analyzedCount := len(states)

	tagCtx := whalesignal.TagContext{
		AnalyzedCount:       analyzedCount,
		MinWhales:           c.cfg.MinWhales,
		AccumulatorsCount:   accCount,
		ConcentrationGini:   gini,
		GiniThreshold:       c.cfg.GiniThreshold,
		PriceChangeLookback: priceChangeLookbackPct,
		DivergencePricePct:  c.cfg.DivergencePricePct,
		ScoreNativePct:      scoreNativePct,
		DivergenceScorePct:  c.cfg.DivergenceScorePct,
		LSTMigrationCount:   migrationCount,
		ScoreLSTAdjustedPct: scoreLSTAdjustedPct,
		MADThresholdPct:     madThreshold,
		IsAnomaly:           isAnomaly,
		StethRateUsed:       rate,
		OrganicFraction:     c.cfg.OrganicFraction,
		DataQualityStatus:   qualityStatus,
	}
	if forceAnomaly {
		tagCtx.IsAnomaly = true
		isAnomaly = true
	}

	tags := assignTags(tagCtx)

	metric := &whalesignal.AccumulationMetric{
		ComputedAt:             now,
		LookbackHours:          c.cfg.LookbackHours,
		Network:                network,
		AnalyzedCount:          analyzedCount,
		ScoreNativePct:         scoreNativePct,
		ScoreLSTAdjustedPct:    scoreLSTAdjustedPct,
		TotalWethAsEth:         totalWeth,
		TotalStethAsEth:        totalSteth,
		StethRateUsed:          rate,
		AccumulatorsCount:      accCount,
		DistributorsCount:      distCount,
		NeutralCount:           neutralCount,
		ConcentrationGini:      gini,
		MADThresholdPct:        madThreshold,
		IsAnomaly:              isAnomaly,
		TopAnomalyAddress:      topAnomaly,
		LSTMigrationCount:      migrationCount,
		PriceChangeLookbackPct: priceChangeLookbackPct,
		Tags:                   tags,
		DataQualityStatus:      qualityStatus,
		DataQualityScore:       quality.OverallScore,
		QualityWarningsCount:   warnings,
	}
	return metric, nil
}

func unionAddresses(current []whalelist.WhaleEntry, historical []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(current)+len(historical))
	union := make([]common.Address, 0, len(current)+len(historical))
	for _, w := range current {
		if _, ok := seen[w.Address]; !ok {
			seen[w.Address] = struct{}{}
			union = append(union, w.Address)
		}
	}
	for _, a := range historical {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			union = append(union, a)
		}
	}
	sort.Slice(union, func(i, j int) bool { return union[i].Hex() < union[j].Hex() })
	return union
}

func buildAddressStates(
	union []common.Address,
	nativeNow, wethNow, stethNow map[common.Address]*big.Int,
	histSnapshots map[common.Address]whalesignal.BalanceSnapshot,
) []addressState {
	states := make([]addressState, 0, len(union))
	for _, addr := range union {
		st := addressState{address: addr, nativeNow: nativeNow[addr]}
		if wethNow != nil {
			st.wethNow = wethNow[addr]
		}
		if stethNow != nil {
			st.stethNow = stethNow[addr]
		}
		if snap, ok := histSnapshots[addr]; ok {
			st.nativeHist = snap.NativeBalance
			st.wethHist = snap.WethBalance
			st.stethHist = snap.StethBalance
		}
		states = append(states, st)
	}
	return states
}

// wealth computes native + weth + steth*rate for a (native, weth, steth)
// triple, treating any nil component as zero (an address missing WETH
// or stETH entirely is a perfectly normal native-only whale).
func wealth(native, weth, steth *big.Int, rate decimal.Decimal) decimal.Decimal {
	total := bigToDecimal(native).Add(bigToDecimal(weth))
	if steth != nil {
		total = total.Add(bigToDecimal(steth).Mul(rate))
	}
	return total
}

// computeScores implements Step C/D.
func computeScores(states []addressState, rate decimal.Decimal) (scoreNative, scoreLST *decimal.Decimal, totalWeth, totalSteth *decimal.Decimal) {
	sumNativeNow := decimal.Zero
	sumNativeHist := decimal.Zero
	sumWealthNow := decimal.Zero
	sumWealthHist := decimal.Zero
	sumWeth := decimal.Zero
	sumSteth := decimal.Zero
	haveAny := false

	for _, s := range states {
		if s.nativeNow != nil {
			sumWeth = sumWeth.Add(bigToDecimal(s.wethNow))
			sumSteth = sumSteth.Add(bigToDecimal(s.stethNow))
		}
		if s.nativeNow == nil || s.nativeHist == nil {
			continue
		}
		haveAny = true
		sumNativeNow = sumNativeNow.Add(bigToDecimal(s.nativeNow))
		sumNativeHist = sumNativeHist.Add(bigToDecimal(s.nativeHist))

		// Step C: wealth_now uses current LST; wealth_hist uses historical
		// native but current LST (MVP: historical LST assumed unchanged
		// for this aggregation step specifically, per spec §4.8 Step C).
		sumWealthNow = sumWealthNow.Add(wealth(s.nativeNow, s.wethNow, s.stethNow, rate))
		sumWealthHist = sumWealthHist.Add(wealth(s.nativeHist, s.wethNow, s.stethNow, rate))
	}

	if !haveAny || sumNativeHist.IsZero() {
		return nil, nil, &sumWeth, &sumSteth
	}

	native := sumNativeNow.Sub(sumNativeHist).Div(sumNativeHist).Mul(decimalFromInt(100))
	var lst *decimal.Decimal
	if !sumWealthHist.IsZero() {
		l := sumWealthNow.Sub(sumWealthHist).Div(sumWealthHist).Mul(decimalFromInt(100))
		lst = &l
	}
	return &native, lst, &sumWeth, &sumSteth
}

// computeDeltasAndDirections implements Step E.
func computeDeltasAndDirections(states []addressState) (deltas map[common.Address]decimal.Decimal, accumulators, distributors, neutral int) {
	deltas = make(map[common.Address]decimal.Decimal)
	for _, s := range states {
		if s.nativeNow == nil || s.nativeHist == nil || bigToDecimal(s.nativeHist).IsZero() {
			continue
		}
		pct := bigToDecimal(s.nativeNow).Sub(bigToDecimal(s.nativeHist)).Div(bigToDecimal(s.nativeHist)).Mul(decimalFromInt(100))
		deltas[s.address] = pct

		abs := pct.Abs()
		switch {
		case abs.LessThan(decimalFromString("0.01")):
			neutral++
		case pct.GreaterThan(decimal.Zero):
			accumulators++
		default:
			distributors++
		}
	}
	return deltas, accumulators, distributors, neutral
}

// detectAnomaly implements Step F.
func detectAnomaly(deltas map[common.Address]decimal.Decimal, k int64) (median, mad decimal.Decimal, isAnomaly bool, topAddr *common.Address, threshold *decimal.Decimal) {
	if len(deltas) == 0 {
		return decimal.Zero, decimal.Zero, false, nil, nil
	}

	addrs := make([]common.Address, 0, len(deltas))
	values := make([]decimal.Decimal, 0, len(deltas))
	for a, v := range deltas {
		addrs = append(addrs, a)
		values = append(values, v)
	}

	median, mad = stats.MAD(values)
	if mad.IsZero() {
		th := mad.Mul(decimalFromInt(int(k)))
		return median, mad, false, nil, &th
	}

	th := mad.Mul(decimal.NewFromInt(k))
	var maxDeviation decimal.Decimal
	var winner *common.Address
	for i, a := range addrs {
		deviation := values[i].Sub(median).Abs()
		if deviation.GreaterThan(th) {
			if winner == nil || deviation.GreaterThan(maxDeviation) {
				addrCopy := a
				winner = &addrCopy
				maxDeviation = deviation
			}
		}
	}
	return median, mad, winner != nil, winner, &th
}

// computeGini implements Step G, over current native balances of the
// union — addresses whose current balance could not be read are
// excluded from the population (an unknown balance is not a zero).
func computeGini(states []addressState) *decimal.Decimal {
	balances := make([]*big.Int, 0, len(states))
	for _, s := range states {
		if s.nativeNow != nil {
			balances = append(balances, s.nativeNow)
		}
	}
	return stats.Gini(balances)
}

// countMigrations implements Step H, using historical LST balances from
// snapshots (not current — see Config/DESIGN.md Open Question 2);
// addresses with no historical LST snapshot are skipped for migration
// counting.
func countMigrations(states []addressState, rate decimal.Decimal, gasToleranceWei *big.Int) int {
	count := 0
	for _, s := range states {
		if s.nativeNow == nil || s.nativeHist == nil || s.wethHist == nil || s.stethHist == nil {
			continue
		}
		ethDelta := new(big.Int).Sub(s.nativeNow, s.nativeHist)
		if ethDelta.Sign() >= 0 {
			continue
		}

		wethDelta := bigToDecimal(s.wethNow).Sub(bigToDecimal(s.wethHist))
		stethDelta := bigToDecimal(s.stethNow).Sub(bigToDecimal(s.stethHist)).Mul(rate)
		lstDeltaDec := wethDelta.Add(stethDelta)
		if lstDeltaDec.Sign() <= 0 {
			continue
		}
		lstDelta := lstDeltaDec.Round(0).BigInt()

		net := new(big.Int).Add(ethDelta, lstDelta)
		netAbs := new(big.Int).Abs(net)
		if netAbs.Cmp(gasToleranceWei) < 0 {
			count++
		}
	}
	return count
}
