// Package price serves current/historical USD prices and the stETH/ETH
// conversion rate, cached per-process with short TTLs, and fenced by
// de-peg bounds so a bad LST rate never silently corrupts balance math.
package price

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ethwhale/whalesignal/internal/logging"
)

const (
	rateCacheTTL       = 5 * time.Minute
	historicalCacheTTL = 6 * time.Hour

	// DepegWarnLow/DepegWarnHigh are the soft bounds outside which a
	// stETH/ETH rate is logged as suspicious but still used.
	DepegWarnLow  = "0.98"
	DepegWarnHigh = "1.02"

	// DepegHardLow/DepegHardHigh are the hard bounds outside which a
	// rate must never be used for LST math; GetSTETHETHRate falls back
	// to fallbackSTETHRate instead of surfacing the bad rate.
	DepegHardLow  = "0.90"
	DepegHardHigh = "1.10"

	// fallbackSTETHRate is used, with a warning, when every upstream
	// rate source fails — the rate must never be null (spec §4.3).
	fallbackSTETHRate = "1.0"
)

// Fetcher is the upstream price source. One implementation in
// production talks to a REST price API over net/http; tests supply a
// scripted fake.
type Fetcher interface {
	FetchCurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	FetchHistoricalPrice(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error)
	FetchSTETHRate(ctx context.Context) (decimal.Decimal, error)
}

type historicalKey struct {
	asset       string
	hoursRounded int
}

// Provider implements PriceProvider (spec C3).
type Provider struct {
	fetcher Fetcher
	log     *logging.Logger

	rateCache       *ttlCache[struct{}, decimal.Decimal]
	historicalCache *ttlCache[historicalKey, decimal.Decimal]

	now func() time.Time
}

func NewProvider(fetcher Fetcher, log *logging.Logger) *Provider {
	return &Provider{
		fetcher:         fetcher,
		log:             log.Named("price"),
		rateCache:       newTTLCache[struct{}, decimal.Decimal](rateCacheTTL),
		historicalCache: newTTLCache[historicalKey, decimal.Decimal](historicalCacheTTL),
		now:             time.Now,
	}
}

// GetCurrentPrice returns the current USD price of asset. Not cached —
// the calculator calls this at most once per analysis tick.
func (p *Provider) GetCurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	price, err := p.fetcher.FetchCurrentPrice(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price: current price for %s: %w", asset, err)
	}
	return price, nil
}

// GetHistoricalPrice returns the USD price of asset at "at", cached for
// historicalCacheTTL and keyed by (asset, hours before now, rounded) so
// repeated lookback queries within the same hour share one upstream
// call.
func (p *Provider) GetHistoricalPrice(ctx context.Context, asset string, at time.Time) (decimal.Decimal, error) {
	now := p.now()
	hoursAgo := int(math.Round(now.Sub(at).Hours()))
	key := historicalKey{asset: asset, hoursRounded: hoursAgo}

	if cached, ok := p.historicalCache.get(key, now); ok {
		return cached, nil
	}

	price, err := p.fetcher.FetchHistoricalPrice(ctx, asset, at)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price: historical price for %s at %s: %w", asset, at, err)
	}
	p.historicalCache.set(key, price, now)
	return price, nil
}

// GetSTETHETHRate returns the current stETH/ETH conversion rate. It
// never returns an error: on upstream failure it logs a warning and
// falls back to 1.0, per spec §4.3 ("never null"). A rate outside the
// hard de-peg bounds is likewise replaced by the fallback, since using
// it would corrupt every LST-adjusted balance downstream.
func (p *Provider) GetSTETHETHRate(ctx context.Context) decimal.Decimal {
	now := p.now()
	if cached, ok := p.rateCache.get(struct{}{}, now); ok {
		return cached
	}

	rate, err := p.fetcher.FetchSTETHRate(ctx)
	if err != nil {
		p.log.Warn("stETH/ETH rate fetch failed, falling back to 1.0", zap.Error(err))
		rate = decimal.RequireFromString(fallbackSTETHRate)
		p.rateCache.set(struct{}{}, rate, now)
		return rate
	}

	hardLow := decimal.RequireFromString(DepegHardLow)
	hardHigh := decimal.RequireFromString(DepegHardHigh)
	if rate.LessThan(hardLow) || rate.GreaterThan(hardHigh) {
		p.log.Warn("stETH/ETH rate outside hard bounds, falling back to 1.0",
			zap.String("rate", rate.String()))
		rate = decimal.RequireFromString(fallbackSTETHRate)
		p.rateCache.set(struct{}{}, rate, now)
		return rate
	}

	softLow := decimal.RequireFromString(DepegWarnLow)
	softHigh := decimal.RequireFromString(DepegWarnHigh)
	if rate.LessThan(softLow) || rate.GreaterThan(softHigh) {
		p.log.Warn("stETH/ETH rate outside soft de-peg bounds",
			zap.String("rate", rate.String()))
	}

	p.rateCache.set(struct{}{}, rate, now)
	return rate
}

// IsHardOutOfBounds reports whether rate falls outside [0.90, 1.10],
// used by DataQualityValidator's LST consistency check (spec §4.7
// check 5) against stored steth_rate_used values.
func IsHardOutOfBounds(rate decimal.Decimal) bool {
	hardLow := decimal.RequireFromString(DepegHardLow)
	hardHigh := decimal.RequireFromString(DepegHardHigh)
	return rate.LessThan(hardLow) || rate.GreaterThan(hardHigh)
}

// IsSoftDepegged reports whether rate is below DepegWarnLow (0.98), the
// same condition as the calculator's Depeg Risk tag (spec §4.8 Step J);
// a rate above DepegWarnHigh is not reported.
func IsSoftDepegged(rate decimal.Decimal) bool {
	softLow := decimal.RequireFromString(DepegWarnLow)
	return rate.LessThan(softLow)
}
