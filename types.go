package whalesignal

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Network identifies the chain a snapshot or metric belongs to. Only
// "ethereum" is supported in this release; the string form keeps the type
// forward-compatible with additional networks without a schema change.
type Network string

const (
	NetworkEthereum Network = "ethereum"
)

// DataQualityStatus is the tri-state outcome of the DataQualityValidator.
type DataQualityStatus string

const (
	DataQualityHealthy  DataQualityStatus = "healthy"
	DataQualityDegraded DataQualityStatus = "degraded"
	DataQualityCritical DataQualityStatus = "critical"
)

// ExitCode maps a DataQualityStatus to the standalone validator's process
// exit code, per spec §6.
func (s DataQualityStatus) ExitCode() int {
	switch s {
	case DataQualityHealthy:
		return 0
	case DataQualityDegraded:
		return 1
	default:
		return 2
	}
}

// WhaleDirection classifies a whale's balance movement over the lookback
// window (calculator Step E).
type WhaleDirection string

const (
	DirectionAccumulator WhaleDirection = "accumulator"
	DirectionDistributor WhaleDirection = "distributor"
	DirectionNeutral     WhaleDirection = "neutral"
)

// Tag is a label from the closed vocabulary assigned in calculator Step J.
type Tag string

const (
	TagOrganicAccumulation Tag = "Organic Accumulation"
	TagConcentratedSignal  Tag = "Concentrated Signal"
	TagBullishDivergence   Tag = "Bullish Divergence"
	TagLSTMigration        Tag = "LST Migration"
	TagHighConviction      Tag = "High Conviction"
	TagDepegRisk           Tag = "Depeg Risk"
	TagAnomalyAlert        Tag = "Anomaly Alert"
	TagDataQualityWarning  Tag = "Data Quality Warning"
	TagInsufficientData    Tag = "Insufficient Data"
)

// WhaleEntry is a single ranked holder as produced by WhaleListProvider
// and consumed throughout the calculator. It carries no storage contract
// of its own — it is the transient shape snapshots and balances are built
// from.
type WhaleEntry struct {
	Address       common.Address
	NativeBalance *big.Int // nil means the read failed; never coerced to zero
	Rank          int
}

// BalanceSnapshot is entity E1: one row per (address, snapshot instant).
// A row with a nil NativeBalance is never persisted — SnapshotJob skips it
// before the batch write (spec §4.5 step 3).
//
// WethBalance and StethBalance are recorded alongside the native balance
// so that calculator Step H (LST migration detection) can read true
// historical LST balances from a snapshot instead of assuming they are
// unchanged, resolving the spec's Open Question 2 by actually storing
// them rather than approximating. Both are nil until the LST balance
// read succeeds (Optional semantics, same as NativeBalance).
type BalanceSnapshot struct {
	Address         common.Address
	SnapshotInstant time.Time
	BlockHeight     uint64
	NativeBalance   *big.Int
	WethBalance     *big.Int
	StethBalance    *big.Int
	Rank            int
	Network         Network
}

// MigrationEvent is the transient result of calculator Step H for a single
// address: a native-balance decrease offset by an LST-balance increase
// within gas tolerance.
type MigrationEvent struct {
	Address     common.Address
	EthDeltaWei *big.Int
	LstDeltaWei *big.Int
	NetDeltaWei *big.Int
}

// TagContext bundles the computed fields that Step J's pure tag functions
// read. It exists so tag assignment never reaches back into the
// calculator's intermediate state — only the final, already-computed
// metric fields.
type TagContext struct {
	AnalyzedCount         int
	MinWhales             int
	AccumulatorsCount     int
	ConcentrationGini     *decimal.Decimal
	GiniThreshold         decimal.Decimal
	PriceChangeLookback   *decimal.Decimal
	DivergencePricePct    decimal.Decimal
	ScoreNativePct        *decimal.Decimal
	DivergenceScorePct    decimal.Decimal
	LSTMigrationCount     int
	ScoreLSTAdjustedPct   *decimal.Decimal
	MADThresholdPct       *decimal.Decimal
	IsAnomaly             bool
	StethRateUsed         decimal.Decimal
	OrganicFraction       decimal.Decimal
	DataQualityStatus     DataQualityStatus
}

// AccumulationMetric is entity E2: one row per analysis run. Immutable
// after write; never persisted when DataQualityStatus is critical (spec
// invariant, §3 E2).
type AccumulationMetric struct {
	ID                     uint64
	ComputedAt             time.Time
	LookbackHours          int
	Network                Network
	AnalyzedCount          int
	ScoreNativePct         *decimal.Decimal
	ScoreLSTAdjustedPct    *decimal.Decimal
	TotalWethAsEth         *decimal.Decimal
	TotalStethAsEth        *decimal.Decimal
	StethRateUsed          decimal.Decimal
	AccumulatorsCount      int
	DistributorsCount      int
	NeutralCount           int
	ConcentrationGini      *decimal.Decimal
	MADThresholdPct        *decimal.Decimal
	IsAnomaly              bool
	TopAnomalyAddress      *common.Address
	LSTMigrationCount      int
	PriceChangeLookbackPct *decimal.Decimal
	Tags                   []Tag
	DataQualityStatus      DataQualityStatus
	DataQualityScore       decimal.Decimal
	QualityWarningsCount   int
}

// QualityReport is entity E3: the transient (optionally persisted-as-JSON)
// output of DataQualityValidator.
type QualityReport struct {
	OverallStatus DataQualityStatus
	OverallScore  decimal.Decimal
	Checks        []QualityCheckResult
}

// QualityCheckName enumerates the five independent checks of spec §4.7.
type QualityCheckName string

const (
	CheckSnapshotDensity    QualityCheckName = "snapshot_density"
	CheckPrecisionIntegrity QualityCheckName = "precision_integrity"
	CheckTimeDrift          QualityCheckName = "time_drift"
	CheckStatisticalOutlier QualityCheckName = "statistical_outliers"
	CheckLSTConsistency     QualityCheckName = "lst_consistency"
)

// QualityCheckResult is the outcome of one DataQualityValidator check.
type QualityCheckResult struct {
	Name   QualityCheckName
	Status DataQualityStatus
	Score  decimal.Decimal
	Issues []string
}
