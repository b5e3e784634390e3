// Package quality implements DataQualityValidator (spec C7): five
// independent checks over recent snapshot/metric history, aggregated
// into an overall QualityReport that gates whether the calculator may
// run for this tick.
package quality

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/price"
)

const (
	blockTimeSeconds = 12.0
	driftWindowSecs  = 720.0
	outlierChangePct = 50.0
)

// Input bundles everything the five checks read, already loaded by the
// orchestrator from SnapshotRepository/AccumulationRepository. Keeping
// this a plain data struct (rather than repository interfaces) keeps
// every check a pure function, per SPEC_FULL.md §4.7.
type Input struct {
	// SnapshotsByAddress holds every BalanceSnapshot row in the last 24h window,
	// one slice per address, each already sorted by SnapshotInstant asc.
	SnapshotsByAddress map[common.Address][]Snapshot
	UniqueWhales       int
	StethRatesUsed     []decimal.Decimal
}

// Snapshot is the per-row shape used by the density/drift/outlier/
// precision checks.
type Snapshot struct {
	Instant     time.Time
	BlockHeight uint64
	NativeWei   float64 // Wei as float64 is acceptable here: these checks are statistical diagnostics over the data, not balance comparisons (spec §9 forbids float only for balance math itself).
}

// Validator runs the five independent checks and aggregates them.
type Validator struct{}

func New() *Validator { return &Validator{} }

// Validate runs all five checks and aggregates their results.
func (v *Validator) Validate(input Input) whalesignal.QualityReport {
	checks := []whalesignal.QualityCheckResult{
		snapshotDensity(input),
		precisionIntegrity(input),
		timeDrift(input),
		statisticalOutliers(input),
		lstConsistency(input.StethRatesUsed),
	}

	overall := whalesignal.DataQualityHealthy
	scoreSum := decimal.Zero
	for _, c := range checks {
		if worse(c.Status, overall) {
			overall = c.Status
		}
		scoreSum = scoreSum.Add(c.Score)
	}
	overallScore := scoreSum.Div(decimal.NewFromInt(int64(len(checks))))

	return whalesignal.QualityReport{
		OverallStatus: overall,
		OverallScore:  overallScore,
		Checks:        checks,
	}
}

// Gate applies the spec §4.7 gating contract: critical blocks the
// calculator entirely; degraded forces is_anomaly and the
// Data Quality Warning tag but lets the calculator run; healthy is a
// no-op.
func Gate(report whalesignal.QualityReport) (mayRun bool, forceAnomaly bool, extraTag *whalesignal.Tag) {
	switch report.OverallStatus {
	case whalesignal.DataQualityCritical:
		return false, false, nil
	case whalesignal.DataQualityDegraded:
		tag := whalesignal.TagDataQualityWarning
		return true, true, &tag
	default:
		return true, false, nil
	}
}

func worse(a, b whalesignal.DataQualityStatus) bool {
	return severityRank(a) > severityRank(b)
}

func severityRank(s whalesignal.DataQualityStatus) int {
	switch s {
	case whalesignal.DataQualityCritical:
		return 2
	case whalesignal.DataQualityDegraded:
		return 1
	default:
		return 0
	}
}

// snapshotDensity: actual_rows / (unique_whales * 24).
func snapshotDensity(input Input) whalesignal.QualityCheckResult {
	actualRows := 0
	for _, rows := range input.SnapshotsByAddress {
		actualRows += len(rows)
	}

	expected := float64(input.UniqueWhales) * 24.0
	var density float64
	if expected > 0 {
		density = float64(actualRows) / expected
	}

	var status whalesignal.DataQualityStatus
	var issues []string
	switch {
	case density >= 0.85:
		status = whalesignal.DataQualityHealthy
	case density >= 0.70:
		status = whalesignal.DataQualityDegraded
		issues = append(issues, "snapshot density below 0.85")
	default:
		status = whalesignal.DataQualityCritical
		issues = append(issues, "snapshot density below 0.70")
	}

	return whalesignal.QualityCheckResult{
		Name:   whalesignal.CheckSnapshotDensity,
		Status: status,
		Score:  scoreFor(status),
		Issues: issues,
	}
}

// precisionIntegrity: count of whales with >= 1 zero-balance snapshot.
func precisionIntegrity(input Input) whalesignal.QualityCheckResult {
	count := 0
	for _, rows := range input.SnapshotsByAddress {
		for _, r := range rows {
			if r.NativeWei == 0 {
				count++
				break
			}
		}
	}

	var status whalesignal.DataQualityStatus
	var issues []string
	switch {
	case count == 0:
		status = whalesignal.DataQualityHealthy
	case count <= 5:
		status = whalesignal.DataQualityDegraded
		issues = append(issues, "whales with a zero-balance snapshot in window")
	default:
		status = whalesignal.DataQualityCritical
		issues = append(issues, "too many whales with a zero-balance snapshot in window")
	}

	return whalesignal.QualityCheckResult{
		Name:   whalesignal.CheckPrecisionIntegrity,
		Status: status,
		Score:  scoreFor(status),
		Issues: issues,
	}
}

// timeDrift: compares the actual gap between consecutive snapshots of a
// whale against the gap implied by their block-height delta and a
// 12-second block time, expressed as a percentage of a 720s window.
func timeDrift(input Input) whalesignal.QualityCheckResult {
	var drifts []float64
	for _, rows := range input.SnapshotsByAddress {
		for i := 1; i < len(rows); i++ {
			actualGap := rows[i].Instant.Sub(rows[i-1].Instant).Seconds()
			blockDelta := float64(rows[i].BlockHeight) - float64(rows[i-1].BlockHeight)
			expectedGap := blockDelta * blockTimeSeconds
			drift := math.Abs(actualGap-expectedGap) / driftWindowSecs * 100.0
			drifts = append(drifts, drift)
		}
	}

	var avg, max float64
	if len(drifts) > 0 {
		sum := 0.0
		for _, d := range drifts {
			sum += d
			if d > max {
				max = d
			}
		}
		avg = sum / float64(len(drifts))
	}

	worstDrift := avg
	if max > worstDrift {
		worstDrift = max
	}

	var status whalesignal.DataQualityStatus
	var issues []string
	switch {
	case worstDrift < 5.0:
		status = whalesignal.DataQualityHealthy
	case worstDrift < 10.0:
		status = whalesignal.DataQualityDegraded
		issues = append(issues, "snapshot timing drift between 5% and 10% of window")
	default:
		status = whalesignal.DataQualityCritical
		issues = append(issues, "snapshot timing drift at or above 10% of window")
	}

	return whalesignal.QualityCheckResult{
		Name:   whalesignal.CheckTimeDrift,
		Status: status,
		Score:  scoreFor(status),
		Issues: issues,
	}
}

// statisticalOutliers: whales with >= 2 snapshots whose hour-over-hour
// balance change exceeds outlierChangePct.
func statisticalOutliers(input Input) whalesignal.QualityCheckResult {
	flagged := 0
	for _, rows := range input.SnapshotsByAddress {
		if len(rows) < 2 {
			continue
		}
		isOutlier := false
		for i := 1; i < len(rows); i++ {
			prev := rows[i-1].NativeWei
			if prev == 0 {
				continue
			}
			changePct := math.Abs(rows[i].NativeWei-prev) / prev * 100.0
			if changePct > outlierChangePct {
				isOutlier = true
				break
			}
		}
		if isOutlier {
			flagged++
		}
	}

	var status whalesignal.DataQualityStatus
	var issues []string
	switch {
	case flagged == 0:
		status = whalesignal.DataQualityHealthy
	case flagged <= 3:
		status = whalesignal.DataQualityDegraded
		issues = append(issues, "whales with an hour-over-hour change above 50%")
	default:
		status = whalesignal.DataQualityCritical
		issues = append(issues, "too many whales with an hour-over-hour change above 50%")
	}

	return whalesignal.QualityCheckResult{
		Name:   whalesignal.CheckStatisticalOutlier,
		Status: status,
		Score:  scoreFor(status),
		Issues: issues,
	}
}

// lstConsistency: every stored steth_rate_used must be in [0.90, 1.10].
func lstConsistency(rates []decimal.Decimal) whalesignal.QualityCheckResult {
	violations := 0
	for _, r := range rates {
		if price.IsHardOutOfBounds(r) {
			violations++
		}
	}

	var status whalesignal.DataQualityStatus
	var issues []string
	switch {
	case violations == 0:
		status = whalesignal.DataQualityHealthy
	case violations <= 2:
		status = whalesignal.DataQualityDegraded
		issues = append(issues, "stored stETH/ETH rates outside hard bounds")
	default:
		status = whalesignal.DataQualityCritical
		issues = append(issues, "too many stored stETH/ETH rates outside hard bounds")
	}

	return whalesignal.QualityCheckResult{
		Name:   whalesignal.CheckLSTConsistency,
		Status: status,
		Score:  scoreFor(status),
		Issues: issues,
	}
}

// scoreFor maps a check's severity to its [0,100] sub-score: the
// aggregation's overall score is the mean of these.
func scoreFor(status whalesignal.DataQualityStatus) decimal.Decimal {
	switch status {
	case whalesignal.DataQualityHealthy:
		return decimal.NewFromInt(100)
	case whalesignal.DataQualityDegraded:
		return decimal.NewFromInt(60)
	default:
		return decimal.NewFromInt(20)
	}
}
