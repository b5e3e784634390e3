package accumulation

import "github.com/ethwhale/whalesignal"

// assignTags implements calculator Step J: a closed vocabulary assigned
// by pure, order-independent functions of the already-computed metric
// fields. Tags are deduplicated by string identity by construction —
// each condition appends its tag at most once.
func assignTags(ctx whalesignal.TagContext) []whalesignal.Tag {
	var tags []whalesignal.Tag

	if ctx.AnalyzedCount > 0 &&
		decimalFromInt(ctx.AccumulatorsCount).GreaterThan(ctx.OrganicFraction.Mul(decimalFromInt(ctx.AnalyzedCount))) {
		tags = append(tags, whalesignal.TagOrganicAccumulation)
	}

	if ctx.ConcentrationGini != nil && ctx.ConcentrationGini.GreaterThan(ctx.GiniThreshold) {
		tags = append(tags, whalesignal.TagConcentratedSignal)
	}

	if ctx.PriceChangeLookback != nil && ctx.ScoreNativePct != nil &&
		ctx.PriceChangeLookback.LessThan(ctx.DivergencePricePct) &&
		ctx.ScoreNativePct.GreaterThan(ctx.DivergenceScorePct) {
		tags = append(tags, whalesignal.TagBullishDivergence)
	}

	if ctx.LSTMigrationCount > 0 {
		tags = append(tags, whalesignal.TagLSTMigration)
	}

	if ctx.ScoreLSTAdjustedPct != nil && ctx.MADThresholdPct != nil && !ctx.IsAnomaly &&
		ctx.ScoreLSTAdjustedPct.GreaterThan(ctx.MADThresholdPct) {
		tags = append(tags, whalesignal.TagHighConviction)
	}

	if ctx.StethRateUsed.LessThan(decimalFromString("0.98")) {
		tags = append(tags, whalesignal.TagDepegRisk)
	}

	if ctx.IsAnomaly {
		tags = append(tags, whalesignal.TagAnomalyAlert)
	}

	if ctx.DataQualityStatus == whalesignal.DataQualityDegraded {
		tags = append(tags, whalesignal.TagDataQualityWarning)
	}

	if ctx.AnalyzedCount < ctx.MinWhales {
		tags = append(tags, whalesignal.TagInsufficientData)
	}

	return tags
}
