package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
)

// AccumulationRepository implements whalesignal C6: an append-only log
// of AccumulationMetric rows.
type AccumulationRepository struct {
	db  *gorm.DB
	log *logging.Logger
}

func NewAccumulationRepository(db *gorm.DB, log *logging.Logger) (*AccumulationRepository, error) {
	if err := db.AutoMigrate(&MetricRecord{}); err != nil {
		return nil, fmt.Errorf("storage: migrate metric schema: %w", err)
	}
	return &AccumulationRepository{db: db, log: log.Named("storage.accumulation")}, nil
}

// SaveMetric appends metric. Callers must never call this when
// metric.DataQualityStatus is critical — the orchestrator enforces that
// gate before reaching this repository (spec invariant: "no row if
// data_quality_status = critical").
func (r *AccumulationRepository) SaveMetric(ctx context.Context, metric whalesignal.AccumulationMetric) error {
	record := metricToRecord(metric)
	result := r.db.WithContext(ctx).Create(&record)
	if result.Error != nil {
		return fmt.Errorf("storage: save metric: %w", result.Error)
	}
	return nil
}

// GetLatest returns the most recently computed metric for network, or
// nil if none exists yet.
func (r *AccumulationRepository) GetLatest(ctx context.Context, network whalesignal.Network) (*whalesignal.AccumulationMetric, error) {
	var rec MetricRecord
	result := r.db.WithContext(ctx).
		Where("network = ?", string(network)).
		Order("computed_at DESC").
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return nil, fmt.Errorf("storage: get latest metric: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	metric := recordToMetric(rec)
	return &metric, nil
}

// GetSince returns every metric for network computed at or after
// instant, ordered oldest first.
func (r *AccumulationRepository) GetSince(ctx context.Context, network whalesignal.Network, instant time.Time) ([]whalesignal.AccumulationMetric, error) {
	var recs []MetricRecord
	result := r.db.WithContext(ctx).
		Where("network = ? AND computed_at >= ?", string(network), instant).
		Order("computed_at ASC").
		Find(&recs)
	if result.Error != nil {
		return nil, fmt.Errorf("storage: get metrics since: %w", result.Error)
	}

	metrics := make([]whalesignal.AccumulationMetric, len(recs))
	for i, rec := range recs {
		metrics[i] = recordToMetric(rec)
	}
	return metrics, nil
}

func metricToRecord(m whalesignal.AccumulationMetric) MetricRecord {
	tagStrings := make([]string, len(m.Tags))
	for i, t := range m.Tags {
		tagStrings[i] = string(t)
	}

	var topAnomaly *string
	if m.TopAnomalyAddress != nil {
		hex := m.TopAnomalyAddress.Hex()
		topAnomaly = &hex
	}

	return MetricRecord{
		ComputedAt:             m.ComputedAt,
		LookbackHours:          m.LookbackHours,
		Network:                string(m.Network),
		AnalyzedCount:          m.AnalyzedCount,
		ScoreNativePct:         decimalPtrToStringPtr(m.ScoreNativePct),
		ScoreLSTAdjustedPct:    decimalPtrToStringPtr(m.ScoreLSTAdjustedPct),
		TotalWethAsEth:         decimalPtrToStringPtr(m.TotalWethAsEth),
		TotalStethAsEth:        decimalPtrToStringPtr(m.TotalStethAsEth),
		StethRateUsed:          m.StethRateUsed.String(),
		AccumulatorsCount:      m.AccumulatorsCount,
		DistributorsCount:      m.DistributorsCount,
		NeutralCount:           m.NeutralCount,
		ConcentrationGini:      decimalPtrToStringPtr(m.ConcentrationGini),
		MADThresholdPct:        decimalPtrToStringPtr(m.MADThresholdPct),
		IsAnomaly:              m.IsAnomaly,
		TopAnomalyAddress:      topAnomaly,
		LSTMigrationCount:      m.LSTMigrationCount,
		PriceChangeLookbackPct: decimalPtrToStringPtr(m.PriceChangeLookbackPct),
		Tags:                   joinTags(tagStrings),
		DataQualityStatus:      string(m.DataQualityStatus),
		DataQualityScore:       m.DataQualityScore.String(),
		QualityWarningsCount:   m.QualityWarningsCount,
	}
}

func recordToMetric(rec MetricRecord) whalesignal.AccumulationMetric {
	var topAnomaly *common.Address
	if rec.TopAnomalyAddress != nil {
		addr := common.HexToAddress(*rec.TopAnomalyAddress)
		topAnomaly = &addr
	}

	tags := make([]whalesignal.Tag, 0)
	for _, t := range splitTags(rec.Tags) {
		tags = append(tags, whalesignal.Tag(t))
	}

	rate, err := decimal.NewFromString(rec.StethRateUsed)
	if err != nil {
		rate = decimal.NewFromInt(1)
	}
	qualityScore, err := decimal.NewFromString(rec.DataQualityScore)
	if err != nil {
		qualityScore = decimal.Zero
	}

	return whalesignal.AccumulationMetric{
		ID:                     rec.ID,
		ComputedAt:             rec.ComputedAt,
		LookbackHours:          rec.LookbackHours,
		Network:                whalesignal.Network(rec.Network),
		AnalyzedCount:          rec.AnalyzedCount,
		ScoreNativePct:         stringPtrToDecimalPtr(rec.ScoreNativePct),
		ScoreLSTAdjustedPct:    stringPtrToDecimalPtr(rec.ScoreLSTAdjustedPct),
		TotalWethAsEth:         stringPtrToDecimalPtr(rec.TotalWethAsEth),
		TotalStethAsEth:        stringPtrToDecimalPtr(rec.TotalStethAsEth),
		StethRateUsed:          rate,
		AccumulatorsCount:      rec.AccumulatorsCount,
		DistributorsCount:      rec.DistributorsCount,
		NeutralCount:           rec.NeutralCount,
		ConcentrationGini:      stringPtrToDecimalPtr(rec.ConcentrationGini),
		MADThresholdPct:        stringPtrToDecimalPtr(rec.MADThresholdPct),
		IsAnomaly:              rec.IsAnomaly,
		TopAnomalyAddress:      topAnomaly,
		LSTMigrationCount:      rec.LSTMigrationCount,
		PriceChangeLookbackPct: stringPtrToDecimalPtr(rec.PriceChangeLookbackPct),
		Tags:                   tags,
		DataQualityStatus:      whalesignal.DataQualityStatus(rec.DataQualityStatus),
		DataQualityScore:       qualityScore,
		QualityWarningsCount:   rec.QualityWarningsCount,
	}
}
