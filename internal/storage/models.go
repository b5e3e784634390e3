// Package storage persists BalanceSnapshot and AccumulationMetric rows
// via GORM/MySQL, adapted from the teacher's internal/db recorder: one
// GORM model per entity, bigIntToString for Wei-denominated fields, and
// query methods that return domain types rather than GORM models.
package storage

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotRecord is the GORM model backing whalesignal.BalanceSnapshot.
type SnapshotRecord struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	Address         string    `gorm:"type:varchar(42);not null;index:idx_addr_instant,unique"`
	SnapshotInstant time.Time `gorm:"not null;index:idx_addr_instant,unique;index"`
	BlockHeight     uint64    `gorm:"not null"`
	NativeBalance   string    `gorm:"type:varchar(78);not null;comment:big.Int Wei as string"`
	WethBalance     *string   `gorm:"type:varchar(78);comment:big.Int Wei as string, null if unread"`
	StethBalance    *string   `gorm:"type:varchar(78);comment:big.Int Wei as string, null if unread"`
	Rank            int       `gorm:"not null"`
	Network         string    `gorm:"type:varchar(32);not null;index"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (SnapshotRecord) TableName() string { return "balance_snapshots" }

// MetricRecord is the GORM model backing whalesignal.AccumulationMetric.
// Nullable decimal fields are stored as nullable strings so a missing
// score is never confused with a stored "0".
type MetricRecord struct {
	ID                     uint64    `gorm:"primaryKey;autoIncrement"`
	ComputedAt             time.Time `gorm:"not null;index"`
	LookbackHours          int       `gorm:"not null"`
	Network                string    `gorm:"type:varchar(32);not null;index"`
	AnalyzedCount          int       `gorm:"not null"`
	ScoreNativePct         *string   `gorm:"type:varchar(64)"`
	ScoreLSTAdjustedPct    *string   `gorm:"type:varchar(64)"`
	TotalWethAsEth         *string   `gorm:"type:varchar(78)"`
	TotalStethAsEth        *string   `gorm:"type:varchar(78)"`
	StethRateUsed          string    `gorm:"type:varchar(64);not null"`
	AccumulatorsCount      int       `gorm:"not null"`
	DistributorsCount      int       `gorm:"not null"`
	NeutralCount           int       `gorm:"not null"`
	ConcentrationGini      *string   `gorm:"type:varchar(64)"`
	MADThresholdPct        *string   `gorm:"type:varchar(64)"`
	IsAnomaly              bool      `gorm:"not null"`
	TopAnomalyAddress      *string   `gorm:"type:varchar(42)"`
	LSTMigrationCount      int       `gorm:"not null"`
	PriceChangeLookbackPct *string   `gorm:"type:varchar(64)"`
	Tags                   string    `gorm:"type:varchar(512);comment:comma-joined closed-vocabulary tags"`
	DataQualityStatus      string    `gorm:"type:varchar(16);not null"`
	DataQualityScore       string    `gorm:"type:varchar(64);not null"`
	QualityWarningsCount   int       `gorm:"not null"`
}

func (MetricRecord) TableName() string { return "accumulation_metrics" }

// bigIntToString safely converts *big.Int to string, handling nil.
func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func bigIntPtrToStringPtr(value *big.Int) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}

func stringPtrToBigIntPtr(s *string) *big.Int {
	if s == nil {
		return nil
	}
	return stringToBigInt(*s)
}

func stringToBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func decimalPtrToStringPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func stringPtrToDecimalPtr(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}

func joinTags(tags []string) string { return strings.Join(tags, ",") }

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
