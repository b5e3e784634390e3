package quality

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	whalesignal "github.com/ethwhale/whalesignal"
)

func hourlyRows(n int, startHeight uint64, start time.Time, natives []float64) []Snapshot {
	rows := make([]Snapshot, n)
	for i := 0; i < n; i++ {
		rows[i] = Snapshot{
			Instant:     start.Add(time.Duration(i) * time.Hour),
			BlockHeight: startHeight + uint64(i)*300, // 300 blocks/hour at 12s blocks
			NativeWei:   natives[i],
		}
	}
	return rows
}

func TestValidate_S6_DensityCritical(t *testing.T) {
	// 5 whales, 24h window, but only ~60% of expected rows present.
	addrs := make([]common.Address, 5)
	snapshots := map[common.Address][]Snapshot{}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range addrs {
		addrs[i] = common.BigToAddress(decimal.NewFromInt(int64(i + 1)).BigInt())
		natives := make([]float64, 14) // 14/24 = 0.583 per whale, 70/120 = 0.583 overall: below the 0.70 critical line
		for j := range natives {
			natives[j] = 1000.0
		}
		snapshots[addrs[i]] = hourlyRows(14, 100, start, natives)
	}

	report := New().Validate(Input{SnapshotsByAddress: snapshots, UniqueWhales: 5})
	assert.Equal(t, whalesignal.DataQualityCritical, report.OverallStatus)

	mayRun, forceAnomaly, tag := Gate(report)
	assert.False(t, mayRun, "critical status must block the calculator")
	assert.False(t, forceAnomaly)
	assert.Nil(t, tag)
}

func TestValidate_Degraded_ForcesAnomalyAndTag(t *testing.T) {
	addr := common.HexToAddress("0xaaaa")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	natives := make([]float64, 21) // 21/24 = 0.875 healthy density by itself
	for j := range natives {
		natives[j] = 1000.0
	}
	snapshots := map[common.Address][]Snapshot{addr: hourlyRows(21, 100, start, natives)}

	// Push LST consistency into degraded (1-2 violations) to force overall degraded.
	rates := []decimal.Decimal{decimal.RequireFromString("0.5")}

	report := New().Validate(Input{SnapshotsByAddress: snapshots, UniqueWhales: 1, StethRatesUsed: rates})
	require.Equal(t, whalesignal.DataQualityDegraded, report.OverallStatus)

	mayRun, forceAnomaly, tag := Gate(report)
	assert.True(t, mayRun)
	assert.True(t, forceAnomaly)
	require.NotNil(t, tag)
	assert.Equal(t, whalesignal.TagDataQualityWarning, *tag)
}

func TestValidate_Healthy_NoForcedTag(t *testing.T) {
	addr := common.HexToAddress("0xaaaa")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	natives := make([]float64, 24)
	for j := range natives {
		natives[j] = 1000.0
	}
	snapshots := map[common.Address][]Snapshot{addr: hourlyRows(24, 100, start, natives)}
	rates := []decimal.Decimal{decimal.RequireFromString("0.999")}

	report := New().Validate(Input{SnapshotsByAddress: snapshots, UniqueWhales: 1, StethRatesUsed: rates})
	assert.Equal(t, whalesignal.DataQualityHealthy, report.OverallStatus)

	mayRun, forceAnomaly, tag := Gate(report)
	assert.True(t, mayRun)
	assert.False(t, forceAnomaly)
	assert.Nil(t, tag)
}

func TestStatisticalOutliers_FlagsLargeHourlyChange(t *testing.T) {
	addr := common.HexToAddress("0xaaaa")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Snapshot{
		{Instant: start, BlockHeight: 100, NativeWei: 1000},
		{Instant: start.Add(time.Hour), BlockHeight: 400, NativeWei: 3000}, // +200%
	}
	result := statisticalOutliers(Input{SnapshotsByAddress: map[common.Address][]Snapshot{addr: rows}})
	assert.NotEqual(t, whalesignal.DataQualityHealthy, result.Status)
}
