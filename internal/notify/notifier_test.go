package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(true, -1)
	require.NoError(t, err)
	return log
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestFormatMetric_IncludesCoreFields(t *testing.T) {
	score := decimal.RequireFromString("12.5")
	gini := decimal.RequireFromString("0.42")
	metric := whalesignal.AccumulationMetric{
		Network:           whalesignal.NetworkEthereum,
		AnalyzedCount:     100,
		ScoreNativePct:    &score,
		ConcentrationGini: &gini,
		AccumulatorsCount: 60,
		DistributorsCount: 10,
		NeutralCount:      30,
		Tags:              []whalesignal.Tag{whalesignal.TagOrganicAccumulation},
	}

	text := FormatMetric(metric)
	require.Contains(t, text, "12.50%")
	require.Contains(t, text, "0.420")
	require.Contains(t, text, "Accumulators: 60")
	require.Contains(t, text, "Organic Accumulation")
	require.Contains(t, text, "net accumulation")
}

func TestFormatQualityReport_CriticalNamesTopIssueAndHint(t *testing.T) {
	report := whalesignal.QualityReport{
		OverallStatus: whalesignal.DataQualityCritical,
		Checks: []whalesignal.QualityCheckResult{
			{Name: whalesignal.CheckSnapshotDensity, Status: whalesignal.DataQualityCritical, Issues: []string{"snapshot density below 0.70"}},
			{Name: whalesignal.CheckTimeDrift, Status: whalesignal.DataQualityDegraded, Issues: []string{"drift"}},
		},
	}

	text := FormatQualityReport(report)
	require.Contains(t, text, "Data quality critical")
	require.Contains(t, text, "snapshot density below 0.70")
	require.Contains(t, text, "RPC endpoint")
}

func TestNotifier_NotifyMetric_DeliversFormattedText(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, testLogger(t))

	score := decimal.RequireFromString("1.0")
	err := n.NotifyMetric(context.Background(), whalesignal.AccumulationMetric{ScoreNativePct: &score})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
}

func TestNotifier_NotifyMetric_DeliveryFailureIsReturnedNotRetried(t *testing.T) {
	sender := &fakeSender{err: errors.New("network down")}
	n := New(sender, testLogger(t))

	err := n.NotifyMetric(context.Background(), whalesignal.AccumulationMetric{})
	require.Error(t, err)
	require.Empty(t, sender.sent)
}

func TestNotifier_NotifyQualityDegraded(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, testLogger(t))

	err := n.NotifyQualityDegraded(context.Background(), whalesignal.QualityReport{OverallStatus: whalesignal.DataQualityDegraded})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0], "degraded")
}
