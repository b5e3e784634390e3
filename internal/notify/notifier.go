// Package notify implements Notifier (spec C10): pure formatting of an
// AccumulationMetric/QualityReport pair into a short human-readable
// message, plus fire-and-forget delivery through a single send(text)
// surface (spec §6 "Notifier outbound").
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
)

// Sender is the single delivery surface spec §6 names: send(text).
// Implementations (e.g. TelegramSender) own their own transport details;
// Notifier never retries a failed send synchronously.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Notifier formats and delivers alerts (spec C10). Failures are logged,
// never retried synchronously (spec §4.10).
type Notifier struct {
	sender Sender
	log    *logging.Logger
}

func New(sender Sender, log *logging.Logger) *Notifier {
	return &Notifier{sender: sender, log: log.Named("notify")}
}

// NotifyMetric formats and sends a completed analysis tick's metric.
func (n *Notifier) NotifyMetric(ctx context.Context, metric whalesignal.AccumulationMetric) error {
	text := FormatMetric(metric)
	if err := n.sender.Send(ctx, text); err != nil {
		n.log.Warn("metric notification delivery failed", errField(err))
		return fmt.Errorf("notify: send metric: %w", err)
	}
	return nil
}

// NotifyQualityDegraded formats and sends a data-quality status message
// for a degraded or critical QualityReport (spec §4.10, §8 scenario S6:
// "on critical, the Notifier emits a single 'data quality critical'
// message containing the top issue and a remediation hint").
func (n *Notifier) NotifyQualityDegraded(ctx context.Context, report whalesignal.QualityReport) error {
	text := FormatQualityReport(report)
	if err := n.sender.Send(ctx, text); err != nil {
		n.log.Warn("quality notification delivery failed", errField(err))
		return fmt.Errorf("notify: send quality report: %w", err)
	}
	return nil
}

// FormatMetric renders the two scores, direction counts, Gini, tags, and
// a concise interpretation, per spec §4.10.
func FormatMetric(m whalesignal.AccumulationMetric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Whale signal — %s (%d whales analyzed)\n", m.Network, m.AnalyzedCount)
	fmt.Fprintf(&b, "Native score: %s | LST-adjusted score: %s\n", formatPct(m.ScoreNativePct), formatPct(m.ScoreLSTAdjustedPct))
	fmt.Fprintf(&b, "Accumulators: %d | Distributors: %d | Neutral: %d\n", m.AccumulatorsCount, m.DistributorsCount, m.NeutralCount)
	fmt.Fprintf(&b, "Concentration (Gini): %s\n", formatDecimalPtr(m.ConcentrationGini))
	if len(m.Tags) > 0 {
		tagStrs := make([]string, len(m.Tags))
		for i, t := range m.Tags {
			tagStrs[i] = string(t)
		}
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tagStrs, ", "))
	}
	fmt.Fprintf(&b, "%s\n", interpret(m))
	return b.String()
}

// FormatQualityReport renders a status-change alert naming the worst
// check and a remediation hint.
func FormatQualityReport(r whalesignal.QualityReport) string {
	var b strings.Builder
	switch r.OverallStatus {
	case whalesignal.DataQualityCritical:
		b.WriteString("Data quality critical: accumulation calculator will not run this tick.\n")
	case whalesignal.DataQualityDegraded:
		b.WriteString("Data quality degraded: this tick's signal is flagged anomalous.\n")
	default:
		b.WriteString("Data quality healthy.\n")
	}

	topIssue, hint := worstIssue(r)
	if topIssue != "" {
		fmt.Fprintf(&b, "Top issue: %s\n", topIssue)
		fmt.Fprintf(&b, "Remediation: %s\n", hint)
	}
	return b.String()
}

// worstIssue picks the first issue on the check with the worst status
// (critical beats degraded beats healthy) and pairs it with a fixed
// remediation hint for that check.
func worstIssue(r whalesignal.QualityReport) (issue, hint string) {
	var worst *whalesignal.QualityCheckResult
	for i := range r.Checks {
		c := &r.Checks[i]
		if len(c.Issues) == 0 {
			continue
		}
		if worst == nil || severity(c.Status) > severity(worst.Status) {
			worst = c
		}
	}
	if worst == nil {
		return "", ""
	}
	return worst.Issues[0], remediationHints[worst.Name]
}

func severity(s whalesignal.DataQualityStatus) int {
	switch s {
	case whalesignal.DataQualityCritical:
		return 2
	case whalesignal.DataQualityDegraded:
		return 1
	default:
		return 0
	}
}

var remediationHints = map[whalesignal.QualityCheckName]string{
	whalesignal.CheckSnapshotDensity:    "check the snapshot job is running hourly and the RPC endpoint is reachable",
	whalesignal.CheckPrecisionIntegrity: "check the multicall batcher is not silently coercing failed reads to zero",
	whalesignal.CheckTimeDrift:          "check the node's block time and the snapshot job's clock are in sync",
	whalesignal.CheckStatisticalOutlier: "check for a chain reorg or a one-off large transfer before trusting this tick",
	whalesignal.CheckLSTConsistency:     "check the price provider's stETH/ETH rate source for a feed outage",
}

func interpret(m whalesignal.AccumulationMetric) string {
	switch {
	case m.IsAnomaly:
		return "Interpretation: anomalous concentrated movement, treat with caution."
	case m.ScoreNativePct != nil && m.ScoreNativePct.IsPositive():
		return "Interpretation: net accumulation across the tracked cohort."
	case m.ScoreNativePct != nil && m.ScoreNativePct.IsNegative():
		return "Interpretation: net distribution across the tracked cohort."
	default:
		return "Interpretation: no significant net movement."
	}
}

func formatPct(d *decimal.Decimal) string {
	if d == nil {
		return "n/a"
	}
	return d.StringFixed(2) + "%"
}

func formatDecimalPtr(d *decimal.Decimal) string {
	if d == nil {
		return "n/a"
	}
	return d.StringFixed(3)
}

func errField(err error) zap.Field { return zap.Error(err) }
