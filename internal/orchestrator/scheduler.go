// Package orchestrator implements Scheduler/Orchestrator (spec C9): it
// owns the two cron jobs — hourly_snapshot and periodic_analysis — and
// gates the analysis tick on DataQualityValidator's verdict before ever
// calling the calculator. Grounded on the teacher's Blackhole type
// (teacher_reference/blackhole.go): one struct wrapping every
// collaborator, public entry-point methods that fan out to narrow calls
// and wrap failures with fmt.Errorf("...: %w", err).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/logging"
	"github.com/ethwhale/whalesignal/internal/quality"
)

// SnapshotRunner is the subset of snapshotjob.Job the orchestrator needs.
type SnapshotRunner interface {
	Run(ctx context.Context) error
}

// QualityWindowReader supplies the recent snapshot population quality
// checks run over.
type QualityWindowReader interface {
	GetWindow(ctx context.Context, network whalesignal.Network, since time.Time) (map[common.Address][]whalesignal.BalanceSnapshot, error)
}

// MetricHistoryReader supplies recently stored stETH/ETH rates for the
// LST-consistency check.
type MetricHistoryReader interface {
	GetSince(ctx context.Context, network whalesignal.Network, instant time.Time) ([]whalesignal.AccumulationMetric, error)
}

// MetricSaver is the subset of storage.AccumulationRepository the
// orchestrator needs to append a computed metric.
type MetricSaver interface {
	SaveMetric(ctx context.Context, metric whalesignal.AccumulationMetric) error
}

// QualityValidator is the subset of quality.Validator the orchestrator
// needs.
type QualityValidator interface {
	Validate(input quality.Input) whalesignal.QualityReport
}

// AccumulationCalculator is the subset of accumulation.Calculator the
// orchestrator needs.
type AccumulationCalculator interface {
	Compute(ctx context.Context, now time.Time, network whalesignal.Network, report whalesignal.QualityReport) (*whalesignal.AccumulationMetric, error)
}

// Notifier is the subset of notify.Notifier the orchestrator needs. A nil
// Notifier is valid: the orchestrator simply skips delivery.
type Notifier interface {
	NotifyMetric(ctx context.Context, metric whalesignal.AccumulationMetric) error
	NotifyQualityDegraded(ctx context.Context, report whalesignal.QualityReport) error
}

// Config is the orchestrator's tunable surface, spec §4.9/§6.
type Config struct {
	Network             whalesignal.Network
	SnapshotCronSpec    string        // default "@hourly"
	AnalysisCronSpec    string        // default every 6 hours: "0 */6 * * *"
	QualityWindow       time.Duration // lookback for quality checks, default 24h
	RunImmediateOnStart bool          // spec §4.9: "on startup runs one immediate snapshot"
}

// DefaultConfig returns the spec §4.9/§6 defaults.
func DefaultConfig() Config {
	return Config{
		Network:             whalesignal.NetworkEthereum,
		SnapshotCronSpec:    "@hourly",
		AnalysisCronSpec:    "0 */6 * * *",
		QualityWindow:       24 * time.Hour,
		RunImmediateOnStart: true,
	}
}

// Orchestrator owns the two scheduled jobs of spec C9. Each job carries
// cron.SkipIfStillRunning so a long-running tick cannot overlap itself
// (max_instances = 1); the two distinct jobs may still run concurrently.
type Orchestrator struct {
	snapshot   SnapshotRunner
	windows    QualityWindowReader
	metricHist MetricHistoryReader
	metrics    MetricSaver
	validator  QualityValidator
	calculator AccumulationCalculator
	notifier   Notifier

	cfg Config
	log *logging.Logger
	c   *cron.Cron
}

// New builds an Orchestrator. notifier may be nil.
func New(
	snapshot SnapshotRunner,
	windows QualityWindowReader,
	metricHist MetricHistoryReader,
	metrics MetricSaver,
	validator QualityValidator,
	calculator AccumulationCalculator,
	notifier Notifier,
	cfg Config,
	log *logging.Logger,
) *Orchestrator {
	log = log.Named("orchestrator")
	return &Orchestrator{
		snapshot: snapshot, windows: windows, metricHist: metricHist,
		metrics: metrics, validator: validator, calculator: calculator,
		notifier: notifier, cfg: cfg, log: log,
		c: cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log}))),
	}
}

// Start registers both cron jobs and starts the scheduler. A failed
// immediate snapshot does not abort start-up (spec §4.9).
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.c.AddFunc(o.cfg.SnapshotCronSpec, func() { o.runSnapshot(ctx) }); err != nil {
		return fmt.Errorf("orchestrator: register snapshot job: %w", err)
	}
	if _, err := o.c.AddFunc(o.cfg.AnalysisCronSpec, func() { o.runAnalysis(ctx) }); err != nil {
		return fmt.Errorf("orchestrator: register analysis job: %w", err)
	}

	if o.cfg.RunImmediateOnStart {
		o.runSnapshot(ctx)
	}

	o.c.Start()
	return nil
}

// Stop waits for in-flight jobs to finish and stops the scheduler.
func (o *Orchestrator) Stop() {
	<-o.c.Stop().Done()
}

func (o *Orchestrator) runSnapshot(ctx context.Context) {
	if err := o.snapshot.Run(ctx); err != nil {
		o.log.Error("hourly snapshot failed", zapErr(err))
		return
	}
	o.log.Info("hourly snapshot completed")
}

// runAnalysis implements the C9 analysis tick: build the quality input,
// run C7, and gate C8 on its result as in spec §4.7. A critical verdict
// blocks the calculator entirely and no metric row is written; a
// degraded verdict still runs the calculator (which forces is_anomaly
// and the Data Quality Warning tag itself).
func (o *Orchestrator) runAnalysis(ctx context.Context) {
	now := time.Now()

	input, err := o.buildQualityInput(ctx, now)
	if err != nil {
		o.log.Error("build quality input failed, analysis tick skipped", zapErr(err))
		return
	}
	report := o.validator.Validate(input)

	mayRun, _, _ := quality.Gate(report)
	if !mayRun {
		o.log.Error("data quality critical, analysis tick aborted",
			zapStr("status", string(report.OverallStatus)))
		if o.notifier != nil {
			if err := o.notifier.NotifyQualityDegraded(ctx, report); err != nil {
				o.log.Warn("quality notification failed", zapErr(err))
			}
		}
		return
	}
	if report.OverallStatus == whalesignal.DataQualityDegraded && o.notifier != nil {
		if err := o.notifier.NotifyQualityDegraded(ctx, report); err != nil {
			o.log.Warn("quality notification failed", zapErr(err))
		}
	}

	metric, err := o.calculator.Compute(ctx, now, o.cfg.Network, report)
	if err != nil {
		o.log.Error("accumulation compute failed", zapErr(err))
		return
	}

	if err := o.metrics.SaveMetric(ctx, *metric); err != nil {
		o.log.Error("save metric failed", zapErr(err))
		return
	}

	if o.notifier != nil {
		if err := o.notifier.NotifyMetric(ctx, *metric); err != nil {
			o.log.Warn("metric notification failed", zapErr(err))
		}
	}
	o.log.Info("analysis tick completed", zapStr("status", string(report.OverallStatus)))
}

// buildQualityInput assembles quality.Input from the recent snapshot and
// metric history (spec §4.7): the checks themselves stay pure functions
// over this already-loaded data.
func (o *Orchestrator) buildQualityInput(ctx context.Context, now time.Time) (quality.Input, error) {
	since := now.Add(-o.cfg.QualityWindow)

	window, err := o.windows.GetWindow(ctx, o.cfg.Network, since)
	if err != nil {
		return quality.Input{}, fmt.Errorf("orchestrator: get snapshot window: %w", err)
	}

	byAddr := make(map[common.Address][]quality.Snapshot, len(window))
	for addr, snaps := range window {
		rows := make([]quality.Snapshot, len(snaps))
		for i, s := range snaps {
			rows[i] = quality.Snapshot{
				Instant:     s.SnapshotInstant,
				BlockHeight: s.BlockHeight,
				NativeWei:   weiToFloat(s.NativeBalance),
			}
		}
		byAddr[addr] = rows
	}

	metrics, err := o.metricHist.GetSince(ctx, o.cfg.Network, since)
	if err != nil {
		return quality.Input{}, fmt.Errorf("orchestrator: get metric history: %w", err)
	}
	ratesUsed := make([]decimal.Decimal, 0, len(metrics))
	for _, m := range metrics {
		ratesUsed = append(ratesUsed, m.StethRateUsed)
	}

	return quality.Input{
		SnapshotsByAddress: byAddr,
		UniqueWhales:       len(byAddr),
		StethRatesUsed:     ratesUsed,
	}, nil
}
