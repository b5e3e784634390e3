// Command validatorcli runs the five data-quality checks (spec C7)
// against current snapshot/metric history and prints the resulting
// report, independent of the scheduled service. Its exit code mirrors
// the overall status: 0 healthy, 1 degraded, 2 critical.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/configs"
	"github.com/ethwhale/whalesignal/internal/logging"
	"github.com/ethwhale/whalesignal/internal/quality"
	"github.com/ethwhale/whalesignal/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config.yml")
	envPath := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	report, err := run(*configPath, *envPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("validatorcli: encode report: %w", err))
		os.Exit(2)
	}
	fmt.Println(string(out))
	os.Exit(report.OverallStatus.ExitCode())
}

func run(configPath, envPath string) (whalesignal.QualityReport, error) {
	var report whalesignal.QualityReport

	cfg, err := configs.LoadConfig(configPath, envPath)
	if err != nil {
		return report, fmt.Errorf("validatorcli: load config: %w", err)
	}

	log, err := logging.New(false, zapcore.InfoLevel)
	if err != nil {
		return report, fmt.Errorf("validatorcli: build logger: %w", err)
	}

	db, err := gorm.Open(mysql.Open(cfg.Secrets.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return report, fmt.Errorf("validatorcli: open database: %w", err)
	}

	snapshotRepo, err := storage.NewSnapshotRepository(db, log)
	if err != nil {
		return report, fmt.Errorf("validatorcli: build snapshot repository: %w", err)
	}
	metricRepo, err := storage.NewAccumulationRepository(db, log)
	if err != nil {
		return report, fmt.Errorf("validatorcli: build accumulation repository: %w", err)
	}

	network := whalesignal.Network(cfg.Network)
	window := time.Duration(cfg.LookbackHours) * time.Hour

	ctx := context.Background()
	input, err := buildQualityInput(ctx, snapshotRepo, metricRepo, network, window)
	if err != nil {
		return report, fmt.Errorf("validatorcli: build quality input: %w", err)
	}

	validator := quality.New()
	return validator.Validate(input), nil
}

// buildQualityInput mirrors the orchestrator's own assembly of
// quality.Input from recent snapshot and metric history, so this CLI's
// verdict matches what the next scheduled analysis tick would see.
func buildQualityInput(
	ctx context.Context,
	windows *storage.SnapshotRepository,
	metricHist *storage.AccumulationRepository,
	network whalesignal.Network,
	lookback time.Duration,
) (quality.Input, error) {
	since := time.Now().Add(-lookback)

	window, err := windows.GetWindow(ctx, network, since)
	if err != nil {
		return quality.Input{}, fmt.Errorf("get snapshot window: %w", err)
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

	metrics, err := metricHist.GetSince(ctx, network, since)
	if err != nil {
		return quality.Input{}, fmt.Errorf("get metric history: %w", err)
	}
	rates := make([]decimal.Decimal, len(metrics))
	for i, m := range metrics {
		rates[i] = m.StethRateUsed
	}

	return quality.Input{
		SnapshotsByAddress: byAddr,
		UniqueWhales:       len(byAddr),
		StethRatesUsed:     rates,
	}, nil
}

// weiToFloat renders a Wei balance as float64 for the quality checks'
// statistical diagnostics only — never used for balance comparisons.
func weiToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}
