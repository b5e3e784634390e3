// Command whaleservice runs the whale-signal service: the hourly
// snapshot job and the periodic accumulation analysis, scheduled by
// internal/orchestrator, with Prometheus metrics exposed over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/configs"
	"github.com/ethwhale/whalesignal/internal/accumulation"
	"github.com/ethwhale/whalesignal/internal/logging"
	"github.com/ethwhale/whalesignal/internal/metrics"
	"github.com/ethwhale/whalesignal/internal/multicall"
	"github.com/ethwhale/whalesignal/internal/notify"
	"github.com/ethwhale/whalesignal/internal/orchestrator"
	"github.com/ethwhale/whalesignal/internal/price"
	"github.com/ethwhale/whalesignal/internal/quality"
	"github.com/ethwhale/whalesignal/internal/snapshotjob"
	"github.com/ethwhale/whalesignal/internal/storage"
	"github.com/ethwhale/whalesignal/internal/whalelist"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := envOr("WHALESIGNAL_CONFIG", "configs/config.yml")
	envPath := envOr("WHALESIGNAL_ENV_FILE", ".env")
	cfg, err := configs.LoadConfig(configPath, envPath)
	if err != nil {
		return fmt.Errorf("whaleservice: load config: %w", err)
	}

	log, err := logging.New(os.Getenv("WHALESIGNAL_DEV") != "", zapcore.InfoLevel)
	if err != nil {
		return fmt.Errorf("whaleservice: build logger: %w", err)
	}

	ethClient, err := ethclient.Dial(cfg.Secrets.RPCURL)
	if err != nil {
		return fmt.Errorf("whaleservice: dial RPC: %w", err)
	}

	db, err := gorm.Open(mysql.Open(cfg.Secrets.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("whaleservice: open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	mcClient := multicall.NewClient(ethClient, log)
	batcher := multicall.NewBatcher(mcClient, cfg.ChunkSize, log).
		WithFailureCounter(metricsRegistry.MulticallFailures)

	candidatesPath := envOr("WHALESIGNAL_CANDIDATES_FILE", "configs/candidates.txt")
	whales := whalelist.NewProvider(whalelist.FileCandidates{Path: candidatesPath}, batcher, log)

	fetcher := price.NewHTTPFetcher(cfg.Secrets.PriceAPIBaseURL, cfg.Secrets.PriceAPIKey)
	priceProvider := price.NewProvider(fetcher, log)

	snapshotRepo, err := storage.NewSnapshotRepository(db, log)
	if err != nil {
		return fmt.Errorf("whaleservice: build snapshot repository: %w", err)
	}
	metricRepo, err := storage.NewAccumulationRepository(db, log)
	if err != nil {
		return fmt.Errorf("whaleservice: build accumulation repository: %w", err)
	}

	accCfg := cfg.ToAccumulationConfig()
	job := snapshotjob.New(whales, mcClient, snapshotRepo, cfg.TopN, whalesignal.Network(cfg.Network), log).
		WithLSTBalances(batcher, accCfg.WethAddress, accCfg.StethAddress)

	validator := quality.New()
	calculator := accumulation.New(whales, snapshotRepo, snapshotRepo, batcher, batcher, priceProvider, priceProvider, accCfg, log)

	var sender notify.Sender
	if cfg.Secrets.TelegramBotToken != "" {
		telegram, err := notify.NewTelegramSender(cfg.Secrets.TelegramBotToken, cfg.Secrets.TelegramChatID, log)
		if err != nil {
			return fmt.Errorf("whaleservice: build telegram sender: %w", err)
		}
		sender = telegram
	}
	var notifier orchestrator.Notifier
	if sender != nil {
		notifier = notify.New(sender, log)
	}

	observingRepo := &observingMetricSaver{MetricSaver: metricRepo, metrics: metricsRegistry}

	orch := orchestrator.New(job, snapshotRepo, metricRepo, observingRepo, validator, calculator, notifier, cfg.ToOrchestratorConfig(), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("whaleservice: start orchestrator: %w", err)
	}
	defer orch.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: envOr("WHALESIGNAL_METRICS_ADDR", ":9090"), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	return server.Shutdown(context.Background())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// observingMetricSaver wraps a storage.AccumulationRepository so every
// saved metric also updates the Prometheus gauges.
type observingMetricSaver struct {
	orchestrator.MetricSaver
	metrics *metrics.Registry
}

func (o *observingMetricSaver) SaveMetric(ctx context.Context, metric whalesignal.AccumulationMetric) error {
	if err := o.MetricSaver.SaveMetric(ctx, metric); err != nil {
		return err
	}
	qualityScore, _ := metric.DataQualityScore.Float64()
	var scorePct *float64
	if metric.ScoreNativePct != nil {
		v, _ := metric.ScoreNativePct.Float64()
		scorePct = &v
	}
	o.metrics.ObserveMetric(qualityScore, scorePct, metric.IsAnomaly)
	return nil
}
