// Package configs loads the whalesignal process configuration: tunable
// thresholds from a YAML file (spec §6 "enumerated options"), and
// connection secrets from the environment (spec §6 external interfaces),
// following the teacher's LoadConfig/.env split.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	whalesignal "github.com/ethwhale/whalesignal"
	"github.com/ethwhale/whalesignal/internal/accumulation"
	"github.com/ethwhale/whalesignal/internal/orchestrator"
)

// Config is the full tunable surface from spec §6. Every field has a
// spec-given default, applied in LoadConfig before the YAML overlay.
type Config struct {
	TopN                       int     `yaml:"top_n"`
	LookbackHours              int     `yaml:"lookback_hours"`
	SnapshotIntervalHours      int     `yaml:"snapshot_interval_hours"`
	AnalysisIntervalHours      int     `yaml:"analysis_interval_hours"`
	ChunkSize                  int     `yaml:"chunk_size"`
	MinWhales                  int     `yaml:"min_whales"`
	MADK                       int64   `yaml:"mad_k"`
	GiniConcentrationThreshold string  `yaml:"gini_concentration_threshold"`
	OrganicAccumulationFrac    string  `yaml:"organic_accumulation_fraction"`
	DivergencePricePct         string  `yaml:"divergence_price_pct"`
	DivergenceScorePct         string  `yaml:"divergence_score_pct"`
	GasToleranceWei            string  `yaml:"gas_tolerance_wei"`
	OutlierChangePct           float64 `yaml:"outlier_change_pct"`
	LSTRateSoftBounds          [2]string `yaml:"lst_rate_soft_bounds"`
	LSTRateHardBounds          [2]string `yaml:"lst_rate_hard_bounds"`
	PriceAsset                 string  `yaml:"price_asset"`
	WethAddress                string  `yaml:"weth_address"`
	StethAddress               string  `yaml:"steth_address"`
	Network                    string  `yaml:"network"`

	// Secrets are never placed in this YAML document; they come from the
	// environment via LoadSecrets, the same way the teacher keeps its
	// private key out of config.yml.
	Secrets Secrets `yaml:"-"`
}

// Secrets holds connection material read from the environment, never
// from the YAML file (spec §6 external interfaces).
type Secrets struct {
	RPCURL           string
	DatabaseDSN      string
	PriceAPIBaseURL  string
	PriceAPIKey      string
	TelegramBotToken string
	TelegramChatID   int64
}

// Default returns the spec §6 defaults.
func Default() Config {
	return Config{
		TopN:                       1000,
		LookbackHours:              24,
		SnapshotIntervalHours:      1,
		AnalysisIntervalHours:      6,
		ChunkSize:                  500,
		MinWhales:                  20,
		MADK:                       3,
		GiniConcentrationThreshold: "0.85",
		OrganicAccumulationFrac:    "0.25",
		DivergencePricePct:         "-2.0",
		DivergenceScorePct:         "0.2",
		GasToleranceWei:            new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil).String(),
		OutlierChangePct:           50.0,
		LSTRateSoftBounds:          [2]string{"0.98", "1.02"},
		LSTRateHardBounds:          [2]string{"0.90", "1.10"},
		PriceAsset:                 "ETH",
		WethAddress:                "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		StethAddress:               "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84",
		Network:                    string(whalesignal.NetworkEthereum),
	}
}

// LoadConfig reads and parses a YAML file on top of Default, then loads
// Secrets from envPath via godotenv (a missing envPath is not an error;
// the process may instead rely on real environment variables).
func LoadConfig(path, envPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configs: parse config YAML: %w", err)
	}

	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("configs: load env file: %w", err)
	}
	cfg.Secrets = Secrets{
		RPCURL:           os.Getenv("WHALESIGNAL_RPC_URL"),
		DatabaseDSN:      os.Getenv("WHALESIGNAL_DATABASE_DSN"),
		PriceAPIBaseURL:  os.Getenv("WHALESIGNAL_PRICE_API_BASE_URL"),
		PriceAPIKey:      os.Getenv("WHALESIGNAL_PRICE_API_KEY"),
		TelegramBotToken: os.Getenv("WHALESIGNAL_TELEGRAM_BOT_TOKEN"),
	}
	if chatID := os.Getenv("WHALESIGNAL_TELEGRAM_CHAT_ID"); chatID != "" {
		var id int64
		if _, err := fmt.Sscanf(chatID, "%d", &id); err != nil {
			return nil, fmt.Errorf("configs: parse WHALESIGNAL_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Secrets.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate refuses to start the process on a non-positive count or a
// threshold that does not parse as a number, so ToAccumulationConfig
// cannot panic; the decimal thresholds are not checked against a range
// (spec §4.13 / SPEC_FULL.md).
func (c *Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("%w: top_n must be positive, got %d", whalesignal.ErrInvalidConfig, c.TopN)
	}
	if c.LookbackHours <= 0 {
		return fmt.Errorf("%w: lookback_hours must be positive, got %d", whalesignal.ErrInvalidConfig, c.LookbackHours)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", whalesignal.ErrInvalidConfig, c.ChunkSize)
	}
	if c.MADK <= 0 {
		return fmt.Errorf("%w: mad_k must be positive, got %d", whalesignal.ErrInvalidConfig, c.MADK)
	}
	if _, err := decimal.NewFromString(c.GiniConcentrationThreshold); err != nil {
		return fmt.Errorf("%w: gini_concentration_threshold: %v", whalesignal.ErrInvalidConfig, err)
	}
	for _, f := range []struct{ name, value string }{
		{"organic_accumulation_fraction", c.OrganicAccumulationFrac},
		{"divergence_price_pct", c.DivergencePricePct},
		{"divergence_score_pct", c.DivergenceScorePct},
	} {
		if _, err := decimal.NewFromString(f.value); err != nil {
			return fmt.Errorf("%w: %s: %v", whalesignal.ErrInvalidConfig, f.name, err)
		}
	}
	if _, ok := new(big.Int).SetString(c.GasToleranceWei, 10); !ok {
		return fmt.Errorf("%w: gas_tolerance_wei is not a base-10 integer", whalesignal.ErrInvalidConfig)
	}
	return nil
}

// ToAccumulationConfig translates the YAML surface into
// accumulation.Config, following the teacher's ToStrategyConfig /
// ToBlackholeConfigs translator-method pattern.
func (c *Config) ToAccumulationConfig() accumulation.Config {
	gasTolerance, _ := new(big.Int).SetString(c.GasToleranceWei, 10)
	return accumulation.Config{
		TopN:                 c.TopN,
		LookbackHours:        c.LookbackHours,
		MinWhales:            c.MinWhales,
		MADMultiplier:        c.MADK,
		GiniThreshold:        decimal.RequireFromString(c.GiniConcentrationThreshold),
		OrganicFraction:      decimal.RequireFromString(c.OrganicAccumulationFrac),
		DivergencePricePct:   decimal.RequireFromString(c.DivergencePricePct),
		DivergenceScorePct:   decimal.RequireFromString(c.DivergenceScorePct),
		GasToleranceWei:      gasTolerance,
		HistoricalToleranceH: 1.0,
		PriceAsset:           c.PriceAsset,
		WethAddress:          common.HexToAddress(c.WethAddress),
		StethAddress:         common.HexToAddress(c.StethAddress),
	}
}

// ToOrchestratorConfig translates the YAML surface into
// orchestrator.Config.
func (c *Config) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Network:             whalesignal.Network(c.Network),
		SnapshotCronSpec:    fmt.Sprintf("0 */%d * * *", c.SnapshotIntervalHours),
		AnalysisCronSpec:    fmt.Sprintf("0 */%d * * *", c.AnalysisIntervalHours),
		QualityWindow:       time.Duration(c.LookbackHours) * time.Hour,
		RunImmediateOnStart: true,
	}
}
