package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"kash-grid-bot-go/internal/models"
)

// Load 从指定路径加载JSON配置文件并解析到Config结构体中
func Load(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := defaultConfig()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig 返回各字段的缺省值，配置文件中未出现的字段保持这些值。
func defaultConfig() *models.Config {
	return &models.Config{
		Symbol:               "BTCUSDT",
		BaseCurrency:         "BTC",
		QuoteCurrency:        "USDT",
		Investment:           1000,
		GridCount:            20,
		GridRangePercent:     10,
		PanicSellBuffer:      5,
		TradingMode:          "simulation",
		CheckIntervalSeconds: 10,
		DBPath:               "data/simulation_state",
		RetryAttempts:        3,
		RetryInitialDelayMs:  1000,
		LiveAPIURL:           "https://api.binance.com",
		LiveWSURL:            "wss://stream.binance.com:9443",
		TestnetAPIURL:        "https://testnet.binance.vision",
		TestnetWSURL:         "wss://testnet.binance.vision",
		Dashboard: models.DashboardConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		LogConfig: models.LogConfig{
			Level:  "info",
			Output: "console",
		},
	}
}

// Validate 校验配置并返回所有发现的问题。
func Validate(cfg *models.Config) []string {
	var errs []string

	if cfg.Investment < 100 {
		errs = append(errs, "investment must be at least 100")
	}
	if cfg.GridCount < 5 || cfg.GridCount > 100 {
		errs = append(errs, "grid_count must be between 5 and 100")
	}
	if cfg.GridRangePercent < 2 || cfg.GridRangePercent > 50 {
		errs = append(errs, "grid_range_percent must be between 2 and 50")
	}
	if cfg.PanicSellBuffer <= 0 || cfg.PanicSellBuffer > 50 {
		errs = append(errs, "panic_sell_buffer must be between 0 and 50")
	}
	if size := cfg.OrderSize(); size < 10 {
		errs = append(errs, fmt.Sprintf("order size (%.2f) too small, reduce grid_count or increase investment", size))
	}
	if cfg.CheckIntervalSeconds <= 0 {
		errs = append(errs, "check_interval_seconds must be positive")
	}

	switch strings.ToLower(cfg.TradingMode) {
	case "simulation":
	case "live":
		if os.Getenv("BINANCE_API_KEY") == "" || os.Getenv("BINANCE_SECRET_KEY") == "" {
			errs = append(errs, "BINANCE_API_KEY and BINANCE_SECRET_KEY are required for live trading")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown trading_mode %q, expected simulation or live", cfg.TradingMode))
	}

	return errs
}
