package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable engine configuration, loaded once at startup.
type Config struct {
	PrivateKey    string `yaml:"private_key"`
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`

	PaperTrading bool `yaml:"paper_trading"`

	// Signal gates.
	EdgeMinimum        float64 `yaml:"edge_minimum"`
	StopBeforeEndSec   int     `yaml:"stop_before_end_sec"`
	StartupCooldownSec int     `yaml:"startup_cooldown_sec"`
	TradeCooldownMs    int     `yaml:"trade_cooldown_ms"`
	MaxBuyPrice        float64 `yaml:"max_buy_price"`
	SlippageBps        int     `yaml:"slippage_bps"`

	// USD exposure limits.
	MinOrderUSD    float64 `yaml:"min_order_usd"`
	MaxOrderUSD    float64 `yaml:"max_order_usd"`
	MaxPositionUSD float64 `yaml:"max_position_usd"`
	MaxTotalUSD    float64 `yaml:"max_total_usd"`

	// Model inputs.
	StaticOracleAdjustment float64       `yaml:"static_oracle_adjustment"`
	ManualStrike           float64       `yaml:"manual_strike"`
	DivergenceWindow       time.Duration `yaml:"divergence_window"`
	DivergenceStatePath    string        `yaml:"divergence_state_path"`
	VolRefreshInterval     time.Duration `yaml:"vol_refresh_interval"`
	OraclePollInterval     time.Duration `yaml:"oracle_poll_interval"`

	// Resolution tracking.
	ResolutionGrace    time.Duration `yaml:"resolution_grace"`
	ResolutionInterval time.Duration `yaml:"resolution_interval"`

	// External endpoints.
	BinanceSymbol     string `yaml:"binance_symbol"`
	DeribitCurrency   string `yaml:"deribit_currency"`
	EthRPCURL         string `yaml:"eth_rpc_url"`
	ChainlinkFeedAddr string `yaml:"chainlink_feed_addr"`
	VenueBaseURL      string `yaml:"venue_base_url"`
	MarketSeries      string `yaml:"market_series"`

	Telegram TelegramConfig `yaml:"telegram"`
	API      ListenConfig   `yaml:"api"`
	Metrics  ListenConfig   `yaml:"metrics"`
}

// TelegramConfig holds the operator alert channel credentials. Alerts are
// active whenever both fields are set; there is no separate toggle.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// ListenConfig is a toggleable HTTP listener, shared by the status API
// and the Prometheus endpoint.
type ListenConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		PaperTrading:       true,
		EdgeMinimum:        0.05,
		StopBeforeEndSec:   30,
		StartupCooldownSec: 60,
		TradeCooldownMs:    5000,
		MaxBuyPrice:        0.95,
		SlippageBps:        200,

		MinOrderUSD:    1,
		MaxOrderUSD:    10,
		MaxPositionUSD: 50,
		MaxTotalUSD:    200,

		DivergenceWindow:   2 * time.Hour,
		VolRefreshInterval: 2 * time.Minute,
		OraclePollInterval: time.Minute,

		ResolutionGrace:    2 * time.Minute,
		ResolutionInterval: 30 * time.Second,

		BinanceSymbol:   "BTCUSDT",
		DeribitCurrency: "BTC",
		MarketSeries:    "btc-updown-15m",

		API:     ListenConfig{Addr: ":8080"},
		Metrics: ListenConfig{Addr: ":9090"},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("POLYMARKET_PK"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("POLYMARKET_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("POLYMARKET_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("TRADER_PAPER_TRADING"); v != "" {
		c.PaperTrading = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRADER_ETH_RPC_URL"); v != "" {
		c.EthRPCURL = v
	}
	if v := os.Getenv("TRADER_MANUAL_STRIKE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ManualStrike = f
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
}
