package config

import "fmt"

// Validate checks the constraints that must hold before trading starts.
// Violations are fatal at startup.
func (c Config) Validate() error {
	if c.EdgeMinimum < 0.01 || c.EdgeMinimum >= 1.0 {
		return fmt.Errorf("edge_minimum must be within [0.01, 1.0), got %f", c.EdgeMinimum)
	}
	if c.MaxBuyPrice <= 0 || c.MaxBuyPrice > 0.99 {
		return fmt.Errorf("max_buy_price must be within (0, 0.99], got %f", c.MaxBuyPrice)
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("slippage_bps must be >= 0, got %d", c.SlippageBps)
	}
	if c.StopBeforeEndSec < 0 {
		return fmt.Errorf("stop_before_end_sec must be >= 0, got %d", c.StopBeforeEndSec)
	}
	if c.StartupCooldownSec < 0 {
		return fmt.Errorf("startup_cooldown_sec must be >= 0, got %d", c.StartupCooldownSec)
	}
	if c.TradeCooldownMs < 0 {
		return fmt.Errorf("trade_cooldown_ms must be >= 0, got %d", c.TradeCooldownMs)
	}

	if c.MinOrderUSD <= 0 {
		return fmt.Errorf("min_order_usd must be > 0, got %f", c.MinOrderUSD)
	}
	if c.MaxOrderUSD < c.MinOrderUSD {
		return fmt.Errorf("max_order_usd must be >= min_order_usd, got %f < %f", c.MaxOrderUSD, c.MinOrderUSD)
	}
	if c.MaxPositionUSD < c.MaxOrderUSD {
		return fmt.Errorf("max_position_usd must be >= max_order_usd, got %f < %f", c.MaxPositionUSD, c.MaxOrderUSD)
	}
	if c.MaxTotalUSD < c.MaxPositionUSD {
		return fmt.Errorf("max_total_usd must be >= max_position_usd, got %f < %f", c.MaxTotalUSD, c.MaxPositionUSD)
	}

	if c.ManualStrike < 0 {
		return fmt.Errorf("manual_strike must be >= 0, got %f", c.ManualStrike)
	}

	if !c.PaperTrading {
		if c.PrivateKey == "" || c.APIKey == "" {
			return fmt.Errorf("live mode requires private_key and api_key")
		}
		if c.EthRPCURL == "" || c.ChainlinkFeedAddr == "" {
			return fmt.Errorf("live mode requires eth_rpc_url and chainlink_feed_addr")
		}
	}
	return nil
}
