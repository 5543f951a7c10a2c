package volatility

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceCandles fetches close prices from Binance spot klines.
type BinanceCandles struct {
	client *binance.Client
	symbol string
}

// NewBinanceCandles creates a candle source for the given spot symbol
// (e.g. "BTCUSDT"). No credentials are needed for public market data.
func NewBinanceCandles(symbol string) *BinanceCandles {
	return &BinanceCandles{
		client: binance.NewClient("", ""),
		symbol: symbol,
	}
}

// Closes returns the most recent close prices, oldest first.
func (b *BinanceCandles) Closes(ctx context.Context, interval time.Duration, limit int) ([]float64, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(b.symbol).
		Interval(intervalString(interval)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", b.symbol, err)
	}

	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		c, pErr := strconv.ParseFloat(k.Close, 64)
		if pErr != nil {
			return nil, fmt.Errorf("binance klines %s: bad close %q: %w", b.symbol, k.Close, pErr)
		}
		closes = append(closes, c)
	}
	return closes, nil
}

func intervalString(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
