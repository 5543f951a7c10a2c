package feed

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

// BinanceMidFeed streams best bid/ask ticks for one spot symbol and reduces
// them to MidTicks. Out-of-order delivery is tolerated; consumers always
// adopt the latest received.
type BinanceMidFeed struct {
	symbol string
}

// NewBinanceMidFeed creates a feed for the given symbol (e.g. "BTCUSDT").
func NewBinanceMidFeed(symbol string) *BinanceMidFeed {
	return &BinanceMidFeed{symbol: symbol}
}

// Run delivers ticks to handler until ctx is cancelled, reconnecting on
// stream failure.
func (f *BinanceMidFeed) Run(ctx context.Context, handler func(market.MidTick)) error {
	for {
		doneC, stopC, err := binance.WsBookTickerServe(f.symbol, func(event *binance.WsBookTickerEvent) {
			bid, bErr := strconv.ParseFloat(event.BestBidPrice, 64)
			ask, aErr := strconv.ParseFloat(event.BestAskPrice, 64)
			if bErr != nil || aErr != nil || bid <= 0 || ask <= 0 {
				return
			}
			handler(market.MidTick{
				Bid:       bid,
				Ask:       ask,
				Mid:       (bid + ask) / 2,
				Timestamp: time.Now(),
			})
		}, func(err error) {
			log.Printf("binance feed: %v", err)
		})
		if err != nil {
			log.Printf("binance feed connect: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
				continue
			}
		}

		select {
		case <-ctx.Done():
			close(stopC)
			return ctx.Err()
		case <-doneC:
			log.Println("binance feed closed, reconnecting...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
}
