package feed

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/ws"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

// BookFeed subscribes to the CLOB order-book stream for the active
// market's two outcome tokens and emits combined top-of-book snapshots.
// Each per-token event replaces that side; a snapshot is published once
// both sides have been seen.
type BookFeed struct {
	wsClient ws.Client

	mu      sync.Mutex
	mkt     market.Market
	haveMkt bool
	yes     sideQuote
	no      sideQuote
	haveYes bool
	haveNo  bool
}

type sideQuote struct {
	bid     float64
	ask     float64
	askSize float64
}

// NewBookFeed creates a BookFeed on the given websocket client.
func NewBookFeed(wsClient ws.Client) *BookFeed {
	return &BookFeed{wsClient: wsClient}
}

// SetMarket switches the feed to a new market's token pair and clears the
// partial state. Run picks up the new subscription on its next reconnect;
// callers normally restart Run per market.
func (f *BookFeed) SetMarket(m market.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkt = m
	f.haveMkt = true
	f.haveYes = false
	f.haveNo = false
}

// Run subscribes and delivers snapshots to handler until ctx is cancelled,
// reconnecting after a short backoff on channel closure.
func (f *BookFeed) Run(ctx context.Context, handler func(market.BookSnapshot)) error {
	for {
		f.mu.Lock()
		if !f.haveMkt {
			f.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}
		assetIDs := []string{f.mkt.UpTokenID, f.mkt.DownTokenID}
		f.mu.Unlock()

		bookCh, err := f.wsClient.SubscribeOrderbook(ctx, assetIDs)
		if err != nil {
			log.Printf("book feed subscribe: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
				continue
			}
		}

		if !f.consume(ctx, bookCh, handler) {
			return ctx.Err()
		}
		log.Println("book channel closed, reconnecting...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// consume drains the channel; returns false when ctx ended.
func (f *BookFeed) consume(ctx context.Context, bookCh <-chan ws.OrderbookEvent, handler func(market.BookSnapshot)) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-bookCh:
			if !ok {
				return true
			}
			if snap, ready := f.apply(event); ready {
				handler(snap)
			}
		}
	}
}

// apply folds one per-token event into the pair state.
func (f *BookFeed) apply(event ws.OrderbookEvent) (market.BookSnapshot, bool) {
	bid, ask, askSize, ok := topOfBook(event)
	if !ok {
		return market.BookSnapshot{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch event.AssetID {
	case f.mkt.UpTokenID:
		f.yes = sideQuote{bid: bid, ask: ask, askSize: askSize}
		f.haveYes = true
	case f.mkt.DownTokenID:
		f.no = sideQuote{bid: bid, ask: ask, askSize: askSize}
		f.haveNo = true
	default:
		return market.BookSnapshot{}, false
	}

	if !f.haveYes || !f.haveNo {
		return market.BookSnapshot{}, false
	}
	return market.BookSnapshot{
		YesBid:     f.yes.bid,
		YesAsk:     f.yes.ask,
		YesAskSize: f.yes.askSize,
		NoBid:      f.no.bid,
		NoAsk:      f.no.ask,
		NoAskSize:  f.no.askSize,
		Timestamp:  time.Now(),
	}, true
}

func topOfBook(event ws.OrderbookEvent) (bid, ask, askSize float64, ok bool) {
	if len(event.Bids) == 0 || len(event.Asks) == 0 {
		return 0, 0, 0, false
	}
	bid, err := strconv.ParseFloat(event.Bids[0].Price, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	ask, err = strconv.ParseFloat(event.Asks[0].Price, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	askSize, _ = strconv.ParseFloat(event.Asks[0].Size, 64)
	return bid, ask, askSize, true
}
