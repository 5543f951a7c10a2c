package trader

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/divergence"
	"github.com/GoPolymarket/updown-arb/internal/execution"
	"github.com/GoPolymarket/updown-arb/internal/market"
	"github.com/GoPolymarket/updown-arb/internal/position"
	"github.com/GoPolymarket/updown-arb/internal/resolution"
	"github.com/GoPolymarket/updown-arb/internal/strike"
	"github.com/GoPolymarket/updown-arb/internal/volatility"
)

type fakeSink struct {
	mu   sync.Mutex
	reqs []execution.Request
	err  error
}

func (f *fakeSink) PlaceIOC(_ context.Context, req execution.Request) (execution.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return execution.Fill{}, f.err
	}
	return execution.Fill{OrderID: "fake-1", Price: req.Price, Size: req.Size, FilledAt: time.Now()}, nil
}

func (f *fakeSink) requests() []execution.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execution.Request(nil), f.reqs...)
}

type noCandles struct{}

func (noCandles) Closes(context.Context, time.Duration, int) ([]float64, error) {
	return nil, errors.New("no candles in tests")
}

func testConfig() Config {
	return Config{
		PaperTrading:     true,
		EdgeMinimum:      0.05,
		StopBeforeEnd:    30 * time.Second,
		StartupCooldown:  0,
		TradeCooldown:    5 * time.Second,
		MaxBuyPrice:      0.99,
		SlippageBps:      200,
		StaticAdjustment: 0,
		ManualStrike:     99500,
		MaxTotalUSD:      100,
	}
}

func testLimits() position.Limits {
	return position.Limits{MinOrderUSD: 1, MaxOrderUSD: 2, MaxPositionUSD: 5, MaxTotalUSD: 100}
}

type fixture struct {
	tr   *Trader
	sink *fakeSink
	pos  *position.Manager
	res  *resolution.Tracker
}

func newFixture(cfg Config, limits position.Limits) *fixture {
	vol := volatility.New(noCandles{}, nil, time.Minute, func() (float64, bool) { return 0, false })
	div := divergence.New(time.Hour, cfg.StaticAdjustment, "")
	strikes := strike.New(nil, nil)
	pos := position.NewManager(limits)
	sink := &fakeSink{}
	res := resolution.NewTracker(nil, 2*time.Minute, 30*time.Second)
	tr := New(cfg, vol, div, strikes, pos, sink, execution.NewMetrics(time.Hour), res, nil)
	return &fixture{tr: tr, sink: sink, pos: pos, res: res}
}

func activeMarket() market.Market {
	now := time.Now()
	return market.Market{
		ConditionID: "cond-1",
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		StartTime:   now.Add(-10 * time.Minute),
		EndTime:     now.Add(5 * time.Minute),
		TickSize:    0.01,
	}
}

func goodBook() market.BookSnapshot {
	return market.BookSnapshot{
		YesBid: 0.38, YesAsk: 0.40, YesAskSize: 100,
		NoBid: 0.58, NoAsk: 0.60, NoAskSize: 100,
		Timestamp: time.Now(),
	}
}

func midTick(mid float64) market.MidTick {
	return market.MidTick{Bid: mid - 1, Ask: mid + 1, Mid: mid, Timestamp: time.Now()}
}

func TestClearUpSignal(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	reqs := f.sink.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 order, got %d", len(reqs))
	}
	req := reqs[0]
	if req.Side != market.SideUp || req.TokenID != "tok-up" {
		t.Fatalf("expected UP on tok-up, got %s on %s", req.Side, req.TokenID)
	}
	if req.Size != 5 {
		t.Fatalf("size = %d, want floor(2/0.40) = 5", req.Size)
	}
	// 0.40 * 1.02 = 0.408, rounded to the cent grid.
	if math.Abs(req.Price-0.41) > 1e-9 {
		t.Fatalf("price = %f, want 0.41", req.Price)
	}

	snap := f.pos.Snapshot()
	if snap.YesShares != 5 || snap.NoShares != 0 {
		t.Fatalf("position = %d/%d, want 5/0", snap.YesShares, snap.NoShares)
	}
	if f.res.PendingCount() != 1 {
		t.Fatalf("pending resolutions = %d, want 1", f.res.PendingCount())
	}
}

func TestStaleBookSuppresses(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	book := goodBook()
	book.Timestamp = time.Now().Add(-15 * time.Second)
	f.tr.OnBook(ctx, book)

	if len(f.sink.requests()) != 0 {
		t.Fatal("stale book must not trade")
	}
	if snap := f.pos.Snapshot(); snap.YesShares != 0 || snap.NoShares != 0 {
		t.Fatal("stale book must not mutate the position")
	}
}

func TestWarmupSuppresses(t *testing.T) {
	cfg := testConfig()
	cfg.StartupCooldown = 60 * time.Second
	f := newFixture(cfg, testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if len(f.sink.requests()) != 0 {
		t.Fatal("warm-up window must not trade")
	}
}

func TestEndOfLifeSuppresses(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	m := activeMarket()
	m.EndTime = time.Now().Add(20 * time.Second) // inside stop_before_end
	f.tr.SetMarket(m)
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if len(f.sink.requests()) != 0 {
		t.Fatal("end-of-life gate must not trade")
	}
}

func TestMarketNotStartedSuppresses(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	m := activeMarket()
	m.StartTime = time.Now().Add(time.Minute)
	f.tr.SetMarket(m)
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if len(f.sink.requests()) != 0 {
		t.Fatal("pre-start market must not trade")
	}
}

func TestMissingStrikeSuppresses(t *testing.T) {
	cfg := testConfig()
	cfg.ManualStrike = 0 // no strike, no sources
	f := newFixture(cfg, testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if len(f.sink.requests()) != 0 {
		t.Fatal("missing strike must not trade")
	}
}

func TestCooldownBetweenTrades(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())
	f.tr.OnBook(ctx, goodBook())
	f.tr.OnBook(ctx, goodBook())

	if n := len(f.sink.requests()); n != 1 {
		t.Fatalf("cooldown violated: %d orders", n)
	}
}

func TestEmergencyStopSuppresses(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.SetEmergencyStop(true)
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if len(f.sink.requests()) != 0 {
		t.Fatal("emergency stop must not trade")
	}
}

func TestUpWinsWhenBothSidesQualify(t *testing.T) {
	cfg := testConfig()
	cfg.ManualStrike = 100000
	f := newFixture(cfg, testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	// Fair is ~0.50 each way; both asks at 0.40 leave ~0.10 edge on both.
	book := market.BookSnapshot{
		YesBid: 0.38, YesAsk: 0.40, YesAskSize: 100,
		NoBid: 0.38, NoAsk: 0.40, NoAskSize: 100,
		Timestamp: time.Now(),
	}
	f.tr.OnBook(ctx, book)

	reqs := f.sink.requests()
	if len(reqs) != 1 || reqs[0].Side != market.SideUp {
		t.Fatalf("UP must win the tie-break, got %+v", reqs)
	}
}

func TestNoEdgeNoTrade(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	// Spot far above strike: UP fair is high but the ask is higher still,
	// and DOWN fair is tiny.
	book := market.BookSnapshot{
		YesBid: 0.97, YesAsk: 0.99, YesAskSize: 100,
		NoBid: 0.01, NoAsk: 0.03, NoAskSize: 100,
		Timestamp: time.Now(),
	}
	f.tr.OnBook(ctx, book)

	if len(f.sink.requests()) != 0 {
		t.Fatal("no qualifying edge must not trade")
	}
}

func TestMaxBuyPriceGate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBuyPrice = 0.30
	f := newFixture(cfg, testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook()) // yes_ask 0.40 exceeds the 0.30 ceiling

	if len(f.sink.requests()) != 0 {
		t.Fatal("ask above max_buy_price must not trade")
	}
}

func TestSizingZeroEmitsNothing(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	// Exhaust the session budget so sizing returns 0 for any side.
	f.pos.Update(market.SideUp, 199, 0.50)
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if len(f.sink.requests()) != 0 {
		t.Fatal("zero sizing must not emit a signal")
	}
}

func TestFailedExecutionLeavesPositionAndReleasesLock(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	f.sink.err = errors.New("HTTP 429 too many requests")
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())

	if snap := f.pos.Snapshot(); snap.YesShares != 0 {
		t.Fatal("failed execution must not mutate the position")
	}
	if f.tr.Status().IsTrading {
		t.Fatal("lock must be released after a failure")
	}
	if f.res.PendingCount() != 0 {
		t.Fatal("failed execution must not enqueue a resolution record")
	}

	// The failure did not start a cooldown; the next tick may retry.
	f.sink.err = nil
	f.tr.OnBook(ctx, goodBook())
	if n := len(f.sink.requests()); n != 2 {
		t.Fatalf("expected retry on next tick, got %d submissions", n)
	}
}

func TestSetMarketResetsPerMarketState(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	ctx := context.Background()

	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(ctx, midTick(100000))
	f.tr.OnBook(ctx, goodBook())
	if f.pos.Snapshot().YesShares != 5 {
		t.Fatal("setup trade missing")
	}
	spent := f.pos.TotalSpentUSD()

	next := activeMarket()
	next.ConditionID = "cond-2"
	f.tr.SetMarket(next)

	snap := f.pos.Snapshot()
	if snap.YesShares != 0 {
		t.Fatal("per-market position must reset on switch")
	}
	if snap.TotalSpentUSD != spent {
		t.Fatal("session spend must persist across switch")
	}
	if f.res.PendingCount() != 1 {
		t.Fatal("pending resolutions must survive the switch")
	}
	if f.tr.Status().Strike != testConfig().ManualStrike {
		t.Fatalf("manual strike not re-applied, got %f", f.tr.Status().Strike)
	}
}

func TestShouldStop(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	if !f.tr.ShouldStop() {
		t.Fatal("no market should stop")
	}

	f.tr.SetMarket(activeMarket())
	if f.tr.ShouldStop() {
		t.Fatal("healthy market should not stop")
	}

	m := activeMarket()
	m.ConditionID = "cond-ending"
	m.EndTime = time.Now().Add(10 * time.Second)
	f.tr.SetMarket(m)
	if !f.tr.ShouldStop() {
		t.Fatal("market inside stop_before_end should stop")
	}
}

func TestPriceWithSlippage(t *testing.T) {
	cases := []struct {
		ask  float64
		bps  int
		want float64
	}{
		{0.40, 200, 0.41},
		{0.50, 0, 0.50},
		{0.98, 200, 0.99}, // 0.9996 rounds to 1.00, capped
		{0.33, 100, 0.33}, // 0.3333 rounds back to the cent grid
	}
	for _, c := range cases {
		if got := priceWithSlippage(c.ask, c.bps, 0.01); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("priceWithSlippage(%f, %d) = %f, want %f", c.ask, c.bps, got, c.want)
		}
	}
}

func TestOnPriceAloneDoesNotTrade(t *testing.T) {
	f := newFixture(testConfig(), testLimits())
	f.tr.SetMarket(activeMarket())
	f.tr.OnPrice(context.Background(), midTick(100000))
	if len(f.sink.requests()) != 0 {
		t.Fatal("no book yet, must not trade")
	}
}
