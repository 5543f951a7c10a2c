package trader

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/divergence"
	"github.com/GoPolymarket/updown-arb/internal/execution"
	"github.com/GoPolymarket/updown-arb/internal/market"
	"github.com/GoPolymarket/updown-arb/internal/metrics"
	"github.com/GoPolymarket/updown-arb/internal/position"
	"github.com/GoPolymarket/updown-arb/internal/pricing"
	"github.com/GoPolymarket/updown-arb/internal/resolution"
	"github.com/GoPolymarket/updown-arb/internal/strike"
	"github.com/GoPolymarket/updown-arb/internal/volatility"
)

const (
	bookMaxAge      = 10 * time.Second
	executeDeadline = 5 * time.Second

	statusLogEvery = time.Second
	warmupLogEvery = 30 * time.Second
	waitLogEvery   = 5 * time.Second
)

// Config holds the trading parameters the orchestrator consumes.
type Config struct {
	PaperTrading     bool
	EdgeMinimum      float64
	StopBeforeEnd    time.Duration
	StartupCooldown  time.Duration
	TradeCooldown    time.Duration
	MaxBuyPrice      float64
	SlippageBps      int
	StaticAdjustment float64
	ManualStrike     float64
	MaxTotalUSD      float64
}

// Notifier delivers operator alerts. May be nil.
type Notifier interface {
	NotifyFill(ctx context.Context, side market.Side, fill execution.Fill) error
	NotifySessionCap(ctx context.Context, spentUSD, capUSD float64) error
}

// signal is one sized, priced buy decision.
type signal struct {
	side    market.Side
	tokenID string
	ask     float64
	size    int64
	fair    pricing.Result
	edge    float64
}

// Status is the trader's state surface for the API layer.
type Status struct {
	Mode          string
	Market        string
	HasMarket     bool
	Strike        float64
	LastMid       float64
	FairUp        float64
	FairDown      float64
	TimeToEndSec  float64
	IsTrading     bool
	EmergencyStop bool
	LastTradeAt   time.Time
	StartedAt     time.Time
}

// Trader ties the pricing pipeline to execution: on every mid or book tick
// it re-evaluates the gates, prices the market, and fires at most one
// immediate-or-cancel buy.
type Trader struct {
	mu sync.Mutex

	cfg Config

	vol         *volatility.Service
	div         *divergence.Tracker
	strikes     *strike.Service
	pos         *position.Manager
	sink        execution.Sink
	execMetrics *execution.Metrics
	resolutions *resolution.Tracker
	notifier    Notifier

	mkt        market.Market
	haveMarket bool
	lastTick   market.MidTick
	haveTick   bool
	lastBook   market.BookSnapshot
	haveBook   bool
	lastFair   pricing.Result

	isTrading          bool
	lastTradeAt        time.Time
	startedAt          time.Time
	emergencyStop      bool
	sessionCapNotified bool

	lastStatusLog time.Time
	lastWarmupLog time.Time
	lastWaitLog   time.Time
	lastLockLog   time.Time

	now func() time.Time
}

// New wires a Trader from its collaborators. notifier may be nil.
func New(cfg Config, vol *volatility.Service, div *divergence.Tracker, strikes *strike.Service,
	pos *position.Manager, sink execution.Sink, execMetrics *execution.Metrics,
	resolutions *resolution.Tracker, notifier Notifier) *Trader {

	return &Trader{
		cfg:         cfg,
		vol:         vol,
		div:         div,
		strikes:     strikes,
		pos:         pos,
		sink:        sink,
		execMetrics: execMetrics,
		resolutions: resolutions,
		notifier:    notifier,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

// SetMarket switches the trader to a new market, resetting all per-market
// state. The resolution tracker already holds every confirmed fill, so
// pending trades survive the switch.
func (t *Trader) SetMarket(m market.Market) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.haveMarket && t.mkt.ConditionID == m.ConditionID {
		return
	}
	if t.haveMarket {
		log.Printf("trader: switching market %s -> %s", t.mkt.ConditionID, m.ConditionID)
	} else {
		log.Printf("trader: market %s (ends %s)", m.ConditionID, m.EndTime.Format(time.RFC3339))
	}

	t.mkt = m
	t.haveMarket = true
	t.haveBook = false
	t.lastBook = market.BookSnapshot{}
	t.isTrading = false
	t.lastTradeAt = time.Time{}

	t.pos.ResetForNewMarket()
	t.strikes.Reset()
	if t.cfg.ManualStrike > 0 {
		t.strikes.SetManual(t.cfg.ManualStrike)
	}
}

// Market returns the active market, if any.
func (t *Trader) Market() (market.Market, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mkt, t.haveMarket
}

// LatestMid returns the last exchange mid, for collaborators that pair
// their own observations with it.
func (t *Trader) LatestMid() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveTick {
		return 0, false
	}
	return t.lastTick.Mid, true
}

// SetEmergencyStop halts or resumes signal emission.
func (t *Trader) SetEmergencyStop(stop bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stop != t.emergencyStop {
		log.Printf("trader: emergency stop = %t", stop)
	}
	t.emergencyStop = stop
}

// OnPrice handles one exchange mid tick.
func (t *Trader) OnPrice(ctx context.Context, tick market.MidTick) {
	t.mu.Lock()
	t.lastTick = tick
	t.haveTick = true
	t.mu.Unlock()

	t.checkAndTrade(ctx)
}

// OnBook handles one order-book snapshot.
func (t *Trader) OnBook(ctx context.Context, book market.BookSnapshot) {
	if !book.Valid() {
		return
	}
	t.mu.Lock()
	t.lastBook = book
	t.haveBook = true
	t.mu.Unlock()

	t.checkAndTrade(ctx)
}

// checkAndTrade is the per-tick decision procedure. Every gate failure is a
// skipped cycle; nothing here may panic out to the feed.
func (t *Trader) checkAndTrade(ctx context.Context) {
	t.mu.Lock()

	now := t.now()

	// 1. Readiness.
	if !t.haveMarket || !t.haveTick || !t.haveBook {
		t.mu.Unlock()
		return
	}
	if t.emergencyStop {
		t.mu.Unlock()
		return
	}

	// 2. Warm-up.
	if since := now.Sub(t.startedAt); since < t.cfg.StartupCooldown {
		if now.Sub(t.lastWarmupLog) >= warmupLogEvery {
			log.Printf("trader: warmup, trading disabled for %.0fs", (t.cfg.StartupCooldown - since).Seconds())
			t.lastWarmupLog = now
		}
		t.mu.Unlock()
		return
	}

	// 3. End of market life.
	if t.mkt.EndTime.Sub(now) <= t.cfg.StopBeforeEnd {
		t.mu.Unlock()
		return
	}

	// 4. Book freshness.
	if !t.lastBook.Fresh(now, bookMaxAge) {
		t.mu.Unlock()
		return
	}

	// 5. Market started.
	if now.Before(t.mkt.StartTime) {
		if now.Sub(t.lastWaitLog) >= waitLogEvery {
			wait := t.mkt.StartTime.Sub(now)
			log.Printf("trader: waiting %ds for market start and strike", int(wait.Seconds()))
			t.lastWaitLog = now
		}
		t.mu.Unlock()
		return
	}

	// 6. Strike. The fetch is kicked off without blocking the tick; the
	// service single-flights concurrent attempts.
	if t.strikes.Strike() == 0 {
		mkt := t.mkt
		go t.strikes.FetchAndSet(ctx, mkt)
		if t.strikes.Strike() == 0 {
			t.mu.Unlock()
			return
		}
	}
	strikePrice := t.strikes.Strike()

	// 7. One order in flight.
	if t.isTrading {
		if now.Sub(t.lastLockLog) >= statusLogEvery {
			log.Printf("trader: order in progress, skipping tick")
			t.lastLockLog = now
		}
		t.mu.Unlock()
		return
	}

	// 8. Cooldown since the last trade.
	if !t.lastTradeAt.IsZero() && now.Sub(t.lastTradeAt) < t.cfg.TradeCooldown {
		t.mu.Unlock()
		return
	}

	// Price the market.
	tauSec := t.mkt.EndTime.Sub(now).Seconds()
	hMin := tauSec / 60
	sigma := t.vol.ForHorizon(hMin)

	adj := t.cfg.StaticAdjustment
	if t.div.HasReliableData() {
		adj = t.div.EMAAdjustment()
	}

	spot := t.lastTick.Mid + adj
	fair := pricing.Fair(spot, strikePrice, tauSec, sigma, true)
	t.lastFair = fair

	book := t.lastBook
	edgeUp := pricing.Edge(fair.PUp, book.YesAsk)
	edgeDown := pricing.Edge(fair.PDown, book.NoAsk)

	metrics.ObserveTick(fair.PUp, edgeUp, edgeDown, sigma, adj)

	if now.Sub(t.lastStatusLog) >= statusLogEvery {
		snap := t.pos.Snapshot()
		log.Printf("tick: ttl=%.0fs mid=%.2f adj=%+.2f vol=%.2f up=%.3f/%.3f down=%.3f/%.3f edges=%+.3f/%+.3f pos=%d/%d pnl=%+.2f",
			tauSec, t.lastTick.Mid, adj, sigma,
			fair.PUp, book.YesAsk, fair.PDown, book.NoAsk,
			edgeUp, edgeDown,
			snap.YesShares, snap.NoShares, t.pos.PnL(book))
		t.lastStatusLog = now
	}

	sig := t.findBestSignal(fair, book, edgeUp, edgeDown)
	if sig == nil {
		t.mu.Unlock()
		return
	}

	// Decision is final: take the lock and execute. execute unlocks t.mu
	// before the network call and always clears isTrading.
	t.isTrading = true
	t.execute(ctx, *sig, now)
}

// findBestSignal applies signal selection under t.mu. UP is evaluated first
// and wins when both sides qualify; when the preferred side's sizing
// returns 0 the tick emits nothing rather than falling through.
func (t *Trader) findBestSignal(fair pricing.Result, book market.BookSnapshot, edgeUp, edgeDown float64) *signal {
	if book.YesAsk > 0 && edgeUp >= t.cfg.EdgeMinimum && book.YesAsk <= t.cfg.MaxBuyPrice {
		size := t.pos.OrderSize(book.YesAsk)
		if size == 0 {
			return nil
		}
		return &signal{side: market.SideUp, tokenID: t.mkt.UpTokenID, ask: book.YesAsk, size: size, fair: fair, edge: edgeUp}
	}
	if book.NoAsk > 0 && edgeDown >= t.cfg.EdgeMinimum && book.NoAsk <= t.cfg.MaxBuyPrice {
		size := t.pos.OrderSize(book.NoAsk)
		if size == 0 {
			return nil
		}
		return &signal{side: market.SideDown, tokenID: t.mkt.DownTokenID, ask: book.NoAsk, size: size, fair: fair, edge: edgeDown}
	}
	return nil
}

// execute submits one IOC buy. Called with t.mu held and isTrading set; it
// releases the mutex before suspending and clears the flag on every path.
func (t *Trader) execute(ctx context.Context, sig signal, signalTime time.Time) {
	mkt := t.mkt
	strikePrice := t.strikes.Strike()
	midAtSignal := t.lastTick.Mid
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.isTrading = false
		t.mu.Unlock()
	}()

	price := priceWithSlippage(sig.ask, t.cfg.SlippageBps, mkt.TickSize)

	fairSide := sig.fair.PUp
	if sig.side == market.SideDown {
		fairSide = sig.fair.PDown
	}

	log.Printf("signal: %s %d @ %.2f (ask=%.2f fair=%.3f edge=%+.3f)",
		sig.side, sig.size, price, sig.ask, fairSide, sig.edge)

	execCtx, cancel := context.WithTimeout(ctx, executeDeadline)
	defer cancel()

	fill, err := t.sink.PlaceIOC(execCtx, execution.Request{
		TokenID:  sig.tokenID,
		Side:     sig.side,
		Price:    price,
		Size:     sig.size,
		TickSize: mkt.TickSize,
		NegRisk:  mkt.NegRisk,
	})
	if err != nil {
		reason := execution.Categorize(err)
		metrics.RecordOrder(t.mode(), string(sig.side), "failed_"+reason)
		log.Printf("execute failed (%s): %v", reason, err)
		return
	}

	t.mu.Lock()
	t.lastTradeAt = t.now()
	midAtFill := t.lastTick.Mid
	t.mu.Unlock()

	t.pos.Update(sig.side, fill.Size, fill.Price)
	metrics.RecordOrder(t.mode(), string(sig.side), "filled")
	metrics.SetSessionSpent(t.pos.TotalSpentUSD())

	t.resolutions.Record(mkt, strikePrice, resolution.TradeRecord{
		Side:         sig.side,
		FillPrice:    fill.Price,
		Size:         fill.Size,
		FairAtSignal: fairSide,
		ExpectedEdge: fairSide - fill.Price,
		At:           fill.FilledAt,
	})

	if !t.cfg.PaperTrading {
		midMovePct := 0.0
		if midAtSignal > 0 {
			midMovePct = (midAtFill - midAtSignal) / midAtSignal * 100
		}
		t.execMetrics.Record(execution.TradeMetric{
			Latency:       fill.FilledAt.Sub(signalTime),
			SlippageCents: (fill.Price - sig.ask) * 100,
			ExpectedEdge:  fairSide - sig.ask,
			RealizedEdge:  fairSide - fill.Price,
			MidMovePct:    midMovePct,
			At:            fill.FilledAt,
		})
	}

	if t.notifier != nil {
		_ = t.notifier.NotifyFill(ctx, sig.side, fill)
		if t.pos.SessionCapReached() {
			t.mu.Lock()
			notified := t.sessionCapNotified
			t.sessionCapNotified = true
			t.mu.Unlock()
			if !notified {
				_ = t.notifier.NotifySessionCap(ctx, t.pos.TotalSpentUSD(), t.cfg.MaxTotalUSD)
			}
		}
	}
}

// ShouldStop reports whether trading on the current market is over: no
// market, too close to settlement, or the session budget is exhausted.
func (t *Trader) ShouldStop() bool {
	t.mu.Lock()
	haveMarket := t.haveMarket
	endsIn := time.Duration(0)
	if haveMarket {
		endsIn = t.mkt.EndTime.Sub(t.now())
	}
	t.mu.Unlock()

	if !haveMarket {
		return true
	}
	if endsIn <= t.cfg.StopBeforeEnd {
		return true
	}
	return t.pos.SessionCapReached()
}

// Status returns a snapshot for the API layer.
func (t *Trader) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Status{
		Mode:          t.mode(),
		HasMarket:     t.haveMarket,
		Strike:        t.strikes.Strike(),
		FairUp:        t.lastFair.PUp,
		FairDown:      t.lastFair.PDown,
		IsTrading:     t.isTrading,
		EmergencyStop: t.emergencyStop,
		LastTradeAt:   t.lastTradeAt,
		StartedAt:     t.startedAt,
	}
	if t.haveTick {
		s.LastMid = t.lastTick.Mid
	}
	if t.haveMarket {
		s.Market = t.mkt.ConditionID
		s.TimeToEndSec = t.mkt.EndTime.Sub(t.now()).Seconds()
	}
	return s
}

func (t *Trader) mode() string {
	if t.cfg.PaperTrading {
		return "paper"
	}
	return "live"
}

// priceWithSlippage pads the ask by slippageBps, rounds to the tick grid,
// and caps at 0.99.
func priceWithSlippage(ask float64, slippageBps int, tickSize float64) float64 {
	if tickSize <= 0 {
		tickSize = 0.01
	}
	padded := ask * (1 + float64(slippageBps)/10000)
	rounded := math.Round(padded/tickSize) * tickSize
	return math.Min(0.99, rounded)
}
