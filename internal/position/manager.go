package position

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

// Limits are the four USD exposure caps applied at sizing time.
type Limits struct {
	MinOrderUSD    float64
	MaxOrderUSD    float64
	MaxPositionUSD float64 // per market
	MaxTotalUSD    float64 // per session
}

// Snapshot is a read-only view of the current position.
type Snapshot struct {
	YesShares     int64
	NoShares      int64
	YesCostUSD    float64
	NoCostUSD     float64
	TotalSpentUSD float64
	MarketTrades  int
	SessionTrades int
}

// Manager owns the per-market position, its cost basis, and the
// session-wide spend counter. Cost bases accumulate in decimals so P&L
// reporting stays exact on the cent grid.
type Manager struct {
	mu sync.Mutex

	minOrder    decimal.Decimal
	maxOrder    decimal.Decimal
	maxPosition decimal.Decimal
	maxTotal    decimal.Decimal

	yesShares int64
	noShares  int64
	yesCost   decimal.Decimal
	noCost    decimal.Decimal

	totalSpent    decimal.Decimal
	marketTrades  int
	sessionTrades int

	// Latched one-shot logs: the market latch resets on switch, the
	// session latch persists.
	marketCapLogged  bool
	sessionCapLogged bool
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits) *Manager {
	return &Manager{
		minOrder:    decimal.NewFromFloat(limits.MinOrderUSD),
		maxOrder:    decimal.NewFromFloat(limits.MaxOrderUSD),
		maxPosition: decimal.NewFromFloat(limits.MaxPositionUSD),
		maxTotal:    decimal.NewFromFloat(limits.MaxTotalUSD),
	}
}

// OrderSize returns the maximum whole number of shares purchasable at price
// without breaching the session, per-market, or per-order USD caps. Sub-
// minimum sizes are bumped to the minimum when it still fits, else 0.
func (m *Manager) OrderSize(price float64) int64 {
	if price <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := decimal.NewFromFloat(price)

	remainingTotal := m.maxTotal.Sub(m.totalSpent)
	if remainingTotal.LessThan(m.minOrder) {
		if !m.sessionCapLogged {
			log.Printf("position: session cap reached: spent %s of %s", m.totalSpent, m.maxTotal)
			m.sessionCapLogged = true
		}
		return 0
	}

	notional := decimal.NewFromInt(m.yesShares + m.noShares).Mul(p)
	remainingMarket := m.maxPosition.Sub(notional)
	if remainingMarket.LessThan(m.minOrder) {
		if !m.marketCapLogged {
			log.Printf("position: market cap reached: notional %s of %s", notional, m.maxPosition)
			m.marketCapLogged = true
		}
		return 0
	}

	budget := remainingTotal
	if remainingMarket.LessThan(budget) {
		budget = remainingMarket
	}
	if m.maxOrder.LessThan(budget) {
		budget = m.maxOrder
	}

	shares := budget.Div(p).Floor().IntPart()
	minShares := m.minOrder.Div(p).Ceil().IntPart()
	if shares < minShares {
		bump := decimal.NewFromInt(minShares).Mul(p)
		if bump.LessThanOrEqual(remainingTotal) && bump.LessThanOrEqual(remainingMarket) {
			return minShares
		}
		return 0
	}
	return shares
}

// Update records a confirmed fill: shares at price on side. The session
// spend counter only ever grows.
func (m *Manager) Update(side market.Side, shares int64, price float64) {
	if shares <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cost := decimal.NewFromInt(shares).Mul(decimal.NewFromFloat(price))
	switch side {
	case market.SideUp:
		m.yesShares += shares
		m.yesCost = m.yesCost.Add(cost)
	case market.SideDown:
		m.noShares += shares
		m.noCost = m.noCost.Add(cost)
	default:
		return
	}
	m.totalSpent = m.totalSpent.Add(cost)
	m.marketTrades++
	m.sessionTrades++
}

// PnL marks the position against the book. Paired shares settle to exactly
// one unit each, so the pair component uses the per-side average cost
// instead of the quoted bids; only the unpaired remainder is marked to
// market.
func (m *Manager) PnL(book market.BookSnapshot) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	yesBid := decimal.NewFromFloat(book.YesBid)
	noBid := decimal.NewFromFloat(book.NoBid)

	pairs := m.yesShares
	if m.noShares < pairs {
		pairs = m.noShares
	}

	if pairs <= 0 {
		value := decimal.NewFromInt(m.yesShares).Mul(yesBid).
			Add(decimal.NewFromInt(m.noShares).Mul(noBid))
		return value.Sub(m.yesCost).Sub(m.noCost).InexactFloat64()
	}

	avgYes := decimal.Zero
	if m.yesShares > 0 {
		avgYes = m.yesCost.Div(decimal.NewFromInt(m.yesShares))
	}
	avgNo := decimal.Zero
	if m.noShares > 0 {
		avgNo = m.noCost.Div(decimal.NewFromInt(m.noShares))
	}

	pd := decimal.NewFromInt(pairs)
	locked := pd.Sub(pd.Mul(avgYes.Add(avgNo)))

	unpairedYes := decimal.NewFromInt(m.yesShares - pairs)
	unpairedNo := decimal.NewFromInt(m.noShares - pairs)
	mtm := unpairedYes.Mul(yesBid.Sub(avgYes)).
		Add(unpairedNo.Mul(noBid.Sub(avgNo)))

	return locked.Add(mtm).InexactFloat64()
}

// TotalSpentUSD returns the session spend so far.
func (m *Manager) TotalSpentUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSpent.InexactFloat64()
}

// SessionCapReached reports whether the remaining session budget is below
// one minimum order.
func (m *Manager) SessionCapReached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxTotal.Sub(m.totalSpent).LessThan(m.minOrder)
}

// Snapshot returns a copy of the current position state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		YesShares:     m.yesShares,
		NoShares:      m.noShares,
		YesCostUSD:    m.yesCost.InexactFloat64(),
		NoCostUSD:     m.noCost.InexactFloat64(),
		TotalSpentUSD: m.totalSpent.InexactFloat64(),
		MarketTrades:  m.marketTrades,
		SessionTrades: m.sessionTrades,
	}
}

// ResetForNewMarket clears the per-market position and the market cap
// latch. Session spend, session trade count, and the session latch persist.
func (m *Manager) ResetForNewMarket() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.yesShares = 0
	m.noShares = 0
	m.yesCost = decimal.Zero
	m.noCost = decimal.Zero
	m.marketTrades = 0
	m.marketCapLogged = false
}
