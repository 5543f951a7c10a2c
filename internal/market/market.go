package market

import "time"

// Market identifies one 15-minute up/down market and its two outcome tokens.
// The strike is unknown until StartTime; the strike service owns fetching it.
type Market struct {
	ConditionID      string
	UpTokenID        string
	DownTokenID      string
	StartTime        time.Time
	EndTime          time.Time
	TickSize         float64
	NegRisk          bool
	SettlementSource string
}

// IsBinary reports whether both outcome tokens are present and distinct.
func (m Market) IsBinary() bool {
	return m.UpTokenID != "" && m.DownTokenID != "" && m.UpTokenID != m.DownTokenID
}

// Side is an outcome side of a binary market.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// MidTick is one bid/ask observation from the reference exchange.
// Mid is the only field consumed by the pricing path.
type MidTick struct {
	Bid       float64
	Ask       float64
	Mid       float64
	Timestamp time.Time
}

// BookSnapshot is a top-of-book view across both outcome tokens. Snapshots
// are immutable once published; handlers replace the reference on update.
type BookSnapshot struct {
	YesBid     float64
	YesAsk     float64
	YesAskSize float64
	NoBid      float64
	NoAsk      float64
	NoAskSize  float64
	Timestamp  time.Time
}

// Valid reports whether the snapshot satisfies the basic book invariants.
func (b BookSnapshot) Valid() bool {
	if b.YesBid < 0 || b.YesAsk > 1 || b.YesBid > b.YesAsk {
		return false
	}
	if b.NoBid < 0 || b.NoAsk > 1 || b.NoBid > b.NoAsk {
		return false
	}
	return b.YesAskSize >= 0 && b.NoAskSize >= 0
}

// Fresh reports whether the snapshot is younger than maxAge at now.
func (b BookSnapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	return !b.Timestamp.IsZero() && now.Sub(b.Timestamp) <= maxAge
}
