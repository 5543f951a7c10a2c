package execution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

// Request is one immediate-or-cancel buy. Price is already slippage-padded
// and tick-rounded by the trader.
type Request struct {
	TokenID  string
	Side     market.Side
	Price    float64
	Size     int64
	TickSize float64
	NegRisk  bool
}

// Fill is a confirmed (or simulated) execution.
type Fill struct {
	OrderID  string
	Price    float64
	Size     int64
	FilledAt time.Time
}

// Sink places immediate-or-cancel buys. Implementations must respect the
// caller's context deadline; the trader enforces a hard 5 s budget.
type Sink interface {
	PlaceIOC(ctx context.Context, req Request) (Fill, error)
}

// Failure categories for compact error logging and counters.
const (
	FailAuthBlocked         = "auth_blocked"
	FailRateLimited         = "rate_limited"
	FailTimeout             = "timeout"
	FailInsufficientBalance = "insufficient_balance"
	FailOther               = "other"
)

// Categorize maps an execution error onto one of the failure categories.
func Categorize(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "403") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "unauthorized"):
		return FailAuthBlocked
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return FailRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return FailTimeout
	case strings.Contains(msg, "insufficient") || strings.Contains(msg, "not enough balance"):
		return FailInsufficientBalance
	default:
		return FailOther
	}
}
