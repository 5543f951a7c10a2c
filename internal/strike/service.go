package strike

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

// VenueSource fetches the price the venue recorded at market open.
type VenueSource interface {
	PriceAtOpen(ctx context.Context, m market.Market) (price float64, at time.Time, err error)
}

// OracleSource returns the settlement oracle's latest round.
type OracleSource interface {
	CurrentPrice(ctx context.Context) (price float64, at time.Time, err error)
}

// Service latches the strike for the active market. Preference order is
// manual > venue > oracle, and once a non-zero strike is set it never
// changes until Reset.
type Service struct {
	mu sync.Mutex

	venue  VenueSource
	oracle OracleSource

	strike   float64
	source   string
	fetching bool
}

// New creates a Service. Either source may be nil.
func New(venue VenueSource, oracle OracleSource) *Service {
	return &Service{venue: venue, oracle: oracle}
}

// HasStrike reports whether a strike is latched.
func (s *Service) HasStrike() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strike > 0
}

// Strike returns the latched strike, or 0 when unset.
func (s *Service) Strike() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strike
}

// Source names where the current strike came from: "manual", "venue",
// "oracle", or "" when unset.
func (s *Service) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SetManual latches an operator-provided strike. It wins over any later
// fetch but never overwrites an already-latched strike.
func (s *Service) SetManual(p float64) {
	if p <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strike > 0 {
		return
	}
	s.strike = p
	s.source = "manual"
	log.Printf("strike: manual %.2f", p)
}

// FetchAndSet resolves the strike from the venue, falling back to the
// oracle. It is a no-op once a strike is latched, and at most one fetch
// runs at a time; concurrent callers return immediately.
func (s *Service) FetchAndSet(ctx context.Context, m market.Market) {
	s.mu.Lock()
	if s.strike > 0 || s.fetching {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetching = false
		s.mu.Unlock()
	}()

	if s.venue != nil {
		price, at, err := s.venue.PriceAtOpen(ctx, m)
		if err == nil && price > 0 {
			s.latch(price, "venue", at)
			return
		}
		if err != nil {
			log.Printf("strike: venue fetch %s: %v", m.ConditionID, err)
		}
	}

	if s.oracle != nil {
		price, at, err := s.oracle.CurrentPrice(ctx)
		if err == nil && price > 0 {
			s.latch(price, "oracle", at)
			return
		}
		if err != nil {
			log.Printf("strike: oracle fetch %s: %v", m.ConditionID, err)
		}
	}
}

func (s *Service) latch(price float64, source string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strike > 0 {
		return
	}
	s.strike = price
	s.source = source
	log.Printf("strike: %.2f from %s (observed %s)", price, source, at.Format(time.RFC3339))
}

// Reset clears the latch for a market switch.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strike = 0
	s.source = ""
}
