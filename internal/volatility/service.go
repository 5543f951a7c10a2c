package volatility

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

const (
	// Annualised vol bounds; realized, implied, and blended values are all
	// clamped into this range.
	MinVol = 0.10
	MaxVol = 3.00

	// DefaultImplied seeds the 30-day implied before the first refresh.
	DefaultImplied = 0.50

	minutesPerYear = 525600
)

// CandleSource returns the most recent close prices at a fixed candle length.
type CandleSource interface {
	Closes(ctx context.Context, interval time.Duration, limit int) ([]float64, error)
}

// ImpliedSource returns implied volatility observations from an options venue.
type ImpliedSource interface {
	Implied30d(ctx context.Context) (float64, error)
	// ShortTermATM returns the mean implied of near-expiry at-the-money
	// instruments, or ok=false when none qualify.
	ShortTermATM(ctx context.Context, spot float64) (vol float64, ok bool, err error)
}

// State is a snapshot of the service's current vol estimates.
type State struct {
	Realized1h   float64
	Realized4h   float64
	Implied30d   float64
	ShortImplied float64
	HaveShort    bool
	LastRefresh  time.Time
}

// Service maintains a blended annualised volatility estimate, refreshed on a
// fixed interval from a candle source and an options-implied source.
type Service struct {
	mu sync.RWMutex

	candles  CandleSource
	implied  ImpliedSource
	interval time.Duration
	spot     func() (float64, bool)

	realized1h   float64
	realized4h   float64
	implied30d   float64
	shortImplied float64
	haveShort    bool
	lastRefresh  time.Time
}

// New creates a Service. spot supplies the latest exchange mid for ATM
// instrument selection; it may report ok=false before the first tick.
func New(candles CandleSource, implied ImpliedSource, refreshInterval time.Duration, spot func() (float64, bool)) *Service {
	if refreshInterval <= 0 {
		refreshInterval = 2 * time.Minute
	}
	return &Service{
		candles:    candles,
		implied:    implied,
		interval:   refreshInterval,
		spot:       spot,
		implied30d: DefaultImplied,
	}
}

// Run refreshes immediately and then on every interval tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		log.Printf("vol initial refresh: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("vol refresh: %v", err)
			}
		}
	}
}

// Refresh recomputes realized vols from the last 240 one-minute closes and
// re-fetches implied. On failure the previous values are retained.
func (s *Service) Refresh(ctx context.Context) error {
	closes, err := s.candles.Closes(ctx, time.Minute, 240)
	if err != nil {
		return err
	}

	var r1h, r4h float64
	if len(closes) >= 61 {
		r1h = Realized(closes[len(closes)-61:], 1)
	}
	if len(closes) >= 2 {
		r4h = Realized(closes, 1)
	}

	imp30 := 0.0
	if s.implied != nil {
		imp30, err = s.implied.Implied30d(ctx)
		if err != nil {
			log.Printf("vol implied fetch: %v", err)
			imp30 = 0
		}
	}

	shortImp, haveShort := 0.0, false
	if s.implied != nil {
		if spot, ok := s.spot(); ok {
			v, vok, sErr := s.implied.ShortTermATM(ctx, spot)
			if sErr != nil {
				log.Printf("vol short implied fetch: %v", sErr)
			} else if vok {
				shortImp, haveShort = v, true
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r1h > 0 {
		s.realized1h = clamp(r1h)
	}
	if r4h > 0 {
		s.realized4h = clamp(r4h)
	}
	if imp30 > 0 {
		s.implied30d = clamp(imp30)
	}
	if haveShort {
		s.shortImplied = clamp(shortImp)
		s.haveShort = true
	}
	s.lastRefresh = time.Now()
	return nil
}

// ForHorizon blends the vol estimates for a market with hMin minutes left.
// The result is clamped to [MinVol, MaxVol].
func (s *Service) ForHorizon(hMin float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	impl := s.implied30d
	if s.haveShort {
		impl = s.shortImplied
	}

	// Cold start: no realized data yet.
	if s.realized1h == 0 && s.realized4h == 0 {
		return clamp(s.implied30d)
	}

	var v float64
	switch {
	case hMin <= 30:
		v = 0.70*s.realized1h + 0.20*s.realized4h + 0.10*impl
	case hMin <= 240:
		w := hMin / 240
		v = (1-w)*s.realized4h + w*impl
	case hMin <= 1440:
		v = 0.50*s.realized4h + 0.50*impl
	default:
		v = s.implied30d
	}
	return clamp(v)
}

// Snapshot returns the current vol state.
func (s *Service) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Realized1h:   s.realized1h,
		Realized4h:   s.realized4h,
		Implied30d:   s.implied30d,
		ShortImplied: s.shortImplied,
		HaveShort:    s.haveShort,
		LastRefresh:  s.lastRefresh,
	}
}

// Realized computes the annualised close-to-close volatility of a series of
// candle closes. candleMinutes is the candle length.
func Realized(closes []float64, candleMinutes float64) float64 {
	if len(closes) < 2 || candleMinutes <= 0 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(returns)-1))

	return std * math.Sqrt(minutesPerYear/candleMinutes)
}

func clamp(v float64) float64 {
	if v < MinVol {
		return MinVol
	}
	if v > MaxVol {
		return MaxVol
	}
	return v
}
