package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperSink simulates executions: every request fills completely at the
// requested price. Partial fills are deliberately not modelled.
type PaperSink struct {
	mu     sync.Mutex
	fills  int
	volume float64
}

// NewPaperSink creates a paper execution sink.
func NewPaperSink() *PaperSink {
	return &PaperSink{}
}

// PlaceIOC synthesises a full fill at req.Price.
func (s *PaperSink) PlaceIOC(_ context.Context, req Request) (Fill, error) {
	s.mu.Lock()
	s.fills++
	s.volume += req.Price * float64(req.Size)
	s.mu.Unlock()

	return Fill{
		OrderID:  "paper-" + uuid.NewString(),
		Price:    req.Price,
		Size:     req.Size,
		FilledAt: time.Now(),
	}, nil
}

// Totals returns the simulated fill count and USD volume.
func (s *PaperSink) Totals() (fills int, volumeUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills, s.volume
}
