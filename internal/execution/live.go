package execution

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
)

// CLOBSink submits fill-and-kill buys through the venue's CLOB.
type CLOBSink struct {
	client clob.Client
	signer auth.Signer
}

// NewCLOBSink creates a live execution sink.
func NewCLOBSink(client clob.Client, signer auth.Signer) *CLOBSink {
	return &CLOBSink{client: client, signer: signer}
}

// PlaceIOC builds, signs, and submits a FAK limit buy. Any unfilled
// remainder is cancelled by the venue; a zero-match response is an error so
// the caller never mutates position state on an empty fill.
func (s *CLOBSink) PlaceIOC(ctx context.Context, req Request) (Fill, error) {
	amountUSDC := req.Price * float64(req.Size)

	builder := clob.NewOrderBuilder(s.client, s.signer).
		TokenID(req.TokenID).
		Side("BUY").
		Price(req.Price).
		AmountUSDC(amountUSDC).
		OrderType(clobtypes.OrderTypeFAK)

	signable, err := builder.BuildSignableWithContext(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("build ioc %s: %w", req.TokenID, err)
	}

	resp, err := s.client.CreateOrderFromSignable(ctx, signable)
	if err != nil {
		return Fill{}, fmt.Errorf("place ioc %s: %w", req.TokenID, err)
	}

	matched, _ := strconv.ParseFloat(resp.SizeMatched, 64)
	if matched <= 0 {
		return Fill{}, fmt.Errorf("ioc %s: no fill (status %s)", req.TokenID, resp.Status)
	}

	fillPrice := req.Price
	if p, pErr := strconv.ParseFloat(resp.Price, 64); pErr == nil && p > 0 {
		fillPrice = p
	}
	size := int64(matched)
	if size > req.Size {
		size = req.Size
	}

	log.Printf("ioc fill %s %s: %d @ %.2f id=%s", req.Side, req.TokenID, size, fillPrice, resp.ID)
	return Fill{
		OrderID:  resp.ID,
		Price:    fillPrice,
		Size:     size,
		FilledAt: time.Now(),
	}, nil
}
