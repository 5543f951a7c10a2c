package volatility

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultDeribitBase = "https://www.deribit.com/api/v2"

// Deribit fetches implied volatility from Deribit's public API: the 30-day
// DVOL index, plus short-dated ATM option marks for the near-expiry implied.
type Deribit struct {
	client   *http.Client
	baseURL  string
	currency string // "BTC" or "ETH"
}

// NewDeribit creates an implied-vol source for the given currency.
func NewDeribit(currency string) *Deribit {
	return &Deribit{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultDeribitBase,
		currency: strings.ToUpper(currency),
	}
}

type deribitIndexResponse struct {
	Result struct {
		IndexPrice float64 `json:"index_price"`
	} `json:"result"`
}

type deribitInstrument struct {
	InstrumentName      string  `json:"instrument_name"`
	Strike              float64 `json:"strike"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"`
	Kind                string  `json:"kind"`
}

type deribitInstrumentsResponse struct {
	Result []deribitInstrument `json:"result"`
}

type deribitTickerResponse struct {
	Result struct {
		InstrumentName string  `json:"instrument_name"`
		MarkIV         float64 `json:"mark_iv"`
	} `json:"result"`
}

// Implied30d returns the DVOL index as an annualised fraction.
func (d *Deribit) Implied30d(ctx context.Context) (float64, error) {
	index := strings.ToLower(d.currency) + "dvol_usdc"
	var resp deribitIndexResponse
	if err := d.get(ctx, "/public/get_index_price?index_name="+index, &resp); err != nil {
		return 0, err
	}
	if resp.Result.IndexPrice <= 0 {
		return 0, fmt.Errorf("deribit dvol: empty index for %s", d.currency)
	}
	// DVOL is quoted in vol points (e.g. 55 for 55%).
	return resp.Result.IndexPrice / 100, nil
}

// ShortTermATM averages the mark IV of up to four options expiring in 1–3
// days with strikes within 2% of spot. ok is false when none qualify.
func (d *Deribit) ShortTermATM(ctx context.Context, spot float64) (float64, bool, error) {
	if spot <= 0 {
		return 0, false, nil
	}

	var instruments deribitInstrumentsResponse
	path := fmt.Sprintf("/public/get_instruments?currency=%s&kind=option&expired=false", d.currency)
	if err := d.get(ctx, path, &instruments); err != nil {
		return 0, false, err
	}

	now := time.Now()
	var atm []deribitInstrument
	for _, in := range instruments.Result {
		expiry := time.UnixMilli(in.ExpirationTimestamp)
		ttl := expiry.Sub(now)
		if ttl < 24*time.Hour || ttl > 72*time.Hour {
			continue
		}
		if math.Abs(in.Strike-spot)/spot > 0.02 {
			continue
		}
		atm = append(atm, in)
	}
	if len(atm) == 0 {
		return 0, false, nil
	}

	sort.Slice(atm, func(i, j int) bool {
		return math.Abs(atm[i].Strike-spot) < math.Abs(atm[j].Strike-spot)
	})
	if len(atm) > 4 {
		atm = atm[:4]
	}

	var sum float64
	var n int
	for _, in := range atm {
		var ticker deribitTickerResponse
		if err := d.get(ctx, "/public/ticker?instrument_name="+in.InstrumentName, &ticker); err != nil {
			continue
		}
		if ticker.Result.MarkIV > 0 {
			sum += ticker.Result.MarkIV / 100
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

func (d *Deribit) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("deribit: build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deribit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deribit: status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("deribit: decode: %w", err)
	}
	return nil
}
