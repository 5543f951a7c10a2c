package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

// Client talks to the venue's auxiliary HTTP endpoints: the price-at-open
// lookup used for strikes, market listing, and settlement outcomes. Order
// placement goes through the CLOB SDK, not through this client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type priceAtOpenResponse struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// PriceAtOpen returns the reference price the venue captured at the
// market's start time.
func (c *Client) PriceAtOpen(ctx context.Context, m market.Market) (float64, time.Time, error) {
	q := url.Values{
		"condition_id": {m.ConditionID},
		"ts":           {strconv.FormatInt(m.StartTime.Unix(), 10)},
	}
	var resp priceAtOpenResponse
	if err := c.get(ctx, "/price-at-open?"+q.Encode(), &resp); err != nil {
		return 0, time.Time{}, err
	}
	if resp.Price <= 0 {
		return 0, time.Time{}, fmt.Errorf("venue: no open price for %s", m.ConditionID)
	}
	return resp.Price, time.Unix(resp.Timestamp, 0), nil
}

type marketResponse struct {
	ConditionID string  `json:"condition_id"`
	UpTokenID   string  `json:"up_token_id"`
	DownTokenID string  `json:"down_token_id"`
	StartTime   int64   `json:"start_time"`
	EndTime     int64   `json:"end_time"`
	TickSize    float64 `json:"tick_size"`
	NegRisk     bool    `json:"neg_risk"`
	Source      string  `json:"settlement_source"`
	Outcome     string  `json:"outcome"`
	Resolved    bool    `json:"resolved"`
}

// ActiveMarket returns the currently trading 15-minute market for the
// configured series.
func (c *Client) ActiveMarket(ctx context.Context, series string) (market.Market, error) {
	q := url.Values{"series": {series}}
	var resp marketResponse
	if err := c.get(ctx, "/markets/active?"+q.Encode(), &resp); err != nil {
		return market.Market{}, err
	}
	m := market.Market{
		ConditionID:      resp.ConditionID,
		UpTokenID:        resp.UpTokenID,
		DownTokenID:      resp.DownTokenID,
		StartTime:        time.Unix(resp.StartTime, 0),
		EndTime:          time.Unix(resp.EndTime, 0),
		TickSize:         resp.TickSize,
		NegRisk:          resp.NegRisk,
		SettlementSource: resp.Source,
	}
	if m.TickSize <= 0 {
		m.TickSize = 0.01
	}
	if !m.IsBinary() {
		return market.Market{}, fmt.Errorf("venue: market %s is not binary", resp.ConditionID)
	}
	return m, nil
}

// Outcome returns "UP", "DOWN", or "" while the market is unresolved.
func (c *Client) Outcome(ctx context.Context, conditionID string) (string, error) {
	var resp marketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(conditionID), &resp); err != nil {
		return "", err
	}
	if !resp.Resolved {
		return "", nil
	}
	switch resp.Outcome {
	case "UP", "DOWN":
		return resp.Outcome, nil
	default:
		return "", fmt.Errorf("venue: unknown outcome %q for %s", resp.Outcome, conditionID)
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("venue: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("venue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("venue: status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("venue: decode: %w", err)
	}
	return nil
}
