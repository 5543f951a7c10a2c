package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/market"
)

func TestPriceAtOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price-at-open" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("condition_id") != "cond-1" {
			http.Error(w, "bad condition", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"price": 99500.0, "timestamp": 1700000000})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	m := market.Market{ConditionID: "cond-1", StartTime: time.Unix(1700000000, 0)}
	price, at, err := c.PriceAtOpen(context.Background(), m)
	if err != nil {
		t.Fatalf("price at open: %v", err)
	}
	if price != 99500 {
		t.Fatalf("price = %f, want 99500", price)
	}
	if at.Unix() != 1700000000 {
		t.Fatalf("timestamp = %d", at.Unix())
	}
}

func TestPriceAtOpenMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"price": 0})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if _, _, err := c.PriceAtOpen(context.Background(), market.Market{ConditionID: "cond-1"}); err == nil {
		t.Fatal("zero price must error")
	}
}

func TestActiveMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"condition_id": "cond-1",
			"up_token_id":  "tok-up",
			"down_token_id": "tok-down",
			"start_time":   1700000000,
			"end_time":     1700000900,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	m, err := c.ActiveMarket(context.Background(), "btc-updown-15m")
	if err != nil {
		t.Fatalf("active market: %v", err)
	}
	if m.ConditionID != "cond-1" || !m.IsBinary() {
		t.Fatalf("market = %+v", m)
	}
	if m.TickSize != 0.01 {
		t.Fatalf("tick size default = %f, want 0.01", m.TickSize)
	}
	if !m.EndTime.After(m.StartTime) {
		t.Fatal("end must follow start")
	}
}

func TestActiveMarketRejectsNonBinary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"condition_id": "cond-1",
			"up_token_id":  "tok",
			"down_token_id": "tok",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if _, err := c.ActiveMarket(context.Background(), "s"); err == nil {
		t.Fatal("identical tokens must error")
	}
}

func TestOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/resolved-up":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"resolved": true, "outcome": "UP"})
		case "/markets/pending":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"resolved": false})
		case "/markets/weird":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"resolved": true, "outcome": "MAYBE"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	out, err := c.Outcome(context.Background(), "resolved-up")
	if err != nil || out != "UP" {
		t.Fatalf("outcome = %q, %v", out, err)
	}
	out, err = c.Outcome(context.Background(), "pending")
	if err != nil || out != "" {
		t.Fatalf("pending outcome = %q, %v", out, err)
	}
	if _, err = c.Outcome(context.Background(), "weird"); err == nil {
		t.Fatal("unknown outcome must error")
	}
	if _, err = c.Outcome(context.Background(), "missing"); err == nil {
		t.Fatal("http error must propagate")
	}
}
