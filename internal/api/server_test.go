package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/GoPolymarket/updown-arb/internal/execution"
	"github.com/GoPolymarket/updown-arb/internal/position"
	"github.com/GoPolymarket/updown-arb/internal/resolution"
	"github.com/GoPolymarket/updown-arb/internal/trader"
)

type fakeApp struct {
	status  trader.Status
	stopped bool
}

func (f *fakeApp) Status() trader.Status      { return f.status }
func (f *fakeApp) SetEmergencyStop(stop bool) { f.stopped = stop }

type fakePositions struct{ snap position.Snapshot }

func (f fakePositions) Snapshot() position.Snapshot { return f.snap }

type fakeExecutions struct{ stats execution.Stats }

func (f fakeExecutions) Stats() execution.Stats { return f.stats }

type fakeResolutions struct {
	stats   resolution.Stats
	pending int
}

func (f fakeResolutions) Stats() resolution.Stats { return f.stats }
func (f fakeResolutions) PendingCount() int       { return f.pending }

func newTestServer() (*Server, *fakeApp) {
	app := &fakeApp{status: trader.Status{Mode: "paper", Market: "cond-1", HasMarket: true, Strike: 99500}}
	srv := NewServer(":0", app,
		fakePositions{snap: position.Snapshot{YesShares: 5, TotalSpentUSD: 2.05}},
		fakeExecutions{stats: execution.Stats{Count: 3, CaptureRatio: 0.8}},
		fakeResolutions{stats: resolution.Stats{TotalTrades: 4, Wins: 3, Losses: 1}, pending: 2},
	)
	return srv, app
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))

	if rec.Code != 200 {
		t.Fatalf("status code %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["mode"] != "paper" || body["market"] != "cond-1" {
		t.Fatalf("unexpected status body: %v", body)
	}
	if body["strike"].(float64) != 99500 {
		t.Fatalf("strike = %v", body["strike"])
	}
}

func TestPositionEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/position", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["yes_shares"].(float64) != 5 {
		t.Fatalf("yes_shares = %v", body["yes_shares"])
	}
}

func TestResolutionEndpoint(t *testing.T) {
	srv, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/resolution", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["total_trades"].(float64) != 4 || body["pending_markets"].(float64) != 2 {
		t.Fatalf("unexpected resolution body: %v", body)
	}
}

func TestEmergencyStopEndpoint(t *testing.T) {
	srv, app := newTestServer()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/emergency-stop", bytes.NewBufferString(`{"stop": true}`))
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status code %d", rec.Code)
	}
	if !app.stopped {
		t.Fatal("emergency stop not applied")
	}

	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/emergency-stop", nil))
	if rec.Code != 405 {
		t.Fatalf("GET should be rejected, got %d", rec.Code)
	}
}
