package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/GoPolymarket/updown-arb/internal/execution"
	"github.com/GoPolymarket/updown-arb/internal/position"
	"github.com/GoPolymarket/updown-arb/internal/resolution"
	"github.com/GoPolymarket/updown-arb/internal/trader"
)

// AppState exposes the trading engine's state for the API layer.
type AppState interface {
	Status() trader.Status
	SetEmergencyStop(stop bool)
}

// PositionProvider exposes position state.
type PositionProvider interface {
	Snapshot() position.Snapshot
}

// ExecutionProvider exposes execution-quality stats.
type ExecutionProvider interface {
	Stats() execution.Stats
}

// ResolutionProvider exposes settlement stats.
type ResolutionProvider interface {
	Stats() resolution.Stats
	PendingCount() int
}

// Server is a lightweight HTTP API for operating the engine.
type Server struct {
	httpServer  *http.Server
	appState    AppState
	positions   PositionProvider
	executions  ExecutionProvider
	resolutions ResolutionProvider
	startedAt   time.Time
}

// NewServer creates a new API server bound to addr.
func NewServer(addr string, appState AppState, positions PositionProvider, executions ExecutionProvider, resolutions ResolutionProvider) *Server {
	s := &Server{
		appState:    appState,
		positions:   positions,
		executions:  executions,
		resolutions: resolutions,
		startedAt:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/position", s.handlePosition)
	mux.HandleFunc("/api/execution", s.handleExecution)
	mux.HandleFunc("/api/resolution", s.handleResolution)
	mux.HandleFunc("/api/emergency-stop", s.handleEmergencyStop)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/status — trader state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.appState.Status()
	s.writeJSON(w, map[string]interface{}{
		"mode":            st.Mode,
		"market":          st.Market,
		"has_market":      st.HasMarket,
		"strike":          st.Strike,
		"last_mid":        st.LastMid,
		"fair_up":         st.FairUp,
		"fair_down":       st.FairDown,
		"time_to_end_s":   st.TimeToEndSec,
		"order_in_flight": st.IsTrading,
		"emergency_stop":  st.EmergencyStop,
		"last_trade_at":   formatTime(st.LastTradeAt),
		"started_at":      formatTime(st.StartedAt),
	})
}

// GET /api/position — current position and session exposure.
func (s *Server) handlePosition(w http.ResponseWriter, _ *http.Request) {
	snap := s.positions.Snapshot()
	s.writeJSON(w, map[string]interface{}{
		"yes_shares":      snap.YesShares,
		"no_shares":       snap.NoShares,
		"yes_cost_usd":    snap.YesCostUSD,
		"no_cost_usd":     snap.NoCostUSD,
		"total_spent_usd": snap.TotalSpentUSD,
		"market_trades":   snap.MarketTrades,
		"session_trades":  snap.SessionTrades,
	})
}

// GET /api/execution — execution-quality summary.
func (s *Server) handleExecution(w http.ResponseWriter, _ *http.Request) {
	st := s.executions.Stats()
	s.writeJSON(w, map[string]interface{}{
		"count":              st.Count,
		"latency_ms":         distJSON(st.LatencyMs),
		"slippage_cents":     distJSON(st.SlippageCents),
		"mean_expected_edge": st.MeanExpectedEdge,
		"mean_realized_edge": st.MeanRealizedEdge,
		"capture_ratio":      st.CaptureRatio,
	})
}

// GET /api/resolution — settlement edge-capture summary.
func (s *Server) handleResolution(w http.ResponseWriter, _ *http.Request) {
	st := s.resolutions.Stats()
	s.writeJSON(w, map[string]interface{}{
		"pending_markets":           s.resolutions.PendingCount(),
		"total_trades":              st.TotalTrades,
		"total_markets":             st.TotalMarkets,
		"wins":                      st.Wins,
		"losses":                    st.Losses,
		"mean_expected_edge":        st.MeanExpectedEdge,
		"mean_realized_return":      st.MeanRealizedReturn,
		"edge_capture":              st.EdgeCapture,
		"win_mean_expected_edge":    st.WinMeanExpectedEdge,
		"win_mean_realized_return":  st.WinMeanRealizedReturn,
		"loss_mean_expected_edge":   st.LossMeanExpectedEdge,
		"loss_mean_realized_return": st.LossMeanRealizedReturn,
	})
}

// POST /api/emergency-stop {"stop": true|false}
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Stop bool `json:"stop"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.appState.SetEmergencyStop(body.Stop)
	s.writeJSON(w, map[string]interface{}{"emergency_stop": body.Stop})
}

func distJSON(d execution.DistStats) map[string]float64 {
	return map[string]float64{
		"min":  d.Min,
		"mean": d.Mean,
		"p50":  d.P50,
		"p95":  d.P95,
		"max":  d.Max,
	}
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
