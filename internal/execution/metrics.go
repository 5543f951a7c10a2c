package execution

import (
	"log"
	"sort"
	"sync"
	"time"
)

// TradeMetric captures execution quality for one fill.
type TradeMetric struct {
	Latency       time.Duration
	SlippageCents float64 // (actual − expected) · 100
	ExpectedEdge  float64 // fair − expected price
	RealizedEdge  float64 // fair − actual price
	MidMovePct    float64 // exchange mid move between signal and fill
	At            time.Time
}

// DistStats summarises a sample distribution.
type DistStats struct {
	Min  float64
	Mean float64
	P50  float64
	P95  float64
	Max  float64
}

// Stats is the aggregate execution-quality summary.
type Stats struct {
	Count            int
	LatencyMs        DistStats
	SlippageCents    DistStats
	MeanExpectedEdge float64
	MeanRealizedEdge float64
	CaptureRatio     float64 // realized mean / expected mean
}

// Metrics accumulates per-fill execution quality and periodically logs a
// summary once enough records exist.
type Metrics struct {
	mu          sync.Mutex
	records     []TradeMetric
	autoLogEach time.Duration
	lastAutoLog time.Time
}

const autoLogMinRecords = 3

// NewMetrics creates a Metrics with the given auto-log interval (default
// 5 minutes when non-positive).
func NewMetrics(autoLogEach time.Duration) *Metrics {
	if autoLogEach <= 0 {
		autoLogEach = 5 * time.Minute
	}
	return &Metrics{autoLogEach: autoLogEach}
}

// Record appends one fill's metrics and auto-logs the summary when due.
func (m *Metrics) Record(tm TradeMetric) {
	if tm.At.IsZero() {
		tm.At = time.Now()
	}

	m.mu.Lock()
	m.records = append(m.records, tm)
	shouldLog := len(m.records) >= autoLogMinRecords && time.Since(m.lastAutoLog) >= m.autoLogEach
	if shouldLog {
		m.lastAutoLog = time.Now()
	}
	stats := m.statsLocked()
	m.mu.Unlock()

	if shouldLog {
		logStats(stats)
	}
}

// Stats computes the current summary.
func (m *Metrics) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *Metrics) statsLocked() Stats {
	n := len(m.records)
	if n == 0 {
		return Stats{}
	}

	latencies := make([]float64, n)
	slippages := make([]float64, n)
	var expSum, realSum float64
	for i, r := range m.records {
		latencies[i] = float64(r.Latency.Milliseconds())
		slippages[i] = r.SlippageCents
		expSum += r.ExpectedEdge
		realSum += r.RealizedEdge
	}

	s := Stats{
		Count:            n,
		LatencyMs:        dist(latencies),
		SlippageCents:    dist(slippages),
		MeanExpectedEdge: expSum / float64(n),
		MeanRealizedEdge: realSum / float64(n),
	}
	if s.MeanExpectedEdge != 0 {
		s.CaptureRatio = s.MeanRealizedEdge / s.MeanExpectedEdge
	}
	return s
}

func dist(values []float64) DistStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	return DistStats{
		Min:  sorted[0],
		Mean: sum / float64(n),
		P50:  percentile(sorted, 0.50),
		P95:  percentile(sorted, 0.95),
		Max:  sorted[n-1],
	}
}

// percentile returns the element at index floor(p·(n−1)) of an ascending
// sample, without interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func logStats(s Stats) {
	log.Printf("exec stats: n=%d latency_ms p50=%.0f p95=%.0f max=%.0f slippage_c p50=%.2f p95=%.2f edge exp=%.4f real=%.4f capture=%.2f",
		s.Count,
		s.LatencyMs.P50, s.LatencyMs.P95, s.LatencyMs.Max,
		s.SlippageCents.P50, s.SlippageCents.P95,
		s.MeanExpectedEdge, s.MeanRealizedEdge, s.CaptureRatio)
}
