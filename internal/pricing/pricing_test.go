package pricing

import (
	"math"
	"testing"
)

func TestFairProbabilityBounds(t *testing.T) {
	cases := []struct {
		s, k, tau, sigma float64
	}{
		{100000, 99500, 300, 0.60},
		{99500, 100000, 300, 0.60},
		{100000, 100000, 900, 0.20},
		{50000, 120000, 60, 3.00},
		{120000, 50000, 60, 0.10},
	}
	for _, c := range cases {
		r := Fair(c.s, c.k, c.tau, c.sigma, true)
		if r.PUp < 0 || r.PUp > 1 {
			t.Fatalf("p_up out of bounds for %+v: %f", c, r.PUp)
		}
		if math.Abs(r.PUp+r.PDown-1) > 1e-12 {
			t.Fatalf("p_up+p_down != 1 for %+v: %f", c, r.PUp+r.PDown)
		}
	}
}

func TestFairDegenerate(t *testing.T) {
	r := Fair(100000, 99500, 0, 0.60, true)
	if r.PUp != 1 || r.PDown != 0 {
		t.Fatalf("expected degenerate 1/0 above strike, got %f/%f", r.PUp, r.PDown)
	}
	r = Fair(99000, 99500, 0, 0.60, true)
	if r.PUp != 0 || r.PDown != 1 {
		t.Fatalf("expected degenerate 0/1 below strike, got %f/%f", r.PUp, r.PDown)
	}
	// Equality counts as above.
	r = Fair(99500, 99500, 1e-9, 1e-9, true)
	if r.PUp != 1 {
		t.Fatalf("expected p_up=1 at strike, got %f", r.PUp)
	}
}

func TestFairAboveStrikeFavorsUp(t *testing.T) {
	r := Fair(100000, 99500, 300, 0.60, true)
	if r.PUp <= 0.5 {
		t.Fatalf("spot above strike should favor UP, got p_up=%f", r.PUp)
	}
	down := Fair(99000, 99500, 300, 0.60, true)
	if down.PUp >= 0.5 {
		t.Fatalf("spot below strike should favor DOWN, got p_up=%f", down.PUp)
	}
}

func TestTailCompressionSoftensExtremes(t *testing.T) {
	raw := Fair(100000, 99500, 300, 0.60, false)
	adjusted := Fair(100000, 99500, 300, 0.60, true)
	if raw.PUp <= adjusted.PUp {
		t.Fatalf("adjustments should soften a deep ITM probability: raw=%f adjusted=%f", raw.PUp, adjusted.PUp)
	}
	if adjusted.PUp <= 0.5 {
		t.Fatalf("compression must not flip the side: %f", adjusted.PUp)
	}
}

func TestSmileCapsAt40Percent(t *testing.T) {
	// Deep OTM: moneyness drives the smile into its cap, so the effective
	// vol is exactly 1.4x and sigma*sqrt(tau) reflects it.
	r := Fair(90000, 100000, 60, 0.20, true)
	tau := 60.0 / secondsPerYear
	maxSigmaT := 0.20 * smileCap * math.Sqrt(tau)
	if r.SigmaSqrtTau > maxSigmaT+1e-15 {
		t.Fatalf("sigma*sqrt(tau) exceeds smile cap: %g > %g", r.SigmaSqrtTau, maxSigmaT)
	}
	if math.Abs(r.SigmaSqrtTau-maxSigmaT) > 1e-12 {
		t.Fatalf("deep OTM should pin the smile cap: %g vs %g", r.SigmaSqrtTau, maxSigmaT)
	}
}

func TestNormCDFAccuracy(t *testing.T) {
	// Reference values of the standard normal CDF.
	cases := []struct {
		x, want float64
	}{
		{0, 0.5},
		{1, 0.8413447460685429},
		{-1, 0.15865525393145707},
		{1.96, 0.9750021048517795},
		{-2.5758, 0.004999934340277472},
		{3, 0.9986501019683699},
	}
	for _, c := range cases {
		got := normCDF(c.x)
		if math.Abs(got-c.want) > 1e-6 {
			t.Fatalf("normCDF(%f) = %.10f, want %.10f", c.x, got, c.want)
		}
	}
}

func TestEdge(t *testing.T) {
	if e := Edge(0.55, 0.42); math.Abs(e-0.13) > 1e-12 {
		t.Fatalf("edge = %f, want 0.13", e)
	}
	if e := Edge(0.40, 0.60); e >= 0 {
		t.Fatalf("expected negative edge, got %f", e)
	}
}
