package pricing

import "math"

const (
	secondsPerYear = 365 * 24 * 3600

	// smileFactor bumps effective vol quadratically in moneyness; the bump
	// is capped so deep wings never exceed 1.40x the input vol.
	smileFactor = 0.08
	smileCap    = 1.40

	// Beyond |d| = tailKnee the tail is compressed by tailDivisor. The model
	// otherwise assigns near-certain probabilities too eagerly on a
	// 15-minute horizon.
	tailKnee    = 1.5
	tailDivisor = 1.15

	degenerateEps = 1e-10
)

// Result holds the fair probabilities for one evaluation.
type Result struct {
	PUp          float64
	PDown        float64
	D            float64
	SigmaSqrtTau float64
}

// Fair prices the UP outcome of a binary market under a driftless lognormal
// with an optional vol smile and tail compression. S is the adjusted spot,
// K the strike, tauSeconds the remaining lifetime, sigma the annualised vol.
func Fair(s, k, tauSeconds, sigma float64, applyAdjustments bool) Result {
	tau := tauSeconds / secondsPerYear
	sigmaT := sigma * math.Sqrt(tau)
	if sigmaT < degenerateEps {
		if s >= k {
			return Result{PUp: 1, PDown: 0}
		}
		return Result{PUp: 0, PDown: 1}
	}

	sigmaEff := sigma
	if applyAdjustments {
		m := math.Abs(math.Log(s/k)) / sigmaT
		sigmaEff = sigma * math.Min(1+smileFactor*m*m, smileCap)
		sigmaT = sigmaEff * math.Sqrt(tau)
	}

	d := (math.Log(s/k) + (-sigmaEff * sigmaEff / 2 * tau)) / sigmaT

	if applyAdjustments && math.Abs(d) > tailKnee {
		sign := 1.0
		if d < 0 {
			sign = -1.0
		}
		d = sign * (tailKnee + (math.Abs(d)-tailKnee)/tailDivisor)
	}

	pUp := normCDF(d)
	return Result{PUp: pUp, PDown: 1 - pUp, D: d, SigmaSqrtTau: sigmaT}
}

// Edge is the modelled probability minus the quoted ask on the same side.
func Edge(p, marketAsk float64) float64 {
	return p - marketAsk
}

// normCDF is the standard normal CDF via the Abramowitz–Stegun 7.1.26
// rational approximation of erf (max error ~1.5e-7).
func normCDF(x float64) float64 {
	return 0.5 * (1 + erfAS(x/math.Sqrt2))
}

func erfAS(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}

	const (
		p  = 0.3275911
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
	)

	t := 1 / (1 + p*x)
	y := 1 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}
