package causal

import "math"

// DistanceScore maps a line or center distance to (0,1] with a Hill-type
// decay: 1.0 at zero distance, exactly 0.5 at d == tau, approaching zero
// beyond.
// Steepness shapes the shoulder; higher values make the cutoff sharper.
// Non-positive distances score 1.0; ordered pairing excludes them upstream,
// and absorption legitimately sees distance zero when a singleton sits on a
// link's center.
func DistanceScore(d, tau, steepness float64) float64 {
	if d <= 0 {
		return 1.0
	}
	return 1.0 / (1.0 + math.Pow(d/tau, steepness))
}

// bridgeStrength combines temporal proximity with lexical amplification:
// decay * (1 + betaLex*lexical). Shared vocabulary can boost a pairing but
// never create one on its own: at zero decay the product stays zero.
func bridgeStrength(d, lexical, tau, steepness, betaLex float64) float64 {
	return DistanceScore(d, tau, steepness) * (1.0 + betaLex*lexical)
}
