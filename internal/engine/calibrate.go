package engine

import "math"

// Calibrate maps a raw outlier score to a bounded anomaly probability and a
// confidence value.
//
// Raw scores follow the isolation-forest convention (lower = more anomalous),
// so the sigmoid is taken over the raw score directly: probability approaches
// 1 as the raw score grows more negative. Confidence is the distance from
// the 0.5 midpoint rescaled to [0,1] — a calibration artifact, not a
// statistical confidence interval.
func Calibrate(rawScore float64) (probability, confidence float64) {
	probability = 1 / (1 + math.Exp(rawScore))
	confidence = clamp(math.Abs(probability-0.5)*2, 0, 1)
	return probability, confidence
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
