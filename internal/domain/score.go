package domain

import "math"

// Score bounds shared by every emitted dimension score.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// ClampScore bounds v to [0,100] and rounds it to one decimal. NaN maps to 0.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return RoundTo(math.Max(MinScore, math.Min(MaxScore, v)), 1)
}
