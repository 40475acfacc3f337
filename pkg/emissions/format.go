package emissions

import "math"

// Round2 rounds to two decimals for display (kg, km, currency)
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to four decimals for display (credits)
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
