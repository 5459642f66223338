package strategy

// RSI returns the relative strength index of prices over the last period
// deltas using simple averages. Fewer than period+1 points yields the
// neutral 50; a window with no losses yields 100.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50
	}
	var gain, loss float64
	for i := len(prices) - period; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
