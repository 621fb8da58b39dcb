package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA returns the simple moving average of the last length closes,
// or nil if there are fewer than length values.
func CalculateSMA(closes []float64, length int) *float64 {
	if length < 2 || len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}
	return nil
}
