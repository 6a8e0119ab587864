// Package signals provides technical indicator calculations
package signals

import (
	"errors"
	"math"

	"github.com/bobmcallan/sift/internal/models"
)

// ErrInsufficientData is returned when a series is shorter than the
// indicator's required window.
var ErrInsufficientData = errors.New("insufficient data for indicator window")

// MovingAverage calculates the simple moving average of the last n closes.
// Points must be sorted ascending by date.
func MovingAverage(points []models.PricePoint, n int) (float64, error) {
	if n <= 0 || len(points) < n {
		return 0, ErrInsufficientData
	}

	sum := 0.0
	for _, p := range points[len(points)-n:] {
		sum += p.Close
	}
	return sum / float64(n), nil
}

// AverageTrueRange calculates the mean true range over the last n periods.
// Needs n+1 points: the first true range requires a previous close.
func AverageTrueRange(points []models.PricePoint, n int) (float64, error) {
	if n <= 0 || len(points) < n+1 {
		return 0, ErrInsufficientData
	}

	window := points[len(points)-n-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		prevClose := window[i-1].Close
		tr1 := window[i].High - window[i].Low
		tr2 := math.Abs(window[i].High - prevClose)
		tr3 := math.Abs(window[i].Low - prevClose)
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(n), nil
}

// LinearSlope calculates the least-squares slope of a price series
// normalized as percent change from the first close against index
// position, in percent per period. Needs at least 3 points.
func LinearSlope(points []models.PricePoint) (float64, bool) {
	if len(points) < 3 {
		return 0, false
	}

	first := points[0].Close
	if first == 0 {
		return 0, false
	}

	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		y := (p.Close - first) / first * 100
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (n*sumXY - sumX*sumY) / denom, true
}

// Deviation calculates how far price sits from its trailing average, in
// volatility units: (price - sma) / atr. A flat-volatility instrument
// (atr == 0) has no meaningful deviation and is reported as not-ok.
func Deviation(price, sma, atr float64) (float64, bool) {
	if atr == 0 {
		return 0, false
	}
	return (price - sma) / atr, true
}
