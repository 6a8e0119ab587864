package signals

import (
	"math"

	"github.com/bobmcallan/sift/internal/models"
)

const (
	// patternMinPoints is roughly one trading year; shorter series score 0/D.
	patternMinPoints = 252

	patternSMAWindow = 20
	patternATRWindow = 14

	// pullbackThreshold marks a fresh pullback: deviation crossing down
	// through -1.5 volatility units.
	pullbackThreshold = -1.5

	// recoveryWindowDays is how long a pullback has to climb back to its
	// average. Independent from other reversion windows in the codebase.
	recoveryWindowDays = 60

	// volSampleInterval spaces the ATR%-of-price samples for the
	// volatility stability factor.
	volSampleInterval = 20
)

// ScorePattern computes the composite 0-100 pattern score over an ascending
// price series: trend consistency (25), pullback recovery (25), volatility
// stability (20), mean-reversion quality (20), uptrend strength (10).
func ScorePattern(points []models.PricePoint) *models.PatternScore {
	if len(points) < patternMinPoints {
		return &models.PatternScore{Grade: "D"}
	}

	trend := trendConsistencyScore(points)
	recovery, reversion := pullbackScores(points)
	volatility := volatilityStabilityScore(points)
	uptrend := uptrendScore(points)

	total := math.Round((trend+recovery+volatility+reversion+uptrend)*10) / 10

	return &models.PatternScore{
		Total:      total,
		Grade:      patternGrade(total),
		Trend:      trend,
		Recovery:   recovery,
		Volatility: volatility,
		Reversion:  reversion,
		Uptrend:    uptrend,
	}
}

func patternGrade(total float64) string {
	switch {
	case total >= 75:
		return "A"
	case total >= 60:
		return "B"
	case total >= 45:
		return "C"
	default:
		return "D"
	}
}

// trendConsistencyScore awards up to 25 points for the fraction of days the
// close held above its trailing moving average, across three window sizes.
func trendConsistencyScore(points []models.PricePoint) float64 {
	score := 0.0
	for _, window := range []int{20, 60, 120} {
		above, total := 0, 0
		for i := window - 1; i < len(points); i++ {
			sma, err := MovingAverage(points[:i+1], window)
			if err != nil {
				continue
			}
			total++
			if points[i].Close > sma {
				above++
			}
		}
		if total == 0 {
			continue
		}
		frac := float64(above) / float64(total)
		switch {
		case frac > 0.6:
			score += 8.33
		case frac > 0.5:
			score += 5
		default:
			score += 2
		}
	}
	return math.Min(score, 25)
}

type deviationPoint struct {
	value float64
	ok    bool
}

// deviationSeries computes per-day deviation using a rolling 20-day SMA and
// 14-day ATR. Days without a full window, or with zero ATR, are not-ok.
func deviationSeries(points []models.PricePoint) []deviationPoint {
	devs := make([]deviationPoint, len(points))
	for i := range points {
		sma, err := MovingAverage(points[:i+1], patternSMAWindow)
		if err != nil {
			continue
		}
		atr, err := AverageTrueRange(points[:i+1], patternATRWindow)
		if err != nil {
			continue
		}
		d, ok := Deviation(points[i].Close, sma, atr)
		if !ok {
			continue
		}
		devs[i] = deviationPoint{value: d, ok: true}
	}
	return devs
}

// pullbackScores computes the pullback-recovery factor (max 25) and the
// mean-reversion quality factor (max 20) in one pass. A pullback signal is
// a crossing from deviation > -1.5 to <= -1.5; a recovery is deviation >= 0
// within the next recoveryWindowDays trading days.
func pullbackScores(points []models.PricePoint) (recovery, reversion float64) {
	devs := deviationSeries(points)

	attempts, successes := 0, 0
	totalDays := 0

	for i := 1; i < len(devs); i++ {
		if !devs[i].ok || !devs[i-1].ok {
			continue
		}
		if devs[i-1].value > pullbackThreshold && devs[i].value <= pullbackThreshold {
			attempts++
			for j := i + 1; j <= i+recoveryWindowDays && j < len(devs); j++ {
				if devs[j].ok && devs[j].value >= 0 {
					successes++
					totalDays += j - i
					break
				}
			}
		}
	}

	rate := 0.0
	if attempts > 0 {
		rate = float64(successes) / float64(attempts)
	}
	recovery = rate * 25

	// No recorded recoveries defaults the average to a slow 30 days.
	avgDays := 30.0
	if successes > 0 {
		avgDays = float64(totalDays) / float64(successes)
	}
	switch {
	case avgDays < 10:
		reversion = 20
	case avgDays < 15:
		reversion = 15
	case avgDays < 25:
		reversion = 10
	default:
		reversion = 5
	}

	return recovery, reversion
}

// volatilityStabilityScore samples ATR as a percent of price every
// volSampleInterval days and scores the coefficient of variation of the
// samples: steadier volatility scores higher. Max 20.
func volatilityStabilityScore(points []models.PricePoint) float64 {
	var samples []float64
	for i := patternATRWindow; i < len(points); i += volSampleInterval {
		atr, err := AverageTrueRange(points[:i+1], patternATRWindow)
		if err != nil || points[i].Close == 0 {
			continue
		}
		samples = append(samples, atr/points[i].Close*100)
	}

	if len(samples) < 2 {
		return 5
	}

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	if mean == 0 {
		return 5
	}

	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))

	cv := math.Sqrt(variance) / mean
	switch {
	case cv < 0.3:
		return 20
	case cv < 0.5:
		return 15
	case cv < 0.7:
		return 10
	default:
		return 5
	}
}

// uptrendScore awards up to 10 points for the 252-trading-day trailing return.
func uptrendScore(points []models.PricePoint) float64 {
	base := points[len(points)-patternMinPoints].Close
	if base <= 0 {
		return 0
	}
	ret := (points[len(points)-1].Close/base - 1) * 100
	switch {
	case ret > 30:
		return 10
	case ret > 15:
		return 7
	case ret > 0:
		return 4
	default:
		return 0
	}
}
