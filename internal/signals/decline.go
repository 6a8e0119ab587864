package signals

import (
	"math"

	"github.com/bobmcallan/sift/internal/models"
)

const (
	// MaxDropPercent bounds the decline filter: anything deeper is a
	// broken-down chart, not a candidate. Outside [0, MaxDropPercent]
	// means "no decline detected", never an error.
	MaxDropPercent = 35.0

	// maxBounceRatio is the strict rejection threshold for a relief rally:
	// a single bounce recovering more than this fraction of the drop so
	// far ends the "continuous" shape. Exactly 40% is still accepted.
	maxBounceRatio = 0.4

	// slopeWindow is the lookback for benchmark slope comparison.
	slopeWindow = 7

	// Conjunction thresholds for slope rejection: a candidate is dropped
	// only when BOTH hold. Keep this a conjunction: a large absolute
	// difference against a steep benchmark is tolerated when the ratio
	// stays small.
	maxSlopeRatio = 0.5
	maxSlopeDiff  = 0.3
)

// DetectDecline scans an ascending price series for a continuous decline
// from its peak. Returns nil when the shape is absent: no data, drop
// outside [0, MaxDropPercent], or any relief rally retracing more than
// maxBounceRatio of the drop so far. Small pullbacks during the decline
// are tolerated; a genuine reversal is not.
func DetectDecline(points []models.PricePoint) *models.DeclineRecord {
	if len(points) == 0 {
		return nil
	}

	// Peak is the maximum high; ties resolve to the first occurrence.
	peakIdx := 0
	for i, p := range points {
		if p.High > points[peakIdx].High {
			peakIdx = i
		}
	}
	peak := points[peakIdx].High
	if peak <= 0 {
		return nil
	}

	last := points[len(points)-1].Close
	drop := (peak - last) / peak * 100
	if drop < 0 || drop > MaxDropPercent {
		return nil
	}

	// Walk forward from the peak. Any close rising above the running
	// minimum is a bounce; measure it against the drop so far.
	lowest := points[peakIdx].Close
	for i := peakIdx + 1; i < len(points); i++ {
		c := points[i].Close
		if c < lowest {
			lowest = c
			continue
		}
		if c > lowest {
			bounce := c - lowest
			dropSoFar := peak - lowest
			if dropSoFar > 0 && bounce/dropSoFar > maxBounceRatio {
				return nil
			}
		}
	}

	return &models.DeclineRecord{
		DropPercent: drop,
		PeakPrice:   peak,
		PeakDate:    points[peakIdx].Date,
	}
}

// SlopeSimilarity compares the recent trend slope of a candidate against a
// benchmark series. The candidate is rejected (ok=false) when its slope is
// meaningfully different from the benchmark's on both the relative and
// absolute measure, or when either slope cannot be computed. Accepted
// candidates get a similarity score of max(0, 100 - ratio*100).
func SlopeSimilarity(candidate, benchmark []models.PricePoint) (float64, bool) {
	candSlope, ok := LinearSlope(seriesTail(candidate, slopeWindow))
	if !ok {
		return 0, false
	}
	benchSlope, ok := LinearSlope(seriesTail(benchmark, slopeWindow))
	if !ok {
		return 0, false
	}

	diff := candSlope - benchSlope
	var ratio float64
	if math.Abs(benchSlope) < 1e-9 {
		// Near-flat benchmark: ratio degenerates, fall back to raw difference.
		ratio = math.Abs(diff)
	} else {
		ratio = math.Abs(diff) / math.Abs(benchSlope)
	}

	if ratio > maxSlopeRatio && math.Abs(diff) > maxSlopeDiff {
		return 0, false
	}

	return math.Max(0, 100-ratio*100), true
}

// seriesTail returns the last n points of a series.
func seriesTail(points []models.PricePoint, n int) []models.PricePoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
