// Package stats implements the rolling statistics engine: exponentially
// weighted mean, standard deviation, and z-scores over flow and price series,
// plus the price-return and divergence calculators.
package stats

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInsufficientData means a series is too short for the requested
	// window. Callers must treat this as "no opinion", never as a score.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateVariance means the window has zero variance, so the
	// z-score is undefined.
	ErrDegenerateVariance = errors.New("degenerate variance")
)

// Window specifies an exponentially weighted rolling window.
// Span is observation-indexed; the decay follows alpha = 2/(span+1).
type Window struct {
	Span       int
	MinPeriods int
}

// RollingStat holds the EW statistics for the latest observation of a series.
// Mean and Stddev are computed over all observations up to and including the
// latest; the z-score therefore reacts one period faster at the cost of a
// slightly dampened magnitude.
type RollingStat struct {
	Mean   float64
	Stddev float64
	ZScore float64
	Window Window
}

// EWZScore computes the bias-corrected exponentially weighted z-score of the
// last value in values. Weighting matches the conventional adjusted EW
// estimator: weight (1-alpha)^k for the value k steps before the latest.
func EWZScore(values []float64, w Window) (RollingStat, error) {
	n := len(values)
	minPeriods := w.MinPeriods
	if minPeriods < 2 {
		minPeriods = 2
	}
	if w.Span < 1 {
		return RollingStat{}, fmt.Errorf("window span must be >= 1, got %d", w.Span)
	}
	if n < minPeriods {
		return RollingStat{}, fmt.Errorf("%w: %d observations, need %d", ErrInsufficientData, n, minPeriods)
	}

	alpha := 2.0 / (float64(w.Span) + 1.0)
	decay := 1.0 - alpha

	var sumW, sumW2, sumWX float64
	weight := 1.0
	for i := n - 1; i >= 0; i-- {
		sumW += weight
		sumW2 += weight * weight
		sumWX += weight * values[i]
		weight *= decay
	}
	mean := sumWX / sumW

	var sumWD2 float64
	weight = 1.0
	for i := n - 1; i >= 0; i-- {
		d := values[i] - mean
		sumWD2 += weight * d * d
		weight *= decay
	}

	// Bias correction for the weighted sample variance.
	denom := sumW*sumW - sumW2
	if denom <= 0 {
		return RollingStat{}, fmt.Errorf("%w: %d observations, need %d", ErrInsufficientData, n, minPeriods)
	}
	variance := (sumWD2 / sumW) * (sumW * sumW / denom)
	std := math.Sqrt(variance)

	if std == 0 {
		return RollingStat{}, fmt.Errorf("%w: constant series over span %d", ErrDegenerateVariance, w.Span)
	}

	return RollingStat{
		Mean:   mean,
		Stddev: std,
		ZScore: (values[n-1] - mean) / std,
		Window: w,
	}, nil
}
