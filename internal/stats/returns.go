package stats

import (
	"fmt"
	"time"

	"github.com/qvintus/ethsignal/internal/models"
)

// WindowUnit selects how a return lookback is counted: trailing observations
// or trailing calendar days. Gap-tolerant series make the two differ.
type WindowUnit string

const (
	UnitObservations WindowUnit = "observations"
	UnitDays         WindowUnit = "days"
)

// LatestReturn computes the percentage change of the latest observation
// against the reference observation lookback units earlier.
func LatestReturn(series *models.Series, lookback int, unit WindowUnit) (float64, error) {
	returns := Returns(series, lookback, unit)
	if len(returns) == 0 {
		return 0, fmt.Errorf("%w: no observation %d %s back", ErrInsufficientData, lookback, unit)
	}
	last, _ := series.Last()
	ref, ok := referenceIndex(series, series.Len()-1, lookback, unit)
	if !ok || series.At(ref).Value == 0 {
		return 0, fmt.Errorf("%w: no usable reference for %s", ErrInsufficientData, last.Date.Format(time.DateOnly))
	}
	return last.Value/series.At(ref).Value - 1, nil
}

// Returns computes the trailing return series: for every observation with a
// usable reference lookback units earlier, its percentage change. Used to
// put price returns on a dispersion comparable to the flow z-score.
func Returns(series *models.Series, lookback int, unit WindowUnit) []float64 {
	var out []float64
	for i := 0; i < series.Len(); i++ {
		ref, ok := referenceIndex(series, i, lookback, unit)
		if !ok {
			continue
		}
		base := series.At(ref).Value
		if base == 0 {
			continue
		}
		out = append(out, series.At(i).Value/base-1)
	}
	return out
}

// referenceIndex finds the observation lookback units before index i.
// In observation mode that is exactly i-lookback; in day mode it is the most
// recent observation at least lookback calendar days older.
func referenceIndex(series *models.Series, i, lookback int, unit WindowUnit) (int, bool) {
	switch unit {
	case UnitDays:
		cutoff := series.At(i).Date.AddDate(0, 0, -lookback)
		for j := i - 1; j >= 0; j-- {
			if !series.At(j).Date.After(cutoff) {
				return j, true
			}
		}
		return 0, false
	default:
		j := i - lookback
		if j < 0 {
			return 0, false
		}
		return j, true
	}
}
