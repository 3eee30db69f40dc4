package stats

import "fmt"

// Divergence measures accumulation divergence: the smart-money z-score minus
// the EW z-score of the trailing price returns over the same window. Positive
// values flag smart money accumulating while price stays flat or falls.
func Divergence(smZScore float64, returns []float64, w Window) (float64, error) {
	if len(returns) < 2 {
		return 0, fmt.Errorf("%w: %d return observations, need 2", ErrInsufficientData, len(returns))
	}
	retStat, err := EWZScore(returns, w)
	if err != nil {
		return 0, err
	}
	return smZScore - retStat.ZScore, nil
}
