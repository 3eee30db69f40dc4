package models

// Metric is a derived statistic that may be unavailable. It keeps the
// "missing" and "zero" cases distinct: an invalid Metric means the value
// could not be computed, never that it equals zero.
type Metric struct {
	Value float64
	Valid bool
}

// Some returns a valid metric carrying v.
func Some(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// None returns an unavailable metric.
func None() Metric {
	return Metric{}
}

// Float returns the value and whether it is available.
func (m Metric) Float() (float64, bool) {
	return m.Value, m.Valid
}
