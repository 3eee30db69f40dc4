// Package models defines the core domain entities: observations, series, and signals.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedSeries reports a violated series invariant: dates out of order
// or a duplicate identity key. It indicates a broken store contract, so runs
// must abort on it rather than degrade.
var ErrMalformedSeries = errors.New("malformed series")

// Source identifies the external data provider an observation came from.
type Source string

const (
	SourceNansen Source = "nansen"
	SourceKraken Source = "kraken"
)

// Metric names the time series an observation belongs to.
type MetricName string

const (
	MetricSmartMoneyFlow  MetricName = "smart_money_flow_usd"
	MetricExchangeNetFlow MetricName = "exchange_net_flow_usd"
	MetricPriceClose      MetricName = "price_close_usd"
)

// Observation is a single dated record of one series. Immutable once written;
// uniquely identified by (Date, Asset, Chain, Source, Metric). Chain is empty
// for aggregate rows.
type Observation struct {
	Date   time.Time
	Asset  string
	Chain  string
	Source Source
	Metric MetricName
	Value  float64
}

// Validate checks observation field constraints.
func (o *Observation) Validate() error {
	if o.Date.IsZero() {
		return errors.New("observation date must not be zero")
	}
	if o.Asset == "" {
		return errors.New("observation asset must not be empty")
	}
	if o.Source == "" {
		return errors.New("observation source must not be empty")
	}
	if o.Metric == "" {
		return errors.New("observation metric must not be empty")
	}
	return nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Series is an ordered-by-date sequence of observations for one
// (asset, metric) pair. Gaps are allowed; dates must be strictly increasing.
type Series struct {
	Metric       MetricName
	observations []Observation
}

// NewSeries returns an empty series for the given metric.
func NewSeries(metric MetricName) *Series {
	return &Series{Metric: metric}
}

// Append adds an observation to the end of the series. Appending a date that
// is not strictly after the current last date fails with ErrMalformedSeries.
func (s *Series) Append(o Observation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	if o.Metric != s.Metric {
		return fmt.Errorf("%w: observation metric %q does not match series metric %q",
			ErrMalformedSeries, o.Metric, s.Metric)
	}
	day := Day(o.Date)
	if n := len(s.observations); n > 0 {
		last := s.observations[n-1].Date
		if day.Equal(last) {
			return fmt.Errorf("%w: duplicate date %s", ErrMalformedSeries, day.Format(time.DateOnly))
		}
		if day.Before(last) {
			return fmt.Errorf("%w: date %s not after %s",
				ErrMalformedSeries, day.Format(time.DateOnly), last.Format(time.DateOnly))
		}
	}
	o.Date = day
	s.observations = append(s.observations, o)
	return nil
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.observations)
}

// At returns the i-th observation in date order.
func (s *Series) At(i int) Observation {
	return s.observations[i]
}

// Last returns the most recent observation, or false when the series is empty.
func (s *Series) Last() (Observation, bool) {
	if len(s.observations) == 0 {
		return Observation{}, false
	}
	return s.observations[len(s.observations)-1], true
}

// Values returns the observation values in date order.
func (s *Series) Values() []float64 {
	vals := make([]float64, len(s.observations))
	for i, o := range s.observations {
		vals[i] = o.Value
	}
	return vals
}

// Dates returns the observation dates in date order.
func (s *Series) Dates() []time.Time {
	dates := make([]time.Time, len(s.observations))
	for i, o := range s.observations {
		dates[i] = o.Date
	}
	return dates
}
