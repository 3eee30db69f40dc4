package models

import (
	"errors"
	"time"
)

// Action is the discrete trading decision emitted once per run.
type Action string

const (
	ActionLong Action = "LONG"
	ActionFlat Action = "FLAT"
	ActionHold Action = "HOLD"
)

// Signal is the output record of one pipeline run. Appended to the signal
// history and never mutated after creation. Unavailable statistics stay
// invalid Metrics and are named in Missing, so consumers can tell
// "bot says HOLD" from "bot couldn't compute".
type Signal struct {
	Date  time.Time
	RunID string

	Action Action

	PriceUSD           Metric
	SMZScore7d         Metric
	SMZScore30d        Metric
	PriceReturn7d      Metric
	NetExchangeFlowUSD Metric
	Divergence7d       Metric

	Missing []string

	CreatedAt time.Time
}

// Validate checks signal field constraints.
func (s *Signal) Validate() error {
	if s.Date.IsZero() {
		return errors.New("signal date must not be zero")
	}
	switch s.Action {
	case ActionLong, ActionFlat, ActionHold:
	default:
		return errors.New("signal action must be LONG, FLAT, or HOLD")
	}
	return nil
}
