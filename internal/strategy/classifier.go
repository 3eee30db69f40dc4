// Package strategy derives the trading signal: it scores the series bundle
// with the rolling statistics engine and classifies the result into
// LONG, FLAT, or HOLD.
package strategy

import (
	"github.com/qvintus/ethsignal/internal/models"
	"github.com/qvintus/ethsignal/internal/stats"
)

// Config holds the classifier and engine thresholds. Every knob is explicit
// so scenarios can vary them independently.
type Config struct {
	RollSpanShort int
	RollSpanLong  int
	MinPeriods    int

	ZScoreLongThreshold float64
	ZScoreFlatThreshold float64
	PriceFlatThreshold  float64

	// MajorExchangeInflowUSD vetoes a LONG when the net exchange flow
	// exceeds it. Polarity: positive flow = funds moving onto exchanges
	// (selling pressure). Tune per deployment.
	MajorExchangeInflowUSD float64

	WindowUnit stats.WindowUnit
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RollSpanShort:          7,
		RollSpanLong:           30,
		MinPeriods:             3,
		ZScoreLongThreshold:    1.5,
		ZScoreFlatThreshold:    0,
		PriceFlatThreshold:     0,
		MajorExchangeInflowUSD: 0,
		WindowUnit:             stats.UnitObservations,
	}
}

// Inputs are the scored metrics the classifier decides on. Unavailable
// upstream statistics arrive as invalid metrics, never as zeros.
type Inputs struct {
	SMZScore7d         models.Metric
	SMZScore30d        models.Metric
	PriceReturn7d      models.Metric
	NetExchangeFlowUSD models.Metric
}

// Decision is the classifier output: the action plus the names of any inputs
// that were unavailable.
type Decision struct {
	Action  models.Action
	Missing []string
}

// Classify maps the scored inputs to a discrete action. It is pure and
// deterministic; rules are evaluated in priority order, first match wins:
//
//  1. LONG  — 7d z-score strictly above the long threshold, price flat or
//     declining, and no major exchange inflow. A missing exchange flow does
//     not veto.
//  2. FLAT  — 7d z-score strictly below the flat threshold.
//  3. HOLD  — everything else, including any missing required input.
//
// Boundary values (z-score exactly at a threshold) fall through to HOLD.
func Classify(in Inputs, cfg Config) Decision {
	missing := missingInputs(in)

	smZ, smOK := in.SMZScore7d.Float()
	ret, retOK := in.PriceReturn7d.Float()
	if !smOK || !retOK {
		return Decision{Action: models.ActionHold, Missing: missing}
	}

	if smZ > cfg.ZScoreLongThreshold && ret <= cfg.PriceFlatThreshold {
		flow, flowOK := in.NetExchangeFlowUSD.Float()
		if !flowOK || flow <= cfg.MajorExchangeInflowUSD {
			return Decision{Action: models.ActionLong, Missing: missing}
		}
	}

	if smZ < cfg.ZScoreFlatThreshold {
		return Decision{Action: models.ActionFlat, Missing: missing}
	}

	return Decision{Action: models.ActionHold, Missing: missing}
}

func missingInputs(in Inputs) []string {
	var missing []string
	if !in.SMZScore7d.Valid {
		missing = append(missing, "sm_zscore_7d")
	}
	if !in.SMZScore30d.Valid {
		missing = append(missing, "sm_zscore_30d")
	}
	if !in.PriceReturn7d.Valid {
		missing = append(missing, "price_return_7d")
	}
	if !in.NetExchangeFlowUSD.Valid {
		missing = append(missing, "net_exchange_flow_usd")
	}
	return missing
}
