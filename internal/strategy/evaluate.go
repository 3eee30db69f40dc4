package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/qvintus/ethsignal/internal/models"
	"github.com/qvintus/ethsignal/internal/stats"
)

// Bundle is the full historical input of one evaluation: the three series
// read from the store, already normalized to one row per calendar date.
type Bundle struct {
	SmartMoney *models.Series
	Exchange   *models.Series
	Price      *models.Series
}

// Evaluate scores the bundle and classifies the latest observation into a
// signal record for the given run date. It performs no I/O and holds no
// state between calls; each invocation recomputes every statistic from the
// full series.
//
// Data-quality failures (insufficient history, zero variance) degrade the
// corresponding metric to unavailable and the decision toward HOLD. Only
// structural errors propagate.
func Evaluate(b Bundle, date time.Time, runID string, cfg Config) (models.Signal, error) {
	date = models.Day(date)

	smZ7, err := zScoreMetric(b.SmartMoney, stats.Window{Span: cfg.RollSpanShort, MinPeriods: cfg.MinPeriods})
	if err != nil {
		return models.Signal{}, fmt.Errorf("7d smart-money z-score: %w", err)
	}
	smZ30, err := zScoreMetric(b.SmartMoney, stats.Window{Span: cfg.RollSpanLong, MinPeriods: cfg.MinPeriods})
	if err != nil {
		return models.Signal{}, fmt.Errorf("30d smart-money z-score: %w", err)
	}

	priceReturn := models.None()
	if r, err := stats.LatestReturn(b.Price, cfg.RollSpanShort, cfg.WindowUnit); err == nil {
		priceReturn = models.Some(r)
	} else if !recoverable(err) {
		return models.Signal{}, fmt.Errorf("7d price return: %w", err)
	}

	divergence := models.None()
	if z, ok := smZ7.Float(); ok {
		returns := stats.Returns(b.Price, cfg.RollSpanShort, cfg.WindowUnit)
		d, err := stats.Divergence(z, returns, stats.Window{Span: cfg.RollSpanShort, MinPeriods: cfg.MinPeriods})
		if err == nil {
			divergence = models.Some(d)
		} else if !recoverable(err) {
			return models.Signal{}, fmt.Errorf("7d divergence: %w", err)
		}
	}

	in := Inputs{
		SMZScore7d:         smZ7,
		SMZScore30d:        smZ30,
		PriceReturn7d:      priceReturn,
		NetExchangeFlowUSD: latestOn(b.Exchange, date),
	}
	decision := Classify(in, cfg)

	return models.Signal{
		Date:               date,
		RunID:              runID,
		Action:             decision.Action,
		PriceUSD:           latestOn(b.Price, date),
		SMZScore7d:         in.SMZScore7d,
		SMZScore30d:        in.SMZScore30d,
		PriceReturn7d:      in.PriceReturn7d,
		NetExchangeFlowUSD: in.NetExchangeFlowUSD,
		Divergence7d:       divergence,
		Missing:            decision.Missing,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

// zScoreMetric runs the rolling engine over a series, degrading recoverable
// failures to an unavailable metric.
func zScoreMetric(series *models.Series, w stats.Window) (models.Metric, error) {
	stat, err := stats.EWZScore(series.Values(), w)
	if err != nil {
		if recoverable(err) {
			return models.None(), nil
		}
		return models.None(), err
	}
	return models.Some(stat.ZScore), nil
}

// latestOn returns the value of the series observation on the given day,
// unavailable when that day has no row. Stale rows never stand in for a
// missing fetch.
func latestOn(series *models.Series, date time.Time) models.Metric {
	last, ok := series.Last()
	if !ok || !last.Date.Equal(date) {
		return models.None()
	}
	return models.Some(last.Value)
}

func recoverable(err error) bool {
	return errors.Is(err, stats.ErrInsufficientData) || errors.Is(err, stats.ErrDegenerateVariance)
}
