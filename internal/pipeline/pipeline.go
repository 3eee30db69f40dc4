// Package pipeline orchestrates one signal run: fetch fresh observations,
// append them to the store, evaluate the series bundle, and persist the
// resulting signal.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qvintus/ethsignal/internal/kraken"
	"github.com/qvintus/ethsignal/internal/logger"
	"github.com/qvintus/ethsignal/internal/models"
	"github.com/qvintus/ethsignal/internal/nansen"
	"github.com/qvintus/ethsignal/internal/storage"
	"github.com/qvintus/ethsignal/internal/strategy"
)

// FlowProvider supplies the smart-money and exchange flow observations.
type FlowProvider interface {
	FetchSmartMoneyFlow(ctx context.Context, date time.Time) (models.Observation, error)
	FetchExchangeFlow(ctx context.Context, date time.Time) (models.Observation, bool, error)
}

// PriceProvider supplies daily closes for the base asset.
type PriceProvider interface {
	LatestClose(ctx context.Context) (kraken.Bar, error)
	Backfill(ctx context.Context, days int) ([]models.Observation, error)
}

// Pipeline wires the providers, the store, and the strategy together.
type Pipeline struct {
	store      *storage.Store
	flows      FlowProvider
	prices     PriceProvider
	priceAsset string
	config     strategy.Config
}

// New creates a pipeline. priceAsset is the trading pair the price series is
// keyed under.
func New(store *storage.Store, flows FlowProvider, prices PriceProvider, priceAsset string, cfg strategy.Config) *Pipeline {
	return &Pipeline{
		store:      store,
		flows:      flows,
		prices:     prices,
		priceAsset: priceAsset,
		config:     cfg,
	}
}

// Run executes one full cycle for the given wall-clock time and returns the
// persisted signal. Observation appends are idempotent per calendar date, so
// a re-run on the same day replaces that day's rows and signal instead of
// duplicating them.
//
// A failed exchange-flow fetch degrades that input to missing; failures of
// the smart-money or price fetch abort the run, since without them there is
// nothing new to score.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (*models.Signal, error) {
	date := models.Day(now)
	runID := uuid.NewString()
	logger.Info("Starting signal run %s for %s", runID, date.Format(time.DateOnly))

	smObs, err := p.flows.FetchSmartMoneyFlow(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch smart-money flow: %w", err)
	}
	if err := p.store.UpsertObservation(smObs); err != nil {
		return nil, fmt.Errorf("failed to store smart-money flow: %w", err)
	}

	exObs, ok, err := p.flows.FetchExchangeFlow(ctx, date)
	switch {
	case err != nil:
		logger.Warn("Exchange flow unavailable, continuing without it: %v", err)
	case !ok:
		logger.Info("Exchange flow returned no usable value for %s", date.Format(time.DateOnly))
	default:
		if err := p.store.UpsertObservation(exObs); err != nil {
			return nil, fmt.Errorf("failed to store exchange flow: %w", err)
		}
	}

	bar, err := p.prices.LatestClose(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price: %w", err)
	}
	// Recorded under the run date: the latest daily bar stands in for
	// today's close even while the day is still open.
	pxObs := models.Observation{
		Date:   date,
		Asset:  p.priceAsset,
		Source: models.SourceKraken,
		Metric: models.MetricPriceClose,
		Value:  bar.Close,
	}
	if err := p.store.UpsertObservation(pxObs); err != nil {
		return nil, fmt.Errorf("failed to store price: %w", err)
	}

	bundle, err := p.loadBundle()
	if err != nil {
		return nil, err
	}

	sig, err := strategy.Evaluate(bundle, date, runID, p.config)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate signal: %w", err)
	}

	if err := p.store.UpsertSignal(&sig); err != nil {
		return nil, fmt.Errorf("failed to persist signal: %w", err)
	}

	logger.Info("Signal run %s complete: %s (missing: %d inputs)", runID, sig.Action, len(sig.Missing))
	return &sig, nil
}

// Bootstrap backfills the price series with the trailing days daily closes.
func (p *Pipeline) Bootstrap(ctx context.Context, days int) error {
	obs, err := p.prices.Backfill(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to backfill prices: %w", err)
	}
	for _, o := range obs {
		o.Asset = p.priceAsset
		if err := p.store.UpsertObservation(o); err != nil {
			return fmt.Errorf("failed to store backfilled price: %w", err)
		}
	}
	logger.Info("Backfilled %d daily closes", len(obs))
	return nil
}

func (p *Pipeline) loadBundle() (strategy.Bundle, error) {
	sm, err := p.store.LoadSeries(nansen.BasketAsset, models.MetricSmartMoneyFlow)
	if err != nil {
		return strategy.Bundle{}, fmt.Errorf("failed to load smart-money series: %w", err)
	}
	ex, err := p.store.LoadSeries(nansen.BasketAsset, models.MetricExchangeNetFlow)
	if err != nil {
		return strategy.Bundle{}, fmt.Errorf("failed to load exchange series: %w", err)
	}
	px, err := p.store.LoadSeries(p.priceAsset, models.MetricPriceClose)
	if err != nil {
		return strategy.Bundle{}, fmt.Errorf("failed to load price series: %w", err)
	}
	return strategy.Bundle{SmartMoney: sm, Exchange: ex, Price: px}, nil
}
