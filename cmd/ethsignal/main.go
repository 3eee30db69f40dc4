package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qvintus/ethsignal/internal/config"
	"github.com/qvintus/ethsignal/internal/kraken"
	"github.com/qvintus/ethsignal/internal/logger"
	"github.com/qvintus/ethsignal/internal/nansen"
	"github.com/qvintus/ethsignal/internal/pipeline"
	"github.com/qvintus/ethsignal/internal/stats"
	"github.com/qvintus/ethsignal/internal/storage"
	"github.com/qvintus/ethsignal/internal/strategy"
	"github.com/qvintus/ethsignal/internal/telegram"
)

var (
	configPath    = flag.String("config", "configs/config.yaml", "Path to configuration file")
	bootstrapDays = flag.Int("bootstrap-days", 0, "Backfill this many daily closes and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxSignals, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	nansenClient := nansen.NewClient(
		cfg.Nansen.APIURL,
		cfg.Nansen.APIKey,
		cfg.Nansen.Timeout,
		nansen.ClientConfig{
			MaxRetries:     cfg.Nansen.MaxRetries,
			RetryDelayBase: cfg.Nansen.RetryDelayBase,
			MaxPages:       cfg.Nansen.MaxPages,
			RecordsPerPage: cfg.Nansen.RecordsPerPage,
			SMFilters:      cfg.Nansen.SMFilters,
		},
	)
	krakenClient := kraken.NewClient(cfg.Kraken.APIURL, cfg.Kraken.Pair, cfg.Kraken.Timeout, cfg.Kraken.MaxRetries)

	strategyConfig := strategy.Config{
		RollSpanShort:          cfg.Strategy.RollSpanShort,
		RollSpanLong:           cfg.Strategy.RollSpanLong,
		MinPeriods:             cfg.Strategy.MinPeriods,
		ZScoreLongThreshold:    cfg.Strategy.ZScoreLongThreshold,
		ZScoreFlatThreshold:    cfg.Strategy.ZScoreFlatThreshold,
		PriceFlatThreshold:     cfg.Strategy.PriceFlatThreshold,
		MajorExchangeInflowUSD: cfg.Strategy.MajorExchangeInflowUSD,
		WindowUnit:             stats.WindowUnit(cfg.Strategy.WindowUnit),
	}
	pipe := pipeline.New(store, nansenClient, krakenClient, cfg.Kraken.Pair, strategyConfig)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if *bootstrapDays > 0 {
		logger.Info("Bootstrapping %d daily closes for %s", *bootstrapDays, cfg.Kraken.Pair)
		if err := pipe.Bootstrap(ctx, *bootstrapDays); err != nil {
			logger.Fatal("Bootstrap failed: %v", err)
		}
		return
	}

	if !cfg.Schedule.Daemon {
		if err := runSignalCycle(ctx, pipe, telegramClient, cfg); err != nil {
			if cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			logger.Fatal("Signal run failed: %v", err)
		}
		return
	}

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting signal service (interval: %v, spans: %d/%d, long threshold: %.2f)",
		cfg.Schedule.Interval,
		cfg.Strategy.RollSpanShort,
		cfg.Strategy.RollSpanLong,
		cfg.Strategy.ZScoreLongThreshold,
	)

	ticker := time.NewTicker(cfg.Schedule.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Signal cycle failed: %v", err)
			if consecutiveFailures == 1 && cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && cfg.Telegram.Enabled && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial signal cycle")
	handleCycleResult(runSignalCycle(ctx, pipe, telegramClient, cfg))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled signal cycle")
			handleCycleResult(runSignalCycle(ctx, pipe, telegramClient, cfg))
		}
	}
}

func runSignalCycle(
	ctx context.Context,
	pipe *pipeline.Pipeline,
	telegramClient *telegram.Client,
	cfg *config.Config,
) error {
	startTime := time.Now()

	sig, err := pipe.Run(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if cfg.Telegram.Enabled && telegramClient != nil {
		if err := telegramClient.Send(sig); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		} else {
			logger.Info("Sent Telegram report for %s signal", sig.Action)
		}
	}

	logger.Info("Signal cycle completed in %v", time.Since(startTime))
	return nil
}
