package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/coinpulse/internal/api"
	"github.com/rewired-gh/coinpulse/internal/broker"
	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/market"
	"github.com/rewired-gh/coinpulse/internal/monitor"
	"github.com/rewired-gh/coinpulse/internal/storage"
	"github.com/rewired-gh/coinpulse/internal/stream"
	"github.com/rewired-gh/coinpulse/internal/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alert backend, data API and alert monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	routes := api.NewRoutes(store, cfg.Server.DataDir, cfg.Server.Coins)

	var (
		notifiers      monitor.Notifiers
		telegramClient *telegram.Client
	)
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		notifiers = append(notifiers, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if cfg.Kafka.Enabled {
		publisher := broker.NewPublisher(broker.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		logger.Info("Publishing triggers to kafka topic %s", cfg.Kafka.Topic)
	}

	manager := stream.NewManager(stream.NewClient(streamOptions()))

	if cfg.Monitor.Enabled {
		mon := monitor.New(store, notifiers, monitor.Config{
			Cooldown:      cfg.Monitor.Cooldown,
			NotifyTimeout: cfg.Monitor.NotifyTimeout,
		})
		routes.OnDelete(mon.Forget)

		lease := manager.Acquire()
		defer lease.Release()
		lease.OnPriceUpdate(mon.Observe)

		go runForecastChecks(ctx, mon, telegramClient)
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, func() string {
			return fmt.Sprintf("stream connected: %v, leases: %d", manager.Client().Connected(), manager.Leases())
		})
	}

	return api.Serve(ctx, cfg.Server.Addr, routes.Handler(), cfg.Server.ShutdownTimeout)
}

// runForecastChecks periodically evaluates predicted alerts against each coin's
// next-day forecast. Telegram hears about the first failure of a streak and
// about the recovery.
func runForecastChecks(ctx context.Context, mon *monitor.Monitor, tg *telegram.Client) {
	ticker := time.NewTicker(cfg.Monitor.ForecastInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Forecast check failed: %v", err)
			if consecutiveFailures == 1 && tg != nil {
				if sendErr := tg.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && tg != nil {
			if sendErr := tg.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleResult(checkForecasts(ctx, mon))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handleResult(checkForecasts(ctx, mon))
		}
	}
}

func checkForecasts(ctx context.Context, mon *monitor.Monitor) error {
	coins := cfg.Server.Coins
	if len(coins) == 0 {
		var err error
		if coins, err = market.ExportedCoins(cfg.Server.DataDir); err != nil {
			return fmt.Errorf("failed to list coins: %w", err)
		}
	}

	fired := 0
	for _, coin := range coins {
		data, err := market.LoadExport(cfg.Server.DataDir, coin)
		if err != nil {
			return err
		}
		stats, err := market.Calculate(data)
		if err != nil {
			return fmt.Errorf("%s: %w", coin, err)
		}
		if stats.NextDay == nil {
			logger.Debug("No forecast for %s, skipping predicted alerts", coin)
			continue
		}
		fired += len(mon.ProcessForecast(ctx, coin, stats.NextDay.Price))
	}
	logger.Debug("Forecast check over %d coin(s) fired %d alert(s)", len(coins), fired)
	return nil
}
