package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/coinpulse/internal/config"
	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/stream"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "coinpulse",
	Short: "Crypto price dashboard with live updates and price alerts",
	Long: `coinpulse shows historical and predicted prices for a coin, keeps the
headline figures live from the price stream, and manages threshold alerts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		logger.Init(cfg.Logging.Level, cfg.Logging.Format)
		if configPath != "" {
			logger.Debug("Configuration loaded from %s", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults and COINPULSE_* env vars if empty)")
	rootCmd.AddCommand(serveCmd(), watchCmd(), alertsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func streamOptions() stream.Options {
	opts := stream.DefaultOptions(cfg.Stream.URL)
	opts.ReconnectAttempts = cfg.Stream.ReconnectAttempts
	opts.ReconnectDelay = cfg.Stream.ReconnectDelay
	opts.PingInterval = cfg.Stream.PingInterval
	opts.ReadTimeout = cfg.Stream.ReadTimeout
	return opts
}

func normalizeCoin(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin))
}
