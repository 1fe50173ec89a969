package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/market"
	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/stream"
	"github.com/rewired-gh/coinpulse/internal/tracker"
	"github.com/rewired-gh/coinpulse/internal/view"
)

func watchCmd() *cobra.Command {
	var coin, timeRange string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a coin's headline figures and keep them live from the price stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if coin == "" {
				coin = cfg.Dashboard.Coin
			}
			if timeRange == "" {
				timeRange = cfg.Dashboard.TimeRange
			}
			tr, err := market.ParseTimeRange(timeRange)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), normalizeCoin(coin), tr)
		},
	}
	cmd.Flags().StringVar(&coin, "coin", "", "coin symbol (default from dashboard.coin)")
	cmd.Flags().StringVar(&timeRange, "range", "", "time window: 7days, 30days or 1year")
	return cmd
}

func newMarketClient() (*market.Client, func()) {
	if !cfg.Cache.Enabled {
		return market.NewClient(cfg.API.BaseURL, cfg.API.Timeout, nil), func() {}
	}
	cache, err := market.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL)
	if err != nil {
		logger.Warn("Redis cache unavailable, fetching directly: %v", err)
		return market.NewClient(cfg.API.BaseURL, cfg.API.Timeout, nil), func() {}
	}
	return market.NewClient(cfg.API.BaseURL, cfg.API.Timeout, cache), func() { _ = cache.Close() }
}

// dashboard is the set of live cards for one coin.
type dashboard struct {
	out io.Writer

	mu       sync.Mutex
	current  *view.Card
	nextDay  *view.Card
	sevenDay *view.Card
}

func (d *dashboard) print(s view.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, view.Line(s))
}

func (d *dashboard) card(src view.Source, coin, title string, role tracker.Role, snap tracker.Snapshot) *view.Card {
	c := view.NewCard(src, coin, role, snap, view.Options{Title: title, Highlight: cfg.Dashboard.Highlight})
	c.OnChange(d.print)
	d.print(c.State())
	return c
}

// apply creates the cards on first use and re-anchors them afterwards.
func (d *dashboard) apply(src view.Source, stats market.Stats) {
	if d.current == nil {
		d.current = d.card(src, stats.Coin, "Current Price", tracker.RoleCurrent, stats.CurrentSnapshot())
	} else {
		d.current.Update(stats.CurrentSnapshot())
	}
	d.nextDay = d.applyForecast(src, d.nextDay, stats.Coin, "Next Day Forecast", stats.NextDay)
	d.sevenDay = d.applyForecast(src, d.sevenDay, stats.Coin, "7 Day Forecast", stats.SevenDay)
}

func (d *dashboard) applyForecast(src view.Source, c *view.Card, coin, title string, f *market.Forecast) *view.Card {
	switch {
	case f == nil && c != nil:
		c.Close()
		return nil
	case f == nil:
		return nil
	case c == nil:
		return d.card(src, coin, title, tracker.RoleForecast, f.Snapshot())
	default:
		c.Update(f.Snapshot())
		return c
	}
}

func (d *dashboard) close() {
	for _, c := range []*view.Card{d.current, d.nextDay, d.sevenDay} {
		if c != nil {
			c.Close()
		}
	}
}

func loadStats(ctx context.Context, client *market.Client, coin string, tr market.TimeRange) (*models.CryptoData, market.Stats, error) {
	data, err := client.Fetch(ctx, coin)
	if err != nil {
		return nil, market.Stats{}, err
	}
	filtered := market.Filter(data, tr)
	stats, err := market.Calculate(filtered)
	if err != nil {
		return nil, market.Stats{}, err
	}
	return filtered, stats, nil
}

func runWatch(ctx context.Context, out io.Writer, coin string, tr market.TimeRange) error {
	client, closeCache := newMarketClient()
	defer closeCache()

	data, stats, err := loadStats(ctx, client, coin, tr)
	if errors.Is(err, market.ErrDataUnavailable) {
		return fmt.Errorf("no data available for %s right now, try again later: %w", coin, err)
	}
	if err != nil {
		return err
	}
	printSummary(out, data, tr)

	manager := stream.NewManager(stream.NewClient(streamOptions()))
	lease := manager.Acquire()
	defer lease.Release()

	d := &dashboard{out: out}
	d.apply(lease, stats)
	defer d.close()

	ticker := time.NewTicker(cfg.Dashboard.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, stats, err := loadStats(ctx, client, coin, tr)
			if err != nil {
				logger.Warn("Refresh for %s failed, keeping previous figures: %v", coin, err)
				continue
			}
			d.apply(lease, stats)
		}
	}
}

func printSummary(out io.Writer, data *models.CryptoData, tr market.TimeRange) {
	fmt.Fprintf(out, "%s  (%s, %s historical points, %s predicted)\n", data.Coin, tr,
		humanize.Comma(int64(len(data.HistoricalPrice))), humanize.Comma(int64(len(data.PredictedPrice))))
	if data.Date != "" {
		if t, err := models.ParseDate(data.Date); err == nil {
			fmt.Fprintf(out, "  prediction made %s (%s)\n", data.Date, humanize.Time(t))
		}
	}
	if n := len(data.PositiveSentimentRatio); n > 0 {
		fmt.Fprintf(out, "  positive sentiment: %.1f%%\n", data.PositiveSentimentRatio[n-1].Sentiment*100)
	}
	if b := data.ModelBenchmarks; b != nil {
		fmt.Fprintf(out, "  model: MAE %s  MAPE %.2f%%  RMSE %s  R² %.3f\n",
			view.Money(b.MAE), b.MAPE, view.Money(b.RMSE), b.R2)
	}
}
