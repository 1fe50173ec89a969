package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/coinpulse/internal/alerts"
	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/market"
	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/stream"
	"github.com/rewired-gh/coinpulse/internal/view"
)

// livePriceWait bounds how long add waits for a tick to pre-fill the threshold.
const livePriceWait = 5 * time.Second

func alertsCmd() *cobra.Command {
	var coin string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage price alerts for a coin",
	}
	cmd.PersistentFlags().StringVar(&coin, "coin", "", "coin symbol (default from dashboard.coin)")

	registry := func(ctx context.Context) (*alerts.Registry, error) {
		if coin == "" {
			coin = cfg.Dashboard.Coin
		}
		r := alerts.NewRegistry(alerts.NewClient(cfg.API.BaseURL, cfg.API.Timeout), normalizeCoin(coin))
		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}

	cmd.AddCommand(
		alertsListCmd(registry),
		alertsAddCmd(registry),
		alertsToggleCmd(registry),
		alertsRemoveCmd(registry),
		alertsEditCmd(registry),
	)
	return cmd
}

type registryFunc func(ctx context.Context) (*alerts.Registry, error)

func alertsListCmd(registry registryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := registry(cmd.Context())
			if err != nil {
				return err
			}
			printAlerts(cmd.OutOrStdout(), r.State())
			return nil
		},
	}
}

func alertsAddCmd(registry registryFunc) *cobra.Command {
	var draft models.AlertDraft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an alert; the threshold defaults to the current price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := registry(ctx)
			if err != nil {
				return err
			}
			if draft.Threshold == "" {
				if draft.Threshold, err = defaultThreshold(ctx, r.State().Coin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Using threshold %s\n", draft.Threshold)
			}
			alert, err := r.Create(ctx, draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created alert %s\n", alert.ID)
			printAlerts(cmd.OutOrStdout(), r.State())
			return nil
		},
	}
	cmd.Flags().StringVar(&draft.Type, "type", string(models.AlertRealTime), "alert type: real-time or predicted")
	cmd.Flags().StringVar(&draft.Condition, "condition", string(models.Above), "condition: above or below")
	cmd.Flags().StringVar(&draft.Threshold, "threshold", "", "price threshold")
	return cmd
}

func alertsToggleCmd(registry registryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip an alert between active and paused",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := registry(cmd.Context())
			if err != nil {
				return err
			}
			if err := r.Toggle(cmd.Context(), args[0]); err != nil {
				return err
			}
			alert, _ := r.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Alert %s is now %s\n", alert.ID, activeLabel(alert.Active))
			return nil
		},
	}
}

func alertsRemoveCmd(registry registryFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an alert",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := registry(cmd.Context())
			if err != nil {
				return err
			}
			if err := r.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted alert %s\n", args[0])
			return nil
		},
	}
}

func alertsEditCmd(registry registryFunc) *cobra.Command {
	var draft models.AlertDraft
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an alert's type, condition or threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := registry(ctx)
			if err != nil {
				return err
			}
			id := args[0]
			existing, ok := r.Get(id)
			if !ok {
				return fmt.Errorf("alert %s not found for %s", id, r.State().Coin)
			}
			flags := cmd.Flags()
			if !flags.Changed("type") && !flags.Changed("condition") && !flags.Changed("threshold") {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to change")
				return r.CancelEdit(ctx)
			}
			if _, err := r.Edit(ctx, id, editDraft(draft, existing, flags.Changed)); err != nil {
				return err
			}
			printAlerts(cmd.OutOrStdout(), r.State())
			return nil
		},
	}
	cmd.Flags().StringVar(&draft.Type, "type", "", "alert type: real-time or predicted")
	cmd.Flags().StringVar(&draft.Condition, "condition", "", "condition: above or below")
	cmd.Flags().StringVar(&draft.Threshold, "threshold", "", "price threshold")
	return cmd
}

// editDraft fills the fields the user did not pass from the existing alert.
// The threshold is resubmitted at full precision.
func editDraft(draft models.AlertDraft, existing models.Alert, changed func(name string) bool) models.AlertDraft {
	if !changed("type") {
		draft.Type = string(existing.Type)
	}
	if !changed("condition") {
		draft.Condition = string(existing.Condition)
	}
	if !changed("threshold") {
		draft.Threshold = strconv.FormatFloat(existing.Threshold, 'f', -1, 64)
	}
	return draft
}

// defaultThreshold pre-fills the threshold from the freshest price it can get:
// a live tick if one arrives shortly, then the latest historical close.
func defaultThreshold(ctx context.Context, coin string) (string, error) {
	if price, ok := waitForTick(ctx, coin, livePriceWait); ok {
		return models.DefaultThreshold(price), nil
	}
	logger.Debug("No tick for %s within %v, falling back to the latest close", coin, livePriceWait)

	client, closeCache := newMarketClient()
	defer closeCache()
	data, err := client.Fetch(ctx, coin)
	if err != nil {
		return "", fmt.Errorf("no price to pre-fill the threshold, pass --threshold: %w", err)
	}
	stats, err := market.Calculate(data)
	if err != nil {
		return "", fmt.Errorf("no price to pre-fill the threshold, pass --threshold: %w", err)
	}
	return models.DefaultThreshold(stats.Current), nil
}

func waitForTick(ctx context.Context, coin string, wait time.Duration) (float64, bool) {
	manager := stream.NewManager(stream.NewClient(streamOptions()))
	lease := manager.Acquire()
	defer lease.Release()

	prices := make(chan float64, 1)
	sub := lease.OnPriceUpdate(func(u models.PriceUpdate) {
		if u.Coin != coin {
			return
		}
		select {
		case prices <- u.Price:
		default:
		}
	})
	defer sub.Close()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case p := <-prices:
		return p, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return 0, false
}

func printAlerts(out io.Writer, st alerts.State) {
	if len(st.Alerts) == 0 {
		fmt.Fprintf(out, "No alerts for %s\n", st.Coin)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tCONDITION\tTHRESHOLD\tSTATUS\tLAST TRIGGERED")
	for _, a := range st.Alerts {
		last := "never"
		if a.LastTriggeredAt != nil {
			last = humanize.Time(*a.LastTriggeredAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Type, a.Condition, view.Money(a.Threshold), activeLabel(a.Active), last)
	}
	_ = w.Flush()
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "paused"
}
