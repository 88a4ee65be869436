package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"restaurant_asset_tracker/internal/domain/maintenance"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Equipment maintenance reminders for restaurant assets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCycleCmd(), newClassifyCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP API and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func newCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single reminder cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.scheduler.RunNow(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func newClassifyCmd() *cobra.Command {
	var (
		last     string
		interval int
		at       string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a single device from its last service date and interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := maintenance.CheckInterval(interval); err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --now: %w", err)
				}
				now = t
			}
			var lastAt *time.Time
			if last != "" {
				t, err := time.Parse(time.RFC3339, last)
				if err != nil {
					return fmt.Errorf("invalid --last: %w", err)
				}
				lastAt = &t
			}
			c := maintenance.Classify(lastAt, interval, now)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\t%s\n", c.State, c.DaysOffset, c.NextDueAt.Format(time.RFC3339), maintenance.Badge(c))
			return nil
		},
	}
	cmd.Flags().StringVar(&last, "last", "", "last maintenance time (RFC3339); omit for never serviced")
	cmd.Flags().IntVar(&interval, "interval", 0, "maintenance interval in days")
	cmd.Flags().StringVar(&at, "now", "", "evaluate at this time (RFC3339) instead of now")
	_ = cmd.MarkFlagRequired("interval")
	return cmd
}
