package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/spk-service/internal/app"
	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/repo"
	"github.com/tbourn/spk-service/internal/services"
	"github.com/tbourn/spk-service/internal/utils"
)

var (
	listPage     int
	listPageSize int
	listJSON     bool
	resyncPrefix string
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  `Apply the schema for counters, reservations, orders and idempotency records, then exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, closer, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer closer.Close()

			db, err := repo.Open(cfg)
			if err != nil {
				return err
			}
			defer repo.Close(db)
			if err := repo.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			zerolog.Ctx(ctx).Info().Str("driver", cfg.Storage.Driver).Msg("schema up to date")
			return nil
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired reservations once",
		Long:  `Run a single sweep pass over expired reservations and idempotency records. Useful from cron when serve runs with --no-sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Sweeper.SweepOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired reservations\n", n)
				return nil
			})
		},
	}
}

func newCountersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Inspect and repair monthly sequence counters",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List counters, most recent month first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				page := utils.Clamp(listPage, 1, 1<<20)
				size := utils.Clamp(listPageSize, 1, 100)
				items, total, err := a.CounterSvc.ListPage(ctx, page, size)
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"counters": items, "total": total, "page": page})
				}
				return writeCounters(cmd.OutOrStdout(), items, total)
			})
		},
	}
	list.Flags().IntVar(&listPage, "page", 1, "Page number")
	list.Flags().IntVar(&listPageSize, "page-size", 20, "Items per page (max 100)")
	list.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")

	resync := &cobra.Command{
		Use:   "resync",
		Short: "Raise a counter to the highest sequence used by an order",
		Long:  `Resync scans persisted orders for the given MMYY prefix and advances the counter so it is never behind them. It never lowers a counter.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.CounterSvc.Resync(ctx, resyncPrefix, a.Now())
				if err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().Str("prefix", c.Prefix).Int64("last_value", c.LastValue).Msg("counter resynced")
				return writeCounters(cmd.OutOrStdout(), []domain.SequenceCounter{*c}, 1)
			})
		},
	}
	resync.Flags().StringVar(&resyncPrefix, "prefix", "", "MMYY prefix to resync, e.g. 0625")
	_ = resync.MarkFlagRequired("prefix")

	cmd.AddCommand(list, resync)
	return cmd
}

func newAuditOrdersCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit-orders",
		Short: "Report persisted orders whose SPK does not match the configured width",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				audit, err := a.OrderSvc.AuditFormats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), audit)
				}
				return writeAudit(cmd.OutOrStdout(), audit)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func writeCounters(out io.Writer, items []domain.SequenceCounter, total int64) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tLAST\tUPDATED")
	for _, c := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.Prefix, c.LastValue, c.UpdatedAt.UTC().Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d of %d counters\n", len(items), total)
	return err
}

func writeAudit(out io.Writer, a *services.FormatAudit) error {
	fmt.Fprintf(out, "width %d: %d orders, %d malformed\n", a.Width, a.Total, a.InvalidCount)
	for _, spk := range a.Invalid {
		fmt.Fprintf(out, "  %s\n", spk)
	}
	if more := a.InvalidCount - int64(len(a.Invalid)); more > 0 {
		_, err := fmt.Fprintf(out, "  ... %d more\n", more)
		return err
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
