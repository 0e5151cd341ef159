// Command spkd issues and reserves SPK work-order numbers over HTTP and
// carries the operator tasks around that: migrations, sweeping, counter
// inspection and resync, and an order format audit.
//
//	@title			SPK Service API
//	@version		1.0
//	@description	Issues, reserves and verifies SPK work-order numbers (MMYY prefix plus a monthly sequence).
//	@BasePath		/api/v1
//	@schemes		http https
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/spk-service/internal/app"
	"github.com/tbourn/spk-service/internal/config"
	"github.com/tbourn/spk-service/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "spkd",
		Short:         "SPK work-order number service",
		Long:          `spkd issues unique monthly SPK numbers, holds them in short-lived reservations, and verifies them before an order consumes one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSweepCommand(),
		newCountersCommand(),
		newAuditOrdersCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spkd:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and installs the process logger. The
// returned context carries the logger for zerolog.Ctx lookups.
func bootstrap(ctx context.Context) (context.Context, config.Config, io.Closer, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return ctx, config.Config{}, nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return ctx, cfg, nil, fmt.Errorf("config: %w", err)
	}

	logger, closer := sysutil.NewLogger(cfg)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger.WithContext(ctx), cfg, closer, nil
}

// withApp runs fn against a fully wired App and tears everything down after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cfg, closer, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("startup failed")
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("close failed")
		}
	}()
	return fn(ctx, a)
}
