package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/spk-service/internal/app"
	"github.com/tbourn/spk-service/internal/observability"
)

var noSweeper bool

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Start the SPK HTTP API. Expired reservations are swept in the background unless --no-sweeper is set.`,
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&noSweeper, "no-sweeper", false, "Do not run the background reservation sweeper")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		log := zerolog.Ctx(ctx)
		cfg := a.Config

		shutdownOTel, err := observability.Setup(ctx, cfg, version)
		if err != nil {
			log.Error().Err(err).Msg("tracing setup failed")
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := shutdownOTel(sctx); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown failed")
			}
		}()

		engine, err := a.Engine()
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		}

		sweepDone := make(chan struct{})
		if noSweeper {
			close(sweepDone)
		} else {
			go func() {
				defer close(sweepDone)
				a.Sweeper.Run(ctx)
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().
				Str("addr", srv.Addr).
				Str("version", version).
				Str("base_path", cfg.APIBasePath).
				Bool("swagger", cfg.SwaggerEnabled).
				Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("http server failed")
				stop()
				<-sweepDone
				return err
			}
		}

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
			return err
		}
		stop()
		select {
		case <-sweepDone:
		case <-time.After(cfg.ShutdownTimeout):
			log.Warn().Msg("sweeper did not stop in time")
		}
		log.Info().Msg("server exited")
		return nil
	})
}
