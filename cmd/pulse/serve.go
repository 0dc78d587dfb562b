package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carshare/pulse/internal/config"
	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/server"
	"github.com/carshare/pulse/internal/store/postgres"
	"github.com/carshare/pulse/internal/stream"
	"github.com/carshare/pulse/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the activity tracking server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("event mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("event mirror disabled (PULSE_NATS_URL not set)")
		}

		emitter := events.NewEmitter()

		gateway := stream.NewGateway(emitter, logger, stream.Options{
			HeartbeatInterval: cfg.HeartbeatInterval,
			SweepInterval:     cfg.SweepInterval,
			StaleAfter:        cfg.StaleAfter,
		})
		gateway.Start()

		trk := tracker.New(store, emitter, publisher, logger)

		srv := server.New(store, trk, emitter, gateway, logger, cfg.AuthToken, cfg.RootToken)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("pulse server started", "http_addr", cfg.HTTPAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		gateway.Stop()
		logger.Info("stream gateway stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
