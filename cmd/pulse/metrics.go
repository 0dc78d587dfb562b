package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/carshare/pulse/internal/config"
	"github.com/carshare/pulse/internal/metrics"
	"github.com/carshare/pulse/internal/store/postgres"
)

var metricsCmd = &cobra.Command{
	Use:     "metrics",
	Short:   "Generate daily activity metrics",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		var date time.Time
		if dateStr != "" {
			date, err = time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", dateStr, err)
			}
		}

		gen := metrics.NewGenerator(store, nil, nil, logger)
		return gen.GenerateDaily(cmd.Context(), date)
	},
}

func init() {
	metricsCmd.Flags().String("date", "", "UTC day to aggregate (YYYY-MM-DD, default: yesterday)")
}
