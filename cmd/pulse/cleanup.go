package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carshare/pulse/internal/config"
	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/retention"
	"github.com/carshare/pulse/internal/store/postgres"
	"github.com/carshare/pulse/internal/tracker"
)

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	Short:   "Apply retention policies to stored activity records",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

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

		policies, err := loadPolicySet(cfg, logger)
		if err != nil {
			return err
		}

		dest, err := archiveDestination(cmd, cfg, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			defer pub.Close()
		} else {
			publisher = &events.NoopPublisher{}
		}

		emitter := events.NewEmitter()
		trk := tracker.New(store, emitter, publisher, logger)
		svc := retention.NewService(store, trk, emitter, publisher, dest,
			policies, cfg.MetricsRetention, logger)

		stats, err := svc.ExecuteCleanup(cmd.Context(), dryRun)
		if err != nil {
			return err
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		label := "Cleanup"
		if dryRun {
			label = "Cleanup (dry run)"
		}
		fmt.Printf("%s: processed %d, deleted %d, archived %d, ~%d bytes reclaimed\n",
			label, stats.Processed, stats.Deleted, stats.Archived, stats.SpaceSavedEstimate)
		if len(stats.Errors) > 0 {
			fmt.Printf("Errors:\n  %s\n", strings.Join(stats.Errors, "\n  "))
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "count matching records without deleting")
}

// loadPolicySet reads the configured policy file, falling back to the
// built-in defaults when the file does not exist.
func loadPolicySet(cfg *config.Config, logger *slog.Logger) ([]retention.Policy, error) {
	if _, err := os.Stat(cfg.PolicyFile); os.IsNotExist(err) {
		logger.Info("no policy file, using defaults", "path", cfg.PolicyFile)
		return retention.DefaultPolicies(), nil
	}
	policies, err := retention.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded retention policies", "path", cfg.PolicyFile, "count", len(policies))
	return policies, nil
}

// archiveDestination picks S3 when a bucket is configured, else a local
// directory, else none.
func archiveDestination(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (retention.Destination, error) {
	if cfg.ArchiveS3Bucket != "" {
		dest, err := retention.NewS3Destination(cmd.Context(),
			cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
		if err != nil {
			return nil, err
		}
		logger.Info("archiving to S3", "bucket", cfg.ArchiveS3Bucket, "prefix", cfg.ArchiveS3Prefix)
		return dest, nil
	}
	if cfg.ArchiveDir != "" {
		logger.Info("archiving to directory", "dir", cfg.ArchiveDir)
		return retention.NewDirDestination(cfg.ArchiveDir), nil
	}
	return nil, nil
}
