package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/idgen"
	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/store"
	"github.com/carshare/pulse/internal/tracker"
)

// archivePageSize bounds how many records one archive read fetches.
const archivePageSize = 500

// approxRecordBytes is a rough per-row storage footprint used for the
// space-saved estimate. Actual size depends on JSONB payloads.
const approxRecordBytes = 600

// Stats summarizes one cleanup run.
type Stats struct {
	Processed          int64    `json:"processed"`
	Deleted            int64    `json:"deleted"`
	Archived           int64    `json:"archived"`
	SpaceSavedEstimate int64    `json:"space_saved_estimate"`
	Errors             []string `json:"errors,omitempty"`
	DryRun             bool     `json:"dry_run"`
}

// Service applies retention policies to the activity store.
type Service struct {
	store            store.Store
	tracker          *tracker.Tracker
	emitter          *events.Emitter
	publisher        events.Publisher
	dest             Destination
	policies         []Policy
	metricsRetention time.Duration
	logger           *slog.Logger
}

// NewService returns a cleanup service. dest may be nil when no policy
// archives; archiving policies then fail rather than delete unarchived data.
func NewService(s store.Store, t *tracker.Tracker, e *events.Emitter, p events.Publisher,
	dest Destination, policies []Policy, metricsRetention time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	SortPolicies(policies)
	return &Service{
		store:            s,
		tracker:          t,
		emitter:          e,
		publisher:        p,
		dest:             dest,
		policies:         policies,
		metricsRetention: metricsRetention,
		logger:           logger,
	}
}

// ExecuteCleanup runs every policy in order. A failing policy is recorded in
// Stats.Errors and later policies still run. With dryRun set nothing is
// deleted or archived; matching records are only counted.
func (s *Service) ExecuteCleanup(ctx context.Context, dryRun bool) (*Stats, error) {
	now := time.Now().UTC()
	stats := &Stats{DryRun: dryRun}

	for _, p := range s.policies {
		if err := s.runPolicy(ctx, p, now, dryRun, stats); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", p.Name, err))
			s.logger.Error("retention policy failed", "policy", p.Name, "error", err)
		}
	}

	stats.SpaceSavedEstimate = stats.Deleted * approxRecordBytes

	if !dryRun {
		s.sweepMetrics(ctx, now, stats)
		s.recordRun(ctx, stats)
	}

	s.logger.Info("cleanup completed",
		"processed", stats.Processed,
		"deleted", stats.Deleted,
		"archived", stats.Archived,
		"errors", len(stats.Errors),
		"dry_run", dryRun)
	return stats, nil
}

func (s *Service) runPolicy(ctx context.Context, p Policy, now time.Time, dryRun bool, stats *Stats) error {
	filter := p.Filter(now)

	count, err := s.store.CountActivities(ctx, filter)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	stats.Processed += count
	if count == 0 {
		return nil
	}

	if dryRun {
		s.logger.Info("cleanup dry run",
			"policy", p.Name, "matching", count, "cutoff", filter.Before)
		return nil
	}

	var archived int64
	if p.Archive {
		archived, err = s.archive(ctx, p, filter, now)
		if err != nil {
			// Never delete records that failed to archive.
			return fmt.Errorf("archive: %w", err)
		}
		stats.Archived += archived
	}

	deleted, err := s.store.DeleteActivities(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	stats.Deleted += deleted

	s.logger.Info("retention policy applied",
		"policy", p.Name, "deleted", deleted, "cutoff", filter.Before)

	s.emit(ctx, events.CleanupPayload{
		Policy:   p.Name,
		Deleted:  deleted,
		Archived: archived,
	})
	return nil
}

// archiveDocument is the JSON object written to the archive destination,
// one per policy per run.
type archiveDocument struct {
	Policy      string            `json:"policy"`
	GeneratedAt time.Time         `json:"generated_at"`
	Cutoff      time.Time         `json:"cutoff"`
	Count       int               `json:"count"`
	Activities  []*model.Activity `json:"activities"`
}

func (s *Service) archive(ctx context.Context, p Policy, filter model.ActivityFilter, now time.Time) (int64, error) {
	if s.dest == nil {
		return 0, fmt.Errorf("policy archives but no destination is configured")
	}

	var all []*model.Activity
	page := filter
	page.Limit = archivePageSize
	for {
		batch, _, err := s.store.ListActivities(ctx, page)
		if err != nil {
			return 0, fmt.Errorf("list: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < archivePageSize {
			break
		}
		page.Offset += archivePageSize
	}

	doc := archiveDocument{
		Policy:      p.Name,
		GeneratedAt: now,
		Cutoff:      filter.Before,
		Count:       len(all),
		Activities:  all,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", now.Format("2006-01-02T150405Z"), p.Name)
	if err := s.dest.Write(ctx, key, data); err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (s *Service) sweepMetrics(ctx context.Context, now time.Time, stats *Stats) {
	cutoff := now.Add(-s.metricsRetention)
	swept, err := s.store.DeleteMetricsBefore(ctx, cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("metrics sweep: %v", err))
		s.logger.Error("metrics sweep failed", "error", err)
		return
	}
	if swept > 0 {
		s.logger.Info("swept old metrics", "deleted", swept, "cutoff", cutoff)
	}
}

// recordRun writes one CLEANUP activity summarizing the run.
func (s *Service) recordRun(ctx context.Context, stats *Stats) {
	meta, _ := json.Marshal(stats)
	s.tracker.TrackSystem(ctx, model.ActionCleanup, model.SeverityInfo,
		tracker.Context{Timestamp: time.Now().UTC()},
		tracker.Details{
			Description: fmt.Sprintf("retention cleanup deleted %d records (%d archived)", stats.Deleted, stats.Archived),
			Metadata:    meta,
			Tags:        []string{"retention"},
		})
}

func (s *Service) emit(ctx context.Context, payload events.CleanupPayload) {
	evt := events.Event{
		ID:        idgen.MustGenerate(idgen.PrefixEvent),
		Type:      events.TypeSystemCleanup,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if s.emitter != nil {
		s.emitter.Emit(evt)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, evt.Type, evt); err != nil {
			s.logger.Warn("cleanup event publish failed", "error", err)
		}
	}
}
