// Package metrics aggregates activity records into daily metric rows.
package metrics

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
)

// bookableResource is the resource whose READ activity counts as a booking
// view for the conversion rate.
const bookableResource = "car"

// Generator computes aggregate metrics over activity records.
type Generator struct {
	store     store.Store
	emitter   *events.Emitter
	publisher events.Publisher
	logger    *slog.Logger
}

// NewGenerator returns a Generator. emitter and publisher may be nil when
// metric events are not wanted (one-shot CLI runs).
func NewGenerator(s store.Store, e *events.Emitter, p events.Publisher, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: s, emitter: e, publisher: p, logger: logger}
}

// GenerateDaily computes and upserts all daily metrics for the UTC day that
// contains date. A zero date means the prior full UTC day. Re-running the
// same day overwrites the existing rows, so backfills are safe.
func (g *Generator) GenerateDaily(ctx context.Context, date time.Time) error {
	if date.IsZero() {
		date = time.Now().UTC().AddDate(0, 0, -1)
	}
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, 1)

	stats, err := g.store.ActivityStats(ctx, start, end)
	if err != nil {
		return fmt.Errorf("activity stats for %s: %w", start.Format("2006-01-02"), err)
	}

	window := metricWindow{start: start, end: end}

	metrics := []*model.Metric{
		window.metric(model.MetricLogins, float64(stats.Logins), "count", nil),
		window.metric(model.MetricUniqueLogins, float64(stats.UniqueLoginActors), "count", nil),
		window.metric(model.MetricTotalActivity, float64(stats.Total), "count", actionDimensions(stats.ByAction)),
		window.metric(model.MetricBookingsCreated, float64(stats.BookingsCreated), "count", nil),
		window.metric(model.MetricResourcesViewed, float64(stats.DistinctResourcesViewed), "count", nil),
		window.metric(model.MetricErrors, float64(stats.Errors), "count", nil),
	}

	// Conversion rate is undefined without views; skip the row entirely
	// rather than writing a misleading zero.
	if stats.CarViews > 0 {
		rate := float64(stats.BookingsCreated) / float64(stats.CarViews) * 100
		dims, _ := json.Marshal(map[string]int64{
			"bookings": stats.BookingsCreated,
			"views":    stats.CarViews,
		})
		metrics = append(metrics, window.metric(model.MetricBookingConversion, rate, "percent", dims))
	}

	if stats.Total > 0 {
		errRate := float64(stats.Errors) / float64(stats.Total) * 100
		metrics = append(metrics, window.metric(model.MetricErrorRate, errRate, "percent", nil))
	}

	for _, m := range metrics {
		if err := g.store.UpsertMetric(ctx, m); err != nil {
			return fmt.Errorf("upsert metric %s: %w", m.Type, err)
		}
	}

	g.logger.Info("daily metrics generated",
		"date", start.Format("2006-01-02"),
		"metrics", len(metrics),
		"total_activity", stats.Total)

	g.emit(ctx, start, len(metrics))
	return nil
}

type metricWindow struct {
	start, end time.Time
}

func (w metricWindow) metric(metricType string, value float64, unit string, dims json.RawMessage) *model.Metric {
	return &model.Metric{
		ID:          idgen.MustGenerate(idgen.PrefixMetric),
		Type:        metricType,
		Period:      model.PeriodDaily,
		PeriodStart: w.start,
		PeriodEnd:   w.end,
		Value:       value,
		Unit:        unit,
		Dimensions:  dims,
	}
}

func actionDimensions(byAction map[model.Action]int64) json.RawMessage {
	if len(byAction) == 0 {
		return nil
	}
	dims, err := json.Marshal(byAction)
	if err != nil {
		return nil
	}
	return dims
}

func (g *Generator) emit(ctx context.Context, day time.Time, count int) {
	evt := events.Event{
		ID:        idgen.MustGenerate(idgen.PrefixEvent),
		Type:      events.TypeSystemMetrics,
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"date":    day.Format("2006-01-02"),
			"metrics": count,
		},
	}
	if g.emitter != nil {
		g.emitter.Emit(evt)
	}
	if g.publisher != nil {
		if err := g.publisher.Publish(ctx, evt.Type, evt); err != nil {
			g.logger.Warn("metrics event publish failed", "error", err)
		}
	}
}
