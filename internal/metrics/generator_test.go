package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/store"
)

// statsStore serves one canned ActivityStats and records upserted metrics.
type statsStore struct {
	stats    *store.ActivityStats
	statsErr error

	from, to time.Time
	upserted []*model.Metric
}

func (s *statsStore) CreateActivity(context.Context, *model.Activity) error { return nil }

func (s *statsStore) GetActivity(context.Context, string) (*model.Activity, error) {
	return nil, errors.New("not implemented")
}

func (s *statsStore) ListActivities(context.Context, model.ActivityFilter) ([]*model.Activity, int, error) {
	return nil, 0, nil
}

func (s *statsStore) CountActivities(context.Context, model.ActivityFilter) (int64, error) {
	return 0, nil
}

func (s *statsStore) DeleteActivities(context.Context, model.ActivityFilter) (int64, error) {
	return 0, nil
}

func (s *statsStore) UpsertMetric(_ context.Context, m *model.Metric) error {
	s.upserted = append(s.upserted, m)
	return nil
}

func (s *statsStore) ListMetrics(context.Context, string, model.MetricPeriod, time.Time, time.Time) ([]*model.Metric, error) {
	return nil, nil
}

func (s *statsStore) DeleteMetricsBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *statsStore) ActivityStats(_ context.Context, from, to time.Time) (*store.ActivityStats, error) {
	s.from, s.to = from, to
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.stats, nil
}

func (s *statsStore) Close() error { return nil }

func (s *statsStore) metricValue(t *testing.T, metricType string) float64 {
	t.Helper()
	for _, m := range s.upserted {
		if m.Type == metricType {
			return m.Value
		}
	}
	t.Fatalf("metric %q was not upserted", metricType)
	return 0
}

func (s *statsStore) hasMetric(metricType string) bool {
	for _, m := range s.upserted {
		if m.Type == metricType {
			return true
		}
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateDaily(t *testing.T) {
	ss := &statsStore{stats: &store.ActivityStats{
		Total: 100,
		ByAction: map[model.Action]int64{
			model.ActionLogin: 20,
			model.ActionRead:  60,
			model.ActionBook:  15,
		},
		Logins:                  20,
		UniqueLoginActors:       12,
		BookingsCreated:         15,
		CarViews:                50,
		DistinctResourcesViewed: 8,
		Errors:                  5,
	}}
	gen := NewGenerator(ss, nil, nil, discardLogger())

	date := time.Date(2026, 8, 27, 15, 30, 0, 0, time.UTC)
	require.NoError(t, gen.GenerateDaily(context.Background(), date))

	// Window snaps to the containing UTC day.
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), ss.from)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), ss.to)

	assert.Equal(t, float64(20), ss.metricValue(t, model.MetricLogins))
	assert.Equal(t, float64(12), ss.metricValue(t, model.MetricUniqueLogins))
	assert.Equal(t, float64(100), ss.metricValue(t, model.MetricTotalActivity))
	assert.Equal(t, float64(15), ss.metricValue(t, model.MetricBookingsCreated))
	assert.Equal(t, float64(8), ss.metricValue(t, model.MetricResourcesViewed))
	assert.Equal(t, float64(5), ss.metricValue(t, model.MetricErrors))
	assert.InDelta(t, 30.0, ss.metricValue(t, model.MetricBookingConversion), 0.001) // 15 / 50
	assert.InDelta(t, 5.0, ss.metricValue(t, model.MetricErrorRate), 0.001)          // 5 / 100

	for _, m := range ss.upserted {
		assert.Equal(t, model.PeriodDaily, m.Period)
		assert.Equal(t, ss.from, m.PeriodStart)
		assert.Equal(t, ss.to, m.PeriodEnd)
		assert.NotEmpty(t, m.ID)
	}
}

func TestGenerateDaily_SkipsConversionWithoutViews(t *testing.T) {
	ss := &statsStore{stats: &store.ActivityStats{
		Total:           10,
		ByAction:        map[model.Action]int64{model.ActionBook: 10},
		BookingsCreated: 10,
		CarViews:        0,
	}}
	gen := NewGenerator(ss, nil, nil, discardLogger())

	require.NoError(t, gen.GenerateDaily(context.Background(), time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)))

	assert.False(t, ss.hasMetric(model.MetricBookingConversion),
		"conversion rate must be skipped when there are no views")
}

func TestGenerateDaily_SkipsErrorRateWithoutActivity(t *testing.T) {
	ss := &statsStore{stats: &store.ActivityStats{ByAction: map[model.Action]int64{}}}
	gen := NewGenerator(ss, nil, nil, discardLogger())

	require.NoError(t, gen.GenerateDaily(context.Background(), time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)))

	assert.False(t, ss.hasMetric(model.MetricErrorRate))
	assert.Equal(t, float64(0), ss.metricValue(t, model.MetricTotalActivity))
}

func TestGenerateDaily_ZeroDateMeansYesterday(t *testing.T) {
	ss := &statsStore{stats: &store.ActivityStats{ByAction: map[model.Action]int64{}}}
	gen := NewGenerator(ss, nil, nil, discardLogger())

	require.NoError(t, gen.GenerateDaily(context.Background(), time.Time{}))

	wantStart := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	assert.Equal(t, wantStart, ss.from)
	assert.Equal(t, wantStart.AddDate(0, 0, 1), ss.to)
}

func TestGenerateDaily_StatsError(t *testing.T) {
	ss := &statsStore{statsErr: errors.New("db offline")}
	gen := NewGenerator(ss, nil, nil, discardLogger())

	err := gen.GenerateDaily(context.Background(), time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db offline")
	assert.Empty(t, ss.upserted)
}
