package store

import (
	"context"
	"time"

	"github.com/carshare/pulse/internal/model"
)

// ActivityStats holds the aggregates the metrics generator computes over a
// time window.
type ActivityStats struct {
	Total                   int64
	ByAction                map[model.Action]int64
	Logins                  int64
	UniqueLoginActors       int64
	BookingsCreated         int64
	CarViews                int64
	DistinctResourcesViewed int64
	Errors                  int64
}

// Store defines the persistence interface for activity records and metrics.
type Store interface {
	// Activity records
	CreateActivity(ctx context.Context, a *model.Activity) error
	GetActivity(ctx context.Context, id string) (*model.Activity, error)
	ListActivities(ctx context.Context, filter model.ActivityFilter) ([]*model.Activity, int, error) // returns records, total count, error
	CountActivities(ctx context.Context, filter model.ActivityFilter) (int64, error)
	DeleteActivities(ctx context.Context, filter model.ActivityFilter) (int64, error)

	// Metrics
	UpsertMetric(ctx context.Context, m *model.Metric) error
	ListMetrics(ctx context.Context, metricType string, period model.MetricPeriod, from, to time.Time) ([]*model.Metric, error)
	DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Aggregation
	ActivityStats(ctx context.Context, from, to time.Time) (*ActivityStats, error)

	// Lifecycle
	Close() error
}
