// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	return queryCreateActivity(ctx, s.db, a)
}

func (s *PostgresStore) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	return queryGetActivity(ctx, s.db, id)
}

func (s *PostgresStore) ListActivities(ctx context.Context, filter model.ActivityFilter) ([]*model.Activity, int, error) {
	return queryListActivities(ctx, s.db, filter)
}

func (s *PostgresStore) CountActivities(ctx context.Context, filter model.ActivityFilter) (int64, error) {
	return queryCountActivities(ctx, s.db, filter)
}

func (s *PostgresStore) DeleteActivities(ctx context.Context, filter model.ActivityFilter) (int64, error) {
	return queryDeleteActivities(ctx, s.db, filter)
}

func (s *PostgresStore) UpsertMetric(ctx context.Context, m *model.Metric) error {
	return queryUpsertMetric(ctx, s.db, m)
}

func (s *PostgresStore) ListMetrics(ctx context.Context, metricType string, period model.MetricPeriod, from, to time.Time) ([]*model.Metric, error) {
	return queryListMetrics(ctx, s.db, metricType, period, from, to)
}

func (s *PostgresStore) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return queryDeleteMetricsBefore(ctx, s.db, cutoff)
}

func (s *PostgresStore) ActivityStats(ctx context.Context, from, to time.Time) (*store.ActivityStats, error) {
	return queryActivityStats(ctx, s.db, from, to)
}
