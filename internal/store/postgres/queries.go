package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/store"
)

// activityColumns is the column list used for SELECT statements on the
// activities table.
const activityColumns = `id, actor_id, action, resource, resource_id, description,
	severity, source, timestamp, duration_ms, request_data, response_data,
	metadata, tags, ip_address, user_agent, url, referrer, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateActivity(ctx context.Context, db executor, a *model.Activity) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO activities (
			id, actor_id, action, resource, resource_id, description,
			severity, source, timestamp, duration_ms, request_data, response_data,
			metadata, tags, ip_address, user_agent, url, referrer, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19
		)`,
		a.ID,
		nullString(a.ActorID),
		string(a.Action),
		a.Resource,
		nullString(a.ResourceID),
		nullString(a.Description),
		string(a.Severity),
		string(a.Source),
		a.Timestamp,
		nullDurationMillis(a.Duration),
		jsonbBytes(a.RequestData),
		jsonbBytes(a.ResponseData),
		jsonbBytes(a.Metadata),
		pq.Array(a.Tags),
		nullString(a.IPAddress),
		nullString(a.UserAgent),
		nullString(a.URL),
		nullString(a.Referrer),
		a.CreatedAt,
	)
	return err
}

func queryGetActivity(ctx context.Context, db executor, id string) (*model.Activity, error) {
	row := db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id)
	return scanActivity(row)
}

// buildActivityWhere translates an ActivityFilter into a WHERE clause and
// ordered args. startIdx is the placeholder number to start from (1-based).
func buildActivityWhere(filter model.ActivityFilter, startIdx int) (string, []any) {
	var (
		whereClauses []string
		args         []any
		argIdx       = startIdx - 1
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.ActorID != "" {
		whereClauses = append(whereClauses, "actor_id = "+nextArg())
		args = append(args, filter.ActorID)
	}

	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = nextArg()
			args = append(args, string(a))
		}
		whereClauses = append(whereClauses, "action IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Resources) > 0 {
		placeholders := make([]string, len(filter.Resources))
		for i, r := range filter.Resources {
			placeholders[i] = nextArg()
			args = append(args, r)
		}
		whereClauses = append(whereClauses, "resource IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "severity IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.ExcludedActorIDs) > 0 {
		placeholders := make([]string, len(filter.ExcludedActorIDs))
		for i, id := range filter.ExcludedActorIDs {
			placeholders[i] = nextArg()
			args = append(args, id)
		}
		// NULL actor_id (anonymous/system records) never matches an exclusion.
		whereClauses = append(whereClauses,
			"(actor_id IS NULL OR actor_id NOT IN ("+strings.Join(placeholders, ", ")+"))")
	}

	if !filter.After.IsZero() {
		whereClauses = append(whereClauses, "timestamp >= "+nextArg())
		args = append(args, filter.After)
	}

	if !filter.Before.IsZero() {
		whereClauses = append(whereClauses, "timestamp < "+nextArg())
		args = append(args, filter.Before)
	}

	if len(whereClauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(whereClauses, " AND "), args
}

func queryListActivities(ctx context.Context, db executor, filter model.ActivityFilter) ([]*model.Activity, int, error) {
	where, args := buildActivityWhere(filter, 1)

	query := `SELECT COUNT(*) OVER() AS total_count, ` + activityColumns +
		` FROM activities` + where + ` ORDER BY timestamp DESC`

	argIdx := len(args)
	if filter.Limit > 0 {
		argIdx++
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		argIdx++
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		activities []*model.Activity
		total      int
	)
	for rows.Next() {
		a, n, err := scanActivityWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		total = n
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return activities, total, nil
}

func queryCountActivities(ctx context.Context, db executor, filter model.ActivityFilter) (int64, error) {
	where, args := buildActivityWhere(filter, 1)
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`+where, args...).Scan(&count)
	return count, err
}

func queryDeleteActivities(ctx context.Context, db executor, filter model.ActivityFilter) (int64, error) {
	where, args := buildActivityWhere(filter, 1)
	res, err := db.ExecContext(ctx, `DELETE FROM activities`+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryUpsertMetric(ctx context.Context, db executor, m *model.Metric) error {
	now := time.Now().UTC()
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO metrics (
			id, type, period, period_start, period_end,
			value, unit, dimensions, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
		ON CONFLICT ON CONSTRAINT metrics_window_key DO UPDATE SET
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			dimensions = EXCLUDED.dimensions,
			updated_at = EXCLUDED.updated_at`,
		m.ID,
		m.Type,
		string(m.Period),
		m.PeriodStart,
		m.PeriodEnd,
		m.Value,
		nullString(m.Unit),
		jsonbBytes(m.Dimensions),
		createdAt,
		updatedAt,
	)
	return err
}

func queryListMetrics(ctx context.Context, db executor, metricType string, period model.MetricPeriod, from, to time.Time) ([]*model.Metric, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if metricType != "" {
		whereClauses = append(whereClauses, "type = "+nextArg())
		args = append(args, metricType)
	}
	if period != "" {
		whereClauses = append(whereClauses, "period = "+nextArg())
		args = append(args, string(period))
	}
	if !from.IsZero() {
		whereClauses = append(whereClauses, "period_start >= "+nextArg())
		args = append(args, from)
	}
	if !to.IsZero() {
		whereClauses = append(whereClauses, "period_end <= "+nextArg())
		args = append(args, to)
	}

	query := `SELECT id, type, period, period_start, period_end, value, unit, dimensions, created_at, updated_at FROM metrics`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY period_start ASC, type ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*model.Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func queryDeleteMetricsBefore(ctx context.Context, db executor, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM metrics WHERE period_end < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryActivityStats(ctx context.Context, db executor, from, to time.Time) (*store.ActivityStats, error) {
	stats := &store.ActivityStats{
		ByAction: make(map[model.Action]int64),
	}

	// Per-action breakdown; total is derived from it.
	rows, err := db.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM activities
		WHERE timestamp >= $1 AND timestamp < $2
		GROUP BY action`, from, to)
	if err != nil {
		return nil, fmt.Errorf("action breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			action string
			count  int64
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.ByAction[model.Action(action)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.Logins = stats.ByAction[model.ActionLogin]
	stats.BookingsCreated = stats.ByAction[model.ActionBook]

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT actor_id)
		FROM activities
		WHERE timestamp >= $1 AND timestamp < $2
		  AND action = 'LOGIN' AND actor_id IS NOT NULL`, from, to).
		Scan(&stats.UniqueLoginActors)
	if err != nil {
		return nil, fmt.Errorf("unique login actors: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE resource = 'car'),
			COUNT(DISTINCT resource)
		FROM activities
		WHERE timestamp >= $1 AND timestamp < $2 AND action = 'READ'`, from, to).
		Scan(&stats.CarViews, &stats.DistinctResourcesViewed)
	if err != nil {
		return nil, fmt.Errorf("view counts: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM activities
		WHERE timestamp >= $1 AND timestamp < $2
		  AND severity IN ('ERROR', 'CRITICAL')`, from, to).
		Scan(&stats.Errors)
	if err != nil {
		return nil, fmt.Errorf("error count: %w", err)
	}

	return stats, nil
}
