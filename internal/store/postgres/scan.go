package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/carshare/pulse/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanActivity scans a single row into a model.Activity.
// The row must contain columns in the order defined by activityColumns.
func scanActivity(row scannable) (*model.Activity, error) {
	a, _, err := scanActivityInner(row, false)
	return a, err
}

// scanActivityWithTotal scans a row whose first column is a window-function
// total count, followed by the standard activity columns.
func scanActivityWithTotal(row scannable) (*model.Activity, int, error) {
	return scanActivityInner(row, true)
}

func scanActivityInner(row scannable, withTotal bool) (*model.Activity, int, error) {
	var (
		a            model.Activity
		total        int
		actorID      sql.NullString
		resourceID   sql.NullString
		description  sql.NullString
		durationMS   sql.NullInt64
		requestData  []byte
		responseData []byte
		metadata     []byte
		tags         pq.StringArray
		ipAddress    sql.NullString
		userAgent    sql.NullString
		url          sql.NullString
		referrer     sql.NullString
	)

	dest := []any{
		&a.ID,
		&actorID,
		&a.Action,
		&a.Resource,
		&resourceID,
		&description,
		&a.Severity,
		&a.Source,
		&a.Timestamp,
		&durationMS,
		&requestData,
		&responseData,
		&metadata,
		&tags,
		&ipAddress,
		&userAgent,
		&url,
		&referrer,
		&a.CreatedAt,
	}
	if withTotal {
		dest = append([]any{&total}, dest...)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}

	a.ActorID = actorID.String
	a.ResourceID = resourceID.String
	a.Description = description.String
	if durationMS.Valid {
		a.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	a.RequestData = requestData
	a.ResponseData = responseData
	a.Metadata = metadata
	a.Tags = tags
	a.IPAddress = ipAddress.String
	a.UserAgent = userAgent.String
	a.URL = url.String
	a.Referrer = referrer.String

	return &a, total, nil
}

// scanMetric scans a single row into a model.Metric.
func scanMetric(row scannable) (*model.Metric, error) {
	var (
		m          model.Metric
		unit       sql.NullString
		dimensions []byte
	)

	err := row.Scan(
		&m.ID,
		&m.Type,
		&m.Period,
		&m.PeriodStart,
		&m.PeriodEnd,
		&m.Value,
		&unit,
		&dimensions,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Unit = unit.String
	m.Dimensions = dimensions
	return &m, nil
}

// nullString converts an empty string to NULL for insertion.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullDurationMillis converts a zero duration to NULL, otherwise milliseconds.
func nullDurationMillis(d time.Duration) any {
	if d == 0 {
		return nil
	}
	return d.Milliseconds()
}

// jsonbBytes converts empty JSON payloads to NULL for insertion.
func jsonbBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
