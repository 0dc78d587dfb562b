// Package tracker is the ingestion API for activity records: it persists
// one record per tracked action and publishes a matching domain event.
// Tracking is best-effort by contract: it must never break the request it
// instruments.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/carshare/pulse/internal/events"
	"github.com/carshare/pulse/internal/idgen"
	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/store"
)

// Details carries the optional fields of a tracked activity.
type Details struct {
	ResourceID   string
	Description  string
	Severity     model.Severity
	Duration     time.Duration
	RequestData  json.RawMessage
	ResponseData json.RawMessage
	Metadata     json.RawMessage
	Tags         []string
}

// HistoryQuery holds the filter options for reading a user's activity history.
type HistoryQuery struct {
	Limit     int
	Offset    int
	StartDate time.Time
	EndDate   time.Time
	Actions   []model.Action
	Resources []string
	Severity  model.Severity
}

// maxHistoryLimit caps a single history page.
const maxHistoryLimit = 100

// Tracker persists activity records and publishes domain events. Writes
// and publishes are independent: a publish failure never rolls back the
// write and never reaches the caller.
type Tracker struct {
	store     store.Store
	emitter   *events.Emitter
	publisher events.Publisher
	logger    *slog.Logger
}

// New returns a Tracker backed by the given store and emitter. The
// publisher mirrors events to an external bus and may be a NoopPublisher.
func New(s store.Store, e *events.Emitter, p events.Publisher, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: s, emitter: e, publisher: p, logger: logger}
}

// TrackActivity records one user-originated activity. Calls with an empty
// action or resource are no-ops. All failures are logged, never returned.
func (t *Tracker) TrackActivity(ctx context.Context, action model.Action, resource string, actCtx Context, details Details) {
	if action == "" || resource == "" {
		t.logger.Debug("tracking skipped: action and resource are required",
			"action", action.String(), "resource", resource)
		return
	}
	_ = t.Ingest(ctx, action, resource, actCtx, details)
}

// Ingest records one user-originated activity and reports the persistence
// error, for callers (the batch endpoint) that surface per-item outcomes.
// Even on error the failure has already been re-tracked best-effort.
func (t *Tracker) Ingest(ctx context.Context, action model.Action, resource string, actCtx Context, details Details) error {
	return t.track(ctx, events.TypeUserActivity, action, resource, actCtx, details)
}

// TrackSystem records one system-originated activity. Severity ERROR or
// CRITICAL produces a system.error event, everything else system.activity.
func (t *Tracker) TrackSystem(ctx context.Context, action model.Action, severity model.Severity, actCtx Context, details Details) {
	if action == "" {
		t.logger.Debug("system tracking skipped: action is required")
		return
	}
	details.Severity = severity
	actCtx.Source = model.SourceSystem

	eventType := events.TypeSystemActivity
	if severity == model.SeverityError || severity == model.SeverityCritical {
		eventType = events.TypeSystemError
	}
	resource := "system"
	if details.ResourceID != "" {
		resource = details.ResourceID
	}
	t.track(ctx, eventType, action, resource, actCtx, details)
}

func (t *Tracker) track(ctx context.Context, eventType string, action model.Action, resource string, actCtx Context, details Details) error {
	record := buildRecord(action, resource, actCtx, details)

	if err := model.ValidateActivity(record); err != nil {
		t.logger.Warn("rejected invalid activity",
			"action", action.String(), "resource", resource, "error", err)
		return err
	}

	if err := t.store.CreateActivity(ctx, record); err != nil {
		t.logger.Error("failed to persist activity",
			"action", action.String(), "resource", resource, "error", err)
		t.trackPersistFailure(ctx, record, err)
		return err
	}

	t.publish(ctx, events.Event{
		ID:            idgen.MustGenerate(idgen.PrefixEvent),
		Type:          eventType,
		Timestamp:     record.Timestamp,
		CorrelationID: record.ID,
		Payload: events.ActivityPayload{
			ActivityID:  record.ID,
			ActorID:     record.ActorID,
			Action:      record.Action,
			Resource:    record.Resource,
			ResourceID:  record.ResourceID,
			Description: record.Description,
			Severity:    record.Severity,
			Tags:        record.Tags,
		},
	})
	return nil
}

// trackPersistFailure re-tracks a failed write as a system.error, once.
// A failure while recording the failure is swallowed.
func (t *Tracker) trackPersistFailure(ctx context.Context, failed *model.Activity, cause error) {
	errRecord := buildRecord(model.ActionCreate, "activity", Context{
		Source:    model.SourceSystem,
		Timestamp: time.Now().UTC(),
	}, Details{
		Description: "activity persistence failed: " + cause.Error(),
		Severity:    model.SeverityError,
		Tags:        []string{"tracking-failure"},
	})

	if err := t.store.CreateActivity(ctx, errRecord); err != nil {
		t.logger.Warn("failed to record tracking failure", "error", err)
	}

	t.publish(ctx, events.Event{
		ID:            idgen.MustGenerate(idgen.PrefixEvent),
		Type:          events.TypeSystemError,
		Timestamp:     errRecord.Timestamp,
		CorrelationID: failed.ID,
		Payload: events.ErrorPayload{
			Message:  cause.Error(),
			Origin:   "tracker",
			Resource: failed.Resource,
		},
	})
}

// publish fans the event out in-process and mirrors it to the external bus.
func (t *Tracker) publish(ctx context.Context, evt events.Event) {
	t.emitter.Emit(evt)
	if err := t.publisher.Publish(ctx, evt.Type, evt); err != nil {
		t.logger.Warn("failed to mirror event", "type", evt.Type, "error", err)
	}
}

// History returns a filtered, paginated page of one user's activity
// records plus the total match count.
func (t *Tracker) History(ctx context.Context, userID string, q HistoryQuery) ([]*model.Activity, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	filter := model.ActivityFilter{
		ActorID:   userID,
		Actions:   q.Actions,
		Resources: q.Resources,
		After:     q.StartDate,
		Before:    q.EndDate,
		Limit:     limit,
		Offset:    q.Offset,
	}
	if q.Severity != "" {
		filter.Severities = []model.Severity{q.Severity}
	}

	return t.store.ListActivities(ctx, filter)
}

func buildRecord(action model.Action, resource string, actCtx Context, details Details) *model.Activity {
	severity := details.Severity
	if severity == "" {
		severity = model.SeverityInfo
	}
	timestamp := actCtx.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return &model.Activity{
		ID:           idgen.MustGenerate(idgen.PrefixActivity),
		ActorID:      actCtx.ActorID,
		Action:       action,
		Resource:     resource,
		ResourceID:   details.ResourceID,
		Description:  details.Description,
		Severity:     severity,
		Source:       actCtx.Source,
		Timestamp:    timestamp,
		Duration:     details.Duration,
		RequestData:  details.RequestData,
		ResponseData: details.ResponseData,
		Metadata:     details.Metadata,
		Tags:         details.Tags,
		IPAddress:    actCtx.IPAddress,
		UserAgent:    actCtx.UserAgent,
		URL:          actCtx.URL,
		Referrer:     actCtx.Referrer,
		CreatedAt:    time.Now().UTC(),
	}
}
