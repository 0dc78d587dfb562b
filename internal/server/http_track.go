package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carshare/pulse/internal/model"
	"github.com/carshare/pulse/internal/tracker"
)

// trackItem is one entry in a batch tracking request.
type trackItem struct {
	Action      string          `json:"action"`
	Resource    string          `json:"resource"`
	ResourceID  string          `json:"resourceId,omitempty"`
	Description string          `json:"description,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Severity    string          `json:"severity,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Source      string          `json:"source,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
	URL         string          `json:"url,omitempty"`
	Referrer    string          `json:"referrer,omitempty"`
}

type trackBatchInput struct {
	Activities []trackItem `json:"activities"`
}

// trackItemResult reports the per-item outcome of a batch request.
type trackItemResult struct {
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"` // processed | skipped | error
	Error     string    `json:"error,omitempty"`
}

// handleTrackBatch handles POST /v1/activity/track. Invalid items are
// skipped and write failures are reported per item; the batch as a whole
// always succeeds with a partial-success body.
func (s *Server) handleTrackBatch(w http.ResponseWriter, r *http.Request) {
	var in trackBatchInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(in.Activities) == 0 {
		writeError(w, http.StatusBadRequest, "activities is required")
		return
	}

	results := make([]trackItemResult, 0, len(in.Activities))
	processed := 0

	for _, item := range in.Activities {
		res := s.trackOne(r, item)
		if res.Status == "processed" {
			processed++
		}
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"processed":  processed,
		"total":      len(in.Activities),
		"activities": results,
	})
}

func (s *Server) trackOne(r *http.Request, item trackItem) trackItemResult {
	res := trackItemResult{
		Action:    item.Action,
		Resource:  item.Resource,
		Timestamp: time.Now().UTC(),
	}

	if item.Action == "" || item.Resource == "" {
		res.Status = "skipped"
		res.Error = "action and resource are required"
		return res
	}

	action := model.Action(strings.ToUpper(item.Action))
	if !action.IsValid() {
		res.Status = "skipped"
		res.Error = "unknown action " + item.Action
		return res
	}

	var severity model.Severity
	if item.Severity != "" {
		severity = model.Severity(strings.ToUpper(item.Severity))
		if !severity.IsValid() {
			res.Status = "skipped"
			res.Error = "unknown severity " + item.Severity
			return res
		}
	}

	overrides := tracker.Overrides{ActorID: item.UserID}
	if item.Source != "" {
		overrides.Source = model.Source(item.Source)
	}
	if item.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, item.Timestamp); err == nil {
			overrides.Timestamp = ts.UTC()
		}
	}

	actCtx := tracker.NewContext(r, overrides)
	if item.UserAgent != "" {
		actCtx.UserAgent = item.UserAgent
	}
	if item.URL != "" {
		actCtx.URL = item.URL
	}
	if item.Referrer != "" {
		actCtx.Referrer = item.Referrer
	}
	res.Timestamp = actCtx.Timestamp

	err := s.tracker.Ingest(r.Context(), action, item.Resource, actCtx, tracker.Details{
		ResourceID:  item.ResourceID,
		Description: item.Description,
		Severity:    severity,
		Metadata:    item.Metadata,
		Tags:        item.Tags,
	})
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}

	res.Status = "processed"
	return res
}

// handleHistory handles GET /v1/activity/track.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := tracker.HistoryQuery{}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			query.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			query.Offset = n
		}
	}
	if v := q.Get("startDate"); v != "" {
		ts, err := parseDateParam(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid startDate")
			return
		}
		query.StartDate = ts
	}
	if v := q.Get("endDate"); v != "" {
		ts, err := parseDateParam(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate")
			return
		}
		query.EndDate = ts
	}
	if v := q.Get("actions"); v != "" {
		for _, a := range strings.Split(v, ",") {
			query.Actions = append(query.Actions, model.Action(strings.ToUpper(strings.TrimSpace(a))))
		}
	}
	if v := q.Get("resources"); v != "" {
		for _, res := range strings.Split(v, ",") {
			query.Resources = append(query.Resources, strings.TrimSpace(res))
		}
	}
	if v := q.Get("severity"); v != "" {
		query.Severity = model.Severity(strings.ToUpper(v))
	}

	activities, total, err := s.tracker.History(r.Context(), q.Get("userId"), query)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve activity history")
		return
	}

	if activities == nil {
		activities = []*model.Activity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activities": activities,
		"total":      total,
	})
}

// parseDateParam accepts RFC 3339 timestamps or plain dates (2006-01-02).
func parseDateParam(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
