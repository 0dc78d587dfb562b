package model

import (
	"encoding/json"
	"time"
)

// MetricPeriod is the granularity of an aggregated metric window.
type MetricPeriod string

const (
	PeriodDaily   MetricPeriod = "daily"
	PeriodWeekly  MetricPeriod = "weekly"
	PeriodMonthly MetricPeriod = "monthly"
)

// Well-known metric types produced by the generator.
const (
	MetricLogins            = "logins"
	MetricUniqueLogins      = "unique_logins"
	MetricTotalActivity     = "total_activity"
	MetricBookingsCreated   = "bookings_created"
	MetricBookingConversion = "booking_conversion_rate"
	MetricResourcesViewed   = "resources_viewed"
	MetricErrors            = "errors"
	MetricErrorRate         = "error_rate"
)

// Metric is one aggregated value for a fixed time window. The tuple
// (Type, Period, PeriodStart, PeriodEnd) is unique; regenerating a window
// upserts the existing row rather than duplicating it.
type Metric struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Period      MetricPeriod    `json:"period"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Value       float64         `json:"value"`
	Unit        string          `json:"unit,omitempty"`
	Dimensions  json.RawMessage `json:"dimensions,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
