package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Period is a named trailing aggregation window.
type Period string

// Supported periods.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"

	// PeriodRealtime is the one-hour window of the realtime view.
	PeriodRealtime Period = "last_hour"
)

// DefaultPeriod is used when the caller does not pick one.
const DefaultPeriod = PeriodMonth

// ErrInvalidPeriod is returned for unknown period names.
var ErrInvalidPeriod = errors.New("invalid period")

// ParsePeriod converts a query value into a Period. Empty means DefaultPeriod.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(raw); p {
	case "":
		return DefaultPeriod, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
}

// Window returns the half-open interval [from, to) ending at now.
func (p Period) Window(now time.Time) (from, to time.Time) {
	switch p {
	case PeriodDay:
		from = now.Add(-24 * time.Hour)
	case PeriodWeek:
		from = now.Add(-7 * 24 * time.Hour)
	case PeriodYear:
		from = now.AddDate(-1, 0, 0)
	case PeriodRealtime:
		from = now.Add(-time.Hour)
	default:
		from = now.AddDate(0, -1, 0)
	}
	return from, now
}

// Bucket is one entry of a ranked breakdown.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// AggregationResult is a snapshot computed from a set of events.
type AggregationResult struct {
	TotalEvents        int64                         `json:"total_events"`
	EventsByType       map[EventType]int64           `json:"events_by_type"`
	Revenue            decimal.Decimal               `json:"revenue"`
	RevenueByType      map[EventType]decimal.Decimal `json:"revenue_by_type"`
	ConversionRate     float64                       `json:"conversion_rate"`
	UniqueUsers        int64                         `json:"unique_users"`
	TopPages           []Bucket                      `json:"top_pages"`
	TopProducts        []Bucket                      `json:"top_products"`
	TrafficSources     []Bucket                      `json:"traffic_sources"`
	DeviceBreakdown    []Bucket                      `json:"device_breakdown"`
	HourlyDistribution [24]int64                     `json:"hourly_distribution"`
}

// Count returns the number of events of type t.
func (r *AggregationResult) Count(t EventType) int64 {
	return r.EventsByType[t]
}

// RealtimeResult is the last-hour view used by live dashboards.
type RealtimeResult struct {
	AggregationResult
	ActiveUsers        int64          `json:"active_users"`
	CurrentLiveStreams int64          `json:"current_live_streams"`
	RecentPurchases    []*EventRecord `json:"recent_purchases"`
}

// EventFilter selects the records an aggregation scans.
type EventFilter struct {
	UserID string // empty: all users
	From   time.Time
	To     time.Time
}

// Matches reports whether e falls in the filter: same user when UserID is
// set, and From <= CreatedAt < To.
func (f EventFilter) Matches(e *EventRecord) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	return !e.CreatedAt.Before(f.From) && e.CreatedAt.Before(f.To)
}
