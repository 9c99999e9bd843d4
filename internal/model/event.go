// Package model defines domain entities for the application.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// EventType is the closed set of analytics event kinds.
//
// Adding a type: declare the constant, append it to AllEventTypes and
// register its required properties in analytics.requiredProperties.
type EventType string

// Known event types.
const (
	EventPageView       EventType = "page_view"
	EventProductView    EventType = "product_view"
	EventAddToCart      EventType = "add_to_cart"
	EventPurchase       EventType = "purchase"
	EventFunnelStep     EventType = "funnel_step"
	EventLiveStreamView EventType = "live_stream_view"
	EventMessageSent    EventType = "message_sent"
	EventSocialShare    EventType = "social_share"
)

// AllEventTypes lists every accepted event type in declaration order.
var AllEventTypes = []EventType{
	EventPageView,
	EventProductView,
	EventAddToCart,
	EventPurchase,
	EventFunnelStep,
	EventLiveStreamView,
	EventMessageSent,
	EventSocialShare,
}

// ErrUnknownEventType is returned when an event type is not in AllEventTypes.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrEventRejected marks a store failure that retrying the same record
// cannot fix, such as a data exception or constraint violation.
var ErrEventRejected = errors.New("event rejected by store")

// ErrValueWithoutCurrency is returned when a record carries a value but no currency.
var ErrValueWithoutCurrency = errors.New("value requires a currency")

// ParseEventType converts a raw string into a known EventType.
func ParseEventType(raw string) (EventType, error) {
	t := EventType(raw)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, raw)
	}
	return t, nil
}

// IsValid reports whether t is one of AllEventTypes.
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Properties is the open, type-specific event payload.
type Properties map[string]any

// EventRecord is one immutable analytics event.
//
// Context fields use the empty string for "not known". EventDate and
// EventHour are derived from CreatedAt and cannot be set on their own.
type EventRecord struct {
	ID         string           `json:"id"`
	EventType  EventType        `json:"event_type"`
	EventName  string           `json:"event_name"`
	Properties Properties       `json:"properties"`
	Value      *decimal.Decimal `json:"value,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	UserID     string           `json:"user_id,omitempty"`

	// Attribution
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`

	// Request context
	SessionID string `json:"session_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Device    string `json:"device,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EventDate returns the UTC calendar date of CreatedAt.
func (e *EventRecord) EventDate() time.Time {
	t := e.CreatedAt.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EventHour returns the UTC hour (0-23) of CreatedAt.
func (e *EventRecord) EventHour() int {
	return e.CreatedAt.UTC().Hour()
}

// Actor resolves who produced the event.
func (e *EventRecord) Actor() Actor {
	if e.UserID != "" {
		return Identified{UserID: e.UserID}
	}
	return Anonymous{SessionID: e.SessionID}
}

// Validate checks the record-level invariants.
func (e *EventRecord) Validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
	if e.EventName == "" {
		return errors.New("event name is required")
	}
	if e.Value != nil && e.Currency == "" {
		return ErrValueWithoutCurrency
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	return nil
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a ULID for t. IDs generated in the same millisecond
// by this process are strictly increasing.
func NewEventID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), idEntropy).String()
}
