// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/model"
)

// ID is an identifier clients send either as a JSON string or a number.
// It is always stored as its string form, so 7 and "7" are the same id.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number")
	}
	*id = ID(n.String())
	return nil
}

// TrackRequest is the body of POST /api/analytics/track.
type TrackRequest struct {
	EventType  string           `json:"eventType"`
	EventName  string           `json:"eventName"`
	Properties map[string]any   `json:"properties,omitempty"`
	Value      *decimal.Decimal `json:"value,omitempty"`
	Currency   string           `json:"currency,omitempty"`
}

// PageViewRequest is the body of POST /api/analytics/page-view.
type PageViewRequest struct {
	Page string `json:"page"`
}

// ProductViewRequest is the body of POST /api/analytics/product-view.
type ProductViewRequest struct {
	ProductID ID `json:"productId"`
}

// AddToCartRequest is the body of POST /api/analytics/add-to-cart.
type AddToCartRequest struct {
	ProductID ID               `json:"productId"`
	Quantity  int              `json:"quantity,omitempty"`
	Value     *decimal.Decimal `json:"value"`
	Currency  string           `json:"currency,omitempty"`
}

// PurchaseRequest is the body of POST /api/analytics/purchase.
type PurchaseRequest struct {
	OrderID  ID               `json:"orderId"`
	Value    *decimal.Decimal `json:"value"`
	Currency string           `json:"currency,omitempty"`
	Items    []any            `json:"items,omitempty"`
}

// FunnelStepRequest is the body of POST /api/analytics/funnel-step.
type FunnelStepRequest struct {
	FunnelID ID     `json:"funnelId"`
	StepID   ID     `json:"stepId"`
	Action   string `json:"action,omitempty"`
}

// LiveStreamViewRequest is the body of POST /api/analytics/live-stream-view.
type LiveStreamViewRequest struct {
	StreamID ID `json:"streamId"`
}

// MessageResponse acknowledges an ingestion request.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// SummaryResponse is the body of GET /api/analytics/summary.
type SummaryResponse struct {
	Period  model.Period             `json:"period"`
	Summary *model.AggregationResult `json:"summary"`
}

// RealtimeResponse is the body of GET /api/analytics/realtime.
type RealtimeResponse struct {
	Realtime  *model.RealtimeResult `json:"realtime"`
	Timestamp time.Time             `json:"timestamp"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
