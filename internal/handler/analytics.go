package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bazaarly/analytics/internal/analytics"
	"github.com/bazaarly/analytics/internal/auth"
	"github.com/bazaarly/analytics/internal/handler/dto"
	"github.com/bazaarly/analytics/internal/middleware"
	"github.com/bazaarly/analytics/internal/model"
)

// Acknowledgement messages.
const (
	msgEventTracked    = "Event tracked successfully"
	msgPageView        = "Page view tracked"
	msgProductView     = "Product view tracked"
	msgAddToCart       = "Add to cart tracked"
	msgPurchase        = "Purchase tracked"
	msgFunnelStep      = "Funnel step tracked"
	msgLiveStreamView  = "Live stream view tracked"
	msgTrackingFailure = "failed to track event"
)

// AnalyticsHandler serves the ingestion endpoints. Callers may be
// anonymous; identified callers get their user id on the event.
type AnalyticsHandler struct {
	tracker *analytics.Tracker
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(tracker *analytics.Tracker, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		tracker: tracker,
		logger:  logger.With("component", "handler.analytics"),
	}
}

// Track handles POST /api/analytics/track.
func (h *AnalyticsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req dto.TrackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	in := analytics.TrackInput{
		Type:       model.EventType(strings.TrimSpace(req.EventType)),
		Name:       req.EventName,
		Properties: model.Properties(req.Properties),
		Value:      req.Value,
		Currency:   req.Currency,
	}

	e, err := h.tracker.Track(r.Context(), h.attribute(in, r))
	if err != nil {
		h.writeTrackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.MessageResponse{Message: msgEventTracked, ID: e.ID})
}

// PageView handles POST /api/analytics/page-view. The write happens in
// the background; only validation failures reach the caller.
func (h *AnalyticsHandler) PageView(w http.ResponseWriter, r *http.Request) {
	var req dto.PageViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing(w, field{"page", req.Page}) {
		return
	}

	h.trackAsync(w, r, analytics.PageView(strings.TrimSpace(req.Page)), msgPageView)
}

// ProductView handles POST /api/analytics/product-view, in the background
// like PageView.
func (h *AnalyticsHandler) ProductView(w http.ResponseWriter, r *http.Request) {
	var req dto.ProductViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing(w, field{"productId", string(req.ProductID)}) {
		return
	}

	h.trackAsync(w, r, analytics.ProductView(string(req.ProductID)), msgProductView)
}

// AddToCart handles POST /api/analytics/add-to-cart.
func (h *AnalyticsHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req dto.AddToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing(w, field{"productId", string(req.ProductID)}) || missingValue(w, req.Value == nil) {
		return
	}

	in := analytics.AddToCart(string(req.ProductID), req.Quantity, *req.Value)
	in.Currency = req.Currency
	h.trackSync(w, r, in, msgAddToCart)
}

// Purchase handles POST /api/analytics/purchase.
func (h *AnalyticsHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req dto.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing(w, field{"orderId", string(req.OrderID)}) || missingValue(w, req.Value == nil) {
		return
	}

	in := analytics.Purchase(string(req.OrderID), *req.Value, req.Items)
	in.Currency = req.Currency
	h.trackSync(w, r, in, msgPurchase)
}

// FunnelStep handles POST /api/analytics/funnel-step.
func (h *AnalyticsHandler) FunnelStep(w http.ResponseWriter, r *http.Request) {
	var req dto.FunnelStepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing(w, field{"funnelId", string(req.FunnelID)}, field{"stepId", string(req.StepID)}) {
		return
	}

	h.trackSync(w, r, analytics.FunnelStep(string(req.FunnelID), string(req.StepID), strings.TrimSpace(req.Action)), msgFunnelStep)
}

// LiveStreamView handles POST /api/analytics/live-stream-view.
func (h *AnalyticsHandler) LiveStreamView(w http.ResponseWriter, r *http.Request) {
	var req dto.LiveStreamViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing(w, field{"streamId", string(req.StreamID)}) {
		return
	}

	h.trackSync(w, r, analytics.LiveStreamView(string(req.StreamID)), msgLiveStreamView)
}

func (h *AnalyticsHandler) trackSync(w http.ResponseWriter, r *http.Request, in analytics.TrackInput, message string) {
	if _, err := h.tracker.Track(r.Context(), h.attribute(in, r)); err != nil {
		h.writeTrackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.MessageResponse{Message: message})
}

func (h *AnalyticsHandler) trackAsync(w http.ResponseWriter, r *http.Request, in analytics.TrackInput, message string) {
	if _, err := h.tracker.TrackAsync(h.attribute(in, r)); err != nil {
		h.writeTrackError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.MessageResponse{Message: message})
}

func (h *AnalyticsHandler) attribute(in analytics.TrackInput, r *http.Request) analytics.TrackInput {
	return in.For(auth.UserIDFromContext(r.Context()), requestContext(r))
}

// writeTrackError maps tracker errors to responses. Storage detail stays
// in the log.
func (h *AnalyticsHandler) writeTrackError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *analytics.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	h.logger.Error("track failed",
		"request_id", middleware.GetRequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, msgTrackingFailure)
}

type field struct {
	name  string
	value string
}

// missing writes a 400 for the first blank field and reports whether it did.
func missing(w http.ResponseWriter, fields ...field) bool {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			writeError(w, http.StatusBadRequest, f.name+" is required")
			return true
		}
	}
	return false
}

func missingValue(w http.ResponseWriter, absent bool) bool {
	if absent {
		writeError(w, http.StatusBadRequest, "value is required")
	}
	return absent
}
