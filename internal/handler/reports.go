package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bazaarly/analytics/internal/analytics"
	"github.com/bazaarly/analytics/internal/auth"
	"github.com/bazaarly/analytics/internal/handler/dto"
	"github.com/bazaarly/analytics/internal/middleware"
	"github.com/bazaarly/analytics/internal/model"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("not allowed to read another user's analytics")
)

// ReportHandler serves the summary and realtime views.
type ReportHandler struct {
	reporter *analytics.Reporter
	now      func() time.Time
	logger   *slog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reporter *analytics.Reporter, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reporter: reporter,
		now:      time.Now,
		logger:   logger.With("component", "handler.reports"),
	}
}

// Summary handles GET /api/analytics/summary?period=&userId=.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}

	period, err := model.ParsePeriod(strings.TrimSpace(r.URL.Query().Get("period")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must be one of day, week, month, year")
		return
	}

	summary, err := h.reporter.Summarize(r.Context(), filter, period)
	if err != nil {
		h.logFailure(r, "summary failed", filter, err)
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}

	writeJSON(w, http.StatusOK, dto.SummaryResponse{Period: period, Summary: summary})
}

// Realtime handles GET /api/analytics/realtime?userId=.
func (h *ReportHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}

	realtime, err := h.reporter.Realtime(r.Context(), filter)
	if err != nil {
		h.logFailure(r, "realtime failed", filter, err)
		writeError(w, http.StatusInternalServerError, "failed to compute realtime view")
		return
	}

	writeJSON(w, http.StatusOK, dto.RealtimeResponse{Realtime: realtime, Timestamp: h.now().UTC()})
}

// filter resolves which events the caller may aggregate and writes the
// error response when it may not.
func (h *ReportHandler) filter(w http.ResponseWriter, r *http.Request) (analytics.Filter, bool) {
	filter, err := ResolveFilter(auth.IdentityFromContext(r.Context()), strings.TrimSpace(r.URL.Query().Get("userId")))
	switch {
	case errors.Is(err, errUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
		return filter, false
	case errors.Is(err, errForbidden):
		writeError(w, http.StatusForbidden, err.Error())
		return filter, false
	}
	return filter, true
}

// ResolveFilter applies the report access policy. Non-admins only see
// their own events; admins may name any user or none for all users.
func ResolveFilter(id *auth.Identity, requestedUserID string) (analytics.Filter, error) {
	if id == nil {
		return analytics.Filter{}, errUnauthenticated
	}
	if id.IsAdmin() {
		return analytics.Filter{UserID: requestedUserID}, nil
	}
	if requestedUserID != "" && requestedUserID != id.UserID {
		return analytics.Filter{}, errForbidden
	}
	return analytics.Filter{UserID: id.UserID}, nil
}

func (h *ReportHandler) logFailure(r *http.Request, msg string, filter analytics.Filter, err error) {
	h.logger.Error(msg,
		"request_id", middleware.GetRequestID(r.Context()),
		"user_id", filter.UserID,
		"error", err,
	)
}
