package model

import (
	"errors"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Period
		wantErr bool
	}{
		{raw: "", want: PeriodMonth},
		{raw: "day", want: PeriodDay},
		{raw: "week", want: PeriodWeek},
		{raw: "month", want: PeriodMonth},
		{raw: "year", want: PeriodYear},
		{raw: "last_hour", wantErr: true},
		{raw: "Day", wantErr: true},
		{raw: "decade", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParsePeriod(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPeriod) {
				t.Errorf("ParsePeriod(%q) error = %v, want ErrInvalidPeriod", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePeriod(%q) = %q, %v; want %q", tt.raw, got, err, tt.want)
		}
	}
}

func TestPeriod_Window(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		period   Period
		wantFrom time.Time
	}{
		{PeriodDay, time.Date(2026, 3, 30, 10, 0, 0, 0, time.UTC)},
		{PeriodWeek, time.Date(2026, 3, 24, 10, 0, 0, 0, time.UTC)},
		// AddDate normalises Feb 31 to Mar 3.
		{PeriodMonth, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC)},
		{PeriodRealtime, time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		from, to := tt.period.Window(now)
		if !from.Equal(tt.wantFrom) {
			t.Errorf("%s: from = %s, want %s", tt.period, from, tt.wantFrom)
		}
		if !to.Equal(now) {
			t.Errorf("%s: to = %s, want now", tt.period, to)
		}
	}
}

func TestEventFilter_Matches(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	from, to := PeriodDay.Window(now)
	filter := EventFilter{From: from, To: to}

	tests := []struct {
		name      string
		createdAt time.Time
		want      bool
	}{
		{"start is inclusive", from, true},
		{"just before start", from.Add(-time.Millisecond), false},
		{"inside", now.Add(-time.Hour), true},
		{"end is exclusive", now, false},
	}

	for _, tt := range tests {
		if got := filter.Matches(&EventRecord{CreatedAt: tt.createdAt}); got != tt.want {
			t.Errorf("%s: Matches() = %v, want %v", tt.name, got, tt.want)
		}
	}

	userFilter := EventFilter{UserID: "U1", From: from, To: to}
	if !userFilter.Matches(&EventRecord{UserID: "U1", CreatedAt: now.Add(-time.Minute)}) {
		t.Error("expected own event to match")
	}
	if userFilter.Matches(&EventRecord{UserID: "U2", CreatedAt: now.Add(-time.Minute)}) {
		t.Error("expected other user's event to be filtered out")
	}
	if userFilter.Matches(&EventRecord{CreatedAt: now.Add(-time.Minute)}) {
		t.Error("expected anonymous event to be filtered out")
	}
}
