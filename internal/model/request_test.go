package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RequestStatus
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusActive, false},
		{StatusPending, StatusCompleted, false},
		{StatusAccepted, StatusActive, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusRejected, StatusPending, false},
		{StatusCancelled, StatusAccepted, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalAndBlocking(t *testing.T) {
	for _, s := range []RequestStatus{StatusRejected, StatusCancelled, StatusCompleted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.Blocking() {
			t.Errorf("%s should not block the calendar", s)
		}
	}
	for _, s := range BlockingStatuses {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.Blocking() {
			t.Errorf("%s should block the calendar", s)
		}
	}
}

func TestBillableDays(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2027, 1, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"three days", day(1), day(4), 3},
		{"one day", day(1), day(2), 1},
		{"partial day rounds up", day(1), day(2).Add(time.Hour), 2},
		{"empty range", day(2), day(2), 0},
		{"reversed range", day(3), day(1), 0},
	}

	for _, tt := range tests {
		if got := BillableDays(tt.start, tt.end); got != tt.want {
			t.Errorf("%s: BillableDays = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDateRangeOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2027, 1, d, 0, 0, 0, 0, time.UTC) }

	base := DateRange{Start: day(1), End: day(4)}
	tests := []struct {
		name  string
		other DateRange
		want  bool
	}{
		{"inside", DateRange{day(2), day(3)}, true},
		{"tail overlap", DateRange{day(3), day(5)}, true},
		{"touching end", DateRange{day(4), day(6)}, false},
		{"touching start", DateRange{day(0), day(1)}, false},
		{"covering", DateRange{day(0), day(9)}, true},
	}

	for _, tt := range tests {
		if got := base.Overlaps(tt.other); got != tt.want {
			t.Errorf("%s: Overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}
