package report

import (
	"errors"
	"testing"
)

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name    string
		current StatusName
		next    StatusName
		want    bool
	}{
		{name: "open to in progress", current: StatusOpen, next: StatusInProgress, want: true},
		{name: "open to closed", current: StatusOpen, next: StatusClosed, want: true},
		{name: "review to in progress", current: StatusReview, next: StatusInProgress, want: true},
		{name: "paused to review", current: StatusPaused, next: StatusReview, want: false},
		{name: "closed reopens", current: StatusClosed, next: StatusOpen, want: true},
		{name: "closed to in progress", current: StatusClosed, next: StatusInProgress, want: false},
		{name: "cancelled to closed", current: StatusCancelled, next: StatusClosed, want: false},
		{name: "same status", current: StatusOpen, next: StatusOpen, want: false},
		{name: "unknown target", current: StatusOpen, next: "gone", want: false},
		{name: "empty target", current: StatusOpen, next: "", want: false},
		{name: "no current status", current: "", next: StatusReview, want: true},
		{name: "unknown current", current: "legacy", next: StatusClosed, want: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := IsTransitionAllowed(testCase.current, testCase.next)
			if got != testCase.want {
				t.Fatalf("IsTransitionAllowed(%q, %q) = %v, want %v", testCase.current, testCase.next, got, testCase.want)
			}
		})
	}
}

func TestTerminalAndPausedStatuses(t *testing.T) {
	for _, name := range AllStatuses() {
		terminal := name == StatusClosed || name == StatusCancelled
		if IsTerminal(name) != terminal {
			t.Fatalf("IsTerminal(%q) = %v", name, IsTerminal(name))
		}
		if terminal && len(NextStatuses(name)) != 1 {
			t.Fatalf("terminal status %q must only reopen, got %v", name, NextStatuses(name))
		}
	}
	if !IsPausedStatus(StatusAwaitingReporter) || IsPausedStatus(StatusReview) {
		t.Fatalf("IsPausedStatus() mismatch")
	}
}

func TestNextStatusesReturnsCopy(t *testing.T) {
	next := NextStatuses(StatusClosed)
	next[0] = StatusCancelled
	if !IsTransitionAllowed(StatusClosed, StatusOpen) {
		t.Fatalf("mutating NextStatuses() result changed the transition table")
	}
}

func TestParseStatusName(t *testing.T) {
	got, err := ParseStatusName("  In_Progress ")
	if err != nil {
		t.Fatalf("ParseStatusName() error = %v", err)
	}
	if got != StatusInProgress {
		t.Fatalf("ParseStatusName() = %q", got)
	}

	if _, err := ParseStatusName("archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("ParseStatusName(archived) error = %v, want ErrInvalidStatus", err)
	}
}
