package report

import (
	"fmt"
	"strings"
)

type StatusName string

const (
	StatusOpen             StatusName = "open"
	StatusInProgress       StatusName = "in_progress"
	StatusReview           StatusName = "review"
	StatusPaused           StatusName = "paused"
	StatusAwaitingReporter StatusName = "awaiting_reporter"
	StatusClosed           StatusName = "closed"
	StatusCancelled        StatusName = "cancelled"
)

// InitialStatus is the status every new report starts in.
const InitialStatus = StatusOpen

var transitions = map[StatusName][]StatusName{
	StatusOpen:             {StatusInProgress, StatusReview, StatusPaused, StatusAwaitingReporter, StatusClosed, StatusCancelled},
	StatusInProgress:       {StatusOpen, StatusReview, StatusPaused, StatusAwaitingReporter, StatusClosed, StatusCancelled},
	StatusReview:           {StatusOpen, StatusInProgress, StatusPaused, StatusAwaitingReporter, StatusClosed, StatusCancelled},
	StatusPaused:           {StatusOpen, StatusInProgress, StatusClosed, StatusCancelled},
	StatusAwaitingReporter: {StatusOpen, StatusInProgress, StatusClosed, StatusCancelled},
	StatusClosed:           {StatusOpen},
	StatusCancelled:        {StatusOpen},
}

// AllStatuses returns the known status names in a stable order.
func AllStatuses() []StatusName {
	return []StatusName{
		StatusOpen,
		StatusInProgress,
		StatusReview,
		StatusPaused,
		StatusAwaitingReporter,
		StatusClosed,
		StatusCancelled,
	}
}

func IsKnownStatus(name StatusName) bool {
	_, ok := transitions[name]
	return ok
}

// IsTerminal reports whether name closes a report.
func IsTerminal(name StatusName) bool {
	return name == StatusClosed || name == StatusCancelled
}

func IsPausedStatus(name StatusName) bool {
	return name == StatusPaused || name == StatusAwaitingReporter
}

// NextStatuses lists the statuses reachable from current. An empty or
// unknown current status may move to any known status.
func NextStatuses(current StatusName) []StatusName {
	next, ok := transitions[current]
	if !ok {
		return AllStatuses()
	}
	out := make([]StatusName, len(next))
	copy(out, next)
	return out
}

// IsTransitionAllowed never permits an unknown target or a same-status move.
func IsTransitionAllowed(current StatusName, next StatusName) bool {
	if !IsKnownStatus(next) {
		return false
	}
	if current == next {
		return false
	}
	for _, candidate := range NextStatuses(current) {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseStatusName normalizes user input into a known status name.
func ParseStatusName(raw string) (StatusName, error) {
	name := StatusName(strings.ToLower(strings.TrimSpace(raw)))
	if !IsKnownStatus(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return name, nil
}
