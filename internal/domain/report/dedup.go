package report

import "time"

// Candidate is the slice of state a match policy compares.
type Candidate struct {
	Subject   string
	Location  *Location
	CreatedAt time.Time
	Closed    bool
}

// MatchPolicy decides whether an incoming signal belongs to an existing report.
type MatchPolicy interface {
	Matches(signal Candidate, report Candidate) bool
}

// MatchPolicyFunc adapts a function to MatchPolicy.
type MatchPolicyFunc func(signal Candidate, report Candidate) bool

func (f MatchPolicyFunc) Matches(signal Candidate, report Candidate) bool {
	return f(signal, report)
}

// ProximityPolicy matches open reports with the same primary subject whose
// primary location has the same address text or lies within
// MaxDistanceMeters, created no more than Window before the signal.
type ProximityPolicy struct {
	MaxDistanceMeters float64
	Window            time.Duration
}

func (p ProximityPolicy) Matches(signal Candidate, report Candidate) bool {
	if report.Closed {
		return false
	}
	if signal.Subject == "" || signal.Subject != report.Subject {
		return false
	}
	if p.Window > 0 {
		age := signal.CreatedAt.Sub(report.CreatedAt)
		if age < 0 {
			age = -age
		}
		if age > p.Window {
			return false
		}
	}
	if signal.Location == nil || report.Location == nil {
		return false
	}
	return sameLocation(*signal.Location, *report.Location, p.MaxDistanceMeters)
}

func sameLocation(a Location, b Location, maxDistance float64) bool {
	if text := a.Text(); text != "" && text == b.Text() {
		return true
	}
	if a.LamppostID != "" && a.LamppostID == b.LamppostID {
		return true
	}
	distance, ok := DistanceMeters(a, b)
	return ok && distance <= maxDistance
}

// FirstMatch returns the index of the earliest created matching candidate.
func FirstMatch(policy MatchPolicy, signal Candidate, reports []Candidate) (int, bool) {
	best := -1
	for i, candidate := range reports {
		if !policy.Matches(signal, candidate) {
			continue
		}
		if best < 0 || candidate.CreatedAt.Before(reports[best].CreatedAt) {
			best = i
		}
	}
	return best, best >= 0
}
