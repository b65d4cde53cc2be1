package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type LocationType string

const (
	LocationAddress  LocationType = "address"
	LocationGrave    LocationType = "grave"
	LocationLamppost LocationType = "lamppost"
	LocationPoint    LocationType = "point"
)

const (
	firstAddedLocationWeight = 0.2
	locationWeightStep       = 0.1
)

// Location belongs to either a report or a signal.
type Location struct {
	ID          uint64
	ReportID    *uint64
	SignalID    *uint64
	Type        LocationType
	Street      string
	HouseNumber *int
	HouseLetter string
	Suffix      string
	Postcode    string
	City        string
	District    string
	Cemetery    string
	GraveNumber string
	Section     string
	LamppostID  string
	Lat         *float64
	Lon         *float64
	Weight      float64
	Primary     bool
	CreatedAt   time.Time
}

func IsKnownLocationType(t LocationType) bool {
	switch t {
	case LocationAddress, LocationGrave, LocationLamppost, LocationPoint:
		return true
	default:
		return false
	}
}

// Validate checks the fields a location of its type needs.
func (l Location) Validate() error {
	if !IsKnownLocationType(l.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidLocation, l.Type)
	}
	if (l.Lat == nil) != (l.Lon == nil) {
		return fmt.Errorf("%w: lat and lon must be given together", ErrInvalidLocation)
	}
	if l.Lat != nil && (math.Abs(*l.Lat) > 90 || math.Abs(*l.Lon) > 180) {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidLocation)
	}
	if l.Type == LocationPoint && l.Lat == nil {
		return fmt.Errorf("%w: point location needs coordinates", ErrInvalidLocation)
	}
	return nil
}

// IsReferenceCandidate reports whether the location may become a report's
// reference location.
func (l Location) IsReferenceCandidate() bool {
	return l.Type == LocationAddress || l.Type == LocationGrave
}

// Text is the human readable description used in search text and matching.
// Lamppost and point locations have no text.
func (l Location) Text() string {
	switch l.Type {
	case LocationAddress:
		var b strings.Builder
		b.WriteString(strings.TrimSpace(l.Street))
		if l.HouseNumber != nil {
			b.WriteString(" ")
			b.WriteString(strconv.Itoa(*l.HouseNumber))
		}
		b.WriteString(strings.TrimSpace(l.HouseLetter))
		if suffix := strings.TrimSpace(l.Suffix); suffix != "" {
			b.WriteString("-")
			b.WriteString(suffix)
		}
		return strings.TrimSpace(b.String())
	case LocationGrave:
		parts := make([]string, 0, 2)
		if grave := strings.TrimSpace(l.GraveNumber); grave != "" {
			parts = append(parts, grave)
		}
		if section := strings.TrimSpace(l.Section); section != "" {
			parts = append(parts, section)
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// NextLocationWeight is max(existing)+0.1 rounded to two decimals, or 0.2
// for the first location.
func NextLocationWeight(existing []Location) float64 {
	if len(existing) == 0 {
		return firstAddedLocationWeight
	}
	highest := existing[0].Weight
	for _, loc := range existing[1:] {
		if loc.Weight > highest {
			highest = loc.Weight
		}
	}
	return math.Round((highest+locationWeightStep)*100) / 100
}

// SelectReferenceLocation picks the heaviest address or grave location.
// Ties go to the primary location, then to the most recent one.
func SelectReferenceLocation(locations []Location) (Location, bool) {
	var best Location
	found := false
	for _, loc := range locations {
		if !loc.IsReferenceCandidate() {
			continue
		}
		if !found || betterReference(loc, best) {
			best = loc
			found = true
		}
	}
	return best, found
}

func betterReference(candidate Location, current Location) bool {
	if candidate.Weight != current.Weight {
		return candidate.Weight > current.Weight
	}
	if candidate.Primary != current.Primary {
		return candidate.Primary
	}
	return candidate.ID > current.ID
}

const earthRadiusMeters = 6371000.0

// DistanceMeters is the haversine distance between two locations with
// coordinates. ok is false when either side has none.
func DistanceMeters(a Location, b Location) (distance float64, ok bool) {
	if a.Lat == nil || a.Lon == nil || b.Lat == nil || b.Lon == nil {
		return 0, false
	}
	lat1 := *a.Lat * math.Pi / 180
	lat2 := *b.Lat * math.Pi / 180
	dLat := (*b.Lat - *a.Lat) * math.Pi / 180
	dLon := (*b.Lon - *a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h))), true
}
