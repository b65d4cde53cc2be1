package report

import (
	"errors"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestNextLocationWeight(t *testing.T) {
	testCases := []struct {
		name     string
		existing []Location
		want     float64
	}{
		{name: "first location", existing: nil, want: 0.2},
		{name: "after initial signal location", existing: []Location{{Weight: 0.25}}, want: 0.35},
		{name: "uses the maximum", existing: []Location{{Weight: 0.2}, {Weight: 0.7}, {Weight: 0.3}}, want: 0.8},
		{name: "rounds to two decimals", existing: []Location{{Weight: 0.1 + 0.2}}, want: 0.4},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := NextLocationWeight(testCase.existing); got != testCase.want {
				t.Fatalf("NextLocationWeight() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestLocationText(t *testing.T) {
	testCases := []struct {
		name string
		loc  Location
		want string
	}{
		{
			name: "address with letter and suffix",
			loc:  Location{Type: LocationAddress, Street: "Coolsingel", HouseNumber: intPtr(40), HouseLetter: "a", Suffix: "2"},
			want: "Coolsingel 40a-2",
		},
		{
			name: "address without number",
			loc:  Location{Type: LocationAddress, Street: "Blaak"},
			want: "Blaak",
		},
		{
			name: "grave",
			loc:  Location{Type: LocationGrave, GraveNumber: "12", Section: "B"},
			want: "12 B",
		},
		{
			name: "lamppost has no text",
			loc:  Location{Type: LocationLamppost, LamppostID: "LM-1"},
			want: "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.loc.Text(); got != testCase.want {
				t.Fatalf("Text() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestSelectReferenceLocation(t *testing.T) {
	locations := []Location{
		{ID: 1, Type: LocationAddress, Weight: 0.25},
		{ID: 2, Type: LocationLamppost, Weight: 0.9},
		{ID: 3, Type: LocationGrave, Weight: 0.35, Primary: true},
		{ID: 4, Type: LocationAddress, Weight: 0.35},
	}

	got, ok := SelectReferenceLocation(locations)
	if !ok {
		t.Fatalf("SelectReferenceLocation() found nothing")
	}
	if got.ID != 3 {
		t.Fatalf("SelectReferenceLocation() = %d, want 3", got.ID)
	}

	if _, ok := SelectReferenceLocation([]Location{{Type: LocationPoint}}); ok {
		t.Fatalf("point locations must not become reference locations")
	}
}

func TestLocationValidate(t *testing.T) {
	if err := (Location{Type: "river"}).Validate(); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("Validate(unknown type) error = %v", err)
	}
	if err := (Location{Type: LocationPoint}).Validate(); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("Validate(point without coordinates) error = %v", err)
	}
	if err := (Location{Type: LocationAddress, Lat: floatPtr(51.9)}).Validate(); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("Validate(lat without lon) error = %v", err)
	}
	if err := (Location{Type: LocationPoint, Lat: floatPtr(51.92), Lon: floatPtr(4.47)}).Validate(); err != nil {
		t.Fatalf("Validate(point) error = %v", err)
	}
}

func TestDistanceMeters(t *testing.T) {
	a := Location{Lat: floatPtr(51.9225), Lon: floatPtr(4.4792)}
	b := Location{Lat: floatPtr(51.9226), Lon: floatPtr(4.4792)}

	d, ok := DistanceMeters(a, b)
	if !ok {
		t.Fatalf("DistanceMeters() ok = false")
	}
	if d < 10 || d > 12 {
		t.Fatalf("DistanceMeters() = %v, want about 11m", d)
	}

	if _, ok := DistanceMeters(a, Location{}); ok {
		t.Fatalf("DistanceMeters() without coordinates ok = true")
	}
}
