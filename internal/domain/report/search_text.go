package report

import (
	"sort"
	"strings"
)

// SearchTextInput is everything the search text of a report is built from.
type SearchTextInput struct {
	Signals   []Signal
	Locations []Location
	Reporters []Reporter
}

// BuildSearchText joins source signal ids, location texts and reporter
// contact details with ",". Each group is deduplicated and sorted so the
// same input always yields the same text.
func BuildSearchText(input SearchTextInput) string {
	groups := [][]string{
		sourceSignalIDs(input.Signals),
		locationTexts(input.Locations),
		reporterFullNames(input.Reporters),
		reporterField(input.Reporters, func(r Reporter) string { return r.Email }),
		reporterField(input.Reporters, func(r Reporter) string { return r.Name }),
		reporterField(input.Reporters, func(r Reporter) string { return r.Phone }),
	}

	parts := make([]string, 0, 16)
	for _, group := range groups {
		parts = append(parts, group...)
	}
	return strings.Join(parts, ",")
}

func sourceSignalIDs(signals []Signal) []string {
	values := make([]string, 0, len(signals))
	for _, s := range signals {
		values = append(values, s.SourceSignalID)
	}
	return uniqueSorted(values)
}

func locationTexts(locations []Location) []string {
	values := make([]string, 0, len(locations))
	for _, loc := range locations {
		if loc.Type == LocationLamppost {
			continue
		}
		values = append(values, loc.Text())
	}
	return uniqueSorted(values)
}

func reporterFullNames(reporters []Reporter) []string {
	values := make([]string, 0, len(reporters))
	for _, r := range reporters {
		values = append(values, strings.TrimSpace(strings.TrimSpace(r.FirstName)+" "+strings.TrimSpace(r.LastName)))
	}
	return uniqueSorted(values)
}

func reporterField(reporters []Reporter, field func(Reporter) string) []string {
	values := make([]string, 0, len(reporters))
	for _, r := range reporters {
		values = append(values, field(r))
	}
	return uniqueSorted(values)
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
