package report

import (
	"net/url"
	"strings"
)

// Origin returns scheme://host of raw, lower-cased, or "" when raw is not
// an absolute URL.
func Origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// Serves reports whether the application owns uri through its base URL or
// one of its valid base URLs.
func (a Application) Serves(uri string) bool {
	origin := Origin(uri)
	if origin == "" {
		return false
	}
	if Origin(a.BaseURL) == origin {
		return true
	}
	for _, base := range a.ValidBaseURLs {
		if Origin(base) == origin {
			return true
		}
	}
	return false
}

// MatchApplication finds the application that serves a task type URL.
func MatchApplication(apps []Application, uri string) (Application, bool) {
	for _, app := range apps {
		if app.Serves(uri) {
			return app, true
		}
	}
	return Application{}, false
}
