package subjects

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"morcore/internal/domain/report"
)

type mapCache map[string]string

func (c mapCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c[key]
	return v, ok, nil
}

func (c mapCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c[key] = value
	return nil
}

func (c mapCache) Delete(_ context.Context, key string) error {
	delete(c, key)
	return nil
}

func newSubjectServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/subjects/pothole/":
			_, _ = w.Write([]byte(`{"name":"Pothole","priority":"high"}`))
		case "/subjects/broken/":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCatalogLookupCaches(t *testing.T) {
	var hits int32
	server := newSubjectServer(t, &hits)
	cache := mapCache{}
	catalog := NewCatalog(cache, Config{CacheTTL: time.Hour})

	for i := 0; i < 2; i++ {
		subject, err := catalog.Lookup(context.Background(), server.URL+"/subjects/pothole/")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if subject.Name != "Pothole" || subject.Priority != "high" {
			t.Fatalf("Lookup() = %+v", subject)
		}
	}
	if hits != 1 {
		t.Fatalf("server hits = %d, want 1", hits)
	}
}

func TestCatalogResolvesRelativeSubjects(t *testing.T) {
	var hits int32
	server := newSubjectServer(t, &hits)
	catalog := NewCatalog(nil, Config{BaseURL: server.URL})

	subject, err := catalog.Lookup(context.Background(), "subjects/pothole/")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if subject.URL != server.URL+"/subjects/pothole/" {
		t.Fatalf("Lookup() url = %q", subject.URL)
	}

	if _, err := NewCatalog(nil, Config{}).Lookup(context.Background(), "subjects/pothole/"); !errors.Is(err, report.ErrInvalidSignal) {
		t.Fatalf("Lookup() without base url error = %v", err)
	}
}

func TestCatalogFailures(t *testing.T) {
	var hits int32
	server := newSubjectServer(t, &hits)
	catalog := NewCatalog(mapCache{}, Config{CacheTTL: time.Hour})

	for _, path := range []string{"/subjects/missing/", "/subjects/broken/"} {
		if _, err := catalog.Lookup(context.Background(), server.URL+path); !errors.Is(err, report.ErrUpstream) {
			t.Fatalf("Lookup(%s) error = %v, want ErrUpstream", path, err)
		}
	}
}
