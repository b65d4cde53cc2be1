package applications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type fakeApplication struct {
	mu          sync.Mutex
	tokenCalls  int
	requests    []string
	authHeaders []string
	lastBody    map[string]any
	status      int
}

func (f *fakeApplication) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api-token-auth/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode token request: %v", err)
		}
		if creds["username"] != "mor" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		status := f.status
		if r.Body != nil && r.Method == http.MethodPost {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.lastBody = body
		}
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("backend down"))
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/taak/" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"_links":        map[string]string{"self": "http://" + r.Host + "/api/v1/taak/77/"},
				"aangemaakt_op": "2026-04-01T07:30:00Z",
			})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestGateway(t *testing.T) (*Gateway, *fakeApplication, report.Application, *mapCache) {
	t.Helper()
	fake := &fakeApplication{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	cache := newMapCache()
	gateway := NewGateway(cache, Config{TokenTTL: 10 * time.Minute}, WithHTTPClient(server.Client()))
	app := report.Application{ID: 3, Name: "fixer", BaseURL: server.URL, Username: "mor", Password: "secret"}
	return gateway, fake, app, cache
}

func TestGatewayCreateTask(t *testing.T) {
	gateway, fake, app, cache := newTestGateway(t)
	ctx := context.Background()

	external, err := gateway.CreateTask(ctx, app, ports.TaskPayload{
		TaskUUID:       uuid.New(),
		TaskURL:        "https://mor.example.org/api/v1/tasks/1/",
		ReportURL:      "https://mor.example.org/api/v1/reports/1/",
		TaskType:       app.BaseURL + "/api/v1/taaktype/1/",
		Title:          "Repair tile",
		Actor:          "operator@example.org",
		Description:    "urgent",
		AdditionalInfo: map[string]any{"priority": "high"},
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if external.URL != app.BaseURL+"/api/v1/taak/77/" {
		t.Fatalf("CreateTask() url = %q", external.URL)
	}
	if external.CreatedAt == nil || !external.CreatedAt.Equal(time.Date(2026, 4, 1, 7, 30, 0, 0, time.UTC)) {
		t.Fatalf("CreateTask() created_at = %v", external.CreatedAt)
	}
	if fake.lastBody["titel"] != "Repair tile" || fake.lastBody["melding"] != "https://mor.example.org/api/v1/reports/1/" || fake.lastBody["omschrijving_intern"] != "urgent" {
		t.Fatalf("request body = %#v", fake.lastBody)
	}
	if fake.authHeaders[0] != "Token tok-1" {
		t.Fatalf("Authorization = %q", fake.authHeaders[0])
	}
	if cache.ttls[tokenCacheKey(app)] != 10*time.Minute {
		t.Fatalf("token ttl = %v", cache.ttls[tokenCacheKey(app)])
	}
}

func TestGatewayReusesCachedToken(t *testing.T) {
	gateway, fake, app, _ := newTestGateway(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := gateway.NotifyReportChanged(ctx, app, "https://mor.example.org/api/v1/reports/1/", "status_aangepast"); err != nil {
			t.Fatalf("NotifyReportChanged() error = %v", err)
		}
	}
	if fake.tokenCalls != 1 {
		t.Fatalf("token calls = %d, want 1", fake.tokenCalls)
	}
	want := "GET /api/v1/melding/notificatie/?melding_url=https%3A%2F%2Fmor.example.org%2Fapi%2Fv1%2Freports%2F1%2F&notificatie_type=status_aangepast"
	if fake.requests[0] != want {
		t.Fatalf("request = %q, want %q", fake.requests[0], want)
	}
}

func TestGatewayWithoutCredentialsSendsNoToken(t *testing.T) {
	gateway, fake, app, _ := newTestGateway(t)
	app.Username = ""
	app.Password = ""

	if err := gateway.NotifyReportChanged(context.Background(), app, "https://mor.example.org/r/", "afgesloten"); err != nil {
		t.Fatalf("NotifyReportChanged() error = %v", err)
	}
	if fake.tokenCalls != 0 || fake.authHeaders[0] != "" {
		t.Fatalf("token calls = %d, auth = %q", fake.tokenCalls, fake.authHeaders[0])
	}
}

func TestGatewayDeleteTask(t *testing.T) {
	gateway, fake, app, _ := newTestGateway(t)

	if err := gateway.DeleteTask(context.Background(), app, app.BaseURL+"/api/v1/taak/77/", "Sam Jansen"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if fake.requests[0] != "DELETE /api/v1/taak/77/?gebruiker=Sam+Jansen" {
		t.Fatalf("request = %q", fake.requests[0])
	}

	fake.status = http.StatusNotFound
	if err := gateway.DeleteTask(context.Background(), app, app.BaseURL+"/api/v1/taak/77/", "Sam Jansen"); err != nil {
		t.Fatalf("DeleteTask() on missing task error = %v", err)
	}
}

func TestGatewayNotifySignalReportClosed(t *testing.T) {
	gateway, fake, app, _ := newTestGateway(t)

	if err := gateway.NotifySignalReportClosed(context.Background(), app, app.BaseURL+"/api/v1/signaal/5/"); err != nil {
		t.Fatalf("NotifySignalReportClosed() error = %v", err)
	}
	if fake.requests[0] != "GET /api/v1/signaal/5/melding-afgesloten/" {
		t.Fatalf("request = %q", fake.requests[0])
	}
}

func TestGatewayServerErrorIsUpstream(t *testing.T) {
	gateway, fake, app, _ := newTestGateway(t)
	fake.status = http.StatusBadGateway

	err := gateway.NotifyReportChanged(context.Background(), app, "https://mor.example.org/r/", "afgesloten")
	if !errors.Is(err, report.ErrUpstream) {
		t.Fatalf("NotifyReportChanged() error = %v, want ErrUpstream", err)
	}
	if !errs.IsRetryable(err) {
		t.Fatalf("IsRetryable() = false for %v", err)
	}
	if !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("error does not carry body: %v", err)
	}
}

func TestGatewayRejectedCredentials(t *testing.T) {
	gateway, _, app, _ := newTestGateway(t)
	app.Password = "wrong"

	err := gateway.NotifyReportChanged(context.Background(), app, "https://mor.example.org/r/", "afgesloten")
	if !errors.Is(err, report.ErrUpstream) {
		t.Fatalf("NotifyReportChanged() error = %v, want ErrUpstream", err)
	}
}

func TestResolveURL(t *testing.T) {
	app := report.Application{
		Name:          "fixer",
		BaseURL:       "https://fixer.example.org",
		ValidBaseURLs: []string{"http://fixer-internal:8000"},
	}
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "relative", raw: "/api/v1/taak/", want: "https://fixer.example.org/api/v1/taak/"},
		{name: "base", raw: "https://fixer.example.org/api/v1/taak/1/?x=1", want: "https://fixer.example.org/api/v1/taak/1/?x=1"},
		{name: "valid base rewritten", raw: "http://fixer-internal:8000/api/v1/taak/2/", want: "https://fixer.example.org/api/v1/taak/2/"},
		{name: "foreign", raw: "https://elsewhere.example.org/api/", wantErr: report.ErrApplicationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(app, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveURL() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
