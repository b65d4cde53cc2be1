package subjects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

const cacheKeyPrefix = "subject:"

type Config struct {
	// BaseURL resolves relative subject references.
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Catalog looks subjects up over HTTP and caches the answers.
type Catalog struct {
	httpClient *http.Client
	cache      ports.Cache
	cfg        Config
}

var _ ports.SubjectCatalog = (*Catalog)(nil)

func NewCatalog(cache ports.Cache, cfg Config) *Catalog {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}
	return &Catalog{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		cfg:        cfg,
	}
}

type subjectResponse struct {
	Name     string `json:"name"`
	Priority string `json:"priority"`
}

func (c *Catalog) Lookup(ctx context.Context, subjectURL string) (ports.Subject, error) {
	if ctx == nil {
		return ports.Subject{}, errors.New("context is required")
	}
	target, err := c.resolve(subjectURL)
	if err != nil {
		return ports.Subject{}, err
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "infrastructure.subjects"), slog.String("subject", target))

	if subject, ok := c.cached(logCtx, target); ok {
		return subject, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ports.Subject{}, errs.Wrap(err, "build subject request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Subject{}, fmt.Errorf("%w: subject lookup: %v", report.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.Subject{}, fmt.Errorf("%w: subject lookup returned status %d: %s", report.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.Subject{}, fmt.Errorf("%w: read subject: %v", report.ErrUpstream, err)
	}
	var decoded subjectResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ports.Subject{}, fmt.Errorf("%w: decode subject: %v", report.ErrUpstream, err)
	}

	if c.cache != nil && c.cfg.CacheTTL > 0 {
		if err := c.cache.Set(ctx, cacheKeyPrefix+target, string(raw), c.cfg.CacheTTL); err != nil {
			logging.Warn(logCtx, "cache subject failed", slog.Any("err", errs.Loggable(err)))
		}
	}
	return ports.Subject{URL: target, Name: decoded.Name, Priority: decoded.Priority}, nil
}

func (c *Catalog) cached(ctx context.Context, target string) (ports.Subject, bool) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return ports.Subject{}, false
	}
	raw, found, err := c.cache.Get(ctx, cacheKeyPrefix+target)
	if err != nil {
		logging.Warn(ctx, "read cached subject failed", slog.Any("err", errs.Loggable(err)))
		return ports.Subject{}, false
	}
	if !found {
		return ports.Subject{}, false
	}
	var decoded subjectResponse
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logging.Debug(ctx, "drop unreadable cached subject")
		return ports.Subject{}, false
	}
	return ports.Subject{URL: target, Name: decoded.Name, Priority: decoded.Priority}, true
}

func (c *Catalog) resolve(subjectURL string) (string, error) {
	subjectURL = strings.TrimSpace(subjectURL)
	if subjectURL == "" {
		return "", fmt.Errorf("%w: empty subject", report.ErrInvalidSignal)
	}
	if report.Origin(subjectURL) != "" {
		return subjectURL, nil
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		return "", fmt.Errorf("%w: relative subject %q without subjects.base_url", report.ErrInvalidSignal, subjectURL)
	}
	joined, err := url.JoinPath(base, subjectURL)
	if err != nil {
		return "", fmt.Errorf("%w: subject %q: %v", report.ErrInvalidSignal, subjectURL, err)
	}
	return joined, nil
}
