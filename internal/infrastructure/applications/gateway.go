package applications

import (
	"bytes"
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

const (
	createTaskPath     = "/api/v1/taak/"
	reportClosedSuffix = "melding-afgesloten/"
	maxErrorBody       = 2048
)

type Config struct {
	TokenPath  string
	NotifyPath string
	Timeout    time.Duration
	TokenTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		TokenPath:  "/api-token-auth/",
		NotifyPath: "/api/v1/melding/notificatie/",
		Timeout:    20 * time.Second,
		TokenTTL:   time.Hour,
	}
}

// Gateway talks to the external applications that handle tasks. Tokens are
// fetched per application and kept in the cache.
type Gateway struct {
	httpClient *http.Client
	cache      ports.Cache
	cfg        Config
}

var _ ports.ApplicationGateway = (*Gateway)(nil)

type Option func(*Gateway)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

func NewGateway(cache ports.Cache, cfg Config, opts ...Option) *Gateway {
	defaults := DefaultConfig()
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaults.TokenPath
	}
	if cfg.NotifyPath == "" {
		cfg.NotifyPath = defaults.NotifyPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	g := &Gateway{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type createTaskRequest struct {
	TaskType            string         `json:"taaktype"`
	Title               string         `json:"titel"`
	Message             string         `json:"bericht"`
	Task                string         `json:"taakopdracht"`
	Report              string         `json:"melding"`
	Actor               string         `json:"gebruiker"`
	AdditionalInfo      map[string]any `json:"additionele_informatie"`
	DescriptionInternal string         `json:"omschrijving_intern"`
}

type createTaskResponse struct {
	Links struct {
		Self string `json:"self"`
	} `json:"_links"`
	CreatedAt string `json:"aangemaakt_op"`
	Error     *struct {
		Message    string `json:"bericht"`
		StatusCode int    `json:"status_code"`
	} `json:"error"`
}

func (g *Gateway) CreateTask(ctx context.Context, app report.Application, payload ports.TaskPayload) (ports.ExternalTask, error) {
	logCtx := g.logCtx(ctx, app, "create_task")

	additional := payload.AdditionalInfo
	if additional == nil {
		additional = map[string]any{}
	}
	body, err := json.Marshal(createTaskRequest{
		TaskType:            payload.TaskType,
		Title:               payload.Title,
		Message:             payload.Message,
		Task:                payload.TaskURL,
		Report:              payload.ReportURL,
		Actor:               payload.Actor,
		AdditionalInfo:      additional,
		DescriptionInternal: payload.Description,
	})
	if err != nil {
		return ports.ExternalTask{}, errs.Wrap(err, "marshal task request")
	}

	resp, err := g.do(logCtx, app, http.MethodPost, createTaskPath, nil, body)
	if err != nil {
		return ports.ExternalTask{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, app); err != nil {
		return ports.ExternalTask{}, err
	}

	var decoded createTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.ExternalTask{}, fmt.Errorf("%w: decode %s response: %v", report.ErrUpstream, app.Name, err)
	}
	if decoded.Error != nil {
		return ports.ExternalTask{}, fmt.Errorf("%w: %s rejected task: %s (status %d)", report.ErrUpstream, app.Name, decoded.Error.Message, decoded.Error.StatusCode)
	}

	external := ports.ExternalTask{URL: decoded.Links.Self}
	if decoded.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			logging.Warn(logCtx, "ignore unparsable created_at", slog.String("created_at", decoded.CreatedAt))
		} else {
			external.CreatedAt = &createdAt
		}
	}
	logging.Info(logCtx, "task created in application", slog.String("task_url", external.URL))
	return external, nil
}

func (g *Gateway) DeleteTask(ctx context.Context, app report.Application, taskURL string, actor string) error {
	logCtx := g.logCtx(ctx, app, "delete_task")
	query := url.Values{}
	query.Set("gebruiker", actor)

	resp, err := g.do(logCtx, app, http.MethodDelete, taskURL, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Already gone counts as deleted.
	if resp.StatusCode == http.StatusNotFound {
		logging.Warn(logCtx, "task already removed from application", slog.String("task_url", taskURL))
		return nil
	}
	return checkStatus(resp, app)
}

func (g *Gateway) NotifyReportChanged(ctx context.Context, app report.Application, reportURL string, changeType string) error {
	logCtx := g.logCtx(ctx, app, "notify_report_changed")
	query := url.Values{}
	query.Set("melding_url", reportURL)
	query.Set("notificatie_type", changeType)

	resp, err := g.do(logCtx, app, http.MethodGet, g.cfg.NotifyPath, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, app)
}

func (g *Gateway) NotifySignalReportClosed(ctx context.Context, app report.Application, signalURL string) error {
	logCtx := g.logCtx(ctx, app, "notify_signal_report_closed")
	target := strings.TrimRight(signalURL, "/") + "/" + reportClosedSuffix

	resp, err := g.do(logCtx, app, http.MethodGet, target, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		logging.Warn(logCtx, "application does not support report closed notifications", slog.String("url", target))
	}
	return checkStatus(resp, app)
}

func (g *Gateway) do(ctx context.Context, app report.Application, method string, rawURL string, query url.Values, body []byte) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	target, err := ResolveURL(app, rawURL)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errs.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	token, err := g.token(ctx, app)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", report.ErrUpstream, method, target, err)
	}
	logging.Debug(ctx, "application responded", slog.String("method", method), slog.String("url", target), slog.Int("status", resp.StatusCode))
	return resp, nil
}

// ResolveURL maps rawURL onto the application's base URL. Relative paths are
// appended to the base URL; absolute URLs must be served by the application.
func ResolveURL(app report.Application, rawURL string) (string, error) {
	base := strings.TrimRight(app.BaseURL, "/")
	if base == "" {
		return "", fmt.Errorf("%w: application %q has no base url", report.ErrInvalidTask, app.Name)
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: parse url %q: %v", report.ErrInvalidTask, rawURL, err)
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		return base + "/" + strings.TrimLeft(rawURL, "/"), nil
	}
	if !app.Serves(rawURL) {
		return "", fmt.Errorf("%w: url %q is not served by %s", report.ErrApplicationNotFound, rawURL, app.Name)
	}
	resolved := base + parsed.EscapedPath()
	if parsed.RawQuery != "" {
		resolved += "?" + parsed.RawQuery
	}
	return resolved, nil
}

type tokenResponse struct {
	Token string `json:"token"`
}

func tokenCacheKey(app report.Application) string {
	return fmt.Sprintf("application_%d_token", app.ID)
}

// token returns "" for applications without credentials.
func (g *Gateway) token(ctx context.Context, app report.Application) (string, error) {
	if app.Username == "" || app.Password == "" {
		return "", nil
	}
	key := tokenCacheKey(app)
	if g.cache != nil {
		cached, found, err := g.cache.Get(ctx, key)
		if err != nil {
			logging.Warn(ctx, "read cached token failed", slog.Any("err", errs.Loggable(err)))
		} else if found && cached != "" {
			return cached, nil
		}
	}

	body, err := json.Marshal(map[string]string{"username": app.Username, "password": app.Password})
	if err != nil {
		return "", errs.Wrap(err, "marshal token request")
	}
	target, err := ResolveURL(app, g.cfg.TokenPath)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request for %s: %v", report.ErrUpstream, app.Name, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, app); err != nil {
		return "", errs.Wrap(err, "token request")
	}

	var decoded tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode token for %s: %v", report.ErrUpstream, app.Name, err)
	}
	if decoded.Token == "" {
		return "", fmt.Errorf("%w: %s returned an empty token", report.ErrUpstream, app.Name)
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, decoded.Token, g.cfg.TokenTTL); err != nil {
			logging.Warn(ctx, "cache token failed", slog.Any("err", errs.Loggable(err)))
		}
	}
	return decoded.Token, nil
}

func checkStatus(resp *http.Response, app report.Application) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: %s returned status %d: %s", report.ErrUpstream, app.Name, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (g *Gateway) logCtx(ctx context.Context, app report.Application, op string) context.Context {
	return logging.WithAttrs(ctx,
		slog.String("component", "infrastructure.applications"),
		slog.String("op", op),
		slog.String("application", app.Name),
	)
}
