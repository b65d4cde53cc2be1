package logging

import (
	"context"
	"log/slog"
	"slices"
)

// scope is what a context carries for logging: the logger to write to and
// the attributes every line gets. Scopes are never mutated once stored.
type scope struct {
	logger *slog.Logger
	attrs  []slog.Attr
}

type scopeKey struct{}

func scopeOf(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, s scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger sets the logger for ctx and keeps attributes added earlier.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	s := scopeOf(ctx)
	s.logger = logger
	return withScope(ctx, s)
}

// WithAttrs adds attributes to every line logged through ctx. A key that is
// already present takes the new value in place.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	s := scopeOf(ctx)
	s.attrs = overlay(s.attrs, attrs)
	return withScope(ctx, s)
}

// WithJob tags log lines of one background job attempt.
func WithJob(ctx context.Context, jobID uint64, kind string, attempt int) context.Context {
	attrs := []slog.Attr{slog.Uint64("job_id", jobID)}
	if kind != "" {
		attrs = append(attrs, slog.String("kind", kind))
	}
	if attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", attempt))
	}
	return WithAttrs(ctx, attrs...)
}

// Logger returns the logger set on ctx, or slog's default.
func Logger(ctx context.Context) *slog.Logger {
	if s := scopeOf(ctx); s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Attrs returns a copy of the attributes carried by ctx.
func Attrs(ctx context.Context) []slog.Attr {
	attrs := scopeOf(ctx).attrs
	if len(attrs) == 0 {
		return nil
	}
	return slices.Clone(attrs)
}

func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelDebug, msg, attrs)
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelInfo, msg, attrs)
}

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelWarn, msg, attrs)
}

func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelError, msg, attrs)
}

func emit(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := scopeOf(ctx)
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	// Skip the merge for lines the handler would drop anyway.
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.LogAttrs(ctx, level, msg, overlay(s.attrs, attrs)...)
}

// overlay returns base with extra applied on top. It never writes into base,
// which may be shared by several contexts.
func overlay(base []slog.Attr, extra []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(base), len(base)+len(extra))
	copy(out, base)
	for _, attr := range extra {
		if attr.Key != "" {
			if i := slices.IndexFunc(out, func(a slog.Attr) bool { return a.Key == attr.Key }); i >= 0 {
				out[i] = attr
				continue
			}
		}
		out = append(out, attr)
	}
	return out
}
