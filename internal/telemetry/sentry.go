// Package telemetry reports newsvec operations to Sentry as transactions,
// spans and captured errors. Every function is a no-op until Init runs with
// a DSN.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const (
	serverName = "newsvec"
	flushWait  = 5 * time.Second
)

// Config holds the Sentry settings.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
	// Backend is attached to every event as a tag.
	Backend string
}

// Init configures the global Sentry client and returns a flush function.
// Without a DSN nothing is sent; a client that fails to start is logged
// and ignored.
func Init(cfg Config, logger *zap.Logger) (func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    inheritSampling(cfg.TracesSampleRate),
	})
	if err != nil {
		logger.Warn("sentry unavailable, running without telemetry", zap.Error(err))
		return func() {}, nil
	}

	if cfg.Backend != "" {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("backend", cfg.Backend)
		})
	}

	logger.Debug("sentry initialized",
		zap.String("environment", cfg.Environment),
		zap.String("release", cfg.Release),
		zap.Float64("traces_sample_rate", cfg.TracesSampleRate),
	)
	return func() { sentry.Flush(flushWait) }, nil
}

// inheritSampling samples root transactions at rate; child spans keep their
// parent's decision so a command is traced whole or not at all.
func inheritSampling(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		var root sentry.SpanID
		if ctx.Span.ParentSpanID == root {
			return rate
		}
		if ctx.Span.Sampled.Bool() {
			return 1.0
		}
		return 0.0
	}
}

// SpanAttributes are the tags newsvec spans carry.
type SpanAttributes struct {
	DocumentID string
	Backend    string
	Operation  string
	TopN       int
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.Backend != "" {
		span.SetTag("backend", a.Backend)
	}
	if a.DocumentID != "" {
		span.SetTag("document_id", a.DocumentID)
	}
	if a.TopN > 0 {
		span.SetTag("top_n", strconv.Itoa(a.TopN))
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is one timed newsvec operation.
type Span struct {
	inner *sentry.Span
}

// StartSpan opens a child of the span in ctx, or a new transaction when
// ctx carries none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetData attaches a value to the span.
func (s *Span) SetData(key string, value any) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError records err on the span. Input errors only change the status;
// collaborator failures and unclassified errors are also captured.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}

	code := domain.ErrorCode(err)
	if code != "" {
		s.inner.SetTag("error_code", code)
	}
	if code != "" && !domain.IsCollaboratorFailure(err) {
		s.inner.Status = sentry.SpanStatusInvalidArgument
		return
	}

	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// CaptureError sends err to Sentry through the hub in ctx, falling back to
// the global hub.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb records a step of the current operation.
func AddBreadcrumb(ctx context.Context, category, message string) {
	crumb := &sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}
