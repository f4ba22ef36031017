// Package logging wraps logrus with the context-carried fields the core's
// request and pipeline paths rely on.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	ctxKeyTraceID    ctxKey = "trace_id"
	ctxKeyCustomerID ctxKey = "customer_id"
)

// Logger wraps a *logrus.Logger so the rest of the core can depend on one
// type regardless of format/output configuration.
type Logger struct {
	*logrus.Logger

	degradedMu   sync.Mutex
	degradedSeen map[string]time.Time
}

// Config controls formatter and level selection.
type Config struct {
	Level  string
	Format string
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, degradedSeen: make(map[string]time.Time)}
}

// NewDefault builds a Logger with sane development defaults.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "text"})
}

// WithContext returns an entry carrying any trace/customer IDs found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if v, ok := ctx.Value(ctxKeyTraceID).(string); ok && v != "" {
		fields["trace_id"] = v
	}
	if v, ok := ctx.Value(ctxKeyCustomerID).(string); ok && v != "" {
		fields["customer_id"] = v
	}
	return l.Logger.WithFields(fields)
}

// WithTraceID returns a context carrying the given trace ID for logging.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, traceID)
}

// WithCustomerID returns a context carrying the given customer ID for logging.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, ctxKeyCustomerID, customerID)
}

// LogDegraded logs a degraded-mode condition (§7) at most once per minute
// per condition key, so a persistent degraded state doesn't flood the log.
func (l *Logger) LogDegraded(condition string, fields logrus.Fields) {
	l.degradedMu.Lock()
	last, seen := l.degradedSeen[condition]
	now := time.Now()
	if seen && now.Sub(last) < time.Minute {
		l.degradedMu.Unlock()
		return
	}
	l.degradedSeen[condition] = now
	l.degradedMu.Unlock()

	entry := l.Logger.WithField("condition", condition)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warn("degraded condition")
}
