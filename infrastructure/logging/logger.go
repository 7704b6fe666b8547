// Package logging provides the structured application logger: logrus with
// trace-ID and tenant/family context propagation, and credential redaction
// applied to every field map before it is emitted.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clusterkeeper/ilm/infrastructure/redaction"
)

// ContextKey is the type for context keys carried by this package.
type ContextKey string

const (
	// TraceIDKey is the context key for the per-request trace ID.
	TraceIDKey ContextKey = "trace_id"
	// TenantKey is the context key for the tenant a cycle is running for.
	TenantKey ContextKey = "tenant"
	// FamilyKey is the context key for the policy family a cycle belongs to.
	FamilyKey ContextKey = "family"
)

// Logger wraps logrus.Logger with context propagation and field redaction.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the named service at the given level, with
// "json" or text formatting.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{
		Logger:  logger,
		service: service,
	}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables. Defaults to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a logger entry carrying the service name and any
// trace/tenant/family values present on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if tenant := ctx.Value(TenantKey); tenant != nil {
		entry = entry.WithField("tenant", tenant)
	}
	if family := ctx.Value(FamilyKey); family != nil {
		entry = entry.WithField("family", family)
	}

	return entry
}

// WithFields creates a logger entry with custom fields, redacted.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields = redaction.Map(fields)
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a logger entry with the error's redacted message.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   redaction.String(err.Error()),
	})
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithTenant tags ctx with the tenant a cycle is running for.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// GetTenant retrieves the tenant name from context.
func GetTenant(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// WithFamily tags ctx with the policy family a cycle belongs to.
func WithFamily(ctx context.Context, family string) context.Context {
	return context.WithValue(ctx, FamilyKey, family)
}

// GetFamily retrieves the policy family from context.
func GetFamily(ctx context.Context) string {
	if family, ok := ctx.Value(FamilyKey).(string); ok {
		return family
	}
	return ""
}

// LogRequest logs an HTTP request served by the ops surface.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("HTTP request")
}

// LogClusterCall logs a call made to an Elasticsearch/OpenSearch REST API.
func (l *Logger) LogClusterCall(ctx context.Context, cluster, method, path string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"cluster":     cluster,
		"method":      method,
		"path":        path,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("Cluster call failed")
	} else {
		entry.Debug("Cluster call succeeded")
	}
}

// LogLifecycleDecision logs a decision made by an engine against an index.
func (l *Logger) LogLifecycleDecision(ctx context.Context, engine, tenant, index, action string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"engine": engine,
		"tenant": tenant,
		"index":  index,
		"action": action,
	})

	if err != nil {
		entry.WithError(err).Error("Lifecycle action failed")
	} else {
		entry.Info("Lifecycle action applied")
	}
}

// Fatal logs a fatal error and exits.
func (l *Logger) Fatal(ctx context.Context, message string, err error) {
	l.WithContext(ctx).WithError(err).Fatal(message)
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	if l.Logger.Level >= logrus.DebugLevel {
		l.WithContext(ctx).WithFields(redactFields(fields)).Debug(message)
	}
}

// Info logs an info message.
func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(redactFields(fields)).Info(message)
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(redactFields(fields)).Warn(message)
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithField("error", redaction.String(err.Error()))
	}
	entry.WithFields(redactFields(fields)).Error(message)
}

func redactFields(fields map[string]interface{}) logrus.Fields {
	if fields == nil {
		return logrus.Fields{}
	}
	return logrus.Fields(redaction.Map(fields))
}
