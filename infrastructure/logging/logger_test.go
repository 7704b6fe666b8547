package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestInfoCarriesServiceAndFields(t *testing.T) {
	logger := New("ilmd", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info(context.Background(), "cycle complete", map[string]interface{}{"tenant": "acme"})

	out := captureJSON(t, &buf)
	assert.Equal(t, "cycle complete", out["message"])
	assert.Equal(t, "ilmd", out["service"])
	assert.Equal(t, "acme", out["tenant"])
	assert.Equal(t, "info", out["level"])
}

func TestContextPropagation(t *testing.T) {
	logger := New("ilmd", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithTenant(ctx, "acme")
	ctx = WithFamily(ctx, "retention")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "acme", GetTenant(ctx))
	assert.Equal(t, "retention", GetFamily(ctx))

	logger.Info(ctx, "gated", nil)

	out := captureJSON(t, &buf)
	assert.Equal(t, "trace-1", out["trace_id"])
	assert.Equal(t, "acme", out["tenant"])
	assert.Equal(t, "retention", out["family"])
}

func TestErrorRedactsCredentials(t *testing.T) {
	logger := New("ilmd", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Error(context.Background(), "dial failed",
		assert.AnError, map[string]interface{}{"password": "hunter2", "host": "es:9200"})

	out := captureJSON(t, &buf)
	assert.Equal(t, "***REDACTED***", out["password"])
	assert.Equal(t, "es:9200", out["host"])
}

func TestWithErrorRedactsMessage(t *testing.T) {
	logger := New("ilmd", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithError(errInsecure{}).Error("cluster call failed")

	assert.NotContains(t, buf.String(), "s3cret")
	assert.Contains(t, buf.String(), "***REDACTED***")
}

type errInsecure struct{}

func (errInsecure) Error() string { return `Get "https://admin:s3cret@es:9200": EOF` }

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	logger := New("ilmd", "bogus", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Debug(context.Background(), "hidden", nil)
	assert.Empty(t, buf.String())

	logger.Info(context.Background(), "shown", nil)
	assert.NotEmpty(t, buf.String())
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	logger := NewFromEnv("ilmctl")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Debug(context.Background(), "visible at debug", nil)
	assert.NotEmpty(t, buf.String())
}

func TestLogRequest(t *testing.T) {
	logger := New("ilmd", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.LogRequest(context.Background(), "POST", "/trigger/retention", 200, 1500*time.Millisecond)

	out := captureJSON(t, &buf)
	assert.Equal(t, "POST", out["method"])
	assert.Equal(t, "/trigger/retention", out["path"])
	assert.Equal(t, float64(200), out["status_code"])
	assert.Equal(t, float64(1500), out["duration_ms"])
}

func TestLogLifecycleDecision(t *testing.T) {
	logger := New("ilmd", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.LogLifecycleDecision(context.Background(), "retention", "acme", "logstash-000007", "delete", nil)

	out := captureJSON(t, &buf)
	assert.Equal(t, "retention", out["engine"])
	assert.Equal(t, "logstash-000007", out["index"])
	assert.Equal(t, "delete", out["action"])
	assert.Equal(t, "Lifecycle action applied", out["message"])
}

func TestNewTraceIDUnique(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
