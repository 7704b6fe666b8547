package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	t.Setenv("ILM_ENV", "")
	t.Setenv("ENVIRONMENT", "")
	assert.Equal(t, Development, Env())

	t.Setenv("ILM_ENV", "Production")
	assert.Equal(t, Production, Env())
	assert.True(t, IsProduction())

	t.Setenv("ILM_ENV", "")
	t.Setenv("ENVIRONMENT", "testing")
	assert.Equal(t, Testing, Env())

	t.Setenv("ENVIRONMENT", "staging")
	assert.Equal(t, Development, Env())
}

func TestParseEnvironment(t *testing.T) {
	env, ok := ParseEnvironment("  PRODUCTION ")
	assert.True(t, ok)
	assert.Equal(t, Production, env)

	_, ok = ParseEnvironment("qa")
	assert.False(t, ok)
}

func TestParseBoolValue(t *testing.T) {
	for _, truthy := range []string{"1", "true", "YES", " on "} {
		assert.True(t, ParseBoolValue(truthy), truthy)
	}
	for _, falsy := range []string{"", "0", "false", "off", "maybe"} {
		assert.False(t, ParseBoolValue(falsy), falsy)
	}
}

func TestResolveInt(t *testing.T) {
	t.Setenv("ILM_TEST_PORT", "")
	assert.Equal(t, 9200, ResolveInt(9200, "ILM_TEST_PORT", 1))
	assert.Equal(t, 1, ResolveInt(0, "ILM_TEST_PORT", 1))

	t.Setenv("ILM_TEST_PORT", "9300")
	assert.Equal(t, 9300, ResolveInt(0, "ILM_TEST_PORT", 1))

	t.Setenv("ILM_TEST_PORT", "not a number")
	assert.Equal(t, 1, ResolveInt(0, "ILM_TEST_PORT", 1))
}

func TestResolveDuration(t *testing.T) {
	t.Setenv("ILM_TEST_TIMEOUT", "30s")
	assert.Equal(t, 30*time.Second, ResolveDuration(0, "ILM_TEST_TIMEOUT", time.Second))
	assert.Equal(t, time.Minute, ResolveDuration(time.Minute, "ILM_TEST_TIMEOUT", time.Second))
}

func TestResolveString(t *testing.T) {
	t.Setenv("ILM_TEST_PATH", "/from/env")
	assert.Equal(t, "/cfg", ResolveString("/cfg", "ILM_TEST_PATH", "/fallback"))
	assert.Equal(t, "/from/env", ResolveString("  ", "ILM_TEST_PATH", "/fallback"))

	t.Setenv("ILM_TEST_PATH", "")
	assert.Equal(t, "/fallback", ResolveString("", "ILM_TEST_PATH", "/fallback"))
}

func TestResolveBool(t *testing.T) {
	t.Setenv("ILM_TEST_FLAG", "")
	assert.True(t, ResolveBool(true, "ILM_TEST_FLAG"))

	t.Setenv("ILM_TEST_FLAG", "false")
	assert.False(t, ResolveBool(true, "ILM_TEST_FLAG"))

	t.Setenv("ILM_TEST_FLAG", "yes")
	assert.True(t, ResolveBool(false, "ILM_TEST_FLAG"))
}
