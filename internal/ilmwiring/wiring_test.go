package ilmwiring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/infrastructure/config"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/notifier"
)

func TestRouteFor_UnknownFamilyReturnsEmptyRoute(t *testing.T) {
	gs := &config.GlobalSettings{}
	route := RouteFor(gs, "not-a-family")
	require.Equal(t, notifier.Route{}, route)
}

func TestRouteFor_ReadsFamilySettingsKeys(t *testing.T) {
	gs := &config.GlobalSettings{
		Rollover: config.FamilySettings{MSTeams: "ops-channel", Jira: "ops@example.com"},
	}
	route := RouteFor(gs, "rollover")
	require.Equal(t, notifier.Route{Teams: "ops-channel", Jira: "ops@example.com"}, route)
}

func TestSinkFor_NoTransportsIsNoop(t *testing.T) {
	settings := NewSettings(&config.GlobalSettings{})
	logger := logging.New("test", "error", "json")
	sink := SinkFor(settings, nil, logger, "rollover")
	require.IsType(t, notifier.NoopSink{}, sink)
}

func TestSinkFor_UnroutedFamilyIsNoopEvenWithTransports(t *testing.T) {
	settings := NewSettings(&config.GlobalSettings{}) // rollover has no ms-teams/jira configured
	logger := logging.New("test", "error", "json")
	sink := SinkFor(settings, []notifier.Transport{notifier.NewWebhookChatTransport("https://example.invalid")}, logger, "rollover")
	require.IsType(t, notifier.NoopSink{}, sink)
}

func TestSinkFor_RoutedFamilyBuildsService(t *testing.T) {
	gs := &config.GlobalSettings{Retention: config.FamilySettings{MSTeams: "ops-channel"}}
	settings := NewSettings(gs)
	logger := logging.New("test", "error", "json")
	sink := SinkFor(settings, []notifier.Transport{notifier.NewWebhookChatTransport("https://example.invalid")}, logger, "retention")
	_, isNoop := sink.(notifier.NoopSink)
	require.False(t, isNoop)
}

func TestFamilies_ListsAllSevenInOrder(t *testing.T) {
	gs := &config.GlobalSettings{}
	families := Families(gs)
	require.Len(t, families, 7)
	require.Equal(t, "rollover", families[0].Name)
	require.Equal(t, "jobqueue", families[6].Name)
}

func TestBuildTransportsFromEnv_EmptyWhenUnconfigured(t *testing.T) {
	for _, key := range []string{"ILM_CHAT_WEBHOOK_URL", "ILM_SLACK_BOT_TOKEN", "ILM_SMTP_ADDR"} {
		t.Setenv(key, "")
	}
	require.Empty(t, BuildTransportsFromEnv())
}

func TestBuildTransportsFromEnv_WebhookAndSMTPConfigured(t *testing.T) {
	t.Setenv("ILM_CHAT_WEBHOOK_URL", "https://example.invalid/webhook")
	t.Setenv("ILM_SMTP_ADDR", "smtp.example.invalid:587")
	t.Setenv("ILM_SMTP_FROM", "ilm@example.invalid")

	transports := BuildTransportsFromEnv()
	require.Len(t, transports, 2)
}

func TestCluster_GatewayByName_UnknownTenantReturnsFalse(t *testing.T) {
	c := NewCluster()
	_, ok := c.GatewayByName("does-not-exist")
	require.False(t, ok)
}

func TestEngineFactory_BuildsOneEnginePerKnownFamily(t *testing.T) {
	gs := &config.GlobalSettings{}
	settings := NewSettings(gs)
	cluster := NewCluster()
	logger := logging.New("test", "error", "json")
	factory := EngineFactory(cluster, settings, nil, logger, nil, nil)

	tenant := model.TenantConfig{Name: "acme"}
	for _, family := range []string{"rollover", "retention", "allocation", "forcemerge", "backup", "accounting", "jobqueue"} {
		engine, err := factory(tenant, family, "green")
		require.NoError(t, err, family)
		require.NotNil(t, engine, family)
	}
}

func TestEngineFactory_UnknownFamilyErrors(t *testing.T) {
	settings := NewSettings(&config.GlobalSettings{})
	cluster := NewCluster()
	logger := logging.New("test", "error", "json")
	factory := EngineFactory(cluster, settings, nil, logger, nil, nil)

	_, err := factory(model.TenantConfig{Name: "acme"}, "not-a-family", "green")
	require.Error(t, err)
}
