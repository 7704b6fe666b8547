// Package ilmwiring builds the collaborators cmd/ilmd and cmd/ilmctl both
// need from a loaded global settings file: gateway clients per tenant, the
// notifier routes/sinks keyed by family, and the scheduler.EngineFactory
// that switches over family name to construct one of the six domain
// engines. Kept out of cmd/ so the daemon and the one-shot CLI share one
// implementation instead of diverging.
package ilmwiring

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clusterkeeper/ilm/domain/accounting"
	"github.com/clusterkeeper/ilm/domain/allocation"
	"github.com/clusterkeeper/ilm/domain/backup"
	"github.com/clusterkeeper/ilm/domain/forcemerge"
	"github.com/clusterkeeper/ilm/domain/jobqueue"
	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/domain/retention"
	"github.com/clusterkeeper/ilm/domain/rollover"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/infrastructure/config"
	"github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/metrics"
	"github.com/clusterkeeper/ilm/notifier"
	"github.com/clusterkeeper/ilm/scheduler"
)

// Settings is a thread-safe holder for the most recently loaded global
// settings, swapped out wholesale on each hot-reload (scheduler.Driver's
// WatchSettings callback) so in-flight firings keep reading a consistent
// snapshot.
type Settings struct {
	mu sync.RWMutex
	gs *config.GlobalSettings
}

func NewSettings(gs *config.GlobalSettings) *Settings {
	return &Settings{gs: gs}
}

func (s *Settings) Get() *config.GlobalSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gs
}

func (s *Settings) Set(gs *config.GlobalSettings) {
	s.mu.Lock()
	s.gs = gs
	s.mu.Unlock()
}

// Families lists the seven schedulable policy families (the five
// lifecycle families plus accounting and the job queue) in the cadence
// their settings blocks declare.
func Families(gs *config.GlobalSettings) []scheduler.FamilyConfig {
	return []scheduler.FamilyConfig{
		{Name: "rollover", Settings: gs.Rollover},
		{Name: "retention", Settings: gs.Retention},
		{Name: "allocation", Settings: gs.Allocation},
		{Name: "forcemerge", Settings: gs.ForceMerge},
		{Name: "backup", Settings: gs.Backup},
		{Name: "accounting", Settings: gs.Accounting.FamilySettings},
		{Name: "jobqueue", Settings: gs.JobQueue},
	}
}

// Cluster caches one gateway.Client per tenant name so repeated firings
// across the scheduler's cron cadence reuse the same rate limiter, circuit
// breaker, and HTTP transport instead of redialing every cycle.
type Cluster struct {
	mu       sync.Mutex
	byName   map[string]gateway.Client
	tenants  map[string]model.TenantConfig
}

func NewCluster() *Cluster {
	return &Cluster{byName: make(map[string]gateway.Client), tenants: make(map[string]model.TenantConfig)}
}

// LoadTenants returns a scheduler.Config.LoadTenants closure that also
// refreshes the tenant-by-name index Cluster needs to resolve the
// accounting engine's aggregator tenant by name.
func (c *Cluster) LoadTenants(settings *Settings) func() ([]model.TenantConfig, error) {
	return func() ([]model.TenantConfig, error) {
		gs := settings.Get()
		tenants, err := config.LoadTenantConfigs(gs.Settings.ClientJSONFolder, gs.Settings.LimitToClient)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tenants = make(map[string]model.TenantConfig, len(tenants))
		for _, t := range tenants {
			c.tenants[t.Name] = t
		}
		c.mu.Unlock()
		return tenants, nil
	}
}

// GatewayFor builds (or returns the cached) gateway.Client for tenant.
func (c *Cluster) GatewayFor(tenant model.TenantConfig) gateway.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gw, ok := c.byName[tenant.Name]; ok {
		return gw
	}
	gw, err := gateway.NewRESTClient(tenant)
	if err != nil {
		return nil
	}
	c.byName[tenant.Name] = gw
	c.tenants[tenant.Name] = tenant
	return gw
}

// GatewayByName resolves a tenant by name (the accounting aggregator
// target) to its gateway.Client, building it if the tenant was already
// seen by LoadTenants but not yet dialed.
func (c *Cluster) GatewayByName(name string) (gateway.Client, bool) {
	c.mu.Lock()
	tenant, ok := c.tenants[name]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.GatewayFor(tenant), true
}

// BuildTransportsFromEnv constructs the notifier transports this process
// has credentials for. A chat transport is built when either a webhook URL
// or a Slack bot token + channel is configured; the ticket transport when
// an SMTP relay address is configured. Missing configuration simply omits
// that transport rather than failing startup: notification
// is best-effort, not load-bearing.
func BuildTransportsFromEnv() []notifier.Transport {
	var transports []notifier.Transport

	if webhook := strings.TrimSpace(os.Getenv("ILM_CHAT_WEBHOOK_URL")); webhook != "" {
		transports = append(transports, notifier.NewWebhookChatTransport(webhook))
	} else if token := strings.TrimSpace(os.Getenv("ILM_SLACK_BOT_TOKEN")); token != "" {
		channel := strings.TrimSpace(os.Getenv("ILM_SLACK_CHANNEL_ID"))
		transports = append(transports, notifier.NewSlackChatTransport(token, channel))
	}

	if smtpAddr := strings.TrimSpace(os.Getenv("ILM_SMTP_ADDR")); smtpAddr != "" {
		from := strings.TrimSpace(os.Getenv("ILM_SMTP_FROM"))
		var auth smtp.Auth
		if user := strings.TrimSpace(os.Getenv("ILM_SMTP_USER")); user != "" {
			host := smtpAddr
			if idx := strings.LastIndex(smtpAddr, ":"); idx >= 0 {
				host = smtpAddr[:idx]
			}
			auth = smtp.PlainAuth("", user, os.Getenv("ILM_SMTP_PASSWORD"), host)
		}
		transports = append(transports, notifier.NewTicketTransport(smtpAddr, from, auth))
	}

	return transports
}

// RouteFor derives a family's notification route from its settings block
// (ms-teams/jira keys), never inferring jira vs teams from call order —
// both are always passed by key.
func RouteFor(gs *config.GlobalSettings, family string) notifier.Route {
	fs, ok := gs.FamilyByName(family)
	if !ok {
		return notifier.Route{}
	}
	return notifier.Route{Teams: fs.MSTeams, Jira: fs.Jira}
}

// SinkFor builds the notifier.Sink one engine firing should use: NoopSink
// when notification is disabled for the process or unconfigured for this
// family, otherwise a Service bound to the family's current route.
func SinkFor(settings *Settings, transports []notifier.Transport, logger *logging.Logger, family string) notifier.Sink {
	if len(transports) == 0 {
		return notifier.NoopSink{}
	}
	gs := settings.Get()
	route := RouteFor(gs, family)
	if route.Teams == "" && route.Jira == "" {
		return notifier.NoopSink{}
	}
	return notifier.NewService(route, transports, func(err error) {
		logger.Error(context.Background(), "notifier: delivery failed", err, map[string]interface{}{"family": family})
	})
}

// NotifyFailure adapts SinkFor into a scheduler.FailureNotifier: the
// scheduler's final retry pass reports through the same
// routing a successful engine firing's own notifications use.
func NotifyFailure(settings *Settings, transports []notifier.Transport, logger *logging.Logger) scheduler.FailureNotifier {
	return func(tenant model.TenantConfig, family string, err error) {
		SinkFor(settings, transports, logger, family).Notify(context.Background(), notifier.Event{
			Tenant:  tenant.Name,
			Family:  family,
			Subject: tenant.Name,
			Message: err.Error(),
			Level:   notifier.LevelError,
		})
	}
}

func accountingSettings(as config.AccountingSettings) accounting.Settings {
	inclusion := make([]accounting.DeviceTrackingRule, 0, len(as.DeviceTrackingInclusion))
	for _, r := range as.DeviceTrackingInclusion {
		inclusion = append(inclusion, accounting.DeviceTrackingRule{
			Index: r.Index, TrackingField: r.TrackingField, Search: r.Search, CountAs: r.CountAs,
		})
	}
	exclusion := make([]accounting.DeviceTrackingRule, 0, len(as.DeviceTrackingExclusion))
	for _, r := range as.DeviceTrackingExclusion {
		exclusion = append(exclusion, accounting.DeviceTrackingRule{
			Index: r.Index, TrackingField: r.TrackingField, Search: r.Search, CountAs: r.CountAs,
		})
	}
	return accounting.Settings{
		OutputFolder:         as.OutputFolder,
		SSDCost:              as.SSDCost,
		SATACost:             as.SATACost,
		OutputToES:           as.OutputToES,
		SendCopyToClientName: as.SendCopyToClientName,
		DeviceInclusion:      inclusion,
		DeviceExclusion:      exclusion,
	}
}

// EngineFactory returns the scheduler.EngineFactory switching over family
// name to construct the matching domain engine. met may be nil (ilmctl
// runs without a metrics endpoint).
func EngineFactory(cluster *Cluster, settings *Settings, transports []notifier.Transport, logger *logging.Logger, met *metrics.Metrics, nowFn func() time.Time) scheduler.EngineFactory {
	return func(tenant model.TenantConfig, family, gate string) (scheduler.Engine, error) {
		gw := cluster.GatewayFor(tenant)
		if gw == nil {
			return nil, errors.Configuration("tenant "+tenant.Name, fmt.Errorf("failed to build gateway client (check tls/connection settings)"))
		}
		sink := SinkFor(settings, transports, logger, family)
		gs := settings.Get()

		switch family {
		case "rollover":
			return &rollover.Engine{Tenant: tenant, Gateway: gw, Notifier: sink, Logger: logger, Now: nowFn}, nil
		case "retention":
			return &retention.Engine{Tenant: tenant, Gateway: gw, Notifier: sink, Logger: logger, Now: nowFn, RequiredGate: gate}, nil
		case "allocation":
			return &allocation.Engine{Tenant: tenant, Gateway: gw, Notifier: sink, Logger: logger, Now: nowFn}, nil
		case "forcemerge":
			return &forcemerge.Engine{Tenant: tenant, Gateway: gw, Notifier: sink, Logger: logger, Now: nowFn}, nil
		case "backup":
			return &backup.Engine{Tenant: tenant, Gateway: gw, Notifier: sink, Logger: logger, Now: nowFn}, nil
		case "accounting":
			var aggregator gateway.Client
			if name := gs.Accounting.SendCopyToClientName; name != "" {
				aggregator, _ = cluster.GatewayByName(name)
			}
			return &accounting.Engine{
				Tenant:       tenant,
				Gateway:      gw,
				Aggregator:   aggregator,
				Settings:     accountingSettings(gs.Accounting),
				Notifier:     sink,
				Logger:       logger,
				Metrics:      met,
				Now:          nowFn,
				RequiredGate: gate,
			}, nil
		case "jobqueue":
			return &jobqueue.Engine{
				Tenant:             tenant,
				Gateway:            gw,
				Logger:             logger,
				ShardMinimumSizeGB: gs.Settings.ShardMinimumSizeGB,
				Now:                nowFn,
			}, nil
		default:
			return nil, fmt.Errorf("unknown policy family %q", family)
		}
	}
}

// NewLockerFromEnv builds a scheduler.Locker backed by Redis when
// ILM_REDIS_URL is set (the optional cross-replica advisory
// lock), or nil when unset — the scheduler runs correctly without it since
// engine decisions are idempotent.
func NewLockerFromEnv(ctx context.Context) (scheduler.Locker, *redis.Client, error) {
	raw := strings.TrimSpace(os.Getenv("ILM_REDIS_URL"))
	if raw == "" {
		return nil, nil, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, nil, errors.Configuration("parse ILM_REDIS_URL", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, errors.Configuration("connect to redis", err)
	}
	return scheduler.NewRedisLocker(rdb), rdb, nil
}
