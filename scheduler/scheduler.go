// Package scheduler implements the single process-wide periodic driver: it
// fans each enabled policy family out over tenants with a bounded worker
// pool, retries failed tenants for a bounded number of passes with a
// fallback health gate on the last one, and hot-reloads when the global
// settings file changes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/infrastructure/cache"
	"github.com/clusterkeeper/ilm/infrastructure/config"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/metrics"
)

// Engine is the minimal surface every lifecycle engine exposes to the
// scheduler: a single blocking decide-and-apply cycle.
type Engine interface {
	Run(ctx context.Context) error
}

// EngineFactory builds the Engine for one tenant/family firing. requiredGate
// is the health-gate color to enforce this attempt (the family's configured
// level on ordinary attempts, its fallback level on the final retry pass).
type EngineFactory func(tenant model.TenantConfig, family string, requiredGate string) (Engine, error)

// FailureNotifier is invoked once per tenant/family when the final retry
// pass still fails.
type FailureNotifier func(tenant model.TenantConfig, family string, err error)

// defaultWorkerPoolCap is the ceiling on fan-out concurrency regardless of
// how many JVM threads a cluster reports.
const defaultWorkerPoolCap = 100

// threadCountTTL bounds how long a tenant's observed JVM thread count is
// reused for pool sizing before it is queried again. Thread counts move
// slowly, and every family firing would otherwise re-poll every tenant.
const threadCountTTL = 5 * time.Minute

// lockTTL bounds how long a cross-replica advisory lock is held before it
// expires even if the holder never releases it, so a crashed replica
// cannot wedge a tenant/family out of every future firing.
const lockTTL = 15 * time.Minute

// Locker is the cross-replica advisory lock a second ilmd instance consults
// before running a tenant/family cycle already in flight elsewhere. This is
// a liveness optimization only: engines are idempotent, so a missing or
// failed Locker never produces incorrect behavior, only possible duplicate
// work.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// FamilyConfig is one schedulable policy family.
type FamilyConfig struct {
	Name     string
	Settings config.FamilySettings
}

// Config wires a Driver to its collaborators. All function fields are
// required except Locker (nil disables cross-replica locking).
type Config struct {
	Families      []FamilyConfig
	LoadTenants   func() ([]model.TenantConfig, error)
	GatewayFor    func(model.TenantConfig) gateway.Client
	EngineFactory EngineFactory
	NotifyFailure FailureNotifier
	Locker        Locker
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Driver is the single process-wide periodic scheduler.
type Driver struct {
	mu       sync.Mutex
	cfg      Config
	cron     *cron.Cron
	watcher  *reloadWatcher
	settings *config.GlobalSettings
	observed *cache.Cache // per-tenant JVM thread counts, threadCountTTL
}

// NewDriver constructs a Driver from cfg. Call Start to register cron
// entries for every enabled family and begin firing.
func NewDriver(cfg Config) *Driver {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Driver{cfg: cfg, observed: cache.New()}
}

func (d *Driver) now() time.Time { return d.cfg.Now() }

// Start registers one cron entry per enabled family and begins firing.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buildLocked(ctx)
}

// buildLocked creates a fresh *cron.Cron from d.cfg.Families and starts it.
// Callers must hold d.mu.
func (d *Driver) buildLocked(ctx context.Context) error {
	c := cron.New()
	for _, fc := range d.cfg.Families {
		if !fc.Settings.Enabled {
			continue
		}
		fc := fc
		spec := fmt.Sprintf("@every %dm", maxInt(fc.Settings.MinutesBetweenRun, 1))
		if _, err := c.AddFunc(spec, func() {
			d.fire(ctx, fc)
		}); err != nil {
			return fmt.Errorf("register family %s: %w", fc.Name, err)
		}
	}
	d.cron = c
	c.Start()
	return nil
}

// Stop halts the cron driver and any hot-reload watcher. In-flight firings
// are allowed to finish.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher != nil {
		d.watcher.stop()
		d.watcher = nil
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
		d.cron = nil
	}
}

// Reload replaces the family settings and rebuilds the cron instance from
// scratch: every registered job is cancelled and re-registered against the
// new settings.
func (d *Driver) Reload(ctx context.Context, families []FamilyConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.cfg.Families = families
	return d.buildLocked(ctx)
}

// WatchSettings starts the fsnotify + hash-poll hot-reload loop against the
// global TOML settings file at path. onReload re-derives the
// []FamilyConfig from the freshly loaded settings.
func (d *Driver) WatchSettings(ctx context.Context, path string, onReload func(*config.GlobalSettings) ([]FamilyConfig, error)) error {
	w, err := newReloadWatcher(path, d.cfg.Logger, func() {
		gs, err := config.LoadGlobalSettings(path)
		if err != nil {
			d.cfg.Logger.Error(ctx, "scheduler: reload failed to parse settings", err, nil)
			return
		}
		families, err := onReload(gs)
		if err != nil {
			d.cfg.Logger.Error(ctx, "scheduler: reload callback failed", err, nil)
			return
		}
		if err := d.Reload(ctx, families); err != nil {
			d.cfg.Logger.Error(ctx, "scheduler: rebuild after reload failed", err, nil)
		}
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()
	w.start(ctx)
	return nil
}

// RunOnce fires one family's cycle synchronously, for --manual=1 one-shot
// invocations and ilmctl commands.
func (d *Driver) RunOnce(ctx context.Context, family FamilyConfig) {
	d.fire(ctx, family)
}

// fire runs one family's full retry-pass cycle across every tenant.
func (d *Driver) fire(ctx context.Context, fc FamilyConfig) {
	tenants, err := d.cfg.LoadTenants()
	if err != nil {
		d.cfg.Logger.Error(ctx, "scheduler: load tenants failed", err, map[string]interface{}{"family": fc.Name})
		return
	}
	if len(tenants) == 0 {
		return
	}

	poolSize := d.computePoolSize(ctx, tenants)
	attempts := fc.Settings.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}

	pending := tenants
	for attempt := 0; attempt <= attempts; attempt++ {
		if len(pending) == 0 {
			return
		}
		isFinal := attempt == attempts
		gate := fc.Settings.HealthCheckLevel
		if isFinal && fc.Settings.FallbackHealthCheckLevel != "" {
			gate = fc.Settings.FallbackHealthCheckLevel
		}

		pending = d.runPass(ctx, fc, pending, gate, isFinal, poolSize)

		if len(pending) > 0 && !isFinal && fc.Settings.RetryWaitInSeconds > 0 {
			select {
			case <-time.After(time.Duration(fc.Settings.RetryWaitInSeconds) * time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

// runPass executes one attempt across tenants concurrently, bounded by
// poolSize, and returns the tenants whose engine run failed.
func (d *Driver) runPass(ctx context.Context, fc FamilyConfig, tenants []model.TenantConfig, gate string, isFinal bool, poolSize int) []model.TenantConfig {
	sem := make(chan struct{}, poolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []model.TenantConfig

	for _, t := range tenants {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			lockKey := fmt.Sprintf("ilm:lock:%s:%s", t.Name, fc.Name)
			if d.cfg.Locker != nil {
				acquired, err := d.cfg.Locker.TryAcquire(ctx, lockKey, lockTTL)
				if err != nil {
					d.cfg.Logger.Error(ctx, "scheduler: lock acquire failed", err, map[string]interface{}{"tenant": t.Name, "family": fc.Name})
				} else if !acquired {
					return // another replica is already running this tenant/family
				}
				defer d.cfg.Locker.Release(ctx, lockKey)
			}

			start := d.now()
			engine, err := d.cfg.EngineFactory(t, fc.Name, gate)
			if err == nil {
				err = engine.Run(ctx)
			}
			duration := d.now().Sub(start)

			if d.cfg.Metrics != nil {
				status := "ok"
				if err != nil {
					status = "error"
				}
				d.cfg.Metrics.RecordCycle(t.Name, status, duration)
				d.cfg.Metrics.RecordDecision(t.Name, fc.Name, "run", status)
			}

			if err != nil {
				mu.Lock()
				failed = append(failed, t)
				mu.Unlock()
				if isFinal && d.cfg.NotifyFailure != nil {
					d.cfg.NotifyFailure(t, fc.Name, err)
				}
			}
		}()
	}
	wg.Wait()
	return failed
}

// computePoolSize sizes the fan-out pool as
// min(100, lowest_node_jvm_thread_count/3) across every tenant fanned out
// this firing: each tenant is its own cluster, so the pool is sized by the
// most thread-constrained cluster among them. Observed thread counts are
// cached for threadCountTTL so back-to-back family firings do not re-poll
// every tenant.
func (d *Driver) computePoolSize(ctx context.Context, tenants []model.TenantConfig) int {
	lowest := -1
	for _, t := range tenants {
		threads, ok := d.observed.GetInt("jvmthreads:" + t.Name)
		if !ok {
			if d.cfg.GatewayFor == nil {
				continue
			}
			gw := d.cfg.GatewayFor(t)
			if gw == nil {
				continue
			}
			stats, err := gw.NodeStatsJVM(ctx)
			if err != nil {
				continue
			}
			threads = stats.LowestLiveThreadCount
			d.observed.Set("jvmthreads:"+t.Name, threads, threadCountTTL)
		}
		if lowest == -1 || threads < lowest {
			lowest = threads
		}
	}
	return poolSizeFromThreads(lowest)
}

// poolSizeFromThreads is the pure sizing function: min(100, threads/3),
// floored at 1. A negative/unknown threads value (no cluster responded)
// falls back to the cap.
func poolSizeFromThreads(lowestThreadCount int) int {
	if lowestThreadCount < 0 {
		return defaultWorkerPoolCap
	}
	size := lowestThreadCount / 3
	if size < 1 {
		size = 1
	}
	if size > defaultWorkerPoolCap {
		size = defaultWorkerPoolCap
	}
	return size
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
