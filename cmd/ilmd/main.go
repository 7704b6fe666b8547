// Command ilmd is the daemon entry point for the index lifecycle manager:
// it loads the global TOML settings and tenant JSON files, starts the
// scheduler against every enabled policy family, and exposes an ops HTTP
// surface (health, metrics, manual trigger).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clusterkeeper/ilm/infrastructure/config"
	ilmerrors "github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/httputil"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/metrics"
	"github.com/clusterkeeper/ilm/infrastructure/middleware"
	"github.com/clusterkeeper/ilm/infrastructure/runtime"
	"github.com/clusterkeeper/ilm/internal/ilmwiring"
	"github.com/clusterkeeper/ilm/scheduler"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on normal shutdown, non-zero only
// for configuration failures.
func run() int {
	settingsPath := runtime.ResolveString("", "ILM_SETTINGS_PATH", "/etc/ilm/settings.toml")
	opsAddr := fmt.Sprintf(":%d", runtime.ResolveInt(0, "ILM_OPS_PORT", 9600))

	logger := logging.NewFromEnv("ilmd")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs, err := config.LoadGlobalSettings(settingsPath)
	if err != nil {
		logger.Error(ctx, "ilmd: failed to load global settings", ilmerrors.Configuration("load global settings", err), nil)
		return 1
	}
	settings := ilmwiring.NewSettings(gs)

	var met *metrics.Metrics
	if metrics.Enabled() {
		met = metrics.Init("ilmd")
		met.StartProcessSampler(ctx, 15*time.Second)
		startTime := time.Now()
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					met.UpdateUptime(startTime)
				}
			}
		}()
	}

	transports := ilmwiring.BuildTransportsFromEnv()
	cluster := ilmwiring.NewCluster()

	locker, redisClient, err := ilmwiring.NewLockerFromEnv(ctx)
	if err != nil {
		logger.Error(ctx, "ilmd: failed to configure redis advisory lock", err, nil)
		return 1
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	nowFn := func() time.Time { return time.Now().UTC() }

	driver := scheduler.NewDriver(scheduler.Config{
		Families:      ilmwiring.Families(gs),
		LoadTenants:   cluster.LoadTenants(settings),
		GatewayFor:    cluster.GatewayFor,
		EngineFactory: ilmwiring.EngineFactory(cluster, settings, transports, logger, met, nowFn),
		NotifyFailure: ilmwiring.NotifyFailure(settings, transports, logger),
		Locker:        locker,
		Logger:        logger,
		Metrics:       met,
		Now:           nowFn,
	})

	if err := driver.Start(ctx); err != nil {
		logger.Error(ctx, "ilmd: failed to start scheduler", ilmerrors.Configuration("start scheduler", err), nil)
		return 1
	}

	if err := driver.WatchSettings(ctx, settingsPath, func(gs *config.GlobalSettings) ([]scheduler.FamilyConfig, error) {
		settings.Set(gs)
		return ilmwiring.Families(gs), nil
	}); err != nil {
		logger.Error(ctx, "ilmd: failed to start settings watcher", err, nil)
		return 1
	}

	ready := true
	router := buildRouter(driver, settings, met, &ready, logger)

	// The write timeout must leave room for a synchronous /trigger cycle.
	server := &http.Server{
		Addr:         opsAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 16 * time.Minute,
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second)
	shutdown.OnShutdown(func() {
		ready = false
		driver.Stop()
		cancel()
	})
	shutdown.ListenForSignals()

	logger.Info(ctx, "ilmd: listening", map[string]interface{}{"addr": opsAddr})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "ilmd: ops server failed", err, nil)
		shutdown.Shutdown()
		return 1
	}

	shutdown.Wait()
	return 0
}

func buildRouter(driver *scheduler.Driver, settings *ilmwiring.Settings, met *metrics.Metrics, ready *bool, logger *logging.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(1 << 20).Handler)
	router.Use(middleware.NewTimeoutMiddleware(15 * time.Minute).Handler)
	if met != nil {
		router.Use(middleware.MetricsMiddleware("ilmd", met))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	router.Handle("/healthz", middleware.LivenessHandler()).Methods(http.MethodGet)
	router.Handle("/readyz", middleware.ReadinessHandler(ready)).Methods(http.MethodGet)

	// A trigger runs a full engine cycle synchronously; throttle it.
	trigger := middleware.NewRateLimiter(1, 2, logger).Handler(
		http.HandlerFunc(triggerHandler(driver, settings, logger)))
	router.Handle("/trigger/{family}", trigger).Methods(http.MethodPost)

	return router
}

// triggerHandler runs one family's full retry-pass cycle synchronously
// against its currently configured settings, for operator-initiated
// out-of-band runs (a manual equivalent of ilmctl --manual over HTTP).
func triggerHandler(driver *scheduler.Driver, settings *ilmwiring.Settings, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		family := strings.ToLower(strings.TrimSpace(mux.Vars(r)["family"]))
		gs := settings.Get()
		fs, ok := gs.FamilyByName(family)
		if !ok {
			httputil.WriteErrorResponse(w, r, http.StatusNotFound, "", fmt.Sprintf("unknown family %q", family), nil)
			return
		}

		logger.Info(r.Context(), "ilmd: manual trigger requested", map[string]interface{}{"family": family})
		driver.RunOnce(r.Context(), scheduler.FamilyConfig{Name: family, Settings: fs})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "completed", "family": family})
	}
}
