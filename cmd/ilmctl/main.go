// Command ilmctl is the one-shot CLI driver for the index lifecycle
// manager engines: --client, --notification, and --manual
// let an operator run every enabled family once against one or all
// tenants without standing up the ilmd daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/clusterkeeper/ilm/infrastructure/config"
	ilmerrors "github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/runtime"
	"github.com/clusterkeeper/ilm/internal/ilmwiring"
	"github.com/clusterkeeper/ilm/notifier"
	"github.com/clusterkeeper/ilm/scheduler"
)

func main() {
	var (
		settingsPath string
		clientName   string
		notify       bool
		manual       bool
		family       string
	)

	root := &cobra.Command{
		Use:   "ilmctl",
		Short: "Run index lifecycle manager engines once, outside the scheduler's cadence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), options{
				settingsPath: settingsPath,
				clientName:   clientName,
				notify:       notify,
				manual:       manual,
				family:       family,
			})
		},
	}

	root.Flags().StringVar(&settingsPath, "settings", runtime.ResolveString("", "ILM_SETTINGS_PATH", "/etc/ilm/settings.toml"), "path to the global TOML settings file")
	root.Flags().StringVar(&clientName, "client", "", "limit the run to a single tenant by client_name (overrides limit_to_client)")
	root.Flags().BoolVar(&notify, "notification", true, "send failure notifications for this run")
	root.Flags().BoolVar(&manual, "manual", false, "bypass each family's health-gate fallback retry schedule and run every enabled family exactly once")
	root.Flags().StringVar(&family, "family", "", "run only this policy family instead of every enabled one")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ilmctl:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the process exit code: configuration
// failures are the only distinguished class.
func exitCodeFor(err error) int {
	if svcErr := ilmerrors.GetServiceError(err); svcErr != nil && svcErr.Code == ilmerrors.ErrCodeConfiguration {
		return 2
	}
	return 1
}

type options struct {
	settingsPath string
	clientName   string
	notify       bool
	manual       bool
	family       string
}

func runOnce(ctx context.Context, opts options) error {
	gs, err := config.LoadGlobalSettings(opts.settingsPath)
	if err != nil {
		return ilmerrors.Configuration("load global settings", err)
	}
	if opts.clientName != "" {
		gs.Settings.LimitToClient = opts.clientName
	}

	logger := logging.NewFromEnv("ilmctl")
	settings := ilmwiring.NewSettings(gs)

	var transports []notifier.Transport
	if opts.notify {
		transports = ilmwiring.BuildTransportsFromEnv()
	}

	cluster := ilmwiring.NewCluster()
	nowFn := func() time.Time { return time.Now().UTC() }

	driver := scheduler.NewDriver(scheduler.Config{
		LoadTenants:   cluster.LoadTenants(settings),
		GatewayFor:    cluster.GatewayFor,
		EngineFactory: ilmwiring.EngineFactory(cluster, settings, transports, logger, nil, nowFn),
		NotifyFailure: ilmwiring.NotifyFailure(settings, transports, logger),
		Logger:        logger,
		Now:           nowFn,
	})

	families := ilmwiring.Families(gs)
	ran := 0
	for _, fc := range families {
		if opts.family != "" && !strings.EqualFold(fc.Name, opts.family) {
			continue
		}
		if !opts.manual && !fc.Settings.Enabled {
			logger.Info(ctx, "ilmctl: skipping disabled family", map[string]interface{}{"family": fc.Name})
			continue
		}
		logger.Info(ctx, "ilmctl: running family", map[string]interface{}{"family": fc.Name})
		driver.RunOnce(ctx, fc)
		ran++
	}

	if ran == 0 {
		return ilmerrors.Configuration("select family", fmt.Errorf("no matching enabled family to run (family=%q manual=%v)", opts.family, opts.manual))
	}
	return nil
}
