// Package backup implements the Backup lifecycle engine: per-repository,
// per-job snapshot retention and creation, with optional limit_age
// windowing of the index selector.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/utils"
	"github.com/clusterkeeper/ilm/notifier"
)

// systemPrefixes is the fixed set of system-index roots unioned into the
// "global" and ".kibana"/"special" job selectors.
var systemPrefixes = []string{".kibana", ".opendistro", ".opensearch"}

// Engine runs the backup retention/create cycle for one tenant.
type Engine struct {
	Tenant   model.TenantConfig
	Gateway  gateway.Client
	Notifier notifier.Sink
	Logger   *logging.Logger
	Now      func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Run executes one full backup cycle across every repository/job pair
// configured for the tenant.
func (e *Engine) Run(ctx context.Context) error {
	for repo, jobs := range e.Tenant.Policy.Backup {
		for jobName, job := range jobs {
			if err := e.runRetention(ctx, repo, jobName, job); err != nil {
				e.notifyFailure(ctx, jobName, fmt.Sprintf("retention pass failed for %s/%s: %v", repo, jobName, err))
			}
			if err := e.runCreate(ctx, repo, jobName, job); err != nil {
				e.notifyFailure(ctx, jobName, fmt.Sprintf("create pass failed for %s/%s: %v", repo, jobName, err))
			}
		}
	}
	return nil
}

// runRetention deletes snapshots belonging to jobName whose age has passed
// the job's retention window.
func (e *Engine) runRetention(ctx context.Context, repo, jobName string, job model.BackupJob) error {
	snapshots, err := e.Gateway.SnapshotList(ctx, repo)
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		if snap.ShortName != jobName {
			continue
		}
		if snap.AgeDays < job.RetentionDays {
			continue
		}
		if err := e.Gateway.SnapshotDelete(ctx, repo, snap.FullName); err != nil {
			e.notifyFailure(ctx, snap.FullName, fmt.Sprintf("snapshot delete failed: %v", err))
			continue
		}
		if e.Logger != nil {
			e.Logger.WithField("snapshot", snap.FullName).WithField("age_days", snap.AgeDays).Info("backup: retention deleted snapshot")
		}
	}
	return nil
}

// runCreate computes the index selector for jobName and submits a new
// snapshot.
func (e *Engine) runCreate(ctx context.Context, repo, jobName string, job model.BackupJob) error {
	roots, err := e.selectorRoots(ctx, jobName, job)
	if err != nil {
		return err
	}

	var indices []string
	if job.LimitAge > 0 {
		resolved, err := e.limitAgeIndices(ctx, roots, job.LimitAge)
		if err != nil {
			return err
		}
		if len(resolved) == 0 {
			return nil // nothing within the window; skip this job this cycle
		}
		indices = resolved
	} else {
		for _, root := range roots {
			indices = append(indices, root+"*")
		}
	}

	name := fmt.Sprintf("%s_%s", jobName, utils.SnapshotStamp(e.now()))
	body := map[string]interface{}{
		"indices":              strings.Join(indices, ","),
		"ignore_unavailable":   true,
		"include_global_state": true,
		"wait_for_completion":  false,
	}
	return e.Gateway.SnapshotCreate(ctx, repo, name, body)
}

// selectorRoots computes the index-root selector for a job name: "global"
// means every write alias plus the system set; ".kibana"/"special" means
// the system set alone; anything else is its own name, unioned with the
// system set when include_special is true.
func (e *Engine) selectorRoots(ctx context.Context, jobName string, job model.BackupJob) ([]string, error) {
	switch jobName {
	case "global":
		aliases, err := e.Gateway.ListAliases(ctx)
		if err != nil {
			return nil, err
		}
		var roots []string
		for _, a := range aliases {
			if a.IsWriteIndex {
				roots = append(roots, a.Alias)
			}
		}
		return append(utils.Unique(roots), systemPrefixes...), nil
	case ".kibana", "special":
		return append([]string{}, systemPrefixes...), nil
	default:
		roots := []string{jobName}
		if job.IncludeSpecial {
			roots = append(roots, systemPrefixes...)
		}
		return roots, nil
	}
}

// limitAgeIndices restricts roots to concrete indices whose newest document
// falls within limitAgeDays, one aggregation per root.
func (e *Engine) limitAgeIndices(ctx context.Context, roots []string, limitAgeDays int) ([]string, error) {
	cutoff := e.now().Add(-time.Duration(limitAgeDays) * 24 * time.Hour)
	var out []string
	for _, root := range roots {
		buckets, err := e.Gateway.Aggregate(ctx, gateway.AggregateSpec{
			IndexPattern:   root + "*",
			TimestampField: "@timestamp",
		})
		if err != nil {
			return nil, err
		}
		for _, b := range buckets {
			if time.UnixMilli(b.MaxTimestampMillis).After(cutoff) {
				out = append(out, b.Index)
			}
		}
	}
	return out, nil
}

func (e *Engine) notifyFailure(ctx context.Context, subject, message string) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(ctx, notifier.Event{
		Tenant:  e.Tenant.Name,
		Family:  "backup",
		Subject: subject,
		Message: message,
		Level:   notifier.LevelError,
	})
}
