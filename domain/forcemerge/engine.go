// Package forcemerge implements the ForceMerge lifecycle engine: age
// non-special indices against a reference timestamp and force-merge
// aged-out ones to a single segment.
package forcemerge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clusterkeeper/ilm/domain/classify"
	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/domain/policy"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/utils"
	"github.com/clusterkeeper/ilm/notifier"
)

const referenceField = "@timestamp"

// Target is one non-special index considered for force-merge.
type Target struct {
	Name         string
	CreationDate time.Time
}

// Decision is the force-merge engine's verdict for one Target.
type Decision struct {
	Target        Target
	ShouldMerge   bool
	AgeDays       int
	ReferenceTime time.Time
}

// Engine runs the force-merge decision/apply cycle for one tenant.
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

// Decide evaluates the force-merge decision for a single target given its
// resolved reference timestamp, independent of cluster I/O.
func Decide(target Target, policyValue model.ForceMergeValue, referenceTime time.Time, now time.Time) Decision {
	ageDays := utils.WholeDays(now, referenceTime)
	return Decision{
		Target:        target,
		ShouldMerge:   ageDays >= policyValue.Days,
		AgeDays:       ageDays,
		ReferenceTime: referenceTime,
	}
}

func (e *Engine) resolveReference(ctx context.Context, index string, creationDate time.Time) (time.Time, error) {
	ts, found, err := e.Gateway.NewestTimestamp(ctx, index, referenceField)
	if err != nil {
		return time.Time{}, err
	}
	if found {
		return ts, nil
	}
	return creationDate, nil
}

// CollectTargets gathers every non-special index for force-merge
// consideration.
func (e *Engine) CollectTargets(ctx context.Context) ([]Target, error) {
	records, err := e.Gateway.ListIndices(ctx)
	if err != nil {
		return nil, err
	}
	var targets []Target
	for _, rec := range records {
		if classify.IsSpecial(rec.Name) {
			continue
		}
		targets = append(targets, Target{Name: rec.Name, CreationDate: rec.CreationDate})
	}
	return targets, nil
}

// Run executes one full force-merge cycle for the tenant. A gateway
// timeout on ForceMerge is reported by gateway.ErrAsyncAcknowledged, which
// this engine treats as a completed, acknowledged operation rather than a
// failure: the server keeps merging after the connection drops.
func (e *Engine) Run(ctx context.Context) error {
	targets, err := e.CollectTargets(ctx)
	if err != nil {
		return err
	}

	for _, target := range targets {
		_, value := policy.ResolveValue(e.Tenant.Policy.ForceMerge, target.Name, model.ForceMergeValue{Days: 90})

		ref, err := e.resolveReference(ctx, target.Name, target.CreationDate)
		if err != nil {
			if e.Logger != nil {
				e.Logger.WithError(err).WithField("index", target.Name).Warn("forcemerge: could not resolve reference timestamp")
			}
			continue
		}

		decision := Decide(target, value, ref, e.now())
		if !decision.ShouldMerge {
			continue
		}

		err = e.Gateway.ForceMerge(ctx, target.Name)
		if err == nil || errors.Is(err, gateway.ErrAsyncAcknowledged) {
			if e.Logger != nil {
				e.Logger.WithField("index", target.Name).Info("forcemerge: acknowledged")
			}
			continue
		}

		if e.Notifier != nil {
			e.Notifier.Notify(ctx, notifier.Event{
				Tenant:  e.Tenant.Name,
				Family:  "forcemerge",
				Subject: target.Name,
				Message: fmt.Sprintf("forcemerge failed for %s: %v", target.Name, err),
				Level:   notifier.LevelError,
			})
		}
	}
	return nil
}
