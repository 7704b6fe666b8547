// Package allocation implements the Allocation (hot/warm tiering) lifecycle
// engine: age non-special indices against a reference timestamp and migrate
// aged-out indices to the warm tier.
package allocation

import (
	"context"
	"fmt"
	"strings"
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

// Target is one non-special index considered for tiering.
type Target struct {
	Name         string
	CreationDate time.Time
}

// Decision is the allocation engine's verdict for one Target.
type Decision struct {
	Target      Target
	TargetTier  string
	CurrentTier string
	ShouldMove  bool
	AgeDays     int
}

// Engine runs the allocation decision/apply cycle for one tenant.
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

// Decide evaluates the target tier for a single index, independent of
// cluster I/O: warm once age >= policy.allocation_days, else hot.
func Decide(target Target, policyValue model.AllocationValue, currentTier string, referenceTime time.Time, now time.Time) Decision {
	ageDays := utils.WholeDays(now, referenceTime)
	targetTier := model.TierHot
	if ageDays >= policyValue.Days {
		targetTier = model.TierWarm
	}
	return Decision{
		Target:      target,
		TargetTier:  targetTier,
		CurrentTier: currentTier,
		ShouldMove:  targetTier != currentTier,
		AgeDays:     ageDays,
	}
}

// currentTierStyle derives the index's current tier and whether it was
// expressed via tier_preference (preferred) or box_type, reading
// index.routing.allocation.include._tier_preference first, then
// index.routing.allocation.require.box_type.
func currentTierStyle(tierPreference, boxType string) (tier string, useTierPreference bool) {
	if tierPreference != "" {
		if strings.Contains(tierPreference, model.TierWarm) {
			return model.TierWarm, true
		}
		return model.TierHot, true
	}
	if boxType != "" {
		if boxType == model.TierWarm {
			return model.TierWarm, false
		}
		return model.TierHot, false
	}
	// Neither setting present: the index has never been tiered explicitly.
	// Treat it as hot and, on a move, write tier_preference — the modern
	// of the two styles and the one Elasticsearch/OpenSearch itself defaults
	// newly created indices to.
	return model.TierHot, true
}

// CollectTargets gathers every non-special index for tiering consideration.
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

// Run executes one full allocation cycle for the tenant.
func (e *Engine) Run(ctx context.Context) error {
	targets, err := e.CollectTargets(ctx)
	if err != nil {
		return err
	}

	for _, target := range targets {
		_, value := policy.ResolveValue(e.Tenant.Policy.Allocation, target.Name, model.AllocationValue{Days: 30})

		ref, err := e.resolveReference(ctx, target.Name, target.CreationDate)
		if err != nil {
			if e.Logger != nil {
				e.Logger.WithError(err).WithField("index", target.Name).Warn("allocation: could not resolve reference timestamp")
			}
			continue
		}

		tierPreference, boxType, err := e.Gateway.GetTierSetting(ctx, target.Name)
		if err != nil {
			if e.Logger != nil {
				e.Logger.WithError(err).WithField("index", target.Name).Warn("allocation: could not read current tier setting")
			}
			continue
		}
		currentTier, useTierPreference := currentTierStyle(tierPreference, boxType)

		decision := Decide(target, value, currentTier, ref, e.now())
		if !decision.ShouldMove {
			continue
		}

		if err := e.Gateway.PutTierSetting(ctx, target.Name, useTierPreference, decision.TargetTier); err != nil {
			if e.Notifier != nil {
				e.Notifier.Notify(ctx, notifier.Event{
					Tenant:  e.Tenant.Name,
					Family:  "allocation",
					Subject: target.Name,
					Message: fmt.Sprintf("tier move to %s failed for %s: %v", decision.TargetTier, target.Name, err),
					Level:   notifier.LevelError,
				})
			}
			continue
		}
		if e.Logger != nil {
			e.Logger.WithField("index", target.Name).WithField("tier", decision.TargetTier).Info("allocation: moved tier")
		}
	}
	return nil
}
