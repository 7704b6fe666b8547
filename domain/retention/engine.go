// Package retention implements the Retention lifecycle engine: age
// non-special indices against a reference timestamp and delete those past
// their policy's retention window, gated on cluster health.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/clusterkeeper/ilm/domain/classify"
	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/domain/policy"
	"github.com/clusterkeeper/ilm/gateway"
	ilmerrors "github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/utils"
	"github.com/clusterkeeper/ilm/notifier"
)

// batchSize bounds how many index names are sent to a single delete call.
const batchSize = 50

// referenceField is the field searched for the newest document timestamp.
const referenceField = "@timestamp"

// Target is one non-special index considered for retention.
type Target struct {
	Name           string
	CreationDate   time.Time
	DataStreamName string // "" unless this index is a data stream's sole backing member
}

// Decision is the retention engine's verdict for one Target.
type Decision struct {
	Target        Target
	ShouldDelete  bool
	AgeDays       int
	ReferenceTime time.Time
}

// Engine runs the retention decision/apply cycle for one tenant.
type Engine struct {
	Tenant       model.TenantConfig
	Gateway      gateway.Client
	Notifier     notifier.Sink
	Logger       *logging.Logger
	Now          func() time.Time
	RequiredGate string // cluster_health threshold, e.g. "yellow"
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) requiredGate() string {
	if e.RequiredGate != "" {
		return e.RequiredGate
	}
	return "yellow"
}

// Decide evaluates the retention decision for a single target given its
// resolved reference timestamp, independent of cluster I/O.
func Decide(target Target, policyValue model.RetentionValue, referenceTime time.Time, now time.Time) Decision {
	ageDays := utils.WholeDays(now, referenceTime)
	return Decision{
		Target:        target,
		ShouldDelete:  ageDays >= policyValue.Days,
		AgeDays:       ageDays,
		ReferenceTime: referenceTime,
	}
}

// resolveReference obtains the reference timestamp for an index: the
// newest @timestamp field value if present, else the index's creation
// date.
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

// CollectTargets gathers every non-special index, marking those that are
// the sole backing member of a data stream so apply() deletes the stream
// rather than the index directly.
func (e *Engine) CollectTargets(ctx context.Context) ([]Target, error) {
	soleStreamOf := map[string]string{}
	streams, err := e.Gateway.ListDataStreams(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range streams {
		if len(s.Indices) == 1 {
			soleStreamOf[s.Indices[0]] = s.Name
		}
	}

	records, err := e.Gateway.ListIndices(ctx)
	if err != nil {
		return nil, err
	}

	var targets []Target
	for _, rec := range records {
		if classify.IsSpecial(rec.Name) {
			continue
		}
		targets = append(targets, Target{
			Name:           rec.Name,
			CreationDate:   rec.CreationDate,
			DataStreamName: soleStreamOf[rec.Name],
		})
	}
	return targets, nil
}

// Run executes one full retention cycle for the tenant, aborting early if
// the health gate is not satisfied.
func (e *Engine) Run(ctx context.Context) error {
	health, err := e.Gateway.ClusterHealth(ctx)
	if err != nil {
		return err
	}
	if !gateway.HealthAtLeast(health, e.requiredGate()) {
		return ilmerrors.HealthGate(e.Tenant.Name, e.requiredGate(), health)
	}

	targets, err := e.CollectTargets(ctx)
	if err != nil {
		return err
	}

	var toDeleteIndices []string
	var toDeleteStreams []string

	for _, target := range targets {
		bucket, value := policy.ResolveValue(e.Tenant.Policy.Retention, target.Name, model.RetentionValue{Days: 365})
		ref, err := e.resolveReference(ctx, target.Name, target.CreationDate)
		if err != nil {
			if e.Logger != nil {
				e.Logger.WithError(err).WithField("index", target.Name).Warn("retention: could not resolve reference timestamp")
			}
			continue
		}
		decision := Decide(target, value, ref, e.now())
		if !decision.ShouldDelete {
			continue
		}
		if e.Logger != nil {
			e.Logger.WithField("index", target.Name).WithField("bucket", bucket).WithField("age_days", decision.AgeDays).Info("retention: deleting")
		}
		if target.DataStreamName != "" {
			toDeleteStreams = append(toDeleteStreams, target.DataStreamName)
		} else {
			toDeleteIndices = append(toDeleteIndices, target.Name)
		}
	}

	for _, name := range toDeleteStreams {
		if err := e.Gateway.DeleteDataStream(ctx, name); err != nil {
			e.notifyFailure(ctx, name, err)
		}
	}

	for _, batch := range utils.Chunk(toDeleteIndices, batchSize) {
		if err := e.Gateway.DeleteIndices(ctx, batch); err != nil {
			for _, name := range batch {
				e.notifyFailure(ctx, name, err)
			}
		}
	}

	return nil
}

func (e *Engine) notifyFailure(ctx context.Context, subject string, err error) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(ctx, notifier.Event{
		Tenant:  e.Tenant.Name,
		Family:  "retention",
		Subject: subject,
		Message: fmt.Sprintf("retention delete failed for %s: %v", subject, err),
		Level:   notifier.LevelError,
	})
}
