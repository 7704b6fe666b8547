// Package rollover implements the Rollover lifecycle engine: for every
// non-special write alias/data-stream, decide whether the current write
// index should roll over by size or age, and execute that decision against
// the cluster.
package rollover

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/clusterkeeper/ilm/domain/classify"
	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/domain/policy"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/utils"
	"github.com/clusterkeeper/ilm/notifier"
)

const maxApplyAttempts = 3

const bytesPerGB = 1 << 30

// Target is one write alias or data stream considered for rollover.
type Target struct {
	Name             string // alias or data stream name
	WriteIndex       string
	PrimaryShards    int
	PrimarySizeBytes int64
	CreationDate     time.Time
	IsDataStream     bool
}

// Decision is the rollover engine's verdict for one Target.
type Decision struct {
	Target     Target
	ShouldRoll bool
	SizeGB     float64
	AgeDays    int
	SizeCheck  float64
}

// Engine runs the rollover decision/apply cycle for one tenant.
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

// Decide evaluates the rollover decision for a single target, independent
// of cluster I/O. The 1 GB floor on the age branch keeps near-empty
// indices from rolling on age alone.
func Decide(target Target, policyValue model.RolloverValue, now time.Time) Decision {
	sizeGB := utils.BytesToGB(target.PrimarySizeBytes)

	sizeCheck := float64(policyValue.SizeGB)
	if policyValue.Auto {
		sizeCheck = float64(target.PrimaryShards) * 50
	}

	ageDays := utils.WholeDays(now, target.CreationDate)

	shouldRoll := sizeGB >= sizeCheck || (ageDays >= policyValue.Days && sizeGB >= 1)

	return Decision{
		Target:     target,
		ShouldRoll: shouldRoll,
		SizeGB:     sizeGB,
		AgeDays:    ageDays,
		SizeCheck:  sizeCheck,
	}
}

// CollectTargets gathers every non-special write alias and data stream from
// the cluster, resolving each write index's primary size and creation date.
func (e *Engine) CollectTargets(ctx context.Context) ([]Target, error) {
	var targets []Target

	aliases, err := e.Gateway.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	byAlias := map[string]string{}
	for _, a := range aliases {
		if !a.IsWriteIndex || classify.IsSpecial(a.Index) {
			continue
		}
		byAlias[a.Alias] = a.Index
	}
	for alias, writeIndex := range byAlias {
		rec, err := e.Gateway.GetIndexStats(ctx, writeIndex)
		if err != nil {
			continue
		}
		targets = append(targets, Target{
			Name:             alias,
			WriteIndex:       writeIndex,
			PrimaryShards:    rec.PrimaryShards,
			PrimarySizeBytes: rec.PrimarySizeBytes,
			CreationDate:     rec.CreationDate,
		})
	}

	streams, err := e.Gateway.ListDataStreams(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range streams {
		if classify.IsSpecial(s.Name) || len(s.Indices) == 0 {
			continue
		}
		// The write index is the member whose ordinal matches the
		// stream's generation, not simply the last listed index.
		var writeIndex string
		for _, m := range classify.DataStreamMember(s.Name, s.Indices, s.Generation) {
			if m.IsWriteIndex {
				writeIndex = m.Index
				break
			}
		}
		if writeIndex == "" {
			continue
		}
		rec, err := e.Gateway.GetIndexStats(ctx, writeIndex)
		if err != nil {
			continue
		}
		targets = append(targets, Target{
			Name:             s.Name,
			WriteIndex:       writeIndex,
			PrimaryShards:    rec.PrimaryShards,
			PrimarySizeBytes: rec.PrimarySizeBytes,
			CreationDate:     rec.CreationDate,
			IsDataStream:     true,
		})
	}

	return targets, nil
}

// Run executes one full rollover cycle for the tenant.
func (e *Engine) Run(ctx context.Context) error {
	targets, err := e.CollectTargets(ctx)
	if err != nil {
		return err
	}

	for _, target := range targets {
		bucket, value := policy.ResolveValue(e.Tenant.Policy.Rollover, target.Name, model.RolloverValue{Auto: true, Days: 30})
		decision := Decide(target, value, e.now())
		if !decision.ShouldRoll {
			continue
		}

		var applyErr error
		for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
			applyErr = e.apply(ctx, decision)
			if applyErr == nil {
				break
			}
		}
		if applyErr != nil && e.Notifier != nil {
			e.Notifier.Notify(ctx, notifier.Event{
				Tenant:  e.Tenant.Name,
				Family:  "rollover",
				Subject: target.Name,
				Message: fmt.Sprintf("rollover failed for %s (bucket=%s): %v", target.Name, bucket, applyErr),
				Level:   notifier.LevelError,
			})
		}
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, decision Decision) error {
	target := decision.Target
	result, err := e.Gateway.Rollover(ctx, target.Name)
	if err == nil && result.RolledOver {
		return nil
	}
	if err == nil && !result.RolledOver {
		// The cluster itself declined; nothing more to do this cycle.
		return nil
	}

	// Native rollover unsupported or failed transport-side: synthesize it.
	successor, serr := successorIndexName(target.WriteIndex)
	if serr != nil {
		return serr
	}
	if cerr := e.Gateway.CreateIndex(ctx, successor); cerr != nil {
		return cerr
	}
	falseVal := false
	trueVal := true
	return e.Gateway.UpdateAliases(ctx, []gateway.AliasAction{
		{Add: &gateway.AliasActionSpec{Index: target.WriteIndex, Alias: target.Name, IsWriteIndex: &falseVal}},
		{Add: &gateway.AliasActionSpec{Index: successor, Alias: target.Name, IsWriteIndex: &trueVal}},
	})
}

var trailingOrdinalRe = regexp.MustCompile(`-(\d{1,6})$`)

// successorIndexName computes "group-NNN...N+1" for the manual rollover
// fallback path, preserving the ordinal's zero-padding width.
func successorIndexName(writeIndex string) (string, error) {
	m := trailingOrdinalRe.FindStringSubmatchIndex(writeIndex)
	if m == nil {
		return "", fmt.Errorf("rollover: %s has no ordinal suffix to increment", writeIndex)
	}
	numStr := writeIndex[m[2]:m[3]]
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return "", err
	}
	width := len(numStr)
	next := fmt.Sprintf("%0*d", width, n+1)
	return writeIndex[:m[0]] + "-" + next, nil
}
