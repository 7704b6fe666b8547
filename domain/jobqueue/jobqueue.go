// Package jobqueue emits reindex-candidate work items:
// classifying indices by shard size, batching eligible candidates by
// series group, and emitting create-only reindex-candidate jobs into the
// tenant cluster.
package jobqueue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clusterkeeper/ilm/domain/classify"
	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/utils"
)

// jobsIndex is the tenant-cluster index jobs are persisted into.
const jobsIndex = "elastic-ilm-jobs"

// maxBatchCount caps a batch at 30 indices before it is emitted regardless
// of size.
const maxBatchCount = 30

// largeShardGB is the primary-size-per-shard floor above which an index is
// classified "large".
const largeShardGB = 100.0

// Shard-size classes.
const (
	ClassSmall = "small"
	ClassLarge = "large"
	ClassNone  = ""
)

// Candidate is one index considered for reindex batching.
type Candidate struct {
	Name          string
	Group         string
	PrimarySizeGB float64
	PrimaryShards int
	IsWriteIndex  bool
	AlreadyQueued bool // referenced by an open job
}

// Classify returns the shard-size class for a candidate, given the
// configured shard_minimum_size (GB) threshold.
func Classify(c Candidate, shardMinimumSizeGB float64) string {
	if c.PrimaryShards == 0 {
		return ClassNone
	}
	perShard := c.PrimarySizeGB / float64(c.PrimaryShards)
	switch {
	case perShard <= shardMinimumSizeGB:
		return ClassSmall
	case perShard >= largeShardGB:
		return ClassLarge
	default:
		return ClassNone
	}
}

// eligible reports whether a candidate may be batched at all: not a
// series's current write member, and not already referenced by an open job.
func eligible(c Candidate) bool {
	return !c.IsWriteIndex && !c.AlreadyQueued
}

// Batch is one group of same-class, same-group candidates ready to be
// emitted as a single job.
type Batch struct {
	Group       string
	Class       string
	Indices     []string
	TotalSizeGB float64
}

// BuildBatches groups eligible candidates by (group, class) and splits
// each group's accumulation into batches once the running size exceeds
// shardMinimumSizeGB or the count exceeds 30.
func BuildBatches(candidates []Candidate, shardMinimumSizeGB float64) []Batch {
	type key struct {
		group string
		class string
	}
	buckets := map[key][]Candidate{}
	var order []key

	for _, c := range candidates {
		if !eligible(c) {
			continue
		}
		class := Classify(c, shardMinimumSizeGB)
		if class == ClassNone {
			continue
		}
		k := key{group: c.Group, class: class}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], c)
	}

	var batches []Batch
	for _, k := range order {
		var current Batch
		current.Group = k.group
		current.Class = k.class
		for _, c := range buckets[k] {
			current.Indices = append(current.Indices, c.Name)
			current.TotalSizeGB += c.PrimarySizeGB
			if current.TotalSizeGB > shardMinimumSizeGB || len(current.Indices) > maxBatchCount {
				batches = append(batches, current)
				current = Batch{Group: k.group, Class: k.class}
			}
		}
		if len(current.Indices) > 0 {
			batches = append(batches, current)
		}
	}
	return batches
}

func reasonForClass(class string) string {
	if class == ClassLarge {
		return "large_indices"
	}
	return "small_indices"
}

// Engine emits batched reindex-candidate jobs for one tenant.
type Engine struct {
	Tenant             model.TenantConfig
	Gateway            gateway.Client
	Logger             *logging.Logger
	ShardMinimumSizeGB float64
	Now                func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Run gathers candidates from the cluster, batches them, and emits one
// create-only job document per batch.
func (e *Engine) Run(ctx context.Context) error {
	candidates, err := e.CollectCandidates(ctx)
	if err != nil {
		return err
	}
	batches := BuildBatches(candidates, e.ShardMinimumSizeGB)
	for _, batch := range batches {
		job := model.JobRecord{
			Indices:   batch.Indices,
			Operation: "reindex",
			Reason:    reasonForClass(batch.Class),
			Timestamp: e.now(),
		}
		id := uuid.NewString()
		if err := e.Gateway.CreateOnlyDocument(ctx, jobsIndex, id, job); err != nil {
			if e.Logger != nil {
				e.Logger.WithError(err).WithField("group", batch.Group).Warn("jobqueue: create-only job write failed")
			}
			continue
		}
		if e.Logger != nil {
			e.Logger.WithField("group", batch.Group).WithField("class", batch.Class).WithField("count", len(batch.Indices)).Info("jobqueue: emitted job")
		}
	}
	return nil
}

// CollectCandidates gathers every non-special index as a reindex
// candidate, marking those already referenced by an open job so they are
// skipped until an operator processes the existing job.
func (e *Engine) CollectCandidates(ctx context.Context) ([]Candidate, error) {
	records, err := e.Gateway.ListIndices(ctx)
	if err != nil {
		return nil, err
	}
	queued, err := e.Gateway.QueuedJobIndices(ctx, jobsIndex)
	if err != nil {
		if e.Logger != nil {
			e.Logger.WithError(err).Warn("jobqueue: could not read open jobs, assuming none")
		}
		queued = map[string]bool{}
	}
	writeSet, err := e.collectWriteIndices(ctx)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, rec := range records {
		if classify.IsSpecial(rec.Name) {
			continue
		}
		out = append(out, Candidate{
			Name:          rec.Name,
			Group:         classify.Group(rec.Name),
			PrimarySizeGB: utils.BytesToGB(rec.PrimarySizeBytes),
			PrimaryShards: rec.PrimaryShards,
			IsWriteIndex:  writeSet[rec.Name],
			AlreadyQueued: queued[rec.Name],
		})
	}
	return out, nil
}

// collectWriteIndices derives the set of current write indices from the
// cluster's aliases and data streams; cat/indices itself carries no
// write-member flag.
func (e *Engine) collectWriteIndices(ctx context.Context) (map[string]bool, error) {
	writeSet := map[string]bool{}
	aliases, err := e.Gateway.ListAliases(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range aliases {
		if a.IsWriteIndex {
			writeSet[a.Index] = true
		}
	}
	streams, err := e.Gateway.ListDataStreams(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range streams {
		for _, idx := range s.Indices {
			if classify.IsWriteIndexForDataStream(idx, s.Generation) {
				writeSet[idx] = true
			}
		}
	}
	return writeSet, nil
}
