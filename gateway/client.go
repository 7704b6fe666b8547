// Package gateway is the cluster gateway: one typed operation per REST
// endpoint the core issues against an Elasticsearch- or OpenSearch-compatible
// cluster. It owns TLS, auth, and retry-with-backoff;
// callers never construct cluster HTTP requests directly.
package gateway

import (
	"context"
	"time"

	"github.com/clusterkeeper/ilm/domain/model"
)

// Client is the capability every lifecycle engine consumes. The concrete
// implementation is RESTClient; engines depend on this interface so tests
// can substitute a fake cluster.
type Client interface {
	ListIndices(ctx context.Context) ([]model.IndexRecord, error)
	GetIndexStats(ctx context.Context, name string) (model.IndexRecord, error)
	ListAliases(ctx context.Context) ([]model.AliasMember, error)
	ListDataStreams(ctx context.Context) ([]model.DataStream, error)
	GetTierSetting(ctx context.Context, index string) (tierPreference string, boxType string, err error)
	PutTierSetting(ctx context.Context, index string, useTierPreference bool, tier string) error

	CreateIndex(ctx context.Context, name string) error
	UpdateAliases(ctx context.Context, actions []AliasAction) error
	Rollover(ctx context.Context, alias string) (RolloverResult, error)
	DeleteIndices(ctx context.Context, names []string) error
	DeleteDataStream(ctx context.Context, name string) error
	ForceMerge(ctx context.Context, index string) error

	SnapshotList(ctx context.Context, repo string) ([]model.SnapshotInfo, error)
	SnapshotCreate(ctx context.Context, repo, name string, body map[string]interface{}) error
	SnapshotDelete(ctx context.Context, repo, name string) error
	SnapshotRestore(ctx context.Context, repo, snap string, body map[string]interface{}) error

	ClusterHealth(ctx context.Context) (string, error)
	ClusterStats(ctx context.Context) (ClusterStats, error)
	NodeStatsJVM(ctx context.Context) (NodeJVMStats, error)

	NewestTimestamp(ctx context.Context, index, field string) (time.Time, bool, error)
	Aggregate(ctx context.Context, spec AggregateSpec) ([]AggregateBucket, error)
	DeviceValueCount(ctx context.Context, spec DeviceAggregateSpec) (map[string]int64, error)

	BulkIndex(ctx context.Context, index string, docs []map[string]interface{}) error
	CreateOnlyDocument(ctx context.Context, index, id string, doc interface{}) error
	QueuedJobIndices(ctx context.Context, jobsIndex string) (map[string]bool, error)
}

// HealthRank orders cluster health colors for gate comparisons.
func HealthRank(color string) int {
	switch color {
	case "green":
		return 2
	case "yellow":
		return 1
	case "red":
		return 0
	default:
		return -1
	}
}

// HealthAtLeast reports whether observed meets or exceeds required.
func HealthAtLeast(observed, required string) bool {
	return HealthRank(observed) >= HealthRank(required)
}
