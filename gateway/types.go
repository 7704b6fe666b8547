package gateway

// AliasAction is one step of an alias-update batch call, e.g. flipping the
// write flag atomically between a predecessor and successor index.
type AliasAction struct {
	Add    *AliasActionSpec `json:"add,omitempty"`
	Remove *AliasActionSpec `json:"remove,omitempty"`
}

// AliasActionSpec is the body of one add/remove alias action.
type AliasActionSpec struct {
	Index        string `json:"index"`
	Alias        string `json:"alias"`
	IsWriteIndex *bool  `json:"is_write_index,omitempty"`
}

// RolloverResult is the gateway's typed view of a rollover response.
type RolloverResult struct {
	OldIndex   string
	NewIndex   string
	RolledOver bool
}

// ClusterStats is the subset of cluster/stats the accounting engine needs.
type ClusterStats struct {
	TotalStoreSizeBytes int64
}

// NodeJVMStats summarizes node_stats/jvm across the cluster.
type NodeJVMStats struct {
	LowestLiveThreadCount int
}

// AggregateSpec describes one limit_age style aggregation:
// max(@timestamp) per concrete index matching root*.
type AggregateSpec struct {
	IndexPattern   string
	TimestampField string
}

// AggregateBucket is one per-index bucket of an AggregateSpec result.
type AggregateBucket struct {
	Index              string
	MaxTimestampMillis int64
}

// DeviceAggregateSpec describes a value_count aggregation over a tracking
// field, used by the accounting engine's device-tracking pass.
type DeviceAggregateSpec struct {
	Index         string
	TrackingField string
	Search        map[string]interface{}
}
