// Package model holds the data shapes shared by every lifecycle engine:
// tenant configuration, the per-family policy value variants, and the
// observable index/alias/snapshot/accounting records pulled from a cluster.
package model

import "time"

// Platform enumerates the backend flavors a tenant cluster can be.
type Platform string

const (
	PlatformElastic    Platform = "elastic"
	PlatformOpenSearch Platform = "opensearch"
)

// CertificateMode enumerates TLS certificate verification modes.
type CertificateMode string

const (
	CertRequired CertificateMode = "required"
	CertOptional CertificateMode = "optional"
	CertNone     CertificateMode = "none"
)

// ReservedBucket is the fallback policy-bucket name every sub-record must carry.
const ReservedBucket = "global"

// Connection describes how to reach a tenant's cluster.
type Connection struct {
	Host             string
	Port             int
	TLSEnabled       bool
	CAFile           string
	CheckHostname    bool
	CertificateMode  CertificateMode
	Username         string
	Password         string
}

// RolloverValue is the rollover policy shape: a size threshold (explicit
// GB or "auto", meaning primary_shard_count*50GB) and a day threshold.
type RolloverValue struct {
	SizeGB int  // ignored when Auto is true
	Auto   bool
	Days   int
}

// RetentionValue is the retention policy shape: age in days after which a
// non-special index (or its owning data stream) is deleted.
type RetentionValue struct {
	Days int
}

// AllocationValue is the allocation policy shape: age in days after which
// an index is migrated from the hot tier to the warm tier.
type AllocationValue struct {
	Days int
}

// ForceMergeValue is the force-merge policy shape: age in days after which
// a read-only index becomes eligible for a single-segment force-merge.
type ForceMergeValue struct {
	Days int
}

// BackupJob is one named job within a repository's backup policy.
type BackupJob struct {
	RetentionDays  int
	LimitAge       int // 0 means unset
	IncludeSpecial bool
}

// PolicyRecord is the full per-tenant `policy` block: one sub-record per
// family, keyed by the reserved or custom bucket name.
type PolicyRecord struct {
	Rollover   map[string]RolloverValue
	Retention  map[string]RetentionValue
	Allocation map[string]AllocationValue
	ForceMerge map[string]ForceMergeValue
	// Backup is repository -> job name -> job value.
	Backup map[string]map[string]BackupJob
}

// TenantConfig is the immutable-per-cycle configuration for one tenant.
type TenantConfig struct {
	Name       string
	ClientNum  int
	Connection Connection
	Platform   Platform
	Policy     PolicyRecord
}

// IndexRecord is the observable state of one physical index, as reported
// by the cluster's cat/indices view, plus derived classifier fields.
type IndexRecord struct {
	Name              string
	UUID              string
	Health            string
	PrimaryShards     int
	ReplicaShards     int
	DocsCount         int64
	StoreSizeBytes    int64
	PrimarySizeBytes  int64
	CreationDate      time.Time // parsed from the cluster's ISO-8601 UTC string

	// Derived by domain/classify.
	Group       string
	IsWriteIndex bool
	IsSpecial    bool
}

// AliasMember is one index's membership in a classic alias.
type AliasMember struct {
	Alias        string
	Index        string
	IsWriteIndex bool
}

// DataStream is a data stream's generation and its backing indices, in
// creation order (index i has ordinal i+1).
type DataStream struct {
	Name       string
	Generation int
	Indices    []string
}

// AccountingRecord is one non-special index's daily accounting line.
type AccountingRecord struct {
	Name               string    `json:"name"`
	Client             string    `json:"client"`
	SizeGB             float64   `json:"size_gb"`
	Logs               int64     `json:"logs"`
	Disk               string    `json:"disk"` // "ssd" or "sata"
	Cost               float64   `json:"cost"`
	IndexCreationDate  string    `json:"index_creation_date"`
	Timestamp          time.Time `json:"timestamp"`
	Group              string    `json:"group"`
	Policy             string    `json:"policy"`
	PolicyDays         int       `json:"policy_days"`
}

// DeviceCountRecord is the per-day device-tracking summary for a tenant.
type DeviceCountRecord struct {
	Client      string    `json:"client"`
	DeviceCount int       `json:"device_count"`
	Timestamp   time.Time `json:"@timestamp"`
}

// SnapshotInfo is one snapshot as reported by a repository listing.
type SnapshotInfo struct {
	Repository string
	FullName   string
	ShortName  string // FullName minus the trailing _YYYY-MM-DD_HH:MM[:SS]
	AgeDays    int
}

// JobRecord is a reindex-candidate job persisted to the elastic-ilm-jobs index.
type JobRecord struct {
	Indices   []string  `json:"indices"`
	Operation string    `json:"operation"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"@timestamp"`
}

// Tier names used by allocation and accounting.
const (
	TierHot  = "hot"
	TierWarm = "warm"
)

// Disk class names used by accounting.
const (
	DiskSSD  = "ssd"
	DiskSATA = "sata"
)
