// Package accounting implements the Accounting engine: a once-per-UTC-day,
// idempotent per-tenant storage inventory snapshot with tier-based cost
// attribution, a drift check against the cluster's own reported total size,
// and an optional device-tracking pass.
package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clusterkeeper/ilm/domain/classify"
	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/domain/policy"
	"github.com/clusterkeeper/ilm/gateway"
	ilmerrors "github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
	"github.com/clusterkeeper/ilm/infrastructure/metrics"
	"github.com/clusterkeeper/ilm/infrastructure/utils"
	"github.com/clusterkeeper/ilm/notifier"
)

// driftToleranceGB is the maximum acceptable gap between the cluster's own
// reported total size and the sum this snapshot computed. Indices grow
// while the walk runs, so small drift is expected.
const driftToleranceGB = 20.0

const bytesPerGB = 1 << 30

// DeviceTrackingRule is one value_count aggregation to run over a tracking
// field, attributed to an asset class.
type DeviceTrackingRule struct {
	Index         string
	TrackingField string
	Search        map[string]interface{}
	CountAs       string // computer, ip, or user
}

// Settings are the accounting-only knobs of the global TOML file's
// [accounting] section, decoupled from infrastructure/config so this
// package depends only on plain values.
type Settings struct {
	OutputFolder         string
	SSDCost              float64
	SATACost             float64
	OutputToES           bool
	SendCopyToClientName string
	DeviceInclusion      []DeviceTrackingRule
	DeviceExclusion      []DeviceTrackingRule
}

// Engine runs the accounting snapshot cycle for one tenant.
type Engine struct {
	Tenant   model.TenantConfig
	Gateway  gateway.Client
	// Aggregator is the optional gateway for a separate tenant that
	// receives a mirrored copy of this tenant's accounting records
	// (SendCopyToClientName). Nil when not mirroring.
	Aggregator   gateway.Client
	Settings     Settings
	Notifier     notifier.Sink
	Logger       *logging.Logger
	Metrics      *metrics.Metrics // nil disables the drift gauge
	Now          func() time.Time
	RequiredGate string
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

func (e *Engine) snapshotPath(day time.Time) string {
	return filepath.Join(e.Settings.OutputFolder, fmt.Sprintf("%s_accounting-%s.json", e.Tenant.Name, utils.DayStamp(day)))
}

func (e *Engine) devicePath(day time.Time) string {
	return filepath.Join(e.Settings.OutputFolder, fmt.Sprintf("%s_accounting-device-%s.json", e.Tenant.Name, utils.DayStamp(day)))
}

// BuildRecord computes one index's accounting record, independent of
// cluster I/O.
func BuildRecord(client string, rec model.IndexRecord, allocationBucket string, allocationDays int, ssdCost, sataCost float64, now time.Time) model.AccountingRecord {
	sizeGB := utils.RoundTo(utils.BytesToGB(rec.StoreSizeBytes), 8)
	ageDays := utils.WholeDays(now, rec.CreationDate)
	disk := model.DiskSSD
	cost := sizeGB * ssdCost
	if ageDays >= allocationDays {
		disk = model.DiskSATA
		cost = sizeGB * sataCost
	}
	return model.AccountingRecord{
		Name:              rec.Name,
		Client:            client,
		SizeGB:            sizeGB,
		Logs:              rec.DocsCount,
		Disk:              disk,
		Cost:              utils.RoundTo(cost, 8),
		IndexCreationDate: utils.DateStamp(rec.CreationDate),
		Timestamp:         now,
		Group:             classify.Group(rec.Name),
		Policy:            allocationBucket,
		PolicyDays:        allocationDays,
	}
}

// Run executes one full accounting cycle for the tenant. If today's
// snapshot file already exists, it returns immediately.
func (e *Engine) Run(ctx context.Context) error {
	day := e.now()
	path := e.snapshotPath(day)

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	health, err := e.Gateway.ClusterHealth(ctx)
	if err != nil {
		return err
	}
	if !gateway.HealthAtLeast(health, e.requiredGate()) {
		return ilmerrors.HealthGate(e.Tenant.Name, e.requiredGate(), health)
	}

	records, err := e.Gateway.ListIndices(ctx)
	if err != nil {
		return err
	}

	var (
		accountingRecords []model.AccountingRecord
		accountingSumGB   float64
		specialSumGB      float64
	)
	for _, rec := range records {
		if classify.IsSpecial(rec.Name) {
			specialSumGB += utils.BytesToGB(rec.StoreSizeBytes)
			continue
		}
		bucket, value := policy.ResolveValue(e.Tenant.Policy.Allocation, rec.Name, model.AllocationValue{Days: 30})
		ar := BuildRecord(e.Tenant.Name, rec, bucket, value.Days, e.Settings.SSDCost, e.Settings.SATACost, day)
		accountingRecords = append(accountingRecords, ar)
		accountingSumGB += ar.SizeGB
	}

	if err := e.writeSnapshot(path, accountingRecords); err != nil {
		return err
	}

	if err := e.verifyDrift(ctx, accountingSumGB, specialSumGB); err != nil {
		if e.Notifier != nil {
			e.Notifier.Notify(ctx, notifier.Event{
				Tenant:  e.Tenant.Name,
				Family:  "accounting",
				Subject: "drift",
				Message: err.Error(),
				Level:   notifier.LevelWarn,
			})
		}
	}

	if e.Settings.OutputToES {
		if err := e.mirrorToES(ctx, accountingRecords); err != nil {
			if e.Logger != nil {
				e.Logger.WithError(err).Warn("accounting: ES mirror failed")
			}
		}
	}

	if len(e.Settings.DeviceInclusion) > 0 {
		if err := e.runDeviceTracking(ctx, day); err != nil && e.Logger != nil {
			e.Logger.WithError(err).Warn("accounting: device tracking pass failed")
		}
	}

	return nil
}

func (e *Engine) writeSnapshot(path string, records []model.AccountingRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// verifyDrift compares the cluster's own reported total size against what
// this snapshot computed.
func (e *Engine) verifyDrift(ctx context.Context, accountingSumGB, specialSumGB float64) error {
	stats, err := e.Gateway.ClusterStats(ctx)
	if err != nil {
		return err
	}
	clusterTotalGB := utils.BytesToGB(stats.TotalStoreSizeBytes)
	drift := clusterTotalGB - (accountingSumGB + specialSumGB)
	if drift < 0 {
		drift = -drift
	}
	if e.Metrics != nil {
		e.Metrics.SetAccountingDrift(e.Tenant.Name, drift)
	}
	if drift >= driftToleranceGB {
		return ilmerrors.Verification(e.Tenant.Name, drift)
	}
	return nil
}

func (e *Engine) mirrorToES(ctx context.Context, records []model.AccountingRecord) error {
	docs, err := toDocs(records)
	if err != nil {
		return err
	}
	if err := e.Gateway.BulkIndex(ctx, "accounting", docs); err != nil {
		return err
	}
	if e.Settings.SendCopyToClientName != "" && e.Aggregator != nil {
		if err := e.Aggregator.BulkIndex(ctx, "accounting", docs); err != nil {
			return err
		}
	}
	return nil
}

func toDocs(records []model.AccountingRecord) ([]map[string]interface{}, error) {
	docs := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// runDeviceTracking accumulates the distinct asset set from every
// inclusion rule, removes matches found by exclusion rules, and writes a
// single per-day device-count record.
func (e *Engine) runDeviceTracking(ctx context.Context, day time.Time) error {
	included, err := e.collectAssetSet(ctx, e.Settings.DeviceInclusion)
	if err != nil {
		return err
	}
	excluded, err := e.collectAssetSet(ctx, e.Settings.DeviceExclusion)
	if err != nil {
		return err
	}
	for k := range excluded {
		delete(included, k)
	}

	record := model.DeviceCountRecord{
		Client:      e.Tenant.Name,
		DeviceCount: len(included),
		Timestamp:   day,
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(e.devicePath(day), b, 0o644)
}

func (e *Engine) collectAssetSet(ctx context.Context, rules []DeviceTrackingRule) (map[string]bool, error) {
	set := map[string]bool{}
	for _, rule := range rules {
		counts, err := e.Gateway.DeviceValueCount(ctx, gateway.DeviceAggregateSpec{
			Index:         rule.Index,
			TrackingField: rule.TrackingField,
			Search:        rule.Search,
		})
		if err != nil {
			return nil, err
		}
		for key := range counts {
			set[key] = true
		}
	}
	return set, nil
}
