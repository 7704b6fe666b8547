package config

import (
	"encoding/json"
	"fmt"

	"github.com/clusterkeeper/ilm/domain/model"
)

// rolloverJSON mirrors the on-disk rollover policy value shape, whose
// size_gb field is either an integer or the literal string "auto".
type rolloverJSON struct {
	SizeGB json.RawMessage `json:"size_gb"`
	Days   int             `json:"days"`
}

func decodeRolloverValue(raw json.RawMessage) (model.RolloverValue, error) {
	var rj rolloverJSON
	if err := json.Unmarshal(raw, &rj); err != nil {
		return model.RolloverValue{}, err
	}
	value := model.RolloverValue{Days: rj.Days}

	var asString string
	if err := json.Unmarshal(rj.SizeGB, &asString); err == nil {
		if asString != "auto" {
			return model.RolloverValue{}, fmt.Errorf("size_gb: unsupported string %q (only \"auto\" is valid)", asString)
		}
		value.Auto = true
		return value, nil
	}

	var asInt int
	if err := json.Unmarshal(rj.SizeGB, &asInt); err != nil {
		return model.RolloverValue{}, fmt.Errorf("size_gb: expected integer or \"auto\": %w", err)
	}
	value.SizeGB = asInt
	return value, nil
}

func decodeRetentionValue(raw json.RawMessage) (model.RetentionValue, error) {
	var days int
	if err := json.Unmarshal(raw, &days); err != nil {
		return model.RetentionValue{}, err
	}
	return model.RetentionValue{Days: days}, nil
}

func decodeAllocationValue(raw json.RawMessage) (model.AllocationValue, error) {
	var days int
	if err := json.Unmarshal(raw, &days); err != nil {
		return model.AllocationValue{}, err
	}
	return model.AllocationValue{Days: days}, nil
}

func decodeForceMergeValue(raw json.RawMessage) (model.ForceMergeValue, error) {
	var days int
	if err := json.Unmarshal(raw, &days); err != nil {
		return model.ForceMergeValue{}, err
	}
	return model.ForceMergeValue{Days: days}, nil
}

// backupJobJSON mirrors one named job within a repository's backup
// policy.
type backupJobJSON struct {
	RetentionDays  int  `json:"retention_days"`
	LimitAge       int  `json:"limit_age"`
	IncludeSpecial bool `json:"include_special"`
}

func decodeBackupRepo(raw json.RawMessage) (map[string]model.BackupJob, error) {
	var jobs map[string]backupJobJSON
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, err
	}
	out := make(map[string]model.BackupJob, len(jobs))
	for name, j := range jobs {
		out[name] = model.BackupJob{
			RetentionDays:  j.RetentionDays,
			LimitAge:       j.LimitAge,
			IncludeSpecial: j.IncludeSpecial,
		}
	}
	return out, nil
}

// ToModel decodes the open-ended per-bucket JSON of a tenant file into the
// tagged-variant shapes domain/model expects. Bucket keys are arbitrary,
// but each family's value shape is fixed, so a typed variant per family is
// decoded here instead of carrying json.RawMessage past this boundary.
func (t *TenantFile) ToModel() (model.TenantConfig, error) {
	tc := model.TenantConfig{
		Name:      t.ClientName,
		ClientNum: t.ClientNumber,
		Platform:  model.Platform(t.Platform),
		Connection: model.Connection{
			Host:            t.ESHost,
			Port:            t.ResolvedPort(),
			TLSEnabled:      t.SSLEnabled,
			CAFile:          t.ResolvedCAPath(),
			CheckHostname:   t.CheckHostname,
			CertificateMode: model.CertificateMode(t.SSLCertificate),
			Username:        t.ESUser,
			Password:        t.ResolvedPassword(),
		},
		Policy: model.PolicyRecord{
			Rollover:   make(map[string]model.RolloverValue, len(t.Policy.Rollover)),
			Retention:  make(map[string]model.RetentionValue, len(t.Policy.Retention)),
			Allocation: make(map[string]model.AllocationValue, len(t.Policy.Allocation)),
			ForceMerge: make(map[string]model.ForceMergeValue, len(t.Policy.ForceMerge)),
			Backup:     make(map[string]map[string]model.BackupJob, len(t.Policy.Backup)),
		},
	}

	for name, raw := range t.Policy.Rollover {
		v, err := decodeRolloverValue(raw)
		if err != nil {
			return model.TenantConfig{}, fmt.Errorf("tenant %s: policy.rollover.%s: %w", t.ClientName, name, err)
		}
		tc.Policy.Rollover[name] = v
	}
	for name, raw := range t.Policy.Retention {
		v, err := decodeRetentionValue(raw)
		if err != nil {
			return model.TenantConfig{}, fmt.Errorf("tenant %s: policy.retention.%s: %w", t.ClientName, name, err)
		}
		tc.Policy.Retention[name] = v
	}
	for name, raw := range t.Policy.Allocation {
		v, err := decodeAllocationValue(raw)
		if err != nil {
			return model.TenantConfig{}, fmt.Errorf("tenant %s: policy.allocation.%s: %w", t.ClientName, name, err)
		}
		tc.Policy.Allocation[name] = v
	}
	for name, raw := range t.Policy.ForceMerge {
		v, err := decodeForceMergeValue(raw)
		if err != nil {
			return model.TenantConfig{}, fmt.Errorf("tenant %s: policy.forcemerge.%s: %w", t.ClientName, name, err)
		}
		tc.Policy.ForceMerge[name] = v
	}
	for repo, raw := range t.Policy.Backup {
		jobs, err := decodeBackupRepo(raw)
		if err != nil {
			return model.TenantConfig{}, fmt.Errorf("tenant %s: policy.backup.%s: %w", t.ClientName, repo, err)
		}
		tc.Policy.Backup[repo] = jobs
	}

	return tc, nil
}

// LoadTenantConfigs loads and decodes every tenant file under folder into
// domain/model.TenantConfig, honoring limitToClient as LoadTenantFiles does.
func LoadTenantConfigs(folder, limitToClient string) ([]model.TenantConfig, error) {
	files, err := LoadTenantFiles(folder, limitToClient)
	if err != nil {
		return nil, err
	}
	out := make([]model.TenantConfig, 0, len(files))
	for _, f := range files {
		tc, err := f.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, nil
}
