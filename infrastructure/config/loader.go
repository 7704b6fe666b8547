// Package config loads the two configuration surfaces of the lifecycle
// manager: the global TOML settings file (one section per engine family)
// and the per-tenant JSON config files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/clusterkeeper/ilm/infrastructure/utils"
)

// FamilySettings is the per-family block of the global TOML settings file:
// one section per engine family (rollover, retention, allocation,
// forcemerge, backup), each carrying at least these keys.
type FamilySettings struct {
	Enabled                  bool   `toml:"enabled"`
	MinutesBetweenRun        int    `toml:"minutes_between_run"`
	HealthCheckLevel         string `toml:"health_check_level"`
	FallbackHealthCheckLevel string `toml:"fallback_health_check_level"`
	RetryAttempts            int    `toml:"retry_attempts"`
	RetryWaitInSeconds       int    `toml:"retry_wait_in_seconds"`
	MSTeams                  string `toml:"ms-teams"`
	Jira                     string `toml:"jira"`
}

// DeviceTrackingRule is one entry of the accounting section's
// device_tracking_inclusion/exclusion arrays: a value_count aggregation
// over tracking_field within index, optionally narrowed by search,
// attributed to an asset class.
type DeviceTrackingRule struct {
	Index         string                 `toml:"index"`
	TrackingField string                 `toml:"tracking_field"`
	Search        map[string]interface{} `toml:"search"`
	CountAs       string                 `toml:"count_as"` // computer, ip, or user
}

// AccountingSettings extends FamilySettings with the accounting-only keys.
type AccountingSettings struct {
	FamilySettings
	OutputFolder            string               `toml:"output_folder"`
	SSDCost                 float64              `toml:"ssd_cost"`
	SATACost                float64              `toml:"sata_cost"`
	OutputToES              bool                 `toml:"output_to_es"`
	SendCopyToClientName    string               `toml:"send_copy_to_client_name"`
	DeviceTrackingInclusion []DeviceTrackingRule `toml:"device_tracking_inclusion"`
	DeviceTrackingExclusion []DeviceTrackingRule `toml:"device_tracking_exclusion"`
}

// CoreSettings is the `[settings]` block of the global TOML file.
type CoreSettings struct {
	Debug              bool    `toml:"debug"`
	LimitToClient      string  `toml:"limit_to_client"`
	ClientJSONFolder   string  `toml:"client_json_folder"`
	SSLEnabled         bool    `toml:"ssl_enabled"`
	CheckHostname      bool    `toml:"check_hostname"`
	SSLCertificate     string  `toml:"ssl_certificate"`
	ShardMinimumSizeGB float64 `toml:"shard_minimum_size_gb"`
}

// GlobalSettings is the fully parsed global TOML settings file.
type GlobalSettings struct {
	Settings   CoreSettings       `toml:"settings"`
	Rollover   FamilySettings     `toml:"rollover"`
	Retention  FamilySettings     `toml:"retention"`
	Allocation FamilySettings     `toml:"allocation"`
	ForceMerge FamilySettings     `toml:"forcemerge"`
	Backup     FamilySettings     `toml:"backup"`
	Accounting AccountingSettings `toml:"accounting"`
	// The reindex-candidate scan needs the same enabled/cadence/retry/
	// notification knobs every other family gets, so it is schedulable the
	// same way.
	JobQueue FamilySettings `toml:"jobqueue"`
}

// LoadGlobalSettings parses the global TOML settings file at path.
func LoadGlobalSettings(path string) (*GlobalSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read global settings: %w", err)
	}

	var gs GlobalSettings
	if err := toml.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("parse global settings: %w", err)
	}
	return &gs, nil
}

// FamilyByName returns the settings block for a named engine family.
func (gs *GlobalSettings) FamilyByName(name string) (FamilySettings, bool) {
	switch name {
	case "rollover":
		return gs.Rollover, true
	case "retention":
		return gs.Retention, true
	case "allocation":
		return gs.Allocation, true
	case "forcemerge":
		return gs.ForceMerge, true
	case "backup":
		return gs.Backup, true
	case "accounting":
		return gs.Accounting.FamilySettings, true
	case "jobqueue":
		return gs.JobQueue, true
	default:
		return FamilySettings{}, false
	}
}

// CertificateMode enumerates ssl_certificate verification modes.
type CertificateMode string

const (
	CertRequired CertificateMode = "required"
	CertOptional CertificateMode = "optional"
	CertNone     CertificateMode = "none"
)

// Platform enumerates backend flavors.
type Platform string

const (
	PlatformElastic    Platform = "elastic"
	PlatformOpenSearch Platform = "opensearch"
)

// PasswordBlock mirrors the tenant file's `password` object.
type PasswordBlock struct {
	AdminPassword string `json:"admin_password"`
}

// PolicyBlock holds the five family → (policy-name → raw JSON) maps.
// Raw json.RawMessage is kept per policy name because each family's
// PolicyValue shape differs (see domain/model); callers decode the
// family-appropriate type lazily.
type PolicyBlock struct {
	Rollover   map[string]json.RawMessage `json:"rollover"`
	Retention  map[string]json.RawMessage `json:"retention"`
	Allocation map[string]json.RawMessage `json:"allocation"`
	ForceMerge map[string]json.RawMessage `json:"forcemerge"`
	Backup     map[string]json.RawMessage `json:"backup"`
}

// TenantFile is the on-disk shape of a tenant config JSON file.
type TenantFile struct {
	ClientName         string          `json:"client_name"`
	ClientNumber       int             `json:"client_number"`
	Platform           Platform        `json:"platform"`
	SSLEnabled         bool            `json:"ssl_enabled"`
	CheckHostname      bool            `json:"check_hostname"`
	SSLCertificate     CertificateMode `json:"ssl_certificate"`
	CAFile             string          `json:"ca_file"`
	ClientFileLocation string          `json:"client_file_location"`
	ESHost             string          `json:"es_host"`
	ESPort             int             `json:"es_port"`
	ESUser             string          `json:"es_user"`
	ESPassword         string          `json:"es_password"`
	Password           PasswordBlock   `json:"password"`
	Policy             PolicyBlock     `json:"policy"`
}

// ResolvedPort returns es_port, defaulting to 9200 when client_number is
// 0, else "{client_number}03".
func (t *TenantFile) ResolvedPort() int {
	if t.ESPort != 0 {
		return t.ESPort
	}
	if t.ClientNumber == 0 {
		return 9200
	}
	parsed, err := strconv.Atoi(fmt.Sprintf("%d03", t.ClientNumber))
	if err != nil {
		return 9200
	}
	return parsed
}

// ResolvedCAPath returns the CA bundle path, preferring ca_file and
// otherwise expecting client_file_location/ca/ca.crt.
func (t *TenantFile) ResolvedCAPath() string {
	if t.CAFile != "" {
		return t.CAFile
	}
	if t.ClientFileLocation == "" {
		return ""
	}
	return filepath.Join(t.ClientFileLocation, "ca", "ca.crt")
}

// ResolvedPassword returns the admin password, preferring the nested
// password.admin_password field over the flat es_password field.
func (t *TenantFile) ResolvedPassword() string {
	return utils.Coalesce(t.Password.AdminPassword, t.ESPassword)
}

// LoadTenantFile parses a single tenant JSON config file.
func LoadTenantFile(path string) (*TenantFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant file %s: %w", path, err)
	}
	var tf TenantFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse tenant file %s: %w", path, err)
	}
	if tf.ClientName == "" {
		return nil, fmt.Errorf("tenant file %s: client_name is required", path)
	}
	return &tf, nil
}

// LoadTenantFiles loads every `*.json` tenant config under folder,
// honoring limitToClient when non-empty (keeps only the matching file).
func LoadTenantFiles(folder, limitToClient string) ([]*TenantFile, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read client folder %s: %w", folder, err)
	}

	var tenants []*TenantFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		tf, err := LoadTenantFile(filepath.Join(folder, entry.Name()))
		if err != nil {
			return nil, err
		}
		if limitToClient != "" && tf.ClientName != limitToClient {
			continue
		}
		tenants = append(tenants, tf)
	}
	return tenants, nil
}
