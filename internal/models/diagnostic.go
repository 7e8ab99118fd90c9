package models

import "time"

// DiagnosticUpload mirrors the JSON produced by the deep-diagnostic agent.
type DiagnosticUpload struct {
	Version             string                     `json:"version"`
	Generated           string                     `json:"generated"`
	Mode                string                     `json:"mode"`
	Serial              string                     `json:"serial"`
	Hostname            string                     `json:"hostname"`
	ClientID            string                     `json:"client_id"`
	Hardware            DiagnosticHardware         `json:"hardware"`
	MacOS               DiagnosticMacOS            `json:"macos"`
	Security            DiagnosticSecurity         `json:"security"`
	Battery             DiagnosticBattery          `json:"battery"`
	Storage             DiagnosticStorage          `json:"storage"`
	OCLP                DiagnosticOCLP             `json:"oclp"`
	Diagnostics         DiagnosticCounters         `json:"diagnostics"`
	Recommendations     []DiagnosticRecommendation `json:"recommendations"`
	RecommendationCount int                        `json:"recommendation_count"`
	RuntimeSeconds      int                        `json:"runtime_seconds"`
}

type DiagnosticHardware struct {
	Serial         string `json:"serial"`
	ChipType       string `json:"chip_type"`
	Model          string `json:"model"`
	ModelID        string `json:"model_id"`
	HWUUID         string `json:"hw_uuid"`
	RAMGB          int    `json:"ram_gb"`
	RAMUpgradeable string `json:"ram_upgradeable"`
	CPU            string `json:"cpu"`
	CoresPhysical  int    `json:"cores_physical"`
	CoresLogical   int    `json:"cores_logical"`
}

type DiagnosticMacOS struct {
	Version       string `json:"version"`
	Build         string `json:"build"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// DiagnosticSecurity flags arrive as 0/1.
type DiagnosticSecurity struct {
	SIPEnabled      int    `json:"sip_enabled"`
	FileVaultOn     int    `json:"filevault_on"`
	FirewallOn      int    `json:"firewall_on"`
	GatekeeperOn    int    `json:"gatekeeper_on"`
	XProtectVersion string `json:"xprotect_version"`
	PasswordManager string `json:"password_manager"`
	AVEDR           string `json:"av_edr"`
}

// DiagnosticBattery values are strings and may be "N/A" or "null".
type DiagnosticBattery struct {
	HealthPct         string `json:"health_pct"`
	Cycles            string `json:"cycles"`
	DesignCapacityMAh string `json:"design_capacity_mah"`
	MaxCapacityMAh    string `json:"max_capacity_mah"`
	Condition         string `json:"condition"`
}

type DiagnosticStorage struct {
	BootDiskUsedPct int `json:"boot_disk_used_pct"`
	BootDiskFreeGB  int `json:"boot_disk_free_gb"`
}

type DiagnosticOCLP struct {
	Detected        bool   `json:"detected"`
	Version         string `json:"version"`
	RootPatched     bool   `json:"root_patched"`
	ThirdPartyKexts int    `json:"third_party_kexts"`
}

type DiagnosticCounters struct {
	KernelPanics   int `json:"kernel_panics"`
	TotalProcesses int `json:"total_processes"`
}

// DiagnosticRecommendation is produced by the agent; it is stored, never recomputed.
type DiagnosticRecommendation struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Evidence string `json:"evidence"`
	Product  string `json:"product"`
	Price    string `json:"price"`
}

// Diagnostic is a stored diagnostic run with its indexed summary columns.
type Diagnostic struct {
	ID                int64  `json:"id"`
	SerialNumber      string `json:"serial_number"`
	Hostname          string `json:"hostname,omitempty"`
	ClientID          string `json:"client_id,omitempty"`
	DiagnosticVersion string `json:"diagnostic_version,omitempty"`
	Mode              string `json:"mode,omitempty"`

	ChipType        string `json:"chip_type,omitempty"`
	ModelName       string `json:"model_name,omitempty"`
	ModelIdentifier string `json:"model_identifier,omitempty"`
	RAMGB           int    `json:"ram_gb"`
	RAMUpgradeable  string `json:"ram_upgradeable,omitempty"`
	CPUName         string `json:"cpu_name,omitempty"`
	CoresPhysical   int    `json:"cores_physical"`
	CoresLogical    int    `json:"cores_logical"`

	MacOSVersion  string `json:"macos_version,omitempty"`
	MacOSBuild    string `json:"macos_build,omitempty"`
	UptimeSeconds int    `json:"uptime_seconds"`

	SIPEnabled   bool `json:"sip_enabled"`
	FileVaultOn  bool `json:"filevault_on"`
	FirewallOn   bool `json:"firewall_on"`
	GatekeeperOn bool `json:"gatekeeper_on"`

	XProtectVersion string `json:"xprotect_version,omitempty"`
	PasswordManager string `json:"password_manager,omitempty"`
	AVEDR           string `json:"av_edr,omitempty"`

	BatteryHealthPct      *float64 `json:"battery_health_pct"`
	BatteryCycles         *int     `json:"battery_cycles"`
	BatteryDesignCapacity *int     `json:"battery_design_capacity"`
	BatteryMaxCapacity    *int     `json:"battery_max_capacity"`
	BatteryCondition      string   `json:"battery_condition,omitempty"`

	DiskUsedPct int `json:"disk_used_pct"`
	DiskFreeGB  int `json:"disk_free_gb"`

	OCLPDetected    bool   `json:"oclp_detected"`
	OCLPVersion     string `json:"oclp_version,omitempty"`
	OCLPRootPatched bool   `json:"oclp_root_patched"`
	ThirdPartyKexts int    `json:"third_party_kexts"`
	KernelPanics    int    `json:"kernel_panics"`
	Processes       int    `json:"total_processes"`

	Recommendations     []DiagnosticRecommendation `json:"recommendations,omitempty"`
	RecommendationCount int                        `json:"recommendation_count"`
	RuntimeSeconds      int                        `json:"runtime_seconds"`
	Raw                 *DiagnosticUpload          `json:"-"`

	CapturedAt time.Time `json:"captured_at"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DiagnosticFilter narrows diagnostic listings.
type DiagnosticFilter struct {
	SerialNumber string
	ClientID     string
	Limit        int
}

// FieldDelta is the change of one numeric field between two diagnostics.
// Delta is nil when either side is missing.
type FieldDelta struct {
	Field  string   `json:"field"`
	Before *float64 `json:"before"`
	After  *float64 `json:"after"`
	Delta  *float64 `json:"delta"`
}

// FlagChange is a before/after pair for one security flag.
type FlagChange struct {
	Before bool `json:"before"`
	After  bool `json:"after"`
}

// DiagnosticRef identifies one side of a comparison.
type DiagnosticRef struct {
	ID         int64     `json:"id"`
	Serial     string    `json:"serial"`
	CapturedAt time.Time `json:"captured_at"`
}

// DiagnosticComparison is the result of comparing two diagnostics.
type DiagnosticComparison struct {
	First           DiagnosticRef         `json:"diagnostic_1"`
	Second          DiagnosticRef         `json:"diagnostic_2"`
	SameDevice      bool                  `json:"same_device"`
	Deltas          []FieldDelta          `json:"deltas"`
	SecurityChanges map[string]FlagChange `json:"security_changes"`
}
