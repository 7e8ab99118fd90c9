package models

import "time"

// Device types reported by agents.
const (
	DeviceMacDesktop = "mac_desktop"
	DeviceMacLaptop  = "mac_laptop"
	DeviceIPhone     = "iphone"
	DeviceIPad       = "ipad"
	DeviceOther      = "other"
)

// Device is a registered endpoint. LastSeen is the last-contact timestamp.
type Device struct {
	ID              int64                  `json:"id"`
	MachineID       string                 `json:"machine_id"`
	ClientID        string                 `json:"client_id,omitempty"`
	Hostname        string                 `json:"hostname,omitempty"`
	DeviceType      string                 `json:"device_type"`
	ModelIdentifier string                 `json:"model_identifier,omitempty"`
	SerialNumber    string                 `json:"serial_number,omitempty"`
	OSVersion       string                 `json:"os_version,omitempty"`
	AgentVersion    string                 `json:"agent_version,omitempty"`
	LastSeen        *time.Time             `json:"last_seen,omitempty"`
	RegisteredAt    time.Time              `json:"registered_at"`
	IsActive        bool                   `json:"is_active"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// DeviceRegister is the registration payload. Empty fields leave stored values alone on update.
type DeviceRegister struct {
	MachineID       string                 `json:"machine_id" binding:"required"`
	ClientID        string                 `json:"client_id"`
	Hostname        string                 `json:"hostname"`
	DeviceType      string                 `json:"device_type"`
	ModelIdentifier string                 `json:"model_identifier"`
	SerialNumber    string                 `json:"serial_number"`
	OSVersion       string                 `json:"os_version"`
	AgentVersion    string                 `json:"agent_version"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// DeviceFilter narrows device listings.
type DeviceFilter struct {
	ClientID   string
	ActiveOnly bool
}

// DeviceStatus is the derived dashboard label for a device. It is never stored.
type DeviceStatus string

const (
	StatusOffline  DeviceStatus = "offline"
	StatusHealthy  DeviceStatus = "healthy"
	StatusWarning  DeviceStatus = "warning"
	StatusCritical DeviceStatus = "critical"
)

// DeviceState is a device together with its latest snapshot and open alert
// count, all read at the same point in time.
type DeviceState struct {
	Device     Device
	Latest     *TelemetrySnapshot
	OpenAlerts int
}

// FleetState is one consistent read of the fleet for the dashboard.
type FleetState struct {
	Devices        []DeviceState
	OpenBySeverity map[Severity]int
}

// DeviceHealthSummary is one row of the dashboard overview.
type DeviceHealthSummary struct {
	MachineID  string       `json:"machine_id"`
	Hostname   string       `json:"hostname,omitempty"`
	Model      string       `json:"model,omitempty"`
	Serial     string       `json:"serial,omitempty"`
	Status     DeviceStatus `json:"status"`
	CPU        *float64     `json:"cpu"`
	Memory     *float64     `json:"memory"`
	Disk       *float64     `json:"disk"`
	Battery    *float64     `json:"battery"`
	Threat     int          `json:"threat"`
	LastSeen   *time.Time   `json:"last_seen"`
	OpenAlerts int          `json:"open_alerts"`
}

// DashboardOverview is the single-call fleet summary.
type DashboardOverview struct {
	TotalDevices   int                   `json:"total_devices"`
	ActiveDevices  int                   `json:"active_devices"`
	CriticalAlerts int                   `json:"critical_alerts"`
	WarningAlerts  int                   `json:"warning_alerts"`
	Devices        []DeviceHealthSummary `json:"devices"`
}
