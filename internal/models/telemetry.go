package models

import "time"

// TelemetrySnapshot is one immutable health reading for one device.
// Percentages are expected in [0,100] but are never clamped.
type TelemetrySnapshot struct {
	ID                int64                  `json:"id,omitempty"`
	MachineID         string                 `json:"machine_id"`
	CPUPercent        float64                `json:"cpu_percent"`
	MemoryPercent     float64                `json:"memory_percent"`
	DiskPercent       float64                `json:"disk_percent"`
	BatteryPercent    *float64               `json:"battery_percent,omitempty"` // nil on devices without a battery
	BatteryCycleCount *int                   `json:"battery_cycle_count,omitempty"`
	BatteryHealth     string                 `json:"battery_health,omitempty"`
	ThreatScore       int                    `json:"threat_score"`
	UptimeHours       *float64               `json:"uptime_hours,omitempty"`
	NetworkUpMbps     *float64               `json:"network_up_mbps,omitempty"`
	NetworkDownMbps   *float64               `json:"network_down_mbps,omitempty"`
	RawData           map[string]interface{} `json:"raw_data,omitempty"`
	EncryptedRaw      string                 `json:"-"`
	CapturedAt        time.Time              `json:"captured_at"`
}

// HealthSubmission is the wire form an agent posts.
type HealthSubmission struct {
	MachineID         string                 `json:"machine_id" binding:"required"`
	CPUPercent        float64                `json:"cpu_percent"`
	MemoryPercent     float64                `json:"memory_percent"`
	DiskPercent       float64                `json:"disk_percent"`
	BatteryPercent    *float64               `json:"battery_percent"`
	BatteryCycleCount *int                   `json:"battery_cycle_count"`
	BatteryHealth     string                 `json:"battery_health"`
	ThreatScore       int                    `json:"threat_score"`
	UptimeHours       *float64               `json:"uptime_hours"`
	NetworkUpMbps     *float64               `json:"network_up_mbps"`
	NetworkDownMbps   *float64               `json:"network_down_mbps"`
	RawData           map[string]interface{} `json:"raw_data"`
}

// Snapshot converts the submission, stamping it with capturedAt.
func (s HealthSubmission) Snapshot(capturedAt time.Time) TelemetrySnapshot {
	return TelemetrySnapshot{
		MachineID:         s.MachineID,
		CPUPercent:        s.CPUPercent,
		MemoryPercent:     s.MemoryPercent,
		DiskPercent:       s.DiskPercent,
		BatteryPercent:    s.BatteryPercent,
		BatteryCycleCount: s.BatteryCycleCount,
		BatteryHealth:     s.BatteryHealth,
		ThreatScore:       s.ThreatScore,
		UptimeHours:       s.UptimeHours,
		NetworkUpMbps:     s.NetworkUpMbps,
		NetworkDownMbps:   s.NetworkDownMbps,
		RawData:           s.RawData,
		CapturedAt:        capturedAt,
	}
}

// Submission is what a stored health submission produced.
type Submission struct {
	TelemetryID int64   `json:"id"`
	Alerts      []Alert `json:"alerts"`
}

// NetworkSnapshot is one reading from a network controller.
type NetworkSnapshot struct {
	ID           int64                  `json:"id,omitempty"`
	ControllerID string                 `json:"controller_id" binding:"required"`
	TotalClients *int                   `json:"total_clients,omitempty"`
	TotalDevices *int                   `json:"total_devices,omitempty"`
	WANStatus    string                 `json:"wan_status,omitempty"`
	WANLatencyMs *float64               `json:"wan_latency_ms,omitempty"`
	RawData      map[string]interface{} `json:"raw_data,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}
