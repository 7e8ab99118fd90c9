package services

import (
	"context"
	"time"

	"health-service/internal/db"
	"health-service/internal/health"
	"health-service/internal/metrics"
	"health-service/internal/models"
)

// Dashboard builds fleet overviews from one consistent read of the store.
type Dashboard struct {
	store      db.Store
	thresholds health.Thresholds
	staleAfter time.Duration
	now        func() time.Time
}

func NewDashboard(store db.Store, thresholds health.Thresholds, staleAfter time.Duration) *Dashboard {
	if staleAfter <= 0 {
		staleAfter = health.DefaultStaleAfter
	}
	return &Dashboard{
		store:      store,
		thresholds: thresholds,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Overview summarizes active devices, optionally for one client.
func (d *Dashboard) Overview(ctx context.Context, clientID string) (models.DashboardOverview, error) {
	state, err := d.store.FleetState(ctx, models.DeviceFilter{ClientID: clientID, ActiveOnly: true})
	if err != nil {
		return models.DashboardOverview{}, err
	}

	now := d.now()
	byStatus := map[models.DeviceStatus]int{}
	out := models.DashboardOverview{
		TotalDevices:   len(state.Devices),
		CriticalAlerts: state.OpenBySeverity[models.SeverityCritical],
		WarningAlerts:  state.OpenBySeverity[models.SeverityWarning],
		Devices:        make([]models.DeviceHealthSummary, 0, len(state.Devices)),
	}
	for _, ds := range state.Devices {
		status := health.DeriveStatus(ds.Device.LastSeen, now, d.staleAfter, ds.Latest, d.thresholds)
		byStatus[status]++
		if status != models.StatusOffline {
			out.ActiveDevices++
		}
		out.Devices = append(out.Devices, summarize(ds, status))
	}

	for _, s := range []models.DeviceStatus{models.StatusOffline, models.StatusHealthy, models.StatusWarning, models.StatusCritical} {
		metrics.FleetStatus.WithLabelValues(string(s)).Set(float64(byStatus[s]))
	}
	return out, nil
}

func summarize(ds models.DeviceState, status models.DeviceStatus) models.DeviceHealthSummary {
	sum := models.DeviceHealthSummary{
		MachineID:  ds.Device.MachineID,
		Hostname:   ds.Device.Hostname,
		Model:      ds.Device.ModelIdentifier,
		Serial:     ds.Device.SerialNumber,
		Status:     status,
		LastSeen:   ds.Device.LastSeen,
		OpenAlerts: ds.OpenAlerts,
	}
	if s := ds.Latest; s != nil {
		cpu, mem, disk := s.CPUPercent, s.MemoryPercent, s.DiskPercent
		sum.CPU, sum.Memory, sum.Disk = &cpu, &mem, &disk
		sum.Battery = s.BatteryPercent
		sum.Threat = s.ThreatScore
	}
	return sum
}
