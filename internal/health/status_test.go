package health

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"health-service/internal/models"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-2 * time.Minute)
	stale := now.Add(-16 * time.Minute)
	edge := now.Add(-DefaultStaleAfter)

	snap := func(cpu, disk float64, threat int) *models.TelemetrySnapshot {
		return &models.TelemetrySnapshot{MachineID: "m", CPUPercent: cpu, DiskPercent: disk, ThreatScore: threat}
	}

	tests := []struct {
		name        string
		lastContact *time.Time
		latest      *models.TelemetrySnapshot
		want        models.DeviceStatus
	}{
		{"never seen", nil, snap(10, 10, 0), models.StatusOffline},
		{"stale with healthy metrics", &stale, snap(10, 10, 0), models.StatusOffline},
		{"stale with critical metrics", &stale, snap(99, 99, 10), models.StatusOffline},
		{"exactly at cutoff is fresh", &edge, snap(10, 10, 0), models.StatusHealthy},
		{"fresh without telemetry", &fresh, nil, models.StatusHealthy},
		{"fresh healthy", &fresh, snap(10, 10, 0), models.StatusHealthy},
		{"cpu critical", &fresh, snap(90, 10, 0), models.StatusCritical},
		{"disk critical", &fresh, snap(10, 90, 0), models.StatusCritical},
		{"threat critical", &fresh, snap(10, 10, 7), models.StatusCritical},
		{"cpu warning", &fresh, snap(75, 10, 0), models.StatusWarning},
		{"disk warning", &fresh, snap(10, 80, 0), models.StatusWarning},
		{"critical beats warning", &fresh, snap(80, 95, 0), models.StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(tt.lastContact, now, DefaultStaleAfter, tt.latest, DefaultThresholds())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveStatusIgnoresBatteryAndMemory(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Minute)
	low := 5.0

	latest := &models.TelemetrySnapshot{MachineID: "m", CPUPercent: 10, MemoryPercent: 99, DiskPercent: 10, BatteryPercent: &low}
	assert.Equal(t, models.StatusHealthy, DeriveStatus(&fresh, now, DefaultStaleAfter, latest, DefaultThresholds()))

	latest.DiskPercent = 95
	assert.Equal(t, models.StatusCritical, DeriveStatus(&fresh, now, DefaultStaleAfter, latest, DefaultThresholds()))
}

func TestDeriveStatusUsesOldSnapshotWhenContactIsFresh(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Minute)
	latest := &models.TelemetrySnapshot{MachineID: "m", CPUPercent: 95, CapturedAt: now.Add(-30 * 24 * time.Hour)}

	assert.Equal(t, models.StatusCritical, DeriveStatus(&fresh, now, DefaultStaleAfter, latest, DefaultThresholds()))
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	equal := DefaultThresholds()
	equal.DiskWarning = equal.DiskCritical
	assert.NoError(t, equal.Validate())

	for _, mutate := range []func(*Thresholds){
		func(th *Thresholds) { th.CPUWarning = th.CPUCritical + 1 },
		func(th *Thresholds) { th.MemoryWarning = th.MemoryCritical + 1 },
		func(th *Thresholds) { th.DiskWarning = th.DiskCritical + 1 },
		func(th *Thresholds) { th.CPUCritical = math.NaN() },
		func(th *Thresholds) { th.DiskWarning = math.NaN() },
		func(th *Thresholds) { th.BatteryCritical = math.NaN() },
		func(th *Thresholds) { th.MemoryCritical = math.Inf(1) },
		func(th *Thresholds) { th.MemoryWarning = math.Inf(-1) },
	} {
		th := DefaultThresholds()
		mutate(&th)
		assert.True(t, errors.Is(th.Validate(), ErrConfiguration))
	}
}
