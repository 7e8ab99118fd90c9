package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-service/internal/db"
	"health-service/internal/health"
	"health-service/internal/models"
)

func TestOverview(t *testing.T) {
	store := db.NewMemoryStore()
	ctx := context.Background()
	ing := newIngestor(store, IngestConfig{})
	battery := 5.0

	// Stale device with bad metrics.
	ing.now = fixedClock(now.Add(-time.Hour))
	_, err := ing.Submit(ctx, models.HealthSubmission{MachineID: "stale", CPUPercent: 99}, "http")
	require.NoError(t, err)

	ing.now = fixedClock(now.Add(-time.Minute))
	_, err = ing.Submit(ctx, models.HealthSubmission{MachineID: "disk", CPUPercent: 10, DiskPercent: 95, BatteryPercent: &battery}, "http")
	require.NoError(t, err)
	_, err = ing.Submit(ctx, models.HealthSubmission{MachineID: "warm", CPUPercent: 80}, "http")
	require.NoError(t, err)
	_, err = ing.Submit(ctx, models.HealthSubmission{MachineID: "calm", CPUPercent: 10}, "http")
	require.NoError(t, err)

	ing.now = fixedClock(now)
	_, err = ing.RegisterDevice(ctx, models.DeviceRegister{MachineID: "new"})
	require.NoError(t, err)

	dash := NewDashboard(store, health.DefaultThresholds(), health.DefaultStaleAfter)
	dash.now = fixedClock(now)
	ov, err := dash.Overview(ctx, "")
	require.NoError(t, err)

	status := map[string]models.DeviceStatus{}
	summaries := map[string]models.DeviceHealthSummary{}
	for _, d := range ov.Devices {
		status[d.MachineID] = d.Status
		summaries[d.MachineID] = d
	}
	assert.Equal(t, models.StatusOffline, status["stale"])
	assert.Equal(t, models.StatusCritical, status["disk"])
	assert.Equal(t, models.StatusWarning, status["warm"])
	assert.Equal(t, models.StatusHealthy, status["calm"])
	assert.Equal(t, models.StatusHealthy, status["new"])

	assert.Equal(t, 5, ov.TotalDevices)
	assert.Equal(t, 4, ov.ActiveDevices)
	// stale cpu, disk disk, disk battery are critical; warm cpu is warning.
	assert.Equal(t, 3, ov.CriticalAlerts)
	assert.Equal(t, 1, ov.WarningAlerts)

	assert.Equal(t, 2, summaries["disk"].OpenAlerts)
	require.NotNil(t, summaries["disk"].Battery)
	assert.Equal(t, 5.0, *summaries["disk"].Battery)
	assert.Nil(t, summaries["new"].CPU)
}

func TestOverviewAfterBulkResolve(t *testing.T) {
	store := db.NewMemoryStore()
	ctx := context.Background()
	ing := newIngestor(store, IngestConfig{})
	ing.now = fixedClock(now)
	_, err := ing.Submit(ctx, models.HealthSubmission{MachineID: "m", CPUPercent: 99, DiskPercent: 99}, "http")
	require.NoError(t, err)

	n, err := store.ResolveAllForDevice(ctx, "m", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dash := NewDashboard(store, health.DefaultThresholds(), 0)
	dash.now = fixedClock(now)
	ov, err := dash.Overview(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, ov.CriticalAlerts)
	require.Len(t, ov.Devices, 1)
	assert.Zero(t, ov.Devices[0].OpenAlerts)
	// Status follows the latest snapshot, not the alert state.
	assert.Equal(t, models.StatusCritical, ov.Devices[0].Status)
}

func TestOverviewClientFilter(t *testing.T) {
	store := db.NewMemoryStore()
	ctx := context.Background()
	ing := newIngestor(store, IngestConfig{})
	ing.now = fixedClock(now)
	_, err := ing.RegisterDevice(ctx, models.DeviceRegister{MachineID: "a", ClientID: "acme"})
	require.NoError(t, err)
	_, err = ing.RegisterDevice(ctx, models.DeviceRegister{MachineID: "b", ClientID: "globex"})
	require.NoError(t, err)

	dash := NewDashboard(store, health.DefaultThresholds(), health.DefaultStaleAfter)
	dash.now = fixedClock(now)
	ov, err := dash.Overview(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, ov.Devices, 1)
	assert.Equal(t, "a", ov.Devices[0].MachineID)
}
