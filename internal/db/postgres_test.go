package db

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-service/internal/models"
)

// openTestDB connects to TEST_DATABASE_DSN and empties every table.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	d, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.Migrate(ctx))
	_, err = d.Pool.Exec(ctx, `TRUNCATE alerts, health_data, network_data, workshop_diagnostics, devices RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return d
}

func TestPostgresMigrateIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.Migrate(context.Background()))
}

func TestPostgresSubmissionAndResolve(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	sub := submit(t, d, "mac-1", t0,
		cand(models.CategoryCPU, models.SeverityCritical),
		cand(models.CategoryDisk, models.SeverityWarning))
	require.Len(t, sub.Alerts, 2)
	assert.Less(t, sub.Alerts[0].ID, sub.Alerts[1].ID)

	dev, err := d.GetDevice(ctx, "mac-1")
	require.NoError(t, err)
	require.NotNil(t, dev.LastSeen)
	assert.True(t, dev.LastSeen.Equal(t0))

	latest, err := d.LatestTelemetry(ctx, "mac-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, sub.TelemetryID, latest.ID)

	n, err := d.CountOpenAlerts(ctx, "mac-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	at := t0.Add(time.Minute)
	count, err := d.ResolveAllForDevice(ctx, "mac-1", at)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	alerts, err := d.ListAlerts(ctx, models.AlertFilter{MachineID: "mac-1", Limit: 10})
	require.NoError(t, err)
	for _, a := range alerts {
		require.NotNil(t, a.ResolvedAt)
		assert.True(t, a.ResolvedAt.Equal(at))
	}

	count, err = d.ResolveAllForDevice(ctx, "mac-1", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)

	again, err := d.ResolveAlert(ctx, sub.Alerts[0].ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.ResolvedAt.Equal(at))

	_, err = d.ResolveAlert(ctx, 9999, at)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresAlertsAreImmutable(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	sub := submit(t, d, "mac-1", t0, cand(models.CategoryCPU, models.SeverityCritical))

	_, err := d.Pool.Exec(ctx, `UPDATE alerts SET message = 'edited' WHERE id = $1`, sub.Alerts[0].ID)
	assert.Error(t, err)
	_, err = d.Pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, sub.Alerts[0].ID)
	assert.Error(t, err)
}

func TestPostgresConcurrentSubmissions(t *testing.T) {
	d := openTestDB(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.RecordSubmission(context.Background(), models.TelemetrySnapshot{
				MachineID: "mac-1", CPUPercent: 99, CapturedAt: t0.Add(time.Duration(i) * time.Second),
			}, []models.AlertCandidate{cand(models.CategoryCPU, models.SeverityCritical)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := d.CountOpenAlerts(context.Background(), "mac-1")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestPostgresFleetState(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	_, err := d.UpsertDevice(ctx, models.DeviceRegister{MachineID: "a", ClientID: "acme"}, t0)
	require.NoError(t, err)
	submit(t, d, "a", t0, cand(models.CategoryCPU, models.SeverityCritical))
	submit(t, d, "b", t0, cand(models.CategoryDisk, models.SeverityWarning))

	state, err := d.FleetState(ctx, models.DeviceFilter{ClientID: "acme", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, state.Devices, 1)
	assert.Equal(t, 1, state.Devices[0].OpenAlerts)
	require.NotNil(t, state.Devices[0].Latest)
	assert.Equal(t, 1, state.OpenBySeverity[models.SeverityCritical])
	assert.Zero(t, state.OpenBySeverity[models.SeverityWarning])
}
