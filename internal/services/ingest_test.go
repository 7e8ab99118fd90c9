package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-service/internal/crypto"
	"health-service/internal/db"
	"health-service/internal/health"
	"health-service/internal/logging"
	"health-service/internal/models"
)

type recordingQueue struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (q *recordingQueue) Queue(a models.Alert) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.alerts = append(q.alerts, a)
}

// flakyStore fails RecordSubmission a fixed number of times before delegating.
type flakyStore struct {
	db.Store
	failures int
	calls    int
}

func (f *flakyStore) RecordSubmission(ctx context.Context, s models.TelemetrySnapshot, c []models.AlertCandidate) (models.Submission, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.Submission{}, errors.New("connection reset")
	}
	return f.Store.RecordSubmission(ctx, s, c)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newIngestor(store db.Store, cfg IngestConfig) *Ingestor {
	if cfg.Thresholds == (health.Thresholds{}) {
		cfg.Thresholds = health.DefaultThresholds()
	}
	cfg.RetryDelay = time.Millisecond
	return NewIngestor(store, cfg, logging.Discard())
}

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestSubmitPersistsAlertsInOrder(t *testing.T) {
	store := db.NewMemoryStore()
	q := &recordingQueue{}
	ing := newIngestor(store, IngestConfig{Queue: q})
	ing.now = fixedClock(now)

	res, err := ing.Submit(context.Background(), models.HealthSubmission{
		MachineID: "mac-1", CPUPercent: 95, MemoryPercent: 85, DiskPercent: 92, ThreatScore: 8,
	}, "http")
	require.NoError(t, err)

	require.Len(t, res.Alerts, 4)
	want := []models.Category{models.CategoryCPU, models.CategoryMemory, models.CategoryDisk, models.CategorySecurity}
	for i, a := range res.Alerts {
		assert.Equal(t, want[i], a.Category)
		assert.True(t, a.Timestamp.Equal(now))
	}
	assert.Len(t, q.alerts, 4)

	dev, err := store.GetDevice(context.Background(), "mac-1")
	require.NoError(t, err)
	assert.True(t, dev.LastSeen.Equal(now))
}

func TestSubmitRejectsEmptyMachineID(t *testing.T) {
	store := db.NewMemoryStore()
	ing := newIngestor(store, IngestConfig{})

	_, err := ing.Submit(context.Background(), models.HealthSubmission{MachineID: "  ", CPUPercent: 99}, "http")
	assert.True(t, errors.Is(err, health.ErrInvalidInput))

	devices, err := store.ListDevices(context.Background(), models.DeviceFilter{})
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestSubmitRetriesWholeWrite(t *testing.T) {
	store := &flakyStore{Store: db.NewMemoryStore(), failures: 2}
	ing := newIngestor(store, IngestConfig{Attempts: 3})

	res, err := ing.Submit(context.Background(), models.HealthSubmission{MachineID: "mac-1", CPUPercent: 96}, "http")
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
	assert.Equal(t, 3, store.calls)

	list, err := store.ListAlerts(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmitGivesUpAfterAttempts(t *testing.T) {
	store := &flakyStore{Store: db.NewMemoryStore(), failures: 10}
	q := &recordingQueue{}
	ing := newIngestor(store, IngestConfig{Attempts: 2, Queue: q})

	_, err := ing.Submit(context.Background(), models.HealthSubmission{MachineID: "mac-1", CPUPercent: 96}, "http")
	assert.Error(t, err)
	assert.Empty(t, q.alerts)
}

func TestSubmitSealsRawPayload(t *testing.T) {
	key := base64.URLEncoding.EncodeToString([]byte(strings.Repeat("s", 32)))
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	store := db.NewMemoryStore()
	ing := newIngestor(store, IngestConfig{Sealer: sealer})

	_, err = ing.Submit(context.Background(), models.HealthSubmission{
		MachineID: "mac-1", RawData: map[string]interface{}{"smart": "ok"},
	}, "http")
	require.NoError(t, err)

	latest, err := store.LatestTelemetry(context.Background(), "mac-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Nil(t, latest.RawData)
	require.NotEmpty(t, latest.EncryptedRaw)

	var raw map[string]interface{}
	require.NoError(t, sealer.Open(latest.EncryptedRaw, &raw))
	assert.Equal(t, "ok", raw["smart"])
}

func TestSubmitWithSuppression(t *testing.T) {
	store := db.NewMemoryStore()
	ing := newIngestor(store, IngestConfig{SuppressWindow: 10 * time.Minute})
	sub := models.HealthSubmission{MachineID: "mac-1", CPUPercent: 96}

	ing.now = fixedClock(now)
	first, err := ing.Submit(context.Background(), sub, "http")
	require.NoError(t, err)
	assert.Len(t, first.Alerts, 1)

	ing.now = fixedClock(now.Add(5 * time.Minute))
	second, err := ing.Submit(context.Background(), sub, "http")
	require.NoError(t, err)
	assert.Empty(t, second.Alerts)

	ing.now = fixedClock(now.Add(11 * time.Minute))
	third, err := ing.Submit(context.Background(), sub, "http")
	require.NoError(t, err)
	assert.Len(t, third.Alerts, 1)
}

func TestSubmitWithoutSuppressionAlwaysRaises(t *testing.T) {
	store := db.NewMemoryStore()
	ing := newIngestor(store, IngestConfig{})
	ing.now = fixedClock(now)
	for i := 0; i < 3; i++ {
		res, err := ing.Submit(context.Background(), models.HealthSubmission{MachineID: "mac-1", CPUPercent: 96}, "http")
		require.NoError(t, err)
		assert.Len(t, res.Alerts, 1)
	}
	n, err := store.CountOpenAlerts(context.Background(), "mac-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRegisterDevice(t *testing.T) {
	store := db.NewMemoryStore()
	ing := newIngestor(store, IngestConfig{})

	dev, err := ing.RegisterDevice(context.Background(), models.DeviceRegister{MachineID: "mac-1", Hostname: "alpha", DeviceType: models.DeviceMacDesktop})
	require.NoError(t, err)
	assert.Equal(t, "alpha", dev.Hostname)
	assert.True(t, dev.IsActive)

	_, err = ing.RegisterDevice(context.Background(), models.DeviceRegister{})
	assert.True(t, errors.Is(err, health.ErrInvalidInput))
}

func TestSubmitNetwork(t *testing.T) {
	store := db.NewMemoryStore()
	ing := newIngestor(store, IngestConfig{})
	ing.now = fixedClock(now)

	n, err := ing.SubmitNetwork(context.Background(), models.NetworkSnapshot{ControllerID: "unifi-1", WANStatus: "up"})
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.True(t, n.Timestamp.Equal(now))

	_, err = ing.SubmitNetwork(context.Background(), models.NetworkSnapshot{})
	assert.True(t, errors.Is(err, health.ErrInvalidInput))
}
