package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"health-service/internal/crypto"
	"health-service/internal/db"
	"health-service/internal/health"
	"health-service/internal/logging"
	"health-service/internal/metrics"
	"health-service/internal/models"
	"health-service/internal/utils"
)

const deviceLockStripes = 64

// AlertQueue accepts persisted alerts for asynchronous delivery.
type AlertQueue interface {
	Queue(alert models.Alert)
}

// IngestConfig wires the optional collaborators of an Ingestor.
type IngestConfig struct {
	Thresholds     health.Thresholds
	SuppressWindow time.Duration
	Sealer         *crypto.Sealer // nil stores raw payloads as given
	Queue          AlertQueue     // nil skips notification
	Attempts       int
	RetryDelay     time.Duration
}

// Ingestor turns health submissions into stored snapshots and alerts.
type Ingestor struct {
	store      db.Store
	cfg        IngestConfig
	suppressor *Suppressor
	logger     *logging.Logger
	now        func() time.Time
	locks      [deviceLockStripes]sync.Mutex
}

func NewIngestor(store db.Store, cfg IngestConfig, logger *logging.Logger) *Ingestor {
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &Ingestor{
		store:      store,
		cfg:        cfg,
		suppressor: NewSuppressor(cfg.SuppressWindow),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit evaluates one submission and persists the snapshot together with its
// alerts. A failed write is retried as a unit, so a caller never observes a
// partial alert set.
func (i *Ingestor) Submit(ctx context.Context, sub models.HealthSubmission, source string) (models.Submission, error) {
	if err := health.CheckMachineID(sub.MachineID); err != nil {
		metrics.SubmissionsProcessed.WithLabelValues(source, "rejected").Inc()
		return models.Submission{}, err
	}
	log := i.logger.WithDevice(sub.MachineID)

	// Same-device submissions are stamped and stored in arrival order.
	mu := &i.locks[stripe(sub.MachineID)]
	mu.Lock()
	defer mu.Unlock()

	snap := sub.Snapshot(i.now())
	if i.cfg.Sealer != nil && len(snap.RawData) > 0 {
		sealed, err := i.cfg.Sealer.Seal(snap.RawData)
		if err != nil {
			log.Warnf("Raw payload not stored, sealing failed: %v", err)
		} else {
			snap.EncryptedRaw = sealed
		}
		snap.RawData = nil
	}

	cands := health.Evaluate(snap, i.cfg.Thresholds)
	kept, dropped := i.suppressor.Filter(snap.MachineID, cands, snap.CapturedAt)
	if dropped > 0 {
		metrics.AlertsSuppressed.Add(float64(dropped))
		log.Debugf("Suppressed %d repeated alert candidates", dropped)
	}

	var res models.Submission
	err := utils.Retry(ctx, i.logger, i.cfg.Attempts, i.cfg.RetryDelay, func() error {
		var err error
		res, err = i.store.RecordSubmission(ctx, snap, kept)
		return err
	})
	if err != nil {
		metrics.SubmissionsProcessed.WithLabelValues(source, "failed").Inc()
		return models.Submission{}, fmt.Errorf("failed to record submission for %s: %w", sub.MachineID, err)
	}
	i.suppressor.Record(res.Alerts)

	metrics.SubmissionsProcessed.WithLabelValues(source, "stored").Inc()
	for _, a := range res.Alerts {
		metrics.AlertsRaised.WithLabelValues(string(a.Severity), string(a.Category)).Inc()
		if i.cfg.Queue != nil {
			i.cfg.Queue.Queue(a)
		}
	}
	if len(res.Alerts) > 0 {
		log.Infof("Stored telemetry %d with %d alerts", res.TelemetryID, len(res.Alerts))
	}
	return res, nil
}

// RegisterDevice upserts a device by machine id.
func (i *Ingestor) RegisterDevice(ctx context.Context, reg models.DeviceRegister) (models.Device, error) {
	if err := health.CheckMachineID(reg.MachineID); err != nil {
		return models.Device{}, err
	}
	dev, err := i.store.UpsertDevice(ctx, reg, i.now())
	if err != nil {
		return models.Device{}, err
	}
	i.logger.WithDevice(dev.MachineID).Infof("Device registered (%s)", dev.DeviceType)
	return dev, nil
}

// SubmitNetwork stores a network controller reading.
func (i *Ingestor) SubmitNetwork(ctx context.Context, n models.NetworkSnapshot) (models.NetworkSnapshot, error) {
	if strings.TrimSpace(n.ControllerID) == "" {
		return models.NetworkSnapshot{}, fmt.Errorf("%w: controller_id is required", health.ErrInvalidInput)
	}
	n.Timestamp = i.now()
	return i.store.SaveNetwork(ctx, n)
}

func stripe(machineID string) int {
	return int(hashKey(machineID) % deviceLockStripes)
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
