package db

import (
	"context"
	"errors"
	"time"

	"health-service/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// Limits applied to history and listing queries.
const (
	HistoryRowLimit     = 500
	DefaultAlertLimit   = 50
	MaxAlertLimit       = 200
	DefaultDiagLimit    = 50
	MaxDiagLimit        = 200
	DefaultSerialLimit  = 20
	MaxSerialDiagLimit  = 100
	MaxHistoryHours     = 720
	DefaultHistoryHours = 24
)

// Store is the persistence collaborator for devices, telemetry, alerts,
// network readings and diagnostics.
//
// RecordSubmission is atomic and serialized per device: the device row, the
// snapshot and every alert land together or not at all, and alerts are
// assigned ids in candidate order. Alerts are immutable apart from
// Resolved/ResolvedAt.
type Store interface {
	UpsertDevice(ctx context.Context, reg models.DeviceRegister, at time.Time) (models.Device, error)
	GetDevice(ctx context.Context, machineID string) (models.Device, error)
	ListDevices(ctx context.Context, f models.DeviceFilter) ([]models.Device, error)

	RecordSubmission(ctx context.Context, snap models.TelemetrySnapshot, cands []models.AlertCandidate) (models.Submission, error)
	LatestTelemetry(ctx context.Context, machineID string) (*models.TelemetrySnapshot, error)
	TelemetryHistory(ctx context.Context, machineID string, since time.Time) ([]models.TelemetrySnapshot, error)

	ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error)
	CountOpenAlerts(ctx context.Context, machineID string) (int, error)
	ResolveAlert(ctx context.Context, id int64, at time.Time) (models.Alert, error)
	ResolveAllForDevice(ctx context.Context, machineID string, at time.Time) (int, error)

	// FleetState reads devices, latest snapshots and open alert counts at one point in time.
	FleetState(ctx context.Context, f models.DeviceFilter) (models.FleetState, error)

	SaveNetwork(ctx context.Context, n models.NetworkSnapshot) (models.NetworkSnapshot, error)
	NetworkHistory(ctx context.Context, controllerID string, since time.Time) ([]models.NetworkSnapshot, error)

	SaveDiagnostic(ctx context.Context, d models.Diagnostic) (models.Diagnostic, error)
	GetDiagnostic(ctx context.Context, id int64) (models.Diagnostic, error)
	ListDiagnostics(ctx context.Context, f models.DiagnosticFilter) ([]models.Diagnostic, error)

	Ping(ctx context.Context) error
	Close()
}

// ClampLimit applies a default when limit is unset and caps it at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
