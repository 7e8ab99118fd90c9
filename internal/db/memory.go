package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"health-service/internal/models"
)

// MemoryStore is an in-memory Store for development and tests.
// A single mutex serializes writes, which also serializes per device.
type MemoryStore struct {
	mu          sync.RWMutex
	devices     map[string]models.Device
	telemetry   map[string][]models.TelemetrySnapshot
	alerts      []models.Alert
	network     []models.NetworkSnapshot
	diagnostics []models.Diagnostic

	nextDevice, nextTelemetry, nextAlert, nextNetwork, nextDiag int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:   make(map[string]models.Device),
		telemetry: make(map[string][]models.TelemetrySnapshot),
	}
}

func (m *MemoryStore) UpsertDevice(_ context.Context, reg models.DeviceRegister, at time.Time) (models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[reg.MachineID]
	if !ok {
		m.nextDevice++
		d = models.Device{
			ID:           m.nextDevice,
			MachineID:    reg.MachineID,
			DeviceType:   models.DeviceOther,
			RegisteredAt: at,
			Metadata:     reg.Metadata,
		}
	}
	mergeRegistration(&d, reg)
	seen := at
	d.LastSeen = &seen
	d.IsActive = true
	m.devices[reg.MachineID] = d
	return d, nil
}

// mergeRegistration copies the non-empty registration fields onto d.
func mergeRegistration(d *models.Device, reg models.DeviceRegister) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&d.ClientID, reg.ClientID)
	set(&d.Hostname, reg.Hostname)
	set(&d.DeviceType, reg.DeviceType)
	set(&d.ModelIdentifier, reg.ModelIdentifier)
	set(&d.SerialNumber, reg.SerialNumber)
	set(&d.OSVersion, reg.OSVersion)
	set(&d.AgentVersion, reg.AgentVersion)
}

func (m *MemoryStore) GetDevice(_ context.Context, machineID string) (models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[machineID]
	if !ok {
		return models.Device{}, fmt.Errorf("device %s: %w", machineID, ErrNotFound)
	}
	return d, nil
}

func (m *MemoryStore) ListDevices(_ context.Context, f models.DeviceFilter) ([]models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterDevices(f), nil
}

// filterDevices returns matching devices, most recently seen first. Callers hold mu.
func (m *MemoryStore) filterDevices(f models.DeviceFilter) []models.Device {
	out := make([]models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if f.ClientID != "" && d.ClientID != f.ClientID {
			continue
		}
		if f.ActiveOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastSeen, out[j].LastSeen
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		}
		return a.After(*b)
	})
	return out
}

func (m *MemoryStore) RecordSubmission(_ context.Context, snap models.TelemetrySnapshot, cands []models.AlertCandidate) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[snap.MachineID]
	if !ok {
		m.nextDevice++
		d = models.Device{
			ID:           m.nextDevice,
			MachineID:    snap.MachineID,
			DeviceType:   models.DeviceOther,
			RegisteredAt: snap.CapturedAt,
			IsActive:     true,
		}
	}
	seen := snap.CapturedAt
	d.LastSeen = &seen
	m.devices[snap.MachineID] = d

	m.nextTelemetry++
	snap.ID = m.nextTelemetry
	m.telemetry[snap.MachineID] = append(m.telemetry[snap.MachineID], snap)

	created := make([]models.Alert, 0, len(cands))
	for _, c := range cands {
		m.nextAlert++
		a := models.NewAlert(snap.MachineID, c, snap.CapturedAt)
		a.ID = m.nextAlert
		m.alerts = append(m.alerts, a)
		created = append(created, a)
	}
	return models.Submission{TelemetryID: snap.ID, Alerts: created}, nil
}

func (m *MemoryStore) LatestTelemetry(_ context.Context, machineID string) (*models.TelemetrySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest(machineID), nil
}

// latest returns the newest snapshot by capture time, later inserts winning ties. Callers hold mu.
func (m *MemoryStore) latest(machineID string) *models.TelemetrySnapshot {
	hist := m.telemetry[machineID]
	if len(hist) == 0 {
		return nil
	}
	best := hist[0]
	for _, s := range hist[1:] {
		if !s.CapturedAt.Before(best.CapturedAt) {
			best = s
		}
	}
	return &best
}

func (m *MemoryStore) TelemetryHistory(_ context.Context, machineID string, since time.Time) ([]models.TelemetrySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.telemetry[machineID]
	out := make([]models.TelemetrySnapshot, 0, len(hist))
	for _, s := range hist {
		if !s.CapturedAt.Before(since) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	if len(out) > HistoryRowLimit {
		out = out[:HistoryRowLimit]
	}
	return out, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, f models.AlertFilter) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Alert, 0)
	for _, a := range m.alerts {
		if f.MachineID != "" && a.MachineID != f.MachineID {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.UnresolvedOnly && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	limit := ClampLimit(f.Limit, DefaultAlertLimit, MaxAlertLimit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountOpenAlerts(_ context.Context, machineID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.alerts {
		if a.MachineID == machineID && !a.Resolved {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ResolveAlert(_ context.Context, id int64, at time.Time) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		if !m.alerts[i].Resolved {
			resolvedAt := at
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedAt = &resolvedAt
		}
		return m.alerts[i], nil
	}
	return models.Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
}

func (m *MemoryStore) ResolveAllForDevice(_ context.Context, machineID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolvedAt := at
	n := 0
	for i := range m.alerts {
		if m.alerts[i].MachineID == machineID && !m.alerts[i].Resolved {
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedAt = &resolvedAt
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FleetState(_ context.Context, f models.DeviceFilter) (models.FleetState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := m.filterDevices(f)
	inScope := make(map[string]int, len(devices))
	state := models.FleetState{
		Devices:        make([]models.DeviceState, len(devices)),
		OpenBySeverity: make(map[models.Severity]int),
	}
	for i, d := range devices {
		inScope[d.MachineID] = i
		state.Devices[i] = models.DeviceState{Device: d, Latest: m.latest(d.MachineID)}
	}
	for _, a := range m.alerts {
		if a.Resolved {
			continue
		}
		i, ok := inScope[a.MachineID]
		if !ok {
			continue
		}
		state.Devices[i].OpenAlerts++
		state.OpenBySeverity[a.Severity]++
	}
	return state, nil
}

func (m *MemoryStore) SaveNetwork(_ context.Context, n models.NetworkSnapshot) (models.NetworkSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNetwork++
	n.ID = m.nextNetwork
	m.network = append(m.network, n)
	return n, nil
}

func (m *MemoryStore) NetworkHistory(_ context.Context, controllerID string, since time.Time) ([]models.NetworkSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.NetworkSnapshot, 0)
	for _, n := range m.network {
		if n.ControllerID == controllerID && !n.Timestamp.Before(since) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > HistoryRowLimit {
		out = out[:HistoryRowLimit]
	}
	return out, nil
}

func (m *MemoryStore) SaveDiagnostic(_ context.Context, d models.Diagnostic) (models.Diagnostic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDiag++
	d.ID = m.nextDiag
	m.diagnostics = append(m.diagnostics, d)
	return d, nil
}

func (m *MemoryStore) GetDiagnostic(_ context.Context, id int64) (models.Diagnostic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.diagnostics {
		if d.ID == id {
			return d, nil
		}
	}
	return models.Diagnostic{}, fmt.Errorf("diagnostic %d: %w", id, ErrNotFound)
}

func (m *MemoryStore) ListDiagnostics(_ context.Context, f models.DiagnosticFilter) ([]models.Diagnostic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Diagnostic, 0)
	for _, d := range m.diagnostics {
		if f.SerialNumber != "" && d.SerialNumber != f.SerialNumber {
			continue
		}
		if f.ClientID != "" && d.ClientID != f.ClientID {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Ping reports readiness for the health endpoint.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}
