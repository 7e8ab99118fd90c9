package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"health-service/internal/db"
	"health-service/internal/health"
	"health-service/internal/logging"
	"health-service/internal/models"
)

// Diagnostics stores deep-diagnostic uploads and compares them.
// Recommendations arrive with the upload and are stored, never recomputed.
type Diagnostics struct {
	store  db.Store
	logger *logging.Logger
	now    func() time.Time
}

func NewDiagnostics(store db.Store, logger *logging.Logger) *Diagnostics {
	return &Diagnostics{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Upload maps the agent payload to its stored form and saves it.
func (d *Diagnostics) Upload(ctx context.Context, up models.DiagnosticUpload) (models.Diagnostic, error) {
	log := d.logger.WithField("serial", up.Serial)
	log.Infof("Diagnostic upload: client=%s mode=%s v=%s recs=%d", up.ClientID, up.Mode, up.Version, up.RecommendationCount)

	rec := FromUpload(up, d.now())
	if strings.TrimSpace(rec.SerialNumber) == "" {
		return models.Diagnostic{}, fmt.Errorf("%w: serial is required", health.ErrInvalidInput)
	}
	saved, err := d.store.SaveDiagnostic(ctx, rec)
	if err != nil {
		return models.Diagnostic{}, err
	}
	log.Infof("Diagnostic stored: id=%d", saved.ID)
	return saved, nil
}

// ForSerial lists a device's diagnostics, newest first. No rows is ErrNotFound.
func (d *Diagnostics) ForSerial(ctx context.Context, serial string, limit int) ([]models.Diagnostic, error) {
	list, err := d.store.ListDiagnostics(ctx, models.DiagnosticFilter{
		SerialNumber: serial,
		Limit:        db.ClampLimit(limit, db.DefaultSerialLimit, db.MaxSerialDiagLimit),
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no diagnostics for %s: %w", serial, db.ErrNotFound)
	}
	return list, nil
}

// List returns diagnostics across devices, optionally for one client.
func (d *Diagnostics) List(ctx context.Context, clientID string, limit int) ([]models.Diagnostic, error) {
	return d.store.ListDiagnostics(ctx, models.DiagnosticFilter{
		ClientID: clientID,
		Limit:    db.ClampLimit(limit, db.DefaultDiagLimit, db.MaxDiagLimit),
	})
}

func (d *Diagnostics) Get(ctx context.Context, id int64) (models.Diagnostic, error) {
	return d.store.GetDiagnostic(ctx, id)
}

// Compare loads two diagnostics and reports how they differ.
func (d *Diagnostics) Compare(ctx context.Context, id1, id2 int64) (models.DiagnosticComparison, error) {
	first, err := d.store.GetDiagnostic(ctx, id1)
	if err != nil {
		return models.DiagnosticComparison{}, err
	}
	second, err := d.store.GetDiagnostic(ctx, id2)
	if err != nil {
		return models.DiagnosticComparison{}, err
	}
	return Compare(first, second), nil
}

// FromUpload converts the agent payload. Battery values arrive as strings and
// may be "N/A" or "null", which become nil.
func FromUpload(up models.DiagnosticUpload, now time.Time) models.Diagnostic {
	serial := up.Serial
	if serial == "" {
		serial = up.Hardware.Serial
	}
	raw := up
	return models.Diagnostic{
		SerialNumber:      serial,
		Hostname:          up.Hostname,
		ClientID:          up.ClientID,
		DiagnosticVersion: up.Version,
		Mode:              up.Mode,

		ChipType:        up.Hardware.ChipType,
		ModelName:       up.Hardware.Model,
		ModelIdentifier: up.Hardware.ModelID,
		RAMGB:           up.Hardware.RAMGB,
		RAMUpgradeable:  up.Hardware.RAMUpgradeable,
		CPUName:         up.Hardware.CPU,
		CoresPhysical:   up.Hardware.CoresPhysical,
		CoresLogical:    up.Hardware.CoresLogical,

		MacOSVersion:  up.MacOS.Version,
		MacOSBuild:    up.MacOS.Build,
		UptimeSeconds: up.MacOS.UptimeSeconds,

		SIPEnabled:      up.Security.SIPEnabled != 0,
		FileVaultOn:     up.Security.FileVaultOn != 0,
		FirewallOn:      up.Security.FirewallOn != 0,
		GatekeeperOn:    up.Security.GatekeeperOn != 0,
		XProtectVersion: up.Security.XProtectVersion,
		PasswordManager: up.Security.PasswordManager,
		AVEDR:           up.Security.AVEDR,

		BatteryHealthPct:      safeFloat(up.Battery.HealthPct),
		BatteryCycles:         safeInt(up.Battery.Cycles),
		BatteryDesignCapacity: safeInt(up.Battery.DesignCapacityMAh),
		BatteryMaxCapacity:    safeInt(up.Battery.MaxCapacityMAh),
		BatteryCondition:      up.Battery.Condition,

		DiskUsedPct: up.Storage.BootDiskUsedPct,
		DiskFreeGB:  up.Storage.BootDiskFreeGB,

		OCLPDetected:    up.OCLP.Detected,
		OCLPVersion:     up.OCLP.Version,
		OCLPRootPatched: up.OCLP.RootPatched,
		ThirdPartyKexts: up.OCLP.ThirdPartyKexts,
		KernelPanics:    up.Diagnostics.KernelPanics,
		Processes:       up.Diagnostics.TotalProcesses,

		Recommendations:     up.Recommendations,
		RecommendationCount: up.RecommendationCount,
		RuntimeSeconds:      up.RuntimeSeconds,
		Raw:                 &raw,

		CapturedAt: now,
		UploadedAt: now,
	}
}

func safeFloat(v string) *float64 {
	v = strings.TrimSpace(v)
	switch v {
	case "", "null", "N/A":
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func safeInt(v string) *int {
	f := safeFloat(v)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// Compare reports numeric deltas (second minus first, two decimals) and
// security flag changes between two diagnostics.
func Compare(first, second models.Diagnostic) models.DiagnosticComparison {
	fromInt := func(v *int) *float64 {
		if v == nil {
			return nil
		}
		f := float64(*v)
		return &f
	}
	num := func(v int) *float64 {
		f := float64(v)
		return &f
	}

	return models.DiagnosticComparison{
		First:      models.DiagnosticRef{ID: first.ID, Serial: first.SerialNumber, CapturedAt: first.CapturedAt},
		Second:     models.DiagnosticRef{ID: second.ID, Serial: second.SerialNumber, CapturedAt: second.CapturedAt},
		SameDevice: first.SerialNumber == second.SerialNumber,
		Deltas: []models.FieldDelta{
			delta("battery_health_pct", first.BatteryHealthPct, second.BatteryHealthPct),
			delta("battery_cycles", fromInt(first.BatteryCycles), fromInt(second.BatteryCycles)),
			delta("disk_used_pct", num(first.DiskUsedPct), num(second.DiskUsedPct)),
			delta("disk_free_gb", num(first.DiskFreeGB), num(second.DiskFreeGB)),
			delta("kernel_panics", num(first.KernelPanics), num(second.KernelPanics)),
			delta("total_processes", num(first.Processes), num(second.Processes)),
			delta("recommendation_count", num(first.RecommendationCount), num(second.RecommendationCount)),
		},
		SecurityChanges: map[string]models.FlagChange{
			"sip":        {Before: first.SIPEnabled, After: second.SIPEnabled},
			"filevault":  {Before: first.FileVaultOn, After: second.FileVaultOn},
			"firewall":   {Before: first.FirewallOn, After: second.FirewallOn},
			"gatekeeper": {Before: first.GatekeeperOn, After: second.GatekeeperOn},
		},
	}
}

func delta(field string, before, after *float64) models.FieldDelta {
	fd := models.FieldDelta{Field: field, Before: before, After: after}
	if before != nil && after != nil {
		d := math.Round((*after-*before)*100) / 100
		fd.Delta = &d
	}
	return fd
}
