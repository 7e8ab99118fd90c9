package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"health-service/internal/models"
)

const diagnosticColumns = `id, serial_number, hostname, client_id, diagnostic_version, mode,
	chip_type, model_name, model_identifier, ram_gb, ram_upgradeable, cpu_name, cores_physical, cores_logical,
	macos_version, macos_build, uptime_seconds,
	sip_enabled, filevault_on, firewall_on, gatekeeper_on, xprotect_version, password_manager, av_edr,
	battery_health_pct, battery_cycles, battery_design_capacity, battery_max_capacity, battery_condition,
	disk_used_pct, disk_free_gb,
	oclp_detected, oclp_version, oclp_root_patched, third_party_kexts, kernel_panics, total_processes,
	recommendations, recommendation_count, raw_json, runtime_seconds, captured_at, uploaded_at`

func (d *DB) SaveDiagnostic(ctx context.Context, diag models.Diagnostic) (models.Diagnostic, error) {
	query := `
	INSERT INTO workshop_diagnostics (` + diagnosticColumns[len("id, "):] + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37, $38, $39, $40,
		$41, $42)
	RETURNING id`

	err := d.Pool.QueryRow(ctx, query,
		diag.SerialNumber,
		nullString(diag.Hostname),
		nullString(diag.ClientID),
		nullString(diag.DiagnosticVersion),
		nullString(diag.Mode),
		nullString(diag.ChipType),
		nullString(diag.ModelName),
		nullString(diag.ModelIdentifier),
		diag.RAMGB,
		nullString(diag.RAMUpgradeable),
		nullString(diag.CPUName),
		diag.CoresPhysical,
		diag.CoresLogical,
		nullString(diag.MacOSVersion),
		nullString(diag.MacOSBuild),
		diag.UptimeSeconds,
		diag.SIPEnabled,
		diag.FileVaultOn,
		diag.FirewallOn,
		diag.GatekeeperOn,
		nullString(diag.XProtectVersion),
		nullString(diag.PasswordManager),
		nullString(diag.AVEDR),
		diag.BatteryHealthPct,
		diag.BatteryCycles,
		diag.BatteryDesignCapacity,
		diag.BatteryMaxCapacity,
		nullString(diag.BatteryCondition),
		diag.DiskUsedPct,
		diag.DiskFreeGB,
		diag.OCLPDetected,
		nullString(diag.OCLPVersion),
		diag.OCLPRootPatched,
		diag.ThirdPartyKexts,
		diag.KernelPanics,
		diag.Processes,
		diag.Recommendations,
		diag.RecommendationCount,
		diag.Raw,
		diag.RuntimeSeconds,
		diag.CapturedAt,
		diag.UploadedAt,
	).Scan(&diag.ID)
	if err != nil {
		return models.Diagnostic{}, fmt.Errorf("failed to insert diagnostic: %w", err)
	}
	return diag, nil
}

func (d *DB) GetDiagnostic(ctx context.Context, id int64) (models.Diagnostic, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+diagnosticColumns+` FROM workshop_diagnostics WHERE id = $1`, id)
	diag, err := scanDiagnostic(row)
	if err != nil {
		return models.Diagnostic{}, notFound(err, fmt.Sprintf("diagnostic %d", id))
	}
	return diag, nil
}

func (d *DB) ListDiagnostics(ctx context.Context, f models.DiagnosticFilter) ([]models.Diagnostic, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = MaxDiagLimit
	}
	rows, err := d.Pool.Query(ctx, `SELECT `+diagnosticColumns+` FROM workshop_diagnostics
	WHERE ($1 = '' OR serial_number = $1) AND ($2 = '' OR client_id = $2)
	ORDER BY captured_at DESC, id DESC LIMIT $3`, f.SerialNumber, f.ClientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnostics: %w", err)
	}
	defer rows.Close()

	list := []models.Diagnostic{}
	for rows.Next() {
		diag, err := scanDiagnostic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		list = append(list, diag)
	}
	return list, rows.Err()
}

func scanDiagnostic(row pgx.Row) (models.Diagnostic, error) {
	var diag models.Diagnostic
	var (
		hostname, clientID, version, mode, chip, modelName, modelID, ramUp, cpu      *string
		macVersion, macBuild, xprotect, pwManager, avedr, battCondition, oclpVersion *string
		ram, coresP, coresL, uptime, diskUsed, diskFree, processes, runtime          *int
		sip, filevault, firewall, gatekeeper                                         *bool
	)
	err := row.Scan(
		&diag.ID, &diag.SerialNumber, &hostname, &clientID, &version, &mode,
		&chip, &modelName, &modelID, &ram, &ramUp, &cpu, &coresP, &coresL,
		&macVersion, &macBuild, &uptime,
		&sip, &filevault, &firewall, &gatekeeper, &xprotect, &pwManager, &avedr,
		&diag.BatteryHealthPct, &diag.BatteryCycles, &diag.BatteryDesignCapacity, &diag.BatteryMaxCapacity, &battCondition,
		&diskUsed, &diskFree,
		&diag.OCLPDetected, &oclpVersion, &diag.OCLPRootPatched, &diag.ThirdPartyKexts, &diag.KernelPanics, &processes,
		&diag.Recommendations, &diag.RecommendationCount, &diag.Raw, &runtime, &diag.CapturedAt, &diag.UploadedAt,
	)
	if err != nil {
		return models.Diagnostic{}, err
	}

	diag.Hostname = deref(hostname)
	diag.ClientID = deref(clientID)
	diag.DiagnosticVersion = deref(version)
	diag.Mode = deref(mode)
	diag.ChipType = deref(chip)
	diag.ModelName = deref(modelName)
	diag.ModelIdentifier = deref(modelID)
	diag.RAMUpgradeable = deref(ramUp)
	diag.CPUName = deref(cpu)
	diag.MacOSVersion = deref(macVersion)
	diag.MacOSBuild = deref(macBuild)
	diag.XProtectVersion = deref(xprotect)
	diag.PasswordManager = deref(pwManager)
	diag.AVEDR = deref(avedr)
	diag.BatteryCondition = deref(battCondition)
	diag.OCLPVersion = deref(oclpVersion)

	diag.RAMGB = derefInt(ram)
	diag.CoresPhysical = derefInt(coresP)
	diag.CoresLogical = derefInt(coresL)
	diag.UptimeSeconds = derefInt(uptime)
	diag.DiskUsedPct = derefInt(diskUsed)
	diag.DiskFreeGB = derefInt(diskFree)
	diag.Processes = derefInt(processes)
	diag.RuntimeSeconds = derefInt(runtime)

	diag.SIPEnabled = derefBool(sip)
	diag.FileVaultOn = derefBool(filevault)
	diag.FirewallOn = derefBool(firewall)
	diag.GatekeeperOn = derefBool(gatekeeper)
	return diag, nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefBool(v *bool) bool {
	return v != nil && *v
}
