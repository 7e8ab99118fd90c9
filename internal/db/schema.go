package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		machine_id VARCHAR(128) NOT NULL UNIQUE,
		client_id VARCHAR(128),
		hostname VARCHAR(256),
		device_type VARCHAR(32) NOT NULL DEFAULT 'other',
		model_identifier VARCHAR(128),
		serial_number VARCHAR(64),
		os_version VARCHAR(64),
		agent_version VARCHAR(32),
		last_seen TIMESTAMPTZ,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		metadata JSONB
	);
	CREATE INDEX IF NOT EXISTS ix_devices_client ON devices(client_id);
	CREATE INDEX IF NOT EXISTS ix_devices_serial ON devices(serial_number);`,

	`CREATE TABLE IF NOT EXISTS health_data (
		id BIGSERIAL PRIMARY KEY,
		machine_id VARCHAR(128) NOT NULL REFERENCES devices(machine_id),
		timestamp TIMESTAMPTZ NOT NULL,
		cpu_percent DOUBLE PRECISION NOT NULL,
		memory_percent DOUBLE PRECISION NOT NULL,
		disk_percent DOUBLE PRECISION NOT NULL,
		battery_percent DOUBLE PRECISION,
		battery_cycle_count INTEGER,
		battery_health VARCHAR(32),
		threat_score INTEGER NOT NULL DEFAULT 0,
		uptime_hours DOUBLE PRECISION,
		network_up_mbps DOUBLE PRECISION,
		network_down_mbps DOUBLE PRECISION,
		encrypted_raw TEXT,
		raw_data JSONB
	);
	CREATE INDEX IF NOT EXISTS ix_health_machine_ts ON health_data(machine_id, timestamp);`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		machine_id VARCHAR(128) NOT NULL REFERENCES devices(machine_id),
		timestamp TIMESTAMPTZ NOT NULL,
		severity VARCHAR(16) NOT NULL,
		category VARCHAR(64) NOT NULL,
		message TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL DEFAULT 0,
		threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS ix_alert_machine_sev ON alerts(machine_id, severity);
	CREATE INDEX IF NOT EXISTS ix_alert_open ON alerts(machine_id) WHERE NOT resolved;`,

	// Alerts only ever move from open to resolved, once.
	`CREATE OR REPLACE FUNCTION alerts_guard_update() RETURNS trigger AS $$
	BEGIN
		IF NEW.machine_id IS DISTINCT FROM OLD.machine_id
			OR NEW.timestamp IS DISTINCT FROM OLD.timestamp
			OR NEW.severity IS DISTINCT FROM OLD.severity
			OR NEW.category IS DISTINCT FROM OLD.category
			OR NEW.message IS DISTINCT FROM OLD.message
			OR NEW.value IS DISTINCT FROM OLD.value
			OR NEW.threshold IS DISTINCT FROM OLD.threshold THEN
			RAISE EXCEPTION 'alert % is immutable', OLD.id;
		END IF;
		IF OLD.resolved AND (NOT NEW.resolved OR NEW.resolved_at IS DISTINCT FROM OLD.resolved_at) THEN
			RAISE EXCEPTION 'alert % is already resolved', OLD.id;
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;
	DROP TRIGGER IF EXISTS alerts_guard ON alerts;
	CREATE TRIGGER alerts_guard BEFORE UPDATE ON alerts
		FOR EACH ROW EXECUTE FUNCTION alerts_guard_update();
	CREATE OR REPLACE FUNCTION alerts_guard_delete() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'alerts are never deleted';
	END;
	$$ LANGUAGE plpgsql;
	DROP TRIGGER IF EXISTS alerts_no_delete ON alerts;
	CREATE TRIGGER alerts_no_delete BEFORE DELETE ON alerts
		FOR EACH ROW EXECUTE FUNCTION alerts_guard_delete();`,

	`CREATE TABLE IF NOT EXISTS network_data (
		id BIGSERIAL PRIMARY KEY,
		controller_id VARCHAR(128) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		total_clients INTEGER,
		total_devices INTEGER,
		wan_status VARCHAR(16),
		wan_latency_ms DOUBLE PRECISION,
		raw_data JSONB
	);
	CREATE INDEX IF NOT EXISTS ix_network_controller_ts ON network_data(controller_id, timestamp);`,

	`CREATE TABLE IF NOT EXISTS workshop_diagnostics (
		id BIGSERIAL PRIMARY KEY,
		serial_number VARCHAR(64) NOT NULL,
		hostname VARCHAR(256),
		client_id VARCHAR(128),
		diagnostic_version VARCHAR(16),
		mode VARCHAR(16),
		chip_type VARCHAR(32),
		model_name VARCHAR(128),
		model_identifier VARCHAR(64),
		ram_gb INTEGER,
		ram_upgradeable VARCHAR(128),
		cpu_name VARCHAR(128),
		cores_physical INTEGER,
		cores_logical INTEGER,
		macos_version VARCHAR(32),
		macos_build VARCHAR(32),
		uptime_seconds INTEGER,
		sip_enabled BOOLEAN,
		filevault_on BOOLEAN,
		firewall_on BOOLEAN,
		gatekeeper_on BOOLEAN,
		xprotect_version VARCHAR(32),
		password_manager VARCHAR(64),
		av_edr VARCHAR(128),
		battery_health_pct DOUBLE PRECISION,
		battery_cycles INTEGER,
		battery_design_capacity INTEGER,
		battery_max_capacity INTEGER,
		battery_condition VARCHAR(32),
		disk_used_pct INTEGER,
		disk_free_gb INTEGER,
		oclp_detected BOOLEAN NOT NULL DEFAULT FALSE,
		oclp_version VARCHAR(32),
		oclp_root_patched BOOLEAN NOT NULL DEFAULT FALSE,
		third_party_kexts INTEGER NOT NULL DEFAULT 0,
		kernel_panics INTEGER NOT NULL DEFAULT 0,
		total_processes INTEGER,
		recommendations JSONB,
		recommendation_count INTEGER NOT NULL DEFAULT 0,
		raw_json JSONB,
		runtime_seconds INTEGER,
		captured_at TIMESTAMPTZ NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS ix_diag_serial_captured ON workshop_diagnostics(serial_number, captured_at);
	CREATE INDEX IF NOT EXISTS ix_diag_client_captured ON workshop_diagnostics(client_id, captured_at);`,
}

// Migrate applies any migrations newer than the recorded schema version.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	if err := d.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, migrations[i]); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
