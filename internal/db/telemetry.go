package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"health-service/internal/models"
)

const telemetryColumns = `id, machine_id, timestamp, cpu_percent, memory_percent, disk_percent,
	battery_percent, battery_cycle_count, battery_health, threat_score, uptime_hours,
	network_up_mbps, network_down_mbps, encrypted_raw, raw_data`

// RecordSubmission stores a snapshot and its alerts in one transaction,
// registering the device if needed and advancing its last_seen.
func (d *DB) RecordSubmission(ctx context.Context, snap models.TelemetrySnapshot, cands []models.AlertCandidate) (models.Submission, error) {
	var out models.Submission
	err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		if err := lockDevice(ctx, tx, snap.MachineID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
		INSERT INTO devices (machine_id, device_type, last_seen, registered_at, is_active)
		VALUES ($1, $2, $3, $3, TRUE)
		ON CONFLICT (machine_id) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
			snap.MachineID, models.DeviceOther, snap.CapturedAt)
		if err != nil {
			return fmt.Errorf("failed to touch device: %w", err)
		}

		err = tx.QueryRow(ctx, `
		INSERT INTO health_data (
			machine_id, timestamp, cpu_percent, memory_percent, disk_percent,
			battery_percent, battery_cycle_count, battery_health, threat_score, uptime_hours,
			network_up_mbps, network_down_mbps, encrypted_raw, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
			snap.MachineID,
			snap.CapturedAt,
			snap.CPUPercent,
			snap.MemoryPercent,
			snap.DiskPercent,
			snap.BatteryPercent,
			snap.BatteryCycleCount,
			nullString(snap.BatteryHealth),
			snap.ThreatScore,
			snap.UptimeHours,
			snap.NetworkUpMbps,
			snap.NetworkDownMbps,
			nullString(snap.EncryptedRaw),
			snap.RawData,
		).Scan(&out.TelemetryID)
		if err != nil {
			return fmt.Errorf("failed to insert telemetry: %w", err)
		}

		// Inserted one at a time so ids follow candidate order.
		out.Alerts = make([]models.Alert, 0, len(cands))
		for _, c := range cands {
			a := models.NewAlert(snap.MachineID, c, snap.CapturedAt)
			err := tx.QueryRow(ctx, `
			INSERT INTO alerts (machine_id, timestamp, severity, category, message, value, threshold)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
				a.MachineID, a.Timestamp, a.Severity, a.Category, a.Message, a.Value, a.Threshold,
			).Scan(&a.ID)
			if err != nil {
				return fmt.Errorf("failed to insert %s alert: %w", c.Category, err)
			}
			out.Alerts = append(out.Alerts, a)
		}
		return nil
	})
	if err != nil {
		return models.Submission{}, err
	}
	return out, nil
}

func (d *DB) LatestTelemetry(ctx context.Context, machineID string) (*models.TelemetrySnapshot, error) {
	return latestTelemetry(ctx, d.Pool, machineID)
}

func latestTelemetry(ctx context.Context, q querier, machineID string) (*models.TelemetrySnapshot, error) {
	row := q.QueryRow(ctx, `SELECT `+telemetryColumns+` FROM health_data
	WHERE machine_id = $1 ORDER BY timestamp DESC, id DESC LIMIT 1`, machineID)
	s, err := scanTelemetry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest telemetry: %w", err)
	}
	return &s, nil
}

func (d *DB) TelemetryHistory(ctx context.Context, machineID string, since time.Time) ([]models.TelemetrySnapshot, error) {
	rows, err := d.Pool.Query(ctx, `SELECT `+telemetryColumns+` FROM health_data
	WHERE machine_id = $1 AND timestamp >= $2
	ORDER BY timestamp DESC, id DESC LIMIT $3`, machineID, since, HistoryRowLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get telemetry history: %w", err)
	}
	defer rows.Close()

	list := []models.TelemetrySnapshot{}
	for rows.Next() {
		s, err := scanTelemetry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telemetry: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanTelemetry(row pgx.Row) (models.TelemetrySnapshot, error) {
	var s models.TelemetrySnapshot
	var health, encrypted *string
	err := row.Scan(
		&s.ID,
		&s.MachineID,
		&s.CapturedAt,
		&s.CPUPercent,
		&s.MemoryPercent,
		&s.DiskPercent,
		&s.BatteryPercent,
		&s.BatteryCycleCount,
		&health,
		&s.ThreatScore,
		&s.UptimeHours,
		&s.NetworkUpMbps,
		&s.NetworkDownMbps,
		&encrypted,
		&s.RawData,
	)
	s.BatteryHealth = deref(health)
	s.EncryptedRaw = deref(encrypted)
	return s, err
}
