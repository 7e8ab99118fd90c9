package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"health-service/internal/models"
)

const alertColumns = `id, machine_id, timestamp, severity, category, message, value, threshold, resolved, resolved_at`

// ListAlerts returns matching alerts newest first, creation order breaking timestamp ties.
func (d *DB) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
	WHERE ($1 = '' OR machine_id = $1)
		AND ($2 = '' OR severity = $2)
		AND (NOT $3 OR NOT resolved)
	ORDER BY timestamp DESC, id DESC
	LIMIT $4`

	rows, err := d.Pool.Query(ctx, query,
		f.MachineID,
		string(f.Severity),
		f.UnresolvedOnly,
		ClampLimit(f.Limit, DefaultAlertLimit, MaxAlertLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	list := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (d *DB) CountOpenAlerts(ctx context.Context, machineID string) (int, error) {
	var n int
	err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE machine_id = $1 AND NOT resolved`, machineID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// ResolveAlert marks one alert resolved. Resolving an already resolved alert
// leaves its original resolved_at untouched.
func (d *DB) ResolveAlert(ctx context.Context, id int64, at time.Time) (models.Alert, error) {
	row := d.Pool.QueryRow(ctx, `
	WITH upd AS (
		UPDATE alerts SET resolved = TRUE, resolved_at = $2
		WHERE id = $1 AND NOT resolved
		RETURNING `+alertColumns+`
	)
	SELECT `+alertColumns+` FROM upd
	UNION ALL
	SELECT `+alertColumns+` FROM alerts WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM upd)`, id, at)
	a, err := scanAlert(row)
	if err != nil {
		return models.Alert{}, notFound(err, fmt.Sprintf("alert %d", id))
	}
	return a, nil
}

// ResolveAllForDevice resolves every open alert of a device with one shared
// resolved_at and returns how many changed.
func (d *DB) ResolveAllForDevice(ctx context.Context, machineID string, at time.Time) (int, error) {
	var n int64
	err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		if err := lockDevice(ctx, tx, machineID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE alerts SET resolved = TRUE, resolved_at = $2
		WHERE machine_id = $1 AND NOT resolved`, machineID, at)
		if err != nil {
			return fmt.Errorf("failed to resolve alerts: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return int(n), err
}

// FleetState reads the fleet inside one repeatable-read transaction so every
// device's latest snapshot and open alert count share a snapshot of the data.
func (d *DB) FleetState(ctx context.Context, f models.DeviceFilter) (models.FleetState, error) {
	state := models.FleetState{OpenBySeverity: make(map[models.Severity]int)}
	txOpts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := pgx.BeginTxFunc(ctx, d.Pool, txOpts, func(tx pgx.Tx) error {
		devices, err := listDevices(ctx, tx, f)
		if err != nil {
			return err
		}

		counts := make(map[string]int)
		rows, err := tx.Query(ctx, `
		SELECT a.machine_id, a.severity, COUNT(*)
		FROM alerts a JOIN devices d ON d.machine_id = a.machine_id
		WHERE NOT a.resolved AND ($1 = '' OR d.client_id = $1) AND (NOT $2 OR d.is_active)
		GROUP BY a.machine_id, a.severity`, f.ClientID, f.ActiveOnly)
		if err != nil {
			return fmt.Errorf("failed to count open alerts: %w", err)
		}
		for rows.Next() {
			var machineID string
			var sev models.Severity
			var n int
			if err := rows.Scan(&machineID, &sev, &n); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan alert count: %w", err)
			}
			counts[machineID] += n
			state.OpenBySeverity[sev] += n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		state.Devices = make([]models.DeviceState, 0, len(devices))
		for _, dev := range devices {
			latest, err := latestTelemetry(ctx, tx, dev.MachineID)
			if err != nil {
				return err
			}
			state.Devices = append(state.Devices, models.DeviceState{
				Device:     dev,
				Latest:     latest,
				OpenAlerts: counts[dev.MachineID],
			})
		}
		return nil
	})
	if err != nil {
		return models.FleetState{}, fmt.Errorf("failed to read fleet state: %w", err)
	}
	return state, nil
}

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID,
		&a.MachineID,
		&a.Timestamp,
		&a.Severity,
		&a.Category,
		&a.Message,
		&a.Value,
		&a.Threshold,
		&a.Resolved,
		&a.ResolvedAt,
	)
	return a, err
}
