package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"health-service/internal/models"
)

const deviceColumns = `id, machine_id, client_id, hostname, device_type, model_identifier,
	serial_number, os_version, agent_version, last_seen, registered_at, is_active, metadata`

// UpsertDevice registers a device or updates the non-empty fields of an existing one.
func (d *DB) UpsertDevice(ctx context.Context, reg models.DeviceRegister, at time.Time) (models.Device, error) {
	deviceType := reg.DeviceType
	if deviceType == "" {
		deviceType = models.DeviceOther
	}
	query := `
	INSERT INTO devices (
		machine_id, client_id, hostname, device_type, model_identifier,
		serial_number, os_version, agent_version, last_seen, registered_at, is_active, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, TRUE, $10)
	ON CONFLICT (machine_id) DO UPDATE SET
		client_id = COALESCE(EXCLUDED.client_id, devices.client_id),
		hostname = COALESCE(EXCLUDED.hostname, devices.hostname),
		device_type = CASE WHEN $11 THEN EXCLUDED.device_type ELSE devices.device_type END,
		model_identifier = COALESCE(EXCLUDED.model_identifier, devices.model_identifier),
		serial_number = COALESCE(EXCLUDED.serial_number, devices.serial_number),
		os_version = COALESCE(EXCLUDED.os_version, devices.os_version),
		agent_version = COALESCE(EXCLUDED.agent_version, devices.agent_version),
		last_seen = EXCLUDED.last_seen,
		is_active = TRUE
	RETURNING ` + deviceColumns

	row := d.Pool.QueryRow(ctx, query,
		reg.MachineID,
		nullString(reg.ClientID),
		nullString(reg.Hostname),
		deviceType,
		nullString(reg.ModelIdentifier),
		nullString(reg.SerialNumber),
		nullString(reg.OSVersion),
		nullString(reg.AgentVersion),
		at,
		reg.Metadata,
		reg.DeviceType != "",
	)
	dev, err := scanDevice(row)
	if err != nil {
		return models.Device{}, fmt.Errorf("failed to upsert device: %w", err)
	}
	return dev, nil
}

func (d *DB) GetDevice(ctx context.Context, machineID string) (models.Device, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE machine_id = $1`, machineID)
	dev, err := scanDevice(row)
	if err != nil {
		return models.Device{}, notFound(err, "device "+machineID)
	}
	return dev, nil
}

func (d *DB) ListDevices(ctx context.Context, f models.DeviceFilter) ([]models.Device, error) {
	return listDevices(ctx, d.Pool, f)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listDevices(ctx context.Context, q querier, f models.DeviceFilter) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE ($1 = '' OR client_id = $1) AND (NOT $2 OR is_active)
	ORDER BY last_seen DESC NULLS LAST, id`
	rows, err := q.Query(ctx, query, f.ClientID, f.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	list := []models.Device{}
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		list = append(list, dev)
	}
	return list, rows.Err()
}

func scanDevice(row pgx.Row) (models.Device, error) {
	var dev models.Device
	var clientID, hostname, model, serial, osVersion, agent *string
	err := row.Scan(
		&dev.ID,
		&dev.MachineID,
		&clientID,
		&hostname,
		&dev.DeviceType,
		&model,
		&serial,
		&osVersion,
		&agent,
		&dev.LastSeen,
		&dev.RegisteredAt,
		&dev.IsActive,
		&dev.Metadata,
	)
	if err != nil {
		return models.Device{}, err
	}
	dev.ClientID = deref(clientID)
	dev.Hostname = deref(hostname)
	dev.ModelIdentifier = deref(model)
	dev.SerialNumber = deref(serial)
	dev.OSVersion = deref(osVersion)
	dev.AgentVersion = deref(agent)
	return dev, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
