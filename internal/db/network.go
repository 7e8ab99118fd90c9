package db

import (
	"context"
	"fmt"
	"time"

	"health-service/internal/models"
)

func (d *DB) SaveNetwork(ctx context.Context, n models.NetworkSnapshot) (models.NetworkSnapshot, error) {
	err := d.Pool.QueryRow(ctx, `
	INSERT INTO network_data (controller_id, timestamp, total_clients, total_devices, wan_status, wan_latency_ms, raw_data)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`,
		n.ControllerID,
		n.Timestamp,
		n.TotalClients,
		n.TotalDevices,
		nullString(n.WANStatus),
		n.WANLatencyMs,
		n.RawData,
	).Scan(&n.ID)
	if err != nil {
		return models.NetworkSnapshot{}, fmt.Errorf("failed to insert network data: %w", err)
	}
	return n, nil
}

func (d *DB) NetworkHistory(ctx context.Context, controllerID string, since time.Time) ([]models.NetworkSnapshot, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, controller_id, timestamp, total_clients, total_devices, wan_status, wan_latency_ms, raw_data
	FROM network_data
	WHERE controller_id = $1 AND timestamp >= $2
	ORDER BY timestamp DESC, id DESC LIMIT $3`, controllerID, since, HistoryRowLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get network history: %w", err)
	}
	defer rows.Close()

	list := []models.NetworkSnapshot{}
	for rows.Next() {
		var n models.NetworkSnapshot
		var wan *string
		if err := rows.Scan(&n.ID, &n.ControllerID, &n.Timestamp, &n.TotalClients, &n.TotalDevices,
			&wan, &n.WANLatencyMs, &n.RawData); err != nil {
			return nil, fmt.Errorf("failed to scan network data: %w", err)
		}
		n.WANStatus = deref(wan)
		list = append(list, n)
	}
	return list, rows.Err()
}
