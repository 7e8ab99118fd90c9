package health

import (
	"time"

	"health-service/internal/models"
)

// DeriveStatus rolls a device up to one dashboard label.
//
// Contact recency gates everything: a device not heard from within
// staleCutoff is offline whatever its last metrics said. Otherwise the latest
// snapshot (however old) escalates to critical on cpu, disk or threat, then to
// warning on cpu or disk. Battery and memory do not take part in the rollup.
func DeriveStatus(lastContact *time.Time, now time.Time, staleCutoff time.Duration,
	latest *models.TelemetrySnapshot, t Thresholds) models.DeviceStatus {
	if lastContact == nil || now.Sub(*lastContact) > staleCutoff {
		return models.StatusOffline
	}
	if latest == nil {
		return models.StatusHealthy
	}

	switch {
	case latest.CPUPercent >= t.CPUCritical,
		latest.DiskPercent >= t.DiskCritical,
		latest.ThreatScore >= t.ThreatCritical:
		return models.StatusCritical
	case latest.CPUPercent >= t.CPUWarning,
		latest.DiskPercent >= t.DiskWarning:
		return models.StatusWarning
	}
	return models.StatusHealthy
}
