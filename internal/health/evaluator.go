package health

import (
	"fmt"
	"strconv"
	"strings"

	"health-service/internal/models"
)

// MaxMachineIDLen matches the width of the machine_id column.
const MaxMachineIDLen = 128

// CheckMachineID rejects identifiers that cannot name a device.
func CheckMachineID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: machine_id is required", ErrInvalidInput)
	}
	if len(id) > MaxMachineIDLen {
		return fmt.Errorf("%w: machine_id longer than %d bytes", ErrInvalidInput, MaxMachineIDLen)
	}
	return nil
}

// Evaluate classifies a snapshot against the thresholds. Each metric raises at
// most one candidate, critical checked before warning, and candidates are
// always ordered cpu, memory, disk, battery, security.
//
// The caller must reject an empty MachineID before calling Evaluate.
func Evaluate(s models.TelemetrySnapshot, t Thresholds) []models.AlertCandidate {
	var out []models.AlertCandidate

	if c, ok := upperBound(models.CategoryCPU, s.CPUPercent, t.CPUCritical, t.CPUWarning,
		"CPU at %s%%: sustained high usage", "CPU at %s%%: elevated usage"); ok {
		out = append(out, c)
	}
	if c, ok := upperBound(models.CategoryMemory, s.MemoryPercent, t.MemoryCritical, t.MemoryWarning,
		"Memory at %s%%: critical pressure", "Memory at %s%%: elevated usage"); ok {
		out = append(out, c)
	}
	if c, ok := upperBound(models.CategoryDisk, s.DiskPercent, t.DiskCritical, t.DiskWarning,
		"Disk at %s%%: critically full", "Disk at %s%%: running low"); ok {
		out = append(out, c)
	}

	if s.BatteryPercent != nil && *s.BatteryPercent <= t.BatteryCritical {
		bat := *s.BatteryPercent
		out = append(out, models.AlertCandidate{
			Severity:  models.SeverityCritical,
			Category:  models.CategoryBattery,
			Message:   fmt.Sprintf("Battery at %s%%: critically low", formatValue(bat)),
			Value:     bat,
			Threshold: t.BatteryCritical,
		})
	}

	if s.ThreatScore >= t.ThreatCritical {
		out = append(out, models.AlertCandidate{
			Severity:  models.SeverityCritical,
			Category:  models.CategorySecurity,
			Message:   fmt.Sprintf("Threat score %d/10: security review required", s.ThreatScore),
			Value:     float64(s.ThreatScore),
			Threshold: float64(t.ThreatCritical),
		})
	}

	return out
}

func upperBound(cat models.Category, v, critical, warning float64, critMsg, warnMsg string) (models.AlertCandidate, bool) {
	switch {
	case v >= critical:
		return models.AlertCandidate{
			Severity:  models.SeverityCritical,
			Category:  cat,
			Message:   fmt.Sprintf(critMsg, formatValue(v)),
			Value:     v,
			Threshold: critical,
		}, true
	case v >= warning:
		return models.AlertCandidate{
			Severity:  models.SeverityWarning,
			Category:  cat,
			Message:   fmt.Sprintf(warnMsg, formatValue(v)),
			Value:     v,
			Threshold: warning,
		}, true
	}
	return models.AlertCandidate{}, false
}

// formatValue prints the shortest decimal that round-trips, so 89.99 never reads as 90.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
