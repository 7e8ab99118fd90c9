// Package health holds the threshold evaluator and the dashboard status
// aggregator. Both are pure functions over an immutable Thresholds value.
package health

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidInput is returned when a snapshot has no device identifier.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfiguration is returned at startup for unusable thresholds.
	ErrConfiguration = errors.New("configuration error")
)

// DefaultStaleAfter is how long a device may go without contact before it is offline.
const DefaultStaleAfter = 15 * time.Minute

// Thresholds are loaded once at startup and never mutated.
// CPU, memory and disk are upper bounds; battery is a lower bound.
type Thresholds struct {
	CPUCritical     float64 `yaml:"cpu_critical"`
	CPUWarning      float64 `yaml:"cpu_warning"`
	MemoryCritical  float64 `yaml:"memory_critical"`
	MemoryWarning   float64 `yaml:"memory_warning"`
	DiskCritical    float64 `yaml:"disk_critical"`
	DiskWarning     float64 `yaml:"disk_warning"`
	BatteryCritical float64 `yaml:"battery_critical"`
	ThreatCritical  int     `yaml:"threat_critical"`
}

// DefaultThresholds returns the stock alerting thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUCritical:     90,
		CPUWarning:      75,
		MemoryCritical:  90,
		MemoryWarning:   80,
		DiskCritical:    90,
		DiskWarning:     80,
		BatteryCritical: 20,
		ThreatCritical:  7,
	}
}

// Validate checks that every bound is finite and that every warning bound
// sits at or below its critical bound.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"cpu_critical": t.CPUCritical, "cpu_warning": t.CPUWarning,
		"memory_critical": t.MemoryCritical, "memory_warning": t.MemoryWarning,
		"disk_critical": t.DiskCritical, "disk_warning": t.DiskWarning,
		"battery_critical": t.BatteryCritical,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s threshold must be a finite number, got %v", ErrConfiguration, name, v)
		}
	}
	pairs := []struct {
		name              string
		warning, critical float64
	}{
		{"cpu", t.CPUWarning, t.CPUCritical},
		{"memory", t.MemoryWarning, t.MemoryCritical},
		{"disk", t.DiskWarning, t.DiskCritical},
	}
	for _, p := range pairs {
		if !(p.warning <= p.critical) {
			return fmt.Errorf("%w: %s warning threshold %v exceeds critical threshold %v",
				ErrConfiguration, p.name, p.warning, p.critical)
		}
	}
	return nil
}
