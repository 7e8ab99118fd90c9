package models

import (
	"fmt"
	"time"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank returns 0 for the most urgent severity. Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// AtLeast reports whether s is as urgent as, or more urgent than, min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() <= min.Rank()
}

// ParseSeverity accepts the lowercase severity names.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if s.Rank() > SeverityInfo.Rank() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// Category names the metric family an alert concerns.
type Category string

const (
	CategoryCPU      Category = "cpu"
	CategoryMemory   Category = "memory"
	CategoryDisk     Category = "disk"
	CategoryBattery  Category = "battery"
	CategorySecurity Category = "security"
)

// AlertCandidate is an alert the evaluator wants raised, before storage assigns an id.
type AlertCandidate struct {
	Severity  Severity `json:"severity"`
	Category  Category `json:"category"`
	Message   string   `json:"message"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
}

// Alert is a persisted alert. Only Resolved and ResolvedAt change after creation.
type Alert struct {
	ID         int64      `json:"id"`
	MachineID  string     `json:"machine_id"`
	Severity   Severity   `json:"severity"`
	Category   Category   `json:"category"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewAlert builds the record to persist for a candidate raised at ts.
func NewAlert(machineID string, c AlertCandidate, ts time.Time) Alert {
	return Alert{
		MachineID: machineID,
		Severity:  c.Severity,
		Category:  c.Category,
		Message:   c.Message,
		Value:     c.Value,
		Threshold: c.Threshold,
		Timestamp: ts,
	}
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	MachineID      string
	Severity       Severity
	UnresolvedOnly bool
	Limit          int
}
