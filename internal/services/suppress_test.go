package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"health-service/internal/models"
)

func TestSuppressorDisabled(t *testing.T) {
	s := NewSuppressor(0)
	cands := []models.AlertCandidate{{Severity: models.SeverityCritical, Category: models.CategoryCPU}}
	s.Record([]models.Alert{{MachineID: "m", Severity: models.SeverityCritical, Category: models.CategoryCPU, Timestamp: now}})

	kept, dropped := s.Filter("m", cands, now)
	assert.Equal(t, cands, kept)
	assert.Zero(t, dropped)
}

func TestSuppressorKeysOnSeverityAndDevice(t *testing.T) {
	s := NewSuppressor(time.Hour)
	s.Record([]models.Alert{{MachineID: "m", Severity: models.SeverityWarning, Category: models.CategoryCPU, Timestamp: now}})

	cands := []models.AlertCandidate{
		{Severity: models.SeverityCritical, Category: models.CategoryCPU},
		{Severity: models.SeverityWarning, Category: models.CategoryCPU},
		{Severity: models.SeverityWarning, Category: models.CategoryDisk},
	}
	kept, dropped := s.Filter("m", cands, now.Add(time.Minute))
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []models.AlertCandidate{cands[0], cands[2]}, kept)

	kept, dropped = s.Filter("other", cands, now.Add(time.Minute))
	assert.Zero(t, dropped)
	assert.Len(t, kept, 3)
}

func TestSuppressorOnlyRecordsPersisted(t *testing.T) {
	s := NewSuppressor(time.Hour)
	cands := []models.AlertCandidate{{Severity: models.SeverityCritical, Category: models.CategoryCPU}}

	// Filtering alone leaves no trace.
	s.Filter("m", cands, now)
	kept, _ := s.Filter("m", cands, now)
	assert.Len(t, kept, 1)
}

func TestNilSuppressorPassesThrough(t *testing.T) {
	var s *Suppressor
	cands := []models.AlertCandidate{{Severity: models.SeverityCritical, Category: models.CategoryCPU}}
	kept, dropped := s.Filter("m", cands, now)
	assert.Equal(t, cands, kept)
	assert.Zero(t, dropped)
	s.Record(nil)
}
