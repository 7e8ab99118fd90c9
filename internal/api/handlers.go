package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"health-service/internal/db"
	"health-service/internal/models"
)

// historyPoint is the compact shape returned by the history endpoints.
type historyPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	CPU         float64   `json:"cpu"`
	Memory      float64   `json:"memory"`
	Disk        float64   `json:"disk"`
	Battery     *float64  `json:"battery"`
	Threat      int       `json:"threat"`
	UptimeHours *float64  `json:"uptime_hours"`
}

type networkPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	Clients      *int      `json:"clients"`
	Devices      *int      `json:"devices"`
	WANStatus    string    `json:"wan_status"`
	WANLatencyMs *float64  `json:"wan_latency_ms"`
}

func (h *Handler) ServiceHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status, database := "healthy", "connected"
	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithRequest(requestID(c)).Warnf("Storage ping failed: %v", err)
		status, database = "degraded", "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"service":     "health-service",
		"database":    database,
		"subscribers": h.hub.Subscribers(),
	})
}

func (h *Handler) RegisterDevice(c *gin.Context) {
	var reg models.DeviceRegister
	if err := c.ShouldBindJSON(&reg); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	device, err := h.ingestor.RegisterDevice(c.Request.Context(), reg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *Handler) SubmitHealth(c *gin.Context) {
	var sub models.HealthSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	res, err := h.ingestor.Submit(c.Request.Context(), sub, "http")
	if err != nil {
		h.respondError(c, err)
		return
	}
	alerts := res.Alerts
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"id":               res.TelemetryID,
		"alerts_generated": len(alerts),
		"alerts":           alerts,
	})
}

func (h *Handler) ListDevices(c *gin.Context) {
	activeOnly, ok := queryBool(c, "active_only", true)
	if !ok {
		return
	}
	devices, err := h.store.ListDevices(c.Request.Context(), models.DeviceFilter{
		ClientID:   c.Query("client_id"),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) DeviceHistory(c *gin.Context) {
	hours, ok := queryInt(c, "hours", db.DefaultHistoryHours, 1, db.MaxHistoryHours)
	if !ok {
		return
	}
	since := h.now().Add(-time.Duration(hours) * time.Hour)
	records, err := h.store.TelemetryHistory(c.Request.Context(), c.Param("machine_id"), since)
	if err != nil {
		h.respondError(c, err)
		return
	}
	points := make([]historyPoint, 0, len(records))
	for _, r := range records {
		points = append(points, historyPoint{
			Timestamp:   r.CapturedAt,
			CPU:         r.CPUPercent,
			Memory:      r.MemoryPercent,
			Disk:        r.DiskPercent,
			Battery:     r.BatteryPercent,
			Threat:      r.ThreatScore,
			UptimeHours: r.UptimeHours,
		})
	}
	c.JSON(http.StatusOK, points)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	unresolved, ok := queryBool(c, "unresolved_only", true)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", db.DefaultAlertLimit, 1, db.MaxAlertLimit)
	if !ok {
		return
	}
	var severity models.Severity
	if v := c.Query("severity"); v != "" {
		s, err := models.ParseSeverity(v)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		severity = s
	}
	alerts, err := h.store.ListAlerts(c.Request.Context(), models.AlertFilter{
		MachineID:      c.Query("machine_id"),
		Severity:       severity,
		UnresolvedOnly: unresolved,
		Limit:          limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	alert, err := h.store.ResolveAlert(c.Request.Context(), id, h.now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithRequest(requestID(c)).Infof("Resolved alert %d", id)
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "id": alert.ID, "resolved_at": alert.ResolvedAt})
}

func (h *Handler) ResolveAllAlerts(c *gin.Context) {
	machineID := c.Query("machine_id")
	if machineID == "" {
		badRequest(c, "machine_id is required")
		return
	}
	count, err := h.store.ResolveAllForDevice(c.Request.Context(), machineID, h.now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithRequest(requestID(c)).WithField("machine_id", machineID).Infof("Resolved %d alerts", count)
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "count": count})
}

func (h *Handler) DashboardOverview(c *gin.Context) {
	overview, err := h.dashboard.Overview(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if overview.Devices == nil {
		overview.Devices = []models.DeviceHealthSummary{}
	}
	c.JSON(http.StatusOK, overview)
}

func (h *Handler) SubmitNetwork(c *gin.Context) {
	var n models.NetworkSnapshot
	if err := c.ShouldBindJSON(&n); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	saved, err := h.ingestor.SubmitNetwork(c.Request.Context(), n)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "id": saved.ID})
}

func (h *Handler) NetworkHistory(c *gin.Context) {
	controllerID := c.Query("controller_id")
	if controllerID == "" {
		badRequest(c, "controller_id is required")
		return
	}
	hours, ok := queryInt(c, "hours", db.DefaultHistoryHours, 1, db.MaxHistoryHours)
	if !ok {
		return
	}
	since := h.now().Add(-time.Duration(hours) * time.Hour)
	records, err := h.store.NetworkHistory(c.Request.Context(), controllerID, since)
	if err != nil {
		h.respondError(c, err)
		return
	}
	points := make([]networkPoint, 0, len(records))
	for _, r := range records {
		points = append(points, networkPoint{
			Timestamp:    r.Timestamp,
			Clients:      r.TotalClients,
			Devices:      r.TotalDevices,
			WANStatus:    r.WANStatus,
			WANLatencyMs: r.WANLatencyMs,
		})
	}
	c.JSON(http.StatusOK, points)
}
