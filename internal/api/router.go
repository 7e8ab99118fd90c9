package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"health-service/internal/config"
	"health-service/internal/logging"
	"health-service/internal/metrics"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))
	r.Use(metrics.Middleware())

	r.GET("/health", h.ServiceHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := r.Group(cfg.API.BasePath)
	// Diagnostic agents upload without a key.
	base.POST("/diagnostics/upload", h.UploadDiagnostic)

	api := base.Group("", APIKeyMiddleware(cfg.API.Key))
	{
		// Devices
		api.POST("/devices/register", h.RegisterDevice)
		api.POST("/devices/health", h.SubmitHealth)
		api.GET("/devices", h.ListDevices)
		api.GET("/devices/:machine_id/history", h.DeviceHistory)

		// Alerts
		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts/resolve-all", h.ResolveAllAlerts)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)

		// Dashboard
		api.GET("/dashboard/overview", h.DashboardOverview)

		// Network
		api.POST("/network/submit", h.SubmitNetwork)
		api.GET("/network/history", h.NetworkHistory)

		// Diagnostics
		api.GET("/diagnostics", h.ListDiagnostics)
		api.GET("/diagnostics/device/:serial", h.DeviceDiagnostics)
		api.GET("/diagnostics/compare/:id1/:id2", h.CompareDiagnostics)
		api.GET("/diagnostics/:id", h.GetDiagnostic)

		// Live alerts
		api.GET("/ws/alerts", h.StreamAlerts)
	}
	return r
}
