package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"health-service/internal/db"
	"health-service/internal/health"
	"health-service/internal/logging"
	"health-service/internal/services"
)

// Handler serves the device health REST API.
type Handler struct {
	store       db.Store
	ingestor    *services.Ingestor
	dashboard   *services.Dashboard
	diagnostics *services.Diagnostics
	hub         *services.AlertHub
	logger      *logging.Logger
	now         func() time.Time
}

func NewHandler(store db.Store, ingestor *services.Ingestor, dashboard *services.Dashboard,
	diagnostics *services.Diagnostics, hub *services.AlertHub, logger *logging.Logger) *Handler {
	return &Handler{
		store:       store,
		ingestor:    ingestor,
		dashboard:   dashboard,
		diagnostics: diagnostics,
		hub:         hub,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// respondError maps service errors to status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	log := h.logger.WithRequest(requestID(c))
	switch {
	case errors.Is(err, health.ErrInvalidInput):
		log.Warnf("Rejected %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// queryInt reads an optional integer query parameter within [min, max].
func queryInt(c *gin.Context, key string, def, min, max int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		badRequest(c, key+" must be an integer between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, key string, def bool) (bool, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		badRequest(c, key+" must be a boolean")
		return false, false
	}
	return b, true
}

func paramID(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+key)
		return 0, false
	}
	return id, true
}
