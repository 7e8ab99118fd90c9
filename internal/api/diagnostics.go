package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"health-service/internal/db"
	"health-service/internal/models"
)

func (h *Handler) UploadDiagnostic(c *gin.Context) {
	var up models.DiagnosticUpload
	if err := c.ShouldBindJSON(&up); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	saved, err := h.diagnostics.Upload(c.Request.Context(), up)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":          "success",
		"id":              saved.ID,
		"serial":          saved.SerialNumber,
		"recommendations": saved.RecommendationCount,
		"message":         fmt.Sprintf("Diagnostic v%s (%s mode) stored successfully.", up.Version, up.Mode),
	})
}

func (h *Handler) DeviceDiagnostics(c *gin.Context) {
	limit, ok := queryInt(c, "limit", db.DefaultSerialLimit, 1, db.MaxSerialDiagLimit)
	if !ok {
		return
	}
	list, err := h.diagnostics.ForSerial(c.Request.Context(), c.Param("serial"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetDiagnostic(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.diagnostics.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDiagnostics(c *gin.Context) {
	limit, ok := queryInt(c, "limit", db.DefaultDiagLimit, 1, db.MaxDiagLimit)
	if !ok {
		return
	}
	list, err := h.diagnostics.List(c.Request.Context(), c.Query("client_id"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Diagnostic{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CompareDiagnostics(c *gin.Context) {
	id1, ok := paramID(c, "id1")
	if !ok {
		return
	}
	id2, ok := paramID(c, "id2")
	if !ok {
		return
	}
	cmp, err := h.diagnostics.Compare(c.Request.Context(), id1, id2)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}
