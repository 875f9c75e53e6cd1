package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supply-daddy-api-server/internal/admin"
	"supply-daddy-api-server/internal/scheduler"
)

// AdminHandler exposes the God Mode demo controls. Every route is admin only.
type AdminHandler struct {
	Admin *admin.Service
}

type InjectDelayRequest struct {
	ShipmentID string  `json:"shipment_id" binding:"required"`
	NodeIndex  int     `json:"node_index"`
	DelayHours float64 `json:"delay_hours" binding:"required"`
}

type OverrideTelemetryRequest struct {
	ShipmentID  string   `json:"shipment_id" binding:"required"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	WeightKg    *float64 `json:"weight_kg"`
}

func (h *AdminHandler) Tamper(c *gin.Context) {
	var req admin.TamperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Admin.Tamper(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) InjectDelay(c *gin.Context) {
	var req InjectDelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Admin.InjectDelay(c.Request.Context(), strings.TrimSpace(req.ShipmentID), req.NodeIndex, req.DelayHours)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) OverrideTelemetry(c *gin.Context) {
	var req OverrideTelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o := scheduler.Override{Temperature: req.Temperature, Humidity: req.Humidity, WeightKg: req.WeightKg}
	if err := h.Admin.OverrideTelemetry(c.Request.Context(), strings.TrimSpace(req.ShipmentID), o); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":      "queued",
		"message":     "Override applies to the next simulated scan of this shipment",
		"shipment_id": req.ShipmentID,
		"override":    o,
	})
}

// ManualCheckpoint records a scan on behalf of any node.
func (h *AdminHandler) ManualCheckpoint(c *gin.Context) {
	var req SubmitCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	writeSubmitResult(c, h.Admin.ManualCheckpoint, req.toSubmit("god-mode:"+callerOf(c).UserID))
}

func (h *AdminHandler) PauseSimulation(c *gin.Context) {
	h.simulation(c, h.Admin.PauseSimulation)
}

func (h *AdminHandler) ResumeSimulation(c *gin.Context) {
	h.simulation(c, h.Admin.ResumeSimulation)
}

func (h *AdminHandler) SimulationStatus(c *gin.Context) {
	h.simulation(c, h.Admin.SimulationStatus)
}

func (h *AdminHandler) simulation(c *gin.Context, fn func() (scheduler.Status, error)) {
	status, err := fn()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
