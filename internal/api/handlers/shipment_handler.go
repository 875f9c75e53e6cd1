package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"supply-daddy-api-server/internal/audit"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/shipment"
)

type ShipmentHandler struct {
	Shipments *shipment.Service
	Auditor   *audit.Auditor
}

func (h *ShipmentHandler) CreateShipment(c *gin.Context) {
	var req shipment.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sh, err := h.Shipments.Create(c.Request.Context(), callerOf(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sh)
}

func (h *ShipmentHandler) ListShipments(c *gin.Context) {
	list, err := h.Shipments.List(c.Request.Context(), callerOf(c), models.ShipmentStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ShipmentHandler) GetShipment(c *gin.Context) {
	sh, err := h.Shipments.Get(c.Request.Context(), callerOf(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

// UpdateDocuments is the legitimate document edit; it re-anchors the hash.
func (h *ShipmentHandler) UpdateDocuments(c *gin.Context) {
	var req shipment.DocumentsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sh, err := h.Shipments.UpdateDocuments(c.Request.Context(), callerOf(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

func (h *ShipmentHandler) GetLedger(c *gin.Context) {
	entries, err := h.Shipments.Ledger(c.Request.Context(), callerOf(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipment_id": c.Param("id"), "count": len(entries), "entries": entries})
}

func (h *ShipmentHandler) GetLedgerEntry(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, err)
		return
	}
	cp, err := h.Shipments.LedgerEntry(c.Request.Context(), callerOf(c), c.Param("id"), index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *ShipmentHandler) AuditShipment(c *gin.Context) {
	if _, err := h.Shipments.Get(c.Request.Context(), callerOf(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	report, err := h.Auditor.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListAnomalies serves /anomalies and /anomalies/:shipmentId. The resolved
// query parameter filters by resolution state.
func (h *ShipmentHandler) ListAnomalies(c *gin.Context) {
	var resolved *bool
	if raw := c.Query("resolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		resolved = &v
	}
	shipmentID := c.Param("shipmentId")
	if shipmentID == "" {
		shipmentID = c.Query("shipment_id")
	}
	list, err := h.Shipments.Anomalies(c.Request.Context(), callerOf(c), shipmentID, resolved)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
