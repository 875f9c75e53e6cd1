package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"supply-daddy-api-server/internal/checkpoint"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// Submitter records checkpoints. Implemented by *checkpoint.Engine.
type Submitter interface {
	Submit(ctx context.Context, req checkpoint.SubmitRequest) (*checkpoint.Result, error)
}

type CheckpointHandler struct {
	Engine Submitter
}

type SubmitCheckpointRequest struct {
	ShipmentID   string     `json:"shipment_id" binding:"required"`
	LocationCode string     `json:"location_code" binding:"required"`
	Temperature  *float64   `json:"temperature"`
	Humidity     *float64   `json:"humidity"`
	WeightKg     float64    `json:"weight_kg"`
	Timestamp    *time.Time `json:"timestamp"`
}

func (r SubmitCheckpointRequest) toSubmit(scannedBy string) checkpoint.SubmitRequest {
	return checkpoint.SubmitRequest{
		ShipmentID:   strings.TrimSpace(r.ShipmentID),
		LocationCode: strings.ToUpper(strings.TrimSpace(r.LocationCode)),
		Telemetry: models.Telemetry{
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			WeightKg:    r.WeightKg,
		},
		ScannedBy: scannedBy,
		Timestamp: r.Timestamp,
	}
}

// SubmitCheckpoint records a scan by a transit node operator.
func (h *CheckpointHandler) SubmitCheckpoint(c *gin.Context) {
	var req SubmitCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	caller := callerOf(c)
	submit := req.toSubmit(caller.UserID)
	if !caller.CanScan(submit.LocationCode) {
		respondError(c, fmt.Errorf("%s may not scan at %s: %w", caller.UserID, submit.LocationCode, sentinel.ErrForbidden))
		return
	}
	writeSubmitResult(c, h.Engine.Submit, submit)
}

type submitFunc func(ctx context.Context, req checkpoint.SubmitRequest) (*checkpoint.Result, error)

func writeSubmitResult(c *gin.Context, submit submitFunc, req checkpoint.SubmitRequest) {
	res, err := submit(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case res != nil && errors.Is(err, sentinel.ErrPersistFailed):
		// The ledger entry exists; the shipment catches up on the next scan.
		c.JSON(http.StatusAccepted, gin.H{"result": res, "warning": err.Error()})
	default:
		respondError(c, err)
	}
}
