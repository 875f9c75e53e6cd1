package checkpoint

import (
	"time"

	"supply-daddy-api-server/internal/models"
)

// Outcome labels what a submission did, for UI and metrics.
type Outcome string

const (
	OutcomeTransferred     Outcome = "transferred"
	OutcomeAnomalyDetected Outcome = "anomaly_detected"
	OutcomeTamperDetected  Outcome = "tamper_detected"
	OutcomeDelivered       Outcome = "delivered"
)

type SubmitRequest struct {
	ShipmentID   string
	LocationCode string
	Telemetry    models.Telemetry
	ScannedBy    string
	// Timestamp overrides the arrival time; nil means now.
	Timestamp *time.Time
}

type Result struct {
	ShipmentID       string                  `json:"shipment_id"`
	LocationCode     string                  `json:"location_code"`
	NodeIndex        int                     `json:"node_index"`
	Status           models.ShipmentStatus   `json:"status"`
	Outcome          Outcome                 `json:"outcome"`
	AnomalyFlag      bool                    `json:"anomaly_flag"`
	IsFinal          bool                    `json:"is_final"`
	Checkpoint       models.Checkpoint       `json:"checkpoint"`
	HashVerification models.HashVerification `json:"hash_verification"`
	Anomalies        []models.Anomaly        `json:"anomalies"`
	DelaySeconds     float64                 `json:"delay_seconds"`

	Shipment *models.Shipment `json:"-"`
}
