// server/internal/models/anomaly.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AnomalyType string

const (
	AnomalyTemperatureBreach AnomalyType = "TEMPERATURE_BREACH"
	AnomalyHumidityBreach    AnomalyType = "HUMIDITY_BREACH"
	AnomalyWeightDeviation   AnomalyType = "WEIGHT_DEVIATION"
	AnomalyDelay             AnomalyType = "DELAY"
	AnomalyDocumentTampered  AnomalyType = "document_tampered"
	AnomalyHashMismatch      AnomalyType = "hash_mismatch"
)

// IsIntegrity is true for the document/hash anomaly types, which always sort first.
func (t AnomalyType) IsIntegrity() bool {
	return t == AnomalyDocumentTampered || t == AnomalyHashMismatch
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities, LOW=1 .. CRITICAL=4; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type Anomaly struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	AnomalyID    string             `bson:"anomalyId" json:"anomaly_id"`
	ShipmentID   string             `bson:"shipmentId" json:"shipment_id"`
	AnomalyType  AnomalyType        `bson:"anomalyType" json:"anomaly_type"`
	Severity     Severity           `bson:"severity" json:"severity"`
	Details      map[string]any     `bson:"details" json:"details"`
	LocationCode string             `bson:"locationCode" json:"location_code"`
	Resolved     bool               `bson:"resolved" json:"resolved"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
	// Narrative is an opaque, externally produced enrichment.
	Narrative string `bson:"narrative,omitempty" json:"narrative,omitempty"`
}

// AnomalyFilter selects anomalies from the feed. Nil fields match everything.
type AnomalyFilter struct {
	ShipmentIDs []string
	Resolved    *bool
}
