// server/internal/models/shipment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ShipmentStatus string

const (
	StatusCreated   ShipmentStatus = "created"
	StatusInTransit ShipmentStatus = "in_transit"
	StatusDelivered ShipmentStatus = "delivered"
	// StatusAnomaly is only ever a display status, see Shipment.DisplayStatus.
	StatusAnomaly ShipmentStatus = "anomaly"
)

// RouteStop là một điểm dừng (đã lên kế hoạch hoặc đã đi qua) trong hành trình.
type RouteStop struct {
	LocationCode    string     `bson:"locationCode" json:"location_code"`
	Name            string     `bson:"name" json:"name"`
	ExpectedArrival *time.Time `bson:"expectedArrival,omitempty" json:"expected_arrival"`
	ActualArrival   *time.Time `bson:"actualArrival,omitempty" json:"actual_arrival"`
	ETA             *time.Time `bson:"eta,omitempty" json:"eta"`
}

// RiskProfile is the per-shipment baseline anomalies are judged against.
type RiskProfile struct {
	ProductCategory  string   `bson:"productCategory" json:"product_category"`
	BaselineWeightKg float64  `bson:"baselineWeightKg" json:"baseline_weight_kg"`
	RiskFlags        []string `bson:"riskFlags,omitempty" json:"risk_flags"`
}

type Shipment struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ShipmentID         string             `bson:"shipmentId" json:"shipment_id"`
	Origin             string             `bson:"origin" json:"origin"`
	Destination        string             `bson:"destination" json:"destination"`
	ManufacturerID     string             `bson:"manufacturerId" json:"manufacturer_id"`
	ReceiverID         string             `bson:"receiverId" json:"receiver_id"`
	Route              []RouteStop        `bson:"route" json:"route"`
	RiskProfile        RiskProfile        `bson:"riskProfile" json:"risk_profile"`
	CurrentStatus      ShipmentStatus     `bson:"currentStatus" json:"current_status"`
	AnomalyFlag        bool               `bson:"anomalyFlag" json:"anomaly_flag"`
	DocHash            string             `bson:"docHash" json:"doc_hash"`
	POText             string             `bson:"poText" json:"po_text"`
	InvoiceText        string             `bson:"invoiceText" json:"invoice_text"`
	BOLText            string             `bson:"bolText" json:"bol_text"`
	DocumentArchiveURL string             `bson:"documentArchiveUrl,omitempty" json:"document_archive_url,omitempty"`
	BlockchainTxHashes []string           `bson:"blockchainTxHashes" json:"blockchain_tx_hashes"`
	Version            int64              `bson:"version" json:"version"`
	CreatedAt          time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updated_at"`
}

// NextStopIndex returns the first stop without an actual arrival, or -1.
func (s *Shipment) NextStopIndex() int {
	for i := range s.Route {
		if s.Route[i].ActualArrival == nil {
			return i
		}
	}
	return -1
}

// ArrivedCount is the number of stops already checked in.
func (s *Shipment) ArrivedCount() int {
	n := 0
	for i := range s.Route {
		if s.Route[i].ActualArrival != nil {
			n++
		}
	}
	return n
}

// RouteIndex returns the position of locationCode in the route, or -1.
func (s *Shipment) RouteIndex(locationCode string) int {
	for i := range s.Route {
		if s.Route[i].LocationCode == locationCode {
			return i
		}
	}
	return -1
}

// OrderingValid reports whether no stop has arrived after an unvisited one.
func (s *Shipment) OrderingValid() bool {
	seenGap := false
	for i := range s.Route {
		if s.Route[i].ActualArrival == nil {
			seenGap = true
			continue
		}
		if seenGap {
			return false
		}
	}
	return true
}

// DisplayStatus folds the advisory anomaly flag into the status shown to users.
func (s *Shipment) DisplayStatus() ShipmentStatus {
	if s.AnomalyFlag && s.CurrentStatus != StatusDelivered {
		return StatusAnomaly
	}
	return s.CurrentStatus
}

// Clone returns a deep copy so callers can stage changes without touching
// the stored record.
func (s *Shipment) Clone() *Shipment {
	c := *s
	c.Route = make([]RouteStop, len(s.Route))
	for i, stop := range s.Route {
		c.Route[i] = RouteStop{
			LocationCode:    stop.LocationCode,
			Name:            stop.Name,
			ExpectedArrival: copyTime(stop.ExpectedArrival),
			ActualArrival:   copyTime(stop.ActualArrival),
			ETA:             copyTime(stop.ETA),
		}
	}
	c.RiskProfile.RiskFlags = append([]string(nil), s.RiskProfile.RiskFlags...)
	c.BlockchainTxHashes = append([]string{}, s.BlockchainTxHashes...)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
