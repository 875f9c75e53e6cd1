package models

import "time"

// Checkpoint is one immutable ledger entry. Index is the per-shipment audit
// sequence number assigned by the ledger at append time.
type Checkpoint struct {
	ShipmentID   string    `bson:"shipmentId" json:"shipment_id"`
	Index        int       `bson:"index" json:"index"`
	LocationCode string    `bson:"locationCode" json:"location_code"`
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
	WeightKg     float64   `bson:"weightKg" json:"weight_kg"`
	DocumentHash string    `bson:"documentHash" json:"document_hash"`
	// AnchoredHash is the digest DocumentHash was verified against. The two
	// differ when the documents changed since the previous stop.
	AnchoredHash string    `bson:"anchoredHash,omitempty" json:"anchored_hash,omitempty"`
	ScannedBy    string    `bson:"scannedBy" json:"scanned_by"`
	PreviousHash string    `bson:"previousHash,omitempty" json:"previous_hash,omitempty"`
	EntryHash    string    `bson:"entryHash,omitempty" json:"entry_hash,omitempty"`
	AnchorRef    string    `bson:"anchorRef" json:"anchor_ref"`
}
