// Package ledger is the append-only, hash-chained checkpoint log. Entries are
// never updated or deleted; the per-shipment index order is the audit order.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// Receipt identifies a committed entry.
type Receipt struct {
	Index     int    `json:"index"`
	AnchorRef string `json:"anchor_ref"`
}

// Ledger is implemented by Memory, Mongo and blockchain.FabricLedger.
// Appends for one shipment are serialized; different shipments are independent.
type Ledger interface {
	Append(ctx context.Context, cp models.Checkpoint) (Receipt, error)
	Get(ctx context.Context, shipmentID string, index int) (models.Checkpoint, error)
	Count(ctx context.Context, shipmentID string) (int, error)
	// Range returns entries with from <= index < to, in index order.
	Range(ctx context.Context, shipmentID string, from, to int) ([]models.Checkpoint, error)
}

// EntryHash is the chain hash of cp. Index, PreviousHash and every
// content field are covered; EntryHash and AnchorRef are not.
func EntryHash(cp models.Checkpoint) string {
	payload := cp.ShipmentID + "|" +
		strconv.Itoa(cp.Index) + "|" +
		cp.LocationCode + "|" +
		cp.Timestamp.UTC().Format(time.RFC3339Nano) + "|" +
		strconv.FormatFloat(cp.WeightKg, 'f', -1, 64) + "|" +
		cp.DocumentHash + "|" +
		cp.AnchoredHash + "|" +
		cp.ScannedBy + "|" +
		cp.PreviousHash
	return hashing.HashString(payload).String()
}

// Seal fills the chain fields of cp for position index after prev.
func Seal(cp models.Checkpoint, index int, prevHash string) models.Checkpoint {
	cp.Timestamp = cp.Timestamp.UTC().Truncate(time.Millisecond)
	cp.Index = index
	cp.PreviousHash = prevHash
	cp.EntryHash = EntryHash(cp)
	cp.AnchorRef = "0x" + cp.EntryHash
	return cp
}

// ChainError reports the first broken link found by VerifyChain.
type ChainError struct {
	Index  int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger chain broken at index %d: %s", e.Index, e.Reason)
}

// VerifyChain checks that entries are contiguous from 0 and that every entry
// hash and previous-hash link recomputes. Entries without an EntryHash (as
// returned by an external anchor that does not chain) are only checked for
// contiguity.
func VerifyChain(entries []models.Checkpoint) error {
	prev := ""
	for i, cp := range entries {
		if cp.Index != i {
			return &ChainError{Index: i, Reason: fmt.Sprintf("unexpected index %d", cp.Index)}
		}
		if cp.EntryHash == "" {
			continue
		}
		if cp.PreviousHash != prev {
			return &ChainError{Index: i, Reason: "previous hash does not link"}
		}
		if got := EntryHash(cp); got != cp.EntryHash {
			return &ChainError{Index: i, Reason: "entry hash does not recompute"}
		}
		prev = cp.EntryHash
	}
	return nil
}

func validate(cp models.Checkpoint) error {
	if cp.ShipmentID == "" || cp.LocationCode == "" {
		return fmt.Errorf("checkpoint needs shipment id and location: %w", sentinel.ErrValidation)
	}
	return nil
}

func checkRange(from, to int) error {
	if from < 0 || to < from {
		return fmt.Errorf("invalid range [%d,%d): %w", from, to, sentinel.ErrValidation)
	}
	return nil
}
