// Package audit cross-checks a shipment's ledger history against the anchors
// and route recorded on the shipment itself.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supply-daddy-api-server/internal/database"
	"supply-daddy-api-server/internal/hashing"
	"supply-daddy-api-server/internal/ledger"
	"supply-daddy-api-server/internal/models"
)

type FindingType string

const (
	FindingChainBroken   FindingType = "chain_broken"
	FindingHashMismatch  FindingType = FindingType(models.AnomalyHashMismatch)
	FindingMissingAnchor FindingType = "missing_anchor"
	FindingRouteMismatch FindingType = "route_mismatch"
	FindingUnreconciled  FindingType = "unreconciled"
	FindingPendingTamper FindingType = "documents_changed"
)

type Finding struct {
	Type   FindingType `json:"type"`
	Index  int         `json:"index"`
	Detail string      `json:"detail"`
}

type Report struct {
	ShipmentID string    `json:"shipment_id"`
	Entries    int       `json:"entries"`
	ChainValid bool      `json:"chain_valid"`
	Valid      bool      `json:"valid"`
	Findings   []Finding `json:"findings"`
	CheckedAt  time.Time `json:"checked_at"`
}

type Auditor struct {
	shipments database.ShipmentRepository
	ledger    ledger.Ledger
	now       func() time.Time
}

func NewAuditor(shipments database.ShipmentRepository, l ledger.Ledger) *Auditor {
	return &Auditor{shipments: shipments, ledger: l, now: func() time.Time { return time.Now().UTC() }}
}

// Verify reads the full ledger history of a shipment and reports every
// inconsistency it finds. A shipment with no findings is Valid.
func (a *Auditor) Verify(ctx context.Context, shipmentID string) (*Report, error) {
	sh, err := a.shipments.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	count, err := a.ledger.Count(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	entries, err := a.ledger.Range(ctx, shipmentID, 0, count)
	if err != nil {
		return nil, fmt.Errorf("read ledger entries: %w", err)
	}

	r := &Report{ShipmentID: shipmentID, Entries: len(entries), ChainValid: true, Findings: []Finding{}, CheckedAt: a.now()}

	var chainErr *ledger.ChainError
	if err := ledger.VerifyChain(entries); errors.As(err, &chainErr) {
		r.ChainValid = false
		r.add(FindingChainBroken, chainErr.Index, chainErr.Reason)
	}

	for i, cp := range entries {
		switch {
		case i >= len(sh.BlockchainTxHashes):
			r.add(FindingMissingAnchor, i, "ledger entry has no anchor on the shipment")
		case sh.BlockchainTxHashes[i] != cp.AnchorRef:
			r.add(FindingHashMismatch, i, fmt.Sprintf("shipment anchor %s, ledger anchor %s", sh.BlockchainTxHashes[i], cp.AnchorRef))
		}
		if i < len(sh.Route) && sh.Route[i].LocationCode != cp.LocationCode {
			r.add(FindingRouteMismatch, i, fmt.Sprintf("route stop %s, ledger location %s", sh.Route[i].LocationCode, cp.LocationCode))
		}
	}
	for i := len(entries); i < len(sh.BlockchainTxHashes); i++ {
		r.add(FindingHashMismatch, i, "shipment anchor has no ledger entry")
	}
	if arrived := sh.ArrivedCount(); arrived != len(entries) {
		r.add(FindingUnreconciled, arrived, fmt.Sprintf("%d stops arrived, %d ledger entries", arrived, len(entries)))
	}

	// A change made after the last checkpoint is flagged here before any
	// checkpoint sees it.
	if hv := hashing.VerifyDocuments(hashing.Digest(sh.DocHash), sh.POText, sh.InvoiceText, sh.BOLText); hv.TamperDetected() {
		r.add(FindingPendingTamper, len(entries), "document text no longer matches the anchored hash")
	}

	r.Valid = len(r.Findings) == 0
	return r, nil
}

func (r *Report) add(t FindingType, index int, detail string) {
	r.Findings = append(r.Findings, Finding{Type: t, Index: index, Detail: detail})
}
