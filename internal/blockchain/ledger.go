package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"supply-daddy-api-server/internal/ledger"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// Chaincode function names of the checkpoint ledger contract.
const (
	fnAppend = "AppendCheckpoint"
	fnGet    = "GetCheckpoint"
	fnCount  = "GetCheckpointCount"
)

// Contract is the part of *gateway.Contract the ledger needs.
type Contract interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

// appendResult is what AppendCheckpoint returns.
type appendResult struct {
	Index int    `json:"index"`
	TxID  string `json:"txId"`
}

// record is a stored checkpoint as GetCheckpoint returns it.
type record struct {
	models.Checkpoint
	TxID string `json:"txId"`
}

// FabricLedger keeps the checkpoint chain on a Fabric channel. Entries are
// sealed locally so the chain verifies the same way as the other backends,
// and the anchor reference is the Fabric transaction id.
type FabricLedger struct {
	contract Contract
	locks    sync.Map // shipmentID -> *sync.Mutex
}

func NewFabricLedger(contract Contract) *FabricLedger {
	return &FabricLedger{contract: contract}
}

func (f *FabricLedger) lock(shipmentID string) *sync.Mutex {
	mu, _ := f.locks.LoadOrStore(shipmentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (f *FabricLedger) Append(ctx context.Context, cp models.Checkpoint) (ledger.Receipt, error) {
	if cp.ShipmentID == "" || cp.LocationCode == "" {
		return ledger.Receipt{}, fmt.Errorf("checkpoint needs shipment id and location: %w", sentinel.ErrValidation)
	}
	mu := f.lock(cp.ShipmentID)
	mu.Lock()
	defer mu.Unlock()

	index, err := f.Count(ctx, cp.ShipmentID)
	if err != nil {
		return ledger.Receipt{}, err
	}
	prev := ""
	if index > 0 {
		last, err := f.Get(ctx, cp.ShipmentID, index-1)
		if err != nil {
			return ledger.Receipt{}, err
		}
		prev = last.EntryHash
	}

	sealed := ledger.Seal(cp, index, prev)
	sealed.AnchorRef = ""
	payload, err := json.Marshal(sealed)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}

	out, err := f.contract.SubmitTransaction(fnAppend, string(payload))
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("submit %s for %s: %w", fnAppend, cp.ShipmentID, err)
	}
	var res appendResult
	if err := json.Unmarshal(out, &res); err != nil {
		return ledger.Receipt{}, fmt.Errorf("decode %s result: %w", fnAppend, err)
	}
	if res.Index != index {
		return ledger.Receipt{}, fmt.Errorf("chaincode stored %s at %d, expected %d: %w", cp.ShipmentID, res.Index, index, sentinel.ErrConflict)
	}
	return ledger.Receipt{Index: index, AnchorRef: res.TxID}, nil
}

func (f *FabricLedger) Get(ctx context.Context, shipmentID string, index int) (models.Checkpoint, error) {
	if index < 0 {
		return models.Checkpoint{}, fmt.Errorf("ledger entry %s/%d: %w", shipmentID, index, sentinel.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return models.Checkpoint{}, err
	}
	out, err := f.contract.EvaluateTransaction(fnGet, shipmentID, strconv.Itoa(index))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") || strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return models.Checkpoint{}, fmt.Errorf("ledger entry %s/%d: %w", shipmentID, index, sentinel.ErrNotFound)
		}
		return models.Checkpoint{}, fmt.Errorf("evaluate %s: %w", fnGet, err)
	}
	if len(out) == 0 {
		return models.Checkpoint{}, fmt.Errorf("ledger entry %s/%d: %w", shipmentID, index, sentinel.ErrNotFound)
	}
	var rec record
	if err := json.Unmarshal(out, &rec); err != nil {
		return models.Checkpoint{}, fmt.Errorf("decode checkpoint %s/%d: %w", shipmentID, index, err)
	}
	rec.Checkpoint.AnchorRef = rec.TxID
	return rec.Checkpoint, nil
}

func (f *FabricLedger) Count(ctx context.Context, shipmentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	out, err := f.contract.EvaluateTransaction(fnCount, shipmentID)
	if err != nil {
		return 0, fmt.Errorf("evaluate %s: %w", fnCount, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("decode %s result %q: %w", fnCount, out, err)
	}
	return n, nil
}

func (f *FabricLedger) Range(ctx context.Context, shipmentID string, from, to int) ([]models.Checkpoint, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("invalid range [%d,%d): %w", from, to, sentinel.ErrValidation)
	}
	count, err := f.Count(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if to > count {
		to = count
	}
	entries := []models.Checkpoint{}
	for i := from; i < to; i++ {
		cp, err := f.Get(ctx, shipmentID, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, cp)
	}
	return entries, nil
}
