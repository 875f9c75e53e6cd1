package ledger

import (
	"context"
	"fmt"
	"sync"

	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

type chain struct {
	mu      sync.RWMutex
	entries []models.Checkpoint
}

// Memory is an in-process ledger. Used for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	chains map[string]*chain
}

func NewMemory() *Memory {
	return &Memory{chains: make(map[string]*chain)}
}

func (m *Memory) chain(shipmentID string, create bool) *chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chains[shipmentID]
	if !ok && create {
		c = &chain{}
		m.chains[shipmentID] = c
	}
	return c
}

func (m *Memory) Append(ctx context.Context, cp models.Checkpoint) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if err := validate(cp); err != nil {
		return Receipt{}, err
	}
	c := m.chain(cp.ShipmentID, true)
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := ""
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].EntryHash
	}
	sealed := Seal(cp, len(c.entries), prev)
	c.entries = append(c.entries, sealed)
	return Receipt{Index: sealed.Index, AnchorRef: sealed.AnchorRef}, nil
}

func (m *Memory) Get(ctx context.Context, shipmentID string, index int) (models.Checkpoint, error) {
	c := m.chain(shipmentID, false)
	if c == nil {
		return models.Checkpoint{}, fmt.Errorf("ledger entry %s/%d: %w", shipmentID, index, sentinel.ErrNotFound)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.entries) {
		return models.Checkpoint{}, fmt.Errorf("ledger entry %s/%d: %w", shipmentID, index, sentinel.ErrNotFound)
	}
	return c.entries[index], nil
}

func (m *Memory) Count(ctx context.Context, shipmentID string) (int, error) {
	c := m.chain(shipmentID, false)
	if c == nil {
		return 0, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

func (m *Memory) Range(ctx context.Context, shipmentID string, from, to int) ([]models.Checkpoint, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	c := m.chain(shipmentID, false)
	if c == nil {
		return []models.Checkpoint{}, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if to > len(c.entries) {
		to = len(c.entries)
	}
	if from >= to {
		return []models.Checkpoint{}, nil
	}
	out := make([]models.Checkpoint, to-from)
	copy(out, c.entries[from:to])
	return out, nil
}
