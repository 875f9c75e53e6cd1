package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

type MemoryShipments struct {
	mu    sync.RWMutex
	items map[string]*models.Shipment
}

func NewMemoryShipments() *MemoryShipments {
	return &MemoryShipments{items: make(map[string]*models.Shipment)}
}

func (r *MemoryShipments) Create(ctx context.Context, s *models.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ShipmentID]; ok {
		return fmt.Errorf("shipment %s: %w", s.ShipmentID, sentinel.ErrConflict)
	}
	r.items[s.ShipmentID] = s.Clone()
	return nil
}

func (r *MemoryShipments) Get(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[shipmentID]
	if !ok {
		return nil, fmt.Errorf("shipment %s: %w", shipmentID, sentinel.ErrNotFound)
	}
	return s.Clone(), nil
}

func (r *MemoryShipments) Save(ctx context.Context, s *models.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[s.ShipmentID]
	if !ok {
		return fmt.Errorf("shipment %s: %w", s.ShipmentID, sentinel.ErrNotFound)
	}
	if stored.Version != s.Version {
		return fmt.Errorf("shipment %s version %d, stored %d: %w", s.ShipmentID, s.Version, stored.Version, sentinel.ErrConflict)
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	r.items[s.ShipmentID] = s.Clone()
	return nil
}

func (r *MemoryShipments) List(ctx context.Context, filter ShipmentFilter) ([]*models.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*models.Shipment{}
	for _, s := range r.items {
		if filter.ManufacturerID != "" && s.ManufacturerID != filter.ManufacturerID {
			continue
		}
		if filter.ReceiverID != "" && s.ReceiverID != filter.ReceiverID {
			continue
		}
		if filter.Status != "" && s.CurrentStatus != filter.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryShipments) ListActive(ctx context.Context) ([]*models.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*models.Shipment{}
	for _, s := range r.items {
		if s.CurrentStatus == models.StatusDelivered {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShipmentID < out[j].ShipmentID })
	return out, nil
}

type MemoryAnomalies struct {
	mu    sync.RWMutex
	items []models.Anomaly
	ids   map[string]struct{}
}

func NewMemoryAnomalies() *MemoryAnomalies {
	return &MemoryAnomalies{ids: make(map[string]struct{})}
}

func (r *MemoryAnomalies) AppendMany(ctx context.Context, anomalies []models.Anomaly) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range anomalies {
		if _, ok := r.ids[a.AnomalyID]; ok {
			continue
		}
		r.ids[a.AnomalyID] = struct{}{}
		a.Details = copyDetails(a.Details)
		r.items = append(r.items, a)
	}
	return nil
}

func (r *MemoryAnomalies) List(ctx context.Context, filter models.AnomalyFilter) ([]models.Anomaly, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allowed map[string]bool
	if filter.ShipmentIDs != nil {
		allowed = make(map[string]bool, len(filter.ShipmentIDs))
		for _, id := range filter.ShipmentIDs {
			allowed[id] = true
		}
	}
	out := []models.Anomaly{}
	for _, a := range r.items {
		if allowed != nil && !allowed[a.ShipmentID] {
			continue
		}
		if filter.Resolved != nil && a.Resolved != *filter.Resolved {
			continue
		}
		a.Details = copyDetails(a.Details)
		out = append(out, a)
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryAnomalies) SetNarrative(ctx context.Context, anomalyID, narrative string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].AnomalyID == anomalyID {
			r.items[i].Narrative = narrative
			return nil
		}
	}
	return fmt.Errorf("anomaly %s: %w", anomalyID, sentinel.ErrNotFound)
}

func copyDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type MemoryUsers struct {
	mu    sync.RWMutex
	items map[string]*models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{items: make(map[string]*models.User)}
}

func (r *MemoryUsers) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("user %s: %w", u.Email, sentinel.ErrConflict)
		}
	}
	if _, ok := r.items[u.UserID]; ok {
		return fmt.Errorf("user %s: %w", u.UserID, sentinel.ErrConflict)
	}
	cp := *u
	cp.NodeCodes = append([]string(nil), u.NodeCodes...)
	r.items[u.UserID] = &cp
	return nil
}

func (r *MemoryUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.items {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, sentinel.ErrNotFound)
}

func (r *MemoryUsers) FindByID(ctx context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUsers) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*models.User{}
	for _, u := range r.items {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
