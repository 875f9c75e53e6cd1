// server/internal/database/repository.go
package database

import (
	"context"

	"supply-daddy-api-server/internal/models"
)

const (
	ShipmentCollection = "shipments"
	AnomalyCollection  = "anomalies"
	UserCollection     = "users"
)

// ShipmentFilter narrows List. Empty fields match everything.
type ShipmentFilter struct {
	ManufacturerID string
	ReceiverID     string
	Status         models.ShipmentStatus
}

// ShipmentRepository persists shipments. Save is optimistic: it fails with
// sentinel.ErrConflict when the stored version differs from s.Version, and
// bumps s.Version on success.
type ShipmentRepository interface {
	Create(ctx context.Context, s *models.Shipment) error
	Get(ctx context.Context, shipmentID string) (*models.Shipment, error)
	Save(ctx context.Context, s *models.Shipment) error
	List(ctx context.Context, filter ShipmentFilter) ([]*models.Shipment, error)
	// ListActive returns non-delivered shipments ordered by shipment id.
	ListActive(ctx context.Context) ([]*models.Shipment, error)
}

type AnomalyRepository interface {
	AppendMany(ctx context.Context, anomalies []models.Anomaly) error
	List(ctx context.Context, filter models.AnomalyFilter) ([]models.Anomaly, error)
	SetNarrative(ctx context.Context, anomalyID, narrative string) error
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

// Store bundles the repositories a process runs with.
type Store struct {
	Shipments ShipmentRepository
	Anomalies AnomalyRepository
	Users     UserRepository
}

func NewMemoryStore() *Store {
	return &Store{
		Shipments: NewMemoryShipments(),
		Anomalies: NewMemoryAnomalies(),
		Users:     NewMemoryUsers(),
	}
}
