package auth

import (
	"context"
	"slices"

	"supply-daddy-api-server/internal/models"
)

// Identity is the caller attached to a request context.
type Identity struct {
	UserID    string      `json:"user_id"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	NodeCodes []string    `json:"node_codes,omitempty"`
}

// System is the identity used by the transit scheduler.
var System = Identity{UserID: "system", Username: "transit-scheduler", Role: models.RoleAdmin}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity set by the auth middleware, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// CanScan reports whether the caller may record a checkpoint at location.
// Transit node operators are limited to their own nodes.
func (i Identity) CanScan(location string) bool {
	switch i.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTransitNode:
		return len(i.NodeCodes) == 0 || slices.Contains(i.NodeCodes, location)
	}
	return false
}

// CanView reports whether the caller may see the shipment and its anomalies.
func (i Identity) CanView(s *models.Shipment) bool {
	switch i.Role {
	case models.RoleAdmin, models.RoleTransitNode:
		return true
	case models.RoleManufacturer:
		return s.ManufacturerID == i.UserID
	case models.RoleReceiver:
		return s.ReceiverID == i.UserID
	}
	return false
}
