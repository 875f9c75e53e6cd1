package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

func TestShipmentSaveIsOptimistic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryShipments()
	require.NoError(t, repo.Create(ctx, &models.Shipment{ShipmentID: "SHP-1", CurrentStatus: models.StatusCreated}))
	require.ErrorIs(t, repo.Create(ctx, &models.Shipment{ShipmentID: "SHP-1"}), sentinel.ErrConflict)

	first, err := repo.Get(ctx, "SHP-1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "SHP-1")
	require.NoError(t, err)

	first.CurrentStatus = models.StatusInTransit
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second.CurrentStatus = models.StatusDelivered
	require.ErrorIs(t, repo.Save(ctx, second), sentinel.ErrConflict)

	stored, err := repo.Get(ctx, "SHP-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInTransit, stored.CurrentStatus)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestShipmentListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryShipments()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &models.Shipment{ShipmentID: "B", ManufacturerID: "m1", CurrentStatus: models.StatusCreated, CreatedAt: now}))
	require.NoError(t, repo.Create(ctx, &models.Shipment{ShipmentID: "A", ManufacturerID: "m1", ReceiverID: "r1", CurrentStatus: models.StatusDelivered, CreatedAt: now.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &models.Shipment{ShipmentID: "C", ManufacturerID: "m2", CurrentStatus: models.StatusInTransit, CreatedAt: now.Add(-time.Minute)}))

	all, err := repo.List(ctx, ShipmentFilter{ManufacturerID: "m1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].ShipmentID)

	byReceiver, err := repo.List(ctx, ShipmentFilter{ReceiverID: "r1"})
	require.NoError(t, err)
	require.Len(t, byReceiver, 1)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "B", active[0].ShipmentID)
	assert.Equal(t, "C", active[1].ShipmentID)
}

func TestAnomalyFilterAndNarrative(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAnomalies()
	now := time.Now().UTC()
	require.NoError(t, repo.AppendMany(ctx, []models.Anomaly{
		{AnomalyID: "a1", ShipmentID: "SHP-1", CreatedAt: now},
		{AnomalyID: "a2", ShipmentID: "SHP-2", CreatedAt: now.Add(time.Second), Resolved: true},
	}))

	list, err := repo.List(ctx, models.AnomalyFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].AnomalyID)

	list, err = repo.List(ctx, models.AnomalyFilter{ShipmentIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, list)

	unresolved := false
	list, err = repo.List(ctx, models.AnomalyFilter{Resolved: &unresolved})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].AnomalyID)

	require.NoError(t, repo.SetNarrative(ctx, "a1", "late at JAI"))
	require.ErrorIs(t, repo.SetNarrative(ctx, "zz", "x"), sentinel.ErrNotFound)
	list, err = repo.List(ctx, models.AnomalyFilter{ShipmentIDs: []string{"SHP-1"}})
	require.NoError(t, err)
	assert.Equal(t, "late at JAI", list[0].Narrative)
}

func TestUsersUniqueEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUsers()
	require.NoError(t, repo.Create(ctx, &models.User{UserID: "u1", Email: "a@b.io", Username: "b", Role: models.RoleReceiver}))
	require.NoError(t, repo.Create(ctx, &models.User{UserID: "u2", Email: "c@b.io", Username: "a", Role: models.RoleReceiver}))
	require.ErrorIs(t, repo.Create(ctx, &models.User{UserID: "u3", Email: "A@B.io"}), sentinel.ErrConflict)

	u, err := repo.FindByEmail(ctx, "A@b.IO")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)

	receivers, err := repo.ListByRole(ctx, models.RoleReceiver)
	require.NoError(t, err)
	require.Len(t, receivers, 2)
	assert.Equal(t, "u2", receivers[0].UserID)
}

func TestSeedSuperAdmin(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUsers()
	log := logger.Discard()

	require.Error(t, SeedSuperAdmin(ctx, repo, "root@example.com", "", "admin", log))

	require.NoError(t, SeedSuperAdmin(ctx, repo, "root@example.com", "s3cret-pass", "admin", log))
	u, err := repo.FindByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, auth.CheckPasswordHash("s3cret-pass", u.Password))

	// second run is a no-op
	require.NoError(t, SeedSuperAdmin(ctx, repo, "root@example.com", "other", "admin", log))
	admins, err := repo.ListByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestAnomalyAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAnomalies()
	a := models.Anomaly{AnomalyID: "a1", ShipmentID: "SHP-1", AnomalyType: models.AnomalyDocumentTampered}
	require.NoError(t, repo.AppendMany(ctx, []models.Anomaly{a}))
	require.NoError(t, repo.AppendMany(ctx, []models.Anomaly{a, {AnomalyID: "a2", ShipmentID: "SHP-1"}}))

	list, err := repo.List(ctx, models.AnomalyFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
