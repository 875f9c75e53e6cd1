package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"supply-daddy-api-server/internal/models"
)

func TestPasswordHashing(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("test-secret", "1h")
	require.NoError(t, err)

	u := &models.User{UserID: "USR-1", Email: "op@hub.in", Username: "op", Role: models.RoleTransitNode, NodeCodes: []string{"DEL"}}
	token, err := m.GenerateJWT(u)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "USR-1", claims.UserID)
	assert.Equal(t, models.RoleTransitNode, claims.Role)
	assert.Equal(t, []string{"DEL"}, claims.Identity().NodeCodes)

	other, err := NewTokenManager("another-secret", "")
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	m, err := NewTokenManager("test-secret", "-1m")
	require.NoError(t, err)
	token, err := m.GenerateJWT(&models.User{UserID: "USR-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenManagerValidation(t *testing.T) {
	_, err := NewTokenManager("", "1h")
	assert.Error(t, err)
	_, err = NewTokenManager("x", "soon")
	assert.Error(t, err)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "USR-9", Role: models.RoleReceiver})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "USR-9", id.UserID)
}

func TestIdentityPermissions(t *testing.T) {
	s := &models.Shipment{ManufacturerID: "M1", ReceiverID: "R1"}

	assert.True(t, Identity{UserID: "M1", Role: models.RoleManufacturer}.CanView(s))
	assert.False(t, Identity{UserID: "M2", Role: models.RoleManufacturer}.CanView(s))
	assert.True(t, Identity{UserID: "R1", Role: models.RoleReceiver}.CanView(s))
	assert.False(t, Identity{UserID: "M1", Role: models.RoleReceiver}.CanView(s))
	assert.True(t, System.CanView(s))

	node := Identity{Role: models.RoleTransitNode, NodeCodes: []string{"DEL", "JAI"}}
	assert.True(t, node.CanScan("JAI"))
	assert.False(t, node.CanScan("MUM"))
	assert.False(t, Identity{Role: models.RoleReceiver}.CanScan("DEL"))
	assert.True(t, System.CanScan("MUM"))
}
