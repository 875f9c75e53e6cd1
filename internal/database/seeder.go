// server/internal/database/seeder.go
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// SeedSuperAdmin creates the first admin account if it does not exist yet.
// An empty password is refused so a default credential never ships.
func SeedSuperAdmin(ctx context.Context, users UserRepository, email, password, enrollmentID string, log logrus.FieldLogger) error {
	// Kiểm tra xem superadmin đã tồn tại chưa
	_, err := users.FindByEmail(ctx, email)
	if err == nil {
		log.WithField("email", email).Info("Super admin already exists. Seeding skipped.")
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	if password == "" {
		return errors.New("super admin password is empty; set SUPERADMIN_PASSWORD")
	}

	log.WithField("email", email).Info("Super admin not found. Seeding...")
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	superAdmin := &models.User{
		UserID:             "USR-" + uuid.NewString()[:8],
		Email:              email,
		Username:           "Super Admin",
		Password:           hashedPassword,
		Role:               models.RoleAdmin,
		Status:             "active",
		FabricEnrollmentID: enrollmentID,
		CreatedAt:          time.Now().UTC(),
	}
	if err := users.Create(ctx, superAdmin); err != nil {
		return err
	}

	log.WithField("email", email).Info("Super admin seeded successfully.")
	return nil
}
