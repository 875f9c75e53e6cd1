// Package users handles login and admin-managed accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/database"
	"supply-daddy-api-server/internal/logger"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// ErrBadCredentials is returned by Login for an unknown email or a wrong
// password alike.
var ErrBadCredentials = errors.New("invalid email or password")

// Enroller issues a ledger identity for a new account.
type Enroller interface {
	Enroll(ctx context.Context, enrollmentID string, role models.Role) error
}

type CreateRequest struct {
	Email     string      `json:"email" binding:"required"`
	Username  string      `json:"username" binding:"required"`
	Password  string      `json:"password" binding:"required"`
	Role      models.Role `json:"role" binding:"required"`
	NodeCodes []string    `json:"node_codes"`
}

type Service struct {
	users    database.UserRepository
	tokens   *auth.TokenManager
	enroller Enroller
	log      logrus.FieldLogger
}

// NewService builds the account service. enroller may be nil when no CA is
// configured; accounts are then created without a ledger identity.
func NewService(users database.UserRepository, tokens *auth.TokenManager, enroller Enroller, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{users: users, tokens: tokens, enroller: enroller, log: log.WithField("module", "users")}
}

// Login returns a signed token for a matching active account.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil, ErrBadCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !auth.CheckPasswordHash(password, u.Password) {
		return "", nil, ErrBadCredentials
	}
	if u.Status != "" && u.Status != "active" {
		return "", nil, fmt.Errorf("account %s is %s: %w", u.Email, u.Status, sentinel.ErrForbidden)
	}
	token, err := s.tokens.GenerateJWT(u)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, u, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

// Receivers lists receiver accounts for the shipment creation form.
func (s *Service) Receivers(ctx context.Context) ([]*models.User, error) {
	return s.users.ListByRole(ctx, models.RoleReceiver)
}

// Create adds an account. Only admins may call it.
func (s *Service) Create(ctx context.Context, caller auth.Identity, req CreateRequest) (*models.User, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("role %s cannot create users: %w", caller.Role, sentinel.ErrForbidden)
	}
	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, fmt.Errorf("email %q: %w", req.Email, sentinel.ErrValidation)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", req.Role, sentinel.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", sentinel.ErrValidation)
	}
	codes := make([]string, 0, len(req.NodeCodes))
	for _, c := range req.NodeCodes {
		codes = append(codes, strings.ToUpper(strings.TrimSpace(c)))
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		UserID:    "USR-" + uuid.NewString()[:8],
		Email:     req.Email,
		Username:  req.Username,
		Password:  hash,
		Role:      req.Role,
		NodeCodes: codes,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}

	if s.enroller != nil {
		u.FabricEnrollmentID = fmt.Sprintf("%s-%s", req.Role, uuid.NewString()[:8])
		if err := s.enroller.Enroll(ctx, u.FabricEnrollmentID, req.Role); err != nil {
			logger.LogError(s.log, "users", "Create", "fabric enrollment failed", u.Email, err)
			return nil, fmt.Errorf("enroll %s: %w", u.Email, err)
		}
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.UserID, "role": u.Role}).Info("user created")
	return u, nil
}
