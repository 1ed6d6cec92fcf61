package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/peplixcoin/cmeoi-sub001/models"
	"gorm.io/gorm"
)

var (
	// ErrAdminNotFound is returned when no admin matches the lookup
	ErrAdminNotFound = errors.New("admin not found")
	// ErrAdminExists is returned when the auth0 ID or username is taken
	ErrAdminExists = errors.New("admin already exists")
)

// AdminService manages staff accounts referenced by orders
type AdminService struct {
	db *gorm.DB
}

// NewAdminService creates an admin service backed by db
func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// Create registers a staff account
func (s *AdminService) Create(ctx context.Context, admin *models.Admin) error {
	if !admin.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, admin.Role)
	}
	if strings.TrimSpace(admin.Auth0ID) == "" || strings.TrimSpace(admin.Username) == "" {
		return fmt.Errorf("%w: auth0_id and username are required", ErrValidation)
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAdminExists, admin.Username)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// FindByAuth0ID returns the admin whose token subject is auth0ID
func (s *AdminService) FindByAuth0ID(ctx context.Context, auth0ID string) (*models.Admin, error) {
	var admin models.Admin
	if err := s.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAdminNotFound, auth0ID)
		}
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	return &admin, nil
}

// ListByRole returns admins with the given role ordered by username
func (s *AdminService) ListByRole(ctx context.Context, role models.Role) ([]models.Admin, error) {
	var admins []models.Admin
	if err := s.db.WithContext(ctx).Where("role = ?", role).Order("username ASC").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}
