package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/smileagent/autoreply-engine/internal/models"
	"gorm.io/gorm"
)

// TenantRepository defines the interface for tenant and credential data access.
// Credentials are read-only to the engine; the OAuth handshake that writes
// them lives outside this core.
type TenantRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Tenant, error)
	// ListWithActiveMailbox returns tenants that own at least one active
	// mailbox credential, with those credentials preloaded.
	ListWithActiveMailbox(ctx context.Context) ([]models.Tenant, error)
	ActiveCredential(ctx context.Context, tenantID uint) (*models.MailboxCredential, error)
}

// tenantRepository implements TenantRepository using GORM
type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new TenantRepository instance
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

// GetByID retrieves a tenant by its ID with active credentials preloaded
func (r *tenantRepository) GetByID(ctx context.Context, id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	result := r.db.WithContext(ctx).
		Preload("Credentials", "active = ?", true).
		First(&tenant, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by ID: %w", result.Error)
	}
	return &tenant, nil
}

// ListWithActiveMailbox retrieves all tenants joined against an active credential
func (r *tenantRepository) ListWithActiveMailbox(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	result := r.db.WithContext(ctx).
		Distinct("tenants.*").
		Joins("JOIN mailbox_credentials mc ON mc.tenant_id = tenants.id AND mc.active = ?", true).
		Preload("Credentials", "active = ?", true).
		Find(&tenants)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list tenants with active mailbox: %w", result.Error)
	}
	return tenants, nil
}

// ActiveCredential retrieves the most recent active credential for a tenant
func (r *tenantRepository) ActiveCredential(ctx context.Context, tenantID uint) (*models.MailboxCredential, error) {
	var cred models.MailboxCredential
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("created_at DESC").
		First(&cred)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active credential: %w", result.Error)
	}
	return &cred, nil
}
