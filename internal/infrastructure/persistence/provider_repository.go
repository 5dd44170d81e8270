package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/shared"
)

// GormProviderRepository implements ProviderRepository using GORM
type GormProviderRepository struct {
	db *gorm.DB
}

// NewGormProviderRepository creates a new GormProviderRepository
func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

// FindByID finds a provider by its ID. Returns (nil, nil) when none exists.
func (r *GormProviderRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.PaymentProvider, error) {
	var provider payment.PaymentProvider
	if err := r.db.WithContext(ctx).First(&provider, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

// FindByIDForOrg finds a provider by ID within an organization
func (r *GormProviderRepository) FindByIDForOrg(ctx context.Context, orgID, id uuid.UUID) (*payment.PaymentProvider, error) {
	var provider payment.PaymentProvider
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

// FindByChannel resolves the organization's provider for a channel.
// Returns (nil, nil) when none is configured.
func (r *GormProviderRepository) FindByChannel(ctx context.Context, orgID uuid.UUID, channel payment.Channel) (*payment.PaymentProvider, error) {
	var provider payment.PaymentProvider
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND channel = ?", orgID, channel).
		First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

// FindAll finds all providers matching the filter
func (r *GormProviderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]payment.PaymentProvider, error) {
	var providers []payment.PaymentProvider
	query := applyFilter(r.db.WithContext(ctx).Model(&payment.PaymentProvider{}), filter, "name ASC")

	if err := query.Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

// FindAllForOrg finds all providers for an organization
func (r *GormProviderRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]payment.PaymentProvider, error) {
	var providers []payment.PaymentProvider
	query := applyFilter(
		r.db.WithContext(ctx).Model(&payment.PaymentProvider{}).Where("org_id = ?", orgID),
		filter, "name ASC",
	)

	if err := query.Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

// Save creates or updates a provider
func (r *GormProviderRepository) Save(ctx context.Context, provider *payment.PaymentProvider) error {
	return r.db.WithContext(ctx).Save(provider).Error
}

// Delete deletes a provider
func (r *GormProviderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&payment.PaymentProvider{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts providers matching the filter
func (r *GormProviderRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&payment.PaymentProvider{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormProviderRepository implements ProviderRepository
var _ payment.ProviderRepository = (*GormProviderRepository)(nil)
