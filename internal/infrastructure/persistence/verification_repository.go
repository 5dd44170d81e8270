package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/shared"
)

// GormVerificationRepository implements VerificationRepository using GORM.
// Verifications are loaded with their transaction lines; a verification
// without lines is meaningless.
type GormVerificationRepository struct {
	db *gorm.DB
}

// NewGormVerificationRepository creates a new GormVerificationRepository
func NewGormVerificationRepository(db *gorm.DB) *GormVerificationRepository {
	return &GormVerificationRepository{db: db}
}

// FindByID finds a verification by its ID. Returns (nil, nil) when none exists.
func (r *GormVerificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Verification, error) {
	var verification ledger.Verification
	if err := r.db.WithContext(ctx).Preload("Lines").First(&verification, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &verification, nil
}

// FindByIDForOrg finds a verification by ID within an organization
func (r *GormVerificationRepository) FindByIDForOrg(ctx context.Context, orgID, id uuid.UUID) (*ledger.Verification, error) {
	var verification ledger.Verification
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("org_id = ? AND id = ?", orgID, id).
		First(&verification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &verification, nil
}

// FindByExternalRef looks up a verification by its external reference.
// Returns (nil, nil) when none exists.
func (r *GormVerificationRepository) FindByExternalRef(ctx context.Context, orgID uuid.UUID, externalRef string) (*ledger.Verification, error) {
	var verification ledger.Verification
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("org_id = ? AND external_ref = ?", orgID, externalRef).
		First(&verification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &verification, nil
}

// FindAll finds all verifications matching the filter
func (r *GormVerificationRepository) FindAll(ctx context.Context, filter shared.Filter) ([]ledger.Verification, error) {
	var verifications []ledger.Verification
	query := applyFilter(
		r.db.WithContext(ctx).Model(&ledger.Verification{}).Preload("Lines"),
		filter, "transaction_date ASC, number ASC",
	)

	if err := query.Find(&verifications).Error; err != nil {
		return nil, err
	}
	return verifications, nil
}

// FindAllForOrg finds all verifications for an organization
func (r *GormVerificationRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]ledger.Verification, error) {
	var verifications []ledger.Verification
	query := applyFilter(
		r.db.WithContext(ctx).Model(&ledger.Verification{}).Preload("Lines").Where("org_id = ?", orgID),
		filter, "transaction_date ASC, number ASC",
	)

	if err := query.Find(&verifications).Error; err != nil {
		return nil, err
	}
	return verifications, nil
}

// Save creates or updates a verification together with its lines
func (r *GormVerificationRepository) Save(ctx context.Context, verification *ledger.Verification) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(verification).Error
}

// Delete deletes a verification and its lines
func (r *GormVerificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ledger.Transaction{}, "verification_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&ledger.Verification{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// Count counts verifications matching the filter
func (r *GormVerificationRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ledger.Verification{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormVerificationRepository implements VerificationRepository
var _ ledger.VerificationRepository = (*GormVerificationRepository)(nil)
