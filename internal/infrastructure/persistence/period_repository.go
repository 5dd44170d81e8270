package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/shared"
)

// GormAccountingPeriodRepository implements AccountingPeriodRepository using GORM
type GormAccountingPeriodRepository struct {
	db *gorm.DB
}

// NewGormAccountingPeriodRepository creates a new GormAccountingPeriodRepository
func NewGormAccountingPeriodRepository(db *gorm.DB) *GormAccountingPeriodRepository {
	return &GormAccountingPeriodRepository{db: db}
}

// FindByID finds a period by its ID. Returns (nil, nil) when no period exists.
func (r *GormAccountingPeriodRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.AccountingPeriod, error) {
	var period ledger.AccountingPeriod
	if err := r.db.WithContext(ctx).First(&period, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

// FindByIDForOrg finds a period by ID within an organization
func (r *GormAccountingPeriodRepository) FindByIDForOrg(ctx context.Context, orgID, id uuid.UUID) (*ledger.AccountingPeriod, error) {
	var period ledger.AccountingPeriod
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

// FindAll finds all periods matching the filter
func (r *GormAccountingPeriodRepository) FindAll(ctx context.Context, filter shared.Filter) ([]ledger.AccountingPeriod, error) {
	var periods []ledger.AccountingPeriod
	query := applyFilter(r.db.WithContext(ctx).Model(&ledger.AccountingPeriod{}), filter, "start DESC")

	if err := query.Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

// FindAllForOrg finds all periods for an organization
func (r *GormAccountingPeriodRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]ledger.AccountingPeriod, error) {
	var periods []ledger.AccountingPeriod
	query := applyFilter(
		r.db.WithContext(ctx).Model(&ledger.AccountingPeriod{}).Where("org_id = ?", orgID),
		filter, "start DESC",
	)

	if err := query.Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

// Save creates or updates a period
func (r *GormAccountingPeriodRepository) Save(ctx context.Context, period *ledger.AccountingPeriod) error {
	return r.db.WithContext(ctx).Save(period).Error
}

// Delete deletes a period
func (r *GormAccountingPeriodRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&ledger.AccountingPeriod{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts periods matching the filter
func (r *GormAccountingPeriodRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ledger.AccountingPeriod{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormAccountingPeriodRepository implements AccountingPeriodRepository
var _ ledger.AccountingPeriodRepository = (*GormAccountingPeriodRepository)(nil)
