package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/shared"
)

// GormVerificationSeriesRepository implements VerificationSeriesRepository using GORM
type GormVerificationSeriesRepository struct {
	db *gorm.DB
}

// NewGormVerificationSeriesRepository creates a new GormVerificationSeriesRepository
func NewGormVerificationSeriesRepository(db *gorm.DB) *GormVerificationSeriesRepository {
	return &GormVerificationSeriesRepository{db: db}
}

// FindByID finds a series by its ID. Returns (nil, nil) when no series exists.
func (r *GormVerificationSeriesRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.VerificationSeries, error) {
	var series ledger.VerificationSeries
	if err := r.db.WithContext(ctx).First(&series, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &series, nil
}

// FindByIDForOrg finds a series by ID within an organization
func (r *GormVerificationSeriesRepository) FindByIDForOrg(ctx context.Context, orgID, id uuid.UUID) (*ledger.VerificationSeries, error) {
	var series ledger.VerificationSeries
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&series).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &series, nil
}

// FindByName resolves a series by name within an accounting period.
// An unresolved name returns (nil, nil).
func (r *GormVerificationSeriesRepository) FindByName(ctx context.Context, periodID uuid.UUID, name string) (*ledger.VerificationSeries, error) {
	var series ledger.VerificationSeries
	if err := r.db.WithContext(ctx).
		Where("accounting_period_id = ? AND name = ?", periodID, name).
		First(&series).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &series, nil
}

// FindAll finds all series matching the filter
func (r *GormVerificationSeriesRepository) FindAll(ctx context.Context, filter shared.Filter) ([]ledger.VerificationSeries, error) {
	var series []ledger.VerificationSeries
	query := applyFilter(r.db.WithContext(ctx).Model(&ledger.VerificationSeries{}), filter, "name ASC")

	if err := query.Find(&series).Error; err != nil {
		return nil, err
	}
	return series, nil
}

// FindAllForOrg finds all series for an organization
func (r *GormVerificationSeriesRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]ledger.VerificationSeries, error) {
	var series []ledger.VerificationSeries
	query := applyFilter(
		r.db.WithContext(ctx).Model(&ledger.VerificationSeries{}).Where("org_id = ?", orgID),
		filter, "name ASC",
	)

	if err := query.Find(&series).Error; err != nil {
		return nil, err
	}
	return series, nil
}

// Save creates or updates a series
func (r *GormVerificationSeriesRepository) Save(ctx context.Context, series *ledger.VerificationSeries) error {
	return r.db.WithContext(ctx).Save(series).Error
}

// Delete deletes a series
func (r *GormVerificationSeriesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&ledger.VerificationSeries{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts series matching the filter
func (r *GormVerificationSeriesRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ledger.VerificationSeries{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormVerificationSeriesRepository implements VerificationSeriesRepository
var _ ledger.VerificationSeriesRepository = (*GormVerificationSeriesRepository)(nil)
