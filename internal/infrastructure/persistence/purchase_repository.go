package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared"
)

// GormPurchaseRepository implements PurchaseRepository using GORM.
// Purchases are loaded with their items and the items' tickets.
type GormPurchaseRepository struct {
	db *gorm.DB
}

// NewGormPurchaseRepository creates a new GormPurchaseRepository
func NewGormPurchaseRepository(db *gorm.DB) *GormPurchaseRepository {
	return &GormPurchaseRepository{db: db}
}

func (r *GormPurchaseRepository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items").Preload("Items.Tickets")
}

// FindByID finds a purchase by its ID. Returns (nil, nil) when none exists.
func (r *GormPurchaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchase.Purchase, error) {
	var p purchase.Purchase
	if err := r.withItems(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindByIDForOrg finds a purchase by ID within an organization
func (r *GormPurchaseRepository) FindByIDForOrg(ctx context.Context, orgID, id uuid.UUID) (*purchase.Purchase, error) {
	var p purchase.Purchase
	if err := r.withItems(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindByOCR matches a payment reference to a purchase.
// Returns (nil, nil) when no purchase carries the reference.
func (r *GormPurchaseRepository) FindByOCR(ctx context.Context, orgID uuid.UUID, ocr string) (*purchase.Purchase, error) {
	var p purchase.Purchase
	if err := r.withItems(ctx).
		Where("org_id = ? AND ocr = ?", orgID, ocr).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindUnpaidExpiredBefore returns unpaid invoices whose expiry date has passed
func (r *GormPurchaseRepository) FindUnpaidExpiredBefore(ctx context.Context, orgID uuid.UUID, before time.Time) ([]purchase.Purchase, error) {
	var purchases []purchase.Purchase
	if err := r.withItems(ctx).
		Where("org_id = ? AND kind = ? AND payment_state = ? AND cancelled = ? AND expiry_date IS NOT NULL AND expiry_date < ?",
			orgID, purchase.KindInvoice, purchase.PaymentStateUnpaid, false, before).
		Order("expiry_date ASC").
		Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// FindAll finds all purchases matching the filter
func (r *GormPurchaseRepository) FindAll(ctx context.Context, filter shared.Filter) ([]purchase.Purchase, error) {
	var purchases []purchase.Purchase
	query := applyFilter(r.withItems(ctx).Model(&purchase.Purchase{}), filter, "date DESC")

	if err := query.Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// FindAllForOrg finds all purchases for an organization
func (r *GormPurchaseRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter shared.Filter) ([]purchase.Purchase, error) {
	var purchases []purchase.Purchase
	query := applyFilter(
		r.withItems(ctx).Model(&purchase.Purchase{}).Where("org_id = ?", orgID),
		filter, "date DESC",
	)

	if err := query.Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// Save creates or updates a purchase together with its items and tickets
func (r *GormPurchaseRepository) Save(ctx context.Context, p *purchase.Purchase) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(p).Error
}

// Delete deletes a purchase and its items
func (r *GormPurchaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("purchase_item_id IN (?)",
			tx.Model(&purchase.PurchaseItem{}).Select("id").Where("purchase_id = ?", id),
		).Delete(&purchase.Ticket{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&purchase.PurchaseItem{}, "purchase_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&purchase.Purchase{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// Count counts purchases matching the filter
func (r *GormPurchaseRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&purchase.Purchase{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormPurchaseRepository implements PurchaseRepository
var _ purchase.PurchaseRepository = (*GormPurchaseRepository)(nil)
