package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared"
)

// OCRCounter is the per-organization reference counter row. The counter
// restarts whenever the year's final digit changes.
type OCRCounter struct {
	shared.BaseEntity
	OrgID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	YearDigit int       `gorm:"not null"`
	Counter   int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (OCRCounter) TableName() string {
	return "ocr_counters"
}

// GormOCRSequence implements OCRSequence with a row-locked counter table
type GormOCRSequence struct {
	db *gorm.DB
}

// NewGormOCRSequence creates a new GormOCRSequence
func NewGormOCRSequence(db *gorm.DB) *GormOCRSequence {
	return &GormOCRSequence{db: db}
}

// Next allocates the next counter value for the organization. The row is
// locked for the duration of the transaction so concurrent allocations
// never hand out the same value.
func (s *GormOCRSequence) Next(ctx context.Context, orgID uuid.UUID, yearDigit int) (int64, error) {
	var allocated int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter OCRCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("org_id = ?", orgID).
			First(&counter).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = OCRCounter{
				BaseEntity: shared.NewBaseEntity(),
				OrgID:      orgID,
				YearDigit:  yearDigit,
				Counter:    1,
			}
			allocated = counter.Counter
			return tx.Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if counter.YearDigit != yearDigit {
			// New ten-year window, restart the sequence
			counter.YearDigit = yearDigit
			counter.Counter = 1
		} else {
			counter.Counter++
		}
		allocated = counter.Counter

		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, err
	}

	return allocated, nil
}

// Ensure GormOCRSequence implements OCRSequence
var _ purchase.OCRSequence = (*GormOCRSequence)(nil)
