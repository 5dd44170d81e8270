package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// VerificationSeries groups verifications within an accounting period under
// a short letter name ("A", "B"). Each series numbers its verifications
// sequentially starting from 1.
type VerificationSeries struct {
	shared.OrgAggregateRoot
	AccountingPeriodID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_series_period_name,priority:1"`
	Name               string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_series_period_name,priority:2"`
	NextNumber         int64     `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (VerificationSeries) TableName() string {
	return "verification_series"
}

// NewVerificationSeries creates a new verification series in a period
func NewVerificationSeries(orgID, periodID uuid.UUID, name string) (*VerificationSeries, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_SERIES_NAME", "Series name cannot be empty")
	}
	return &VerificationSeries{
		OrgAggregateRoot:   shared.NewOrgAggregateRoot(orgID),
		AccountingPeriodID: periodID,
		Name:               name,
		NextNumber:         1,
	}, nil
}

// AllocateNumber returns the next verification number in the series and
// advances the counter
func (s *VerificationSeries) AllocateNumber() int64 {
	n := s.NextNumber
	s.NextNumber++
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return n
}
