package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/shared/valueobject"
)

// SplitLine is one resolved component of a product's price decomposition:
// the accounting rule with its account resolved in the snapshot's period.
type SplitLine struct {
	AccountID     uuid.UUID
	AccountNumber string
	Amount        valueobject.Money
}

// SnapshotEntry is one point-of-sale catalog entry, keyed by the product's
// name (variant) key.
type SnapshotEntry struct {
	ProductID  uuid.UUID
	Key        string
	Split      []SplitLine
	Price      valueobject.Money
	CustomUnit string
	MakeTicket bool
}

// Snapshot is the point-of-sale view of one organization's catalog, built
// against a specific accounting period. Entries whose accounts cannot be
// resolved, or whose derived price disagrees with the configured
// point-of-sale price, are excluded rather than guessed at.
type Snapshot struct {
	OrgID              uuid.UUID
	AccountingPeriodID uuid.UUID
	BuiltAt            time.Time
	Entries            map[string]SnapshotEntry
}

// Entry looks up a snapshot entry by catalog key
func (s *Snapshot) Entry(key string) (SnapshotEntry, bool) {
	entry, ok := s.Entries[key]
	return entry, ok
}

// SnapshotCache caches catalog snapshots per organization. Implementations
// must guarantee readers never observe an entry surviving an invalidation
// for the same organization.
type SnapshotCache interface {
	Get(ctx context.Context, orgID uuid.UUID) (*Snapshot, bool)
	Put(ctx context.Context, orgID uuid.UUID, snapshot *Snapshot)
	Invalidate(ctx context.Context, orgID uuid.UUID)
}

// SnapshotBuilder builds point-of-sale catalog snapshots from the product
// catalog and the period's chart of accounts.
type SnapshotBuilder struct {
	products ProductRepository
	accounts ledger.AccountRepository
}

// NewSnapshotBuilder creates a new snapshot builder
func NewSnapshotBuilder(products ProductRepository, accounts ledger.AccountRepository) *SnapshotBuilder {
	return &SnapshotBuilder{products: products, accounts: accounts}
}

// Build constructs a fresh snapshot for the organization against the given
// accounting period. Exclusion rules, applied per product:
//   - no point-of-sale price configured, or derived price differs from it
//   - any accounting-rule account unresolvable in the period
//   - two products sharing a key with differing prices (both are dropped)
func (b *SnapshotBuilder) Build(ctx context.Context, orgID, periodID uuid.UUID) (*Snapshot, error) {
	products, err := b.products.FindActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}

	snapshot := &Snapshot{
		OrgID:              orgID,
		AccountingPeriodID: periodID,
		BuiltAt:            time.Now(),
		Entries:            make(map[string]SnapshotEntry, len(products)),
	}

	conflicted := make(map[string]struct{})

	for i := range products {
		product := &products[i]

		entry, ok, err := b.buildEntry(ctx, periodID, product)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		key := entry.Key
		if _, bad := conflicted[key]; bad {
			continue
		}
		if existing, dup := snapshot.Entries[key]; dup {
			if existing.Price.Equals(entry.Price) {
				continue
			}
			// Same key, different price: trust neither.
			delete(snapshot.Entries, key)
			conflicted[key] = struct{}{}
			continue
		}

		snapshot.Entries[key] = entry
	}

	return snapshot, nil
}

func (b *SnapshotBuilder) buildEntry(ctx context.Context, periodID uuid.UUID, product *Product) (SnapshotEntry, bool, error) {
	if product.PosPrice == nil {
		return SnapshotEntry{}, false, nil
	}

	split := make([]SplitLine, 0, len(product.AccountingRules))
	for _, rule := range product.AccountingRules {
		account, err := b.accounts.FindByNumber(ctx, periodID, rule.AccountNumber)
		if err != nil {
			return SnapshotEntry{}, false, fmt.Errorf("resolving account %s: %w", rule.AccountNumber, err)
		}
		if account == nil {
			return SnapshotEntry{}, false, nil
		}
		split = append(split, SplitLine{
			AccountID:     account.ID,
			AccountNumber: account.Number,
			Amount:        valueobject.NewMoneySEK(rule.Amount),
		})
	}

	price, err := b.derivePrice(ctx, periodID, product)
	if err != nil {
		return SnapshotEntry{}, false, err
	}
	if !price.Amount().Equal(*product.PosPrice) {
		return SnapshotEntry{}, false, nil
	}

	return SnapshotEntry{
		ProductID:  product.ID,
		Key:        product.Key(),
		Split:      split,
		Price:      price,
		CustomUnit: product.CustomUnit,
		MakeTicket: product.MakeTicket,
	}, true, nil
}

// derivePrice resolves the product's VAT account in the period and returns
// net plus VAT. An unresolvable VAT account contributes zero VAT rather
// than failing the build.
func (b *SnapshotBuilder) derivePrice(ctx context.Context, periodID uuid.UUID, product *Product) (valueobject.Money, error) {
	if product.VatAccount == "" {
		return product.GrossPrice(nil), nil
	}
	account, err := b.accounts.FindByNumber(ctx, periodID, product.VatAccount)
	if err != nil {
		return valueobject.Money{}, fmt.Errorf("resolving VAT account %s: %w", product.VatAccount, err)
	}
	if account == nil || account.VatPercentage == nil {
		return product.GrossPrice(nil), nil
	}
	return product.GrossPrice(account.VatPercentage), nil
}

// SnapshotService serves catalog snapshots through the cache, rebuilding
// on misses. Product mutation events invalidate the cached entry; the
// next reader rebuilds.
type SnapshotService struct {
	builder *SnapshotBuilder
	cache   SnapshotCache
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(builder *SnapshotBuilder, cache SnapshotCache) *SnapshotService {
	return &SnapshotService{builder: builder, cache: cache}
}

// Snapshot returns the organization's current snapshot, building and
// caching it when absent
func (s *SnapshotService) Snapshot(ctx context.Context, orgID, periodID uuid.UUID) (*Snapshot, error) {
	if cached, ok := s.cache.Get(ctx, orgID); ok && cached.AccountingPeriodID == periodID {
		return cached, nil
	}

	snapshot, err := s.builder.Build(ctx, orgID, periodID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, orgID, snapshot)
	return snapshot, nil
}
