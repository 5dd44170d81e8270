package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/ledger"
	"github.com/openbooks/backend/internal/domain/payment"
	"github.com/openbooks/backend/internal/domain/purchase"
	"github.com/openbooks/backend/internal/domain/shared"
)

// memRepo is an in-memory OrgRepository for tests
type memRepo[T any] struct {
	items map[uuid.UUID]T
	getID func(T) uuid.UUID
}

func newMemRepo[T any](getID func(T) uuid.UUID) *memRepo[T] {
	return &memRepo[T]{items: make(map[uuid.UUID]T), getID: getID}
}

func (r *memRepo[T]) FindByID(_ context.Context, id uuid.UUID) (*T, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *memRepo[T]) FindAll(_ context.Context, _ shared.Filter) ([]T, error) {
	out := make([]T, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	return out, nil
}

func (r *memRepo[T]) Save(_ context.Context, entity *T) error {
	r.items[r.getID(*entity)] = *entity
	return nil
}

func (r *memRepo[T]) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.items, id)
	return nil
}

func (r *memRepo[T]) Count(_ context.Context, _ shared.Filter) (int64, error) {
	return int64(len(r.items)), nil
}

func (r *memRepo[T]) FindByIDForOrg(ctx context.Context, _ uuid.UUID, id uuid.UUID) (*T, error) {
	return r.FindByID(ctx, id)
}

func (r *memRepo[T]) FindAllForOrg(ctx context.Context, _ uuid.UUID, f shared.Filter) ([]T, error) {
	return r.FindAll(ctx, f)
}

type fakePurchaseRepo struct {
	*memRepo[purchase.Purchase]
}

func newFakePurchaseRepo() *fakePurchaseRepo {
	return &fakePurchaseRepo{newMemRepo(func(p purchase.Purchase) uuid.UUID { return p.ID })}
}

func (r *fakePurchaseRepo) FindByOCR(_ context.Context, orgID uuid.UUID, ocr string) (*purchase.Purchase, error) {
	for _, p := range r.items {
		if p.OrgID == orgID && p.OCR == ocr {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakePurchaseRepo) FindUnpaidExpiredBefore(_ context.Context, orgID uuid.UUID, before time.Time) ([]purchase.Purchase, error) {
	var out []purchase.Purchase
	for _, p := range r.items {
		if p.OrgID != orgID || p.Kind != purchase.KindInvoice || p.PaymentState != purchase.PaymentStateUnpaid {
			continue
		}
		if p.ExpiryDate != nil && p.ExpiryDate.Before(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePaymentRepo struct {
	*memRepo[payment.Payment]
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{newMemRepo(func(p payment.Payment) uuid.UUID { return p.ID })}
}

func (r *fakePaymentRepo) FindByDedupKey(_ context.Context, orgID uuid.UUID, key string) (*payment.Payment, error) {
	for _, p := range r.items {
		if p.OrgID == orgID && p.DedupKey == key {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) FindUnapproved(_ context.Context, orgID uuid.UUID) ([]payment.Payment, error) {
	var out []payment.Payment
	for _, p := range r.items {
		if p.OrgID == orgID && !p.Approved {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.Before(out[j].TransactionDate) })
	return out, nil
}

type fakeProviderRepo struct {
	*memRepo[payment.PaymentProvider]
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{newMemRepo(func(p payment.PaymentProvider) uuid.UUID { return p.ID })}
}

func (r *fakeProviderRepo) FindByChannel(_ context.Context, orgID uuid.UUID, channel payment.Channel) (*payment.PaymentProvider, error) {
	for _, p := range r.items {
		if p.OrgID == orgID && p.Channel == channel {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

type fakeAccountRepo struct {
	*memRepo[ledger.Account]
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{newMemRepo(func(a ledger.Account) uuid.UUID { return a.ID })}
}

func (r *fakeAccountRepo) FindByNumber(_ context.Context, periodID uuid.UUID, number string) (*ledger.Account, error) {
	for _, a := range r.items {
		if a.AccountingPeriodID == periodID && a.Number == number {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

type fakeSeriesRepo struct {
	*memRepo[ledger.VerificationSeries]
}

func newFakeSeriesRepo() *fakeSeriesRepo {
	return &fakeSeriesRepo{newMemRepo(func(s ledger.VerificationSeries) uuid.UUID { return s.ID })}
}

func (r *fakeSeriesRepo) FindByName(_ context.Context, periodID uuid.UUID, name string) (*ledger.VerificationSeries, error) {
	for _, s := range r.items {
		if s.AccountingPeriodID == periodID && s.Name == name {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

type fakeVerificationRepo struct {
	*memRepo[ledger.Verification]
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{newMemRepo(func(v ledger.Verification) uuid.UUID { return v.ID })}
}

func (r *fakeVerificationRepo) FindByExternalRef(_ context.Context, orgID uuid.UUID, ref string) (*ledger.Verification, error) {
	for _, v := range r.items {
		if v.OrgID == orgID && v.ExternalRef == ref {
			found := v
			return &found, nil
		}
	}
	return nil, nil
}

type fakeProductRepo struct {
	*memRepo[catalog.Product]
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{newMemRepo(func(p catalog.Product) uuid.UUID { return p.ID })}
}

func (r *fakeProductRepo) FindActiveByOrg(_ context.Context, orgID uuid.UUID) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range r.items {
		if p.OrgID == orgID && !p.Archived {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSnapshotCache struct {
	snapshots map[uuid.UUID]*catalog.Snapshot
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{snapshots: make(map[uuid.UUID]*catalog.Snapshot)}
}

func (c *fakeSnapshotCache) Get(_ context.Context, orgID uuid.UUID) (*catalog.Snapshot, bool) {
	s, ok := c.snapshots[orgID]
	return s, ok
}

func (c *fakeSnapshotCache) Put(_ context.Context, orgID uuid.UUID, snapshot *catalog.Snapshot) {
	c.snapshots[orgID] = snapshot
}

func (c *fakeSnapshotCache) Invalidate(_ context.Context, orgID uuid.UUID) {
	delete(c.snapshots, orgID)
}

// fakeRecalculator records every balance recomputation call
type fakeRecalculator struct {
	calls [][]uuid.UUID
}

func (r *fakeRecalculator) RecalculateBalances(_ context.Context, accountIDs []uuid.UUID) error {
	r.calls = append(r.calls, accountIDs)
	return nil
}

type fakeOCRSequence struct {
	counter int64
}

func (s *fakeOCRSequence) Next(_ context.Context, _ uuid.UUID, _ int) (int64, error) {
	s.counter++
	return s.counter, nil
}

type fakeIdempotencyStore struct {
	seen map[string]bool
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{seen: make(map[string]bool)}
}

func (s *fakeIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *fakeIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	return s.seen[key], nil
}

func (s *fakeIdempotencyStore) Close() error { return nil }

// fakePublisher records every event published by the services
type fakePublisher struct {
	published []shared.DomainEvent
}

func (p *fakePublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.published = append(p.published, events...)
	return nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(payload string) (string, error) { return "sig", nil }

// failingRefunder simulates a provider rejecting the refund
type failingRefunder struct {
	channel payment.Channel
}

func (r failingRefunder) Refund(_ context.Context, _ *payment.Payment) (*payment.Payment, error) {
	return nil, payment.NewRefundError(r.channel, "provider unreachable", nil)
}
