// Package catalog contains the application services around the product
// catalog. Mutations publish the product's domain events so that cached
// point-of-sale snapshots invalidate; a catalog edited behind the bus
// would keep serving stale prices to the importer.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openbooks/backend/internal/domain/catalog"
	"github.com/openbooks/backend/internal/domain/shared"
	"github.com/openbooks/backend/internal/infrastructure/telemetry"
)

// ProductService handles product catalog mutations
type ProductService struct {
	products catalog.ProductRepository
	events   shared.EventPublisher
}

// NewProductService creates a new ProductService
func NewProductService(products catalog.ProductRepository, events shared.EventPublisher) *ProductService {
	return &ProductService{products: products, events: events}
}

// CreateProductRequest carries the fields of a new catalog product
type CreateProductRequest struct {
	Name            string
	Variant         string
	AccountingRules []catalog.AccountingRule
	VatAccount      string
	PosPrice        *decimal.Decimal
	CustomUnit      string
	MakeTicket      bool
}

// Create adds a product to the organization's catalog
func (s *ProductService) Create(ctx context.Context, orgID uuid.UUID, req CreateProductRequest) (*catalog.Product, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "create_product")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrOrgID, orgID.String())

	product, err := catalog.NewProduct(orgID, req.Name, req.Variant)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if len(req.AccountingRules) > 0 {
		if err := product.SetAccountingRules(req.AccountingRules); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	if req.VatAccount != "" {
		product.SetVatAccount(req.VatAccount)
	}
	if req.PosPrice != nil {
		product.SetPosPrice(req.PosPrice)
	}
	if req.CustomUnit != "" {
		product.SetCustomUnit(req.CustomUnit)
	}
	if req.MakeTicket {
		product.SetMakeTicket(true)
	}

	if err := s.products.Save(ctx, product); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("saving product: %w", err)
	}
	s.publish(ctx, product)

	return product, nil
}

// Rename changes a product's name and variant
func (s *ProductService) Rename(ctx context.Context, orgID, productID uuid.UUID, name, variant string) (*catalog.Product, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "rename_product")
	defer span.End()

	return s.mutate(ctx, orgID, productID, func(product *catalog.Product) error {
		return product.Update(name, variant)
	})
}

// SetAccountingRules replaces a product's price decomposition and VAT
// account
func (s *ProductService) SetAccountingRules(ctx context.Context, orgID, productID uuid.UUID, rules []catalog.AccountingRule, vatAccount string) (*catalog.Product, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "set_accounting_rules")
	defer span.End()

	return s.mutate(ctx, orgID, productID, func(product *catalog.Product) error {
		if err := product.SetAccountingRules(rules); err != nil {
			return err
		}
		if vatAccount != product.VatAccount {
			product.SetVatAccount(vatAccount)
		}
		return nil
	})
}

// SetPosPrice changes a product's point-of-sale price
func (s *ProductService) SetPosPrice(ctx context.Context, orgID, productID uuid.UUID, price *decimal.Decimal) (*catalog.Product, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "set_pos_price")
	defer span.End()

	return s.mutate(ctx, orgID, productID, func(product *catalog.Product) error {
		product.SetPosPrice(price)
		return nil
	})
}

// Archive removes a product from catalog lookups without deleting it
func (s *ProductService) Archive(ctx context.Context, orgID, productID uuid.UUID) (*catalog.Product, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "archive_product")
	defer span.End()

	return s.mutate(ctx, orgID, productID, func(product *catalog.Product) error {
		product.Archive()
		return nil
	})
}

// mutate loads a product, applies the change and saves it. The product's
// collected events are published only after the save succeeds.
func (s *ProductService) mutate(ctx context.Context, orgID, productID uuid.UUID, change func(*catalog.Product) error) (*catalog.Product, error) {
	product, err := s.products.FindByIDForOrg(ctx, orgID, productID)
	if err != nil {
		return nil, fmt.Errorf("loading product: %w", err)
	}
	if product == nil {
		return nil, shared.NewDomainError("PRODUCT_NOT_FOUND", "Product not found")
	}

	if err := change(product); err != nil {
		return nil, err
	}

	if err := s.products.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("saving product: %w", err)
	}
	s.publish(ctx, product)

	return product, nil
}

func (s *ProductService) publish(ctx context.Context, product *catalog.Product) {
	if s.events == nil {
		return
	}
	events := product.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.events.Publish(ctx, events...)
	product.ClearDomainEvents()
}
