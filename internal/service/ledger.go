package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/xid"
)

// checkMovement enforces the sign rules of each movement type.
func checkMovement(delta decimal.Decimal, typ domain.MovementType) error {
	if delta.IsZero() {
		return invalidf("quantity change must not be zero")
	}
	switch typ {
	case domain.MovementEntry:
		if !delta.IsPositive() {
			return invalidf("entry movements must add stock")
		}
	case domain.MovementSale:
		if !delta.IsNegative() {
			return invalidf("sale movements must remove stock")
		}
	case domain.MovementAdjustment:
	default:
		return invalidf("unknown movement type %q", typ)
	}
	return checkQuantityScale("quantity", delta)
}

// applyMovement changes the stock of a product already locked by tx and appends
// the matching ledger row. product is updated in place so later lines of the
// same unit see the new quantity.
func applyMovement(ctx context.Context, tx store.Tx, product *domain.Product, delta decimal.Decimal, typ domain.MovementType, description string, at time.Time) (domain.StockMovement, error) {
	if err := checkMovement(delta, typ); err != nil {
		return domain.StockMovement{}, err
	}

	next := product.StockQuantity.Add(delta)
	if next.IsNegative() {
		return domain.StockMovement{}, fmt.Errorf("%w for %s, available: %s", store.ErrInsufficientStock, product.Name, product.StockQuantity.String())
	}
	if err := tx.SetProductStock(ctx, product.ID, next); err != nil {
		return domain.StockMovement{}, err
	}

	movement := domain.StockMovement{
		ID:             xid.New("mov"),
		ProductID:      product.ID,
		QuantityChange: delta,
		Type:           typ,
		Timestamp:      at,
		Description:    description,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return domain.StockMovement{}, err
	}
	product.StockQuantity = next
	return movement, nil
}

// RecordStock applies a signed stock change to one product together with its
// ledger row.
func (s *Service) RecordStock(ctx context.Context, productID string, delta decimal.Decimal, typ domain.MovementType, description string) (domain.StockMovement, error) {
	if productID == "" {
		return domain.StockMovement{}, invalidf("product id is required")
	}
	if err := checkMovement(delta, typ); err != nil {
		return domain.StockMovement{}, err
	}

	var movement domain.StockMovement
	err := s.guard.Run(ctx, "record stock", func(tx store.Tx) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return fmt.Errorf("product %s: %w", productID, err)
		}
		movement, err = applyMovement(ctx, tx, product, delta, typ, description, s.now())
		return err
	})
	if err != nil {
		return domain.StockMovement{}, err
	}

	s.audit(ctx, "stock_"+string(typ), "product", productID).
		Str("quantity_change", delta.String()).
		Msg("stock movement recorded")
	return movement, nil
}

func (s *Service) AddStock(ctx context.Context, productID string, quantity decimal.Decimal) (domain.StockMovement, error) {
	if !quantity.IsPositive() {
		return domain.StockMovement{}, invalidf("quantity must be greater than zero")
	}
	return s.RecordStock(ctx, productID, quantity, domain.MovementEntry, "stock replenishment")
}

func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustmentRequest) (domain.StockMovement, error) {
	if err := validateStruct(req); err != nil {
		return domain.StockMovement{}, err
	}
	description := req.Description
	if description == "" {
		description = "manual adjustment"
	}
	return s.RecordStock(ctx, productID, req.Quantity, domain.MovementAdjustment, description)
}

// StockHistory streams ledger rows newest first.
func (s *Service) StockHistory(ctx context.Context, filter domain.MovementFilter) (iter.Seq2[domain.MovementRecord, error], error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, invalidf("unknown movement type %q", filter.Type)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, invalidf("end date is before start date")
	}
	return s.repo.ListMovements(ctx, filter), nil
}
