package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/xid"
)

const (
	defaultProductPage = 100
	maxProductPage     = 1000
)

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.Skip < 0 {
		return nil, invalidf("skip must not be negative")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultProductPage
	}
	if filter.Limit > maxProductPage {
		filter.Limit = maxProductPage
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	return *p, nil
}

// ProductByBarcode finds the product a scanner read.
func (s *Service) ProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, invalidf("barcode is required")
	}
	p, err := s.repo.FindProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, fmt.Errorf("barcode %s: %w", barcode, err)
	}
	return *p, nil
}

// CreateProduct stores a new product. A positive initial stock is written as
// an ENTRY movement in the same transaction as the product row.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)
	if err := validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	if err := checkQuantityScale("stock_quantity", req.StockQuantity); err != nil {
		return domain.Product{}, err
	}
	if err := checkQuantityScale("min_stock", req.MinStock); err != nil {
		return domain.Product{}, err
	}
	if err := checkMoneyScale("price", req.Price); err != nil {
		return domain.Product{}, err
	}
	if err := checkMoneyScale("cost_price", req.CostPrice); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:            xid.New("prd"),
		Name:          req.Name,
		Barcode:       req.Barcode,
		Category:      req.Category,
		Price:         req.Price,
		CostPrice:     req.CostPrice,
		StockQuantity: decimal.Zero,
		MinStock:      req.MinStock,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created := product
	err := s.guard.Run(ctx, "create product", func(tx store.Tx) error {
		created = product
		if err := tx.InsertProduct(ctx, created); err != nil {
			return err
		}
		if !req.StockQuantity.IsPositive() {
			return nil
		}
		_, err := applyMovement(ctx, tx, &created, req.StockQuantity, domain.MovementEntry, "initial stock", now)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.audit(ctx, "product_create", "product", created.ID).
		Str("initial_stock", created.StockQuantity.String()).
		Msg("product created")
	return created, nil
}

// UpdateProduct changes descriptive fields and prices. Stock is left alone.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	for field, v := range map[string]*decimal.Decimal{"price": req.Price, "cost_price": req.CostPrice, "min_stock": req.MinStock} {
		if v != nil && v.IsNegative() {
			return domain.Product{}, invalidf("%s must not be negative", field)
		}
	}
	if req.Price != nil {
		if err := checkMoneyScale("price", *req.Price); err != nil {
			return domain.Product{}, err
		}
	}
	if req.CostPrice != nil {
		if err := checkMoneyScale("cost_price", *req.CostPrice); err != nil {
			return domain.Product{}, err
		}
	}
	if req.MinStock != nil {
		if err := checkQuantityScale("min_stock", *req.MinStock); err != nil {
			return domain.Product{}, err
		}
	}

	var updated domain.Product
	err := s.guard.Run(ctx, "update product", func(tx store.Tx) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("product %s: %w", id, err)
		}
		updated = *current
		if req.Name != nil {
			updated.Name = strings.TrimSpace(*req.Name)
		}
		if req.Barcode != nil {
			updated.Barcode = strings.TrimSpace(*req.Barcode)
		}
		if req.Category != nil {
			updated.Category = strings.TrimSpace(*req.Category)
		}
		if req.Price != nil {
			updated.Price = *req.Price
		}
		if req.CostPrice != nil {
			updated.CostPrice = *req.CostPrice
		}
		if req.MinStock != nil {
			updated.MinStock = *req.MinStock
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}
		if updated.Name == "" {
			return invalidf("name is required")
		}
		updated.UpdatedAt = s.now()
		return tx.UpdateProduct(ctx, updated)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.audit(ctx, "product_update", "product", id).Msg("product updated")
	return updated, nil
}

// DeleteProduct removes a product that was never sold, along with its ledger.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.guard.Run(ctx, "delete product", func(tx store.Tx) error {
		if _, err := tx.GetProductForUpdate(ctx, id); err != nil {
			return fmt.Errorf("product %s: %w", id, err)
		}
		sold, err := tx.ProductHasSales(ctx, id)
		if err != nil {
			return err
		}
		if sold {
			return fmt.Errorf("product %s: %w, deactivate it instead", id, store.ErrProductInUse)
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "product_delete", "product", id).Msg("product deleted")
	return nil
}
