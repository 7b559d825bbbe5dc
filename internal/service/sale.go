package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/xid"
)

// CreateSale records a multi-line sale on the terminal's open session. Stock
// for every line is checked and decremented, one SALE movement is written per
// line, and the sale with its items is stored, all in one transaction. Any
// failing line aborts the whole sale.
func (s *Service) CreateSale(ctx context.Context, terminalID string, req domain.SaleRequest) (domain.Receipt, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Receipt{}, err
	}
	if terminalID == "" {
		return domain.Receipt{}, invalidf("terminal id is required")
	}
	if err := validateStruct(req); err != nil {
		return domain.Receipt{}, err
	}
	for i, line := range req.Items {
		if err := checkQuantityScale(fmt.Sprintf("items[%d].quantity", i), line.Quantity); err != nil {
			return domain.Receipt{}, err
		}
	}

	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, line.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var sale domain.Sale
	var names map[string]string
	err = s.guard.Run(ctx, "create sale", func(tx store.Tx) error {
		session, err := tx.FindOpenSessionForUpdate(ctx, terminalID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("terminal %s: %w", terminalID, store.ErrNoOpenSession)
		}
		if err != nil {
			return err
		}

		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		now := s.now()
		sale = domain.Sale{
			ID:            xid.New("sale"),
			UserID:        actor.ID,
			SessionID:     session.ID,
			PaymentMethod: req.PaymentMethod,
			Timestamp:     now,
			Status:        domain.SaleCompleted,
			Items:         make([]domain.SaleItem, 0, len(req.Items)),
		}
		names = make(map[string]string, len(products))
		total := decimal.Zero

		for i, line := range req.Items {
			product, ok := products[line.ProductID]
			if !ok {
				return fmt.Errorf("line %d: product %s: %w", i+1, line.ProductID, store.ErrNotFound)
			}
			if _, err := applyMovement(ctx, tx, &product, line.Quantity.Neg(), domain.MovementSale, "sale "+sale.ID, now); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			products[line.ProductID] = product
			names[product.ID] = product.Name

			subtotal := line.Quantity.Mul(product.Price)
			sale.Items = append(sale.Items, domain.SaleItem{
				ID:        xid.New("item"),
				SaleID:    sale.ID,
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
				Subtotal:  subtotal,
			})
			total = total.Add(subtotal)
		}

		sale.TotalAmount = total
		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	s.invalidateStatus(ctx, terminalID)
	s.audit(ctx, "sale_create", "sale", sale.ID).
		Str("terminal_id", terminalID).
		Str("total", sale.TotalAmount.String()).
		Str("payment_method", string(sale.PaymentMethod)).
		Int("lines", len(sale.Items)).
		Msg("sale completed")

	receipt := composeReceipt(sale, names, s.sellerSummary(ctx, actor))
	receipt.TerminalID = terminalID
	return receipt, nil
}

// ListSales returns the sales of a session with their items, newest first.
func (s *Service) ListSales(ctx context.Context, sessionID string) ([]domain.Receipt, error) {
	if sessionID == "" {
		return nil, invalidf("session id is required")
	}
	sales, err := s.repo.ListSalesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sales)*2)
	for _, sale := range sales {
		for _, item := range sale.Items {
			ids = append(ids, item.ProductID)
		}
	}
	slices.Sort(ids)
	products, err := s.repo.GetProductsByIDs(ctx, slices.Compact(ids))
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(products))
	for id, p := range products {
		names[id] = p.Name
	}

	sellers := make(map[string]domain.SellerSummary)
	receipts := make([]domain.Receipt, 0, len(sales))
	for _, sale := range sales {
		seller, ok := sellers[sale.UserID]
		if !ok {
			seller = s.sellerSummary(ctx, domain.Actor{ID: sale.UserID})
			sellers[sale.UserID] = seller
		}
		receipts = append(receipts, composeReceipt(sale, names, seller))
	}
	return receipts, nil
}

func (s *Service) sellerSummary(ctx context.Context, actor domain.Actor) domain.SellerSummary {
	summary := domain.SellerSummary{ID: actor.ID, Username: actor.Username}
	user, err := s.repo.GetUser(ctx, actor.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("user_id", actor.ID).Msg("seller lookup failed")
		}
		return summary
	}
	summary.Name = user.Name
	summary.Username = user.Username
	return summary
}

func composeReceipt(sale domain.Sale, names map[string]string, seller domain.SellerSummary) domain.Receipt {
	items := make([]domain.ReceiptItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, domain.ReceiptItem{
			ProductID:   item.ProductID,
			ProductName: names[item.ProductID],
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return domain.Receipt{
		ID:            sale.ID,
		SessionID:     sale.SessionID,
		PaymentMethod: sale.PaymentMethod,
		Status:        sale.Status,
		Timestamp:     sale.Timestamp,
		TotalAmount:   sale.TotalAmount,
		Seller:        seller,
		Items:         items,
	}
}
