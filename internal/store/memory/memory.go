package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/xid"
)

// Store keeps all state in process. A transaction holds the write lock for
// its whole duration, so units of work are serialized; writes made through a
// transaction are journaled and undone if the unit fails.
type Store struct {
	mu             sync.RWMutex
	users          map[string]domain.UserAccount
	products       map[string]domain.Product
	sessions       map[string]domain.CashierSession
	openByTerminal map[string]string
	sales          map[string]domain.Sale
	movements      []domain.StockMovement
}

func New() *Store {
	return &Store{
		users:          make(map[string]domain.UserAccount),
		products:       make(map[string]domain.Product),
		sessions:       make(map[string]domain.CashierSession),
		openByTerminal: make(map[string]string),
		sales:          make(map[string]domain.Sale),
		movements:      make([]domain.StockMovement, 0, 256),
	}
}

// NewSeeded returns a store with an admin account and a small demo catalog.
// An empty adminPwd falls back to the dev default "admin123".
func NewSeeded(adminPwd string) *Store {
	s := New()

	if adminPwd == "" {
		adminPwd = "admin123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("hash seed admin password")
	}
	now := time.Now().UTC()
	admin := domain.UserAccount{
		ID:           xid.New("usr"),
		Name:         "Administrator",
		Username:     "admin",
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
	}
	s.users[admin.ID] = admin

	catalog := []struct {
		name, barcode, category string
		price, cost, stock, min string
	}{
		{"Arroz Tipo 1 5kg", "7891000000011", "mercearia", "27.90", "21.50", "40", "10"},
		{"Feijao Carioca 1kg", "7891000000028", "mercearia", "8.49", "6.10", "60", "15"},
		{"Cafe Torrado 500g", "7891000000035", "mercearia", "18.90", "13.20", "30", "8"},
		{"Leite Integral 1L", "7891000000042", "laticinios", "5.29", "3.90", "80", "24"},
		{"Acucar Refinado 1kg", "7891000000059", "mercearia", "4.99", "3.40", "50", "12"},
		{"Banana Prata kg", "", "hortifruti", "6.98", "4.20", "25.5", "5"},
		{"Sabonete 90g", "7891000000066", "higiene", "2.79", "1.60", "3", "10"},
	}
	for _, c := range catalog {
		p := domain.Product{
			ID:            xid.New("prd"),
			Name:          c.name,
			Barcode:       c.barcode,
			Category:      c.category,
			Price:         decimal.RequireFromString(c.price),
			CostPrice:     decimal.RequireFromString(c.cost),
			StockQuantity: decimal.RequireFromString(c.stock),
			MinStock:      decimal.RequireFromString(c.min),
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.products[p.ID] = p
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			ProductID:      p.ID,
			QuantityChange: p.StockQuantity,
			Type:           domain.MovementEntry,
			Timestamp:      now,
			Description:    "initial stock",
		})
	}

	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) journal(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) FindOpenSessionForUpdate(_ context.Context, terminalID string) (*domain.CashierSession, error) {
	id, ok := t.s.openByTerminal[terminalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := t.s.sessions[id]
	return &session, nil
}

func (t *memTx) CreateSession(_ context.Context, session domain.CashierSession) error {
	if _, exists := t.s.openByTerminal[session.TerminalID]; exists && session.Status == domain.SessionOpen {
		return store.ErrSessionAlreadyOpen
	}
	t.s.sessions[session.ID] = session
	if session.Status == domain.SessionOpen {
		t.s.openByTerminal[session.TerminalID] = session.ID
	}
	t.journal(func() {
		delete(t.s.sessions, session.ID)
		if t.s.openByTerminal[session.TerminalID] == session.ID {
			delete(t.s.openByTerminal, session.TerminalID)
		}
	})
	return nil
}

func (t *memTx) CloseSession(_ context.Context, sessionID string, finalBalance decimal.Decimal, at time.Time) (*domain.CashierSession, error) {
	prev, ok := t.s.sessions[sessionID]
	if !ok || prev.Status != domain.SessionOpen {
		return nil, store.ErrNoOpenSession
	}
	closed := prev
	closed.Status = domain.SessionClosed
	closed.EndTime = &at
	closed.FinalBalance = &finalBalance

	t.s.sessions[sessionID] = closed
	delete(t.s.openByTerminal, prev.TerminalID)
	t.journal(func() {
		t.s.sessions[sessionID] = prev
		t.s.openByTerminal[prev.TerminalID] = sessionID
	})
	return &closed, nil
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	found := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) SetProductStock(_ context.Context, id string, qty decimal.Decimal) error {
	prev, ok := t.s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	if qty.IsNegative() {
		return &store.ConsistencyError{Op: "set stock", Err: fmt.Errorf("stock of %s would become %s", id, qty)}
	}
	next := prev
	next.StockQuantity = qty
	next.UpdatedAt = time.Now().UTC()
	t.s.products[id] = next
	t.journal(func() { t.s.products[id] = prev })
	return nil
}

func (t *memTx) InsertProduct(_ context.Context, product domain.Product) error {
	if _, exists := t.s.products[product.ID]; exists {
		return fmt.Errorf("product %s: %w", product.ID, store.ErrDuplicate)
	}
	if err := t.checkBarcode(product.ID, product.Barcode); err != nil {
		return err
	}
	t.s.products[product.ID] = product
	t.journal(func() { delete(t.s.products, product.ID) })
	return nil
}

func (t *memTx) UpdateProduct(_ context.Context, product domain.Product) error {
	prev, ok := t.s.products[product.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := t.checkBarcode(product.ID, product.Barcode); err != nil {
		return err
	}
	product.StockQuantity = prev.StockQuantity
	t.s.products[product.ID] = product
	t.journal(func() { t.s.products[product.ID] = prev })
	return nil
}

func (t *memTx) checkBarcode(id string, barcode string) error {
	if barcode == "" {
		return nil
	}
	for _, p := range t.s.products {
		if p.ID != id && p.Barcode == barcode {
			return fmt.Errorf("barcode %s: %w", barcode, store.ErrDuplicate)
		}
	}
	return nil
}

func (t *memTx) ProductHasSales(_ context.Context, id string) (bool, error) {
	for _, sale := range t.s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memTx) DeleteProduct(_ context.Context, id string) error {
	prev, ok := t.s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	prevMovements := t.s.movements
	kept := make([]domain.StockMovement, 0, len(prevMovements))
	for _, m := range prevMovements {
		if m.ProductID != id {
			kept = append(kept, m)
		}
	}
	t.s.movements = kept
	delete(t.s.products, id)
	t.journal(func() {
		t.s.products[id] = prev
		t.s.movements = prevMovements
	})
	return nil
}

func (t *memTx) InsertMovement(_ context.Context, movement domain.StockMovement) error {
	if _, ok := t.s.products[movement.ProductID]; !ok {
		return store.ErrNotFound
	}
	n := len(t.s.movements)
	t.s.movements = append(t.s.movements, movement)
	t.journal(func() { t.s.movements = t.s.movements[:n] })
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.s.sales[sale.ID]; exists {
		return fmt.Errorf("sale %s: %w", sale.ID, store.ErrDuplicate)
	}
	sale.Items = slices.Clone(sale.Items)
	t.s.sales[sale.ID] = sale
	t.journal(func() { delete(t.s.sales, sale.ID) })
	return nil
}

func (t *memTx) GetUserForUpdate(_ context.Context, id string) (*domain.UserAccount, error) {
	u, ok := t.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) InsertUser(_ context.Context, user domain.UserAccount) error {
	for _, u := range t.s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return fmt.Errorf("username %s: %w", user.Username, store.ErrDuplicate)
		}
	}
	t.s.users[user.ID] = user
	t.journal(func() { delete(t.s.users, user.ID) })
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, user domain.UserAccount) error {
	prev, ok := t.s.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	t.s.users[user.ID] = user
	t.journal(func() { t.s.users[user.ID] = prev })
	return nil
}

func (t *memTx) UserHasHistory(_ context.Context, id string) (bool, error) {
	for _, session := range t.s.sessions {
		if session.OpenedBy == id {
			return true, nil
		}
	}
	for _, sale := range t.s.sales {
		if sale.UserID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) DeleteUser(_ context.Context, id string) error {
	prev, ok := t.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(t.s.users, id)
	t.journal(func() { t.s.users[id] = prev })
	return nil
}

func (t *memTx) ReplaceAll(_ context.Context, snapshot domain.Snapshot) error {
	prevUsers, prevProducts, prevSessions := t.s.users, t.s.products, t.s.sessions
	prevOpen, prevSales, prevMovements := t.s.openByTerminal, t.s.sales, t.s.movements
	next := New()

	for _, u := range snapshot.Users {
		next.users[u.ID] = u
	}
	for _, p := range snapshot.Products {
		next.products[p.ID] = p
	}
	for _, cs := range snapshot.Sessions {
		if cs.Status == domain.SessionOpen {
			if _, dup := next.openByTerminal[cs.TerminalID]; dup {
				return &store.ConsistencyError{Op: "restore", Err: fmt.Errorf("terminal %s has two open sessions", cs.TerminalID)}
			}
			next.openByTerminal[cs.TerminalID] = cs.ID
		}
		next.sessions[cs.ID] = cs
	}
	for _, sale := range snapshot.Sales {
		sale.Items = nil
		next.sales[sale.ID] = sale
	}
	for _, item := range snapshot.SaleItems {
		sale, ok := next.sales[item.SaleID]
		if !ok {
			return &store.ConsistencyError{Op: "restore", Err: fmt.Errorf("sale item %s references unknown sale %s", item.ID, item.SaleID)}
		}
		sale.Items = append(sale.Items, item)
		next.sales[item.SaleID] = sale
	}
	for _, m := range snapshot.StockMovements {
		if _, ok := next.products[m.ProductID]; !ok {
			return &store.ConsistencyError{Op: "restore", Err: fmt.Errorf("movement %s references unknown product %s", m.ID, m.ProductID)}
		}
	}
	next.movements = append(next.movements, snapshot.StockMovements...)

	t.s.users = next.users
	t.s.products = next.products
	t.s.sessions = next.sessions
	t.s.openByTerminal = next.openByTerminal
	t.s.sales = next.sales
	t.s.movements = next.movements
	t.journal(func() {
		t.s.users = prevUsers
		t.s.products = prevProducts
		t.s.sessions = prevSessions
		t.s.openByTerminal = prevOpen
		t.s.sales = prevSales
		t.s.movements = prevMovements
	})
	return nil
}

func (s *Store) GetOpenSession(_ context.Context, terminalID string) (*domain.CashierSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openByTerminal[terminalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := s.sessions[id]
	return &session, nil
}

func (s *Store) SumCompletedSales(_ context.Context, sessionID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, sale := range s.sales {
		if sale.SessionID == sessionID && sale.Status == domain.SaleCompleted {
			total = total.Add(sale.TotalAmount)
		}
	}
	return total, nil
}

func (s *Store) ListSessionsStartedBetween(_ context.Context, from time.Time, to time.Time) ([]domain.CashierSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashierSession, 0, 16)
	for _, session := range s.sessions {
		if !session.StartTime.Before(from) && session.StartTime.Before(to) {
			result = append(result, session)
		}
	}
	slices.SortFunc(result, func(a, b domain.CashierSession) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result, nil
}

func (s *Store) ListSalesBySession(_ context.Context, sessionID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if sale.SessionID == sessionID {
			sale.Items = slices.Clone(sale.Items)
			result = append(result, sale)
		}
	}
	sortSalesNewestFirst(result)
	return result, nil
}

func (s *Store) SalesSummary(_ context.Context, from time.Time, to time.Time) (decimal.Decimal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	count := 0
	for _, sale := range s.sales {
		if sale.Status != domain.SaleCompleted || sale.Timestamp.Before(from) || !sale.Timestamp.Before(to) {
			continue
		}
		total = total.Add(sale.TotalAmount)
		count++
	}
	return total, count, nil
}

func (s *Store) TopProducts(_ context.Context, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sold := make(map[string]decimal.Decimal)
	for _, sale := range s.sales {
		if sale.Status != domain.SaleCompleted {
			continue
		}
		for _, item := range sale.Items {
			sold[item.ProductID] = sold[item.ProductID].Add(item.Quantity)
		}
	}

	result := make([]domain.TopProduct, 0, len(sold))
	for id, qty := range sold {
		p, ok := s.products[id]
		if !ok {
			continue
		}
		result = append(result, domain.TopProduct{ProductID: id, Name: p.Name, QuantitySold: qty})
	}
	slices.SortFunc(result, func(a, b domain.TopProduct) int {
		if c := b.QuantitySold.Cmp(a.QuantitySold); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) FindProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if barcode != "" && p.Barcode == barcode {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(result, filter.Skip, filter.Limit), nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.Active && p.StockQuantity.LessThan(p.MinStock) {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) iter.Seq2[domain.MovementRecord, error] {
	return func(yield func(domain.MovementRecord, error) bool) {
		s.mu.RLock()
		records := make([]domain.MovementRecord, 0, len(s.movements))
		for i := len(s.movements) - 1; i >= 0; i-- {
			m := s.movements[i]
			if !matchesMovement(m, filter) {
				continue
			}
			records = append(records, domain.MovementRecord{StockMovement: m, ProductName: s.products[m.ProductID].Name})
		}
		s.mu.RUnlock()

		slices.SortStableFunc(records, func(a, b domain.MovementRecord) int {
			return b.Timestamp.Compare(a.Timestamp)
		})
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				yield(domain.MovementRecord{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func matchesMovement(m domain.StockMovement, filter domain.MovementFilter) bool {
	if filter.ProductID != "" && m.ProductID != filter.ProductID {
		return false
	}
	if filter.Type != "" && m.Type != filter.Type {
		return false
	}
	if filter.From != nil && m.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && m.Timestamp.After(*filter.To) {
		return false
	}
	return true
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, activeOnly bool) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		if activeOnly && !u.Active {
			continue
		}
		result = append(result, u)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int { return cmp.Compare(a.Username, b.Username) })
	return result, nil
}

func (s *Store) Snapshot(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Users:          make([]domain.UserAccount, 0, len(s.users)),
		Products:       make([]domain.Product, 0, len(s.products)),
		Sessions:       make([]domain.CashierSession, 0, len(s.sessions)),
		Sales:          make([]domain.Sale, 0, len(s.sales)),
		SaleItems:      make([]domain.SaleItem, 0, len(s.sales)),
		StockMovements: slices.Clone(s.movements),
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	for _, cs := range s.sessions {
		snap.Sessions = append(snap.Sessions, cs)
	}
	for _, sale := range s.sales {
		snap.SaleItems = append(snap.SaleItems, sale.Items...)
		sale.Items = nil
		snap.Sales = append(snap.Sales, sale)
	}
	slices.SortFunc(snap.Users, func(a, b domain.UserAccount) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Products, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Sessions, func(a, b domain.CashierSession) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.Sales, func(a, b domain.Sale) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.SaleItems, func(a, b domain.SaleItem) int { return cmp.Compare(a.ID, b.ID) })
	return snap, nil
}

func (s *Store) Stats(_ context.Context) (domain.SnapshotStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := 0
	for _, sale := range s.sales {
		items += len(sale.Items)
	}
	return domain.SnapshotStats{
		Users:          len(s.users),
		Products:       len(s.products),
		Sessions:       len(s.sessions),
		Sales:          len(s.sales),
		SaleItems:      items,
		StockMovements: len(s.movements),
	}, nil
}

func sortSalesNewestFirst(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func paginate[T any](items []T, skip int, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ store.Repository = (*Store)(nil)
