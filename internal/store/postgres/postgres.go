package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// New connects to databaseURL and applies the schema. lockTimeout bounds how
// long a transaction waits for a row lock; zero leaves the server default.
func New(ctx context.Context, databaseURL string, lockTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, lockTimeout: lockTimeout}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return classify("set lock_timeout", err)
		}
	}

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return classify("transaction", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type pgTx struct {
	tx *sql.Tx
}

const sessionColumns = `id, terminal_id, opened_by, start_time, end_time, initial_balance, final_balance, status`

func scanSession(row rowScanner) (*domain.CashierSession, error) {
	var cs domain.CashierSession
	var endTime sql.NullTime
	var finalBalance decimal.NullDecimal
	if err := row.Scan(&cs.ID, &cs.TerminalID, &cs.OpenedBy, &cs.StartTime, &endTime, &cs.InitialBalance, &finalBalance, &cs.Status); err != nil {
		return nil, err
	}
	cs.StartTime = cs.StartTime.UTC()
	if endTime.Valid {
		at := endTime.Time.UTC()
		cs.EndTime = &at
	}
	if finalBalance.Valid {
		fb := finalBalance.Decimal
		cs.FinalBalance = &fb
	}
	return &cs, nil
}

func (t *pgTx) FindOpenSessionForUpdate(ctx context.Context, terminalID string) (*domain.CashierSession, error) {
	session, err := scanSession(t.tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cashier_sessions
		WHERE terminal_id = $1 AND status = 'open'
		FOR UPDATE
	`, terminalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return session, err
}

func (t *pgTx) CreateSession(ctx context.Context, session domain.CashierSession) error {
	return insertSession(ctx, t.tx, session)
}

func insertSession(ctx context.Context, q queryer, session domain.CashierSession) error {
	var finalBalance any
	if session.FinalBalance != nil {
		finalBalance = *session.FinalBalance
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO cashier_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, session.ID, session.TerminalID, session.OpenedBy, session.StartTime, nullTime(session.EndTime),
		session.InitialBalance, finalBalance, session.Status)
	if err != nil {
		if isUniqueViolation(err, "ux_cashier_sessions_open_terminal") {
			return store.ErrSessionAlreadyOpen
		}
		return err
	}
	return nil
}

func (t *pgTx) CloseSession(ctx context.Context, sessionID string, finalBalance decimal.Decimal, at time.Time) (*domain.CashierSession, error) {
	session, err := scanSession(t.tx.QueryRowContext(ctx, `
		UPDATE cashier_sessions
		SET status = 'closed', end_time = $2, final_balance = $3
		WHERE id = $1 AND status = 'open'
		RETURNING `+sessionColumns, sessionID, at, finalBalance))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoOpenSession
	}
	return session, err
}

const productColumns = `id, name, barcode, category, price, cost_price, stock_quantity, min_stock, is_active, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var barcode, category sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &barcode, &category, &p.Price, &p.CostPrice, &p.StockQuantity, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Barcode = barcode.String
	p.Category = category.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func queryProducts(ctx context.Context, q queryer, query string, args ...any) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products, err := queryProducts(ctx, t.tx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]domain.Product, len(products))
	for _, p := range products {
		found[p.ID] = p
	}
	return found, nil
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (t *pgTx) SetProductStock(ctx context.Context, id string, qty decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = $2, updated_at = now()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) InsertProduct(ctx context.Context, product domain.Product) error {
	return insertProduct(ctx, t.tx, product)
}

func insertProduct(ctx context.Context, q queryer, p domain.Product) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, p.ID, p.Name, nullIfEmpty(p.Barcode), nullIfEmpty(p.Category), p.Price, p.CostPrice,
		p.StockQuantity, p.MinStock, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("product %s: %w", p.Name, store.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (t *pgTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, category = $4, price = $5, cost_price = $6,
			min_stock = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`, p.ID, p.Name, nullIfEmpty(p.Barcode), nullIfEmpty(p.Category), p.Price, p.CostPrice,
		p.MinStock, p.Active, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "ux_products_barcode") {
			return fmt.Errorf("barcode %s: %w", p.Barcode, store.ErrDuplicate)
		}
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) ProductHasSales(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)`, id).Scan(&exists)
	return exists, err
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, id); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) InsertMovement(ctx context.Context, m domain.StockMovement) error {
	return insertMovement(ctx, t.tx, m)
}

func insertMovement(ctx context.Context, q queryer, m domain.StockMovement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, quantity_change, movement_type, timestamp, description)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.ProductID, m.QuantityChange, m.Type, m.Timestamp, m.Description)
	return err
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if err := insertSaleHeader(ctx, t.tx, sale); err != nil {
		return err
	}
	for _, item := range sale.Items {
		if err := insertSaleItem(ctx, t.tx, item); err != nil {
			return err
		}
	}
	return nil
}

func insertSaleHeader(ctx context.Context, q queryer, sale domain.Sale) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sales (id, user_id, session_id, total_amount, payment_method, timestamp, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.UserID, sale.SessionID, sale.TotalAmount, sale.PaymentMethod, sale.Timestamp, sale.Status)
	return err
}

func insertSaleItem(ctx context.Context, q queryer, item domain.SaleItem) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, subtotal)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
	return err
}

const userColumns = `id, name, username, password_hash, role, is_active, created_at`

func scanUser(row rowScanner) (*domain.UserAccount, error) {
	var u domain.UserAccount
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id string) (*domain.UserAccount, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

func (t *pgTx) InsertUser(ctx context.Context, user domain.UserAccount) error {
	return insertUser(ctx, t.tx, user)
}

func insertUser(ctx context.Context, q queryer, u domain.UserAccount) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.Name, u.Username, u.PasswordHash, u.Role, u.Active, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "ux_users_username") {
			return fmt.Errorf("username %s: %w", u.Username, store.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (t *pgTx) UpdateUser(ctx context.Context, u domain.UserAccount) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET name = $2, password_hash = $3, role = $4, is_active = $5
		WHERE id = $1
	`, u.ID, u.Name, u.PasswordHash, u.Role, u.Active)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) UserHasHistory(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM cashier_sessions WHERE opened_by = $1)
			OR EXISTS (SELECT 1 FROM sales WHERE user_id = $1)
	`, id).Scan(&exists)
	return exists, err
}

func (t *pgTx) DeleteUser(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// restoreOrder lists tables parents first. Deletes walk it backwards.
var restoreOrder = []string{"users", "products", "cashier_sessions", "sales", "sale_items", "stock_movements"}

func (t *pgTx) ReplaceAll(ctx context.Context, snap domain.Snapshot) error {
	for i := len(restoreOrder) - 1; i >= 0; i-- {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+restoreOrder[i]); err != nil {
			return fmt.Errorf("clear %s: %w", restoreOrder[i], err)
		}
	}

	for _, table := range restoreOrder {
		var err error
		switch table {
		case "users":
			for _, u := range snap.Users {
				if err = insertUser(ctx, t.tx, u); err != nil {
					break
				}
			}
		case "products":
			for _, p := range snap.Products {
				if err = insertProduct(ctx, t.tx, p); err != nil {
					break
				}
			}
		case "cashier_sessions":
			for _, cs := range snap.Sessions {
				if err = insertSession(ctx, t.tx, cs); err != nil {
					break
				}
			}
		case "sales":
			for _, sale := range snap.Sales {
				if err = insertSaleHeader(ctx, t.tx, sale); err != nil {
					break
				}
			}
		case "sale_items":
			for _, item := range snap.SaleItems {
				if err = insertSaleItem(ctx, t.tx, item); err != nil {
					break
				}
			}
		case "stock_movements":
			for _, m := range snap.StockMovements {
				if err = insertMovement(ctx, t.tx, m); err != nil {
					break
				}
			}
		}
		if err != nil {
			return &store.ConsistencyError{Op: "restore " + table, Err: err}
		}
	}
	return nil
}

func (s *Store) GetOpenSession(ctx context.Context, terminalID string) (*domain.CashierSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cashier_sessions
		WHERE terminal_id = $1 AND status = 'open'
	`, terminalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return session, err
}

func (s *Store) SumCompletedSales(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM sales
		WHERE session_id = $1 AND status = 'completed'
	`, sessionID).Scan(&total)
	return total, err
}

func (s *Store) ListSessionsStartedBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.CashierSession, error) {
	return listSessions(ctx, s.db, `
		SELECT `+sessionColumns+`
		FROM cashier_sessions
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time DESC, id DESC
	`, from, to)
}

func listSessions(ctx context.Context, q queryer, query string, args ...any) ([]domain.CashierSession, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashierSession, 0, 16)
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *cs)
	}
	return sessions, rows.Err()
}

const saleColumns = `id, user_id, session_id, total_amount, payment_method, timestamp, status`

func listSales(ctx context.Context, q queryer, query string, args ...any) ([]domain.Sale, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.UserID, &sale.SessionID, &sale.TotalAmount, &sale.PaymentMethod, &sale.Timestamp, &sale.Status); err != nil {
			return nil, err
		}
		sale.Timestamp = sale.Timestamp.UTC()
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func listSaleItems(ctx context.Context, q queryer, query string, args ...any) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 32)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListSalesBySession(ctx context.Context, sessionID string) ([]domain.Sale, error) {
	sales, err := listSales(ctx, s.db, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE session_id = $1
		ORDER BY timestamp DESC, id DESC
	`, sessionID)
	if err != nil || len(sales) == 0 {
		return sales, err
	}

	items, err := listSaleItems(ctx, s.db, `
		SELECT si.id, si.sale_id, si.product_id, si.quantity, si.unit_price, si.subtotal
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.session_id = $1
		ORDER BY si.id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	bySale := make(map[string][]domain.SaleItem, len(sales))
	for _, item := range items {
		bySale[item.SaleID] = append(bySale[item.SaleID], item)
	}
	for i := range sales {
		sales[i].Items = bySale[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) SalesSummary(ctx context.Context, from time.Time, to time.Time) (decimal.Decimal, int, error) {
	var total decimal.Decimal
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM sales
		WHERE status = 'completed' AND timestamp >= $1 AND timestamp < $2
	`, from, to).Scan(&total, &count)
	return total, count, err
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, SUM(si.quantity) AS total_qty
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN products p ON p.id = si.product_id
		WHERE s.status = 'completed'
		GROUP BY p.id, p.name
		ORDER BY total_qty DESC, p.name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var tp domain.TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.Name, &tp.QuantitySold); err != nil {
			return nil, err
		}
		result = append(result, tp)
	}
	return result, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products, err := queryProducts(ctx, s.db, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	result := make(map[string]domain.Product, len(products))
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) FindProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	return queryProducts(ctx, s.db, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = false OR is_active = true)
		ORDER BY name, id
		OFFSET $2
		LIMIT $3
	`, filter.ActiveOnly, max(filter.Skip, 0), limit)
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return queryProducts(ctx, s.db, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = true AND stock_quantity < min_stock
		ORDER BY name
	`)
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) iter.Seq2[domain.MovementRecord, error] {
	return func(yield func(domain.MovementRecord, error) bool) {
		where := make([]string, 0, 4)
		args := make([]any, 0, 4)
		add := func(cond string, arg any) {
			args = append(args, arg)
			where = append(where, fmt.Sprintf(cond, len(args)))
		}
		if filter.Type != "" {
			add("m.movement_type = $%d", filter.Type)
		}
		if filter.ProductID != "" {
			add("m.product_id = $%d", filter.ProductID)
		}
		if filter.From != nil {
			add("m.timestamp >= $%d", *filter.From)
		}
		if filter.To != nil {
			add("m.timestamp <= $%d", *filter.To)
		}

		query := `
			SELECT m.id, m.product_id, m.quantity_change, m.movement_type, m.timestamp, m.description, p.name
			FROM stock_movements m
			JOIN products p ON p.id = m.product_id`
		if len(where) > 0 {
			query += "\n\t\t\tWHERE " + strings.Join(where, " AND ")
		}
		query += "\n\t\t\tORDER BY m.timestamp DESC, m.id DESC"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(domain.MovementRecord{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec domain.MovementRecord
			if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.QuantityChange, &rec.Type, &rec.Timestamp, &rec.Description, &rec.ProductName); err != nil {
				yield(domain.MovementRecord{}, err)
				return
			}
			rec.Timestamp = rec.Timestamp.UTC()
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.MovementRecord{}, err)
		}
	}
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, activeOnly bool) ([]domain.UserAccount, error) {
	return listUsers(ctx, s.db, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = false OR is_active = true)
		ORDER BY username
	`, activeOnly)
}

func listUsers(ctx context.Context, q queryer, query string, args ...any) ([]domain.UserAccount, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Snapshot reads every table inside one repeatable-read transaction so the
// result is a consistent point-in-time copy.
func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return snap, err
	}
	defer func() { _ = tx.Rollback() }()

	if snap.Users, err = listUsers(ctx, tx, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return snap, err
	}
	if snap.Products, err = queryProducts(ctx, tx, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return snap, err
	}
	if snap.Sessions, err = listSessions(ctx, tx, `SELECT `+sessionColumns+` FROM cashier_sessions ORDER BY id`); err != nil {
		return snap, err
	}
	if snap.Sales, err = listSales(ctx, tx, `SELECT `+saleColumns+` FROM sales ORDER BY id`); err != nil {
		return snap, err
	}
	if snap.SaleItems, err = listSaleItems(ctx, tx, `SELECT id, sale_id, product_id, quantity, unit_price, subtotal FROM sale_items ORDER BY id`); err != nil {
		return snap, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, quantity_change, movement_type, timestamp, description
		FROM stock_movements
		ORDER BY timestamp, id
	`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.QuantityChange, &m.Type, &m.Timestamp, &m.Description); err != nil {
			return snap, err
		}
		m.Timestamp = m.Timestamp.UTC()
		snap.StockMovements = append(snap.StockMovements, m)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}
	return snap, tx.Commit()
}

func (s *Store) Stats(ctx context.Context) (domain.SnapshotStats, error) {
	var st domain.SnapshotStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM cashier_sessions),
			(SELECT COUNT(*) FROM sales),
			(SELECT COUNT(*) FROM sale_items),
			(SELECT COUNT(*) FROM stock_movements)
	`).Scan(&st.Users, &st.Products, &st.Sessions, &st.Sales, &st.SaleItems, &st.StockMovements)
	return st, err
}

// classify maps driver failures of a transactional unit onto
// store.ConsistencyError. Domain errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *store.ConsistencyError
	if errors.As(err, &ce) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return &store.ConsistencyError{Op: op, Err: err, Retryable: true}
	case "23514", "23503", "23505":
		return &store.ConsistencyError{Op: op, Err: err}
	}
	return err
}

// isUniqueViolation reports a 23505 error, optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

var _ store.Repository = (*Store)(nil)
