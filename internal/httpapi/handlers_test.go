package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pdvsystem/backend/internal/backup"
	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/service"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/store/memory"
)

type testEnv struct {
	api     *API
	handler http.Handler
	svc     *service.Service
	tokens  map[domain.Role]string
}

var testAccounts = []domain.UserAccount{
	{ID: "usr-admin", Name: "Admin", Username: "admin", Role: domain.RoleAdmin, Active: true},
	{ID: "usr-manager", Name: "Marta Gerente", Username: "marta", Role: domain.RoleManager, Active: true},
	{ID: "usr-seller", Name: "Ana Souza", Username: "ana", Role: domain.RoleSeller, Active: true},
	{ID: "usr-former", Name: "Ex Funcionario", Username: "former", Role: domain.RoleSeller, Active: false},
}

// newTestEnv builds a full API on the in-memory store, a real AuthManager and
// a real Service so handler tests exercise the complete request path. Every
// account's password is "secret123".
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.New()
	hash := mustHashPassword(t, "secret123")
	require.NoError(t, repo.WithinTx(context.Background(), func(tx store.Tx) error {
		for _, acct := range testAccounts {
			acct.PasswordHash = hash
			if err := tx.InsertUser(context.Background(), acct); err != nil {
				return err
			}
		}
		return nil
	}))

	svc := service.New(repo, nil, service.Options{Logger: zerolog.Nop(), Location: time.UTC, MaxAttempts: 3})
	auth := NewAuthManager("test-secret-key-with-enough-bytes!", time.Hour, svc)
	backups, err := backup.NewManager(t.TempDir(), svc, zerolog.Nop())
	require.NoError(t, err)
	api := New(svc, auth, backups, "*", zerolog.Nop())

	env := &testEnv{api: api, handler: api.Handler(), svc: svc, tokens: map[domain.Role]string{}}
	for _, acct := range testAccounts[:3] {
		token, err := auth.sign(acct, time.Now().Add(time.Hour))
		require.NoError(t, err)
		env.tokens[acct.Role] = token
	}
	return env
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

type call struct {
	method   string
	path     string
	role     domain.Role
	terminal string
	body     any
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[c.role])
	}
	if c.terminal != "" {
		req.Header.Set(terminalHeader, c.terminal)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (e *testEnv) createProduct(t *testing.T, name string, price string, stock string) domain.Product {
	t.Helper()
	rec := e.do(t, call{method: http.MethodPost, path: "/api/v1/products", role: domain.RoleAdmin, body: map[string]any{
		"name":           name,
		"price":          price,
		"stock_quantity": stock,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.Product](t, rec)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: domain.LoginRequest{Username: "ana", Password: "secret123"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[domain.LoginResponse](t, rec)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, domain.RoleSeller, resp.Role)
	assert.Equal(t, "usr-seller", resp.User.ID)

	actor, err := env.api.auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{ID: "usr-seller", Username: "ana", Role: domain.RoleSeller}, actor)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: domain.LoginRequest{Username: "ana", Password: "wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: domain.LoginRequest{Username: "former", Password: "secret123"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/api/v1/products"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products", role: domain.RoleSeller})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleChecks(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "Cafe", "10.00", "5")

	cases := []struct {
		name string
		c    call
		want int
	}{
		{"seller cannot create products", call{method: http.MethodPost, path: "/api/v1/products", role: domain.RoleSeller, body: map[string]any{"name": "X", "price": "1"}}, http.StatusForbidden},
		{"manager cannot create products", call{method: http.MethodPost, path: "/api/v1/products", role: domain.RoleManager, body: map[string]any{"name": "X", "price": "1"}}, http.StatusForbidden},
		{"seller cannot edit products", call{method: http.MethodPut, path: "/api/v1/products/" + p.ID, role: domain.RoleSeller, body: map[string]any{"name": "Y"}}, http.StatusForbidden},
		{"manager edits products", call{method: http.MethodPut, path: "/api/v1/products/" + p.ID, role: domain.RoleManager, body: map[string]any{"name": "Cafe Especial"}}, http.StatusOK},
		{"seller cannot read ledger", call{method: http.MethodGet, path: "/api/v1/stock/history", role: domain.RoleSeller}, http.StatusForbidden},
		{"seller cannot read history", call{method: http.MethodGet, path: "/api/v1/cashier/history?day=2026-01-01", role: domain.RoleSeller}, http.StatusForbidden},
		{"manager reads users", call{method: http.MethodGet, path: "/api/v1/users", role: domain.RoleManager}, http.StatusOK},
		{"manager cannot create users", call{method: http.MethodPost, path: "/api/v1/users", role: domain.RoleManager, body: map[string]any{}}, http.StatusForbidden},
		{"manager cannot back up", call{method: http.MethodPost, path: "/api/v1/backup/create", role: domain.RoleManager}, http.StatusForbidden},
		{"seller adds stock", call{method: http.MethodPost, path: "/api/v1/products/" + p.ID + "/stock?quantity=2", role: domain.RoleSeller}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.c)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCashierAndSaleFlow(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "Cafe Torrado 500g", "10.00", "5")

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/sales", role: domain.RoleSeller, terminal: "T1", body: domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleLine{{ProductID: p.ID, Quantity: decimal.NewFromInt(1)}},
	}})
	assert.Equal(t, http.StatusConflict, rec.Code, "sale without an open session")

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/open", role: domain.RoleSeller, body: map[string]any{"initial_balance": "100"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing terminal header")

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/open", role: domain.RoleSeller, terminal: "T1", body: map[string]any{"initial_balance": "100"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decodeBody[domain.CashierSession](t, rec)
	assert.Equal(t, "usr-seller", session.OpenedBy)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/open", role: domain.RoleManager, terminal: "T1", body: map[string]any{"initial_balance": "5"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/sales", role: domain.RoleSeller, terminal: "T1", body: map[string]any{
		"payment_method": "cash",
		"items":          []map[string]any{{"product_id": p.ID, "quantity": "2"}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody[domain.Receipt](t, rec)
	assert.Equal(t, "20", receipt.TotalAmount.String())
	assert.Equal(t, "T1", receipt.TerminalID)
	assert.Equal(t, "Ana Souza", receipt.Seller.Name)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/sales", role: domain.RoleSeller, terminal: "T1", body: map[string]any{
		"payment_method": "cash",
		"items":          []map[string]any{{"product_id": p.ID, "quantity": "4"}},
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "available: 3")

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/cashier/status", role: domain.RoleSeller, terminal: "T1"})
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[domain.SessionStatusView](t, rec)
	assert.Equal(t, domain.SessionOpen, status.Status)
	assert.Equal(t, "120", status.ExpectedBalance.String())
	assert.Equal(t, "20", status.TotalSold.String())

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/sales?session_id=" + session.ID, role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.Receipt](t, rec), 1)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/close", role: domain.RoleSeller, terminal: "T1", body: map[string]any{"final_balance": "120"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody[domain.CashierSession](t, rec)
	assert.Equal(t, domain.SessionClosed, closed.Status)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/close", role: domain.RoleSeller, terminal: "T1", body: map[string]any{"final_balance": "120"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/cashier/status", role: domain.RoleSeller, terminal: "T1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"closed","terminal_id":"T1"}`, rec.Body.String())

	day := session.StartTime.UTC().Format("2006-01-02")
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/cashier/history?day=" + day, role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]domain.CashierSession](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, session.ID, history[0].ID)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/cashier/history?day=10/03/2026", role: domain.RoleManager})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/products/" + p.ID, role: domain.RoleManager})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSaleRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "Cafe", "10.00", "5")
	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/open", role: domain.RoleSeller, terminal: "T1", body: map[string]any{"initial_balance": "0"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	bodies := []any{
		map[string]any{"payment_method": "cash", "items": []any{}},
		map[string]any{"payment_method": "barter", "items": []map[string]any{{"product_id": p.ID, "quantity": "1"}}},
		map[string]any{"payment_method": "cash", "items": []map[string]any{{"product_id": p.ID, "quantity": "0"}}},
		map[string]any{"payment_method": "cash", "items": []map[string]any{{"product_id": p.ID, "quantity": "1"}}, "discount": 5},
	}
	for _, body := range bodies {
		rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/sales", role: domain.RoleSeller, terminal: "T1", body: body})
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/sales", role: domain.RoleSeller, terminal: "T1", body: map[string]any{
		"payment_method": "pix",
		"items":          []map[string]any{{"product_id": "prd-ghost", "quantity": "1"}},
	}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStockEndpoints(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "Arroz", "27.90", "10")

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/products/" + p.ID + "/stock?quantity=2.5", role: domain.RoleSeller})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "12.5", body["new_quantity"])

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/products/" + p.ID + "/stock?quantity=-1", role: domain.RoleSeller})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/products/" + p.ID + "/stock?quantity=abc", role: domain.RoleSeller})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/products/" + p.ID + "/adjustments", role: domain.RoleManager, body: map[string]any{"quantity": "-20", "description": "inventory count"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/products/" + p.ID + "/adjustments", role: domain.RoleManager, body: map[string]any{"quantity": "-0.5", "description": "damaged"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/stock/history?product_id=" + p.ID, role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]domain.MovementRecord](t, rec)
	require.Len(t, history, 3)
	assert.Equal(t, domain.MovementAdjustment, history[0].Type)
	assert.Equal(t, "Arroz", history[0].ProductName)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/stock/history?movement_type=LOSS", role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.MovementRecord](t, rec), 1)

	today := time.Now().UTC().Format("2006-01-02")
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/stock/history?type=entry&start_date=" + today + "&end_date=" + today, role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.MovementRecord](t, rec), 2)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/stock/history?start_date=2001-01-01&end_date=2001-01-01", role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/stock/history?type=gift", role: domain.RoleManager})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/stock/history?start_date=2026-31-01", role: domain.RoleManager})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductEndpoints(t *testing.T) {
	env := newTestEnv(t)
	a := env.createProduct(t, "Arroz", "27.90", "10")
	env.createProduct(t, "Feijao", "8.49", "0")

	rec := env.do(t, call{method: http.MethodGet, path: "/api/v1/products?limit=1", role: domain.RoleSeller})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[[]domain.Product](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, "Arroz", page[0].Name)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products?skip=-1", role: domain.RoleSeller})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products/" + a.ID, role: domain.RoleSeller})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", decodeBody[domain.Product](t, rec).StockQuantity.String())

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/products", role: domain.RoleAdmin, body: map[string]any{
		"name": "Cafe", "barcode": "7891000000035", "price": "18.90",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cafe := decodeBody[domain.Product](t, rec)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products/barcode/7891000000035", role: domain.RoleSeller})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, cafe.ID, decodeBody[domain.Product](t, rec).ID)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products/barcode/000", role: domain.RoleSeller})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/products", role: domain.RoleAdmin, body: map[string]any{"name": "Caro", "price": "10.005"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "money keeps two decimals")

	rec = env.do(t, call{method: http.MethodPut, path: "/api/v1/products/" + a.ID, role: domain.RoleManager, body: map[string]any{"stock_quantity": "99"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "stock cannot be edited directly")

	rec = env.do(t, call{method: http.MethodPut, path: "/api/v1/products/" + a.ID, role: domain.RoleManager, body: map[string]any{"is_active": false}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products?active_only=true", role: domain.RoleSeller})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.Product](t, rec), 2)

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/products/" + a.ID, role: domain.RoleAdmin})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/products/" + a.ID, role: domain.RoleSeller})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/users", role: domain.RoleAdmin, body: domain.UserCreateRequest{
		Name: "Carlos", Username: "carlos", Password: "segredo1", Role: domain.RoleSeller,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]any](t, rec)
	assert.NotContains(t, created, "password_hash")
	id := created["id"].(string)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/auth/register", role: domain.RoleAdmin, body: domain.UserCreateRequest{
		Name: "Carlos 2", Username: "carlos", Password: "segredo1", Role: domain.RoleSeller,
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/users/" + id, role: domain.RoleManager})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, call{method: http.MethodPut, path: "/api/v1/users/" + id, role: domain.RoleAdmin, body: map[string]any{"role": "manager"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.RoleManager, decodeBody[domain.User](t, rec).Role)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/users?active_only=true", role: domain.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.User](t, rec), 4)

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/users/usr-admin", role: domain.RoleAdmin})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cannot delete yourself")

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/users/" + id, role: domain.RoleAdmin})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/users/" + id, role: domain.RoleAdmin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "Cafe", "10.00", "5")
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cashier/open", role: domain.RoleSeller, terminal: "T1", body: map[string]any{"initial_balance": "0"}})
	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/sales", role: domain.RoleSeller, terminal: "T1", body: map[string]any{
		"payment_method": "debit",
		"items":          []map[string]any{{"product_id": p.ID, "quantity": "3"}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/reports/dashboard", role: domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody[domain.Dashboard](t, rec)
	assert.Equal(t, 1, dash.SalesTodayCount)
	assert.Equal(t, "30", dash.SalesTodayTotal.String())
	require.NotNil(t, dash.BestSeller)
	assert.Equal(t, p.ID, dash.BestSeller.ProductID)
}

func TestStatusForErrorKinds(t *testing.T) {
	cases := map[error]int{
		store.ErrInvalid:                 http.StatusBadRequest,
		service.ErrUnauthenticated:       http.StatusUnauthorized,
		service.ErrInvalidCredentials:    http.StatusUnauthorized,
		service.ErrInactiveAccount:       http.StatusForbidden,
		store.ErrNotFound:                http.StatusNotFound,
		store.ErrInsufficientStock:       http.StatusConflict,
		store.ErrSessionAlreadyOpen:      http.StatusConflict,
		&store.ConsistencyError{Op: "x"}: http.StatusServiceUnavailable,
		context.Canceled:                 http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
