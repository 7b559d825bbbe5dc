//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/service"
	"pdvsystem/backend/internal/store"
	pgstore "pdvsystem/backend/internal/store/postgres"
)

// databaseURL returns PDV_TEST_DATABASE_URL when set, otherwise it starts a
// throwaway postgres container for the test.
func databaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("PDV_TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("pdv_test"),
		tcPostgres.WithUsername("pdv"),
		tcPostgres.WithPassword("pdv"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

type env struct {
	store *pgstore.Store
	svc   *service.Service
	ctx   context.Context
	tag   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := pgstore.New(context.Background(), databaseURL(t), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := service.New(s, nil, service.Options{
		MaxAttempts:  3,
		RetryBackoff: 10 * time.Millisecond,
		Location:     time.UTC,
		Logger:       zerolog.Nop(),
	})

	tag := fmt.Sprintf("%d", time.Now().UnixNano())
	seller := domain.UserAccount{
		ID:           "usr-it-" + tag,
		Name:         "Caixa Integracao",
		Username:     "caixa-" + tag,
		PasswordHash: "x",
		Role:         domain.RoleSeller,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertUser(context.Background(), seller)
	}))

	ctx := service.WithActor(context.Background(), domain.Actor{ID: seller.ID, Username: seller.Username, Role: seller.Role})
	return &env{store: s, svc: svc, ctx: ctx, tag: tag}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *env) product(t *testing.T, name string, price string, stock string) domain.Product {
	t.Helper()
	p, err := e.svc.CreateProduct(e.ctx, domain.ProductCreateRequest{
		Name:          name + " " + e.tag,
		Price:         dec(price),
		StockQuantity: dec(stock),
	})
	require.NoError(t, err)
	return p
}

func (e *env) terminal(name string) string { return name + "-" + e.tag }

func TestSaleScenarioAgainstPostgres(t *testing.T) {
	e := newEnv(t)
	terminal := e.terminal("T1")
	p := e.product(t, "Cafe", "10.00", "5")

	_, err := e.svc.OpenSession(e.ctx, terminal, domain.SessionOpenRequest{InitialBalance: dec("100")})
	require.NoError(t, err)

	receipt, err := e.svc.CreateSale(e.ctx, terminal, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleLine{{ProductID: p.ID, Quantity: dec("2")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "20", receipt.TotalAmount.String())

	status, err := e.svc.SessionStatus(e.ctx, terminal)
	require.NoError(t, err)
	require.NotNil(t, status.ExpectedBalance)
	assert.Equal(t, "120", status.ExpectedBalance.String())

	got, err := e.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", got.StockQuantity.String())

	var sum decimal.Decimal
	for rec, err := range e.store.ListMovements(context.Background(), domain.MovementFilter{ProductID: p.ID}) {
		require.NoError(t, err)
		sum = sum.Add(rec.QuantityChange)
	}
	assert.True(t, sum.Equal(got.StockQuantity), "ledger replay %s != stock %s", sum, got.StockQuantity)
}

func TestConcurrentOpenOnOneTerminalHasOneWinner(t *testing.T) {
	e := newEnv(t)
	terminal := e.terminal("T-RACE")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.OpenSession(e.ctx, terminal, domain.SessionOpenRequest{InitialBalance: dec("50")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrSessionAlreadyOpen), errors.Is(err, store.ErrConsistency):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	e := newEnv(t)
	p := e.product(t, "Arroz", "27.90", "100")
	t1, t2 := e.terminal("T1"), e.terminal("T2")
	for _, term := range []string{t1, t2} {
		_, err := e.svc.OpenSession(e.ctx, term, domain.SessionOpenRequest{InitialBalance: dec("0")})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, term := range []string{t1, t2} {
		wg.Add(1)
		go func(term string) {
			defer wg.Done()
			_, err := e.svc.CreateSale(e.ctx, term, domain.SaleRequest{
				PaymentMethod: domain.PaymentPix,
				Items:         []domain.SaleLine{{ProductID: p.ID, Quantity: dec("60")}},
			})
			results <- err
		}(term)
	}
	wg.Wait()
	close(results)

	ok, rejected := 0, 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, store.ErrInsufficientStock)
		rejected++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	got, err := e.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "40", got.StockQuantity.String())
}

func TestFailedSaleLineRollsBackWholeSale(t *testing.T) {
	e := newEnv(t)
	terminal := e.terminal("T-RB")
	cafe := e.product(t, "Cafe", "18.90", "10")
	feijao := e.product(t, "Feijao", "8.49", "1")
	_, err := e.svc.OpenSession(e.ctx, terminal, domain.SessionOpenRequest{InitialBalance: dec("0")})
	require.NoError(t, err)

	before, err := e.store.Stats(context.Background())
	require.NoError(t, err)

	_, err = e.svc.CreateSale(e.ctx, terminal, domain.SaleRequest{
		PaymentMethod: domain.PaymentDebit,
		Items: []domain.SaleLine{
			{ProductID: cafe.ID, Quantity: dec("2")},
			{ProductID: feijao.ID, Quantity: dec("3")},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := e.store.GetProduct(context.Background(), cafe.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.StockQuantity.String())

	after, err := e.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Sales, after.Sales)
	assert.Equal(t, before.StockMovements, after.StockMovements)
}
