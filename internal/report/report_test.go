package report

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udhaar/backend/internal/cache"
	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/service"
	"udhaar/backend/internal/store/memory"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// mapCache stores JSON the way the Redis cache does so decoding is exercised too.
type mapCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	versions map[string]int64
	sets     int
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}, versions: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	c.sets++
	return nil
}

func (c *mapCache) Version(_ context.Context, tenantID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[tenantID], nil
}

func (c *mapCache) Bump(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[tenantID]++
	return nil
}

type heldLocker struct{}

func (heldLocker) Obtain(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, cache.ErrLockHeld
}

var billingDay = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	repo  *memory.Store
	svc   *service.Service
	cache *mapCache
	agg   *Aggregator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := memory.NewSeeded()
	c := newMapCache()
	clock := billingDay.Add(9 * time.Hour)
	svc := service.New(repo, service.Options{
		Cache: c,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	return fixture{repo: repo, svc: svc, cache: c, agg: New(repo, Options{Cache: c})}
}

func ctx() context.Context {
	return service.WithActor(context.Background(), domain.Actor{UserID: "usr_owner", TenantID: memory.DemoTenant, Role: domain.RoleOwner})
}

func (f fixture) seedDay(t *testing.T) {
	t.Helper()
	// Walk-in: 5 pieces, paid in full.
	_, err := f.svc.CreateSale(ctx(), domain.CreateSaleRequest{
		Items:           []domain.SaleLineRequest{{ProductID: "prod_soap", Unit: "piece", Quantity: d("5")}},
		PaymentReceived: d("50"),
	})
	require.NoError(t, err)
	// Credit: 1 box for 110, 10 paid at billing.
	credit, err := f.svc.CreateSale(ctx(), domain.CreateSaleRequest{
		CustomerID:      "cust_ravi",
		Items:           []domain.SaleLineRequest{{ProductID: "prod_soap", Unit: "box", Quantity: d("1")}},
		PaymentReceived: d("10"),
	})
	require.NoError(t, err)
	_, err = f.svc.ReceiveCustomerPayment(ctx(), "cust_ravi", domain.CustomerPaymentRequest{Amount: d("30"), Method: domain.PaymentUPI})
	require.NoError(t, err)
	_, err = f.svc.ProcessReturn(ctx(), credit.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnLineRequest{{ProductID: "prod_soap", Quantity: d("0.5")}},
	})
	require.NoError(t, err)
	_, err = f.svc.RecordExpense(ctx(), domain.ExpenseRequest{Amount: d("20"), Category: "tea"})
	require.NoError(t, err)
}

func TestDailySummary(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)

	got, err := f.agg.DailySummary(ctx(), memory.DemoTenant, billingDay.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01", got.Date)
	assert.Equal(t, 2, got.Bills)
	assert.True(t, d("160").Equal(got.SalesAmount), got.SalesAmount.String())
	// 50 walk-in + 10 at billing + 30 later.
	assert.True(t, d("90").Equal(got.CashReceived), got.CashReceived.String())
	assert.True(t, d("100").Equal(got.UdhaarAdded))
}

func TestCashReport(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)

	got, err := f.agg.Cash(ctx(), memory.DemoTenant, billingDay, billingDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, d("50").Equal(got.WalkInCash))
	assert.True(t, d("10").Equal(got.ByMode[domain.PaymentCash]))
	assert.True(t, d("30").Equal(got.ByMode[domain.PaymentUPI]))
	assert.True(t, d("90").Equal(got.Total))
	assert.True(t, d("70").Equal(got.Net))

	_, err = f.agg.Cash(ctx(), memory.DemoTenant, billingDay, billingDay)
	require.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestProfitReport(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)

	got, err := f.agg.Profit(ctx(), memory.DemoTenant, billingDay, billingDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, d("160").Equal(got.Sales))
	// 17 pieces at cost 7.
	assert.True(t, d("119").Equal(got.Cost))
	// Half a box refunds 55 and puts 6 pieces worth 42 back on the shelf.
	assert.True(t, d("13").Equal(got.Returns), got.Returns.String())
	assert.True(t, d("20").Equal(got.Expenses))
	assert.True(t, d("8").Equal(got.Profit), got.Profit.String())
}

func TestDuesOverdueAndOverview(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)

	dues, err := f.agg.Dues(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	require.Len(t, dues.Customers, 1)
	assert.True(t, d("15").Equal(dues.Total), dues.Total.String())

	overdue, err := f.agg.Overdue(ctx(), memory.DemoTenant, billingDay.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, overdue.Sales, 1)
	assert.Equal(t, "Ravi", overdue.Sales[0].CustomerName)
	assert.Equal(t, 2, overdue.Sales[0].DaysOverdue)

	none, err := f.agg.Overdue(ctx(), memory.DemoTenant, billingDay.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none.Sales)

	overview, err := f.agg.SalesOverview(ctx(), memory.DemoTenant, "")
	require.NoError(t, err)
	assert.Equal(t, 1, overview.OpenCount)
	assert.Equal(t, 1, overview.Customers)
	assert.True(t, d("15").Equal(overview.PendingTotal))

	_, err = f.agg.SalesOverview(ctx(), memory.DemoTenant, "BOGUS")
	require.ErrorIs(t, err, domain.ErrInvalidEnum)
}

func TestReportsAreCachedUntilNextCommit(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)

	first, err := f.agg.Dues(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	sets := f.cache.sets

	again, err := f.agg.Dues(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	assert.Equal(t, sets, f.cache.sets)
	assert.True(t, first.Total.Equal(again.Total))

	_, err = f.svc.ReceiveCustomerPayment(ctx(), "cust_ravi", domain.CustomerPaymentRequest{Amount: d("15")})
	require.NoError(t, err)

	fresh, err := f.agg.Dues(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	assert.True(t, fresh.Total.IsZero())
	assert.Empty(t, fresh.Customers)
}

func TestHeldFillLockComputesWithoutCaching(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)
	agg := New(f.repo, Options{Cache: f.cache, Locker: heldLocker{}})

	got, err := agg.Dues(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	assert.True(t, d("15").Equal(got.Total))
	assert.Zero(t, f.cache.sets)
}

// seedCancelledAfterReturn sells 10 pieces on credit, takes 4 back and cancels the rest.
func (f fixture) seedCancelledAfterReturn(t *testing.T) {
	t.Helper()
	res, err := f.svc.CreateSale(ctx(), domain.CreateSaleRequest{
		CustomerID: "cust_ravi",
		Items:      []domain.SaleLineRequest{{ProductID: "prod_soap", Unit: "piece", Quantity: d("10")}},
	})
	require.NoError(t, err)
	_, err = f.svc.ProcessReturn(ctx(), res.Sale.ID, domain.ReturnRequest{
		Items: []domain.ReturnLineRequest{{ProductID: "prod_soap", Quantity: d("4")}},
	})
	require.NoError(t, err)
	_, err = f.svc.CancelSale(ctx(), res.Sale.ID)
	require.NoError(t, err)
}

func TestCancelledSaleLeavesDailySummary(t *testing.T) {
	f := newFixture(t)
	f.seedCancelledAfterReturn(t)

	got, err := f.agg.DailySummary(ctx(), memory.DemoTenant, billingDay)
	require.NoError(t, err)
	assert.Zero(t, got.Bills)
	assert.True(t, got.SalesAmount.IsZero())
	assert.True(t, got.UdhaarAdded.IsZero(), got.UdhaarAdded.String())
}

func TestCancelledSaleReturnsLeaveProfit(t *testing.T) {
	f := newFixture(t)
	f.seedCancelledAfterReturn(t)

	got, err := f.agg.Profit(ctx(), memory.DemoTenant, billingDay, billingDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, got.Sales.IsZero())
	assert.True(t, got.Returns.IsZero(), got.Returns.String())
	assert.True(t, got.Profit.IsZero(), got.Profit.String())

	byProduct, err := f.agg.ProductProfit(ctx(), memory.DemoTenant, billingDay, billingDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, byProduct.Products)
}

func TestProductProfit(t *testing.T) {
	f := newFixture(t)
	f.seedDay(t)

	got, err := f.agg.ProductProfit(ctx(), memory.DemoTenant, billingDay, billingDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got.Products, 1)
	soap := got.Products[0]
	assert.Equal(t, "prod_soap", soap.ProductID)
	assert.Equal(t, "piece", soap.BaseUnit)
	assert.True(t, d("17").Equal(soap.SoldQty), soap.SoldQty.String())
	assert.True(t, d("160").Equal(soap.Sales))
	assert.True(t, d("119").Equal(soap.Cost))
	assert.True(t, d("13").Equal(soap.Returns), soap.Returns.String())
	assert.True(t, d("28").Equal(soap.Profit), soap.Profit.String())
	assert.True(t, d("28").Equal(got.Profit))

	_, err = f.agg.ProductProfit(ctx(), memory.DemoTenant, billingDay, billingDay)
	require.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestAllocateRefundSpreadsByLineValue(t *testing.T) {
	shares := allocateRefund(domain.Return{
		TotalReturnAmount: d("30"),
		Items: []domain.ReturnItem{
			{ProductID: "a", Quantity: d("1"), PriceAtSale: d("20"), CostPriceAtSale: d("5"), BaseQuantity: decimal.Zero},
			{ProductID: "b", Quantity: d("2"), PriceAtSale: d("20"), CostPriceAtSale: d("5"), BaseQuantity: decimal.Zero},
		},
	})
	assert.True(t, d("10").Equal(shares["a"]), shares["a"].String())
	assert.True(t, d("20").Equal(shares["b"]), shares["b"].String())
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)

	empty, err := f.agg.LowStock(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	assert.Empty(t, empty.Products)

	_, err = f.svc.CreateSale(ctx(), domain.CreateSaleRequest{
		CustomerID: "cust_ravi",
		Items:      []domain.SaleLineRequest{{ProductID: "prod_rice", Unit: "bag", Quantity: d("18")}},
	})
	require.NoError(t, err)

	got, err := f.agg.LowStock(ctx(), memory.DemoTenant)
	require.NoError(t, err)
	require.Len(t, got.Products, 1)
	assert.Equal(t, "prod_rice", got.Products[0].ProductID)
	assert.True(t, d("50").Equal(got.Products[0].Stock))
}
