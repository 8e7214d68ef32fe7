package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katinat-coffee/ordering-backend/internal/orders"
)

// fixtureSource serves a fixed order set, applying the same filter semantics
// as the ledger.
type fixtureSource struct {
	orders []orders.Order
}

func (f *fixtureSource) Query(ctx context.Context, q orders.QueryFilter) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range f.orders {
		if len(q.Statuses) > 0 {
			ok := false
			for _, s := range q.Statuses {
				if o.Status == s {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		if !q.From.IsZero() && o.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && o.CreatedAt.After(q.To) {
			continue
		}
		if q.StoreID != "" && o.StoreID != q.StoreID {
			continue
		}
		if q.UserID != "" && o.UserID != q.UserID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func day(d int) time.Time {
	return time.Date(2026, 4, d, 12, 0, 0, 0, time.UTC)
}

func completed(id, user, store string, total int64, created time.Time, items ...orders.Item) orders.Order {
	return orders.Order{
		OrderID:   id,
		UserID:    user,
		StoreID:   store,
		Items:     items,
		Total:     total,
		Status:    orders.StatusCompleted,
		CreatedAt: created,
	}
}

// aprilWindow spans April 1-7 2026.
func aprilWindow() Window {
	return Window{Start: day(1), End: day(7).Add(12 * time.Hour)}
}

func newTestAggregator(os ...orders.Order) *Aggregator {
	return New(&fixtureSource{orders: os}, nil)
}

func TestSalesSummary(t *testing.T) {
	agg := newTestAggregator(
		completed("o1", "u1", "s1", 85400, day(1)),
		completed("o2", "u2", "s1", 50000, day(2)),
		// unrealized orders contribute nothing
		orders.Order{OrderID: "o3", UserID: "u3", Total: 99999, Status: orders.StatusPending, CreatedAt: day(2)},
		orders.Order{OrderID: "o4", UserID: "u3", Total: 99999, Status: orders.StatusCancelled, CreatedAt: day(3)},
		// outside the window
		completed("o5", "u1", "s1", 70000, day(20)),
	)

	s, err := agg.SalesSummary(context.Background(), aprilWindow())
	require.NoError(t, err)
	assert.Equal(t, int64(135400), s.TotalSales)
	assert.Equal(t, 2, s.TotalOrders)
	assert.InDelta(t, 67700.0, s.AverageOrderValue, 0.001)
}

func TestSalesSummaryEmptyWindow(t *testing.T) {
	agg := newTestAggregator()
	s, err := agg.SalesSummary(context.Background(), aprilWindow())
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.TotalSales)
	assert.Equal(t, 0, s.TotalOrders)
	assert.Equal(t, 0.0, s.AverageOrderValue)
}

func TestSalesSummaryStoreScope(t *testing.T) {
	agg := newTestAggregator(
		completed("o1", "u1", "s1", 10000, day(1)),
		completed("o2", "u2", "s2", 20000, day(1)),
	)
	w := aprilWindow()
	w.StoreID = "s2"

	s, err := agg.SalesSummary(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), s.TotalSales)
	assert.Equal(t, 1, s.TotalOrders)
}

func TestDailySalesGroupsAndSorts(t *testing.T) {
	agg := newTestAggregator(
		completed("o1", "u1", "s1", 10000, day(3)),
		completed("o2", "u2", "s1", 20000, day(1)),
		completed("o3", "u3", "s1", 30000, day(3)),
	)

	out, err := agg.DailySales(context.Background(), aprilWindow())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, DailySales{Date: "2026-04-01", Sales: 20000, Orders: 1}, out[0])
	assert.Equal(t, DailySales{Date: "2026-04-03", Sales: 40000, Orders: 2}, out[1])
}

func TestTopProducts(t *testing.T) {
	latte := orders.Item{ProductID: "latte", Name: "Latte", Quantity: 2, UnitPrice: 32000}
	mocha := orders.Item{ProductID: "mocha", Name: "Mocha", Quantity: 5, UnitPrice: 40000}
	tea := orders.Item{ProductID: "tea", Name: "Oolong", Quantity: 1, UnitPrice: 25000}

	agg := newTestAggregator(
		completed("o1", "u1", "s1", 0, day(1), latte, mocha),
		completed("o2", "u2", "s1", 0, day(2), latte, tea),
	)

	out, err := agg.TopProducts(context.Background(), aprilWindow(), 0)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "mocha", out[0].ProductID)
	assert.Equal(t, 5, out[0].TotalQuantity)
	assert.Equal(t, int64(200000), out[0].TotalRevenue)

	assert.Equal(t, "latte", out[1].ProductID)
	assert.Equal(t, 4, out[1].TotalQuantity)
	assert.Equal(t, int64(128000), out[1].TotalRevenue)

	assert.Equal(t, "tea", out[2].ProductID)

	limited, err := agg.TopProducts(context.Background(), aprilWindow(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStorePerformance(t *testing.T) {
	agg := newTestAggregator(
		completed("o1", "u1", "s1", 30000, day(1)),
		completed("o2", "u2", "s2", 50000, day(1)),
		completed("o3", "u3", "s2", 10000, day(2)),
		completed("o4", "u4", "s1", 30000, day(3)),
	)

	out, err := agg.StorePerformance(context.Background(), aprilWindow())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "s1", out[0].StoreID)
	assert.Equal(t, int64(60000), out[0].TotalSales)
	assert.Equal(t, 2, out[0].TotalOrders)
	assert.InDelta(t, 30000.0, out[0].AverageOrderValue, 0.001)

	assert.Equal(t, "s2", out[1].StoreID)
	assert.Equal(t, int64(60000), out[1].TotalSales)
}

func TestCustomerInsightsRetention(t *testing.T) {
	// three customers in window: u1 and u2 repeat, u3 does not
	agg := newTestAggregator(
		completed("o1", "u1", "s1", 10000, day(1)),
		completed("o2", "u1", "s1", 20000, day(2)),
		completed("o3", "u2", "s1", 30000, day(3)),
		completed("o4", "u2", "s1", 40000, day(4)),
		completed("o5", "u3", "s1", 50000, day(5)),
	)

	ins, err := agg.CustomerInsights(context.Background(), aprilWindow())
	require.NoError(t, err)

	assert.Equal(t, 3, ins.TotalCustomers)
	assert.Equal(t, 2, ins.RepeatCustomers)
	assert.InDelta(t, 66.666, ins.RetentionRate, 0.01)
	assert.InDelta(t, 50000.0, ins.CustomerLifetimeValue, 0.001)
	assert.Equal(t, 3, ins.NewCustomers)

	require.Len(t, ins.Customers, 3)
	assert.Equal(t, "u1", ins.Customers[0].UserID)
	assert.Equal(t, 2, ins.Customers[0].OrderCount)
	assert.Equal(t, int64(30000), ins.Customers[0].TotalSpent)
	assert.Equal(t, day(1), ins.Customers[0].FirstOrder)
	assert.Equal(t, day(2), ins.Customers[0].LastOrder)
}

func TestCustomerInsightsNewVsReturning(t *testing.T) {
	// u1's first realized order predates the window, u2's falls inside it
	agg := newTestAggregator(
		completed("old", "u1", "s1", 10000, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)),
		completed("o1", "u1", "s1", 20000, day(2)),
		completed("o2", "u2", "s1", 30000, day(3)),
	)

	ins, err := agg.CustomerInsights(context.Background(), aprilWindow())
	require.NoError(t, err)
	assert.Equal(t, 2, ins.TotalCustomers)
	assert.Equal(t, 1, ins.NewCustomers)
}

func TestCustomerInsightsEmpty(t *testing.T) {
	agg := newTestAggregator()
	ins, err := agg.CustomerInsights(context.Background(), aprilWindow())
	require.NoError(t, err)
	assert.Equal(t, 0, ins.TotalCustomers)
	assert.Equal(t, 0.0, ins.RetentionRate)
	assert.Equal(t, 0.0, ins.CustomerLifetimeValue)
	assert.Equal(t, 0, ins.NewCustomers)
	assert.Empty(t, ins.Customers)
}
