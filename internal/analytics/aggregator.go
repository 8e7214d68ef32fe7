// Package analytics is the read side of the order ledger: batch aggregates
// over the order history. It never participates in the transition path and
// only counts realized sales.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/katinat-coffee/ordering-backend/internal/orders"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

// DefaultTopProductsLimit applies when the caller does not supply one.
const DefaultTopProductsLimit = 10

// realizedStatuses are the statuses that count as a sale. Pending,
// cancelled and failed orders contribute to nothing.
var realizedStatuses = []orders.Status{orders.StatusCompleted}

// OrderSource is the ledger query boundary. *orders.Ledger satisfies it.
type OrderSource interface {
	Query(ctx context.Context, f orders.QueryFilter) ([]orders.Order, error)
}

// Window scopes a report: inclusive date range on creation time, optional
// single store.
type Window struct {
	Start   time.Time
	End     time.Time
	StoreID string
}

// Aggregator computes reports on demand. Stateless; safe for concurrent use.
type Aggregator struct {
	src OrderSource
	log *logger.Logger
}

func New(src OrderSource, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{src: src, log: log.WithComponent("analytics")}
}

func (a *Aggregator) realized(ctx context.Context, w Window) ([]orders.Order, error) {
	return a.src.Query(ctx, orders.QueryFilter{
		Statuses: realizedStatuses,
		From:     w.Start,
		To:       w.End,
		StoreID:  w.StoreID,
	})
}

// SalesSummary is revenue, order count and mean order value for a window.
type SalesSummary struct {
	TotalSales        int64   `json:"totalSales"`
	TotalOrders       int     `json:"totalOrders"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

func (a *Aggregator) SalesSummary(ctx context.Context, w Window) (*SalesSummary, error) {
	matched, err := a.realized(ctx, w)
	if err != nil {
		return nil, err
	}

	s := &SalesSummary{}
	for i := range matched {
		s.TotalSales += matched[i].Total
		s.TotalOrders++
	}
	if s.TotalOrders > 0 {
		s.AverageOrderValue = float64(s.TotalSales) / float64(s.TotalOrders)
	}
	return s, nil
}

// DailySales is one calendar day's revenue/count pair.
type DailySales struct {
	Date   string `json:"date"` // UTC, YYYY-MM-DD
	Sales  int64  `json:"sales"`
	Orders int    `json:"orders"`
}

// DailySales groups realized sales by UTC day of creation, ascending.
func (a *Aggregator) DailySales(ctx context.Context, w Window) ([]DailySales, error) {
	matched, err := a.realized(ctx, w)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailySales)
	for i := range matched {
		day := matched[i].CreatedAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailySales{Date: day}
			byDay[day] = d
		}
		d.Sales += matched[i].Total
		d.Orders++
	}

	out := make([]DailySales, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// ProductSales ranks one product's contribution across matching orders.
type ProductSales struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name,omitempty"`
	TotalQuantity int    `json:"totalQuantity"`
	TotalRevenue  int64  `json:"totalRevenue"`
}

// TopProducts ranks products by quantity sold, descending, truncated to
// limit (DefaultTopProductsLimit when limit <= 0).
func (a *Aggregator) TopProducts(ctx context.Context, w Window, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = DefaultTopProductsLimit
	}
	matched, err := a.realized(ctx, w)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]*ProductSales)
	for i := range matched {
		for _, it := range matched[i].Items {
			p, ok := byProduct[it.ProductID]
			if !ok {
				p = &ProductSales{ProductID: it.ProductID, Name: it.Name}
				byProduct[it.ProductID] = p
			}
			p.TotalQuantity += it.Quantity
			p.TotalRevenue += it.UnitPrice * int64(it.Quantity)
		}
	}

	out := make([]ProductSales, 0, len(byProduct))
	for _, p := range byProduct {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalQuantity != out[j].TotalQuantity {
			return out[i].TotalQuantity > out[j].TotalQuantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StoreSales ranks one store's realized sales.
type StoreSales struct {
	StoreID           string  `json:"storeId"`
	TotalSales        int64   `json:"totalSales"`
	TotalOrders       int     `json:"totalOrders"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

// StorePerformance ranks stores by revenue, descending. The window's store
// scope is ignored here: the report is inherently cross-store.
func (a *Aggregator) StorePerformance(ctx context.Context, w Window) ([]StoreSales, error) {
	matched, err := a.realized(ctx, Window{Start: w.Start, End: w.End})
	if err != nil {
		return nil, err
	}

	byStore := make(map[string]*StoreSales)
	for i := range matched {
		s, ok := byStore[matched[i].StoreID]
		if !ok {
			s = &StoreSales{StoreID: matched[i].StoreID}
			byStore[matched[i].StoreID] = s
		}
		s.TotalSales += matched[i].Total
		s.TotalOrders++
	}

	out := make([]StoreSales, 0, len(byStore))
	for _, s := range byStore {
		if s.TotalOrders > 0 {
			s.AverageOrderValue = float64(s.TotalSales) / float64(s.TotalOrders)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSales != out[j].TotalSales {
			return out[i].TotalSales > out[j].TotalSales
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out, nil
}

// CustomerStats is one customer's activity inside the window.
type CustomerStats struct {
	UserID     string    `json:"userId"`
	OrderCount int       `json:"orderCount"`
	TotalSpent int64     `json:"totalSpent"`
	FirstOrder time.Time `json:"firstOrder"`
	LastOrder  time.Time `json:"lastOrder"`
}

// CustomerInsights summarizes the customer base over a window.
type CustomerInsights struct {
	NewCustomers          int             `json:"newCustomers"`
	TotalCustomers        int             `json:"totalCustomers"`
	RepeatCustomers       int             `json:"repeatCustomers"`
	RetentionRate         float64         `json:"retentionRate"`
	CustomerLifetimeValue float64         `json:"customerLifetimeValue"`
	Customers             []CustomerStats `json:"customers"`
}

// CustomerInsights computes retention over customers active in the window.
// Retention rate is (customers with more than one order) / (distinct
// customers) x 100; zero customers yields zeros, never an error. A customer
// is "new" when their first realized order ever falls inside the window.
func (a *Aggregator) CustomerInsights(ctx context.Context, w Window) (*CustomerInsights, error) {
	matched, err := a.realized(ctx, w)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]*CustomerStats)
	for i := range matched {
		o := &matched[i]
		s, ok := byUser[o.UserID]
		if !ok {
			s = &CustomerStats{UserID: o.UserID, FirstOrder: o.CreatedAt, LastOrder: o.CreatedAt}
			byUser[o.UserID] = s
		}
		s.OrderCount++
		s.TotalSpent += o.Total
		if o.CreatedAt.Before(s.FirstOrder) {
			s.FirstOrder = o.CreatedAt
		}
		if o.CreatedAt.After(s.LastOrder) {
			s.LastOrder = o.CreatedAt
		}
	}

	ins := &CustomerInsights{TotalCustomers: len(byUser)}
	var totalSpend int64
	for _, s := range byUser {
		if s.OrderCount > 1 {
			ins.RepeatCustomers++
		}
		totalSpend += s.TotalSpent
		ins.Customers = append(ins.Customers, *s)
	}
	sort.Slice(ins.Customers, func(i, j int) bool {
		return ins.Customers[i].UserID < ins.Customers[j].UserID
	})

	if ins.TotalCustomers > 0 {
		ins.RetentionRate = float64(ins.RepeatCustomers) / float64(ins.TotalCustomers) * 100
		ins.CustomerLifetimeValue = float64(totalSpend) / float64(ins.TotalCustomers)
	}

	ins.NewCustomers, err = a.countNewCustomers(ctx, w, byUser)
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// countNewCustomers checks each window-active customer's full history: only
// those whose earliest realized order falls inside the window are new.
func (a *Aggregator) countNewCustomers(ctx context.Context, w Window, active map[string]*CustomerStats) (int, error) {
	if len(active) == 0 {
		return 0, nil
	}
	all, err := a.src.Query(ctx, orders.QueryFilter{Statuses: realizedStatuses, StoreID: w.StoreID})
	if err != nil {
		return 0, err
	}

	earliest := make(map[string]time.Time)
	for i := range all {
		o := &all[i]
		if t, ok := earliest[o.UserID]; !ok || o.CreatedAt.Before(t) {
			earliest[o.UserID] = o.CreatedAt
		}
	}

	count := 0
	for userID := range active {
		first, ok := earliest[userID]
		if !ok {
			continue
		}
		if !first.Before(w.Start) && !first.After(w.End) {
			count++
		}
	}
	return count, nil
}
