package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/repositories"
)

const (
	defaultChartMonths   = 12
	maxChartMonths       = 24
	defaultTopProducts   = 5
	defaultRecentOrders  = 10
	restockQueueSize     = 5
	maxTopProductsLimit  = 50
	maxRecentOrdersLimit = 100
)

// ErrAnalyticsInvalidInput signals an invalid analytics query parameter.
var ErrAnalyticsInvalidInput = errors.New("analytics: invalid input")

// AnalyticsServiceDeps bundles collaborators required to construct the analytics service.
type AnalyticsServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Taxonomy repositories.TaxonomyRepository
	Clock    func() time.Time
	Location *time.Location
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type analyticsService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	taxonomy repositories.TaxonomyRepository
	clock    func() time.Time
	location *time.Location
	logger   func(context.Context, string, map[string]any)
}

// NewAnalyticsService wires dependencies into a concrete AnalyticsService implementation.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("analytics service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("analytics service: product repository is required")
	}
	if deps.Taxonomy == nil {
		return nil, errors.New("analytics service: taxonomy repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &analyticsService{
		orders:   deps.Orders,
		products: deps.Products,
		taxonomy: deps.Taxonomy,
		clock:    clock,
		location: location,
		logger:   logger,
	}, nil
}

// DashboardStats computes every dashboard rollup from a single "now" captured
// at the start of the call.
func (s *analyticsService) DashboardStats(ctx context.Context) (DashboardStats, error) {
	now := s.now()
	today := dayWindow(now)
	thisMonth := monthWindow(now, 0)
	lastMonth := monthWindow(now, -1)

	revenue, err := s.revenueStats(ctx, today, thisMonth, lastMonth)
	if err != nil {
		return DashboardStats{}, err
	}

	orderStats, err := s.orderStats(ctx, today, thisMonth, lastMonth)
	if err != nil {
		return DashboardStats{}, err
	}

	productStats, err := s.productStats(ctx)
	if err != nil {
		return DashboardStats{}, err
	}

	customerStats, err := s.customerStats(ctx, thisMonth, lastMonth)
	if err != nil {
		return DashboardStats{}, err
	}

	return DashboardStats{
		Revenue:   revenue,
		Orders:    orderStats,
		Products:  productStats,
		Customers: customerStats,
	}, nil
}

func (s *analyticsService) revenueStats(ctx context.Context, today, thisMonth, lastMonth repositories.TimeWindow) (RevenueStats, error) {
	lifetime, err := s.orders.SumTotals(ctx, repositories.OrderAggregateQuery{ExcludeCancelled: true})
	if err != nil {
		return RevenueStats{}, fmt.Errorf("analytics: lifetime revenue: %w", err)
	}
	todayRevenue, err := s.orders.SumTotals(ctx, repositories.OrderAggregateQuery{Window: today, ExcludeCancelled: true})
	if err != nil {
		return RevenueStats{}, fmt.Errorf("analytics: today revenue: %w", err)
	}
	thisMonthRevenue, err := s.orders.SumTotals(ctx, repositories.OrderAggregateQuery{Window: thisMonth, ExcludeCancelled: true})
	if err != nil {
		return RevenueStats{}, fmt.Errorf("analytics: this-month revenue: %w", err)
	}
	lastMonthRevenue, err := s.orders.SumTotals(ctx, repositories.OrderAggregateQuery{Window: lastMonth, ExcludeCancelled: true})
	if err != nil {
		return RevenueStats{}, fmt.Errorf("analytics: last-month revenue: %w", err)
	}

	return RevenueStats{
		Lifetime:       lifetime,
		Today:          todayRevenue,
		ThisMonth:      thisMonthRevenue,
		LastMonth:      lastMonthRevenue,
		MonthChangePct: pctChange(float64(lastMonthRevenue), float64(thisMonthRevenue)),
	}, nil
}

func (s *analyticsService) orderStats(ctx context.Context, today, thisMonth, lastMonth repositories.TimeWindow) (OrderStats, error) {
	lifetime, err := s.orders.Count(ctx, repositories.OrderAggregateQuery{})
	if err != nil {
		return OrderStats{}, fmt.Errorf("analytics: lifetime order count: %w", err)
	}
	todayCount, err := s.orders.Count(ctx, repositories.OrderAggregateQuery{Window: today})
	if err != nil {
		return OrderStats{}, fmt.Errorf("analytics: today order count: %w", err)
	}
	thisMonthCount, err := s.orders.Count(ctx, repositories.OrderAggregateQuery{Window: thisMonth})
	if err != nil {
		return OrderStats{}, fmt.Errorf("analytics: this-month order count: %w", err)
	}
	lastMonthCount, err := s.orders.Count(ctx, repositories.OrderAggregateQuery{Window: lastMonth})
	if err != nil {
		return OrderStats{}, fmt.Errorf("analytics: last-month order count: %w", err)
	}

	histogram, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return OrderStats{}, fmt.Errorf("analytics: status histogram: %w", err)
	}

	byStatus := make(map[OrderStatus]int64, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		byStatus[status] = histogram[status]
	}

	return OrderStats{
		Lifetime:       lifetime,
		Today:          todayCount,
		ThisMonth:      thisMonthCount,
		LastMonth:      lastMonthCount,
		Pending:        byStatus[domain.OrderStatusPending],
		MonthChangePct: pctChange(float64(lastMonthCount), float64(thisMonthCount)),
		ByStatus:       byStatus,
	}, nil
}

func (s *analyticsService) productStats(ctx context.Context) (ProductStats, error) {
	counts, err := s.products.Stats(ctx)
	if err != nil {
		return ProductStats{}, fmt.Errorf("analytics: product counters: %w", err)
	}

	restock, err := s.products.OutOfStockBySales(ctx, restockQueueSize)
	if err != nil {
		return ProductStats{}, fmt.Errorf("analytics: restock queue: %w", err)
	}

	queue := make([]ProductSales, 0, len(restock))
	for _, product := range restock {
		queue = append(queue, ProductSales{
			ProductID: product.ID,
			Title:     product.Title,
			Image:     product.MainImage(),
			Price:     product.Price,
			Sales:     product.SalesCount,
		})
	}

	return ProductStats{
		Total:        counts.Total,
		InStock:      counts.InStock,
		OutOfStock:   counts.OutOfStock,
		NewArrival:   counts.NewArrival,
		OnSale:       counts.OnSale,
		RestockFirst: queue,
	}, nil
}

func (s *analyticsService) customerStats(ctx context.Context, thisMonth, lastMonth repositories.TimeWindow) (CustomerStats, error) {
	lifetime, err := s.orders.DistinctCustomerPhones(ctx, repositories.TimeWindow{})
	if err != nil {
		return CustomerStats{}, fmt.Errorf("analytics: lifetime customers: %w", err)
	}
	thisMonthCount, err := s.orders.DistinctCustomerPhones(ctx, thisMonth)
	if err != nil {
		return CustomerStats{}, fmt.Errorf("analytics: this-month customers: %w", err)
	}
	lastMonthCount, err := s.orders.DistinctCustomerPhones(ctx, lastMonth)
	if err != nil {
		return CustomerStats{}, fmt.Errorf("analytics: last-month customers: %w", err)
	}

	return CustomerStats{
		Lifetime:       lifetime,
		ThisMonth:      thisMonthCount,
		LastMonth:      lastMonthCount,
		MonthChangePct: pctChange(float64(lastMonthCount), float64(thisMonthCount)),
	}, nil
}

// RevenueChart returns one point per trailing calendar month, oldest first,
// including the current partial month. Revenue excludes cancelled orders;
// order counts do not.
func (s *analyticsService) RevenueChart(ctx context.Context, months int) ([]RevenuePoint, error) {
	if months <= 0 {
		months = defaultChartMonths
	}
	if months > maxChartMonths {
		return nil, fmt.Errorf("%w: months must be at most %d", ErrAnalyticsInvalidInput, maxChartMonths)
	}

	now := s.now()
	points := make([]RevenuePoint, 0, months)

	for offset := months - 1; offset >= 0; offset-- {
		window := monthWindow(now, -offset)

		revenue, err := s.orders.SumTotals(ctx, repositories.OrderAggregateQuery{Window: window, ExcludeCancelled: true})
		if err != nil {
			return nil, fmt.Errorf("analytics: chart revenue: %w", err)
		}
		count, err := s.orders.Count(ctx, repositories.OrderAggregateQuery{Window: window})
		if err != nil {
			return nil, fmt.Errorf("analytics: chart order count: %w", err)
		}

		start := window.From.In(s.location)
		points = append(points, RevenuePoint{
			Label:   start.Format("Jan 2006"),
			Year:    start.Year(),
			Month:   start.Month(),
			Revenue: revenue,
			Orders:  count,
		})
	}

	return points, nil
}

// TopProducts ranks products by their sales counter. Revenue is approximated
// as current price times units sold, since prices can change after a sale.
func (s *analyticsService) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = defaultTopProducts
	}
	if limit > maxTopProductsLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrAnalyticsInvalidInput, maxTopProductsLimit)
	}

	products, err := s.products.TopBySales(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: top products: %w", err)
	}

	top := make([]TopProduct, 0, len(products))
	for _, product := range products {
		top = append(top, TopProduct{
			ProductID: product.ID,
			Title:     product.Title,
			Image:     product.MainImage(),
			Price:     product.Price,
			UnitsSold: product.SalesCount,
			Revenue:   domain.Money(int64(product.Price) * product.SalesCount),
		})
	}
	return top, nil
}

// GenderBreakdown groups units sold by catalog gender, excluding cancelled
// orders. Percentages are of total units; a zero total is treated as 1 so the
// result stays division-safe.
func (s *analyticsService) GenderBreakdown(ctx context.Context) ([]GenderShare, error) {
	unitsByProduct, err := s.orders.UnitsByProduct(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: units by product: %w", err)
	}
	if len(unitsByProduct) == 0 {
		return []GenderShare{}, nil
	}

	productIDs := make([]string, 0, len(unitsByProduct))
	for id := range unitsByProduct {
		productIDs = append(productIDs, id)
	}
	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("analytics: resolve products: %w", err)
	}

	genders, err := s.taxonomy.ListGenders(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: list genders: %w", err)
	}
	genderNames := make(map[string]string, len(genders))
	for _, gender := range genders {
		genderNames[gender.ID] = gender.Name
	}

	unitsByGender := make(map[string]int64)
	var total int64
	for productID, units := range unitsByProduct {
		product, ok := products[productID]
		if !ok {
			s.logger(ctx, "analytics.breakdown.product.missing", map[string]any{"product": productID})
			continue
		}
		name, ok := genderNames[product.GenderID]
		if !ok {
			s.logger(ctx, "analytics.breakdown.gender.unmapped", map[string]any{"product": productID})
			continue
		}
		unitsByGender[name] += units
		total += units
	}

	divisor := total
	if divisor == 0 {
		divisor = 1
	}

	shares := make([]GenderShare, 0, len(unitsByGender))
	for name, units := range unitsByGender {
		shares = append(shares, GenderShare{
			Gender: name,
			Units:  units,
			Pct:    round1(float64(units) / float64(divisor) * 100),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Units != shares[j].Units {
			return shares[i].Units > shares[j].Units
		}
		return shares[i].Gender < shares[j].Gender
	})
	return shares, nil
}

func (s *analyticsService) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = defaultRecentOrders
	}
	if limit > maxRecentOrdersLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrAnalyticsInvalidInput, maxRecentOrdersLimit)
	}

	orders, err := s.orders.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("analytics: recent orders: %w", err)
	}
	return orders, nil
}

func (s *analyticsService) now() time.Time {
	return s.clock().In(s.location)
}

// dayWindow is the calendar day containing now, in the business timezone.
func dayWindow(now time.Time) repositories.TimeWindow {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return repositories.TimeWindow{From: start, To: start.AddDate(0, 0, 1)}
}

// monthWindow is the calendar month offset months away from now's month.
func monthWindow(now time.Time, offset int) repositories.TimeWindow {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, offset, 0)
	return repositories.TimeWindow{From: start, To: start.AddDate(0, 1, 0)}
}

// pctChange returns 0 when the prior period is zero, otherwise the relative
// change rounded to one decimal place.
func pctChange(prev, curr float64) float64 {
	if prev == 0 {
		return 0
	}
	return round1((curr - prev) / prev * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
