package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/loomline/api/internal/platform/httpx"
	"github.com/loomline/api/internal/platform/pagination"
	"github.com/loomline/api/internal/services"
)

// DashboardHandlers serves the admin analytics rollups.
type DashboardHandlers struct {
	analytics services.AnalyticsService
}

// NewDashboardHandlers constructs dashboard handlers.
func NewDashboardHandlers(analytics services.AnalyticsService) *DashboardHandlers {
	return &DashboardHandlers{analytics: analytics}
}

// Routes registers the /admin/dashboard endpoints.
func (h *DashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/stats", h.stats)
	r.Get("/revenue-chart", h.revenueChart)
	r.Get("/top-products", h.topProducts)
	r.Get("/gender-breakdown", h.genderBreakdown)
	r.Get("/recent-orders", h.recentOrders)
}

type revenueStatsPayload struct {
	Lifetime        int64   `json:"lifetime"`
	LifetimeDisplay string  `json:"lifetime_display"`
	Today           int64   `json:"today"`
	ThisMonth       int64   `json:"this_month"`
	LastMonth       int64   `json:"last_month"`
	MonthChangePct  float64 `json:"month_change_pct"`
}

type orderStatsPayload struct {
	Lifetime       int64            `json:"lifetime"`
	Today          int64            `json:"today"`
	ThisMonth      int64            `json:"this_month"`
	LastMonth      int64            `json:"last_month"`
	Pending        int64            `json:"pending"`
	MonthChangePct float64          `json:"month_change_pct"`
	ByStatus       map[string]int64 `json:"by_status"`
}

type productSalesPayload struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Image     *string `json:"image,omitempty"`
	Price     int64   `json:"price"`
	Sales     int64   `json:"sales"`
}

type productStatsPayload struct {
	Total        int64                 `json:"total"`
	InStock      int64                 `json:"in_stock"`
	OutOfStock   int64                 `json:"out_of_stock"`
	NewArrival   int64                 `json:"new_arrival"`
	OnSale       int64                 `json:"on_sale"`
	RestockFirst []productSalesPayload `json:"restock_first"`
}

type customerStatsPayload struct {
	Lifetime       int64   `json:"lifetime"`
	ThisMonth      int64   `json:"this_month"`
	LastMonth      int64   `json:"last_month"`
	MonthChangePct float64 `json:"month_change_pct"`
}

type dashboardStatsResponse struct {
	Revenue   revenueStatsPayload  `json:"revenue"`
	Orders    orderStatsPayload    `json:"orders"`
	Products  productStatsPayload  `json:"products"`
	Customers customerStatsPayload `json:"customers"`
}

func (h *DashboardHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.analytics.DashboardStats(ctx)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	byStatus := make(map[string]int64, len(stats.Orders.ByStatus))
	for status, count := range stats.Orders.ByStatus {
		byStatus[string(status)] = count
	}

	restock := make([]productSalesPayload, 0, len(stats.Products.RestockFirst))
	for _, entry := range stats.Products.RestockFirst {
		restock = append(restock, productSalesPayload{
			ProductID: entry.ProductID,
			Title:     entry.Title,
			Image:     entry.Image,
			Price:     int64(entry.Price),
			Sales:     entry.Sales,
		})
	}

	writeJSONResponse(w, http.StatusOK, dashboardStatsResponse{
		Revenue: revenueStatsPayload{
			Lifetime:        int64(stats.Revenue.Lifetime),
			LifetimeDisplay: formatMoney(stats.Revenue.Lifetime),
			Today:           int64(stats.Revenue.Today),
			ThisMonth:       int64(stats.Revenue.ThisMonth),
			LastMonth:       int64(stats.Revenue.LastMonth),
			MonthChangePct:  stats.Revenue.MonthChangePct,
		},
		Orders: orderStatsPayload{
			Lifetime:       stats.Orders.Lifetime,
			Today:          stats.Orders.Today,
			ThisMonth:      stats.Orders.ThisMonth,
			LastMonth:      stats.Orders.LastMonth,
			Pending:        stats.Orders.Pending,
			MonthChangePct: stats.Orders.MonthChangePct,
			ByStatus:       byStatus,
		},
		Products: productStatsPayload{
			Total:        stats.Products.Total,
			InStock:      stats.Products.InStock,
			OutOfStock:   stats.Products.OutOfStock,
			NewArrival:   stats.Products.NewArrival,
			OnSale:       stats.Products.OnSale,
			RestockFirst: restock,
		},
		Customers: customerStatsPayload{
			Lifetime:       stats.Customers.Lifetime,
			ThisMonth:      stats.Customers.ThisMonth,
			LastMonth:      stats.Customers.LastMonth,
			MonthChangePct: stats.Customers.MonthChangePct,
		},
	})
}

type revenuePointPayload struct {
	Label   string `json:"label"`
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Revenue int64  `json:"revenue"`
	Orders  int64  `json:"orders"`
}

func (h *DashboardHandlers) revenueChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}

	months, ok := parseCountParam(ctx, w, r.URL.Query(), "months")
	if !ok {
		return
	}

	points, err := h.analytics.RevenueChart(ctx, months)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	items := make([]revenuePointPayload, 0, len(points))
	for _, point := range points {
		items = append(items, revenuePointPayload{
			Label:   point.Label,
			Year:    point.Year,
			Month:   int(point.Month),
			Revenue: int64(point.Revenue),
			Orders:  point.Orders,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type topProductPayload struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Image     *string `json:"image,omitempty"`
	Price     int64   `json:"price"`
	UnitsSold int64   `json:"units_sold"`
	Revenue   int64   `json:"revenue"`
}

func (h *DashboardHandlers) topProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}

	limit, ok := parseCountParam(ctx, w, r.URL.Query(), "limit")
	if !ok {
		return
	}

	products, err := h.analytics.TopProducts(ctx, limit)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	items := make([]topProductPayload, 0, len(products))
	for _, product := range products {
		items = append(items, topProductPayload{
			ProductID: product.ProductID,
			Title:     product.Title,
			Image:     product.Image,
			Price:     int64(product.Price),
			UnitsSold: product.UnitsSold,
			Revenue:   int64(product.Revenue),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type genderSharePayload struct {
	Gender string  `json:"gender"`
	Units  int64   `json:"units"`
	Pct    float64 `json:"pct"`
}

func (h *DashboardHandlers) genderBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}

	shares, err := h.analytics.GenderBreakdown(ctx)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	items := make([]genderSharePayload, 0, len(shares))
	for _, share := range shares {
		items = append(items, genderSharePayload{Gender: share.Gender, Units: share.Units, Pct: share.Pct})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DashboardHandlers) recentOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}

	limit, ok := parseCountParam(ctx, w, r.URL.Query(), "limit")
	if !ok {
		return
	}

	orders, err := h.analytics.RecentOrders(ctx, limit)
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, Count: len(items)})
}

// parseCountParam parses an optional positive integer query parameter; zero
// means "use the service default".
func parseCountParam(ctx context.Context, w http.ResponseWriter, query url.Values, name string) (int, bool) {
	value, err := pagination.ParseLimit(query, pagination.Options{Key: name})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", name+" must be a non-negative integer", http.StatusBadRequest))
		return 0, false
	}
	return value, true
}

func writeAnalyticsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAnalyticsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("analytics_error", "failed to compute analytics", http.StatusInternalServerError))
	}
}
