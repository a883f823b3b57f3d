package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/platform/httpx"
	"github.com/loomline/api/internal/platform/pagination"
	"github.com/loomline/api/internal/services"
)

const (
	defaultAdminOrderListLimit = 50
	maxAdminOrderListLimit     = 200
	maxAdminOrderBodySize      = 32 * 1024
)

// AdminOrderHandlers exposes the back-office order management endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes registers the /admin/orders endpoints. Authentication is applied by
// the router's admin group middleware.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Post("/bulk-status", h.bulkSetStatus)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateDetails)
	r.Patch("/{orderID}/status", h.setStatus)
	r.Patch("/{orderID}/payment-status", h.setPaymentStatus)
	r.Delete("/{orderID}", h.deleteOrder)
}

type orderListResponse struct {
	Items []orderSummaryPayload `json:"items"`
	Count int                   `json:"count"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	limit, err := pagination.ParseLimit(query, pagination.Options{
		Default: defaultAdminOrderListLimit,
		Max:     maxAdminOrderListLimit,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		Status:        domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		PaymentStatus: domain.PaymentStatus(strings.TrimSpace(query.Get("payment_status"))),
		Search:        strings.TrimSpace(query.Get("search")),
		Limit:         limit,
	}

	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, Count: len(items)})
}

type mapLinksPayload struct {
	GoogleMaps string `json:"google_maps,omitempty"`
	Waze       string `json:"waze,omitempty"`
}

type adminOrderResponse struct {
	Order orderPayload     `json:"order"`
	Maps  *mapLinksPayload `json:"maps,omitempty"`
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, adminOrderResponse{
		Order: buildOrderPayload(order),
		Maps:  buildMapLinks(order),
	})
}

// buildMapLinks derives navigation links for the delivery crew. GPS
// coordinates win; otherwise the street address feeds a maps search.
func buildMapLinks(order domain.Order) *mapLinksPayload {
	if order.HasGPS() {
		lat := strconv.FormatFloat(*order.Latitude, 'f', -1, 64)
		lng := strconv.FormatFloat(*order.Longitude, 'f', -1, 64)
		return &mapLinksPayload{
			GoogleMaps: fmt.Sprintf("https://www.google.com/maps?q=%s,%s", lat, lng),
			Waze:       fmt.Sprintf("https://waze.com/ul?ll=%s,%s&navigate=yes", lat, lng),
		}
	}

	address := strings.TrimSpace(strings.Join([]string{order.AddressLine1, order.City}, ", "))
	if strings.Trim(address, ", ") == "" {
		return nil
	}
	return &mapLinksPayload{
		GoogleMaps: "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(address),
	}
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req setStatusRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.SetStatus(ctx, services.SetOrderStatusCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type setPaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

func (h *AdminOrderHandlers) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req setPaymentStatusRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.SetPaymentStatus(ctx, services.SetPaymentStatusCommand{
		OrderID:       orderID,
		PaymentStatus: domain.PaymentStatus(strings.TrimSpace(req.PaymentStatus)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type bulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
}

type bulkStatusResponse struct {
	Updated int `json:"updated"`
}

func (h *AdminOrderHandlers) bulkSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req bulkStatusRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	updated, err := h.orders.BulkSetStatus(ctx, services.BulkSetStatusCommand{
		OrderIDs: req.OrderIDs,
		Status:   domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bulkStatusResponse{Updated: updated})
}

type updateOrderDetailsRequest struct {
	CustomerName  *string  `json:"customer_name"`
	CustomerPhone *string  `json:"customer_phone"`
	AddressLine1  *string  `json:"address_line1"`
	City          *string  `json:"city"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	ShippingCost  *int64   `json:"shipping_cost"`
}

func (h *AdminOrderHandlers) updateDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderDetailsRequest
	if !decodeAdminBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdateDetails(ctx, services.UpdateOrderDetailsCommand{
		OrderID:       orderID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		AddressLine1:  req.AddressLine1,
		City:          req.City,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		ShippingCost:  req.ShippingCost,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.DeleteOrder(ctx, orderID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeAdminBody reads and unmarshals a bounded JSON body, writing the error
// envelope itself. It reports whether the caller should continue.
func decodeAdminBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}
