package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/loomline/api/internal/domain"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// moneyPrinter renders minor-unit amounts as grouped two-decimal strings
// ("10,995" cents -> "109.95") for API consumers that display prices as-is.
var moneyPrinter = message.NewPrinter(language.English)

func formatMoney(m domain.Money) string {
	return moneyPrinter.Sprintf("%.2f", m.Major())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 64 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// Order payloads are shared by the storefront and admin surfaces; the admin
// detail view additionally carries navigation links.

type orderItemPayload struct {
	ID           string  `json:"id"`
	ProductID    string  `json:"product_id"`
	ProductTitle string  `json:"product_title"`
	ProductImage *string `json:"product_image,omitempty"`
	Price        int64   `json:"price"`
	PriceDisplay string  `json:"price_display"`
	Size         *string `json:"size,omitempty"`
	Color        *string `json:"color,omitempty"`
	Quantity     int     `json:"quantity"`
	Subtotal     int64   `json:"subtotal"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"order_number"`
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone"`
	AddressLine1    string             `json:"address_line1"`
	City            string             `json:"city"`
	Latitude        *float64           `json:"latitude,omitempty"`
	Longitude       *float64           `json:"longitude,omitempty"`
	Subtotal        int64              `json:"subtotal"`
	ShippingCost    int64              `json:"shipping_cost"`
	Total           int64              `json:"total"`
	TotalDisplay    string             `json:"total_display"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	Items           []orderItemPayload `json:"items"`
	ItemCount       int                `json:"item_count"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
	DeliveredAt     string             `json:"delivered_at,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductTitle: item.ProductTitle,
			ProductImage: item.ProductImage,
			Price:        int64(item.Price),
			PriceDisplay: formatMoney(item.Price),
			Size:         item.Size,
			Color:        item.Color,
			Quantity:     item.Quantity,
			Subtotal:     int64(item.Subtotal),
		})
	}

	return orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		AddressLine1:  order.AddressLine1,
		City:          order.City,
		Latitude:      order.Latitude,
		Longitude:     order.Longitude,
		Subtotal:      int64(order.Subtotal),
		ShippingCost:  int64(order.ShippingCost),
		Total:         int64(order.Total),
		TotalDisplay:  formatMoney(order.Total),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Items:         items,
		ItemCount:     order.ItemCount(),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		DeliveredAt:   formatTimePtr(order.DeliveredAt),
	}
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	City          string `json:"city"`
	Total         int64  `json:"total"`
	TotalDisplay  string `json:"total_display"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		City:          order.City,
		Total:         int64(order.Total),
		TotalDisplay:  formatMoney(order.Total),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ItemCount:     order.ItemCount(),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

type productPayload struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Price         int64    `json:"price"`
	PriceDisplay  string   `json:"price_display"`
	OriginalPrice *int64   `json:"original_price,omitempty"`
	InStock       bool     `json:"in_stock"`
	IsNew         bool     `json:"is_new"`
	IsSale        bool     `json:"is_sale"`
	SalesCount    int64    `json:"sales_count"`
	Sizes         []string `json:"sizes,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	Images        []string `json:"images,omitempty"`
	ProductTypeID string   `json:"product_type_id"`
	GenderID      string   `json:"gender_id"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		ID:            product.ID,
		Title:         product.Title,
		Description:   product.Description,
		Price:         int64(product.Price),
		PriceDisplay:  formatMoney(product.Price),
		InStock:       product.InStock,
		IsNew:         product.IsNew,
		IsSale:        product.IsSale,
		SalesCount:    product.SalesCount,
		Sizes:         product.Sizes,
		Colors:        product.Colors,
		Images:        product.Images,
		ProductTypeID: product.ProductTypeID,
		GenderID:      product.GenderID,
		CreatedAt:     formatTime(product.CreatedAt),
	}
	if product.OriginalPrice != nil {
		original := int64(*product.OriginalPrice)
		payload.OriginalPrice = &original
	}
	return payload
}
