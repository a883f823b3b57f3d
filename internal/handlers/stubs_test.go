package handlers

import (
	"context"
	"errors"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	getByNumFn   func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) ([]services.Order, error)
	setStatusFn  func(context.Context, services.SetOrderStatusCommand) (services.Order, error)
	setPaymentFn func(context.Context, services.SetPaymentStatusCommand) (services.Order, error)
	bulkFn       func(context.Context, services.BulkSetStatusCommand) (int, error)
	updateFn     func(context.Context, services.UpdateOrderDetailsCommand) (services.Order, error)
	deleteFn     func(context.Context, string) error
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (services.Order, error) {
	if s.getByNumFn != nil {
		return s.getByNumFn(ctx, orderNumber)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) ([]services.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderService) SetStatus(ctx context.Context, cmd services.SetOrderStatusCommand) (services.Order, error) {
	if s.setStatusFn != nil {
		return s.setStatusFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SetPaymentStatus(ctx context.Context, cmd services.SetPaymentStatusCommand) (services.Order, error) {
	if s.setPaymentFn != nil {
		return s.setPaymentFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) BulkSetStatus(ctx context.Context, cmd services.BulkSetStatusCommand) (int, error) {
	if s.bulkFn != nil {
		return s.bulkFn(ctx, cmd)
	}
	return 0, errors.New("not implemented")
}

func (s *stubOrderService) UpdateDetails(ctx context.Context, cmd services.UpdateOrderDetailsCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return errors.New("not implemented")
}

type stubCatalogService struct {
	listProductsFn func(context.Context, services.ProductListFilter) ([]services.Product, error)
	getProductFn   func(context.Context, string) (services.Product, error)
	setStockFn     func(context.Context, string, bool) (services.Product, error)
	listGendersFn  func(context.Context) ([]services.Gender, error)
	deleteGenderFn func(context.Context, string) error
	listTypesFn    func(context.Context) ([]services.ProductType, error)
	deleteTypeFn   func(context.Context, string) error
	signUploadFn   func(context.Context, services.ImageUploadCommand) (services.SignedImageURL, error)
	signDownloadFn func(context.Context, string) (services.SignedImageURL, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) ([]services.Product, error) {
	if s.listProductsFn != nil {
		return s.listProductsFn(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, productID)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) SetProductStock(ctx context.Context, productID string, inStock bool) (services.Product, error) {
	if s.setStockFn != nil {
		return s.setStockFn(ctx, productID, inStock)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListGenders(ctx context.Context) ([]services.Gender, error) {
	if s.listGendersFn != nil {
		return s.listGendersFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteGender(ctx context.Context, genderID string) error {
	if s.deleteGenderFn != nil {
		return s.deleteGenderFn(ctx, genderID)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) ListProductTypes(ctx context.Context) ([]services.ProductType, error) {
	if s.listTypesFn != nil {
		return s.listTypesFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteProductType(ctx context.Context, productTypeID string) error {
	if s.deleteTypeFn != nil {
		return s.deleteTypeFn(ctx, productTypeID)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) ProductImageUploadURL(ctx context.Context, cmd services.ImageUploadCommand) (services.SignedImageURL, error) {
	if s.signUploadFn != nil {
		return s.signUploadFn(ctx, cmd)
	}
	return services.SignedImageURL{}, errors.New("not implemented")
}

func (s *stubCatalogService) ProductImageURL(ctx context.Context, object string) (services.SignedImageURL, error) {
	if s.signDownloadFn != nil {
		return s.signDownloadFn(ctx, object)
	}
	return services.SignedImageURL{}, errors.New("not implemented")
}

type stubAnalyticsService struct {
	statsFn     func(context.Context) (services.DashboardStats, error)
	chartFn     func(context.Context, int) ([]services.RevenuePoint, error)
	topFn       func(context.Context, int) ([]services.TopProduct, error)
	breakdownFn func(context.Context) ([]services.GenderShare, error)
	recentFn    func(context.Context, int) ([]services.Order, error)
}

func (s *stubAnalyticsService) DashboardStats(ctx context.Context) (services.DashboardStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return services.DashboardStats{}, errors.New("not implemented")
}

func (s *stubAnalyticsService) RevenueChart(ctx context.Context, months int) ([]services.RevenuePoint, error) {
	if s.chartFn != nil {
		return s.chartFn(ctx, months)
	}
	return nil, errors.New("not implemented")
}

func (s *stubAnalyticsService) TopProducts(ctx context.Context, limit int) ([]services.TopProduct, error) {
	if s.topFn != nil {
		return s.topFn(ctx, limit)
	}
	return nil, errors.New("not implemented")
}

func (s *stubAnalyticsService) GenderBreakdown(ctx context.Context) ([]services.GenderShare, error) {
	if s.breakdownFn != nil {
		return s.breakdownFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (s *stubAnalyticsService) RecentOrders(ctx context.Context, limit int) ([]services.Order, error) {
	if s.recentFn != nil {
		return s.recentFn(ctx, limit)
	}
	return nil, errors.New("not implemented")
}

type stubPaymentService struct {
	intentFn  func(context.Context, string) (services.PaymentIntent, error)
	webhookFn func(context.Context, []byte, string) (services.Order, error)
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, orderID string) (services.PaymentIntent, error) {
	if s.intentFn != nil {
		return s.intentFn(ctx, orderID)
	}
	return services.PaymentIntent{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (services.Order, error) {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, payload, signature)
	}
	return services.Order{}, errors.New("not implemented")
}

func sampleOrder() domain.Order {
	lat := 33.8938
	lng := 35.5018
	return domain.Order{
		ID:            "ord_01HTEST",
		OrderNumber:   "ORD-20250312-AAAAAA",
		CustomerName:  "Mona Haddad",
		CustomerPhone: "+96170123456",
		AddressLine1:  "12 Hamra Street",
		City:          "Beirut",
		Latitude:      &lat,
		Longitude:     &lng,
		Subtotal:      9995,
		ShippingCost:  1000,
		Total:         10995,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []domain.OrderItem{
			{
				ID:           "itm_1",
				ProductID:    "prd_jeans",
				ProductTitle: "Slim Jeans",
				Price:        4000,
				Quantity:     2,
				Subtotal:     8000,
			},
			{
				ID:           "itm_2",
				ProductID:    "prd_tee",
				ProductTitle: "Basic Tee",
				Price:        1995,
				Quantity:     1,
				Subtotal:     1995,
			},
		},
	}
}
