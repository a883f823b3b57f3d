package repositories

import "fmt"

// OrderCommitErrorCode enumerates failure reasons for the checkout commit.
type OrderCommitErrorCode string

const (
	// OrderCommitErrorUnknown represents an unspecified failure.
	OrderCommitErrorUnknown OrderCommitErrorCode = "order_commit_unknown"
	// OrderCommitErrorProductNotFound indicates a line referenced a product that does not exist.
	OrderCommitErrorProductNotFound OrderCommitErrorCode = "order_commit_product_not_found"
	// OrderCommitErrorOutOfStock indicates a line referenced a product flagged out of stock.
	OrderCommitErrorOutOfStock OrderCommitErrorCode = "order_commit_out_of_stock"
	// OrderCommitErrorNumberTaken indicates the generated order number already exists.
	OrderCommitErrorNumberTaken OrderCommitErrorCode = "order_commit_number_taken"
)

// OrderCommitError wraps checkout-commit failures with machine readable codes
// so the service can translate them into its own error taxonomy.
type OrderCommitError struct {
	Code      OrderCommitErrorCode
	ProductID string
	Title     string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *OrderCommitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap exposes the underlying error, if any.
func (e *OrderCommitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOrderCommitError constructs a typed checkout-commit error.
func NewOrderCommitError(code OrderCommitErrorCode, message string, err error) *OrderCommitError {
	if message == "" {
		message = string(code)
	}
	return &OrderCommitError{Code: code, Message: message, Err: err}
}

// NewProductNotFoundError reports a missing product by id.
func NewProductNotFoundError(productID string) *OrderCommitError {
	return &OrderCommitError{
		Code:      OrderCommitErrorProductNotFound,
		ProductID: productID,
		Message:   fmt.Sprintf("product %s not found", productID),
	}
}

// NewOutOfStockError reports an out-of-stock product by title.
func NewOutOfStockError(productID, title string) *OrderCommitError {
	return &OrderCommitError{
		Code:      OrderCommitErrorOutOfStock,
		ProductID: productID,
		Title:     title,
		Message:   fmt.Sprintf("product %q is out of stock", title),
	}
}
