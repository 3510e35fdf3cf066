package storage

import "time"

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid returns true for a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a customer order placed against a business. CustomerID is nil for
// orders created through the back office rather than by a customer.
type Order struct {
	ID         int64       `json:"id"`
	BusinessID int64       `json:"business_id"`
	CustomerID *int64      `json:"customer_id,omitempty"`
	Status     OrderStatus `json:"status"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// PaymentStatus represents the lifecycle state of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Valid returns true for a known payment status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment is a payment attempt against an order. InitiatedBy is nil when the
// payment was created by the provider rather than a user.
type Payment struct {
	ID          int64         `json:"id"`
	BusinessID  int64         `json:"business_id"`
	OrderID     *int64        `json:"order_id,omitempty"`
	InitiatedBy *int64        `json:"initiated_by,omitempty"`
	Provider    string        `json:"provider"`
	ProviderRef *string       `json:"provider_ref,omitempty"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Product is a catalog entry scoped to a business
type Product struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"business_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RevenueSummary aggregates payment activity for a business
type RevenueSummary struct {
	BusinessID     int64 `json:"business_id"`
	OrderCount     int64 `json:"order_count"`
	PaymentCount   int64 `json:"payment_count"`
	CollectedCents int64 `json:"collected_cents"`
	RefundedCents  int64 `json:"refunded_cents"`
}

// CreateOrderRequest carries the fields accepted when creating an order
type CreateOrderRequest struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
	TotalCents int64  `json:"total_cents"`
	Currency   string `json:"currency,omitempty"`
}

// CreatePaymentRequest carries the fields accepted when creating a payment
type CreatePaymentRequest struct {
	OrderID     *int64 `json:"order_id,omitempty"`
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
}

// CreateProductRequest carries the fields accepted when creating a product
type CreateProductRequest struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// UpdateProductRequest carries optional product updates
type UpdateProductRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

// ProviderEvent is the payload a payment provider posts to the webhook
// callback endpoint after signature verification.
type ProviderEvent struct {
	EventID     string        `json:"event_id"`
	ProviderRef string        `json:"provider_ref"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amount_cents,omitempty"`
}
