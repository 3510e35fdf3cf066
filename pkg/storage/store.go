package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("storage: not found")

// PostgresStore persists orders, payments, and products
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateOrder inserts a new order for a business
func (s *PostgresStore) CreateOrder(ctx context.Context, businessID int64, req *CreateOrderRequest) (*Order, error) {
	if req.TotalCents < 0 {
		return nil, fmt.Errorf("order total must not be negative")
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	order := &Order{
		BusinessID: businessID,
		CustomerID: req.CustomerID,
		Status:     OrderStatusPending,
		TotalCents: req.TotalCents,
		Currency:   currency,
	}

	query := `
		INSERT INTO orders (business_id, customer_id, status, total_cents, currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		businessID, req.CustomerID, order.Status, order.TotalCents, currency,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return order, nil
}

// GetOrder retrieves an order by ID
func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	query := `
		SELECT id, business_id, customer_id, status, total_cents, currency, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	order := &Order{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID, &order.BusinessID, &order.CustomerID, &order.Status,
		&order.TotalCents, &order.Currency, &order.CreatedAt, &order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

// ListOrders returns a business's orders, newest first
func (s *PostgresStore) ListOrders(ctx context.Context, businessID int64) ([]*Order, error) {
	query := `
		SELECT id, business_id, customer_id, status, total_cents, currency, created_at, updated_at
		FROM orders
		WHERE business_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order := &Order{}
		if err := rows.Scan(
			&order.ID, &order.BusinessID, &order.CustomerID, &order.Status,
			&order.TotalCents, &order.Currency, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// UpdateOrderStatus transitions an order to a new status
func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid order status: %s", status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return requireRowsAffected(result)
}

// DeleteOrder removes an order
func (s *PostgresStore) DeleteOrder(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	return requireRowsAffected(result)
}

// CreatePayment inserts a new payment initiated by a user
func (s *PostgresStore) CreatePayment(ctx context.Context, businessID int64, initiatedBy *int64, req *CreatePaymentRequest) (*Payment, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	var providerRef *string
	if req.ProviderRef != "" {
		providerRef = &req.ProviderRef
	}

	payment := &Payment{
		BusinessID:  businessID,
		OrderID:     req.OrderID,
		InitiatedBy: initiatedBy,
		Provider:    req.Provider,
		ProviderRef: providerRef,
		Status:      PaymentStatusPending,
		AmountCents: req.AmountCents,
		Currency:    currency,
	}

	query := `
		INSERT INTO payments (business_id, order_id, initiated_by, provider, provider_ref, status, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		businessID, req.OrderID, initiatedBy, req.Provider, providerRef,
		payment.Status, payment.AmountCents, currency,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return payment, nil
}

// GetPayment retrieves a payment by ID
func (s *PostgresStore) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	query := `
		SELECT id, business_id, order_id, initiated_by, provider, provider_ref,
		       status, amount_cents, currency, created_at, updated_at
		FROM payments
		WHERE id = $1
	`
	return s.scanPayment(s.db.QueryRowContext(ctx, query, id))
}

// ListPayments returns a business's payments, newest first
func (s *PostgresStore) ListPayments(ctx context.Context, businessID int64) ([]*Payment, error) {
	query := `
		SELECT id, business_id, order_id, initiated_by, provider, provider_ref,
		       status, amount_cents, currency, created_at, updated_at
		FROM payments
		WHERE business_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		payment := &Payment{}
		if err := rows.Scan(
			&payment.ID, &payment.BusinessID, &payment.OrderID, &payment.InitiatedBy,
			&payment.Provider, &payment.ProviderRef, &payment.Status,
			&payment.AmountCents, &payment.Currency, &payment.CreatedAt, &payment.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// ApplyProviderEvent updates the payment matching the provider reference with
// the status the provider reported. A succeeded payment also marks its order
// as paid. Returns ErrNotFound when no payment carries the reference.
func (s *PostgresStore) ApplyProviderEvent(ctx context.Context, event *ProviderEvent) (*Payment, error) {
	if event.ProviderRef == "" {
		return nil, fmt.Errorf("provider reference is required")
	}
	if !event.Status.Valid() {
		return nil, fmt.Errorf("invalid payment status: %s", event.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE provider_ref = $2
		RETURNING id, business_id, order_id, initiated_by, provider, provider_ref,
		          status, amount_cents, currency, created_at, updated_at
	`
	payment, err := s.scanPayment(tx.QueryRowContext(ctx, query, event.Status, event.ProviderRef))
	if err != nil {
		return nil, err
	}

	if event.Status == PaymentStatusSucceeded && payment.OrderID != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			OrderStatusPaid, *payment.OrderID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return payment, nil
}

// CreateProduct inserts a new catalog entry
func (s *PostgresStore) CreateProduct(ctx context.Context, businessID int64, req *CreateProductRequest) (*Product, error) {
	if req.SKU == "" || req.Name == "" {
		return nil, fmt.Errorf("product sku and name are required")
	}

	product := &Product{
		BusinessID: businessID,
		SKU:        req.SKU,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		IsActive:   true,
	}

	query := `
		INSERT INTO products (business_id, sku, name, price_cents, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		businessID, req.SKU, req.Name, req.PriceCents,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return product, nil
}

// GetProduct retrieves a product by ID
func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	query := `
		SELECT id, business_id, sku, name, price_cents, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	product := &Product{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID, &product.BusinessID, &product.SKU, &product.Name,
		&product.PriceCents, &product.IsActive, &product.CreatedAt, &product.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

// ListProducts returns a business's catalog ordered by SKU
func (s *PostgresStore) ListProducts(ctx context.Context, businessID int64) ([]*Product, error) {
	query := `
		SELECT id, business_id, sku, name, price_cents, is_active, created_at, updated_at
		FROM products
		WHERE business_id = $1
		ORDER BY sku
	`
	rows, err := s.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		product := &Product{}
		if err := rows.Scan(
			&product.ID, &product.BusinessID, &product.SKU, &product.Name,
			&product.PriceCents, &product.IsActive, &product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

// UpdateProduct applies a partial update to a product
func (s *PostgresStore) UpdateProduct(ctx context.Context, id int64, req *UpdateProductRequest) error {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argNum := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argNum))
		args = append(args, *req.Name)
		argNum++
	}
	if req.PriceCents != nil {
		setClauses = append(setClauses, fmt.Sprintf("price_cents = $%d", argNum))
		args = append(args, *req.PriceCents)
		argNum++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argNum))
		args = append(args, *req.IsActive)
		argNum++
	}

	if len(setClauses) == 1 {
		return nil
	}

	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argNum)
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	return requireRowsAffected(result)
}

// DeleteProduct removes a product from the catalog
func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return requireRowsAffected(result)
}

// RevenueSummary aggregates order and payment totals for a business
func (s *PostgresStore) RevenueSummary(ctx context.Context, businessID int64) (*RevenueSummary, error) {
	summary := &RevenueSummary{BusinessID: businessID}

	query := `
		SELECT
			(SELECT COUNT(*) FROM orders WHERE business_id = $1),
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'succeeded' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'refunded' THEN amount_cents ELSE 0 END), 0)
		FROM payments
		WHERE business_id = $1
	`
	err := s.db.QueryRowContext(ctx, query, businessID).Scan(
		&summary.OrderCount, &summary.PaymentCount,
		&summary.CollectedCents, &summary.RefundedCents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute revenue summary: %w", err)
	}

	return summary, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanPayment(row rowScanner) (*Payment, error) {
	payment := &Payment{}
	err := row.Scan(
		&payment.ID, &payment.BusinessID, &payment.OrderID, &payment.InitiatedBy,
		&payment.Provider, &payment.ProviderRef, &payment.Status,
		&payment.AmountCents, &payment.Currency, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	return payment, nil
}

func requireRowsAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
