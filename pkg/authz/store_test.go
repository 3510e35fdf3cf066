package authz

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE businesses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE
		);
		CREATE TABLE business_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(business_id, user_id)
		);
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			customer_id INTEGER,
			status TEXT NOT NULL DEFAULT 'pending'
		);
		CREATE TABLE payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			initiated_by INTEGER,
			status TEXT NOT NULL DEFAULT 'pending'
		);
		CREATE TABLE products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			sku TEXT NOT NULL,
			name TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	seed := `
		INSERT INTO businesses (id, name, slug) VALUES (1, 'Acme Goods', 'acme-goods');
		INSERT INTO business_members (business_id, user_id, role) VALUES (1, 10, 'owner');
		INSERT INTO business_members (business_id, user_id, role) VALUES (1, 11, 'employee');
		INSERT INTO orders (id, business_id, customer_id) VALUES (100, 1, 20);
		INSERT INTO orders (id, business_id, customer_id) VALUES (101, 1, NULL);
		INSERT INTO payments (id, business_id, initiated_by) VALUES (300, 1, 11);
		INSERT INTO products (id, business_id, sku, name) VALUES (400, 1, 'SKU-1', 'Widget');
	`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("failed to seed test data: %v", err)
	}

	return db
}

func TestSQLStoreResolve(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()

	membership, err := store.Resolve(ctx, 10, 1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if membership.Role != RoleOwner {
		t.Errorf("expected owner role, got %q", membership.Role)
	}
	if membership.ActorID != 10 || membership.BusinessID != 1 {
		t.Errorf("unexpected membership identifiers: %+v", membership)
	}

	_, err = store.Resolve(ctx, 99, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing membership, got %v", err)
	}
}

func TestSQLStoreResolveRejectsUnknownRole(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.Exec(
		`INSERT INTO business_members (business_id, user_id, role) VALUES (1, 12, 'superuser')`,
	); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}

	store := NewSQLStore(db)
	_, err := store.Resolve(context.Background(), 12, 1)
	if err == nil {
		t.Fatal("expected error for role outside the closed set")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("unknown role must not look like a missing membership")
	}
}

func TestSQLStoreFindResource(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()

	t.Run("order with customer", func(t *testing.T) {
		resource, err := store.FindResource(ctx, ResourceTypeOrder, 100)
		if err != nil {
			t.Fatalf("FindResource failed: %v", err)
		}
		if resource.BusinessID != 1 {
			t.Errorf("expected business 1, got %d", resource.BusinessID)
		}
		if resource.OwnerID == nil || *resource.OwnerID != 20 {
			t.Errorf("expected owner 20, got %v", resource.OwnerID)
		}
	})

	t.Run("order without customer", func(t *testing.T) {
		resource, err := store.FindResource(ctx, ResourceTypeOrder, 101)
		if err != nil {
			t.Fatalf("FindResource failed: %v", err)
		}
		if resource.OwnerID != nil {
			t.Errorf("expected nil owner for NULL customer_id, got %v", resource.OwnerID)
		}
	})

	t.Run("payment", func(t *testing.T) {
		resource, err := store.FindResource(ctx, ResourceTypePayment, 300)
		if err != nil {
			t.Fatalf("FindResource failed: %v", err)
		}
		if resource.OwnerID == nil || *resource.OwnerID != 11 {
			t.Errorf("expected initiator 11, got %v", resource.OwnerID)
		}
	})

	t.Run("product has no owner", func(t *testing.T) {
		resource, err := store.FindResource(ctx, ResourceTypeProduct, 400)
		if err != nil {
			t.Fatalf("FindResource failed: %v", err)
		}
		if resource.OwnerID != nil {
			t.Errorf("expected nil owner for product, got %v", resource.OwnerID)
		}
		if resource.BusinessID != 1 {
			t.Errorf("expected business 1, got %d", resource.BusinessID)
		}
	})

	t.Run("business", func(t *testing.T) {
		resource, err := store.FindResource(ctx, ResourceTypeBusiness, 1)
		if err != nil {
			t.Fatalf("FindResource failed: %v", err)
		}
		if resource.BusinessID != 1 {
			t.Errorf("expected business 1, got %d", resource.BusinessID)
		}
	})

	t.Run("missing resource", func(t *testing.T) {
		_, err := store.FindResource(ctx, ResourceTypeOrder, 9999)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := store.FindResource(ctx, ResourceType("widget"), 1)
		if err == nil {
			t.Error("expected error for unknown resource type")
		}
	})
}

func TestSQLStoreWithEvaluator(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	evaluator, err := NewEvaluator(store, store)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	ctx := context.Background()

	// Customer 20 owns order 100 without any membership.
	verdict, err := evaluator.Authorize(ctx, 20, ResourceTypeOrder, 100, nil)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !verdict.Allowed {
		t.Errorf("expected customer to access own order, got deny: %s", verdict.Reason)
	}

	// Employee 11 is denied the same order by the default role set.
	verdict, err = evaluator.Authorize(ctx, 11, ResourceTypeOrder, 100, nil)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if verdict.Allowed {
		t.Error("expected employee to be denied another customer's order")
	}

	// Business owner 10 passes via role.
	verdict, err = evaluator.Authorize(ctx, 10, ResourceTypeOrder, 100, nil)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !verdict.Allowed {
		t.Errorf("expected business owner to be allowed, got deny: %s", verdict.Reason)
	}
}
