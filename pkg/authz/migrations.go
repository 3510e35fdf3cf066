package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the authorization schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					global_role VARCHAR(50) NOT NULL DEFAULT 'user',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create businesses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS businesses (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					description TEXT,
					owner_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					settings JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_businesses_slug ON businesses(slug);
				CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
			`,
		},
		{
			Version:     3,
			Description: "Create business_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS business_members (
					id BIGSERIAL PRIMARY KEY,
					business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					invited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(business_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_business_members_business_id ON business_members(business_id);
				CREATE INDEX IF NOT EXISTS idx_business_members_user_id ON business_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create orders table",
			SQL: `
				CREATE TABLE IF NOT EXISTS orders (
					id BIGSERIAL PRIMARY KEY,
					business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
					customer_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					status VARCHAR(50) NOT NULL DEFAULT 'pending',
					total_cents BIGINT NOT NULL DEFAULT 0,
					currency VARCHAR(3) NOT NULL DEFAULT 'USD',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_orders_business_id ON orders(business_id);
				CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id);
			`,
		},
		{
			Version:     5,
			Description: "Create payments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS payments (
					id BIGSERIAL PRIMARY KEY,
					business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
					order_id BIGINT REFERENCES orders(id) ON DELETE SET NULL,
					initiated_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					provider VARCHAR(100) NOT NULL DEFAULT '',
					provider_ref VARCHAR(255),
					status VARCHAR(50) NOT NULL DEFAULT 'pending',
					amount_cents BIGINT NOT NULL DEFAULT 0,
					currency VARCHAR(3) NOT NULL DEFAULT 'USD',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_payments_business_id ON payments(business_id);
				CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id);
				CREATE INDEX IF NOT EXISTS idx_payments_provider_ref ON payments(provider_ref);
			`,
		},
		{
			Version:     6,
			Description: "Create products table",
			SQL: `
				CREATE TABLE IF NOT EXISTS products (
					id BIGSERIAL PRIMARY KEY,
					business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
					sku VARCHAR(100) NOT NULL,
					name VARCHAR(255) NOT NULL,
					price_cents BIGINT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(business_id, sku)
				);

				CREATE INDEX IF NOT EXISTS idx_products_business_id ON products(business_id);
			`,
		},
		{
			Version:     7,
			Description: "Create business_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS business_invitations (
					id BIGSERIAL PRIMARY KEY,
					business_id BIGINT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL,
					token VARCHAR(255) NOT NULL UNIQUE,
					invited_by BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					invited_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					accepted_by BIGINT REFERENCES users(id) ON DELETE SET NULL
				);

				CREATE INDEX IF NOT EXISTS idx_business_invitations_business_id ON business_invitations(business_id);
				CREATE INDEX IF NOT EXISTS idx_business_invitations_expires_at ON business_invitations(expires_at);
			`,
		},
		{
			Version:     8,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(16) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					scopes TEXT[] NOT NULL DEFAULT '{}',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP,
					revoked_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					revoke_reason TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_token_hash ON api_tokens(token_hash);
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range GetMigrations() {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM authz_schema_migrations WHERE version = $1)`,
			migration.Version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if applied {
			continue
		}

		if _, err := db.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w",
				migration.Version, migration.Description, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO authz_schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
