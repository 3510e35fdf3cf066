package tenants

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/merchantry/merchantry/pkg/authz"
)

// ErrNotFound marks a missing business, member or invitation
var ErrNotFound = errors.New("tenants: not found")

// Invalidator receives synchronous notifications when a membership changes
// so cached authorization state never outlives a revocation.
type Invalidator interface {
	Invalidate(actorID, businessID int64)
	InvalidateBusiness(businessID int64)
}

// noopInvalidator is used until an evaluator cache is attached
type noopInvalidator struct{}

func (noopInvalidator) Invalidate(actorID, businessID int64) {}
func (noopInvalidator) InvalidateBusiness(businessID int64)  {}

// PostgresService implements business and membership management over
// PostgreSQL. It also satisfies authz.Resolver so the permission evaluator
// can read memberships through the same store that writes them.
type PostgresService struct {
	db          *sql.DB
	invalidator Invalidator
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, invalidator: noopInvalidator{}}
}

// SetInvalidator attaches the cache invalidation hook. Must be called before
// the service handles membership writes when an evaluator cache is in use.
func (s *PostgresService) SetInvalidator(inv Invalidator) {
	if inv != nil {
		s.invalidator = inv
	}
}

var _ authz.Resolver = (*PostgresService)(nil)

// Resolve implements authz.Resolver over the business_members table
func (s *PostgresService) Resolve(ctx context.Context, actorID, businessID int64) (*authz.Membership, error) {
	member, err := s.GetMember(ctx, businessID, actorID)
	if errors.Is(err, ErrNotFound) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &authz.Membership{
		ActorID:    member.UserID,
		BusinessID: member.BusinessID,
		Role:       member.Role,
		CreatedAt:  member.CreatedAt,
	}, nil
}

// CreateBusiness creates a business and enrolls the owner as its first member
func (s *PostgresService) CreateBusiness(ctx context.Context, business *Business) error {
	if business.Slug == "" {
		business.Slug = generateSlug(business.Name)
	}
	if business.Status == "" {
		business.Status = BusinessStatusActive
	}
	business.IsActive = true

	settingsJSON, err := json.Marshal(business.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO businesses (name, slug, display_name, description, owner_id, status, is_active, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, business.Name, business.Slug, business.DisplayName,
		business.Description, business.OwnerID, business.Status, business.IsActive, settingsJSON).
		Scan(&business.ID, &business.CreatedAt, &business.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}

	if business.OwnerID != nil {
		query = `
			INSERT INTO business_members (business_id, user_id, role)
			VALUES ($1, $2, $3)
		`
		if _, err := tx.ExecContext(ctx, query, business.ID, *business.OwnerID, authz.RoleOwner); err != nil {
			return fmt.Errorf("failed to add owner membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	if business.OwnerID != nil {
		s.invalidator.Invalidate(*business.OwnerID, business.ID)
	}
	return nil
}

// GetBusiness retrieves a business by ID
func (s *PostgresService) GetBusiness(ctx context.Context, id int64) (*Business, error) {
	query := `
		SELECT id, name, slug, display_name, description, owner_id, status,
		       is_active, settings, created_at, updated_at
		FROM businesses
		WHERE id = $1
	`
	return s.scanBusiness(s.db.QueryRowContext(ctx, query, id))
}

// GetBusinessBySlug retrieves a business by slug
func (s *PostgresService) GetBusinessBySlug(ctx context.Context, slug string) (*Business, error) {
	query := `
		SELECT id, name, slug, display_name, description, owner_id, status,
		       is_active, settings, created_at, updated_at
		FROM businesses
		WHERE slug = $1
	`
	return s.scanBusiness(s.db.QueryRowContext(ctx, query, slug))
}

func (s *PostgresService) scanBusiness(row *sql.Row) (*Business, error) {
	business := &Business{}
	var description sql.NullString
	var settingsJSON []byte
	err := row.Scan(
		&business.ID, &business.Name, &business.Slug, &business.DisplayName,
		&description, &business.OwnerID, &business.Status, &business.IsActive,
		&settingsJSON, &business.CreatedAt, &business.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	if description.Valid {
		business.Description = description.String
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &business.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return business, nil
}

// ListBusinesses lists active businesses the user belongs to
func (s *PostgresService) ListBusinesses(ctx context.Context, userID int64) ([]*Business, error) {
	query := `
		SELECT DISTINCT b.id, b.name, b.slug, b.display_name, b.description, b.owner_id,
		       b.status, b.is_active, b.settings, b.created_at, b.updated_at
		FROM businesses b
		JOIN business_members bm ON b.id = bm.business_id
		WHERE bm.user_id = $1 AND b.is_active = true
		ORDER BY b.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []*Business
	for rows.Next() {
		business := &Business{}
		var description sql.NullString
		var settingsJSON []byte
		if err := rows.Scan(
			&business.ID, &business.Name, &business.Slug, &business.DisplayName,
			&description, &business.OwnerID, &business.Status, &business.IsActive,
			&settingsJSON, &business.CreatedAt, &business.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		if description.Valid {
			business.Description = description.String
		}
		if len(settingsJSON) > 0 {
			if err := json.Unmarshal(settingsJSON, &business.Settings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
			}
		}
		businesses = append(businesses, business)
	}

	return businesses, rows.Err()
}

// UpdateBusiness updates a business
func (s *PostgresService) UpdateBusiness(ctx context.Context, id int64, updates *UpdateBusinessRequest) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.DisplayName != nil {
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", argPos))
		args = append(args, *updates.DisplayName)
		argPos++
	}
	if updates.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *updates.Description)
		argPos++
	}
	if updates.Settings != nil {
		settingsJSON, err := json.Marshal(updates.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("settings = $%d", argPos))
		args = append(args, settingsJSON)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE businesses SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update business: %w", err)
	}
	return requireRowsAffected(result, "business")
}

// SuspendBusiness marks a business suspended and drops every cached
// membership entry for it.
func (s *PostgresService) SuspendBusiness(ctx context.Context, id int64) error {
	query := `UPDATE businesses SET status = $1, is_active = false, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, BusinessStatusSuspended, id)
	if err != nil {
		return fmt.Errorf("failed to suspend business: %w", err)
	}
	if err := requireRowsAffected(result, "business"); err != nil {
		return err
	}
	s.invalidator.InvalidateBusiness(id)
	return nil
}

// DeleteBusiness soft deletes a business
func (s *PostgresService) DeleteBusiness(ctx context.Context, id int64) error {
	query := `UPDATE businesses SET status = $1, is_active = false, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, BusinessStatusDeleted, id)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}
	if err := requireRowsAffected(result, "business"); err != nil {
		return err
	}
	s.invalidator.InvalidateBusiness(id)
	return nil
}

func requireRowsAffected(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

// generateSlug derives a URL-safe slug from a business name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}

// generateToken generates a random invitation token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
