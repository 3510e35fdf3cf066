package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore implements Resolver and ResourceFinder over database/sql. Every
// lookup is a single keyed query issued per call; no statement-level caching
// is layered here so that membership changes are visible on the next check.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store backed by the given database handle
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Resolver = (*SQLStore)(nil)
var _ ResourceFinder = (*SQLStore)(nil)

// Resolve fetches the membership row for an (actor, business) pair
func (s *SQLStore) Resolve(ctx context.Context, actorID, businessID int64) (*Membership, error) {
	query := `
		SELECT business_id, user_id, role, created_at
		FROM business_members
		WHERE business_id = $1 AND user_id = $2
	`

	var m Membership
	var roleValue string
	err := s.db.QueryRowContext(ctx, query, businessID, actorID).Scan(
		&m.BusinessID, &m.ActorID, &roleValue, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	role, err := ParseRole(roleValue)
	if err != nil {
		return nil, fmt.Errorf("membership row holds %w", err)
	}
	m.Role = role
	return &m, nil
}

// FindResource fetches a protected resource by type and ID, populating the
// owning business and, where the type defines one, the resource owner.
func (s *SQLStore) FindResource(ctx context.Context, resourceType ResourceType, resourceID int64) (*Resource, error) {
	resource := &Resource{ID: resourceID, Type: resourceType}

	var err error
	switch resourceType {
	case ResourceTypeBusiness, ResourceTypeInsight:
		// Insights are reports scoped directly to a business.
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM businesses WHERE id = $1`, resourceID,
		).Scan(&resource.BusinessID)
	case ResourceTypeOrder:
		err = s.db.QueryRowContext(ctx,
			`SELECT business_id, customer_id FROM orders WHERE id = $1`, resourceID,
		).Scan(&resource.BusinessID, &resource.OwnerID)
	case ResourceTypePayment:
		err = s.db.QueryRowContext(ctx,
			`SELECT business_id, initiated_by FROM payments WHERE id = $1`, resourceID,
		).Scan(&resource.BusinessID, &resource.OwnerID)
	case ResourceTypeProduct:
		err = s.db.QueryRowContext(ctx,
			`SELECT business_id FROM products WHERE id = $1`, resourceID,
		).Scan(&resource.BusinessID)
	default:
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s %d: %w", resourceType, resourceID, err)
	}
	return resource, nil
}
