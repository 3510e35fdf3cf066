package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/merchantry/merchantry/pkg/authz"
)

// ListMembers retrieves all members of a business
func (s *PostgresService) ListMembers(ctx context.Context, businessID int64) ([]*Member, error) {
	query := `
		SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members
		WHERE business_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		var roleValue string
		if err := rows.Scan(
			&member.ID, &member.BusinessID, &member.UserID, &roleValue,
			&member.InvitedBy, &member.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		role, err := authz.ParseRole(roleValue)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", member.ID, err)
		}
		member.Role = role
		members = append(members, member)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific member
func (s *PostgresService) GetMember(ctx context.Context, businessID, userID int64) (*Member, error) {
	query := `
		SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members
		WHERE business_id = $1 AND user_id = $2
	`
	member := &Member{}
	var roleValue string
	err := s.db.QueryRowContext(ctx, query, businessID, userID).Scan(
		&member.ID, &member.BusinessID, &member.UserID, &roleValue,
		&member.InvitedBy, &member.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	role, err := authz.ParseRole(roleValue)
	if err != nil {
		return nil, fmt.Errorf("member %d: %w", member.ID, err)
	}
	member.Role = role
	return member, nil
}

// AddMember adds a user to a business with a role
func (s *PostgresService) AddMember(ctx context.Context, businessID, userID int64, role authz.Role, invitedBy *int64) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	query := `
		INSERT INTO business_members (business_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, businessID, userID, role, invitedBy)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member already exists")
	}

	s.invalidator.Invalidate(userID, businessID)
	return nil
}

// UpdateMemberRole changes a member's role. The cache entry is dropped
// before returning so the next permission check sees the new role.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, businessID, userID int64, role authz.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	query := `UPDATE business_members SET role = $1 WHERE business_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, role, businessID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if err := requireRowsAffected(result, "member"); err != nil {
		return err
	}

	s.invalidator.Invalidate(userID, businessID)
	return nil
}

// RemoveMember removes a user from a business
func (s *PostgresService) RemoveMember(ctx context.Context, businessID, userID int64) error {
	query := `DELETE FROM business_members WHERE business_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, businessID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if err := requireRowsAffected(result, "member"); err != nil {
		return err
	}

	s.invalidator.Invalidate(userID, businessID)
	return nil
}

// CreateInvitation creates a new invitation valid for seven days
func (s *PostgresService) CreateInvitation(ctx context.Context, invitation *Invitation) error {
	if !invitation.Role.Valid() {
		return fmt.Errorf("invalid role: %s", invitation.Role)
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	invitation.Token = token

	if invitation.InvitedAt.IsZero() {
		invitation.InvitedAt = time.Now()
	}
	if invitation.ExpiresAt.IsZero() {
		invitation.ExpiresAt = invitation.InvitedAt.Add(7 * 24 * time.Hour)
	}

	query := `
		INSERT INTO business_invitations (business_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, invitation.BusinessID, invitation.Email, invitation.Role,
		invitation.Token, invitation.InvitedBy, invitation.InvitedAt, invitation.ExpiresAt).
		Scan(&invitation.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// GetInvitation retrieves an invitation by token
func (s *PostgresService) GetInvitation(ctx context.Context, token string) (*Invitation, error) {
	query := `
		SELECT id, business_id, email, role, token, invited_by, invited_at, expires_at, accepted_at, accepted_by
		FROM business_invitations
		WHERE token = $1
	`
	invitation := &Invitation{}
	var acceptedAt sql.NullTime
	var acceptedBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&invitation.ID, &invitation.BusinessID, &invitation.Email, &invitation.Role,
		&invitation.Token, &invitation.InvitedBy, &invitation.InvitedAt, &invitation.ExpiresAt,
		&acceptedAt, &acceptedBy,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		invitation.AcceptedAt = &acceptedAt.Time
	}
	if acceptedBy.Valid {
		invitation.AcceptedBy = &acceptedBy.Int64
	}
	return invitation, nil
}

// ListInvitations lists pending invitations for a business
func (s *PostgresService) ListInvitations(ctx context.Context, businessID int64) ([]*Invitation, error) {
	query := `
		SELECT id, business_id, email, role, token, invited_by, invited_at, expires_at
		FROM business_invitations
		WHERE business_id = $1 AND accepted_at IS NULL
		ORDER BY invited_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		invitation := &Invitation{}
		if err := rows.Scan(
			&invitation.ID, &invitation.BusinessID, &invitation.Email, &invitation.Role,
			&invitation.Token, &invitation.InvitedBy, &invitation.InvitedAt, &invitation.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, invitation)
	}

	return invitations, rows.Err()
}

// AcceptInvitation accepts an invitation and enrolls the user as a member
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, business_id, role, expires_at, accepted_at
		FROM business_invitations
		WHERE token = $1
		FOR UPDATE
	`
	var id, businessID int64
	var role authz.Role
	var expiresAt time.Time
	var acceptedAt sql.NullTime

	err = tx.QueryRowContext(ctx, query, token).Scan(&id, &businessID, &role, &expiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return fmt.Errorf("invitation already accepted")
	}
	if time.Now().After(expiresAt) {
		return fmt.Errorf("invitation expired")
	}

	query = `
		INSERT INTO business_members (business_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, user_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, query, businessID, userID, role); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	query = `UPDATE business_invitations SET accepted_at = NOW(), accepted_by = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, userID, id); err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.invalidator.Invalidate(userID, businessID)
	return nil
}

// RevokeInvitation revokes a pending invitation
func (s *PostgresService) RevokeInvitation(ctx context.Context, id int64) error {
	query := `DELETE FROM business_invitations WHERE id = $1 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return requireRowsAffected(result, "invitation")
}

// CleanupExpiredInvitations removes pending invitations past their expiry.
// Run periodically from the scheduler.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	query := `DELETE FROM business_invitations WHERE expires_at < NOW() AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return removed, nil
}
