package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/merchantry/pkg/authz"
)

// recordingInvalidator captures invalidation calls for assertions
type recordingInvalidator struct {
	pairs      [][2]int64
	businesses []int64
}

func (r *recordingInvalidator) Invalidate(actorID, businessID int64) {
	r.pairs = append(r.pairs, [2]int64{actorID, businessID})
}

func (r *recordingInvalidator) InvalidateBusiness(businessID int64) {
	r.businesses = append(r.businesses, businessID)
}

func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	service := NewPostgresService(db)
	return service, mock, db
}

func TestListMembers(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("success with multiple members", func(t *testing.T) {
		businessID := int64(1)
		now := time.Now()
		invitedBy := int64(2)

		rows := sqlmock.NewRows([]string{
			"id", "business_id", "user_id", "role", "invited_by", "created_at",
		}).
			AddRow(1, businessID, 10, "owner", nil, now).
			AddRow(2, businessID, 11, "manager", invitedBy, now).
			AddRow(3, businessID, 12, "employee", invitedBy, now)

		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members
		WHERE business_id = \$1
		ORDER BY created_at ASC`).
			WithArgs(businessID).
			WillReturnRows(rows)

		members, err := service.ListMembers(ctx, businessID)
		require.NoError(t, err)
		assert.Len(t, members, 3)

		assert.Equal(t, int64(10), members[0].UserID)
		assert.Equal(t, authz.RoleOwner, members[0].Role)
		assert.Nil(t, members[0].InvitedBy)

		assert.Equal(t, authz.RoleManager, members[1].Role)
		require.NotNil(t, members[1].InvitedBy)
		assert.Equal(t, invitedBy, *members[1].InvitedBy)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "business_id", "user_id", "role", "invited_by", "created_at",
		})
		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(2)).
			WillReturnRows(rows)

		members, err := service.ListMembers(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, members)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(3)).
			WillReturnError(fmt.Errorf("database connection error"))

		members, err := service.ListMembers(ctx, 3)
		require.Error(t, err)
		assert.Nil(t, members)
		assert.Contains(t, err.Error(), "failed to list members")

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects role outside the closed set", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "business_id", "user_id", "role", "invited_by", "created_at",
		}).AddRow(1, int64(4), 10, "superuser", nil, time.Now())

		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(4)).
			WillReturnRows(rows)

		_, err := service.ListMembers(ctx, 4)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "business_id", "user_id", "role", "invited_by", "created_at",
		}).AddRow(1, 1, 10, "manager", nil, now)

		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members
		WHERE business_id = \$1 AND user_id = \$2`).
			WithArgs(int64(1), int64(10)).
			WillReturnRows(rows)

		member, err := service.GetMember(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, authz.RoleManager, member.Role)
		assert.Equal(t, int64(10), member.UserID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(1), int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetMember(ctx, 1, 99)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResolveAdaptsToAuthz(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("membership maps to authz types", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "business_id", "user_id", "role", "invited_by", "created_at",
		}).AddRow(1, 5, 10, "employee", nil, now)

		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(5), int64(10)).
			WillReturnRows(rows)

		membership, err := service.Resolve(ctx, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(10), membership.ActorID)
		assert.Equal(t, int64(5), membership.BusinessID)
		assert.Equal(t, authz.RoleEmployee, membership.Role)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing membership maps to authz.ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(5), int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := service.Resolve(ctx, 99, 5)
		assert.ErrorIs(t, err, authz.ErrNotFound)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("datastore failure is not ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, business_id, user_id, role, invited_by, created_at
		FROM business_members`).
			WithArgs(int64(5), int64(10)).
			WillReturnError(errors.New("connection reset"))

		_, err := service.Resolve(ctx, 10, 5)
		require.Error(t, err)
		assert.NotErrorIs(t, err, authz.ErrNotFound)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAddMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	invalidator := &recordingInvalidator{}
	service.SetInvalidator(invalidator)

	t.Run("success invalidates the cache entry", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO business_members`).
			WithArgs(int64(1), int64(10), authz.RoleManager, nil).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.AddMember(ctx, 1, 10, authz.RoleManager, nil)
		require.NoError(t, err)
		require.Len(t, invalidator.pairs, 1)
		assert.Equal(t, [2]int64{10, 1}, invalidator.pairs[0])

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate member", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO business_members`).
			WithArgs(int64(1), int64(10), authz.RoleManager, nil).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.AddMember(ctx, 1, 10, authz.RoleManager, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid role rejected before touching the database", func(t *testing.T) {
		err := service.AddMember(ctx, 1, 10, authz.Role("admin"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid role")

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateMemberRole(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	invalidator := &recordingInvalidator{}
	service.SetInvalidator(invalidator)

	t.Run("success invalidates the cache entry", func(t *testing.T) {
		mock.ExpectExec(`UPDATE business_members SET role = \$1 WHERE business_id = \$2 AND user_id = \$3`).
			WithArgs(authz.RoleEmployee, int64(1), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.UpdateMemberRole(ctx, 1, 10, authz.RoleEmployee)
		require.NoError(t, err)
		require.Len(t, invalidator.pairs, 1)
		assert.Equal(t, [2]int64{10, 1}, invalidator.pairs[0])

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member not found skips invalidation", func(t *testing.T) {
		mock.ExpectExec(`UPDATE business_members SET role = \$1`).
			WithArgs(authz.RoleEmployee, int64(1), int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.UpdateMemberRole(ctx, 1, 99, authz.RoleEmployee)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Len(t, invalidator.pairs, 1)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRemoveMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	invalidator := &recordingInvalidator{}
	service.SetInvalidator(invalidator)

	mock.ExpectExec(`DELETE FROM business_members WHERE business_id = \$1 AND user_id = \$2`).
		WithArgs(int64(1), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.RemoveMember(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, invalidator.pairs, 1)
	assert.Equal(t, [2]int64{10, 1}, invalidator.pairs[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvitation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	t.Run("success generates token and defaults", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO business_invitations`).
			WithArgs(int64(1), "new@example.com", authz.RoleEmployee,
				sqlmock.AnyArg(), int64(10), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		invitation := &Invitation{
			BusinessID: 1,
			Email:      "new@example.com",
			Role:       authz.RoleEmployee,
			InvitedBy:  10,
		}
		err := service.CreateInvitation(ctx, invitation)
		require.NoError(t, err)
		assert.Equal(t, int64(7), invitation.ID)
		assert.Len(t, invitation.Token, 64)
		assert.False(t, invitation.ExpiresAt.IsZero())

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		invitation := &Invitation{BusinessID: 1, Email: "x@example.com", Role: "root", InvitedBy: 10}
		err := service.CreateInvitation(ctx, invitation)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid role")
	})
}

func TestAcceptInvitation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()
	ctx := context.Background()

	invalidator := &recordingInvalidator{}
	service.SetInvalidator(invalidator)

	t.Run("success enrolls member and invalidates", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, business_id, role, expires_at, accepted_at
		FROM business_invitations`).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "role", "expires_at", "accepted_at"}).
				AddRow(7, 1, "employee", time.Now().Add(time.Hour), nil))
		mock.ExpectExec(`INSERT INTO business_members`).
			WithArgs(int64(1), int64(20), authz.RoleEmployee).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE business_invitations SET accepted_at`).
			WithArgs(int64(20), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.AcceptInvitation(ctx, "tok-1", 20)
		require.NoError(t, err)
		require.Len(t, invalidator.pairs, 1)
		assert.Equal(t, [2]int64{20, 1}, invalidator.pairs[0])

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired invitation", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, business_id, role, expires_at, accepted_at
		FROM business_invitations`).
			WithArgs("tok-2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "role", "expires_at", "accepted_at"}).
				AddRow(8, 1, "employee", time.Now().Add(-time.Hour), nil))
		mock.ExpectRollback()

		err := service.AcceptInvitation(ctx, "tok-2", 20)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already accepted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, business_id, role, expires_at, accepted_at
		FROM business_invitations`).
			WithArgs("tok-3").
			WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "role", "expires_at", "accepted_at"}).
				AddRow(9, 1, "employee", time.Now().Add(time.Hour), time.Now()))
		mock.ExpectRollback()

		err := service.AcceptInvitation(ctx, "tok-3", 20)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already accepted")

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCleanupExpiredInvitations(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM business_invitations WHERE expires_at < NOW\(\) AND accepted_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := service.CleanupExpiredInvitations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	require.NoError(t, mock.ExpectationsWereMet())
}
