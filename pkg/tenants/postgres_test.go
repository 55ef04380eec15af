package tenants

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/storage/postgres"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

var userRowColumns = []string{
	"id", "tenant_id", "email", "name", "role", "permissions", "settings", "created_at", "updated_at",
}

var invitationRowColumns = []string{
	"id", "tenant_id", "email", "name", "role", "message", "token", "status",
	"created_at", "expires_at", "accepted_at", "delivery_count", "last_sent_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *observability.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewPostgresStore(db, metrics), mock, metrics
}

func TestMigrationFS(t *testing.T) {
	migrations, err := postgres.LoadMigrations(MigrationFS, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS tenant_users")
	assert.Contains(t, migrations[1].SQL, "tenant_invitations")
}

func TestPostgresStore_CreateUser(t *testing.T) {
	user := func() *User {
		return &User{
			TenantID:    "tenant-1",
			Email:       "a@b.com",
			Name:        "A B",
			Role:        tenantusers.RoleTeacher,
			Permissions: []string{"reports:read"},
			CreatedAt:   epoch,
			UpdatedAt:   epoch,
		}
	}

	t.Run("inserted", func(t *testing.T) {
		store, mock, metrics := newMockStore(t)

		mock.ExpectExec("INSERT INTO tenant_users").
			WithArgs(sqlmock.AnyArg(), "tenant-1", "a@b.com", "A B", "TEACHER",
				sqlmock.AnyArg(), sqlmock.AnyArg(), epoch, epoch).
			WillReturnResult(sqlmock.NewResult(0, 1))

		u := user()
		require.NoError(t, store.CreateUser(context.Background(), u))
		assert.NotEmpty(t, u.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1.0, testutil.ToFloat64(
			metrics.StoreOperationsTotal.WithLabelValues("create_user", "postgres", "success")))
	})

	t.Run("duplicate email", func(t *testing.T) {
		store, mock, metrics := newMockStore(t)

		mock.ExpectExec("INSERT INTO tenant_users").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

		err := store.CreateUser(context.Background(), user())
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 1.0, testutil.ToFloat64(
			metrics.StoreOperationsTotal.WithLabelValues("create_user", "postgres", "error")))
	})

	t.Run("other failure", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectExec("INSERT INTO tenant_users").WillReturnError(sql.ErrConnDone)

		err := store.CreateUser(context.Background(), user())
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NotErrorIs(t, err, ErrConflict)
	})
}

func TestPostgresStore_GetUser(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		rows := sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "tenant-1", "a@b.com", "A B", "SENCO",
				"{reports:read,students:write}", []byte(`{"theme":"dark"}`), epoch, epoch)
		mock.ExpectQuery("SELECT (.+) FROM tenant_users WHERE tenant_id = \\$1 AND id = \\$2").
			WithArgs("tenant-1", "user-1").
			WillReturnRows(rows)

		user, err := store.GetUser(context.Background(), "tenant-1", "user-1")
		require.NoError(t, err)
		assert.Equal(t, tenantusers.RoleSENCO, user.Role)
		assert.Equal(t, []string{"reports:read", "students:write"}, user.Permissions)
		assert.Equal(t, "dark", user.Settings["theme"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty arrays", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		rows := sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "tenant-1", "a@b.com", "A B", "VIEWER", "{}", nil, epoch, epoch)
		mock.ExpectQuery("SELECT (.+) FROM tenant_users").WillReturnRows(rows)

		user, err := store.GetUser(context.Background(), "tenant-1", "user-1")
		require.NoError(t, err)
		assert.NotNil(t, user.Permissions)
		assert.Empty(t, user.Permissions)
		assert.Nil(t, user.Settings)
	})

	t.Run("not found", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectQuery("SELECT (.+) FROM tenant_users").WillReturnError(sql.ErrNoRows)

		_, err := store.GetUser(context.Background(), "tenant-1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "user not found", err.Error())
	})
}

func TestPostgresStore_UpdateAndDeleteUser(t *testing.T) {
	store, mock, _ := newMockStore(t)
	ctx := context.Background()
	user := &User{ID: "user-1", TenantID: "tenant-1", Email: "a@b.com", Name: "A B", Role: tenantusers.RoleAdmin, UpdatedAt: epoch}

	mock.ExpectExec("UPDATE tenant_users").
		WithArgs("a@b.com", "A B", "ADMIN", sqlmock.AnyArg(), sqlmock.AnyArg(), epoch, "tenant-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tenant_users").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectExec("UPDATE tenant_users").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM tenant_users WHERE tenant_id = \\$1 AND id = \\$2").
		WithArgs("tenant-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM tenant_users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.UpdateUser(ctx, user))
	assert.ErrorIs(t, store.UpdateUser(ctx, user), ErrConflict)
	assert.ErrorIs(t, store.UpdateUser(ctx, user), ErrNotFound)
	assert.NoError(t, store.DeleteUser(ctx, "tenant-1", "user-1"))
	assert.ErrorIs(t, store.DeleteUser(ctx, "tenant-1", "user-1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUsers(t *testing.T) {
	t.Run("filters and sorting", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tenant_users WHERE tenant_id = \\$1 AND role = \\$2 AND \\(name ILIKE \\$3 OR email ILIKE \\$3\\)").
			WithArgs("tenant-1", "TEACHER", `%50\%%`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
		mock.ExpectQuery("ORDER BY name DESC, id DESC LIMIT \\$4 OFFSET \\$5").
			WithArgs("tenant-1", "TEACHER", `%50\%%`, 10, 10).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow("user-1", "tenant-1", "a@b.com", "A B", "TEACHER", "{}", nil, epoch, epoch).
				AddRow("user-2", "tenant-1", "c@d.com", "C D", "TEACHER", "{}", nil, epoch, epoch))

		users, total, err := store.ListUsers(context.Background(), "tenant-1", UserQuery{
			Page: 2, Limit: 10, Search: "50%", Role: tenantusers.RoleTeacher,
			SortBy: SortByName, SortOrder: tenantusers.SortDesc,
		})
		require.NoError(t, err)
		assert.Equal(t, 12, total)
		require.Len(t, users, 2)
		assert.Equal(t, "user-2", users[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("defaults", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tenant_users WHERE tenant_id = \\$1$").
			WithArgs("tenant-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("ORDER BY created_at ASC, id ASC LIMIT \\$2 OFFSET \\$3").
			WithArgs("tenant-1", 20, 0).
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		users, total, err := store.ListUsers(context.Background(), "tenant-1", UserQuery{
			Page: 1, Limit: 20, SortBy: SortByCreatedAt, SortOrder: tenantusers.SortAsc,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.NotNil(t, users)
		assert.Empty(t, users)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Invitations(t *testing.T) {
	expires := epoch.Add(DefaultInvitationTTL)

	t.Run("create conflict", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectExec("INSERT INTO tenant_invitations").
			WillReturnError(&pq.Error{Code: "23505"})

		err := store.CreateInvitation(context.Background(), &Invitation{
			TenantID: "tenant-1", Email: "a@b.com", Status: tenantusers.InvitationPending,
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("list", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		sent := epoch.Add(time.Hour)
		mock.ExpectQuery("SELECT (.+) FROM tenant_invitations\\s+WHERE tenant_id = \\$1 ORDER BY created_at DESC").
			WithArgs("tenant-1").
			WillReturnRows(sqlmock.NewRows(invitationRowColumns).
				AddRow("inv-2", "tenant-1", "c@d.com", "C D", "PARENT", "Welcome", "tok-2", "pending",
					epoch.Add(time.Hour), expires, nil, 2, sent).
				AddRow("inv-1", "tenant-1", "a@b.com", "A B", "TEACHER", nil, "tok-1", "accepted",
					epoch, expires, epoch, 1, nil))

		invitations, err := store.ListInvitations(context.Background(), "tenant-1")
		require.NoError(t, err)
		require.Len(t, invitations, 2)

		assert.Equal(t, "Welcome", invitations[0].Message)
		assert.Equal(t, 2, invitations[0].DeliveryCount)
		require.NotNil(t, invitations[0].LastSentAt)
		assert.Equal(t, sent, *invitations[0].LastSentAt)
		assert.Nil(t, invitations[0].AcceptedAt)

		assert.Equal(t, "", invitations[1].Message)
		assert.Equal(t, tenantusers.InvitationAccepted, invitations[1].Status)
		require.NotNil(t, invitations[1].AcceptedAt)
		assert.Nil(t, invitations[1].LastSentAt)
	})

	t.Run("by token not found", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectQuery("SELECT (.+) FROM tenant_invitations WHERE token = \\$1").
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetInvitationByToken(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete missing", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectExec("DELETE FROM tenant_invitations").
			WithArgs("tenant-1", "inv-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteInvitation(context.Background(), "tenant-1", "inv-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "invitation not found", err.Error())
	})

	t.Run("expire", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectExec("UPDATE tenant_invitations SET status = \\$1 WHERE status = \\$2 AND expires_at <= \\$3").
			WithArgs("expired", "pending", expires).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := store.ExpireInvitations(context.Background(), expires)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestPostgresStore_AcceptInvitation(t *testing.T) {
	accepted := epoch.Add(time.Hour)
	fixtures := func() (*Invitation, *User) {
		inv := &Invitation{
			ID: "inv-1", TenantID: "tenant-1", Email: "a@b.com", Name: "A B",
			Role: tenantusers.RoleTeacher, Status: tenantusers.InvitationAccepted,
			CreatedAt: epoch, ExpiresAt: epoch.Add(DefaultInvitationTTL), AcceptedAt: &accepted, DeliveryCount: 1,
		}
		user := &User{
			TenantID: "tenant-1", Email: "a@b.com", Name: "A B", Role: tenantusers.RoleTeacher,
			Permissions: []string{}, CreatedAt: accepted, UpdatedAt: accepted,
		}
		return inv, user
	}
	lockQuery := "SELECT status FROM tenant_invitations WHERE tenant_id = \\$1 AND id = \\$2 FOR UPDATE"

	t.Run("committed", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("tenant-1", "inv-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
		mock.ExpectExec("INSERT INTO tenant_users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE tenant_invitations").
			WithArgs("accepted", sqlmock.AnyArg(), sqlmock.AnyArg(), 1, sqlmock.AnyArg(), "tenant-1", "inv-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		inv, user := fixtures()
		require.NoError(t, store.AcceptInvitation(context.Background(), inv, user))
		assert.NotEmpty(t, user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already accepted", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("accepted"))
		mock.ExpectRollback()

		inv, user := fixtures()
		err := store.AcceptInvitation(context.Background(), inv, user)
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("user already exists", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
		mock.ExpectExec("INSERT INTO tenant_users").WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		inv, user := fixtures()
		err := store.AcceptInvitation(context.Background(), inv, user)
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invitation gone", func(t *testing.T) {
		store, mock, _ := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		inv, user := fixtures()
		assert.ErrorIs(t, store.AcceptInvitation(context.Background(), inv, user), ErrNotFound)
	})
}
