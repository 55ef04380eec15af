package tenants

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

func TestMemoryStore_UsersAreCopied(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	user := &User{TenantID: "tenant-1", Email: "a@b.com", Name: "A B", Permissions: []string{"x"}}
	require.NoError(t, store.CreateUser(ctx, user))

	user.Name = "changed"
	user.Permissions[0] = "changed"

	got, err := store.GetUser(ctx, "tenant-1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, "A B", got.Name)
	assert.Equal(t, []string{"x"}, got.Permissions)

	byEmail, err := store.GetUserByEmail(ctx, "tenant-1", "A@B.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestMemoryStore_UpdateKeepsEmailUnique(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := &User{TenantID: "tenant-1", Email: "a@b.com"}
	b := &User{TenantID: "tenant-1", Email: "b@b.com"}
	require.NoError(t, store.CreateUser(ctx, a))
	require.NoError(t, store.CreateUser(ctx, b))

	b.Email = "A@b.com"
	assert.ErrorIs(t, store.UpdateUser(ctx, b), ErrConflict)

	a.Email = "a@b.com"
	a.Name = "same address"
	assert.NoError(t, store.UpdateUser(ctx, a), "a user keeps its own address")

	wrongTenant := *a
	wrongTenant.TenantID = "tenant-2"
	assert.ErrorIs(t, store.UpdateUser(ctx, &wrongTenant), ErrNotFound)
}

func TestMemoryStore_ListUsersTieBreak(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.CreateUser(ctx, &User{
			ID: id, TenantID: "tenant-1", Email: id + "@b.com", Name: "Same", Role: tenantusers.RoleTeacher,
			CreatedAt: epoch,
		}))
	}

	query := UserQuery{Page: 1, Limit: 10, SortBy: SortByName, SortOrder: tenantusers.SortAsc}
	users, total, err := store.ListUsers(ctx, "tenant-1", query)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"a", "b", "c"}, userIDs(users))

	query.SortOrder = tenantusers.SortDesc
	users, _, err = store.ListUsers(ctx, "tenant-1", query)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, userIDs(users))
}

func TestMemoryStore_InvitationUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &Invitation{TenantID: "tenant-1", Email: "a@b.com", Token: "t1", Status: tenantusers.InvitationPending, CreatedAt: epoch}
	require.NoError(t, store.CreateInvitation(ctx, first))

	dup := &Invitation{TenantID: "tenant-1", Email: "A@B.com", Token: "t2", Status: tenantusers.InvitationPending}
	assert.ErrorIs(t, store.CreateInvitation(ctx, dup), ErrConflict)

	other := &Invitation{TenantID: "tenant-2", Email: "a@b.com", Token: "t3", Status: tenantusers.InvitationPending}
	assert.NoError(t, store.CreateInvitation(ctx, other))

	first.Status = tenantusers.InvitationExpired
	require.NoError(t, store.UpdateInvitation(ctx, first))
	dup.CreatedAt = epoch.Add(time.Minute)
	assert.NoError(t, store.CreateInvitation(ctx, dup))

	list, err := store.ListInvitations(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dup.ID, list[0].ID, "newest first")

	_, err = store.GetInvitation(ctx, "tenant-2", first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetInvitationByToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AcceptInvitationIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &User{TenantID: "tenant-1", Email: "a@b.com"}))
	inv := &Invitation{TenantID: "tenant-1", Email: "a@b.com", Token: "t1", Status: tenantusers.InvitationPending}
	require.NoError(t, store.CreateInvitation(ctx, inv))

	accepted := *inv
	accepted.Status = tenantusers.InvitationAccepted
	err := store.AcceptInvitation(ctx, &accepted, &User{TenantID: "tenant-1", Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := store.GetInvitation(ctx, "tenant-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, tenantusers.InvitationPending, stored.Status, "a failed accept leaves the invitation pending")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(observability.NewLogger(observability.InfoLevel, &buf), "https://app.example.com/invite?src=email")

	err := notifier.DeliverInvitation(context.Background(), Invitation{
		ID: "inv-1", TenantID: "tenant-1", Email: "a@b.com", Token: "abc", DeliveryCount: 2,
	})
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Invitation delivered", entry["msg"])
	assert.Equal(t, "inv-1", entry["invitation_id"])
	assert.Equal(t, "https://app.example.com/invite?src=email&token=abc", entry["accept_url"])
	assert.EqualValues(t, 2, entry["delivery_count"])
}

func TestAcceptLink(t *testing.T) {
	assert.Equal(t, "https://app.example.com/accept?token=abc", AcceptLink("https://app.example.com/accept", "abc"))
	assert.Equal(t, "/accept?token=a%2Bb", AcceptLink("/accept", "a+b"))
}

func userIDs(users []User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
