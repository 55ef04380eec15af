package tenantusers

import (
	"context"
	"sync"

	"github.com/edpsych-connect/connect/pkg/viewmodel"
)

// UserListValue is the cached page of users
type UserListValue struct {
	Users      []TenantUser
	Pagination *Pagination
}

// UserListState is what a UserListModel exposes
type UserListState struct {
	Users      []TenantUser
	Pagination *Pagination
	IsLoading  bool
	Err        error
}

// UserListModel caches one page of a tenant's users and patches it after
// each successful mutation
type UserListModel struct {
	svc      Service
	tenantID string
	state    *viewmodel.State[UserListValue]
	ready    <-chan struct{}

	mu         sync.Mutex
	lastParams ListUsersParams
}

// NewUserListModel creates the model and starts loading the first page
func NewUserListModel(ctx context.Context, svc Service, tenantID string) *UserListModel {
	m := &UserListModel{
		svc:      svc,
		tenantID: tenantID,
		state:    viewmodel.New(ctx, UserListValue{Users: []TenantUser{}}),
	}
	m.ready = viewmodel.Start(ctx, m.state, m.list(ListUsersParams{}), replaceList)
	return m
}

// Ready is closed once the initial load has settled
func (m *UserListModel) Ready() <-chan struct{} { return m.ready }

func (m *UserListModel) list(params ListUsersParams) func(context.Context) (*UserList, error) {
	return func(ctx context.Context) (*UserList, error) {
		return m.svc.ListUsers(ctx, m.tenantID, params)
	}
}

func replaceList(_ UserListValue, list *UserList) UserListValue {
	users := list.Users
	if users == nil {
		users = []TenantUser{}
	}
	pagination := list.Pagination
	return UserListValue{Users: users, Pagination: &pagination}
}

// Load replaces the cached users and pagination with the page described by
// params
func (m *UserListModel) Load(ctx context.Context, params ListUsersParams) (*UserList, error) {
	m.mu.Lock()
	m.lastParams = params
	m.mu.Unlock()
	return viewmodel.Run(ctx, m.state, m.list(params), replaceList)
}

// CreateUser creates a user and appends it to the cached page
func (m *UserListModel) CreateUser(ctx context.Context, data CreateTenantUserData) (*TenantUser, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*TenantUser, error) {
		return m.svc.CreateUser(ctx, m.tenantID, data)
	}, appendUser)
}

// UpdateUser edits a user and replaces it in the cached page
func (m *UserListModel) UpdateUser(ctx context.Context, userID string, data UpdateTenantUserData) (*TenantUser, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*TenantUser, error) {
		return m.svc.UpdateUser(ctx, m.tenantID, userID, data)
	}, replaceUser)
}

// UpdateUserRole changes a role and replaces the user in the cached page
func (m *UserListModel) UpdateUserRole(ctx context.Context, userID string, role TenantRole) (*TenantUser, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*TenantUser, error) {
		return m.svc.UpdateUserRole(ctx, m.tenantID, userID, role)
	}, replaceUser)
}

// UpdateUserPermissions changes permissions and replaces the user in the
// cached page
func (m *UserListModel) UpdateUserPermissions(ctx context.Context, userID string, permissions []string) (*TenantUser, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*TenantUser, error) {
		return m.svc.UpdateUserPermissions(ctx, m.tenantID, userID, permissions)
	}, replaceUser)
}

// DeleteUser deletes a user and drops it from the cached page
func (m *UserListModel) DeleteUser(ctx context.Context, userID string) error {
	_, err := viewmodel.Run(ctx, m.state, func(ctx context.Context) (string, error) {
		return userID, m.svc.DeleteUser(ctx, m.tenantID, userID)
	}, removeUser)
	return err
}

// BulkDeleteUsers deletes users and then reloads the last requested page.
// Which users are gone depends on the per-item outcome, so the page is
// refetched rather than patched.
func (m *UserListModel) BulkDeleteUsers(ctx context.Context, userIDs []string) (*BulkOperationResult, error) {
	result, err := viewmodel.Run(ctx, m.state, func(ctx context.Context) (*BulkOperationResult, error) {
		return m.svc.BulkDeleteUsers(ctx, m.tenantID, userIDs)
	}, nil)
	if err != nil {
		return nil, err
	}
	if result.SuccessCount > 0 {
		m.mu.Lock()
		params := m.lastParams
		m.mu.Unlock()
		if _, err := m.Load(ctx, params); err != nil {
			return result, err
		}
	}
	return result, nil
}

func appendUser(cur UserListValue, user *TenantUser) UserListValue {
	users := make([]TenantUser, 0, len(cur.Users)+1)
	users = append(users, cur.Users...)
	users = append(users, *user)
	return UserListValue{Users: users, Pagination: cur.Pagination}
}

func replaceUser(cur UserListValue, user *TenantUser) UserListValue {
	users := make([]TenantUser, len(cur.Users))
	for i, u := range cur.Users {
		if u.ID == user.ID {
			u = *user
		}
		users[i] = u
	}
	return UserListValue{Users: users, Pagination: cur.Pagination}
}

func removeUser(cur UserListValue, userID string) UserListValue {
	users := make([]TenantUser, 0, len(cur.Users))
	for _, u := range cur.Users {
		if u.ID != userID {
			users = append(users, u)
		}
	}
	return UserListValue{Users: users, Pagination: cur.Pagination}
}

// Snapshot returns the current state
func (m *UserListModel) Snapshot() UserListState {
	return userListState(m.state.Snapshot())
}

// Subscribe registers fn for state changes
func (m *UserListModel) Subscribe(fn func(UserListState)) (unsubscribe func()) {
	return m.state.Subscribe(func(s viewmodel.Snapshot[UserListValue]) {
		fn(userListState(s))
	})
}

func userListState(s viewmodel.Snapshot[UserListValue]) UserListState {
	return UserListState{
		Users:      s.Value.Users,
		Pagination: s.Value.Pagination,
		IsLoading:  s.IsLoading,
		Err:        s.Err,
	}
}

// Close cancels outstanding requests and detaches the model
func (m *UserListModel) Close() { m.state.Close() }

// InvitationsState is what an InvitationsModel exposes
type InvitationsState struct {
	Invitations []UserInvitationResult
	IsLoading   bool
	Err         error
}

// InvitationsModel caches a tenant's invitations and patches the list after
// each successful mutation
type InvitationsModel struct {
	svc      Service
	tenantID string
	state    *viewmodel.State[[]UserInvitationResult]
	ready    <-chan struct{}
}

// NewInvitationsModel creates the model and starts loading the invitations
func NewInvitationsModel(ctx context.Context, svc Service, tenantID string) *InvitationsModel {
	m := &InvitationsModel{
		svc:      svc,
		tenantID: tenantID,
		state:    viewmodel.New(ctx, []UserInvitationResult{}),
	}
	m.ready = viewmodel.Start(ctx, m.state, m.list, replaceInvitations)
	return m
}

// Ready is closed once the initial load has settled
func (m *InvitationsModel) Ready() <-chan struct{} { return m.ready }

func (m *InvitationsModel) list(ctx context.Context) ([]UserInvitationResult, error) {
	return m.svc.ListInvitations(ctx, m.tenantID)
}

func replaceInvitations(_ []UserInvitationResult, next []UserInvitationResult) []UserInvitationResult {
	if next == nil {
		return []UserInvitationResult{}
	}
	return next
}

// Load refetches the invitation list
func (m *InvitationsModel) Load(ctx context.Context) ([]UserInvitationResult, error) {
	return viewmodel.Run(ctx, m.state, m.list, replaceInvitations)
}

// Invite creates an invitation and appends it
func (m *InvitationsModel) Invite(ctx context.Context, data InviteUserData) (*UserInvitationResult, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*UserInvitationResult, error) {
		return m.svc.InviteUser(ctx, m.tenantID, data)
	}, func(cur []UserInvitationResult, inv *UserInvitationResult) []UserInvitationResult {
		next := make([]UserInvitationResult, 0, len(cur)+1)
		next = append(next, cur...)
		return append(next, *inv)
	})
}

// Resend re-delivers an invitation and replaces it in the list
func (m *InvitationsModel) Resend(ctx context.Context, invitationID string) (*UserInvitationResult, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*UserInvitationResult, error) {
		return m.svc.ResendInvitation(ctx, m.tenantID, invitationID)
	}, func(cur []UserInvitationResult, inv *UserInvitationResult) []UserInvitationResult {
		next := make([]UserInvitationResult, len(cur))
		for i, existing := range cur {
			if existing.ID == inv.ID {
				existing = *inv
			}
			next[i] = existing
		}
		return next
	})
}

// Cancel cancels an invitation and drops it from the list
func (m *InvitationsModel) Cancel(ctx context.Context, invitationID string) error {
	_, err := viewmodel.Run(ctx, m.state, func(ctx context.Context) (string, error) {
		return invitationID, m.svc.CancelInvitation(ctx, m.tenantID, invitationID)
	}, func(cur []UserInvitationResult, id string) []UserInvitationResult {
		next := make([]UserInvitationResult, 0, len(cur))
		for _, existing := range cur {
			if existing.ID != id {
				next = append(next, existing)
			}
		}
		return next
	})
	return err
}

// Snapshot returns the current state
func (m *InvitationsModel) Snapshot() InvitationsState {
	s := m.state.Snapshot()
	return InvitationsState{Invitations: s.Value, IsLoading: s.IsLoading, Err: s.Err}
}

// Subscribe registers fn for state changes
func (m *InvitationsModel) Subscribe(fn func(InvitationsState)) (unsubscribe func()) {
	return m.state.Subscribe(func(s viewmodel.Snapshot[[]UserInvitationResult]) {
		fn(InvitationsState{Invitations: s.Value, IsLoading: s.IsLoading, Err: s.Err})
	})
}

// Close cancels outstanding requests and detaches the model
func (m *InvitationsModel) Close() { m.state.Close() }
