package tenantusers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/edpsych-connect/connect/pkg/apiclient"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// DefaultBasePath is where the tenant namespace is mounted
const DefaultBasePath = "/api/tenants"

// Service is tenant user and invitation management as seen by a client
type Service interface {
	CreateUser(ctx context.Context, tenantID string, data CreateTenantUserData) (*TenantUser, error)
	GetUser(ctx context.Context, tenantID, userID string) (*TenantUser, error)
	UpdateUser(ctx context.Context, tenantID, userID string, data UpdateTenantUserData) (*TenantUser, error)
	DeleteUser(ctx context.Context, tenantID, userID string) error
	ListUsers(ctx context.Context, tenantID string, params ListUsersParams) (*UserList, error)
	UpdateUserRole(ctx context.Context, tenantID, userID string, role TenantRole) (*TenantUser, error)
	UpdateUserPermissions(ctx context.Context, tenantID, userID string, permissions []string) (*TenantUser, error)
	BulkCreateUsers(ctx context.Context, tenantID string, users []CreateTenantUserData) (*BulkOperationResult, error)
	BulkDeleteUsers(ctx context.Context, tenantID string, userIDs []string) (*BulkOperationResult, error)
	BulkUpdateUserRoles(ctx context.Context, tenantID string, updates []RoleUpdate) (*BulkOperationResult, error)
	InviteUser(ctx context.Context, tenantID string, data InviteUserData) (*UserInvitationResult, error)
	ResendInvitation(ctx context.Context, tenantID, invitationID string) (*UserInvitationResult, error)
	CancelInvitation(ctx context.Context, tenantID, invitationID string) error
	ListInvitations(ctx context.Context, tenantID string) ([]UserInvitationResult, error)
}

// Client implements Service over HTTP
type Client struct {
	api      *apiclient.Client
	basePath string
}

var _ Service = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBasePath mounts the client on a different namespace
func WithBasePath(path string) ClientOption {
	return func(c *Client) {
		c.basePath = "/" + strings.Trim(path, "/")
	}
}

// NewClient creates a tenant user client
func NewClient(api *apiclient.Client, opts ...ClientOption) *Client {
	c := &Client{
		api:      api,
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) path(tenantID string, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.basePath)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(tenantID))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// CreateUser validates data and creates a user
func (c *Client) CreateUser(ctx context.Context, tenantID string, data CreateTenantUserData) (*TenantUser, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}
	return c.user(ctx, http.MethodPost, c.path(tenantID, "users"), data)
}

// GetUser fetches one user
func (c *Client) GetUser(ctx context.Context, tenantID, userID string) (*TenantUser, error) {
	return c.user(ctx, http.MethodGet, c.path(tenantID, "users", userID), nil)
}

// UpdateUser validates data and edits a user's profile
func (c *Client) UpdateUser(ctx context.Context, tenantID, userID string, data UpdateTenantUserData) (*TenantUser, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}
	return c.user(ctx, http.MethodPut, c.path(tenantID, "users", userID), data)
}

// DeleteUser removes a user from the tenant
func (c *Client) DeleteUser(ctx context.Context, tenantID, userID string) error {
	return c.api.Do(ctx, http.MethodDelete, c.path(tenantID, "users", userID), nil, nil)
}

// ListUsers fetches one page of users. Only set params reach the query string.
func (c *Client) ListUsers(ctx context.Context, tenantID string, params ListUsersParams) (*UserList, error) {
	path := c.path(tenantID, "users")
	if query := params.Encode(); query != "" {
		path += "?" + query
	}

	var list UserList
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Encode renders the set params as a query string
func (p ListUsersParams) Encode() string {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Role != "" {
		q.Set("role", string(p.Role))
	}
	if p.SortBy != "" {
		q.Set("sortBy", p.SortBy)
	}
	if p.SortOrder != "" {
		q.Set("sortOrder", string(p.SortOrder))
	}
	return q.Encode()
}

// UpdateUserRole changes a user's role
func (c *Client) UpdateUserRole(ctx context.Context, tenantID, userID string, role TenantRole) (*TenantUser, error) {
	body := UpdateRoleRequest{Role: role}
	if err := validation.Struct(body); err != nil {
		return nil, err
	}
	return c.user(ctx, http.MethodPut, c.path(tenantID, "users", userID, "role"), body)
}

// UpdateUserPermissions replaces a user's permission set
func (c *Client) UpdateUserPermissions(ctx context.Context, tenantID, userID string, permissions []string) (*TenantUser, error) {
	body := UpdatePermissionsRequest{Permissions: permissions}
	if body.Permissions == nil {
		body.Permissions = []string{}
	}
	if err := validation.Struct(body); err != nil {
		return nil, err
	}
	return c.user(ctx, http.MethodPut, c.path(tenantID, "users", userID, "permissions"), body)
}

func (c *Client) user(ctx context.Context, method, path string, body interface{}) (*TenantUser, error) {
	var user TenantUser
	if err := c.api.Do(ctx, method, path, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// BulkCreateUsers creates users one by one on the server. Items are validated
// there and invalid ones come back as failures.
func (c *Client) BulkCreateUsers(ctx context.Context, tenantID string, users []CreateTenantUserData) (*BulkOperationResult, error) {
	return c.bulk(ctx, http.MethodPost, c.path(tenantID, "users", "bulk"), BulkCreateUsersRequest{Users: users})
}

// BulkDeleteUsers deletes users by id
func (c *Client) BulkDeleteUsers(ctx context.Context, tenantID string, userIDs []string) (*BulkOperationResult, error) {
	return c.bulk(ctx, http.MethodDelete, c.path(tenantID, "users", "bulk"), BulkDeleteUsersRequest{UserIDs: userIDs})
}

// BulkUpdateUserRoles applies role changes
func (c *Client) BulkUpdateUserRoles(ctx context.Context, tenantID string, updates []RoleUpdate) (*BulkOperationResult, error) {
	return c.bulk(ctx, http.MethodPut, c.path(tenantID, "users", "bulk", "roles"), BulkUpdateRolesRequest{Updates: updates})
}

func (c *Client) bulk(ctx context.Context, method, path string, body interface{}) (*BulkOperationResult, error) {
	var result BulkOperationResult
	if err := c.api.Do(ctx, method, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InviteUser validates data and creates a pending invitation
func (c *Client) InviteUser(ctx context.Context, tenantID string, data InviteUserData) (*UserInvitationResult, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}
	return c.invitation(ctx, http.MethodPost, c.path(tenantID, "invitations"), data)
}

// ResendInvitation re-delivers a pending invitation
func (c *Client) ResendInvitation(ctx context.Context, tenantID, invitationID string) (*UserInvitationResult, error) {
	return c.invitation(ctx, http.MethodPost, c.path(tenantID, "invitations", invitationID, "resend"), nil)
}

// CancelInvitation removes a pending invitation
func (c *Client) CancelInvitation(ctx context.Context, tenantID, invitationID string) error {
	return c.api.Do(ctx, http.MethodDelete, c.path(tenantID, "invitations", invitationID), nil, nil)
}

// ListInvitations lists the tenant's invitations
func (c *Client) ListInvitations(ctx context.Context, tenantID string) ([]UserInvitationResult, error) {
	var invitations []UserInvitationResult
	if err := c.api.Do(ctx, http.MethodGet, c.path(tenantID, "invitations"), nil, &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

func (c *Client) invitation(ctx context.Context, method, path string, body interface{}) (*UserInvitationResult, error) {
	var inv UserInvitationResult
	if err := c.api.Do(ctx, method, path, body, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
