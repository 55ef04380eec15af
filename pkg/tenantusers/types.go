package tenantusers

import "time"

// TenantRole is a user's role within one tenant
type TenantRole string

const (
	RoleAdmin                   TenantRole = "ADMIN"
	RoleEducationalPsychologist TenantRole = "EDUCATIONAL_PSYCHOLOGIST"
	RoleSENCO                   TenantRole = "SENCO"
	RoleTeacher                 TenantRole = "TEACHER"
	RoleTeachingAssistant       TenantRole = "TEACHING_ASSISTANT"
	RoleParent                  TenantRole = "PARENT"
	RoleStudent                 TenantRole = "STUDENT"
	RoleViewer                  TenantRole = "VIEWER"
)

// Roles lists every TenantRole
var Roles = []TenantRole{
	RoleAdmin,
	RoleEducationalPsychologist,
	RoleSENCO,
	RoleTeacher,
	RoleTeachingAssistant,
	RoleParent,
	RoleStudent,
	RoleViewer,
}

// Valid reports whether r is a known role
func (r TenantRole) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// InvitationStatus is where an invitation is in its lifecycle
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationExpired   InvitationStatus = "expired"
	InvitationCancelled InvitationStatus = "cancelled"
)

// TenantUser is a user's membership in a tenant
type TenantUser struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenantId"`
	Email       string                 `json:"email"`
	Name        string                 `json:"name"`
	Role        TenantRole             `json:"role"`
	Permissions []string               `json:"permissions"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// CreateTenantUserData creates a user directly
type CreateTenantUserData struct {
	Email       string                 `json:"email" validate:"required,email"`
	Name        string                 `json:"name" validate:"min=2,max=100"`
	Role        TenantRole             `json:"role" validate:"oneof=ADMIN EDUCATIONAL_PSYCHOLOGIST SENCO TEACHER TEACHING_ASSISTANT PARENT STUDENT VIEWER"`
	Permissions []string               `json:"permissions,omitempty" validate:"omitempty,dive,required"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// UpdateTenantUserData is a profile edit. Nil fields are left unchanged.
type UpdateTenantUserData struct {
	Email    *string                `json:"email,omitempty" validate:"omitempty,email"`
	Name     *string                `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// UpdateRoleRequest is the body of a role change
type UpdateRoleRequest struct {
	Role TenantRole `json:"role" validate:"oneof=ADMIN EDUCATIONAL_PSYCHOLOGIST SENCO TEACHER TEACHING_ASSISTANT PARENT STUDENT VIEWER"`
}

// UpdatePermissionsRequest is the body of a permission change
type UpdatePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// SortOrder orders a user listing
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListUsersParams filters a user listing. Zero fields are omitted from the
// query string.
type ListUsersParams struct {
	Page      int
	Limit     int
	Search    string
	Role      TenantRole
	SortBy    string
	SortOrder SortOrder
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// UserList is one page of users
type UserList struct {
	Users      []TenantUser `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

// BulkCreateUsersRequest is the body of a bulk create
type BulkCreateUsersRequest struct {
	Users []CreateTenantUserData `json:"users"`
}

// BulkDeleteUsersRequest is the body of a bulk delete
type BulkDeleteUsersRequest struct {
	UserIDs []string `json:"userIds"`
}

// RoleUpdate assigns role to one user
type RoleUpdate struct {
	UserID string     `json:"userId"`
	Role   TenantRole `json:"role"`
}

// BulkUpdateRolesRequest is the body of a bulk role change
type BulkUpdateRolesRequest struct {
	Updates []RoleUpdate `json:"updates"`
}

// BulkFailure is one failed item of a bulk operation
type BulkFailure struct {
	Index *int   `json:"index,omitempty"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// BulkOperationResult reports a partially successful bulk operation.
// SuccessCount + FailureCount always equals TotalCount.
type BulkOperationResult struct {
	TotalCount   int           `json:"totalCount"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Failures     []BulkFailure `json:"failures,omitempty"`
}

// InviteUserData invites someone to join a tenant
type InviteUserData struct {
	Email          string     `json:"email" validate:"required,email"`
	Name           string     `json:"name" validate:"min=2,max=100"`
	Role           TenantRole `json:"role" validate:"oneof=ADMIN EDUCATIONAL_PSYCHOLOGIST SENCO TEACHER TEACHING_ASSISTANT PARENT STUDENT VIEWER"`
	Message        string     `json:"message,omitempty" validate:"max=500"`
	ExpiresInHours *float64   `json:"expiresInHours,omitempty" validate:"omitempty,gt=0,lte=8760"`
}

// UserInvitationResult is an invitation as the API reports it
type UserInvitationResult struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	Role       TenantRole       `json:"role"`
	Status     InvitationStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	ExpiresAt  time.Time        `json:"expiresAt"`
	AcceptedAt *time.Time       `json:"acceptedAt,omitempty"`
}
