package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/tenants"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// AcceptInvitationRequest is the body of POST /api/invitations/accept
type AcceptInvitationRequest struct {
	Token string `json:"token"`
	Name  string `json:"name,omitempty"`
}

// TenantHandlers handles tenant user and invitation requests
type TenantHandlers struct {
	tenants *tenants.Manager
}

// NewTenantHandlers creates a new TenantHandlers
func NewTenantHandlers(manager *tenants.Manager) *TenantHandlers {
	return &TenantHandlers{tenants: manager}
}

// RegisterPublicRoutes registers invitation acceptance, which the invitee
// reaches before they have a session
func (h *TenantHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/invitations/accept", h.AcceptInvitation).Methods("POST")
}

// RegisterRoutes registers user and invitation routes on a router already
// scoped to /api/tenants/{tenantId}
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/users", h.ListUsers).Methods("GET")

	// bulk routes go first so "bulk" is never taken for a user id
	router.HandleFunc("/users/bulk", h.BulkCreateUsers).Methods("POST")
	router.HandleFunc("/users/bulk", h.BulkDeleteUsers).Methods("DELETE")
	router.HandleFunc("/users/bulk/roles", h.BulkUpdateUserRoles).Methods("PUT")

	router.HandleFunc("/users/{userId}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{userId}", h.UpdateUser).Methods("PUT")
	router.HandleFunc("/users/{userId}", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/users/{userId}/role", h.UpdateUserRole).Methods("PUT")
	router.HandleFunc("/users/{userId}/permissions", h.UpdateUserPermissions).Methods("PUT")

	router.HandleFunc("/invitations", h.InviteUser).Methods("POST")
	router.HandleFunc("/invitations", h.ListInvitations).Methods("GET")
	router.HandleFunc("/invitations/{invitationId}/resend", h.ResendInvitation).Methods("POST")
	router.HandleFunc("/invitations/{invitationId}", h.CancelInvitation).Methods("DELETE")
}

// CreateUser adds a user to the tenant
func (h *TenantHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req tenantusers.CreateTenantUserData
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.tenants.CreateUser(r.Context(), tenantID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// GetUser returns one user of the tenant
func (h *TenantHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	user, err := h.tenants.GetUser(r.Context(), tenantID(r), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateUser applies a partial profile update
func (h *TenantHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	var req tenantusers.UpdateTenantUserData
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.tenants.UpdateUser(r.Context(), tenantID(r), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// DeleteUser removes a user from the tenant
func (h *TenantHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	if err := h.tenants.DeleteUser(r.Context(), tenantID(r), userID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListUsers returns one page of the tenant's users
func (h *TenantHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	params, err := listUsersParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.tenants.ListUsers(r.Context(), tenantID(r), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list.Users == nil {
		list.Users = []tenantusers.TenantUser{}
	}
	httputil.WriteSuccess(w, list)
}

func listUsersParams(r *http.Request) (tenantusers.ListUsersParams, error) {
	params := tenantusers.ListUsersParams{
		Search:    httputil.ParseQueryString(r, "search", ""),
		Role:      tenantusers.TenantRole(httputil.ParseQueryString(r, "role", "")),
		SortBy:    httputil.ParseQueryString(r, "sortBy", ""),
		SortOrder: tenantusers.SortOrder(httputil.ParseQueryString(r, "sortOrder", "")),
	}

	var fields []validation.FieldError
	page, err := httputil.ParseQueryInt(r, "page", 0)
	if err != nil {
		fields = append(fields, validation.FieldError{Field: "page", Rule: "number", Message: "must be an integer"})
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		fields = append(fields, validation.FieldError{Field: "limit", Rule: "number", Message: "must be an integer"})
	}
	if len(fields) > 0 {
		return params, &validation.Error{Fields: fields}
	}

	params.Page = page
	params.Limit = limit
	return params, nil
}

// UpdateUserRole changes a user's role
func (h *TenantHandlers) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	var req tenantusers.UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.tenants.UpdateUserRole(r.Context(), tenantID(r), userID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateUserPermissions replaces a user's permission set
func (h *TenantHandlers) UpdateUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "userId")
	if !ok {
		return
	}
	var req tenantusers.UpdatePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.tenants.UpdateUserPermissions(r.Context(), tenantID(r), userID, req.Permissions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// BulkCreateUsers creates many users, reporting failures per item
func (h *TenantHandlers) BulkCreateUsers(w http.ResponseWriter, r *http.Request) {
	var req tenantusers.BulkCreateUsersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.tenants.BulkCreateUsers(r.Context(), tenantID(r), req.Users)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// BulkDeleteUsers deletes many users, reporting failures per id
func (h *TenantHandlers) BulkDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req tenantusers.BulkDeleteUsersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.tenants.BulkDeleteUsers(r.Context(), tenantID(r), req.UserIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// BulkUpdateUserRoles changes many roles, reporting failures per id
func (h *TenantHandlers) BulkUpdateUserRoles(w http.ResponseWriter, r *http.Request) {
	var req tenantusers.BulkUpdateRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.tenants.BulkUpdateUserRoles(r.Context(), tenantID(r), req.Updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// InviteUser creates and delivers an invitation
func (h *TenantHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	var req tenantusers.InviteUserData
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := h.tenants.InviteUser(r.Context(), tenantID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, inv.Result())
}

// ListInvitations lists the tenant's invitations, newest first
func (h *TenantHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.tenants.ListInvitations(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	results := make([]tenantusers.UserInvitationResult, 0, len(invitations))
	for i := range invitations {
		results = append(results, invitations[i].Result())
	}
	httputil.WriteSuccess(w, results)
}

// ResendInvitation re-delivers a pending invitation
func (h *TenantHandlers) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := httputil.ParsePathStringOrError(w, r, "invitationId")
	if !ok {
		return
	}

	inv, err := h.tenants.ResendInvitation(r.Context(), tenantID(r), invitationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv.Result())
}

// CancelInvitation removes an invitation that was never accepted
func (h *TenantHandlers) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := httputil.ParsePathStringOrError(w, r, "invitationId")
	if !ok {
		return
	}

	if err := h.tenants.CancelInvitation(r.Context(), tenantID(r), invitationID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AcceptInvitation turns an invitation token into a tenant user
func (h *TenantHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.tenants.AcceptInvitation(r.Context(), req.Token, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}
