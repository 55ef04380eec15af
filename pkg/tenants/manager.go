package tenants

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/edpsych-connect/connect/pkg/async"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
	"github.com/edpsych-connect/connect/pkg/validation"
)

const (
	// DefaultInvitationTTL is how long an invitation stays acceptable when the
	// request names no expiry
	DefaultInvitationTTL = 7 * 24 * time.Hour

	defaultBulkWorkers = 4
	defaultBulkTimeout = 10 * time.Second
	maxBulkItems       = 500
	deliveryTimeout    = 30 * time.Second
)

// Manager implements the tenant user and invitation endpoints
type Manager struct {
	store         Store
	notifier      Notifier
	metrics       *observability.Metrics
	logger        *observability.Logger
	now           func() time.Time
	invitationTTL time.Duration
	bulkWorkers   int
	bulkTimeout   time.Duration
	syncDelivery  bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithNotifier sets how invitations are delivered
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics records invitation and bulk operation counters
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the manager logger
func WithLogger(l *observability.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithInvitationTTL sets the default invitation lifetime
func WithInvitationTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.invitationTTL = ttl }
}

// WithBulkWorkers sets the concurrency of bulk operations
func WithBulkWorkers(n int) ManagerOption {
	return func(m *Manager) { m.bulkWorkers = n }
}

// WithSynchronousDelivery delivers invitations before Invite and Resend
// return, surfacing delivery errors to the caller
func WithSynchronousDelivery() ManagerOption {
	return func(m *Manager) { m.syncDelivery = true }
}

// NewManager creates a Manager
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		logger:        observability.NopLogger(),
		now:           time.Now,
		invitationTTL: DefaultInvitationTTL,
		bulkWorkers:   defaultBulkWorkers,
		bulkTimeout:   defaultBulkTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = NewLogNotifier(m.logger, "")
	}
	return m
}

// CreateUser validates data and adds a user to the tenant
func (m *Manager) CreateUser(ctx context.Context, tenantID string, data tenantusers.CreateTenantUserData) (*User, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	user := &User{
		TenantID:    tenantID,
		Email:       normalizeEmail(data.Email),
		Name:        data.Name,
		Role:        data.Role,
		Permissions: dedupe(data.Permissions),
		Settings:    data.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"user_id":   user.ID,
		"role":      user.Role,
	}).Info("Tenant user created")
	return user, nil
}

// GetUser returns one user
func (m *Manager) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	return m.store.GetUser(ctx, tenantID, userID)
}

// UpdateUser applies the non-nil fields of data
func (m *Manager) UpdateUser(ctx context.Context, tenantID, userID string, data tenantusers.UpdateTenantUserData) (*User, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}

	return m.modifyUser(ctx, tenantID, userID, func(u *User) {
		if data.Email != nil {
			u.Email = normalizeEmail(*data.Email)
		}
		if data.Name != nil {
			u.Name = *data.Name
		}
		if data.Settings != nil {
			u.Settings = data.Settings
		}
	})
}

// DeleteUser removes a user from the tenant
func (m *Manager) DeleteUser(ctx context.Context, tenantID, userID string) error {
	if err := m.store.DeleteUser(ctx, tenantID, userID); err != nil {
		return err
	}
	m.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"user_id":   userID,
	}).Info("Tenant user deleted")
	return nil
}

// ListUsers returns one page of users. Zero-valued params take defaults:
// page 1, 20 per page, sorted by creation time ascending.
func (m *Manager) ListUsers(ctx context.Context, tenantID string, params tenantusers.ListUsersParams) (*tenantusers.UserList, error) {
	query, err := userQuery(params)
	if err != nil {
		return nil, err
	}

	users, total, err := m.store.ListUsers(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}
	return &tenantusers.UserList{
		Users: users,
		Pagination: tenantusers.Pagination{
			Page:       query.Page,
			Limit:      query.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

func userQuery(params tenantusers.ListUsersParams) (UserQuery, error) {
	q := UserQuery{
		Page:      params.Page,
		Limit:     params.Limit,
		Search:    params.Search,
		Role:      params.Role,
		SortBy:    params.SortBy,
		SortOrder: params.SortOrder,
	}

	var fields []validation.FieldError
	if q.Page < 0 {
		fields = append(fields, validation.FieldError{Field: "page", Rule: "min", Message: "must be at least 1"})
	}
	if q.Limit < 0 || q.Limit > maxPageSize {
		fields = append(fields, validation.FieldError{Field: "limit", Rule: "max", Message: fmt.Sprintf("must be between 1 and %d", maxPageSize)})
	}
	if q.Role != "" && !q.Role.Valid() {
		fields = append(fields, validation.FieldError{Field: "role", Rule: "oneof", Message: "must be a tenant role"})
	}
	if _, ok := sortColumns[q.SortBy]; q.SortBy != "" && !ok {
		fields = append(fields, validation.FieldError{Field: "sortBy", Rule: "oneof", Message: "must be one of name, email, role, createdAt, updatedAt"})
	}
	if q.SortOrder != "" && q.SortOrder != tenantusers.SortAsc && q.SortOrder != tenantusers.SortDesc {
		fields = append(fields, validation.FieldError{Field: "sortOrder", Rule: "oneof", Message: "must be asc or desc"})
	}
	if len(fields) > 0 {
		return q, &validation.Error{Fields: fields}
	}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	// the row offset must fit in an int
	if q.Page-1 > math.MaxInt/q.Limit {
		return q, &validation.Error{Fields: []validation.FieldError{
			{Field: "page", Rule: "max", Message: fmt.Sprintf("must be at most %d", math.MaxInt/q.Limit+1)},
		}}
	}
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = tenantusers.SortAsc
	}
	return q, nil
}

// UpdateUserRole changes a user's role
func (m *Manager) UpdateUserRole(ctx context.Context, tenantID, userID string, role tenantusers.TenantRole) (*User, error) {
	if err := validation.Struct(tenantusers.UpdateRoleRequest{Role: role}); err != nil {
		return nil, err
	}
	return m.modifyUser(ctx, tenantID, userID, func(u *User) { u.Role = role })
}

// UpdateUserPermissions replaces a user's permission set
func (m *Manager) UpdateUserPermissions(ctx context.Context, tenantID, userID string, permissions []string) (*User, error) {
	if err := validation.Struct(tenantusers.UpdatePermissionsRequest{Permissions: permissions}); err != nil {
		return nil, err
	}
	return m.modifyUser(ctx, tenantID, userID, func(u *User) { u.Permissions = dedupe(permissions) })
}

func (m *Manager) modifyUser(ctx context.Context, tenantID, userID string, apply func(*User)) (*User, error) {
	user, err := m.store.GetUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	apply(user)
	user.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// BulkCreateUsers creates each user independently; invalid or conflicting
// items are reported as failures by index
func (m *Manager) BulkCreateUsers(ctx context.Context, tenantID string, users []tenantusers.CreateTenantUserData) (*tenantusers.BulkOperationResult, error) {
	if err := checkBulkSize("users", len(users)); err != nil {
		return nil, err
	}
	errs := async.Batch(ctx, users, m.bulkWorkers, "bulk user create", m.bulkTimeout,
		func(ctx context.Context, data tenantusers.CreateTenantUserData) error {
			_, err := m.CreateUser(ctx, tenantID, data)
			return err
		})
	return m.bulkResult("create", errs, nil), nil
}

// BulkDeleteUsers deletes users by id
func (m *Manager) BulkDeleteUsers(ctx context.Context, tenantID string, userIDs []string) (*tenantusers.BulkOperationResult, error) {
	if err := checkBulkSize("userIds", len(userIDs)); err != nil {
		return nil, err
	}
	errs := async.Batch(ctx, userIDs, m.bulkWorkers, "bulk user delete", m.bulkTimeout,
		func(ctx context.Context, userID string) error {
			return m.DeleteUser(ctx, tenantID, userID)
		})
	return m.bulkResult("delete", errs, func(i int) string { return userIDs[i] }), nil
}

// BulkUpdateUserRoles applies each role change independently
func (m *Manager) BulkUpdateUserRoles(ctx context.Context, tenantID string, updates []tenantusers.RoleUpdate) (*tenantusers.BulkOperationResult, error) {
	if err := checkBulkSize("updates", len(updates)); err != nil {
		return nil, err
	}
	errs := async.Batch(ctx, updates, m.bulkWorkers, "bulk role update", m.bulkTimeout,
		func(ctx context.Context, u tenantusers.RoleUpdate) error {
			_, err := m.UpdateUserRole(ctx, tenantID, u.UserID, u.Role)
			return err
		})
	return m.bulkResult("update_roles", errs, func(i int) string { return updates[i].UserID }), nil
}

func checkBulkSize(field string, n int) error {
	if n > maxBulkItems {
		return &validation.Error{Fields: []validation.FieldError{{
			Field:   field,
			Rule:    "max",
			Message: fmt.Sprintf("must contain at most %d items", maxBulkItems),
		}}}
	}
	return nil
}

func (m *Manager) bulkResult(operation string, errs []error, idOf func(int) string) *tenantusers.BulkOperationResult {
	result := &tenantusers.BulkOperationResult{TotalCount: len(errs)}
	for i, err := range errs {
		if err == nil {
			result.SuccessCount++
			continue
		}
		index := i
		failure := tenantusers.BulkFailure{Index: &index, Error: err.Error()}
		if idOf != nil {
			failure.ID = idOf(i)
		}
		result.Failures = append(result.Failures, failure)
		result.FailureCount++
	}

	if m.metrics != nil {
		m.metrics.BulkOperationItems.WithLabelValues(operation, "success").Add(float64(result.SuccessCount))
		m.metrics.BulkOperationItems.WithLabelValues(operation, "failure").Add(float64(result.FailureCount))
	}
	m.logger.WithFields(map[string]interface{}{
		"operation": operation,
		"total":     result.TotalCount,
		"failed":    result.FailureCount,
	}).Info("Bulk operation finished")
	return result
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (m *Manager) countInvitation(event string, n int) {
	if m.metrics != nil && n > 0 {
		m.metrics.InvitationsTotal.WithLabelValues(event).Add(float64(n))
	}
}
