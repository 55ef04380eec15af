package tenants

import (
	"errors"
	"strings"
	"time"

	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

// User is a tenant membership; the wire type is shared with the client SDK
type User = tenantusers.TenantUser

var (
	// ErrNotFound is wrapped by lookups that find nothing
	ErrNotFound = errors.New("not found")

	// ErrConflict is wrapped when a write would break a uniqueness rule or is
	// not allowed in the record's current state
	ErrConflict = errors.New("conflict")
)

// Invitation is the stored form of an invitation. Token is the secret the
// invitee presents to accept it and never leaves the server in listings.
type Invitation struct {
	ID            string
	TenantID      string
	Email         string
	Name          string
	Role          tenantusers.TenantRole
	Message       string
	Token         string
	Status        tenantusers.InvitationStatus
	CreatedAt     time.Time
	ExpiresAt     time.Time
	AcceptedAt    *time.Time
	DeliveryCount int
	LastSentAt    *time.Time
}

// Result converts the invitation to its API form
func (inv *Invitation) Result() tenantusers.UserInvitationResult {
	return tenantusers.UserInvitationResult{
		ID:         inv.ID,
		Email:      inv.Email,
		Name:       inv.Name,
		Role:       inv.Role,
		Status:     inv.Status,
		CreatedAt:  inv.CreatedAt,
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: copyTime(inv.AcceptedAt),
	}
}

// Overdue reports whether a pending invitation has passed its expiry
func (inv *Invitation) Overdue(now time.Time) bool {
	return inv.Status == tenantusers.InvitationPending && !now.Before(inv.ExpiresAt)
}

// Sort keys accepted by ListUsers
const (
	SortByName      = "name"
	SortByEmail     = "email"
	SortByRole      = "role"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
)

var sortColumns = map[string]string{
	SortByName:      "name",
	SortByEmail:     "email",
	SortByRole:      "role",
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// UserQuery is a normalized user listing request
type UserQuery struct {
	Page      int
	Limit     int
	Search    string
	Role      tenantusers.TenantRole
	SortBy    string
	SortOrder tenantusers.SortOrder
}

// Offset is the number of rows skipped before the page
func (q UserQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// normalizeEmail is the form emails are stored and compared in
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = append([]string{}, u.Permissions...)
	if u.Settings != nil {
		c.Settings = make(map[string]interface{}, len(u.Settings))
		for k, v := range u.Settings {
			c.Settings[k] = v
		}
	}
	return &c
}

func cloneInvitation(inv *Invitation) *Invitation {
	if inv == nil {
		return nil
	}
	c := *inv
	c.AcceptedAt = copyTime(inv.AcceptedAt)
	c.LastSentAt = copyTime(inv.LastSentAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
