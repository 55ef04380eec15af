package tenants

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

// Store persists tenant users and invitations. Implementations enforce one
// user per (tenant, email) and one pending invitation per (tenant, email),
// returning ErrConflict otherwise.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, tenantID, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, tenantID, userID string) error
	ListUsers(ctx context.Context, tenantID string, query UserQuery) ([]User, int, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, tenantID, invitationID string) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	ListInvitations(ctx context.Context, tenantID string) ([]Invitation, error)
	UpdateInvitation(ctx context.Context, inv *Invitation) error
	DeleteInvitation(ctx context.Context, tenantID, invitationID string) error

	// AcceptInvitation creates user and marks inv accepted in one step
	AcceptInvitation(ctx context.Context, inv *Invitation, user *User) error

	// ExpireInvitations marks pending invitations expiring at or before now
	// as expired and returns how many changed
	ExpireInvitations(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is a Store kept in process memory
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User // by id
	invitations map[string]*Invitation
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		invitations: make(map[string]*Invitation),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(user)
}

func (s *MemoryStore) createUserLocked(user *User) error {
	if s.emailTakenLocked(user.TenantID, user.Email, "") {
		return fmt.Errorf("%w: user %s already belongs to the tenant", ErrConflict, user.Email)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *MemoryStore) emailTakenLocked(tenantID, email, exceptID string) bool {
	for _, u := range s.users {
		if u.TenantID == tenantID && u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetUser(_ context.Context, tenantID, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, tenantID, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("user %w", ErrNotFound)
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok || existing.TenantID != user.TenantID {
		return fmt.Errorf("user %w", ErrNotFound)
	}
	if s.emailTakenLocked(user.TenantID, user.Email, user.ID) {
		return fmt.Errorf("%w: user %s already belongs to the tenant", ErrConflict, user.Email)
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return fmt.Errorf("user %w", ErrNotFound)
	}
	delete(s.users, userID)
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context, tenantID string, query UserQuery) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(query.Search)
	var matched []User
	for _, u := range s.users {
		if u.TenantID != tenantID {
			continue
		}
		if query.Role != "" && u.Role != query.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, *cloneUser(u))
	}

	sort.Slice(matched, func(i, j int) bool {
		if query.SortOrder == tenantusers.SortDesc {
			return lessUser(&matched[j], &matched[i], query.SortBy)
		}
		return lessUser(&matched[i], &matched[j], query.SortBy)
	})

	total := len(matched)
	start := query.Offset()
	if start >= total {
		return []User{}, total, nil
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func lessUser(a, b *User, sortBy string) bool {
	var less, equal bool
	switch sortBy {
	case SortByName:
		less, equal = a.Name < b.Name, a.Name == b.Name
	case SortByEmail:
		less, equal = a.Email < b.Email, a.Email == b.Email
	case SortByRole:
		less, equal = a.Role < b.Role, a.Role == b.Role
	case SortByUpdatedAt:
		less, equal = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	default:
		less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
	if equal {
		return a.ID < b.ID
	}
	return less
}

func (s *MemoryStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.invitations {
		if other.TenantID == inv.TenantID && other.Status == tenantusers.InvitationPending &&
			strings.EqualFold(other.Email, inv.Email) {
			return fmt.Errorf("%w: %s already has a pending invitation", ErrConflict, inv.Email)
		}
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	s.invitations[inv.ID] = cloneInvitation(inv)
	return nil
}

func (s *MemoryStore) GetInvitation(_ context.Context, tenantID, invitationID string) (*Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invitations[invitationID]
	if !ok || inv.TenantID != tenantID {
		return nil, fmt.Errorf("invitation %w", ErrNotFound)
	}
	return cloneInvitation(inv), nil
}

func (s *MemoryStore) GetInvitationByToken(_ context.Context, token string) (*Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invitations {
		if token != "" && inv.Token == token {
			return cloneInvitation(inv), nil
		}
	}
	return nil, fmt.Errorf("invitation %w", ErrNotFound)
}

// ListInvitations returns the tenant's invitations, newest first
func (s *MemoryStore) ListInvitations(_ context.Context, tenantID string) ([]Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invitations := []Invitation{}
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID {
			invitations = append(invitations, *cloneInvitation(inv))
		}
	}
	sort.Slice(invitations, func(i, j int) bool {
		if invitations[i].CreatedAt.Equal(invitations[j].CreatedAt) {
			return invitations[i].ID > invitations[j].ID
		}
		return invitations[i].CreatedAt.After(invitations[j].CreatedAt)
	})
	return invitations, nil
}

func (s *MemoryStore) UpdateInvitation(_ context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invitations[inv.ID]
	if !ok || existing.TenantID != inv.TenantID {
		return fmt.Errorf("invitation %w", ErrNotFound)
	}
	s.invitations[inv.ID] = cloneInvitation(inv)
	return nil
}

func (s *MemoryStore) DeleteInvitation(_ context.Context, tenantID, invitationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[invitationID]
	if !ok || inv.TenantID != tenantID {
		return fmt.Errorf("invitation %w", ErrNotFound)
	}
	delete(s.invitations, invitationID)
	return nil
}

func (s *MemoryStore) AcceptInvitation(_ context.Context, inv *Invitation, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invitations[inv.ID]
	if !ok || existing.TenantID != inv.TenantID {
		return fmt.Errorf("invitation %w", ErrNotFound)
	}
	if existing.Status != tenantusers.InvitationPending {
		return fmt.Errorf("%w: invitation is %s", ErrConflict, existing.Status)
	}
	if err := s.createUserLocked(user); err != nil {
		return err
	}
	s.invitations[inv.ID] = cloneInvitation(inv)
	return nil
}

func (s *MemoryStore) ExpireInvitations(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, inv := range s.invitations {
		if inv.Overdue(now) {
			inv.Status = tenantusers.InvitationExpired
			expired++
		}
	}
	return expired, nil
}
