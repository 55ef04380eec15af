package tenants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edpsych-connect/connect/pkg/async"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// InviteUser creates a pending invitation and delivers it. The invitation
// expires after ExpiresInHours, or the manager's default lifetime.
func (m *Manager) InviteUser(ctx context.Context, tenantID string, data tenantusers.InviteUserData) (*Invitation, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}

	email := normalizeEmail(data.Email)
	switch _, err := m.store.GetUserByEmail(ctx, tenantID, email); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s already belongs to the tenant", ErrConflict, email)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := m.now().UTC()
	if err := m.expireStale(ctx, tenantID, email, now); err != nil {
		return nil, err
	}

	ttl := m.invitationTTL
	if data.ExpiresInHours != nil {
		ttl = time.Duration(*data.ExpiresInHours * float64(time.Hour))
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	inv := &Invitation{
		TenantID:      tenantID,
		Email:         email,
		Name:          data.Name,
		Role:          data.Role,
		Message:       data.Message,
		Token:         token,
		Status:        tenantusers.InvitationPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		DeliveryCount: 1,
		LastSentAt:    &now,
	}
	if err := m.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	m.countInvitation("created", 1)
	m.logger.WithFields(map[string]interface{}{
		"tenant_id":     tenantID,
		"invitation_id": inv.ID,
		"role":          inv.Role,
		"expires_at":    inv.ExpiresAt,
	}).Info("Invitation created")

	if err := m.deliver(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// expireStale marks an overdue pending invitation for the same address as
// expired so a fresh one can be issued before the sweeper runs
func (m *Manager) expireStale(ctx context.Context, tenantID, email string, now time.Time) error {
	invitations, err := m.store.ListInvitations(ctx, tenantID)
	if err != nil {
		return err
	}
	for i := range invitations {
		inv := &invitations[i]
		if strings.EqualFold(inv.Email, email) && inv.Overdue(now) {
			inv.Status = tenantusers.InvitationExpired
			if err := m.store.UpdateInvitation(ctx, inv); err != nil {
				return err
			}
			m.countInvitation("expired", 1)
		}
	}
	return nil
}

// ResendInvitation delivers a pending invitation again. The expiry is left
// unchanged.
func (m *Manager) ResendInvitation(ctx context.Context, tenantID, invitationID string) (*Invitation, error) {
	inv, err := m.store.GetInvitation(ctx, tenantID, invitationID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if err := m.requirePending(ctx, inv, now); err != nil {
		return nil, err
	}

	inv.DeliveryCount++
	inv.LastSentAt = &now
	if err := m.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	m.countInvitation("resent", 1)
	if err := m.deliver(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// CancelInvitation removes an invitation that was never accepted
func (m *Manager) CancelInvitation(ctx context.Context, tenantID, invitationID string) error {
	inv, err := m.store.GetInvitation(ctx, tenantID, invitationID)
	if err != nil {
		return err
	}
	if inv.Status == tenantusers.InvitationAccepted {
		return fmt.Errorf("%w: invitation was already accepted", ErrConflict)
	}
	if err := m.store.DeleteInvitation(ctx, tenantID, invitationID); err != nil {
		return err
	}

	m.countInvitation("cancelled", 1)
	m.logger.WithFields(map[string]interface{}{
		"tenant_id":     tenantID,
		"invitation_id": invitationID,
	}).Info("Invitation cancelled")
	return nil
}

// ListInvitations returns the tenant's invitations, newest first
func (m *Manager) ListInvitations(ctx context.Context, tenantID string) ([]Invitation, error) {
	return m.store.ListInvitations(ctx, tenantID)
}

// AcceptInvitation turns the invitation identified by token into a tenant
// user. name overrides the name given at invitation time when set.
func (m *Manager) AcceptInvitation(ctx context.Context, token, name string) (*User, error) {
	if token == "" {
		return nil, &validation.Error{Fields: []validation.FieldError{{Field: "token", Rule: "required", Message: "is required"}}}
	}
	if name != "" {
		if err := validation.Var("name", name, "min=2,max=100"); err != nil {
			return nil, err
		}
	}

	inv, err := m.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if err := m.requirePending(ctx, inv, now); err != nil {
		return nil, err
	}

	user := &User{
		TenantID:    inv.TenantID,
		Email:       inv.Email,
		Name:        inv.Name,
		Role:        inv.Role,
		Permissions: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if name != "" {
		user.Name = name
	}
	inv.Status = tenantusers.InvitationAccepted
	inv.AcceptedAt = &now

	if err := m.store.AcceptInvitation(ctx, inv, user); err != nil {
		return nil, err
	}

	m.countInvitation("accepted", 1)
	m.logger.WithFields(map[string]interface{}{
		"tenant_id":     inv.TenantID,
		"invitation_id": inv.ID,
		"user_id":       user.ID,
	}).Info("Invitation accepted")
	return user, nil
}

// ExpireInvitations marks every overdue pending invitation expired
func (m *Manager) ExpireInvitations(ctx context.Context) (int, error) {
	n, err := m.store.ExpireInvitations(ctx, m.now().UTC())
	if err != nil {
		return 0, err
	}
	m.countInvitation("expired", n)
	return n, nil
}

// requirePending fails with ErrConflict unless inv can still be acted on,
// recording the expiry when it has lapsed
func (m *Manager) requirePending(ctx context.Context, inv *Invitation, now time.Time) error {
	if inv.Overdue(now) {
		inv.Status = tenantusers.InvitationExpired
		if err := m.store.UpdateInvitation(ctx, inv); err != nil {
			return err
		}
		m.countInvitation("expired", 1)
	}
	if inv.Status != tenantusers.InvitationPending {
		return fmt.Errorf("%w: invitation is %s", ErrConflict, inv.Status)
	}
	return nil
}

func (m *Manager) deliver(ctx context.Context, inv *Invitation) error {
	snapshot := *cloneInvitation(inv)
	if m.syncDelivery {
		if err := m.notifier.DeliverInvitation(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to deliver invitation: %w", err)
		}
		return nil
	}

	// delivery outlives the request that triggered it
	async.SafeGo(context.WithoutCancel(ctx), deliveryTimeout, "invitation delivery", func(ctx context.Context) error {
		return m.notifier.DeliverInvitation(ctx, snapshot)
	})
	return nil
}

// generateToken generates a random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
