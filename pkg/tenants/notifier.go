package tenants

import (
	"context"
	"net/url"

	"github.com/edpsych-connect/connect/pkg/observability"
)

// Notifier delivers invitations to invitees. Resend calls it again with the
// same invitation and a higher DeliveryCount.
type Notifier interface {
	DeliverInvitation(ctx context.Context, inv Invitation) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, inv Invitation) error

func (f NotifierFunc) DeliverInvitation(ctx context.Context, inv Invitation) error {
	return f(ctx, inv)
}

// LogNotifier writes invitations to the log instead of sending them. It is
// the development default.
type LogNotifier struct {
	logger    *observability.Logger
	acceptURL string
}

// NewLogNotifier creates a LogNotifier. When acceptURL is set the log line
// carries the link the invitee would follow.
func NewLogNotifier(logger *observability.Logger, acceptURL string) *LogNotifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogNotifier{logger: logger, acceptURL: acceptURL}
}

func (n *LogNotifier) DeliverInvitation(_ context.Context, inv Invitation) error {
	fields := map[string]interface{}{
		"tenant_id":      inv.TenantID,
		"invitation_id":  inv.ID,
		"email":          inv.Email,
		"role":           inv.Role,
		"expires_at":     inv.ExpiresAt,
		"delivery_count": inv.DeliveryCount,
	}
	if n.acceptURL != "" {
		fields["accept_url"] = AcceptLink(n.acceptURL, inv.Token)
	}
	n.logger.WithFields(fields).Info("Invitation delivered")
	return nil
}

// AcceptLink appends the invitation token to base as the token query parameter
func AcceptLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
