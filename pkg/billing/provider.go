package billing

import (
	"context"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

// CheckoutRequest is everything a provider needs to start a hosted checkout
type CheckoutRequest struct {
	TenantID   string
	Plan       Plan
	Interval   subscriptions.BillingInterval
	Price      subscriptions.PlanPrice
	Quantity   int
	SuccessURL string
	CancelURL  string

	// CustomerID is the tenant's existing billing customer, if any
	CustomerID string
}

// CheckoutResult is the hosted checkout plus any state changes the provider
// completed synchronously
type CheckoutResult struct {
	Session subscriptions.CheckoutSession
	Events  []Event
}

// Provider is the external billing system. Implementations return errors
// wrapping ErrConflict when they refuse a transition.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*subscriptions.BillingPortalSession, error)
	UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) (*Subscription, error)
	Cancel(ctx context.Context, sub *Subscription, atPeriodEnd bool) (*Subscription, error)
	Reactivate(ctx context.Context, sub *Subscription) (*Subscription, error)

	// ParseWebhook verifies and translates a webhook delivery. It returns a
	// nil event for deliveries that carry nothing to mirror.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}
