package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

// Metadata keys written on Stripe subscriptions at checkout
const (
	metadataTenantID = "tenant_id"
	metadataPlanID   = "plan_id"
	metadataTier     = "tier"
	metadataInterval = "billing_interval"
)

// StripeProvider implements Provider on the Stripe API
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a StripeProvider talking to the public Stripe API
func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	return NewStripeProviderWithBackends(apiKey, webhookSecret, nil)
}

// NewStripeProviderWithBackends creates a StripeProvider on explicit
// backends, for stripe-mock or tests. nil uses the default backends.
func NewStripeProviderWithBackends(apiKey, webhookSecret string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{
		api:           client.New(apiKey, backends),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.Price.PriceID == "" {
		return nil, fmt.Errorf("plan %s has no stripe price for %s billing", req.Plan.ID, req.Interval)
	}

	metadata := map[string]string{
		metadataTenantID: req.TenantID,
		metadataPlanID:   req.Plan.ID,
		metadataTier:     string(req.Plan.Tier),
		metadataInterval: string(req.Interval),
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.Price.PriceID),
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.TenantID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutResult{
		Session: subscriptions.CheckoutSession{
			CheckoutURL: session.URL,
			SessionID:   session.ID,
		},
	}, nil
}

func (p *StripeProvider) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*subscriptions.BillingPortalSession, error) {
	if customerID == "" {
		return nil, fmt.Errorf("billing customer %w", ErrNotFound)
	}

	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	session, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing portal session: %w", err)
	}
	return &subscriptions.BillingPortalSession{PortalURL: session.URL}, nil
}

func (p *StripeProvider) UpdateQuantity(ctx context.Context, sub *Subscription, quantity int) (*Subscription, error) {
	current, err := p.fetch(ctx, sub)
	if err != nil {
		return nil, err
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe subscription %s has no items", current.ID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(current.Items.Data[0].ID),
				Quantity: stripe.Int64(int64(quantity)),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx

	updated, err := p.api.Subscriptions.Update(current.ID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription quantity: %w", err)
	}
	return mergeStripeSubscription(sub, updated), nil
}

func (p *StripeProvider) Cancel(ctx context.Context, sub *Subscription, atPeriodEnd bool) (*Subscription, error) {
	if sub.StripeSubscriptionID == "" {
		return nil, fmt.Errorf("subscription has no stripe id")
	}

	var (
		updated *stripe.Subscription
		err     error
	)
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		updated, err = p.api.Subscriptions.Update(sub.StripeSubscriptionID, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		updated, err = p.api.Subscriptions.Cancel(sub.StripeSubscriptionID, params)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return mergeStripeSubscription(sub, updated), nil
}

// Reactivate clears cancel_at_period_end. Stripe cannot restart a
// subscription that has already ended.
func (p *StripeProvider) Reactivate(ctx context.Context, sub *Subscription) (*Subscription, error) {
	current, err := p.fetch(ctx, sub)
	if err != nil {
		return nil, err
	}
	if current.Status == stripe.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: subscription has ended and can no longer be reactivated", ErrConflict)
	}
	if !current.CancelAtPeriodEnd {
		return nil, fmt.Errorf("%w: subscription is not scheduled for cancellation", ErrConflict)
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.Context = ctx
	updated, err := p.api.Subscriptions.Update(current.ID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
	}
	return mergeStripeSubscription(sub, updated), nil
}

// ParseWebhook verifies the Stripe-Signature header and translates
// subscription and invoice events
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %w", event.Type, err)
		}
		mapped := mergeStripeSubscription(nil, &sub)
		typ := EventSubscriptionUpdated
		if event.Type == "customer.subscription.deleted" {
			typ = EventSubscriptionDeleted
			mapped.Status = subscriptions.StatusCanceled
		}
		return &Event{
			ID:           event.ID,
			Type:         typ,
			TenantID:     mapped.TenantID,
			CustomerID:   mapped.StripeCustomerID,
			Subscription: mapped,
		}, nil

	case "invoice.created", "invoice.finalized", "invoice.paid", "invoice.payment_failed",
		"invoice.voided", "invoice.marked_uncollectible":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %w", event.Type, err)
		}
		ev := &Event{
			ID:      event.ID,
			Type:    EventInvoiceUpdated,
			Invoice: invoiceFromStripe(&inv),
		}
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
		return ev, nil
	}

	return nil, nil
}

func (p *StripeProvider) fetch(ctx context.Context, sub *Subscription) (*stripe.Subscription, error) {
	if sub.StripeSubscriptionID == "" {
		return nil, fmt.Errorf("subscription has no stripe id")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	current, err := p.api.Subscriptions.Get(sub.StripeSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe subscription: %w", err)
	}
	return current, nil
}

// mergeStripeSubscription overlays Stripe's view onto base. Fields Stripe
// does not know about (our record id) are kept from base.
func mergeStripeSubscription(base *Subscription, s *stripe.Subscription) *Subscription {
	out := &Subscription{}
	if base != nil {
		out = cloneSubscription(base)
	}

	out.StripeSubscriptionID = s.ID
	if s.Customer != nil && s.Customer.ID != "" {
		out.StripeCustomerID = s.Customer.ID
	}
	if v := s.Metadata[metadataTenantID]; v != "" {
		out.TenantID = v
	}
	if v := s.Metadata[metadataPlanID]; v != "" {
		out.PlanID = v
	}
	if v := s.Metadata[metadataTier]; v != "" {
		out.Tier = subscriptions.PlanTier(v)
	}
	if v := s.Metadata[metadataInterval]; v != "" {
		out.BillingInterval = subscriptions.BillingInterval(v)
	}
	if s.Status != "" {
		out.Status = statusFromStripe(s.Status)
	}
	out.CancelAtPeriodEnd = s.CancelAtPeriodEnd
	if s.TrialEnd > 0 {
		t := time.Unix(s.TrialEnd, 0).UTC()
		out.TrialEnd = &t
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Quantity > 0 {
			out.Quantity = int(item.Quantity)
		}
		if item.CurrentPeriodStart > 0 {
			out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return out
}

func statusFromStripe(status stripe.SubscriptionStatus) subscriptions.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return subscriptions.StatusActive
	case stripe.SubscriptionStatusTrialing:
		return subscriptions.StatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return subscriptions.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return subscriptions.StatusCanceled
	default:
		return subscriptions.StatusIncomplete
	}
}

func invoiceFromStripe(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:        inv.ID,
		Number:    inv.Number,
		Amount:    inv.AmountDue,
		Currency:  string(inv.Currency),
		Status:    subscriptions.InvoiceStatus(inv.Status),
		CreatedAt: time.Unix(inv.Created, 0).UTC(),
		PDFURL:    inv.InvoicePDF,
	}
	if out.Number == "" {
		out.Number = inv.ID
	}
	if inv.DueDate > 0 {
		t := time.Unix(inv.DueDate, 0).UTC()
		out.DueDate = &t
	}
	if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		t := time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
		out.PaidAt = &t
	}
	return out
}
