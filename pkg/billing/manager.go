package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/subscriptions"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// Manager implements the subscription endpoints: it validates requests,
// drives the provider and mirrors the resulting state into the store.
type Manager struct {
	store           Store
	provider        Provider
	catalog         *Catalog
	metrics         *observability.Metrics
	logger          *observability.Logger
	tracer          trace.Tracer
	portalReturnURL string
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithMetrics records checkout and lifecycle counters
func WithMetrics(m *observability.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger sets the manager logger
func WithLogger(l *observability.Logger) ManagerOption {
	return func(mgr *Manager) { mgr.logger = l }
}

// WithTracer traces provider-backed operations with t instead of the global
// tracer provider
func WithTracer(t trace.Tracer) ManagerOption {
	return func(mgr *Manager) { mgr.tracer = t }
}

// WithPortalReturnURL sets where the billing portal sends users back to
func WithPortalReturnURL(u string) ManagerOption {
	return func(mgr *Manager) { mgr.portalReturnURL = u }
}

// NewManager creates a Manager
func NewManager(store Store, provider Provider, catalog *Catalog, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		provider: provider,
		catalog:  catalog,
		logger:   observability.NopLogger(),
		tracer:   observability.Tracer("billing"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the billing provider in use
func (m *Manager) Provider() Provider {
	return m.provider
}

// ListPlans returns the plan catalog
func (m *Manager) ListPlans(ctx context.Context) ([]Plan, error) {
	return m.catalog.List(ctx)
}

// GetPlan returns one plan
func (m *Manager) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	return m.catalog.Get(ctx, planID)
}

// CurrentSubscription returns the tenant's subscription record
func (m *Manager) CurrentSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	return m.store.GetSubscription(ctx, tenantID)
}

// CreateCheckoutSession starts a checkout for a tenant without a live
// subscription
func (m *Manager) CreateCheckoutSession(ctx context.Context, tenantID string, data subscriptions.CreateCheckoutSessionData) (_ *subscriptions.CheckoutSession, err error) {
	ctx, span := m.startSpan(ctx, "CreateCheckoutSession", tenantID)
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(data); err != nil {
		return nil, err
	}

	plan, err := m.catalog.Get(ctx, data.PlanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fieldError("planId", "exists", "must name a plan in the catalog")
		}
		return nil, err
	}
	price, ok := plan.Pricing[data.BillingInterval]
	if !ok {
		return nil, fieldError("billingInterval", "offered", fmt.Sprintf("plan %s is not offered %s", plan.ID, data.BillingInterval))
	}
	if err := checkSeats(plan, data.Quantity); err != nil {
		return nil, err
	}

	var customerID string
	existing, err := m.store.GetSubscription(ctx, tenantID)
	switch {
	case err == nil && existing.IsLive():
		m.countChange("checkout", "conflict")
		return nil, fmt.Errorf("%w: tenant already has an active subscription", ErrConflict)
	case err == nil:
		customerID = existing.StripeCustomerID
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	result, err := m.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		TenantID:   tenantID,
		Plan:       *plan,
		Interval:   data.BillingInterval,
		Price:      price,
		Quantity:   data.Quantity,
		SuccessURL: data.SuccessURL,
		CancelURL:  data.CancelURL,
		CustomerID: customerID,
	})
	if err != nil {
		m.countChange("checkout", "error")
		return nil, err
	}

	for _, ev := range result.Events {
		if err := m.ApplyEvent(ctx, ev); err != nil {
			return nil, err
		}
	}

	if m.metrics != nil {
		m.metrics.CheckoutSessionsTotal.WithLabelValues(plan.ID, string(data.BillingInterval)).Inc()
	}
	observability.UpdateLoggerWithTraceContext(ctx, m.logger).WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"plan_id":   plan.ID,
		"interval":  data.BillingInterval,
		"quantity":  data.Quantity,
	}).Info("Checkout session created")

	session := result.Session
	return &session, nil
}

// CreateBillingPortalSession opens the provider's billing portal for the
// tenant's billing customer
func (m *Manager) CreateBillingPortalSession(ctx context.Context, tenantID string) (*subscriptions.BillingPortalSession, error) {
	sub, err := m.store.GetSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.StripeCustomerID == "" {
		return nil, fmt.Errorf("billing customer %w", ErrNotFound)
	}
	return m.provider.CreateBillingPortalSession(ctx, sub.StripeCustomerID, m.portalReturnURL)
}

// UpdateQuantity changes the seat count of a live subscription
func (m *Manager) UpdateQuantity(ctx context.Context, tenantID string, quantity int) (_ *Subscription, err error) {
	ctx, span := m.startSpan(ctx, "UpdateQuantity", tenantID)
	defer func() { endSpan(span, err) }()

	if err := validation.Struct(subscriptions.UpdateQuantityRequest{Quantity: quantity}); err != nil {
		return nil, err
	}

	sub, err := m.liveSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if plan, err := m.catalog.Get(ctx, sub.PlanID); err == nil {
		if err := checkSeats(plan, quantity); err != nil {
			return nil, err
		}
	}

	updated, err := m.provider.UpdateQuantity(ctx, sub, quantity)
	return m.finishChange(ctx, "quantity", sub, updated, err)
}

// Cancel cancels immediately or at the end of the current period
func (m *Manager) Cancel(ctx context.Context, tenantID string, atPeriodEnd bool) (_ *Subscription, err error) {
	ctx, span := m.startSpan(ctx, "Cancel", tenantID)
	defer func() { endSpan(span, err) }()

	sub, err := m.liveSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if atPeriodEnd && sub.CancelAtPeriodEnd {
		m.countChange("cancel", "conflict")
		return nil, fmt.Errorf("%w: subscription is already scheduled for cancellation", ErrConflict)
	}

	updated, err := m.provider.Cancel(ctx, sub, atPeriodEnd)
	return m.finishChange(ctx, "cancel", sub, updated, err)
}

// Reactivate undoes a cancellation when the provider allows it
func (m *Manager) Reactivate(ctx context.Context, tenantID string) (_ *Subscription, err error) {
	ctx, span := m.startSpan(ctx, "Reactivate", tenantID)
	defer func() { endSpan(span, err) }()

	sub, err := m.store.GetSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub.IsLive() && !sub.CancelAtPeriodEnd {
		m.countChange("reactivate", "conflict")
		return nil, fmt.Errorf("%w: subscription is not cancelled", ErrConflict)
	}

	updated, err := m.provider.Reactivate(ctx, sub)
	return m.finishChange(ctx, "reactivate", sub, updated, err)
}

// ListInvoices returns the tenant's invoices, newest first
func (m *Manager) ListInvoices(ctx context.Context, tenantID string) ([]Invoice, error) {
	return m.store.ListInvoices(ctx, tenantID)
}

// GetInvoice returns one of the tenant's invoices
func (m *Manager) GetInvoice(ctx context.Context, tenantID, invoiceID string) (*Invoice, error) {
	return m.store.GetInvoice(ctx, tenantID, invoiceID)
}

// HandleWebhook verifies a provider delivery and mirrors it
func (m *Manager) HandleWebhook(ctx context.Context, payload []byte, signature string) (err error) {
	ctx, span := m.tracer.Start(ctx, "billing.HandleWebhook")
	defer func() { endSpan(span, err) }()

	ev, err := m.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		m.countWebhook("unknown", "rejected")
		return fmt.Errorf("%w: %v", errInvalidWebhook, err)
	}
	if ev == nil {
		m.countWebhook("unknown", "ignored")
		return nil
	}

	if err := m.ApplyEvent(ctx, *ev); err != nil {
		m.countWebhook(string(ev.Type), "error")
		return err
	}
	m.countWebhook(string(ev.Type), "applied")
	return nil
}

// ApplyEvents mirrors a batch of provider events, stopping at the first
// failure
func (m *Manager) ApplyEvents(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if err := m.ApplyEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEvent mirrors one provider event into the store
func (m *Manager) ApplyEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return fmt.Errorf("event %s has no subscription", ev.ID)
		}
		incoming := cloneSubscription(ev.Subscription)
		if ev.Type == EventSubscriptionDeleted {
			incoming.Status = subscriptions.StatusCanceled
		}
		if incoming.TenantID == "" {
			incoming.TenantID = ev.TenantID
		}
		if incoming.TenantID == "" && ev.CustomerID != "" {
			owner, err := m.store.GetSubscriptionByCustomer(ctx, ev.CustomerID)
			if err != nil {
				return fmt.Errorf("failed to resolve tenant for event %s: %w", ev.ID, err)
			}
			incoming.TenantID = owner.TenantID
		}
		if incoming.TenantID == "" {
			return fmt.Errorf("event %s names no tenant", ev.ID)
		}

		// Keep our record id when the provider subscription is the same one
		if current, err := m.store.GetSubscription(ctx, incoming.TenantID); err == nil {
			if incoming.StripeSubscriptionID != "" && current.StripeSubscriptionID == incoming.StripeSubscriptionID {
				incoming.ID = current.ID
			} else if current.IsLive() && !incoming.IsLive() {
				// a late cancellation of an older subscription
				m.logger.Warnf("Ignoring %s event %s for superseded subscription %s",
					ev.Type, ev.ID, incoming.StripeSubscriptionID)
				return nil
			}
		}
		if incoming.Tier == "" && incoming.PlanID != "" {
			if plan, err := m.catalog.Get(ctx, incoming.PlanID); err == nil {
				incoming.Tier = plan.Tier
			}
		}
		if err := m.store.SaveSubscription(ctx, incoming); err != nil {
			return err
		}
		m.logger.Debugf("Applied %s event %s: tenant %s is %s", ev.Type, ev.ID, incoming.TenantID, incoming.Status)
		return nil

	case EventInvoiceUpdated:
		if ev.Invoice == nil {
			return fmt.Errorf("event %s has no invoice", ev.ID)
		}
		tenantID := ev.TenantID
		if tenantID == "" {
			owner, err := m.store.GetSubscriptionByCustomer(ctx, ev.CustomerID)
			if err != nil {
				return fmt.Errorf("failed to resolve tenant for event %s: %w", ev.ID, err)
			}
			tenantID = owner.TenantID
		}
		return m.store.SaveInvoice(ctx, tenantID, ev.Invoice)
	}

	return fmt.Errorf("unknown event type %q", ev.Type)
}

func (m *Manager) liveSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	sub, err := m.store.GetSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !sub.IsLive() {
		return nil, fmt.Errorf("%w: subscription is canceled", ErrConflict)
	}
	return sub, nil
}

func (m *Manager) finishChange(ctx context.Context, action string, before, updated *Subscription, err error) (*Subscription, error) {
	if err != nil {
		status := "error"
		if errors.Is(err, ErrConflict) {
			status = "conflict"
		}
		m.countChange(action, status)
		return nil, err
	}

	updated.ID = before.ID
	updated.TenantID = before.TenantID
	if err := m.store.SaveSubscription(ctx, updated); err != nil {
		m.countChange(action, "error")
		return nil, err
	}

	m.countChange(action, "success")
	observability.UpdateLoggerWithTraceContext(ctx, m.logger).WithFields(map[string]interface{}{
		"tenant_id": updated.TenantID,
		"action":    action,
		"status":    updated.Status,
	}).Info("Subscription updated")
	return updated, nil
}

func (m *Manager) startSpan(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "billing."+name,
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
}

// endSpan closes span, marking it failed when err is set
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (m *Manager) countChange(action, status string) {
	if m.metrics != nil {
		m.metrics.SubscriptionChangesTotal.WithLabelValues(action, status).Inc()
	}
}

func (m *Manager) countWebhook(typ, status string) {
	if m.metrics != nil {
		m.metrics.WebhookEventsTotal.WithLabelValues(typ, status).Inc()
	}
}

var errInvalidWebhook = errors.New("invalid webhook")

// IsInvalidWebhook reports whether err came from a delivery that failed
// verification or parsing
func IsInvalidWebhook(err error) bool {
	return errors.Is(err, errInvalidWebhook)
}

func checkSeats(plan *Plan, quantity int) error {
	if plan.MaxSeats != nil && quantity > *plan.MaxSeats {
		return fieldError("quantity", "max", "must be at most "+strconv.Itoa(*plan.MaxSeats)+" for the "+plan.Name+" plan")
	}
	return nil
}

func fieldError(field, rule, message string) error {
	return &validation.Error{Fields: []validation.FieldError{{Field: field, Rule: rule, Message: message}}}
}
