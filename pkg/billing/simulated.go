package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

const (
	defaultReactivationWindow = 30 * 24 * time.Hour
	defaultGracePeriod        = 7 * 24 * time.Hour
	simulatedPortalURL        = "https://billing.example.invalid/portal"
)

// SimulatedProvider is an in-process billing provider. Checkouts complete
// immediately and the subscription lifecycle advances only when the clock
// is moved with AdvanceClock. The payment failure and recovery methods
// stand in for the card outcomes a real provider reports.
type SimulatedProvider struct {
	mu                 sync.Mutex
	base               func() time.Time
	offset             time.Duration
	trialPeriod        time.Duration
	reactivationWindow time.Duration
	gracePeriod        time.Duration
	webhookSecret      string
	portalURL          string
	invoiceSeq         int
	subs               map[string]*simulatedSubscription
}

type simulatedSubscription struct {
	sub          Subscription
	price        subscriptions.PlanPrice
	canceledAt   time.Time
	pastDueSince time.Time
	// trialDeclined makes the end of the trial leave the subscription
	// incomplete instead of active
	trialDeclined bool
}

// SimulatedOption configures a SimulatedProvider
type SimulatedOption func(*SimulatedProvider)

// WithSimulatedClock sets the wall clock AdvanceClock offsets from
func WithSimulatedClock(now func() time.Time) SimulatedOption {
	return func(p *SimulatedProvider) { p.base = now }
}

// WithTrialPeriod starts new subscriptions in trialing for d
func WithTrialPeriod(d time.Duration) SimulatedOption {
	return func(p *SimulatedProvider) { p.trialPeriod = d }
}

// WithReactivationWindow sets how long after an immediate cancellation the
// subscription may still be reactivated
func WithReactivationWindow(d time.Duration) SimulatedOption {
	return func(p *SimulatedProvider) { p.reactivationWindow = d }
}

// WithGracePeriod sets how long a past_due subscription survives
func WithGracePeriod(d time.Duration) SimulatedOption {
	return func(p *SimulatedProvider) { p.gracePeriod = d }
}

// WithSimulatedWebhookSecret requires webhook payloads to carry a hex
// HMAC-SHA256 signature under secret
func WithSimulatedWebhookSecret(secret string) SimulatedOption {
	return func(p *SimulatedProvider) { p.webhookSecret = secret }
}

// NewSimulatedProvider creates a SimulatedProvider
func NewSimulatedProvider(opts ...SimulatedOption) *SimulatedProvider {
	p := &SimulatedProvider{
		base:               time.Now,
		reactivationWindow: defaultReactivationWindow,
		gracePeriod:        defaultGracePeriod,
		portalURL:          simulatedPortalURL,
		subs:               make(map[string]*simulatedSubscription),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SimulatedProvider) Name() string { return "simulated" }

// Now returns the provider's current time including any advanced offset
func (p *SimulatedProvider) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now()
}

func (p *SimulatedProvider) now() time.Time {
	return p.base().Add(p.offset).UTC()
}

func (p *SimulatedProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	customerID := req.CustomerID
	if customerID == "" {
		customerID = "cus_sim_" + shortID()
	}

	sub := Subscription{
		TenantID:             req.TenantID,
		PlanID:               req.Plan.ID,
		Tier:                 req.Plan.Tier,
		Status:               subscriptions.StatusActive,
		BillingInterval:      req.Interval,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.AddDate(0, req.Interval.Months(), 0),
		Quantity:             req.Quantity,
		StripeSubscriptionID: "sub_sim_" + shortID(),
		StripeCustomerID:     customerID,
	}
	if p.trialPeriod > 0 {
		trialEnd := now.Add(p.trialPeriod)
		sub.Status = subscriptions.StatusTrialing
		sub.TrialEnd = &trialEnd
	}

	state := &simulatedSubscription{sub: sub, price: req.Price}
	p.subs[sub.StripeSubscriptionID] = state

	events := []Event{p.subscriptionEvent(state)}
	if sub.Status == subscriptions.StatusActive {
		events = append(events, p.invoiceEvent(state, subscriptions.InvoicePaid, now))
	}

	sessionID := "cs_sim_" + shortID()
	return &CheckoutResult{
		Session: subscriptions.CheckoutSession{
			CheckoutURL: withQuery(req.SuccessURL, "session_id", sessionID),
			SessionID:   sessionID,
		},
		Events: events,
	}, nil
}

func (p *SimulatedProvider) CreateBillingPortalSession(_ context.Context, customerID, returnURL string) (*subscriptions.BillingPortalSession, error) {
	if customerID == "" {
		return nil, fmt.Errorf("billing customer %w", ErrNotFound)
	}
	u := withQuery(p.portalURL, "customer", customerID)
	if returnURL != "" {
		u = withQuery(u, "return_url", returnURL)
	}
	return &subscriptions.BillingPortalSession{PortalURL: u}, nil
}

func (p *SimulatedProvider) UpdateQuantity(_ context.Context, sub *Subscription, quantity int) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.lookup(sub)
	if state.sub.Status == subscriptions.StatusCanceled {
		return nil, fmt.Errorf("%w: subscription is canceled", ErrConflict)
	}
	state.sub.Quantity = quantity
	return cloneSubscription(&state.sub), nil
}

func (p *SimulatedProvider) Cancel(_ context.Context, sub *Subscription, atPeriodEnd bool) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.lookup(sub)
	if state.sub.Status == subscriptions.StatusCanceled {
		return nil, fmt.Errorf("%w: subscription is already canceled", ErrConflict)
	}

	if atPeriodEnd {
		state.sub.CancelAtPeriodEnd = true
	} else {
		state.sub.Status = subscriptions.StatusCanceled
		state.sub.CancelAtPeriodEnd = false
		state.canceledAt = p.now()
	}
	return cloneSubscription(&state.sub), nil
}

// Reactivate clears a pending cancellation, or restarts a subscription that
// was canceled immediately within the reactivation window
func (p *SimulatedProvider) Reactivate(_ context.Context, sub *Subscription) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.lookup(sub)
	now := p.now()

	switch {
	case state.sub.Status == subscriptions.StatusCanceled:
		if state.canceledAt.IsZero() || now.Sub(state.canceledAt) > p.reactivationWindow {
			return nil, fmt.Errorf("%w: subscription can no longer be reactivated", ErrConflict)
		}
		state.sub.Status = subscriptions.StatusActive
		state.sub.CurrentPeriodStart = now
		state.sub.CurrentPeriodEnd = now.AddDate(0, state.sub.BillingInterval.Months(), 0)
		state.canceledAt = time.Time{}
	case state.sub.CancelAtPeriodEnd:
		state.sub.CancelAtPeriodEnd = false
	default:
		return nil, fmt.Errorf("%w: subscription is not scheduled for cancellation", ErrConflict)
	}
	return cloneSubscription(&state.sub), nil
}

// FailPayment moves an active subscription to past_due and issues an open
// invoice, as a declined renewal would
func (p *SimulatedProvider) FailPayment(providerSubscriptionID string) ([]Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.subs[providerSubscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s %w", providerSubscriptionID, ErrNotFound)
	}
	if state.sub.Status != subscriptions.StatusActive {
		return nil, fmt.Errorf("%w: subscription is %s", ErrConflict, state.sub.Status)
	}

	now := p.now()
	state.sub.Status = subscriptions.StatusPastDue
	state.pastDueSince = now
	return []Event{
		p.subscriptionEvent(state),
		p.invoiceEvent(state, subscriptions.InvoiceOpen, now),
	}, nil
}

// FailTrialPayment declines the payment due when a trialing subscription's
// trial ends, so it becomes incomplete with an open invoice instead of
// active
func (p *SimulatedProvider) FailTrialPayment(providerSubscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.subs[providerSubscriptionID]
	if !ok {
		return fmt.Errorf("subscription %s %w", providerSubscriptionID, ErrNotFound)
	}
	if state.sub.Status != subscriptions.StatusTrialing {
		return fmt.Errorf("%w: subscription is %s", ErrConflict, state.sub.Status)
	}
	state.trialDeclined = true
	return nil
}

// RecoverPayment settles the outstanding payment of a past_due or
// incomplete subscription, making it active and issuing a paid invoice
func (p *SimulatedProvider) RecoverPayment(providerSubscriptionID string) ([]Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.subs[providerSubscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s %w", providerSubscriptionID, ErrNotFound)
	}
	switch state.sub.Status {
	case subscriptions.StatusPastDue, subscriptions.StatusIncomplete:
	default:
		return nil, fmt.Errorf("%w: subscription is %s", ErrConflict, state.sub.Status)
	}

	now := p.now()
	state.sub.Status = subscriptions.StatusActive
	state.pastDueSince = time.Time{}
	state.trialDeclined = false
	return []Event{
		p.subscriptionEvent(state),
		p.invoiceEvent(state, subscriptions.InvoicePaid, now),
	}, nil
}

// AdvanceClock moves the provider clock forward by d and returns the events
// for every transition that became due
func (p *SimulatedProvider) AdvanceClock(d time.Duration) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d > 0 {
		p.offset += d
	}
	now := p.now()

	ids := make([]string, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []Event
	for _, id := range ids {
		events = append(events, p.advance(p.subs[id], now)...)
	}
	return events
}

func (p *SimulatedProvider) advance(state *simulatedSubscription, now time.Time) []Event {
	sub := &state.sub
	var events []Event
	changed := false

	if sub.Status == subscriptions.StatusTrialing && sub.TrialEnd != nil && !now.Before(*sub.TrialEnd) {
		if state.trialDeclined {
			sub.Status = subscriptions.StatusIncomplete
			events = append(events, p.invoiceEvent(state, subscriptions.InvoiceOpen, *sub.TrialEnd))
		} else {
			sub.Status = subscriptions.StatusActive
			events = append(events, p.invoiceEvent(state, subscriptions.InvoicePaid, *sub.TrialEnd))
		}
		changed = true
	}

	if sub.Status == subscriptions.StatusPastDue && now.Sub(state.pastDueSince) >= p.gracePeriod {
		sub.Status = subscriptions.StatusCanceled
		state.canceledAt = now
		changed = true
	}

	for sub.Status != subscriptions.StatusCanceled && !now.Before(sub.CurrentPeriodEnd) {
		if sub.CancelAtPeriodEnd {
			sub.Status = subscriptions.StatusCanceled
			sub.CancelAtPeriodEnd = false
			state.canceledAt = sub.CurrentPeriodEnd
			changed = true
			break
		}
		// an incomplete subscription stays on its period until paid
		if sub.Status == subscriptions.StatusIncomplete {
			break
		}
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = sub.CurrentPeriodStart.AddDate(0, sub.BillingInterval.Months(), 0)
		status := subscriptions.InvoicePaid
		if sub.Status == subscriptions.StatusPastDue {
			status = subscriptions.InvoiceOpen
		}
		events = append(events, p.invoiceEvent(state, status, sub.CurrentPeriodStart))
		changed = true
	}

	if !changed {
		return nil
	}
	return append([]Event{p.subscriptionEvent(state)}, events...)
}

// ParseWebhook decodes a simulated delivery. Payloads are JSON with the
// fields of Event; when a secret is configured the signature must be the
// hex HMAC-SHA256 of the payload.
func (p *SimulatedProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	if p.webhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(p.webhookSecret))
		mac.Write(payload)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
			return nil, fmt.Errorf("webhook signature verification failed")
		}
	}

	var delivery struct {
		ID           string        `json:"id"`
		Type         EventType     `json:"type"`
		TenantID     string        `json:"tenantId"`
		CustomerID   string        `json:"customerId"`
		Subscription *Subscription `json:"subscription"`
		Invoice      *Invoice      `json:"invoice"`
	}
	if err := json.Unmarshal(payload, &delivery); err != nil {
		return nil, fmt.Errorf("failed to parse webhook: %w", err)
	}

	switch delivery.Type {
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		if delivery.Subscription == nil {
			return nil, fmt.Errorf("webhook %s has no subscription", delivery.Type)
		}
	case EventInvoiceUpdated:
		if delivery.Invoice == nil {
			return nil, fmt.Errorf("webhook %s has no invoice", delivery.Type)
		}
	default:
		return nil, nil
	}

	return &Event{
		ID:           delivery.ID,
		Type:         delivery.Type,
		TenantID:     delivery.TenantID,
		CustomerID:   delivery.CustomerID,
		Subscription: delivery.Subscription,
		Invoice:      delivery.Invoice,
	}, nil
}

// lookup returns the provider state for sub, adopting records the provider
// has not seen (for example after a restart with a persistent store)
func (p *SimulatedProvider) lookup(sub *Subscription) *simulatedSubscription {
	if state, ok := p.subs[sub.StripeSubscriptionID]; ok && sub.StripeSubscriptionID != "" {
		return state
	}
	adopted := *cloneSubscription(sub)
	if adopted.StripeSubscriptionID == "" {
		adopted.StripeSubscriptionID = "sub_sim_" + shortID()
	}
	state := &simulatedSubscription{sub: adopted}
	p.subs[adopted.StripeSubscriptionID] = state
	return state
}

func (p *SimulatedProvider) subscriptionEvent(state *simulatedSubscription) Event {
	typ := EventSubscriptionUpdated
	if state.sub.Status == subscriptions.StatusCanceled {
		typ = EventSubscriptionDeleted
	}
	return Event{
		ID:           "evt_sim_" + shortID(),
		Type:         typ,
		TenantID:     state.sub.TenantID,
		CustomerID:   state.sub.StripeCustomerID,
		Subscription: cloneSubscription(&state.sub),
	}
}

func (p *SimulatedProvider) invoiceEvent(state *simulatedSubscription, status subscriptions.InvoiceStatus, at time.Time) Event {
	p.invoiceSeq++
	inv := &Invoice{
		ID:        "in_sim_" + shortID(),
		Number:    fmt.Sprintf("SIM-%06d", p.invoiceSeq),
		Amount:    state.price.Amount * int64(state.sub.Quantity),
		Currency:  state.price.Currency,
		Status:    status,
		CreatedAt: at,
	}
	if status == subscriptions.InvoicePaid {
		paidAt := at
		inv.PaidAt = &paidAt
	} else {
		due := at.Add(p.gracePeriod)
		inv.DueDate = &due
	}
	return Event{
		ID:         "evt_sim_" + shortID(),
		Type:       EventInvoiceUpdated,
		TenantID:   state.sub.TenantID,
		CustomerID: state.sub.StripeCustomerID,
		Invoice:    inv,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
