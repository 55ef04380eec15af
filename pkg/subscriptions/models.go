package subscriptions

import (
	"context"
	"sync"

	"github.com/edpsych-connect/connect/pkg/viewmodel"
)

// PlansState is what a PlansModel exposes
type PlansState struct {
	Plans     []SubscriptionPlan
	IsLoading bool
	Err       error
}

// PlansModel holds the plan catalog, fetched once when the model is created
type PlansModel struct {
	state *viewmodel.State[[]SubscriptionPlan]
	ready <-chan struct{}
}

// NewPlansModel creates the model and starts fetching the catalog
func NewPlansModel(ctx context.Context, svc Service) *PlansModel {
	state := viewmodel.New(ctx, []SubscriptionPlan{})
	ready := viewmodel.Start(ctx, state, svc.GetAvailablePlans, replace[[]SubscriptionPlan])
	return &PlansModel{state: state, ready: ready}
}

// Ready is closed once the initial fetch has settled
func (m *PlansModel) Ready() <-chan struct{} { return m.ready }

// Snapshot returns the current state
func (m *PlansModel) Snapshot() PlansState {
	s := m.state.Snapshot()
	return PlansState{Plans: s.Value, IsLoading: s.IsLoading, Err: s.Err}
}

// Subscribe registers fn for state changes
func (m *PlansModel) Subscribe(fn func(PlansState)) (unsubscribe func()) {
	return m.state.Subscribe(func(s viewmodel.Snapshot[[]SubscriptionPlan]) {
		fn(PlansState{Plans: s.Value, IsLoading: s.IsLoading, Err: s.Err})
	})
}

// Close cancels the fetch if it is still running
func (m *PlansModel) Close() { m.state.Close() }

// SubscriptionState is what a SubscriptionModel exposes. Subscription is nil
// when the tenant has none.
type SubscriptionState struct {
	Subscription *SubscriptionDetails
	IsLoading    bool
	Err          error
}

// SubscriptionModel tracks one tenant's subscription. Every mutation replaces
// the cached subscription with the server's copy on success.
type SubscriptionModel struct {
	svc   Service
	state *viewmodel.State[*SubscriptionDetails]
	ready <-chan struct{}

	mu       sync.Mutex
	tenantID string
}

// NewSubscriptionModel creates the model and starts loading tenantID's
// subscription
func NewSubscriptionModel(ctx context.Context, svc Service, tenantID string) *SubscriptionModel {
	m := &SubscriptionModel{
		svc:      svc,
		state:    viewmodel.New[*SubscriptionDetails](ctx, nil),
		tenantID: tenantID,
	}
	m.ready = viewmodel.Start(ctx, m.state, m.fetch(tenantID), replace[*SubscriptionDetails])
	return m
}

// Ready is closed once the initial load has settled
func (m *SubscriptionModel) Ready() <-chan struct{} { return m.ready }

// TenantID returns the tenant the model is bound to
func (m *SubscriptionModel) TenantID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenantID
}

// SetTenant rebinds the model and reloads when the tenant changed
func (m *SubscriptionModel) SetTenant(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	if m.tenantID == tenantID {
		m.mu.Unlock()
		return nil
	}
	m.tenantID = tenantID
	m.mu.Unlock()

	_, err := m.Load(ctx)
	return err
}

func (m *SubscriptionModel) fetch(tenantID string) func(context.Context) (*SubscriptionDetails, error) {
	return func(ctx context.Context) (*SubscriptionDetails, error) {
		return m.svc.GetCurrentSubscription(ctx, tenantID)
	}
}

// Load refetches the current subscription
func (m *SubscriptionModel) Load(ctx context.Context) (*SubscriptionDetails, error) {
	return viewmodel.Run(ctx, m.state, m.fetch(m.TenantID()), replace[*SubscriptionDetails])
}

// CreateCheckout starts a checkout. The cached subscription is unchanged
// until the checkout completes and the model is reloaded.
func (m *SubscriptionModel) CreateCheckout(ctx context.Context, data CreateCheckoutSessionData) (*CheckoutSession, error) {
	tenantID := m.TenantID()
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*CheckoutSession, error) {
		return m.svc.CreateCheckoutSession(ctx, tenantID, data)
	}, nil)
}

// CreateBillingPortal opens the hosted billing portal
func (m *SubscriptionModel) CreateBillingPortal(ctx context.Context) (*BillingPortalSession, error) {
	tenantID := m.TenantID()
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*BillingPortalSession, error) {
		return m.svc.CreateBillingPortalSession(ctx, tenantID)
	}, nil)
}

// UpdateQuantity changes the seat count
func (m *SubscriptionModel) UpdateQuantity(ctx context.Context, quantity int) (*SubscriptionDetails, error) {
	tenantID := m.TenantID()
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*SubscriptionDetails, error) {
		return m.svc.UpdateSubscriptionQuantity(ctx, tenantID, quantity)
	}, replace[*SubscriptionDetails])
}

// Cancel cancels the subscription now or at period end
func (m *SubscriptionModel) Cancel(ctx context.Context, atPeriodEnd bool) (*SubscriptionDetails, error) {
	tenantID := m.TenantID()
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*SubscriptionDetails, error) {
		return m.svc.CancelSubscription(ctx, tenantID, atPeriodEnd)
	}, replace[*SubscriptionDetails])
}

// Reactivate undoes a cancellation
func (m *SubscriptionModel) Reactivate(ctx context.Context) (*SubscriptionDetails, error) {
	tenantID := m.TenantID()
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*SubscriptionDetails, error) {
		return m.svc.ReactivateSubscription(ctx, tenantID)
	}, replace[*SubscriptionDetails])
}

// Snapshot returns the current state
func (m *SubscriptionModel) Snapshot() SubscriptionState {
	s := m.state.Snapshot()
	return SubscriptionState{Subscription: s.Value, IsLoading: s.IsLoading, Err: s.Err}
}

// Subscribe registers fn for state changes
func (m *SubscriptionModel) Subscribe(fn func(SubscriptionState)) (unsubscribe func()) {
	return m.state.Subscribe(func(s viewmodel.Snapshot[*SubscriptionDetails]) {
		fn(SubscriptionState{Subscription: s.Value, IsLoading: s.IsLoading, Err: s.Err})
	})
}

// Close cancels outstanding requests and detaches the model
func (m *SubscriptionModel) Close() { m.state.Close() }

// InvoicesState is what an InvoicesModel exposes
type InvoicesState struct {
	Invoices  []SubscriptionInvoice
	IsLoading bool
	Err       error
}

// InvoicesModel holds one tenant's invoice list
type InvoicesModel struct {
	svc      Service
	tenantID string
	state    *viewmodel.State[[]SubscriptionInvoice]
	ready    <-chan struct{}
}

// NewInvoicesModel creates the model and starts loading the invoice list
func NewInvoicesModel(ctx context.Context, svc Service, tenantID string) *InvoicesModel {
	m := &InvoicesModel{
		svc:      svc,
		tenantID: tenantID,
		state:    viewmodel.New(ctx, []SubscriptionInvoice{}),
	}
	m.ready = viewmodel.Start(ctx, m.state, m.list, replace[[]SubscriptionInvoice])
	return m
}

func (m *InvoicesModel) list(ctx context.Context) ([]SubscriptionInvoice, error) {
	return m.svc.GetInvoices(ctx, m.tenantID)
}

// Ready is closed once the initial load has settled
func (m *InvoicesModel) Ready() <-chan struct{} { return m.ready }

// Load refetches the invoice list
func (m *InvoicesModel) Load(ctx context.Context) ([]SubscriptionInvoice, error) {
	return viewmodel.Run(ctx, m.state, m.list, replace[[]SubscriptionInvoice])
}

// InvoiceDetails fetches one invoice without touching the cached list
func (m *InvoicesModel) InvoiceDetails(ctx context.Context, invoiceID string) (*SubscriptionInvoice, error) {
	return viewmodel.Run(ctx, m.state, func(ctx context.Context) (*SubscriptionInvoice, error) {
		return m.svc.GetInvoice(ctx, m.tenantID, invoiceID)
	}, nil)
}

// Snapshot returns the current state
func (m *InvoicesModel) Snapshot() InvoicesState {
	s := m.state.Snapshot()
	return InvoicesState{Invoices: s.Value, IsLoading: s.IsLoading, Err: s.Err}
}

// Subscribe registers fn for state changes
func (m *InvoicesModel) Subscribe(fn func(InvoicesState)) (unsubscribe func()) {
	return m.state.Subscribe(func(s viewmodel.Snapshot[[]SubscriptionInvoice]) {
		fn(InvoicesState{Invoices: s.Value, IsLoading: s.IsLoading, Err: s.Err})
	})
}

// Close cancels outstanding requests and detaches the model
func (m *InvoicesModel) Close() { m.state.Close() }

func replace[T any](_ T, next T) T { return next }
