package subscriptions

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/edpsych-connect/connect/pkg/apiclient"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// DefaultBasePath is where the subscription namespace is mounted
const DefaultBasePath = "/api/subscriptions"

// Service is the subscription lifecycle as seen by a client
type Service interface {
	GetAvailablePlans(ctx context.Context) ([]SubscriptionPlan, error)
	GetPlan(ctx context.Context, planID string) (*SubscriptionPlan, error)
	GetCurrentSubscription(ctx context.Context, tenantID string) (*SubscriptionDetails, error)
	UpdateSubscriptionQuantity(ctx context.Context, tenantID string, quantity int) (*SubscriptionDetails, error)
	CancelSubscription(ctx context.Context, tenantID string, atPeriodEnd bool) (*SubscriptionDetails, error)
	ReactivateSubscription(ctx context.Context, tenantID string) (*SubscriptionDetails, error)
	CreateCheckoutSession(ctx context.Context, tenantID string, data CreateCheckoutSessionData) (*CheckoutSession, error)
	CreateBillingPortalSession(ctx context.Context, tenantID string) (*BillingPortalSession, error)
	GetInvoices(ctx context.Context, tenantID string) ([]SubscriptionInvoice, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (*SubscriptionInvoice, error)
}

// Client implements Service over HTTP
type Client struct {
	api      *apiclient.Client
	basePath string
}

var _ Service = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBasePath mounts the client on a different namespace
func WithBasePath(path string) ClientOption {
	return func(c *Client) {
		c.basePath = "/" + strings.Trim(path, "/")
	}
}

// NewClient creates a subscription client
func NewClient(api *apiclient.Client, opts ...ClientOption) *Client {
	c := &Client{
		api:      api,
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) path(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.basePath)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *Client) tenantPath(tenantID string, segments ...string) string {
	return c.path(append([]string{"tenants", tenantID}, segments...)...)
}

// GetAvailablePlans lists the plan catalog
func (c *Client) GetAvailablePlans(ctx context.Context) ([]SubscriptionPlan, error) {
	var plans []SubscriptionPlan
	if err := c.api.Do(ctx, http.MethodGet, c.path("plans"), nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlan fetches one plan. An unknown plan is a 404 *apiclient.Error.
func (c *Client) GetPlan(ctx context.Context, planID string) (*SubscriptionPlan, error) {
	var plan SubscriptionPlan
	if err := c.api.Do(ctx, http.MethodGet, c.path("plans", planID), nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetCurrentSubscription returns the tenant's subscription, or nil when the
// server answers 404. Not-found is detected from the HTTP status alone; the
// error message text is never inspected.
func (c *Client) GetCurrentSubscription(ctx context.Context, tenantID string) (*SubscriptionDetails, error) {
	var sub SubscriptionDetails
	if err := c.api.Do(ctx, http.MethodGet, c.tenantPath(tenantID, "subscription"), nil, &sub); err != nil {
		if apiclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscriptionQuantity changes the seat count
func (c *Client) UpdateSubscriptionQuantity(ctx context.Context, tenantID string, quantity int) (*SubscriptionDetails, error) {
	body := UpdateQuantityRequest{Quantity: quantity}
	if err := validation.Struct(body); err != nil {
		return nil, err
	}
	return c.mutate(ctx, http.MethodPut, c.tenantPath(tenantID, "subscription", "quantity"), body)
}

// CancelSubscription cancels now or at the end of the current period
func (c *Client) CancelSubscription(ctx context.Context, tenantID string, atPeriodEnd bool) (*SubscriptionDetails, error) {
	return c.mutate(ctx, http.MethodPost, c.tenantPath(tenantID, "subscription", "cancel"), CancelRequest{AtPeriodEnd: atPeriodEnd})
}

// ReactivateSubscription undoes a pending or recent cancellation
func (c *Client) ReactivateSubscription(ctx context.Context, tenantID string) (*SubscriptionDetails, error) {
	return c.mutate(ctx, http.MethodPost, c.tenantPath(tenantID, "subscription", "reactivate"), nil)
}

func (c *Client) mutate(ctx context.Context, method, path string, body interface{}) (*SubscriptionDetails, error) {
	var sub SubscriptionDetails
	if err := c.api.Do(ctx, method, path, body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateCheckoutSession validates data and starts a hosted checkout
func (c *Client) CreateCheckoutSession(ctx context.Context, tenantID string, data CreateCheckoutSessionData) (*CheckoutSession, error) {
	if err := validation.Struct(data); err != nil {
		return nil, err
	}

	var session CheckoutSession
	if err := c.api.Do(ctx, http.MethodPost, c.tenantPath(tenantID, "checkout"), data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateBillingPortalSession opens the hosted billing portal
func (c *Client) CreateBillingPortalSession(ctx context.Context, tenantID string) (*BillingPortalSession, error) {
	var session BillingPortalSession
	if err := c.api.Do(ctx, http.MethodPost, c.tenantPath(tenantID, "billing-portal"), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetInvoices lists the tenant's invoices
func (c *Client) GetInvoices(ctx context.Context, tenantID string) ([]SubscriptionInvoice, error) {
	var invoices []SubscriptionInvoice
	if err := c.api.Do(ctx, http.MethodGet, c.tenantPath(tenantID, "invoices"), nil, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// GetInvoice fetches one invoice
func (c *Client) GetInvoice(ctx context.Context, tenantID, invoiceID string) (*SubscriptionInvoice, error) {
	var invoice SubscriptionInvoice
	if err := c.api.Do(ctx, http.MethodGet, c.tenantPath(tenantID, "invoices", invoiceID), nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}
