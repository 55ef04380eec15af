package subscriptions

import "time"

// PlanTier ranks plans in the catalog
type PlanTier string

const (
	TierFree       PlanTier = "FREE"
	TierBasic      PlanTier = "BASIC"
	TierStandard   PlanTier = "STANDARD"
	TierPremium    PlanTier = "PREMIUM"
	TierEnterprise PlanTier = "ENTERPRISE"
)

// SubscriptionStatus mirrors the billing provider's subscription status
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

// BillingInterval is how often a subscription renews
type BillingInterval string

const (
	IntervalMonthly   BillingInterval = "monthly"
	IntervalQuarterly BillingInterval = "quarterly"
	IntervalAnnual    BillingInterval = "annual"
)

// Months returns the length of the interval in months
func (i BillingInterval) Months() int {
	switch i {
	case IntervalQuarterly:
		return 3
	case IntervalAnnual:
		return 12
	default:
		return 1
	}
}

// Valid reports whether i is a known interval
func (i BillingInterval) Valid() bool {
	switch i {
	case IntervalMonthly, IntervalQuarterly, IntervalAnnual:
		return true
	}
	return false
}

// InvoiceStatus mirrors the billing provider's invoice status
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
	InvoiceVoid          InvoiceStatus = "void"
)

// PlanPrice is the price of a plan for one billing interval. Amount is in
// minor currency units.
type PlanPrice struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	PriceID  string `json:"priceId"`
}

// SubscriptionPlan is a catalog entry
type SubscriptionPlan struct {
	ID           string                        `json:"id"`
	Name         string                        `json:"name"`
	Description  string                        `json:"description"`
	Tier         PlanTier                      `json:"tier"`
	Features     []string                      `json:"features"`
	Pricing      map[BillingInterval]PlanPrice `json:"pricing"`
	MaxSeats     *int                          `json:"maxSeats,omitempty"`
	MaxStorageGB *int                          `json:"maxStorageGb,omitempty"`
	Popular      bool                          `json:"popular"`
}

// SubscriptionDetails is a tenant's billing relationship
type SubscriptionDetails struct {
	ID                   string             `json:"id"`
	TenantID             string             `json:"tenantId"`
	PlanID               string             `json:"planId"`
	Tier                 PlanTier           `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	BillingInterval      BillingInterval    `json:"billingInterval"`
	CurrentPeriodStart   time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time          `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool               `json:"cancelAtPeriodEnd"`
	TrialEnd             *time.Time         `json:"trialEnd,omitempty"`
	Quantity             int                `json:"quantity"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId,omitempty"`
	StripeCustomerID     string             `json:"stripeCustomerId,omitempty"`
}

// IsLive reports whether the subscription still counts as the tenant's one
// non-canceled subscription
func (s *SubscriptionDetails) IsLive() bool {
	return s != nil && s.Status != StatusCanceled
}

// SubscriptionInvoice is a read-only invoice record
type SubscriptionInvoice struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Status    InvoiceStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	DueDate   *time.Time    `json:"dueDate,omitempty"`
	PaidAt    *time.Time    `json:"paidAt,omitempty"`
	PDFURL    string        `json:"pdfUrl,omitempty"`
}

// CreateCheckoutSessionData starts a hosted checkout
type CreateCheckoutSessionData struct {
	PlanID          string          `json:"planId" validate:"required"`
	BillingInterval BillingInterval `json:"billingInterval" validate:"oneof=monthly quarterly annual"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	SuccessURL      string          `json:"successUrl" validate:"required,url"`
	CancelURL       string          `json:"cancelUrl" validate:"required,url"`
}

// CheckoutSession is where the browser is sent to complete checkout
type CheckoutSession struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

// BillingPortalSession is a hosted billing management page
type BillingPortalSession struct {
	PortalURL string `json:"portalUrl"`
}

// UpdateQuantityRequest is the body of a seat quantity change
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

// CancelRequest is the body of a cancellation
type CancelRequest struct {
	AtPeriodEnd bool `json:"atPeriodEnd"`
}
