package billing

import (
	"errors"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

// Wire types are shared with the client SDK
type (
	Plan         = subscriptions.SubscriptionPlan
	Subscription = subscriptions.SubscriptionDetails
	Invoice      = subscriptions.SubscriptionInvoice
)

var (
	// ErrNotFound is wrapped by lookups that find nothing
	ErrNotFound = errors.New("not found")

	// ErrConflict is wrapped when a request is not allowed in the current
	// subscription state
	ErrConflict = errors.New("conflict")
)

// EventType classifies a provider event after translation
type EventType string

const (
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventInvoiceUpdated      EventType = "invoice.updated"
)

// Event is a provider state change to mirror into the store. Invoice events
// identify the tenant through CustomerID when TenantID is empty.
type Event struct {
	ID           string
	Type         EventType
	TenantID     string
	CustomerID   string
	Subscription *Subscription
	Invoice      *Invoice
}

func cloneSubscription(s *Subscription) *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.TrialEnd != nil {
		t := *s.TrialEnd
		c.TrialEnd = &t
	}
	return &c
}

func cloneInvoice(inv *Invoice) *Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	if inv.DueDate != nil {
		t := *inv.DueDate
		c.DueDate = &t
	}
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		c.PaidAt = &t
	}
	return &c
}
