package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists the mirrored subscription and invoice records. There is
// one subscription row per tenant; saving replaces it.
type Store interface {
	GetSubscription(ctx context.Context, tenantID string) (*Subscription, error)
	GetSubscriptionByCustomer(ctx context.Context, customerID string) (*Subscription, error)
	SaveSubscription(ctx context.Context, sub *Subscription) error
	ListInvoices(ctx context.Context, tenantID string) ([]Invoice, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (*Invoice, error)
	SaveInvoice(ctx context.Context, tenantID string, invoice *Invoice) error
}

// MemoryStore is a Store kept in process memory
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription // by tenant
	invoices      map[string]map[string]*Invoice
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]*Subscription),
		invoices:      make(map[string]map[string]*Invoice),
	}
}

func (s *MemoryStore) GetSubscription(_ context.Context, tenantID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[tenantID]
	if !ok {
		return nil, fmt.Errorf("subscription %w", ErrNotFound)
	}
	return cloneSubscription(sub), nil
}

func (s *MemoryStore) GetSubscriptionByCustomer(_ context.Context, customerID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if customerID != "" && sub.StripeCustomerID == customerID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, fmt.Errorf("subscription for customer %s %w", customerID, ErrNotFound)
}

func (s *MemoryStore) SaveSubscription(_ context.Context, sub *Subscription) error {
	if sub.TenantID == "" {
		return fmt.Errorf("subscription has no tenant")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.TenantID] = cloneSubscription(sub)
	return nil
}

// ListInvoices returns the tenant's invoices, newest first
func (s *MemoryStore) ListInvoices(_ context.Context, tenantID string) ([]Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]Invoice, 0, len(s.invoices[tenantID]))
	for _, inv := range s.invoices[tenantID] {
		invoices = append(invoices, *cloneInvoice(inv))
	}
	sort.Slice(invoices, func(i, j int) bool {
		if invoices[i].CreatedAt.Equal(invoices[j].CreatedAt) {
			return invoices[i].ID > invoices[j].ID
		}
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
	return invoices, nil
}

func (s *MemoryStore) GetInvoice(_ context.Context, tenantID, invoiceID string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[tenantID][invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice %w", ErrNotFound)
	}
	return cloneInvoice(inv), nil
}

func (s *MemoryStore) SaveInvoice(_ context.Context, tenantID string, invoice *Invoice) error {
	if invoice.ID == "" {
		return fmt.Errorf("invoice has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.invoices[tenantID]
	if !ok {
		byID = make(map[string]*Invoice)
		s.invoices[tenantID] = byID
	}
	byID[invoice.ID] = cloneInvoice(invoice)
	return nil
}
