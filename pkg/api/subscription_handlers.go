package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/edpsych-connect/connect/pkg/billing"
	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/middleware"
	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

// WebhookSignatureHeader carries the provider's signature of a webhook body
const WebhookSignatureHeader = "Stripe-Signature"

// SubscriptionHandlers handles plan, subscription, checkout and invoice requests
type SubscriptionHandlers struct {
	billing *billing.Manager
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers
func NewSubscriptionHandlers(manager *billing.Manager) *SubscriptionHandlers {
	return &SubscriptionHandlers{billing: manager}
}

// RegisterPublicRoutes registers the plan catalog, which needs no session
func (h *SubscriptionHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/subscriptions/plans", h.ListPlans).Methods("GET")
	router.HandleFunc("/subscriptions/plans/{planId}", h.GetPlan).Methods("GET")
}

// RegisterRoutes registers the per-tenant routes on a router already scoped
// to /api/subscriptions/tenants/{tenantId}
func (h *SubscriptionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/subscription", h.GetSubscription).Methods("GET")
	router.HandleFunc("/subscription/quantity", h.UpdateQuantity).Methods("PUT")
	router.HandleFunc("/subscription/cancel", h.CancelSubscription).Methods("POST")
	router.HandleFunc("/subscription/reactivate", h.ReactivateSubscription).Methods("POST")

	router.HandleFunc("/checkout", h.CreateCheckoutSession).Methods("POST")
	router.HandleFunc("/billing-portal", h.CreateBillingPortalSession).Methods("POST")

	router.HandleFunc("/invoices", h.ListInvoices).Methods("GET")
	router.HandleFunc("/invoices/{invoiceId}", h.GetInvoice).Methods("GET")
}

// ListPlans lists the plan catalog
func (h *SubscriptionHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.billing.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, plans)
}

// GetPlan returns one plan
func (h *SubscriptionHandlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := httputil.ParsePathStringOrError(w, r, "planId")
	if !ok {
		return
	}

	plan, err := h.billing.GetPlan(r.Context(), planID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, plan)
}

// GetSubscription returns the tenant's subscription, 404 when it has none
func (h *SubscriptionHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.CurrentSubscription(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// UpdateQuantity changes the seat count
func (h *SubscriptionHandlers) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.UpdateQuantityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sub, err := h.billing.UpdateQuantity(r.Context(), tenantID(r), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// CancelSubscription cancels immediately or at the end of the period
func (h *SubscriptionHandlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.CancelRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sub, err := h.billing.Cancel(r.Context(), tenantID(r), req.AtPeriodEnd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// ReactivateSubscription undoes a pending or recent cancellation
func (h *SubscriptionHandlers) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Reactivate(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// CreateCheckoutSession starts a hosted checkout for a new subscription
func (h *SubscriptionHandlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.CreateCheckoutSessionData
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.billing.CreateCheckoutSession(r.Context(), tenantID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// CreateBillingPortalSession opens the provider's self-service portal
func (h *SubscriptionHandlers) CreateBillingPortalSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.billing.CreateBillingPortalSession(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// ListInvoices lists the tenant's invoices
func (h *SubscriptionHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.billing.ListInvoices(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []billing.Invoice{}
	}
	httputil.WriteSuccess(w, invoices)
}

// GetInvoice returns one invoice of the tenant
func (h *SubscriptionHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := httputil.ParsePathStringOrError(w, r, "invoiceId")
	if !ok {
		return
	}

	invoice, err := h.billing.GetInvoice(r.Context(), tenantID(r), invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invoice)
}

// HandleWebhook applies a signed provider event
func (h *SubscriptionHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	if err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(WebhookSignatureHeader)); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"received": true})
}

func tenantID(r *http.Request) string {
	return mux.Vars(r)[middleware.TenantVar]
}
