// Package api provides the HTTP server behind the subscriptions and
// tenantusers clients.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups, each
// registering its own routes:
//
//   - SubscriptionHandlers: plans, the tenant subscription, checkout, the
//     billing portal, invoices and the provider webhook
//   - TenantHandlers: tenant users, bulk operations and invitations
//   - SessionHandlers: opening and closing cookie sessions
//
// # Usage
//
//	server, err := api.NewServer(api.Deps{
//		Billing:  billingManager,
//		Tenants:  tenantManager,
//		Sessions: sessionStore,
//		Limiter:  middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Routes
//
//	GET    /api/subscriptions/plans
//	GET    /api/subscriptions/plans/{planId}
//	GET    /api/subscriptions/tenants/{tenantId}/subscription
//	PUT    /api/subscriptions/tenants/{tenantId}/subscription/quantity
//	POST   /api/subscriptions/tenants/{tenantId}/subscription/cancel
//	POST   /api/subscriptions/tenants/{tenantId}/subscription/reactivate
//	POST   /api/subscriptions/tenants/{tenantId}/checkout
//	POST   /api/subscriptions/tenants/{tenantId}/billing-portal
//	GET    /api/subscriptions/tenants/{tenantId}/invoices
//	GET    /api/subscriptions/tenants/{tenantId}/invoices/{invoiceId}
//	POST   /api/subscriptions/webhook
//
//	POST   /api/tenants/{tenantId}/users
//	GET    /api/tenants/{tenantId}/users?page&limit&search&role&sortBy&sortOrder
//	GET    /api/tenants/{tenantId}/users/{userId}
//	PUT    /api/tenants/{tenantId}/users/{userId}
//	DELETE /api/tenants/{tenantId}/users/{userId}
//	PUT    /api/tenants/{tenantId}/users/{userId}/role
//	PUT    /api/tenants/{tenantId}/users/{userId}/permissions
//	POST   /api/tenants/{tenantId}/users/bulk
//	DELETE /api/tenants/{tenantId}/users/bulk
//	PUT    /api/tenants/{tenantId}/users/bulk/roles
//	POST   /api/tenants/{tenantId}/invitations
//	GET    /api/tenants/{tenantId}/invitations
//	POST   /api/tenants/{tenantId}/invitations/{invitationId}/resend
//	DELETE /api/tenants/{tenantId}/invitations/{invitationId}
//	POST   /api/invitations/accept
//
//	POST   /api/auth/session   (dev login only)
//	GET    /api/auth/session
//	DELETE /api/auth/session
//	GET    /healthz, /readyz, /metrics
//
// Per-tenant routes require the connect_session cookie.
//
// # Errors
//
// Errors are JSON objects with a message. Validation failures add the failing
// fields:
//
//	{"message": "validation failed: quantity must be greater than 0",
//	 "fields": [{"field": "quantity", "rule": "gt", "message": "must be greater than 0"}]}
//
// Status codes follow the error class: validation 400, missing session 401,
// not found 404, conflict 409, rate limited 429, anything else 500.
package api
