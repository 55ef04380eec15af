// Package billing is the server side of tenant subscriptions.
//
// # Overview
//
// A Manager sits behind the /api/subscriptions routes. It reads plans from a
// Catalog, drives an external Provider (Stripe, or the in-process
// SimulatedProvider used in development and tests) and mirrors whatever the
// provider reports into a Store. The store is a mirror, not the source of
// truth: every change made through the provider, and every webhook the
// provider sends, is applied to it through ApplyEvent.
//
// # Subscription lifecycle
//
//	checkout ──▶ trialing ──▶ active ◀──▶ past_due
//	                             │            │
//	            cancel(atPeriodEnd)      grace period
//	                             ▼            ▼
//	                          canceled ◀──────┘
//
// A tenant holds at most one subscription record. Checkout is refused with
// ErrConflict while that record is live, and Reactivate is refused with
// ErrConflict unless a cancellation is pending or the provider still allows
// restarting an ended subscription.
//
// # Plan catalog
//
// Catalog caches the plan list in a process-local expirable LRU and, when a
// Redis client is configured, in a shared Redis key so every API node sees
// the same catalog after Invalidate.
//
// # Usage
//
//	catalog := billing.NewCatalog(billing.StaticPlans(billing.DefaultPlans()),
//		billing.WithCatalogRedis(rdb))
//	mgr := billing.NewManager(billing.NewPostgresStore(db, metrics),
//		billing.NewStripeProvider(key, secret), catalog,
//		billing.WithMetrics(metrics))
//
//	session, err := mgr.CreateCheckoutSession(ctx, tenantID, data)
//
// # Related Packages
//
//   - pkg/subscriptions: wire types and the client for these endpoints
//   - pkg/storage/postgres: connection and migration helpers
package billing
