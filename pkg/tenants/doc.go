// Package tenants is the server side of tenant user management.
//
// # Overview
//
// A Manager sits behind the /api/tenants routes. It validates requests with
// the same rules the client SDK applies, enforces that an email belongs to
// at most one user per tenant, and persists users and invitations through a
// Store (MemoryStore for development and tests, PostgresStore in production).
//
// # Invitations
//
//	InviteUser ──▶ pending ──▶ accepted   (AcceptInvitation creates the user)
//	                  │
//	                  ├──────▶ expired    (Sweeper, or lazily on resend/accept)
//	                  │
//	                  └──────▶ deleted    (CancelInvitation)
//
// Invitations expire seven days after creation unless the request names
// expiresInHours. Resending re-delivers through the Notifier and leaves the
// expiry alone. Delivery runs in the background by default; failures are
// logged and the invitation stays pending so it can be resent.
//
// # Bulk operations
//
// BulkCreateUsers, BulkDeleteUsers and BulkUpdateUserRoles run every item
// independently on a bounded worker pool. A failed item never aborts the
// batch; it is reported in the result's failures with its index.
package tenants
