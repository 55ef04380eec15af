// Package tenantusers holds the tenant user and invitation wire types, the
// HTTP client for the /api/tenants namespace and the list view models built
// on it.
//
// Bulk operations are not atomic. Each returns a BulkOperationResult whose
// Failures name the items that did not go through, by index or id.
//
// The list models patch their cached collection after a call succeeds
// (append, replace by id, filter out by id) instead of refetching.
package tenantusers
