// Package subscriptions holds the subscription and billing wire types, the
// HTTP client for the /api/subscriptions namespace and the view models built
// on it.
//
// Status transitions are executed by the billing provider; this package only
// requests them and reflects what the server returns:
//
//	trialing   -> active | incomplete
//	active     -> active (cancelAtPeriodEnd) -> canceled
//	active     -> canceled | past_due
//	past_due   -> active | canceled
//	canceled   -> active (within the reactivation window)
//
// GetCurrentSubscription is the one operation that treats a 404 as absence and
// returns (nil, nil).
package subscriptions
