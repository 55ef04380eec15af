// Package apiclient is the JSON HTTP helper shared by the subscription and
// tenant-user clients.
//
// Every request carries Content-Type and Accept of application/json and the
// session cookies held in the client's cookie jar. A non-2xx response becomes
// an *Error whose Message is taken from the {"message": ...} body, or
// "API call failed: <status>" when no message can be read. Transport failures
// are returned as the underlying http.Client produced them.
//
// There are no retries and no client-side timeout; bound calls with the
// context passed to Do.
//
//	client, err := apiclient.New("https://connect.example.org",
//		apiclient.WithSessionCookie("connect_session", sessionID))
//	var plans []subscriptions.SubscriptionPlan
//	err = client.Do(ctx, http.MethodGet, "/api/subscriptions/plans", nil, &plans)
package apiclient
