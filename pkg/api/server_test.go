package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/apiclient"
	"github.com/edpsych-connect/connect/pkg/billing"
	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/middleware"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/sessions"
	"github.com/edpsych-connect/connect/pkg/subscriptions"
	"github.com/edpsych-connect/connect/pkg/tenants"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

const testWebhookSecret = "whsec_test"

type testEnv struct {
	server   *httptest.Server
	billing  *billing.Manager
	sim      *billing.SimulatedProvider
	tenants  *tenants.Manager
	sessions *sessions.MemoryStore
	registry *prometheus.Registry

	mu     sync.Mutex
	tokens map[string]string // invitation id -> token
}

func newTestEnv(t *testing.T, configure ...func(*Deps)) *testEnv {
	t.Helper()
	env := &testEnv{tokens: make(map[string]string)}

	env.registry = prometheus.NewRegistry()
	metrics := observability.NewMetrics(env.registry)

	env.sim = billing.NewSimulatedProvider(billing.WithSimulatedWebhookSecret(testWebhookSecret))
	env.billing = billing.NewManager(billing.NewMemoryStore(), env.sim,
		billing.NewCatalog(billing.StaticPlans(billing.DefaultPlans())),
		billing.WithMetrics(metrics))

	notifier := tenants.NotifierFunc(func(_ context.Context, inv tenants.Invitation) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.tokens[inv.ID] = inv.Token
		return nil
	})
	env.tenants = tenants.NewManager(tenants.NewMemoryStore(),
		tenants.WithNotifier(notifier),
		tenants.WithMetrics(metrics),
		tenants.WithSynchronousDelivery())

	env.sessions = sessions.NewMemoryStore(sessions.WithMetrics(metrics))

	deps := Deps{
		Billing:  env.billing,
		Tenants:  env.tenants,
		Sessions: env.sessions,
		Health:   observability.NewHealthChecker(nil, nil, "test"),
		Registry: env.registry,
		Metrics:  metrics,
		DevLogin: true,
	}
	for _, fn := range configure {
		fn(&deps)
	}

	server, err := NewServer(deps)
	require.NoError(t, err)
	env.server = httptest.NewServer(server)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) token(invitationID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens[invitationID]
}

// login opens a session for userID and returns a client carrying its cookie
func (e *testEnv) login(t *testing.T, userID string) *apiclient.Client {
	t.Helper()
	client, err := apiclient.New(e.server.URL)
	require.NoError(t, err)

	var session SessionResponse
	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/api/auth/session", LoginRequest{UserID: userID}, &session))
	require.NotEmpty(t, session.SessionID)
	return client
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	session, err := e.sessions.Create(context.Background(), userID, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: sessions.CookieName, Value: session.ID}
}

func decodeError(t *testing.T, resp *http.Response) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func checkout(planID string, quantity int) subscriptions.CreateCheckoutSessionData {
	return subscriptions.CreateCheckoutSessionData{
		PlanID:          planID,
		BillingInterval: subscriptions.IntervalMonthly,
		Quantity:        quantity,
		SuccessURL:      "https://app.example.com/billing/success",
		CancelURL:       "https://app.example.com/billing/cancel",
	}
}

func TestNewServer_RequiresManagers(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestSubscription_CancelThenReactivate(t *testing.T) {
	env := newTestEnv(t)
	subs := subscriptions.NewClient(env.login(t, "admin-1"))
	ctx := context.Background()

	session, err := subs.CreateCheckoutSession(ctx, "school-1", checkout("standard", 5))
	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionID)

	sub, err := subs.GetCurrentSubscription(ctx, "school-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)

	sub, err = subs.CancelSubscription(ctx, "school-1", true)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)

	sub, err = subs.ReactivateSubscription(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
}

func TestSubscription_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	subs := subscriptions.NewClient(env.login(t, "admin-1"))
	ctx := context.Background()

	sub, err := subs.GetCurrentSubscription(ctx, "school-1")
	require.NoError(t, err)
	assert.Nil(t, sub, "no subscription is absence, not an error")

	plans, err := subs.GetAvailablePlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 5)

	plan, err := subs.GetPlan(ctx, "premium")
	require.NoError(t, err)
	assert.Equal(t, subscriptions.TierPremium, plan.Tier)

	_, err = subs.GetPlan(ctx, "platinum")
	assert.True(t, apiclient.IsNotFound(err))

	_, err = subs.CreateCheckoutSession(ctx, "school-1", checkout("standard", 3))
	require.NoError(t, err)
	_, err = subs.CreateCheckoutSession(ctx, "school-1", checkout("premium", 3))
	assert.True(t, apiclient.IsConflict(err), "a live subscription blocks a second checkout")

	sub, err = subs.UpdateSubscriptionQuantity(ctx, "school-1", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, sub.Quantity)

	_, err = subs.UpdateSubscriptionQuantity(ctx, "school-1", 51)
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	portal, err := subs.CreateBillingPortalSession(ctx, "school-1")
	require.NoError(t, err)
	assert.NotEmpty(t, portal.PortalURL)

	invoices, err := subs.GetInvoices(ctx, "school-1")
	require.NoError(t, err)
	require.NotEmpty(t, invoices)

	invoice, err := subs.GetInvoice(ctx, "school-1", invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, invoices[0].ID, invoice.ID)

	_, err = subs.GetInvoice(ctx, "school-2", invoices[0].ID)
	assert.True(t, apiclient.IsNotFound(err), "invoices are scoped to their tenant")

	sub, err = subs.CancelSubscription(ctx, "school-1", false)
	require.NoError(t, err)
	assert.Equal(t, subscriptions.StatusCanceled, sub.Status)
}

func TestSubscription_NotFoundStatus(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.sessionCookie(t, "admin-1")

	resp := env.do(t, http.MethodGet, "/api/subscriptions/tenants/school-1/subscription", "", cookie)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, decodeError(t, resp).Message)
}

func TestSubscription_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.sessionCookie(t, "admin-1")

	resp := env.do(t, http.MethodPost, "/api/subscriptions/tenants/school-1/checkout",
		`{"planId":"standard","billingInterval":"weekly","quantity":0}`, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	assert.NotEmpty(t, body.Fields)

	resp = env.do(t, http.MethodPut, "/api/subscriptions/tenants/school-1/subscription/quantity", `{"quantity":`, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.billing.CreateCheckoutSession(ctx, "school-1", checkout("basic", 2))
	require.NoError(t, err)
	sub, err := env.billing.CurrentSubscription(ctx, "school-1")
	require.NoError(t, err)

	sub.Quantity = 7
	payload, err := json.Marshal(map[string]interface{}{
		"id":           "evt_1",
		"type":         "subscription.updated",
		"tenantId":     "school-1",
		"subscription": sub,
	})
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(payload)

	post := func(signature string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/subscriptions/webhook", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(WebhookSignatureHeader, signature)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post("deadbeef")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid webhook", decodeError(t, resp).Message)

	resp = post(hex.EncodeToString(mac.Sum(nil)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mirrored, err := env.billing.CurrentSubscription(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, 7, mirrored.Quantity)
}

func TestInvitations_InviteThenCancel(t *testing.T) {
	env := newTestEnv(t)
	users := tenantusers.NewClient(env.login(t, "admin-1"))
	ctx := context.Background()

	inv, err := users.InviteUser(ctx, "school-1", tenantusers.InviteUserData{
		Email: "a@b.com",
		Name:  "A B",
		Role:  tenantusers.RoleTeacher,
	})
	require.NoError(t, err)
	assert.Equal(t, tenantusers.InvitationPending, inv.Status)

	require.NoError(t, users.CancelInvitation(ctx, "school-1", inv.ID))

	invitations, err := users.ListInvitations(ctx, "school-1")
	require.NoError(t, err)
	for _, listed := range invitations {
		assert.NotEqual(t, inv.ID, listed.ID)
	}

	err = users.CancelInvitation(ctx, "school-1", inv.ID)
	assert.True(t, apiclient.IsNotFound(err))
}

func TestInvitations_ResendAndAccept(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "admin-1")
	users := tenantusers.NewClient(client)
	ctx := context.Background()

	inv, err := users.InviteUser(ctx, "school-1", tenantusers.InviteUserData{
		Email: "senco@school.org",
		Name:  "Sam Senco",
		Role:  tenantusers.RoleSENCO,
	})
	require.NoError(t, err)

	resent, err := users.ResendInvitation(ctx, "school-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ExpiresAt, resent.ExpiresAt, "resend keeps the expiry")

	token := env.token(inv.ID)
	require.NotEmpty(t, token)

	var user tenantusers.TenantUser
	require.NoError(t, client.Do(ctx, http.MethodPost, "/api/invitations/accept",
		AcceptInvitationRequest{Token: token, Name: "Samantha Senco"}, &user))
	assert.Equal(t, "senco@school.org", user.Email)
	assert.Equal(t, "Samantha Senco", user.Name)
	assert.Equal(t, tenantusers.RoleSENCO, user.Role)

	err = client.Do(ctx, http.MethodPost, "/api/invitations/accept", AcceptInvitationRequest{Token: token}, nil)
	assert.True(t, apiclient.IsConflict(err), "a token is accepted once")

	invitations, err := users.ListInvitations(ctx, "school-1")
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	assert.Equal(t, tenantusers.InvitationAccepted, invitations[0].Status)

	err = users.CancelInvitation(ctx, "school-1", inv.ID)
	assert.True(t, apiclient.IsConflict(err))
}

func TestInvitations_AcceptWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/invitations/accept", `{"token":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, decodeError(t, resp).Fields)

	resp = env.do(t, http.MethodPost, "/api/invitations/accept", `{"token":"unknown"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsers_CRUD(t *testing.T) {
	env := newTestEnv(t)
	users := tenantusers.NewClient(env.login(t, "admin-1"))
	ctx := context.Background()

	created, err := users.CreateUser(ctx, "school-1", tenantusers.CreateTenantUserData{
		Email: "teacher@school.org",
		Name:  "Terry Teacher",
		Role:  tenantusers.RoleTeacher,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = users.CreateUser(ctx, "school-1", tenantusers.CreateTenantUserData{
		Email: "teacher@school.org",
		Name:  "Someone Else",
		Role:  tenantusers.RoleViewer,
	})
	assert.True(t, apiclient.IsConflict(err))

	got, err := users.GetUser(ctx, "school-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, got.Email)

	_, err = users.GetUser(ctx, "school-2", created.ID)
	assert.True(t, apiclient.IsNotFound(err), "users are scoped to their tenant")

	name := "Terry T."
	updated, err := users.UpdateUser(ctx, "school-1", created.ID, tenantusers.UpdateTenantUserData{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	updated, err = users.UpdateUserRole(ctx, "school-1", created.ID, tenantusers.RoleSENCO)
	require.NoError(t, err)
	assert.Equal(t, tenantusers.RoleSENCO, updated.Role)

	updated, err = users.UpdateUserPermissions(ctx, "school-1", created.ID, []string{"reports:read"})
	require.NoError(t, err)
	assert.Equal(t, []string{"reports:read"}, updated.Permissions)

	require.NoError(t, users.DeleteUser(ctx, "school-1", created.ID))
	_, err = users.GetUser(ctx, "school-1", created.ID)
	assert.True(t, apiclient.IsNotFound(err))
}

func TestUsers_ListAndBulk(t *testing.T) {
	env := newTestEnv(t)
	users := tenantusers.NewClient(env.login(t, "admin-1"))
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "school-1", tenantusers.CreateTenantUserData{
		Email: "alice@school.org", Name: "Alice", Role: tenantusers.RoleTeacher,
	})
	require.NoError(t, err)

	result, err := users.BulkCreateUsers(ctx, "school-1", []tenantusers.CreateTenantUserData{
		{Email: "bob@school.org", Name: "Bob", Role: tenantusers.RoleTeacher},
		{Email: "carol@school.org", Name: "Carol", Role: tenantusers.RoleSENCO},
		{Email: "alice@school.org", Name: "Alice Again", Role: tenantusers.RoleViewer},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Failures, 1)
	require.NotNil(t, result.Failures[0].Index)
	assert.Equal(t, 2, *result.Failures[0].Index)

	list, err := users.ListUsers(ctx, "school-1", tenantusers.ListUsersParams{
		Role:      tenantusers.RoleTeacher,
		SortBy:    "name",
		SortOrder: tenantusers.SortDesc,
	})
	require.NoError(t, err)
	require.Len(t, list.Users, 2)
	assert.Equal(t, "Bob", list.Users[0].Name)
	assert.Equal(t, 2, list.Pagination.Total)

	list, err = users.ListUsers(ctx, "school-1", tenantusers.ListUsersParams{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list.Users, 1)
	assert.Equal(t, 2, list.Pagination.TotalPages)

	roles, err := users.BulkUpdateUserRoles(ctx, "school-1", []tenantusers.RoleUpdate{
		{UserID: list.Users[0].ID, Role: tenantusers.RoleAdmin},
		{UserID: "missing", Role: tenantusers.RoleAdmin},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, roles.SuccessCount)
	require.Len(t, roles.Failures, 1)
	assert.Equal(t, "missing", roles.Failures[0].ID)

	all, err := users.ListUsers(ctx, "school-1", tenantusers.ListUsersParams{})
	require.NoError(t, err)
	ids := make([]string, 0, len(all.Users))
	for _, u := range all.Users {
		ids = append(ids, u.ID)
	}
	deleted, err := users.BulkDeleteUsers(ctx, "school-1", ids)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted.SuccessCount)

	empty, err := users.ListUsers(ctx, "school-1", tenantusers.ListUsersParams{})
	require.NoError(t, err)
	assert.Empty(t, empty.Users)
	assert.NotNil(t, empty.Users)
}

func TestUsers_ListInvalidQuery(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.sessionCookie(t, "admin-1")

	resp := env.do(t, http.MethodGet, "/api/tenants/school-1/users?page=two&limit=5", "", cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "page", body.Fields[0].Field)

	resp = env.do(t, http.MethodGet, "/api/tenants/school-1/users?sortBy=password", "", cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSession_Required(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/tenants/school-1/users", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication required", decodeError(t, resp).Message)

	resp = env.do(t, http.MethodGet, "/api/subscriptions/tenants/school-1/subscription", "",
		&http.Cookie{Name: sessions.CookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/subscriptions/plans", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "the plan catalog is public")
}

func TestSession_LoginLogout(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "admin-1")
	ctx := context.Background()

	var current SessionResponse
	require.NoError(t, client.Do(ctx, http.MethodGet, "/api/auth/session", nil, &current))
	assert.Equal(t, "admin-1", current.UserID)

	require.NoError(t, client.Do(ctx, http.MethodDelete, "/api/auth/session", nil, nil))

	_, err := tenantusers.NewClient(client).ListInvitations(ctx, "school-1")
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = env.sessions.Get(ctx, current.SessionID)
	assert.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestSession_LoginCookie(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/session", `{"userId":"admin-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessions.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	resp = env.do(t, http.MethodPost, "/api/auth/session", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSession_DevLoginDisabled(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.DevLogin = false })

	resp := env.do(t, http.MethodPost, "/api/auth/session", `{"userId":"admin-1"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Hour,
	})
	env := newTestEnv(t, func(d *Deps) { d.Limiter = limiter })
	cookie := env.sessionCookie(t, "admin-1")

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, "/api/tenants/school-1/invitations", "", cookie)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp := env.do(t, http.MethodGet, "/api/tenants/school-1/invitations", "", cookie)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	other := env.sessionCookie(t, "admin-2")
	resp = env.do(t, http.MethodGet, "/api/tenants/school-1/invitations", "", other)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "limits are per user")
}

func TestContentType(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.sessionCookie(t, "admin-1")

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/tenants/school-1/users", strings.NewReader("email=x"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.do(t, http.MethodGet, "/api/subscriptions/plans", "")

	resp = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `connect_http_requests_total{method="GET",route="/api/subscriptions/plans",status="200"}`)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, resp.Header.Get(httputil.RequestIDHeader))
}
