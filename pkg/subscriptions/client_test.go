package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/apiclient"
	"github.com/edpsych-connect/connect/pkg/validation"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	api, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	return NewClient(api, opts...), &calls
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validCheckout() CreateCheckoutSessionData {
	return CreateCheckoutSessionData{
		PlanID:          "standard",
		BillingInterval: IntervalMonthly,
		Quantity:        5,
		SuccessURL:      "https://app.example.org/billing/success",
		CancelURL:       "https://app.example.org/billing/cancel",
	}
}

func TestCreateCheckoutSession_ValidatesBeforeNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	tests := []struct {
		name  string
		field string
		edit  func(*CreateCheckoutSessionData)
	}{
		{"weekly interval", "billingInterval", func(d *CreateCheckoutSessionData) { d.BillingInterval = "weekly" }},
		{"missing plan", "planId", func(d *CreateCheckoutSessionData) { d.PlanID = "" }},
		{"zero quantity", "quantity", func(d *CreateCheckoutSessionData) { d.Quantity = 0 }},
		{"bad success url", "successUrl", func(d *CreateCheckoutSessionData) { d.SuccessURL = "::nope" }},
		{"missing cancel url", "cancelUrl", func(d *CreateCheckoutSessionData) { d.CancelURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validCheckout()
			tt.edit(&data)

			session, err := client.CreateCheckoutSession(context.Background(), "t1", data)
			require.Error(t, err)
			assert.Nil(t, session)

			var vErr *validation.Error
			require.ErrorAs(t, err, &vErr)
			assert.True(t, vErr.Has(tt.field), "expected %s violation, got %v", tt.field, vErr.Fields)
		})
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/subscriptions/tenants/t1/checkout", r.URL.Path)

		var body CreateCheckoutSessionData
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, validCheckout(), body)

		writeJSON(w, http.StatusOK, CheckoutSession{CheckoutURL: "https://checkout.example/cs_1", SessionID: "cs_1"})
	})

	session, err := client.CreateCheckoutSession(context.Background(), "t1", validCheckout())
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.SessionID)
	assert.Equal(t, "https://checkout.example/cs_1", session.CheckoutURL)
}

func TestGetCurrentSubscription(t *testing.T) {
	t.Run("404 is absence", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No subscription found"})
		})

		sub, err := client.GetCurrentSubscription(context.Background(), "t1")
		assert.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("other errors propagate", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
		})

		sub, err := client.GetCurrentSubscription(context.Background(), "t1")
		assert.Nil(t, sub)
		require.Error(t, err)
		assert.Equal(t, "db down", err.Error())
		assert.Equal(t, http.StatusInternalServerError, apiclient.StatusCode(err))
	})

	t.Run("404 message text alone is not absence", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream returned 404"})
		})

		_, err := client.GetCurrentSubscription(context.Background(), "t1")
		assert.Error(t, err)
	})

	t.Run("found", func(t *testing.T) {
		end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/subscriptions/tenants/t1/subscription", r.URL.Path)
			writeJSON(w, http.StatusOK, SubscriptionDetails{ID: "sub_1", TenantID: "t1", Status: StatusActive, CurrentPeriodEnd: end, Quantity: 3})
		})

		sub, err := client.GetCurrentSubscription(context.Background(), "t1")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, sub.Status)
		assert.True(t, end.Equal(sub.CurrentPeriodEnd))
	})
}

func TestGetPlan_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/subscriptions/plans/gold", r.URL.Path)
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Plan not found"})
	})

	plan, err := client.GetPlan(context.Background(), "gold")
	assert.Nil(t, plan)
	assert.True(t, apiclient.IsNotFound(err))
	assert.EqualError(t, err, "Plan not found")
}

func TestMutations_RequestShapes(t *testing.T) {
	type seen struct {
		method string
		path   string
		body   map[string]interface{}
	}
	var got []seen

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&s.body)
		got = append(got, s)
		writeJSON(w, http.StatusOK, SubscriptionDetails{ID: "sub_1", Status: StatusActive})
	}, WithBasePath("billing/"))

	ctx := context.Background()
	_, err := client.UpdateSubscriptionQuantity(ctx, "t1", 7)
	require.NoError(t, err)
	_, err = client.CancelSubscription(ctx, "t1", true)
	require.NoError(t, err)
	_, err = client.ReactivateSubscription(ctx, "t1")
	require.NoError(t, err)
	_, err = client.CreateBillingPortalSession(ctx, "t1")
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, seen{http.MethodPut, "/billing/tenants/t1/subscription/quantity", map[string]interface{}{"quantity": float64(7)}}, got[0])
	assert.Equal(t, seen{http.MethodPost, "/billing/tenants/t1/subscription/cancel", map[string]interface{}{"atPeriodEnd": true}}, got[1])
	assert.Equal(t, http.MethodPost, got[2].method)
	assert.Equal(t, "/billing/tenants/t1/subscription/reactivate", got[2].path)
	assert.Nil(t, got[2].body)
	assert.Equal(t, "/billing/tenants/t1/billing-portal", got[3].path)
}

func TestUpdateSubscriptionQuantity_RejectsNonPositive(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.UpdateSubscriptionQuantity(context.Background(), "t1", 0)
	assert.True(t, validation.IsValidationError(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestInvoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/subscriptions/tenants/t1/invoices":
			writeJSON(w, http.StatusOK, []SubscriptionInvoice{{ID: "in_1", Status: InvoicePaid}, {ID: "in_2", Status: InvoiceOpen}})
		case "/api/subscriptions/tenants/t1/invoices/in_2":
			writeJSON(w, http.StatusOK, SubscriptionInvoice{ID: "in_2", Status: InvoiceOpen, Number: "EPC-0002"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	invoices, err := client.GetInvoices(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	invoice, err := client.GetInvoice(context.Background(), "t1", "in_2")
	require.NoError(t, err)
	assert.Equal(t, "EPC-0002", invoice.Number)
}

func TestTenantIDIsPathEscaped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/subscriptions/tenants/a%2Fb/invoices", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, []SubscriptionInvoice{})
	})

	_, err := client.GetInvoices(context.Background(), "a/b")
	require.NoError(t, err)
}
