package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

var simEpoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newSim(opts ...SimulatedOption) *SimulatedProvider {
	opts = append([]SimulatedOption{WithSimulatedClock(func() time.Time { return simEpoch })}, opts...)
	return NewSimulatedProvider(opts...)
}

func standardCheckout(tenantID string, interval subscriptions.BillingInterval) CheckoutRequest {
	plans := DefaultPlans()
	plan := plans[2]
	return CheckoutRequest{
		TenantID:   tenantID,
		Plan:       plan,
		Interval:   interval,
		Price:      plan.Pricing[interval],
		Quantity:   4,
		SuccessURL: "https://app.example.com/billing/success",
		CancelURL:  "https://app.example.com/billing/cancel",
	}
}

func checkoutSub(t *testing.T, p *SimulatedProvider, req CheckoutRequest) *Subscription {
	t.Helper()
	res, err := p.CreateCheckoutSession(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Events)
	require.Equal(t, EventSubscriptionUpdated, res.Events[0].Type)
	return res.Events[0].Subscription
}

func TestSimulated_CheckoutCompletesImmediately(t *testing.T) {
	p := newSim()

	res, err := p.CreateCheckoutSession(context.Background(), standardCheckout("tenant-1", subscriptions.IntervalQuarterly))
	require.NoError(t, err)

	assert.Contains(t, res.Session.CheckoutURL, "https://app.example.com/billing/success?session_id=cs_sim_")
	assert.Contains(t, res.Session.CheckoutURL, res.Session.SessionID)

	require.Len(t, res.Events, 2)
	sub := res.Events[0].Subscription
	assert.Equal(t, "tenant-1", sub.TenantID)
	assert.Equal(t, subscriptions.StatusActive, sub.Status)
	assert.Equal(t, simEpoch, sub.CurrentPeriodStart)
	assert.Equal(t, simEpoch.AddDate(0, 3, 0), sub.CurrentPeriodEnd)
	assert.Equal(t, 4, sub.Quantity)
	assert.NotEmpty(t, sub.StripeCustomerID)
	assert.NotEmpty(t, sub.StripeSubscriptionID)

	inv := res.Events[1].Invoice
	require.NotNil(t, inv)
	assert.Equal(t, subscriptions.InvoicePaid, inv.Status)
	assert.Equal(t, int64(28200*4), inv.Amount)
	assert.Equal(t, "gbp", inv.Currency)
	assert.Equal(t, "SIM-000001", inv.Number)
}

func TestSimulated_CheckoutReusesCustomer(t *testing.T) {
	p := newSim()
	req := standardCheckout("tenant-1", subscriptions.IntervalMonthly)
	req.CustomerID = "cus_existing"

	sub := checkoutSub(t, p, req)
	assert.Equal(t, "cus_existing", sub.StripeCustomerID)
}

func TestSimulated_Trial(t *testing.T) {
	p := newSim(WithTrialPeriod(14 * 24 * time.Hour))

	res, err := p.CreateCheckoutSession(context.Background(), standardCheckout("tenant-1", subscriptions.IntervalMonthly))
	require.NoError(t, err)
	require.Len(t, res.Events, 1, "no invoice while trialing")
	sub := res.Events[0].Subscription
	assert.Equal(t, subscriptions.StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)

	assert.Empty(t, p.AdvanceClock(13*24*time.Hour))

	events := p.AdvanceClock(24 * time.Hour)
	require.Len(t, events, 2)
	assert.Equal(t, subscriptions.StatusActive, events[0].Subscription.Status)
	assert.Equal(t, EventInvoiceUpdated, events[1].Type)
}

func TestSimulated_RenewalAtPeriodEnd(t *testing.T) {
	p := newSim()
	checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

	events := p.AdvanceClock(31 * 24 * time.Hour)
	require.Len(t, events, 2)
	renewed := events[0].Subscription
	assert.Equal(t, EventSubscriptionUpdated, events[0].Type)
	assert.Equal(t, simEpoch.AddDate(0, 1, 0), renewed.CurrentPeriodStart)
	assert.Equal(t, simEpoch.AddDate(0, 2, 0), renewed.CurrentPeriodEnd)
	assert.Equal(t, subscriptions.InvoicePaid, events[1].Invoice.Status)
}

func TestSimulated_CancelAtPeriodEnd(t *testing.T) {
	p := newSim()
	sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

	pending, err := p.Cancel(context.Background(), sub, true)
	require.NoError(t, err)
	assert.True(t, pending.CancelAtPeriodEnd)
	assert.Equal(t, subscriptions.StatusActive, pending.Status)

	events := p.AdvanceClock(40 * 24 * time.Hour)
	require.Len(t, events, 1)
	assert.Equal(t, EventSubscriptionDeleted, events[0].Type)
	assert.Equal(t, subscriptions.StatusCanceled, events[0].Subscription.Status)
	assert.False(t, events[0].Subscription.CancelAtPeriodEnd)
}

func TestSimulated_Reactivate(t *testing.T) {
	t.Run("clears pending cancellation", func(t *testing.T) {
		p := newSim()
		sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))
		_, err := p.Cancel(context.Background(), sub, true)
		require.NoError(t, err)

		got, err := p.Reactivate(context.Background(), sub)
		require.NoError(t, err)
		assert.False(t, got.CancelAtPeriodEnd)
		assert.Equal(t, subscriptions.StatusActive, got.Status)
	})

	t.Run("restarts inside the window", func(t *testing.T) {
		p := newSim(WithReactivationWindow(48 * time.Hour))
		sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))
		_, err := p.Cancel(context.Background(), sub, false)
		require.NoError(t, err)

		p.AdvanceClock(24 * time.Hour)
		got, err := p.Reactivate(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, subscriptions.StatusActive, got.Status)
		assert.Equal(t, simEpoch.Add(24*time.Hour), got.CurrentPeriodStart)
	})

	t.Run("refuses outside the window", func(t *testing.T) {
		p := newSim(WithReactivationWindow(48 * time.Hour))
		sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))
		_, err := p.Cancel(context.Background(), sub, false)
		require.NoError(t, err)

		p.AdvanceClock(72 * time.Hour)
		_, err = p.Reactivate(context.Background(), sub)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("refuses an active subscription", func(t *testing.T) {
		p := newSim()
		sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

		_, err := p.Reactivate(context.Background(), sub)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestSimulated_CancelTwice(t *testing.T) {
	p := newSim()
	sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

	_, err := p.Cancel(context.Background(), sub, false)
	require.NoError(t, err)
	_, err = p.Cancel(context.Background(), sub, false)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = p.UpdateQuantity(context.Background(), sub, 9)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSimulated_PastDueThenCanceled(t *testing.T) {
	p := newSim(WithGracePeriod(3 * 24 * time.Hour))
	sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

	events, err := p.FailPayment(sub.StripeSubscriptionID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, subscriptions.StatusPastDue, events[0].Subscription.Status)
	assert.Equal(t, subscriptions.InvoiceOpen, events[1].Invoice.Status)
	require.NotNil(t, events[1].Invoice.DueDate)

	_, err = p.FailPayment(sub.StripeSubscriptionID)
	assert.ErrorIs(t, err, ErrConflict)

	events = p.AdvanceClock(3 * 24 * time.Hour)
	require.Len(t, events, 1)
	assert.Equal(t, EventSubscriptionDeleted, events[0].Type)

	_, err = p.FailPayment("sub_unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSimulated_TrialEndsWithoutPayment(t *testing.T) {
	p := newSim(WithTrialPeriod(14 * 24 * time.Hour))
	sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

	require.NoError(t, p.FailTrialPayment(sub.StripeSubscriptionID))

	events := p.AdvanceClock(14 * 24 * time.Hour)
	require.Len(t, events, 2)
	assert.Equal(t, subscriptions.StatusIncomplete, events[0].Subscription.Status)
	inv := events[1].Invoice
	require.NotNil(t, inv)
	assert.Equal(t, subscriptions.InvoiceOpen, inv.Status)
	assert.Equal(t, simEpoch.Add(14*24*time.Hour), inv.CreatedAt)

	assert.Empty(t, p.AdvanceClock(40*24*time.Hour), "incomplete subscriptions do not renew")

	err := p.FailTrialPayment(sub.StripeSubscriptionID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, p.FailTrialPayment("sub_unknown"), ErrNotFound)

	events, err = p.RecoverPayment(sub.StripeSubscriptionID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, subscriptions.StatusActive, events[0].Subscription.Status)
	assert.Equal(t, subscriptions.InvoicePaid, events[1].Invoice.Status)
}

func TestSimulated_PastDueRecovered(t *testing.T) {
	p := newSim(WithGracePeriod(3 * 24 * time.Hour))
	sub := checkoutSub(t, p, standardCheckout("tenant-1", subscriptions.IntervalMonthly))

	_, err := p.RecoverPayment(sub.StripeSubscriptionID)
	assert.ErrorIs(t, err, ErrConflict, "nothing outstanding")

	_, err = p.FailPayment(sub.StripeSubscriptionID)
	require.NoError(t, err)
	assert.Empty(t, p.AdvanceClock(2*24*time.Hour))

	events, err := p.RecoverPayment(sub.StripeSubscriptionID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSubscriptionUpdated, events[0].Type)
	assert.Equal(t, subscriptions.StatusActive, events[0].Subscription.Status)
	assert.Equal(t, subscriptions.InvoicePaid, events[1].Invoice.Status)
	assert.NotNil(t, events[1].Invoice.PaidAt)

	assert.Empty(t, p.AdvanceClock(2*24*time.Hour), "grace period no longer runs")

	_, err = p.RecoverPayment("sub_unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSimulated_AdoptsUnknownSubscription(t *testing.T) {
	p := newSim()
	stored := &Subscription{
		ID:                   "sub-1",
		TenantID:             "tenant-1",
		Status:               subscriptions.StatusActive,
		BillingInterval:      subscriptions.IntervalMonthly,
		CurrentPeriodStart:   simEpoch,
		CurrentPeriodEnd:     simEpoch.AddDate(0, 1, 0),
		Quantity:             2,
		StripeSubscriptionID: "sub_from_before_restart",
	}

	got, err := p.UpdateQuantity(context.Background(), stored, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
	assert.Equal(t, "sub_from_before_restart", got.StripeSubscriptionID)
	assert.Equal(t, 2, stored.Quantity, "caller's record is not mutated")
}

func TestSimulated_BillingPortal(t *testing.T) {
	p := newSim()

	session, err := p.CreateBillingPortalSession(context.Background(), "cus_1", "https://app.example.com/settings")
	require.NoError(t, err)
	assert.Contains(t, session.PortalURL, "customer=cus_1")
	assert.Contains(t, session.PortalURL, "return_url=")

	_, err = p.CreateBillingPortalSession(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSimulated_ParseWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"subscription.updated","tenantId":"tenant-1",
		"subscription":{"tenantId":"tenant-1","planId":"basic","status":"past_due","quantity":1}}`)

	t.Run("unsigned", func(t *testing.T) {
		ev, err := newSim().ParseWebhook(context.Background(), payload, "")
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, EventSubscriptionUpdated, ev.Type)
		assert.Equal(t, subscriptions.StatusPastDue, ev.Subscription.Status)
	})

	t.Run("signed", func(t *testing.T) {
		p := newSim(WithSimulatedWebhookSecret("whsec"))
		mac := hmac.New(sha256.New, []byte("whsec"))
		mac.Write(payload)

		ev, err := p.ParseWebhook(context.Background(), payload, hex.EncodeToString(mac.Sum(nil)))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)

		_, err = p.ParseWebhook(context.Background(), payload, "bad")
		assert.Error(t, err)
	})

	t.Run("ignored type", func(t *testing.T) {
		ev, err := newSim().ParseWebhook(context.Background(), []byte(`{"type":"customer.created"}`), "")
		require.NoError(t, err)
		assert.Nil(t, ev)
	})

	t.Run("missing body", func(t *testing.T) {
		_, err := newSim().ParseWebhook(context.Background(), []byte(`{"type":"invoice.updated"}`), "")
		assert.Error(t, err)

		_, err = newSim().ParseWebhook(context.Background(), []byte(`not json`), "")
		assert.Error(t, err)
	})
}
