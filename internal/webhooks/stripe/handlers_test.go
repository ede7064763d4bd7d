package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/lazydrop/lazydrop-billing/internal/subscriptions"
	"github.com/lazydrop/lazydrop-billing/internal/users"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/ledger"
	"github.com/lazydrop/lazydrop-billing/internal/webhooks/processor"
	"github.com/lazydrop/lazydrop-billing/pkg/db"
	"github.com/lazydrop/lazydrop-billing/pkg/db/models"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
)

var handlerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type handlerFixture struct {
	conn     *gorm.DB
	stripe   *fakeStripeSubscriptions
	handlers *Handlers
	subs     *subscriptions.Service
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	conn := newTestDB(t)
	subs, err := subscriptions.NewService(subscriptions.NewRepository(conn), users.NewRepository(conn))
	require.NoError(t, err)
	fake := &fakeStripeSubscriptions{subs: map[string]*stripe.Subscription{}}
	handlers, err := NewHandlers(HandlersParams{
		Logger:        testLogger(),
		Subscriptions: subs,
		Stripe:        fake,
		Plans:         subscriptions.PlanResolver{PlusPriceID: "price_plus", ProPriceID: "price_pro"},
		Now:           func() time.Time { return handlerNow },
	})
	require.NoError(t, err)
	return &handlerFixture{conn: conn, stripe: fake, handlers: handlers, subs: subs}
}

func (f *handlerFixture) user(t *testing.T) uuid.UUID {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@example.com"}
	require.NoError(t, f.conn.Create(u).Error)
	return u.ID
}

func (f *handlerFixture) subscription(t *testing.T, userID uuid.UUID, mutate func(*models.Subscription)) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{UserID: userID, PlanCode: enums.SubscriptionPlanPlus, Status: enums.SubscriptionStatusActive}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, f.conn.Create(sub).Error)
	return sub
}

func (f *handlerFixture) reload(t *testing.T, userID uuid.UUID) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, f.conn.Where("user_id = ?", userID).Take(&sub).Error)
	return &sub
}

func eventWith(t *testing.T, eventType stripe.EventType, object any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func strPtr(v string) *string { return &v }

func TestCheckoutCompletedActivatesPlan(t *testing.T) {
	f := newHandlerFixture(t)
	userID := f.user(t)
	periodEnd := handlerNow.Add(30 * 24 * time.Hour)
	f.stripe.subs["sub_1"] = stripeSubscription("sub_1", "cus_1", "price_pro", periodEnd)

	event := eventWith(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":           "cs_1",
		"metadata":     map[string]string{"app_user_id": userID.String()},
		"subscription": "sub_1",
		"customer":     "cus_1",
	})
	require.NoError(t, f.handlers.CheckoutCompleted(context.Background(), f.conn, event))
	require.NoError(t, f.handlers.CheckoutCompleted(context.Background(), f.conn, event), "replay must be harmless")

	sub := f.reload(t, userID)
	assert.Equal(t, enums.SubscriptionPlanPro, sub.PlanCode)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *sub.StripeSubscriptionID)
	require.NotNil(t, sub.StripeCustomerID)
	assert.Equal(t, "cus_1", *sub.StripeCustomerID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, periodEnd.Unix(), sub.CurrentPeriodEnd.Unix())
}

func TestCheckoutCompletedRequiresMetadata(t *testing.T) {
	f := newHandlerFixture(t)
	event := eventWith(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_1", "subscription": "sub_1"})
	err := f.handlers.CheckoutCompleted(context.Background(), f.conn, event)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.stripe.calls)
}

func TestCheckoutCompletedUnknownUserFails(t *testing.T) {
	f := newHandlerFixture(t)
	f.stripe.subs["sub_1"] = stripeSubscription("sub_1", "cus_1", "price_plus", handlerNow)
	event := eventWith(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"metadata":     map[string]string{"app_user_id": uuid.NewString()},
		"subscription": "sub_1",
	})
	err := f.handlers.CheckoutCompleted(context.Background(), f.conn, event)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestInvoicePaymentSucceededRenews(t *testing.T) {
	f := newHandlerFixture(t)
	userID := f.user(t)
	f.subscription(t, userID, func(s *models.Subscription) {
		s.StripeSubscriptionID = strPtr("sub_1")
		s.Status = enums.SubscriptionStatusPastDue
	})
	nextEnd := handlerNow.Add(60 * 24 * time.Hour)
	f.stripe.subs["sub_1"] = stripeSubscription("sub_1", "cus_1", "price_plus", nextEnd)

	event := eventWith(t, stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id": "in_1",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
	})
	require.NoError(t, f.handlers.InvoicePaymentSucceeded(context.Background(), f.conn, event))

	sub := f.reload(t, userID)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, nextEnd.Unix(), sub.CurrentPeriodEnd.Unix())
}

func TestInvoicePaymentSucceededWithoutLocalRowFails(t *testing.T) {
	f := newHandlerFixture(t)
	f.stripe.subs["sub_9"] = stripeSubscription("sub_9", "cus_9", "price_plus", handlerNow)
	event := eventWith(t, stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"lines": map[string]any{"data": []map[string]any{{"subscription": "sub_9"}}},
	})
	err := f.handlers.InvoicePaymentSucceeded(context.Background(), f.conn, event)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestInvoiceWithoutSubscriptionIsNoop(t *testing.T) {
	f := newHandlerFixture(t)
	event := eventWith(t, stripe.EventTypeInvoicePaymentSucceeded, map[string]any{"id": "in_one_off"})
	require.NoError(t, f.handlers.InvoicePaymentSucceeded(context.Background(), f.conn, event))
	require.NoError(t, f.handlers.InvoicePaymentFailed(context.Background(), f.conn, event))
	assert.Zero(t, f.stripe.calls)
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	f := newHandlerFixture(t)
	userID := f.user(t)
	f.subscription(t, userID, func(s *models.Subscription) { s.StripeSubscriptionID = strPtr("sub_1") })

	event := eventWith(t, stripe.EventTypeInvoicePaymentFailed, map[string]any{"subscription": map[string]any{"id": "sub_1"}})
	require.NoError(t, f.handlers.InvoicePaymentFailed(context.Background(), f.conn, event))
	assert.Equal(t, enums.SubscriptionStatusPastDue, f.reload(t, userID).Status)

	unknown := eventWith(t, stripe.EventTypeInvoicePaymentFailed, map[string]any{"subscription": "sub_unknown"})
	require.NoError(t, f.handlers.InvoicePaymentFailed(context.Background(), f.conn, unknown))
}

func TestSubscriptionUpdatedFallsBackToCustomer(t *testing.T) {
	f := newHandlerFixture(t)
	userID := f.user(t)
	f.subscription(t, userID, func(s *models.Subscription) { s.StripeCustomerID = strPtr("cus_1") })

	stripeSub := stripeSubscription("sub_new", "cus_1", "price_pro", handlerNow.Add(24*time.Hour))
	stripeSub.Status = stripe.SubscriptionStatusUnpaid
	stripeSub.CancelAt = handlerNow.Add(time.Hour).Unix()
	stripeSub.Metadata = map[string]string{"app_user_id": userID.String()}

	require.NoError(t, f.handlers.SubscriptionUpdated(context.Background(), f.conn, eventWith(t, stripe.EventTypeCustomerSubscriptionUpdated, stripeSub)))

	sub := f.reload(t, userID)
	require.NotNil(t, sub.StripeSubscriptionID)
	assert.Equal(t, "sub_new", *sub.StripeSubscriptionID)
	assert.Equal(t, enums.SubscriptionPlanPro, sub.PlanCode)
	assert.Equal(t, enums.SubscriptionStatusPastDue, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.JSONEq(t, `{"app_user_id":"`+userID.String()+`"}`, string(sub.Metadata))
}

func TestSubscriptionUpdatedWithoutLocalRowFails(t *testing.T) {
	f := newHandlerFixture(t)
	stripeSub := stripeSubscription("sub_x", "cus_x", "price_pro", handlerNow)
	err := f.handlers.SubscriptionUpdated(context.Background(), f.conn, eventWith(t, stripe.EventTypeCustomerSubscriptionUpdated, stripeSub))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSubscriptionDeletedKeepsPlanUntilPeriodEnd(t *testing.T) {
	f := newHandlerFixture(t)
	future := f.user(t)
	f.subscription(t, future, func(s *models.Subscription) { s.StripeSubscriptionID = strPtr("sub_future") })
	past := f.user(t)
	f.subscription(t, past, func(s *models.Subscription) { s.StripeSubscriptionID = strPtr("sub_past") })

	ctx := context.Background()
	require.NoError(t, f.handlers.SubscriptionDeleted(ctx, f.conn, eventWith(t, stripe.EventTypeCustomerSubscriptionDeleted,
		stripeSubscription("sub_future", "cus_f", "price_plus", handlerNow.Add(time.Hour)))))
	require.NoError(t, f.handlers.SubscriptionDeleted(ctx, f.conn, eventWith(t, stripe.EventTypeCustomerSubscriptionDeleted,
		stripeSubscription("sub_past", "cus_p", "price_plus", handlerNow.Add(-time.Hour)))))

	kept := f.reload(t, future)
	assert.Equal(t, enums.SubscriptionStatusCanceled, kept.Status)
	assert.Equal(t, enums.SubscriptionPlanPlus, kept.PlanCode)
	assert.False(t, kept.CancelAtPeriodEnd)

	dropped := f.reload(t, past)
	assert.Equal(t, enums.SubscriptionStatusCanceled, dropped.Status)
	assert.Equal(t, enums.SubscriptionPlanFree, dropped.PlanCode)
}

func TestProcessorRunsHandlersFromLedger(t *testing.T) {
	f := newHandlerFixture(t)
	userID := f.user(t)
	f.subscription(t, userID, func(s *models.Subscription) { s.StripeSubscriptionID = strPtr("sub_1") })

	verifier, err := NewVerifier(testSecret, 5*time.Minute, false)
	require.NoError(t, err)
	repo := ledger.NewRepository(f.conn)
	receiver, err := NewReceiver(ReceiverParams{Logger: testLogger(), Ledger: repo, Verifier: verifier, Now: func() time.Time { return handlerNow }})
	require.NoError(t, err)

	dispatcher := processor.NewDispatcher()
	f.handlers.Register(dispatcher)
	svc, err := processor.NewService(processor.ServiceParams{
		Logger:     testLogger(),
		DB:         db.FromGorm(f.conn),
		Ledger:     repo,
		Dispatcher: dispatcher,
		Decoder:    verifier,
		Now:        func() time.Time { return handlerNow },
	})
	require.NoError(t, err)

	ctx := context.Background()
	failed := buildEventPayload(t, "evt_failed", stripe.EventTypeInvoicePaymentFailed, map[string]any{"subscription": "sub_1"})
	_, err = receiver.Ingest(ctx, failed, buildStripeSignatureHeader(failed, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	other := buildEventPayload(t, "evt_other", stripe.EventTypeCustomerCreated, map[string]any{"id": "cus_1"})
	_, err = receiver.Ingest(ctx, other, buildStripeSignatureHeader(other, testSecret, time.Now().Unix()))
	require.NoError(t, err)

	res, err := svc.ProcessReceived(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Ignored)
	assert.Equal(t, enums.SubscriptionStatusPastDue, f.reload(t, userID).Status)

	row, err := repo.FindByExternalID(ctx, "evt_other")
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookEventStatusIgnored, row.Status)
}

func TestNewHandlersValidatesParams(t *testing.T) {
	_, err := NewHandlers(HandlersParams{})
	assert.Error(t, err)
}
