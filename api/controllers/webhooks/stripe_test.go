package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	stripewebhook "github.com/lazydrop/lazydrop-billing/internal/webhooks/stripe"
	pkgerrors "github.com/lazydrop/lazydrop-billing/pkg/errors"
)

type fakeIngester struct {
	result    stripewebhook.StoreResult
	err       error
	payload   []byte
	signature string
	calls     int
}

func (f *fakeIngester) Ingest(_ context.Context, payload []byte, signature string) (stripewebhook.StoreResult, error) {
	f.calls++
	f.payload = payload
	f.signature = signature
	return f.result, f.err
}

func postWebhook(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookAcknowledgesStoredAndDuplicate(t *testing.T) {
	for _, result := range []stripewebhook.StoreResult{stripewebhook.StoreResultStored, stripewebhook.StoreResultDuplicate} {
		ingester := &fakeIngester{result: result}
		rec := postWebhook(StripeWebhook(ingester, nil), []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), string(result))
		require.Equal(t, "t=1,v1=abc", ingester.signature)
		require.Equal(t, `{"id":"evt_1"}`, string(ingester.payload))
	}
}

func TestStripeWebhookMapsIngestErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "signature", err: pkgerrors.New(pkgerrors.CodeSignature, "invalid signature"), want: http.StatusBadRequest},
		{name: "malformed", err: pkgerrors.New(pkgerrors.CodeValidation, "malformed payload"), want: http.StatusBadRequest},
		{name: "storage", err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "store"), want: http.StatusServiceUnavailable},
		{name: "untyped", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(StripeWebhook(&fakeIngester{err: tc.err}, nil), []byte(`{}`), "sig")
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestStripeWebhookRejectsOversizedPayload(t *testing.T) {
	ingester := &fakeIngester{}
	rec := postWebhook(StripeWebhook(ingester, nil), bytes.Repeat([]byte("a"), maxPayloadBytes+1), "sig")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, ingester.calls)
}
