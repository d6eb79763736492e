package server

import (
	"context"
	"net/http"
	"testing"

	bookingdomain "github.com/smallbiznis/academy/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) checkout(t *testing.T, token, courseID string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{"courseId": courseID}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id, ok := decode(t, rec)["bookingId"].(string)
	require.True(t, ok)
	return id
}

func paidSession(id, bookingID, courseID, userID string) paymentdomain.CheckoutSession {
	return paymentdomain.CheckoutSession{
		ID:              id,
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_" + id,
		AmountTotal:     4900,
		Currency:        "usd",
		Metadata: map[string]string{
			"bookingId": bookingID,
			"courseId":  courseID,
			"userId":    userID,
		},
	}
}

func TestCreateCheckout(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCourse(t, "c1", true)

	rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{"courseId": "c1"}, bearer(ts.token(t, "u1", "")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "cs_test_1", body["sessionId"])
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", body["url"])
	bookingID, _ := body["bookingId"].(string)
	require.NotEmpty(t, bookingID)

	require.Len(t, ts.gw.created, 1)
	params := ts.gw.created[0]
	assert.Equal(t, bookingID, params.BookingID)
	assert.Equal(t, "c1", params.CourseID)
	assert.Equal(t, "u1", params.UserID)
	assert.Equal(t, "u1@example.com", params.CustomerEmail)
	assert.Equal(t, int64(4900), params.Amount)
	assert.Equal(t, testAppURL+"/checkout/success?session_id={CHECKOUT_SESSION_ID}", params.SuccessURL)
	assert.Equal(t, testAppURL+"/courses", params.CancelURL)

	b := ts.booking(t, bookingID)
	assert.Equal(t, bookingdomain.StatusPending, b.PaymentStatus)
	assert.Equal(t, "cs_test_1", b.StripeSessionID)
}

func TestCreateCheckoutFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCourse(t, "c1", true)
	ts.seedCourse(t, "draft", false)
	token := ts.token(t, "u1", "")

	t.Run("unknown course", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{"courseId": "ghost"}, bearer(token))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "COURSE_NOT_FOUND", errorEnvelope(t, rec)["code"])
	})

	t.Run("unpublished course", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{"courseId": "draft"}, bearer(token))
		assert.Equal(t, "COURSE_NOT_PUBLISHED", errorEnvelope(t, rec)["code"])
	})

	t.Run("bad redirect url", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{
			"courseId":   "c1",
			"successUrl": "not a url",
		}, bearer(token))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_FAILED", errorEnvelope(t, rec)["code"])
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		ts.gw.createErr = paymentdomain.ErrGatewayUnavailable
		defer func() { ts.gw.createErr = nil }()

		rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{"courseId": "c1"}, bearer(token))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Payment service unavailable", body["error"])
	})

	t.Run("provider rejects", func(t *testing.T) {
		ts.gw.createErr = &paymentdomain.ProviderError{StatusCode: http.StatusBadRequest, Code: "parameter_invalid", Message: "Invalid currency"}
		defer func() { ts.gw.createErr = nil }()

		rec := ts.do(t, http.MethodPost, "/api/checkout", map[string]any{"courseId": "c1"}, bearer(token))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "parameter_invalid", body["code"])
		assert.Equal(t, "Invalid currency", body["error"])
	})
}

func TestVerifyCheckout(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCourse(t, "c1", true)
	token := ts.token(t, "u1", "")

	bookingID := ts.checkout(t, token, "c1")
	ts.gw.setSession(paidSession("cs_test_1", bookingID, "c1", "u1"))

	rec := ts.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_test_1", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	booking, ok := body["booking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, bookingID, booking["id"])
	assert.Equal(t, "Course c1", booking["courseTitle"])
	assert.EqualValues(t, 4900, booking["price"])
	assert.Equal(t, "USD", booking["currency"])
	assert.Equal(t, "PAID", booking["paymentStatus"])

	b := ts.booking(t, bookingID)
	assert.Equal(t, bookingdomain.StatusPaid, b.PaymentStatus)
	assert.Equal(t, "pi_cs_test_1", b.StripePaymentIntentID)

	rec = ts.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_test_1", nil, bearer(token))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestVerifyCheckoutAfterProviderForgotSession(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCourse(t, "c1", true)
	token := ts.token(t, "u1", "")

	bookingID := ts.checkout(t, token, "c1")
	b := ts.booking(t, bookingID)
	b.PaymentStatus = bookingdomain.StatusPaid
	require.NoError(t, ts.db.WithContext(context.Background()).Save(b).Error)

	rec := ts.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_test_1", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	booking, ok := decode(t, rec)["booking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PAID", booking["paymentStatus"])
}

func TestVerifyCheckoutFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCourse(t, "c1", true)
	owner := ts.token(t, "u1", "")
	other := ts.token(t, "u2", "")

	bookingID := ts.checkout(t, owner, "c1")
	ts.gw.setSession(paidSession("cs_test_1", bookingID, "c1", "u1"))
	ts.gw.setSession(paymentdomain.CheckoutSession{ID: "cs_unpaid", PaymentStatus: "unpaid"})
	ts.gw.setSession(paidSession("cs_foreign", "", "c1", "u9"))
	ts.gw.setSession(paidSession("cs_nocourse", "", "", ""))
	ts.gw.setSession(paidSession("cs_ghost", "", "ghost", "u2"))

	cases := []struct {
		name    string
		query   string
		token   string
		status  int
		message string
	}{
		{"missing session", "", owner, http.StatusBadRequest, "Session ID is required"},
		{"linked to another account", "?session_id=cs_test_1", other, http.StatusForbidden, "This payment is linked to another account"},
		{"not paid", "?session_id=cs_unpaid", other, http.StatusBadRequest, "Payment not completed"},
		{"metadata mismatch", "?session_id=cs_foreign", other, http.StatusForbidden, "Payment metadata does not match the current user"},
		{"no course", "?session_id=cs_nocourse", other, http.StatusBadRequest, "Unable to determine course for this payment"},
		{"unknown session", "?session_id=cs_missing", other, http.StatusNotFound, "No such checkout.session: cs_missing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/checkout/verify"+tc.query, nil, bearer(tc.token))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["error"])
		})
	}

	t.Run("unknown course", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_ghost", nil, bearer(other))
		require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
		env := errorEnvelope(t, rec)
		assert.Equal(t, "COURSE_NOT_FOUND", env["code"])
		assert.Equal(t, map[string]any{"courseId": "ghost"}, env["context"])
	})

	assert.Equal(t, bookingdomain.StatusPending, ts.booking(t, bookingID).PaymentStatus)
}

func TestVerifyCheckoutProviderOutage(t *testing.T) {
	ts := newTestServer(t)
	ts.gw.retrieveErr = &paymentdomain.ProviderError{Code: "api_error", Message: "Stripe is down"}

	rec := ts.do(t, http.MethodGet, "/api/checkout/verify?session_id=cs_1", nil, bearer(ts.token(t, "u1", "")))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "api_error", body["code"])
	assert.Equal(t, "Stripe is down", body["error"])
}

func TestListAndGetBookings(t *testing.T) {
	ts := newTestServer(t)
	ts.seedCourse(t, "c1", true)
	owner := ts.token(t, "u1", "")
	bookingID := ts.checkout(t, owner, "c1")

	rec := ts.do(t, http.MethodGet, "/api/bookings", nil, bearer(owner))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list, ok := decode(t, rec)["bookings"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	rec = ts.do(t, http.MethodGet, "/api/bookings/"+bookingID, nil, bearer(owner))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/bookings/"+bookingID, nil, bearer(ts.token(t, "u2", "")))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
