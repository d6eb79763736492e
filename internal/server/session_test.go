package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/academy/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.DefaultCookieName {
			return c
		}
	}
	require.FailNow(t, "session cookie not set", rec.Header().Get("Set-Cookie"))
	return nil
}

func TestRefreshSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/session", nil, bearer(ts.token(t, "u1", "")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, "2024-03-31T09:00:00Z", body["expiresAt"])

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), cookie.MaxAge)

	// the bearer token above only lived for an hour
	ts.fake.Advance(2 * time.Hour)
	rec = ts.do(t, http.MethodGet, "/api/bookings", nil,
		withHeader("Cookie", identity.DefaultCookieName+"="+cookie.Value))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshSessionRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/session", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestEndSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodDelete, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}
