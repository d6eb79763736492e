package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(secret string) (*Manager, *clock.FakeClock) {
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewManager(Params{Cfg: config.Config{AuthJWTSecret: secret}, Clock: fake}), fake
}

func TestIssueAndParse(t *testing.T) {
	m, _ := newManager("s3cret")
	token, expiresAt, err := m.Issue(Identity{UserID: "u1", Email: "ada@example.com", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	id, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "admin", id.Role)
	assert.True(t, id.ExpiresAt.Equal(expiresAt))
}

func TestParseExpiredToken(t *testing.T) {
	m, fake := newManager("s3cret")
	token, _, err := m.Issue(Identity{UserID: "u1"}, time.Minute)
	require.NoError(t, err)

	fake.Advance(2 * time.Minute)
	_, err = m.Parse(token)
	assert.True(t, apperror.IsKind(err, apperror.KindSessionExpired))
}

func TestParseRejectsForeignTokens(t *testing.T) {
	m, _ := newManager("s3cret")
	other, _ := newManager("different")

	token, _, err := other.Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = m.Parse(token)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(unsigned)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))

	_, err = m.Parse("garbage")
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))

	unconfigured, _ := newManager("")
	_, err = unconfigured.Parse(token)
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
}

func TestReadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newManager("s3cret")

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
		ok     bool
	}{
		{name: "bearer", header: "Bearer abc", want: "abc", ok: true},
		{name: "bearer wins over cookie", header: "bearer abc", cookie: "def", want: "abc", ok: true},
		{name: "cookie", cookie: "def", want: "def", ok: true},
		{name: "basic is ignored", header: "Basic abc"},
		{name: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.cookie})
			}
			got, ok := m.ReadToken(c)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
