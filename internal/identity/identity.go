// Package identity turns session tokens into the caller's identity.
package identity

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	"go.uber.org/fx"
)

const DefaultCookieName = "_sid"

var ErrNotConfigured = errors.New("identity: AUTH_JWT_SECRET is not configured")

// Identity is what a verified token says about the caller.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	Image     string
	Role      string
	ExpiresAt time.Time
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Image string `json:"picture,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Params struct {
	fx.In

	Cfg   config.Config
	Clock clock.Clock
}

// Manager reads, issues and clears session tokens.
type Manager struct {
	cookieName string
	secure     bool
	secret     []byte
	clock      clock.Clock
}

func NewManager(p Params) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     p.Cfg.AuthCookieSecure,
		secret:     []byte(p.Cfg.AuthJWTSecret),
		clock:      p.Clock,
	}
}

// ReadToken prefers the Authorization header over the session cookie.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token, true
		}
	}

	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *Manager) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}
	now := m.clock.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		Image: id.Image,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies an HS256 token. Failures come back as taxonomy errors.
func (m *Manager) Parse(raw string) (Identity, error) {
	if len(m.secret) == 0 {
		return Identity{}, apperror.Unauthorized("Authentication is not configured")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperror.SessionExpired()
		}
		return Identity{}, apperror.Unauthorized("Invalid authentication token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, apperror.Unauthorized("Invalid authentication token")
	}

	id := Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		Image:  claims.Image,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Set writes the session cookie.
func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(m.clock.Now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
