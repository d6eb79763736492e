package server

import (
	"errors"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/identity"
	obscontext "github.com/smallbiznis/academy/internal/observability/context"
	"github.com/smallbiznis/academy/internal/observability/logger"
	userdomain "github.com/smallbiznis/academy/internal/user/domain"
)

const ensuredUserTTL = 5 * time.Minute

const (
	contextUserIDKey    = "user_id"
	contextIdentityKey  = "identity"
	contextValidatedKey = "validated_request"
)

// AuthRequired resolves the caller from a bearer token or the session cookie
// and makes sure a user row exists for them.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := s.identities.ReadToken(c)
		if !ok {
			AbortWithError(c, apperror.Unauthorized(""))
			return
		}
		id, err := s.identities.Parse(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithUserID(c.Request.Context(), id.UserID)
		c.Request = c.Request.WithContext(ctx)

		if err := s.ensureUser(c, userdomain.Profile{
			UserID: id.UserID,
			Email:  id.Email,
			Name:   id.Name,
			Image:  id.Image,
			Role:   id.Role,
		}); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, id.UserID)
		c.Set(contextIdentityKey, id)
		c.Next()
	}
}

// ensureUser upserts the caller's row unless the same profile was stored
// within ensuredUserTTL.
func (s *Server) ensureUser(c *gin.Context, profile userdomain.Profile) error {
	if seen, ok := s.ensured.Get(profile.UserID); ok && seen == profile {
		return nil
	}
	if _, err := s.users.EnsureFromIdentity(c.Request.Context(), profile); err != nil {
		return err
	}
	s.ensured.Set(profile.UserID, profile, ensuredUserTTL)
	logger.WithUser(s.log, profile.UserID).Debug("user ensured from identity")
	return nil
}

// AdminRequired must run after AuthRequired.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := currentIdentity(c)
		if !ok {
			AbortWithError(c, apperror.Unauthorized(""))
			return
		}
		allowed, err := s.authz.IsAdmin(c.Request.Context(), id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !allowed {
			AbortWithError(c, apperror.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

func currentIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(contextIdentityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok && id.UserID != ""
}

func currentUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(contextUserIDKey))
}

// RateLimit admits requests per client inside the sliding window of the
// policy group. Authenticated callers are keyed by user id, others by IP.
func (s *Server) RateLimit(group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := currentUserID(c)
		if clientID == "" {
			clientID = c.ClientIP()
		}

		res := s.limiter.Allow(c.Request.Context(), group, clientID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.ResetTime.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
		}

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			window := s.limiter.Policy(group).Window
			AbortWithError(c, apperror.RateLimited(res.Limit, int64(window/time.Second)))
			return
		}
		c.Next()
	}
}

// CORS answers preflight requests itself and decorates everything else.
func CORS(policies *config.PolicyConfigHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		policy := config.DefaultPolicyConfig().CORS
		if policies != nil {
			policy = policies.Get().CORS
		}

		c.Header("Access-Control-Allow-Origin", policy.AllowOrigin)
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", strings.Join(policy.AllowMethods, ", "))
			c.Header("Access-Control-Allow-Headers", strings.Join(policy.AllowHeaders, ", "))
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// BindJSON validates the request body into T and stores it for the handler.
func BindJSON[T any]() gin.HandlerFunc {
	return bindWith[T](binding.JSON)
}

// BindQuery validates the query string into T and stores it for the handler.
func BindQuery[T any]() gin.HandlerFunc {
	return bindWith[T](binding.Query)
}

func bindWith[T any](b binding.Binding) gin.HandlerFunc {
	registerFieldNames()
	return func(c *gin.Context) {
		var req T
		if err := c.ShouldBindWith(&req, b); err != nil {
			AbortWithError(c, requestValidationError(err))
			return
		}
		c.Set(contextValidatedKey, req)
		c.Next()
	}
}

func validated[T any](c *gin.Context) T {
	v, _ := c.Get(contextValidatedKey)
	out, _ := v.(T)
	return out
}

func requestValidationError(err error) *apperror.Error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperror.RequestValidation([]apperror.FieldIssue{{Field: "body", Rule: "format"}})
	}
	issues := make([]apperror.FieldIssue, 0, len(validationErrs))
	for _, fe := range validationErrs {
		issues = append(issues, apperror.FieldIssue{Field: fe.Field(), Rule: fe.Tag()})
	}
	return apperror.RequestValidation(issues)
}

var fieldNamesOnce sync.Once

// registerFieldNames makes validator report json/form names instead of Go
// field names.
func registerFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}
