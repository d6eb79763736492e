package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/erroranalytics"
	"github.com/smallbiznis/academy/internal/observability/logger"
	"github.com/smallbiznis/academy/internal/observability/reporter"
	"github.com/smallbiznis/academy/internal/persistence"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	unknownErrorCode  = "UNKNOWN_ERROR"
	internalErrorCode = "INTERNAL_SERVER_ERROR"
	genericMessage    = "An unexpected error occurred"

	defaultSlowRequestThreshold = 2000 * time.Millisecond

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

type errorBody struct {
	Message    string         `json:"message"`
	Code       string         `json:"code"`
	Category   string         `json:"category"`
	StatusCode int            `json:"statusCode"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  string         `json:"timestamp"`
	RequestID  string         `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// toHTTPResponse renders any failure value into the public envelope.
// Values that are not errors never have their content echoed back.
func toHTTPResponse(v any, requestID string, now time.Time) (int, errorResponse) {
	body := errorBody{
		Category:  string(apperror.CategoryInfrastructure),
		Timestamp: now.UTC().Format(isoMillis),
		RequestID: requestID,
	}

	err, ok := v.(error)
	if !ok || err == nil {
		body.Message = genericMessage
		body.Code = internalErrorCode
		body.StatusCode = http.StatusInternalServerError
		return body.StatusCode, errorResponse{Error: body}
	}

	if appErr, ok := apperror.As(err); ok {
		body.Message = appErr.Message()
		body.Code = appErr.Code()
		body.Category = string(appErr.Category())
		body.StatusCode = appErr.StatusCode()
		body.Context = appErr.Context()
		return body.StatusCode, errorResponse{Error: body}
	}

	body.Message = err.Error()
	body.Code = unknownErrorCode
	body.StatusCode = genericStatus(err)
	return body.StatusCode, errorResponse{Error: body}
}

func genericStatus(err error) int {
	var (
		validationErrs validator.ValidationErrors
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
		numErr         *strconv.NumError
		timeErr        *time.ParseError
	)
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.As(err, &validationErrs),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr),
		errors.As(err, &numErr),
		errors.As(err, &timeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	}
	return statusForTypeName(err)
}

// statusForTypeName reads the family from the dynamic type name, so a
// *store.NotFoundError renders as 404 without being registered here.
func statusForTypeName(err error) int {
	name := strings.ToLower(reflect.TypeOf(err).String())
	switch {
	case strings.Contains(name, "validation"):
		return http.StatusUnprocessableEntity
	case strings.Contains(name, "notfound"):
		return http.StatusNotFound
	case strings.Contains(name, "unauthorized"), strings.Contains(name, "unauthenticated"):
		return http.StatusUnauthorized
	case strings.Contains(name, "forbidden"):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

type RendererParams struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Reporter  reporter.Reporter       `optional:"true"`
	Analytics *erroranalytics.Service `optional:"true"`
}

// Renderer turns handler failures into responses and feeds telemetry.
type Renderer struct {
	log           *zap.Logger
	clock         clock.Clock
	reporter      reporter.Reporter
	analytics     *erroranalytics.Service
	slowThreshold time.Duration
}

func NewRenderer(p RendererParams) *Renderer {
	rep := p.Reporter
	if rep == nil {
		rep = reporter.Nop()
	}
	return &Renderer{
		log:           p.Log.Named("http.errors"),
		clock:         p.Clock,
		reporter:      rep,
		analytics:     p.Analytics,
		slowThreshold: defaultSlowRequestThreshold,
	}
}

// ErrorBoundary recovers panics, renders the last handler error and reports
// requests slower than the threshold.
func (r *Renderer) ErrorBoundary() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				if c.Writer.Written() {
					logger.WithContext(c.Request.Context(), r.log).Error("panic after response was written",
						zap.String("panic", fmt.Sprint(rec)))
				} else {
					r.Render(c, rec)
				}
			}
			r.checkSlow(c, time.Since(start))
		}()

		c.Next()

		if c.Writer.Written() {
			return
		}
		if last := c.Errors.Last(); last != nil {
			r.Render(c, last.Err)
		}
	}
}

// Render writes the error envelope for v.
func (r *Renderer) Render(c *gin.Context, v any) {
	if err, ok := v.(error); ok {
		v = normalize(err)
	}

	requestID := c.GetString("request_id")
	status, resp := toHTTPResponse(v, requestID, r.clock.Now())
	r.record(c, v, status, resp.Error)

	c.Header("Content-Type", "application/json")
	c.AbortWithStatusJSON(status, resp)
}

// normalize sends raw storage failures through the persistence mapper.
// A missing record stays as is and renders as 404.
func normalize(err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if persistence.IsStorageError(err) {
		return persistence.MapError(err, nil)
	}
	return err
}

func (r *Renderer) record(c *gin.Context, v any, status int, body errorBody) {
	ctx := c.Request.Context()
	fields := map[string]any{
		"requestId": body.RequestID,
		"method":    c.Request.Method,
		"path":      c.Request.URL.Path,
	}

	err, ok := v.(error)
	if ok && err != nil {
		r.reporter.Report(ctx, err, fields)
	} else {
		fields["valueType"] = fmt.Sprintf("%T", v)
		r.reporter.ReportMessage(ctx, genericMessage, apperror.SeverityCritical, fields)
		err = errors.New(genericMessage)
	}

	if r.analytics != nil {
		r.analytics.Record(ctx, err, erroranalytics.Meta{
			RequestID:  body.RequestID,
			UserAgent:  c.Request.UserAgent(),
			IP:         c.ClientIP(),
			Code:       body.Code,
			StatusCode: status,
		})
	}
}

func (r *Renderer) checkSlow(c *gin.Context, elapsed time.Duration) {
	if elapsed <= r.slowThreshold {
		return
	}
	r.reporter.ReportMessage(c.Request.Context(), "Slow request", apperror.SeverityWarning, map[string]any{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"durationMs": elapsed.Milliseconds(),
		"status":     c.Writer.Status(),
	})
}
