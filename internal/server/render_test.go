package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type forbiddenError struct{}

func (forbiddenError) Error() string { return "not yours" }

func TestToHTTPResponse(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		value    any
		status   int
		code     string
		category string
		message  string
	}{
		{
			name:     "taxonomy error verbatim",
			value:    apperror.CourseNotFound("c1"),
			status:   http.StatusNotFound,
			code:     "COURSE_NOT_FOUND",
			category: "business",
			message:  "Course with ID c1 not found",
		},
		{
			name:     "wrapped taxonomy error",
			value:    fmt.Errorf("load: %w", apperror.Forbidden("nope")),
			status:   http.StatusForbidden,
			code:     "FORBIDDEN",
			category: "auth",
			message:  "nope",
		},
		{
			name:     "plain error",
			value:    errors.New("boom"),
			status:   http.StatusInternalServerError,
			code:     "UNKNOWN_ERROR",
			category: "infrastructure",
			message:  "boom",
		},
		{
			name:     "record not found",
			value:    gorm.ErrRecordNotFound,
			status:   http.StatusNotFound,
			code:     "UNKNOWN_ERROR",
			category: "infrastructure",
			message:  gorm.ErrRecordNotFound.Error(),
		},
		{
			name:     "invalid request sentinel",
			value:    fmt.Errorf("page: %w", ErrInvalidRequest),
			status:   http.StatusUnprocessableEntity,
			code:     "UNKNOWN_ERROR",
			category: "infrastructure",
			message:  "page: invalid_request",
		},
		{
			name:     "unauthorized sentinel",
			value:    ErrUnauthorized,
			status:   http.StatusUnauthorized,
			code:     "UNKNOWN_ERROR",
			category: "infrastructure",
			message:  "unauthorized",
		},
		{
			name:     "type name family",
			value:    forbiddenError{},
			status:   http.StatusForbidden,
			code:     "UNKNOWN_ERROR",
			category: "infrastructure",
			message:  "not yours",
		},
		{
			name:     "non-error value",
			value:    "boom",
			status:   http.StatusInternalServerError,
			code:     "INTERNAL_SERVER_ERROR",
			category: "infrastructure",
			message:  "An unexpected error occurred",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := toHTTPResponse(tc.value, "req-1", now)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.status, resp.Error.StatusCode)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Equal(t, tc.category, resp.Error.Category)
			assert.Equal(t, tc.message, resp.Error.Message)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			assert.Equal(t, "2024-03-01T09:00:00.000Z", resp.Error.Timestamp)
		})
	}
}

func TestToHTTPResponseCarriesContext(t *testing.T) {
	_, resp := toHTTPResponse(apperror.CourseNotFound("c1"), "", time.Now())
	assert.Equal(t, map[string]any{"courseId": "c1"}, resp.Error.Context)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "requestId")
}

func TestErrorBoundaryHidesPanicValues(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.GET("/test/panic", func(c *gin.Context) {
		panic("boom")
	})

	rec := ts.do(t, http.MethodGet, "/test/panic", nil, withHeader("X-Request-Id", "req-42"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env := errorEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", env["code"])
	assert.Equal(t, "An unexpected error occurred", env["message"])
	assert.Equal(t, "req-42", env["requestId"])

	recent := ts.analytics.Recent(1, 10)
	require.Len(t, recent.Errors, 1)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", recent.Errors[0].ErrorCode)
	assert.Equal(t, http.StatusInternalServerError, recent.Errors[0].StatusCode)
	assert.Equal(t, "req-42", recent.Errors[0].RequestID)
	assert.NotContains(t, recent.Errors[0].Message, "boom")

	assert.Contains(t, ts.reporter.Messages(), "An unexpected error occurred")
}

func TestErrorBoundaryRecoversPanickedErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.GET("/test/panic-error", func(c *gin.Context) {
		panic(apperror.BookingNotFound("b1"))
	})

	rec := ts.do(t, http.MethodGet, "/test/panic-error", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BOOKING_NOT_FOUND", errorEnvelope(t, rec)["code"])
}

func TestErrorBoundaryMapsStorageFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.POST("/test/unique", func(c *gin.Context) {
		AbortWithError(c, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "users_email_key",
			TableName:      "users",
		})
	})

	rec := ts.do(t, http.MethodPost, "/test/unique", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := errorEnvelope(t, rec)
	assert.Equal(t, "USER_EMAIL_EXISTS", env["code"])
	assert.Equal(t, "validation", env["category"])

	recent := ts.analytics.Recent(1, 10)
	require.Len(t, recent.Errors, 1)
	assert.Equal(t, "USER_EMAIL_EXISTS", recent.Errors[0].ErrorCode)
}

func TestErrorBoundaryRendersGenericErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.GET("/test/missing", func(c *gin.Context) {
		AbortWithError(c, fmt.Errorf("lookup: %w", ErrNotFound))
	})

	rec := ts.do(t, http.MethodGet, "/test/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_ERROR", errorEnvelope(t, rec)["code"])

	recent := ts.analytics.Recent(1, 10)
	require.Len(t, recent.Errors, 1)
	assert.Equal(t, "UNKNOWN_ERROR", recent.Errors[0].ErrorCode)
	assert.Equal(t, http.StatusNotFound, recent.Errors[0].StatusCode)
}

func TestErrorBoundaryReportsSlowRequests(t *testing.T) {
	ts := newTestServer(t)
	ts.renderer.slowThreshold = 0

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, ts.reporter.Messages(), "Slow request")
}

func TestErrorBoundaryIgnoresFastRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.reporter.Messages())
}
