package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindHasOneCategoryAndStableCode(t *testing.T) {
	codes := map[string]Kind{}
	for _, kind := range Kinds() {
		spec := registry[kind]
		assert.NotEmpty(t, spec.category, "kind %s", kind)
		assert.NotZero(t, spec.status, "kind %s", kind)
		if other, dup := codes[spec.code]; dup {
			t.Fatalf("code %s shared by %s and %s", spec.code, kind, other)
		}
		codes[spec.code] = kind
	}
}

func TestDefaultStatusFollowsCategory(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, BookingAlreadyExists("u1", "c1").StatusCode())
	assert.Equal(t, http.StatusServiceUnavailable, PaymentProcessing("card declined", nil).StatusCode())
	assert.Equal(t, http.StatusUnprocessableEntity, FieldValidation("email", "bad").StatusCode())
	assert.Equal(t, http.StatusUnauthorized, SessionExpired().StatusCode())

	// pinned
	assert.Equal(t, http.StatusNotFound, CourseNotFound("c1").StatusCode())
	assert.Equal(t, http.StatusBadRequest, UserEmailAlreadyExists("a@b.c").StatusCode())
	assert.Equal(t, CategoryValidation, UserEmailAlreadyExists("a@b.c").Category())
}

func TestMarshalJSONOmitsCause(t *testing.T) {
	err := DatabaseConnection("Database connection refused", errors.New("dial tcp 10.0.0.5:5432: secret-host"))

	raw, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "DatabaseConnectionError", body["name"])
	assert.Equal(t, "DATABASE_CONNECTION_FAILED", body["errorCode"])
	assert.Equal(t, "infrastructure", body["category"])
	assert.EqualValues(t, http.StatusServiceUnavailable, body["statusCode"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotContains(t, string(raw), "secret-host")
	assert.NotContains(t, string(raw), "stack")
}

func TestContextIsCopied(t *testing.T) {
	fields := map[string]any{"courseId": "c1"}
	err := New(KindCourseNotFound, "missing", WithContext(fields))
	fields["courseId"] = "mutated"

	assert.Equal(t, "c1", err.Context()["courseId"])

	view := err.Context()
	view["courseId"] = "mutated"
	assert.Equal(t, "c1", err.Context()["courseId"])
}

func TestErrorsIsAndAs(t *testing.T) {
	cause := errors.New("driver failure")
	err := fmt.Errorf("load booking: %w", DatabaseConnection("select", cause))

	assert.True(t, errors.Is(err, Sentinel(KindDatabaseConnection)))
	assert.False(t, errors.Is(err, Sentinel(KindBookingNotFound)))
	assert.True(t, errors.Is(err, cause))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindDatabaseConnection, appErr.Kind())
	assert.True(t, IsKind(err, KindDatabaseConnection))
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, DatabaseConnection("x", nil).Severity())
	assert.Equal(t, SeverityCritical, Unauthorized("").Severity())
	assert.Equal(t, SeverityCritical, Forbidden("").Severity())
	assert.Equal(t, SeverityWarning, CourseNotFound("c1").Severity())
	assert.Equal(t, SeverityWarning, FieldValidation("f", "r").Severity())
	assert.Equal(t, SeverityInfo, SeverityFor(http.StatusOK, CategoryBusiness))
}

func TestUnknownKindFallsBack(t *testing.T) {
	err := New(Kind("Nope"), "x")
	assert.Equal(t, KindDatabaseConnection, err.Kind())
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode())
}

func TestInvalidBookingStatusMessage(t *testing.T) {
	err := InvalidBookingStatus("PAID", "PENDING")
	assert.Equal(t, CategoryBusiness, err.Category())
	assert.True(t, strings.Contains(err.Error(), "from PAID to PENDING"))
}
