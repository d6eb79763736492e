package apperror

import (
	"fmt"
	"net/http"
)

// Kind names a concrete error. The set is closed: every kind is registered
// below with its category, status and stable code.
type Kind string

const (
	KindCourseNotFound          Kind = "CourseNotFoundError"
	KindCourseNotPublished      Kind = "CourseNotPublishedError"
	KindCourseSlugAlreadyExists Kind = "CourseSlugAlreadyExistsError"
	KindCourseFull              Kind = "CourseFullError"

	KindBookingNotFound      Kind = "BookingNotFoundError"
	KindBookingAlreadyExists Kind = "BookingAlreadyExistsError"
	KindInvalidBookingStatus Kind = "InvalidBookingStatusError"

	KindUserNotFound           Kind = "UserNotFoundError"
	KindUserEmailAlreadyExists Kind = "UserEmailAlreadyExistsError"
	KindUserValidation         Kind = "UserValidationError"

	KindPaymentProcessing   Kind = "PaymentProcessingError"
	KindStripeConfiguration Kind = "StripeConfigurationError"

	KindUnauthorized   Kind = "UnauthorizedError"
	KindForbidden      Kind = "ForbiddenError"
	KindSessionExpired Kind = "SessionExpiredError"

	KindDatabaseConnection Kind = "DatabaseConnectionError"
	KindDatabaseConstraint Kind = "DatabaseConstraintError"
	KindDatabaseValidation Kind = "DatabaseValidationError"
	KindFieldValidation    Kind = "FieldValidationError"

	KindRequestValidation Kind = "RequestValidationError"

	KindRateLimited Kind = "RateLimitExceededError"
)

type kindSpec struct {
	category Category
	status   int
	code     string
}

func spec(category Category, code string) kindSpec {
	return kindSpec{category: category, status: category.DefaultStatus(), code: code}
}

func pinned(category Category, status int, code string) kindSpec {
	return kindSpec{category: category, status: status, code: code}
}

var registry = map[Kind]kindSpec{
	KindCourseNotFound:          pinned(CategoryBusiness, http.StatusNotFound, "COURSE_NOT_FOUND"),
	KindCourseNotPublished:      spec(CategoryBusiness, "COURSE_NOT_PUBLISHED"),
	KindCourseSlugAlreadyExists: spec(CategoryValidation, "COURSE_SLUG_EXISTS"),
	KindCourseFull:              pinned(CategoryBusiness, http.StatusConflict, "COURSE_FULL"),

	KindBookingNotFound:      pinned(CategoryBusiness, http.StatusNotFound, "BOOKING_NOT_FOUND"),
	KindBookingAlreadyExists: spec(CategoryBusiness, "BOOKING_ALREADY_EXISTS"),
	KindInvalidBookingStatus: spec(CategoryBusiness, "INVALID_BOOKING_STATUS"),

	KindUserNotFound:           pinned(CategoryValidation, http.StatusNotFound, "USER_NOT_FOUND"),
	KindUserEmailAlreadyExists: pinned(CategoryValidation, http.StatusBadRequest, "USER_EMAIL_EXISTS"),
	KindUserValidation:         spec(CategoryValidation, "USER_VALIDATION_ERROR"),

	KindPaymentProcessing:   spec(CategoryInfrastructure, "PAYMENT_PROCESSING_FAILED"),
	KindStripeConfiguration: spec(CategoryInfrastructure, "STRIPE_CONFIG_ERROR"),

	KindUnauthorized:   spec(CategoryAuth, "UNAUTHORIZED"),
	KindForbidden:      pinned(CategoryAuth, http.StatusForbidden, "FORBIDDEN"),
	KindSessionExpired: spec(CategoryAuth, "SESSION_EXPIRED"),

	KindDatabaseConnection: spec(CategoryInfrastructure, "DATABASE_CONNECTION_FAILED"),
	KindDatabaseConstraint: spec(CategoryValidation, "DATABASE_CONSTRAINT_VIOLATION"),
	KindDatabaseValidation: spec(CategoryValidation, "DATABASE_VALIDATION_FAILED"),
	KindFieldValidation:    spec(CategoryValidation, "FIELD_VALIDATION_ERROR"),

	KindRequestValidation: pinned(CategoryValidation, http.StatusBadRequest, "VALIDATION_FAILED"),

	KindRateLimited: pinned(CategoryBusiness, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"),
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

func CourseNotFound(courseID string) *Error {
	return New(KindCourseNotFound, fmt.Sprintf("Course with ID %s not found", courseID),
		WithContext(map[string]any{"courseId": courseID}))
}

func CourseNotPublished(courseID string) *Error {
	return New(KindCourseNotPublished, fmt.Sprintf("Course %s is not published", courseID),
		WithContext(map[string]any{"courseId": courseID}))
}

func CourseSlugAlreadyExists(slug string) *Error {
	return New(KindCourseSlugAlreadyExists, fmt.Sprintf("Course with slug '%s' already exists", slug),
		WithContext(map[string]any{"slug": slug}))
}

func CourseFull(courseID string, capacity int) *Error {
	return New(KindCourseFull, fmt.Sprintf("Course %s has no seats left", courseID),
		WithContext(map[string]any{"courseId": courseID, "capacity": capacity}))
}

func BookingNotFound(bookingID string) *Error {
	return New(KindBookingNotFound, fmt.Sprintf("Booking with ID %s not found", bookingID),
		WithContext(map[string]any{"bookingId": bookingID}))
}

func BookingAlreadyExists(userID, courseID string) *Error {
	return New(KindBookingAlreadyExists, fmt.Sprintf("User %s already has a booking for course %s", userID, courseID),
		WithContext(map[string]any{"userId": userID, "courseId": courseID}))
}

func InvalidBookingStatus(current, attempted string) *Error {
	return New(KindInvalidBookingStatus, fmt.Sprintf("Cannot change booking status from %s to %s", current, attempted),
		WithContext(map[string]any{"currentStatus": current, "attemptedStatus": attempted}))
}

func UserNotFound(userID string) *Error {
	return New(KindUserNotFound, fmt.Sprintf("User with ID %s not found", userID),
		WithContext(map[string]any{"userId": userID}))
}

func UserEmailAlreadyExists(email string) *Error {
	return New(KindUserEmailAlreadyExists, fmt.Sprintf("User with email '%s' already exists", email),
		WithContext(map[string]any{"email": email}))
}

func UserValidation(message string) *Error {
	return New(KindUserValidation, fmt.Sprintf("User validation error: %s", message))
}

func PaymentProcessing(reason string, cause error) *Error {
	return New(KindPaymentProcessing, fmt.Sprintf("Payment processing failed: %s", reason),
		WithContext(map[string]any{"reason": reason}), WithCause(cause))
}

func StripeConfiguration(missingConfig string) *Error {
	return New(KindStripeConfiguration, fmt.Sprintf("Stripe configuration error: %s is missing or invalid", missingConfig),
		WithContext(map[string]any{"missingConfig": missingConfig}))
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(KindUnauthorized, message)
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Insufficient privileges"
	}
	return New(KindForbidden, message)
}

func SessionExpired() *Error {
	return New(KindSessionExpired, "Session has expired, please sign in again")
}

// DatabaseConnection covers every storage failure that is not the caller's fault.
func DatabaseConnection(operation string, cause error) *Error {
	return New(KindDatabaseConnection, fmt.Sprintf("Database operation failed: %s", operation),
		WithContext(map[string]any{"operation": operation}), WithCause(cause))
}

func DatabaseConstraint(constraint, table string) *Error {
	return New(KindDatabaseConstraint, fmt.Sprintf("Database constraint violation: %s in table %s", constraint, table),
		WithContext(map[string]any{"constraint": constraint, "table": table}))
}

func DatabaseValidation(message string) *Error {
	return New(KindDatabaseValidation, fmt.Sprintf("Database validation failed: %s", message))
}

func FieldValidation(field, reason string) *Error {
	return New(KindFieldValidation, fmt.Sprintf("Field validation error: %s - %s", field, reason),
		WithContext(map[string]any{"field": field, "reason": reason}))
}

func RateLimited(limit int, windowSeconds int64) *Error {
	return New(KindRateLimited, "Rate limit exceeded",
		WithContext(map[string]any{"limit": limit, "windowSeconds": windowSeconds}))
}

// FieldIssue names one field a request failed validation on.
type FieldIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func RequestValidation(issues []FieldIssue) *Error {
	return New(KindRequestValidation, "Invalid request body",
		WithContext(map[string]any{"fields": issues}))
}
