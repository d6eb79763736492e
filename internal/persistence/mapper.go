package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Fields carries the values the caller was writing, so that a constraint
// failure can name them (email, slug, userId, courseId).
type Fields map[string]any

const unknownValue = "unknown"

var (
	unknownShape = []error{
		driver.ErrBadConn,
		sql.ErrConnDone,
		sql.ErrTxDone,
		gorm.ErrInvalidTransaction,
	}
	validationShape = []error{
		gorm.ErrInvalidData,
		gorm.ErrInvalidField,
		gorm.ErrInvalidValue,
		gorm.ErrInvalidValueOfLength,
		gorm.ErrModelValueRequired,
		gorm.ErrModelAccessibleFieldsRequired,
		gorm.ErrPrimaryKeyRequired,
		gorm.ErrMissingWhereClause,
		gorm.ErrUnsupportedRelation,
		gorm.ErrSubQueryRequired,
		gorm.ErrEmptySlice,
		gorm.ErrPreloadNotAllowed,
	}
	initializationShape = []error{
		gorm.ErrInvalidDB,
		gorm.ErrUnsupportedDriver,
		gorm.ErrNotImplemented,
		gorm.ErrDryRunModeUnsupported,
	}
)

// MapError translates any storage failure into the error taxonomy. It never
// panics and never returns nil for a non-nil input. Errors that already
// belong to the taxonomy pass through unchanged.
func MapError(err error, fields Fields) (mapped *apperror.Error) {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}

	defer func() {
		if r := recover(); r != nil {
			mapped = apperror.DatabaseConnection("Unexpected database error", err)
		}
	}()

	if f, ok := db.Classify(err); ok {
		return mapFailure(f, err, fields)
	}

	var connectErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connectErr), matchesAny(err, initializationShape):
		return apperror.DatabaseConnection("Database initialization failed", err)
	case matchesAny(err, unknownShape):
		return apperror.DatabaseConnection("Unknown database error", err)
	case matchesAny(err, validationShape):
		return apperror.New(apperror.KindDatabaseValidation,
			fmt.Sprintf("Database validation failed: %s", err.Error()), apperror.WithCause(err))
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.DatabaseConnection("Database connection timeout", err)
	}

	return apperror.DatabaseConnection("Unexpected database error", err)
}

// IsStorageError reports whether err has one of the shapes MapError knows
// how to read.
func IsStorageError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := db.Classify(err); ok {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr) ||
		matchesAny(err, initializationShape) ||
		matchesAny(err, unknownShape) ||
		matchesAny(err, validationShape)
}

func mapFailure(f db.Failure, err error, fields Fields) *apperror.Error {
	switch f.Code {
	case db.CodeUniqueViolation:
		return mapUniqueViolation(f, fields)
	case db.CodeForeignKeyViolation:
		return apperror.DatabaseConstraint("Foreign key constraint", valueOr(f.Table, unknownValue))
	case db.CodeCheckViolation:
		return apperror.DatabaseConstraint(valueOr(f.Constraint, "Check constraint"), valueOr(f.Table, unknownValue))
	case db.CodeRecordNotFound:
		return apperror.DatabaseConnection("Record not found for operation", err)
	case db.CodeNotNullViolation:
		return fieldValidation(f, "Required field missing")
	case db.CodeValueTooLong:
		return fieldValidation(f, "Value too long for database field")
	case db.CodeOutOfRange:
		return fieldValidation(f, "Value out of range for field type")
	case db.CodeInconsistentData:
		return fieldValidation(f, "Inconsistent column data")
	case db.CodeConnectionTimeout:
		return apperror.DatabaseConnection("Database connection timeout", err)
	case db.CodeConnectionRefused:
		return apperror.DatabaseConnection("Database connection refused", err)
	case db.CodeDatabaseMissing:
		return apperror.DatabaseConnection("Database does not exist", err)
	case db.CodeAuthFailed:
		return apperror.DatabaseConnection("Database authentication failed", err)
	default:
		return apperror.DatabaseConnection(fmt.Sprintf("Database error %s: %s", f.DriverCode, f.Message), err)
	}
}

func mapUniqueViolation(f db.Failure, fields Fields) *apperror.Error {
	constraint := strings.ToLower(f.Constraint)
	table := strings.ToLower(f.Table)

	switch {
	case strings.Contains(constraint, "email") || table == "users":
		return apperror.UserEmailAlreadyExists(fields.str("email"))
	case strings.Contains(constraint, "slug") || table == "courses":
		return apperror.CourseSlugAlreadyExists(fields.str("slug"))
	case (strings.Contains(constraint, "user_id") && strings.Contains(constraint, "course_id")) || table == "bookings":
		return apperror.BookingAlreadyExists(fields.str("userId"), fields.str("courseId"))
	default:
		return apperror.DatabaseConstraint(
			fmt.Sprintf("Unique constraint violation: %s", f.Constraint),
			valueOr(f.Table, unknownValue),
		)
	}
}

// fieldValidation names the offending column when the driver reports it.
// Some drivers never do, and the field is then reported as "unknown".
func fieldValidation(f db.Failure, reason string) *apperror.Error {
	field := f.Column
	if field == "" {
		field = unknownValue
		zap.L().Warn("storage failure did not name the offending field",
			zap.String("failure_code", string(f.Code)),
			zap.String("driver_code", f.DriverCode),
			zap.String("table", f.Table),
		)
	}
	return apperror.FieldValidation(field, reason)
}

func (f Fields) str(key string) string {
	if f == nil {
		return unknownValue
	}
	v, ok := f[key]
	if !ok || v == nil {
		return unknownValue
	}
	s := fmt.Sprint(v)
	if s == "" {
		return unknownValue
	}
	return s
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
