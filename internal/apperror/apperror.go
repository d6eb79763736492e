package apperror

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"time"
)

// Category groups error kinds by who is at fault and how clients should react.
type Category string

const (
	CategoryBusiness       Category = "business"
	CategoryInfrastructure Category = "infrastructure"
	CategoryValidation     Category = "validation"
	CategoryAuth           Category = "auth"
)

// DefaultStatus returns the HTTP status used by kinds of this category
// unless the kind pins its own.
func (c Category) DefaultStatus() int {
	switch c {
	case CategoryBusiness:
		return http.StatusBadRequest
	case CategoryInfrastructure:
		return http.StatusServiceUnavailable
	case CategoryValidation:
		return http.StatusUnprocessableEntity
	case CategoryAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed failure every layer returns once a problem is understood.
// Values are immutable after construction.
type Error struct {
	kind      Kind
	category  Category
	status    int
	code      string
	message   string
	context   map[string]any
	cause     error
	timestamp time.Time
}

type Option func(*Error)

// WithContext attaches structured fields. The map is copied.
func WithContext(fields map[string]any) Option {
	return func(e *Error) {
		if len(fields) == 0 {
			return
		}
		if e.context == nil {
			e.context = make(map[string]any, len(fields))
		}
		maps.Copy(e.context, fields)
	}
}

// WithCause keeps the lower-level error for diagnostics. It is never serialized.
func WithCause(err error) Option {
	return func(e *Error) {
		e.cause = err
	}
}

var now = func() time.Time { return time.Now().UTC() }

// New builds an error of the given kind. Unknown kinds fall back to an
// infrastructure failure so callers never end up with a zero status.
func New(kind Kind, message string, opts ...Option) *Error {
	spec, ok := registry[kind]
	if !ok {
		spec = registry[KindDatabaseConnection]
		kind = KindDatabaseConnection
	}
	e := &Error{
		kind:      kind,
		category:  spec.category,
		status:    spec.status,
		code:      spec.code,
		message:   message,
		timestamp: now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Error) Error() string { return e.message }

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error of the same kind, which lets callers write
// errors.Is(err, apperror.Sentinel(apperror.KindBookingNotFound)).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return other.kind == e.kind
}

func (e *Error) Kind() Kind           { return e.kind }
func (e *Error) Category() Category   { return e.category }
func (e *Error) StatusCode() int      { return e.status }
func (e *Error) Code() string         { return e.code }
func (e *Error) Message() string      { return e.message }
func (e *Error) Cause() error         { return e.cause }
func (e *Error) Timestamp() time.Time { return e.timestamp }

// Context returns a copy of the attached fields, or nil.
func (e *Error) Context() map[string]any {
	if len(e.context) == 0 {
		return nil
	}
	return maps.Clone(e.context)
}

// Severity reports how loudly the error should be surfaced to telemetry.
func (e *Error) Severity() Severity {
	return SeverityFor(e.status, e.category)
}

type wireError struct {
	Name       string         `json:"name"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode"`
	ErrorCode  string         `json:"errorCode"`
	Category   Category       `json:"category"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireError{
		Name:       string(e.kind),
		Message:    e.message,
		StatusCode: e.status,
		ErrorCode:  e.code,
		Category:   e.category,
		Context:    e.context,
		Timestamp:  e.timestamp.Format(time.RFC3339Nano),
	})
}

// Sentinel returns a comparison value for errors.Is checks against a kind.
func Sentinel(kind Kind) *Error {
	return &Error{kind: kind}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	target, ok := As(err)
	return ok && target.kind == kind
}
