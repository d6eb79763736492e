package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/academy/internal/apperror"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// AbortWithError hands err to the error boundary and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func classifyErrorForLog(err error) (string, string) {
	if appErr, ok := apperror.As(err); ok {
		return string(appErr.Category()), appErr.Code()
	}

	switch {
	case errors.Is(err, paymentdomain.ErrMissingSignature):
		return "webhook", "MISSING_SIGNATURE"
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return "webhook", "INVALID_SIGNATURE"
	case errors.Is(err, ErrUnauthorized):
		return string(apperror.CategoryAuth), "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return string(apperror.CategoryAuth), "FORBIDDEN"
	}

	var providerErr *paymentdomain.ProviderError
	if errors.As(err, &providerErr) {
		return "payment_provider", providerErr.Code
	}
	return string(apperror.CategoryInfrastructure), unknownErrorCode
}
