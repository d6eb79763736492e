package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/academy/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	webhookVersion        = "1.0.0"
	maxWebhookBody        = 1 << 20
)

var errWebhookTooLarge = errors.New("webhook body exceeds limit")

type webhookFailure struct {
	status  int
	code    string
	message string
}

var webhookFailures = []struct {
	err error
	webhookFailure
}{
	{paymentdomain.ErrMissingSignature, webhookFailure{http.StatusUnauthorized, "MISSING_SIGNATURE", "Missing Stripe signature"}},
	{paymentdomain.ErrEmptyBody, webhookFailure{http.StatusBadRequest, "EMPTY_BODY", "Empty request body"}},
	{paymentdomain.ErrInvalidSignature, webhookFailure{http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature"}},
	{paymentdomain.ErrInvalidPayload, webhookFailure{http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid webhook payload"}},
	{errWebhookTooLarge, webhookFailure{http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Webhook payload too large"}},
	{paymentdomain.ErrWebhookUnavailable, webhookFailure{http.StatusServiceUnavailable, "WEBHOOK_UNAVAILABLE", "Webhook processing is not configured"}},
}

// HandleStripeWebhook reads the raw body untouched so the signature can be
// checked against exactly what the provider sent.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = errWebhookTooLarge
		}
		s.webhookError(c, err)
		return
	}

	res, err := s.webhooks.Process(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		s.webhookError(c, err)
		return
	}

	if res.Duplicate {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Event already processed",
			"eventId": res.EventID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Webhook processed successfully",
		"eventId":   res.EventID,
		"eventType": res.EventType,
	})
}

func (s *Server) StripeWebhookHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Stripe webhook endpoint is operational",
		"timestamp": s.clock.Now().UTC().Format(isoMillis),
		"version":   webhookVersion,
	})
}

// webhookError answers in the provider-facing shape. Only unexpected
// failures get a 5xx, which is what makes the provider retry.
func (s *Server) webhookError(c *gin.Context, err error) {
	_ = c.Error(err)

	for _, f := range webhookFailures {
		if errors.Is(err, f.err) {
			c.AbortWithStatusJSON(f.status, gin.H{
				"success": false,
				"error":   f.message,
				"code":    f.code,
			})
			return
		}
	}

	logger.WithContext(c.Request.Context(), s.log).Error("webhook processing failed", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success":   false,
		"error":     "Webhook processing failed",
		"code":      "WEBHOOK_ERROR",
		"requestId": c.GetString("request_id"),
	})
}
