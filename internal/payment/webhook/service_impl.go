package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/academy/internal/apperror"
	bookingdomain "github.com/smallbiznis/academy/internal/booking/domain"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/observability/logger"
	"github.com/smallbiznis/academy/internal/observability/metrics"
	"github.com/smallbiznis/academy/internal/observability/reporter"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultRetention = 24 * time.Hour
	releaseTimeout   = 5 * time.Second
)

const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Verifier paymentdomain.Verifier
	Ledger   paymentdomain.Ledger
	Bookings bookingdomain.Service
	Reporter reporter.Reporter `optional:"true"`
	Metrics  *metrics.Metrics  `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	verifier  paymentdomain.Verifier
	ledger    paymentdomain.Ledger
	bookings  bookingdomain.Service
	reporter  reporter.Reporter
	metrics   *metrics.Metrics
	retention time.Duration
}

func NewService(p Params) paymentdomain.WebhookProcessor {
	retention := p.Cfg.Webhook.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	rep := p.Reporter
	if rep == nil {
		rep = reporter.Nop()
	}
	return &Service{
		log:       p.Log.Named("payment.webhook"),
		verifier:  p.Verifier,
		ledger:    p.Ledger,
		bookings:  p.Bookings,
		reporter:  rep,
		metrics:   p.Metrics,
		retention: retention,
	}
}

// Process authenticates a delivery, records its id, then applies it to the
// matching booking. The id is released again when applying fails so the
// provider's retry gets a second chance.
func (s *Service) Process(ctx context.Context, payload []byte, signature string) (paymentdomain.WebhookResult, error) {
	log := logger.WithContext(ctx, s.log)

	if signature == "" {
		s.metrics.RecordWebhookEvent(ctx, "unknown", outcomeRejected)
		return paymentdomain.WebhookResult{}, paymentdomain.ErrMissingSignature
	}
	if len(payload) == 0 {
		s.metrics.RecordWebhookEvent(ctx, "unknown", outcomeRejected)
		return paymentdomain.WebhookResult{}, paymentdomain.ErrEmptyBody
	}

	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "unknown", outcomeRejected)
		return paymentdomain.WebhookResult{}, err
	}

	result := paymentdomain.WebhookResult{EventID: event.ID, EventType: event.Type}
	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	record := paymentdomain.ProcessedEvent{
		EventID:   event.ID,
		EventType: event.Type,
	}
	if json.Valid(event.Raw) {
		record.Payload = datatypes.JSON(event.Raw)
	}
	inserted, err := s.ledger.PutIfAbsent(ctx, record, s.retention)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, event.Type, outcomeFailed)
		return result, fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		log.Info("webhook event already processed")
		s.metrics.RecordWebhookEvent(ctx, event.Type, outcomeDuplicate)
		result.Duplicate = true
		return result, nil
	}

	outcome, err := s.dispatch(ctx, log, event)
	if err != nil {
		s.release(ctx, log, event.ID)
		s.metrics.RecordWebhookEvent(ctx, event.Type, outcomeFailed)
		return result, err
	}

	s.metrics.RecordWebhookEvent(ctx, event.Type, outcome)
	log.Info("webhook processed", zap.String("outcome", outcome))
	return result, nil
}

// release forgets a recorded id. It must outlive the request: a provider that
// hung up still retries, and a stale record would ack that retry as a duplicate.
func (s *Service) release(ctx context.Context, log *zap.Logger, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.ledger.Delete(ctx, eventID); err != nil {
		log.Error("failed to release webhook event", zap.Error(err))
	}
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) (string, error) {
	switch event.Type {
	case paymentdomain.EventCheckoutCompleted:
		if event.CourseID == "" || event.UserID == "" {
			log.Error("checkout session missing metadata",
				zap.String("session_id", event.SessionID),
				zap.String("course_id", event.CourseID),
				zap.String("user_id", event.UserID),
			)
			return outcomeSkipped, nil
		}
		if event.BookingID == "" {
			log.Warn("checkout session carries no booking reference", zap.String("session_id", event.SessionID))
			return outcomeSkipped, nil
		}
		_, err := s.bookings.FinalizePaidCheckout(ctx, bookingdomain.FinalizeRequest{
			UserID:          event.UserID,
			CourseID:        event.CourseID,
			BookingID:       event.BookingID,
			SessionID:       event.SessionID,
			PaymentIntentID: event.PaymentIntentID,
			Amount:          event.Amount,
			Currency:        event.Currency,
		})
		return s.settle(log, event, err)

	case paymentdomain.EventPaymentFailed:
		return s.transition(ctx, log, event, bookingdomain.StatusFailed)

	case paymentdomain.EventPaymentCanceled:
		return s.transition(ctx, log, event, bookingdomain.StatusCancelled)

	case paymentdomain.EventChargeRefunded:
		return s.transition(ctx, log, event, bookingdomain.StatusRefunded)

	case paymentdomain.EventPaymentSucceeded:
		log.Info("payment intent succeeded",
			zap.String("payment_intent_id", event.PaymentIntentID),
			zap.String("booking_id", event.BookingID),
		)
		return outcomeSkipped, nil

	case paymentdomain.EventDisputeCreated:
		log.Warn("payment dispute created",
			zap.String("dispute_id", event.ObjectID),
			zap.Int64("amount", event.Amount),
			zap.String("reason", event.Reason),
		)
		s.reporter.ReportMessage(ctx, "Payment dispute created", apperror.SeverityWarning, map[string]any{
			"eventId":   event.ID,
			"disputeId": event.ObjectID,
			"amount":    event.Amount,
			"reason":    event.Reason,
		})
		return outcomeSkipped, nil

	case paymentdomain.EventInvoicePaymentSuccess, paymentdomain.EventInvoicePaymentFailed:
		log.Info("invoice event ignored",
			zap.String("invoice_id", event.ObjectID),
			zap.Int64("amount", event.Amount),
		)
		return outcomeSkipped, nil

	default:
		log.Info("unhandled webhook event type")
		return outcomeSkipped, nil
	}
}

func (s *Service) transition(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent, status bookingdomain.PaymentStatus) (string, error) {
	if event.BookingID == "" {
		log.Info("webhook event carries no booking reference",
			zap.String("object_id", event.ObjectID),
		)
		return outcomeSkipped, nil
	}
	_, _, err := s.bookings.UpdatePaymentStatus(ctx, event.BookingID, status)
	return s.settle(log, event, err)
}

// settle decides whether a booking failure is worth a provider retry. Only
// infrastructure failures are; rule violations would fail the same way again.
func (s *Service) settle(log *zap.Logger, event *paymentdomain.PaymentEvent, err error) (string, error) {
	if err == nil {
		return outcomeProcessed, nil
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Category() != apperror.CategoryInfrastructure {
		log.Warn("webhook event not applied",
			zap.String("booking_id", event.BookingID),
			zap.String("error_code", appErr.Code()),
			zap.String("reason", appErr.Message()),
		)
		return outcomeSkipped, nil
	}
	return outcomeFailed, err
}
