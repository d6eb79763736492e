package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/academy/internal/config"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	signatureTolerance = 300 * time.Second
	defaultTimeout     = 10 * time.Second
)

// Adapter talks to Stripe for checkout sessions and authenticates webhooks.
type Adapter struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
}

func New(cfg config.Config) *Adapter {
	timeout := cfg.Stripe.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	a := &Adapter{
		webhookSecret: strings.TrimSpace(cfg.Stripe.WebhookSecret),
		timeout:       timeout,
	}
	if key := strings.TrimSpace(cfg.Stripe.SecretKey); key != "" {
		a.api = client.New(key, stripego.NewBackends(&http.Client{Timeout: timeout}))
	}
	return a
}

// Verify checks the signature with the SDK's constant-time comparison and
// decodes the event object.
func (a *Adapter) Verify(payload []byte, signature string) (*paymentdomain.PaymentEvent, error) {
	if a.webhookSecret == "" {
		return nil, paymentdomain.ErrWebhookUnavailable
	}
	if strings.TrimSpace(signature) == "" {
		return nil, paymentdomain.ErrMissingSignature
	}
	if len(payload) == 0 {
		return nil, paymentdomain.ErrEmptyBody
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, a.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                signatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidSignature, err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}
	return parse(event.ID, string(event.Type), event.Created, raw, payload)
}

type stripeCheckoutSession struct {
	ID            string          `json:"id"`
	PaymentStatus string          `json:"payment_status"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
	AmountTotal   int64           `json:"amount_total"`
	Currency      string          `json:"currency"`
	Metadata      map[string]any  `json:"metadata"`
}

type stripePaymentIntent struct {
	ID                 string         `json:"id"`
	Amount             int64          `json:"amount"`
	AmountReceived     int64          `json:"amount_received"`
	Currency           string         `json:"currency"`
	Metadata           map[string]any `json:"metadata"`
	CancellationReason string         `json:"cancellation_reason"`
	LastPaymentError   *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeCharge struct {
	ID             string          `json:"id"`
	Amount         int64           `json:"amount"`
	AmountRefunded int64           `json:"amount_refunded"`
	Currency       string          `json:"currency"`
	PaymentIntent  json.RawMessage `json:"payment_intent"`
	Metadata       map[string]any  `json:"metadata"`
}

type stripeDispute struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Reason   string          `json:"reason"`
	Charge   json.RawMessage `json:"charge"`
}

type stripeInvoice struct {
	ID         string `json:"id"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
}

func parse(id, eventType string, created int64, object json.RawMessage, payload []byte) (*paymentdomain.PaymentEvent, error) {
	out := &paymentdomain.PaymentEvent{
		ID:      id,
		Type:    eventType,
		Created: timestamp(created),
		Raw:     payload,
	}

	switch eventType {
	case paymentdomain.EventCheckoutCompleted:
		var session stripeCheckoutSession
		if err := decode(object, &session); err != nil {
			return nil, err
		}
		out.ObjectID = session.ID
		out.SessionID = session.ID
		out.PaymentIntentID = expandableID(session.PaymentIntent)
		out.PaymentStatus = session.PaymentStatus
		out.Amount = session.AmountTotal
		out.Currency = strings.ToUpper(strings.TrimSpace(session.Currency))
		applyMetadata(out, session.Metadata)

	case paymentdomain.EventPaymentSucceeded, paymentdomain.EventPaymentFailed, paymentdomain.EventPaymentCanceled:
		var intent stripePaymentIntent
		if err := decode(object, &intent); err != nil {
			return nil, err
		}
		out.ObjectID = intent.ID
		out.PaymentIntentID = intent.ID
		out.Amount = intent.AmountReceived
		if out.Amount <= 0 {
			out.Amount = intent.Amount
		}
		out.Currency = strings.ToUpper(strings.TrimSpace(intent.Currency))
		out.Reason = intent.CancellationReason
		if intent.LastPaymentError != nil {
			out.Reason = intent.LastPaymentError.Message
		}
		applyMetadata(out, intent.Metadata)

	case paymentdomain.EventChargeRefunded:
		var charge stripeCharge
		if err := decode(object, &charge); err != nil {
			return nil, err
		}
		out.ObjectID = charge.ID
		out.PaymentIntentID = expandableID(charge.PaymentIntent)
		out.Amount = charge.Amount
		if charge.AmountRefunded > 0 {
			out.Amount = charge.AmountRefunded
		}
		out.Currency = strings.ToUpper(strings.TrimSpace(charge.Currency))
		applyMetadata(out, charge.Metadata)

	case paymentdomain.EventDisputeCreated:
		var dispute stripeDispute
		if err := decode(object, &dispute); err != nil {
			return nil, err
		}
		out.ObjectID = dispute.ID
		out.Amount = dispute.Amount
		out.Currency = strings.ToUpper(strings.TrimSpace(dispute.Currency))
		out.Reason = dispute.Reason

	case paymentdomain.EventInvoicePaymentSuccess, paymentdomain.EventInvoicePaymentFailed:
		var invoice stripeInvoice
		if err := decode(object, &invoice); err != nil {
			return nil, err
		}
		out.ObjectID = invoice.ID
		out.Amount = invoice.AmountPaid
		if out.Amount == 0 {
			out.Amount = invoice.AmountDue
		}
		out.Currency = strings.ToUpper(strings.TrimSpace(invoice.Currency))
	}

	return out, nil
}

func decode(object json.RawMessage, target any) error {
	if len(object) == 0 {
		return paymentdomain.ErrInvalidPayload
	}
	if err := json.Unmarshal(object, target); err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err)
	}
	return nil
}

func applyMetadata(out *paymentdomain.PaymentEvent, metadata map[string]any) {
	out.BookingID = readMetadataValue(metadata, "bookingId")
	out.CourseID = readMetadataValue(metadata, "courseId")
	out.UserID = readMetadataValue(metadata, "userId")
}

// expandableID reads a field Stripe sends either as an id or an expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func timestamp(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, p paymentdomain.CheckoutSessionParams) (paymentdomain.CheckoutSession, error) {
	if a.api == nil {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrGatewayUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	metadata := map[string]string{
		"bookingId": p.BookingID,
		"courseId":  p.CourseID,
		"userId":    p.UserID,
	}
	product := &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripego.String(p.ProductName),
	}
	if p.Description != "" {
		product.Description = stripego.String(p.Description)
	}

	params := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripego.String(strings.ToLower(p.Currency)),
				ProductData: product,
				UnitAmount:  stripego.Int64(p.Amount),
			},
			Quantity: stripego.Int64(1),
		}},
		SuccessURL: stripego.String(p.SuccessURL),
		CancelURL:  stripego.String(p.CancelURL),
		Metadata:   metadata,
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(p.CustomerEmail)
	}
	params.Context = ctx

	session, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return paymentdomain.CheckoutSession{}, translateError(err)
	}
	return toSession(session), nil
}

func (a *Adapter) RetrieveCheckoutSession(ctx context.Context, sessionID string) (paymentdomain.CheckoutSession, error) {
	if a.api == nil {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrGatewayUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := &stripego.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	params.Context = ctx

	session, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return paymentdomain.CheckoutSession{}, translateError(err)
	}
	return toSession(session), nil
}

func toSession(s *stripego.CheckoutSession) paymentdomain.CheckoutSession {
	if s == nil {
		return paymentdomain.CheckoutSession{}
	}
	out := paymentdomain.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      strings.ToUpper(string(s.Currency)),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func translateError(err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return &paymentdomain.ProviderError{
			StatusCode: stripeErr.HTTPStatusCode,
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
			Err:        err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &paymentdomain.ProviderError{
			StatusCode: http.StatusGatewayTimeout,
			Code:       "timeout",
			Message:    "payment provider did not respond in time",
			Err:        err,
		}
	}
	return &paymentdomain.ProviderError{
		StatusCode: http.StatusBadGateway,
		Message:    err.Error(),
		Err:        err,
	}
}
