package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/academy/internal/booking/domain"
	coursedomain "github.com/smallbiznis/academy/internal/course/domain"
	"github.com/smallbiznis/academy/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
	"go.uber.org/zap"
)

type createCheckoutRequest struct {
	CourseID   string `json:"courseId" binding:"required"`
	SuccessURL string `json:"successUrl" binding:"omitempty,url"`
	CancelURL  string `json:"cancelUrl" binding:"omitempty,url"`
}

type verifiedBooking struct {
	ID            string                      `json:"id"`
	CourseTitle   string                      `json:"courseTitle"`
	Price         int64                       `json:"price"`
	Currency      string                      `json:"currency"`
	PaymentStatus bookingdomain.PaymentStatus `json:"paymentStatus"`
	CreatedAt     time.Time                   `json:"createdAt"`
}

// CreateCheckout reserves a PENDING booking and opens a provider checkout
// session for it.
func (s *Server) CreateCheckout(c *gin.Context) {
	req := validated[createCheckoutRequest](c)
	ctx := c.Request.Context()

	id, _ := currentIdentity(c)
	checkout, err := s.bookings.InitiateCheckout(ctx, bookingdomain.InitiateCheckoutRequest{
		UserID:   id.UserID,
		CourseID: req.CourseID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	appURL := strings.TrimRight(s.cfg.AppURL, "/")
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = appURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = appURL + "/courses"
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutSessionParams{
		BookingID:     checkout.Booking.ID,
		CourseID:      checkout.Course.ID,
		UserID:        id.UserID,
		CustomerEmail: id.Email,
		ProductName:   checkout.Course.Title,
		Description:   checkout.Course.Description,
		Amount:        checkout.Course.Price,
		Currency:      checkout.Course.Currency,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	})
	if err != nil {
		s.providerFailure(c, err)
		return
	}

	if err := s.bookings.AttachSession(ctx, checkout.Booking.ID, session.ID, session.PaymentIntentID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": session.ID,
		"url":       session.URL,
		"bookingId": checkout.Booking.ID,
	})
}

// VerifyCheckout confirms a completed checkout session for the caller and
// marks the booking PAID without waiting for the webhook.
func (s *Server) VerifyCheckout(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)

	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		checkoutFailure(c, http.StatusBadRequest, "Session ID is required")
		return
	}

	booking, err := s.bookings.FindBySessionRef(ctx, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if booking != nil && booking.UserID != userID {
		checkoutFailure(c, http.StatusForbidden, "This payment is linked to another account")
		return
	}

	session, err := s.gateway.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		// the provider forgets old sessions; a booking we already marked paid stands
		if booking != nil && booking.PaymentStatus == bookingdomain.StatusPaid && paymentdomain.IsResourceMissing(err) {
			s.respondVerified(c, *booking, nil)
			return
		}
		s.providerFailure(c, err)
		return
	}

	if !session.Paid() {
		checkoutFailure(c, http.StatusBadRequest, "Payment not completed")
		return
	}

	bookingID := session.Metadata["bookingId"]
	courseID := session.Metadata["courseId"]
	ownerID := session.Metadata["userId"]
	if booking != nil {
		bookingID = fallback(bookingID, booking.ID)
		courseID = fallback(courseID, booking.CourseID)
		ownerID = fallback(ownerID, booking.UserID)
	}

	if courseID == "" {
		checkoutFailure(c, http.StatusBadRequest, "Unable to determine course for this payment")
		return
	}
	if ownerID != "" && ownerID != userID {
		checkoutFailure(c, http.StatusForbidden, "Payment metadata does not match the current user")
		return
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	amount := session.AmountTotal
	if amount == 0 && booking != nil {
		amount = booking.Amount
	}
	if amount == 0 {
		amount = course.Price
	}
	currency := strings.ToUpper(session.Currency)
	if currency == "" && booking != nil {
		currency = booking.Currency
	}
	currency = fallback(currency, course.Currency)

	paid, err := s.bookings.FinalizePaidCheckout(ctx, bookingdomain.FinalizeRequest{
		UserID:          userID,
		CourseID:        courseID,
		BookingID:       bookingID,
		SessionID:       sessionID,
		PaymentIntentID: session.PaymentIntentID,
		Amount:          amount,
		Currency:        currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.respondVerified(c, paid, &course)
}

func (s *Server) respondVerified(c *gin.Context, booking bookingdomain.Booking, course *coursedomain.Course) {
	if course == nil {
		found, err := s.courses.GetByID(c.Request.Context(), booking.CourseID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		course = &found
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": verifiedBooking{
			ID:            booking.ID,
			CourseTitle:   course.Title,
			Price:         booking.Amount,
			Currency:      booking.Currency,
			PaymentStatus: booking.PaymentStatus,
			CreatedAt:     booking.CreatedAt,
		},
	})
}

// providerFailure passes the provider's own status through, 502 when it
// gave none.
func (s *Server) providerFailure(c *gin.Context, err error) {
	_ = c.Error(err)

	if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		checkoutFailure(c, http.StatusServiceUnavailable, "Payment service unavailable")
		return
	}

	var providerErr *paymentdomain.ProviderError
	if errors.As(err, &providerErr) {
		logger.WithContext(c.Request.Context(), s.log).Warn("payment provider call failed",
			zap.Int("status", providerErr.Status()),
			zap.String("code", providerErr.Code),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(providerErr.Status(), gin.H{
			"success": false,
			"error":   providerErr.Message,
			"code":    providerErr.Code,
		})
		return
	}

	c.Abort()
}

func checkoutFailure(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
