package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/booking/domain"
	"github.com/smallbiznis/academy/internal/clock"
	coursedomain "github.com/smallbiznis/academy/internal/course/domain"
	"github.com/smallbiznis/academy/internal/events"
	"github.com/smallbiznis/academy/internal/observability/logger"
	"github.com/smallbiznis/academy/internal/observability/metrics"
	"github.com/smallbiznis/academy/internal/persistence"
	"github.com/smallbiznis/academy/pkg/db"
	"github.com/smallbiznis/academy/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxWriteAttempts = 3

var eventTypes = map[domain.PaymentStatus]string{
	domain.StatusPending:   events.TypeBookingPending,
	domain.StatusPaid:      events.TypeBookingPaid,
	domain.StatusFailed:    events.TypeBookingFailed,
	domain.StatusCancelled: events.TypeBookingCancelled,
	domain.StatusRefunded:  events.TypeBookingRefunded,
}

var (
	// errRetry signals that a concurrent writer changed the row under us.
	errRetry          = errors.New("booking_retry")
	errConcurrentEdit = errors.New("booking changed concurrently")
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Courses   coursedomain.Repository
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	courses   coursedomain.Repository
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("booking.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		courses:   p.Courses,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

type transitionRecord struct {
	booking domain.Booking
	from    domain.PaymentStatus
}

func (s *Service) InitiateCheckout(ctx context.Context, req domain.InitiateCheckoutRequest) (domain.Checkout, error) {
	userID := strings.TrimSpace(req.UserID)
	courseID := strings.TrimSpace(req.CourseID)
	if userID == "" {
		return domain.Checkout{}, apperror.Unauthorized("")
	}
	if courseID == "" {
		return domain.Checkout{}, apperror.FieldValidation("courseId", "is required")
	}

	fields := persistence.Fields{"userId": userID, "courseId": courseID}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		out, transitioned, err := s.initiate(ctx, userID, courseID)
		if errors.Is(err, errRetry) {
			s.log.Debug("booking checkout raced, retrying",
				zap.String("user_id", userID),
				zap.String("course_id", courseID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return domain.Checkout{}, persistence.MapError(err, fields)
		}
		for _, rec := range transitioned {
			s.afterTransition(ctx, rec.booking, rec.from)
		}
		return out, nil
	}
	return domain.Checkout{}, apperror.DatabaseConnection("initiate checkout", errConcurrentEdit)
}

// initiate runs one attempt of the capacity check and booking upsert inside a
// transaction holding the course row lock.
func (s *Service) initiate(ctx context.Context, userID, courseID string) (domain.Checkout, []transitionRecord, error) {
	var (
		out          domain.Checkout
		transitioned []transitionRecord
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := s.courses.FindByIDForUpdate(ctx, tx, courseID)
		if err != nil {
			return err
		}
		if course == nil {
			return apperror.CourseNotFound(courseID)
		}
		if !course.IsPublished {
			return apperror.CourseNotPublished(courseID)
		}
		if course.HasCapacity() {
			paid, err := s.repo.CountByCourseStatus(ctx, tx, courseID, domain.StatusPaid)
			if err != nil {
				return err
			}
			if paid >= int64(*course.Capacity) {
				return apperror.CourseFull(courseID, *course.Capacity)
			}
		}

		now := s.clock.Now()
		existing, err := s.repo.FindByUserCourse(ctx, tx, userID, courseID)
		if err != nil {
			return err
		}

		if existing == nil {
			booking := domain.Booking{
				ID:            s.genID.Generate().String(),
				UserID:        userID,
				CourseID:      courseID,
				PaymentStatus: domain.StatusPending,
				Amount:        course.Price,
				Currency:      course.Currency,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, &booking); err != nil {
				if db.IsDuplicateKeyErr(err) {
					// another request created the row first; pick it up on the next attempt
					return errRetry
				}
				return err
			}
			out = domain.Checkout{Booking: booking, Course: *course}
			return nil
		}

		booking := *existing
		from := booking.PaymentStatus
		if from == domain.StatusPaid {
			return apperror.BookingAlreadyExists(userID, courseID)
		}
		changed, err := domain.Transition(&booking, domain.StatusPending)
		if err != nil {
			return err
		}

		booking.Amount = course.Price
		booking.Currency = course.Currency
		booking.StripeSessionID = ""
		booking.StripePaymentIntentID = ""
		booking.UpdatedAt = now
		rows, err := s.repo.UpdateCheckout(ctx, tx, &booking, from)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errRetry
		}
		if changed {
			transitioned = append(transitioned, transitionRecord{booking: booking, from: from})
		}
		out = domain.Checkout{Booking: booking, Course: *course}
		return nil
	})
	if err != nil {
		return domain.Checkout{}, nil, err
	}
	return out, transitioned, nil
}

func (s *Service) AttachSession(ctx context.Context, bookingID, sessionID, paymentIntentID string) error {
	bookingID = strings.TrimSpace(bookingID)
	sessionID = strings.TrimSpace(sessionID)
	if bookingID == "" || sessionID == "" {
		return apperror.FieldValidation("sessionId", "is required")
	}

	fields := persistence.Fields{"bookingId": bookingID}
	return persistence.SafeTx(ctx, s.db, fields, func(tx *gorm.DB) error {
		booking, err := s.repo.FindByID(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return apperror.BookingNotFound(bookingID)
		}
		if booking.PaymentStatus != domain.StatusPending {
			return apperror.InvalidBookingStatus(string(booking.PaymentStatus), string(domain.StatusPending))
		}

		booking.StripeSessionID = sessionID
		if paymentIntentID != "" {
			booking.StripePaymentIntentID = paymentIntentID
		}
		booking.UpdatedAt = s.clock.Now()
		rows, err := s.repo.UpdateCheckout(ctx, tx, booking, domain.StatusPending)
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperror.InvalidBookingStatus(string(booking.PaymentStatus), string(domain.StatusPending))
		}
		return nil
	})
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, bookingID string, status domain.PaymentStatus) (domain.Booking, bool, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return domain.Booking{}, false, apperror.FieldValidation("bookingId", "is required")
	}

	fields := persistence.Fields{"bookingId": bookingID}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := persistence.Safe(ctx, fields, func(ctx context.Context) (*domain.Booking, error) {
			return s.repo.FindByID(ctx, s.db, bookingID)
		})
		if err != nil {
			return domain.Booking{}, false, err
		}
		if current == nil {
			return domain.Booking{}, false, apperror.BookingNotFound(bookingID)
		}

		booking := *current
		from := booking.PaymentStatus
		changed, err := domain.Transition(&booking, status)
		if err != nil {
			return *current, false, err
		}
		if !changed {
			return booking, false, nil
		}

		booking.UpdatedAt = s.clock.Now()
		rows, err := persistence.Safe(ctx, fields, func(ctx context.Context) (int64, error) {
			return s.repo.UpdateStatus(ctx, s.db, bookingID, from, status, booking.UpdatedAt)
		})
		if err != nil {
			return domain.Booking{}, false, err
		}
		if rows == 1 {
			s.afterTransition(ctx, booking, from)
			return booking, true, nil
		}
	}
	return domain.Booking{}, false, apperror.DatabaseConnection("update booking status", errConcurrentEdit)
}

func (s *Service) FinalizePaidCheckout(ctx context.Context, req domain.FinalizeRequest) (domain.Booking, error) {
	userID := strings.TrimSpace(req.UserID)
	courseID := strings.TrimSpace(req.CourseID)
	if userID == "" {
		return domain.Booking{}, apperror.Unauthorized("")
	}
	if courseID == "" {
		return domain.Booking{}, apperror.FieldValidation("courseId", "is required")
	}

	fields := persistence.Fields{"userId": userID, "courseId": courseID}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		out, transitioned, oversold, err := s.finalize(ctx, userID, courseID, req)
		if errors.Is(err, errRetry) {
			continue
		}
		if err != nil {
			return domain.Booking{}, persistence.MapError(err, fields)
		}
		if oversold {
			logger.WithContext(ctx, s.log).Error("paid booking exceeds course capacity",
				zap.String("booking_id", out.ID),
				zap.String("course_id", out.CourseID),
				zap.String("payment_intent_id", out.StripePaymentIntentID),
			)
		}
		for _, rec := range transitioned {
			s.afterTransition(ctx, rec.booking, rec.from)
		}
		return out, nil
	}
	return domain.Booking{}, apperror.DatabaseConnection("finalize checkout", errConcurrentEdit)
}

// finalize marks the booking paid. The provider has already captured the
// money, so a full course does not block it; oversold is reported instead.
func (s *Service) finalize(ctx context.Context, userID, courseID string, req domain.FinalizeRequest) (domain.Booking, []transitionRecord, bool, error) {
	var (
		out          domain.Booking
		transitioned []transitionRecord
		oversold     bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			existing *domain.Booking
			err      error
		)
		if req.BookingID != "" {
			existing, err = s.repo.FindByID(ctx, tx, req.BookingID)
			if err != nil {
				return err
			}
			if existing != nil && existing.UserID != userID {
				return apperror.Forbidden("This payment is linked to another account")
			}
		}
		if existing == nil {
			existing, err = s.repo.FindByUserCourse(ctx, tx, userID, courseID)
			if err != nil {
				return err
			}
		}

		now := s.clock.Now()
		if existing == nil {
			booking := domain.Booking{
				ID:            s.genID.Generate().String(),
				UserID:        userID,
				CourseID:      courseID,
				PaymentStatus: domain.StatusPending,
				Amount:        req.Amount,
				Currency:      strings.ToUpper(req.Currency),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, &booking); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return errRetry
				}
				return err
			}
			existing = &booking
		}

		booking := *existing
		if booking.PaymentStatus == domain.StatusPaid {
			out = booking
			return nil
		}

		// same lock as initiate, so concurrent finalizations count seats in turn
		course, err := s.courses.FindByIDForUpdate(ctx, tx, booking.CourseID)
		if err != nil {
			return err
		}
		if course != nil && course.HasCapacity() {
			paid, err := s.repo.CountByCourseStatus(ctx, tx, booking.CourseID, domain.StatusPaid)
			if err != nil {
				return err
			}
			oversold = paid >= int64(*course.Capacity)
		}

		from := booking.PaymentStatus
		if from == domain.StatusCancelled {
			// a cancelled attempt that the provider still charged is reopened first
			if _, err := domain.Transition(&booking, domain.StatusPending); err != nil {
				return err
			}
		}
		if _, err := domain.Transition(&booking, domain.StatusPaid); err != nil {
			return err
		}

		if req.Amount > 0 {
			booking.Amount = req.Amount
		}
		if req.Currency != "" {
			booking.Currency = strings.ToUpper(req.Currency)
		}
		if req.SessionID != "" {
			booking.StripeSessionID = req.SessionID
		}
		if req.PaymentIntentID != "" {
			booking.StripePaymentIntentID = req.PaymentIntentID
		}
		booking.UpdatedAt = now

		rows, err := s.repo.UpdateCheckout(ctx, tx, &booking, from)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errRetry
		}
		transitioned = append(transitioned, transitionRecord{booking: booking, from: from})
		out = booking
		return nil
	})
	if err != nil {
		return domain.Booking{}, nil, false, err
	}
	return out, transitioned, oversold, nil
}

func (s *Service) GetForUser(ctx context.Context, userID, bookingID string) (domain.Booking, error) {
	booking, err := persistence.Safe(ctx, persistence.Fields{"bookingId": bookingID}, func(ctx context.Context) (*domain.Booking, error) {
		return s.repo.FindByID(ctx, s.db, bookingID)
	})
	if err != nil {
		return domain.Booking{}, err
	}
	if booking == nil {
		return domain.Booking{}, apperror.BookingNotFound(bookingID)
	}
	if booking.UserID != userID {
		return domain.Booking{}, apperror.Forbidden("You do not have access to this booking")
	}
	return *booking, nil
}

// FindBySessionRef returns nil when no booking carries the session id.
func (s *Service) FindBySessionRef(ctx context.Context, sessionID string) (*domain.Booking, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	return persistence.Safe(ctx, nil, func(ctx context.Context) (*domain.Booking, error) {
		return s.repo.FindBySessionID(ctx, s.db, sessionID)
	})
}

func (s *Service) ListForUser(ctx context.Context, req domain.ListBookingsRequest) (domain.ListBookingsResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ListBookingsResponse{}, apperror.Unauthorized("")
	}

	filter := domain.ListFilter{
		UserID: req.UserID,
		Limit:  req.Pagination.Limit(),
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListBookingsResponse{}, apperror.FieldValidation("page_token", "is invalid")
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListBookingsResponse{}, apperror.FieldValidation("page_token", "is invalid")
		}
		filter.CursorID = cursor.ID
		filter.CursorCreatedAt = &createdAt
	}

	items, err := persistence.Safe(ctx, persistence.Fields{"userId": req.UserID}, func(ctx context.Context) ([]*domain.Booking, error) {
		return s.repo.List(ctx, s.db, filter)
	})
	if err != nil {
		return domain.ListBookingsResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(b *domain.Booking) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        b.ID,
			CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	bookings := make([]domain.Booking, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		bookings = append(bookings, *item)
	}

	return domain.ListBookingsResponse{
		PageInfo: *pageInfo,
		Bookings: bookings,
	}, nil
}

func (s *Service) Stats(ctx context.Context, req domain.StatsRequest) (domain.Stats, error) {
	rows, err := persistence.Safe(ctx, nil, func(ctx context.Context) ([]domain.StatusCount, error) {
		return s.repo.Stats(ctx, s.db, domain.StatsFilter{
			UserID:   req.UserID,
			CourseID: req.CourseID,
			From:     req.From,
			To:       req.To,
		})
	})
	if err != nil {
		return domain.Stats{}, err
	}

	var stats domain.Stats
	for _, row := range rows {
		stats.Total += row.Count
		switch row.PaymentStatus {
		case domain.StatusPending:
			stats.Pending = row.Count
		case domain.StatusPaid:
			stats.Paid = row.Count
			stats.TotalRevenue = row.Amount
		case domain.StatusFailed:
			stats.Failed = row.Count
		case domain.StatusCancelled:
			stats.Cancelled = row.Count
		case domain.StatusRefunded:
			stats.Refunded = row.Count
		}
	}
	return stats, nil
}

// afterTransition records and publishes a committed status change. Publishing
// failures are logged; the booking row is already the source of truth.
func (s *Service) afterTransition(ctx context.Context, booking domain.Booking, from domain.PaymentStatus) {
	s.metrics.RecordBookingTransition(ctx, string(from), string(booking.PaymentStatus))

	log := logger.WithContext(ctx, s.log)
	log.Info("booking status changed",
		zap.String("booking_id", booking.ID),
		zap.String("from", string(from)),
		zap.String("to", string(booking.PaymentStatus)),
	)

	if s.publisher == nil {
		return
	}
	event := events.Event{
		ID:         s.genID.Generate().String(),
		Type:       eventTypes[booking.PaymentStatus],
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		CourseID:   booking.CourseID,
		Status:     string(booking.PaymentStatus),
		Amount:     booking.Amount,
		Currency:   booking.Currency,
		OccurredAt: booking.UpdatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn("failed to publish booking event",
			zap.String("booking_id", booking.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}
}
