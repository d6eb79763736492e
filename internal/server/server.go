package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/academy/internal/authorization"
	"github.com/smallbiznis/academy/internal/booking"
	bookingdomain "github.com/smallbiznis/academy/internal/booking/domain"
	"github.com/smallbiznis/academy/internal/cache"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/course"
	coursedomain "github.com/smallbiznis/academy/internal/course/domain"
	"github.com/smallbiznis/academy/internal/erroranalytics"
	"github.com/smallbiznis/academy/internal/events"
	"github.com/smallbiznis/academy/internal/identity"
	"github.com/smallbiznis/academy/internal/observability"
	obsmiddleware "github.com/smallbiznis/academy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/academy/internal/observability/metrics"
	obstracing "github.com/smallbiznis/academy/internal/observability/tracing"
	"github.com/smallbiznis/academy/internal/payment"
	paymentdomain "github.com/smallbiznis/academy/internal/payment/domain"
	"github.com/smallbiznis/academy/internal/ratelimit"
	"github.com/smallbiznis/academy/internal/user"
	userdomain "github.com/smallbiznis/academy/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	identity.Module,
	authorization.Module,
	events.Module,
	course.Module,
	user.Module,
	booking.Module,
	payment.Module,
	ratelimit.Module,
	erroranalytics.Module,
	fx.Provide(NewRenderer),
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, renderer *Renderer, policies *config.PolicyConfigHolder) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(renderer.ErrorBoundary())
	r.Use(CORS(policies))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
	Renderer    *Renderer
	Policies    *config.PolicyConfigHolder `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.ObsCfg, p.HTTPMetrics, p.Renderer, p.Policies)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	clock      clock.Clock
	identities *identity.Manager
	authz      authorization.Service
	users      userdomain.Service
	courses    coursedomain.Service
	bookings   bookingdomain.Service
	gateway    paymentdomain.Gateway
	webhooks   paymentdomain.WebhookProcessor
	limiter    *ratelimit.Service
	analytics  *erroranalytics.Service
	ensured    cache.Cache[string, userdomain.Profile]
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Identities *identity.Manager
	Authz      authorization.Service
	Users      userdomain.Service
	Courses    coursedomain.Service
	Bookings   bookingdomain.Service
	Gateway    paymentdomain.Gateway
	Webhooks   paymentdomain.WebhookProcessor
	Limiter    *ratelimit.Service
	Analytics  *erroranalytics.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		clock:      p.Clock,
		identities: p.Identities,
		authz:      p.Authz,
		users:      p.Users,
		courses:    p.Courses,
		bookings:   p.Bookings,
		gateway:    p.Gateway,
		webhooks:   p.Webhooks,
		limiter:    p.Limiter,
		analytics:  p.Analytics,
		ensured:    cache.NewTTLCacheWithClock[string, userdomain.Profile](p.Clock),
	}

	svc.registerWebhookRoutes()
	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhook := s.engine.Group("/api/stripe/webhook")
	webhook.POST("", s.HandleStripeWebhook)
	webhook.GET("", s.StripeWebhookHealth)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/api", s.RateLimit(config.PolicyGroupAPI))
	public.GET("/courses", s.ListCourses)
	public.GET("/courses/:id", s.GetCourse)
	public.DELETE("/auth/session", s.EndSession)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	checkout := api.Group("/checkout", s.RateLimit(config.PolicyGroupCheckout))
	checkout.POST("", BindJSON[createCheckoutRequest](), s.CreateCheckout)
	checkout.GET("/verify", s.VerifyCheckout)

	api.POST("/auth/session", s.RateLimit(config.PolicyGroupAPI), s.RefreshSession)

	bookings := api.Group("/bookings", s.RateLimit(config.PolicyGroupAPI))
	bookings.GET("", BindQuery[listBookingsQuery](), s.ListBookings)
	bookings.GET("/:id", s.GetBooking)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin",
		s.AuthRequired(),
		s.AdminRequired(),
		s.RateLimit(config.PolicyGroupAdmin),
	)

	admin.POST("/courses", BindJSON[coursedomain.CreateCourseRequest](), s.CreateCourse)
	admin.GET("/bookings/stats", BindQuery[bookingdomain.StatsRequest](), s.BookingStats)

	admin.GET("/errors", s.ErrorMetrics)
	admin.GET("/errors/recent", s.RecentErrors)
	admin.POST("/errors/:id/resolve", s.ResolveError)
	admin.DELETE("/errors", s.ClearErrors)
}
