package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/observability/logger"
	"github.com/smallbiznis/academy/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "academy:ratelimit:%s:%s"

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter counts hits for key inside a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string, policy config.RateLimitPolicy) (*Result, error)
}

type ServiceParams struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	Limiter  Limiter
	Policies *config.PolicyConfigHolder `optional:"true"`
	Metrics  *metrics.Metrics           `optional:"true"`
}

// Service applies the configured policy group to a client.
type Service struct {
	log      *zap.Logger
	limiter  Limiter
	policies *config.PolicyConfigHolder
	fallback config.RateLimitPolicy
	metrics  *metrics.Metrics
}

func NewService(p ServiceParams) *Service {
	return &Service{
		log:      p.Log.Named("ratelimit"),
		limiter:  p.Limiter,
		policies: p.Policies,
		fallback: config.RateLimitPolicy{
			MaxRequests: p.Cfg.RateLimit.MaxRequests,
			Window:      p.Cfg.RateLimit.Window,
		},
		metrics: p.Metrics,
	}
}

func (s *Service) Policy(group string) config.RateLimitPolicy {
	if s.policies == nil {
		return s.fallback
	}
	return s.policies.Get().RateLimit(group)
}

// Allow admits the request when the backing store cannot be reached.
func (s *Service) Allow(ctx context.Context, group, clientID string) *Result {
	policy := s.Policy(group)
	key := fmt.Sprintf(keyPrefix, group, strings.TrimSpace(clientID))

	res, err := s.limiter.Allow(ctx, key, policy)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("rate limiter unavailable, allowing request",
			zap.String("group", group),
			zap.Error(err),
		)
		s.metrics.RecordRateLimitDenied(ctx, group, "backend_error")
		return &Result{Allowed: true, Limit: policy.MaxRequests, Remaining: policy.MaxRequests}
	}

	if res.Allowed {
		s.metrics.RecordRateLimitAllowed(ctx, group)
	} else {
		s.metrics.RecordRateLimitDenied(ctx, group, "limit_exceeded")
	}
	return res
}

func validate(key string, policy config.RateLimitPolicy) error {
	if key == "" {
		return fmt.Errorf("rate limiter key is empty")
	}
	if policy.MaxRequests <= 0 {
		return fmt.Errorf("rate limiter max requests must be positive")
	}
	if policy.Window <= 0 {
		return fmt.Errorf("rate limiter window must be positive")
	}
	return nil
}
