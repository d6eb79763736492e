package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyConfig carries the request policies that can change without a restart.
type PolicyConfig struct {
	RateLimits map[string]RateLimitPolicy `mapstructure:"rateLimits"`
	CORS       CORSPolicy                 `mapstructure:"cors"`
}

type RateLimitPolicy struct {
	MaxRequests int           `mapstructure:"maxRequests"`
	Window      time.Duration `mapstructure:"window"`
}

type CORSPolicy struct {
	AllowOrigin  string   `mapstructure:"allowOrigin"`
	AllowMethods []string `mapstructure:"allowMethods"`
	AllowHeaders []string `mapstructure:"allowHeaders"`
}

const (
	PolicyGroupAPI      = "api"
	PolicyGroupCheckout = "checkout"
	PolicyGroupAdmin    = "admin"
)

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		RateLimits: map[string]RateLimitPolicy{
			PolicyGroupAPI:      {MaxRequests: 100, Window: 15 * time.Minute},
			PolicyGroupCheckout: {MaxRequests: 10, Window: time.Minute},
			PolicyGroupAdmin:    {MaxRequests: 300, Window: 15 * time.Minute},
		},
		CORS: CORSPolicy{
			AllowOrigin:  "*",
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Authorization", "X-User-ID"},
		},
	}
}

// RateLimit returns the policy for group, falling back to the api group.
func (p PolicyConfig) RateLimit(group string) RateLimitPolicy {
	if policy, ok := p.RateLimits[group]; ok {
		return policy
	}
	return p.RateLimits[PolicyGroupAPI]
}

type PolicyConfigHolder struct {
	current atomic.Value // holds PolicyConfig
}

// NewPolicyConfigHolder reads policies.yml (or the file at path when set)
// and keeps watching it. Reloads that fail validation are ignored.
func NewPolicyConfigHolder(path string) (*PolicyConfigHolder, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("policies")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/academy")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// no file: defaults, nothing to watch
		return NewStaticPolicyConfigHolder(DefaultPolicyConfig()), nil
	}

	cfg, err := decodePolicies(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicies(v)
		if err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticPolicyConfigHolder pins a fixed snapshot.
func NewStaticPolicyConfigHolder(cfg PolicyConfig) *PolicyConfigHolder {
	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PolicyConfigHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func decodePolicies(v *viper.Viper) (PolicyConfig, error) {
	var cfg PolicyConfig
	if err := v.UnmarshalKey("policies", &cfg); err != nil {
		return PolicyConfig{}, err
	}
	if cfg.CORS.AllowOrigin == "" && len(cfg.CORS.AllowMethods) == 0 && len(cfg.CORS.AllowHeaders) == 0 {
		cfg.CORS = DefaultPolicyConfig().CORS
	}
	if err := validatePolicyConfig(cfg); err != nil {
		return PolicyConfig{}, err
	}
	return cfg, nil
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if len(cfg.RateLimits) == 0 {
		return errors.New("policies.rateLimits cannot be empty")
	}
	if _, ok := cfg.RateLimits[PolicyGroupAPI]; !ok {
		return errors.New("policies.rateLimits.api is required")
	}
	for name, policy := range cfg.RateLimits {
		if policy.MaxRequests <= 0 {
			return fmt.Errorf("policies.rateLimits.%s.maxRequests must be positive", name)
		}
		if policy.Window <= 0 {
			return fmt.Errorf("policies.rateLimits.%s.window must be positive", name)
		}
	}
	if strings.TrimSpace(cfg.CORS.AllowOrigin) == "" {
		return errors.New("policies.cors.allowOrigin cannot be empty")
	}
	return nil
}
