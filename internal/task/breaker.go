package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/nodemanager/internal/log"
)

// BreakerConfig configures the per-tool circuit breakers.
type BreakerConfig struct {
	// Failures is the number of consecutive tool failures that opens the breaker.
	Failures uint32
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Failures: 5,
		Timeout:  30 * time.Second,
	}
}

// BreakerRegistry manages one circuit breaker per conversion tool.
type BreakerRegistry struct {
	cfg    BreakerConfig
	logger log.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a registry. A nil logger discards state changes.
func NewBreakerRegistry(cfg BreakerConfig, logger log.Logger) *BreakerRegistry {
	if cfg.Failures == 0 {
		cfg.Failures = DefaultBreakerConfig().Failures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	if logger == nil {
		logger = log.Noop
	}

	return &BreakerRegistry{
		cfg:      cfg,
		logger:   logger.WithValues(log.Kv{"svc": "task.BreakerRegistry"}),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for tool, creating it if needed.
func (r *BreakerRegistry) Get(tool string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[tool]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tool,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     r.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.Failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warningf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A stopped item says nothing about the tool.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[tool] = cb
	return cb
}
