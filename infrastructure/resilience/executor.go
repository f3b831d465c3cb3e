// Package resilience wraps tool executors with fortify concurrency limits,
// timeouts, per-tool circuit breakers and retries for idempotent tools.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/executor"
)

// Executor applies resilience patterns around an executor.Executor.
type Executor struct {
	next     executor.Executor
	bulkhead bulkhead.Bulkhead[tool.Result]
	retry    retry.Retry[tool.Result]
	config   ExecutorConfig

	breakers map[string]circuitbreaker.CircuitBreaker[tool.Result]
	mu       sync.Mutex
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent tool executions.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures of one
	// tool before its breaker opens.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long a breaker stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for idempotent tools.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout applies when a descriptor sets no timeout.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           8,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          30 * time.Second,
	}
}

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithMaxConcurrent sets the maximum concurrent executions.
func WithMaxConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		c.MaxConcurrent = n
	}
}

// WithCircuitBreakerThreshold sets the failure threshold for circuit breakers.
func WithCircuitBreakerThreshold(n int) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = n
	}
}

// WithRetryAttempts sets the maximum retry attempts.
func WithRetryAttempts(n int) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.RetryInitialDelay = d
	}
}

// WithTimeout sets the default execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.DefaultTimeout = d
	}
}

// NewExecutor wraps next.
func NewExecutor(next executor.Executor, opts ...Option) *Executor {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.RetryMaxAttempts <= 0 {
		config.RetryMaxAttempts = 1
	}

	return &Executor{
		next: next,
		bulkhead: bulkhead.New[tool.Result](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		}),
		retry: retry.New[tool.Result](retry.Config{
			MaxAttempts:   config.RetryMaxAttempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryBackoffMultiplier,
		}),
		config:   config,
		breakers: make(map[string]circuitbreaker.CircuitBreaker[tool.Result]),
	}
}

func (e *Executor) breaker(name string) circuitbreaker.CircuitBreaker[tool.Result] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[name]; ok {
		return cb
	}
	threshold := uint32(e.config.CircuitBreakerThreshold) // #nosec G115 -- positive, checked in NewExecutor
	cb := circuitbreaker.New[tool.Result](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    e.config.CircuitBreakerTimeout,
		Timeout:     e.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	e.breakers[name] = cb
	return cb
}

// Execute runs the request.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry (idempotent tools only).
func (e *Executor) Execute(ctx context.Context, req executor.Request) (tool.Result, error) {
	start := time.Now()
	d := req.Descriptor
	timeout := d.Implementation.TimeoutOr(e.config.DefaultTimeout)

	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (tool.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return e.breaker(d.Name).Execute(ctx, func(ctx context.Context) (tool.Result, error) {
			if d.Metadata.Annotations.Idempotent {
				return e.retry.Do(ctx, func(ctx context.Context) (tool.Result, error) {
					return e.next.Execute(ctx, req)
				})
			}
			return e.next.Execute(ctx, req)
		})
	})
	if err == nil {
		result = result.WithDuration(time.Since(start))
	}
	return result, err
}

// CircuitBreakerState returns the breaker state of one tool.
func (e *Executor) CircuitBreakerState(name string) circuitbreaker.State {
	return e.breaker(name).State()
}
