package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Operation is a unit of outbound work. Returning Permanent(err) stops retries.
type Operation func(ctx context.Context) error

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// ExecutorConfig holds configuration for an Executor.
type ExecutorConfig struct {
	// Name identifies the wrapped dependency, e.g. "pubsub" or "mqtt".
	Name string

	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 2 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, if set, receives the executor and its success/failure events.
	Registry *Registry
}

// DefaultExecutorConfig returns sensible defaults for sink publishing.
func DefaultExecutorConfig(name string) ExecutorConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ExecutorConfig{
		Name:            name,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Executor runs operations through a circuit breaker with exponential backoff.
type Executor struct {
	breaker  *gobreaker.CircuitBreaker[struct{}]
	config   ExecutorConfig
	registry *Registry
}

// NewExecutor creates an Executor and registers it when cfg.Registry is set.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	e := &Executor{
		breaker:  NewCircuitBreaker[struct{}](cbConfig),
		config:   cfg,
		registry: cfg.Registry,
	}

	if e.registry != nil {
		e.registry.Register(cfg.Name, e)
	}

	return e
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return e.config.Name
}

// Do runs op, retrying transient failures with exponential backoff. It
// returns ErrCircuitOpen immediately while the breaker is open.
func (e *Executor) Do(ctx context.Context, op Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.config.InitialInterval
	bo.MaxInterval = e.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by MaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.config.MaxRetries), ctx)

	attempt := func() error {
		_, err := e.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, op(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		return err
	}

	err := backoff.Retry(attempt, policy)
	if e.registry != nil {
		if err != nil {
			e.registry.RecordFailure(e.config.Name, err)
		} else {
			e.registry.RecordSuccess(e.config.Name)
		}
	}
	return err
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (e *Executor) CircuitBreakerState() gobreaker.State {
	return e.breaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (e *Executor) CircuitBreakerCounts() gobreaker.Counts {
	return e.breaker.Counts()
}
