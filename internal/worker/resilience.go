package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/agentpool/internal/logging"
	"github.com/aristath/agentpool/internal/store"
)

// RetryConfig configures exponential backoff for transient invocation
// failures. These retries happen inside a single task attempt and are
// unrelated to the task lifecycle retry budget.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages per-model circuit breakers so one misbehaving
// model endpoint doesn't take invocations of the others down with it.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      *logging.Logger
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(log *logging.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log.WithComponent("breaker"),
	}
}

// Get returns the circuit breaker for a model, creating it on first use.
func (r *BreakerRegistry) Get(model string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[model]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.log.Warn("circuit breaker state changed",
				"model", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not the model's.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[model] = cb
	return cb
}

// ResilientInvoker wraps an Invoker with exponential backoff and a
// per-model circuit breaker.
type ResilientInvoker struct {
	inner    Invoker
	breakers *BreakerRegistry
	retryCfg RetryConfig
}

// NewResilientInvoker wraps inner with retry and breaker protection.
func NewResilientInvoker(inner Invoker, breakers *BreakerRegistry, retryCfg RetryConfig) *ResilientInvoker {
	return &ResilientInvoker{inner: inner, breakers: breakers, retryCfg: retryCfg}
}

// Invoke calls the wrapped invoker, retrying transient failures. An open
// circuit and a cancelled context both stop retrying immediately.
func (ri *ResilientInvoker) Invoke(ctx context.Context, agent *store.Agent, prompt string) (string, error) {
	cb := ri.breakers.Get(agent.Model)
	var response string

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return ri.inner.Invoke(ctx, agent, prompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		response = result.(string)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ri.retryCfg.InitialInterval
	policy.MaxInterval = ri.retryCfg.MaxInterval
	policy.MaxElapsedTime = ri.retryCfg.MaxElapsedTime
	policy.Multiplier = ri.retryCfg.Multiplier
	policy.RandomizationFactor = ri.retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return response, err
}
