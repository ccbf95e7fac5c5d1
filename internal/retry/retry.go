// Package retry wraps provider calls with bounded attempts, pacing and a
// circuit breaker. Every failure mode collapses into ErrNoResult.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrNoResult is returned once all attempts are spent or the breaker is open.
var ErrNoResult = errors.New("no result")

type Config struct {
	Attempts         int           `mapstructure:"attempts" json:"attempts"`
	RateDelay        time.Duration `mapstructure:"rate_delay" json:"rate_delay"`
	FailureDelay     time.Duration `mapstructure:"failure_delay" json:"failure_delay"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold" json:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" json:"breaker_cooldown"`
}

// DefaultConfig gives every call its full attempts. The breaker is opt-in
// through BreakerThreshold.
func DefaultConfig() Config {
	return Config{
		Attempts:         3,
		RateDelay:        time.Second,
		FailureDelay:     2 * time.Second,
		BreakerCooldown:  30 * time.Second,
	}
}

// Controller is shared by every call of one stage so the pacing and the
// breaker see the whole run.
type Controller struct {
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(name string, cfg Config, logger *slog.Logger) *Controller {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RateDelay > 0 {
		limit = rate.Every(cfg.RateDelay)
	}

	c := &Controller{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		sleep:   sleepWithCtx,
	}

	if cfg.BreakerThreshold > 0 {
		threshold := cfg.BreakerThreshold
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

func (c *Controller) Attempts() int {
	return c.cfg.Attempts
}

// Do calls fn until it succeeds or the attempts run out. Attempts are paced
// by the rate limiter and separated by FailureDelay after a failure. A
// cancelled context ends the loop immediately.
func Do[T any](ctx context.Context, c *Controller, label string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%s: %w: %v", label, ErrNoResult, err)
		}

		v, err := c.attempt(ctx, func(ctx context.Context) (any, error) {
			v, err := fn(ctx)
			return v, err
		})
		if err == nil {
			out, _ := v.(T)
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w: %w", label, ErrNoResult, ctx.Err())
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Error("circuit open, giving up", "call", label, "error", err)
			return zero, fmt.Errorf("%s: %w: %w", label, ErrNoResult, err)
		}

		c.logger.Warn("attempt failed", "call", label, "attempt", fmt.Sprintf("%d/%d", attempt, c.cfg.Attempts), "error", err)

		if attempt < c.cfg.Attempts {
			if err := c.sleep(ctx, c.cfg.FailureDelay); err != nil {
				return zero, fmt.Errorf("%s: %w: %w", label, ErrNoResult, err)
			}
		}
	}

	c.logger.Error("all attempts failed", "call", label, "attempts", c.cfg.Attempts, "error", lastErr)
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", label, ErrNoResult, c.cfg.Attempts, lastErr)
}

func (c *Controller) attempt(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	callCtx := ctx
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	if c.breaker == nil {
		return fn(callCtx)
	}
	return c.breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
