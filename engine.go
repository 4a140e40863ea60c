package credtrust

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/credtrust/credtrust/internal/audit"
	"github.com/credtrust/credtrust/internal/limiters"
	"github.com/credtrust/credtrust/internal/metrics"
	"github.com/credtrust/credtrust/internal/rate"
	"github.com/credtrust/credtrust/jwt"
	"github.com/credtrust/credtrust/password"
	"github.com/credtrust/credtrust/store"
)

// Engine is the credential and session-trust core. Construct it through
// [Builder]; all methods are safe for concurrent use. Call Close when done to
// stop the background sweeper and drain the audit dispatcher.
type Engine struct {
	config   Config
	logger   *slog.Logger
	store    store.Store
	notifier Notifier

	hasher     *password.Hasher
	jwtManager *jwt.Manager

	lockout       *limiters.Lockout
	resetRequests *limiters.Window
	resetConfirm  *limiters.Lockout
	rateLimiter   rate.Limiter

	audit   *audit.Dispatcher
	metrics *metrics.Set

	closed    atomic.Bool
	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// Close stops the background sweeper and drains the audit dispatcher.
// Idempotent. The store and any Redis client are closed by their owner, not
// here.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepWG.Wait()
	}
	e.audit.Close()
}

// Metrics returns a snapshot of the engine's counters.
func (e *Engine) Metrics() map[string]uint64 {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many security events were shed because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// RateLimit counts one hit for the endpoint by the caller's address
// (WithClientIP) and an optional discriminator. It returns nil when the hit
// fits the budget, a RetryableError wrapping ErrRateLimited when it does not,
// and nil when the endpoint has no configured rule.
func (e *Engine) RateLimit(ctx context.Context, endpoint, discriminator string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	rule, ok := e.config.RateLimit.rule(endpoint)
	if !ok {
		return nil
	}

	key := rate.Key(endpoint, clientIPFromContext(ctx), discriminator)
	allowed, retryAfter, err := e.rateLimiter.Allow(ctx, key, rate.Rule{Max: rule.Max, Window: rule.Window})
	if err != nil {
		e.logger.Error("rate limiter backend failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !allowed {
		e.metrics.Inc(metrics.RateLimited)
		e.emitAudit(ctx, eventRateLimited, false, "", ErrRateLimited, "endpoint="+endpoint)
		return retryable(ErrRateLimited, retryAfter)
	}
	return nil
}

// IsLockedOut reports whether the identifier is currently locked out of login.
func (e *Engine) IsLockedOut(identifier string) bool {
	return e.lockout.IsLocked(identifier)
}

// LockoutRemaining returns the time left on the identifier's login lockout,
// zero when not locked.
func (e *Engine) LockoutRemaining(identifier string) time.Duration {
	return e.lockout.Remaining(identifier)
}

// FailedAttempts returns the identifier's current consecutive login failures.
func (e *Engine) FailedAttempts(identifier string) int {
	return e.lockout.FailureCount(identifier)
}

// CleanupExpired deletes expired token, verification-code, and reset rows,
// reporting how many rows each table lost.
func (e *Engine) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	if err := e.checkOpen(); err != nil {
		return CleanupResult{}, err
	}

	now := time.Now()
	var result CleanupResult
	var err error

	if result.Tokens, err = e.store.DeleteExpiredTokens(ctx, now); err != nil {
		return result, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if result.Codes, err = e.store.DeleteExpiredCodes(ctx, now); err != nil {
		return result, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if result.ResetTokens, err = e.store.DeleteExpiredResetTokens(ctx, now); err != nil {
		return result, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if result.Total() > 0 {
		e.logger.Info("expired rows removed",
			"tokens", result.Tokens,
			"codes", result.Codes,
			"reset_tokens", result.ResetTokens,
		)
	}
	return result, nil
}

func (e *Engine) startSweeper(interval time.Duration) {
	e.sweepStop = make(chan struct{})
	e.sweepWG.Add(1)

	go func() {
		defer e.sweepWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := e.CleanupExpired(ctx); err != nil {
					e.logger.Error("cleanup sweep failed", "error", err)
				}
				cancel()
			case <-e.sweepStop:
				return
			}
		}
	}()
}
