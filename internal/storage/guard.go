// Package storage holds the blob backends repositories are stored in and
// the guard that retries and circuit-breaks calls to them.
package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/circuit"
	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/retry"
	"github.com/objectfs/snapfs/pkg/types"
)

// GuardOptions configures a Guard.
type GuardOptions struct {
	Retry   retry.Config
	Breaker circuit.Config
	Logger  *zap.Logger
}

// Guard wraps a backend so transient failures are retried and a backend
// that keeps failing is short-circuited.
type Guard struct {
	backend types.Backend
	retryer *retry.Retryer
	breaker *circuit.CircuitBreaker
	logger  *zap.Logger
}

var _ types.Backend = (*Guard)(nil)

// NewGuard wraps backend. name identifies the backend in logs and errors.
func NewGuard(name string, backend types.Backend, opts GuardOptions) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Named("storage")
	}
	logger = logger.With(zap.String("backend", name))

	retryCfg := opts.Retry
	retryCfg.Retryable = func(err error) bool {
		return !circuit.IsOpen(err) && retry.IsTransient(err)
	}
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug("retrying backend call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	breakerCfg := opts.Breaker
	breakerCfg.OnStateChange = func(_ string, from, to circuit.State) {
		logger.Warn("backend circuit breaker changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	return &Guard{
		backend: backend,
		retryer: retry.New(retryCfg),
		breaker: circuit.NewCircuitBreaker(name, breakerCfg),
		logger:  logger,
	}
}

// Unwrap returns the guarded backend.
func (g *Guard) Unwrap() types.Backend { return g.backend }

// BreakerState reports the circuit breaker state.
func (g *Guard) BreakerState() circuit.State { return g.breaker.GetState() }

func (g *Guard) call(ctx context.Context, fn func(context.Context) error) error {
	return g.retryer.Do(ctx, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, fn)
	})
}

// GetObject implements types.Backend.
func (g *Guard) GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	var data []byte
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		data, err = g.backend.GetObject(ctx, key, offset, size)
		return err
	})
	return data, err
}

// PutObject implements types.Backend.
func (g *Guard) PutObject(ctx context.Context, key string, data []byte) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.backend.PutObject(ctx, key, data)
	})
}

// HeadObject implements types.Backend.
func (g *Guard) HeadObject(ctx context.Context, key string) (*types.ObjectInfo, error) {
	var info *types.ObjectInfo
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		info, err = g.backend.HeadObject(ctx, key)
		return err
	})
	return info, err
}

// ListObjects implements types.Backend.
func (g *Guard) ListObjects(ctx context.Context, prefix string, limit int) ([]types.ObjectInfo, error) {
	var objects []types.ObjectInfo
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		objects, err = g.backend.ListObjects(ctx, prefix, limit)
		return err
	})
	return objects, err
}

// HealthCheck bypasses retries and the breaker so it reports the backend's
// current state.
func (g *Guard) HealthCheck(ctx context.Context) error {
	return g.backend.HealthCheck(ctx)
}
