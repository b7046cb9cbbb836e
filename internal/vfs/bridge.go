package vfs

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/semaphore"

	"github.com/objectfs/snapfs/pkg/errors"
)

// BridgeMode selects how repository calls are executed.
type BridgeMode int

const (
	// BridgeInline runs the call on the requesting goroutine. Suited to
	// adapters that already dedicate a goroutine to every request.
	BridgeInline BridgeMode = iota
	// BridgeOffload runs the call on a separate goroutine, bounded by a
	// worker limit, while the caller waits for the result or for its
	// context to end.
	BridgeOffload
)

// String returns the string representation of the bridge mode
func (m BridgeMode) String() string {
	if m == BridgeOffload {
		return "offload"
	}
	return "inline"
}

// ParseBridgeMode parses "inline" or "offload".
func ParseBridgeMode(s string) (BridgeMode, error) {
	switch s {
	case "inline":
		return BridgeInline, nil
	case "offload":
		return BridgeOffload, nil
	default:
		return 0, errors.ConfigurationError("unknown bridge mode %q (must be inline or offload)", s)
	}
}

// DefaultBridgeWorkers bounds concurrent offloaded calls when no limit is given.
const DefaultBridgeWorkers = 16

// Bridge runs potentially blocking repository calls on behalf of protocol
// adapters. The mode is fixed at construction by the caller that knows its
// scheduling environment.
type Bridge struct {
	mode    BridgeMode
	workers int64
	sem     *semaphore.Weighted
}

// NewBridge creates a bridge. workers bounds concurrent offloaded calls and
// is ignored in inline mode.
func NewBridge(mode BridgeMode, workers int) *Bridge {
	if workers <= 0 {
		workers = DefaultBridgeWorkers
	}
	b := &Bridge{mode: mode, workers: int64(workers)}
	if mode == BridgeOffload {
		b.sem = semaphore.NewWeighted(b.workers)
	}
	return b
}

// Mode returns the execution strategy.
func (b *Bridge) Mode() BridgeMode {
	return b.mode
}

// panicError carries a panic from a worker goroutine back to the caller.
type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in repository call: %v\n%s", p.value, p.stack)
}

type result[T any] struct {
	value T
	err   error
	panic *panicError
}

// Run executes fn through the bridge. fn runs exactly once. A panic inside fn
// is re-raised on the calling goroutine. In offload mode a cancelled context
// returns ctx.Err() without waiting for fn, which still completes and
// releases its worker slot.
func Run[T any](ctx context.Context, b *Bridge, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil || b.mode == BridgeInline {
		return fn(ctx)
	}

	var zero T
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer b.sem.Release(1)
		var r result[T]
		defer func() {
			if v := recover(); v != nil {
				r.panic = &panicError{value: v, stack: debug.Stack()}
			}
			done <- r
		}()
		r.value, r.err = fn(ctx)
	}()

	select {
	case r := <-done:
		if r.panic != nil {
			panic(r.panic)
		}
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
