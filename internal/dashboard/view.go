// Package dashboard holds the presentation state of one dashboard page
// view: Loading until the single stats fetch resolves, then Success or
// Error for the rest of the view's life.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"markin/internal/core"
	"markin/internal/stats"
)

// ErrUnmounted is returned by Wait when the view was unmounted before it
// reached a terminal state.
var ErrUnmounted = errors.New("dashboard view unmounted")

// View is the state machine of one page view. Create one per page view
// and discard it afterwards; it is never shared between page views.
type View struct {
	fetcher   stats.Fetcher
	observers []func(State)

	mu       sync.Mutex
	state    State
	started  bool
	mounted  bool
	cancel   context.CancelFunc
	done     chan struct{}
	gone     chan struct{}
	goneOnce sync.Once
}

type Option func(*View)

// WithObserver registers fn to be called after every state transition
// with the new state. Observers run on the fetch goroutine, outside the
// view's lock, and must not block.
func WithObserver(fn func(State)) Option {
	return func(v *View) {
		if fn != nil {
			v.observers = append(v.observers, fn)
		}
	}
}

// NewView returns a view in the Loading state. Nothing is fetched until
// Mount is called.
func NewView(f stats.Fetcher, opts ...Option) *View {
	v := &View{
		fetcher: f,
		state:   loadingState(),
		done:    make(chan struct{}),
		gone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mount issues the view's one fetch. Calls after the first, and calls on
// an unmounted view, do nothing.
func (v *View) Mount(ctx context.Context) {
	v.mu.Lock()
	if v.started {
		v.mu.Unlock()
		return
	}
	v.started = true
	v.mounted = true
	fetchCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()

	go v.run(fetchCtx)
}

func (v *View) run(ctx context.Context) {
	snap, err := v.fetcher.FetchStats(ctx)

	var next State
	if err != nil {
		next = errorState(err)
	} else {
		next = successState(stats.Normalize(snap))
	}

	v.mu.Lock()
	if !v.mounted || v.state.Phase != PhaseLoading {
		v.mu.Unlock()
		slog.DebugContext(ctx, "Discarding stats result for unmounted view", "phase", next.Phase.String())
		return
	}
	v.state = next
	cancel := v.cancel
	v.mu.Unlock()

	close(v.done)
	cancel()

	for _, fn := range v.observers {
		fn(next)
	}
}

// Unmount ends the page view. An in-flight fetch is cancelled and its
// result, whenever it arrives, is dropped without touching the state.
func (v *View) Unmount() {
	v.mu.Lock()
	v.mounted = false
	v.started = true
	cancel := v.cancel
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	v.goneOnce.Do(func() { close(v.gone) })
}

// State returns the current state. The returned value is a copy.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Done is closed once the view reaches Success or Error.
func (v *View) Done() <-chan struct{} {
	return v.done
}

// Wait blocks until the view is terminal, unmounted, or ctx ends.
func (v *View) Wait(ctx context.Context) (State, error) {
	select {
	case <-v.done:
		return v.State(), nil
	default:
	}

	select {
	case <-v.done:
		return v.State(), nil
	case <-v.gone:
		return v.State(), ErrUnmounted
	case <-ctx.Done():
		return v.State(), ctx.Err()
	}
}

// Load mounts a fresh view, waits for its terminal state and unmounts it.
// It is the whole lifetime of one page view for callers that render once.
func Load(ctx context.Context, f stats.Fetcher, opts ...Option) (State, error) {
	v := NewView(f, opts...)
	v.Mount(ctx)
	defer v.Unmount()
	return v.Wait(ctx)
}

// Loading returns the state every view starts in, for rendering a page
// shell before any view is mounted.
func Loading() State {
	return loadingState()
}

func loadingState() State {
	return State{Phase: PhaseLoading, Model: stats.Normalize(core.StatsSnapshot{})}
}
