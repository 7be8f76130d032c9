// ABOUTME: Session bridge owning the long-lived agent session on a dedicated worker goroutine
// ABOUTME: Relays turn events to callers through per-query channels; serving goroutines never touch the runtime

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed indicates the bridge has been shut down.
var ErrClosed = errors.New("bridge closed")

// ErrStartTimeout indicates the agent session did not initialize within the start timeout.
var ErrStartTimeout = errors.New("agent session start timed out")

const (
	// eventBuffer sizes each per-query event channel. Turns rarely produce
	// more than a few dozen events before the consumer drains them.
	eventBuffer = 64

	// closeTimeout bounds how long Close waits for the worker to exit.
	// A worker mid-turn finishes its turn first, so this can trip on
	// long-running tool calls; Close reports that instead of hanging.
	closeTimeout = 5 * time.Second
)

// Runtime is the agent session handle the bridge drives. Implementations hold
// the conversation state for the whole session; RunTurn executes one complete
// turn, emitting events as they are produced, and may invoke tools inline.
//
// All Runtime methods are called from the bridge's worker goroutine only.
// Implementations never see concurrent calls.
type Runtime interface {
	// Start initializes the session. Called once per worker lifetime.
	Start(ctx context.Context) error

	// RunTurn executes one turn for the given query. Emitted events are
	// relayed to the caller in order. Returning an error (or panicking)
	// fails the turn, not the session.
	RunTurn(ctx context.Context, text string, emit func(*Event)) error

	// Close releases the session. Called once, after the last turn.
	Close() error
}

// request carries one query into the worker along with its event channel.
// The worker closes the channel when the turn is complete; channel close is
// the end-of-stream marker, distinct from the terminal done/error event.
type request struct {
	text   string
	events chan *Event
}

// Bridge owns one agent session. The session runs on a dedicated worker
// goroutine so that its turn execution (which blocks on the model and on
// tool calls) never runs inside a request-handling goroutine. The only
// crossing points between the two domains are the request channel and the
// per-query event channels.
//
// Queries are serialized: the request channel is unbuffered and the worker
// runs one turn at a time, so concurrent Query calls queue up rather than
// interleave. One in-flight turn per session is the contract.
type Bridge struct {
	runtime      Runtime
	startTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	started  bool
	closed   bool
	requests chan *request
	stop     chan struct{}
	exited   chan struct{}
}

// New creates a Bridge around the given runtime. The session is not started
// until the first query (or an explicit EnsureStarted).
func New(runtime Runtime, startTimeout time.Duration, logger *slog.Logger) *Bridge {
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}
	return &Bridge{
		runtime:      runtime,
		startTimeout: startTimeout,
		logger:       logger.With("component", "bridge"),
	}
}

// EnsureStarted spawns the worker and initializes the agent session if it is
// not already running. Idempotent: a second call while the session is live is
// a no-op. Blocks until the session signals ready, the start timeout elapses,
// or ctx is cancelled. A failed or timed-out start leaves the bridge stopped;
// a later call may retry.
func (b *Bridge) EnsureStarted(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}

	// A previous start attempt may have been abandoned on timeout; at most
	// one worker may back the session, so refuse to spawn another until the
	// old one has fully exited.
	if b.exited != nil {
		select {
		case <-b.exited:
		default:
			return fmt.Errorf("previous agent session is still shutting down")
		}
	}

	requests := make(chan *request)
	stop := make(chan struct{})
	exited := make(chan struct{})
	ready := make(chan error, 1)
	b.requests, b.stop, b.exited = requests, stop, exited

	// The worker captures its own channels: an abandoned start attempt must
	// keep shutting down against them even after a retry replaces the fields.
	go b.run(ready, requests, stop, exited)

	timer := time.NewTimer(b.startTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			<-b.exited
			return fmt.Errorf("starting agent session: %w", err)
		}
		b.started = true
		return nil

	case <-timer.C:
		// Abandon this start attempt. The worker notices stop once (if)
		// initialization finishes and tears the session down itself.
		close(stop)
		return ErrStartTimeout

	case <-ctx.Done():
		close(stop)
		return ctx.Err()
	}
}

// run is the worker loop. It initializes the runtime, signals readiness, and
// then serves one turn at a time until stopped. The runtime is only ever
// touched from this goroutine.
func (b *Bridge) run(ready chan<- error, requests <-chan *request, stop, exited chan struct{}) {
	defer close(exited)

	if err := b.runtime.Start(context.Background()); err != nil {
		ready <- err
		return
	}

	// The start may have been abandoned while we were initializing.
	select {
	case <-stop:
		if err := b.runtime.Close(); err != nil {
			b.logger.Warn("closing agent session", "error", err)
		}
		return
	default:
	}

	ready <- nil
	b.logger.Info("agent session started")

	for {
		select {
		case <-stop:
			if err := b.runtime.Close(); err != nil {
				b.logger.Warn("closing agent session", "error", err)
			}
			b.logger.Info("agent session stopped")
			return

		case req := <-requests:
			b.runTurn(req, stop)
		}
	}
}

// runTurn executes one turn and always terminates the event stream: every
// emitted sequence ends with exactly one done or error event followed by
// channel close. Turn failures (including panics) are converted to an error
// event; the worker stays alive for the next query.
func (b *Bridge) runTurn(req *request, stop <-chan struct{}) {
	defer close(req.events)

	emit := func(ev *Event) {
		select {
		case req.events <- ev:
		case <-stop:
			// Shutting down; the consumer may be gone. Drop the event
			// rather than block the worker forever.
		}
	}

	err := b.safeRunTurn(req.text, emit)
	if err != nil {
		b.logger.Warn("turn failed", "error", err)
		emit(&Event{Kind: KindError, Err: err.Error()})
		return
	}
	emit(&Event{Kind: KindDone})
}

// safeRunTurn invokes the runtime with panic containment.
func (b *Bridge) safeRunTurn(text string, emit func(*Event)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()
	return b.runtime.RunTurn(context.Background(), text, emit)
}

// Query submits one natural-language query and returns the channel its events
// arrive on. The channel is closed after the terminal done or error event.
// Starts the session if needed; a start failure is returned directly and no
// event stream is produced.
func (b *Bridge) Query(ctx context.Context, text string) (<-chan *Event, error) {
	if err := b.EnsureStarted(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	requests, stop, closed := b.requests, b.stop, b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	req := &request{
		text:   text,
		events: make(chan *Event, eventBuffer),
	}

	select {
	case requests <- req:
		return req.events, nil
	case <-stop:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker and releases the agent session. Idempotent, and safe
// to call on a bridge that was never started.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.started
	b.started = false
	stop, exited := b.stop, b.exited
	b.mu.Unlock()

	if !started {
		return nil
	}

	close(stop)
	select {
	case <-exited:
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("agent session worker did not stop within %s", closeTimeout)
	}
}
