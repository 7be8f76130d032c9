// Package bridge runs the long-lived agent session on a dedicated worker
// goroutine and relays its output to request handlers over channels.
//
// # Why a bridge
//
// The agent session is stateful (conversation history) and its turn execution
// blocks for long stretches: streaming the model response, running SSH
// commands mid-turn. Neither belongs inside an HTTP handler goroutine, and
// the session must not be driven from two goroutines at once. The bridge
// isolates the session behind one worker; the only crossing points are
// channels.
//
// # Handoff protocol
//
// Each Query sends a request over an unbuffered channel, which serializes
// turns: one in-flight turn per session, concurrent callers queue. The
// request carries its own buffered event channel. The worker pushes events in
// production order and closes the channel when the turn is over — channel
// close is the end-of-stream marker, distinct from the terminal event itself.
//
// Event ordering within a turn:
//
//	content* / tool_use* ... (done | error), then channel close
//
// Exactly one terminal event per turn. A turn failure (error return or panic
// from the runtime) becomes an error event; the worker survives and serves
// the next query.
//
// # Lifecycle
//
//	b := bridge.New(runtime, 30*time.Second, logger)
//	events, err := b.Query(ctx, "check disk usage on db1")
//	for ev := range events { ... }
//	b.Close()
//
// The session starts lazily on the first query (or an explicit
// EnsureStarted), with a bounded ready-wait. A failed or timed-out start
// leaves the bridge stopped and retryable. Close is idempotent, safe before
// first start, and bounded.
package bridge
