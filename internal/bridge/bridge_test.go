// ABOUTME: Tests for the session bridge lifecycle and event relay
// ABOUTME: Covers idempotent start, event ordering, turn failure containment, and shutdown

package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime is a scriptable Runtime double.
type fakeRuntime struct {
	mu         sync.Mutex
	startCalls int
	closeCalls int
	startErr   error
	startDelay time.Duration
	turn       func(text string, emit func(*Event)) error
}

func (f *fakeRuntime) Start(ctx context.Context) error {
	f.mu.Lock()
	f.startCalls++
	delay, err := f.startDelay, f.startErr
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *fakeRuntime) RunTurn(ctx context.Context, text string, emit func(*Event)) error {
	f.mu.Lock()
	turn := f.turn
	f.mu.Unlock()
	if turn == nil {
		emit(&Event{Kind: KindContent, Text: "echo: " + text})
		return nil
	}
	return turn(text, emit)
}

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeRuntime) counts() (starts, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.closeCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect drains an event stream to completion, failing the test if the
// stream does not terminate promptly.
func collect(t *testing.T, events <-chan *Event) []*Event {
	t.Helper()
	var got []*Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("event stream did not terminate; got %d events", len(got))
		}
	}
}

func TestQuery_EventOrderAndSentinel(t *testing.T) {
	rt := &fakeRuntime{
		turn: func(text string, emit func(*Event)) error {
			emit(&Event{Kind: KindToolUse, ToolName: "ssh_list", InputJSON: "{}"})
			emit(&Event{Kind: KindContent, Text: "one host: "})
			emit(&Event{Kind: KindContent, Text: "db1"})
			return nil
		},
	}
	b := New(rt, time.Second, testLogger())
	defer b.Close()

	events, err := b.Query(context.Background(), "list servers")
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 4)
	assert.Equal(t, KindToolUse, got[0].Kind)
	assert.Equal(t, "ssh_list", got[0].ToolName)
	assert.Equal(t, KindContent, got[1].Kind)
	assert.Equal(t, KindContent, got[2].Kind)
	assert.Equal(t, KindDone, got[3].Kind)

	// Exactly one terminal event, at the end
	for i, ev := range got {
		if i < len(got)-1 {
			assert.False(t, ev.Terminal(), "event %d should not be terminal", i)
		}
	}
}

func TestEnsureStarted_IdempotentAcrossQueries(t *testing.T) {
	rt := &fakeRuntime{}
	b := New(rt, time.Second, testLogger())
	defer b.Close()

	for i := 0; i < 5; i++ {
		events, err := b.Query(context.Background(), "hello")
		require.NoError(t, err)
		collect(t, events)
	}

	starts, _ := rt.counts()
	assert.Equal(t, 1, starts, "session should start exactly once across serial queries")
}

func TestQuery_TurnErrorBecomesEventAndWorkerSurvives(t *testing.T) {
	fail := true
	rt := &fakeRuntime{
		turn: func(text string, emit func(*Event)) error {
			if fail {
				emit(&Event{Kind: KindContent, Text: "partial"})
				return errors.New("model unavailable")
			}
			emit(&Event{Kind: KindContent, Text: "recovered"})
			return nil
		},
	}
	b := New(rt, time.Second, testLogger())
	defer b.Close()

	events, err := b.Query(context.Background(), "first")
	require.NoError(t, err)
	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, KindContent, got[0].Kind)
	assert.Equal(t, KindError, got[1].Kind)
	assert.Contains(t, got[1].Err, "model unavailable")

	// The worker must remain usable for the next query
	fail = false
	events, err = b.Query(context.Background(), "second")
	require.NoError(t, err)
	got = collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, "recovered", got[0].Text)
	assert.Equal(t, KindDone, got[1].Kind)

	starts, _ := rt.counts()
	assert.Equal(t, 1, starts, "turn failure must not restart the session")
}

func TestQuery_TurnPanicBecomesErrorEvent(t *testing.T) {
	rt := &fakeRuntime{
		turn: func(text string, emit func(*Event)) error {
			panic("boom")
		},
	}
	b := New(rt, time.Second, testLogger())
	defer b.Close()

	events, err := b.Query(context.Background(), "explode")
	require.NoError(t, err)
	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, KindError, got[0].Kind)
	assert.Contains(t, got[0].Err, "boom")

	// Worker survives the panic; let the next turn run normally
	rt.mu.Lock()
	rt.turn = nil
	rt.mu.Unlock()

	events, err = b.Query(context.Background(), "still alive?")
	require.NoError(t, err)
	got = collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, KindContent, got[0].Kind)
	assert.Equal(t, KindDone, got[1].Kind)
}

func TestEnsureStarted_Timeout(t *testing.T) {
	rt := &fakeRuntime{startDelay: 500 * time.Millisecond}
	b := New(rt, 20*time.Millisecond, testLogger())

	events, err := b.Query(context.Background(), "hello")
	require.ErrorIs(t, err, ErrStartTimeout)
	assert.Nil(t, events, "no event stream on start failure")
}

func TestEnsureStarted_ErrorIsRetryable(t *testing.T) {
	rt := &fakeRuntime{startErr: errors.New("no api key")}
	b := New(rt, time.Second, testLogger())
	defer b.Close()

	err := b.EnsureStarted(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")

	// Clear the failure; a later call starts fresh
	rt.mu.Lock()
	rt.startErr = nil
	rt.mu.Unlock()

	require.NoError(t, b.EnsureStarted(context.Background()))
	starts, _ := rt.counts()
	assert.Equal(t, 2, starts)
}

func TestEnsureStarted_RetryAfterTimeout(t *testing.T) {
	rt := &fakeRuntime{startDelay: 100 * time.Millisecond}
	b := New(rt, 10*time.Millisecond, testLogger())
	defer b.Close()

	require.ErrorIs(t, b.EnsureStarted(context.Background()), ErrStartTimeout)

	// The abandoned worker is still inside Start; at most one worker may back
	// the session, so an immediate retry is refused.
	err := b.EnsureStarted(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still shutting down")

	// Once the old worker has torn down, a retry starts fresh.
	rt.mu.Lock()
	rt.startDelay = 0
	rt.mu.Unlock()
	require.Eventually(t, func() bool {
		return b.EnsureStarted(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)

	events, err := b.Query(context.Background(), "hello")
	require.NoError(t, err)
	got := collect(t, events)
	assert.Equal(t, KindDone, got[len(got)-1].Kind)
}

func TestClose_BeforeStart(t *testing.T) {
	b := New(&fakeRuntime{}, time.Second, testLogger())

	done := make(chan error, 1)
	go func() { done <- b.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return within its bound")
	}
}

func TestClose_TwiceIsNoOp(t *testing.T) {
	rt := &fakeRuntime{}
	b := New(rt, time.Second, testLogger())

	require.NoError(t, b.EnsureStarted(context.Background()))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, closes := rt.counts()
	assert.Equal(t, 1, closes, "runtime should be closed exactly once")
}

func TestQuery_AfterClose(t *testing.T) {
	b := New(&fakeRuntime{}, time.Second, testLogger())
	require.NoError(t, b.EnsureStarted(context.Background()))
	require.NoError(t, b.Close())

	_, err := b.Query(context.Background(), "hello")
	require.ErrorIs(t, err, ErrClosed)
}

func TestQuery_SerializedTurns(t *testing.T) {
	var inTurn, maxInTurn int
	var mu sync.Mutex

	rt := &fakeRuntime{
		turn: func(text string, emit func(*Event)) error {
			mu.Lock()
			inTurn++
			if inTurn > maxInTurn {
				maxInTurn = inTurn
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inTurn--
			mu.Unlock()
			return nil
		},
	}
	b := New(rt, time.Second, testLogger())
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := b.Query(context.Background(), "work")
			if err != nil {
				t.Error(err)
				return
			}
			for range events {
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInTurn, "turns must never overlap")
}
