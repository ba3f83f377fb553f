package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/workerd/internal/codec"
	"github.com/GriffinCanCode/workerd/internal/logging"
)

const echoScript = `onmessage = function(m) { postMessage(m.data); };`

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	opts := DefaultOptions()
	opts.ScriptRoot = t.TempDir()
	m := NewManager(opts, logging.NewNop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func writeScript(t *testing.T, m *Manager, name, source string) {
	t.Helper()
	path := filepath.Join(m.opts.ScriptRoot, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func TestEchoWorker(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	events := make(chan MessageEvent, 1)
	h.SetOnMessage(func(ev MessageEvent) { events <- ev })

	require.NoError(t, h.PostMessage(map[string]any{"x": 1}))

	ev := recv(t, events)
	assert.Equal(t, map[string]any{"x": float64(1)}, ev.Data)
}

func TestMessageOrdering(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	const n = 50
	events := make(chan MessageEvent, n)
	h.SetOnMessage(func(ev MessageEvent) { events <- ev })

	for i := 0; i < n; i++ {
		require.NoError(t, h.PostMessage(float64(i)))
	}

	for i := 0; i < n; i++ {
		ev := recv(t, events)
		assert.Equal(t, float64(i), ev.Data, "message %d out of order", i)
	}
}

func TestPostMessageNonSerializable(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	events := make(chan MessageEvent, 1)
	h.SetOnMessage(func(ev MessageEvent) { events <- ev })

	// The failure is synchronous and local; nothing reaches the worker.
	err = h.PostMessage(func() {})
	require.Error(t, err)
	var nsErr *codec.NotSerializableError
	assert.ErrorAs(t, err, &nsErr)

	require.NoError(t, h.PostMessage("after"))
	ev := recv(t, events)
	assert.Equal(t, "after", ev.Data, "rejected value must not be delivered")
}

func TestTerminateIdempotent(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	var closes atomic.Int32
	h.SetOnClose(func() { closes.Add(1) })

	h.Terminate()
	h.Terminate() // second call is a no-op

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	assert.Equal(t, int32(1), closes.Load(), "onclose must fire exactly once")
	assert.Equal(t, StateTerminated, h.State())
	assert.ErrorIs(t, h.PostMessage("late"), ErrTerminated)
}

func TestPostRefusedImmediatelyAfterTerminate(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	// Terminate and post back to back, without waiting for shutdown to
	// finish: the refusal must be deterministic, not a race between the
	// quit signal and a ready buffered send.
	for i := 0; i < 100; i++ {
		h, err := m.Create("echo.js")
		require.NoError(t, err)

		h.Terminate()
		assert.ErrorIs(t, h.PostMessage("late"), ErrTerminated, "iteration %d", i)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, h.Wait(ctx))
		cancel()
	}
}

func TestCloseFromInside(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "closer.js", `
		onmessage = function() { close(); };
		onclose = function() {};
	`)

	h, err := m.Create("closer.js")
	require.NoError(t, err)

	var closes atomic.Int32
	h.SetOnClose(func() { closes.Add(1) })

	require.NoError(t, h.PostMessage("shutdown"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	assert.Equal(t, int32(1), closes.Load())
	assert.Equal(t, StateTerminated, h.State())
}

func TestCloseCallbackIsLast(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	type tagged struct{ kind string }
	events := make(chan tagged, 32)
	h.SetOnMessage(func(MessageEvent) { events <- tagged{"message"} })
	h.SetOnError(func(ErrorEvent) { events <- tagged{"error"} })
	h.SetOnClose(func() { events <- tagged{"close"} })

	for i := 0; i < 5; i++ {
		require.NoError(t, h.PostMessage(float64(i)))
	}

	// Collect the five echoes before terminating so none race the close.
	var seen []tagged
	for len(seen) < 5 {
		seen = append(seen, recv(t, events))
	}

	h.Terminate()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	last := recv(t, events)
	assert.Equal(t, "close", last.kind, "close must be the final callback")
	select {
	case extra := <-events:
		t.Fatalf("callback after close: %v", extra)
	default:
	}
}

func TestUncaughtErrorPropagation(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "thrower.js", `
		onmessage = function(m) {
			if (m.data === "boom") throw new Error("boom");
			postMessage(m.data);
		};
	`)

	h, err := m.Create("thrower.js")
	require.NoError(t, err)

	messages := make(chan MessageEvent, 1)
	faults := make(chan ErrorEvent, 1)
	h.SetOnMessage(func(ev MessageEvent) { messages <- ev })
	h.SetOnError(func(ev ErrorEvent) { faults <- ev })

	require.NoError(t, h.PostMessage("boom"))

	ev := recv(t, faults)
	assert.Contains(t, ev.Message, "boom")
	assert.NotEmpty(t, ev.Filename)
	assert.Greater(t, ev.Lineno, 0)

	// Uncaught errors are not fatal: the worker still processes messages.
	require.NoError(t, h.PostMessage("after"))
	got := recv(t, messages)
	assert.Equal(t, "after", got.Data)
	assert.Equal(t, StateRunning, h.State())
}

func TestErrorSuppressedInsideContext(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "suppress.js", `
		onerror = function(e) { return true; };
		onmessage = function(m) {
			if (m.data === "boom") throw new Error("boom");
			postMessage(m.data);
		};
	`)

	h, err := m.Create("suppress.js")
	require.NoError(t, err)

	messages := make(chan MessageEvent, 1)
	faults := make(chan ErrorEvent, 1)
	h.SetOnMessage(func(ev MessageEvent) { messages <- ev })
	h.SetOnError(func(ev ErrorEvent) { faults <- ev })

	require.NoError(t, h.PostMessage("boom"))
	require.NoError(t, h.PostMessage("after"))

	got := recv(t, messages)
	assert.Equal(t, "after", got.Data)

	select {
	case ev := <-faults:
		t.Fatalf("suppressed error crossed the channel: %v", ev)
	default:
	}
}

func TestScriptLoadError(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Create("missing.js")
	require.Error(t, err)
	assert.Nil(t, h)

	var loadErr *ScriptLoadError
	assert.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "missing.js", loadErr.Path)
	assert.Empty(t, m.List(), "no worker may be spawned on load failure")
}

func TestNestedCreationSpawnsNothing(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "nester.js", `
		onmessage = function() {
			try {
				new Worker("child.js");
				postMessage("created");
			} catch (e) {
				postMessage("refused");
			}
		};
	`)

	h, err := m.Create("nester.js")
	require.NoError(t, err)

	messages := make(chan MessageEvent, 1)
	h.SetOnMessage(func(ev MessageEvent) { messages <- ev })

	require.NoError(t, h.PostMessage("go"))
	got := recv(t, messages)
	assert.Equal(t, "refused", got.Data)
	assert.Len(t, m.List(), 1, "nested creation must spawn zero workers")
}

func TestCallbackSlotLastWriterWins(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	first := make(chan MessageEvent, 1)
	second := make(chan MessageEvent, 1)
	h.SetOnMessage(func(ev MessageEvent) { first <- ev })
	h.SetOnMessage(func(ev MessageEvent) { second <- ev })

	require.NoError(t, h.PostMessage("hello"))

	got := recv(t, second)
	assert.Equal(t, "hello", got.Data)
	select {
	case ev := <-first:
		t.Fatalf("replaced callback still fired: %v", ev)
	default:
	}
}

func TestWorkerLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.ScriptRoot = t.TempDir()
	opts.MaxWorkers = 1
	m := NewManager(opts, logging.NewNop(), nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(opts.ScriptRoot, "echo.js"), []byte(echoScript), 0o644))

	_, err := m.Create("echo.js")
	require.NoError(t, err)

	_, err = m.Create("echo.js")
	assert.ErrorIs(t, err, ErrTooManyWorkers)
}

func TestManagerShutdown(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	for i := 0; i < 3; i++ {
		_, err := m.Create("echo.js")
		require.NoError(t, err)
	}
	assert.Len(t, m.List(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Eventually(t, func() bool { return len(m.List()) == 0 },
		time.Second, 10*time.Millisecond)

	_, err := m.Create("echo.js")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestManagerGetAndTerminate(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	got, ok := m.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, h, got)

	assert.True(t, m.Terminate(h.ID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	assert.Eventually(t, func() bool {
		_, ok := m.Get(h.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)

	assert.False(t, m.Terminate(h.ID), "terminating a gone worker is a no-op")
}

func TestStateTransitions(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	h, err := m.Create("echo.js")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.State() == StateRunning },
		time.Second, 5*time.Millisecond)

	h.Terminate()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	assert.Equal(t, StateTerminated, h.State())
}

func TestWorkersRunInParallel(t *testing.T) {
	m := newTestManager(t)
	writeScript(t, m, "echo.js", echoScript)

	const n = 4
	events := make(chan string, n)
	for i := 0; i < n; i++ {
		h, err := m.Create("echo.js")
		require.NoError(t, err)
		h.SetOnMessage(func(ev MessageEvent) { events <- ev.Data.(string) })
		require.NoError(t, h.PostMessage(h.ID))
	}

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		seen[recv(t, events)] = true
	}
	assert.Len(t, seen, n, "every worker must answer independently")
}

func TestScriptLoadErrorUnwraps(t *testing.T) {
	err := &ScriptLoadError{Path: "x.js", Err: os.ErrNotExist}
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "x.js")
}
