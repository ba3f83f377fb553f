package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/workerd/internal/codec"
	"github.com/GriffinCanCode/workerd/internal/logging"
	"github.com/GriffinCanCode/workerd/internal/monitoring"
)

// State tracks the main-side view of a worker's lifecycle.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MessageEvent carries a decoded payload delivered to OnMessage.
type MessageEvent struct {
	Data any
}

// ErrorEvent carries an uncaught worker fault delivered to OnError.
type ErrorEvent struct {
	Message  string
	Filename string
	Lineno   int
}

// Handle is the main-side proxy for one worker, bound 1:1 to a
// controller and channel. Callback slots are single-subscriber: each
// setter replaces the previous callback, last writer wins.
type Handle struct {
	ID     string
	Script string

	ctrl    *controller
	ch      *channel
	log     *logging.Logger
	metrics *monitoring.Metrics
	onExit  func()

	mu        sync.RWMutex
	onMessage func(MessageEvent)
	onError   func(ErrorEvent)
	onClose   func()

	closed chan struct{} // closed after the final callback has run
}

// PostMessage encodes a value and enqueues it on the to-worker lane.
// Encoding failures are synchronous and local: the typed error is
// returned here and nothing crosses the channel. Delivery is
// asynchronous; PostMessage returns before the worker processes it.
func (h *Handle) PostMessage(v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}

	// Refuse deterministically once termination has been requested:
	// without this check the send below races the closed quit channel
	// and a post sequenced after Terminate could still be accepted.
	select {
	case <-h.ctrl.quit:
		return ErrTerminated
	case <-h.ctrl.done:
		return ErrTerminated
	default:
	}

	select {
	case <-h.ctrl.quit:
		return ErrTerminated
	case <-h.ctrl.done:
		return ErrTerminated
	case h.ch.toWorker <- message{data: data}:
		if h.metrics != nil {
			h.metrics.RecordMessage("to_worker")
		}
		return nil
	}
}

// Terminate schedules worker shutdown on the next checkpoint. Messages
// already enqueued may still be delivered; no new outbound messages are
// accepted afterward. Terminating twice is a no-op.
func (h *Handle) Terminate() {
	h.ctrl.terminate()
}

// State reports the worker lifecycle state.
func (h *Handle) State() State {
	select {
	case <-h.closed:
		return StateTerminated
	default:
	}
	select {
	case <-h.ctrl.started:
		return StateRunning
	default:
		return StateStarting
	}
}

// Wait blocks until the worker has fully shut down and its final
// callback has run, or the context expires.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetOnMessage assigns the message slot. Last writer wins; passing nil
// clears the slot.
func (h *Handle) SetOnMessage(fn func(MessageEvent)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// SetOnError assigns the error slot. Last writer wins.
func (h *Handle) SetOnError(fn func(ErrorEvent)) {
	h.mu.Lock()
	h.onError = fn
	h.mu.Unlock()
}

// SetOnClose assigns the close slot, fired exactly once after every
// other callback for this worker. Last writer wins.
func (h *Handle) SetOnClose(fn func()) {
	h.mu.Lock()
	h.onClose = fn
	h.mu.Unlock()
}

// dispatch pumps the worker-to-main lanes into the callback slots. A
// single goroutine serializes all main-side callbacks for this handle,
// which makes the close callback strictly last.
func (h *Handle) dispatch() {
	msgs, errs := h.ch.fromWorker, h.ch.errs

	for msgs != nil || errs != nil {
		select {
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			h.deliverMessage(m)
		case rec, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			h.deliverError(ErrorEvent{
				Message:  rec.Message,
				Filename: rec.Filename,
				Lineno:   rec.Lineno,
			})
		}
	}

	h.mu.RLock()
	fn := h.onClose
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}

	close(h.closed)
	if h.onExit != nil {
		h.onExit()
	}
}

func (h *Handle) deliverMessage(m message) {
	value, err := codec.Unmarshal(m.data)
	if err != nil {
		h.log.Error("failed to decode worker message",
			zap.String("worker", h.ID), zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordMessage("from_worker")
	}

	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()
	if fn != nil {
		fn(MessageEvent{Data: value})
	}
}

func (h *Handle) deliverError(ev ErrorEvent) {
	if h.metrics != nil {
		h.metrics.RecordWorkerError()
	}

	h.mu.RLock()
	fn := h.onError
	h.mu.RUnlock()
	if fn != nil {
		fn(ev)
		return
	}

	// No error is silently dropped: with no subscriber, the fault
	// surfaces as a top-level runtime error.
	if h.metrics != nil {
		h.metrics.RecordUnhandledError()
	}
	h.log.Error("unhandled worker error",
		zap.String("worker", h.ID),
		zap.String("script", h.Script),
		zap.String("message", ev.Message),
		zap.String("filename", ev.Filename),
		zap.Int("lineno", ev.Lineno),
	)
}
