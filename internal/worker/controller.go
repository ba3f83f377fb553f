package worker

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/workerd/internal/logging"
	"github.com/GriffinCanCode/workerd/internal/sandbox"
)

// controller owns the thread hosting one execution context and mediates
// its lifecycle. The context itself is created, driven, and shut down
// entirely on that thread; the controller's other methods only signal.
type controller struct {
	id     string
	source string
	sbCfg  sandbox.Config
	ch     *channel
	log    *logging.Logger

	quit     chan struct{} // terminate request
	quitOnce sync.Once
	started  chan struct{} // closed once the script has loaded
	done     chan struct{} // closed when the thread exits
}

func newController(id, source string, sbCfg sandbox.Config, ch *channel, log *logging.Logger) *controller {
	return &controller{
		id:      id,
		source:  source,
		sbCfg:   sbCfg,
		ch:      ch,
		log:     log,
		quit:    make(chan struct{}),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *controller) start() {
	go c.run()
}

// terminate schedules shutdown at the next checkpoint. Idempotent.
func (c *controller) terminate() {
	c.quitOnce.Do(func() {
		close(c.quit)
	})
}

// run is the worker thread. The thread is dedicated: the context runs
// in parallel with the main side and with every other worker.
func (c *controller) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(c.done)
	defer c.ch.closeOutbound()

	ctx, err := sandbox.New(c.sbCfg,
		func(data []byte) {
			c.ch.fromWorker <- message{data: data}
		},
		func(rec sandbox.ErrorRecord) {
			c.ch.errs <- rec
		},
	)
	if err != nil {
		c.log.Error("failed to create execution context",
			zap.String("worker", c.id), zap.Error(err))
		c.ch.errs <- sandbox.ErrorRecord{
			Message:  err.Error(),
			Filename: c.sbCfg.ScriptName,
		}
		return
	}

	// onclose fires here exactly once, before the channel closes, so it
	// is the last callback the context executes.
	defer ctx.Shutdown()

	ctx.Load(c.source)
	close(c.started)

	for {
		// Cooperative checkpoint: a pending terminate or an inside
		// close() is honored between messages, never mid-instruction.
		select {
		case <-c.quit:
			return
		default:
		}
		if ctx.CloseRequested() {
			return
		}

		select {
		case <-c.quit:
			return
		case msg := <-c.ch.toWorker:
			ctx.Deliver(msg.data)
		}
	}
}
