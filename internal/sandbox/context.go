package sandbox

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/workerd/internal/codec"
	"github.com/GriffinCanCode/workerd/internal/logging"
)

// Context is a sandboxed interpreter instance with its own global scope.
// All methods must be called from the single goroutine that owns the
// context; cross-context communication happens only through the emit
// and report sinks, which carry codec-encoded copies.
type Context struct {
	vm     *goja.Runtime
	name   string
	state  State
	log    *logging.Logger
	emit   func(data []byte)    // outbound data lane
	report func(rec ErrorRecord) // outbound error lane
}

// New creates a fresh context. The emit sink receives codec-encoded
// payloads from postMessage; the report sink receives error records
// that survived local handling.
func New(cfg Config, emit func([]byte), report func(ErrorRecord)) (*Context, error) {
	vm := goja.New()
	if cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}

	c := &Context{
		vm:     vm,
		name:   cfg.ScriptName,
		state:  StateInitializing,
		log:    log,
		emit:   emit,
		report: report,
	}

	if err := c.setupGlobals(); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	return c.state
}

// CloseRequested reports whether the script asked to shut down.
func (c *Context) CloseRequested() bool {
	return c.state == StateClosing || c.state == StateClosed
}

// Load evaluates the worker script in the context's global scope. An
// uncaught throw during evaluation is reported like any other runtime
// fault; it does not prevent the context from running.
func (c *Context) Load(src string) {
	if _, err := c.vm.RunScript(c.name, src); err != nil {
		c.reportUncaught(err)
	}
	if c.state == StateInitializing {
		c.state = StateRunning
	}
}

// Deliver decodes an inbound payload and invokes the script's onmessage
// slot with {data: value}. Faults thrown by the handler are routed
// through the error protocol; the context stays Running.
func (c *Context) Deliver(data []byte) {
	if c.CloseRequested() {
		return
	}

	value, err := codec.Unmarshal(data)
	if err != nil {
		c.reportUncaught(err)
		return
	}

	fn := c.callback("onmessage")
	if fn == nil {
		return
	}

	event := c.vm.NewObject()
	event.Set("data", c.vm.ToValue(value))
	if _, err := fn(goja.Undefined(), event); err != nil {
		c.reportUncaught(err)
	}
}

// Shutdown transitions the context to Closed, firing onclose exactly
// once. onclose is the last callback the context ever executes; a fault
// inside it is logged, never forwarded.
func (c *Context) Shutdown() {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosing

	if fn := c.callback("onclose"); fn != nil {
		if _, err := fn(goja.Undefined()); err != nil {
			c.log.Warn("onclose handler failed", zap.String("script", c.name), zap.Error(err))
		}
	}
	c.state = StateClosed
}

// setupGlobals configures the worker global scope.
func (c *Context) setupGlobals() error {
	vm := c.vm

	// Remove Node-style escape hatches
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	vm.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		if c.CloseRequested() {
			return goja.Undefined()
		}
		var value any
		if len(call.Arguments) > 0 {
			value = call.Arguments[0].Export()
		}
		data, err := codec.Marshal(value)
		if err != nil {
			// Serialization failures are synchronous and local: the
			// script sees a throw, nothing crosses the channel.
			panic(vm.NewGoError(err))
		}
		c.emit(data)
		return goja.Undefined()
	})

	vm.Set("close", func(call goja.FunctionCall) goja.Value {
		if c.state != StateClosed {
			c.state = StateClosing
		}
		return goja.Undefined()
	})

	// Flat hierarchy: constructing a Worker inside a worker always
	// throws and spawns nothing.
	vm.Set("Worker", func(call goja.ConstructorCall) *goja.Object {
		panic(vm.NewGoError(ErrNestedCreation))
	})

	// Timers are no-ops: a context has no event loop
	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return goja.Undefined()
	})

	c.setupConsole()
	return c.setupUITraps()
}

// setupConsole bridges console output to the structured logger.
func (c *Context) setupConsole() {
	console := c.vm.NewObject()
	console.Set("log", c.makeConsoleFunc(func(msg string) { c.log.Info(msg) }))
	console.Set("info", c.makeConsoleFunc(func(msg string) { c.log.Info(msg) }))
	console.Set("warn", c.makeConsoleFunc(func(msg string) { c.log.Warn(msg) }))
	console.Set("error", c.makeConsoleFunc(func(msg string) { c.log.Error(msg) }))
	c.vm.Set("console", console)
}

func (c *Context) makeConsoleFunc(sink func(string)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		sink(strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// setupUITraps installs throwing accessors for UI globals so that
// cross-thread UI access fails deterministically everywhere.
func (c *Context) setupUITraps() error {
	global := c.vm.GlobalObject()
	trap := c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		panic(c.vm.NewGoError(ErrAccessViolation))
	})

	for _, name := range []string{"document", "window"} {
		if err := global.DefineAccessorProperty(name, trap, nil, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return err
		}
	}
	return nil
}

// callback resolves a single-slot global callback. Assignment wins:
// whatever function the slot holds right now is the subscriber.
func (c *Context) callback(name string) goja.Callable {
	fn, ok := goja.AssertFunction(c.vm.Get(name))
	if !ok {
		return nil
	}
	return fn
}

// reportUncaught runs the local error protocol for an uncaught fault:
// the context's own onerror gets first refusal, and a truthy return
// suppresses forwarding. Otherwise the record goes out the error lane.
func (c *Context) reportUncaught(err error) {
	rec := newErrorRecord(err, c.name)

	if fn := c.callback("onerror"); fn != nil {
		event := c.vm.NewObject()
		event.Set("message", rec.Message)
		event.Set("filename", rec.Filename)
		event.Set("lineno", rec.Lineno)

		res, cbErr := fn(goja.Undefined(), event)
		if cbErr == nil && res != nil && res.ToBoolean() {
			return // suppressed locally
		}
		if cbErr != nil {
			c.log.Warn("onerror handler failed",
				zap.String("script", c.name), zap.Error(cbErr))
		}
	}

	c.report(rec)
}

// locPattern matches source positions in goja error output, e.g.
// "Error: boom at worker.js:3:9(4)".
var locPattern = regexp.MustCompile(`([^\s()]+):(\d+):\d+`)

func newErrorRecord(err error, fallback string) ErrorRecord {
	full := err.Error()
	message, _, _ := strings.Cut(full, "\n")

	rec := ErrorRecord{Message: strings.TrimSpace(message), Filename: fallback}
	if m := locPattern.FindStringSubmatch(full); m != nil {
		rec.Filename = m[1]
		if line, err := strconv.Atoi(m[2]); err == nil {
			rec.Lineno = line
		}
	}
	return rec
}
