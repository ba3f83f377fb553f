package sandbox

import (
	"errors"

	"github.com/GriffinCanCode/workerd/internal/logging"
)

// State tracks the context lifecycle.
type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrorRecord describes an uncaught fault inside a context.
type ErrorRecord struct {
	Message  string
	Filename string
	Lineno   int
}

// Config defines context configuration.
type Config struct {
	ScriptName       string          // Filename reported in error records
	MaxCallStackSize int             // goja call stack depth limit
	Logger           *logging.Logger // Sink for console output
}

// DefaultConfig returns a context configuration with safe limits.
func DefaultConfig() Config {
	return Config{
		ScriptName:       "worker.js",
		MaxCallStackSize: 1024,
		Logger:           logging.NewNop(),
	}
}

var (
	// ErrNestedCreation is thrown when a worker script constructs a Worker.
	// Contexts form a flat hierarchy; nesting never spawns anything.
	ErrNestedCreation = errors.New("nested worker creation is not permitted")

	// ErrAccessViolation is thrown when a worker script touches a UI
	// object. Always a typed error, on every platform.
	ErrAccessViolation = errors.New("cross-thread access to UI objects is not permitted")
)
