package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrTerminated is returned by PostMessage after the worker has been
	// terminated or has closed itself.
	ErrTerminated = errors.New("worker is terminated")

	// ErrManagerClosed is returned by Create after manager shutdown.
	ErrManagerClosed = errors.New("worker manager is closed")

	// ErrTooManyWorkers is returned by Create when the configured worker
	// limit is reached.
	ErrTooManyWorkers = errors.New("worker limit reached")
)

// ScriptLoadError reports a worker creation failure: the script path
// could not be resolved or read. No thread is spawned.
type ScriptLoadError struct {
	Path string
	Err  error
}

func (e *ScriptLoadError) Error() string {
	return fmt.Sprintf("load worker script %s: %v", e.Path, e.Err)
}

func (e *ScriptLoadError) Unwrap() error {
	return e.Err
}
