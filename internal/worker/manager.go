package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/workerd/internal/logging"
	"github.com/GriffinCanCode/workerd/internal/monitoring"
	"github.com/GriffinCanCode/workerd/internal/sandbox"
)

// Options configures worker creation.
type Options struct {
	ScriptRoot       string // Base directory for relative script paths
	QueueSize        int    // Per-lane channel buffer
	MaxWorkers       int    // Upper bound on live workers, 0 = unlimited
	MaxCallStackSize int    // Per-context call stack limit
}

// DefaultOptions returns production-ready worker options.
func DefaultOptions() Options {
	return Options{
		ScriptRoot:       "scripts",
		QueueSize:        64,
		MaxWorkers:       128,
		MaxCallStackSize: 1024,
	}
}

// Manager orchestrates worker lifecycle: creation, lookup, termination.
type Manager struct {
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics

	workers sync.Map // id -> *Handle
	active  atomic.Int64
	closed  atomic.Bool
}

// NewManager creates a worker manager. Metrics may be nil.
func NewManager(opts Options, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		opts:    opts,
		log:     log,
		metrics: metrics,
	}
}

// Create spawns a new worker running the script at scriptPath. Relative
// paths resolve against ScriptRoot. An unresolvable path fails with
// *ScriptLoadError before any thread is spawned.
func (m *Manager) Create(scriptPath string) (*Handle, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	resolved := scriptPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(m.opts.ScriptRoot, resolved)
	}

	source, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &ScriptLoadError{Path: scriptPath, Err: err}
	}

	if m.opts.MaxWorkers > 0 && m.active.Load() >= int64(m.opts.MaxWorkers) {
		return nil, ErrTooManyWorkers
	}

	id := uuid.New().String()
	ch := newChannel(m.opts.QueueSize)
	ctrl := newController(id, string(source), sandbox.Config{
		ScriptName:       filepath.Base(resolved),
		MaxCallStackSize: m.opts.MaxCallStackSize,
		Logger:           m.log.Named("console").With(zap.String("worker", id)),
	}, ch, m.log)

	h := &Handle{
		ID:      id,
		Script:  resolved,
		ctrl:    ctrl,
		ch:      ch,
		log:     m.log,
		metrics: m.metrics,
		closed:  make(chan struct{}),
	}
	h.onExit = func() {
		m.workers.Delete(id)
		m.active.Add(-1)
		if m.metrics != nil {
			m.metrics.RecordWorkerStop()
		}
	}

	m.workers.Store(id, h)
	m.active.Add(1)
	if m.metrics != nil {
		m.metrics.RecordWorkerStart()
	}

	ctrl.start()
	go h.dispatch()

	m.log.Info("worker created",
		zap.String("worker", id), zap.String("script", resolved))
	return h, nil
}

// Get retrieves a live worker by ID.
func (m *Manager) Get(id string) (*Handle, bool) {
	val, ok := m.workers.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Handle), true
}

// List returns all live workers.
func (m *Manager) List() []*Handle {
	var handles []*Handle
	m.workers.Range(func(_, value any) bool {
		handles = append(handles, value.(*Handle))
		return true
	})
	return handles
}

// Terminate schedules shutdown for the worker with the given ID.
// Unknown IDs are a no-op, matching terminate idempotency.
func (m *Manager) Terminate(id string) bool {
	h, ok := m.Get(id)
	if !ok {
		return false
	}
	h.Terminate()
	return true
}

// Shutdown terminates every worker and waits for them to exit or the
// context to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed.Store(true)

	handles := m.List()
	for _, h := range handles {
		h.Terminate()
	}
	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
