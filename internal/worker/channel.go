package worker

import (
	"sync"

	"github.com/GriffinCanCode/workerd/internal/sandbox"
)

// message is one codec-encoded payload in flight.
type message struct {
	data []byte
}

// channel connects a controller (worker side) with its handle (main
// side). Each direction is a FIFO lane; error records travel on a lane
// of their own and surface through onerror, never onmessage.
type channel struct {
	toWorker   chan message
	fromWorker chan message
	errs       chan sandbox.ErrorRecord

	once sync.Once
}

func newChannel(buffer int) *channel {
	if buffer <= 0 {
		buffer = 64
	}
	return &channel{
		toWorker:   make(chan message, buffer),
		fromWorker: make(chan message, buffer),
		errs:       make(chan sandbox.ErrorRecord, buffer),
	}
}

// closeOutbound closes the worker-to-main lanes. The sync.Once holds
// the invariant that a worker's channel is closed exactly once.
func (c *channel) closeOutbound() {
	c.once.Do(func() {
		close(c.fromWorker)
		close(c.errs)
	})
}
