package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/workerd/internal/worker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsFrame struct {
	Type     string `json:"type"`
	Data     any    `json:"data,omitempty"`
	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
}

// streamEvents attaches a WebSocket client to a worker's callback
// slots. The socket becomes the single subscriber: connecting replaces
// any previous callbacks, matching last-writer-wins slot semantics.
// Inbound frames of type "post" are forwarded to the worker.
func (s *Server) streamEvents(c *gin.Context) {
	h, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Callbacks fire on the worker's dispatch goroutine while the read
	// loop runs here; writes share one mutex.
	var writeMu sync.Mutex
	send := func(frame wsFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Debug("WebSocket write failed",
				zap.String("worker", h.ID), zap.Error(err))
		}
	}

	closed := make(chan struct{})
	h.SetOnMessage(func(ev worker.MessageEvent) {
		send(wsFrame{Type: "message", Data: ev.Data})
	})
	h.SetOnError(func(ev worker.ErrorEvent) {
		send(wsFrame{
			Type:     "error",
			Message:  ev.Message,
			Filename: ev.Filename,
			Lineno:   ev.Lineno,
		})
	})
	h.SetOnClose(func() {
		send(wsFrame{Type: "close"})
		close(closed)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame wsFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "post":
				if err := h.PostMessage(frame.Data); err != nil {
					send(wsFrame{Type: "error", Message: err.Error()})
				}
			case "ping":
				send(wsFrame{Type: "pong"})
			}
		}
	}()

	select {
	case <-closed:
		// Worker shut down; wait for the client to hang up.
		<-done
	case <-done:
		// Client left; detach so a later subscriber can attach.
		h.SetOnMessage(nil)
		h.SetOnError(nil)
		h.SetOnClose(nil)
	}
}
