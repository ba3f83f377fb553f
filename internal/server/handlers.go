package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/workerd/internal/codec"
	"github.com/GriffinCanCode/workerd/internal/worker"
)

type createWorkerRequest struct {
	Script string `json:"script" binding:"required"`
}

type postMessageRequest struct {
	Data any `json:"data"`
}

type workerInfo struct {
	ID     string `json:"id"`
	Script string `json:"script"`
	State  string `json:"state"`
}

func describe(h *worker.Handle) workerInfo {
	return workerInfo{
		ID:     h.ID,
		Script: h.Script,
		State:  h.State().String(),
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "workerd",
		"workers": len(s.manager.List()),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"workers": len(s.manager.List()),
	})
}

func (s *Server) createWorker(c *gin.Context) {
	var req createWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script is required"})
		return
	}

	script := s.manifest.Resolve(req.Script)
	h, err := s.manager.Create(script)
	if err != nil {
		var loadErr *worker.ScriptLoadError
		switch {
		case errors.As(err, &loadErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, worker.ErrTooManyWorkers):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, worker.ErrManagerClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, describe(h))
}

func (s *Server) listWorkers(c *gin.Context) {
	handles := s.manager.List()
	infos := make([]workerInfo, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, describe(h))
	}
	c.JSON(http.StatusOK, gin.H{"workers": infos})
}

func (s *Server) getWorker(c *gin.Context) {
	h, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}
	c.JSON(http.StatusOK, describe(h))
}

func (s *Server) postMessage(c *gin.Context) {
	h, ok := s.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body"})
		return
	}

	if err := h.PostMessage(req.Data); err != nil {
		var nsErr *codec.NotSerializableError
		switch {
		case errors.As(err, &nsErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, worker.ErrTerminated):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) terminateWorker(c *gin.Context) {
	// Idempotent like Handle.Terminate: a second delete is a no-op.
	s.manager.Terminate(c.Param("id"))
	c.Status(http.StatusNoContent)
}
