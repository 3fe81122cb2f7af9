package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/creatorops/rotor/internal/service"
)

func (s *Server) handleAutopilotStatus(c *gin.Context) {
	view, err := s.Autopilot.Status()
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) handleAutopilotStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}

	err := s.Autopilot.Start(service.StartRequest{
		IntervalMinutes: req.IntervalMinutes,
		Categories:      req.Categories,
		Targets:         req.Targets,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": "running"})
}

func (s *Server) handleAutopilotPause(c *gin.Context) {
	if err := s.Autopilot.Pause(); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": "paused"})
}

func (s *Server) handleAutopilotResume(c *gin.Context) {
	if err := s.Autopilot.Resume(); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": "running"})
}

func (s *Server) handleAutopilotStop(c *gin.Context) {
	if err := s.Autopilot.Stop(); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": "stopped"})
}

// handleAutopilotEvents streams engine state changes and job transitions
// over SSE until the client goes away.
func (s *Server) handleAutopilotEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch := s.Bus.Subscribe()
	defer s.Bus.Unsubscribe(ch)

	// Initial comment to keep connection open
	c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(evt)
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
