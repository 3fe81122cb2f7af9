package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/creatorops/rotor/internal/service"
)

// respondError maps service errors onto the wire contract: every failure
// is {"success": false, "error": "<message>"} with a status that tells
// callers whether retrying or fixing the request will help.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateAccount),
		errors.Is(err, service.ErrDuplicateJob),
		errors.Is(err, service.ErrAccountInUse),
		errors.Is(err, service.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidAssignment):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.Logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": message})
}
