package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/creatorops/rotor/internal/service"
)

func (s *Server) handleUploadsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	jobs, err := s.Analytics.ListUploads(service.UploadFilter{
		Status:   c.Query("status"),
		Platform: c.Query("platform"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"uploads": jobs, "count": len(jobs)})
}

func (s *Server) handleUploadCreate(c *gin.Context) {
	var req uploadCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}

	job, err := s.Intake.EnqueueManual(service.CatalogItem{
		SourceRef: req.SourceRef,
		Title:     req.Title,
		Category:  req.Category,
		Platforms: req.Platforms,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "upload": job})
}
