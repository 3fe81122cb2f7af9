package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealthOverview(c *gin.Context) {
	snapshots, err := s.Health.Snapshot(time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": snapshots})
}

func (s *Server) handleCalendar(c *gin.Context) {
	now := time.Now()
	year, err := intQuery(c, "year", now.Year())
	if err != nil {
		s.respondBadRequest(c, "invalid year")
		return
	}
	month, err := intQuery(c, "month", int(now.Month()))
	if err != nil {
		s.respondBadRequest(c, "invalid month")
		return
	}

	view, err := s.Analytics.Calendar(year, month)
	if err != nil {
		s.respondBadRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) handleAnalyticsSummary(c *gin.Context) {
	summary, err := s.Analytics.Summary(time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}

	snapshots, err := s.Analytics.ListSnapshots(30)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary, "snapshots": snapshots})
}

func (s *Server) handleOpsLog(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := s.Ops.GetRecent(limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
