package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/creatorops/rotor/internal/models"
	"github.com/creatorops/rotor/internal/service"
)

type rotationView struct {
	AssignedFormat  string     `json:"assignedFormat"`
	DailyLimit      int        `json:"dailyLimit"`
	CooldownMinutes int        `json:"cooldownMinutes"`
	UploadsToday    int        `json:"uploadsToday"`
	RemainingToday  int        `json:"remainingToday"`
	LastPublishedAt *time.Time `json:"lastPublishedAt"`
}

type healthView struct {
	Score              float64 `json:"score"`
	Phase              string  `json:"phase"`
	DaysActive         int     `json:"daysActive"`
	ShadowBanSuspected bool    `json:"shadowBanSuspected"`
}

type accountOverview struct {
	ID          uint          `json:"id"`
	Platform    string        `json:"platform"`
	Handle      string        `json:"handle"`
	DisplayName string        `json:"displayName"`
	Status      string        `json:"status"`
	Rotation    *rotationView `json:"rotation"`
	Health      *healthView   `json:"health"`
}

// handleAccountsOverview joins each account with its rotation counters
// and health verdict, the row the dashboard renders per account.
func (s *Server) handleAccountsOverview(c *gin.Context) {
	filter := service.AccountFilter{
		Platform: c.Query("platform"),
		Status:   models.AccountStatus(c.Query("status")),
	}
	accounts, err := s.Registry.List(filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	now := time.Now()
	overview := make([]accountOverview, 0, len(accounts))
	for i := range accounts {
		account := &accounts[i]
		row := accountOverview{
			ID:          account.ID,
			Platform:    account.Platform,
			Handle:      account.Handle,
			DisplayName: account.DisplayName,
			Status:      string(account.Status),
		}
		if a := account.Assignment; a != nil {
			row.Rotation = &rotationView{
				AssignedFormat:  a.AssignedFormat,
				DailyLimit:      a.DailyLimit,
				CooldownMinutes: a.CooldownMinutes,
				UploadsToday:    s.Rotation.UploadsToday(account, now),
				RemainingToday:  s.Rotation.RemainingQuota(account, now),
				LastPublishedAt: a.LastPublishedAt,
			}
		}
		if h := account.Health; h != nil {
			row.Health = &healthView{
				Score:              h.Score,
				Phase:              string(h.Phase),
				DaysActive:         h.DaysActive,
				ShadowBanSuspected: h.ShadowBanSuspected,
			}
		}
		overview = append(overview, row)
	}

	c.JSON(http.StatusOK, gin.H{"accounts": overview})
}

func (s *Server) handleAccountCreate(c *gin.Context) {
	var req accountCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}

	account := &models.Account{
		Platform:      req.Platform,
		Handle:        req.Handle,
		DisplayName:   req.DisplayName,
		CredentialRef: req.CredentialRef,
	}
	if err := s.Registry.Add(account); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "account": account})
}

func (s *Server) handleAccountDelete(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	if err := s.Registry.Remove(id); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAccountStatus(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	var req accountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.Registry.SetStatus(id, models.AccountStatus(req.Status)); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": req.Status})
}

// handleRotationAssign sets or replaces an account's rotation assignment:
// format, daily limit, and cooldown in one shot.
func (s *Server) handleRotationAssign(c *gin.Context) {
	var req rotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}

	assignment, err := s.Rotation.Assign(req.AccountID, req.Format, req.DailyLimit, req.CooldownMinutes)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "assignment": assignment})
}

func (s *Server) pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		s.respondBadRequest(c, "invalid account id")
		return 0, false
	}
	return uint(id), true
}
