package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleLogin(c *gin.Context) {
	if !s.Auth.Enabled() {
		s.respondBadRequest(c, "authentication is not configured")
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}

	token, expiresAt, err := s.Auth.Login(req.Code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.SetCookie("auth_token", token, int(time.Until(expiresAt).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "expiresAt": expiresAt})
}

func (s *Server) handleLogout(c *gin.Context) {
	token := bearerTokenFromRequest(c)
	if token == "" {
		token, _ = c.Cookie("auth_token")
	}
	if token != "" {
		s.Auth.Logout(token)
	}
	c.SetCookie("auth_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func bearerTokenFromRequest(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
