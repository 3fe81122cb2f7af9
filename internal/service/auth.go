package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// AuthService gates the API behind TOTP when a secret is configured.
// A valid code buys a bearer session token; with no secret configured
// the middleware passes everything through.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string
	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewAuthService(logger *zap.Logger, totpSecret string, sessionTTL time.Duration) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &AuthService{
		logger:     logger,
		totpSecret: totpSecret,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]time.Time),
	}
}

func (a *AuthService) Enabled() bool {
	return a.totpSecret != ""
}

func (a *AuthService) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Rotor Dashboard",
		AccountName: "admin",
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return key.Secret(), nil
}

func (a *AuthService) GenerateQRCode(issuer, accountName, secret string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Secret:      []byte(secret),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return key.URL(), nil
}

func (a *AuthService) ValidateToken(token string) bool {
	valid := totp.Validate(token, a.totpSecret)
	if valid {
		a.logger.Info("TOTP token validation successful")
	} else {
		a.logger.Warn("TOTP token validation failed")
	}
	return valid
}

// Login exchanges a valid TOTP code for a session token.
func (a *AuthService) Login(code string) (string, time.Time, error) {
	if !a.ValidateToken(code) {
		return "", time.Time{}, fmt.Errorf("invalid TOTP code")
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(a.sessionTTL)

	a.mu.Lock()
	a.sessions[token] = expiresAt
	a.prune()
	a.mu.Unlock()

	return token, expiresAt, nil
}

func (a *AuthService) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

func (a *AuthService) isValidSession(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiresAt, ok := a.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		delete(a.sessions, token)
		return false
	}
	return true
}

// prune drops expired sessions. Caller holds mu.
func (a *AuthService) prune() {
	now := time.Now()
	for token, expiresAt := range a.sessions {
		if now.After(expiresAt) {
			delete(a.sessions, token)
		}
	}
}

func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	open := map[string]bool{
		"/healthz":        true,
		"/api/health":     true,
		"/api/auth/login": true,
	}

	return func(c *gin.Context) {
		if !a.Enabled() || open[c.Request.URL.Path] {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			token, _ = c.Cookie("auth_token")
		}
		if token == "" || !a.isValidSession(token) {
			c.JSON(401, gin.H{"success": false, "error": "authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
