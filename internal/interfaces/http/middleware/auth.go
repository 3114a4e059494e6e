package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/infrastructure/auth"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/interfaces/http/dto"
)

// Auth context keys and headers
const (
	AuthSubjectKey = "auth_subject"
	APIKeyHeader   = "X-API-Key"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "

	// SubjectAPIKey is the subject recorded for requests using the shared key.
	SubjectAPIKey = "api-key"
)

// AuthConfig holds configuration for the authentication middleware.
type AuthConfig struct {
	// APIKey is the shared key. Authentication is off when empty.
	APIKey string
	// JWTService validates bearer tokens. Optional.
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
}

// Authenticate requires either X-API-Key equal to the configured key or a
// valid bearer token. With no key configured every request passes.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	if cfg.APIKey == "" {
		return func(c *gin.Context) { c.Next() }
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if auth.APIKeyMatches(cfg.APIKey, c.GetHeader(APIKeyHeader)) {
			setSubject(c, SubjectAPIKey)
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if cfg.JWTService != nil && cfg.JWTService.Enabled() && strings.HasPrefix(header, BearerPrefix) {
			claims, err := cfg.JWTService.ValidateToken(strings.TrimPrefix(header, BearerPrefix))
			if err == nil {
				setSubject(c, claims.Subject)
				c.Next()
				return
			}
			abortUnauthorized(c, err)
			return
		}

		abortUnauthorized(c, auth.ErrInvalidToken)
	}
}

func setSubject(c *gin.Context, subject string) {
	c.Set(AuthSubjectKey, subject)
	logger.GetGinLogger(c).Debug("Request authenticated", zap.String("subject", subject))
}

func abortUnauthorized(c *gin.Context, err error) {
	logger.GetGinLogger(c).Warn("Authentication failed",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
	)

	code := dto.ErrCodeUnauthorized
	if errors.Is(err, auth.ErrExpiredToken) {
		code = dto.ErrCodeTokenExpired
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
		code,
		"Invalid or missing API key",
		GetRequestID(c),
	))
}

// GetAuthSubject returns the authenticated subject, or "".
func GetAuthSubject(c *gin.Context) string {
	return c.GetString(AuthSubjectKey)
}
