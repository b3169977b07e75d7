package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/usecase"
)

// errorBody matches the handlers error envelope without importing the
// handlers package.
type errorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	TraceID   string `json:"trace_id,omitempty"`
}

func newErrorBody(c *gin.Context, message, code string) errorBody {
	return errorBody{
		Success:   false,
		Error:     message,
		ErrorCode: code,
		TraceID:   GetTraceID(c),
	}
}

// RequireIdentity validates the bearer identity token and resolves the
// internal user, storing both in the gin context.
func RequireIdentity(verifier port.TokenVerifier, identity *usecase.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorBody(c, "invalid or expired token", "INVALID_TOKEN"))
			return
		}

		user, err := identity.ResolveOrCreate(c.Request.Context(), claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorBody(c, "failed to resolve user", "INTERNAL_ERROR"))
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// RequireAdmin rejects requests whose verified claims lack the admin marker.
// Must run after RequireIdentity.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorBody(c, "authentication required", "INVALID_TOKEN"))
			return
		}
		if !claims.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorBody(c, "admin privileges required", "USER_NOT_AUTHORIZED"))
			return
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorBody(c, "missing authorization header", "MISSING_AUTH_HEADER"))
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorBody(c, "invalid authorization format: expected 'Bearer <token>'", "MISSING_AUTH_HEADER"))
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorBody(c, "missing identity token", "MISSING_AUTH_HEADER"))
		return "", false
	}

	return token, true
}

// GetAuthenticatedUserID retrieves the resolved user id from context.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	if id, ok := userID.(string); ok {
		return id, true
	}
	return "", false
}

// GetClaims retrieves the verified identity claims from context.
func GetClaims(c *gin.Context) (*domain.Claims, bool) {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*domain.Claims)
	return claims, ok
}
