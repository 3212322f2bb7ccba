package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/jwt"
	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/response"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// AuthMiddleware validates the bearer token and sets user_id and role in the Gin context.
// Browsers cannot set headers on a websocket upgrade, so upgrade requests may pass
// the token as ?token= instead.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		role := domain.Role(claims.Role)
		if !role.Valid() {
			response.Unauthorized(c, "Invalid token role")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID.String()))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// GetUserID returns the authenticated user
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetRole returns the authenticated user's role
func GetRole(c *gin.Context) domain.Role {
	v, _ := c.Get(ContextRole)
	role, _ := v.(domain.Role)
	return role
}
