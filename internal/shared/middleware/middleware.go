package middleware

import (
	"net/http"
	"strings"

	"swapstation/internal/domain"
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/utils/response"
	"swapstation/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// JWTAuth verifies the bearer token issued by the identity service and stores
// the caller's id and role on the context.
func JWTAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil, nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWT.Secret), nil
		})
		if err != nil || !token.Valid {
			logger.GetDefault().LogAuthFailure(c.Request.Context(), "invalid token", c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token claims", nil, nil)
			c.Abort()
			return
		}
		if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token type", nil, nil)
			c.Abort()
			return
		}
		if cfg.JWT.Issuer != "" && !claims.VerifyIssuer(cfg.JWT.Issuer, true) {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token issuer", nil, nil)
			c.Abort()
			return
		}

		userID, _ := claims["user_id"].(string)
		if _, err := uuid.Parse(userID); err != nil {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid user id in token", nil, nil)
			c.Abort()
			return
		}
		role, _ := claims["role"].(string)

		c.Set(ContextUserID, userID)
		c.Set(ContextUserRole, role)
		c.Next()
	}
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextUserRole)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		for _, required := range requiredRoles {
			if role == string(required) {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireStaff allows station staff and administrators
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(domain.RoleStaff, domain.RoleAdmin)
}

// ActorFromContext returns the authenticated caller. The zero Actor is
// returned on unauthenticated routes.
func ActorFromContext(c *gin.Context) domain.Actor {
	var actor domain.Actor
	if v, ok := c.Get(ContextUserID); ok {
		if s, ok := v.(string); ok {
			actor.ID, _ = uuid.Parse(s)
		}
	}
	if v, ok := c.Get(ContextUserRole); ok {
		if s, ok := v.(string); ok {
			actor.Role = domain.Role(s)
		}
	}
	return actor
}

// IsStaff reports whether the caller may act on other users' records.
func IsStaff(actor domain.Actor) bool {
	return actor.Role == domain.RoleStaff || actor.Role == domain.RoleAdmin
}
