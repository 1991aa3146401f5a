package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"virtualaddresshub/backend/internal/auth"
	"virtualaddresshub/backend/internal/domain"
)

// AdminAuth gates back-office routes. It runs after JWTAuth and loads
// the account to check its current role rather than trusting the role
// baked into the token.
type AdminAuth struct {
	authService *auth.Service
}

func NewAdminAuth(authService *auth.Service) *AdminAuth {
	return &AdminAuth{authService: authService}
}

// RequireAdmin allows admin and super roles.
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := a.loadUser(c)
		if user == nil {
			return
		}

		if !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("role", user.Role)
		c.Next()
	}
}

// RequireSuper allows only the super role.
func (a *AdminAuth) RequireSuper() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := a.loadUser(c)
		if user == nil {
			return
		}

		if !user.IsSuper() {
			c.JSON(http.StatusForbidden, gin.H{"error": "super admin access required"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("role", user.Role)
		c.Next()
	}
}

// RequireRole allows any of the given roles.
func (a *AdminAuth) RequireRole(allowedRoles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := a.loadUser(c)
		if user == nil {
			return
		}

		allowed := false
		for _, role := range allowedRoles {
			if user.Role == role {
				allowed = true
				break
			}
		}

		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("role", user.Role)
		c.Next()
	}
}

// loadUser resolves the authenticated account. On failure it writes
// the response, aborts and returns nil.
func (a *AdminAuth) loadUser(c *gin.Context) *domain.User {
	userIDVal, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		c.Abort()
		return nil
	}

	userID, ok := userIDVal.(string)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user context"})
		c.Abort()
		return nil
	}

	user, err := a.authService.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		c.Abort()
		return nil
	}

	return user
}
