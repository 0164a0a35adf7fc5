package community

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/audit"
	"github.com/sociallyhub/moderation/internal/config"
	"github.com/sociallyhub/moderation/internal/countstore"
	"github.com/sociallyhub/moderation/internal/http/api/community/handlers"
	"github.com/sociallyhub/moderation/internal/models"
	"github.com/sociallyhub/moderation/internal/security"
)

// RegisterCommunityRoutes registers authentication, workspace and moderation
// routes under /api/community.
func RegisterCommunityRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, counts countstore.CountStore) {
	if r == nil || db == nil {
		return
	}

	recorder := audit.NewRecorder(db)
	root := r.Group("/api/community")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	root.POST("/auth/register", authHandler.Register)
	root.POST("/auth/login", authHandler.Login)
	root.POST("/auth/login/totp", authHandler.LoginTOTP)

	authed := root.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	profileHandler := handlers.NewProfileHandler(db)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	workspaceHandler := handlers.NewWorkspaceHandler(db)
	authed.POST("/workspaces", workspaceHandler.Create)
	authed.GET("/workspaces", workspaceHandler.List)
	authed.POST("/workspaces/:id/members", workspaceHandler.AddMember)
	authed.PUT("/workspaces/:id/members/:userId", workspaceHandler.UpdateMemberRole)
	authed.POST("/workspaces/:id/evaluation-key", workspaceHandler.RotateEvaluationKey)

	ruleHandler := handlers.NewRuleHandler(db, recorder)
	authed.GET("/moderation/rules", ruleHandler.List)
	authed.POST("/moderation/rules", ruleHandler.Create)
	authed.PUT("/moderation/rules", ruleHandler.Dispatch)

	actionHandler := handlers.NewActionHandler(db)
	authed.GET("/moderation/actions", actionHandler.List)

	// Live evaluation accepts either a member JWT or a workspace evaluation
	// key, so other services can call it without a user session.
	evaluateHandler := handlers.NewEvaluateHandler(db, recorder, counts)
	root.POST("/moderation/evaluate", evaluationAuthMiddleware(db, jwtCfg), evaluateHandler.Evaluate)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, jwtCfg)
		if !ok {
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}

// evaluationAuthMiddleware accepts a workspace evaluation key or falls back
// to normal user JWT authentication.
func evaluationAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	userAuth := userAuthMiddleware(db, jwtCfg)
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-Evaluation-Key"))
		if key == "" {
			userAuth(c)
			return
		}

		var workspace models.Workspace
		if errFind := db.WithContext(c.Request.Context()).
			Where("evaluation_key = ?", key).
			First(&workspace).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid evaluation key"})
			return
		}

		c.Set("evaluationWorkspaceID", workspace.ID)
		c.Next()
	}
}

// bearerClaims extracts and validates the Authorization bearer token. On
// failure it writes the 401 response and returns false.
func bearerClaims(c *gin.Context, jwtCfg config.JWTConfig) (*security.UserClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
		return nil, false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
		return nil, false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
		return nil, false
	}

	claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
	if errJWT != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}
	return claims, true
}
