package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
	"github.com/sociallyhub/moderation/internal/security"
)

// ProfileHandler serves the signed-in user's account endpoints.
type ProfileHandler struct {
	db *gorm.DB // Database handle for users.
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// Get returns the signed-in user's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"username":    user.Username,
		"email":       user.Email,
		"mfa_enabled": user.TOTPSecret != "",
		"created_at":  user.CreatedAt,
	})
}

// changePasswordRequest captures the payload for rotating a password.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"` // Current password.
	NewPassword string `json:"new_password"` // Replacement password.
}

// ChangePassword verifies the old password and stores a new hash.
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if !security.CheckPassword(user.Password, body.OldPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	hashed, errHash := security.HashPassword(body.NewPassword)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&user).
		Updates(map[string]any{"password": hashed, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update password failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
