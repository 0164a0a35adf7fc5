package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/config"
	"github.com/sociallyhub/moderation/internal/models"
	"github.com/sociallyhub/moderation/internal/security"
)

// AuthHandler serves registration and login endpoints.
type AuthHandler struct {
	db     *gorm.DB         // Database handle for users.
	jwtCfg config.JWTConfig // Token signing settings.
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// registerRequest captures the payload for creating a user account.
type registerRequest struct {
	Username string `json:"username"` // Unique login name.
	Email    string `json:"email"`    // Contact address.
	Password string `json:"password"` // Plain password, hashed before storage.
}

// Register creates a user account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	if len(body.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	var existing models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", username).
		First(&existing).Error
	if errFind == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hashed, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	now := time.Now().UTC()
	user := models.User{
		Username:  username,
		Email:     strings.TrimSpace(body.Email),
		Password:  hashed,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	h.respondWithUserToken(c, &user)
}

// loginRequest captures the payload for password login.
type loginRequest struct {
	Username string `json:"username"` // Login name.
	Password string `json:"password"` // Plain password.
}

// Login authenticates a password and issues a token, or signals that a TOTP
// code is required when the account has MFA enabled.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, ok := h.lookupActiveUser(c, body.Username)
	if !ok {
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if user.TOTPSecret != "" {
		c.JSON(http.StatusOK, gin.H{"mfa_required": true, "methods": []string{"totp"}})
		return
	}

	h.respondWithUserToken(c, user)
}

// loginTOTPRequest captures the payload for the TOTP login step.
type loginTOTPRequest struct {
	Username string `json:"username"` // Login name.
	Password string `json:"password"` // Plain password, re-checked here.
	Code     string `json:"code"`     // Six-digit TOTP code.
}

// LoginTOTP completes login for accounts with TOTP enabled.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var body loginTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, ok := h.lookupActiveUser(c, body.Username)
	if !ok {
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if user.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}
	if !totp.Validate(strings.TrimSpace(body.Code), user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	h.respondWithUserToken(c, user)
}

// lookupActiveUser loads a user by username and rejects disabled accounts.
// On failure it writes the error response and returns false.
func (h *AuthHandler) lookupActiveUser(c *gin.Context, username string) (*models.User, bool) {
	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", strings.TrimSpace(username)).
		First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	if user.Disabled || !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return nil, false
	}
	return &user, true
}

// respondWithUserToken issues a signed token for the user.
func (h *AuthHandler) respondWithUserToken(c *gin.Context, user *models.User) {
	token, errToken := security.GenerateToken(h.jwtCfg.Secret, user.ID, user.Username, h.jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"token":    token,
	})
}
