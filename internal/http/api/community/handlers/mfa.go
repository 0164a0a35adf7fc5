package handlers

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
)

const totpIssuer = "SociallyHub"

// pendingSecret is an unconfirmed TOTP secret awaiting the first valid code.
type pendingSecret struct {
	secret    string    // Base32 TOTP secret.
	expiresAt time.Time // Discard deadline.
}

// secretStore holds pending TOTP secrets keyed by user ID. Secrets are only
// persisted once the user confirms with a valid code.
type secretStore struct {
	mu      sync.Mutex
	pending map[uint64]pendingSecret
}

func newSecretStore() *secretStore {
	return &secretStore{pending: map[uint64]pendingSecret{}}
}

func (s *secretStore) put(userID uint64, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = pendingSecret{secret: secret, expiresAt: time.Now().Add(10 * time.Minute)}
}

func (s *secretStore) take(userID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[userID]
	if !ok {
		return "", false
	}
	delete(s.pending, userID)
	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.secret, true
}

// MFAHandler serves TOTP enrollment endpoints.
type MFAHandler struct {
	db      *gorm.DB     // Database handle for users.
	pending *secretStore // Unconfirmed TOTP secrets.
}

// NewMFAHandler constructs an MFA handler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db, pending: newSecretStore()}
}

// Status reports whether the signed-in user has TOTP enabled.
func (h *MFAHandler) Status(c *gin.Context) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": user.TOTPSecret != ""})
}

// PrepareTOTP generates a pending TOTP secret and returns the otpauth URL
// plus a QR code for authenticator apps.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.TOTPSecret != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp already enabled"})
		return
	}

	key, errGen := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Username,
	})
	if errGen != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	h.pending.put(user.ID, key.Secret())

	response := gin.H{
		"secret": key.Secret(),
		"url":    key.URL(),
	}
	if img, errImg := key.Image(200, 200); errImg == nil {
		var buf bytes.Buffer
		if errEncode := png.Encode(&buf, img); errEncode == nil {
			response["qr_png_base64"] = base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	c.JSON(http.StatusOK, response)
}

// totpCodeRequest captures a six-digit TOTP code.
type totpCodeRequest struct {
	Code string `json:"code"` // Six-digit TOTP code.
}

// ConfirmTOTP validates the first code against the pending secret and
// persists it, enabling TOTP for the account.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	userID := getUserID(c)
	secret, ok := h.pending.take(userID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending totp enrollment"})
		return
	}
	if !totp.Validate(strings.TrimSpace(body.Code), secret) {
		// Put the secret back so the user can retry within the window.
		h.pending.put(userID, secret)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": true})
}

// DisableTOTP turns off TOTP after validating a current code.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
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

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&user).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": false})
}
