package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
)

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get("userID")
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// workspaceRole returns the caller's role in a workspace, or an empty string
// when the caller is not a member.
func workspaceRole(c *gin.Context, db *gorm.DB, workspaceID uint64) (string, error) {
	userID := getUserID(c)
	if userID == 0 || workspaceID == 0 {
		return "", nil
	}
	var member models.WorkspaceMember
	if errFind := db.WithContext(c.Request.Context()).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", errFind
	}
	return member.Role, nil
}

// requireManageRole checks that the caller holds OWNER or ADMIN on the
// workspace. On failure it writes the 403/500 response and returns false.
func requireManageRole(c *gin.Context, db *gorm.DB, workspaceID uint64) bool {
	role, errRole := workspaceRole(c, db, workspaceID)
	if errRole != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query membership failed"})
		return false
	}
	if role != models.RoleOwner && role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		return false
	}
	return true
}

// parsePagination reads page/limit query parameters with bounds applied.
func parsePagination(c *gin.Context) (page, limit int) {
	page = 1
	limit = 20
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// parseUint64Query parses an unsigned integer query parameter, 0 when absent.
func parseUint64Query(c *gin.Context, name string) uint64 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
