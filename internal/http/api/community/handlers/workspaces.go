package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
	"github.com/sociallyhub/moderation/internal/security"
)

var slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// WorkspaceHandler serves workspace and membership endpoints.
type WorkspaceHandler struct {
	db *gorm.DB // Database handle for workspaces.
}

// NewWorkspaceHandler constructs a workspace handler.
func NewWorkspaceHandler(db *gorm.DB) *WorkspaceHandler {
	return &WorkspaceHandler{db: db}
}

// createWorkspaceRequest captures the payload for creating a workspace.
type createWorkspaceRequest struct {
	Name string `json:"name"` // Display name.
	Slug string `json:"slug"` // Optional URL-safe identifier, derived from name when empty.
}

// Create inserts a workspace with the caller as OWNER and issues an
// evaluation key for machine callers.
func (h *WorkspaceHandler) Create(c *gin.Context) {
	var body createWorkspaceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	slug := strings.TrimSpace(body.Slug)
	if slug == "" {
		slug = slugify(name)
	}

	key, errKey := security.GenerateEvaluationKey()
	if errKey != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate evaluation key failed"})
		return
	}

	userID := getUserID(c)
	now := time.Now().UTC()
	workspace := models.Workspace{
		Name:          name,
		Slug:          slug,
		OwnerID:       userID,
		EvaluationKey: key,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&workspace).Error; errCreate != nil {
			return errCreate
		}
		member := models.WorkspaceMember{
			WorkspaceID: workspace.ID,
			UserID:      userID,
			Role:        models.RoleOwner,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.Create(&member).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create workspace failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            workspace.ID,
		"name":          workspace.Name,
		"slug":          workspace.Slug,
		"role":          models.RoleOwner,
		"evaluationKey": workspace.EvaluationKey,
		"createdAt":     workspace.CreatedAt,
	})
}

// List returns the workspaces the caller belongs to with their role.
func (h *WorkspaceHandler) List(c *gin.Context) {
	var memberships []models.WorkspaceMember
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Workspace").
		Where("user_id = ?", getUserID(c)).
		Order("created_at ASC").
		Find(&memberships).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list workspaces failed"})
		return
	}

	out := make([]gin.H, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, gin.H{
			"id":        m.Workspace.ID,
			"name":      m.Workspace.Name,
			"slug":      m.Workspace.Slug,
			"role":      m.Role,
			"createdAt": m.Workspace.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": out})
}

// addMemberRequest captures the payload for adding a workspace member.
type addMemberRequest struct {
	Username string `json:"username"` // User to add.
	Role     string `json:"role"`     // ADMIN or MEMBER, default MEMBER.
}

// AddMember adds a user to a workspace.
func (h *WorkspaceHandler) AddMember(c *gin.Context) {
	workspaceID := parseUint64Param(c, "id")
	if workspaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return
	}
	if !requireManageRole(c, h.db, workspaceID) {
		return
	}

	var body addMemberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role := strings.TrimSpace(body.Role)
	if role == "" {
		role = models.RoleMember
	}
	if role != models.RoleAdmin && role != models.RoleMember {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be ADMIN or MEMBER"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", strings.TrimSpace(body.Username)).
		First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	now := time.Now().UTC()
	member := models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      user.ID,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&member).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "user is already a member"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"workspaceId": workspaceID,
		"userId":      user.ID,
		"username":    user.Username,
		"role":        role,
	})
}

// updateMemberRoleRequest captures the payload for changing a member role.
type updateMemberRoleRequest struct {
	Role string `json:"role"` // ADMIN or MEMBER.
}

// UpdateMemberRole changes a member's role. The owner's role is immutable.
func (h *WorkspaceHandler) UpdateMemberRole(c *gin.Context) {
	workspaceID := parseUint64Param(c, "id")
	memberUserID := parseUint64Param(c, "userId")
	if workspaceID == 0 || memberUserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace or user id"})
		return
	}
	if !requireManageRole(c, h.db, workspaceID) {
		return
	}

	var body updateMemberRoleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role := strings.TrimSpace(body.Role)
	if role != models.RoleAdmin && role != models.RoleMember {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be ADMIN or MEMBER"})
		return
	}

	var member models.WorkspaceMember
	errFind := h.db.WithContext(c.Request.Context()).
		Where("workspace_id = ? AND user_id = ?", workspaceID, memberUserID).
		First(&member).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if member.Role == models.RoleOwner {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner role cannot be changed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&member).
		Updates(map[string]any{"role": role, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update role failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workspaceId": workspaceID,
		"userId":      memberUserID,
		"role":        role,
	})
}

// RotateEvaluationKey replaces the workspace evaluation key, revoking the
// previous one immediately.
func (h *WorkspaceHandler) RotateEvaluationKey(c *gin.Context) {
	workspaceID := parseUint64Param(c, "id")
	if workspaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return
	}
	if !requireManageRole(c, h.db, workspaceID) {
		return
	}

	key, errKey := security.GenerateEvaluationKey()
	if errKey != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate evaluation key failed"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Updates(map[string]any{"evaluation_key": key, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rotate evaluation key failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"workspaceId": workspaceID, "evaluationKey": key})
}

// parseUint64Param parses an unsigned integer path parameter, 0 when invalid.
func parseUint64Param(c *gin.Context, name string) uint64 {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// slugify derives a URL-safe slug from a workspace name.
func slugify(name string) string {
	slug := slugSanitizer.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
