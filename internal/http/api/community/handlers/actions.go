package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/models"
)

// ActionHandler serves the workspace audit log.
type ActionHandler struct {
	db *gorm.DB // Database handle for audit entries.
}

// NewActionHandler constructs an action handler.
func NewActionHandler(db *gorm.DB) *ActionHandler {
	return &ActionHandler{db: db}
}

// List returns audit entries for a workspace, newest first.
func (h *ActionHandler) List(c *gin.Context) {
	workspaceID := parseUint64Query(c, "workspaceId")
	if workspaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId is required"})
		return
	}
	if !requireManageRole(c, h.db, workspaceID) {
		return
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.ModerationAction{}).
		Where("workspace_id = ?", workspaceID)
	if actionType := c.Query("actionType"); actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}
	if ruleID := parseUint64Query(c, "ruleId"); ruleID != 0 {
		q = q.Where("rule_id = ?", ruleID)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count actions failed"})
		return
	}

	page, limit := parsePagination(c)
	var rows []models.ModerationAction
	if errFind := q.Preload("Actor").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list actions failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		entry := gin.H{
			"id":         row.ID,
			"actionType": row.ActionType,
			"actorId":    row.ActorID,
			"createdAt":  row.CreatedAt,
		}
		if row.RuleID != nil {
			entry["ruleId"] = *row.RuleID
		}
		if row.Actor.ID != 0 {
			entry["actor"] = gin.H{"id": row.Actor.ID, "username": row.Actor.Username}
		}
		if len(row.Before) > 0 {
			entry["before"] = row.Before
		}
		if len(row.After) > 0 {
			entry["after"] = row.After
		}
		if len(row.Metadata) > 0 {
			entry["metadata"] = row.Metadata
		}
		out = append(out, entry)
	}

	totalPages := int64(0)
	if limit > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"actions": out,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}
