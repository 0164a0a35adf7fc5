package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/audit"
	"github.com/sociallyhub/moderation/internal/automod"
	dbpkg "github.com/sociallyhub/moderation/internal/db"
	"github.com/sociallyhub/moderation/internal/models"
)

// Dispatchable PUT actions on the rules endpoint.
const (
	actionTestRule           = "TEST_RULE"
	actionBulkToggle         = "BULK_TOGGLE"
	actionBulkPriorityUpdate = "BULK_PRIORITY_UPDATE"
	actionSimulateRules      = "SIMULATE_RULES"
)

// RuleHandler manages workspace moderation rule endpoints.
type RuleHandler struct {
	db       *gorm.DB        // Database handle for rules.
	recorder *audit.Recorder // Post-commit audit sink.
}

// NewRuleHandler constructs a rule handler.
func NewRuleHandler(db *gorm.DB, recorder *audit.Recorder) *RuleHandler {
	return &RuleHandler{db: db, recorder: recorder}
}

// List returns rules for a workspace with filtering and pagination.
func (h *RuleHandler) List(c *gin.Context) {
	workspaceID := parseUint64Query(c, "workspaceId")
	if workspaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId is required"})
		return
	}
	if !requireManageRole(c, h.db, workspaceID) {
		return
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.ModerationRule{}).
		Where("workspace_id = ?", workspaceID)

	if isActiveQ := strings.TrimSpace(c.Query("isActive")); isActiveQ != "" {
		if isActiveQ == "true" || isActiveQ == "1" {
			q = q.Where("is_active = ?", true)
		} else if isActiveQ == "false" || isActiveQ == "0" {
			q = q.Where("is_active = ?", false)
		}
	}
	if triggerType := strings.TrimSpace(c.Query("triggerType")); triggerType != "" {
		q = q.Where("trigger_type = ?", triggerType)
	}
	if targetType := strings.TrimSpace(c.Query("targetType")); targetType != "" {
		expr, arg := dbpkg.JSONArrayContainsExpr(h.db, "target_types", targetType)
		q = q.Where(expr, arg)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := dbpkg.NormalizeLikePattern(h.db, "%"+search+"%")
		q = q.Where(
			h.db.Where(dbpkg.CaseInsensitiveLikeExpr(h.db, "name"), pattern).
				Or(dbpkg.CaseInsensitiveLikeExpr(h.db, "description"), pattern),
		)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count rules failed"})
		return
	}

	page, limit := parsePagination(c)
	var rows []models.ModerationRule
	if errFind := q.Preload("CreatedBy").
		Order("priority DESC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}

	includeStats := c.Query("includeStats") == "true"
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		formatted := formatRule(&rows[i])
		if includeStats {
			formatted["recentActions"] = h.recentActions(c, rows[i].ID)
		}
		out = append(out, formatted)
	}

	totalPages := int64(0)
	if limit > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"rules": out,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// createRuleRequest captures the payload for creating a moderation rule.
type createRuleRequest struct {
	WorkspaceID        uint64              `json:"workspaceId"`        // Tenant scope.
	Name               string              `json:"name"`               // Display name.
	Description        string              `json:"description"`        // Optional description.
	TriggerType        string              `json:"triggerType"`        // Detection category.
	TargetTypes        []string            `json:"targetTypes"`        // Content kinds.
	Conditions         []automod.Condition `json:"conditions"`         // Ordered predicates.
	Actions            []automod.Action    `json:"actions"`            // Ordered actions.
	Priority           *int                `json:"priority"`           // Optional priority.
	IsActive           *bool               `json:"isActive"`           // Optional active flag, default true.
	Schedule           *automod.Schedule   `json:"schedule"`           // Optional window.
	WhitelistUsers     []string            `json:"whitelistUsers"`     // Exempt authors.
	BlacklistUsers     []string            `json:"blacklistUsers"`     // Narrowing author list.
	ExemptRoles        []string            `json:"exemptRoles"`        // Exempt author roles.
	CooldownPeriod     int                 `json:"cooldownPeriod"`     // Seconds between live triggers.
	MaxTriggersPerHour int                 `json:"maxTriggersPerHour"` // Hourly live-trigger cap.
	Metadata           json.RawMessage     `json:"metadata"`           // Free-form metadata.
}

// Create validates and inserts a moderation rule.
func (h *RuleHandler) Create(c *gin.Context) {
	var body createRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.WorkspaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId is required"})
		return
	}
	if !requireManageRole(c, h.db, body.WorkspaceID) {
		return
	}

	name := strings.TrimSpace(body.Name)
	def := automod.Definition{
		TriggerType:        automod.TriggerType(body.TriggerType),
		TargetTypes:        body.TargetTypes,
		Conditions:         body.Conditions,
		Actions:            body.Actions,
		Schedule:           body.Schedule,
		WhitelistUsers:     body.WhitelistUsers,
		BlacklistUsers:     body.BlacklistUsers,
		ExemptRoles:        body.ExemptRoles,
		CooldownPeriod:     body.CooldownPeriod,
		MaxTriggersPerHour: body.MaxTriggersPerHour,
	}
	validationErrs := automod.ValidateDefinition(&def)
	if name == "" {
		validationErrs = append([]string{"Name is required"}, validationErrs...)
	}
	if len(validationErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "errors": validationErrs})
		return
	}

	priority := 0
	if body.Priority != nil {
		priority = *body.Priority
	}
	isActive := true
	if body.IsActive != nil {
		isActive = *body.IsActive
	}

	now := time.Now().UTC()
	rule := models.ModerationRule{
		WorkspaceID:        body.WorkspaceID,
		Name:               name,
		Description:        strings.TrimSpace(body.Description),
		IsActive:           isActive,
		Priority:           priority,
		TriggerType:        body.TriggerType,
		TargetTypes:        mustJSON(body.TargetTypes),
		Conditions:         mustJSON(body.Conditions),
		Actions:            mustJSON(body.Actions),
		CooldownPeriod:     body.CooldownPeriod,
		MaxTriggersPerHour: body.MaxTriggersPerHour,
		CreatedByID:        getUserID(c),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if body.Schedule != nil {
		rule.Schedule = mustJSON(body.Schedule)
	}
	if len(body.WhitelistUsers) > 0 {
		rule.WhitelistUsers = mustJSON(body.WhitelistUsers)
	}
	if len(body.BlacklistUsers) > 0 {
		rule.BlacklistUsers = mustJSON(body.BlacklistUsers)
	}
	if len(body.ExemptRoles) > 0 {
		rule.ExemptRoles = mustJSON(body.ExemptRoles)
	}
	if len(body.Metadata) > 0 {
		rule.Metadata = datatypes.JSON(body.Metadata)
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&rule).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create rule failed"})
		return
	}

	ruleID := rule.ID
	h.recorder.Record(c.Request.Context(), audit.Entry{
		WorkspaceID: rule.WorkspaceID,
		ActorID:     getUserID(c),
		ActionType:  models.AuditRuleCreated,
		RuleID:      &ruleID,
		After:       formatRule(&rule),
	})

	c.JSON(http.StatusCreated, formatRule(&rule))
}

// dispatchRequest captures the PUT action envelope.
type dispatchRequest struct {
	Action      string                  `json:"action"`      // Dispatch selector.
	WorkspaceID uint64                  `json:"workspaceId"` // Tenant scope.
	RuleID      uint64                  `json:"ruleId"`      // TEST_RULE target.
	RuleIDs     []uint64                `json:"ruleIds"`     // BULK_TOGGLE targets.
	IsActive    *bool                   `json:"isActive"`    // BULK_TOGGLE state.
	Updates     []priorityUpdate        `json:"updates"`     // BULK_PRIORITY_UPDATE entries.
	Content     *automod.ContentPayload `json:"content"`     // TEST_RULE / SIMULATE_RULES payload.
	TargetType  string                  `json:"targetType"`  // SIMULATE_RULES content kind.
}

// priorityUpdate is one BULK_PRIORITY_UPDATE entry.
type priorityUpdate struct {
	RuleID   uint64 `json:"ruleId"`   // Rule to update.
	Priority int    `json:"priority"` // New priority.
}

// Dispatch routes PUT requests to the test, bulk and simulation operations.
func (h *RuleHandler) Dispatch(c *gin.Context) {
	var body dispatchRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.WorkspaceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId is required"})
		return
	}
	if !requireManageRole(c, h.db, body.WorkspaceID) {
		return
	}

	switch body.Action {
	case actionTestRule:
		h.testRule(c, &body)
	case actionBulkToggle:
		h.bulkToggle(c, &body)
	case actionBulkPriorityUpdate:
		h.bulkReprioritize(c, &body)
	case actionSimulateRules:
		h.simulateRules(c, &body)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action: %s", body.Action)})
	}
}

// testRule scores one rule against a content payload without side effects.
func (h *RuleHandler) testRule(c *gin.Context, body *dispatchRequest) {
	if body.RuleID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ruleId is required"})
		return
	}
	if body.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	var rule models.ModerationRule
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("workspace_id = ?", body.WorkspaceID).
		First(&rule, body.RuleID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	ref, errRef := rule.Ref()
	if errRef != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode rule failed"})
		return
	}
	result := automod.ScoreRule(ref, body.Content)

	ruleID := rule.ID
	h.recorder.Record(c.Request.Context(), audit.Entry{
		WorkspaceID: body.WorkspaceID,
		ActorID:     getUserID(c),
		ActionType:  models.AuditRuleTested,
		RuleID:      &ruleID,
		Metadata:    gin.H{"matched": result.Matched, "score": result.Score},
	})

	c.JSON(http.StatusOK, result)
}

// bulkToggle applies an active state to many rules in one set-based update
// and writes one summarizing audit entry.
func (h *RuleHandler) bulkToggle(c *gin.Context, body *dispatchRequest) {
	if len(body.RuleIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ruleIds is required"})
		return
	}
	if body.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isActive is required"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.ModerationRule{}).
		Where("workspace_id = ? AND id IN ?", body.WorkspaceID, body.RuleIDs).
		Updates(map[string]any{"is_active": *body.IsActive, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk toggle failed"})
		return
	}

	h.recorder.Record(c.Request.Context(), audit.Entry{
		WorkspaceID: body.WorkspaceID,
		ActorID:     getUserID(c),
		ActionType:  models.AuditBulkUpdate,
		Metadata: gin.H{
			"ruleIds":      body.RuleIDs,
			"isActive":     *body.IsActive,
			"updatedCount": res.RowsAffected,
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"updatedCount": res.RowsAffected,
		"message":      fmt.Sprintf("Updated %d rules", res.RowsAffected),
	})
}

// bulkReprioritize applies per-rule priority updates inside one transaction
// so a mid-batch failure leaves no partially-applied state.
func (h *RuleHandler) bulkReprioritize(c *gin.Context, body *dispatchRequest) {
	if len(body.Updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "updates is required"})
		return
	}

	updated := 0
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, update := range body.Updates {
			res := tx.Model(&models.ModerationRule{}).
				Where("workspace_id = ? AND id = ?", body.WorkspaceID, update.RuleID).
				Updates(map[string]any{"priority": update.Priority, "updated_at": time.Now().UTC()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			updated++
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk priority update failed"})
		return
	}

	h.recorder.Record(c.Request.Context(), audit.Entry{
		WorkspaceID: body.WorkspaceID,
		ActorID:     getUserID(c),
		ActionType:  models.AuditBulkPriorityUpdate,
		Metadata:    gin.H{"updates": body.Updates, "updatedCount": updated},
	})

	c.JSON(http.StatusOK, gin.H{
		"updatedCount": updated,
		"message":      fmt.Sprintf("Updated %d rule priorities", updated),
	})
}

// simulateRules scores every active rule for a target type against a payload.
func (h *RuleHandler) simulateRules(c *gin.Context, body *dispatchRequest) {
	if body.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	targetType := strings.TrimSpace(body.TargetType)
	if targetType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetType is required"})
		return
	}

	refs, errLoad := loadActiveRuleRefs(c, h.db, body.WorkspaceID, targetType)
	if errLoad != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load rules failed"})
		return
	}

	result := automod.Simulate(refs, body.Content)

	h.recorder.Record(c.Request.Context(), audit.Entry{
		WorkspaceID: body.WorkspaceID,
		ActorID:     getUserID(c),
		ActionType:  models.AuditRulesSimulated,
		Metadata: gin.H{
			"targetType":   targetType,
			"totalRules":   result.TotalRules,
			"matchedRules": len(result.MatchedRules),
		},
	})

	c.JSON(http.StatusOK, result)
}

// recentActions loads the latest audit entries touching a rule.
func (h *RuleHandler) recentActions(c *gin.Context, ruleID uint64) []gin.H {
	var rows []models.ModerationAction
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("rule_id = ?", ruleID).
		Order("created_at DESC").
		Limit(5).
		Find(&rows).Error; errFind != nil {
		return []gin.H{}
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"actionType": row.ActionType,
			"actorId":    row.ActorID,
			"createdAt":  row.CreatedAt,
		})
	}
	return out
}

// loadActiveRuleRefs loads active rules for a workspace and target type,
// ordered by priority descending with creation-time ties broken descending,
// and decodes them for evaluation.
func loadActiveRuleRefs(c *gin.Context, db *gorm.DB, workspaceID uint64, targetType string) ([]automod.RuleRef, error) {
	expr, arg := dbpkg.JSONArrayContainsExpr(db, "target_types", targetType)
	var rows []models.ModerationRule
	if errFind := db.WithContext(c.Request.Context()).
		Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Where(expr, arg).
		Order("priority DESC, created_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}

	refs := make([]automod.RuleRef, 0, len(rows))
	for i := range rows {
		ref, errRef := rows[i].Ref()
		if errRef != nil {
			return nil, errRef
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// formatRule converts a rule into a response payload.
func formatRule(rule *models.ModerationRule) gin.H {
	out := gin.H{
		"id":                 rule.ID,
		"workspaceId":        rule.WorkspaceID,
		"name":               rule.Name,
		"description":        rule.Description,
		"isActive":           rule.IsActive,
		"priority":           rule.Priority,
		"triggerType":        rule.TriggerType,
		"targetTypes":        rule.TargetTypes,
		"conditions":         rule.Conditions,
		"actions":            rule.Actions,
		"cooldownPeriod":     rule.CooldownPeriod,
		"maxTriggersPerHour": rule.MaxTriggersPerHour,
		"triggerCount":       rule.TriggerCount,
		"successRate":        rule.SuccessRate,
		"lastTriggeredAt":    rule.LastTriggeredAt,
		"createdAt":          rule.CreatedAt,
		"updatedAt":          rule.UpdatedAt,
	}
	if len(rule.Schedule) > 0 {
		out["schedule"] = rule.Schedule
	}
	if len(rule.WhitelistUsers) > 0 {
		out["whitelistUsers"] = rule.WhitelistUsers
	}
	if len(rule.BlacklistUsers) > 0 {
		out["blacklistUsers"] = rule.BlacklistUsers
	}
	if len(rule.ExemptRoles) > 0 {
		out["exemptRoles"] = rule.ExemptRoles
	}
	if len(rule.Metadata) > 0 {
		out["metadata"] = rule.Metadata
	}
	if rule.CreatedBy.ID != 0 {
		out["createdBy"] = gin.H{"id": rule.CreatedBy.ID, "username": rule.CreatedBy.Username}
	} else {
		out["createdBy"] = gin.H{"id": rule.CreatedByID}
	}
	return out
}

// mustJSON marshals a value into a JSON column. Values originate from decoded
// request bodies, so marshalling cannot fail.
func mustJSON(value any) datatypes.JSON {
	encoded, _ := json.Marshal(value)
	return datatypes.JSON(encoded)
}
