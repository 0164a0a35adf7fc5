package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/audit"
	"github.com/sociallyhub/moderation/internal/automod"
	"github.com/sociallyhub/moderation/internal/countstore"
	dbpkg "github.com/sociallyhub/moderation/internal/db"
	"github.com/sociallyhub/moderation/internal/models"
)

// EvaluateHandler serves live content evaluation. Unlike TEST_RULE and
// SIMULATE_RULES this path has side effects: trigger counters, cooldowns and
// audit entries.
type EvaluateHandler struct {
	db       *gorm.DB              // Database handle for rules.
	recorder *audit.Recorder       // Post-commit audit sink.
	counts   countstore.CountStore // Hourly trigger-cap counters.
}

// NewEvaluateHandler constructs an evaluate handler.
func NewEvaluateHandler(db *gorm.DB, recorder *audit.Recorder, counts countstore.CountStore) *EvaluateHandler {
	return &EvaluateHandler{db: db, recorder: recorder, counts: counts}
}

// evaluateRequest captures the payload for live evaluation.
type evaluateRequest struct {
	WorkspaceID uint64                  `json:"workspaceId"` // Tenant scope; ignored for evaluation-key callers.
	TargetType  string                  `json:"targetType"`  // Content kind being evaluated.
	Content     *automod.ContentPayload `json:"content"`     // Content under evaluation.
}

// Evaluate runs all applicable active rules against the payload, applying
// schedule, exemption, cooldown and hourly-cap gating before a rule may
// trigger. Triggered rules update their counters and emit audit entries.
func (h *EvaluateHandler) Evaluate(c *gin.Context) {
	var body evaluateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	targetType := strings.TrimSpace(body.TargetType)
	if targetType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetType is required"})
		return
	}
	if body.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	workspaceID, ok := h.resolveWorkspace(c, body.WorkspaceID)
	if !ok {
		return
	}

	expr, arg := dbpkg.JSONArrayContainsExpr(h.db, "target_types", targetType)
	var rules []models.ModerationRule
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Where(expr, arg).
		Order("priority DESC, created_at DESC").
		Find(&rules).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load rules failed"})
		return
	}

	now := time.Now().UTC()
	triggered := make([]automod.TestResult, 0)
	recommended := make([]string, 0)
	seen := map[string]bool{}
	evaluated := 0

	for i := range rules {
		rule := &rules[i]
		ref, errRef := rule.Ref()
		if errRef != nil {
			log.WithError(errRef).WithField("rule_id", rule.ID).Warn("decode rule failed, skipping")
			continue
		}
		def := &ref.Definition

		if !def.AppliesTo(targetType) {
			continue
		}
		if def.Schedule != nil && !def.Schedule.Active(now) {
			continue
		}
		if def.AuthorExempt(body.Content) {
			continue
		}
		evaluated++

		result := automod.ScoreRule(ref, body.Content)
		if !result.Matched {
			continue
		}

		if def.CooldownPeriod > 0 && rule.LastTriggeredAt != nil {
			if now.Sub(*rule.LastTriggeredAt) < time.Duration(def.CooldownPeriod)*time.Second {
				continue
			}
		}
		if def.MaxTriggersPerHour > 0 {
			count, errCount := h.counts.GetCount(c.Request.Context(), "rule", ruleCounterKey(rule.ID), countstore.PeriodHour)
			if errCount != nil {
				log.WithError(errCount).WithField("rule_id", rule.ID).Warn("read trigger counter failed")
			} else if count >= def.MaxTriggersPerHour {
				continue
			}
		}

		if errInc := h.counts.Increment(c.Request.Context(), "rule", ruleCounterKey(rule.ID)); errInc != nil {
			log.WithError(errInc).WithField("rule_id", rule.ID).Warn("increment trigger counter failed")
		}
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(rule).
			Updates(map[string]any{
				"trigger_count":     gorm.Expr("trigger_count + 1"),
				"last_triggered_at": now,
			}).Error; errUpdate != nil {
			log.WithError(errUpdate).WithField("rule_id", rule.ID).Error("update trigger stats failed")
		}

		ruleID := rule.ID
		h.recorder.Record(c.Request.Context(), audit.Entry{
			WorkspaceID: workspaceID,
			ActorID:     getUserID(c),
			ActionType:  models.AuditRuleTriggered,
			RuleID:      &ruleID,
			Metadata: gin.H{
				"targetType": targetType,
				"score":      result.Score,
				"confidence": result.Confidence,
				"actions":    result.RecommendedActions,
			},
		})

		triggered = append(triggered, result)
		for _, action := range result.RecommendedActions {
			if !seen[action] {
				seen[action] = true
				recommended = append(recommended, action)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"workspaceId":        workspaceID,
		"targetType":         targetType,
		"evaluatedRules":     evaluated,
		"triggeredRules":     triggered,
		"recommendedActions": recommended,
	})
}

// resolveWorkspace determines the workspace scope: evaluation-key callers are
// bound to the key's workspace, user callers must be members of the requested
// one. On failure it writes the response and returns false.
func (h *EvaluateHandler) resolveWorkspace(c *gin.Context, requested uint64) (uint64, bool) {
	if val, exists := c.Get("evaluationWorkspaceID"); exists {
		if id, isUint := val.(uint64); isUint && id != 0 {
			return id, true
		}
	}
	if requested == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspaceId is required"})
		return 0, false
	}
	role, errRole := workspaceRole(c, h.db, requested)
	if errRole != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query membership failed"})
		return 0, false
	}
	if role == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		return 0, false
	}
	return requested, true
}

// ruleCounterKey names a rule's trigger counter in the count store.
func ruleCounterKey(ruleID uint64) string {
	return fmt.Sprintf("%d", ruleID)
}
