package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/audit"
	"github.com/sociallyhub/moderation/internal/automod"
	dbpkg "github.com/sociallyhub/moderation/internal/db"
	"github.com/sociallyhub/moderation/internal/models"
)

func openHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// seedMembership creates a user and a workspace with the user holding role.
func seedMembership(t *testing.T, db *gorm.DB, role string) (userID, workspaceID uint64) {
	t.Helper()
	user := models.User{Username: fmt.Sprintf("user-%s-%d", strings.ToLower(role), time.Now().UnixNano()), Password: "x", Active: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	workspace := models.Workspace{Name: "Test Space", Slug: fmt.Sprintf("test-space-%d", user.ID), OwnerID: user.ID}
	if errCreate := db.Create(&workspace).Error; errCreate != nil {
		t.Fatalf("create workspace: %v", errCreate)
	}
	member := models.WorkspaceMember{WorkspaceID: workspace.ID, UserID: user.ID, Role: role}
	if errCreate := db.Create(&member).Error; errCreate != nil {
		t.Fatalf("create membership: %v", errCreate)
	}
	return user.ID, workspace.ID
}

// jsonContext builds a gin test context with a JSON body and the signed-in
// user already resolved.
func jsonContext(t *testing.T, w *httptest.ResponseRecorder, method, target string, body any, userID uint64) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(w)
	var reader *strings.Reader
	if body != nil {
		encoded, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = strings.NewReader(string(encoded))
	} else {
		reader = strings.NewReader("")
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		c.Set("userID", userID)
	}
	return c
}

func seedRule(t *testing.T, db *gorm.DB, workspaceID, creatorID uint64, name string, priority int, def automod.Definition) uint64 {
	t.Helper()
	rule := models.ModerationRule{
		WorkspaceID: workspaceID,
		Name:        name,
		IsActive:    true,
		Priority:    priority,
		TriggerType: string(def.TriggerType),
		TargetTypes: mustJSON(def.TargetTypes),
		Conditions:  mustJSON(def.Conditions),
		Actions:     mustJSON(def.Actions),
		CreatedByID: creatorID,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if errCreate := db.Create(&rule).Error; errCreate != nil {
		t.Fatalf("create rule: %v", errCreate)
	}
	return rule.ID
}

func lengthRuleDefinition(limit float64) automod.Definition {
	return automod.Definition{
		TriggerType: automod.TriggerContentFilter,
		TargetTypes: []string{"comment"},
		Conditions: []automod.Condition{
			{Type: automod.ConditionLength, Operator: automod.OperatorGreaterThan, Value: limit},
		},
		Actions: []automod.Action{{Type: automod.ActionFlag}},
	}
}

func TestCreateRuleValidationErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPost, "/api/community/moderation/rules", map[string]any{
		"workspaceId": workspaceID,
		"name":        "no conditions",
		"triggerType": "CONTENT_FILTER",
		"targetTypes": []string{"comment"},
		"conditions":  []any{},
		"actions":     []map[string]any{{"type": "FLAG"}},
	}, userID)

	h.Create(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Errors []string `json:"errors"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	found := false
	for _, msg := range resp.Errors {
		if msg == "Conditions must be a non-empty array" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected conditions error in %v", resp.Errors)
	}

	var count int64
	if errCount := db.Model(&models.ModerationRule{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count rules: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("invalid rule must not persist, found %d rows", count)
	}
}

func TestCreateRuleSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleAdmin)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPost, "/api/community/moderation/rules", map[string]any{
		"workspaceId": workspaceID,
		"name":        "long comments",
		"triggerType": "CONTENT_FILTER",
		"targetTypes": []string{"comment"},
		"conditions": []map[string]any{
			{"type": "LENGTH", "operator": "GREATER_THAN", "value": 500},
		},
		"actions":  []map[string]any{{"type": "FLAG"}},
		"priority": 5,
	}, userID)

	h.Create(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", w.Code, w.Body.String())
	}

	var rule models.ModerationRule
	if errFind := db.Where("workspace_id = ?", workspaceID).First(&rule).Error; errFind != nil {
		t.Fatalf("rule not persisted: %v", errFind)
	}
	if !rule.IsActive {
		t.Fatal("isActive should default to true")
	}
	if rule.Priority != 5 {
		t.Fatalf("expected priority 5, got %d", rule.Priority)
	}

	var auditCount int64
	if errCount := db.Model(&models.ModerationAction{}).
		Where("action_type = ?", models.AuditRuleCreated).
		Count(&auditCount).Error; errCount != nil {
		t.Fatalf("count audit: %v", errCount)
	}
	if auditCount != 1 {
		t.Fatalf("expected 1 RULE_CREATED audit entry, got %d", auditCount)
	}
}

func TestCreateRuleForbiddenForMember(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleMember)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPost, "/api/community/moderation/rules", map[string]any{
		"workspaceId": workspaceID,
		"name":        "nope",
		"triggerType": "CONTENT_FILTER",
		"targetTypes": []string{"comment"},
		"conditions":  []map[string]any{{"type": "LENGTH", "operator": "GREATER_THAN", "value": 500}},
		"actions":     []map[string]any{{"type": "FLAG"}},
	}, userID)

	h.Create(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestListRulesFilterAndOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	seedRule(t, db, workspaceID, userID, "low", 1, lengthRuleDefinition(500))
	seedRule(t, db, workspaceID, userID, "high", 9, lengthRuleDefinition(500))
	messageDef := lengthRuleDefinition(500)
	messageDef.TargetTypes = []string{"message"}
	seedRule(t, db, workspaceID, userID, "messages only", 5, messageDef)

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodGet,
		fmt.Sprintf("/api/community/moderation/rules?workspaceId=%d&targetType=comment", workspaceID), nil, userID)

	h.List(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Rules []struct {
			Name     string `json:"name"`
			Priority int    `json:"priority"`
		} `json:"rules"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Pagination.Total != 2 {
		t.Fatalf("expected 2 comment rules, got %d", resp.Pagination.Total)
	}
	if len(resp.Rules) != 2 || resp.Rules[0].Name != "high" || resp.Rules[1].Name != "low" {
		t.Fatalf("expected priority-descending order, got %+v", resp.Rules)
	}
}

func TestDispatchTestRule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))
	ruleID := seedRule(t, db, workspaceID, userID, "long comments", 0, lengthRuleDefinition(500))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPut, "/api/community/moderation/rules", map[string]any{
		"action":      "TEST_RULE",
		"workspaceId": workspaceID,
		"ruleId":      ruleID,
		"content":     map[string]any{"text": strings.Repeat("a", 501)},
	}, userID)

	h.Dispatch(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var result automod.TestResult
	if errDecode := json.Unmarshal(w.Body.Bytes(), &result); errDecode != nil {
		t.Fatalf("decode result: %v", errDecode)
	}
	if !result.Matched || result.Score != 100 {
		t.Fatalf("expected full match, got %+v", result)
	}
	if len(result.TriggeredConditions) != 1 || result.TriggeredConditions[0] != "LENGTH: 501 > 500" {
		t.Fatalf("unexpected triggered conditions: %v", result.TriggeredConditions)
	}
}

func TestDispatchTestRuleNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPut, "/api/community/moderation/rules", map[string]any{
		"action":      "TEST_RULE",
		"workspaceId": workspaceID,
		"ruleId":      9999,
		"content":     map[string]any{"text": "anything"},
	}, userID)

	h.Dispatch(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestDispatchBulkToggle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	ids := []uint64{
		seedRule(t, db, workspaceID, userID, "one", 0, lengthRuleDefinition(500)),
		seedRule(t, db, workspaceID, userID, "two", 0, lengthRuleDefinition(500)),
		seedRule(t, db, workspaceID, userID, "three", 0, lengthRuleDefinition(500)),
	}

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPut, "/api/community/moderation/rules", map[string]any{
		"action":      "BULK_TOGGLE",
		"workspaceId": workspaceID,
		"ruleIds":     ids,
		"isActive":    false,
	}, userID)

	h.Dispatch(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		UpdatedCount int64 `json:"updatedCount"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.UpdatedCount != 3 {
		t.Fatalf("expected 3 updated, got %d", resp.UpdatedCount)
	}

	var activeCount int64
	if errCount := db.Model(&models.ModerationRule{}).Where("is_active = ?", true).Count(&activeCount).Error; errCount != nil {
		t.Fatalf("count active: %v", errCount)
	}
	if activeCount != 0 {
		t.Fatalf("expected all rules inactive, %d still active", activeCount)
	}

	var auditCount int64
	if errCount := db.Model(&models.ModerationAction{}).
		Where("action_type = ?", models.AuditBulkUpdate).
		Count(&auditCount).Error; errCount != nil {
		t.Fatalf("count audit: %v", errCount)
	}
	if auditCount != 1 {
		t.Fatalf("bulk toggle must write one audit entry, got %d", auditCount)
	}
}

func TestDispatchBulkPriorityRollsBackOnMissingRule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))
	ruleID := seedRule(t, db, workspaceID, userID, "real", 1, lengthRuleDefinition(500))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPut, "/api/community/moderation/rules", map[string]any{
		"action":      "BULK_PRIORITY_UPDATE",
		"workspaceId": workspaceID,
		"updates": []map[string]any{
			{"ruleId": ruleID, "priority": 42},
			{"ruleId": 9999, "priority": 7},
		},
	}, userID)

	h.Dispatch(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", w.Code, w.Body.String())
	}

	var rule models.ModerationRule
	if errFind := db.First(&rule, ruleID).Error; errFind != nil {
		t.Fatalf("load rule: %v", errFind)
	}
	if rule.Priority != 1 {
		t.Fatalf("priority update must roll back, got %d", rule.Priority)
	}
}

func TestDispatchSimulateRules(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	seedRule(t, db, workspaceID, userID, "matches", 0, lengthRuleDefinition(5))
	seedRule(t, db, workspaceID, userID, "misses", 0, lengthRuleDefinition(5000))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPut, "/api/community/moderation/rules", map[string]any{
		"action":      "SIMULATE_RULES",
		"workspaceId": workspaceID,
		"targetType":  "comment",
		"content":     map[string]any{"text": "long enough text"},
	}, userID)

	h.Dispatch(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var result automod.SimulationResult
	if errDecode := json.Unmarshal(w.Body.Bytes(), &result); errDecode != nil {
		t.Fatalf("decode result: %v", errDecode)
	}
	if result.TotalRules != 2 {
		t.Fatalf("expected 2 rules evaluated, got %d", result.TotalRules)
	}
	if len(result.MatchedRules) != 1 {
		t.Fatalf("expected 1 matched rule, got %d", len(result.MatchedRules))
	}
	if result.OverallScore != 50 {
		t.Fatalf("expected overall score 50, got %v", result.OverallScore)
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openHandlerTestDB(t)
	userID, workspaceID := seedMembership(t, db, models.RoleOwner)
	h := NewRuleHandler(db, audit.NewRecorder(db))

	w := httptest.NewRecorder()
	c := jsonContext(t, w, http.MethodPut, "/api/community/moderation/rules", map[string]any{
		"action":      "REINDEX",
		"workspaceId": workspaceID,
	}, userID)

	h.Dispatch(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "unknown action: REINDEX") {
		t.Fatalf("expected unknown-action error, got %s", w.Body.String())
	}
}
