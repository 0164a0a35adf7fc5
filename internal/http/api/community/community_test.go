package community

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sociallyhub/moderation/internal/config"
	"github.com/sociallyhub/moderation/internal/countstore"
	dbpkg "github.com/sociallyhub/moderation/internal/db"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	engine := gin.New()
	RegisterCommunityRoutes(engine, conn, config.JWTConfig{Secret: "test-secret", ExpiryHours: 1}, countstore.NewMemCountStore())
	return engine, conn
}

func doJSON(t *testing.T, engine *gin.Engine, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, engine *gin.Engine, username string) string {
	t.Helper()
	w := doJSON(t, engine, http.MethodPost, "/api/community/auth/register", "",
		fmt.Sprintf(`{"username":%q,"password":"hunter2secret"}`, username))
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode register response: %v", errDecode)
	}
	if resp.Token == "" {
		t.Fatal("register must return a token")
	}
	return resp.Token
}

func TestAuthFlow(t *testing.T) {
	engine, _ := newTestRouter(t)

	registerAndLogin(t, engine, "alice")

	w := doJSON(t, engine, http.MethodPost, "/api/community/auth/login", "",
		`{"username":"alice","password":"hunter2secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodPost, "/api/community/auth/login", "",
		`{"username":"alice","password":"wrong-password"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodPost, "/api/community/auth/register", "",
		`{"username":"alice","password":"hunter2secret"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	engine, _ := newTestRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/api/community/moderation/rules?workspaceId=1", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodGet, "/api/community/profile", "not-a-jwt", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", w.Code)
	}
}

func TestWorkspaceAndRuleLifecycle(t *testing.T) {
	engine, _ := newTestRouter(t)
	token := registerAndLogin(t, engine, "bob")

	w := doJSON(t, engine, http.MethodPost, "/api/community/workspaces", token,
		`{"name":"Bob's Forum"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create workspace: expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	var workspace struct {
		ID            uint64 `json:"id"`
		Slug          string `json:"slug"`
		Role          string `json:"role"`
		EvaluationKey string `json:"evaluationKey"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &workspace); errDecode != nil {
		t.Fatalf("decode workspace: %v", errDecode)
	}
	if workspace.Role != "OWNER" {
		t.Fatalf("creator should be OWNER, got %q", workspace.Role)
	}
	if workspace.Slug != "bob-s-forum" {
		t.Fatalf("unexpected slug %q", workspace.Slug)
	}
	if !strings.HasPrefix(workspace.EvaluationKey, "shm_") {
		t.Fatalf("expected prefixed evaluation key, got %q", workspace.EvaluationKey)
	}

	ruleBody := fmt.Sprintf(`{
		"workspaceId": %d,
		"name": "flag long comments",
		"triggerType": "CONTENT_FILTER",
		"targetTypes": ["comment"],
		"conditions": [{"type": "LENGTH", "operator": "GREATER_THAN", "value": 10}],
		"actions": [{"type": "FLAG"}]
	}`, workspace.ID)
	w = doJSON(t, engine, http.MethodPost, "/api/community/moderation/rules", token, ruleBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create rule: expected 201, got %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodGet,
		fmt.Sprintf("/api/community/moderation/rules?workspaceId=%d", workspace.ID), token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list rules: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	// A machine caller evaluates with the workspace key instead of a JWT.
	req := httptest.NewRequest(http.MethodPost, "/api/community/moderation/evaluate",
		strings.NewReader(`{"targetType":"comment","content":{"text":"well over ten characters"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Evaluation-Key", workspace.EvaluationKey)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate with key: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var evalResp struct {
		TriggeredRules []struct {
			RuleName string `json:"ruleName"`
		} `json:"triggeredRules"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &evalResp); errDecode != nil {
		t.Fatalf("decode evaluate response: %v", errDecode)
	}
	if len(evalResp.TriggeredRules) != 1 || evalResp.TriggeredRules[0].RuleName != "flag long comments" {
		t.Fatalf("expected the rule to trigger, got %+v", evalResp.TriggeredRules)
	}

	// Actions log shows the creation and the live trigger.
	w = doJSON(t, engine, http.MethodGet,
		fmt.Sprintf("/api/community/moderation/actions?workspaceId=%d", workspace.ID), token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list actions: expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var actions struct {
		Actions []struct {
			ActionType string `json:"actionType"`
		} `json:"actions"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &actions); errDecode != nil {
		t.Fatalf("decode actions: %v", errDecode)
	}
	types := map[string]bool{}
	for _, a := range actions.Actions {
		types[a.ActionType] = true
	}
	if !types["RULE_CREATED"] || !types["RULE_TRIGGERED"] {
		t.Fatalf("expected RULE_CREATED and RULE_TRIGGERED in audit log, got %+v", actions.Actions)
	}
}

func TestInvalidEvaluationKeyRejected(t *testing.T) {
	engine, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/community/moderation/evaluate",
		strings.NewReader(`{"targetType":"comment","content":{"text":"hi"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Evaluation-Key", "shm_bogus")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad evaluation key, got %d", w.Code)
	}
}

func TestMemberManagement(t *testing.T) {
	engine, _ := newTestRouter(t)
	ownerToken := registerAndLogin(t, engine, "carol")
	registerAndLogin(t, engine, "dave")

	w := doJSON(t, engine, http.MethodPost, "/api/community/workspaces", ownerToken, `{"name":"Shared"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create workspace: expected 201, got %d", w.Code)
	}
	var workspace struct {
		ID uint64 `json:"id"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &workspace); errDecode != nil {
		t.Fatalf("decode workspace: %v", errDecode)
	}

	w = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/community/workspaces/%d/members", workspace.ID), ownerToken,
		`{"username":"dave","role":"MEMBER"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add member: expected 201, got %d body=%s", w.Code, w.Body.String())
	}

	var member struct {
		UserID uint64 `json:"userId"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &member); errDecode != nil {
		t.Fatalf("decode member: %v", errDecode)
	}

	w = doJSON(t, engine, http.MethodPut,
		fmt.Sprintf("/api/community/workspaces/%d/members/%d", workspace.ID, member.UserID), ownerToken,
		`{"role":"ADMIN"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("promote member: expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/community/workspaces/%d/members", workspace.ID), ownerToken,
		`{"username":"dave"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("re-add member: expected 409, got %d", w.Code)
	}
}
