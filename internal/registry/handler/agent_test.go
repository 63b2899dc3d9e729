package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentdir/agentdir/internal/registry/handler"
	"github.com/agentdir/agentdir/internal/registry/model"
	"github.com/agentdir/agentdir/internal/registry/repository"
	"github.com/agentdir/agentdir/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ── Helpers ──────────────────────────────────────────────────────────────

type testEnv struct {
	router   *gin.Engine
	registry *service.RegistryService
	liveness *service.LivenessService
	query    *service.QueryService
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	logger := zap.NewNop()
	env := &testEnv{
		registry: service.NewRegistryService(store, logger),
		liveness: service.NewLivenessService(store, logger),
		query:    service.NewQueryService(store, logger),
	}

	h := handler.NewAgentHandler(env.registry, env.liveness, env.query, logger)
	env.router = gin.New()
	v1 := env.router.Group("/api/v1")
	h.Register(v1)
	return env
}

func (e *testEnv) setNow(now func() time.Time) {
	e.registry.SetNow(now)
	e.liveness.SetNow(now)
	e.query.SetNow(now)
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func cardJSON(name string) string {
	return `{
		"card": {
			"name": "` + name + `",
			"description": "Provides hourly and daily weather forecasts.",
			"url": "https://weather.example.com",
			"version": "1.0.0",
			"capabilities": {"streaming": true},
			"skills": [{
				"id": "forecast",
				"name": "Forecast",
				"description": "Hourly forecast",
				"tags": ["weather"],
				"examples": ["Weather in Berlin?"]
			}]
		}
	}`
}

// registerAgent registers a card and returns the id and heartbeat token.
func registerAgent(t *testing.T, env *testEnv, name string) (id, token string) {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/agents", cardJSON(name), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp["agent_id"].(string), resp["heartbeat_token"].(string)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

// ── Registration ─────────────────────────────────────────────────────────

func TestCreateAgent_201(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/agents", cardJSON("Weather Bot"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["agent_id"] != "weather-bot" {
		t.Errorf("agent_id = %v", resp["agent_id"])
	}
	token, _ := resp["heartbeat_token"].(string)
	if !strings.HasPrefix(token, "hb_") {
		t.Errorf("heartbeat_token = %q", token)
	}
}

func TestCreateAgent_400_invalidJSON(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do(t, http.MethodPost, "/api/v1/agents", `{invalid`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateAgent_400_invalidCard(t *testing.T) {
	env := setupTestRouter(t)
	body := `{"card": {"name": "X", "description": "too short", "url": "", "version": ""}}`
	w := env.do(t, http.MethodPost, "/api/v1/agents", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] == nil || resp["error"] == "" {
		t.Error("400 response should carry an error message")
	}
}

func TestCreateAgent_409_duplicate(t *testing.T) {
	env := setupTestRouter(t)
	registerAgent(t, env, "Weather Bot")

	// Different display name, same slug.
	w := env.do(t, http.MethodPost, "/api/v1/agents", cardJSON("weather  bot"), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

// ── Heartbeat ────────────────────────────────────────────────────────────

func TestHeartbeat_200(t *testing.T) {
	env := setupTestRouter(t)
	id, token := registerAgent(t, env, "Weather Bot")

	body := `{"status": "online", "load": 0.4, "message": "ready"}`
	w := env.do(t, http.MethodPost, "/api/v1/agents/"+id+"/heartbeat", body, bearer(token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AgentID  string              `json:"agent_id"`
		Liveness model.LivenessState `json:"liveness"`
		Online   bool                `json:"online"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.AgentID != id {
		t.Errorf("agent_id = %q", resp.AgentID)
	}
	if !resp.Online {
		t.Error("agent must be online immediately after an accepted heartbeat")
	}
	if resp.Liveness.Status != model.StatusOnline || resp.Liveness.Load == nil || *resp.Liveness.Load != 0.4 {
		t.Errorf("liveness = %+v", resp.Liveness)
	}
	if resp.Liveness.LastSeenAt == nil {
		t.Error("accepted heartbeat must stamp last_seen_at")
	}
}

// Every authentication failure mode gets the identical 401 body.
func TestHeartbeat_401_uniform(t *testing.T) {
	env := setupTestRouter(t)
	id, token := registerAgent(t, env, "Weather Bot")

	body := `{"status": "online"}`
	cases := []struct {
		name   string
		path   string
		header http.Header
	}{
		{"no header", "/api/v1/agents/" + id + "/heartbeat", nil},
		{"wrong scheme", "/api/v1/agents/" + id + "/heartbeat", http.Header{"Authorization": []string{"Basic abc"}}},
		{"empty bearer", "/api/v1/agents/" + id + "/heartbeat", http.Header{"Authorization": []string{"Bearer "}}},
		{"wrong token", "/api/v1/agents/" + id + "/heartbeat", bearer("hb_wrong")},
		{"unknown agent", "/api/v1/agents/ghost/heartbeat", bearer(token)},
	}

	var bodies []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tc.path, body, tc.header)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
			}
			bodies = append(bodies, w.Body.String())
		})
	}
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("401 bodies differ between failure modes: %q vs %q", bodies[0], bodies[i])
		}
	}
}

func TestHeartbeat_400_validation(t *testing.T) {
	env := setupTestRouter(t)
	id, token := registerAgent(t, env, "Weather Bot")
	path := "/api/v1/agents/" + id + "/heartbeat"

	for name, body := range map[string]string{
		"bad status":    `{"status": "away"}`,
		"load too high": `{"status": "online", "load": 1.5}`,
		"load negative": `{"status": "online", "load": -0.2}`,
		"long message":  `{"status": "online", "message": "` + strings.Repeat("x", 257) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, path, body, bearer(token))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	// The rejected heartbeats left the agent in its initial state.
	w := env.do(t, http.MethodGet, "/api/v1/agents/"+id, "", nil)
	var resp struct {
		Agent model.Snapshot `json:"agent"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Agent.Liveness.Status != model.StatusOffline || resp.Agent.Liveness.LastSeenAt != nil {
		t.Errorf("rejected heartbeats mutated state: %+v", resp.Agent.Liveness)
	}
}

// ── Reads ────────────────────────────────────────────────────────────────

func TestGetAgent_200(t *testing.T) {
	env := setupTestRouter(t)
	id, _ := registerAgent(t, env, "Weather Bot")

	w := env.do(t, http.MethodGet, "/api/v1/agents/"+id, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Agent model.Snapshot `json:"agent"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Agent.ID != id || resp.Agent.Card.Name != "Weather Bot" {
		t.Errorf("agent = %+v", resp.Agent)
	}
	if resp.Agent.Online {
		t.Error("agent without heartbeats reported online")
	}

	// The credential hash never leaves the service.
	if strings.Contains(w.Body.String(), "credential") || strings.Contains(w.Body.String(), "$2a$") {
		t.Error("response leaks credential material")
	}
}

func TestGetAgent_404(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do(t, http.MethodGet, "/api/v1/agents/ghost", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListAgents_200(t *testing.T) {
	env := setupTestRouter(t)
	registerAgent(t, env, "Agent One")
	registerAgent(t, env, "Agent Two")

	w := env.do(t, http.MethodGet, "/api/v1/agents", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 2 {
		t.Errorf("count = %v", resp["count"])
	}
}

func TestListAgents_onlineParam(t *testing.T) {
	env := setupTestRouter(t)
	id, token := registerAgent(t, env, "Weather Bot")
	registerAgent(t, env, "Sleeper")

	w := env.do(t, http.MethodGet, "/api/v1/agents?online=notabool", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad online value: expected 400, got %d", w.Code)
	}

	env.do(t, http.MethodPost, "/api/v1/agents/"+id+"/heartbeat", `{"status":"online"}`, bearer(token))

	w = env.do(t, http.MethodGet, "/api/v1/agents?online=true", "", nil)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("online=true count = %v", resp["count"])
	}
}

func TestSearchAgents(t *testing.T) {
	env := setupTestRouter(t)
	registerAgent(t, env, "Weather Bot")
	registerAgent(t, env, "Calculator")

	w := env.do(t, http.MethodGet, "/api/v1/agents/search?skill=forecast&tag=weather", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Agents []model.Snapshot `json:"agents"`
		Count  int              `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	// Both seeded cards share the forecast skill; the criteria AND with
	// each other but both cards satisfy them.
	if resp.Count != 2 {
		t.Errorf("count = %d", resp.Count)
	}

	w = env.do(t, http.MethodGet, "/api/v1/agents/search?q=calculator", "", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 || resp.Agents[0].ID != "calculator" {
		t.Errorf("q=calculator matched %+v", resp.Agents)
	}

	w = env.do(t, http.MethodGet, "/api/v1/agents/search?status=sleeping", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status filter: expected 400, got %d", w.Code)
	}
}

// The heartbeat response derives online from the same clock that stamped
// last_seen_at, not from the wall clock.
func TestHeartbeat_onlineUsesServiceClock(t *testing.T) {
	env := setupTestRouter(t)

	// A reference time far from wall time: with a consistent clock the
	// just-stamped heartbeat is trivially inside the window.
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	env.setNow(func() time.Time { return fixed })

	id, token := registerAgent(t, env, "Weather Bot")
	w := env.do(t, http.MethodPost, "/api/v1/agents/"+id+"/heartbeat", `{"status":"online"}`, bearer(token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["online"] != true {
		t.Errorf("heartbeat stamped at the reference time must report online=true: %s", w.Body.String())
	}
}

// The window boundary as seen through the full HTTP surface.
func TestOnlineWindow_endToEnd(t *testing.T) {
	env := setupTestRouter(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	env.setNow(func() time.Time { return now })

	id, token := registerAgent(t, env, "Weather Bot")
	env.do(t, http.MethodPost, "/api/v1/agents/"+id+"/heartbeat", `{"status":"online"}`, bearer(token))

	count := func() int {
		w := env.do(t, http.MethodGet, "/api/v1/agents?online=true", "", nil)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		return int(resp["count"].(float64))
	}

	if got := count(); got != 1 {
		t.Fatalf("fresh heartbeat: online count = %d", got)
	}

	now = base.Add(model.OnlineWindow)
	if got := count(); got != 1 {
		t.Fatalf("at window edge: online count = %d", got)
	}

	now = base.Add(model.OnlineWindow + time.Second)
	if got := count(); got != 0 {
		t.Fatalf("past window: online count = %d", got)
	}
}

// ── Validate / Info ──────────────────────────────────────────────────────

func TestValidateCard(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/validate", cardJSON("Weather Bot"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != true {
		t.Errorf("valid = %v: %s", resp["valid"], w.Body.String())
	}

	// Invalid cards still answer 200; validity lives in the body.
	body := `{"card": {"name": "X", "description": "short", "url": "", "version": ""}}`
	w = env.do(t, http.MethodPost, "/api/v1/validate", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for invalid card, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != false {
		t.Errorf("valid = %v", resp["valid"])
	}

	// Validation never registers anything.
	w = env.do(t, http.MethodGet, "/api/v1/agents", "", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("validate created records: count = %v", resp["count"])
	}
}

func TestInfo(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do(t, http.MethodGet, "/api/v1/info", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["version"] != handler.Version {
		t.Errorf("version = %v", resp["version"])
	}
	if resp["endpoints"] == nil {
		t.Error("info should list endpoints")
	}
}
