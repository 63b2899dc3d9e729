// Package handler exposes the registry over HTTP. It owns routing,
// payload decoding, bearer-token extraction, and the mapping from service
// errors to status codes; all domain decisions live in the service layer.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentdir/agentdir/internal/registry/model"
	"github.com/agentdir/agentdir/internal/registry/repository"
	"github.com/agentdir/agentdir/internal/registry/service"
	"github.com/agentdir/agentdir/pkg/agentcard"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is the API version reported by GET /info.
const Version = "2.0.0"

// AgentHandler handles HTTP requests for the agent directory.
type AgentHandler struct {
	registry *service.RegistryService
	liveness *service.LivenessService
	query    *service.QueryService
	logger   *zap.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(registry *service.RegistryService, liveness *service.LivenessService, query *service.QueryService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{registry: registry, liveness: liveness, query: query, logger: logger}
}

// Register registers all directory routes on the given router group.
func (h *AgentHandler) Register(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.POST("", h.CreateAgent)
		agents.GET("", h.ListAgents)
		agents.GET("/search", h.SearchAgents)
		agents.GET("/:id", h.GetAgent)
		agents.POST("/:id/heartbeat", h.Heartbeat)
	}

	rg.POST("/validate", h.ValidateCard)
	rg.GET("/info", h.Info)
}

// CreateAgent handles POST /agents: registers a new agent and returns
// the derived id plus the heartbeat token. The token appears only in this
// response; afterwards the registry holds just its hash.
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.registry.Register(c.Request.Context(), &req)
	if err != nil {
		var valErr *model.ErrValidation
		switch {
		case errors.As(err, &valErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
		case errors.Is(err, repository.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "an agent with this name is already registered"})
		default:
			h.logger.Error("register agent", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		RecordRegistration(false)
		return
	}

	RecordRegistration(true)
	c.JSON(http.StatusCreated, gin.H{
		"agent_id":        result.ID,
		"heartbeat_token": result.Token,
		"warnings":        result.Warnings,
	})
}

// Heartbeat handles POST /agents/:id/heartbeat. The heartbeat token is
// presented as a bearer credential; every authentication failure gets the
// same 401 body regardless of cause.
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	token, ok := bearerToken(c)
	if !ok {
		RecordHeartbeat("unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": model.ErrUnauthorized.Error()})
		return
	}

	if err := h.liveness.Authenticate(ctx, id, token); err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			RecordHeartbeat("unauthorized")
			c.JSON(http.StatusUnauthorized, gin.H{"error": model.ErrUnauthorized.Error()})
			return
		}
		h.logger.Error("heartbeat auth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}

	var req model.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RecordHeartbeat("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.liveness.RecordHeartbeat(ctx, id, req)
	if err != nil {
		var valErr *model.ErrValidation
		switch {
		case errors.As(err, &valErr):
			RecordHeartbeat("invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		default:
			h.logger.Error("record heartbeat", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		}
		return
	}

	RecordHeartbeat("accepted")
	c.JSON(http.StatusOK, gin.H{
		"agent_id": id,
		"liveness": state,
		"online":   h.liveness.Online(state),
	})
}

// GetAgent handles GET /agents/:id, the merged static + liveness view.
func (h *AgentHandler) GetAgent(c *gin.Context) {
	snap, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.Error("get agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get agent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": snap})
}

// ListAgents handles GET /agents with optional online/status filters.
func (h *AgentHandler) ListAgents(c *gin.Context) {
	online, err := parseOnline(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online must be a boolean"})
		return
	}
	limit, offset := parsePage(c)

	filter := service.Filter{
		Status: model.Status(c.Query("status")),
		Online: online,
		Limit:  limit,
		Offset: offset,
	}

	snaps, err := h.query.List(c.Request.Context(), filter)
	if err != nil {
		h.respondQueryError(c, err, "list agents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": snaps, "count": len(snaps)})
}

// SearchAgents handles GET /agents/search with skill/tag/q/capability
// criteria plus the same online/status filters as the plain listing.
func (h *AgentHandler) SearchAgents(c *gin.Context) {
	online, err := parseOnline(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online must be a boolean"})
		return
	}
	limit, offset := parsePage(c)

	criteria := service.Criteria{
		Skill:      strings.TrimSpace(c.Query("skill")),
		Tag:        strings.TrimSpace(c.Query("tag")),
		Q:          strings.TrimSpace(c.Query("q")),
		Capability: strings.TrimSpace(c.Query("capability")),
		Status:     model.Status(c.Query("status")),
		Online:     online,
		Limit:      limit,
		Offset:     offset,
	}

	snaps, err := h.query.Search(c.Request.Context(), criteria)
	if err != nil {
		h.respondQueryError(c, err, "search agents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": snaps, "count": len(snaps)})
}

// ValidateCard handles POST /validate: checks a card without registering.
// The response is 200 even for invalid cards; validity is in the body.
func (h *AgentHandler) ValidateCard(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, agentcard.Check(&req.Card))
}

// Info handles GET /info: service metadata and the endpoint map.
func (h *AgentHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "agentdir",
		"version":     Version,
		"description": "a directory for discovering agents by card, skill, and liveness",
		"endpoints": gin.H{
			"register":  "POST /api/v1/agents",
			"list":      "GET /api/v1/agents",
			"search":    "GET /api/v1/agents/search",
			"get":       "GET /api/v1/agents/{id}",
			"heartbeat": "POST /api/v1/agents/{id}/heartbeat",
			"validate":  "POST /api/v1/validate",
		},
	})
}

// respondQueryError maps query-engine failures to status codes.
func (h *AgentHandler) respondQueryError(c *gin.Context, err error, op string) {
	var valErr *model.ErrValidation
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
		return
	}
	h.logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op})
}

// bearerToken extracts the credential from an "Authorization: Bearer …"
// header.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// parseOnline reads the optional ?online= boolean.
func parseOnline(c *gin.Context) (bool, error) {
	raw := c.Query("online")
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// parsePage reads limit/offset with the listing defaults.
func parsePage(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
