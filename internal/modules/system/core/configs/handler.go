package configs

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/clarity-app/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/configs")

	g.GET("", h.getPublic)

	a := g.Group("", authMW)
	a.GET("/all", h.getAll)
	a.PATCH("", h.patch)

	// /options/:key - used by the settings screens (e.g. PATCH /options/rewards)
	opts := rg.Group("/options", authMW)
	opts.GET("", h.getAll)
	opts.GET("/:key", h.getOption)
	opts.PATCH("/:key", h.patchOption)
}

// getPublic returns the public-safe subset of the config: no API keys, no
// push tokens, just what the client needs before login.
func (h *Handler) getPublic(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"app":     cfg.App,
		"rewards": cfg.Rewards,
		"chain": gin.H{
			"network": cfg.Chain.Network,
		},
		"templates": cfg.Templates,
		"insights_enabled": cfg.AI.EnableInsights,
	})
}

// getAll returns the full config (owner only). Sensitive fields like API keys are included.
func (h *Handler) getAll(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

// patch merges a partial config update.
func (h *Handler) patch(c *gin.Context) {
	var partial map[string]json.RawMessage
	if err := c.ShouldBindJSON(&partial); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.svc.Patch(partial)
	if err != nil {
		if errors.Is(err, errInsightsProviderNotEnabled) {
			response.BadRequest(c, "No enabled AI provider is configured; cannot enable entry insights.")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, updated)
}

// getOption returns a specific top-level config key (e.g. GET /options/rewards).
func (h *Handler) getOption(c *gin.Context) {
	key := normalizeOptionKey(c.Param("key"))
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	full, _ := json.Marshal(cfg)
	var m map[string]json.RawMessage
	_ = json.Unmarshal(full, &m)
	if val, ok := m[key]; ok {
		var result interface{}
		_ = json.Unmarshal(val, &result)
		response.OK(c, convertMapKeys(result, snakeToCamelKey))
		return
	}
	response.NotFound(c)
}

// patchOption merges an update into a specific top-level config key.
func (h *Handler) patchOption(c *gin.Context) {
	key := normalizeOptionKey(c.Param("key"))
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	normalizedBody, err := normalizeJSONKeys(body, camelToSnakeKey)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.svc.Patch(map[string]json.RawMessage{key: normalizedBody})
	if err != nil {
		if errors.Is(err, errInsightsProviderNotEnabled) {
			response.BadRequest(c, "No enabled AI provider is configured; cannot enable entry insights.")
			return
		}
		response.InternalError(c, err)
		return
	}

	full, _ := json.Marshal(updated)
	var m map[string]json.RawMessage
	_ = json.Unmarshal(full, &m)
	if val, ok := m[key]; ok {
		var result interface{}
		_ = json.Unmarshal(val, &result)
		response.OK(c, convertMapKeys(result, snakeToCamelKey))
		return
	}
	response.OK(c, updated)
}
