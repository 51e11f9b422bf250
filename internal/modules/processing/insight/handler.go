package insight

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/pagination"
	"github.com/clarity-app/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the ai endpoints. Everything is behind auth; a
// journal has exactly one reader and reflections are part of it.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/ai", authMW)

	modelsRoute := g.Group("/models")
	modelsRoute.GET("", h.getAvailableModels)
	modelsRoute.GET("/:providerId", h.getModelsForProvider)
	modelsRoute.POST("/list", h.fetchModelsList)
	g.POST("/test", h.testProviderConnection)

	insights := g.Group("/insights")
	insights.GET("", h.listInsights)
	insights.GET("/entry/:id", h.getInsightForEntry)
	insights.GET("/entry/:id/generate", h.streamInsightGenerate)
	insights.POST("/generate", h.generateInsight)
	insights.PATCH("/:id", h.updateInsight)
	insights.DELETE("/:id", h.deleteInsight)

	tasks := g.Group("/tasks")
	tasks.GET("", h.listTasks)
	tasks.GET("/entry/:entryId", h.listTasksByEntry)
	tasks.GET("/:id", h.getTask)
	tasks.DELETE("/:id", h.deleteTask)
	tasks.DELETE("", h.batchDeleteTasks)
	tasks.POST("/:id/cancel", h.cancelTask)
	tasks.POST("/:id/retry", h.retryTask)
}

// respondInsightError maps service errors onto http codes.
func respondInsightError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInsightsDisabled):
		response.BadRequest(c, errInsightsDisabled.Error())
	case errors.Is(err, errEntryNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFoundMsg(c, "entry not found")
	default:
		response.InternalError(c, err)
	}
}

// GET /ai/insights/entry/:id?onlyDb=...
//
// Returns the cached reflection for the entry's current revision. When
// none exists and onlyDb is not set, generation is queued and the
// response is a 202 with the task id to poll.
func (h *Handler) getInsightForEntry(c *gin.Context) {
	entryID := c.Param("id")
	onlyDb := c.Query("onlyDb") == "true" || c.Query("only_db") == "true"

	entry, err := h.svc.fetchEntry(entryID)
	if err != nil {
		respondInsightError(c, err)
		return
	}

	insight, err := h.svc.GetInsight(entry)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if insight != nil {
		response.OK(c, insight)
		return
	}
	if onlyDb {
		response.NotFoundMsg(c, "no reflection for this entry yet")
		return
	}

	task, err := h.svc.EnqueueInsight(c.Request.Context(), entryID)
	if err != nil {
		respondInsightError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "reflection generation queued",
		"task_id": task.ID,
	})
}

// GET /ai/insights/entry/:id/generate  — SSE streaming
func (h *Handler) streamInsightGenerate(c *gin.Context) {
	h.svc.GenerateInsightStream(c, c.Param("id"))
}

// POST /ai/insights/generate
func (h *Handler) generateInsight(c *gin.Context) {
	var dto generateInsightDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	insight, err := h.svc.GenerateInsightNow(dto.EntryID)
	if err != nil {
		respondInsightError(c, err)
		return
	}
	response.OK(c, insight)
}

// GET /ai/insights
func (h *Handler) listInsights(c *gin.Context) {
	q := pagination.FromContext(c)

	tx := h.svc.db.Model(&models.EntryInsightModel{}).Order("created_at DESC")
	var items []models.EntryInsightModel
	pag, err := pagination.Paginate(tx, q, &items)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	response.OK(c, gin.H{
		"data":       items,
		"pagination": pag,
		"entries":    h.findInsightEntries(items),
	})
}

// findInsightEntries returns a small preview of each source entry so
// the list view can show what a reflection was written about.
func (h *Handler) findInsightEntries(items []models.EntryInsightModel) map[string]gin.H {
	out := make(map[string]gin.H, len(items))
	if len(items) == 0 {
		return out
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.EntryID)
	}

	var entries []models.EntryModel
	if err := h.svc.db.Select("id", "content", "mood", "created_at").
		Where("id IN ?", ids).Find(&entries).Error; err != nil {
		return out
	}
	for _, entry := range entries {
		out[entry.ID] = gin.H{
			"id":         entry.ID,
			"preview":    truncateText(strings.Join(strings.Fields(entry.Content), " "), 80),
			"mood":       entry.Mood,
			"created_at": entry.CreatedAt,
		}
	}
	return out
}

// PATCH /ai/insights/:id
func (h *Handler) updateInsight(c *gin.Context) {
	var dto updateInsightDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var item models.EntryInsightModel
	if err := h.svc.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFoundMsg(c, "reflection not found")
			return
		}
		response.InternalError(c, err)
		return
	}

	item.Content = dto.Content
	if err := h.svc.db.Save(&item).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, item)
}

// DELETE /ai/insights/:id
func (h *Handler) deleteInsight(c *gin.Context) {
	// Hard delete, so the hash index frees up for a regeneration.
	result := h.svc.db.Unscoped().Delete(&models.EntryInsightModel{}, "id = ?", c.Param("id"))
	if result.Error != nil {
		response.InternalError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		response.NotFoundMsg(c, "reflection not found")
		return
	}
	response.NoContent(c)
}

// GET /ai/models
func (h *Handler) getAvailableModels(c *gin.Context) {
	cfg, err := h.svc.cfgSvc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	out := make([]providerModelsResponse, 0, len(cfg.AI.Providers))
	for _, p := range cfg.AI.Providers {
		if !p.Enabled || p.APIKey == "" {
			continue
		}
		out = append(out, providerModelsResponse{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			ProviderType: p.Type,
			Models:       modelsFromProvider(p),
		})
	}
	response.OK(c, out)
}

// GET /ai/models/:providerId
func (h *Handler) getModelsForProvider(c *gin.Context) {
	providerID := c.Param("providerId")
	cfg, err := h.svc.cfgSvc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	for _, p := range cfg.AI.Providers {
		if p.ID == providerID {
			response.OK(c, providerModelsResponse{
				ProviderID:   p.ID,
				ProviderName: p.Name,
				ProviderType: p.Type,
				Models:       modelsFromProvider(p),
			})
			return
		}
	}
	response.NotFoundMsg(c, "unknown AI provider")
}

// POST /ai/models/list
//
// Fetches the live model list for a provider that may not be saved
// yet. A providerId referencing stored config fills in whatever the
// request omits, so the client never has to re-send a secret.
func (h *Handler) fetchModelsList(c *gin.Context) {
	var dto fetchModelsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	provider := config.AIProvider{
		ID:       dto.ProviderID,
		Name:     dto.ProviderID,
		Type:     dto.Type,
		APIKey:   dto.APIKey,
		Endpoint: dto.Endpoint,
		Enabled:  true,
	}

	if dto.ProviderID != "" {
		if cfg, err := h.svc.cfgSvc.Get(); err == nil {
			for _, p := range cfg.AI.Providers {
				if p.ID == dto.ProviderID {
					if provider.Type == "" {
						provider.Type = p.Type
					}
					if provider.APIKey == "" {
						provider.APIKey = p.APIKey
					}
					if provider.Endpoint == "" {
						provider.Endpoint = p.Endpoint
					}
					if provider.DefaultModel == "" {
						provider.DefaultModel = p.DefaultModel
					}
					provider.Name = p.Name
					break
				}
			}
		}
	}

	if provider.Type == "" || provider.APIKey == "" {
		response.OK(c, gin.H{
			"models": []modelInfo{},
			"error":  "provider type and api key are required",
		})
		return
	}

	fetched, err := fetchModelsFromProvider(provider)
	if err != nil {
		response.OK(c, gin.H{
			"models": modelsFromProvider(provider),
			"error":  err.Error(),
		})
		return
	}
	if len(fetched) == 0 {
		fetched = modelsFromProvider(provider)
	}
	response.OK(c, gin.H{"models": fetched})
}

// POST /ai/test
func (h *Handler) testProviderConnection(c *gin.Context) {
	var dto testConnectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if dto.ProviderID != "" && (dto.Type == "" || dto.APIKey == "" || dto.Model == "") {
		if cfg, err := h.svc.cfgSvc.Get(); err == nil {
			for _, p := range cfg.AI.Providers {
				if p.ID == dto.ProviderID {
					if dto.Type == "" {
						dto.Type = p.Type
					}
					if dto.APIKey == "" {
						dto.APIKey = p.APIKey
					}
					if dto.Model == "" {
						dto.Model = p.DefaultModel
					}
					if dto.Endpoint == "" {
						dto.Endpoint = p.Endpoint
					}
					break
				}
			}
		}
	}
	if dto.Type == "" || dto.APIKey == "" || dto.Model == "" {
		response.BadRequest(c, "type, apiKey and model are required")
		return
	}

	provider := config.AIProvider{
		Type:         dto.Type,
		APIKey:       dto.APIKey,
		Endpoint:     dto.Endpoint,
		DefaultModel: dto.Model,
		Enabled:      true,
	}

	if _, err := callAIWithSystemPrompt(&provider, "", "Reply with the single word OK."); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true})
}
