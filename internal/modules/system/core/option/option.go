// Package option is a small key-value surface over the options table.
// The mobile client parks device-scoped state here (draft buffers, UI
// flags, last-viewed dates) so a reinstall can restore it.
package option

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/response"
)

// The stored-config blob shares the options table and must not be
// reachable through the raw KV surface.
var reservedKeys = map[string]bool{
	"configs": true,
}

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/kv", authMW)
	g.GET("", h.list)
	g.GET("/:key", h.get)
	g.PATCH("/:key", h.patch)
	g.DELETE("/:key", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	var items []models.OptionModel
	if err := h.db.Find(&items).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	visible := make([]models.OptionModel, 0, len(items))
	for _, item := range items {
		if reservedKeys[item.Name] {
			continue
		}
		visible = append(visible, item)
	}
	response.OK(c, visible)
}

func (h *Handler) get(c *gin.Context) {
	key := c.Param("key")
	if reservedKeys[key] {
		response.ForbiddenMsg(c, "reserved key")
		return
	}
	var opt models.OptionModel
	if err := h.db.Where("name = ?", key).First(&opt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFoundMsg(c, "key not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, opt)
}

type patchDTO struct {
	Value string `json:"value" binding:"required"`
}

func (h *Handler) patch(c *gin.Context) {
	key := c.Param("key")
	if reservedKeys[key] {
		response.ForbiddenMsg(c, "reserved key")
		return
	}
	var dto patchDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	opt := models.OptionModel{Name: key, Value: dto.Value}
	if err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, opt)
}

func (h *Handler) delete(c *gin.Context) {
	key := c.Param("key")
	if reservedKeys[key] {
		response.ForbiddenMsg(c, "reserved key")
		return
	}
	if err := h.db.Where("name = ?", key).Delete(&models.OptionModel{}).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
