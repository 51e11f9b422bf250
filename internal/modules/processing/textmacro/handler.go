package textmacro

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/response"
)

// The composer's prefill template lives in the options KV so the owner
// can edit it from the app settings.
const templateOptionKey = "entry_template"

const defaultEntryTemplate = `# {{ $weekday }}, {{ $date }}

Mood: {{ $mood }}
Weather: {{ $weather }}

{{ ?streak>1|🔥|🌱? }} {{js "Day " + streak}}

`

type Handler struct {
	db  *gorm.DB
	svc *Service
}

func NewHandler(db *gorm.DB, svc *Service) *Handler {
	return &Handler{db: db, svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/template", authMW)
	g.GET("", h.render)
	g.PUT("", h.save)
}

// render expands today's template so the composer can prefill a new
// entry. Mood and weather come from the query when the client already
// knows them.
func (h *Handler) render(c *gin.Context) {
	var user models.UserModel
	if err := h.db.First(&user).Error; err != nil {
		response.NotFoundMsg(c, "this journal is not set up yet")
		return
	}

	raw := h.loadTemplate()
	fields := EntryFields(&user, time.Now(), c.Query("mood"), c.Query("weather"))

	rendered := raw
	if h.svc.Enabled() {
		rendered = Expand(raw, fields)
	}

	response.OK(c, gin.H{
		"template": raw,
		"rendered": rendered,
		"macros":   h.svc.Enabled(),
	})
}

type saveTemplateDTO struct {
	Template string `json:"template" binding:"required"`
}

func (h *Handler) save(c *gin.Context) {
	var dto saveTemplateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "template text is required")
		return
	}

	err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.OptionModel{Name: templateOptionKey, Value: dto.Template}).Error
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"template": dto.Template})
}

func (h *Handler) loadTemplate() string {
	var row models.OptionModel
	err := h.db.Where("name = ?", templateOptionKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || strings.TrimSpace(row.Value) == "" {
		return defaultEntryTemplate
	}
	if err != nil {
		return defaultEntryTemplate
	}
	return row.Value
}
