// Package debug is a development-only diagnostics surface. It injects
// events into the realtime gateway and the webhook dispatcher and
// previews macro expansion, so the mobile client, the home-screen
// widget, and third-party hook receivers can be exercised without
// writing journal entries. The composition root mounts it in dev mode
// only.
package debug

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/processing/textmacro"
	"github.com/clarity-app/core/internal/pkg/response"
)

// Hub is the slice of the gateway hub the injector needs.
type Hub interface {
	BroadcastOwner(event string, payload interface{})
	BroadcastPublic(event string, payload interface{})
}

// Dispatcher hands events to registered outbound webhooks.
type Dispatcher interface {
	Dispatch(event string, payload interface{})
}

type Handler struct {
	db    *gorm.DB
	hub   Hub
	hooks Dispatcher
	macro *textmacro.Service
}

func NewHandler(db *gorm.DB, hub Hub, hooks Dispatcher, macro *textmacro.Service) *Handler {
	return &Handler{db: db, hub: hub, hooks: hooks, macro: macro}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/debug", authMW)
	g.POST("/events", h.sendEvent)
	g.POST("/webhooks", h.sendWebhook)
	g.POST("/macro", h.previewMacro)
}

// sendEvent pushes an arbitrary event into the gateway. type picks the
// room: owner (default), public, or all. The event name is deliberately
// unrestricted so unknown-event handling on the client can be tested.
func (h *Handler) sendEvent(c *gin.Context) {
	event := strings.TrimSpace(c.Query("event"))
	if event == "" {
		response.BadRequest(c, "event is required")
		return
	}
	payload, err := readOptionalJSON(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	room := strings.ToLower(strings.TrimSpace(c.DefaultQuery("type", "owner")))
	if h.hub == nil {
		response.NoContent(c)
		return
	}
	switch room {
	case "owner":
		h.hub.BroadcastOwner(event, payload)
	case "public":
		h.hub.BroadcastPublic(event, payload)
	case "all":
		h.hub.BroadcastOwner(event, payload)
		h.hub.BroadcastPublic(event, payload)
	default:
		response.BadRequest(c, "type must be owner, public, or all")
		return
	}
	response.NoContent(c)
}

// sendWebhook runs the payload through the real dispatcher, so receivers
// get a properly signed delivery and a log row shows up under
// /webhooks/dispatches.
func (h *Handler) sendWebhook(c *gin.Context) {
	event := strings.TrimSpace(c.Query("event"))
	if event == "" {
		response.BadRequest(c, "event is required")
		return
	}
	payload, err := readOptionalJSON(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if h.hooks != nil {
		h.hooks.Dispatch(event, payload)
	}
	response.NoContent(c)
}

type previewMacroDTO struct {
	Text    string `json:"text" binding:"required"`
	Mood    string `json:"mood"`
	Weather string `json:"weather"`
}

// previewMacro expands macros in arbitrary text. Unlike GET /template it
// ignores the text_macro kill switch, so a template can be tried out
// before enabling macros for the composer.
func (h *Handler) previewMacro(c *gin.Context) {
	var dto previewMacroDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var owner *models.UserModel
	var user models.UserModel
	if err := h.db.First(&user).Error; err == nil {
		owner = &user
	}

	fields := textmacro.EntryFields(owner, time.Now(), dto.Mood, dto.Weather)
	out := gin.H{"rendered": textmacro.Expand(dto.Text, fields)}
	if h.macro != nil {
		out["macros_enabled"] = h.macro.Enabled()
	}
	response.OK(c, out)
}

// readOptionalJSON binds the body when one is present. Injection
// endpoints work without a payload.
func readOptionalJSON(c *gin.Context) (interface{}, error) {
	var payload interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return payload, nil
}
