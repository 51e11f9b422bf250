package journal

import (
	"github.com/gin-gonic/gin"

	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/pkg/response"
)

// Handler handles journal entry HTTP requests.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts entry and sync routes onto the given router group.
// The whole journal is private to the owner session.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	entries := rg.Group("/entries", authMW)
	entries.GET("", h.list)
	entries.GET("/:id", h.get)
	entries.POST("", h.create)
	entries.PUT("/:id", h.update)
	entries.PATCH("/:id", h.update) // legacy client builds send PATCH
	entries.DELETE("/:id", h.delete)

	sync := rg.Group("/sync", authMW)
	sync.POST("", h.sync)
	sync.GET("/status", h.status)
}

// list GET /entries
// ?source=local skips the mirror and reads the authoritative store.
func (h *Handler) list(c *gin.Context) {
	userID := middleware.CurrentUserID(c)

	var (
		entries interface{}
		err     error
	)
	if c.Query("source") == "local" {
		entries, err = h.svc.ListEntriesLocal(userID)
	} else {
		entries, err = h.svc.ListEntries(c.Request.Context(), userID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// get GET /entries/:id
func (h *Handler) get(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	id := c.Param("id")

	var err error
	var entry interface{}
	if c.Query("source") == "local" {
		entry, err = h.svc.GetEntryLocal(userID, id)
	} else {
		entry, err = h.svc.GetEntry(c.Request.Context(), userID, id)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entry)
}

// create POST /entries
func (h *Handler) create(c *gin.Context) {
	var dto CreateEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entry, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// update PUT/PATCH /entries/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	entry, err := h.svc.Update(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entry)
}

// delete DELETE /entries/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// sync POST /sync
// Kicks a full sweep and returns its report. Returns 409 when a sweep is
// already running.
func (h *Handler) sync(c *gin.Context) {
	report, err := h.svc.SyncToCloud(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// status GET /sync/status
func (h *Handler) status(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}
