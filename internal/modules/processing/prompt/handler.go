package prompt

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/pkg/pagination"
	"github.com/clarity-app/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/prompts", authMW)
	g.GET("", h.list)
	g.GET("/all", h.listAll)
	g.GET("/categories", h.categories)
	g.GET("/random", h.random)
	g.GET("/today", h.today)
	g.GET("/:id", h.get)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]promptResponse, len(items))
	for i, p := range items {
		out[i] = toResponse(&p)
	}
	response.Paged(c, out, pag)
}

func (h *Handler) listAll(c *gin.Context) {
	items, err := h.svc.ListAll()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]promptResponse, len(items))
	for i, p := range items {
		out[i] = toResponse(&p)
	}
	response.OK(c, out)
}

func (h *Handler) categories(c *gin.Context) {
	cats, err := h.svc.Categories()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cats)
}

func (h *Handler) random(c *gin.Context) {
	item, err := h.svc.Random(c.Query("category"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if item == nil {
		response.OK(c, gin.H{"data": nil})
		return
	}
	response.OK(c, gin.H{"data": toResponse(item)})
}

func (h *Handler) today(c *gin.Context) {
	item, day, err := h.svc.Today(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if item == nil {
		response.OK(c, gin.H{"data": nil, "date": day})
		return
	}
	response.OK(c, gin.H{"data": toResponse(item), "date": day})
}

func (h *Handler) get(c *gin.Context) {
	item, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if item == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(item))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreatePromptDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.Create(&dto)
	if err != nil {
		if errors.Is(err, errBlankText) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(item))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdatePromptDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		if errors.Is(err, errBlankText) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if item == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(item))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
