package user

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
	db  *gorm.DB
}

func NewHandler(svc *Service, db *gorm.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/user")

	g.GET("", middleware.OptionalAuth(h.db), h.getProfile)
	g.GET("/check", middleware.OptionalAuth(h.db), h.checkLogged)

	a := g.Group("", authMW)
	a.PATCH("", h.updateProfile)
}

// getProfile serves the full profile to the owner and the widget payload
// to everyone else.
func (h *Handler) getProfile(c *gin.Context) {
	u, err := h.svc.Owner()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.NotFoundMsg(c, "no owner is registered yet")
		return
	}
	if !middleware.IsAuthenticated(c) {
		response.OK(c, toPublicProfile(u))
		return
	}
	response.OK(c, u)
}

// checkLogged is the cheap probe the app fires on launch.
func (h *Handler) checkLogged(c *gin.Context) {
	isAuthenticated := middleware.IsAuthenticated(c)
	response.OK(c, gin.H{
		"ok":      boolToInt(isAuthenticated),
		"isGuest": !isAuthenticated,
	})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var dto UpdateUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}
