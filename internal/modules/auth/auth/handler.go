package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/middleware"
	"github.com/clarity-app/core/internal/models"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	jwtpkg "github.com/clarity-app/core/internal/pkg/jwt"
	"github.com/clarity-app/core/internal/pkg/response"
	sessionpkg "github.com/clarity-app/core/internal/pkg/session"
)

type Handler struct {
	svc    *Service
	cfgSvc *appconfigs.Service
}

func NewHandler(svc *Service, cfgSvc *appconfigs.Service) *Handler {
	return &Handler{svc: svc, cfgSvc: cfgSvc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	a := rg.Group("/auth")

	a.POST("/register", h.register)
	a.POST("/login", h.login)
	a.GET("/methods", h.methods)
	a.GET("/session", middleware.OptionalAuth(h.svc.db), h.session)

	authed := a.Group("", authMW)
	authed.POST("/logout", h.logout)
	authed.POST("/refresh", h.refresh)
	authed.PATCH("/password", h.changePassword)
	authed.GET("/sessions", h.listSessions)
	authed.DELETE("/sessions", h.revokeOtherSessions)
	authed.DELETE("/sessions/:id", h.revokeSession)

	tok := a.Group("/tokens", authMW)
	tok.GET("", h.listTokens)
	tok.POST("", h.createToken)
	tok.DELETE("", h.deleteTokenByQuery) // legacy client builds pass ?id=
	tok.DELETE("/:id", h.deleteToken)
}

// methods tells the pre-login screen which sign-in paths are available
// and whether the owner account exists yet.
func (h *Handler) methods(c *gin.Context) {
	var passkeyCount int64
	_ = h.svc.db.Model(&models.AuthnModel{}).Count(&passkeyCount).Error

	passwordEnabled := true
	if h.cfgSvc != nil {
		if cfg, err := h.cfgSvc.Get(); err == nil && cfg != nil {
			passwordEnabled = !cfg.AuthSecurity.DisablePasswordLogin
		}
	}

	response.OK(c, gin.H{
		"registered": h.svc.IsRegistered(),
		"password":   passwordEnabled,
		"passkey":    passkeyCount > 0,
	})
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.Register(&dto)
	if err != nil {
		switch {
		case errors.Is(err, errOwnerExists):
			response.Conflict(c, "this journal already has an owner")
		case errors.Is(err, errUnknownTimezone):
			response.BadRequest(c, "unknown timezone: "+dto.Timezone)
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, gin.H{"id": u.ID, "username": u.Username})
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if h.isPasswordLoginDisabled() {
		response.BadRequest(c, "password login is disabled, use a passkey")
		return
	}
	token, u, err := h.svc.Login(&dto, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, errUserNotFound) || errors.Is(err, errWrongPassword) {
			response.ForbiddenMsg(c, "wrong username or password")
			return
		}
		response.InternalError(c, err)
		return
	}
	setAuthTokenCookie(c, token)
	response.OK(c, loginResponse{Token: token, User: u})
}

func (h *Handler) logout(c *gin.Context) {
	if token := extractAuthTokenFromRequest(c); token != "" {
		if claims, err := jwtpkg.Parse(token); err == nil {
			sessionID := strings.TrimSpace(claims.SessionID)
			userID := strings.TrimSpace(claims.UserID)
			if sessionID != "" && userID != "" {
				_ = sessionpkg.Revoke(h.svc.db, userID, sessionID)
			}
		}
	}
	clearAuthTokenCookie(c)
	response.NoContent(c)
}

// refresh rotates the session: a new token is issued and the old session
// is revoked after a short grace so in-flight requests still pass.
func (h *Handler) refresh(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	currentSessionID := middleware.CurrentSessionID(c)

	token, _, err := sessionpkg.Issue(h.svc.db, userID, c.ClientIP(), c.Request.UserAgent(), sessionpkg.DefaultTTL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if currentSessionID != "" {
		sessionpkg.RevokeAfter(h.svc.db, userID, currentSessionID, 6*time.Second)
	}
	setAuthTokenCookie(c, token)
	response.OK(c, gin.H{"token": token})
}

func (h *Handler) session(c *gin.Context) {
	if !middleware.IsAuthenticated(c) {
		response.OK(c, nil)
		return
	}
	userID := middleware.CurrentUserID(c)
	sessionID := middleware.CurrentSessionID(c)

	var u models.UserModel
	if err := h.svc.db.First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.OK(c, nil)
			return
		}
		response.InternalError(c, err)
		return
	}

	out := gin.H{"user": &u}
	if sessionID != "" {
		var s models.UserSession
		if err := h.svc.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&s).Error; err == nil {
			out["session"] = gin.H{
				"id":          s.ID,
				"device_name": s.DeviceName,
				"ip":          s.IP,
				"ua":          s.UA,
				"expires_at":  s.ExpiresAt,
				"created_at":  s.CreatedAt,
			}
		}
	}
	response.OK(c, out)
}

func (h *Handler) changePassword(c *gin.Context) {
	var dto ChangePasswordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := middleware.CurrentUserID(c)
	if err := h.svc.ChangePassword(userID, dto.OldPassword, dto.NewPassword); err != nil {
		switch {
		case errors.Is(err, errWrongPassword):
			response.ForbiddenMsg(c, "current password is wrong")
		case errors.Is(err, errPasswordSameAsOld):
			response.UnprocessableEntity(c, "new password must differ from the old one")
		default:
			response.InternalError(c, err)
		}
		return
	}
	// Other devices must sign in again with the new password.
	_ = sessionpkg.RevokeAllExcept(h.svc.db, userID, middleware.CurrentSessionID(c))
	response.NoContent(c)
}

func (h *Handler) listSessions(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	currentSessionID := middleware.CurrentSessionID(c)

	sessions, err := sessionpkg.ListActive(h.svc.db, userID)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	data := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		data = append(data, gin.H{
			"id":          s.ID,
			"device_name": s.DeviceName,
			"ua":          s.UA,
			"ip":          s.IP,
			"seen_at":     s.UpdatedAt,
			"expires_at":  s.ExpiresAt,
			"current":     s.ID == currentSessionID,
		})
	}
	response.OK(c, gin.H{"data": data})
}

func (h *Handler) revokeSession(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	sessionID := resolveSessionIDFromToken(c.Param("id"))
	if err := sessionpkg.Revoke(h.svc.db, userID, sessionID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) revokeOtherSessions(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	if err := sessionpkg.RevokeAllExcept(h.svc.db, userID, middleware.CurrentSessionID(c)); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listTokens(c *gin.Context) {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		ok, err := h.svc.VerifyTokenString(token)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		response.OK(c, ok)
		return
	}

	tokens, err := h.svc.ListTokens(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]tokenResponse, len(tokens))
	for i, t := range tokens {
		items[i] = tokenResponse{
			ID: t.ID, Name: t.Name, Token: t.Token,
			Expired: t.ExpiredAt, Created: t.CreatedAt,
		}
	}
	response.OK(c, gin.H{"data": items})
}

func (h *Handler) createToken(c *gin.Context) {
	var dto CreateTokenDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.CreateToken(middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, tokenResponse{
		ID: t.ID, Name: t.Name, Token: t.Token,
		Expired: t.ExpiredAt, Created: t.CreatedAt,
	})
}

func (h *Handler) deleteToken(c *gin.Context) {
	if err := h.svc.DeleteToken(middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.NoContent(c)
}

func (h *Handler) deleteTokenByQuery(c *gin.Context) {
	tokenID := c.Query("id")
	if tokenID == "" {
		response.BadRequest(c, "id is required")
		return
	}
	if err := h.svc.DeleteToken(middleware.CurrentUserID(c), tokenID); err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.NoContent(c)
}

func (h *Handler) isPasswordLoginDisabled() bool {
	if h.cfgSvc == nil {
		return false
	}
	cfg, err := h.cfgSvc.Get()
	if err != nil || cfg == nil {
		return false
	}
	return cfg.AuthSecurity.DisablePasswordLogin
}
