// Package authn implements passkey registration and sign-in for the
// owner account on top of go-webauthn. Ceremony state lives in Redis so
// Begin and Finish may land on different instances.
package authn

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
	"github.com/clarity-app/core/internal/pkg/response"
	sessionpkg "github.com/clarity-app/core/internal/pkg/session"
)

const (
	rpDisplayName = "Clarity"

	redisKeyRegistration = "clarity:authn:registration:"
	redisKeyLogin        = "clarity:authn:login"
	ceremonyTTL          = 5 * time.Minute
)

type Handler struct {
	db     *gorm.DB
	cfgSvc *appconfigs.Service
	rc     *pkgredis.Client
}

func NewHandler(db *gorm.DB, cfgSvc *appconfigs.Service, rc *pkgredis.Client) *Handler {
	return &Handler{db: db, cfgSvc: cfgSvc, rc: rc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/passkey")
	g.POST("/register", authMW, h.registerOptions)
	g.POST("/register/verify", authMW, h.registerVerify)
	g.POST("/authentication", h.loginOptions)
	g.POST("/authentication/verify", h.loginVerify)
	g.GET("/items", authMW, h.listItems)
	g.DELETE("/items/:id", authMW, h.deleteItem)
}

// webauthnUser adapts the owner row plus stored credentials to the
// webauthn.User interface.
type webauthnUser struct {
	user  *models.UserModel
	creds []webauthn.Credential
}

func (u webauthnUser) WebAuthnID() []byte { return []byte(u.user.ID) }

func (u webauthnUser) WebAuthnName() string { return u.user.Username }

func (u webauthnUser) WebAuthnDisplayName() string {
	if strings.TrimSpace(u.user.Name) != "" {
		return u.user.Name
	}
	return u.user.Username
}

func (u webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (h *Handler) registerOptions(c *gin.Context) {
	wa, err := h.webAuthn(c)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	owner, err := h.owner()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if owner == nil {
		response.NotFoundMsg(c, "no owner is registered yet")
		return
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(owner.creds))
	for _, cred := range owner.creds {
		exclusions = append(exclusions, cred.Descriptor())
	}

	creation, session, err := wa.BeginRegistration(*owner,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationPreferred,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if err := h.storeSession(c, redisKeyRegistration+owner.user.ID, session); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, creation.Response)
}

func (h *Handler) registerVerify(c *gin.Context) {
	wa, err := h.webAuthn(c)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	owner, err := h.owner()
	if err != nil || owner == nil {
		response.InternalError(c, err)
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	session, err := h.takeSession(c, redisKeyRegistration+owner.user.ID)
	if err != nil {
		response.BadRequest(c, "no registration ceremony in progress")
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(raw))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cred, err := wa.CreateCredential(*owner, *session, parsed)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// The client may tuck a display name for the passkey next to the
	// credential fields.
	var extra struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &extra)
	name := strings.TrimSpace(extra.Name)
	if name == "" {
		name = "Passkey"
	}

	item := models.AuthnModel{
		Name:                 h.ensureUniqueName(name),
		CredentialID:         cred.ID,
		CredentialPublicKey:  cred.PublicKey,
		Counter:              cred.Authenticator.SignCount,
		CredentialDeviceType: deviceType(cred.Flags.BackupEligible),
		CredentialBackedUp:   cred.Flags.BackupState,
	}
	if err := h.db.Create(&item).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"verified": true})
}

func (h *Handler) loginOptions(c *gin.Context) {
	wa, err := h.webAuthn(c)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	owner, err := h.owner()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if owner == nil || len(owner.creds) == 0 {
		response.NotFoundMsg(c, "no passkey is registered")
		return
	}

	assertion, session, err := wa.BeginLogin(*owner)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if err := h.storeSession(c, redisKeyLogin, session); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, assertion.Response)
}

func (h *Handler) loginVerify(c *gin.Context) {
	wa, err := h.webAuthn(c)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	owner, err := h.owner()
	if err != nil || owner == nil {
		response.InternalError(c, err)
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	session, err := h.takeSession(c, redisKeyLogin)
	if err != nil {
		response.BadRequest(c, "no sign-in ceremony in progress")
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(raw))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cred, err := wa.ValidateLogin(*owner, *session, parsed)
	if err != nil {
		response.ForbiddenMsg(c, "passkey verification failed")
		return
	}
	if cred.Authenticator.CloneWarning {
		response.ForbiddenMsg(c, "credential sign counter went backwards")
		return
	}

	_ = h.db.Model(&models.AuthnModel{}).
		Where("credential_id = ?", cred.ID).
		Updates(map[string]interface{}{
			"counter":              cred.Authenticator.SignCount,
			"credential_backed_up": cred.Flags.BackupState,
		}).Error

	// {test: true} verifies a passkey without opening a session.
	var probe struct {
		Test bool `json:"test"`
	}
	_ = json.Unmarshal(raw, &probe)

	res := gin.H{"verified": true}
	if !probe.Test {
		token, _, err := sessionpkg.Issue(h.db, owner.user.ID, c.ClientIP(), c.Request.UserAgent(), sessionpkg.DefaultTTL)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		res["token"] = token
	}
	response.OK(c, res)
}

func (h *Handler) listItems(c *gin.Context) {
	var items []models.AuthnModel
	if err := h.db.Order("created_at DESC").Find(&items).Error; err != nil {
		response.InternalError(c, err)
		return
	}

	out := make([]gin.H, 0, len(items))
	for _, item := range items {
		out = append(out, gin.H{
			"id":            item.ID,
			"name":          item.Name,
			"credential_id": base64.RawURLEncoding.EncodeToString(item.CredentialID),
			"device_type":   item.CredentialDeviceType,
			"backed_up":     item.CredentialBackedUp,
			"counter":       item.Counter,
			"created":       item.CreatedAt,
		})
	}
	response.OK(c, out)
}

func (h *Handler) deleteItem(c *gin.Context) {
	res := h.db.Delete(&models.AuthnModel{}, "id = ?", c.Param("id"))
	if res.Error != nil {
		response.InternalError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		response.NotFoundMsg(c, "passkey not found")
		return
	}
	response.NoContent(c)
}

func (h *Handler) owner() (*webauthnUser, error) {
	var u models.UserModel
	if err := h.db.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var items []models.AuthnModel
	if err := h.db.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	creds := make([]webauthn.Credential, 0, len(items))
	for _, item := range items {
		creds = append(creds, webauthn.Credential{
			ID:        item.CredentialID,
			PublicKey: item.CredentialPublicKey,
			Flags: webauthn.CredentialFlags{
				BackupEligible: item.CredentialDeviceType == "multiDevice",
				BackupState:    item.CredentialBackedUp,
			},
			Authenticator: webauthn.Authenticator{
				SignCount: item.Counter,
			},
		})
	}
	return &webauthnUser{user: &u, creds: creds}, nil
}

func (h *Handler) webAuthn(c *gin.Context) (*webauthn.WebAuthn, error) {
	rpID, origins := h.relyingParty(c)
	return webauthn.New(&webauthn.Config{
		RPDisplayName: rpDisplayName,
		RPID:          rpID,
		RPOrigins:     origins,
	})
}

// relyingParty derives the RP id and allowed origins from the request
// origin first and the configured web URL second.
func (h *Handler) relyingParty(c *gin.Context) (string, []string) {
	rpID := ""
	origins := make([]string, 0, 2)

	if origin := strings.TrimSpace(c.GetHeader("Origin")); origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
			rpID = u.Hostname()
			origins = append(origins, u.Scheme+"://"+u.Host)
		}
	}

	if h.cfgSvc != nil {
		if cfg, err := h.cfgSvc.Get(); err == nil && cfg != nil {
			if u, err := url.Parse(strings.TrimSpace(cfg.App.WebURL)); err == nil && u.Hostname() != "" {
				if rpID == "" {
					rpID = u.Hostname()
				}
				origins = appendUniqueOrigin(origins, u.Scheme+"://"+u.Host)
			}
		}
	}

	if rpID == "" {
		host := c.Request.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		if host == "" {
			host = "localhost"
		}
		rpID = host
		origins = appendUniqueOrigin(origins, "http://"+c.Request.Host)
	}
	return rpID, origins
}

func appendUniqueOrigin(origins []string, origin string) []string {
	for _, o := range origins {
		if strings.EqualFold(o, origin) {
			return origins
		}
	}
	return append(origins, origin)
}

func (h *Handler) storeSession(c *gin.Context, key string, session *webauthn.SessionData) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return h.rc.Set(c.Request.Context(), key, string(raw), ceremonyTTL)
}

// takeSession loads and deletes the ceremony state; every challenge is
// good for one Finish call.
func (h *Handler) takeSession(c *gin.Context, key string) (*webauthn.SessionData, error) {
	raw, err := h.rc.Get(c.Request.Context(), key)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("ceremony not found")
	}
	_ = h.rc.Del(c.Request.Context(), key)

	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (h *Handler) ensureUniqueName(base string) string {
	name := base
	for i := 1; i < 1000; i++ {
		var count int64
		_ = h.db.Model(&models.AuthnModel{}).Where("name = ?", name).Count(&count).Error
		if count == 0 {
			return name
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%d", base, time.Now().UnixMilli())
}

func deviceType(backupEligible bool) string {
	if backupEligible {
		return "multiDevice"
	}
	return "singleDevice"
}
