// Package init_ serves the first-launch setup flow: the app polls
// /init until an owner exists, seeds config sections before any auth is
// possible, and can restore a previous installation from a backup.
package init_

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/modules/storage/backup"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/pkg/response"
)

type Handler struct {
	db     *gorm.DB
	cfgSvc *appconfigs.Service
}

func NewHandler(db *gorm.DB, cfgSvc *appconfigs.Service) *Handler {
	return &Handler{db: db, cfgSvc: cfgSvc}
}

// Every route here is unauthenticated and locks itself once an owner
// exists.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/init")

	g.GET("", h.checkInit)
	g.GET("/configs/default", h.defaultConfigs)
	g.PATCH("/configs/:key", h.patchConfigKey)
	g.POST("/restore", h.restore)
}

func isInitialized(db *gorm.DB) bool {
	var count int64
	db.Table("users").Count(&count)
	return count > 0
}

// GET /init
func (h *Handler) checkInit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isInit": isInitialized(h.db)})
}

// GET /init/configs/default
func (h *Handler) defaultConfigs(c *gin.Context) {
	if isInitialized(h.db) {
		response.ForbiddenMsg(c, "this journal is already set up")
		return
	}
	defaults := config.DefaultFullConfig()
	response.OK(c, defaults)
}

// PATCH /init/configs/:key
func (h *Handler) patchConfigKey(c *gin.Context) {
	if isInitialized(h.db) {
		response.ForbiddenMsg(c, "this journal is already set up")
		return
	}
	key := c.Param("key")
	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.cfgSvc.Patch(map[string]json.RawMessage{key: body})
	if err != nil {
		response.InternalError(c, err)
		return
	}

	full, _ := json.Marshal(updated)
	var m map[string]json.RawMessage
	_ = json.Unmarshal(full, &m)
	if val, ok := m[key]; ok {
		var result interface{}
		_ = json.Unmarshal(val, &result)
		response.OK(c, result)
		return
	}
	response.OK(c, updated)
}

// POST /init/restore brings an old installation (or a mongodump of the
// old cloud database) into this one before the owner account is created.
func (h *Handler) restore(c *gin.Context) {
	if isInitialized(h.db) {
		response.ForbiddenMsg(c, "this journal is already set up")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		response.BadRequest(c, "invalid zip file")
		return
	}

	if err := backup.RestoreFromZip(h.db, zr); err != nil {
		response.InternalError(c, err)
		return
	}
	if h.cfgSvc != nil {
		h.cfgSvc.Invalidate()
	}

	response.OK(c, gin.H{"message": "restore successful"})
}
