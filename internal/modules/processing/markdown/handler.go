package markdown

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/processing/textmacro"
	"github.com/clarity-app/core/internal/modules/rewards/ledger"
	"github.com/clarity-app/core/internal/pkg/response"
)

// Handler serves entry rendering and the markdown import/export bundle.
type Handler struct {
	db     *gorm.DB
	macros *textmacro.Service
}

func NewHandler(db *gorm.DB, macros *textmacro.Service) *Handler {
	return &Handler{db: db, macros: macros}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/markdown", authMW)
	g.GET("/render/:id", h.renderEntry)
	g.POST("/render", h.preview)
	g.GET("/export", h.export)
	g.POST("/import", h.importEntries)
}

// owner returns the journal owner row, or nil before setup.
func (h *Handler) owner() *models.UserModel {
	var user models.UserModel
	if err := h.db.First(&user).Error; err != nil {
		return nil
	}
	return &user
}

// expand runs template macros over text when the macros option is on.
func (h *Handler) expand(text string, owner *models.UserModel, at time.Time, mood, weather string) string {
	if h.macros == nil || !h.macros.Enabled() {
		return text
	}
	return textmacro.Expand(text, textmacro.EntryFields(owner, at, mood, weather))
}

// GET /markdown/render/:id?theme=night — one entry as a standalone HTML page.
func (h *Handler) renderEntry(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.NotFound(c)
		return
	}

	var entry models.EntryModel
	if err := h.db.First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}

	owner := h.owner()
	at := entry.CreatedAt.In(userLocation(owner))
	text := h.expand(entry.Content, owner, at, entry.Mood, entry.Weather)

	options := DocumentOptions{
		Title: entryHeading(at),
		Info:  entryInfoLine(&entry),
		Theme: c.Query("theme"),
	}
	if entry.IsMinted && entry.NFTAddress != "" {
		options.Footer = "Minted on Solana · " + entry.NFTAddress
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, RenderDocument(RenderContent(text), options))
}

type previewDTO struct {
	MD      string `json:"md" binding:"required"`
	Title   string `json:"title"`
	Mood    string `json:"mood"`
	Weather string `json:"weather"`
	Theme   string `json:"theme"`
}

// POST /markdown/render — composer preview, macros expanded when enabled.
func (h *Handler) preview(c *gin.Context) {
	var dto previewDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	owner := h.owner()
	now := time.Now().In(userLocation(owner))
	text := h.expand(dto.MD, owner, now, dto.Mood, dto.Weather)

	options := DocumentOptions{
		Title: chooseFirstNonEmpty(dto.Title, entryHeading(now)),
		Theme: dto.Theme,
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, RenderDocument(RenderContent(text), options))
}

// GET /markdown/export?yaml=true&heading=false — zip bundle of every entry,
// one .md file per entry under year/month directories.
func (h *Handler) export(c *gin.Context) {
	withFrontMatter := true
	if raw := c.Query("yaml"); raw != "" {
		withFrontMatter = parseBool(raw)
	}
	withHeading := parseBool(c.Query("heading"))

	var entries []models.EntryModel
	if err := h.db.Order("created_at ASC").Find(&entries).Error; err != nil {
		response.InternalError(c, err)
		return
	}

	loc := userLocation(h.owner())

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for i := range entries {
		entry := &entries[i]
		at := entry.CreatedAt.In(loc)
		name := fmt.Sprintf("%04d/%02d/%s", at.Year(), int(at.Month()), entryFilename(at, entry.ID))
		f, err := w.Create(name)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		if _, err := f.Write([]byte(entryMarkdown(entry, at, withFrontMatter, withHeading))); err != nil {
			response.InternalError(c, err)
			return
		}
	}
	if err := w.Close(); err != nil {
		response.InternalError(c, err)
		return
	}

	filename := fmt.Sprintf("clarity-journal-%s.zip", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// POST /markdown/import — create entries from exported or hand-written
// markdown. Imported entries keep their original dates, carry no clarity
// points, and are queued for cloud sync like any other local write.
func (h *Handler) importEntries(c *gin.Context) {
	var dto importDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var user models.UserModel
	if err := h.db.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFoundMsg(c, "this journal is not set up yet")
			return
		}
		response.InternalError(c, err)
		return
	}

	now := time.Now()
	imported, skipped := 0, 0
	for _, item := range dto.Data {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			skipped++
			continue
		}

		if item.Meta != nil && item.Meta.ID != "" {
			var count int64
			h.db.Model(&models.EntryModel{}).Where("id = ?", item.Meta.ID).Count(&count)
			if count > 0 {
				skipped++
				continue
			}
		}

		entry := models.EntryModel{
			UserID:    user.ID,
			Content:   text,
			WordCount: ledger.WordCount(text),
			MintState: models.MintStateUnminted,
		}
		entry.CreatedAt = parseMetaDate(item.Meta, now)
		if item.Meta != nil {
			entry.ID = item.Meta.ID
			entry.Mood = strings.ToLower(strings.TrimSpace(item.Meta.Mood))
			entry.Weather = strings.TrimSpace(item.Meta.Weather)
			if len(item.Meta.Tags) > 0 {
				entry.Tags = models.StringArray(item.Meta.Tags)
			}
		}

		if err := h.db.Create(&entry).Error; err != nil {
			skipped++
			continue
		}
		imported++
	}

	response.OK(c, gin.H{"imported": imported, "skipped": skipped})
}

// entryInfoLine summarizes an entry for the rendered page header.
func entryInfoLine(entry *models.EntryModel) string {
	parts := make([]string, 0, 4)
	if entry.Mood != "" {
		parts = append(parts, "Mood: "+entry.Mood)
	}
	if entry.Weather != "" {
		parts = append(parts, "Weather: "+entry.Weather)
	}
	parts = append(parts, fmt.Sprintf("%d words", entry.WordCount))
	if entry.ClarityPoints > 0 {
		parts = append(parts, fmt.Sprintf("%d clarity points", entry.ClarityPoints))
	}
	return strings.Join(parts, " · ")
}
