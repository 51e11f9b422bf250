package markdown

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/modules/processing/textmacro"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
)

func setupMarkdown(t *testing.T) (*gorm.DB, *appconfigs.Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.UserModel{}, &models.EntryModel{}, &models.OptionModel{}))

	cfgSvc := appconfigs.NewService(db)
	r := gin.New()
	rg := r.Group("/api/v2")
	NewHandler(db, textmacro.NewService(cfgSvc)).RegisterRoutes(rg, func(c *gin.Context) { c.Next() })
	return db, cfgSvc, r
}

func seedMarkdownOwner(t *testing.T, db *gorm.DB) *models.UserModel {
	t.Helper()
	user := &models.UserModel{
		Username:      "journaler",
		Name:          "The Journaler",
		Password:      "x",
		CurrentStreak: 5,
		Preferences:   models.UserPreferences{Timezone: "UTC"},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedMarkdownEntry(t *testing.T, db *gorm.DB, userID string, at time.Time, mutate func(*models.EntryModel)) *models.EntryModel {
	t.Helper()
	entry := &models.EntryModel{
		UserID:    userID,
		Content:   "Walked along the river before work.",
		Mood:      "calm",
		WordCount: 6,
		MintState: models.MintStateUnminted,
	}
	entry.CreatedAt = at
	if mutate != nil {
		mutate(entry)
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func TestRenderContent(t *testing.T) {
	html := RenderContent("This is **bold**.\n\n- [x] meditate\n\n||a secret||")
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, `type="checkbox"`)
	assert.Contains(t, html, `<span class="spoiler">a secret</span>`)

	assert.Empty(t, RenderContent("   "))
}

func TestRenderContentHardWraps(t *testing.T) {
	// A single newline in an entry stays a visible line break.
	assert.Contains(t, RenderContent("line one\nline two"), "<br")
}

func TestRenderContentImages(t *testing.T) {
	html := RenderContent("![!morning fog](https://example.com/fog.jpg)")
	assert.Contains(t, html, `<figure><img src="https://example.com/fog.jpg"/>`)
	assert.Contains(t, html, "<figcaption>morning fog</figcaption>")
	assert.NotContains(t, html, "<p><figure>")

	html = RenderContent("![fog](https://example.com/fog.jpg)")
	assert.Contains(t, html, `<img src="https://example.com/fog.jpg"/>`)
	assert.NotContains(t, html, "<figure>")
}

func TestRenderDocument(t *testing.T) {
	doc := RenderDocument("<p>hello</p>", DocumentOptions{
		Title: "Saturday, June 14, 2025",
		Info:  "Mood: calm",
		Theme: "night",
	})
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<title>Saturday, June 14, 2025</title>")
	assert.Contains(t, doc, "Mood: calm")
	assert.Contains(t, doc, markdownThemeNight)
	assert.NotContains(t, doc, "<script")

	doc = RenderDocument("<p>hello</p>", DocumentOptions{})
	assert.Contains(t, doc, "<title>Journal</title>")
	assert.Contains(t, doc, markdownThemePaper)
}

func TestEntryFilename(t *testing.T) {
	at := time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-14-a1b2c3d4.md", entryFilename(at, "a1b2c3d4-0000-0000-0000-000000000000"))
	assert.Equal(t, "2025-06-14-entry.md", entryFilename(at, ""))
	assert.Equal(t, "Saturday, June 14, 2025", entryHeading(at))
}

func TestEntryMarkdown(t *testing.T) {
	entry := &models.EntryModel{
		Content:       "Slept in. No regrets.",
		Mood:          "calm",
		Weather:       "rainy",
		Tags:          models.StringArray{"rest"},
		ClarityPoints: 30,
		WordCount:     4,
	}
	entry.ID = "11111111-2222-3333-4444-555555555555"
	at := time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC)

	out := entryMarkdown(entry, at, true, true)
	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, "id: 11111111-2222-3333-4444-555555555555")
	assert.Contains(t, out, "mood: calm")
	assert.Contains(t, out, "clarity_points: 30")
	assert.Contains(t, out, "# Saturday, June 14, 2025")
	assert.True(t, strings.HasSuffix(out, "Slept in. No regrets.\n"))

	out = entryMarkdown(entry, at, false, false)
	assert.Equal(t, "Slept in. No regrets.\n", out)
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, 2024, parseTime("2024-12-01").Year())
	assert.Equal(t, 14, parseTime("2025-06-14T20:00:00Z").Day())
	assert.True(t, parseTime("not a date").IsZero())
	assert.True(t, parseTime("").IsZero())
}

func TestRenderEntryEndpoint(t *testing.T) {
	db, _, r := setupMarkdown(t)
	user := seedMarkdownOwner(t, db)
	entry := seedMarkdownEntry(t, db, user.ID, time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC), func(e *models.EntryModel) {
		e.Content = "Walked along the river.\n\n||I was scared today.||"
		e.Weather = "rainy"
		e.ClarityPoints = 15
		e.WordCount = 8
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/markdown/render/"+entry.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "Saturday, June 14, 2025")
	assert.Contains(t, body, "Mood: calm")
	assert.Contains(t, body, "15 clarity points")
	assert.Contains(t, body, `<span class="spoiler">I was scared today.</span>`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/markdown/render/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenderEntryExpandsMacros(t *testing.T) {
	db, cfgSvc, r := setupMarkdown(t)
	user := seedMarkdownOwner(t, db)
	entry := seedMarkdownEntry(t, db, user.ID, time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC), func(e *models.EntryModel) {
		e.Content = "{{ $mood }} evening, day {{js streak}} of the streak"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/markdown/render/"+entry.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "calm evening, day 5 of the streak")

	// With macros off the source text renders as written.
	_, err := cfgSvc.Patch(map[string]json.RawMessage{
		"templates": json.RawMessage(`{"macros": false}`),
	})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/markdown/render/"+entry.ID, nil))
	assert.Contains(t, w.Body.String(), "{{ $mood }}")
}

func TestPreviewEndpoint(t *testing.T) {
	db, _, r := setupMarkdown(t)
	seedMarkdownOwner(t, db)

	payload := `{"md": "**Tonight:** {{ $mood }}", "mood": "hopeful", "title": "Draft"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v2/markdown/render", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<title>Draft</title>")
	assert.Contains(t, body, "<strong>Tonight:</strong> hopeful")

	req = httptest.NewRequest(http.MethodPost, "/api/v2/markdown/render", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportBundle(t *testing.T) {
	db, _, r := setupMarkdown(t)
	user := seedMarkdownOwner(t, db)
	first := seedMarkdownEntry(t, db, user.ID, time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC), func(e *models.EntryModel) {
		e.Content = "Packed for the move."
	})
	second := seedMarkdownEntry(t, db, user.ID, time.Date(2025, 6, 14, 20, 0, 0, 0, time.UTC), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/markdown/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clarity-journal-")

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		names[f.Name] = f
	}
	mayName := "2025/05/" + entryFilename(first.CreatedAt, first.ID)
	require.Contains(t, names, mayName)
	require.Contains(t, names, "2025/06/"+entryFilename(second.CreatedAt, second.ID))

	rc, err := names[mayName].Open()
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "---\n"))
	assert.Contains(t, content, "id: "+first.ID)
	assert.Contains(t, content, "Packed for the move.")

	// yaml=0&heading=1 swaps front matter for a date heading.
	req = httptest.NewRequest(http.MethodGet, "/api/v2/markdown/export?yaml=0&heading=1", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	zr, err = zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	rc, err = zr.File[0].Open()
	require.NoError(t, err)
	raw, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	content = string(raw)
	assert.True(t, strings.HasPrefix(content, "# Friday, May 30, 2025\n\n"))
	assert.NotContains(t, content, "---")
}

func TestImportEntries(t *testing.T) {
	db, _, r := setupMarkdown(t)
	user := seedMarkdownOwner(t, db)
	existing := seedMarkdownEntry(t, db, user.ID, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC), nil)

	payload := fmt.Sprintf(`{"data": [
		{"meta": {"date": "2024-12-01", "mood": "Hopeful", "tags": ["walk", "snow"]}, "text": "First snow today."},
		{"meta": {"id": %q}, "text": "Already here."},
		{"text": "   "}
	]}`, existing.ID)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/markdown/import", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["imported"])
	assert.Equal(t, float64(2), body["skipped"])

	var imported models.EntryModel
	require.NoError(t, db.First(&imported, "mood = ?", "hopeful").Error)
	assert.Equal(t, 2024, imported.CreatedAt.Year())
	assert.Equal(t, models.StringArray{"walk", "snow"}, imported.Tags)
	assert.Equal(t, 3, imported.WordCount)
	assert.Zero(t, imported.ClarityPoints)
	assert.False(t, imported.IsSynced)
}

func TestImportRequiresOwner(t *testing.T) {
	_, _, r := setupMarkdown(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/markdown/import", strings.NewReader(`{"data": [{"text": "hello"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
