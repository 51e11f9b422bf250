package mint

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-app/core/internal/models"
)

func metadataEntry() *models.EntryModel {
	entry := &models.EntryModel{
		Content:       "I am grateful today",
		Mood:          "grateful",
		ClarityPoints: 30,
		WordCount:     4,
	}
	entry.ID = "entry-1"
	entry.CreatedAt = time.Date(2025, 6, 14, 23, 30, 0, 0, time.FixedZone("JST", 9*3600))
	return entry
}

func TestBuildMetadataIsDeterministic(t *testing.T) {
	entry := metadataEntry()

	first, err := EncodeMetadata(BuildMetadata(entry))
	require.NoError(t, err)
	second, err := EncodeMetadata(BuildMetadata(entry))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildMetadataFields(t *testing.T) {
	md := BuildMetadata(metadataEntry())

	// 23:30 JST is 14:30 UTC the same day; the title uses the UTC date.
	assert.Equal(t, "Clarity Entry - Jun 14, 2025", md.Name)
	assert.Equal(t, metadataSymbol, md.Symbol)
	assert.Equal(t, "I am grateful today", md.Description)
	assert.Equal(t, "journal", md.Properties.Category)

	byTrait := map[string]interface{}{}
	for _, a := range md.Attributes {
		byTrait[a.TraitType] = a.Value
	}
	assert.Equal(t, "grateful", byTrait["Mood"])
	assert.Equal(t, 30, byTrait["Clarity Points"])
	assert.Equal(t, 4, byTrait["Word Count"])
	assert.Equal(t, "2025-06-14", byTrait["Created"])
}

func TestBuildMetadataUntrackedMood(t *testing.T) {
	entry := metadataEntry()
	entry.Mood = ""

	md := BuildMetadata(entry)
	for _, a := range md.Attributes {
		if a.TraitType == "Mood" {
			assert.Equal(t, "untracked", a.Value)
			return
		}
	}
	t.Fatal("mood attribute missing")
}

func TestContentPreviewTruncation(t *testing.T) {
	t.Run("short content passes through with whitespace collapsed", func(t *testing.T) {
		assert.Equal(t, "a few words", contentPreview("  a \n few\t words "))
	})

	t.Run("long content truncates on a rune boundary", func(t *testing.T) {
		long := strings.Repeat("秋", previewRuneLimit+25)
		preview := contentPreview(long)
		assert.Equal(t, previewRuneLimit+3, len([]rune(preview)))
		assert.True(t, strings.HasSuffix(preview, "..."))
		assert.NotContains(t, preview, "�")
	})

	t.Run("exactly at the limit is untouched", func(t *testing.T) {
		exact := strings.Repeat("x", previewRuneLimit)
		assert.Equal(t, exact, contentPreview(exact))
	})
}
