package markdown

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clarity-app/core/internal/models"
)

// parseBool converts common truthy query-string values to bool.
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// chooseFirstNonEmpty returns primary when non-blank, otherwise fallback.
func chooseFirstNonEmpty(primary, fallback string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return fallback
}

// entryFilename builds the .md filename for an exported entry. Files sort
// chronologically; the ID prefix keeps two entries on one day apart.
func entryFilename(at time.Time, id string) string {
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		suffix = "entry"
	}
	return at.Format("2006-01-02") + "-" + suffix + ".md"
}

// entryHeading renders the date line used as an entry's display title.
func entryHeading(at time.Time) string {
	return at.Format("Monday, January 2, 2006")
}

// entryFrontMatter is the YAML header of an exported entry.
type entryFrontMatter struct {
	ID            string   `yaml:"id"`
	Date          string   `yaml:"date"`
	Mood          string   `yaml:"mood,omitempty"`
	Weather       string   `yaml:"weather,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
	ClarityPoints int      `yaml:"clarity_points"`
	WordCount     int      `yaml:"word_count"`
	Minted        bool     `yaml:"minted,omitempty"`
}

// entryMarkdown assembles the exported document for a single entry. at is
// the entry's creation time shifted into the owner's location.
func entryMarkdown(entry *models.EntryModel, at time.Time, withFrontMatter, withHeading bool) string {
	var sb strings.Builder
	if withFrontMatter {
		header := entryFrontMatter{
			ID:            entry.ID,
			Date:          at.Format(time.RFC3339),
			Mood:          entry.Mood,
			Weather:       entry.Weather,
			Tags:          []string(entry.Tags),
			ClarityPoints: entry.ClarityPoints,
			WordCount:     entry.WordCount,
			Minted:        entry.IsMinted,
		}
		yamlText, _ := yaml.Marshal(&header)
		sb.WriteString("---\n")
		sb.WriteString(strings.TrimSpace(string(yamlText)))
		sb.WriteString("\n---\n\n")
	}
	if withHeading {
		sb.WriteString("# ")
		sb.WriteString(entryHeading(at))
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(entry.Content))
	sb.WriteString("\n")
	return sb.String()
}

// parseMetaDate resolves an imported entry's creation time, defaulting to now.
func parseMetaDate(meta *importMeta, now time.Time) time.Time {
	if meta == nil {
		return now
	}
	if parsed := parseTime(meta.Date); !parsed.IsZero() {
		return parsed
	}
	return now
}

// parseTime attempts several common date/time layouts.
func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// userLocation resolves the owner's display timezone, falling back to UTC.
func userLocation(user *models.UserModel) *time.Location {
	if user == nil || user.Preferences.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(user.Preferences.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
