package mint

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/clarity-app/core/internal/models"
)

const (
	metadataSymbol   = "CLRTY"
	previewRuneLimit = 140
)

// Attribute is one trait on the NFT metadata document.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// Metadata follows the Metaplex token metadata layout the mobile client
// renders in its gallery.
type Metadata struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
	Properties  struct {
		Category string `json:"category"`
	} `json:"properties"`
}

// BuildMetadata derives the metadata document from the entry alone, so
// rebuilding it for the same entry always produces identical bytes.
func BuildMetadata(entry *models.EntryModel) Metadata {
	created := entry.CreatedAt.UTC()

	md := Metadata{
		Name:        "Clarity Entry - " + created.Format("Jan 2, 2006"),
		Symbol:      metadataSymbol,
		Description: contentPreview(entry.Content),
		Attributes: []Attribute{
			{TraitType: "Mood", Value: moodOrUntracked(entry.Mood)},
			{TraitType: "Clarity Points", Value: entry.ClarityPoints},
			{TraitType: "Word Count", Value: entry.WordCount},
			{TraitType: "Created", Value: created.Format(time.DateOnly)},
		},
	}
	md.Properties.Category = "journal"
	return md
}

// EncodeMetadata marshals the document. Struct field order keeps the
// encoding stable.
func EncodeMetadata(md Metadata) ([]byte, error) {
	return json.Marshal(md)
}

// metadataKey is the object key the document is uploaded under. One key
// per entry: retrying an interrupted mint overwrites, never duplicates.
func metadataKey(entryID string) string {
	return "nft-metadata/" + entryID + ".json"
}

// contentPreview collapses whitespace and truncates on a rune boundary so
// multibyte content never gets cut mid-character.
func contentPreview(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) <= previewRuneLimit {
		return collapsed
	}
	return string(runes[:previewRuneLimit]) + "..."
}

func moodOrUntracked(mood string) string {
	if mood == "" {
		return "untracked"
	}
	return mood
}
