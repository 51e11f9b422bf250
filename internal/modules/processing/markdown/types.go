package markdown

// importDTO is the request body for POST /markdown/import.
type importDTO struct {
	Data []importItem `json:"data" binding:"required"`
}

type importItem struct {
	Meta *importMeta `json:"meta"`
	Text string      `json:"text" binding:"required"`
}

// importMeta mirrors the front matter the export bundle writes, so an
// exported journal can be imported back without edits.
type importMeta struct {
	ID      string   `json:"id"`
	Date    string   `json:"date"`
	Mood    string   `json:"mood"`
	Weather string   `json:"weather"`
	Tags    []string `json:"tags"`
}
