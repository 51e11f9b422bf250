package models

// PromptModel is a writing prompt the client can offer when an entry
// starts from a blank page. Prompts are app content rather than journal
// data: they are global, never synced to the cloud mirror, and never feed
// the points ledger.
type PromptModel struct {
	Base
	Text     string `json:"text"     gorm:"type:text;not null"`
	Category string `json:"category" gorm:"index"`
	Source   string `json:"source"`
}

func (PromptModel) TableName() string { return "prompts" }
