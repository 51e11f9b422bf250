package models

// EntryInsightModel caches AI-generated reflections per entry revision.
// Hash covers the entry content + mood so an edit invalidates the insight.
type EntryInsightModel struct {
	Base
	Hash     string `json:"hash"     gorm:"uniqueIndex;not null"`
	EntryID  string `json:"entry_id" gorm:"index;not null"`
	Provider string `json:"provider"`
	Content  string `json:"content"  gorm:"type:text;not null"`
}

func (EntryInsightModel) TableName() string { return "entry_insights" }
