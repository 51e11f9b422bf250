package journal

import "time"

// CreateEntryDTO is the payload for writing a new journal entry.
type CreateEntryDTO struct {
	Content string   `json:"content" binding:"required"`
	Mood    string   `json:"mood"`
	Weather string   `json:"weather"`
	Tags    []string `json:"tags"`
}

// UpdateEntryDTO carries a partial edit. Nil fields are left untouched.
type UpdateEntryDTO struct {
	Content *string   `json:"content"`
	Mood    *string   `json:"mood"`
	Weather *string   `json:"weather"`
	Tags    *[]string `json:"tags"`
}

// SyncFailure records one entry the sweep could not push to the mirror.
type SyncFailure struct {
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

// SyncReport summarizes one syncToCloud sweep. The sweep itself never
// fails because the mirror is unreachable; the report says what happened.
type SyncReport struct {
	Pending    int           `json:"pending"`
	Synced     int           `json:"synced"`
	Failed     int           `json:"failed"`
	Offline    bool          `json:"offline"`
	DurationMS int64         `json:"duration_ms"`
	FinishedAt time.Time     `json:"finished_at"`
	Failures   []SyncFailure `json:"failures,omitempty"`
}

// SyncStatusDTO is the live view the client polls between sweeps.
type SyncStatusDTO struct {
	IsOnline     bool       `json:"is_online"`
	Syncing      bool       `json:"syncing"`
	PendingSync  int64      `json:"pending_sync"`
	LastSyncTime *time.Time `json:"last_sync_time"`
}
