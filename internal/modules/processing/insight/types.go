package insight

// InsightPayload is the queued payload for one reflection generation.
// Hash pins the entry revision the task was queued for.
type InsightPayload struct {
	EntryID string `json:"entry_id"`
	Hash    string `json:"hash"`
}

type generateInsightDTO struct {
	EntryID string `json:"entryId" binding:"required"`
}

type updateInsightDTO struct {
	Content string `json:"content" binding:"required"`
}

// modelInfo is one model from a provider's listing API.
type modelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Created int64  `json:"created,omitempty"`
}

type providerModelsResponse struct {
	ProviderID   string      `json:"providerId"`
	ProviderName string      `json:"providerName"`
	ProviderType string      `json:"providerType"`
	Models       []modelInfo `json:"models"`
	Error        string      `json:"error,omitempty"`
}

type fetchModelsDTO struct {
	ProviderID string `json:"providerId"`
	Type       string `json:"type"`
	APIKey     string `json:"apiKey"`
	Endpoint   string `json:"endpoint"`
}

type testConnectionDTO struct {
	ProviderID string `json:"providerId"`
	Type       string `json:"type"`
	APIKey     string `json:"apiKey"`
	Endpoint   string `json:"endpoint"`
	Model      string `json:"model"`
}
