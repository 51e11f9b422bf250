package webhook

import (
	"time"

	"github.com/clarity-app/core/internal/modules/gateway/notify"
)

// CreateWebhookDTO is the request body for registering a webhook.
// A blank secret gets a random one generated server-side.
type CreateWebhookDTO struct {
	PayloadURL string   `json:"payloadUrl" binding:"required,url"`
	Events     []string `json:"events"      binding:"required,min=1"`
	Enabled    *bool    `json:"enabled"`
	Secret     string   `json:"secret"`
}

// UpdateWebhookDTO is the request body for updating a webhook.
type UpdateWebhookDTO struct {
	PayloadURL *string  `json:"payloadUrl"`
	Events     []string `json:"events"`
	Enabled    *bool    `json:"enabled"`
	Secret     *string  `json:"secret"`
}

// webhookResponse is the outbound representation of a webhook (no secret).
type webhookResponse struct {
	ID         string    `json:"id"`
	PayloadURL string    `json:"payloadUrl"`
	Events     []string  `json:"events"`
	Enabled    bool      `json:"enabled"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// webhookEventEnum is the canonical list of subscribable event names. It
// mirrors what the realtime gateway emits; a hook subscribed to "all"
// receives every one of them.
var webhookEventEnum = []string{
	notify.EventEntryCreate,
	notify.EventEntryUpdate,
	notify.EventEntryDelete,
	notify.EventSyncComplete,
	notify.EventMintStart,
	notify.EventMintSuccess,
	notify.EventMintFail,
	notify.EventUserUpdate,
	notify.EventStreakUpdate,
}

var acceptedWebhookEvents = func() map[string]struct{} {
	out := make(map[string]struct{}, len(webhookEventEnum))
	for _, event := range webhookEventEnum {
		out[event] = struct{}{}
	}
	return out
}()
