// Package webhook delivers gateway events to user-registered HTTP
// endpoints. Deliveries are signed with the hook's secret and logged to
// webhook_events so failed ones can be inspected and redispatched. The
// widget and automation integrations (shortcuts, home-screen widgets
// backed by third-party services) consume these instead of holding a
// socket open.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/apperr"
	"github.com/clarity-app/core/internal/pkg/pagination"
	"github.com/clarity-app/core/internal/pkg/response"
)

const deliverTimeout = 10 * time.Second

// Service handles webhook CRUD and delivery.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) List() ([]models.WebhookModel, error) {
	var items []models.WebhookModel
	return items, s.db.Order("created_at DESC").Find(&items).Error
}

func (s *Service) GetByID(id string) (*models.WebhookModel, error) {
	var w models.WebhookModel
	if err := s.db.First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func (s *Service) Create(dto *CreateWebhookDTO) (*models.WebhookModel, error) {
	events := normalizeWebhookEvents(dto.Events)
	if len(events) == 0 {
		return nil, apperr.Validation("WEBHOOK_EVENTS_EMPTY", "no recognized events to subscribe to")
	}

	secret := strings.TrimSpace(dto.Secret)
	if secret == "" {
		buf := make([]byte, 20)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
	}

	w := models.WebhookModel{
		PayloadURL: dto.PayloadURL,
		Events:     events,
		Secret:     secret,
		Enabled:    true,
	}
	if dto.Enabled != nil {
		w.Enabled = *dto.Enabled
	}
	return &w, s.db.Create(&w).Error
}

func (s *Service) Update(id string, dto *UpdateWebhookDTO) (*models.WebhookModel, error) {
	w, err := s.GetByID(id)
	if err != nil || w == nil {
		return w, err
	}
	updates := map[string]interface{}{}
	if dto.PayloadURL != nil {
		updates["payload_url"] = *dto.PayloadURL
	}
	if dto.Events != nil {
		events := normalizeWebhookEvents(dto.Events)
		if len(events) == 0 {
			return nil, apperr.Validation("WEBHOOK_EVENTS_EMPTY", "no recognized events to subscribe to")
		}
		updates["events"] = events
	}
	if dto.Enabled != nil {
		updates["enabled"] = *dto.Enabled
	}
	if dto.Secret != nil {
		updates["secret"] = strings.TrimSpace(*dto.Secret)
	}
	return w, s.db.Model(w).Updates(updates).Error
}

// Delete removes the hook together with its delivery log.
func (s *Service) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hook_id = ?", id).Delete(&models.WebhookEventModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.WebhookModel{}, "id = ?", id).Error
	})
}

// Dispatch fans an event out to every enabled hook subscribed to it.
// Deliveries run in their own goroutines; outcomes land in the event log,
// never on the caller. Safe on a nil receiver so the notify service can
// run without a webhook store wired.
func (s *Service) Dispatch(event string, payload interface{}) {
	if s == nil {
		return
	}
	var hooks []models.WebhookModel
	if err := s.db.Where("enabled = ?", true).Find(&hooks).Error; err != nil {
		return
	}
	for _, hook := range hooks {
		if !webhookContainsEvent(hook.Events, event) {
			continue
		}
		go s.deliver(hook, event, payload)
	}
}

// deliver POSTs one signed envelope to one hook. The body carries the
// event name and emission time alongside the data so receivers can order
// and deduplicate without trusting transport timing.
func (s *Service) deliver(hook models.WebhookModel, event string, payload interface{}) {
	ts := s.now().UnixMilli()
	envelope := map[string]interface{}{
		"event":     event,
		"timestamp": ts,
		"data":      payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		s.logEvent(hook.ID, event, nil, envelope, nil, false, 0, err.Error())
		return
	}

	headers := map[string]string{
		"X-Clarity-Event":         event,
		"X-Clarity-Hook-Id":       hook.ID,
		"X-Clarity-Timestamp":     strconv.FormatInt(ts, 10),
		"X-Clarity-Signature":     signWithHash(sha1.New, hook.Secret, body),
		"X-Clarity-Signature-256": signWithHash(sha256.New, hook.Secret, body),
	}

	req, err := http.NewRequest(http.MethodPost, hook.PayloadURL, bytes.NewReader(body))
	if err != nil {
		s.logEvent(hook.ID, event, headers, envelope, nil, false, 0, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: deliverTimeout}
	resp, err := client.Do(req)
	if err != nil {
		s.logEvent(hook.ID, event, headers, envelope, nil, false, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	s.logEvent(hook.ID, event, headers, envelope, map[string]interface{}{
		"status": resp.Status,
		"data":   parseJSONOrString(respBody),
	}, resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode, "")
}

func (s *Service) logEvent(hookID, event string, headers map[string]string, envelope, respData map[string]interface{}, success bool, status int, errMsg string) {
	headerLog := make(map[string]interface{}, len(headers))
	for k, v := range headers {
		headerLog[k] = v
	}
	if errMsg != "" {
		respData = map[string]interface{}{"error": errMsg}
	}
	s.db.Create(&models.WebhookEventModel{
		HookID:    hookID,
		Event:     event,
		Headers:   headerLog,
		Payload:   envelope,
		Response:  respData,
		Success:   success,
		Status:    status,
		Timestamp: s.now(),
	})
}

func (s *Service) ListEvents(q pagination.Query, hookID *string) ([]models.WebhookEventModel, response.Pagination, error) {
	tx := s.db.Model(&models.WebhookEventModel{}).Order("timestamp DESC")
	if hookID != nil {
		tx = tx.Where("hook_id = ?", *hookID)
	}
	var items []models.WebhookEventModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetEventByID(id string) (*models.WebhookEventModel, error) {
	var item models.WebhookEventModel
	if err := s.db.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// Redispatch replays a logged delivery against its hook. The stored
// envelope keeps the original data; the replay gets a fresh timestamp
// and signature.
func (s *Service) Redispatch(eventID string) error {
	event, err := s.GetEventByID(eventID)
	if err != nil {
		return err
	}
	if event == nil {
		return apperr.NotFound("WEBHOOK_EVENT_NOT_FOUND", "webhook event", eventID)
	}
	hook, err := s.GetByID(event.HookID)
	if err != nil {
		return err
	}
	if hook == nil {
		return apperr.NotFound("WEBHOOK_NOT_FOUND", "webhook", event.HookID)
	}
	if !hook.Enabled {
		return apperr.Validation("WEBHOOK_DISABLED", "hook is disabled, enable it before redispatching")
	}
	go s.deliver(*hook, event.Event, event.Payload["data"])
	return nil
}

func (s *Service) ClearEventsByHookID(hookID string) error {
	return s.db.Where("hook_id = ?", hookID).Delete(&models.WebhookEventModel{}).Error
}

// normalizeWebhookEvents deduplicates events, uppercases them, and drops
// anything outside the accepted set. The special value "all" short-circuits.
func normalizeWebhookEvents(events []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(events))
	for _, event := range events {
		next := strings.TrimSpace(event)
		if next == "" {
			continue
		}
		if strings.EqualFold(next, "all") {
			return []string{"all"}
		}
		next = strings.ToUpper(next)
		if _, ok := acceptedWebhookEvents[next]; !ok {
			continue
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	return out
}

func webhookContainsEvent(events []string, event string) bool {
	event = strings.ToUpper(strings.TrimSpace(event))
	for _, item := range events {
		next := strings.ToUpper(strings.TrimSpace(item))
		if next == "ALL" || next == event {
			return true
		}
	}
	return false
}

func toResponse(w *models.WebhookModel) webhookResponse {
	events := w.Events
	if events == nil {
		events = []string{}
	}
	return webhookResponse{
		ID: w.ID, PayloadURL: w.PayloadURL, Events: events,
		Enabled: w.Enabled,
		Created: w.CreatedAt, Modified: w.UpdatedAt,
	}
}

func parseJSONOrString(data []byte) interface{} {
	if len(data) == 0 {
		return ""
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err == nil {
		return out
	}
	return string(data)
}

func signWithHash(newHash func() hash.Hash, secret string, payload []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
