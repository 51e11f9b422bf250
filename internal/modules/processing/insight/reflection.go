package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
)

// TaskTypeInsight is the queue task type for reflection generation.
const TaskTypeInsight = taskqueue.TypeInsight

var (
	errEntryNotFound    = errors.New("entry not found or empty")
	errInsightsDisabled = errors.New("AI insights are disabled")
)

// insightHash fingerprints the entry revision a reflection belongs to.
// Content and mood both feed the hash, so editing either invalidates
// the cached reflection.
func insightHash(entryID, content, mood string) string {
	sum := sha256.Sum256([]byte(entryID + ":" + content + ":" + mood))
	return hex.EncodeToString(sum[:])
}

// insightSettings resolves the ai options and the provider the insight
// assignment points at. Generation refuses to run without both.
func (s *Service) insightSettings() (config.AIOptions, *config.AIProvider, error) {
	cfg, err := s.cfgSvc.Get()
	if err != nil {
		return config.AIOptions{}, nil, err
	}
	ai := cfg.AI
	if !ai.EnableInsights || ai.InsightModel == nil {
		return ai, nil, errInsightsDisabled
	}
	provider := selectAIProvider(ai, ai.InsightModel)
	if provider == nil {
		return ai, nil, errInsightsDisabled
	}
	return ai, provider, nil
}

func (s *Service) fetchEntry(entryID string) (*models.EntryModel, error) {
	var entry models.EntryModel
	err := s.db.Select("id", "content", "mood", "weather", "created_at").
		First(&entry, "id = ?", entryID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errEntryNotFound
		}
		return nil, err
	}
	if strings.TrimSpace(entry.Content) == "" {
		return nil, errEntryNotFound
	}
	return &entry, nil
}

// GetInsight returns the cached reflection for the entry's current
// revision, or nil when none has been generated for it yet.
func (s *Service) GetInsight(entry *models.EntryModel) (*models.EntryInsightModel, error) {
	hash := insightHash(entry.ID, entry.Content, entry.Mood)
	var insight models.EntryInsightModel
	if err := s.db.Where("hash = ?", hash).First(&insight).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &insight, nil
}

// EnqueueInsight queues reflection generation for an entry. The revision
// hash doubles as the dedup key, so re-queuing an unchanged entry joins
// the task already in flight instead of starting another.
func (s *Service) EnqueueInsight(ctx context.Context, entryID string) (*taskqueue.Task, error) {
	if _, _, err := s.insightSettings(); err != nil {
		return nil, err
	}

	entry, err := s.fetchEntry(entryID)
	if err != nil {
		return nil, err
	}

	payload := InsightPayload{
		EntryID: entry.ID,
		Hash:    insightHash(entry.ID, entry.Content, entry.Mood),
	}

	task, err := s.taskSvc.Enqueue(ctx, TaskTypeInsight, payload, payload.Hash, entry.ID)
	if err != nil {
		return nil, err
	}

	if task != nil && task.Status == taskqueue.TaskPending {
		go s.executeInsight(context.Background(), task.ID, payload)
	}
	return task, nil
}

func (s *Service) executeInsight(ctx context.Context, taskID string, payload InsightPayload) {
	s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, "")

	cfg, provider, err := s.insightSettings()
	if err != nil {
		s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	entry, err := s.fetchEntry(payload.EntryID)
	if err != nil {
		s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	hash := insightHash(entry.ID, entry.Content, entry.Mood)
	if hash != payload.Hash {
		s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskCancelled, nil, "entry changed before the reflection ran")
		return
	}

	systemPrompt, prompt := buildInsightPrompt(cfg.Language, entry)
	raw, err := callAIWithSystemPrompt(provider, systemPrompt, prompt)
	if err != nil {
		s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}
	reflection, err := extractReflectionFromAIResponse(raw)
	if err != nil {
		s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	insight, err := s.saveInsight(entry.ID, hash, provider, reflection)
	if err != nil {
		s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, gin.H{
		"insight_id": insight.ID,
		"entry_id":   insight.EntryID,
	}, "")
}

// GenerateInsightNow runs generation inline instead of via the queue,
// returning the cached row when the current revision already has one.
func (s *Service) GenerateInsightNow(entryID string) (*models.EntryInsightModel, error) {
	cfg, provider, err := s.insightSettings()
	if err != nil {
		return nil, err
	}

	entry, err := s.fetchEntry(entryID)
	if err != nil {
		return nil, err
	}

	hash := insightHash(entry.ID, entry.Content, entry.Mood)
	var cached models.EntryInsightModel
	if err := s.db.Where("hash = ?", hash).First(&cached).Error; err == nil {
		return &cached, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	systemPrompt, prompt := buildInsightPrompt(cfg.Language, entry)
	raw, err := callAIWithSystemPrompt(provider, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	reflection, err := extractReflectionFromAIResponse(raw)
	if err != nil {
		return nil, err
	}

	return s.saveInsight(entry.ID, hash, provider, reflection)
}

// GenerateInsightStream generates a reflection via SSE streaming,
// writing events to the gin.Context directly. The finished reflection
// is cached the same way the queued path caches it.
func (s *Service) GenerateInsightStream(c *gin.Context, entryID string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(eventType, data string) {
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data))
		c.Writer.Flush()
	}
	sendError := func(err error) {
		errJSON, _ := jsonMarshal(err.Error())
		sendEvent("error", string(errJSON))
	}

	cfg, provider, err := s.insightSettings()
	if err != nil {
		sendError(err)
		return
	}

	entry, err := s.fetchEntry(entryID)
	if err != nil {
		sendError(err)
		return
	}

	hash := insightHash(entry.ID, entry.Content, entry.Mood)
	var cached models.EntryInsightModel
	if err := s.db.Where("hash = ?", hash).First(&cached).Error; err == nil {
		tokenJSON, _ := jsonMarshal(cached.Content)
		sendEvent("token", string(tokenJSON))
		doneJSON, _ := jsonMarshal(gin.H{"reflection": cached.Content, "cached": true})
		sendEvent("done", string(doneJSON))
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		sendError(err)
		return
	}

	systemPrompt, prompt := buildInsightPrompt(cfg.Language, entry)
	raw, err := callAIStream(provider, systemPrompt, prompt, func(token string) {
		tokenJSON, _ := jsonMarshal(token)
		sendEvent("token", string(tokenJSON))
	})
	if err != nil {
		sendError(err)
		return
	}
	reflection, err := extractReflectionFromAIResponse(raw)
	if err != nil {
		sendError(err)
		return
	}

	if _, err := s.saveInsight(entry.ID, hash, provider, reflection); err != nil {
		sendError(err)
		return
	}
	doneJSON, _ := jsonMarshal(gin.H{"reflection": reflection})
	sendEvent("done", string(doneJSON))
}

func extractReflectionFromAIResponse(raw string) (string, error) {
	var output struct {
		Reflection string `json:"reflection"`
	}
	if err := unmarshalAIJSON(raw, &output); err != nil {
		return "", err
	}
	if strings.TrimSpace(output.Reflection) == "" {
		return "", fmt.Errorf("reflection is empty in AI response")
	}
	return strings.TrimSpace(output.Reflection), nil
}

// saveInsight upserts by revision hash, then prunes reflections written
// for older revisions of the same entry.
func (s *Service) saveInsight(entryID, hash string, provider *config.AIProvider, reflection string) (*models.EntryInsightModel, error) {
	insight := models.EntryInsightModel{
		Hash:     hash,
		EntryID:  entryID,
		Provider: providerLabel(provider),
		Content:  reflection,
	}
	err := s.db.Where("hash = ?", hash).Assign(insight).FirstOrCreate(&insight).Error
	if err != nil {
		return nil, err
	}

	// Hard delete: a soft-deleted row would still occupy the hash
	// unique index and block a later regeneration.
	if err := s.db.Unscoped().Where("entry_id = ? AND hash <> ?", entryID, hash).
		Delete(&models.EntryInsightModel{}).Error; err != nil {
		return nil, err
	}
	return &insight, nil
}

func providerLabel(provider *config.AIProvider) string {
	if provider == nil {
		return ""
	}
	if name := strings.TrimSpace(provider.Name); name != "" {
		return name
	}
	if id := strings.TrimSpace(provider.ID); id != "" {
		return id
	}
	return normalizeProviderType(provider.Type)
}
