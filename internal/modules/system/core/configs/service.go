package configs

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/models"
)

const configKey = "configs"

var errInsightsProviderNotEnabled = errors.New("no enabled ai provider for entry insights")

// Service manages the persisted FullConfig.
type Service struct {
	db  *gorm.DB
	mu  sync.RWMutex
	cfg *config.FullConfig

	onChange []func(*config.FullConfig)
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// OnChange registers a callback fired after every successful Patch.
// Consumers use it to refresh derived state such as reward constants.
func (s *Service) OnChange(fn func(*config.FullConfig)) {
	s.onChange = append(s.onChange, fn)
}

// Get returns the current config, loading from DB if not cached.
func (s *Service) Get() (*config.FullConfig, error) {
	s.mu.RLock()
	if s.cfg != nil {
		defer s.mu.RUnlock()
		return s.cfg, nil
	}
	s.mu.RUnlock()

	return s.load()
}

func (s *Service) load() (*config.FullConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opt models.OptionModel
	err := s.db.Where("name = ?", configKey).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := config.DefaultFullConfig()
		s.cfg = &defaults
		_ = s.persist(&defaults)
		return s.cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultFullConfig()
	if err := json.Unmarshal([]byte(opt.Value), &cfg); err != nil {
		return nil, err
	}
	s.cfg = &cfg
	return s.cfg, nil
}

// Patch merges the given partial JSON update into the current config and persists it.
func (s *Service) Patch(partial map[string]json.RawMessage) (*config.FullConfig, error) {
	current, err := s.Get()
	if err != nil {
		return nil, err
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	merged := map[string]interface{}{}
	if err := json.Unmarshal(currentJSON, &merged); err != nil {
		return nil, err
	}

	for k, v := range partial {
		if len(strings.TrimSpace(string(v))) == 0 {
			continue
		}
		var incoming interface{}
		if err := json.Unmarshal(v, &incoming); err != nil {
			return nil, err
		}
		if existing, ok := merged[k]; ok {
			merged[k] = deepMergeJSON(existing, incoming)
			continue
		}
		merged[k] = incoming
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	updated := config.DefaultFullConfig()
	if err := json.Unmarshal(mergedJSON, &updated); err != nil {
		return nil, err
	}
	if shouldEnableInsights(partial) &&
		updated.AI.EnableInsights &&
		!hasEnabledAIProvider(updated.AI.Providers) {
		return nil, errInsightsProviderNotEnabled
	}

	s.mu.Lock()
	s.cfg = &updated
	s.mu.Unlock()

	if err := s.persist(&updated); err != nil {
		return nil, err
	}
	for _, fn := range s.onChange {
		fn(&updated)
	}
	return &updated, nil
}

func (s *Service) persist(cfg *config.FullConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	opt := models.OptionModel{Name: configKey, Value: string(data)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}

// Invalidate clears the in-memory config cache, forcing a DB reload on next Get.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = nil
}
