// Package insight generates short AI reflections for journal entries.
//
// The feature is strictly additive: journaling, sync, and minting never
// depend on it, and nothing runs until a provider is configured and
// insights are enabled in the ai options. Generated reflections are
// cached per entry revision, keyed by a content hash, so an edit
// invalidates the stored reflection.
package insight

import (
	"gorm.io/gorm"

	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/pkg/taskqueue"
)

// Service generates, caches, and serves entry reflections.
type Service struct {
	db      *gorm.DB
	cfgSvc  *appconfigs.Service
	taskSvc *taskqueue.Service
}

func NewService(db *gorm.DB, cfgSvc *appconfigs.Service, taskSvc *taskqueue.Service) *Service {
	return &Service{db: db, cfgSvc: cfgSvc, taskSvc: taskSvc}
}
