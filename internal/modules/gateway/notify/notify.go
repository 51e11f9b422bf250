package notify

import (
	"fmt"

	"github.com/clarity-app/core/internal/models"
	appconfigs "github.com/clarity-app/core/internal/modules/system/core/configs"
	"github.com/clarity-app/core/internal/pkg/bark"
)

// Gateway event names consumed by the mobile client.
const (
	EventEntryCreate  = "ENTRY_CREATE"
	EventEntryUpdate  = "ENTRY_UPDATE"
	EventEntryDelete  = "ENTRY_DELETE"
	EventSyncComplete = "SYNC_COMPLETE"
	EventMintStart    = "MINT_START"
	EventMintSuccess  = "MINT_SUCCESS"
	EventMintFail     = "MINT_FAIL"
	EventUserUpdate   = "USER_UPDATE"

	// EventStreakUpdate goes to the public widget room and carries no
	// journal content.
	EventStreakUpdate = "STREAK_UPDATE"
)

// Hub is the slice of the gateway hub notify needs.
type Hub interface {
	BroadcastOwner(event string, payload interface{})
	BroadcastPublic(event string, payload interface{})
}

// Dispatcher hands events to registered outbound webhooks.
type Dispatcher interface {
	Dispatch(event string, payload interface{})
}

// Service fans domain events out to the realtime gateway, to outbound
// webhooks, and, for mint outcomes, to Bark push. All methods are safe on
// a nil receiver so call sites never need to guard.
type Service struct {
	cfgSvc  *appconfigs.Service
	barkSvc *bark.Service
	hub     Hub
	hooks   Dispatcher
}

func New(cfgSvc *appconfigs.Service, barkSvc *bark.Service, hub Hub) *Service {
	return &Service{
		cfgSvc:  cfgSvc,
		barkSvc: barkSvc,
		hub:     hub,
	}
}

// SetWebhooks attaches the webhook dispatcher after construction. The
// webhook service needs the same db handle the rest of the services get,
// so the composition root wires it in as a second step.
func (s *Service) SetWebhooks(d Dispatcher) {
	if s == nil {
		return
	}
	s.hooks = d
}

func (s *Service) broadcast(event string, payload interface{}) {
	if s == nil {
		return
	}
	if s.hub != nil {
		// Journal data is private to the owner session.
		s.hub.BroadcastOwner(event, payload)
	}
	if s.hooks != nil {
		s.hooks.Dispatch(event, payload)
	}
}

func (s *Service) OnEntryCreate(entry *models.EntryModel) {
	s.broadcast(EventEntryCreate, entry)
}

func (s *Service) OnEntryUpdate(entry *models.EntryModel) {
	s.broadcast(EventEntryUpdate, entry)
}

func (s *Service) OnEntryDelete(entryID string) {
	s.broadcast(EventEntryDelete, map[string]string{"id": entryID})
}

func (s *Service) OnSyncComplete(report interface{}) {
	s.broadcast(EventSyncComplete, report)
}

func (s *Service) OnUserUpdate(user *models.UserModel) {
	s.broadcast(EventUserUpdate, user)

	if s == nil || user == nil {
		return
	}
	// The widget sees streak numbers only, never entries.
	streak := map[string]interface{}{
		"currentStreak":      user.CurrentStreak,
		"longestStreak":      user.LongestStreak,
		"totalClarityPoints": user.TotalPoints,
	}
	if s.hub != nil {
		s.hub.BroadcastPublic(EventStreakUpdate, streak)
	}
	if s.hooks != nil {
		s.hooks.Dispatch(EventStreakUpdate, streak)
	}
}

func (s *Service) OnMintStart(entryID string) {
	s.broadcast(EventMintStart, map[string]string{"id": entryID})
}

func (s *Service) OnMintSuccess(entry *models.EntryModel) {
	s.broadcast(EventMintSuccess, entry)

	if s == nil || s.barkSvc == nil {
		return
	}
	cfg, err := s.cfgSvc.Get()
	if err != nil || !cfg.BarkOptions.Enable || !cfg.BarkOptions.EnableMintAlerts {
		return
	}
	_ = s.barkSvc.Push("Entry minted", fmt.Sprintf("NFT %s confirmed on chain", entry.NFTAddress))
}

func (s *Service) OnMintFail(entryID, reason string) {
	s.broadcast(EventMintFail, map[string]string{"id": entryID, "reason": reason})

	if s == nil || s.barkSvc == nil {
		return
	}
	cfg, err := s.cfgSvc.Get()
	if err != nil || !cfg.BarkOptions.Enable || !cfg.BarkOptions.EnableMintAlerts {
		return
	}
	s.barkSvc.MintFailurePush(entryID, reason)
}
