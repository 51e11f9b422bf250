// Package prompt serves writing prompts for days when the owner opens the
// app and the page stays blank. Besides owner-managed CRUD it offers two
// pick modes: a true random draw and a prompt of the day that stays fixed
// for a whole calendar day in the owner's timezone.
package prompt

import (
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clarity-app/core/internal/models"
	"github.com/clarity-app/core/internal/pkg/pagination"
	"github.com/clarity-app/core/internal/pkg/response"
)

var errBlankText = errors.New("prompt text cannot be blank")

type CreatePromptDTO struct {
	Text     string `json:"text"     binding:"required"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

type UpdatePromptDTO struct {
	Text     *string `json:"text"`
	Category *string `json:"category"`
	Source   *string `json:"source"`
}

type promptResponse struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Category string    `json:"category"`
	Source   string    `json:"source"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

func toResponse(p *models.PromptModel) promptResponse {
	return promptResponse{
		ID: p.ID, Text: p.Text, Category: p.Category, Source: p.Source,
		Created: p.CreatedAt, Modified: p.UpdatedAt,
	}
}

type Service struct {
	db *gorm.DB

	// now is swapped out by tests that pin the calendar.
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) List(q pagination.Query) ([]models.PromptModel, response.Pagination, error) {
	tx := s.db.Model(&models.PromptModel{}).Order("created_at DESC")
	var items []models.PromptModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// ListAll returns every prompt. The mobile client caches the full set so
// a prompt can still be offered with no connectivity.
func (s *Service) ListAll() ([]models.PromptModel, error) {
	var items []models.PromptModel
	err := s.db.Order("created_at DESC").Find(&items).Error
	return items, err
}

func (s *Service) Categories() ([]string, error) {
	var cats []string
	err := s.db.Model(&models.PromptModel{}).
		Where("category <> ''").
		Distinct().
		Order("category ASC").
		Pluck("category", &cats).Error
	return cats, err
}

// Random draws a prompt uniformly, optionally restricted to one category.
// The draw happens in Go rather than with a dialect random() so mysql and
// sqlite behave the same.
func (s *Service) Random(category string) (*models.PromptModel, error) {
	tx := s.db.Model(&models.PromptModel{})
	if category != "" {
		tx = tx.Where("category = ?", category)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	var item models.PromptModel
	err := tx.Order("created_at ASC, id ASC").Offset(rand.IntN(int(count))).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Today returns the prompt of the day plus the local date it was picked
// for. The pick is a hash of the calendar day in the owner's timezone, so
// it stays fixed until local midnight and rolls over at the same moment
// the streak day does.
func (s *Service) Today(userID string) (*models.PromptModel, string, error) {
	var count int64
	if err := s.db.Model(&models.PromptModel{}).Count(&count).Error; err != nil {
		return nil, "", err
	}

	day := s.now().In(s.ownerLocation(userID)).Format("2006-01-02")
	if count == 0 {
		return nil, day, nil
	}

	h := fnv.New32a()
	h.Write([]byte(day))
	offset := int(h.Sum32() % uint32(count))

	var item models.PromptModel
	err := s.db.Order("created_at ASC, id ASC").Offset(offset).First(&item).Error
	if err != nil {
		return nil, day, err
	}
	return &item, day, nil
}

// ownerLocation resolves the zone the daily pick buckets on. Missing user
// or unusable zone falls back to UTC, the same degradation the ledger uses.
func (s *Service) ownerLocation(userID string) *time.Location {
	if userID == "" {
		return time.UTC
	}
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return time.UTC
	}
	name := strings.TrimSpace(user.Preferences.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Service) GetByID(id string) (*models.PromptModel, error) {
	var item models.PromptModel
	if err := s.db.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Service) Create(dto *CreatePromptDTO) (*models.PromptModel, error) {
	text := strings.TrimSpace(dto.Text)
	if text == "" {
		return nil, errBlankText
	}
	item := models.PromptModel{
		Text:     text,
		Category: strings.TrimSpace(dto.Category),
		Source:   strings.TrimSpace(dto.Source),
	}
	return &item, s.db.Create(&item).Error
}

func (s *Service) Update(id string, dto *UpdatePromptDTO) (*models.PromptModel, error) {
	item, err := s.GetByID(id)
	if err != nil || item == nil {
		return item, err
	}
	updates := map[string]interface{}{}
	if dto.Text != nil {
		text := strings.TrimSpace(*dto.Text)
		if text == "" {
			return nil, errBlankText
		}
		updates["text"] = text
	}
	if dto.Category != nil {
		updates["category"] = strings.TrimSpace(*dto.Category)
	}
	if dto.Source != nil {
		updates["source"] = strings.TrimSpace(*dto.Source)
	}
	if len(updates) == 0 {
		return item, nil
	}
	return item, s.db.Model(item).Updates(updates).Error
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.PromptModel{}, "id = ?", id).Error
}

// SeedDefaults installs the starter pack on an empty table and reports how
// many prompts it added. It is a no-op once any prompt exists, so owner
// edits and deletions stick across restarts.
func (s *Service) SeedDefaults() (int, error) {
	var count int64
	if err := s.db.Model(&models.PromptModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	items := make([]models.PromptModel, len(starterPrompts))
	for i, p := range starterPrompts {
		items[i] = models.PromptModel{Text: p.text, Category: p.category, Source: "starter"}
	}
	if err := s.db.Create(&items).Error; err != nil {
		return 0, err
	}
	return len(items), nil
}

var starterPrompts = []struct {
	category string
	text     string
}{
	{"gratitude", "List three small things from today you are glad happened, and why each one mattered."},
	{"gratitude", "Who made your day a little easier today? Write about what they did."},
	{"reflection", "What is taking up the most headspace right now? Put it into words without trying to fix it."},
	{"reflection", "Describe today in one sentence. Then write about the moment that sentence leaves out."},
	{"reflection", "What did you do today that your past self from a year ago would find surprising?"},
	{"growth", "What is one thing you avoided today, and what would facing it look like tomorrow?"},
	{"growth", "Write about a skill you are slowly getting better at, and the last time you noticed progress."},
	{"mood", "Name the strongest feeling you had today. Where in your body did you notice it?"},
	{"mood", "If your current mood were weather, what would the forecast say for tomorrow?"},
	{"memory", "Describe a place you passed through today as if you were seeing it for the first time."},
	{"memory", "What smell, sound, or taste from today do you want to remember?"},
	{"goals", "What would make tomorrow feel like a win by nine in the evening? Keep it small."},
}
