package cloudmirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/clarity-app/core/internal/models"
)

// ErrDisabled is returned by every operation when no mirror is configured.
var ErrDisabled = errors.New("cloud mirror not configured")

// ErrNotFound is returned when a mirrored record does not exist.
var ErrNotFound = errors.New("record not in mirror")

const (
	collUsers   = "users"
	collEntries = "entries"

	defaultTimeout = 5 * time.Second
)

// Config carries mirror connection settings.
type Config struct {
	URL      string
	Database string
	Timeout  time.Duration
}

// Mongo mirrors users and entries to a remote MongoDB on a best-effort
// basis. It is never authoritative and its failures must stay recoverable.
type Mongo struct {
	enabled bool
	db      *mongo.Database
	client  *mongo.Client
	timeout time.Duration
}

// Connect builds a mirror from config. An empty URL yields a disabled
// mirror whose operations all return ErrDisabled; connection failures at
// startup are reported but the caller should treat them as non-fatal.
func Connect(ctx context.Context, cfg Config) (*Mongo, error) {
	if cfg.URL == "" {
		return &Mongo{enabled: false}, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mirror connect: %w", err)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "clarity"
	}

	return &Mongo{
		enabled: true,
		client:  client,
		db:      client.Database(dbName),
		timeout: timeout,
	}, nil
}

// Enabled reports whether a remote mirror is configured at all.
func (m *Mongo) Enabled() bool { return m != nil && m.enabled }

// Ping verifies the mirror is reachable right now.
func (m *Mongo) Ping(ctx context.Context) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	return m.client.Ping(ctx, readpref.Primary())
}

// Close releases the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	return m.client.Disconnect(ctx)
}

func (m *Mongo) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

// --- documents ---

type userDoc struct {
	ID            string                 `bson:"_id"`
	Username      string                 `bson:"username"`
	Name          string                 `bson:"name"`
	Avatar        string                 `bson:"avatar"`
	Mail          string                 `bson:"mail"`
	WalletAddress string                 `bson:"wallet_address"`
	TotalPoints   int                    `bson:"total_clarity_points"`
	CurrentStreak int                    `bson:"current_streak"`
	LongestStreak int                    `bson:"longest_streak"`
	LastEntryDate *time.Time             `bson:"last_entry_date,omitempty"`
	Preferences   models.UserPreferences `bson:"preferences"`
	CreatedAt     time.Time              `bson:"created_at"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}

type entryDoc struct {
	ID                   string                 `bson:"_id"`
	UserID               string                 `bson:"user_id"`
	Content              string                 `bson:"content"`
	Mood                 string                 `bson:"mood"`
	Weather              string                 `bson:"weather,omitempty"`
	Tags                 []string               `bson:"tags,omitempty"`
	ClarityPoints        int                    `bson:"clarity_points"`
	Breakdown            models.PointsBreakdown `bson:"breakdown"`
	WordCount            int                    `bson:"word_count"`
	IsMinted             bool                   `bson:"is_minted"`
	MintState            string                 `bson:"mint_state"`
	NFTAddress           string                 `bson:"nft_address,omitempty"`
	TransactionSignature string                 `bson:"transaction_signature,omitempty"`
	MetadataURI          string                 `bson:"metadata_uri,omitempty"`
	MintedAt             *time.Time             `bson:"minted_at,omitempty"`
	CreatedAt            time.Time              `bson:"created_at"`
	UpdatedAt            time.Time              `bson:"updated_at"`
}

func toUserDoc(u *models.UserModel) userDoc {
	return userDoc{
		ID:            u.ID,
		Username:      u.Username,
		Name:          u.Name,
		Avatar:        u.Avatar,
		Mail:          u.Mail,
		WalletAddress: u.WalletAddress,
		TotalPoints:   u.TotalPoints,
		CurrentStreak: u.CurrentStreak,
		LongestStreak: u.LongestStreak,
		LastEntryDate: u.LastEntryDate,
		Preferences:   u.Preferences,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func fromUserDoc(d userDoc) *models.UserModel {
	u := &models.UserModel{
		Username:      d.Username,
		Name:          d.Name,
		Avatar:        d.Avatar,
		Mail:          d.Mail,
		WalletAddress: d.WalletAddress,
		TotalPoints:   d.TotalPoints,
		CurrentStreak: d.CurrentStreak,
		LongestStreak: d.LongestStreak,
		LastEntryDate: d.LastEntryDate,
		Preferences:   d.Preferences,
	}
	u.ID = d.ID
	u.CreatedAt = d.CreatedAt
	u.UpdatedAt = d.UpdatedAt
	return u
}

func toEntryDoc(e *models.EntryModel) entryDoc {
	return entryDoc{
		ID:                   e.ID,
		UserID:               e.UserID,
		Content:              e.Content,
		Mood:                 e.Mood,
		Weather:              e.Weather,
		Tags:                 e.Tags,
		ClarityPoints:        e.ClarityPoints,
		Breakdown:            e.Breakdown,
		WordCount:            e.WordCount,
		IsMinted:             e.IsMinted,
		MintState:            e.MintState,
		NFTAddress:           e.NFTAddress,
		TransactionSignature: e.TransactionSignature,
		MetadataURI:          e.MetadataURI,
		MintedAt:             e.MintedAt,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

func fromEntryDoc(d entryDoc) models.EntryModel {
	e := models.EntryModel{
		UserID:               d.UserID,
		Content:              d.Content,
		Mood:                 d.Mood,
		Weather:              d.Weather,
		Tags:                 d.Tags,
		ClarityPoints:        d.ClarityPoints,
		Breakdown:            d.Breakdown,
		WordCount:            d.WordCount,
		IsMinted:             d.IsMinted,
		MintState:            d.MintState,
		NFTAddress:           d.NFTAddress,
		TransactionSignature: d.TransactionSignature,
		MetadataURI:          d.MetadataURI,
		MintedAt:             d.MintedAt,
		// Anything read back from the mirror is by definition mirrored.
		IsSynced: true,
	}
	e.ID = d.ID
	e.CreatedAt = d.CreatedAt
	e.UpdatedAt = d.UpdatedAt
	return e
}

// --- users ---

func (m *Mongo) UpsertUser(ctx context.Context, user *models.UserModel) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	_, err := m.db.Collection(collUsers).ReplaceOne(ctx,
		bson.M{"_id": user.ID},
		toUserDoc(user),
		options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) GetUser(ctx context.Context, id string) (*models.UserModel, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	var doc userDoc
	err := m.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromUserDoc(doc), nil
}

// --- entries ---

func (m *Mongo) UpsertEntry(ctx context.Context, entry *models.EntryModel) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	_, err := m.db.Collection(collEntries).ReplaceOne(ctx,
		bson.M{"_id": entry.ID},
		toEntryDoc(entry),
		options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) GetEntry(ctx context.Context, userID, id string) (*models.EntryModel, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	var doc entryDoc
	err := m.db.Collection(collEntries).
		FindOne(ctx, bson.M{"_id": id, "user_id": userID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry := fromEntryDoc(doc)
	return &entry, nil
}

// ListEntries returns all mirrored entries for a user, newest first.
func (m *Mongo) ListEntries(ctx context.Context, userID string) ([]models.EntryModel, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	cursor, err := m.db.Collection(collEntries).Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	entries := make([]models.EntryModel, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, fromEntryDoc(d))
	}
	return entries, nil
}

func (m *Mongo) DeleteEntry(ctx context.Context, userID, id string) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	_, err := m.db.Collection(collEntries).DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	return err
}
