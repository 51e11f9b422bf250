package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	appcfg "github.com/clarity-app/core/internal/config"
	"github.com/clarity-app/core/internal/modules/system/core/configs"
	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
)

const backupRootDir = "clarity-core"
const backupDBDir = backupRootDir + "/db"
const backupManifestFile = backupRootDir + "/manifest.json"
const backupFormat = "clarity-core-bson"
const backupFormatVersion = 1
const defaultS3PathTemplate = "backups/{Y}/{m}/{filename}"
const EnvBackupDir = "CLARITY_BACKUP_DIR"

var backupTableNames = []string{
	"users",
	"user_sessions",
	"api_tokens",
	"authn_credentials",
	"entries",
	"mint_audits",
	"entry_insights",
	"options",
}

var backupTableNameSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(backupTableNames))
	for _, table := range backupTableNames {
		set[table] = struct{}{}
	}
	return set
}()

// The mobile app's cloud ran on MongoDB; mongodump archives name the
// collections differently from our tables.
var restoreTableAliases = map[string]string{
	"journalentries":  "entries",
	"journal_entries": "entries",
	"sessions":        "user_sessions",
	"authns":          "authn_credentials",
	"apitokens":       "api_tokens",
	"insights":        "entry_insights",
	"mintaudits":      "mint_audits",
}

// Non-mechanical column renames. Everything else goes through
// snakeCase() on restore.
var restoreColumnAliases = map[string]string{
	"_id":          "id",
	"created":      "created_at",
	"modified":     "updated_at",
	"createdat":    "created_at",
	"updatedat":    "updated_at",
	"ipaddress":    "ip",
	"useragent":    "ua",
	"total_points": "total_clarity_points",
}

var restoreColumnAliasesByTable = map[string]map[string]string{
	"entries": {
		"points_breakdown": "breakdown",
		"nft_mint_address": "nft_address",
		"tx_signature":     "transaction_signature",
	},
	"users": {
		"streak": "current_streak",
	},
}

// Legacy exports stored each config section as its own options row.
var legacyOptionKeyAliases = map[string]string{
	"app":             "app",
	"appoptions":      "app",
	"rewards":         "rewards",
	"rewardoptions":   "rewards",
	"chain":           "chain",
	"chainoptions":    "chain",
	"s3options":       "s3_options",
	"ai":              "ai",
	"aioptions":       "ai",
	"templates":       "templates",
	"templateoptions": "templates",
	"barkoptions":     "bark_options",
	"authsecurity":    "auth_security",
}

// Uploader pushes a finished archive to object storage. The app wires
// the same S3 client the NFT metadata store uses.
type Uploader interface {
	Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

// UploaderFactory builds an Uploader from the stored S3 options.
type UploaderFactory func(ctx context.Context, opts appcfg.S3Options) (Uploader, error)

// Handler is the HTTP handler for backup operations.
type Handler struct {
	db        *gorm.DB
	cfgSvc    *configs.Service
	rc        *pkgredis.Client
	logger    *zap.Logger
	uploaderF UploaderFactory
}

type backupManifest struct {
	Format    string    `json:"format"`
	Version   int       `json:"version"`
	Engine    string    `json:"engine"`
	CreatedAt time.Time `json:"created_at"`
	Tables    []string  `json:"tables"`
}

type backupEntryCandidate struct {
	File   *zip.File
	Format string
}

type tableColumn struct {
	DBType string
}

type backupItem struct {
	Filename string `json:"filename"`
	Size     string `json:"size"`
}

type backupArtifact struct {
	Filename string
	Path     string
	Buffer   *bytes.Buffer
}
