package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDBDriver   = "sqlite"
	defaultSQLiteFile = "clarity.db"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "clarity"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0
	defaultMirrorName = "clarity"
	defaultMirrorSecs = 5
)

// AppConfig holds runtime startup configuration loaded from YAML.
// Domain options (reward constants, chain network, metadata storage) live in
// the DB-backed stored config instead; see options.go.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Mirror         MirrorRuntimeConfig   `yaml:"mirror"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	Cluster        ClusterRuntimeConfig  `yaml:"cluster"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"` // fallback zone for streak day bucketing
}

// DatabaseRuntimeConfig selects the local authoritative store. The default
// is a SQLite file under the data dir; MySQL is for shared deployments.
type DatabaseRuntimeConfig struct {
	Driver   string            `yaml:"driver"` // "sqlite" | "mysql"
	Path     string            `yaml:"path"`   // sqlite file path
	DSN      string            `yaml:"dsn"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Name     string            `yaml:"name"`
	Charset  string            `yaml:"charset"`
	Loc      string            `yaml:"loc"`
	Params   map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// MirrorRuntimeConfig points at the optional cloud mirror. An empty URL
// disables mirroring entirely.
type MirrorRuntimeConfig struct {
	URL            string `yaml:"url"` // mongodb:// connection string
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RuntimePathsConfig struct {
	Data string `yaml:"data"`
	Logs string `yaml:"logs"`
}

// ClusterRuntimeConfig enables the multi-process worker mode. Workers <= 0
// means one worker per CPU.
type ClusterRuntimeConfig struct {
	Enable  bool `yaml:"enable"`
	Workers int  `yaml:"workers"`
}

type rawAppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"`
	NodeEnv        string                `yaml:"node_env"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	DatabasePath   string                `yaml:"database_path"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	RedisURL       string                `yaml:"redis_url"`
	Mirror         MirrorRuntimeConfig   `yaml:"mirror"`
	MirrorURL      string                `yaml:"mirror_url"`
	MongoURL       string                `yaml:"mongo_url"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	DataDir        string                `yaml:"data_dir"`
	LogDir         string                `yaml:"log_dir"`
	Cluster        ClusterRuntimeConfig  `yaml:"cluster"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
	TZ             string                `yaml:"tz"`
}

// Load reads and validates the YAML startup config. A missing file is not an
// error when the default path is used; the defaults carry a dev setup.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	usingDefault := path == ""
	if usingDefault {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	if err != nil {
		if usingDefault && os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "mysql" {
		return nil, fmt.Errorf("invalid database.driver %q in %q, expected sqlite or mysql", cfg.Database.Driver, path)
	}
	if cfg.Database.Driver == "mysql" && (cfg.Database.Port < 1 || cfg.Database.Port > 65535) {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if cfg.Mirror.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("invalid mirror.timeout_seconds %d in %q, expected >= 0", cfg.Mirror.TimeoutSeconds, path)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:   defaultDBDriver,
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
			Loc:      defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Mirror: MirrorRuntimeConfig{
			Database:       defaultMirrorName,
			TimeoutSeconds: defaultMirrorSecs,
		},
	}
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}

	env := strings.TrimSpace(raw.Env)
	if env == "" {
		env = strings.TrimSpace(raw.NodeEnv)
	}
	if env != "" {
		cfg.Env = strings.ToLower(env)
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.Mirror = applyRawMirrorConfig(cfg.Mirror, raw)

	if v := strings.TrimSpace(raw.Paths.Data); v != "" {
		cfg.Paths.Data = v
	} else if v := strings.TrimSpace(raw.DataDir); v != "" {
		cfg.Paths.Data = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	} else if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	if raw.Cluster.Enable {
		cfg.Cluster.Enable = true
	}
	if raw.Cluster.Workers != 0 {
		cfg.Cluster.Workers = raw.Cluster.Workers
	}

	if len(raw.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}

	tz := strings.TrimSpace(raw.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(raw.TZ)
	}
	if tz != "" {
		cfg.Timezone = tz
	}
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	out := current

	if v := strings.ToLower(strings.TrimSpace(raw.Database.Driver)); v != "" {
		out.Driver = v
	}
	if v := strings.TrimSpace(raw.Database.Path); v != "" {
		out.Path = v
	} else if v := strings.TrimSpace(raw.DatabasePath); v != "" {
		out.Path = v
	}
	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		out.DSN = v
		out.Driver = "mysql"
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		out.Host = v
	}
	if raw.Database.Port != 0 {
		out.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		out.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		out.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		out.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		out.Charset = v
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		out.Loc = v
	}
	if raw.Database.Params != nil {
		out.Params = copyStringMap(raw.Database.Params)
	}
	return out
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	out := current

	url := strings.TrimSpace(raw.Redis.URL)
	if url == "" {
		url = strings.TrimSpace(raw.RedisURL)
	}
	if url != "" {
		out.URL = normalizeRedisRawURL(url)
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		out.Host = v
	}
	if raw.Redis.Port != 0 {
		out.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		out.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		out.Password = v
	}
	if raw.Redis.DB != 0 {
		out.DB = raw.Redis.DB
	}
	if raw.Redis.TLS {
		out.TLS = true
	}
	return out
}

func applyRawMirrorConfig(current MirrorRuntimeConfig, raw rawAppConfig) MirrorRuntimeConfig {
	out := current

	url := strings.TrimSpace(raw.Mirror.URL)
	if url == "" {
		url = strings.TrimSpace(raw.MirrorURL)
	}
	if url == "" {
		url = strings.TrimSpace(raw.MongoURL)
	}
	if url != "" {
		out.URL = url
	}
	if v := strings.TrimSpace(raw.Mirror.Database); v != "" {
		out.Database = v
	}
	if raw.Mirror.TimeoutSeconds != 0 {
		out.TimeoutSeconds = raw.Mirror.TimeoutSeconds
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func (c *AppConfig) IsDev() bool {
	return c.Env != "production"
}

// MirrorEnabled reports whether a cloud mirror is configured at all.
func (c *AppConfig) MirrorEnabled() bool {
	return strings.TrimSpace(c.Mirror.URL) != ""
}

// DataDir resolves the directory holding the sqlite file and the wallet
// keystore, defaulting to ./data next to the executable.
func (c *AppConfig) DataDir() string {
	return ResolveRuntimePath(c.Paths.Data, "data")
}

func (c *AppConfig) LogDir() string {
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

// BackupDir resolves where local database backups land.
func (c *AppConfig) BackupDir() string {
	return filepath.Join(c.DataDir(), "backups")
}

// WalletKeyPath resolves the wallet keystore file. The file is created by
// the wallet setup endpoint; a missing file just means no wallet yet.
func (c *AppConfig) WalletKeyPath() string {
	return filepath.Join(c.DataDir(), "wallet.json")
}

// SQLitePath resolves the sqlite database file location.
func (c *AppConfig) SQLitePath() string {
	if v := strings.TrimSpace(c.Database.Path); v != "" {
		if filepath.IsAbs(v) {
			return filepath.Clean(v)
		}
		return filepath.Clean(filepath.Join(c.DataDir(), v))
	}
	return filepath.Join(c.DataDir(), defaultSQLiteFile)
}
