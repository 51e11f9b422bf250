package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "port: 4000\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.MirrorEnabled())
}

func TestLoadMirrorAliases(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"nested", "mirror:\n  url: mongodb://localhost:27017\n"},
		{"flat", "mirror_url: mongodb://localhost:27017\n"},
		{"legacy mongo_url", "mongo_url: mongodb://localhost:27017\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.yaml))
			require.NoError(t, err)
			assert.True(t, cfg.MirrorEnabled())
			assert.Equal(t, "mongodb://localhost:27017", cfg.Mirror.URL)
			assert.Equal(t, "clarity", cfg.Mirror.Database)
		})
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: postgres\n"))
	require.Error(t, err)
}

func TestExplicitDSNImpliesMySQL(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  dsn: user:pw@tcp(db:3306)/clarity\n"))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "user:pw@tcp(db:3306)/clarity", cfg.Database.DSNValue())
}

func TestDSNValueBuildsFromPieces(t *testing.T) {
	cfg := DatabaseRuntimeConfig{
		Host:     "db.internal",
		Port:     3307,
		User:     "clarity",
		Password: "secret",
		Name:     "journal",
	}
	dsn := cfg.DSNValue()
	assert.Contains(t, dsn, "clarity:secret@tcp(db.internal:3307)/journal")
	assert.Contains(t, dsn, "parseTime=True")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestRedisURLValue(t *testing.T) {
	cfg := RedisRuntimeConfig{Host: "cache", Port: 6380, Password: "pw", DB: 2}
	assert.Equal(t, "redis://:pw@cache:6380/2", cfg.URLValue())

	cfg = RedisRuntimeConfig{URL: "redis-prod:6379"}
	assert.Equal(t, "redis://redis-prod:6379", cfg.URLValue())
}

func TestSQLitePathResolution(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  path: /var/lib/clarity/journal.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/clarity/journal.db", cfg.SQLitePath())
}

func TestClusterSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, "cluster:\n  enable: true\n  workers: 4\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Cluster.Enable)
	assert.Equal(t, 4, cfg.Cluster.Workers)

	cfg, err = Load(writeConfig(t, "port: 8080\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Cluster.Enable)
}

func TestRewardOptionsLegacyKeys(t *testing.T) {
	blob := `{
		"dailyEntry": 12,
		"moodTracking": 6,
		"nftMinting": 40,
		"streakBonus": {
			"small": {"minDays": 3, "points": 15},
			"medium": {"minDays": 7, "points": 25},
			"large": {"minDays": 30, "points": 100}
		}
	}`
	opts := DefaultFullConfig().Rewards
	require.NoError(t, json.Unmarshal([]byte(blob), &opts))

	assert.Equal(t, 12, opts.DailyEntryPoints)
	assert.Equal(t, 6, opts.MoodTrackingPoints)
	assert.Equal(t, 40, opts.MintBonusPoints)
	require.Len(t, opts.StreakTiers, 3)
	// Tiers come back sorted largest threshold first.
	assert.Equal(t, 30, opts.StreakTiers[0].MinDays)
	assert.Equal(t, 100, opts.StreakTiers[0].Bonus)
	assert.Equal(t, 3, opts.StreakTiers[2].MinDays)
}

func TestChainOptionsNetworkAliases(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"network":"testnet"}`, "devnet"},
		{`{"network":"mainnet"}`, "mainnet-beta"},
		{`{"cluster":"devnet"}`, "devnet"},
		{`{"network":"mainnet-beta","rpc_endpoint":"https://rpc.example"}`, "mainnet-beta"},
	}
	for _, tc := range cases {
		var opts ChainOptions
		require.NoError(t, json.Unmarshal([]byte(tc.in), &opts))
		assert.Equal(t, tc.want, opts.Network, tc.in)
	}

	var opts ChainOptions
	require.NoError(t, json.Unmarshal([]byte(`{"network":"mainnet"}`), &opts))
	assert.True(t, opts.IsMainnet())
}
