package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

func TestLoadDefaultConfig(t *testing.T) {
	viper.Reset()
	cfg, err := Load(filepath.Join(t.TempDir(), "non_existent_config.yaml"))
	require.NoError(t, err, "Load() with non-existent path should not produce an error")
	require.NotNil(t, cfg)

	homeDir, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(homeDir, ".syncguard", "syncguard.db"), cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "512MB", cfg.Classifier.DiskSpaceFloor)
	assert.Equal(t, time.Second, cfg.Recovery.InitialRetryDelay)
	assert.Equal(t, time.Minute, cfg.Recovery.MaxRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Recovery.RetryCooldown)
	assert.Equal(t, 7*24*time.Hour, cfg.Backup.MaxAge)
	assert.Equal(t, time.Duration(0), cfg.ErrorLog.DedupWindow)
	assert.Equal(t, 1000, cfg.ErrorLog.MaxEntries)
	assert.True(t, cfg.ErrorLog.Persist)

	floor, err := cfg.DiskSpaceFloorBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512*1000*1000), floor)
}

func TestLoadFromFile(t *testing.T) {
	v := viper.New()

	tempConfigFile := filepath.Join(t.TempDir(), "test_config.yaml")
	configContent := `
log:
  level: "debug"
classifier:
  disk_space_floor: "1GiB"
recovery:
  initial_retry_delay: "250ms"
  max_attempts: 5
conflicts:
  orders:
    strategy: merge
    field_priority:
      status: remote
      notes: local
  users:
    strategy: last-write-wins
`
	require.NoError(t, os.WriteFile(tempConfigFile, []byte(configContent), 0600))

	v.SetConfigFile(tempConfigFile)
	require.NoError(t, v.ReadInConfig())
	SetViperDefaults(v)

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Recovery.InitialRetryDelay)
	assert.Equal(t, 5, cfg.Recovery.MaxAttempts)

	// Fields not in the file fall back to defaults
	assert.Equal(t, 2.0, cfg.Recovery.BackoffMultiplier)
	assert.Equal(t, time.Minute, cfg.Recovery.MaxRetryDelay)

	floor, err := cfg.DiskSpaceFloorBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), floor)

	policies, err := cfg.ConflictPolicies()
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, model.ConflictMerge, policies["orders"].Strategy)
	assert.Equal(t, model.SideRemote, policies["orders"].FieldPriority["status"])
	assert.Equal(t, model.SideLocal, policies["orders"].FieldPriority["notes"])
	assert.Equal(t, model.ConflictLastWriteWins, policies["users"].Strategy)

	backoff := cfg.BackoffConfig()
	assert.Equal(t, 250*time.Millisecond, backoff.InitialInterval)
	assert.Equal(t, 2.0, backoff.Multiplier)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadDiskFloor", func(c *Config) { c.Classifier.DiskSpaceFloor = "plenty" }},
		{"MemoryPressure", func(c *Config) { c.Classifier.MemoryPressure = 150 }},
		{"Multiplier", func(c *Config) { c.Recovery.BackoffMultiplier = 0.5 }},
		{"DelayOrder", func(c *Config) { c.Recovery.MaxRetryDelay = time.Millisecond }},
		{"Jitter", func(c *Config) { c.Recovery.Jitter = 1.5 }},
		{"NegativeWindow", func(c *Config) { c.ErrorLog.DedupWindow = -time.Second }},
		{"UnknownStrategy", func(c *Config) {
			c.Conflicts = map[string]ConflictConfig{"orders": {Strategy: "coin_flip"}}
		}},
		{"BadSide", func(c *Config) {
			c.Conflicts = map[string]ConflictConfig{"orders": {
				Strategy:      "merge",
				FieldPriority: map[string]string{"status": "both"},
			}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	tempConfigFile := filepath.Join(t.TempDir(), "env_override_config.yaml")

	baseConfigContent := `
log:
  level: "info"
recovery:
  max_attempts: 3
error_log:
  max_entries: 200
`
	require.NoError(t, os.WriteFile(tempConfigFile, []byte(baseConfigContent), 0600))

	t.Setenv("SYNCGUARD_LOG_LEVEL", "debug")
	t.Setenv("SYNCGUARD_RECOVERY_MAX_ATTEMPTS", "10")
	t.Setenv("SYNCGUARD_CLASSIFIER_MEMORY_PRESSURE", "75")
	t.Setenv("SYNCGUARD_NEW_SETTING_FROM_ENV", "env_value_specific")

	v := viper.New()
	require.NoError(t, initViper(v, tempConfigFile))

	assert.Equal(t, "debug", v.GetString("log.level"))
	assert.Equal(t, 10, v.GetInt("recovery.max_attempts"))

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	// Env > File > Defaults
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Recovery.MaxAttempts)
	assert.Equal(t, 75.0, cfg.Classifier.MemoryPressure)
	assert.Equal(t, 200, cfg.ErrorLog.MaxEntries)

	assert.Equal(t, "env_value_specific", cfg.GetString("new_setting_from_env"))
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unterminated"), 0600))

	err := initViper(viper.New(), path)
	assert.Error(t, err)
}

func TestSaveConfig(t *testing.T) {
	viper.Reset()
	tempSavePath := filepath.Join(t.TempDir(), "saved_config.yaml")

	viper.Set("log.level", "error")
	viper.Set("recovery.max_attempts", 12)
	viper.Set("classifier.disk_space_floor", "2GB")

	viper.SetConfigFile(tempSavePath)
	require.NoError(t, Save())

	_, err := os.Stat(tempSavePath)
	require.NoError(t, err)

	readerViper := viper.New()
	readerViper.SetConfigFile(tempSavePath)
	require.NoError(t, readerViper.ReadInConfig())

	assert.Equal(t, "error", readerViper.GetString("log.level"))
	assert.Equal(t, 12, readerViper.GetInt("recovery.max_attempts"))
	assert.Equal(t, "2GB", readerViper.GetString("classifier.disk_space_floor"))
}

func TestConfigPathAndDataDir(t *testing.T) {
	viper.Reset()
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(homeDir, ".syncguard", "config.yaml"), ConfigPath())

	customConfigPath := filepath.Join(t.TempDir(), "custom_config.yaml")
	viper.SetConfigFile(customConfigPath)
	_ = viper.ReadInConfig()
	assert.Equal(t, customConfigPath, ConfigPath())

	viper.Reset()

	expectedDataDir := filepath.Join(homeDir, ".syncguard")
	assert.Equal(t, expectedDataDir, DataDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "another_non_existent_config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, expectedDataDir, cfg.GetDataDir())
}

func TestGenericGetters(t *testing.T) {
	v := viper.New()

	v.Set("mykey.string", "testval")
	v.Set("mykey.int", 123)
	v.Set("mykey.durationsec", 5)
	v.Set("mykey.durationstr", "1500ms")
	v.Set("mykey.float", 12.34)
	v.Set("mykey.bool", true)

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "testval", cfg.GetString("mykey.string"))
	assert.Equal(t, 123, cfg.GetInt("mykey.int"))
	assert.Equal(t, 5*time.Second, cfg.GetDuration("mykey.durationsec"))
	assert.Equal(t, 1500*time.Millisecond, cfg.GetDuration("mykey.durationstr"))
	assert.Equal(t, 12.34, cfg.GetFloat64("mykey.float"))
	assert.True(t, cfg.viper.GetBool("mykey.bool"))

	v.Set("mykey.int64", int64(1234567890123))
	cfgAfterInt64, _ := LoadFromViper(v)
	assert.Equal(t, int64(1234567890123), cfgAfterInt64.GetInt64("mykey.int64"))

	settings := cfg.AllSettings()
	assert.Contains(t, settings, "mykey")
}
