package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
	"github.com/VatsalSy/SyncGuard/internal/util"
)

const envPrefix = "SYNCGUARD"

var config *Config

// Config represents the application configuration
type Config struct {
	// Persistence
	Database DatabaseConfig `mapstructure:"database"`

	// Failure classification thresholds
	Classifier ClassifierConfig `mapstructure:"classifier"`

	// Recovery dispatcher and worker settings
	Recovery RecoveryConfig `mapstructure:"recovery"`

	// Backup snapshots and rollback points
	Backup BackupConfig `mapstructure:"backup"`

	// Application error log
	ErrorLog ErrorLogConfig `mapstructure:"error_log"`

	// Per-table conflict resolution policies
	Conflicts map[string]ConflictConfig `mapstructure:"conflicts"`

	// Prometheus metrics
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Logging
	Log LogConfig `mapstructure:"log"`

	// Application
	Version string `mapstructure:"version"`

	viper *viper.Viper
}

// DatabaseConfig contains sqlite settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ClassifierConfig contains the system-state thresholds used for severity
// escalation and resource recovery decisions.
type ClassifierConfig struct {
	DiskSpaceFloor    string  `mapstructure:"disk_space_floor"`
	MemoryPressure    float64 `mapstructure:"memory_pressure"` // percent
	DefaultMaxRetries int     `mapstructure:"default_max_retries"`
}

// RecoveryConfig contains dispatcher settings
type RecoveryConfig struct {
	InitialRetryDelay time.Duration `mapstructure:"initial_retry_delay"`
	MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	Jitter            float64       `mapstructure:"jitter"`
	RetryCooldown     time.Duration `mapstructure:"retry_cooldown"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryRate         float64       `mapstructure:"retry_rate"` // admissions per second, 0 = unlimited
	RetryBurst        int           `mapstructure:"retry_burst"`
	EventHistory      int           `mapstructure:"event_history"`
	Workers           int           `mapstructure:"workers"`
}

// BackupConfig contains backup settings
type BackupConfig struct {
	SourceDir   string        `mapstructure:"source_dir"` // protected tables, one JSON file each
	MirrorDir   string        `mapstructure:"mirror_dir"` // remote copy for reset and resync, optional
	Directory   string        `mapstructure:"directory"`
	Compress    bool          `mapstructure:"compress"`
	MaxBackups  int           `mapstructure:"max_backups"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	RollbackDir string        `mapstructure:"rollback_dir"`
	RollbackTTL time.Duration `mapstructure:"rollback_ttl"`
}

// ErrorLogConfig contains error log settings
type ErrorLogConfig struct {
	MaxEntries  int           `mapstructure:"max_entries"`
	DedupWindow time.Duration `mapstructure:"dedup_window"` // 0 = whole session
	Persist     bool          `mapstructure:"persist"`
}

// ConflictConfig is the configured resolution policy for one table
type ConflictConfig struct {
	Strategy      string            `mapstructure:"strategy"`
	FieldPriority map[string]string `mapstructure:"field_priority"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`

	// Address serves /metrics while a long-running command is active.
	// Empty disables the listener.
	Address string `mapstructure:"address"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // stdout, stderr, file
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load initializes the global viper instance and loads the configuration.
// A missing config file is not an error; defaults and environment apply.
func Load(cfgFile ...string) (*Config, error) {
	configFile := ""
	if len(cfgFile) > 0 {
		configFile = cfgFile[0]
	}

	v := viper.GetViper()
	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	cfg, err := LoadFromViper(v)
	if err != nil {
		return nil, err
	}

	config = cfg
	return cfg, nil
}

// LoadFromViper unmarshals an already-prepared viper instance.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(cfg)
	cfg.viper = v

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Get returns the current configuration
func Get() *Config {
	if config == nil {
		config, _ = Load("")
	}
	return config
}

// Save writes the current configuration to file
func Save() error {
	configFile := ConfigPath()

	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return viper.WriteConfigAs(configFile)
}

// initViper sets up a viper instance
func initViper(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DataDir())
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetViperDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) || stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// SetViperDefaults registers every default on v.
func SetViperDefaults(v *viper.Viper) {
	dataDir := DataDir()

	v.SetDefault("database.path", filepath.Join(dataDir, "syncguard.db"))

	v.SetDefault("classifier.disk_space_floor", "512MB")
	v.SetDefault("classifier.memory_pressure", 90.0)
	v.SetDefault("classifier.default_max_retries", 3)

	v.SetDefault("recovery.initial_retry_delay", "1s")
	v.SetDefault("recovery.max_retry_delay", "1m")
	v.SetDefault("recovery.backoff_multiplier", 2.0)
	v.SetDefault("recovery.jitter", 0.0)
	v.SetDefault("recovery.retry_cooldown", "30s")
	v.SetDefault("recovery.max_attempts", 3)
	v.SetDefault("recovery.retry_rate", 10.0)
	v.SetDefault("recovery.retry_burst", 5)
	v.SetDefault("recovery.event_history", 1000)
	v.SetDefault("recovery.workers", 4)

	v.SetDefault("backup.source_dir", filepath.Join(dataDir, "tables"))
	v.SetDefault("backup.mirror_dir", "")
	v.SetDefault("backup.directory", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.max_backups", 10)
	v.SetDefault("backup.max_age", "168h")
	v.SetDefault("backup.rollback_dir", filepath.Join(dataDir, "rollback"))
	v.SetDefault("backup.rollback_ttl", "24h")

	v.SetDefault("error_log.max_entries", 1000)
	v.SetDefault("error_log.dedup_window", "0s")
	v.SetDefault("error_log.persist", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "syncguard")
	v.SetDefault("metrics.address", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("version", "1.0.0")
}

// setDefaults ensures all config fields have sensible defaults
func setDefaults(cfg *Config) {
	dataDir := DataDir()

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(dataDir, "syncguard.db")
	}

	if cfg.Classifier.DiskSpaceFloor == "" {
		cfg.Classifier.DiskSpaceFloor = "512MB"
	}
	if cfg.Classifier.MemoryPressure == 0 {
		cfg.Classifier.MemoryPressure = 90
	}
	if cfg.Classifier.DefaultMaxRetries == 0 {
		cfg.Classifier.DefaultMaxRetries = 3
	}

	if cfg.Recovery.InitialRetryDelay == 0 {
		cfg.Recovery.InitialRetryDelay = time.Second
	}
	if cfg.Recovery.MaxRetryDelay == 0 {
		cfg.Recovery.MaxRetryDelay = time.Minute
	}
	if cfg.Recovery.BackoffMultiplier == 0 {
		cfg.Recovery.BackoffMultiplier = 2.0
	}
	if cfg.Recovery.RetryCooldown == 0 {
		cfg.Recovery.RetryCooldown = 30 * time.Second
	}
	if cfg.Recovery.MaxAttempts == 0 {
		cfg.Recovery.MaxAttempts = 3
	}
	if cfg.Recovery.RetryBurst == 0 {
		cfg.Recovery.RetryBurst = 5
	}
	if cfg.Recovery.EventHistory == 0 {
		cfg.Recovery.EventHistory = 1000
	}
	if cfg.Recovery.Workers == 0 {
		cfg.Recovery.Workers = 4
	}

	if cfg.Backup.SourceDir == "" {
		cfg.Backup.SourceDir = filepath.Join(dataDir, "tables")
	}
	if cfg.Backup.Directory == "" {
		cfg.Backup.Directory = filepath.Join(dataDir, "backups")
	}
	if cfg.Backup.RollbackDir == "" {
		cfg.Backup.RollbackDir = filepath.Join(dataDir, "rollback")
	}
	if cfg.Backup.RollbackTTL == 0 {
		cfg.Backup.RollbackTTL = 24 * time.Hour
	}

	if cfg.ErrorLog.MaxEntries == 0 {
		cfg.ErrorLog.MaxEntries = 1000
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "syncguard"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if _, err := c.DiskSpaceFloorBytes(); err != nil {
		return errors.Configuration("config", "classifier.disk_space_floor: %v", err)
	}
	if c.Classifier.MemoryPressure <= 0 || c.Classifier.MemoryPressure > 100 {
		return errors.Configuration("config", "classifier.memory_pressure must be within (0, 100]")
	}
	if c.Classifier.DefaultMaxRetries < 0 {
		return errors.Configuration("config", "classifier.default_max_retries cannot be negative")
	}
	if c.Recovery.BackoffMultiplier < 1 {
		return errors.Configuration("config", "recovery.backoff_multiplier must be at least 1")
	}
	if c.Recovery.MaxRetryDelay < c.Recovery.InitialRetryDelay {
		return errors.Configuration("config", "recovery.max_retry_delay is below recovery.initial_retry_delay")
	}
	if c.Recovery.Jitter < 0 || c.Recovery.Jitter >= 1 {
		return errors.Configuration("config", "recovery.jitter must be within [0, 1)")
	}
	if c.ErrorLog.MaxEntries < 0 || c.ErrorLog.DedupWindow < 0 {
		return errors.Configuration("config", "error_log limits cannot be negative")
	}
	if _, err := c.ConflictPolicies(); err != nil {
		return err
	}
	return nil
}

// DiskSpaceFloorBytes parses the classifier disk floor.
func (c *Config) DiskSpaceFloorBytes() (int64, error) {
	return util.ParseBytes(c.Classifier.DiskSpaceFloor)
}

// BackoffConfig builds the retry schedule shared by the classifier and dispatcher.
func (c *Config) BackoffConfig() *errors.BackoffConfig {
	return &errors.BackoffConfig{
		InitialInterval:     c.Recovery.InitialRetryDelay,
		MaxInterval:         c.Recovery.MaxRetryDelay,
		Multiplier:          c.Recovery.BackoffMultiplier,
		RandomizationFactor: c.Recovery.Jitter,
	}
}

// ConflictPolicies converts the conflicts section into typed policies keyed
// by table. Table names are lower-cased by viper.
func (c *Config) ConflictPolicies() (model.PolicySet, error) {
	policies := make(model.PolicySet, len(c.Conflicts))
	for table, raw := range c.Conflicts {
		strategy, ok := model.ParseConflictStrategy(raw.Strategy)
		if !ok {
			return nil, errors.Configuration("config", "conflicts.%s: unknown strategy %q", table, raw.Strategy)
		}

		policy := model.ConflictPolicy{Table: table, Strategy: strategy}
		if len(raw.FieldPriority) > 0 {
			policy.FieldPriority = make(map[string]model.Side, len(raw.FieldPriority))
			for field, side := range raw.FieldPriority {
				s := model.Side(strings.ToLower(side))
				if s != model.SideLocal && s != model.SideRemote {
					return nil, errors.Configuration("config",
						"conflicts.%s.field_priority.%s: side must be local or remote", table, field)
				}
				policy.FieldPriority[field] = s
			}
		}
		policies[table] = policy
	}
	return policies, nil
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = filepath.Join(DataDir(), "config.yaml")
	}
	return configFile
}

// DataDir returns the SyncGuard data directory
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".syncguard")
}

// GetDataDir returns the SyncGuard data directory
func (c *Config) GetDataDir() string {
	return DataDir()
}

func (c *Config) v() *viper.Viper {
	if c.viper == nil {
		return viper.GetViper()
	}
	return c.viper
}

// AllSettings returns the merged settings map, used by `config show`.
func (c *Config) AllSettings() map[string]interface{} {
	return c.v().AllSettings()
}

// GetString returns a string value from viper
func (c *Config) GetString(key string) string {
	return c.v().GetString(key)
}

// GetInt returns an int value from viper
func (c *Config) GetInt(key string) int {
	return c.v().GetInt(key)
}

// GetInt64 returns an int64 value from viper
func (c *Config) GetInt64(key string) int64 {
	return c.v().GetInt64(key)
}

// GetFloat64 returns a float64 value from viper
func (c *Config) GetFloat64(key string) float64 {
	return c.v().GetFloat64(key)
}

// GetDuration returns a duration from viper. Bare numbers are seconds.
func (c *Config) GetDuration(key string) time.Duration {
	switch c.v().Get(key).(type) {
	case int, int32, int64, float64:
		return time.Duration(c.v().GetFloat64(key) * float64(time.Second))
	default:
		return c.v().GetDuration(key)
	}
}

// GetLogLevel returns the log level
func (c *Config) GetLogLevel() string {
	return c.Log.Level
}
