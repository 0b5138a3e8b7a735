package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string         `yaml:"discord_token"`
	DatabaseURL  string         `yaml:"database_url"`
	LogLevel     string         `yaml:"log_level"`
	Health       HealthConfig   `yaml:"health"`
	Backup       BackupConfig   `yaml:"backup"`
	SafeMode     SafeModeConfig `yaml:"safemode"`
	Thresholds   Thresholds     `yaml:"thresholds"`
	Threat       ThreatConfig   `yaml:"threat"`
	EmbedColors  EmbedColors    `yaml:"embed_colors"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type BackupConfig struct {
	ThrottleEvery   int `yaml:"throttle_every"`
	ThrottleSeconds int `yaml:"throttle_seconds"`
	// Schedule is a cron expression for automatic backups; empty disables them.
	Schedule string `yaml:"schedule"`
}

type SafeModeConfig struct {
	DefaultLevel    int `yaml:"default_level"`
	ThrottleEvery   int `yaml:"throttle_every"`
	ThrottleSeconds int `yaml:"throttle_seconds"`
}

type Thresholds struct {
	SpamMessages      int `yaml:"spam_messages"`
	SpamWindowSeconds int `yaml:"spam_window_seconds"`
	RaidJoins         int `yaml:"raid_joins"`
	RaidWindowSeconds int `yaml:"raid_window_seconds"`
	NukeDeletions     int `yaml:"nuke_deletions"`
	NukeWindowSeconds int `yaml:"nuke_window_seconds"`
}

type ThreatConfig struct {
	WatchdogThreshold int `yaml:"watchdog_threshold"`
}

type EmbedColors struct {
	Action   int `yaml:"action"`
	Warning  int `yaml:"warning"`
	Error    int `yaml:"error"`
	Deletion int `yaml:"deletion"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Health:   HealthConfig{Enabled: false, Addr: ":8080"},
		Backup:   BackupConfig{ThrottleEvery: 5, ThrottleSeconds: 5},
		SafeMode: SafeModeConfig{DefaultLevel: 1, ThrottleEvery: 5, ThrottleSeconds: 1},
		Thresholds: Thresholds{
			SpamMessages:      6,
			SpamWindowSeconds: 8,
			RaidJoins:         6,
			RaidWindowSeconds: 10,
			NukeDeletions:     4,
			NukeWindowSeconds: 20,
		},
		Threat: ThreatConfig{WatchdogThreshold: 70},
		EmbedColors: EmbedColors{
			Action:   0x00AE86,
			Warning:  0xF59E0B,
			Error:    0xEF4444,
			Deletion: 0xE74C3C,
		},
	}
}

// Load reads .env (if present), then the YAML file at CONFIG_PATH, then applies
// environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// Validate checks what the bot needs to connect. Maintenance commands skip it.
func (c Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Backup.ThrottleEvery = envInt("BACKUP_THROTTLE_EVERY", cfg.Backup.ThrottleEvery)
	cfg.Backup.ThrottleSeconds = envInt("BACKUP_THROTTLE_SECONDS", cfg.Backup.ThrottleSeconds)
	cfg.Backup.Schedule = envString("BACKUP_SCHEDULE", cfg.Backup.Schedule)
	cfg.SafeMode.DefaultLevel = envInt("SAFEMODE_DEFAULT_LEVEL", cfg.SafeMode.DefaultLevel)
	cfg.Thresholds.SpamMessages = envInt("SPAM_MESSAGES", cfg.Thresholds.SpamMessages)
	cfg.Thresholds.SpamWindowSeconds = envInt("SPAM_WINDOW_SECONDS", cfg.Thresholds.SpamWindowSeconds)
	cfg.Thresholds.RaidJoins = envInt("RAID_JOINS", cfg.Thresholds.RaidJoins)
	cfg.Thresholds.RaidWindowSeconds = envInt("RAID_WINDOW_SECONDS", cfg.Thresholds.RaidWindowSeconds)
	cfg.Thresholds.NukeDeletions = envInt("NUKE_DELETIONS", cfg.Thresholds.NukeDeletions)
	cfg.Thresholds.NukeWindowSeconds = envInt("NUKE_WINDOW_SECONDS", cfg.Thresholds.NukeWindowSeconds)
	cfg.Threat.WatchdogThreshold = envInt("WATCHDOG_THRESHOLD", cfg.Threat.WatchdogThreshold)
	cfg.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.EmbedColors.Action)
	cfg.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.EmbedColors.Warning)
	cfg.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.EmbedColors.Error)
	cfg.EmbedColors.Deletion = envInt("EMBED_COLOR_DELETION", cfg.EmbedColors.Deletion)
}

func normalize(cfg *Config) {
	if cfg.SafeMode.DefaultLevel < 1 || cfg.SafeMode.DefaultLevel > 3 {
		cfg.SafeMode.DefaultLevel = 1
	}
	if cfg.Backup.ThrottleEvery < 0 {
		cfg.Backup.ThrottleEvery = 0
	}
	if cfg.Threat.WatchdogThreshold <= 0 || cfg.Threat.WatchdogThreshold > 100 {
		cfg.Threat.WatchdogThreshold = 70
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
