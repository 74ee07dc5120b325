// Package settings holds the daemon configuration: an immutable base
// snapshot loaded from the environment plus a small set of runtime-
// overridable keys persisted in the store and edited from the admin panel.
package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"guardbot/common/environment"
)

// Config is the immutable configuration snapshot taken at startup.
type Config struct {
	BotToken     string
	GroupID      int64
	SecretKey    string
	DatabasePath string

	RemindAfterMin int
	ExpireAfterMin int
	MaxReminders   int
	MuteMinutes    int

	AdminID           int64
	AdminIDs          []int64
	AdminPanelEnabled bool

	Timezone            string
	CaseInsensitive     bool
	ProhibitedWordsPath string

	AIModerationEnabled   bool
	AISampleRate          float64
	AIMinChars            int
	AICooldownSec         int
	AIProhibitedLabels    []string
	AIConfidenceThreshold float64

	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	OpenRouterModel      string
	OpenRouterTimeoutSec int

	LogLevel  string
	LogFormat string
}

// FromEnv builds the configuration from environment variables, failing on
// missing required values.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.BotToken, err = environment.RequiredString("BOT_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.GroupID, err = environment.RequiredInt64("GROUP_ID"); err != nil {
		return nil, err
	}
	if cfg.SecretKey, err = environment.RequiredString("SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.DatabasePath, err = environment.RequiredString("DATABASE_URL"); err != nil {
		return nil, err
	}

	cfg.RemindAfterMin = environment.IntOr("REMIND_AFTER_MIN", 10)
	cfg.ExpireAfterMin = environment.IntOr("EXPIRE_AFTER_MIN", 60)
	cfg.MaxReminders = environment.IntOr("MAX_REMINDERS", 2)
	cfg.MuteMinutes = environment.IntOr("MUTE_MINUTES", 10)

	cfg.AdminID = environment.Int64Or("ADMIN_ID", 0)
	cfg.AdminIDs = environment.Int64SliceOr("ADMIN_IDS", nil)
	cfg.AdminPanelEnabled = environment.BoolOr("ADMIN_PANEL_ENABLED", true)

	cfg.Timezone = environment.StringOr("TIMEZONE", "Asia/Tashkent")
	cfg.CaseInsensitive = environment.BoolOr("CASE_INSENSITIVE", true)
	cfg.ProhibitedWordsPath = environment.StringOr("PROHIBITED_WORDS_PATH", "")

	cfg.AIModerationEnabled = environment.BoolOr("AI_MODERATION_ENABLED", true)
	cfg.AISampleRate = environment.Float64Or("AI_MODERATION_SAMPLE_RATE", 1.0)
	cfg.AIMinChars = environment.IntOr("AI_MODERATION_MIN_CHARS", 12)
	cfg.AICooldownSec = environment.IntOr("AI_MODERATION_COOLDOWN_SEC", 30)
	cfg.AIProhibitedLabels = splitCSV(environment.StringOr("AI_PROHIBITED_LABELS", "gambling,fraud"))
	cfg.AIConfidenceThreshold = environment.Float64Or("AI_CONFIDENCE_THRESHOLD", 0.7)

	cfg.OpenRouterAPIKey = environment.StringOr("OPENROUTER_API_KEY", "")
	cfg.OpenRouterBaseURL = environment.StringOr("OPENROUTER_BASE_URL", "")
	cfg.OpenRouterModel = environment.StringOr("OPENROUTER_MODEL", "openai/gpt-4o-mini")
	cfg.OpenRouterTimeoutSec = environment.IntOr("OPENROUTER_TIMEOUT_SEC", 8)

	cfg.LogLevel = environment.StringOr("LOG_LEVEL", "INFO")
	cfg.LogFormat = environment.StringOr("LOG_FORMAT", "text")

	if cfg.AdminID == 0 && len(cfg.AdminIDs) == 0 {
		return nil, fmt.Errorf("settings: at least one of ADMIN_ID or ADMIN_IDS is required")
	}
	if cfg.AISampleRate < 0 || cfg.AISampleRate > 1 {
		return nil, fmt.Errorf("settings: AI_MODERATION_SAMPLE_RATE must be in [0,1], got %v", cfg.AISampleRate)
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDList(s string) []int64 {
	var ids []int64
	for _, part := range splitCSV(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
