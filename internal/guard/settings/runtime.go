package settings

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"guardbot/internal/guard/store"
)

// SupportedKeys are the runtime-overridable settings, in display order.
var SupportedKeys = []string{
	"REMIND_AFTER_MIN",
	"EXPIRE_AFTER_MIN",
	"MAX_REMINDERS",
	"MUTE_MINUTES",
	"ADMIN_IDS",
	"AI_MODERATION_ENABLED",
}

// Runtime resolves configuration values through an immutable base snapshot
// and a mutex-guarded override map. Readers always go through the accessors;
// nothing mutates the base Config after startup.
type Runtime struct {
	base Config

	mu        sync.RWMutex
	overrides map[string]string
}

// NewRuntime wraps the base configuration with an empty override set.
func NewRuntime(base Config) *Runtime {
	return &Runtime{base: base, overrides: make(map[string]string)}
}

// Base returns the immutable startup configuration.
func (r *Runtime) Base() Config {
	return r.base
}

// Coerce validates value for key and returns its canonical string form. It
// rejects unsupported keys.
func Coerce(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "REMIND_AFTER_MIN", "EXPIRE_AFTER_MIN", "MAX_REMINDERS", "MUTE_MINUTES":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return "", fmt.Errorf("settings: %s must be a non-negative integer", key)
		}
		return strconv.Itoa(n), nil
	case "AI_MODERATION_ENABLED":
		b, err := parseBool(value)
		if err != nil {
			return "", fmt.Errorf("settings: %s must be a boolean", key)
		}
		return strconv.FormatBool(b), nil
	case "ADMIN_IDS":
		ids := parseIDList(value)
		if len(ids) == 0 {
			return "", fmt.Errorf("settings: %s must be a comma-separated list of ids", key)
		}
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("settings: unsupported key %q", key)
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// Set validates and applies an override. The caller persists it separately.
func (r *Runtime) Set(key, value string) error {
	canonical, err := Coerce(key, value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.overrides[key] = canonical
	r.mu.Unlock()
	return nil
}

// LoadFromStore applies persisted overrides. Unsupported keys and values that
// no longer coerce are skipped with a log line rather than failing startup.
func (r *Runtime) LoadFromStore(ctx context.Context, st *store.Store) error {
	values, err := st.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("settings: load runtime overrides: %w", err)
	}
	for key, value := range values {
		if !slices.Contains(SupportedKeys, key) {
			continue
		}
		if err := r.Set(key, value); err != nil {
			slog.Warn("skipping invalid persisted setting", "key", key, "err", err)
		}
	}
	return nil
}

func (r *Runtime) override(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.overrides[key]
	return v, ok
}

func (r *Runtime) intValue(key string, base int) int {
	if v, ok := r.override(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return base
}

// RemindAfter returns the reminder cadence.
func (r *Runtime) RemindAfter() time.Duration {
	return time.Duration(r.intValue("REMIND_AFTER_MIN", r.base.RemindAfterMin)) * time.Minute
}

// ExpireAfter returns the verification session lifetime.
func (r *Runtime) ExpireAfter() time.Duration {
	return time.Duration(r.intValue("EXPIRE_AFTER_MIN", r.base.ExpireAfterMin)) * time.Minute
}

// MaxReminders returns the reminder cap per session.
func (r *Runtime) MaxReminders() int {
	return r.intValue("MAX_REMINDERS", r.base.MaxReminders)
}

// MuteDuration returns how long moderation mutes last.
func (r *Runtime) MuteDuration() time.Duration {
	return time.Duration(r.intValue("MUTE_MINUTES", r.base.MuteMinutes)) * time.Minute
}

// AIModerationEnabled reports whether the AI classifier gate is on.
func (r *Runtime) AIModerationEnabled() bool {
	if v, ok := r.override("AI_MODERATION_ENABLED"); ok {
		if b, err := parseBool(v); err == nil {
			return b
		}
	}
	return r.base.AIModerationEnabled
}

// AdminIDs returns the admin roster: ADMIN_ID first when set, then the
// ADMIN_IDS list (override or base) with duplicates removed.
func (r *Runtime) AdminIDs() []int64 {
	list := r.base.AdminIDs
	if v, ok := r.override("ADMIN_IDS"); ok {
		list = parseIDList(v)
	}

	var ids []int64
	if r.base.AdminID != 0 {
		ids = append(ids, r.base.AdminID)
	}
	for _, id := range list {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// PrimaryAdmin returns the first admin in the roster, or 0 when none is
// configured. The primary admin receives forwarded messages and audit cards.
func (r *Runtime) PrimaryAdmin() int64 {
	ids := r.AdminIDs()
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// IsAdmin reports whether id is on the admin roster.
func (r *Runtime) IsAdmin(id int64) bool {
	return slices.Contains(r.AdminIDs(), id)
}

// Snapshot returns the effective value of every supported key, for the admin
// panel's settings view.
func (r *Runtime) Snapshot() map[string]string {
	snap := make(map[string]string, len(SupportedKeys))
	for _, key := range SupportedKeys {
		snap[key] = r.effective(key)
	}
	return snap
}

func (r *Runtime) effective(key string) string {
	if v, ok := r.override(key); ok {
		return v
	}
	switch key {
	case "REMIND_AFTER_MIN":
		return strconv.Itoa(r.base.RemindAfterMin)
	case "EXPIRE_AFTER_MIN":
		return strconv.Itoa(r.base.ExpireAfterMin)
	case "MAX_REMINDERS":
		return strconv.Itoa(r.base.MaxReminders)
	case "MUTE_MINUTES":
		return strconv.Itoa(r.base.MuteMinutes)
	case "AI_MODERATION_ENABLED":
		return strconv.FormatBool(r.base.AIModerationEnabled)
	case "ADMIN_IDS":
		parts := make([]string, len(r.base.AdminIDs))
		for i, id := range r.base.AdminIDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(parts, ",")
	}
	return ""
}
